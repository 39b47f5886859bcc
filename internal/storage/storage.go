// Package storage keeps uploaded recipe images.
//
// Images are addressed by a key such as "uploads/recipe/<uuid>.png". The
// database stores only the key; URL turns it into something a client can
// fetch. Two backends exist: the local filesystem (served by the API under
// /media/) and S3.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotImage is returned when an upload cannot be decoded as a supported image.
var ErrNotImage = errors.New("storage: upload is not a supported image")

// ImageStore saves, deletes and links to image objects.
type ImageStore interface {
	Save(ctx context.Context, key string, body io.Reader, contentType string) error
	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error
	URL(key string) string
}
