package storage

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // GIF decode support
	_ "image/jpeg" // JPEG decode support
	_ "image/png"  // PNG decode support
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
	_ "golang.org/x/image/webp" // WebP decode support
)

// MaxImageBytes caps a single upload.
const MaxImageBytes = 10 << 20

// RecipeImageDir is the key prefix for recipe images.
const RecipeImageDir = "uploads/recipe"

// formats maps image.DecodeConfig format names to a canonical extension and
// content type.
var formats = map[string]struct {
	ext         string
	contentType string
}{
	"jpeg": {".jpg", "image/jpeg"},
	"png":  {".png", "image/png"},
	"gif":  {".gif", "image/gif"},
	"webp": {".webp", "image/webp"},
}

// Image is a validated upload held in memory.
type Image struct {
	Data        []byte
	Format      string // jpeg, png, gif or webp
	ContentType string
	Width       int
	Height      int
}

// Reader returns a fresh reader over the image bytes.
func (img *Image) Reader() io.Reader {
	return bytes.NewReader(img.Data)
}

// ReadImage reads at most MaxImageBytes from r and checks that the bytes
// decode as a supported image. Anything else yields ErrNotImage.
func ReadImage(r io.Reader) (*Image, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("storage: reading upload: %w", err)
	}
	if len(data) > MaxImageBytes {
		return nil, fmt.Errorf("%w: larger than %d bytes", ErrNotImage, MaxImageBytes)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotImage, err)
	}
	f, ok := formats[format]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported format %q", ErrNotImage, format)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: empty image", ErrNotImage)
	}

	return &Image{
		Data:        data,
		Format:      format,
		ContentType: f.contentType,
		Width:       cfg.Width,
		Height:      cfg.Height,
	}, nil
}

// RecipeImageKey builds "uploads/recipe/<uuid><ext>". The extension comes
// from the uploaded file name, lower-cased; when the name has none (or an
// odd one), the detected format's usual extension is used.
func RecipeImageKey(filename, format string) string {
	ext := strings.ToLower(path.Ext(strings.ReplaceAll(filename, `\`, "/")))
	if !validExt(ext) {
		ext = formats[format].ext
	}
	return RecipeImageDir + "/" + uuid.NewString() + ext
}

// validExt accepts "." followed by 1 to 10 lower-case letters or digits.
func validExt(ext string) bool {
	if len(ext) < 2 || len(ext) > 11 || ext[0] != '.' {
		return false
	}
	for _, c := range ext[1:] {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}
