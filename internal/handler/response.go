package handler

// RESPONSE HELPERS:
// Every handler answers through writeJSON / writeError so the API has one
// content type and one error shape:
//
//	{"error": "validation_error", "message": "...", "fields": {"email": ["..."]}}
//
// "fields" is present only for validation errors and maps each failing field
// to its messages.

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"

	"github.com/sakif/recipe-api/internal/apperror"
	"github.com/sakif/recipe-api/internal/auth"
	"github.com/sakif/recipe-api/internal/model"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error   string              `json:"error"`
	Message string              `json:"message"`
	Fields  map[string][]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already out; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error onto a status code. Anything that is not an
// *apperror.AppError becomes a generic 500 and is logged, never echoed.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		logger.Error("request failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "An internal error occurred",
		})
		return
	}

	status := http.StatusInternalServerError
	errorType := "internal_error"
	switch {
	case errors.Is(err, apperror.ErrValidation):
		status, errorType = http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrUnauthorized):
		status, errorType = http.StatusUnauthorized, "unauthorized"
		w.Header().Set("WWW-Authenticate", "Token")
	case errors.Is(err, apperror.ErrForbidden):
		status, errorType = http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrNotFound):
		status, errorType = http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrConflict):
		status, errorType = http.StatusConflict, "conflict"
	}

	resp := ErrorResponse{Error: errorType, Message: appErr.Message}
	if status == http.StatusBadRequest {
		resp.Fields = appErr.Fields
	}
	writeJSON(w, status, resp)
}

// decodeJSON reads a single JSON object into dst. Syntax and type errors come
// back as validation errors; a type error names the offending field.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(body).Decode(dst)
	if err == nil {
		return nil
	}

	var typeErr *json.UnmarshalTypeError
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, io.EOF):
		return apperror.ValidationFailed("non_field_errors", "No data provided.")
	case errors.As(err, &maxErr):
		return apperror.ValidationFailed("non_field_errors", "Request body too large.")
	case errors.As(err, &typeErr) && typeErr.Field != "":
		return apperror.ValidationFailed(typeErr.Field, "Incorrect type. Expected "+typeErr.Type.String()+".")
	case errors.Is(err, model.ErrInvalidPrice):
		return apperror.ValidationFailed("price", "A valid number is required, with at most 5 digits and 2 decimal places.")
	default:
		return apperror.ValidationFailed("non_field_errors", fmt.Sprintf("JSON parse error - %v", err))
	}
}

// pathID parses the {id} URL parameter. A malformed id is reported as not
// found, the same as an id that does not exist.
func pathID(r *http.Request, resource string) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperror.NotFound(resource, raw)
	}
	return id, nil
}

// parseIDs parses a comma-separated id list such as "1,2,3". Empty entries
// are skipped.
func parseIDs(param, raw string) ([]int64, error) {
	if raw == "" {
		return nil, nil
	}
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, apperror.ValidationFailed(param, fmt.Sprintf("%q is not a valid id.", part))
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// currentUser returns the user RequireAuth stored on the request.
func currentUser(r *http.Request) (*model.User, error) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		return nil, apperror.Unauthorized("Authentication credentials were not provided.")
	}
	return user, nil
}

// NotFound answers unknown routes in the API's error shape.
func NotFound(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "Not found."})
}

// MethodNotAllowed answers a known route called with the wrong method.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{
		Error:   "method_not_allowed",
		Message: fmt.Sprintf("Method %q not allowed.", r.Method),
	})
}

// TooManyRequests is the rate limiter's reply.
func TooManyRequests(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusTooManyRequests, ErrorResponse{
		Error:   "throttled",
		Message: "Request was throttled.",
	})
}
