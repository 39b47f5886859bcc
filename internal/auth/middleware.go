package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/sakif/recipe-api/internal/apperror"
	"github.com/sakif/recipe-api/internal/model"
)

// contextKey is an unexported type used for context keys in this package, so
// no other package can read or shadow the authenticated user.
type contextKey string

const userKey contextKey = "user"

// Header schemes accepted in the Authorization header.
var schemes = []string{"Token", "Bearer"}

// UserLoader is the part of the user store RequireAuth needs.
type UserLoader interface {
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
}

// RequireAuth is a middleware that enforces authentication on protected routes.
//
// It reads "Authorization: Token <t>" (or "Bearer <t>"), validates the token,
// loads the user and stores it in the request context. Missing or invalid
// tokens, and users that are inactive or gone, get 401 Unauthorized.
func RequireAuth(tokens *TokenService, users UserLoader, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := tokenFromHeader(r.Header.Get("Authorization"))
			if !ok {
				writeAuthError(w, http.StatusUnauthorized, "unauthorized", "Authentication credentials were not provided.")
				return
			}

			userID, err := tokens.Validate(raw)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "unauthorized", "Invalid token.")
				return
			}

			user, err := users.GetUserByID(r.Context(), userID)
			if err != nil {
				if errors.Is(err, apperror.ErrNotFound) {
					writeAuthError(w, http.StatusUnauthorized, "unauthorized", "User inactive or deleted.")
					return
				}
				logger.Error("loading authenticated user",
					slog.Int64("user_id", userID),
					slog.String("error", err.Error()),
				)
				writeAuthError(w, http.StatusInternalServerError, "internal_error", "An internal error occurred")
				return
			}
			if !user.IsActive {
				writeAuthError(w, http.StatusUnauthorized, "unauthorized", "User inactive or deleted.")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// RequireStaff rejects authenticated users without the staff flag. It must
// run after RequireAuth.
func RequireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if !ok {
			writeAuthError(w, http.StatusUnauthorized, "unauthorized", "Authentication credentials were not provided.")
			return
		}
		if !user.IsStaff {
			writeAuthError(w, http.StatusForbidden, "forbidden", "You do not have permission to perform this action.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WithUser returns a copy of ctx carrying user.
func WithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext retrieves the authenticated user from the request context.
//
// Usage in handlers:
//
//	user, ok := auth.UserFromContext(r.Context())
//	if !ok {
//	    // route is not behind RequireAuth
//	}
func UserFromContext(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(userKey).(*model.User)
	return u, ok && u != nil
}

// tokenFromHeader extracts the credential from an Authorization header value.
// The scheme is matched case-insensitively.
func tokenFromHeader(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", false
	}
	for _, s := range schemes {
		if strings.EqualFold(scheme, s) {
			return token, true
		}
	}
	return "", false
}

func writeAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", schemes[0])
	}
	w.WriteHeader(status)
	body, _ := json.Marshal(map[string]string{"error": code, "message": message})
	w.Write(body)
}
