package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/sakif/recipe-api/internal/apperror"
	"github.com/sakif/recipe-api/internal/auth"
	"github.com/sakif/recipe-api/internal/model"
	"github.com/sakif/recipe-api/internal/service"
)

const oauthStateCookie = "oauth_state"

// UserHandler serves sign-up, token issuance, the caller's own profile and
// the optional GitHub sign-in.
//
// HANDLER RESPONSIBILITIES:
//   - HandleCreate         → POST /user/create
//   - HandleToken          → POST /user/token
//   - HandleMe             → GET /user/me
//   - HandleUpdateMe       → PATCH, PUT /user/me
//   - HandleGitHubLogin    → GET /user/github/login
//   - HandleGitHubCallback → GET /user/github/callback
type UserHandler struct {
	users  *service.UserService
	github *auth.GitHubProvider // nil when GitHub sign-in is not configured
	logger *slog.Logger
}

func NewUserHandler(users *service.UserService, github *auth.GitHubProvider, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		users:  users,
		github: github,
		logger: logger,
	}
}

// userResponse is the public view of an account. Passwords never leave the server.
type userResponse struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

func newUserResponse(u *model.User) userResponse {
	return userResponse{Email: u.Email, Name: u.Name}
}

type tokenResponse struct {
	Token string `json:"token"`
}

// HandleCreate registers a new account.
//
// HTTP: POST /user/create
// REQUEST BODY: {"email": "...", "password": "...", "name": "..."}
// RESPONSE: 201 {"email": "...", "name": "..."}
func (h *UserHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var in service.RegisterInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}

	user, err := h.users.Register(r.Context(), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, newUserResponse(user))
}

// HandleToken exchanges email and password for an API token.
//
// HTTP: POST /user/token
// The body may be JSON or a form. Wrong credentials give 400 with a
// non_field_errors message that does not say which part was wrong.
func (h *UserHandler) HandleToken(w http.ResponseWriter, r *http.Request) {
	var in service.CredentialsInput
	if isForm(r) {
		in.Email = r.FormValue("email")
		in.Password = r.FormValue("password")
	} else if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}

	token, err := h.users.IssueToken(r.Context(), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}

func isForm(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return strings.HasPrefix(ct, "application/x-www-form-urlencoded") || strings.HasPrefix(ct, "multipart/form-data")
}

// HandleMe returns the authenticated user's profile.
//
// HTTP: GET /user/me
func (h *UserHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(user))
}

// HandleUpdateMe changes the authenticated user's name, email or password.
//
// HTTP: PATCH /user/me (PUT is accepted with the same partial semantics)
func (h *UserHandler) HandleUpdateMe(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var in service.UpdateMeInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}

	updated, err := h.users.UpdateMe(r.Context(), user, in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(updated))
}

// HandleGitHubLogin redirects the browser to GitHub's authorization page.
//
// HTTP: GET /user/github/login
//
// CSRF PROTECTION VIA STATE:
// The random state goes into a short-lived HttpOnly cookie and into the
// authorization URL. The callback only proceeds when both match.
func (h *UserHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	if h.github == nil {
		writeError(w, h.logger, apperror.NotFound("provider", "github"))
		return
	}

	state := auth.NewState()
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/user/github",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes the OAuth flow and answers with an API token.
//
// HTTP: GET /user/github/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Validate the state parameter against the cookie
//  2. Exchange the code for the GitHub profile and verified email
//  3. Sign in (or create) the account with that email
//  4. Return {"token": "..."}
func (h *UserHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	if h.github == nil {
		writeError(w, h.logger, apperror.NotFound("provider", "github"))
		return
	}

	// --- Step 1: CSRF state ---
	cookie, err := r.Cookie(oauthStateCookie)
	if err != nil || cookie.Value == "" || r.URL.Query().Get("state") != cookie.Value {
		h.logger.Warn("github callback: state mismatch")
		writeError(w, h.logger, apperror.ValidationFailed("state", "Invalid OAuth state."))
		return
	}
	http.SetCookie(w, &http.Cookie{Name: oauthStateCookie, Value: "", Path: "/user/github", MaxAge: -1})

	if denied := r.URL.Query().Get("error"); denied != "" {
		h.logger.Info("github callback: authorization denied", slog.String("error", denied))
		writeError(w, h.logger, apperror.Unauthorized("GitHub authorization was denied."))
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, h.logger, apperror.ValidationFailed("code", "This field is required."))
		return
	}

	// --- Step 2: exchange ---
	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("github callback: exchange failed", slog.String("error", err.Error()))
		writeError(w, h.logger, apperror.Unauthorized("GitHub authentication failed."))
		return
	}

	// --- Steps 3 and 4: sign in and answer ---
	token, _, err := h.users.LoginGitHub(r.Context(), ghUser)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}
