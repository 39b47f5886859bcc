package auth

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// fakeGitHub serves the token endpoint and the two API calls Exchange makes.
func fakeGitHub(t *testing.T, emailsJSON string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"access_token":"gho_test","token_type":"bearer"}`)
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer gho_test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		io.WriteString(w, `{"id": 99, "login": "octocat", "name": "", "email": "public@example.com"}`)
	})
	mux.HandleFunc("/user/emails", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, emailsJSON)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newFakeProvider(srv *httptest.Server) *GitHubProvider {
	endpoint := oauth2.Endpoint{
		AuthURL:  srv.URL + "/login/oauth/authorize",
		TokenURL: srv.URL + "/login/oauth/access_token",
	}
	return newGitHubProvider("client", "secret", "http://localhost/user/github/callback", endpoint, srv.URL)
}

func TestGitHubProvider_AuthURL(t *testing.T) {
	p := NewGitHubProvider("client-id", "secret", "http://localhost:8000/user/github/callback")

	u, err := url.Parse(p.AuthURL("state-123"))
	require.NoError(t, err)
	assert.Equal(t, "github.com", u.Host)
	assert.Equal(t, "client-id", u.Query().Get("client_id"))
	assert.Equal(t, "state-123", u.Query().Get("state"))
}

func TestGitHubProvider_ExchangePrefersPrimaryVerifiedEmail(t *testing.T) {
	srv := fakeGitHub(t, `[
		{"email": "old@example.com", "primary": false, "verified": true},
		{"email": "main@example.com", "primary": true, "verified": true},
		{"email": "unverified@example.com", "primary": false, "verified": false}
	]`)

	user, err := newFakeProvider(srv).Exchange(context.Background(), "code")
	require.NoError(t, err)
	assert.Equal(t, int64(99), user.ID)
	assert.Equal(t, "main@example.com", user.Email)
	assert.Equal(t, "octocat", user.DisplayName())
}

func TestGitHubProvider_ExchangeWithoutVerifiedEmail(t *testing.T) {
	srv := fakeGitHub(t, `[{"email": "x@example.com", "primary": true, "verified": false}]`)

	_, err := newFakeProvider(srv).Exchange(context.Background(), "code")
	assert.True(t, errors.Is(err, ErrNoVerifiedEmail), "got %v", err)
}

func TestNewState_Unique(t *testing.T) {
	assert.NotEqual(t, NewState(), NewState())
}
