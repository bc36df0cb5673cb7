package jira

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daviddao/deskflow/internal/config"
)

// echoAuth returns the Authorization header it received.
func echoAuth(t *testing.T) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Get("/whoami", func(w http.ResponseWriter, req *http.Request) {
		_, _ = w.Write([]byte(req.Header.Get("Authorization")))
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func authHeader(t *testing.T, hc *http.Client, base string) string {
	t.Helper()
	resp, err := hc.Get(base + "/whoami")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestNewHTTPClient_Basic(t *testing.T) {
	srv := echoAuth(t)
	hc, err := NewHTTPClient(context.Background(), config.AuthConfig{
		Mode:     AuthBasic,
		Email:    "bot@example.com",
		APIToken: "secret",
	}, 5*time.Second)
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, hc.Timeout)
	// base64("bot@example.com:secret")
	assert.Equal(t, "Basic Ym90QGV4YW1wbGUuY29tOnNlY3JldA==", authHeader(t, hc, srv.URL))
}

func TestNewHTTPClient_StaticBearer(t *testing.T) {
	srv := echoAuth(t)
	hc, err := NewHTTPClient(context.Background(), config.AuthConfig{
		Mode:        AuthOAuth2,
		AccessToken: "tok-123",
	}, time.Second)
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok-123", authHeader(t, hc, srv.URL))
}

func TestNewHTTPClient_RefreshToken(t *testing.T) {
	srv := echoAuth(t)

	tokens := chi.NewRouter()
	tokens.Post("/oauth/token", func(w http.ResponseWriter, req *http.Request) {
		assert.NoError(t, req.ParseForm())
		assert.Equal(t, "refresh_token", req.PostForm.Get("grant_type"))
		assert.Equal(t, "r-1", req.PostForm.Get("refresh_token"))
		assert.Equal(t, "client-a", req.PostForm.Get("client_id"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "fresh",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	tokenSrv := httptest.NewServer(tokens)
	defer tokenSrv.Close()

	hc, err := NewHTTPClient(context.Background(), config.AuthConfig{
		Mode:         AuthOAuth2,
		RefreshToken: "r-1",
		ClientID:     "client-a",
		ClientSecret: "shh",
		TokenURL:     tokenSrv.URL + "/oauth/token",
	}, time.Second)
	require.NoError(t, err)

	assert.Equal(t, "Bearer fresh", authHeader(t, hc, srv.URL))
}

func TestNewHTTPClient_InvalidSettings(t *testing.T) {
	for name, auth := range map[string]config.AuthConfig{
		"basic without token": {Mode: AuthBasic, Email: "bot@example.com"},
		"oauth2 without any":  {Mode: AuthOAuth2},
		"unknown mode":        {Mode: "kerberos"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := NewHTTPClient(context.Background(), auth, time.Second)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestNewClientFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Jira.SiteDomain = "example.atlassian.net"
	cfg.Jira.Auth.Email = "bot@example.com"
	cfg.Jira.Auth.APIToken = "secret"

	c, err := NewClientFromConfig(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://example.atlassian.net", c.siteURL)
	assert.Equal(t, "https://api.atlassian.com", c.formsURL)
	assert.Equal(t, 3, c.retry.MaxAttempts)

	cfg.Jira.Auth.APIToken = ""
	_, err = NewClientFromConfig(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
