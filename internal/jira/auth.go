package jira

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/daviddao/deskflow/internal/config"
)

// Auth modes.
const (
	AuthBasic  = "basic"
	AuthOAuth2 = "oauth2"
)

// basicAuthTransport adds an Atlassian account email and API token to every
// request.
type basicAuthTransport struct {
	email, token string
	base         http.RoundTripper
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.SetBasicAuth(t.email, t.token)
	return t.base.RoundTrip(r)
}

// NewHTTPClient returns an HTTP client that authenticates as configured.
// timeout bounds each request.
//
// basic uses the account email and API token. oauth2 uses a fixed access
// token, or a refresh token exchanged at the token URL when a client ID and
// secret are set.
func NewHTTPClient(ctx context.Context, auth config.AuthConfig, timeout time.Duration) (*http.Client, error) {
	switch auth.Mode {
	case "", AuthBasic:
		if auth.Email == "" || auth.APIToken == "" {
			return nil, fmt.Errorf("%w: basic auth needs an email and an API token", ErrInvalidInput)
		}
		return &http.Client{
			Timeout: timeout,
			Transport: &basicAuthTransport{
				email: auth.Email,
				token: auth.APIToken,
				base:  http.DefaultTransport,
			},
		}, nil

	case AuthOAuth2:
		ts, err := tokenSource(ctx, auth)
		if err != nil {
			return nil, err
		}
		client := oauth2.NewClient(ctx, ts)
		client.Timeout = timeout
		return client, nil

	default:
		return nil, fmt.Errorf("%w: unknown auth mode %q", ErrInvalidInput, auth.Mode)
	}
}

func tokenSource(ctx context.Context, auth config.AuthConfig) (oauth2.TokenSource, error) {
	if auth.RefreshToken != "" && auth.ClientID != "" {
		conf := &oauth2.Config{
			ClientID:     auth.ClientID,
			ClientSecret: auth.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  auth.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		}
		token := &oauth2.Token{
			AccessToken:  auth.AccessToken,
			RefreshToken: auth.RefreshToken,
			TokenType:    "Bearer",
		}
		return conf.TokenSource(ctx, token), nil
	}
	if auth.AccessToken != "" {
		return oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: auth.AccessToken,
			TokenType:   "Bearer",
		}), nil
	}
	return nil, fmt.Errorf("%w: oauth2 needs an access token or a refresh token with client credentials", ErrInvalidInput)
}
