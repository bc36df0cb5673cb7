// Package jira talks to Jira Forms and Jira Service Management: it fetches
// the live form definition of a request type and creates customer requests.
package jira

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/daviddao/deskflow/internal/config"
)

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 8 << 20

// Options configures a Client.
type Options struct {
	FormsBaseURL string // e.g. https://api.atlassian.com
	SiteURL      string // e.g. https://example.atlassian.net
	HTTPClient   *http.Client
	Retry        RetryPolicy
}

// Client is a Jira Forms and Service Management client.
type Client struct {
	http     *http.Client
	formsURL string
	siteURL  string
	retry    RetryPolicy
	logger   *zap.Logger
}

// NewClient returns a client. A nil HTTPClient means http.DefaultClient and
// a zero Retry means DefaultRetryPolicy.
func NewClient(opts Options, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	retry := opts.Retry
	if retry == (RetryPolicy{}) {
		retry = DefaultRetryPolicy()
	}
	return &Client{
		http:     hc,
		formsURL: strings.TrimRight(opts.FormsBaseURL, "/"),
		siteURL:  strings.TrimRight(opts.SiteURL, "/"),
		retry:    retry,
		logger:   logger,
	}
}

// NewClientFromConfig builds an authenticated client from the jira section
// of the config.
func NewClientFromConfig(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Client, error) {
	hc, err := NewHTTPClient(ctx, cfg.Jira.Auth, cfg.GetJiraTimeout())
	if err != nil {
		return nil, fmt.Errorf("jira auth: %w", err)
	}
	return NewClient(Options{
		FormsBaseURL: cfg.Jira.FormsBaseURL,
		SiteURL:      cfg.SiteURL(),
		HTTPClient:   hc,
		Retry:        RetryPolicyFromConfig(cfg),
	}, logger), nil
}

// readBody reads a capped response body.
func readBody(resp *http.Response) ([]byte, error) {
	return io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
}

func okStatus(code int) bool {
	return code == http.StatusOK || code == http.StatusCreated
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
