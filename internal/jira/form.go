package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"
)

// FetchForm downloads the form definition attached to a request type. The
// decoded JSON keeps numbers as json.Number.
//
// Transport errors and statuses other than 200 and 201 are retried per the
// client's RetryPolicy; a *FetchError is returned once attempts run out. A
// success response that is not a JSON object fails at once with
// ErrMalformedResponse.
func (c *Client) FetchForm(ctx context.Context, cloudID, serviceDeskID, requestTypeID string) (map[string]any, error) {
	if cloudID == "" || serviceDeskID == "" || requestTypeID == "" {
		return nil, fmt.Errorf("%w: cloud ID, service desk ID and request type ID are required", ErrInvalidInput)
	}

	endpoint := fmt.Sprintf("%s/jira/forms/cloud/%s/servicedesk/%s/requesttype/%s/form",
		c.formsURL,
		url.PathEscape(cloudID),
		url.PathEscape(serviceDeskID),
		url.PathEscape(requestTypeID))

	var form map[string]any
	attempts, err := c.retry.Do(ctx, func(attempt int) error {
		c.logger.Debug("fetching form definition", zap.String("url", endpoint), zap.Int("attempt", attempt))

		f, err := c.fetchFormOnce(ctx, endpoint)
		if err != nil {
			if _, perm := err.(*permanentError); !perm {
				c.logger.Warn("form definition fetch failed",
					zap.Int("attempt", attempt),
					zap.Int("max_attempts", c.retry.attempts()),
					zap.Error(err))
			}
			return err
		}
		form = f
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrMalformedResponse) {
			return nil, err
		}
		return nil, &FetchError{URL: endpoint, Attempts: attempts, Err: err}
	}

	c.logger.Info("fetched form definition", zap.Int("attempts", attempts))
	return form, nil
}

func (c *Client) fetchFormOnce(ctx context.Context, endpoint string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request form definition: %w", err)
	}
	defer resp.Body.Close()

	body, err := readBody(resp)
	if err != nil {
		return nil, fmt.Errorf("read form definition: %w", err)
	}
	if !okStatus(resp.StatusCode) {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(body), 500)}
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var form map[string]any
	if err := dec.Decode(&form); err != nil {
		return nil, permanent(fmt.Errorf("%w: %v", ErrMalformedResponse, err))
	}
	if form == nil {
		return nil, permanent(fmt.Errorf("%w: form definition is null", ErrMalformedResponse))
	}
	return form, nil
}
