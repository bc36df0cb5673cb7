package jira

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned before any network call when a required
	// identifier is empty.
	ErrInvalidInput = errors.New("invalid input")

	// ErrMalformedResponse means Jira answered with a success status but a
	// body that is not a JSON object. It is never retried.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrFetchExhausted means every attempt to fetch the form definition failed.
	ErrFetchExhausted = errors.New("form definition fetch exhausted")
)

// StatusError is a response with a status code other than 200 or 201.
type StatusError struct {
	StatusCode int
	Body       string // truncated
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("jira returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("jira returned status %d: %s", e.StatusCode, e.Body)
}

// FetchError is returned when the form definition could not be fetched
// within the retry budget. It matches ErrFetchExhausted and wraps the error
// of the last attempt.
type FetchError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch form definition from %s failed after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() []error {
	return []error{ErrFetchExhausted, e.Err}
}
