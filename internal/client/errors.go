package client

import (
	"errors"
	"fmt"
)

// ErrInvalidCredential is returned by New when the token cannot be sent as an
// Authorization header value.
var ErrInvalidCredential = errors.New("invalid credential")

// RejectedError is returned when the service answers with a 4xx status. It is
// never retried.
type RejectedError struct {
	StatusCode int
	Body       string
}

func (e *RejectedError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("pull rejected by service: status %d", e.StatusCode)
	}
	return fmt.Sprintf("pull rejected by service: status %d: %s", e.StatusCode, e.Body)
}

// RetriesExhaustedError is returned once the retry budget is spent on transient
// failures. The service should be treated as temporarily unavailable.
type RetriesExhaustedError struct {
	Attempts int
	Err      error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("unable to pull logs from service after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetriesExhaustedError) Unwrap() error {
	return e.Err
}

// retryableError marks a failure as transient.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}
