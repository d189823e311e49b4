package logging

import (
	"log/slog"
	"time"
)

// Common field names so log lines stay greppable.
const (
	FieldRequestID = "request_id"
	FieldURL       = "url"
	FieldCursor    = "cursor"
	FieldAttempt   = "attempt"
	FieldStatus    = "status"
	FieldDelay     = "delay"
	FieldEntries   = "entries"
	FieldDegraded  = "degraded"
	FieldError     = "error"
)

// URL returns a slog attribute for the endpoint URL.
func URL(u string) slog.Attr {
	return slog.String(FieldURL, u)
}

// Cursor returns a slog attribute for a wire-form cursor.
func Cursor(hex string) slog.Attr {
	return slog.String(FieldCursor, hex)
}

// Attempt returns a slog attribute for a 1-based attempt number.
func Attempt(n int) slog.Attr {
	return slog.Int(FieldAttempt, n)
}

// Status returns a slog attribute for an HTTP status code.
func Status(code int) slog.Attr {
	return slog.Int(FieldStatus, code)
}

// Delay returns a slog attribute for a backoff delay.
func Delay(d time.Duration) slog.Attr {
	return slog.Duration(FieldDelay, d)
}

func Entries(n int) slog.Attr {
	return slog.Int(FieldEntries, n)
}

func Degraded(n int) slog.Attr {
	return slog.Int(FieldDegraded, n)
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	return slog.String(FieldError, err.Error())
}
