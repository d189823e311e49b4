// Package client implements the sync pull protocol against the remote log service.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/net/http/httpguts"

	"github.com/bluebird-ink/windi/internal/cursor"
	"github.com/bluebird-ink/windi/internal/events"
	"github.com/bluebird-ink/windi/internal/logging"
	"github.com/bluebird-ink/windi/internal/metrics"
)

const (
	// DefaultURL is used when Config.URL is empty.
	DefaultURL = "https://bluebird.ink"

	// PullPath is the sync pull endpoint relative to the service URL.
	PullPath = "/api/v1/sync/pull"

	// DefaultTimeout bounds a single HTTP attempt.
	DefaultTimeout = 30 * time.Second

	maxErrorBody = 64 << 10
)

// Version is reported in the User-Agent header.
var Version = "0.1.0"

// Config configures a Client.
type Config struct {
	// URL of the service; DefaultURL when empty.
	URL   string
	Token string
	// Timeout for one HTTP attempt; DefaultTimeout when zero.
	Timeout time.Duration
	Retry   Policy
	Logger  *logging.Logger
	// Transport is the base round tripper; http.DefaultTransport when nil.
	Transport http.RoundTripper
}

// Entry is one log entry of a pull batch. Payload is always present, decoded
// or not.
type Entry struct {
	Cursor  cursor.Cursor
	Payload events.Payload
}

// Client pulls batches from the sync endpoint. It holds no state between pulls
// and is safe for concurrent use.
type Client struct {
	pullURL string
	http    *http.Client
	policy  Policy
	logger  *logging.Logger

	// onRetry, when set, observes every scheduled retry.
	onRetry func(attempt int, err error, delay time.Duration)
}

type pullRequest struct {
	FromSeq string `json:"fromSeq"`
}

type pullResponse struct {
	Data *[]rawEntry `json:"data"`
}

type rawEntry struct {
	Seq   *string `json:"seq"`
	Value *string `json:"value"`
}

// New creates a Client. It fails with ErrInvalidCredential when the token
// cannot form a valid Authorization header.
func New(cfg Config) (*Client, error) {
	authorization := "Bearer " + cfg.Token
	if !httpguts.ValidHeaderFieldValue(authorization) {
		return nil, fmt.Errorf("%w: token contains characters not allowed in an HTTP header", ErrInvalidCredential)
	}

	base := strings.TrimRight(cfg.URL, "/")
	if base == "" {
		base = DefaultURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid service url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid service url %q: scheme must be http or https", base)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	return &Client{
		pullURL: base + PullPath,
		http: &http.Client{
			Timeout:   timeout,
			Transport: &bearerTransport{authorization: authorization, base: transport},
		},
		policy: cfg.Retry.withDefaults(),
		logger: logger,
	}, nil
}

// URL returns the full pull endpoint URL.
func (c *Client) URL() string { return c.pullURL }

// Pull fetches the entries at or after from. An empty batch means the caller
// is caught up. Transient failures are retried with exponential backoff; the
// only errors returned are a *RejectedError, a *RetriesExhaustedError, a
// malformed entry cursor, or the context's error.
func (c *Client) Pull(ctx context.Context, from cursor.Cursor) ([]Entry, error) {
	start := time.Now()
	defer func() {
		metrics.PullDuration.Observe(time.Since(start).Seconds())
	}()

	body, err := json.Marshal(pullRequest{FromSeq: cursor.Encode(from)})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var (
		rsp     []rawEntry
		attempt int
		reqID   string
	)
	operation := func() error {
		attempt++
		reqID = uuid.NewString()
		var opErr error
		rsp, opErr = c.send(logging.ContextWithRequestID(ctx, reqID), body)
		return opErr
	}
	notify := func(err error, delay time.Duration) {
		metrics.PullRetries.Inc()
		c.logger.WarnContext(logging.ContextWithRequestID(ctx, reqID), "retryable pull error",
			logging.Cursor(cursor.Encode(from)),
			logging.Attempt(attempt),
			logging.Delay(delay),
			logging.Error(err),
		)
		if c.onRetry != nil {
			c.onRetry(attempt, err, delay)
		}
	}

	if err := backoff.RetryNotify(operation, c.policy.backOff(ctx), notify); err != nil {
		return nil, c.terminal(ctx, err, attempt)
	}

	return c.decode(ctx, rsp)
}

// send performs one attempt, tagged with the request ID carried by ctx.
// Transient failures are returned as *retryableError, everything else is permanent.
func (c *Client) send(ctx context.Context, body []byte) ([]rawEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, backoff.Permanent(err)
	}

	reqID := logging.RequestIDFromContext(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.pullURL, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "windi/"+Version)
	req.Header.Set("X-Request-ID", reqID)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, backoff.Permanent(ctxErr)
		}
		metrics.PullRequests.WithLabelValues(metrics.OutcomeTransient).Inc()
		return nil, &retryableError{err: fmt.Errorf("send request: %w", err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var parsed pullResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			metrics.PullRequests.WithLabelValues(metrics.OutcomeTransient).Inc()
			return nil, &retryableError{err: fmt.Errorf("decode response: %w", err)}
		}
		if err := parsed.validate(); err != nil {
			metrics.PullRequests.WithLabelValues(metrics.OutcomeTransient).Inc()
			return nil, &retryableError{err: fmt.Errorf("decode response: %w", err)}
		}
		metrics.PullRequests.WithLabelValues(metrics.OutcomeSuccess).Inc()
		return *parsed.Data, nil

	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		text := readBody(resp.Body)
		metrics.PullRequests.WithLabelValues(metrics.OutcomeRejected).Inc()
		c.logger.ErrorContext(ctx, "client error, not retrying",
			logging.Status(resp.StatusCode),
			slog.String("body", text),
		)
		return nil, backoff.Permanent(&RejectedError{StatusCode: resp.StatusCode, Body: text})

	default:
		text := readBody(resp.Body)
		metrics.PullRequests.WithLabelValues(metrics.OutcomeTransient).Inc()
		return nil, &retryableError{err: fmt.Errorf("server error: %d %s", resp.StatusCode, text)}
	}
}

// terminal maps the error left by the retry loop onto the public taxonomy.
func (c *Client) terminal(ctx context.Context, err error, attempts int) error {
	var rejected *RejectedError
	switch {
	case errors.As(err, &rejected):
		return rejected
	case ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		metrics.PullRequests.WithLabelValues(metrics.OutcomeCanceled).Inc()
		return fmt.Errorf("pull canceled after %d attempts: %w", attempts, err)
	case isRetryable(err):
		metrics.PullRequests.WithLabelValues(metrics.OutcomeExhausted).Inc()
		c.logger.ErrorContext(ctx, "giving up on pull", logging.Attempt(attempts), logging.Error(err))
		return &RetriesExhaustedError{Attempts: attempts, Err: errors.Unwrap(err)}
	default:
		return err
	}
}

func (c *Client) decode(ctx context.Context, raw []rawEntry) ([]Entry, error) {
	out := make([]Entry, 0, len(raw))
	degraded := 0
	for i, r := range raw {
		seq, err := cursor.Decode(*r.Seq)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		payload := events.Decode(*r.Value)
		if !payload.OK() {
			degraded++
			c.logger.DebugContext(ctx, "keeping undecoded log value",
				logging.Cursor(cursor.Encode(seq)),
				logging.Error(payload.Err),
			)
		}
		out = append(out, Entry{Cursor: seq, Payload: payload})
	}
	metrics.ObserveEntries(len(out)-degraded, degraded)
	return out, nil
}

func (r *pullResponse) validate() error {
	if r.Data == nil {
		return errors.New("missing field data")
	}
	for i, e := range *r.Data {
		if e.Seq == nil {
			return fmt.Errorf("entry %d: missing field seq", i)
		}
		if e.Value == nil {
			return fmt.Errorf("entry %d: missing field value", i)
		}
	}
	return nil
}

func readBody(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

// bearerTransport attaches the Authorization header to every request.
type bearerTransport struct {
	authorization string
	base          http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", t.authorization)
	return t.base.RoundTrip(req)
}
