// Package syncer drives the sync client: it pulls batch after batch, advances
// the cursor past each one, hands every entry to a sink and, optionally,
// checkpoints the next cursor.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bluebird-ink/windi/internal/checkpoint"
	"github.com/bluebird-ink/windi/internal/client"
	"github.com/bluebird-ink/windi/internal/cursor"
	"github.com/bluebird-ink/windi/internal/logging"
	"github.com/bluebird-ink/windi/internal/metrics"
	"github.com/bluebird-ink/windi/internal/sink"
)

// DefaultPollInterval is the wait between empty pulls in follow mode.
const DefaultPollInterval = 5 * time.Second

// ErrCursorOverflow is returned when the log hands out the largest possible cursor.
var ErrCursorOverflow = errors.New("cursor overflow")

// Puller is satisfied by *client.Client.
type Puller interface {
	Pull(ctx context.Context, from cursor.Cursor) ([]client.Entry, error)
}

// Runner owns cursor advancement for one named consumer.
type Runner struct {
	Puller Puller
	Sink   sink.Sink
	// Checkpoint is optional; when nil the caller keeps track of Result.Next.
	Checkpoint checkpoint.Store
	// Name keys the checkpoint.
	Name string
	// Follow keeps polling after the log is caught up instead of returning.
	Follow       bool
	PollInterval time.Duration
	Logger       *logging.Logger
}

// Result summarizes a run.
type Result struct {
	// Next is the cursor the next pull should start from.
	Next     cursor.Cursor
	Batches  int
	Entries  int
	Degraded int
}

// Start resolves the starting cursor: an explicit cursor wins, then the stored
// checkpoint, then the start of the log.
func (r *Runner) Start(ctx context.Context, explicit *cursor.Cursor) (cursor.Cursor, error) {
	if explicit != nil {
		return *explicit, nil
	}
	if r.Checkpoint == nil {
		return cursor.Zero, nil
	}
	c, ok, err := r.Checkpoint.Load(ctx, r.name())
	if err != nil {
		return cursor.Zero, err
	}
	if ok {
		r.logger().InfoContext(ctx, "resuming from checkpoint", logging.Cursor(cursor.Encode(c)))
	}
	return c, nil
}

// Run pulls from the given cursor until an empty batch is returned (or, in
// follow mode, until ctx is done). The returned Result is valid even when an
// error is returned: Next is the first cursor not yet delivered to the sink.
func (r *Runner) Run(ctx context.Context, from cursor.Cursor) (Result, error) {
	res := Result{Next: from}
	logger := r.logger()

	for {
		metrics.SetCursor(res.Next)

		batch, err := r.Puller.Pull(ctx, res.Next)
		if err != nil {
			if r.Follow && ctx.Err() != nil {
				return res, nil
			}
			return res, fmt.Errorf("pull from %s: %w", res.Next, err)
		}

		if len(batch) == 0 {
			if !r.Follow {
				logger.DebugContext(ctx, "caught up", logging.Cursor(cursor.Encode(res.Next)))
				return res, nil
			}
			if !sleep(ctx, r.pollInterval()) {
				return res, nil
			}
			continue
		}

		next, ok := batch[len(batch)-1].Cursor.Next()
		if !ok {
			return res, ErrCursorOverflow
		}

		degraded := 0
		for _, e := range batch {
			if !e.Payload.OK() {
				degraded++
			}
			if err := r.Sink.Write(ctx, sink.FromEntry(e)); err != nil {
				return res, fmt.Errorf("emit %s: %w", e.Cursor, err)
			}
		}
		if err := r.Sink.Flush(ctx); err != nil {
			return res, fmt.Errorf("flush sink: %w", err)
		}

		res.Next = next
		res.Batches++
		res.Entries += len(batch)
		res.Degraded += degraded

		if r.Checkpoint != nil {
			if err := r.Checkpoint.Save(ctx, r.name(), next); err != nil {
				return res, err
			}
		}

		logger.InfoContext(ctx, "pulled batch",
			logging.Entries(len(batch)),
			logging.Degraded(degraded),
			logging.Cursor(cursor.Encode(next)),
		)
	}
}

func (r *Runner) name() string {
	if r.Name == "" {
		return "default"
	}
	return r.Name
}

func (r *Runner) pollInterval() time.Duration {
	if r.PollInterval <= 0 {
		return DefaultPollInterval
	}
	return r.PollInterval
}

func (r *Runner) logger() *logging.Logger {
	if r.Logger == nil {
		return logging.Default()
	}
	return r.Logger
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
