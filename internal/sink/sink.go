// Package sink delivers pulled log records to their destination.
package sink

import (
	"context"

	"github.com/bluebird-ink/windi/internal/client"
	"github.com/bluebird-ink/windi/internal/cursor"
	"github.com/bluebird-ink/windi/internal/events"
)

// Record is the output shape of one log entry:
// {"seq": "<32 hex>", "value": <event or raw string>}.
type Record struct {
	Seq   cursor.Cursor  `json:"seq"`
	Value events.Payload `json:"value"`
}

// FromEntry converts a pulled entry into its output record.
func FromEntry(e client.Entry) Record {
	return Record{Seq: e.Cursor, Value: e.Payload}
}

// Sink receives records in cursor order. Flush is called after every batch,
// before the pull loop checkpoints past it.
type Sink interface {
	Write(ctx context.Context, rec Record) error
	Flush(ctx context.Context) error
	Close() error
}

// Multi fans every record out to all sinks in order.
type Multi []Sink

func (m Multi) Write(ctx context.Context, rec Record) error {
	for _, s := range m {
		if err := s.Write(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func (m Multi) Flush(ctx context.Context) error {
	for _, s := range m {
		if err := s.Flush(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (m Multi) Close() error {
	var first error
	for _, s := range m {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
