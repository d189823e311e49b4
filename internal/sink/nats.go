package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/bluebird-ink/windi/internal/cursor"
)

// HeaderSeq carries the record cursor on published messages.
const HeaderSeq = "Windi-Seq"

const flushTimeout = 10 * time.Second

// publisher is the subset of *nats.Conn used by NATS.
type publisher interface {
	PublishMsg(m *nats.Msg) error
	FlushWithContext(ctx context.Context) error
	Drain() error
}

// NATSConfig configures the NATS sink.
type NATSConfig struct {
	URL     string
	Subject string
	Name    string
	Token   string
	Timeout time.Duration
}

// NATS publishes every record to one subject. Messages carry Nats-Msg-Id so a
// JetStream stream bound to the subject de-duplicates re-delivered batches.
type NATS struct {
	conn    publisher
	subject string
}

// DialNATS connects to the server in cfg.
func DialNATS(cfg NATSConfig) (*NATS, error) {
	if cfg.Subject == "" {
		return nil, fmt.Errorf("nats subject is required")
	}
	if cfg.Name == "" {
		cfg.Name = "windi"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.Timeout(cfg.Timeout),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATS{conn: conn, subject: cfg.Subject}, nil
}

func newNATS(conn publisher, subject string) *NATS {
	return &NATS{conn: conn, subject: subject}
}

func (n *NATS) Write(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	seq := cursor.Encode(rec.Seq)
	msg := nats.NewMsg(n.subject)
	msg.Data = data
	msg.Header.Set(HeaderSeq, seq)
	msg.Header.Set(nats.MsgIdHdr, seq)

	if err := n.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", seq, err)
	}
	return nil
}

// Flush waits for the server to acknowledge everything published so far.
func (n *NATS) Flush(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flushTimeout)
		defer cancel()
	}
	return n.conn.FlushWithContext(ctx)
}

func (n *NATS) Close() error {
	return n.conn.Drain()
}
