package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluebird-ink/windi/internal/checkpoint"
	"github.com/bluebird-ink/windi/internal/client"
	"github.com/bluebird-ink/windi/internal/cursor"
	"github.com/bluebird-ink/windi/internal/events"
	"github.com/bluebird-ink/windi/internal/logging"
	"github.com/bluebird-ink/windi/internal/sink"
)

// scriptedPuller answers pulls from a fixed script and records the cursors it was asked for.
type scriptedPuller struct {
	mu      sync.Mutex
	batches [][]client.Entry
	errs    []error
	calls   []cursor.Cursor
}

func (p *scriptedPuller) Pull(ctx context.Context, from cursor.Cursor) ([]client.Entry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	i := len(p.calls)
	p.calls = append(p.calls, from)
	if i < len(p.errs) && p.errs[i] != nil {
		return nil, p.errs[i]
	}
	if i < len(p.batches) {
		return p.batches[i], nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, nil
}

type memorySink struct {
	records  []sink.Record
	flushes  int
	writeErr error
}

func (m *memorySink) Write(_ context.Context, rec sink.Record) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	m.records = append(m.records, rec)
	return nil
}

func (m *memorySink) Flush(context.Context) error { m.flushes++; return nil }
func (m *memorySink) Close() error                { return nil }

func entry(seq uint64, value string) client.Entry {
	return client.Entry{Cursor: cursor.FromUint64(seq), Payload: events.Decode(value)}
}

const goodValue = `{"ts":1,"data":{"type":"user_sync_create_token","user":"u","tokenTs":1}}`

func TestRun_AdvancesCursorAndStopsWhenCaughtUp(t *testing.T) {
	puller := &scriptedPuller{batches: [][]client.Entry{
		{entry(1, goodValue), entry(2, "oops")},
		{entry(7, goodValue)},
	}}
	out := &memorySink{}
	r := &Runner{Puller: puller, Sink: out, Logger: logging.Discard()}

	res, err := r.Run(context.Background(), cursor.Zero)

	require.NoError(t, err)
	assert.Equal(t, []cursor.Cursor{cursor.Zero, cursor.FromUint64(3), cursor.FromUint64(8)}, puller.calls)
	assert.Equal(t, Result{Next: cursor.FromUint64(8), Batches: 2, Entries: 3, Degraded: 1}, res)
	require.Len(t, out.records, 3)
	assert.Equal(t, "oops", out.records[1].Value.Raw)
	assert.Equal(t, 2, out.flushes)
}

func TestRun_EmptyBatchEmitsNothing(t *testing.T) {
	puller := &scriptedPuller{}
	out := &memorySink{}
	r := &Runner{Puller: puller, Sink: out, Logger: logging.Discard()}

	res, err := r.Run(context.Background(), cursor.FromUint64(5))

	require.NoError(t, err)
	assert.Equal(t, cursor.FromUint64(5), res.Next)
	assert.Zero(t, res.Batches)
	assert.Empty(t, out.records)
	assert.Len(t, puller.calls, 1)
}

func TestRun_PullErrorKeepsProgress(t *testing.T) {
	rejected := &client.RejectedError{StatusCode: 403, Body: "token revoked"}
	puller := &scriptedPuller{
		batches: [][]client.Entry{{entry(1, goodValue)}},
		errs:    []error{nil, rejected},
	}
	r := &Runner{Puller: puller, Sink: &memorySink{}, Logger: logging.Discard()}

	res, err := r.Run(context.Background(), cursor.Zero)

	require.Error(t, err)
	var got *client.RejectedError
	assert.ErrorAs(t, err, &got)
	assert.Equal(t, cursor.FromUint64(2), res.Next)
	assert.Equal(t, 1, res.Entries)
}

func TestRun_SinkErrorDoesNotAdvance(t *testing.T) {
	boom := errors.New("disk full")
	puller := &scriptedPuller{batches: [][]client.Entry{{entry(1, goodValue)}}}
	r := &Runner{Puller: puller, Sink: &memorySink{writeErr: boom}, Logger: logging.Discard()}

	res, err := r.Run(context.Background(), cursor.Zero)

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, cursor.Zero, res.Next)
}

func TestRun_CursorOverflow(t *testing.T) {
	puller := &scriptedPuller{batches: [][]client.Entry{{{Cursor: cursor.Max(), Payload: events.Decode(goodValue)}}}}
	r := &Runner{Puller: puller, Sink: &memorySink{}, Logger: logging.Discard()}

	_, err := r.Run(context.Background(), cursor.Zero)
	assert.ErrorIs(t, err, ErrCursorOverflow)
}

func TestRun_FollowStopsOnCancel(t *testing.T) {
	puller := &scriptedPuller{batches: [][]client.Entry{{entry(1, goodValue)}}}
	out := &memorySink{}
	r := &Runner{
		Puller:       puller,
		Sink:         out,
		Follow:       true,
		PollInterval: 10 * time.Millisecond,
		Logger:       logging.Discard(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()

	res, err := r.Run(ctx, cursor.Zero)

	require.NoError(t, err)
	assert.Equal(t, cursor.FromUint64(2), res.Next)
	assert.Len(t, out.records, 1)

	puller.mu.Lock()
	defer puller.mu.Unlock()
	assert.Greater(t, len(puller.calls), 2, "follow mode keeps polling")
	for _, c := range puller.calls[1:] {
		assert.Equal(t, cursor.FromUint64(2), c)
	}
}

func TestCheckpoint_SaveAndResume(t *testing.T) {
	ctx := context.Background()
	store, err := checkpoint.OpenSQLite(ctx, filepath.Join(t.TempDir(), "cp.db"))
	require.NoError(t, err)
	defer store.Close()

	puller := &scriptedPuller{batches: [][]client.Entry{{entry(1, goodValue), entry(4, goodValue)}}}
	r := &Runner{Puller: puller, Sink: &memorySink{}, Checkpoint: store, Name: "notes", Logger: logging.Discard()}

	start, err := r.Start(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, cursor.Zero, start)

	_, err = r.Run(ctx, start)
	require.NoError(t, err)

	saved, ok, err := store.Load(ctx, "notes")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, cursor.FromUint64(5), saved)

	resumed, err := r.Start(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, cursor.FromUint64(5), resumed)

	explicit := cursor.FromUint64(1)
	overridden, err := r.Start(ctx, &explicit)
	require.NoError(t, err)
	assert.Equal(t, explicit, overridden)
}

func TestStart_NoCheckpoint(t *testing.T) {
	r := &Runner{}
	c, err := r.Start(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, cursor.Zero, c)
}

// TestRun_EndToEnd drives a real client against a fake service: one entry at
// cursor 1, then nothing from cursor 2.
func TestRun_EndToEnd(t *testing.T) {
	var (
		mu        sync.Mutex
		requested []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			FromSeq string `json:"fromSeq"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		mu.Lock()
		requested = append(requested, req.FromSeq)
		mu.Unlock()

		if req.FromSeq == "00000000000000000000000000000000" {
			w.Write([]byte(`{"data":[{"seq":"00000000000000000000000000000001","value":"{\"ts\":1,\"data\":{\"type\":\"create_ingress\",\"user\":\"u\",\"ingress\":\"i\",\"sub\":\"s\"}}"}]}`))
			return
		}
		w.Write([]byte(`{"data":[]}`))
	}))
	defer server.Close()

	c, err := client.New(client.Config{URL: server.URL, Token: "t", Logger: logging.Discard()})
	require.NoError(t, err)

	var buf bytes.Buffer
	out := sink.NewJSONLines(&buf)
	r := &Runner{Puller: c, Sink: out, Logger: logging.Discard()}

	res, err := r.Run(context.Background(), cursor.Zero)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"00000000000000000000000000000000",
		"00000000000000000000000000000002",
	}, requested)
	assert.Equal(t, cursor.FromUint64(2), res.Next)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	assert.JSONEq(t,
		`{"seq":"00000000000000000000000000000001","value":{"ts":1,"data":{"type":"create_ingress","user":"u","ingress":"i","sub":"s"}}}`,
		lines[0])
}
