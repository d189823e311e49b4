// Package metrics exposes Prometheus instrumentation for the sync client.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bluebird-ink/windi/internal/cursor"
)

// Pull outcomes recorded on PullRequests.
const (
	OutcomeSuccess   = "success"
	OutcomeRejected  = "rejected"
	OutcomeTransient = "transient"
	OutcomeExhausted = "exhausted"
	OutcomeCanceled  = "canceled"
)

var (
	// PullRequests counts HTTP attempts and terminal outcomes of the pull endpoint.
	PullRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "windi_pull_requests_total",
			Help: "Total number of sync pull attempts by outcome",
		},
		[]string{"outcome"},
	)

	PullRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "windi_pull_retries_total",
			Help: "Total number of sync pull retries scheduled after a transient failure",
		},
	)

	PullEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "windi_pull_entries_total",
			Help: "Total number of log entries received, by decode result",
		},
		[]string{"decoded"},
	)

	PullDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "windi_pull_duration_seconds",
			Help:    "Duration of a sync pull including retries",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Cursor holds the next cursor the pull loop will request as four 32-bit
	// words, so every sample is exact in a float64. Set it with SetCursor.
	Cursor = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "windi_sync_cursor",
			Help: "Next cursor to be pulled, as 32-bit words; word 0 is least significant, value = sum(word_i << 32*i)",
		},
		[]string{"word"},
	)
)

var cursorWords = [4]string{"0", "1", "2", "3"}

// SetCursor publishes c on the Cursor gauge.
func SetCursor(c cursor.Cursor) {
	hi, lo := c.Parts()
	halves := [2]uint64{lo, hi}
	for i, word := range cursorWords {
		v := halves[i/2] >> (32 * (i % 2)) & 0xffffffff
		Cursor.WithLabelValues(word).Set(float64(v))
	}
}

// ObserveEntries records the decode result of one batch.
func ObserveEntries(decoded, degraded int) {
	PullEntries.WithLabelValues("true").Add(float64(decoded))
	PullEntries.WithLabelValues("false").Add(float64(degraded))
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
