package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bluebird-ink/windi/internal/checkpoint"
	"github.com/bluebird-ink/windi/internal/client"
	"github.com/bluebird-ink/windi/internal/config"
	"github.com/bluebird-ink/windi/internal/cursor"
	"github.com/bluebird-ink/windi/internal/logging"
	"github.com/bluebird-ink/windi/internal/metrics"
	"github.com/bluebird-ink/windi/internal/sink"
	"github.com/bluebird-ink/windi/internal/syncer"
	"github.com/bluebird-ink/windi/pkg/output"
)

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Pull log entries and print them as JSON lines",
	Long: `Pull entries from the log until caught up, writing one JSON object per
entry to stdout. Entries whose value cannot be decoded are kept as raw
strings.

The starting cursor is --from when given, otherwise the stored checkpoint
(with --checkpoint), otherwise the start of the log.`,
	Example: `  windi pull --token $TOKEN
  windi pull --from 2a --out log.jsonl.zst
  windi pull --checkpoint ~/.windi/cursors.db --follow --nats-url nats://localhost:4222 --nats-subject windi.log`,
	Args: cobra.NoArgs,
	RunE: runPull,
}

func init() {
	rootCmd.AddCommand(pullCmd)

	flags := pullCmd.Flags()
	flags.StringP("from", "f", "", "hex cursor to start from (default: checkpoint, else 0)")
	flags.Bool("follow", false, "keep polling after catching up")
	flags.Duration("poll-interval", syncer.DefaultPollInterval, "wait between empty pulls with --follow")
	flags.String("checkpoint", "", "SQLite file that stores the next cursor")
	flags.String("checkpoint-name", "default", "checkpoint key within the store")
	flags.String("out", "", "also append records to this file (zstd compressed with a .zst suffix)")
	flags.String("nats-url", "", "also publish records to this NATS server")
	flags.String("nats-subject", "", "NATS subject for published records")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	flags.Duration("timeout", client.DefaultTimeout, "timeout for a single HTTP request")
	flags.Uint64("max-retries", 0, "cap retries per pull (0: bounded by elapsed time only)")
}

func runPull(cmd *cobra.Command, _ []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var explicit *cursor.Cursor
	if cmd.Flags().Changed("from") {
		from, _ := cmd.Flags().GetString("from")
		c, err := cursor.Decode(from)
		if err != nil {
			return fmt.Errorf("invalid --from: %w", err)
		}
		explicit = &c
	}

	warnIfExpired(cfg.Token)

	c, err := client.New(client.Config{
		URL:     cfg.Service,
		Token:   cfg.Token,
		Timeout: cfg.Timeout,
		Retry:   retryPolicy(cfg.Retry),
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	out, err := openSinks(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	closeOut := sync.OnceValue(out.Close)
	defer closeOut()

	runner := &syncer.Runner{
		Puller:       c,
		Sink:         out,
		Name:         cfg.Pull.CheckpointName,
		PollInterval: cfg.Pull.PollInterval,
		Logger:       logger,
	}
	runner.Follow, _ = cmd.Flags().GetBool("follow")

	if cfg.Pull.Checkpoint != "" {
		store, err := checkpoint.OpenSQLite(ctx, cfg.Pull.Checkpoint)
		if err != nil {
			return err
		}
		defer store.Close()
		runner.Checkpoint = store
	}

	if addr := cfg.Pull.MetricsAddr; addr != "" {
		go func() {
			if err := metrics.Serve(ctx, addr); err != nil {
				logger.ErrorContext(ctx, "metrics server failed", logging.Error(err))
			}
		}()
	}

	start, err := runner.Start(ctx, explicit)
	if err != nil {
		return fmt.Errorf("failed to resolve start cursor: %w", err)
	}

	logger.DebugContext(ctx, "starting pull", logging.URL(c.URL()), logging.Cursor(cursor.Encode(start)))

	res, err := runner.Run(ctx, start)
	if err != nil {
		output.Info("Resume with --from %s", cursor.Encode(res.Next))
		return err
	}

	// Closing finishes compressed frames, so a failure here means lost output.
	if err := closeOut(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}

	output.Success("Pulled %d entries in %d batches (%d undecoded), next cursor %s",
		res.Entries, res.Batches, res.Degraded, cursor.Encode(res.Next))
	return nil
}

func retryPolicy(r config.RetryConfig) client.Policy {
	return client.Policy{
		InitialInterval:     r.InitialInterval,
		Multiplier:          r.Multiplier,
		RandomizationFactor: r.RandomizationFactor,
		MaxInterval:         r.MaxInterval,
		MaxElapsedTime:      r.MaxElapsedTime,
		MaxRetries:          r.MaxRetries,
	}
}

// openFileSink opens the --out sink.
var openFileSink = func(path string) (sink.Sink, error) {
	return sink.OpenFile(path)
}

// openSinks always writes to stdout, plus the file and NATS sinks when configured.
func openSinks(stdout io.Writer) (sink.Multi, error) {
	sinks := sink.Multi{sink.NewJSONLines(stdout)}

	if cfg.Pull.Output != "" {
		f, err := openFileSink(cfg.Pull.Output)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, f)
	}

	if cfg.NATS.URL != "" {
		n, err := sink.DialNATS(sink.NATSConfig{
			URL:     cfg.NATS.URL,
			Subject: cfg.NATS.Subject,
			Token:   cfg.NATS.Token,
		})
		if err != nil {
			_ = sinks.Close()
			return nil, err
		}
		sinks = append(sinks, n)
	}

	return sinks, nil
}

func warnIfExpired(token string) {
	info, err := client.InspectToken(token)
	if err != nil {
		logger.Debug("skipping token expiry check", logging.Error(err))
		return
	}
	if info.Expired(time.Now()) {
		output.Warn("Token expired at %s, the service will likely reject it", info.ExpiresAt.Format(time.RFC3339))
	}
}
