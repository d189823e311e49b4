package cmd

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/bluebird-ink/windi/internal/client"
	"github.com/bluebird-ink/windi/internal/config"
	"github.com/bluebird-ink/windi/pkg/output"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Bearer token utilities",
}

var tokenInspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show the subject and expiry of the configured token",
	Long: `Decode the configured bearer token locally, without verifying its
signature. Opaque (non-JWT) tokens carry nothing to inspect.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Token == "" {
			return config.ErrMissingToken
		}

		info, err := client.InspectToken(cfg.Token)
		if errors.Is(err, client.ErrNotJWT) {
			output.Info("Token is opaque, nothing to inspect")
			return nil
		}
		if err != nil {
			return err
		}

		fields := map[string]string{
			"subject": info.Subject,
			"issued":  formatTime(info.IssuedAt),
			"expires": formatTime(info.ExpiresAt),
			"status":  "valid",
		}
		if info.Expired(time.Now()) {
			fields["status"] = "expired"
		}
		output.Fields(cmd.OutOrStdout(), fields)
		return nil
	},
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(tokenInspectCmd)
}
