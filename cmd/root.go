package cmd

import (
	"github.com/spf13/cobra"

	"github.com/bluebird-ink/windi/internal/client"
	"github.com/bluebird-ink/windi/internal/config"
	"github.com/bluebird-ink/windi/internal/logging"
	"github.com/bluebird-ink/windi/pkg/output"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  *logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "windi",
	Short: "Sync client for the windi append-only log",
	Long: `windi pulls entries from a windi log service and writes them out as
JSON lines, one {"seq","value"} object per entry.

Pull from the start of the log, from an explicit cursor, or resume from a
local checkpoint. Logs go to stderr; stdout carries only records.`,
	Version:           client.Version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initConfig,
}

func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		output.Error("%v", err)
		return err
	}
	return nil
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: $WINDI_CONFIG_DIR/config.yaml or $HOME/.windi/config.yaml)")
	flags.StringP("service", "s", "", "log service URL (env WINDI_SERVICE, default "+client.DefaultURL+")")
	flags.String("token", "", "bearer token (env WINDI_TOKEN)")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.String("log-format", "text", "log format: text, json")
}

func initConfig(cmd *cobra.Command, _ []string) error {
	var err error
	cfg, err = config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger = logging.New(cmd.ErrOrStderr(), logging.ParseLevel(cfg.Log.Level), cfg.Log.Format)
	logging.SetDefault(logger)
	return nil
}
