package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/bluebird-ink/windi/internal/client"
	"github.com/bluebird-ink/windi/pkg/output"
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Save the service URL and token to the config file",
	Example: `  windi configure --service https://bluebird.ink --token $TOKEN`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cmd.Flags().Changed("service") && !cmd.Flags().Changed("token") {
			return errors.New("nothing to configure: pass --service and/or --token")
		}

		// Reject values the client would refuse before writing them out.
		if _, err := client.New(client.Config{URL: cfg.Service, Token: cfg.Token}); err != nil {
			return err
		}

		if err := cfg.Save(); err != nil {
			return err
		}
		output.Success("Configuration saved to %s", cfg.Path())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configureCmd)
}
