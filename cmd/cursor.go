package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bluebird-ink/windi/internal/cursor"
	"github.com/bluebird-ink/windi/pkg/output"
)

var cursorCmd = &cobra.Command{
	Use:   "cursor",
	Short: "Work with sync cursors",
	Long:  "Normalize hex cursors and compute the cursor that follows an entry",
}

var cursorDecodeCmd = &cobra.Command{
	Use:   "decode <hex>",
	Short: "Print the canonical and decimal form of a cursor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := cursor.Decode(args[0])
		if err != nil {
			return err
		}

		output.Fields(cmd.OutOrStdout(), map[string]string{
			"hex":     cursor.Encode(c),
			"decimal": c.BigInt().String(),
		})
		return nil
	},
}

var cursorNextCmd = &cobra.Command{
	Use:   "next <hex>",
	Short: "Print the cursor to pull from after the entry at <hex>",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := cursor.Decode(args[0])
		if err != nil {
			return err
		}

		next, ok := c.Next()
		if !ok {
			return errors.New("cursor is already the largest possible value")
		}
		fmt.Fprintln(cmd.OutOrStdout(), cursor.Encode(next))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cursorCmd)
	cursorCmd.AddCommand(cursorDecodeCmd)
	cursorCmd.AddCommand(cursorNextCmd)
}
