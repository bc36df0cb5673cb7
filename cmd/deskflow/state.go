package main

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/daviddao/deskflow/internal/display"
	"github.com/daviddao/deskflow/internal/tracking"
)

var stateLimit int

var stateCmd = &cobra.Command{
	Use:     "state",
	Aliases: []string{"st"},
	Short:   "Show the tracking state: watermark, tickets on file and flagged requests",
	Long: `Show what deskflow remembers between runs.

Reads the tracking file without contacting Jira or the database.

Examples:
  deskflow state                # Overview, first 20 entries per list
  deskflow state --limit 0      # Everything
  deskflow state --json         # The tracking document itself`,
	RunE: func(cmd *cobra.Command, args []string) error {
		st := tracking.NewFileStore(cfg.Tracking.File, logger.Named("tracking")).Load()

		if jsonOutput {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetEscapeHTML(false)
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		}
		display.State(cmd.OutOrStdout(), st, time.Now(), stateLimit)
		return nil
	},
}

func init() {
	stateCmd.Flags().IntVar(&stateLimit, "limit", 20, "Entries to list per section (0 = all)")
	rootCmd.AddCommand(stateCmd)
}
