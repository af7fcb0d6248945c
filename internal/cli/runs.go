package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"nse-history/internal/app"
)

var (
	runsLimit int
	runsPrune time.Duration
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Display recent download runs from the ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		if runsLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}
		return getApp().Runs(cmd.Context(), app.RunsOptions{Limit: runsLimit, PruneOlderThan: runsPrune})
	},
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "Number of runs to display")
	runsCmd.Flags().DurationVar(&runsPrune, "prune-older-than", 0, "Delete ledger rows older than this before listing (e.g. 2160h)")
}
