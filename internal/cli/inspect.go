package cli

import (
	"github.com/spf13/cobra"

	"nse-history/internal/app"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [path]",
	Short: "Summarise a dataset (defaults to the newest in export.dir)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var opts app.InspectOptions
		if len(args) == 1 {
			opts.Path = args[0]
		}
		return getApp().Inspect(opts)
	},
}
