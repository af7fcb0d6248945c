package cli

import (
	"github.com/spf13/cobra"

	"nse-history/internal/app"
)

var serveOpts app.DownloadOptions

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run downloads on the configured cron schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Serve(cmd.Context(), serveOpts)
	},
}

func init() {
	addDownloadFlags(serveCmd, &serveOpts)
}
