package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"nse-history/internal/app"
)

var downloadOpts app.DownloadOptions

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download price history for every symbol and write the dataset",
	RunE: func(cmd *cobra.Command, args []string) error {
		if downloadOpts.Days < 0 {
			return fmt.Errorf("--days must not be negative")
		}
		if downloadOpts.Workers < 0 {
			return fmt.Errorf("--workers must not be negative")
		}
		return getApp().Download(cmd.Context(), downloadOpts)
	},
}

func init() {
	addDownloadFlags(downloadCmd, &downloadOpts)
}

func addDownloadFlags(cmd *cobra.Command, opts *app.DownloadOptions) {
	cmd.Flags().StringVar(&opts.Symbols, "symbols", "", "Comma separated symbols (overrides the symbol file)")
	cmd.Flags().StringVar(&opts.File, "file", "", "CSV file with a symbol column (defaults to config)")
	cmd.Flags().IntVar(&opts.Days, "days", 0, "Trailing days of history (defaults to config)")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "Concurrent downloads (defaults to config)")
	cmd.Flags().StringVar(&opts.OutDir, "out-dir", "", "Directory for the dataset (defaults to config)")
}
