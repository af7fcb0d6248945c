package cli

import (
	"github.com/spf13/cobra"

	"nse-history/internal/app"
)

var plotOpts app.PlotOptions

var plotCmd = &cobra.Command{
	Use:   "plot",
	Short: "Render one symbol's closing prices as PNG and/or CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Plot(plotOpts)
	},
}

func init() {
	plotCmd.Flags().StringVar(&plotOpts.Symbol, "symbol", "", "Symbol to plot, as stored in the dataset")
	plotCmd.Flags().StringVar(&plotOpts.Path, "dataset", "", "Dataset file (defaults to the newest in export.dir)")
	plotCmd.Flags().StringVar(&plotOpts.PNGPath, "png", "", "Path to write PNG chart")
	plotCmd.Flags().StringVar(&plotOpts.CSVPath, "csv", "", "Path to write CSV data")
	plotCmd.Flags().IntVar(&plotOpts.MaxPoints, "max-points", 500, "Maximum data points to export")
	_ = plotCmd.MarkFlagRequired("symbol")
}
