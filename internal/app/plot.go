package app

import (
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"nse-history/internal/dataset"
	"nse-history/internal/model"
)

// Plot renders one symbol's closing prices from an artifact as PNG and/or CSV.
func (a *App) Plot(opts PlotOptions) error {
	if opts.Symbol == "" {
		return errors.New("--symbol is required")
	}
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	path, err := a.artifactPath(opts.Path)
	if err != nil {
		return err
	}
	ds, _, err := dataset.Read(path)
	if err != nil {
		return err
	}

	series := datedOnly(dataset.Series(ds, opts.Symbol))
	if len(series) == 0 {
		return fmt.Errorf("symbol %s not found in %s", opts.Symbol, path)
	}

	sampled := downsample(series, opts.MaxPoints)
	a.Logger.Info().Str("symbol", opts.Symbol).Int("total", len(series)).
		Int("exported", len(sampled)).Msg("plotting series")

	if opts.CSVPath != "" {
		if err := writeSeriesCSV(opts.CSVPath, sampled); err != nil {
			return err
		}
	}
	if opts.PNGPath != "" {
		if err := writeSeriesPNG(opts.PNGPath, opts.Symbol, sampled); err != nil {
			return err
		}
	}
	return nil
}

func datedOnly(records []dataset.Record) []dataset.Record {
	out := records[:0:0]
	for _, r := range records {
		if r.HasDate {
			out = append(out, r)
		}
	}
	return out
}

func downsample(records []dataset.Record, max int) []dataset.Record {
	if max <= 1 || len(records) <= max {
		return records
	}

	result := make([]dataset.Record, 0, max)
	step := float64(len(records)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(records) {
			idx = len(records) - 1
		}
		result = append(result, records[idx])
	}
	return result
}

func writeSeriesCSV(path string, records []dataset.Record) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	header := []string{model.ColumnDate, model.ColumnOpen, model.ColumnHigh, model.ColumnLow,
		model.ColumnClose, model.ColumnAdjClose, model.ColumnVolume}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, r := range records {
		adj := ""
		if v, ok := r.Extra[model.ColumnAdjClose]; ok {
			adj = v.String()
		}
		record := []string{
			r.Date.Format(model.DateLayout),
			r.Open.String(),
			r.High.String(),
			r.Low.String(),
			r.Close.String(),
			adj,
			strconv.FormatInt(r.Volume, 10),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeSeriesPNG(path, symbol string, records []dataset.Record) error {
	if len(records) < 2 {
		return fmt.Errorf("need at least two dated rows to plot %s", symbol)
	}
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(records))
	closes := make([]float64, len(records))
	var adjX []time.Time
	var adj []float64
	for i, r := range records {
		x[i] = r.Date
		closes[i] = r.Close.InexactFloat64()
		if v, ok := r.Extra[model.ColumnAdjClose]; ok {
			adjX = append(adjX, r.Date)
			adj = append(adj, v.InexactFloat64())
		}
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	series := []chart.Series{
		chart.TimeSeries{
			Name:    symbol + " Close",
			XValues: x,
			YValues: closes,
		},
	}
	if len(adj) >= 2 {
		series = append(series, chart.TimeSeries{
			Name:    symbol + " Adj Close",
			XValues: adjX,
			YValues: adj,
		})
	}

	graph := chart.Chart{
		Title:  symbol,
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Price",
			ValueFormatter: priceFormatter,
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
