package fetcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"nse-history/internal/model"
)

// SourceChart is the primary bulk daily shape (chart JSON).
const SourceChart = "chart"

const columnDatetime = "Datetime"

// Chart decodes the v8 chart endpoint into a Frame keyed by a Datetime column.
type Chart struct {
	opts    ClientOptions
	client  *http.Client
	baseURL string
	ua      string
	logger  zerolog.Logger
}

// NewChart constructs the primary response shape.
func NewChart(opts ClientOptions, logger zerolog.Logger) *Chart {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://query1.finance.yahoo.com/v8/finance/chart"
	}
	return &Chart{
		opts:    opts,
		client:  newHTTPClient(opts),
		baseURL: baseURL,
		ua:      userAgent(opts),
		logger:  logger.With().Str("component", "chart_source").Logger(),
	}
}

// Name identifies the shape in logs and results.
func (c *Chart) Name() string { return SourceChart }

// Fetch retrieves daily bars for ticker over the window.
func (c *Chart) Fetch(ctx context.Context, ticker string, window model.Window) (Frame, error) {
	q := windowQuery(window.Start, window.End)
	q.Set("events", "div,splits")
	q.Set("includeAdjustedClose", "true")
	endpoint := c.baseURL + "/" + url.PathEscape(ticker) + "?" + q.Encode()

	body, status, err := get(ctx, c.client, SourceChart, endpoint, c.ua)
	if err != nil {
		return Frame{}, err
	}
	if status == http.StatusNotFound {
		return Frame{}, ErrEmptyResponse
	}
	if status != http.StatusOK {
		return Frame{}, statusError(SourceChart, status, body)
	}
	return decodeChart(body)
}

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta struct {
		Symbol    string `json:"symbol"`
		GMTOffset int    `json:"gmtoffset"`
	} `json:"meta"`
	Timestamp []int64 `json:"timestamp"`
	Events    struct {
		Dividends map[string]struct {
			Amount float64 `json:"amount"`
			Date   int64   `json:"date"`
		} `json:"dividends"`
		Splits map[string]struct {
			Date        int64   `json:"date"`
			Numerator   float64 `json:"numerator"`
			Denominator float64 `json:"denominator"`
		} `json:"splits"`
	} `json:"events"`
	Indicators struct {
		Quote []struct {
			Open   []*float64 `json:"open"`
			High   []*float64 `json:"high"`
			Low    []*float64 `json:"low"`
			Close  []*float64 `json:"close"`
			Volume []*float64 `json:"volume"`
		} `json:"quote"`
		AdjClose []struct {
			AdjClose []*float64 `json:"adjclose"`
		} `json:"adjclose"`
	} `json:"indicators"`
}

func decodeChart(body []byte) (Frame, error) {
	var resp chartResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Frame{}, malformed("decode chart: %v", err)
	}
	if resp.Chart.Error != nil && len(resp.Chart.Result) == 0 {
		return Frame{}, ErrEmptyResponse
	}

	switch n := len(resp.Chart.Result); {
	case n == 0:
		return Frame{}, ErrEmptyResponse
	case n > 1:
		return Frame{}, malformed("chart returned %d result sets", n)
	}

	res := resp.Chart.Result[0]
	if len(res.Timestamp) == 0 {
		return Frame{}, ErrEmptyResponse
	}
	if len(res.Indicators.Quote) != 1 {
		return Frame{}, malformed("chart returned %d quote blocks", len(res.Indicators.Quote))
	}

	quote := res.Indicators.Quote[0]
	n := len(res.Timestamp)
	for name, series := range map[string][]*float64{
		model.ColumnOpen: quote.Open, model.ColumnHigh: quote.High, model.ColumnLow: quote.Low,
		model.ColumnClose: quote.Close, model.ColumnVolume: quote.Volume,
	} {
		if len(series) != n {
			return Frame{}, malformed("%s has %d values for %d timestamps", name, len(series), n)
		}
	}

	var adj []*float64
	if len(res.Indicators.AdjClose) > 0 && len(res.Indicators.AdjClose[0].AdjClose) == n {
		adj = res.Indicators.AdjClose[0].AdjClose
	}

	zone := time.FixedZone("exchange", res.Meta.GMTOffset)
	dayOf := func(ts int64) string { return time.Unix(ts, 0).In(zone).Format(model.DateLayout) }

	dividends := make(map[string]float64, len(res.Events.Dividends))
	for _, d := range res.Events.Dividends {
		dividends[dayOf(d.Date)] += d.Amount
	}
	splits := make(map[string]float64, len(res.Events.Splits))
	for _, s := range res.Events.Splits {
		if s.Denominator != 0 {
			splits[dayOf(s.Date)] = s.Numerator / s.Denominator
		}
	}

	frame := Frame{
		Source:  SourceChart,
		Columns: []string{columnDatetime, model.ColumnOpen, model.ColumnHigh, model.ColumnLow, model.ColumnClose, model.ColumnVolume},
	}
	if adj != nil {
		frame.Columns = append(frame.Columns, model.ColumnAdjClose)
	}
	if len(dividends) > 0 {
		frame.Columns = append(frame.Columns, columnDividends)
	}
	if len(splits) > 0 {
		frame.Columns = append(frame.Columns, columnSplits)
	}

	frame.Rows = make([][]string, 0, n)
	for i, ts := range res.Timestamp {
		row := []string{
			time.Unix(ts, 0).In(zone).Format(time.RFC3339),
			formatFloat(quote.Open[i]),
			formatFloat(quote.High[i]),
			formatFloat(quote.Low[i]),
			formatFloat(quote.Close[i]),
			formatFloat(quote.Volume[i]),
		}
		if adj != nil {
			row = append(row, formatFloat(adj[i]))
		}
		day := dayOf(ts)
		if len(dividends) > 0 {
			row = append(row, strconv.FormatFloat(dividends[day], 'f', -1, 64))
		}
		if len(splits) > 0 {
			row = append(row, strconv.FormatFloat(splits[day], 'f', -1, 64))
		}
		frame.Rows = append(frame.Rows, row)
	}

	return frame, nil
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

var _ Source = (*Chart)(nil)
