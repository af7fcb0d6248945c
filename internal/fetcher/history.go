package fetcher

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"nse-history/internal/model"
)

// SourceHistory is the per-symbol history download shape (CSV).
const SourceHistory = "history"

const (
	columnDividends = "Dividends"
	columnSplits    = "Stock Splits"
)

// History decodes the per-symbol CSV download into a Frame keyed by a Date column.
type History struct {
	opts    ClientOptions
	client  *http.Client
	baseURL string
	ua      string
	logger  zerolog.Logger
}

// NewHistory constructs the fallback response shape.
func NewHistory(opts ClientOptions, logger zerolog.Logger) *History {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://query1.finance.yahoo.com/v7/finance/download"
	}
	return &History{
		opts:    opts,
		client:  newHTTPClient(opts),
		baseURL: baseURL,
		ua:      userAgent(opts),
		logger:  logger.With().Str("component", "history_source").Logger(),
	}
}

// Name identifies the shape in logs and results.
func (h *History) Name() string { return SourceHistory }

// Fetch retrieves the daily history table for ticker over the window.
func (h *History) Fetch(ctx context.Context, ticker string, window model.Window) (Frame, error) {
	q := windowQuery(window.Start, window.End)
	q.Set("events", "history")
	q.Set("includeAdjustedClose", "true")
	endpoint := h.baseURL + "/" + url.PathEscape(ticker) + "?" + q.Encode()

	body, status, err := get(ctx, h.client, SourceHistory, endpoint, h.ua)
	if err != nil {
		return Frame{}, err
	}
	if status == http.StatusNotFound {
		return Frame{}, ErrEmptyResponse
	}
	if status != http.StatusOK {
		return Frame{}, statusError(SourceHistory, status, body)
	}
	return decodeHistory(body)
}

func decodeHistory(body []byte) (Frame, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return Frame{}, ErrEmptyResponse
	}

	reader := csv.NewReader(bytes.NewReader(body))
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Frame{}, ErrEmptyResponse
		}
		return Frame{}, malformed("read history header: %v", err)
	}

	frame := Frame{Source: SourceHistory, Columns: make([]string, len(header))}
	for i, col := range header {
		frame.Columns[i] = strings.TrimSpace(strings.TrimPrefix(col, "\ufeff"))
	}

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Frame{}, malformed("read history row: %v", err)
		}
		frame.Rows = append(frame.Rows, record)
	}

	if frame.Len() == 0 {
		return Frame{}, ErrEmptyResponse
	}
	return frame, nil
}

var _ Source = (*History)(nil)
