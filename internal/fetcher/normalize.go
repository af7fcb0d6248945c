package fetcher

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"nse-history/internal/model"
)

var dateTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

var coreColumns = map[string]struct{}{
	strings.ToLower(model.ColumnDate):   {},
	strings.ToLower(columnDatetime):     {},
	strings.ToLower(model.ColumnOpen):   {},
	strings.ToLower(model.ColumnHigh):   {},
	strings.ToLower(model.ColumnLow):    {},
	strings.ToLower(model.ColumnClose):  {},
	strings.ToLower(model.ColumnVolume): {},
	strings.ToLower(model.ColumnSymbol): {},
}

// Normalize converts a provider frame into canonical rows for symbol. The date column
// may be Date (date or date-time) or Datetime; either way it becomes an ISO calendar
// date. Bars with any null price are skipped and bars outside the window are dropped.
func Normalize(frame Frame, symbol string, window model.Window, logger zerolog.Logger) ([]model.PriceRow, error) {
	dateIdx := frame.Index(model.ColumnDate)
	if dateIdx < 0 {
		dateIdx = frame.Index(columnDatetime)
	}
	if dateIdx < 0 {
		return nil, malformed("%s response has no date column", frame.Source)
	}

	idx := make(map[string]int, 5)
	for _, name := range []string{model.ColumnOpen, model.ColumnHigh, model.ColumnLow, model.ColumnClose, model.ColumnVolume} {
		i := frame.Index(name)
		if i < 0 {
			return nil, malformed("%s response has no %s column", frame.Source, name)
		}
		idx[name] = i
	}

	extras := make(map[int]string)
	for i, col := range frame.Columns {
		name := strings.TrimSpace(col)
		if _, core := coreColumns[strings.ToLower(name)]; core || name == "" {
			continue
		}
		extras[i] = name
	}

	rows := make([]model.PriceRow, 0, frame.Len())
	for n, record := range frame.Rows {
		date, inWindow := normalizeDate(frame.cell(record, dateIdx), window)
		if !inWindow {
			continue
		}

		open, okOpen := parseDecimal(frame.cell(record, idx[model.ColumnOpen]))
		high, okHigh := parseDecimal(frame.cell(record, idx[model.ColumnHigh]))
		low, okLow := parseDecimal(frame.cell(record, idx[model.ColumnLow]))
		closePx, okClose := parseDecimal(frame.cell(record, idx[model.ColumnClose]))
		if !okOpen && !okHigh && !okLow && !okClose {
			continue
		}
		if !okOpen || !okHigh || !okLow || !okClose {
			logger.Debug().Str("symbol", symbol).Str("source", frame.Source).Int("row", n+1).
				Str("date", date).Msg("skipping bar with incomplete prices")
			continue
		}

		var volume int64
		if raw := frame.cell(record, idx[model.ColumnVolume]); raw != "" {
			v, err := decimal.NewFromString(raw)
			if err != nil {
				return nil, malformed("%s row %d volume %q: %v", frame.Source, n+1, raw, err)
			}
			volume = v.IntPart()
		}

		row := model.PriceRow{
			Date:   date,
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closePx,
			Volume: volume,
			Symbol: symbol,
		}
		for i, name := range extras {
			if v, ok := parseDecimal(frame.cell(record, i)); ok {
				if row.Extra == nil {
					row.Extra = make(map[string]decimal.Decimal, len(extras))
				}
				row.Extra[name] = v
			}
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: %w", frame.Source, ErrEmptyResponse)
	}
	return rows, nil
}

// normalizeDate returns the ISO date for raw and whether the row should be kept.
// Values that do not parse are passed through unchanged for the merger to null out.
func normalizeDate(raw string, window model.Window) (string, bool) {
	if raw == "" {
		return "", true
	}
	if t, err := time.Parse(model.DateLayout, raw); err == nil {
		return raw, window.Contains(t)
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format(model.DateLayout), window.Contains(t)
		}
	}
	return raw, true
}

func parseDecimal(raw string) (decimal.Decimal, bool) {
	if raw == "" {
		return decimal.Decimal{}, false
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return v, true
}
