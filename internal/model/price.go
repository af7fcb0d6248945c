package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the ISO calendar date layout used for the canonical Date field.
const DateLayout = "2006-01-02"

// Canonical column names shared by every provider shape.
const (
	ColumnDate     = "Date"
	ColumnOpen     = "Open"
	ColumnHigh     = "High"
	ColumnLow      = "Low"
	ColumnClose    = "Close"
	ColumnVolume   = "Volume"
	ColumnSymbol   = "Symbol"
	ColumnAdjClose = "Adj Close"
)

// Window is the half-open calendar range [Start, End) requested from a provider.
type Window struct {
	Start time.Time
	End   time.Time
}

// LastDays returns the window of the given number of days ending (exclusive) at the
// calendar day of now.
func LastDays(now time.Time, days int) Window {
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return Window{Start: end.AddDate(0, 0, -days), End: end}
}

// Contains reports whether the calendar day d falls inside the window.
func (w Window) Contains(d time.Time) bool {
	day := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	start := time.Date(w.Start.Year(), w.Start.Month(), w.Start.Day(), 0, 0, 0, 0, time.UTC)
	end := time.Date(w.End.Year(), w.End.Month(), w.End.Day(), 0, 0, 0, 0, time.UTC)
	return !day.Before(start) && day.Before(end)
}

// SymbolRequest is one fetch unit.
type SymbolRequest struct {
	Symbol string
	Window Window
}

// PriceRow is one normalized daily bar.
type PriceRow struct {
	// Date is the ISO calendar date; the merger parses it into a true date.
	Date   string
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume int64
	Symbol string
	// Extra holds provider columns beyond the core set (Adj Close, Dividends, ...).
	// A key missing from the map means the value is null for this row.
	Extra map[string]decimal.Decimal
}

// AdjClose returns the adjusted close when the provider supplied one.
func (r PriceRow) AdjClose() (decimal.Decimal, bool) {
	v, ok := r.Extra[ColumnAdjClose]
	return v, ok
}
