package dataset

import (
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"nse-history/internal/model"
)

// CoreColumns are present in every dataset, in output order.
var CoreColumns = []string{
	model.ColumnDate, model.ColumnOpen, model.ColumnHigh, model.ColumnLow,
	model.ColumnClose, model.ColumnVolume, model.ColumnSymbol,
}

// Record is a merged row. HasDate is false when the source date did not parse.
type Record struct {
	Date    time.Time
	HasDate bool
	Open    decimal.Decimal
	High    decimal.Decimal
	Low     decimal.Decimal
	Close   decimal.Decimal
	Volume  int64
	Symbol  string
	Extra   map[string]decimal.Decimal
}

// Dataset is the consolidated, sorted table.
type Dataset struct {
	// Extra lists optional columns present in any contributing row set, sorted.
	Extra      []string
	Records    []Record
	Duplicates int
}

// Len returns the number of records.
func (d *Dataset) Len() int { return len(d.Records) }

// Columns returns the core columns followed by the optional ones.
func (d *Dataset) Columns() []string {
	return append(slices.Clone(CoreColumns), d.Extra...)
}

// SymbolCount returns the number of distinct symbols.
func (d *Dataset) SymbolCount() int {
	seen := make(map[string]struct{})
	for _, r := range d.Records {
		seen[r.Symbol] = struct{}{}
	}
	return len(seen)
}

// MergeOptions tune Merge.
type MergeOptions struct {
	// Dedupe keeps only the last (Symbol, Date) row in ingestion order.
	Dedupe bool
}

// Merge concatenates successful results into one dataset sorted by (Symbol, Date).
// The second return value is false when no result succeeded.
func Merge(results []model.SymbolResult, opts MergeOptions) (*Dataset, bool) {
	total := 0
	extras := make(map[string]struct{})
	for _, res := range results {
		if !res.Succeeded() {
			continue
		}
		total += res.Count()
		for _, row := range res.Rows {
			for name := range row.Extra {
				extras[name] = struct{}{}
			}
		}
	}
	if !anySucceeded(results) {
		return nil, false
	}

	ds := &Dataset{Records: make([]Record, 0, total)}
	for name := range extras {
		ds.Extra = append(ds.Extra, name)
	}
	sort.Strings(ds.Extra)

	seen := make(map[string]int)
	for _, res := range results {
		if !res.Succeeded() {
			continue
		}
		for _, row := range res.Rows {
			rec := toRecord(row)
			if opts.Dedupe && rec.HasDate {
				key := rec.Symbol + "\x00" + rec.Date.Format(model.DateLayout)
				if idx, ok := seen[key]; ok {
					ds.Records[idx] = rec
					ds.Duplicates++
					continue
				}
				seen[key] = len(ds.Records)
			}
			ds.Records = append(ds.Records, rec)
		}
	}

	slices.SortStableFunc(ds.Records, compareRecords)
	return ds, true
}

func anySucceeded(results []model.SymbolResult) bool {
	for _, r := range results {
		if r.Succeeded() {
			return true
		}
	}
	return false
}

func toRecord(row model.PriceRow) Record {
	rec := Record{
		Open:   row.Open,
		High:   row.High,
		Low:    row.Low,
		Close:  row.Close,
		Volume: row.Volume,
		Symbol: row.Symbol,
		Extra:  row.Extra,
	}
	if d, err := time.Parse(model.DateLayout, strings.TrimSpace(row.Date)); err == nil {
		rec.Date = d
		rec.HasDate = true
	}
	return rec
}

// compareRecords orders by symbol, then date with null dates first.
func compareRecords(a, b Record) int {
	if c := strings.Compare(a.Symbol, b.Symbol); c != 0 {
		return c
	}
	switch {
	case !a.HasDate && !b.HasDate:
		return 0
	case !a.HasDate:
		return -1
	case !b.HasDate:
		return 1
	}
	return a.Date.Compare(b.Date)
}
