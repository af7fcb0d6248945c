package dataset

import (
	"os"
	"time"
)

// Summary describes an artifact on disk.
type Summary struct {
	Path        string
	Rows        int
	Symbols     int
	Columns     []string
	NullDates   int
	First       time.Time
	Last        time.Time
	ByteSize    int64
	GeneratedAt string
}

// Inspect reads the artifact at path and summarises it.
func Inspect(path string) (Summary, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Summary{}, err
	}

	ds, metadata, err := Read(path)
	if err != nil {
		return Summary{}, err
	}

	s := Summary{
		Path:        path,
		Rows:        ds.Len(),
		Symbols:     ds.SymbolCount(),
		Columns:     ds.Columns(),
		ByteSize:    info.Size(),
		GeneratedAt: metadata["generated_at"],
	}
	for _, rec := range ds.Records {
		if !rec.HasDate {
			s.NullDates++
			continue
		}
		if s.First.IsZero() || rec.Date.Before(s.First) {
			s.First = rec.Date
		}
		if rec.Date.After(s.Last) {
			s.Last = rec.Date
		}
	}
	return s, nil
}

// Series returns the records for one symbol, in file order.
func Series(ds *Dataset, symbol string) []Record {
	var out []Record
	for _, rec := range ds.Records {
		if rec.Symbol == symbol {
			out = append(out, rec)
		}
	}
	return out
}
