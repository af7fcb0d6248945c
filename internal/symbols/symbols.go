// Package symbols reads the list of tickers to download.
package symbols

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// DefaultColumn is the header the NSE equity listing uses for tickers.
const DefaultColumn = "symbol"

// ErrEmpty is returned when a source yields no symbols.
var ErrEmpty = errors.New("symbol list is empty")

// Load reads symbols from the named column of a CSV file.
func Load(path, column string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open symbol file: %w", err)
	}
	defer f.Close()

	list, err := Parse(f, column)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return list, nil
}

// Parse reads symbols from the column whose header matches column case-insensitively.
// Values are trimmed; blanks and repeats are dropped and first-seen order is kept.
func Parse(r io.Reader, column string) ([]string, error) {
	if column == "" {
		column = DefaultColumn
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	idx := -1
	for i, name := range header {
		if strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")), column) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("column %q not found in header %v", column, header)
	}

	var out []string
	seen := make(map[string]struct{})
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if idx >= len(record) {
			continue
		}
		out = appendUnique(out, seen, record[idx])
	}

	if len(out) == 0 {
		return nil, ErrEmpty
	}
	return out, nil
}

// FromList splits a comma separated list such as the --symbols flag.
func FromList(list string) ([]string, error) {
	var out []string
	seen := make(map[string]struct{})
	for _, s := range strings.Split(list, ",") {
		out = appendUnique(out, seen, s)
	}
	if len(out) == 0 {
		return nil, ErrEmpty
	}
	return out, nil
}

func appendUnique(out []string, seen map[string]struct{}, raw string) []string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return out
	}
	if _, ok := seen[s]; ok {
		return out
	}
	seen[s] = struct{}{}
	return append(out, s)
}
