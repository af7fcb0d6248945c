package fetcher

import "strings"

// Frame is a provider table before normalization. Cells are raw strings aligned with
// Columns; an empty cell is null.
type Frame struct {
	Source  string
	Columns []string
	Rows    [][]string
}

// Len returns the number of data rows.
func (f Frame) Len() int { return len(f.Rows) }

// Index returns the position of the named column, matching case-insensitively, or -1.
func (f Frame) Index(name string) int {
	for i, col := range f.Columns {
		if strings.EqualFold(strings.TrimSpace(col), name) {
			return i
		}
	}
	return -1
}

func (f Frame) cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	v := strings.TrimSpace(row[idx])
	if strings.EqualFold(v, "null") || strings.EqualFold(v, "nan") {
		return ""
	}
	return v
}
