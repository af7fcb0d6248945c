package model

import (
	"strings"
	"time"
)

// maxReasonLen bounds failure reasons shown in progress output.
const maxReasonLen = 100

// SymbolResult is the outcome of fetching one symbol after all retries.
// A nil Err means success and Rows holds the normalized bars.
type SymbolResult struct {
	Symbol   string
	Rows     []PriceRow
	Attempts int
	Source   string
	Err      error
}

// Succeeded reports whether the symbol produced rows.
func (r SymbolResult) Succeeded() bool { return r.Err == nil }

// Count is the number of rows in a successful result.
func (r SymbolResult) Count() int { return len(r.Rows) }

// Reason is the truncated, single-line failure message.
func (r SymbolResult) Reason() string {
	if r.Err == nil {
		return ""
	}
	return Truncate(r.Err.Error(), maxReasonLen)
}

// Truncate flattens newlines and cuts s to at most n runes.
func Truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// OutputArtifact summarises the persisted dataset file.
type OutputArtifact struct {
	Path        string
	RowCount    int
	SymbolCount int
	ByteSize    int64
	Columns     []string
	Duplicates  int
	Removed     []string
	CreatedAt   time.Time
}
