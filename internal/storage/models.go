package storage

import "time"

// Run statuses recorded in the ledger.
const (
	StatusSucceeded = "succeeded"
	StatusNoData    = "no_data"
	StatusFailed    = "failed"
)

// RunRecord is one batch download as persisted in the runs table.
type RunRecord struct {
	ID            int64
	StartedAt     time.Time
	FinishedAt    time.Time
	Status        string
	Attempted     int
	Succeeded     int
	Failed        int
	FailedSymbols []string
	ArtifactPath  *string
	RowCount      int
	SymbolCount   int
	ByteSize      int64
	Error         *string
	CreatedAt     time.Time
}

// Duration is the wall time the run took.
func (r RunRecord) Duration() time.Duration {
	if r.FinishedAt.Before(r.StartedAt) {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
