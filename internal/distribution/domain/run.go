package distribution

import "time"

const (
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

// RunRecord is the persisted history entry of one run.
type RunRecord struct {
	ID           string
	Format       string
	Status       string
	Error        string
	Documents    int
	SeriesRouted int
	Workbooks    []string
	// Diagnostics holds the JSON encoded diagnostics report.
	Diagnostics []byte
	StartedAt   time.Time
	FinishedAt  time.Time
}
