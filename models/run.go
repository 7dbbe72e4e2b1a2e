package models

import "time"

// RunResult summarizes one scrape run of a single source.
type RunResult struct {
	RunID      string
	Source     Source
	StartedAt  time.Time
	FinishedAt time.Time

	Batches   int
	Pages     int // listing pages that returned ads
	Seen      int // distinct listing URLs observed
	Processed int // records passed to the engine
	Skipped   int // records dropped by the normalizer: no URL, or repeated in a batch

	Inserted  int
	Changed   int
	Unchanged int
	Removed   int64
}

// BatchResult is the outcome tally of one committed batch.
type BatchResult struct {
	Label     string
	Pages     int
	Processed int
	Skipped   int
	Inserted  int
	Changed   int
	Unchanged int
}

// Count records a single engine outcome.
func (b *BatchResult) Count(o Outcome) {
	b.Processed++
	switch o {
	case OutcomeInserted:
		b.Inserted++
	case OutcomeChanged:
		b.Changed++
	case OutcomeUnchanged:
		b.Unchanged++
	}
}

// Merge folds a committed batch into the run totals.
func (r *RunResult) Merge(b BatchResult) {
	r.Batches++
	r.Pages += b.Pages
	r.Processed += b.Processed
	r.Skipped += b.Skipped
	r.Inserted += b.Inserted
	r.Changed += b.Changed
	r.Unchanged += b.Unchanged
}

// Duration is the wall time of the run.
func (r *RunResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// IntegrityReport holds the result of validating the history table.
type IntegrityReport struct {
	CheckedAt  time.Time
	Violations []Violation
	ByCheck    map[string]int
}

// OK reports whether no violation was found.
func (r *IntegrityReport) OK() bool {
	return len(r.Violations) == 0
}
