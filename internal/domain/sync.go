package domain

import "time"

// InvocationResult is the uniform outcome of one fetch attempt against
// one source. It lives for a single sync cycle and is folded into the
// run aggregate and the source's runtime state.
type InvocationResult struct {
	SourceID string
	Success  bool
	Records  []Record
	Err      string

	// Quota fields are set only when the response carried rate-limit
	// information.
	QuotaRemaining *int
	QuotaResetAt   *time.Time

	// NextSyncAt is a suggested retry time when the invocation was
	// skipped or throttled.
	NextSyncAt *time.Time
}

// SourceOutcome is the per-source summary inside a SyncRun.
type SourceOutcome struct {
	SourceID string `json:"source_id"`
	Success  bool   `json:"success"`
	Records  int    `json:"records"`
	Err      string `json:"error,omitempty"`
}

// SyncRun is the record of one orchestrated pass across one or more
// sources. It is persisted as a summary and then discarded.
type SyncRun struct {
	ID          string
	StartedAt   time.Time
	CompletedAt time.Time
	Outcomes    []SourceOutcome

	// TotalProcessed is the sum of records returned by successful
	// invocations. TotalErrors counts sources whose invocation failed.
	TotalProcessed int
	TotalErrors    int
}
