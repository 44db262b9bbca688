package domain

import "time"

// SourceKind identifies how a data source is fetched.
type SourceKind string

const (
	SourceKindOfficialAPI SourceKind = "official-api"
	SourceKindWebScrape   SourceKind = "web-scrape"
	SourceKindPartnerAPI  SourceKind = "partner-api"
)

// Priority is the scheduling tier of a source.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank returns the sort rank of a priority, lower is dispatched first.
// Unknown values sort after low.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 2
	default:
		return 3
	}
}

// SourceStatus is the operational state of a source.
type SourceStatus string

const (
	SourceStatusActive   SourceStatus = "active"
	SourceStatusInactive SourceStatus = "inactive"
	SourceStatusTesting  SourceStatus = "testing"
)

// DataSource is one external producer of regulatory records.
// The static fields come from configuration; LastSyncedAt and
// ConsecutiveErrors are runtime state owned by the orchestration core.
type DataSource struct {
	ID           string
	Name         string
	Kind         SourceKind
	Endpoint     string
	RequiresAuth bool
	APIKey       string
	Priority     Priority
	Region       string
	Status       SourceStatus

	LastSyncedAt      time.Time
	ConsecutiveErrors int
}

// SourceState is the persisted runtime snapshot of one source,
// written after every sync run for operator visibility.
type SourceState struct {
	ID                int64        `db:"id"`
	SourceID          string       `db:"source_id"`
	Status            SourceStatus `db:"status"`
	LastSyncedAt      time.Time    `db:"last_synced_at"`
	ConsecutiveErrors int          `db:"consecutive_errors"`
	TotalSynced       int64        `db:"total_synced"`
}
