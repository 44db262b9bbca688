package domain

import "time"

// Record is one normalized regulatory document produced by a source.
// Deduplication across repeated syncs is the persistence layer's
// responsibility; the core appends whatever a source returned.
type Record struct {
	ID          int64     `db:"id"`
	SourceID    string    `db:"source_id"`
	ExternalID  string    `db:"external_id"`
	Title       string    `db:"title"`
	Content     string    `db:"content"`
	PublishedAt time.Time `db:"published_at"`
	Region      string    `db:"region"`
	Priority    Priority  `db:"priority"`
	CreatedAt   time.Time `db:"created_at"`
}
