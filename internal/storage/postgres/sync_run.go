package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"regsync/internal/domain"
)

type SyncRunStore struct {
	db *sqlx.DB
}

func NewSyncRunStore(db *sqlx.DB) *SyncRunStore {
	return &SyncRunStore{db: db}
}

// Insert stores one completed run summary. Outcomes are kept as JSONB;
// nothing in the core reads them back, they exist for operators.
func (s *SyncRunStore) Insert(ctx context.Context, run *domain.SyncRun) error {
	outcomes, err := json.Marshal(run.Outcomes)
	if err != nil {
		return fmt.Errorf("marshal outcomes: %w", err)
	}

	query := `
		INSERT INTO sync_runs (id, started_at, completed_at, outcomes, total_processed, total_errors)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err = GetExecutor(ctx, s.db).ExecContext(ctx, query,
		run.ID,
		run.StartedAt,
		run.CompletedAt,
		outcomes,
		run.TotalProcessed,
		run.TotalErrors,
	)
	return err
}
