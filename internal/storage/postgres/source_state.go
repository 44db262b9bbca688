package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"regsync/internal/domain"
)

type SourceStateStore struct {
	db *sqlx.DB
}

func NewSourceStateStore(db *sqlx.DB) *SourceStateStore {
	return &SourceStateStore{db: db}
}

func (s *SourceStateStore) Get(ctx context.Context, sourceID string) (*domain.SourceState, error) {
	var state domain.SourceState
	query := `
		SELECT id, source_id, status, last_synced_at, consecutive_errors, total_synced
		FROM source_state
		WHERE source_id = $1`

	err := s.db.GetContext(ctx, &state, query, sourceID)
	if err == sql.ErrNoRows {
		// Empty state for sources that have never synced.
		return &domain.SourceState{
			SourceID:     sourceID,
			Status:       domain.SourceStatusActive,
			LastSyncedAt: time.Time{},
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// Upsert writes the runtime snapshot of one source. TotalSynced is a
// delta for this run and accumulates on conflict.
func (s *SourceStateStore) Upsert(ctx context.Context, state *domain.SourceState) error {
	query := `
		INSERT INTO source_state (source_id, status, last_synced_at, consecutive_errors, total_synced)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (source_id) DO UPDATE SET
			status = EXCLUDED.status,
			last_synced_at = EXCLUDED.last_synced_at,
			consecutive_errors = EXCLUDED.consecutive_errors,
			total_synced = source_state.total_synced + EXCLUDED.total_synced`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		state.SourceID,
		state.Status,
		state.LastSyncedAt,
		state.ConsecutiveErrors,
		state.TotalSynced,
	)
	return err
}
