package postgres

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"regsync/internal/domain"
)

type RecordStore struct {
	db *sqlx.DB
}

func NewRecordStore(db *sqlx.DB) *RecordStore {
	return &RecordStore{db: db}
}

// InsertBatch appends records in one multi-value insert. Re-synced
// upstream records are dropped by the (source_id, external_id) conflict
// target; the returned count is the number of rows actually inserted.
func (s *RecordStore) InsertBatch(ctx context.Context, records []domain.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO records (
		source_id, external_id, title, content, published_at, region, priority
	) VALUES `)
	valueArgs := make([]interface{}, 0, len(records)*7)

	for i, r := range records {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for j := 0; j < 7; j++ {
			if j > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("$")
			sb.WriteString(strconv.Itoa(i*7 + j + 1))
		}
		sb.WriteString(")")
		valueArgs = append(valueArgs,
			r.SourceID,
			r.ExternalID,
			r.Title,
			r.Content,
			r.PublishedAt,
			r.Region,
			r.Priority,
		)
	}
	sb.WriteString(" ON CONFLICT (source_id, external_id) DO NOTHING")

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, sb.String(), valueArgs...)
	if err != nil {
		return 0, err
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(inserted), nil
}

// CountByRegionSince returns the number of records created per region
// since the given time. Used for the weekly digest.
func (s *RecordStore) CountByRegionSince(ctx context.Context, since time.Time) (map[string]int, error) {
	query := `
		SELECT region, COUNT(*) AS count
		FROM records
		WHERE created_at >= $1
		GROUP BY region`

	rows, err := s.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var region string
		var count int
		if err := rows.Scan(&region, &count); err != nil {
			return nil, err
		}
		counts[region] = count
	}
	return counts, rows.Err()
}
