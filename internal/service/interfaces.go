package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"regsync/internal/domain"
)

type Registry interface {
	Get(id string) (domain.DataSource, error)
	ListActive() []domain.DataSource
	ListAll() []domain.DataSource
}

type Invoker interface {
	Invoke(ctx context.Context, src domain.DataSource) domain.InvocationResult
}

type RecordStore interface {
	InsertBatch(ctx context.Context, records []domain.Record) (int, error)
	CountByRegionSince(ctx context.Context, since time.Time) (map[string]int, error)
}

type SyncRunStore interface {
	Insert(ctx context.Context, run *domain.SyncRun) error
}

type SourceStateStore interface {
	Upsert(ctx context.Context, state *domain.SourceState) error
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Notifier interface {
	Notify(ctx context.Context, alert domain.Alert) error
}
