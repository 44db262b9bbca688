package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"regsync/internal/domain"
	"regsync/internal/metrics"
)

// Config holds orchestrator tuning.
type Config struct {
	// Concurrency bounds the number of in-flight invocations during a
	// syncAll pass.
	Concurrency int
}

// Orchestrator runs coordinated passes across registered sources and
// produces one SyncRun per pass. Individual source failures never abort
// a pass; the run always completes with an aggregate.
type Orchestrator struct {
	registry  Registry
	invoker   Invoker
	records   RecordStore
	runs      SyncRunStore
	states    SourceStateStore
	txManager TransactionManager
	metrics   metrics.MetricsCollector
	logger    *slog.Logger

	concurrency int
	now         func() time.Time
}

func NewOrchestrator(
	cfg Config,
	registry Registry,
	invoker Invoker,
	records RecordStore,
	runs SyncRunStore,
	states SourceStateStore,
	txManager TransactionManager,
	mc metrics.MetricsCollector,
	logger *slog.Logger,
) *Orchestrator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	return &Orchestrator{
		registry:    registry,
		invoker:     invoker,
		records:     records,
		runs:        runs,
		states:      states,
		txManager:   txManager,
		metrics:     mc,
		logger:      logger,
		concurrency: cfg.Concurrency,
		now:         time.Now,
	}
}

// SyncOne invokes exactly one source, for manual/administrator syncs.
// An unregistered id fails before any network I/O.
func (o *Orchestrator) SyncOne(ctx context.Context, sourceID string) (*domain.SyncRun, error) {
	src, err := o.registry.Get(sourceID)
	if err != nil {
		return nil, fmt.Errorf("sync one: %w", err)
	}
	return o.run(ctx, []domain.DataSource{src}), nil
}

// SyncAll invokes every active source, or every registered source when
// activeOnly is false. Dispatch follows registry priority order under a
// bounded worker pool.
func (o *Orchestrator) SyncAll(ctx context.Context, activeOnly bool) (*domain.SyncRun, error) {
	var sources []domain.DataSource
	if activeOnly {
		sources = o.registry.ListActive()
	} else {
		sources = o.registry.ListAll()
	}
	return o.run(ctx, sources), nil
}

func (o *Orchestrator) run(ctx context.Context, sources []domain.DataSource) *domain.SyncRun {
	run := &domain.SyncRun{
		ID:        uuid.NewString(),
		StartedAt: o.now(),
		Outcomes:  make([]domain.SourceOutcome, len(sources)),
	}

	o.logger.Info("sync run started",
		"run_id", run.ID,
		"sources", len(sources),
	)

	sem := make(chan struct{}, o.concurrency)
	var wg sync.WaitGroup

	for i, src := range sources {
		wg.Add(1)
		sem <- struct{}{} // acquired before launch, so dispatch keeps priority order

		go func(i int, src domain.DataSource) {
			defer wg.Done()
			defer func() { <-sem }()

			run.Outcomes[i] = o.syncSource(ctx, src)
		}(i, src)
	}

	wg.Wait()
	run.CompletedAt = o.now()

	for _, oc := range run.Outcomes {
		if oc.Success {
			run.TotalProcessed += oc.Records
		} else {
			run.TotalErrors++
		}
	}

	o.metrics.RecordRecordsProcessed(run.TotalProcessed)
	o.metrics.SetLastSyncTime(run.CompletedAt)

	o.persist(ctx, run, sources)

	o.logger.Info("sync run completed",
		"run_id", run.ID,
		"processed", run.TotalProcessed,
		"errors", run.TotalErrors,
		"duration", run.CompletedAt.Sub(run.StartedAt),
	)

	return run
}

func (o *Orchestrator) syncSource(ctx context.Context, src domain.DataSource) domain.SourceOutcome {
	result := o.invoker.Invoke(ctx, src)

	outcome := domain.SourceOutcome{
		SourceID: src.ID,
		Success:  result.Success,
		Records:  len(result.Records),
		Err:      result.Err,
	}

	if !result.Success || len(result.Records) == 0 {
		return outcome
	}

	// Append-only handoff; deduplication of re-synced upstream records
	// is the persistence layer's concern.
	if _, err := o.records.InsertBatch(ctx, result.Records); err != nil {
		o.logger.Error("failed to persist records",
			"source", src.ID,
			"error", err,
		)
		outcome.Success = false
		outcome.Err = fmt.Sprintf("persist records: %v", err)
	}

	return outcome
}

// persist writes the run summary and the per-source runtime snapshots
// in one transaction. Persistence problems are logged, not surfaced:
// the run result is already complete and callers still get it.
func (o *Orchestrator) persist(ctx context.Context, run *domain.SyncRun, sources []domain.DataSource) {
	err := o.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := o.runs.Insert(txCtx, run); err != nil {
			return fmt.Errorf("insert sync run: %w", err)
		}

		for i, src := range sources {
			// Re-read for the runtime state the limiter updated during
			// the pass.
			current, err := o.registry.Get(src.ID)
			if err != nil {
				return fmt.Errorf("read source state: %w", err)
			}

			var synced int64
			if run.Outcomes[i].Success {
				synced = int64(run.Outcomes[i].Records)
			}

			state := &domain.SourceState{
				SourceID:          current.ID,
				Status:            current.Status,
				LastSyncedAt:      current.LastSyncedAt,
				ConsecutiveErrors: current.ConsecutiveErrors,
				TotalSynced:       synced,
			}
			if err := o.states.Upsert(txCtx, state); err != nil {
				return fmt.Errorf("upsert source state: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		o.logger.Error("failed to persist sync run",
			"run_id", run.ID,
			"error", err,
		)
	}
}
