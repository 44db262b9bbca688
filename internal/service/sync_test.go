package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"regsync/internal/domain"
	"regsync/internal/metrics"
	"regsync/internal/registry"
	"regsync/internal/service/mocks"
)

type OrchestratorTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	registry  *mocks.MockRegistry
	invoker   *mocks.MockInvoker
	records   *mocks.MockRecordStore
	runs      *mocks.MockSyncRunStore
	states    *mocks.MockSourceStateStore
	txManager *mocks.MockTransactionManager

	orchestrator *Orchestrator
	logger       *slog.Logger
}

func (s *OrchestratorTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())

	s.registry = mocks.NewMockRegistry(s.ctrl)
	s.invoker = mocks.NewMockInvoker(s.ctrl)
	s.records = mocks.NewMockRecordStore(s.ctrl)
	s.runs = mocks.NewMockSyncRunStore(s.ctrl)
	s.states = mocks.NewMockSourceStateStore(s.ctrl)
	s.txManager = mocks.NewMockTransactionManager(s.ctrl)

	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	// Concurrency 1 keeps dispatch order deterministic in tests.
	s.orchestrator = NewOrchestrator(
		Config{Concurrency: 1},
		s.registry,
		s.invoker,
		s.records,
		s.runs,
		s.states,
		s.txManager,
		metrics.NewCollector(prometheus.NewRegistry()),
		s.logger,
	)
}

func (s *OrchestratorTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestOrchestratorTestSuite(t *testing.T) {
	suite.Run(t, new(OrchestratorTestSuite))
}

func source(id string, priority domain.Priority) domain.DataSource {
	return domain.DataSource{
		ID:       id,
		Name:     id,
		Kind:     domain.SourceKindOfficialAPI,
		Priority: priority,
		Region:   "EU",
		Status:   domain.SourceStatusActive,
	}
}

func records(sourceID string, n int) []domain.Record {
	out := make([]domain.Record, n)
	for i := range out {
		out[i] = domain.Record{
			SourceID:    sourceID,
			ExternalID:  sourceID + "-doc",
			Title:       "doc",
			PublishedAt: time.Now(),
		}
	}
	return out
}

// expectPersist wires the transactional run/state persistence for the
// given sources.
func (s *OrchestratorTestSuite) expectPersist(sources ...domain.DataSource) {
	s.txManager.EXPECT().WithTransaction(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, fn func(context.Context) error) error {
			return fn(ctx)
		},
	)
	s.runs.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(nil)
	for _, src := range sources {
		s.registry.EXPECT().Get(src.ID).Return(src, nil)
		s.states.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(nil)
	}
}

func (s *OrchestratorTestSuite) TestSyncOne_NotFound() {
	s.registry.EXPECT().Get("missing").Return(domain.DataSource{}, registry.ErrSourceNotFound)

	run, err := s.orchestrator.SyncOne(context.Background(), "missing")

	s.Nil(run)
	s.True(errors.Is(err, registry.ErrSourceNotFound))
}

func (s *OrchestratorTestSuite) TestSyncOne_Success() {
	src := source("eu-api", domain.PriorityHigh)
	recs := records("eu-api", 2)

	s.registry.EXPECT().Get("eu-api").Return(src, nil)
	s.invoker.EXPECT().Invoke(gomock.Any(), src).Return(domain.InvocationResult{
		SourceID: "eu-api",
		Success:  true,
		Records:  recs,
	})
	s.records.EXPECT().InsertBatch(gomock.Any(), recs).Return(2, nil)
	s.expectPersist(src)

	run, err := s.orchestrator.SyncOne(context.Background(), "eu-api")

	s.NoError(err)
	s.Require().NotNil(run)
	s.NotEmpty(run.ID)
	s.Equal(2, run.TotalProcessed)
	s.Equal(0, run.TotalErrors)
	s.Require().Len(run.Outcomes, 1)
	s.True(run.Outcomes[0].Success)
	s.Equal(2, run.Outcomes[0].Records)
}

func (s *OrchestratorTestSuite) TestSyncAll_ActiveOnly() {
	high := source("high", domain.PriorityHigh)
	low := source("low", domain.PriorityLow)

	s.registry.EXPECT().ListActive().Return([]domain.DataSource{high, low})
	s.invoker.EXPECT().Invoke(gomock.Any(), high).Return(domain.InvocationResult{
		SourceID: "high", Success: true, Records: records("high", 3),
	})
	s.invoker.EXPECT().Invoke(gomock.Any(), low).Return(domain.InvocationResult{
		SourceID: "low", Success: true, Records: records("low", 1),
	})
	s.records.EXPECT().InsertBatch(gomock.Any(), gomock.Any()).Return(3, nil)
	s.records.EXPECT().InsertBatch(gomock.Any(), gomock.Any()).Return(1, nil)
	s.expectPersist(high, low)

	run, err := s.orchestrator.SyncAll(context.Background(), true)

	s.NoError(err)
	s.Equal(4, run.TotalProcessed)
	s.Equal(0, run.TotalErrors)
}

func (s *OrchestratorTestSuite) TestSyncAll_IncludesInactiveWhenRequested() {
	inactive := source("dormant", domain.PriorityMedium)
	inactive.Status = domain.SourceStatusInactive

	s.registry.EXPECT().ListAll().Return([]domain.DataSource{inactive})
	s.invoker.EXPECT().Invoke(gomock.Any(), inactive).Return(domain.InvocationResult{
		SourceID: "dormant", Success: true, Records: nil,
	})
	s.expectPersist(inactive)

	run, err := s.orchestrator.SyncAll(context.Background(), false)

	s.NoError(err)
	s.Equal(0, run.TotalProcessed)
	s.Equal(0, run.TotalErrors)
}

func (s *OrchestratorTestSuite) TestSyncAll_PriorityDispatchOrder() {
	high := source("high", domain.PriorityHigh)
	med := source("med", domain.PriorityMedium)
	low := source("low", domain.PriorityLow)

	var mu sync.Mutex
	var order []string

	s.registry.EXPECT().ListActive().Return([]domain.DataSource{high, med, low})
	s.invoker.EXPECT().Invoke(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, src domain.DataSource) domain.InvocationResult {
			mu.Lock()
			order = append(order, src.ID)
			mu.Unlock()
			return domain.InvocationResult{
				SourceID: src.ID,
				Success:  true,
				Records:  records(src.ID, 2),
			}
		},
	).Times(3)
	s.records.EXPECT().InsertBatch(gomock.Any(), gomock.Any()).Return(2, nil).Times(3)
	s.expectPersist(high, med, low)

	run, err := s.orchestrator.SyncAll(context.Background(), true)

	s.NoError(err)
	// With a pool of one, dispatch order is exactly priority order.
	s.Equal([]string{"high", "med", "low"}, order)
	s.Equal(6, run.TotalProcessed)
}

func (s *OrchestratorTestSuite) TestSyncAll_FailuresCounted() {
	ok := source("ok", domain.PriorityHigh)
	broken := source("broken", domain.PriorityMedium)

	s.registry.EXPECT().ListActive().Return([]domain.DataSource{ok, broken})
	s.invoker.EXPECT().Invoke(gomock.Any(), ok).Return(domain.InvocationResult{
		SourceID: "ok", Success: true, Records: records("ok", 3),
	})
	s.invoker.EXPECT().Invoke(gomock.Any(), broken).Return(domain.InvocationResult{
		SourceID: "broken", Success: false, Err: "unexpected status: 502",
	})
	s.records.EXPECT().InsertBatch(gomock.Any(), gomock.Any()).Return(3, nil)
	s.expectPersist(ok, broken)

	run, err := s.orchestrator.SyncAll(context.Background(), true)

	s.NoError(err)
	s.Equal(3, run.TotalProcessed)
	s.Equal(1, run.TotalErrors)
	s.Require().Len(run.Outcomes, 2)
	s.Equal("unexpected status: 502", run.Outcomes[1].Err)
}

func (s *OrchestratorTestSuite) TestSyncAll_PersistRecordsFailure() {
	src := source("eu-api", domain.PriorityHigh)

	s.registry.EXPECT().ListActive().Return([]domain.DataSource{src})
	s.invoker.EXPECT().Invoke(gomock.Any(), src).Return(domain.InvocationResult{
		SourceID: "eu-api", Success: true, Records: records("eu-api", 2),
	})
	s.records.EXPECT().InsertBatch(gomock.Any(), gomock.Any()).Return(0, errors.New("connection reset"))
	s.expectPersist(src)

	run, err := s.orchestrator.SyncAll(context.Background(), true)

	s.NoError(err)
	s.Equal(0, run.TotalProcessed)
	s.Equal(1, run.TotalErrors)
	s.Contains(run.Outcomes[0].Err, "persist records")
}

func (s *OrchestratorTestSuite) TestSyncAll_RunPersistenceErrorDoesNotFailRun() {
	src := source("eu-api", domain.PriorityHigh)

	s.registry.EXPECT().ListActive().Return([]domain.DataSource{src})
	s.invoker.EXPECT().Invoke(gomock.Any(), src).Return(domain.InvocationResult{
		SourceID: "eu-api", Success: true, Records: records("eu-api", 1),
	})
	s.records.EXPECT().InsertBatch(gomock.Any(), gomock.Any()).Return(1, nil)
	s.txManager.EXPECT().WithTransaction(gomock.Any(), gomock.Any()).Return(errors.New("db down"))

	run, err := s.orchestrator.SyncAll(context.Background(), true)

	s.NoError(err)
	s.Equal(1, run.TotalProcessed)
}
