// Package invoker performs single fetch attempts against registered
// sources, translating kind-specific mechanics into a uniform result.
package invoker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"regsync/internal/domain"
	"regsync/internal/metrics"
)

// ErrRateLimited marks an invocation skipped because the source's quota
// window is exhausted. Recoverable: the attempt does not count against
// the source's failure streak.
var ErrRateLimited = errors.New("rate limit exceeded")

// Gate is the rate limiter / circuit breaker consulted around every
// invocation attempt.
type Gate interface {
	CheckQuota(sourceID string) bool
	RecordQuota(sourceID string, remaining int, resetAt time.Time)
	NextAllowedAt(sourceID string) (time.Time, bool)
	RecordOutcome(ctx context.Context, sourceID string, success bool)
}

// Scraper is the external collaborator handling web-scrape sources.
type Scraper interface {
	Scrape(ctx context.Context, src domain.DataSource) ([]domain.Record, error)
}

// PartnerClient is the external collaborator handling partner feeds.
type PartnerClient interface {
	Fetch(ctx context.Context, src domain.DataSource) ([]domain.Record, error)
}

// Config holds invoker tuning.
type Config struct {
	RequestTimeout time.Duration
	PaceRPS        float64
	PaceBurst      int
}

// quotaInfo is rate-limit information parsed from a response.
type quotaInfo struct {
	remaining int
	resetAt   time.Time
}

// Invoker dispatches one fetch per call. Official-API sources are
// fetched in-package; scraping and partner I/O is delegated. Every
// dispatched attempt is recorded with the gate before returning.
type Invoker struct {
	httpClient *http.Client
	gate       Gate
	scraper    Scraper
	partner    PartnerClient
	metrics    metrics.MetricsCollector
	logger     *slog.Logger

	// Local pacing in front of the upstream quota windows, one token
	// bucket per source.
	paceRPS   rate.Limit
	paceBurst int
	mu        sync.Mutex
	pacers    map[string]*rate.Limiter
}

func New(cfg Config, gate Gate, scraper Scraper, partner PartnerClient, mc metrics.MetricsCollector, logger *slog.Logger) *Invoker {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.PaceRPS == 0 {
		cfg.PaceRPS = 2
	}
	if cfg.PaceBurst == 0 {
		cfg.PaceBurst = 4
	}
	return &Invoker{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		gate:       gate,
		scraper:    scraper,
		partner:    partner,
		metrics:    mc,
		logger:     logger,
		paceRPS:    rate.Limit(cfg.PaceRPS),
		paceBurst:  cfg.PaceBurst,
		pacers:     make(map[string]*rate.Limiter),
	}
}

// Invoke performs exactly one fetch against the source. A quota denial
// short-circuits before any network I/O and does not count against the
// source's failure streak.
func (inv *Invoker) Invoke(ctx context.Context, src domain.DataSource) domain.InvocationResult {
	result := domain.InvocationResult{SourceID: src.ID}

	if !inv.gate.CheckQuota(src.ID) {
		result.Err = ErrRateLimited.Error()
		if at, ok := inv.gate.NextAllowedAt(src.ID); ok {
			result.NextSyncAt = &at
		}
		inv.metrics.RecordRateLimited(src.ID)
		inv.logger.Warn("invocation skipped, quota exhausted",
			"source", src.ID,
			"next_sync_at", result.NextSyncAt,
		)
		return result
	}

	if err := inv.pacer(src.ID).Wait(ctx); err != nil {
		result.Err = err.Error()
		inv.gate.RecordOutcome(ctx, src.ID, false)
		inv.metrics.RecordInvocation(src.ID, false)
		return result
	}

	start := time.Now()
	records, quota, err := inv.dispatch(ctx, src)
	inv.metrics.ObserveInvocationLatency(time.Since(start))

	if quota != nil {
		inv.gate.RecordQuota(src.ID, quota.remaining, quota.resetAt)
		remaining := quota.remaining
		resetAt := quota.resetAt
		result.QuotaRemaining = &remaining
		result.QuotaResetAt = &resetAt
		if remaining == 0 {
			result.NextSyncAt = &resetAt
		}
	}

	if err != nil {
		// Transport failures and non-2xx responses are the same
		// failure class at this layer.
		result.Err = err.Error()
		inv.gate.RecordOutcome(ctx, src.ID, false)
		inv.metrics.RecordInvocation(src.ID, false)
		inv.logger.Error("invocation failed",
			"source", src.ID,
			"kind", src.Kind,
			"error", err,
		)
		return result
	}

	result.Success = true
	result.Records = inv.normalize(src, records)
	inv.gate.RecordOutcome(ctx, src.ID, true)
	inv.metrics.RecordInvocation(src.ID, true)

	inv.logger.Info("invocation succeeded",
		"source", src.ID,
		"records", len(result.Records),
	)
	return result
}

func (inv *Invoker) dispatch(ctx context.Context, src domain.DataSource) ([]domain.Record, *quotaInfo, error) {
	switch src.Kind {
	case domain.SourceKindOfficialAPI:
		return inv.fetchOfficial(ctx, src)
	case domain.SourceKindWebScrape:
		records, err := inv.scraper.Scrape(ctx, src)
		return records, nil, err
	case domain.SourceKindPartnerAPI:
		records, err := inv.partner.Fetch(ctx, src)
		return records, nil, err
	default:
		return nil, nil, fmt.Errorf("unknown source kind %q", src.Kind)
	}
}

// normalize stamps source identity onto records the handlers returned.
func (inv *Invoker) normalize(src domain.DataSource, records []domain.Record) []domain.Record {
	for i := range records {
		records[i].SourceID = src.ID
		if records[i].Region == "" {
			records[i].Region = src.Region
		}
		records[i].Priority = src.Priority
	}
	return records
}

func (inv *Invoker) pacer(sourceID string) *rate.Limiter {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	p, ok := inv.pacers[sourceID]
	if !ok {
		p = rate.NewLimiter(inv.paceRPS, inv.paceBurst)
		inv.pacers[sourceID] = p
	}
	return p
}
