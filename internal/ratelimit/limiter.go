// Package ratelimit gates source invocations behind per-source quota
// windows and deactivates sources after repeated failures.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"regsync/internal/domain"
)

// DeactivateThreshold is the consecutive-error count at which a source
// is automatically set inactive. Recovery is operator-only.
const DeactivateThreshold = 5

// SourceStates is the mutable runtime state of registered sources,
// implemented by the registry.
type SourceStates interface {
	RecordSuccess(id string, at time.Time) error
	RecordFailure(id string) (int, error)
	Deactivate(id string) (bool, error)
}

// Alerter delivers operator alerts.
type Alerter interface {
	Notify(ctx context.Context, alert domain.Alert) error
}

// Metrics is the subset of metric collection the limiter reports to.
type Metrics interface {
	RecordDeactivation(sourceID string)
}

type window struct {
	remaining int
	resetAt   time.Time
}

// Limiter tracks one quota window per source and applies the
// failure-counting deactivation policy. This is intentionally not a
// full open/half-open circuit breaker: a deactivated source stays
// inactive until an operator re-enables it.
type Limiter struct {
	states     SourceStates
	alerter    Alerter
	metrics    Metrics
	logger     *slog.Logger
	recipients []string

	mu      sync.Mutex
	windows map[string]*window

	now func() time.Time
}

func NewLimiter(states SourceStates, alerter Alerter, metrics Metrics, recipients []string, logger *slog.Logger) *Limiter {
	return &Limiter{
		states:     states,
		alerter:    alerter,
		metrics:    metrics,
		logger:     logger,
		recipients: recipients,
		windows:    make(map[string]*window),
		now:        time.Now,
	}
}

// CheckQuota reports whether an invocation of the source is currently
// allowed. True when no window is recorded, when the recorded window
// has expired, or when requests remain in it. Expired windows are
// discarded lazily here.
func (l *Limiter) CheckQuota(sourceID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[sourceID]
	if !ok {
		return true
	}
	if !l.now().Before(w.resetAt) {
		delete(l.windows, sourceID)
		return true
	}
	return w.remaining > 0
}

// RecordQuota overwrites the quota window for a source. Last write
// wins; there is no merging with a previously stored window.
func (l *Limiter) RecordQuota(sourceID string, remaining int, resetAt time.Time) {
	if remaining < 0 {
		remaining = 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.windows[sourceID] = &window{remaining: remaining, resetAt: resetAt}
}

// NextAllowedAt returns the reset time of the stored window, if any.
// Used to suggest a retry time for rate-limited invocations.
func (l *Limiter) NextAllowedAt(sourceID string) (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[sourceID]
	if !ok {
		return time.Time{}, false
	}
	return w.resetAt, true
}

// RecordOutcome folds one invocation outcome into the source's runtime
// state. A success resets the consecutive-error count; a failure
// increments it, and at the threshold the source is deactivated and a
// single operator alert is emitted.
func (l *Limiter) RecordOutcome(ctx context.Context, sourceID string, success bool) {
	if success {
		if err := l.states.RecordSuccess(sourceID, l.now()); err != nil {
			l.logger.Error("failed to record success", "source", sourceID, "error", err)
		}
		return
	}

	count, err := l.states.RecordFailure(sourceID)
	if err != nil {
		l.logger.Error("failed to record failure", "source", sourceID, "error", err)
		return
	}

	if count < DeactivateThreshold {
		return
	}

	changed, err := l.states.Deactivate(sourceID)
	if err != nil {
		l.logger.Error("failed to deactivate source", "source", sourceID, "error", err)
		return
	}
	if !changed {
		return
	}

	l.logger.Warn("deactivating source after repeated errors",
		"source", sourceID,
		"consecutive_errors", count,
	)
	if l.metrics != nil {
		l.metrics.RecordDeactivation(sourceID)
	}

	alert := domain.Alert{
		Recipients: l.recipients,
		Title:      fmt.Sprintf("Source %s deactivated", sourceID),
		Message:    "Deactivating source due to repeated errors.",
		Severity:   domain.SeverityHigh,
	}
	if err := l.alerter.Notify(ctx, alert); err != nil {
		l.logger.Error("failed to send deactivation alert", "source", sourceID, "error", err)
	}
}
