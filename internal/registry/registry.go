// Package registry holds the authoritative in-memory set of configured
// data sources and their runtime state.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"regsync/internal/domain"
)

var (
	ErrDuplicateSource = errors.New("source already registered")
	ErrSourceNotFound  = errors.New("source not found")
)

// Registry is safe for concurrent use. Sources are registered at
// startup from configuration and never removed at runtime; only their
// runtime state (status, error count, last sync) changes afterwards.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]*domain.DataSource
	order   []string // registration order, tie-breaker for priority sorting
}

func New() *Registry {
	return &Registry{
		sources: make(map[string]*domain.DataSource),
	}
}

// Register adds a source. The source's runtime fields are zeroed.
func (r *Registry) Register(src domain.DataSource) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sources[src.ID]; ok {
		return fmt.Errorf("register %q: %w", src.ID, ErrDuplicateSource)
	}

	src.ConsecutiveErrors = 0
	src.LastSyncedAt = time.Time{}

	s := src
	r.sources[src.ID] = &s
	r.order = append(r.order, src.ID)
	return nil
}

// Get returns a copy of the source.
func (r *Registry) Get(id string) (domain.DataSource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	src, ok := r.sources[id]
	if !ok {
		return domain.DataSource{}, fmt.Errorf("get %q: %w", id, ErrSourceNotFound)
	}
	return *src, nil
}

// ListActive returns all active sources ordered by priority
// (high, medium, low), ties broken by registration order.
func (r *Registry) ListActive() []domain.DataSource {
	return r.list(func(s *domain.DataSource) bool {
		return s.Status == domain.SourceStatusActive
	})
}

// ListAll returns every registered source in priority order.
func (r *Registry) ListAll() []domain.DataSource {
	return r.list(func(*domain.DataSource) bool { return true })
}

// ListByRegion returns sources of any status matching the region label.
func (r *Registry) ListByRegion(region string) []domain.DataSource {
	return r.list(func(s *domain.DataSource) bool {
		return s.Region == region
	})
}

func (r *Registry) list(keep func(*domain.DataSource) bool) []domain.DataSource {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.DataSource, 0, len(r.order))
	for _, id := range r.order {
		if src := r.sources[id]; keep(src) {
			out = append(out, *src)
		}
	}

	// Registration order is preserved within a priority tier.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority.Rank() < out[j].Priority.Rank()
	})
	return out
}

// RecordSuccess resets the consecutive-error count and stamps the last
// successful sync time.
func (r *Registry) RecordSuccess(id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	src, ok := r.sources[id]
	if !ok {
		return fmt.Errorf("record success %q: %w", id, ErrSourceNotFound)
	}
	src.ConsecutiveErrors = 0
	src.LastSyncedAt = at
	return nil
}

// RecordFailure increments the consecutive-error count and returns the
// new count.
func (r *Registry) RecordFailure(id string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	src, ok := r.sources[id]
	if !ok {
		return 0, fmt.Errorf("record failure %q: %w", id, ErrSourceNotFound)
	}
	src.ConsecutiveErrors++
	return src.ConsecutiveErrors, nil
}

// Deactivate sets the source status to inactive. It reports whether the
// status actually changed, so callers can emit the deactivation alert
// exactly once.
func (r *Registry) Deactivate(id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	src, ok := r.sources[id]
	if !ok {
		return false, fmt.Errorf("deactivate %q: %w", id, ErrSourceNotFound)
	}
	if src.Status == domain.SourceStatusInactive {
		return false, nil
	}
	src.Status = domain.SourceStatusInactive
	return true, nil
}

// Activate returns a source to active status and clears its error
// count. Reactivation is an explicit operator action.
func (r *Registry) Activate(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	src, ok := r.sources[id]
	if !ok {
		return fmt.Errorf("activate %q: %w", id, ErrSourceNotFound)
	}
	src.Status = domain.SourceStatusActive
	src.ConsecutiveErrors = 0
	return nil
}
