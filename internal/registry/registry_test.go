package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regsync/internal/domain"
)

func newSource(id string, priority domain.Priority, region string, status domain.SourceStatus) domain.DataSource {
	return domain.DataSource{
		ID:       id,
		Name:     id,
		Kind:     domain.SourceKindOfficialAPI,
		Endpoint: "https://example.com/" + id,
		Priority: priority,
		Region:   region,
		Status:   status,
	}
}

func TestRegister_Duplicate(t *testing.T) {
	r := New()

	err := r.Register(newSource("a", domain.PriorityHigh, "EU", domain.SourceStatusActive))
	require.NoError(t, err)

	err = r.Register(newSource("a", domain.PriorityLow, "US", domain.SourceStatusActive))
	require.ErrorIs(t, err, ErrDuplicateSource)
}

func TestGet_NotFound(t *testing.T) {
	r := New()

	_, err := r.Get("missing")
	require.ErrorIs(t, err, ErrSourceNotFound)
}

func TestRegister_ZeroesRuntimeState(t *testing.T) {
	r := New()

	src := newSource("a", domain.PriorityHigh, "EU", domain.SourceStatusActive)
	src.ConsecutiveErrors = 3
	src.LastSyncedAt = time.Now()
	require.NoError(t, r.Register(src))

	got, err := r.Get("a")
	require.NoError(t, err)
	assert.Zero(t, got.ConsecutiveErrors)
	assert.True(t, got.LastSyncedAt.IsZero())
}

func TestListActive_PriorityOrder(t *testing.T) {
	r := New()

	// Registered out of priority order; within the same tier
	// registration order must be preserved.
	require.NoError(t, r.Register(newSource("low-1", domain.PriorityLow, "EU", domain.SourceStatusActive)))
	require.NoError(t, r.Register(newSource("med-1", domain.PriorityMedium, "EU", domain.SourceStatusActive)))
	require.NoError(t, r.Register(newSource("high-1", domain.PriorityHigh, "EU", domain.SourceStatusActive)))
	require.NoError(t, r.Register(newSource("med-2", domain.PriorityMedium, "EU", domain.SourceStatusActive)))
	require.NoError(t, r.Register(newSource("inactive", domain.PriorityHigh, "EU", domain.SourceStatusInactive)))

	active := r.ListActive()

	ids := make([]string, len(active))
	for i, s := range active {
		ids[i] = s.ID
	}
	assert.Equal(t, []string{"high-1", "med-1", "med-2", "low-1"}, ids)
}

func TestListByRegion_AnyStatus(t *testing.T) {
	r := New()

	require.NoError(t, r.Register(newSource("eu-1", domain.PriorityLow, "EU", domain.SourceStatusActive)))
	require.NoError(t, r.Register(newSource("us-1", domain.PriorityHigh, "US", domain.SourceStatusActive)))
	require.NoError(t, r.Register(newSource("eu-2", domain.PriorityHigh, "EU", domain.SourceStatusInactive)))

	eu := r.ListByRegion("EU")

	ids := make([]string, len(eu))
	for i, s := range eu {
		ids[i] = s.ID
	}
	assert.Equal(t, []string{"eu-2", "eu-1"}, ids)
}

func TestRecordFailure_IncrementsCount(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(newSource("a", domain.PriorityHigh, "EU", domain.SourceStatusActive)))

	count, err := r.RecordFailure("a")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = r.RecordFailure("a")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRecordSuccess_ResetsCount(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(newSource("a", domain.PriorityHigh, "EU", domain.SourceStatusActive)))

	_, err := r.RecordFailure("a")
	require.NoError(t, err)

	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, r.RecordSuccess("a", at))

	got, err := r.Get("a")
	require.NoError(t, err)
	assert.Zero(t, got.ConsecutiveErrors)
	assert.Equal(t, at, got.LastSyncedAt)
}

func TestDeactivate_ReportsChange(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(newSource("a", domain.PriorityHigh, "EU", domain.SourceStatusActive)))

	changed, err := r.Deactivate("a")
	require.NoError(t, err)
	assert.True(t, changed)

	// Second deactivation is a no-op.
	changed, err = r.Deactivate("a")
	require.NoError(t, err)
	assert.False(t, changed)

	got, err := r.Get("a")
	require.NoError(t, err)
	assert.Equal(t, domain.SourceStatusInactive, got.Status)
}

func TestActivate_ClearsErrors(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(newSource("a", domain.PriorityHigh, "EU", domain.SourceStatusActive)))

	_, err := r.RecordFailure("a")
	require.NoError(t, err)
	_, err = r.Deactivate("a")
	require.NoError(t, err)

	require.NoError(t, r.Activate("a"))

	got, err := r.Get("a")
	require.NoError(t, err)
	assert.Equal(t, domain.SourceStatusActive, got.Status)
	assert.Zero(t, got.ConsecutiveErrors)
}

func TestMutations_UnknownSource(t *testing.T) {
	r := New()

	_, err := r.RecordFailure("missing")
	assert.ErrorIs(t, err, ErrSourceNotFound)

	err = r.RecordSuccess("missing", time.Now())
	assert.ErrorIs(t, err, ErrSourceNotFound)

	_, err = r.Deactivate("missing")
	assert.ErrorIs(t, err, ErrSourceNotFound)

	err = r.Activate("missing")
	assert.ErrorIs(t, err, ErrSourceNotFound)
}
