package quota

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-dispatch/internal/kvstore"
)

func newTestTracker(limit int, now time.Time) *Tracker {
	tr := NewTracker(kvstore.NewMemory(), limit, time.UTC)
	tr.now = func() time.Time { return now }
	return tr
}

func TestTracker_Additive(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(2000, time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC))

	_, err := tr.UpdateQuotaUsed(ctx, 50)
	require.NoError(t, err)
	state, err := tr.UpdateQuotaUsed(ctx, 20)
	require.NoError(t, err)

	assert.Equal(t, 70, state.EstimatedUsed)
	assert.Equal(t, 2000, state.DailyLimit)

	remaining, err := tr.Remaining(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1930, remaining)
}

func TestTracker_NonPositiveIsNoop(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(10, time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC))

	_, err := tr.UpdateQuotaUsed(ctx, 3)
	require.NoError(t, err)
	state, err := tr.UpdateQuotaUsed(ctx, -2)
	require.NoError(t, err)
	assert.Equal(t, 3, state.EstimatedUsed)
}

func TestTracker_Reset(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(2000, time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC))

	_, err := tr.UpdateQuotaUsed(ctx, 500)
	require.NoError(t, err)
	require.NoError(t, tr.ResetDailyQuota(ctx))

	state, err := tr.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, state.EstimatedUsed)
}

func TestTracker_RemainingNeverNegative(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(10, time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC))

	_, err := tr.UpdateQuotaUsed(ctx, 25)
	require.NoError(t, err)
	remaining, err := tr.Remaining(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)
}

func TestTracker_ImplicitDailyReset(t *testing.T) {
	ctx := context.Background()
	backend := kvstore.NewMemory()
	tr := NewTracker(backend, 2000, time.UTC)

	tr.now = func() time.Time { return time.Date(2026, 5, 4, 23, 30, 0, 0, time.UTC) }
	_, err := tr.UpdateQuotaUsed(ctx, 300)
	require.NoError(t, err)

	// Same day later: no reset
	tr.now = func() time.Time { return time.Date(2026, 5, 4, 23, 59, 0, 0, time.UTC) }
	state, err := tr.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, 300, state.EstimatedUsed)

	// Next day: reset
	tr.now = func() time.Time { return time.Date(2026, 5, 5, 0, 1, 0, 0, time.UTC) }
	state, err = tr.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, state.EstimatedUsed)
}

func TestTracker_DayBoundaryFollowsLocation(t *testing.T) {
	ctx := context.Background()
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	tr := NewTracker(kvstore.NewMemory(), 2000, ny)
	// 02:00 UTC on May 5 is still May 4 in New York
	tr.now = func() time.Time { return time.Date(2026, 5, 5, 2, 0, 0, 0, time.UTC) }
	_, err = tr.UpdateQuotaUsed(ctx, 40)
	require.NoError(t, err)

	tr.now = func() time.Time { return time.Date(2026, 5, 5, 3, 30, 0, 0, time.UTC) }
	state, err := tr.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, 40, state.EstimatedUsed)
}

func TestTracker_ConfiguredLimitWins(t *testing.T) {
	ctx := context.Background()
	backend := kvstore.NewMemory()
	now := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

	first := NewTracker(backend, 500, time.UTC)
	first.now = func() time.Time { return now }
	_, err := first.UpdateQuotaUsed(ctx, 10)
	require.NoError(t, err)

	second := NewTracker(backend, 1500, time.UTC)
	second.now = func() time.Time { return now }
	state, err := second.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1500, state.DailyLimit)
	assert.Equal(t, 10, state.EstimatedUsed)
}

func TestTracker_PersistsInRedis(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	tr := NewTracker(kvstore.NewRedis(client), 2000, time.UTC)
	_, err := tr.UpdateQuotaUsed(ctx, 5)
	require.NoError(t, err)
	assert.True(t, mr.Exists(Key))
}

type failingBackend struct{ kvstore.Backend }

func (failingBackend) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("backend down")
}

func TestTracker_BackendError(t *testing.T) {
	tr := NewTracker(failingBackend{kvstore.NewMemory()}, 10, time.UTC)
	_, err := tr.UpdateQuotaUsed(context.Background(), 1)
	assert.ErrorContains(t, err, "backend down")
}
