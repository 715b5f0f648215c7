package checkpoint

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-dispatch/internal/domain"
	"github.com/ignite/campaign-dispatch/internal/kvstore"
)

func testCampaign(n int) domain.Campaign {
	recipients := make([]domain.Recipient, n)
	for i := range recipients {
		recipients[i] = domain.Recipient{Address: "user" + string(rune('a'+i)) + "@example.com"}
	}
	return domain.Campaign{
		ID:              "camp-1",
		SubjectTemplate: "Spring update",
		BodyTemplate:    "<p>Hello</p>",
		Recipients:      recipients,
	}
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewStore(kvstore.NewMemory(), "ops")
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	cp := &domain.Checkpoint{
		CampaignID:  "camp-1",
		SentIndices: []int{0, 2, 2, 1},
		Status:      domain.CampaignRunning,
		Campaign:    testCampaign(5),
	}
	require.NoError(t, store.Save(ctx, cp))
	assert.Equal(t, []int{0, 2, 1}, cp.SentIndices)
	assert.Equal(t, fixed, cp.UpdatedAt)
	assert.Equal(t, fixed, cp.StartedAt)

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "camp-1", loaded.CampaignID)
	assert.Equal(t, []int{0, 2, 1}, loaded.SentIndices)
	assert.Len(t, loaded.Campaign.Recipients, 5)
	assert.Equal(t, "dispatch:checkpoint:ops", store.Key())
}

func TestStore_LoadIgnoresTerminalStatuses(t *testing.T) {
	ctx := context.Background()
	for _, status := range []domain.CampaignStatus{domain.CampaignCompleted, domain.CampaignIdle, domain.CampaignError} {
		store := NewStore(kvstore.NewMemory(), "")
		require.NoError(t, store.Save(ctx, &domain.Checkpoint{CampaignID: "c", Status: status, Campaign: testCampaign(1)}))

		_, err := store.Load(ctx)
		assert.ErrorIs(t, err, ErrNoCheckpoint, "status %s", status)
	}
}

func TestStore_LoadPaused(t *testing.T) {
	ctx := context.Background()
	store := NewStore(kvstore.NewMemory(), "")
	require.NoError(t, store.Save(ctx, &domain.Checkpoint{CampaignID: "c", Status: domain.CampaignPaused, Campaign: testCampaign(2)}))

	cp, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.CampaignPaused, cp.Status)
}

func TestStore_LoadMissing(t *testing.T) {
	_, err := NewStore(kvstore.NewMemory(), "").Load(context.Background())
	assert.ErrorIs(t, err, ErrNoCheckpoint)
}

func TestStore_LoadCorrupt(t *testing.T) {
	ctx := context.Background()
	backend := kvstore.NewMemory()
	require.NoError(t, backend.Set(ctx, "dispatch:checkpoint:default", []byte("{not json")))

	_, err := NewStore(backend, "default").Load(ctx)
	assert.ErrorIs(t, err, ErrNoCheckpoint)
}

func TestStore_LoadDropsOutOfRangeIndices(t *testing.T) {
	ctx := context.Background()
	store := NewStore(kvstore.NewMemory(), "")
	require.NoError(t, store.Save(ctx, &domain.Checkpoint{
		CampaignID:  "c",
		SentIndices: []int{-1, 0, 3, 7},
		Status:      domain.CampaignRunning,
		Campaign:    testCampaign(4),
	}))

	cp, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 3}, cp.SentIndices)
}

func TestStore_Clear(t *testing.T) {
	ctx := context.Background()
	store := NewStore(kvstore.NewMemory(), "")
	require.NoError(t, store.Save(ctx, &domain.Checkpoint{CampaignID: "c", Status: domain.CampaignRunning, Campaign: testCampaign(1)}))
	require.NoError(t, store.Clear(ctx))

	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, ErrNoCheckpoint)
}

func TestStore_Info(t *testing.T) {
	ctx := context.Background()
	store := NewStore(kvstore.NewMemory(), "")
	require.NoError(t, store.Save(ctx, &domain.Checkpoint{
		CampaignID:  "camp-1",
		SentIndices: []int{0, 1, 2},
		Status:      domain.CampaignPaused,
		Campaign:    testCampaign(10),
	}))

	info, err := store.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, "camp-1", info.CampaignID)
	assert.Equal(t, "Spring update", info.Subject)
	assert.Equal(t, 7, info.Remaining)
	assert.Equal(t, 10, info.Total)
	assert.Equal(t, domain.CampaignPaused, info.Status)
}

func TestStore_SessionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	backend := kvstore.NewMemory()
	a := NewStore(backend, "a")
	b := NewStore(backend, "b")

	require.NoError(t, a.Save(ctx, &domain.Checkpoint{CampaignID: "ca", Status: domain.CampaignRunning, Campaign: testCampaign(1)}))

	_, err := b.Load(ctx)
	assert.ErrorIs(t, err, ErrNoCheckpoint)
}
