// Package quota keeps a running estimate of how many sends the provider
// account has used today.
package quota

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ignite/campaign-dispatch/internal/domain"
	"github.com/ignite/campaign-dispatch/internal/kvstore"
)

// Key is the backend key of the quota estimate.
const Key = "dispatch:quota"

// Tracker persists the daily usage estimate. Usage only grows until the day
// rolls over in the tracker's location or ResetDailyQuota is called.
type Tracker struct {
	backend    kvstore.Backend
	dailyLimit int
	loc        *time.Location
	now        func() time.Time

	mu sync.Mutex
}

// NewTracker creates a tracker. A nil location means UTC.
func NewTracker(backend kvstore.Backend, dailyLimit int, loc *time.Location) *Tracker {
	if loc == nil {
		loc = time.UTC
	}
	return &Tracker{
		backend:    backend,
		dailyLimit: dailyLimit,
		loc:        loc,
		now:        time.Now,
	}
}

// State returns the current estimate, applying the day rollover if needed.
func (t *Tracker) State(ctx context.Context) (domain.QuotaState, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.load(ctx)
}

// UpdateQuotaUsed adds n attempted sends to today's estimate.
func (t *Tracker) UpdateQuotaUsed(ctx context.Context, n int) (domain.QuotaState, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, err := t.load(ctx)
	if err != nil {
		return state, err
	}
	if n <= 0 {
		return state, nil
	}

	state.EstimatedUsed += n
	state.LastUpdated = t.now()
	if err := t.save(ctx, state); err != nil {
		return state, err
	}
	return state, nil
}

// ResetDailyQuota zeroes the estimate.
func (t *Tracker) ResetDailyQuota(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	log.Printf("[Quota] Daily quota reset")
	return t.save(ctx, domain.QuotaState{
		DailyLimit:  t.dailyLimit,
		LastUpdated: t.now(),
	})
}

// Remaining returns max(0, limit - used).
func (t *Tracker) Remaining(ctx context.Context) (int, error) {
	state, err := t.State(ctx)
	if err != nil {
		return 0, err
	}
	return state.EstimatedRemaining(), nil
}

func (t *Tracker) load(ctx context.Context) (domain.QuotaState, error) {
	state := domain.QuotaState{DailyLimit: t.dailyLimit}

	data, err := t.backend.Get(ctx, Key)
	if errors.Is(err, kvstore.ErrNotFound) {
		return state, nil
	}
	if err != nil {
		return state, fmt.Errorf("loading quota: %w", err)
	}
	if err := json.Unmarshal(data, &state); err != nil {
		log.Printf("[Quota] Ignoring unreadable quota state: %v", err)
		return domain.QuotaState{DailyLimit: t.dailyLimit}, nil
	}

	// The configured limit wins over whatever was stored
	state.DailyLimit = t.dailyLimit

	if !state.LastUpdated.IsZero() && t.dayOf(state.LastUpdated).Before(t.dayOf(t.now())) {
		log.Printf("[Quota] New day, resetting estimate (was %d)", state.EstimatedUsed)
		state = domain.QuotaState{DailyLimit: t.dailyLimit, LastUpdated: t.now()}
		if err := t.save(ctx, state); err != nil {
			return state, err
		}
	}
	return state, nil
}

func (t *Tracker) save(ctx context.Context, state domain.QuotaState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshaling quota: %w", err)
	}
	if err := t.backend.Set(ctx, Key, data); err != nil {
		return fmt.Errorf("saving quota: %w", err)
	}
	return nil
}

// dayOf truncates ts to midnight in the tracker's location.
func (t *Tracker) dayOf(ts time.Time) time.Time {
	local := ts.In(t.loc)
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.loc)
}
