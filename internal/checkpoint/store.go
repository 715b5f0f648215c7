// Package checkpoint persists the progress snapshot of the active campaign so
// an interrupted run can be resumed without re-sending anyone.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ignite/campaign-dispatch/internal/domain"
	"github.com/ignite/campaign-dispatch/internal/kvstore"
)

// ErrNoCheckpoint is returned by Load and Info when nothing resumable is stored.
var ErrNoCheckpoint = errors.New("no resumable checkpoint")

// KeyPrefix prefixes the per-session checkpoint key.
const KeyPrefix = "dispatch:checkpoint:"

// Store reads and writes the single checkpoint of one dispatch session.
type Store struct {
	backend kvstore.Backend
	key     string
	now     func() time.Time
}

// NewStore creates a checkpoint store for sessionID.
func NewStore(backend kvstore.Backend, sessionID string) *Store {
	if sessionID == "" {
		sessionID = "default"
	}
	return &Store{
		backend: backend,
		key:     KeyPrefix + sessionID,
		now:     time.Now,
	}
}

// Key returns the backend key this store writes to.
func (s *Store) Key() string { return s.key }

// Save overwrites the stored snapshot. SentIndices is deduplicated in place
// and UpdatedAt is stamped.
func (s *Store) Save(ctx context.Context, cp *domain.Checkpoint) error {
	if cp == nil {
		return errors.New("checkpoint is nil")
	}
	cp.SentIndices = dedupe(cp.SentIndices)
	cp.UpdatedAt = s.now().UTC()
	if cp.StartedAt.IsZero() {
		cp.StartedAt = cp.UpdatedAt
	}

	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshaling checkpoint: %w", err)
	}
	if err := s.backend.Set(ctx, s.key, data); err != nil {
		return fmt.Errorf("saving checkpoint: %w", err)
	}
	return nil
}

// Load returns the stored snapshot if its status is running or paused.
// Anything else, including a missing key, yields ErrNoCheckpoint.
func (s *Store) Load(ctx context.Context) (*domain.Checkpoint, error) {
	data, err := s.backend.Get(ctx, s.key)
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, ErrNoCheckpoint
	}
	if err != nil {
		return nil, fmt.Errorf("loading checkpoint: %w", err)
	}

	var cp domain.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		log.Printf("[Checkpoint] Discarding unreadable checkpoint %s: %v", s.key, err)
		return nil, ErrNoCheckpoint
	}
	if !cp.Resumable() {
		return nil, ErrNoCheckpoint
	}

	// Drop anything outside the recipient range so pending math stays sane
	total := len(cp.Campaign.Recipients)
	valid := cp.SentIndices[:0]
	for _, idx := range dedupe(cp.SentIndices) {
		if idx >= 0 && idx < total {
			valid = append(valid, idx)
		}
	}
	cp.SentIndices = valid

	return &cp, nil
}

// Clear removes the stored snapshot.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.backend.Remove(ctx, s.key); err != nil {
		return fmt.Errorf("clearing checkpoint: %w", err)
	}
	return nil
}

// Info summarizes the resumable snapshot, if any.
func (s *Store) Info(ctx context.Context) (*domain.SavedCampaignInfo, error) {
	cp, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	total := len(cp.Campaign.Recipients)
	return &domain.SavedCampaignInfo{
		CampaignID: cp.CampaignID,
		Subject:    cp.Campaign.SubjectTemplate,
		Remaining:  total - len(cp.SentIndices),
		Total:      total,
		Status:     cp.Status,
		StartedAt:  cp.StartedAt,
	}, nil
}

// dedupe keeps the first occurrence of each index, preserving order.
func dedupe(indices []int) []int {
	if len(indices) == 0 {
		return []int{}
	}
	seen := make(map[int]struct{}, len(indices))
	out := make([]int, 0, len(indices))
	for _, idx := range indices {
		if _, ok := seen[idx]; ok {
			continue
		}
		seen[idx] = struct{}{}
		out = append(out, idx)
	}
	return out
}
