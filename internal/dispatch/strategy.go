package dispatch

import (
	"time"

	"github.com/ignite/campaign-dispatch/internal/config"
	"github.com/ignite/campaign-dispatch/internal/domain"
)

// Tuning holds the tier thresholds, widths and delays of the engine.
type Tuning struct {
	DirectMaxRecipients  int
	BatchedMaxRecipients int
	BatchWidth           int
	AttachmentBatchWidth int
	ChunkSize            int

	DirectDelay          time.Duration
	BatchDelay           time.Duration
	AttachmentBatchDelay time.Duration
	ChunkDelay           time.Duration

	MaxAttempts int
	RetryDelay  time.Duration

	TokenCheckInterval int
	MaxMessageBytes    int64
}

// DefaultTuning returns the stock tier constants.
func DefaultTuning() Tuning {
	return Tuning{
		DirectMaxRecipients:  5,
		BatchedMaxRecipients: 100,
		BatchWidth:           6,
		AttachmentBatchWidth: 3,
		ChunkSize:            50,
		DirectDelay:          time.Second,
		BatchDelay:           time.Second,
		AttachmentBatchDelay: 4 * time.Second,
		ChunkDelay:           2 * time.Second,
		MaxAttempts:          3,
		RetryDelay:           2 * time.Second,
		TokenCheckInterval:   10,
		MaxMessageBytes:      25 << 20,
	}
}

// TuningFromConfig maps the dispatch config section, keeping defaults for
// anything unset.
func TuningFromConfig(c config.DispatchConfig) Tuning {
	t := DefaultTuning()
	setInt(&t.DirectMaxRecipients, c.DirectMaxRecipients)
	setInt(&t.BatchedMaxRecipients, c.BatchedMaxRecipients)
	setInt(&t.BatchWidth, c.BatchWidth)
	setInt(&t.AttachmentBatchWidth, c.AttachmentBatchWidth)
	setInt(&t.ChunkSize, c.ChunkSize)
	setInt(&t.MaxAttempts, c.MaxAttempts)
	setInt(&t.TokenCheckInterval, c.TokenCheckInterval)
	setDuration(&t.DirectDelay, c.DirectDelayMS)
	setDuration(&t.BatchDelay, c.BatchDelayMS)
	setDuration(&t.AttachmentBatchDelay, c.AttachmentBatchDelayMS)
	setDuration(&t.ChunkDelay, c.ChunkDelayMS)
	setDuration(&t.RetryDelay, c.RetryDelayMS)
	if c.MaxMessageBytes > 0 {
		t.MaxMessageBytes = c.MaxMessageBytes
	}
	return t
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, ms int) {
	if ms > 0 {
		*dst = config.Millis(ms)
	}
}

// Plan is the execution shape chosen for a campaign.
type Plan struct {
	Strategy    domain.Strategy
	GroupSize   int
	Concurrency int
	Delay       time.Duration
}

// SelectStrategy picks the tier for n recipients using the stock constants.
func SelectStrategy(n int, hasAttachments bool) Plan {
	return DefaultTuning().SelectStrategy(n, hasAttachments)
}

// SelectStrategy picks the tier for n recipients. Attachments only narrow
// the batched width and lengthen its delay; they never change the tier.
func (t Tuning) SelectStrategy(n int, hasAttachments bool) Plan {
	switch {
	case n <= t.DirectMaxRecipients:
		return t.DirectPlan()
	case n <= t.BatchedMaxRecipients:
		if hasAttachments {
			return Plan{
				Strategy:    domain.StrategyBatched,
				GroupSize:   t.AttachmentBatchWidth,
				Concurrency: t.AttachmentBatchWidth,
				Delay:       t.AttachmentBatchDelay,
			}
		}
		return Plan{
			Strategy:    domain.StrategyBatched,
			GroupSize:   t.BatchWidth,
			Concurrency: t.BatchWidth,
			Delay:       t.BatchDelay,
		}
	default:
		width := t.BatchWidth
		if hasAttachments {
			width = t.AttachmentBatchWidth
		}
		return Plan{
			Strategy:    domain.StrategyChunked,
			GroupSize:   t.ChunkSize,
			Concurrency: width,
			Delay:       t.ChunkDelay,
		}
	}
}

// DirectPlan is the sequential one-at-a-time plan.
func (t Tuning) DirectPlan() Plan {
	return Plan{
		Strategy:    domain.StrategyDirect,
		GroupSize:   1,
		Concurrency: 1,
		Delay:       t.DirectDelay,
	}
}

// Partition splits the pending index list into consecutive groups. Groups
// are half-open ranges over pending, not over the recipient list.
func Partition(pending []int, groupSize int) []domain.ChunkGroup {
	if groupSize <= 0 {
		groupSize = 1
	}
	groups := make([]domain.ChunkGroup, 0, (len(pending)+groupSize-1)/groupSize)
	for start := 0; start < len(pending); start += groupSize {
		end := start + groupSize
		if end > len(pending) {
			end = len(pending)
		}
		groups = append(groups, domain.ChunkGroup{Start: start, End: end})
	}
	return groups
}

// PendingIndices returns every index in [0,total) not in sent, in order.
func PendingIndices(total int, sent []int) []int {
	done := make(map[int]struct{}, len(sent))
	for _, idx := range sent {
		done[idx] = struct{}{}
	}
	capacity := total - len(done)
	if capacity < 0 {
		capacity = 0
	}
	pending := make([]int, 0, capacity)
	for i := 0; i < total; i++ {
		if _, ok := done[i]; !ok {
			pending = append(pending, i)
		}
	}
	return pending
}
