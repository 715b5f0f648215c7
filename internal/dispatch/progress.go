package dispatch

import (
	"math"
	"sync"
	"time"

	"github.com/ignite/campaign-dispatch/internal/domain"
)

// Reporter tracks live progress of one execution and fans it out to the
// caller's callbacks. Percentage never decreases within an execution.
type Reporter struct {
	// cbMu serializes update+callback so observers see ticks in order
	cbMu sync.Mutex

	mu         sync.RWMutex
	total      int
	current    int
	baseline   int
	percentage int
	statusText string
	startedAt  time.Time
	statuses   []domain.SendStatus
	now        func() time.Time

	onProgress func(domain.Progress)
	onResult   func(domain.SendStatus)
}

func newReporter(c *domain.Campaign, prior map[int]domain.SendResult, now func() time.Time, opts Options) *Reporter {
	statuses := make([]domain.SendStatus, len(c.Recipients))
	done := 0
	for i, rec := range c.Recipients {
		statuses[i] = domain.SendStatus{Index: i, Address: rec.Address, Status: domain.SendPending}
		if res, ok := prior[i]; ok {
			statuses[i].Status = stateFor(res.Outcome)
			statuses[i].Error = res.Error
			done++
		}
	}

	r := &Reporter{
		total:      len(c.Recipients),
		current:    done,
		baseline:   done,
		startedAt:  now(),
		statuses:   statuses,
		now:        now,
		onProgress: opts.OnProgress,
		onResult:   opts.OnEmailResult,
	}
	r.percentage = r.computePercentage()
	return r
}

func stateFor(o domain.Outcome) domain.SendState {
	switch o {
	case domain.OutcomeSuccess:
		return domain.SendSuccess
	case domain.OutcomeError:
		return domain.SendError
	case domain.OutcomeSkipped:
		return domain.SendSkipped
	}
	return domain.SendPending
}

func (r *Reporter) computePercentage() int {
	if r.total == 0 {
		return 100
	}
	pct := int(math.Round(float64(r.current) / float64(r.total) * 100))
	if pct > 100 {
		pct = 100
	}
	if pct < r.percentage {
		pct = r.percentage
	}
	return pct
}

// snapshotLocked builds the Progress view. Caller holds mu.
func (r *Reporter) snapshotLocked() domain.Progress {
	p := domain.Progress{
		Current:    r.current,
		Total:      r.total,
		Percentage: r.percentage,
		StatusText: r.statusText,
	}
	doneThisRun := r.current - r.baseline
	if doneThisRun > 0 {
		elapsed := r.now().Sub(r.startedAt)
		rate := float64(doneThisRun) / elapsed.Seconds()
		if rate > 0 && !math.IsInf(rate, 0) {
			eta := time.Duration(float64(r.total-r.current) / rate * float64(time.Second))
			p.ETA = &eta
		}
	}
	return p
}

// SetStatus updates the status text and emits a tick.
func (r *Reporter) SetStatus(text string) {
	r.cbMu.Lock()
	defer r.cbMu.Unlock()

	r.mu.Lock()
	r.statusText = text
	snap := r.snapshotLocked()
	r.mu.Unlock()

	if r.onProgress != nil {
		r.onProgress(snap)
	}
}

// ItemStarted marks a recipient as in flight.
func (r *Reporter) ItemStarted(idx int) {
	r.mu.Lock()
	if idx >= 0 && idx < len(r.statuses) {
		r.statuses[idx].Status = domain.SendSending
	}
	r.mu.Unlock()
}

// ItemDone records a terminal outcome and emits a tick.
func (r *Reporter) ItemDone(res domain.SendResult) {
	r.cbMu.Lock()
	defer r.cbMu.Unlock()

	r.mu.Lock()
	var status domain.SendStatus
	if res.Index >= 0 && res.Index < len(r.statuses) {
		if r.statuses[res.Index].Status == domain.SendPending || r.statuses[res.Index].Status == domain.SendSending {
			r.current++
		}
		r.statuses[res.Index].Status = stateFor(res.Outcome)
		r.statuses[res.Index].Error = res.Error
		status = r.statuses[res.Index]
	}
	r.percentage = r.computePercentage()
	snap := r.snapshotLocked()
	r.mu.Unlock()

	if r.onResult != nil {
		r.onResult(status)
	}
	if r.onProgress != nil {
		r.onProgress(snap)
	}
}

// ItemReset returns an in-flight recipient to pending, used when a run
// stops before the item reached a terminal outcome.
func (r *Reporter) ItemReset(idx int) {
	r.mu.Lock()
	if idx >= 0 && idx < len(r.statuses) && r.statuses[idx].Status == domain.SendSending {
		r.statuses[idx].Status = domain.SendPending
	}
	r.mu.Unlock()
}

// Snapshot returns the current progress.
func (r *Reporter) Snapshot() domain.Progress {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

// Statuses returns a copy of the per-recipient statuses.
func (r *Reporter) Statuses() []domain.SendStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.SendStatus, len(r.statuses))
	copy(out, r.statuses)
	return out
}
