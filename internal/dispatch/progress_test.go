package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-dispatch/internal/domain"
)

func campaignOf(n int) *domain.Campaign {
	c := &domain.Campaign{ID: "c"}
	for i := 0; i < n; i++ {
		c.Recipients = append(c.Recipients, domain.Recipient{Address: "r@example.com"})
	}
	return c
}

func TestReporter_PercentageAndETA(t *testing.T) {
	start := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	now := start
	clock := func() time.Time { return now }

	var ticks []domain.Progress
	rep := newReporter(campaignOf(4), nil, clock, Options{
		OnProgress: func(p domain.Progress) { ticks = append(ticks, p) },
	})

	snap := rep.Snapshot()
	assert.Equal(t, 0, snap.Percentage)
	assert.Nil(t, snap.ETA)

	now = start.Add(10 * time.Second)
	rep.ItemDone(domain.SendResult{Index: 0, Outcome: domain.OutcomeSuccess})

	snap = rep.Snapshot()
	assert.Equal(t, 1, snap.Current)
	assert.Equal(t, 25, snap.Percentage)
	require.NotNil(t, snap.ETA)
	// 3 remaining at 0.1/s
	assert.InDelta(t, float64(30*time.Second), float64(*snap.ETA), float64(time.Millisecond))

	rep.ItemDone(domain.SendResult{Index: 1, Outcome: domain.OutcomeError, Error: "bounced"})
	rep.ItemDone(domain.SendResult{Index: 2, Outcome: domain.OutcomeSkipped})
	rep.ItemDone(domain.SendResult{Index: 3, Outcome: domain.OutcomeSuccess})
	assert.Equal(t, 100, rep.Snapshot().Percentage)

	require.Len(t, ticks, 4)
	statuses := rep.Statuses()
	assert.Equal(t, domain.SendError, statuses[1].Status)
	assert.Equal(t, "bounced", statuses[1].Error)
	assert.Equal(t, domain.SendSkipped, statuses[2].Status)
}

func TestReporter_DuplicateResultDoesNotDoubleCount(t *testing.T) {
	rep := newReporter(campaignOf(2), nil, time.Now, Options{})
	rep.ItemDone(domain.SendResult{Index: 0, Outcome: domain.OutcomeError})
	rep.ItemDone(domain.SendResult{Index: 0, Outcome: domain.OutcomeSuccess})
	assert.Equal(t, 1, rep.Snapshot().Current)
	assert.Equal(t, domain.SendSuccess, rep.Statuses()[0].Status)
}

func TestReporter_ResumeBaseline(t *testing.T) {
	prior := map[int]domain.SendResult{
		0: {Index: 0, Outcome: domain.OutcomeSuccess},
		1: {Index: 1, Outcome: domain.OutcomeSuccess},
	}
	rep := newReporter(campaignOf(4), prior, time.Now, Options{})
	snap := rep.Snapshot()
	assert.Equal(t, 2, snap.Current)
	assert.Equal(t, 50, snap.Percentage)
	assert.Nil(t, snap.ETA, "no rate until this run sends something")
}

func TestReporter_ItemStartedAndReset(t *testing.T) {
	rep := newReporter(campaignOf(1), nil, time.Now, Options{})
	rep.ItemStarted(0)
	assert.Equal(t, domain.SendSending, rep.Statuses()[0].Status)
	rep.ItemReset(0)
	assert.Equal(t, domain.SendPending, rep.Statuses()[0].Status)
}

func TestReporter_ConcurrentTicksStayOrdered(t *testing.T) {
	var (
		mu   sync.Mutex
		pcts []int
	)
	rep := newReporter(campaignOf(200), nil, time.Now, Options{
		OnProgress: func(p domain.Progress) {
			mu.Lock()
			pcts = append(pcts, p.Percentage)
			mu.Unlock()
		},
	})

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rep.ItemDone(domain.SendResult{Index: i, Outcome: domain.OutcomeSuccess})
		}()
	}
	wg.Wait()

	for i := 1; i < len(pcts); i++ {
		assert.GreaterOrEqual(t, pcts[i], pcts[i-1])
	}
	assert.Equal(t, 100, pcts[len(pcts)-1])
}

func TestCancellationToken(t *testing.T) {
	tok := NewCancellationToken()
	assert.False(t, tok.Cancelled())

	tok.Cancel("paused")
	tok.Cancel("stopped")
	assert.True(t, tok.Cancelled())
	assert.Equal(t, "paused", tok.Reason())

	select {
	case <-tok.Done():
	default:
		t.Fatal("Done should be closed")
	}
}

func TestWaitOrStop(t *testing.T) {
	tok := NewCancellationToken()
	go func() {
		time.Sleep(10 * time.Millisecond)
		tok.Cancel("stopped")
	}()

	start := time.Now()
	err := waitOrStop(context.Background(), tok, sleepContext, time.Minute)
	assert.ErrorIs(t, err, errStopped)
	assert.Less(t, time.Since(start), 5*time.Second)

	// Already cancelled never sleeps
	err = waitOrStop(context.Background(), tok, func(context.Context, time.Duration) error {
		t.Fatal("sleeper should not run")
		return nil
	}, time.Second)
	assert.ErrorIs(t, err, errStopped)
}

func TestWaitOrStop_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := waitOrStop(ctx, NewCancellationToken(), sleepContext, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}
