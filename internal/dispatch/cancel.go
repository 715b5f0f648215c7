package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"
)

// errStopped is returned by wait when the token fired during the delay.
var errStopped = errors.New("dispatch stopped")

// CancellationToken is a one-shot cooperative stop signal. The engine checks
// it at every suspension point; it never aborts a call already in flight.
type CancellationToken struct {
	once   sync.Once
	done   chan struct{}
	mu     sync.RWMutex
	reason string
}

// NewCancellationToken creates an untriggered token.
func NewCancellationToken() *CancellationToken {
	return &CancellationToken{done: make(chan struct{})}
}

// Cancel fires the token. Only the first reason is kept.
func (t *CancellationToken) Cancel(reason string) {
	t.once.Do(func() {
		t.mu.Lock()
		t.reason = reason
		t.mu.Unlock()
		close(t.done)
	})
}

// Cancelled reports whether Cancel has been called.
func (t *CancellationToken) Cancelled() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Done is closed when the token fires.
func (t *CancellationToken) Done() <-chan struct{} { return t.done }

// Reason returns the reason given to Cancel.
func (t *CancellationToken) Reason() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.reason
}

// Sleeper suspends for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// waitOrStop sleeps through sleep, returning errStopped as soon as the
// token fires.
func waitOrStop(ctx context.Context, tok *CancellationToken, sleep Sleeper, d time.Duration) error {
	if tok.Cancelled() {
		return errStopped
	}

	sctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-tok.Done():
			cancel()
		case <-sctx.Done():
		}
	}()

	err := sleep(sctx, d)
	if tok.Cancelled() {
		return errStopped
	}
	return err
}
