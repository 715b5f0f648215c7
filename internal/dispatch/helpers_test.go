package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-dispatch/internal/checkpoint"
	"github.com/ignite/campaign-dispatch/internal/domain"
	"github.com/ignite/campaign-dispatch/internal/kvstore"
	"github.com/ignite/campaign-dispatch/internal/quota"
	"github.com/ignite/campaign-dispatch/internal/token"
	"github.com/ignite/campaign-dispatch/internal/transport"
)

// mockTransport records every send. script gives per-address errors by
// attempt number; always fails an address on every attempt.
type mockTransport struct {
	mu       sync.Mutex
	messages []transport.Message
	creds    []string
	attempts map[string]int
	script   map[string][]error
	always   map[string]error
	onSend   func(msg *transport.Message)
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		attempts: make(map[string]int),
		script:   make(map[string][]error),
		always:   make(map[string]error),
	}
}

func (m *mockTransport) Send(_ context.Context, credential string, msg *transport.Message) (string, error) {
	m.mu.Lock()
	m.messages = append(m.messages, *msg)
	m.creds = append(m.creds, credential)
	n := m.attempts[msg.To]
	m.attempts[msg.To] = n + 1
	var err error
	if e, ok := m.always[msg.To]; ok {
		err = e
	} else if seq := m.script[msg.To]; n < len(seq) {
		err = seq[n]
	}
	hook := m.onSend
	m.mu.Unlock()

	if hook != nil {
		hook(msg)
	}
	if err != nil {
		return "", err
	}
	return "msg-" + msg.To, nil
}

func (m *mockTransport) sentTo() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.messages))
	for i, msg := range m.messages {
		out[i] = msg.To
	}
	return out
}

func (m *mockTransport) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

func (m *mockTransport) fix(addr string) {
	m.mu.Lock()
	delete(m.always, addr)
	delete(m.script, addr)
	m.mu.Unlock()
}

// sleepRecorder returns immediately and records requested delays.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

func (s *sleepRecorder) count(d time.Duration) int {
	n := 0
	for _, got := range s.recorded() {
		if got == d {
			n++
		}
	}
	return n
}

// countingProvider hands out cred-N, bumping N on every refresh.
type countingProvider struct {
	mu         sync.Mutex
	refreshes  int
	refreshErr error
}

func (p *countingProvider) TokenStatus(context.Context) (token.Status, error) {
	return token.Status{Valid: true, MinutesRemaining: 60}, nil
}

func (p *countingProvider) Refresh(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.refreshErr != nil {
		return "", p.refreshErr
	}
	p.refreshes++
	return fmt.Sprintf("cred-%d", p.refreshes), nil
}

func (p *countingProvider) Credential(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fmt.Sprintf("cred-%d", p.refreshes), nil
}

type harness struct {
	session     *Session
	transport   *mockTransport
	sleeper     *sleepRecorder
	backend     *kvstore.Memory
	checkpoints *checkpoint.Store
	quota       *quota.Tracker
}

func newHarness(t *testing.T, mutate func(*Dependencies)) *harness {
	t.Helper()
	h := &harness{
		transport: newMockTransport(),
		sleeper:   &sleepRecorder{},
		backend:   kvstore.NewMemory(),
	}
	h.checkpoints = checkpoint.NewStore(h.backend, "test")
	h.quota = quota.NewTracker(h.backend, 2000, time.UTC)

	deps := Dependencies{
		Transport:   h.transport,
		Checkpoints: h.checkpoints,
		Quota:       h.quota,
		From:        "Team <team@example.com>",
	}
	if mutate != nil {
		mutate(&deps)
	}

	s, err := NewSession(deps, WithSleeper(h.sleeper.Sleep))
	require.NoError(t, err)
	h.session = s
	return h
}

func recipients(n int) []domain.Recipient {
	out := make([]domain.Recipient, n)
	for i := range out {
		out[i] = domain.Recipient{
			Address: addr(i),
			Fields:  map[string]string{"name": fmt.Sprintf("User %d", i)},
		}
	}
	return out
}

func addr(i int) string { return fmt.Sprintf("user%03d@example.com", i) }

func content(id string) Content {
	return Content{
		CampaignID: id,
		Subject:    "Hello {{name}}",
		Body:       "<p>Hi {{name}}</p>",
		Signature:  "The Team",
	}
}

func errInvalid(a string) error {
	return transport.NewError(transport.KindInvalidRecipient, 400, "invalid To header: "+a, nil)
}

var (
	errNetwork = transport.NewError(transport.KindNetwork, 503, "backend unavailable", nil)
	errAuth    = transport.NewError(transport.KindAuthExpired, 401, "invalid credentials", nil)
	errQuota   = transport.NewError(transport.KindQuotaExceeded, 403, "daily limit exceeded", nil)
)

// flakyChunkSender fails one call without sending anything.
type flakyChunkSender struct {
	mu     sync.Mutex
	calls  int
	sizes  []int
	failOn int
}

func (f *flakyChunkSender) SendChunk(ctx context.Context, req ChunkRequest) ([]domain.SendResult, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.sizes = append(f.sizes, len(req.Items))
	f.mu.Unlock()

	if call == f.failOn {
		return nil, errors.New("batch endpoint unavailable")
	}
	return LocalChunkSender{}.SendChunk(ctx, req)
}

// countingBackend counts writes per key.
type countingBackend struct {
	kvstore.Backend
	mu   sync.Mutex
	sets map[string]int
}

func (c *countingBackend) Set(ctx context.Context, key string, value []byte) error {
	c.mu.Lock()
	if c.sets == nil {
		c.sets = make(map[string]int)
	}
	c.sets[key]++
	c.mu.Unlock()
	return c.Backend.Set(ctx, key, value)
}

func (c *countingBackend) setsFor(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sets[key]
}

// countingStore serves a fixed attachment and counts fetches.
type countingStore struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *countingStore) ResolveAttachment(_ context.Context, locator string) (domain.ResolvedAttachment, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if c.err != nil {
		return domain.ResolvedAttachment{}, c.err
	}
	return domain.ResolvedAttachment{Name: locator, MIMEType: "application/pdf", BytesBase64: "JVBERi0xLjQK"}, nil
}

func (c *countingStore) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func newStoreFor(b kvstore.Backend) *checkpoint.Store {
	return checkpoint.NewStore(b, "test")
}

func newTrackerFor(b kvstore.Backend, limit int) *quota.Tracker {
	return quota.NewTracker(b, limit, time.UTC)
}
