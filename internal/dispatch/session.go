package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/campaign-dispatch/internal/attachment"
	"github.com/ignite/campaign-dispatch/internal/checkpoint"
	"github.com/ignite/campaign-dispatch/internal/domain"
	"github.com/ignite/campaign-dispatch/internal/pkg/distlock"
	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
	"github.com/ignite/campaign-dispatch/internal/quota"
	"github.com/ignite/campaign-dispatch/internal/token"
	"github.com/ignite/campaign-dispatch/internal/transport"
)

// Options tune a single SendCampaign, Resume or retry call.
type Options struct {
	// DelayBetweenEmails is the pause between sends in direct mode. Zero
	// uses the configured direct delay (1s by default).
	DelayBetweenEmails time.Duration
	// TokenCheckInterval is how many direct sends happen between
	// credential checks. Zero uses the configured interval.
	TokenCheckInterval int
	// DisableBulkOptimization forces the direct strategy regardless of size.
	DisableBulkOptimization bool

	OnProgress    func(domain.Progress)
	OnEmailResult func(domain.SendStatus)
}

// Content is the message side of a campaign.
type Content struct {
	CampaignID  string
	Subject     string
	Body        string
	Signature   string
	Attachments []domain.AttachmentRef
}

// Dependencies are the collaborators a Session drives.
type Dependencies struct {
	Transport   transport.Transport
	ChunkSender ChunkSender
	Resolver    *attachment.Resolver
	Monitor     *token.Monitor
	Checkpoints *checkpoint.Store
	Quota       *quota.Tracker
	// Lock optionally extends the one-campaign guarantee across processes.
	Lock distlock.DistLock
	// From is the formatted sender address.
	From   string
	Tuning Tuning
}

// Session runs at most one campaign at a time and exposes its live state.
type Session struct {
	transport   transport.Transport
	chunkSender ChunkSender
	resolver    *attachment.Resolver
	monitor     *token.Monitor
	checkpoints *checkpoint.Store
	quota       *quota.Tracker
	lock        distlock.DistLock
	from        string
	tuning      Tuning

	sleep Sleeper
	now   func() time.Time

	mu           sync.Mutex
	running      bool
	lockHeld     bool
	keepalive    func()
	status       domain.CampaignStatus
	token        *CancellationToken
	current      *run
	lastReporter *Reporter
	lastSummary  *domain.Summary
	lastCampaign *domain.Campaign
	lastOpts     Options
}

// SessionOption customizes a Session.
type SessionOption func(*Session)

// WithSleeper replaces the delay implementation.
func WithSleeper(fn Sleeper) SessionOption {
	return func(s *Session) { s.sleep = fn }
}

// WithClock replaces the time source.
func WithClock(fn func() time.Time) SessionOption {
	return func(s *Session) { s.now = fn }
}

// NewSession validates deps and builds a session.
func NewSession(deps Dependencies, opts ...SessionOption) (*Session, error) {
	if deps.Transport == nil {
		return nil, errors.New("dispatch: transport is required")
	}
	if deps.Checkpoints == nil {
		return nil, errors.New("dispatch: checkpoint store is required")
	}
	if deps.Quota == nil {
		return nil, errors.New("dispatch: quota tracker is required")
	}
	if deps.Resolver == nil {
		deps.Resolver = attachment.NewResolver(nil, 0)
	}
	if deps.Monitor == nil {
		deps.Monitor = token.NewMonitor(token.StaticProvider{Value: "static"}, 0)
	}
	if deps.ChunkSender == nil {
		deps.ChunkSender = LocalChunkSender{}
	}
	if deps.Tuning == (Tuning{}) {
		deps.Tuning = DefaultTuning()
	}

	s := &Session{
		transport:   deps.Transport,
		chunkSender: deps.ChunkSender,
		resolver:    deps.Resolver,
		monitor:     deps.Monitor,
		checkpoints: deps.Checkpoints,
		quota:       deps.Quota,
		lock:        deps.Lock,
		from:        deps.From,
		tuning:      deps.Tuning,
		sleep:       sleepContext,
		now:         time.Now,
		status:      domain.CampaignIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// begin claims the session for one run.
func (s *Session) begin(ctx context.Context) (*CancellationToken, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	s.running = true
	tok := NewCancellationToken()
	s.token = tok
	s.mu.Unlock()

	if s.lock != nil {
		ok, err := s.lock.Acquire(ctx)
		switch {
		case err != nil:
			logger.Warn("session lock unavailable, continuing with in-process guard", "error", err.Error())
		case !ok:
			s.mu.Lock()
			s.running = false
			s.token = nil
			s.mu.Unlock()
			return nil, ErrAlreadyRunning
		default:
			stop := distlock.Keepalive(s.lock, func(err error) {
				logger.Error("session lock lost, pausing campaign", "error", err)
				tok.Cancel("lock lost")
			})
			s.mu.Lock()
			s.lockHeld = true
			s.keepalive = stop
			s.mu.Unlock()
		}
	}
	return tok, nil
}

// end releases the session after a run.
func (s *Session) end(r *run, summary *domain.Summary) {
	s.mu.Lock()
	held, stop := s.lockHeld, s.keepalive
	s.lockHeld, s.keepalive = false, nil
	s.running = false
	s.token = nil
	s.current = nil
	if r != nil {
		s.lastReporter = r.reporter
		campaign := r.campaign
		s.lastCampaign = &campaign
		s.lastOpts = r.opts
	}
	if summary != nil {
		s.lastSummary = summary
		s.status = summary.Status
	}
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
	if held {
		if err := s.lock.Release(context.Background()); err != nil {
			logger.Warn("session lock release failed", "error", err.Error())
		}
	}
}

func (s *Session) start(ctx context.Context, tok *CancellationToken, cp *domain.Checkpoint, targets []int, opts Options) (*domain.Summary, error) {
	r := newRun(s, cp, targets, opts, tok)

	s.mu.Lock()
	s.current = r
	s.status = domain.CampaignRunning
	s.mu.Unlock()

	summary, err := r.execute(ctx)
	s.end(r, summary)
	return summary, err
}

// SendCampaign sends content to recipients and blocks until the run
// completes, pauses or stops on a fatal error. Any previously saved
// campaign is replaced.
func (s *Session) SendCampaign(ctx context.Context, recipients []domain.Recipient, content Content, opts Options) (*domain.Summary, error) {
	if len(recipients) == 0 {
		return nil, ErrNoRecipients
	}

	tok, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}

	if info, err := s.checkpoints.Info(ctx); err == nil {
		logger.Warn("replacing saved campaign", "campaign_id", info.CampaignID, "remaining", info.Remaining)
	}

	id := content.CampaignID
	if id == "" {
		id = uuid.NewString()
	}
	now := s.now().UTC()

	cp := &domain.Checkpoint{
		CampaignID:  id,
		SentIndices: []int{},
		Status:      domain.CampaignRunning,
		StartedAt:   now,
		Campaign: domain.Campaign{
			ID:              id,
			SubjectTemplate: content.Subject,
			BodyTemplate:    content.Body,
			Recipients:      recipients,
			Attachments:     content.Attachments,
			Signature:       content.Signature,
			Status:          domain.CampaignRunning,
			CreatedAt:       now,
		},
	}
	return s.start(ctx, tok, cp, nil, opts)
}

// StopSending asks the running campaign to stop at the next suspension
// point. The run ends paused and stays resumable.
func (s *Session) StopSending() {
	s.cancelRun("stopped")
}

// Pause is StopSending with a pause reason.
func (s *Session) Pause() {
	s.cancelRun("paused")
}

func (s *Session) cancelRun(reason string) {
	s.mu.Lock()
	tok := s.token
	s.mu.Unlock()
	if tok != nil {
		logger.Info("dispatch cancellation requested", "reason", reason)
		tok.Cancel(reason)
	}
}

// Resume continues the saved campaign with the options of the last run.
func (s *Session) Resume(ctx context.Context) (*domain.Summary, error) {
	s.mu.Lock()
	opts := s.lastOpts
	s.mu.Unlock()
	return s.ResumeWithOptions(ctx, opts)
}

// ResumeWithOptions continues the saved campaign, skipping every recipient
// already recorded as sent.
func (s *Session) ResumeWithOptions(ctx context.Context, opts Options) (*domain.Summary, error) {
	tok, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}

	cp, err := s.checkpoints.Load(ctx)
	if err != nil {
		s.end(nil, nil)
		if errors.Is(err, checkpoint.ErrNoCheckpoint) {
			return nil, ErrNoSavedCampaign
		}
		return nil, err
	}

	logger.Info("resuming campaign",
		"campaign_id", cp.CampaignID,
		"already_sent", len(cp.SentIndices),
		"total", len(cp.Campaign.Recipients),
	)
	return s.start(ctx, tok, cp, nil, opts)
}

// RetryFailedEmails resends only the recipients that failed in the last
// run. Their new results replace the old ones in the summary. The last
// run's results live in memory, so a fresh Session has nothing to retry.
func (s *Session) RetryFailedEmails(ctx context.Context) (*domain.Summary, error) {
	tok, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	last := s.lastSummary
	campaign := s.lastCampaign
	opts := s.lastOpts
	s.mu.Unlock()

	if last == nil || campaign == nil {
		s.end(nil, nil)
		return nil, ErrNoFailedEmails
	}

	var (
		failed []int
		kept   = make([]domain.SendResult, 0, len(last.Results))
		sent   = make([]int, 0, len(last.Results))
	)
	for _, res := range last.Results {
		if res.Outcome == domain.OutcomeError {
			failed = append(failed, res.Index)
			continue
		}
		kept = append(kept, res)
		sent = append(sent, res.Index)
	}
	if len(failed) == 0 {
		s.end(nil, nil)
		return nil, ErrNoFailedEmails
	}

	// Failed indices leave SentIndices so an interrupted retry can resume
	// them; recipients never attempted stay pending as before.
	cp := &domain.Checkpoint{
		CampaignID:  campaign.ID,
		SentIndices: sent,
		Results:     kept,
		Status:      domain.CampaignRunning,
		StartedAt:   s.now().UTC(),
		Campaign:    *campaign,
	}

	logger.Info("retrying failed emails", "campaign_id", campaign.ID, "failed", len(failed))
	return s.start(ctx, tok, cp, failed, opts)
}

// ClearSavedCampaign discards the saved checkpoint.
func (s *Session) ClearSavedCampaign(ctx context.Context) error {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if running {
		return ErrAlreadyRunning
	}
	if err := s.checkpoints.Clear(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	if s.status == domain.CampaignPaused {
		s.status = domain.CampaignIdle
	}
	s.mu.Unlock()
	logger.Info("saved campaign discarded")
	return nil
}

// Progress returns the live progress of the current or last run.
func (s *Session) Progress() domain.Progress {
	rep := s.reporter()
	if rep == nil {
		return domain.Progress{StatusText: "Idle"}
	}
	return rep.Snapshot()
}

// SendStatuses returns per-recipient statuses of the current or last run.
func (s *Session) SendStatuses() []domain.SendStatus {
	rep := s.reporter()
	if rep == nil {
		return nil
	}
	return rep.Statuses()
}

func (s *Session) reporter() *Reporter {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		return s.current.reporter
	}
	return s.lastReporter
}

// IsLoading reports whether a run is in progress.
func (s *Session) IsLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Status returns the lifecycle state of the session's campaign.
func (s *Session) Status() domain.CampaignStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// LastSummary returns the summary of the last finished run, if any.
func (s *Session) LastSummary() *domain.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSummary
}

// HasSavedCampaign reports whether a resumable checkpoint exists.
func (s *Session) HasSavedCampaign(ctx context.Context) bool {
	_, err := s.checkpoints.Load(ctx)
	return err == nil
}

// SavedCampaignInfo describes the resumable checkpoint.
func (s *Session) SavedCampaignInfo(ctx context.Context) (*domain.SavedCampaignInfo, error) {
	info, err := s.checkpoints.Info(ctx)
	if errors.Is(err, checkpoint.ErrNoCheckpoint) {
		return nil, ErrNoSavedCampaign
	}
	return info, err
}

// QuotaState returns the daily quota estimate.
func (s *Session) QuotaState(ctx context.Context) (domain.QuotaState, error) {
	return s.quota.State(ctx)
}

// ResetDailyQuota zeroes the quota estimate.
func (s *Session) ResetDailyQuota(ctx context.Context) error {
	if err := s.quota.ResetDailyQuota(ctx); err != nil {
		return fmt.Errorf("resetting quota: %w", err)
	}
	return nil
}
