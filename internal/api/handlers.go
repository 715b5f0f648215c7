package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/ignite/campaign-dispatch/internal/dispatch"
	"github.com/ignite/campaign-dispatch/internal/domain"
	"github.com/ignite/campaign-dispatch/internal/pkg/httputil"
	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
)

// Dispatcher is the session surface the handlers drive. *dispatch.Session
// implements it.
type Dispatcher interface {
	SendCampaign(ctx context.Context, recipients []domain.Recipient, content dispatch.Content, opts dispatch.Options) (*domain.Summary, error)
	ResumeWithOptions(ctx context.Context, opts dispatch.Options) (*domain.Summary, error)
	RetryFailedEmails(ctx context.Context) (*domain.Summary, error)
	StopSending()
	Pause()
	ClearSavedCampaign(ctx context.Context) error

	Progress() domain.Progress
	SendStatuses() []domain.SendStatus
	IsLoading() bool
	Status() domain.CampaignStatus
	LastSummary() *domain.Summary
	HasSavedCampaign(ctx context.Context) bool
	SavedCampaignInfo(ctx context.Context) (*domain.SavedCampaignInfo, error)
	QuotaState(ctx context.Context) (domain.QuotaState, error)
	ResetDailyQuota(ctx context.Context) error
}

// Handlers contains the HTTP handlers of the dispatch control API. Runs are
// started in the background under baseCtx, never under a request context.
type Handlers struct {
	dispatcher Dispatcher
	stream     *ProgressStream
	baseCtx    context.Context

	mu       sync.Mutex
	starting bool
	wg       sync.WaitGroup
}

// NewHandlers creates handlers for d. Cancelling baseCtx interrupts any
// background run, which then saves its checkpoint as paused.
func NewHandlers(baseCtx context.Context, d Dispatcher) *Handlers {
	return &Handlers{
		dispatcher: d,
		stream:     NewProgressStream(),
		baseCtx:    baseCtx,
	}
}

// Stream returns the progress broadcaster.
func (h *Handlers) Stream() *ProgressStream { return h.stream }

// Wait blocks until background runs return or ctx ends.
func (h *Handlers) Wait(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// launch starts fn in the background unless a run is active or starting.
func (h *Handlers) launch(name string, fn func(ctx context.Context) (*domain.Summary, error)) bool {
	h.mu.Lock()
	if h.starting || h.dispatcher.IsLoading() {
		h.mu.Unlock()
		return false
	}
	h.starting = true
	h.mu.Unlock()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer func() {
			h.mu.Lock()
			h.starting = false
			h.mu.Unlock()
		}()

		summary, err := fn(h.baseCtx)
		if err != nil {
			logger.Error("background run ended with error", "run", name, "error", err.Error())
		}
		if summary != nil {
			logger.Info("background run finished",
				"run", name,
				"campaign_id", summary.CampaignID,
				"status", string(summary.Status),
				"sent", summary.Sent,
				"failed", summary.Failed,
				"skipped", summary.Skipped,
			)
		}
	}()
	return true
}

func (h *Handlers) runOptions(o RunOptions) dispatch.Options {
	opts := o.toDispatch()
	opts.OnProgress = h.stream.Publish
	return opts
}

// SendCampaign starts a campaign in the background.
//
//	POST /api/dispatch/campaigns
func (h *Handlers) SendCampaign(w http.ResponseWriter, r *http.Request) {
	var req SendCampaignRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if len(req.Recipients) == 0 {
		httputil.BadRequest(w, "recipients are required")
		return
	}
	if strings.TrimSpace(req.Subject) == "" {
		httputil.BadRequest(w, "subject is required")
		return
	}
	for i, ref := range req.Attachments {
		if ref.Locator == "" {
			httputil.BadRequest(w, "attachment "+ref.Name+" has no locator")
			return
		}
		if ref.Source == "" {
			req.Attachments[i].Source = domain.SourceObjectStore
		}
	}
	if req.CampaignID == "" {
		req.CampaignID = uuid.NewString()
	}

	content := dispatch.Content{
		CampaignID:  req.CampaignID,
		Subject:     req.Subject,
		Body:        req.Body,
		Signature:   req.Signature,
		Attachments: req.Attachments,
	}
	opts := h.runOptions(req.Options)

	started := h.launch("send", func(ctx context.Context) (*domain.Summary, error) {
		return h.dispatcher.SendCampaign(ctx, req.Recipients, content, opts)
	})
	if !started {
		httputil.Conflict(w, dispatch.ErrAlreadyRunning.Error())
		return
	}

	httputil.Accepted(w, AcceptedResponse{
		Status:     "accepted",
		CampaignID: req.CampaignID,
		Recipients: len(req.Recipients),
	})
}

// Stop asks the running campaign to stop.
//
//	POST /api/dispatch/stop
func (h *Handlers) Stop(w http.ResponseWriter, r *http.Request) {
	if !h.dispatcher.IsLoading() {
		httputil.Conflict(w, "no campaign is running")
		return
	}
	h.dispatcher.StopSending()
	httputil.Accepted(w, AcceptedResponse{Status: "stopping"})
}

// Pause asks the running campaign to pause.
//
//	POST /api/dispatch/pause
func (h *Handlers) Pause(w http.ResponseWriter, r *http.Request) {
	if !h.dispatcher.IsLoading() {
		httputil.Conflict(w, "no campaign is running")
		return
	}
	h.dispatcher.Pause()
	httputil.Accepted(w, AcceptedResponse{Status: "pausing"})
}

// Resume continues the saved campaign in the background. The body is
// optional.
//
//	POST /api/dispatch/resume
func (h *Handlers) Resume(w http.ResponseWriter, r *http.Request) {
	var o RunOptions
	if r.ContentLength > 0 && !httputil.Decode(w, r, &o) {
		return
	}

	info, err := h.dispatcher.SavedCampaignInfo(r.Context())
	if err != nil {
		respondDispatchError(w, err)
		return
	}

	opts := h.runOptions(o)
	started := h.launch("resume", func(ctx context.Context) (*domain.Summary, error) {
		return h.dispatcher.ResumeWithOptions(ctx, opts)
	})
	if !started {
		httputil.Conflict(w, dispatch.ErrAlreadyRunning.Error())
		return
	}

	httputil.Accepted(w, AcceptedResponse{
		Status:     "resuming",
		CampaignID: info.CampaignID,
		Recipients: info.Remaining,
	})
}

// RetryFailed resends the failed recipients of the last run.
//
//	POST /api/dispatch/retry-failed
func (h *Handlers) RetryFailed(w http.ResponseWriter, r *http.Request) {
	last := h.dispatcher.LastSummary()
	if last == nil || last.Failed == 0 {
		respondDispatchError(w, dispatch.ErrNoFailedEmails)
		return
	}

	started := h.launch("retry", h.dispatcher.RetryFailedEmails)
	if !started {
		httputil.Conflict(w, dispatch.ErrAlreadyRunning.Error())
		return
	}

	httputil.Accepted(w, AcceptedResponse{
		Status:     "retrying",
		CampaignID: last.CampaignID,
		Recipients: last.Failed,
	})
}

// GetStatus returns the session state in one call.
//
//	GET /api/dispatch/status
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Status:    h.dispatcher.Status(),
		IsLoading: h.dispatcher.IsLoading(),
		Progress:  h.dispatcher.Progress(),
	}
	if info, err := h.dispatcher.SavedCampaignInfo(r.Context()); err == nil {
		resp.HasSavedCampaign = true
		resp.SavedCampaign = info
	} else if !errors.Is(err, dispatch.ErrNoSavedCampaign) {
		logger.Warn("saved campaign lookup failed", "error", err.Error())
	}
	httputil.OK(w, resp)
}

// GetProgress returns the live progress.
//
//	GET /api/dispatch/progress
func (h *Handlers) GetProgress(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, h.dispatcher.Progress())
}

// GetSendStatuses returns per-recipient statuses.
//
//	GET /api/dispatch/statuses
func (h *Handlers) GetSendStatuses(w http.ResponseWriter, r *http.Request) {
	statuses := h.dispatcher.SendStatuses()
	if statuses == nil {
		statuses = []domain.SendStatus{}
	}
	httputil.OK(w, statuses)
}

// GetSummary returns the summary of the last finished run.
//
//	GET /api/dispatch/summary
func (h *Handlers) GetSummary(w http.ResponseWriter, r *http.Request) {
	summary := h.dispatcher.LastSummary()
	if summary == nil {
		httputil.NotFound(w, "no run has finished yet")
		return
	}
	httputil.OK(w, summary)
}

// GetSavedCampaign describes the resumable checkpoint.
//
//	GET /api/dispatch/saved
func (h *Handlers) GetSavedCampaign(w http.ResponseWriter, r *http.Request) {
	info, err := h.dispatcher.SavedCampaignInfo(r.Context())
	if err != nil {
		respondDispatchError(w, err)
		return
	}
	httputil.OK(w, info)
}

// ClearSavedCampaign discards the resumable checkpoint.
//
//	DELETE /api/dispatch/saved
func (h *Handlers) ClearSavedCampaign(w http.ResponseWriter, r *http.Request) {
	if err := h.dispatcher.ClearSavedCampaign(r.Context()); err != nil {
		respondDispatchError(w, err)
		return
	}
	httputil.NoContent(w)
}

// GetQuota returns the daily quota estimate.
//
//	GET /api/quota
func (h *Handlers) GetQuota(w http.ResponseWriter, r *http.Request) {
	state, err := h.dispatcher.QuotaState(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, QuotaResponse{QuotaState: state, EstimatedRemaining: state.EstimatedRemaining()})
}

// ResetQuota zeroes the quota estimate.
//
//	POST /api/quota/reset
func (h *Handlers) ResetQuota(w http.ResponseWriter, r *http.Request) {
	if err := h.dispatcher.ResetDailyQuota(r.Context()); err != nil {
		httputil.InternalError(w, err)
		return
	}
	state, err := h.dispatcher.QuotaState(r.Context())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, QuotaResponse{QuotaState: state, EstimatedRemaining: state.EstimatedRemaining()})
}
