package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ignite/campaign-dispatch/internal/domain"
	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
	"github.com/ignite/campaign-dispatch/internal/transport"
)

// run is one execution of a campaign: a fresh send, a resume, or a retry
// of failed recipients.
type run struct {
	s        *Session
	campaign domain.Campaign
	plan     Plan
	opts     Options
	tuning   Tuning
	token    *CancellationToken
	reporter *Reporter

	shared   []domain.ResolvedAttachment
	prebuilt []byte

	// targets are the indices this run sends, in order
	targets []int

	mu      sync.Mutex
	cp      *domain.Checkpoint
	results map[int]domain.SendResult

	credMu sync.Mutex
	cred   string
}

// newRun prepares an execution. A nil targets list means every pending index.
func newRun(s *Session, cp *domain.Checkpoint, targets []int, opts Options, tok *CancellationToken) *run {
	results := make(map[int]domain.SendResult, len(cp.Results))
	for _, res := range cp.Results {
		results[res.Index] = res
	}

	if targets == nil {
		targets = PendingIndices(len(cp.Campaign.Recipients), cp.SentIndices)
	}
	plan := s.tuning.SelectStrategy(len(targets), cp.Campaign.HasAttachments())
	if opts.DisableBulkOptimization {
		plan = s.tuning.DirectPlan()
	}
	if plan.Strategy == domain.StrategyDirect && opts.DelayBetweenEmails > 0 {
		plan.Delay = opts.DelayBetweenEmails
	}

	cp.Campaign.Strategy = plan.Strategy
	cp.Campaign.Status = domain.CampaignRunning
	cp.Status = domain.CampaignRunning

	r := &run{
		s:        s,
		campaign: cp.Campaign,
		plan:     plan,
		opts:     opts,
		tuning:   s.tuning,
		token:    tok,
		targets:  targets,
		cp:       cp,
		results:  results,
	}
	r.reporter = newReporter(&r.campaign, results, s.now, opts)
	return r
}

// execute drives the run to completion, pause or fatal stop.
func (r *run) execute(ctx context.Context) (*domain.Summary, error) {
	startedAt := r.s.now()
	pending := r.targets

	logger.Info("dispatch run starting",
		"campaign_id", r.campaign.ID,
		"strategy", string(r.plan.Strategy),
		"pending", len(pending),
		"total", len(r.campaign.Recipients),
	)
	r.reporter.SetStatus(fmt.Sprintf("Preparing %d email(s)", len(pending)))

	defer r.s.resolver.Cache().Clear()

	r.quotaPreflight(ctx, len(pending))

	if err := r.prepare(ctx); err != nil {
		return r.finish(ctx, startedAt, fatal(err))
	}

	runErr := r.loop(ctx, pending)
	return r.finish(ctx, startedAt, runErr)
}

// prepare resolves shared attachments, prebuilds the shared payload if the
// campaign has no placeholders, and obtains the first credential.
func (r *run) prepare(ctx context.Context) error {
	if len(r.campaign.Attachments) > 0 {
		r.reporter.SetStatus("Resolving attachments")
		shared, err := r.s.resolver.ResolveAll(ctx, r.campaign.Attachments)
		if err != nil {
			return err
		}
		r.shared = shared
	}

	payload, err := buildSharedPayload(&r.campaign, r.s.from, r.shared, r.tuning.MaxMessageBytes)
	if err != nil {
		return err
	}
	r.prebuilt = payload

	return r.ensureCredential(ctx)
}

func (r *run) loop(ctx context.Context, pending []int) error {
	groups := Partition(pending, r.plan.GroupSize)
	tokenInterval := r.opts.TokenCheckInterval
	if tokenInterval <= 0 {
		tokenInterval = r.tuning.TokenCheckInterval
	}

	for gi, g := range groups {
		if r.token.Cancelled() {
			return errStopped
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		indices := pending[g.Start:g.End]

		if gi > 0 {
			checkToken := r.plan.Strategy != domain.StrategyDirect || gi%tokenInterval == 0
			if checkToken {
				if err := r.ensureCredential(ctx); err != nil {
					return fatal(err)
				}
			}
		}

		var err error
		switch r.plan.Strategy {
		case domain.StrategyChunked:
			r.reporter.SetStatus(fmt.Sprintf("Sending chunk %d of %d (%d emails)", gi+1, len(groups), len(indices)))
			err = r.runChunk(ctx, indices)
		case domain.StrategyBatched:
			r.reporter.SetStatus(fmt.Sprintf("Sending batch %d of %d (%d emails)", gi+1, len(groups), len(indices)))
			err = r.runBatch(ctx, indices)
		default:
			r.reporter.SetStatus(fmt.Sprintf("Sending email %d of %d", gi+1, len(groups)))
			err = r.runBatch(ctx, indices)
		}
		r.trackQuota(ctx, indices)
		if err != nil {
			return err
		}

		if gi == len(groups)-1 {
			break
		}

		r.reporter.SetStatus(fmt.Sprintf("Waiting %s before next %s", r.plan.Delay, groupNoun(r.plan.Strategy)))
		if err := waitOrStop(ctx, r.token, r.s.sleep, r.plan.Delay); err != nil {
			return err
		}
	}
	return nil
}

func groupNoun(s domain.Strategy) string {
	switch s {
	case domain.StrategyChunked:
		return "chunk"
	case domain.StrategyBatched:
		return "batch"
	}
	return "email"
}

// runBatch sends a group concurrently up to the plan width, saving the
// checkpoint after every item. Direct mode is a batch of one.
func (r *run) runBatch(ctx context.Context, indices []int) error {
	var (
		g        errgroup.Group
		fatalMu  sync.Mutex
		fatalErr error
	)
	g.SetLimit(r.plan.Concurrency)

	for _, idx := range indices {
		g.Go(func() error {
			res, err := r.sendOne(ctx, ChunkItem{Index: idx, Recipient: r.campaign.Recipients[idx]})
			if err != nil {
				r.reporter.ItemReset(idx)
				if IsFatal(err) {
					fatalMu.Lock()
					if fatalErr == nil {
						fatalErr = err
					}
					fatalMu.Unlock()
				}
				return nil
			}
			r.record(ctx, []domain.SendResult{res}, true)
			return nil
		})
	}
	_ = g.Wait()

	if fatalErr != nil {
		return fatalErr
	}
	return ctx.Err()
}

// runChunk hands a whole chunk to the ChunkSender and saves once after it.
func (r *run) runChunk(ctx context.Context, indices []int) error {
	items := make([]ChunkItem, len(indices))
	for i, idx := range indices {
		items[i] = ChunkItem{Index: idx, Recipient: r.campaign.Recipients[idx]}
	}

	results, err := r.s.chunkSender.SendChunk(ctx, ChunkRequest{
		CampaignID:  r.campaign.ID,
		Items:       items,
		Concurrency: r.plan.Concurrency,
		Send:        r.sendOne,
	})

	if err != nil && !IsFatal(err) && !errors.Is(err, errStopped) && ctx.Err() == nil {
		log.Printf("[Dispatch] Chunk of %d failed: %v", len(items), err)
		failed := make([]domain.SendResult, len(items))
		for i, item := range items {
			failed[i] = domain.SendResult{
				Index:   item.Index,
				Address: item.Recipient.Address,
				Outcome: domain.OutcomeError,
				Error:   "Chunk processing failed: " + err.Error(),
			}
		}
		r.record(ctx, failed, true)
		return nil
	}

	done := make([]domain.SendResult, 0, len(items))
	for i, item := range items {
		var res domain.SendResult
		if i < len(results) {
			res = results[i]
		}
		if res.Outcome != "" {
			done = append(done, res)
			continue
		}
		if err != nil || ctx.Err() != nil {
			// Stopped before this item was attempted; it stays pending
			r.reporter.ItemReset(item.Index)
			continue
		}
		done = append(done, domain.SendResult{
			Index:   item.Index,
			Address: item.Recipient.Address,
			Outcome: domain.OutcomeError,
			Error:   "Chunk processing failed: no result returned for recipient",
		})
	}
	r.record(ctx, done, true)

	if err != nil {
		return err
	}
	return ctx.Err()
}

// sendOne delivers a single recipient. A nil error with a terminal outcome
// is an isolated result; a non-nil error leaves the index pending.
func (r *run) sendOne(ctx context.Context, item ChunkItem) (domain.SendResult, error) {
	rec := item.Recipient
	res := domain.SendResult{Index: item.Index, Address: rec.Address}

	if !rec.HasAddress() {
		res.Outcome = domain.OutcomeSkipped
		res.Error = "missing recipient address"
		return res, nil
	}
	if err := transport.ValidateAddress(rec.Address); err != nil {
		res.Outcome = domain.OutcomeError
		res.Error = err.Error()
		return res, nil
	}

	r.reporter.ItemStarted(item.Index)

	msg, err := r.buildMessage(ctx, rec)
	if err != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.Outcome = domain.OutcomeError
		res.Error = err.Error()
		return res, nil
	}

	_, attempts, err := r.sendWithRetry(ctx, msg)
	res.Attempts = attempts
	switch {
	case err == nil:
		res.Outcome = domain.OutcomeSuccess
	case IsFatal(err), errors.Is(err, errStopped):
		return res, err
	case ctx.Err() != nil:
		return res, ctx.Err()
	default:
		res.Outcome = domain.OutcomeError
		res.Error = err.Error()
		log.Printf("[Dispatch] Giving up on %s after %d attempt(s): %v", logger.RedactEmail(rec.Address), attempts, err)
	}
	return res, nil
}

func (r *run) buildMessage(ctx context.Context, rec domain.Recipient) (*transport.Message, error) {
	msg := &transport.Message{
		CampaignID: r.campaign.ID,
		From:       r.s.from,
		To:         rec.Address,
	}
	if r.prebuilt != nil {
		msg.Prebuilt = r.prebuilt
		return msg, nil
	}

	fields := MergeFields(rec)
	msg.Subject = Personalize(r.campaign.SubjectTemplate, fields)
	msg.HTMLBody = AppendSignature(Personalize(r.campaign.BodyTemplate, fields), r.campaign.Signature)

	msg.Attachments = append(msg.Attachments, r.shared...)
	if rec.AttachmentOverride != nil && rec.AttachmentOverride.URL != "" {
		att, err := r.s.resolver.ResolvePersonalized(ctx, rec.AttachmentOverride)
		if err != nil {
			return nil, fmt.Errorf("personalized attachment: %w", err)
		}
		msg.Attachments = append(msg.Attachments, att)
	}
	return msg, nil
}

// record stores terminal outcomes, marks them sent and optionally saves.
func (r *run) record(ctx context.Context, results []domain.SendResult, persist bool) {
	if len(results) == 0 {
		return
	}

	r.mu.Lock()
	for _, res := range results {
		if _, seen := r.results[res.Index]; !seen {
			r.cp.SentIndices = append(r.cp.SentIndices, res.Index)
		}
		r.results[res.Index] = res
	}
	r.cp.Results = r.sortedResultsLocked()
	r.cp.Status = domain.CampaignRunning
	if persist {
		r.saveLocked(ctx)
	}
	r.mu.Unlock()

	for _, res := range results {
		r.reporter.ItemDone(res)
	}
}

func (r *run) sortedResultsLocked() []domain.SendResult {
	out := make([]domain.SendResult, 0, len(r.results))
	for _, res := range r.results {
		out = append(out, res)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

func (r *run) saveLocked(ctx context.Context) {
	if err := r.s.checkpoints.Save(context.WithoutCancel(ctx), r.cp); err != nil {
		logger.Error("checkpoint save failed", "campaign_id", r.campaign.ID, "error", err.Error())
	}
}

// trackQuota adds every attempted recipient of the group to the estimate.
func (r *run) trackQuota(ctx context.Context, indices []int) {
	r.mu.Lock()
	attempted := 0
	for _, idx := range indices {
		if res, ok := r.results[idx]; ok && res.Outcome != domain.OutcomeSkipped && res.Attempts > 0 {
			attempted++
		}
	}
	r.mu.Unlock()

	if attempted == 0 {
		return
	}
	if _, err := r.s.quota.UpdateQuotaUsed(context.WithoutCancel(ctx), attempted); err != nil {
		logger.Warn("quota update failed", "error", err.Error())
	}
}

func (r *run) quotaPreflight(ctx context.Context, pending int) {
	remaining, err := r.s.quota.Remaining(ctx)
	if err != nil {
		logger.Warn("quota check failed", "error", err.Error())
		return
	}
	if pending > remaining {
		logger.Warn("campaign exceeds estimated remaining quota",
			"campaign_id", r.campaign.ID,
			"pending", pending,
			"remaining", remaining,
		)
		r.reporter.SetStatus(fmt.Sprintf("Warning: %d emails pending but only about %d left in today's quota", pending, remaining))
	}
}

func (r *run) credential() string {
	r.credMu.Lock()
	defer r.credMu.Unlock()
	return r.cred
}

func (r *run) ensureCredential(ctx context.Context) error {
	r.credMu.Lock()
	defer r.credMu.Unlock()
	cred, err := r.s.monitor.Ensure(ctx)
	if err != nil {
		return err
	}
	r.cred = cred
	return nil
}

// refreshCredential forces a refresh unless another item already replaced
// the stale credential.
func (r *run) refreshCredential(ctx context.Context, stale string) error {
	r.credMu.Lock()
	defer r.credMu.Unlock()
	if r.cred != stale {
		return nil
	}
	cred, err := r.s.monitor.ForceRefresh(ctx)
	if err != nil {
		return err
	}
	r.cred = cred
	return nil
}

// finish settles the final status, persists or clears the checkpoint and
// builds the summary.
func (r *run) finish(ctx context.Context, startedAt time.Time, runErr error) (*domain.Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	summary := &domain.Summary{
		CampaignID: r.campaign.ID,
		Strategy:   r.plan.Strategy,
		Total:      len(r.campaign.Recipients),
		StartedAt:  startedAt,
		FinishedAt: r.s.now(),
		Results:    r.sortedResultsLocked(),
	}
	for _, res := range summary.Results {
		switch res.Outcome {
		case domain.OutcomeSuccess:
			summary.Sent++
		case domain.OutcomeError:
			summary.Failed++
		case domain.OutcomeSkipped:
			summary.Skipped++
		}
	}
	// Unattempted recipients stay pending for resume but count as skipped here
	summary.Skipped += summary.Total - len(summary.Results)

	// A retry can finish its targets while other recipients are still pending
	if runErr == nil && len(PendingIndices(summary.Total, r.cp.SentIndices)) > 0 {
		runErr = errStopped
	}

	var retErr error
	switch {
	case runErr == nil:
		summary.Status = domain.CampaignCompleted
		r.cp.Status = domain.CampaignCompleted
		if err := r.s.checkpoints.Clear(context.WithoutCancel(ctx)); err != nil {
			logger.Error("checkpoint clear failed", "campaign_id", r.campaign.ID, "error", err.Error())
		}
		r.reporter.SetStatus(fmt.Sprintf("Completed: %d sent, %d failed, %d skipped", summary.Sent, summary.Failed, summary.Skipped))

	case errors.Is(runErr, errStopped):
		summary.Status = domain.CampaignPaused
		r.cp.Status = domain.CampaignPaused
		r.saveLocked(ctx)
		r.reporter.SetStatus(fmt.Sprintf("Paused: %d of %d processed", len(summary.Results), summary.Total))

	case IsFatal(runErr):
		summary.Status = domain.CampaignError
		summary.Error = runErr.Error()
		r.cp.Status = domain.CampaignPaused
		r.saveLocked(ctx)
		r.reporter.SetStatus("Error: " + runErr.Error())
		retErr = fmt.Errorf("campaign %s stopped: %w", r.campaign.ID, unwrapFatal(runErr))

	default:
		// Caller context ended: keep the run resumable
		summary.Status = domain.CampaignPaused
		summary.Error = runErr.Error()
		r.cp.Status = domain.CampaignPaused
		r.saveLocked(ctx)
		r.reporter.SetStatus("Interrupted: " + runErr.Error())
		retErr = runErr
	}

	r.campaign.Status = summary.Status

	logger.Info("dispatch run finished",
		"campaign_id", r.campaign.ID,
		"status", string(summary.Status),
		"sent", summary.Sent,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"duration", summary.FinishedAt.Sub(startedAt).String(),
	)
	return summary, retErr
}
