package api

import (
	"time"

	"github.com/ignite/campaign-dispatch/internal/dispatch"
	"github.com/ignite/campaign-dispatch/internal/domain"
)

// SendCampaignRequest is the body of POST /api/dispatch/campaigns.
type SendCampaignRequest struct {
	CampaignID  string                 `json:"campaign_id"`
	Subject     string                 `json:"subject"`
	Body        string                 `json:"body"`
	Signature   string                 `json:"signature"`
	Recipients  []domain.Recipient     `json:"recipients"`
	Attachments []domain.AttachmentRef `json:"attachments"`
	Options     RunOptions             `json:"options"`
}

// RunOptions are the per-run knobs accepted by send and resume.
type RunOptions struct {
	DelayBetweenEmailsMS int   `json:"delay_between_emails_ms"`
	TokenCheckInterval   int   `json:"token_check_interval"`
	UseBulkOptimization  *bool `json:"use_bulk_optimization"`
}

func (o RunOptions) toDispatch() dispatch.Options {
	opts := dispatch.Options{
		DelayBetweenEmails: time.Duration(o.DelayBetweenEmailsMS) * time.Millisecond,
		TokenCheckInterval: o.TokenCheckInterval,
	}
	if o.UseBulkOptimization != nil && !*o.UseBulkOptimization {
		opts.DisableBulkOptimization = true
	}
	return opts
}

// AcceptedResponse acknowledges a run started in the background.
type AcceptedResponse struct {
	Status     string `json:"status"`
	CampaignID string `json:"campaign_id,omitempty"`
	Recipients int    `json:"recipients,omitempty"`
}

// StatusResponse is the body of GET /api/dispatch/status.
type StatusResponse struct {
	Status           domain.CampaignStatus     `json:"status"`
	IsLoading        bool                      `json:"is_loading"`
	Progress         domain.Progress           `json:"progress"`
	HasSavedCampaign bool                      `json:"has_saved_campaign"`
	SavedCampaign    *domain.SavedCampaignInfo `json:"saved_campaign,omitempty"`
}

// QuotaResponse is the body of GET /api/quota.
type QuotaResponse struct {
	domain.QuotaState
	EstimatedRemaining int `json:"estimated_remaining"`
}
