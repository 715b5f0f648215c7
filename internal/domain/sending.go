package domain

import "time"

// Outcome is the per-recipient result of a send.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeError   Outcome = "error"
	OutcomeSkipped Outcome = "skipped"
)

// SendResult records what happened to one recipient.
type SendResult struct {
	Index    int     `json:"index"`
	Address  string  `json:"address"`
	Outcome  Outcome `json:"outcome"`
	Error    string  `json:"error_message,omitempty"`
	Attempts int     `json:"attempts"`
}

// Checkpoint is the persisted progress snapshot of one active campaign.
// SentIndices has set semantics: an index appears at most once, and only
// once its outcome is terminal.
type Checkpoint struct {
	CampaignID  string         `json:"campaign_id"`
	SentIndices []int          `json:"sent_indices"`
	Results     []SendResult   `json:"results"`
	Status      CampaignStatus `json:"status"`
	StartedAt   time.Time      `json:"started_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	Campaign    Campaign       `json:"campaign"`
}

// Resumable returns true if the snapshot should be offered for resume.
func (c *Checkpoint) Resumable() bool {
	return c.Status == CampaignRunning || c.Status == CampaignPaused
}

// SavedCampaignInfo summarizes a resumable checkpoint for the operator.
type SavedCampaignInfo struct {
	CampaignID string         `json:"campaign_id"`
	Subject    string         `json:"subject"`
	Remaining  int            `json:"remaining"`
	Total      int            `json:"total"`
	Status     CampaignStatus `json:"status"`
	StartedAt  time.Time      `json:"started_at"`
}

// QuotaState is the process-wide estimate of provider usage for the day.
type QuotaState struct {
	EstimatedUsed int       `json:"estimated_used"`
	DailyLimit    int       `json:"daily_limit"`
	LastUpdated   time.Time `json:"last_updated"`
}

// EstimatedRemaining returns the sends left before the daily limit.
func (q QuotaState) EstimatedRemaining() int {
	if rem := q.DailyLimit - q.EstimatedUsed; rem > 0 {
		return rem
	}
	return 0
}

// Summary is the final report of one execution.
type Summary struct {
	CampaignID string         `json:"campaign_id"`
	Strategy   Strategy       `json:"strategy"`
	Status     CampaignStatus `json:"status"`
	Total      int            `json:"total"`
	Sent       int            `json:"sent"`
	Failed     int            `json:"failed"`
	Skipped    int            `json:"skipped"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Results    []SendResult   `json:"results"`
	Error      string         `json:"error,omitempty"`
}

// Progress is the live view of a running execution.
type Progress struct {
	Current    int            `json:"current"`
	Total      int            `json:"total"`
	Percentage int            `json:"percentage"`
	StatusText string         `json:"status_text"`
	ETA        *time.Duration `json:"eta,omitempty"`
}

// SendState is the per-recipient status shown while a campaign runs.
type SendState string

const (
	SendPending SendState = "pending"
	SendSending SendState = "sending"
	SendSuccess SendState = "success"
	SendError   SendState = "error"
	SendSkipped SendState = "skipped"
)

// SendStatus is the live per-recipient status.
type SendStatus struct {
	Index   int       `json:"index"`
	Address string    `json:"address"`
	Status  SendState `json:"status"`
	Error   string    `json:"error,omitempty"`
}
