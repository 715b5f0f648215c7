package domain

import (
	"strings"
	"time"
)

// CampaignStatus enumerates the lifecycle states of a dispatch execution.
type CampaignStatus string

const (
	CampaignIdle      CampaignStatus = "idle"
	CampaignRunning   CampaignStatus = "running"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
	CampaignError     CampaignStatus = "error"
)

// IsTerminal returns true if no further sends will happen for the execution.
func (s CampaignStatus) IsTerminal() bool {
	return s == CampaignCompleted || s == CampaignError
}

// Strategy is the dispatch tier chosen for a campaign.
type Strategy string

const (
	StrategyDirect  Strategy = "direct"
	StrategyBatched Strategy = "batched"
	StrategyChunked Strategy = "chunked"
)

// SourceKind identifies where an attachment's bytes come from.
type SourceKind string

const (
	SourceInline      SourceKind = "inline"
	SourceObjectStore SourceKind = "object-store"
	SourceRemoteURL   SourceKind = "remote-url"
)

// AttachmentRef points at a campaign-level attachment shared by every recipient.
type AttachmentRef struct {
	Name     string     `json:"name"`
	MIMEType string     `json:"mime_type"`
	Source   SourceKind `json:"source_kind"`
	Locator  string     `json:"locator"`
}

// AttachmentOverride is a recipient-specific attachment fetched from its own URL.
type AttachmentOverride struct {
	URL      string `json:"url"`
	FileName string `json:"file_name"`
}

// ResolvedAttachment holds fetched attachment bytes, base64 encoded. It only
// ever lives in memory for the duration of one execution.
type ResolvedAttachment struct {
	Name        string `json:"-"`
	MIMEType    string `json:"-"`
	BytesBase64 string `json:"-"`
}

// Recipient is one entry of a campaign's ordered recipient list.
type Recipient struct {
	Address            string              `json:"address"`
	Fields             map[string]string   `json:"personalization_fields,omitempty"`
	AttachmentOverride *AttachmentOverride `json:"attachment_override,omitempty"`
}

// HasAddress reports whether the recipient carries a usable address.
func (r Recipient) HasAddress() bool {
	return strings.TrimSpace(r.Address) != ""
}

// Campaign is one bulk-send job targeting an ordered recipient list. The index
// of a recipient in Recipients is its identity for checkpointing.
type Campaign struct {
	ID              string          `json:"id"`
	SubjectTemplate string          `json:"subject_template"`
	BodyTemplate    string          `json:"body_template"`
	Recipients      []Recipient     `json:"recipients"`
	Attachments     []AttachmentRef `json:"attachments,omitempty"`
	Signature       string          `json:"signature,omitempty"`
	Status          CampaignStatus  `json:"status"`
	Strategy        Strategy        `json:"strategy"`
	CreatedAt       time.Time       `json:"created_at"`
}

// HasAttachments returns true if any recipient will receive an attachment,
// either shared or personalized.
func (c *Campaign) HasAttachments() bool {
	if len(c.Attachments) > 0 {
		return true
	}
	for _, r := range c.Recipients {
		if r.AttachmentOverride != nil && r.AttachmentOverride.URL != "" {
			return true
		}
	}
	return false
}

// ChunkGroup is a half-open [Start, End) slice over an ordered index list.
type ChunkGroup struct {
	Start int `json:"start_index"`
	End   int `json:"end_index"`
}

// Len returns the number of entries covered by the group.
func (g ChunkGroup) Len() int { return g.End - g.Start }
