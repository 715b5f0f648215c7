package dispatch

import (
	"fmt"
	"log"

	"github.com/ignite/campaign-dispatch/internal/domain"
	"github.com/ignite/campaign-dispatch/internal/transport"
)

// buildSharedPayload renders the MIME payload once for a campaign with no
// placeholders. Recipients later get To, Date and Message-ID prepended. Returns
// nil when the campaign needs per-recipient rendering.
func buildSharedPayload(c *domain.Campaign, from string, shared []domain.ResolvedAttachment, maxBytes int64) ([]byte, error) {
	if HasPlaceholders(c.SubjectTemplate, c.BodyTemplate) {
		return nil, nil
	}
	// Per-recipient attachments make every message different
	for _, r := range c.Recipients {
		if r.AttachmentOverride != nil && r.AttachmentOverride.URL != "" {
			return nil, nil
		}
	}

	payload, err := transport.BuildMIME(
		transport.Headers{From: from, Subject: c.SubjectTemplate, Shared: true},
		AppendSignature(c.BodyTemplate, c.Signature),
		shared,
	)
	if err != nil {
		return nil, fmt.Errorf("building shared payload: %w", err)
	}
	if maxBytes > 0 && int64(len(payload)) > maxBytes {
		return nil, fmt.Errorf("%w: shared payload is %d bytes, limit %d", ErrMessageTooLarge, len(payload), maxBytes)
	}

	log.Printf("[Dispatch] Prebuilt shared payload (%d bytes) for campaign %s", len(payload), c.ID)
	return payload, nil
}
