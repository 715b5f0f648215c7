// Package transport delivers one rendered message through an external mail
// provider. Adapters classify provider failures into Error kinds so the
// dispatch engine can decide between retry, refresh and stop without
// inspecting provider-specific messages.
package transport

import (
	"context"
	"net/mail"
	"strings"

	"github.com/ignite/campaign-dispatch/internal/domain"
)

// Transport sends a single message using the given credential.
type Transport interface {
	Send(ctx context.Context, credential string, msg *Message) (string, error)
}

// Message is one outbound email.
type Message struct {
	CampaignID  string
	From        string
	To          string
	Subject     string
	HTMLBody    string
	Attachments []domain.ResolvedAttachment

	// Prebuilt is a MIME payload built with Headers.Shared, shared by
	// every recipient of a non-personalized campaign. When set, Subject,
	// HTMLBody and Attachments are ignored.
	Prebuilt []byte
}

// Raw returns the full RFC 5322 payload for the message.
func (m *Message) Raw() ([]byte, error) {
	if len(m.Prebuilt) > 0 {
		return WithRecipient(m.Prebuilt, m.To), nil
	}
	return BuildMIME(Headers{From: m.From, To: m.To, Subject: m.Subject}, m.HTMLBody, m.Attachments)
}

// FormatAddress renders "Name <email>", or the bare address without a name.
func FormatAddress(name, email string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return email
	}
	return encodeHeader(name) + " <" + email + ">"
}

// ValidateAddress rejects recipient addresses that are not a single
// RFC 5322 address, including any carrying header line breaks.
func ValidateAddress(addr string) error {
	if strings.ContainsAny(addr, "\r\n") {
		return NewError(KindInvalidRecipient, 0, "invalid recipient address", nil)
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(addr)); err != nil {
		return NewError(KindInvalidRecipient, 0, "invalid recipient address", err)
	}
	return nil
}
