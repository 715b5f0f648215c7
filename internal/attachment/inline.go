package attachment

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/ignite/campaign-dispatch/internal/domain"
)

// InlineSource decodes base64 payloads carried in the locator itself.
type InlineSource struct {
	MaxBytes int64
}

func (s InlineSource) ResolveAttachment(_ context.Context, locator string) (domain.ResolvedAttachment, error) {
	payload := strings.TrimSpace(locator)
	hint := ""

	// data:<type>;base64,<payload>
	if strings.HasPrefix(payload, "data:") {
		comma := strings.IndexByte(payload, ',')
		if comma < 0 || !strings.HasSuffix(payload[:comma], ";base64") {
			return domain.ResolvedAttachment{}, fmt.Errorf("%w: malformed data URL", ErrInvalidInline)
		}
		hint = strings.TrimSuffix(strings.TrimPrefix(payload[:comma], "data:"), ";base64")
		payload = payload[comma+1:]
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return domain.ResolvedAttachment{}, fmt.Errorf("%w: %v", ErrInvalidInline, err)
	}
	if s.MaxBytes > 0 && int64(len(data)) > s.MaxBytes {
		return domain.ResolvedAttachment{}, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(data))
	}

	return domain.ResolvedAttachment{
		MIMEType:    detectMIME(hint, "", data),
		BytesBase64: base64.StdEncoding.EncodeToString(data),
	}, nil
}
