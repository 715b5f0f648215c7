package attachment

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ignite/campaign-dispatch/internal/domain"
	"github.com/ignite/campaign-dispatch/internal/pkg/httpretry"
)

// Fetcher is the subset of httpretry.RetryClient used by URLSource.
type Fetcher interface {
	Get(ctx context.Context, url string) ([]byte, string, error)
}

// URLSource downloads attachments over HTTP(S).
type URLSource struct {
	client Fetcher
}

// NewURLSource wraps a retrying HTTP client.
func NewURLSource(client Fetcher) *URLSource {
	return &URLSource{client: client}
}

func (s *URLSource) ResolveAttachment(ctx context.Context, locator string) (domain.ResolvedAttachment, error) {
	u, err := url.Parse(locator)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return domain.ResolvedAttachment{}, fmt.Errorf("invalid attachment URL %q", locator)
	}

	data, contentType, err := s.client.Get(ctx, locator)
	if err != nil {
		var statusErr *httpretry.StatusError
		if errors.As(err, &statusErr) {
			switch statusErr.StatusCode {
			case http.StatusNotFound, http.StatusGone:
				return domain.ResolvedAttachment{}, fmt.Errorf("%w: %v", ErrNotFound, err)
			case http.StatusUnauthorized, http.StatusForbidden:
				return domain.ResolvedAttachment{}, fmt.Errorf("%w: %v", ErrAccessDenied, err)
			}
		}
		return domain.ResolvedAttachment{}, fmt.Errorf("fetching %s: %w", u.Redacted(), err)
	}

	name := nameFromLocator(u.Path)
	return domain.ResolvedAttachment{
		Name:        name,
		MIMEType:    detectMIME(contentType, name, data),
		BytesBase64: base64.StdEncoding.EncodeToString(data),
	}, nil
}
