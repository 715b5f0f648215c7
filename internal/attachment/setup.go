package attachment

import (
	"context"
	"log"
	"net/http"

	"github.com/ignite/campaign-dispatch/internal/config"
	"github.com/ignite/campaign-dispatch/internal/domain"
	"github.com/ignite/campaign-dispatch/internal/pkg/httpretry"
)

// NewFromConfig wires all three sources. Without a bucket or endpoint the
// object-store source is left out and such refs fail as unsupported.
func NewFromConfig(ctx context.Context, cfg config.AttachmentsConfig, parallel int) (*Resolver, error) {
	httpClient := httpretry.NewRetryClient(
		&http.Client{Timeout: cfg.Timeout()},
		cfg.MaxRetries,
		httpretry.WithMaxBodyBytes(cfg.MaxBytes),
	)

	stores := map[domain.SourceKind]ObjectStore{
		domain.SourceInline:    InlineSource{MaxBytes: cfg.MaxBytes},
		domain.SourceRemoteURL: NewURLSource(httpClient),
	}

	if cfg.S3Bucket != "" || cfg.S3Endpoint != "" {
		src, err := NewS3Source(ctx, cfg)
		if err != nil {
			return nil, err
		}
		stores[domain.SourceObjectStore] = src
	} else {
		log.Printf("[Attachment] No S3 bucket configured, object-store attachments disabled")
	}

	return NewResolver(stores, parallel), nil
}
