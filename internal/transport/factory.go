package transport

import (
	"context"
	"fmt"
	"strings"

	"github.com/ignite/campaign-dispatch/internal/config"
)

// New builds the adapter named by cfg.Provider.
func New(ctx context.Context, cfg config.TransportConfig) (Transport, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "gmail":
		return NewGmailTransport(cfg.Gmail), nil
	case "ses":
		return NewSESTransport(ctx, cfg.SES)
	default:
		return nil, fmt.Errorf("unknown mail provider %q", cfg.Provider)
	}
}
