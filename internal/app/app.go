// Package app assembles a dispatch session from configuration. Both the
// control API server and the one-shot CLI start here.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/campaign-dispatch/internal/attachment"
	"github.com/ignite/campaign-dispatch/internal/checkpoint"
	"github.com/ignite/campaign-dispatch/internal/config"
	"github.com/ignite/campaign-dispatch/internal/dispatch"
	"github.com/ignite/campaign-dispatch/internal/kvstore"
	"github.com/ignite/campaign-dispatch/internal/pkg/distlock"
	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
	"github.com/ignite/campaign-dispatch/internal/quota"
	"github.com/ignite/campaign-dispatch/internal/token"
	"github.com/ignite/campaign-dispatch/internal/transport"
)

// App holds a ready session and the shared clients behind it.
type App struct {
	Config  *config.Config
	Session *dispatch.Session
	Monitor *token.Monitor
	Backend kvstore.Backend
	// Redis and DB are set when the checkpoint driver uses them.
	Redis *redis.Client
	DB    *sql.DB
}

// ErrMissingRefreshToken is returned when the Gmail transport has no OAuth
// refresh token to mint send credentials from.
var ErrMissingRefreshToken = errors.New("gmail transport requires oauth.refresh_token (GOOGLE_REFRESH_TOKEN)")

// Build wires configuration into a session. Close releases what it opened.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	logger.SetRedactPII(cfg.Log.ShouldRedact())

	backend, err := kvstore.Open(ctx, cfg.Checkpoint)
	if err != nil {
		return nil, fmt.Errorf("opening checkpoint backend: %w", err)
	}
	a := &App{Config: cfg, Backend: backend}
	switch b := backend.(type) {
	case *kvstore.Redis:
		a.Redis = b.Client()
	case *kvstore.Postgres:
		a.DB = b.DB()
	}
	log.Printf("[App] Checkpoint backend: %s", cfg.Checkpoint.Driver)

	provider, err := identityProvider(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Monitor = token.NewMonitor(provider, time.Duration(cfg.Dispatch.TokenRefreshMinutes)*time.Minute)

	tr, err := transport.New(ctx, cfg.Transport)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating %s transport: %w", cfg.Transport.Provider, err)
	}

	resolver, err := attachment.NewFromConfig(ctx, cfg.Attachments, cfg.Dispatch.AttachmentFetchParallel)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating attachment resolver: %w", err)
	}

	deps := dispatch.Dependencies{
		Transport:   tr,
		Resolver:    resolver,
		Monitor:     a.Monitor,
		Checkpoints: checkpoint.NewStore(backend, cfg.Dispatch.SessionID),
		Quota:       quota.NewTracker(backend, cfg.Quota.DailyLimit, cfg.Quota.Location()),
		From:        transport.FormatAddress(cfg.Transport.FromName, cfg.Transport.FromEmail),
		Tuning:      dispatch.TuningFromConfig(cfg.Dispatch),
	}
	if cfg.Lock.Enabled {
		deps.Lock = distlock.NewLock(a.Redis, a.DB, cfg.Dispatch.SessionID, cfg.Lock.TTL())
		log.Printf("[App] Session lock enabled for %q", cfg.Dispatch.SessionID)
	}

	a.Session, err = dispatch.NewSession(deps)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// identityProvider picks the credential source. SES signs requests with
// its own AWS credentials, so it only needs a placeholder.
func identityProvider(cfg *config.Config) (token.IdentityProvider, error) {
	if strings.EqualFold(cfg.Transport.Provider, "ses") {
		return token.StaticProvider{Value: "aws-sigv4"}, nil
	}
	if cfg.OAuth.RefreshToken == "" {
		return nil, ErrMissingRefreshToken
	}
	return token.NewOAuthProvider(cfg.OAuth), nil
}

// LogSavedCampaign reports a resumable campaign left by an earlier process.
func (a *App) LogSavedCampaign(ctx context.Context) {
	info, err := a.Session.SavedCampaignInfo(ctx)
	if err != nil {
		return
	}
	logger.Info("saved campaign found",
		"campaign_id", info.CampaignID,
		"subject", info.Subject,
		"remaining", info.Remaining,
		"total", info.Total,
		"status", string(info.Status),
	)
}

// Close releases the backend.
func (a *App) Close() error {
	if a.Backend == nil {
		return nil
	}
	return a.Backend.Close()
}
