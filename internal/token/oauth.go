package token

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/ignite/campaign-dispatch/internal/config"
)

// OAuthProvider exchanges a long-lived refresh token for short-lived access
// tokens through the OAuth2 token endpoint.
type OAuthProvider struct {
	oauth2Config *oauth2.Config
	refreshToken string
	now          func() time.Time

	mu    sync.Mutex
	token *oauth2.Token
}

// NewOAuthProvider creates a provider from the oauth config section. The
// Google endpoint is used unless a token URL is configured.
func NewOAuthProvider(cfg config.OAuthConfig) *OAuthProvider {
	endpoint := google.Endpoint
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}

	return &OAuthProvider{
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       cfg.Scopes,
			Endpoint:     endpoint,
		},
		refreshToken: cfg.RefreshToken,
		now:          time.Now,
	}
}

// TokenStatus reports on the cached access token without contacting the endpoint.
func (p *OAuthProvider) TokenStatus(context.Context) (Status, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token == nil || p.token.AccessToken == "" {
		return Status{}, nil
	}
	if p.token.Expiry.IsZero() {
		return Status{Valid: true, MinutesRemaining: 24 * 60}, nil
	}

	remaining := p.token.Expiry.Sub(p.now())
	if remaining <= 0 {
		return Status{ExpiresAt: p.token.Expiry}, nil
	}
	return Status{
		Valid:            true,
		MinutesRemaining: int(remaining / time.Minute),
		ExpiresAt:        p.token.Expiry,
	}, nil
}

// Refresh forces a token exchange.
func (p *OAuthProvider) Refresh(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refreshLocked(ctx)
}

// Credential returns the cached access token, exchanging one if needed.
func (p *OAuthProvider) Credential(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != nil && p.token.AccessToken != "" && (p.token.Expiry.IsZero() || p.token.Expiry.After(p.now())) {
		return p.token.AccessToken, nil
	}
	return p.refreshLocked(ctx)
}

func (p *OAuthProvider) refreshLocked(ctx context.Context) (string, error) {
	if p.refreshToken == "" {
		return "", ErrNoRefreshToken
	}

	// A token carrying only the refresh token is never valid, so the source
	// always hits the endpoint.
	src := p.oauth2Config.TokenSource(ctx, &oauth2.Token{RefreshToken: p.refreshToken})
	tok, err := src.Token()
	if err != nil {
		return "", fmt.Errorf("refreshing access token: %w", err)
	}

	if tok.RefreshToken != "" && tok.RefreshToken != p.refreshToken {
		log.Printf("[Token] Refresh token rotated by provider")
		p.refreshToken = tok.RefreshToken
	}
	p.token = tok
	log.Printf("[Token] Access token refreshed, expires %s", tok.Expiry.Format(time.RFC3339))
	return tok.AccessToken, nil
}
