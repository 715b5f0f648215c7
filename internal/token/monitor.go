package token

import (
	"context"
	"fmt"
	"log"
	"time"
)

// DefaultRefreshThreshold is how close to expiry a credential may get before
// the monitor refreshes it proactively.
const DefaultRefreshThreshold = 5 * time.Minute

// Monitor checks credential liveness between groups and refreshes it ahead
// of expiry.
type Monitor struct {
	provider  IdentityProvider
	threshold time.Duration
}

// NewMonitor wraps provider. A non-positive threshold uses DefaultRefreshThreshold.
func NewMonitor(provider IdentityProvider, threshold time.Duration) *Monitor {
	if threshold <= 0 {
		threshold = DefaultRefreshThreshold
	}
	return &Monitor{provider: provider, threshold: threshold}
}

// Ensure returns a credential that is valid for at least the threshold,
// refreshing when necessary. Failure wraps ErrCredentialUnavailable.
func (m *Monitor) Ensure(ctx context.Context) (string, error) {
	status, err := m.provider.TokenStatus(ctx)
	if err != nil {
		log.Printf("[Token] Status check failed, refreshing: %v", err)
		return m.ForceRefresh(ctx)
	}

	if !status.Valid || time.Duration(status.MinutesRemaining)*time.Minute < m.threshold {
		log.Printf("[Token] Credential valid=%v with %d min left, refreshing", status.Valid, status.MinutesRemaining)
		return m.ForceRefresh(ctx)
	}

	cred, err := m.provider.Credential(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCredentialUnavailable, err)
	}
	return cred, nil
}

// ForceRefresh refreshes unconditionally, used after an auth-expired send.
func (m *Monitor) ForceRefresh(ctx context.Context) (string, error) {
	cred, err := m.provider.Refresh(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCredentialUnavailable, err)
	}
	if cred == "" {
		return "", fmt.Errorf("%w: provider returned an empty credential", ErrCredentialUnavailable)
	}
	return cred, nil
}

// Status exposes the provider's view for the control API.
func (m *Monitor) Status(ctx context.Context) (Status, error) {
	return m.provider.TokenStatus(ctx)
}
