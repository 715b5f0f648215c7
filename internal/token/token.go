// Package token keeps the sending credential alive for the duration of a
// campaign. The dispatch engine only sees IdentityProvider and Monitor.
package token

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrCredentialUnavailable means no usable credential could be obtained.
	ErrCredentialUnavailable = errors.New("credential unavailable")
	// ErrNoRefreshToken means the provider was configured without a refresh token.
	ErrNoRefreshToken = errors.New("no refresh token configured")
)

// Status describes the liveness of the current credential.
type Status struct {
	Valid            bool      `json:"valid"`
	MinutesRemaining int       `json:"minutes_remaining"`
	ExpiresAt        time.Time `json:"expires_at,omitempty"`
}

// IdentityProvider issues the credential passed to the mail transport.
type IdentityProvider interface {
	// TokenStatus reports whether the current credential is usable and for how long.
	TokenStatus(ctx context.Context) (Status, error)
	// Refresh obtains a new credential.
	Refresh(ctx context.Context) (string, error)
	// Credential returns the current credential, refreshing if it has none.
	Credential(ctx context.Context) (string, error)
}

// StaticProvider hands out a fixed credential that never expires. Used with
// transports that authenticate on their own, such as SES.
type StaticProvider struct {
	Value string
}

func (p StaticProvider) TokenStatus(context.Context) (Status, error) {
	return Status{Valid: true, MinutesRemaining: 24 * 60}, nil
}

func (p StaticProvider) Refresh(context.Context) (string, error) { return p.Value, nil }

func (p StaticProvider) Credential(context.Context) (string, error) { return p.Value, nil }
