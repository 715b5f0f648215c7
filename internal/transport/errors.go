package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies a send failure.
type Kind string

const (
	KindAuthExpired      Kind = "auth-expired"
	KindQuotaExceeded    Kind = "quota-exceeded"
	KindInvalidRecipient Kind = "invalid-recipient"
	KindSizeLimit        Kind = "size-limit"
	KindNetwork          Kind = "network"
	KindUnknown          Kind = "unknown"
)

// Error is the typed failure returned by every adapter.
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds an Error wrapping cause.
func NewError(kind Kind, status int, msg string, cause error) *Error {
	if msg == "" && cause != nil {
		msg = cause.Error()
	}
	return &Error{Kind: kind, StatusCode: status, Message: msg, Err: cause}
}

// KindOf classifies err. Untyped network failures are KindNetwork; anything
// else unrecognized is KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return KindNetwork
	}
	return KindUnknown
}

// Retryable reports whether another attempt may succeed without changing anything.
func (k Kind) Retryable() bool {
	return k == KindNetwork || k == KindUnknown
}

// Fatal reports whether the failure dooms every remaining send of the run.
func (k Kind) Fatal() bool {
	return k == KindQuotaExceeded || k == KindSizeLimit
}
