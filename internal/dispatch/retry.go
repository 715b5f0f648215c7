package dispatch

import (
	"context"
	"fmt"
	"log"

	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
	"github.com/ignite/campaign-dispatch/internal/transport"
)

// sendWithRetry delivers msg with up to MaxAttempts tries at a fixed delay.
// invalid-recipient fails at once, auth-expired triggers a single forced
// refresh, and quota/size failures are returned as fatal.
func (r *run) sendWithRetry(ctx context.Context, msg *transport.Message) (string, int, error) {
	maxAttempts := r.tuning.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var (
		lastErr   error
		refreshed bool
		attempts  int
	)

	for attempts < maxAttempts {
		attempts++
		cred := r.credential()

		id, err := r.s.transport.Send(ctx, cred, msg)
		if err == nil {
			return id, attempts, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return "", attempts, ctx.Err()
		}

		switch kind := transport.KindOf(err); kind {
		case transport.KindInvalidRecipient:
			return "", attempts, err

		case transport.KindQuotaExceeded:
			return "", attempts, fatal(fmt.Errorf("%w: %v", ErrProviderQuota, err))

		case transport.KindSizeLimit:
			return "", attempts, fatal(fmt.Errorf("%w: %v", ErrMessageTooLarge, err))

		case transport.KindAuthExpired:
			if refreshed {
				return "", attempts, fatal(fmt.Errorf("%w: rejected again after refresh: %v", ErrCredentialUnavailable, err))
			}
			refreshed = true
			log.Printf("[Dispatch] Credential rejected sending to %s, forcing refresh", logger.RedactEmail(msg.To))
			if err := r.refreshCredential(ctx, cred); err != nil {
				return "", attempts, fatal(err)
			}
			continue
		}

		if attempts < maxAttempts {
			log.Printf("[Dispatch] Attempt %d/%d to %s failed: %v", attempts, maxAttempts, logger.RedactEmail(msg.To), err)
			if err := waitOrStop(ctx, r.token, r.s.sleep, r.tuning.RetryDelay); err != nil {
				return "", attempts, err
			}
		}
	}

	return "", attempts, lastErr
}
