package dispatch

import (
	"errors"

	"github.com/ignite/campaign-dispatch/internal/attachment"
	"github.com/ignite/campaign-dispatch/internal/token"
)

var (
	// ErrAlreadyRunning is returned when the session is already sending.
	ErrAlreadyRunning = errors.New("a campaign is already running")
	// ErrNoSavedCampaign is returned by Resume when nothing resumable is stored.
	ErrNoSavedCampaign = errors.New("no saved campaign to resume")
	// ErrNoFailedEmails is returned by RetryFailedEmails when the last run had no failures.
	ErrNoFailedEmails = errors.New("no failed emails to retry")
	// ErrNoRecipients is returned when a campaign has an empty recipient list.
	ErrNoRecipients = errors.New("campaign has no recipients")
	// ErrMessageTooLarge is returned when the shared payload exceeds the size limit.
	ErrMessageTooLarge = errors.New("message exceeds size limit")
	// ErrProviderQuota is returned when the provider reports the account is out of quota.
	ErrProviderQuota = errors.New("provider quota exhausted")

	// ErrCredentialUnavailable is returned when no valid credential can be obtained.
	ErrCredentialUnavailable = token.ErrCredentialUnavailable
	// ErrAttachmentResolution is returned when a shared attachment cannot be fetched.
	ErrAttachmentResolution = attachment.ErrResolution
)

// fatalError marks an item failure that must stop the whole run.
type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

func fatal(err error) error {
	if err == nil {
		return nil
	}
	var fe *fatalError
	if errors.As(err, &fe) {
		return err
	}
	return &fatalError{err: err}
}

// IsFatal reports whether err carries a run-stopping failure.
func IsFatal(err error) bool {
	var fe *fatalError
	return errors.As(err, &fe)
}

func unwrapFatal(err error) error {
	var fe *fatalError
	if errors.As(err, &fe) {
		return fe.err
	}
	return err
}
