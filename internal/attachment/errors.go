package attachment

import "errors"

var (
	// ErrResolution wraps every failure to resolve a shared attachment.
	ErrResolution = errors.New("attachment resolution failed")
	// ErrNotFound means the source has no object at the locator.
	ErrNotFound = errors.New("attachment not found")
	// ErrAccessDenied means the source refused the read.
	ErrAccessDenied = errors.New("attachment access denied")
	// ErrInvalidInline means an inline locator is not valid base64.
	ErrInvalidInline = errors.New("invalid inline attachment payload")
	// ErrTooLarge means the payload exceeds the configured byte cap.
	ErrTooLarge = errors.New("attachment exceeds size limit")
	// ErrUnsupportedSource means no ObjectStore is registered for the kind.
	ErrUnsupportedSource = errors.New("unsupported attachment source")
)
