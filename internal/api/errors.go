package api

import (
	"errors"
	"net/http"

	"github.com/ignite/campaign-dispatch/internal/dispatch"
	"github.com/ignite/campaign-dispatch/internal/pkg/httputil"
)

// respondDispatchError maps session errors to status codes. Anything
// unrecognized is logged and returned as a generic 500.
func respondDispatchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, dispatch.ErrAlreadyRunning):
		httputil.ErrorCode(w, http.StatusConflict, "already_running", err.Error())
	case errors.Is(err, dispatch.ErrNoSavedCampaign):
		httputil.ErrorCode(w, http.StatusNotFound, "no_saved_campaign", err.Error())
	case errors.Is(err, dispatch.ErrNoFailedEmails):
		httputil.ErrorCode(w, http.StatusNotFound, "no_failed_emails", err.Error())
	case errors.Is(err, dispatch.ErrNoRecipients):
		httputil.ErrorCode(w, http.StatusBadRequest, "no_recipients", err.Error())
	default:
		httputil.InternalError(w, err)
	}
}
