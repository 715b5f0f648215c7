package transport

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/ignite/campaign-dispatch/internal/config"
	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
)

const gmailSendPath = "/gmail/v1/users/me/messages/send"

// GmailTransport sends through the Gmail REST API as the authenticated user.
// The credential is an OAuth2 access token.
type GmailTransport struct {
	baseURL string
	client  *http.Client
}

// NewGmailTransport creates a Gmail adapter from config.
func NewGmailTransport(cfg config.GmailConfig) *GmailTransport {
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GmailTransport{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type gmailSendResponse struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId"`
}

type gmailErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
		Errors  []struct {
			Reason  string `json:"reason"`
			Message string `json:"message"`
		} `json:"errors"`
	} `json:"error"`
}

// Send delivers msg and returns the Gmail message ID.
func (g *GmailTransport) Send(ctx context.Context, credential string, msg *Message) (string, error) {
	if credential == "" {
		return "", NewError(KindAuthExpired, 0, "no access token", nil)
	}

	raw, err := msg.Raw()
	if err != nil {
		return "", NewError(KindUnknown, 0, "building message", err)
	}

	payload, err := json.Marshal(map[string]string{
		"raw": base64.URLEncoding.EncodeToString(raw),
	})
	if err != nil {
		return "", NewError(KindUnknown, 0, "encoding request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+gmailSendPath, bytes.NewReader(payload))
	if err != nil {
		return "", NewError(KindUnknown, 0, "building request", err)
	}
	req.Header.Set("Authorization", "Bearer "+credential)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", NewError(KindNetwork, 0, "", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode >= 400 {
		return "", classifyGmailError(resp.StatusCode, body)
	}

	var result gmailSendResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", NewError(KindUnknown, resp.StatusCode, "decoding response", err)
	}

	log.Printf("[Gmail] Sent to %s (id: %s)", logger.RedactEmail(msg.To), result.ID)
	return result.ID, nil
}

func classifyGmailError(status int, body []byte) *Error {
	var parsed gmailErrorResponse
	_ = json.Unmarshal(body, &parsed)

	message := parsed.Error.Message
	if message == "" {
		message = strings.TrimSpace(string(body))
	}
	if message == "" {
		message = http.StatusText(status)
	}

	reason := ""
	if len(parsed.Error.Errors) > 0 {
		reason = parsed.Error.Errors[0].Reason
	}

	switch reason {
	case "dailyLimitExceeded", "quotaExceeded":
		return NewError(KindQuotaExceeded, status, message, nil)
	case "rateLimitExceeded", "userRateLimitExceeded", "backendError":
		return NewError(KindNetwork, status, message, nil)
	case "authError", "invalidCredentials":
		return NewError(KindAuthExpired, status, message, nil)
	}

	switch {
	case status == http.StatusUnauthorized:
		return NewError(KindAuthExpired, status, message, nil)
	case status == http.StatusRequestEntityTooLarge:
		return NewError(KindSizeLimit, status, message, nil)
	case status == http.StatusTooManyRequests || status >= 500:
		return NewError(KindNetwork, status, message, nil)
	case status == http.StatusBadRequest && isRecipientProblem(message):
		return NewError(KindInvalidRecipient, status, message, nil)
	case status == http.StatusBadRequest && strings.Contains(strings.ToLower(message), "too large"):
		return NewError(KindSizeLimit, status, message, nil)
	}
	return NewError(KindUnknown, status, fmt.Sprintf("gmail: %s", message), nil)
}

func isRecipientProblem(message string) bool {
	m := strings.ToLower(message)
	return strings.Contains(m, "invalid to header") ||
		strings.Contains(m, "recipient address required") ||
		strings.Contains(m, "invalid recipient")
}
