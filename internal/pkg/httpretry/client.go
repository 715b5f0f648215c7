// Package httpretry is the HTTP client used to download remote-url
// attachments: bounded retries with jittered exponential backoff and a cap
// on how much of a response body is read.
package httpretry

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"strconv"
	"time"
)

// HTTPDoer executes requests. *http.Client and *RetryClient both satisfy it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RetryClient retries transient failures of an HTTPDoer.
type RetryClient struct {
	client     HTTPDoer
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	maxBody    int64
}

// Option configures a RetryClient.
type Option func(*RetryClient)

// WithBackoff overrides the base and maximum backoff delays.
func WithBackoff(base, max time.Duration) Option {
	return func(rc *RetryClient) {
		if base > 0 {
			rc.baseDelay = base
		}
		if max > 0 {
			rc.maxDelay = max
		}
	}
}

// WithMaxBodyBytes caps how much of a response body Get will read.
func WithMaxBodyBytes(n int64) Option {
	return func(rc *RetryClient) {
		if n > 0 {
			rc.maxBody = n
		}
	}
}

// NewRetryClient wraps client, or a 30s-timeout http.Client when nil.
// maxRetries counts attempts after the first and defaults to 3.
func NewRetryClient(client HTTPDoer, maxRetries int, opts ...Option) *RetryClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	rc := &RetryClient{
		client:     client,
		maxRetries: maxRetries,
		baseDelay:  time.Second,
		maxDelay:   30 * time.Second,
		maxBody:    25 << 20,
	}
	for _, opt := range opts {
		opt(rc)
	}
	return rc
}

// Do sends req, retrying network errors and 429/5xx gateway statuses.
// Other statuses are returned immediately. When retries run out on a
// retryable status, that last response is returned for the caller to read.
func (rc *RetryClient) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	var lastErr error
	var hint time.Duration

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if err := rc.rewind(req); err != nil {
				return nil, err
			}
			delay := rc.backoff(attempt, hint)
			log.Printf("[httpretry] %s %s%s retry %d/%d in %s",
				req.Method, req.URL.Host, req.URL.Path, attempt, rc.maxRetries, delay)
			if err := sleep(ctx, delay); err != nil {
				if lastErr != nil {
					return nil, lastErr
				}
				return nil, err
			}
		}

		resp, err := rc.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			lastErr, hint = err, 0
			if attempt == rc.maxRetries {
				return nil, lastErr
			}
			continue
		}

		if !retryable(resp.StatusCode) || attempt == rc.maxRetries {
			return resp, nil
		}
		hint = retryAfter(resp.Header.Get("Retry-After"))
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		lastErr = fmt.Errorf("httpretry: %s returned %d", req.URL.Host, resp.StatusCode)
	}
}

// StatusError is returned by Get for non-2xx responses.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("httpretry: GET %s returned status %d", e.URL, e.StatusCode)
}

// Get fetches url and returns the body and its Content-Type. Bodies over
// the configured cap are rejected, not truncated.
func (rc *RetryClient) Get(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("httpretry: building request: %w", err)
	}
	resp, err := rc.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, "", &StatusError{URL: url, StatusCode: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, rc.maxBody+1))
	if err != nil {
		return nil, "", fmt.Errorf("httpretry: reading body: %w", err)
	}
	if int64(len(body)) > rc.maxBody {
		return nil, "", fmt.Errorf("httpretry: body of %s exceeds %d bytes", url, rc.maxBody)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

func (rc *RetryClient) rewind(req *http.Request) error {
	if req.GetBody == nil {
		return nil
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Errorf("httpretry: failed to reset request body: %w", err)
	}
	req.Body = body
	return nil
}

// backoff is full jitter over base*2^(attempt-1), capped at maxDelay and
// floored at min(base, 100ms). A server Retry-After wins when it is larger,
// still bounded by maxDelay.
func (rc *RetryClient) backoff(attempt int, hint time.Duration) time.Duration {
	ceiling := rc.maxDelay
	if shift := attempt - 1; shift < 30 {
		if d := rc.baseDelay << shift; d > 0 && d < ceiling {
			ceiling = d
		}
	}
	d := time.Duration(rand.Int63n(int64(ceiling) + 1))

	floor := min(rc.baseDelay, 100*time.Millisecond)
	d = max(d, floor, min(hint, rc.maxDelay))
	return d
}

// retryAfter parses the delay-seconds form of Retry-After.
func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func retryable(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
