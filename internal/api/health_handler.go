package api

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/campaign-dispatch/internal/pkg/httputil"
	"github.com/ignite/campaign-dispatch/internal/token"
)

// Component states reported under "checks".
const (
	componentUp       = "up"
	componentDegraded = "degraded"
	componentDown     = "down"
	componentDisabled = "disabled"
)

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status  string                    `json:"status"` // healthy, degraded, unhealthy
	Version string                    `json:"version"`
	Uptime  string                    `json:"uptime"`
	Checks  map[string]ComponentCheck `json:"checks"`
}

// ComponentCheck is the state of one dependency.
type ComponentCheck struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// CredentialChecker reports the send credential state. *token.Monitor
// implements it.
type CredentialChecker interface {
	Status(ctx context.Context) (token.Status, error)
}

type componentCheck struct {
	name string
	run  func(context.Context) ComponentCheck
}

// HealthChecker checks the checkpoint backend and the send credential.
// Nil dependencies are reported as disabled.
type HealthChecker struct {
	components []componentCheck
	startTime  time.Time
}

// NewHealthChecker builds the checks for whichever dependencies are set.
func NewHealthChecker(db *sql.DB, redisClient *redis.Client, credentials CredentialChecker) *HealthChecker {
	hc := &HealthChecker{startTime: time.Now()}
	hc.components = []componentCheck{
		{"database", func(ctx context.Context) ComponentCheck {
			if db == nil {
				return ComponentCheck{Status: componentDisabled}
			}
			return timedPing(ctx, 3*time.Second, time.Second, db.PingContext)
		}},
		{"redis", func(ctx context.Context) ComponentCheck {
			if redisClient == nil {
				return ComponentCheck{Status: componentDisabled}
			}
			return timedPing(ctx, 2*time.Second, 500*time.Millisecond, func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			})
		}},
		{"credential", func(ctx context.Context) ComponentCheck {
			if credentials == nil {
				return ComponentCheck{Status: componentDisabled}
			}
			return credentialCheck(ctx, credentials)
		}},
	}
	return hc
}

const healthVersion = "1.0.0"

// HandleHealth always answers 200; the body carries the verdict.
//
//	GET /health
func (hc *HealthChecker) HandleHealth(w http.ResponseWriter, r *http.Request) {
	checks := hc.check(r.Context())
	httputil.OK(w, HealthStatus{
		Status:  overallStatus(checks),
		Version: healthVersion,
		Uptime:  formatUptime(time.Since(hc.startTime)),
		Checks:  checks,
	})
}

// HandleLiveness answers 200 while the process runs.
//
//	GET /health/live
func (hc *HealthChecker) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]any{
		"status": "alive",
		"uptime": formatUptime(time.Since(hc.startTime)),
	})
}

// HandleReadiness answers 503 when an enabled dependency is down.
//
//	GET /health/ready
func (hc *HealthChecker) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	checks := hc.check(r.Context())
	overall := overallStatus(checks)
	ready := overall != "unhealthy"

	code := http.StatusOK
	if !ready {
		code = http.StatusServiceUnavailable
	}
	httputil.JSON(w, code, map[string]any{
		"ready":  ready,
		"status": overall,
		"checks": checks,
	})
}

func (hc *HealthChecker) check(ctx context.Context) map[string]ComponentCheck {
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		checks = make(map[string]ComponentCheck, len(hc.components))
	)
	for _, p := range hc.components {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := p.run(ctx)
			mu.Lock()
			checks[p.name] = c
			mu.Unlock()
		}()
	}
	wg.Wait()
	return checks
}

// timedPing runs ping under timeout and grades it by latency.
func timedPing(ctx context.Context, timeout, slow time.Duration, ping func(context.Context) error) ComponentCheck {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := ping(ctx)
	latency := time.Since(start)

	c := ComponentCheck{Status: componentUp, Latency: latency.String(), Message: "connected"}
	switch {
	case err != nil:
		c.Status, c.Message = componentDown, fmt.Sprintf("ping failed: %v", err)
	case latency > slow:
		c.Status, c.Message = componentDegraded, fmt.Sprintf("slow response (%s)", latency)
	}
	return c
}

// credentialCheck degrades a credential that is expired or inside the
// refresh window; the engine refreshes it before the next send.
func credentialCheck(ctx context.Context, credentials CredentialChecker) ComponentCheck {
	status, err := credentials.Status(ctx)
	switch {
	case err != nil:
		return ComponentCheck{Status: componentDown, Message: fmt.Sprintf("status check failed: %v", err)}
	case !status.Valid:
		return ComponentCheck{Status: componentDegraded, Message: "expired, will refresh before the next send"}
	case time.Duration(status.MinutesRemaining)*time.Minute < token.DefaultRefreshThreshold:
		return ComponentCheck{Status: componentDegraded, Message: fmt.Sprintf("expires in %d min", status.MinutesRemaining)}
	}
	return ComponentCheck{Status: componentUp, Message: fmt.Sprintf("valid for %d min", status.MinutesRemaining)}
}

// overallStatus: any enabled component down is unhealthy, any degraded
// is degraded.
func overallStatus(checks map[string]ComponentCheck) string {
	overall := "healthy"
	for _, c := range checks {
		switch c.Status {
		case componentDown:
			return "unhealthy"
		case componentDegraded:
			overall = "degraded"
		}
	}
	return overall
}

// formatUptime renders "3d 4h 12m 5s", dropping leading zero units.
func formatUptime(d time.Duration) string {
	s := int(d.Seconds())
	days, hours, minutes, seconds := s/86400, s/3600%24, s/60%60, s%60
	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
