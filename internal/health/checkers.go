package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/praxian-ai/scout/internal/circuitbreaker"
)

// RedisChecker probes the session store. It reports the circuit
// breaker state without probing when the breaker is open.
type RedisChecker struct {
	client *circuitbreaker.RedisClient
}

func NewRedisChecker(client *circuitbreaker.RedisClient) *RedisChecker {
	return &RedisChecker{client: client}
}

func (r *RedisChecker) Name() string           { return "redis" }
func (r *RedisChecker) Critical() bool         { return true }
func (r *RedisChecker) Timeout() time.Duration { return 3 * time.Second }

func (r *RedisChecker) Check(ctx context.Context) CheckResult {
	if state := r.client.State(); state == circuitbreaker.StateOpen {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: "circuit breaker open",
		}
	}
	if err := r.client.Ping(ctx); err != nil {
		return CheckResult{
			Status: StatusUnhealthy,
			Error:  err.Error(),
		}
	}
	return CheckResult{Status: StatusHealthy, Message: "ping ok"}
}

// DatabaseChecker probes the plan archive. Persistence is best-effort,
// so failures degrade the service instead of making it unready.
type DatabaseChecker struct {
	db *circuitbreaker.DatabaseClient
}

func NewDatabaseChecker(db *circuitbreaker.DatabaseClient) *DatabaseChecker {
	return &DatabaseChecker{db: db}
}

func (d *DatabaseChecker) Name() string           { return "postgres" }
func (d *DatabaseChecker) Critical() bool         { return false }
func (d *DatabaseChecker) Timeout() time.Duration { return 5 * time.Second }

func (d *DatabaseChecker) Check(ctx context.Context) CheckResult {
	if state := d.db.State(); state == circuitbreaker.StateOpen {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: "circuit breaker open",
		}
	}
	if err := d.db.PingContext(ctx); err != nil {
		return CheckResult{
			Status: StatusUnhealthy,
			Error:  err.Error(),
		}
	}
	return CheckResult{Status: StatusHealthy, Message: "ping ok"}
}

// HTTPChecker probes a dependency over a plain GET. Used for Qdrant
// (/readyz) and the embedding service (/health).
type HTTPChecker struct {
	name     string
	url      string
	critical bool
	client   *http.Client
}

func NewHTTPChecker(name, url string, critical bool) *HTTPChecker {
	return &HTTPChecker{
		name:     name,
		url:      url,
		critical: critical,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

func (h *HTTPChecker) Name() string           { return h.name }
func (h *HTTPChecker) Critical() bool         { return h.critical }
func (h *HTTPChecker) Timeout() time.Duration { return 5 * time.Second }

func (h *HTTPChecker) Check(ctx context.Context) CheckResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return CheckResult{
			Status: StatusUnhealthy,
			Error:  fmt.Sprintf("status %d", resp.StatusCode),
		}
	}
	if resp.StatusCode >= 400 {
		return CheckResult{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("status %d", resp.StatusCode),
		}
	}
	return CheckResult{
		Status:  StatusHealthy,
		Message: fmt.Sprintf("status %d", resp.StatusCode),
	}
}

// CheckerFunc adapts a closure into a Checker.
type CheckerFunc struct {
	name     string
	critical bool
	timeout  time.Duration
	fn       func(ctx context.Context) CheckResult
}

func NewCheckerFunc(name string, critical bool, timeout time.Duration, fn func(ctx context.Context) CheckResult) *CheckerFunc {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &CheckerFunc{name: name, critical: critical, timeout: timeout, fn: fn}
}

func (c *CheckerFunc) Name() string                          { return c.name }
func (c *CheckerFunc) Critical() bool                        { return c.critical }
func (c *CheckerFunc) Timeout() time.Duration                { return c.timeout }
func (c *CheckerFunc) Check(ctx context.Context) CheckResult { return c.fn(ctx) }
