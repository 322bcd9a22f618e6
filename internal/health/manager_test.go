package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func staticChecker(name string, critical bool, status Status) Checker {
	return NewCheckerFunc(name, critical, time.Second, func(ctx context.Context) CheckResult {
		return CheckResult{Status: status}
	})
}

func TestReportAllHealthy(t *testing.T) {
	m := NewManager(zap.NewNop())
	require.NoError(t, m.Register(staticChecker("redis", true, StatusHealthy)))
	require.NoError(t, m.Register(staticChecker("qdrant", true, StatusHealthy)))

	report := m.Report(context.Background())

	assert.Equal(t, StatusHealthy, report.Status)
	assert.True(t, report.Ready)
	assert.Len(t, report.Components, 2)
	assert.Equal(t, "all 2 components healthy", report.Message)
}

func TestReportCriticalFailure(t *testing.T) {
	m := NewManager(zap.NewNop())
	require.NoError(t, m.Register(staticChecker("redis", true, StatusUnhealthy)))
	require.NoError(t, m.Register(staticChecker("postgres", false, StatusHealthy)))

	report := m.Report(context.Background())

	assert.Equal(t, StatusUnhealthy, report.Status)
	assert.False(t, report.Ready)
	assert.True(t, report.Components["redis"].Critical)
}

func TestReportNonCriticalFailureDegrades(t *testing.T) {
	m := NewManager(zap.NewNop())
	require.NoError(t, m.Register(staticChecker("redis", true, StatusHealthy)))
	require.NoError(t, m.Register(staticChecker("postgres", false, StatusUnhealthy)))

	report := m.Report(context.Background())

	assert.Equal(t, StatusDegraded, report.Status)
	assert.True(t, report.Ready)
}

func TestReportNoCheckers(t *testing.T) {
	m := NewManager(zap.NewNop())

	report := m.Report(context.Background())

	assert.Equal(t, StatusUnknown, report.Status)
	assert.False(t, report.Ready)
}

func TestRegisterDuplicateName(t *testing.T) {
	m := NewManager(zap.NewNop())
	require.NoError(t, m.Register(staticChecker("redis", true, StatusHealthy)))

	err := m.Register(staticChecker("redis", true, StatusHealthy))

	assert.ErrorContains(t, err, "already registered")
}

func TestCheckTimeoutEnforced(t *testing.T) {
	m := NewManager(zap.NewNop())
	slow := NewCheckerFunc("slow", true, 20*time.Millisecond, func(ctx context.Context) CheckResult {
		select {
		case <-ctx.Done():
			return CheckResult{Status: StatusUnhealthy, Error: ctx.Err().Error()}
		case <-time.After(time.Second):
			return CheckResult{Status: StatusHealthy}
		}
	})
	require.NoError(t, m.Register(slow))

	start := time.Now()
	report := m.Report(context.Background())

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, StatusUnhealthy, report.Status)
}

func TestLastReportUsesCachedResults(t *testing.T) {
	m := NewManager(zap.NewNop())
	calls := 0
	require.NoError(t, m.Register(NewCheckerFunc("counted", true, time.Second, func(ctx context.Context) CheckResult {
		calls++
		return CheckResult{Status: StatusHealthy}
	})))

	m.Report(context.Background())
	cached := m.LastReport()

	assert.Equal(t, 1, calls)
	assert.True(t, cached.Ready)
	assert.Contains(t, cached.Components, "counted")
}

func TestHTTPCheckerStatuses(t *testing.T) {
	cases := []struct {
		name   string
		code   int
		status Status
	}{
		{"ok", http.StatusOK, StatusHealthy},
		{"client error", http.StatusNotFound, StatusDegraded},
		{"server error", http.StatusInternalServerError, StatusUnhealthy},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.code)
			}))
			defer srv.Close()

			c := NewHTTPChecker("dep", srv.URL, true)
			result := c.Check(context.Background())

			assert.Equal(t, tc.status, result.Status)
		})
	}
}

func TestHTTPCheckerUnreachable(t *testing.T) {
	c := NewHTTPChecker("dep", "http://127.0.0.1:1/nothing", true)

	result := c.Check(context.Background())

	assert.Equal(t, StatusUnhealthy, result.Status)
	assert.NotEmpty(t, result.Error)
}

func TestReadinessEndpoint(t *testing.T) {
	m := NewManager(zap.NewNop())
	require.NoError(t, m.Register(staticChecker("redis", true, StatusHealthy)))
	m.Report(context.Background())

	mux := http.NewServeMux()
	NewHandler(m, zap.NewNop()).RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["ready"])
}

func TestReadinessEndpointNotReady(t *testing.T) {
	m := NewManager(zap.NewNop())
	require.NoError(t, m.Register(staticChecker("redis", true, StatusUnhealthy)))
	m.Report(context.Background())

	mux := http.NewServeMux()
	NewHandler(m, zap.NewNop()).RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLivenessEndpoint(t *testing.T) {
	m := NewManager(zap.NewNop())
	mux := http.NewServeMux()
	NewHandler(m, zap.NewNop()).RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok\n", rec.Body.String())
}

func TestDetailedEndpoint(t *testing.T) {
	m := NewManager(zap.NewNop())
	require.NoError(t, m.Register(staticChecker("redis", true, StatusHealthy)))
	require.NoError(t, m.Register(staticChecker("postgres", false, StatusUnhealthy)))

	mux := http.NewServeMux()
	NewHandler(m, zap.NewNop()).RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body["status"])
	components := body["components"].(map[string]interface{})
	assert.Len(t, components, 2)
}
