package circuitbreaker

import (
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// HTTPClient wraps an http.Client with circuit breaker protection
type HTTPClient struct {
	client  *http.Client
	breaker *CircuitBreaker
	logger  *zap.Logger
}

// NewHTTPClient creates a circuit-breaker-protected HTTP client
func NewHTTPClient(name string, client *http.Client, config Config, logger *zap.Logger) *HTTPClient {
	if client == nil {
		client = http.DefaultClient
	}
	if config.OnStateChange == nil {
		config.OnStateChange = MetricsStateChangeHook()
	}
	cb := NewCircuitBreaker(name, config, logger)
	GlobalMetricsCollector.RegisterCircuitBreaker(cb)
	return &HTTPClient{
		client:  client,
		breaker: cb,
		logger:  logger,
	}
}

type httpStatusError struct {
	StatusCode int
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("server error: HTTP %d", e.StatusCode)
}

// Do executes an HTTP request through the circuit breaker.
// Server errors (5xx) count as breaker failures; client errors (4xx) do not.
func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	err := c.breaker.Execute(req.Context(), func() error {
		var reqErr error
		resp, reqErr = c.client.Do(req)
		if reqErr != nil {
			GlobalMetricsCollector.RecordRequest(c.breaker.name, false)
			return reqErr
		}
		if resp.StatusCode >= 500 {
			GlobalMetricsCollector.RecordRequest(c.breaker.name, false)
			return &httpStatusError{StatusCode: resp.StatusCode}
		}
		GlobalMetricsCollector.RecordRequest(c.breaker.name, true)
		return nil
	})
	if err != nil {
		// 5xx responses trip the breaker but the response is still
		// handed back so callers can inspect status and body
		var statusErr *httpStatusError
		if errors.As(err, &statusErr) {
			return resp, nil
		}
		return nil, err
	}
	return resp, nil
}

// State exposes the underlying breaker state
func (c *HTTPClient) State() State {
	return c.breaker.State()
}
