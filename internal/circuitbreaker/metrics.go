package circuitbreaker

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	circuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scout_circuit_breaker_state",
			Help: "Current state of circuit breakers (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	circuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scout_circuit_breaker_requests_total",
			Help: "Total requests through circuit breakers",
		},
		[]string{"name", "result"},
	)

	circuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scout_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)
)

// MetricsCollector tracks registered circuit breakers for metric export
type MetricsCollector struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
}

// GlobalMetricsCollector is the process-wide collector
var GlobalMetricsCollector = &MetricsCollector{
	breakers: make(map[string]*CircuitBreaker),
}

// RegisterCircuitBreaker registers a breaker and hooks transition metrics
func (mc *MetricsCollector) RegisterCircuitBreaker(cb *CircuitBreaker) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.breakers[cb.name] = cb
	circuitBreakerState.WithLabelValues(cb.name).Set(float64(cb.State()))
}

// RecordRequest records a request result for a breaker
func (mc *MetricsCollector) RecordRequest(name string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	circuitBreakerRequests.WithLabelValues(name, result).Inc()
}

// RecordTransition records a state transition and updates the state gauge
func (mc *MetricsCollector) RecordTransition(name string, from, to State) {
	circuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
	circuitBreakerState.WithLabelValues(name).Set(float64(to))
}

// MetricsStateChangeHook returns an OnStateChange hook wired to the collector
func MetricsStateChangeHook() func(name string, from State, to State) {
	return func(name string, from State, to State) {
		GlobalMetricsCollector.RecordTransition(name, from, to)
	}
}
