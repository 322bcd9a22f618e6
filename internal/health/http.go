package health

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Handler serves liveness, readiness, and detailed health endpoints.
type Handler struct {
	manager *Manager
	log     *zap.Logger
}

func NewHandler(manager *Manager, logger *zap.Logger) *Handler {
	return &Handler{manager: manager, log: logger}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", h.handleLiveness)
	mux.HandleFunc("/readyz", h.handleReadiness)
	mux.HandleFunc("/health", h.handleDetailed)
}

// handleLiveness answers liveness probes. The process serving the
// request is alive by definition.
func (h *Handler) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

// handleReadiness answers readiness probes from cached results so the
// probe itself never hammers the backing services.
func (h *Handler) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	report := h.manager.LastReport()

	status := http.StatusOK
	if !report.Ready {
		status = http.StatusServiceUnavailable
	}
	h.writeJSON(w, status, map[string]interface{}{
		"ready":   report.Ready,
		"status":  report.Status.String(),
		"message": report.Message,
	})
}

// handleDetailed runs all checks and returns per-component results.
func (h *Handler) handleDetailed(w http.ResponseWriter, r *http.Request) {
	report := h.manager.Report(r.Context())

	status := http.StatusOK
	if report.Status == StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}

	components := make(map[string]interface{}, len(report.Components))
	for name, result := range report.Components {
		components[name] = map[string]interface{}{
			"status":      result.Status.String(),
			"message":     result.Message,
			"error":       result.Error,
			"critical":    result.Critical,
			"duration_ms": result.Duration.Milliseconds(),
		}
	}
	h.writeJSON(w, status, map[string]interface{}{
		"status":     report.Status.String(),
		"message":    report.Message,
		"ready":      report.Ready,
		"components": components,
		"timestamp":  report.Timestamp.Format(time.RFC3339),
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Warn("failed to encode health response", zap.Error(err))
	}
}

// StartServer runs the ops HTTP server: health endpoints plus the
// Prometheus scrape endpoint. Caller shuts it down via the returned
// server's Shutdown.
func StartServer(manager *Manager, port int, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	NewHandler(manager, logger).RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("ops server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("ops server failed", zap.Error(err))
		}
	}()
	return srv
}
