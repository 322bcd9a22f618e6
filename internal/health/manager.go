package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultCheckInterval = 30 * time.Second

// Manager runs registered checks, caches results, and answers
// readiness and liveness queries.
type Manager struct {
	checkers []Checker
	results  map[string]CheckResult
	interval time.Duration
	started  bool
	stopCh   chan struct{}
	log      *zap.Logger
	mu       sync.RWMutex
}

func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		results:  make(map[string]CheckResult),
		interval: defaultCheckInterval,
		stopCh:   make(chan struct{}),
		log:      logger,
	}
}

// Register adds a checker. Names must be unique.
func (m *Manager) Register(c Checker) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c.Name() == "" {
		return fmt.Errorf("checker name cannot be empty")
	}
	for _, existing := range m.checkers {
		if existing.Name() == c.Name() {
			return fmt.Errorf("checker %s already registered", c.Name())
		}
	}
	m.checkers = append(m.checkers, c)
	m.log.Info("health checker registered",
		zap.String("component", c.Name()),
		zap.Bool("critical", c.Critical()),
		zap.Duration("timeout", c.Timeout()),
	)
	return nil
}

// Report runs every check and returns the aggregate view.
// Checks run concurrently, each under its own timeout.
func (m *Manager) Report(ctx context.Context) Report {
	m.mu.RLock()
	checkers := make([]Checker, len(m.checkers))
	copy(checkers, m.checkers)
	m.mu.RUnlock()

	components := make(map[string]CheckResult, len(checkers))
	var resMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range checkers {
		c := c
		g.Go(func() error {
			result := m.runCheck(gctx, c)
			resMu.Lock()
			components[c.Name()] = result
			resMu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	m.mu.Lock()
	for name, result := range components {
		m.results[name] = result
	}
	m.mu.Unlock()

	return m.summarize(components)
}

// LastReport aggregates the most recent cached results without
// probing anything. Used by HTTP handlers on hot paths.
func (m *Manager) LastReport() Report {
	m.mu.RLock()
	components := make(map[string]CheckResult, len(m.results))
	for name, result := range m.results {
		components[name] = result
	}
	m.mu.RUnlock()
	return m.summarize(components)
}

// IsReady reports whether all critical components are healthy.
func (m *Manager) IsReady(ctx context.Context) bool {
	return m.Report(ctx).Ready
}

// Start begins periodic background checking.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	go m.loop()
	m.log.Info("health manager started",
		zap.Duration("interval", m.interval),
		zap.Int("checkers", len(m.checkers)),
	)
}

func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return
	}
	close(m.stopCh)
	m.started = false
}

// SetInterval changes the background check cadence. Call before Start.
func (m *Manager) SetInterval(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d > 0 {
		m.interval = d
	}
}

func (m *Manager) loop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			report := m.Report(ctx)
			cancel()
			if report.Status != StatusHealthy {
				m.log.Warn("background health check",
					zap.String("status", report.Status.String()),
					zap.String("message", report.Message),
				)
			}
		}
	}
}

func (m *Manager) runCheck(ctx context.Context, c Checker) CheckResult {
	checkCtx, cancel := context.WithTimeout(ctx, c.Timeout())
	defer cancel()

	start := time.Now()
	result := c.Check(checkCtx)
	result.Component = c.Name()
	result.Critical = c.Critical()
	result.Duration = time.Since(start)
	result.Timestamp = start
	return result
}

func (m *Manager) summarize(components map[string]CheckResult) Report {
	report := Report{
		Components: components,
		Timestamp:  time.Now(),
	}
	if len(components) == 0 {
		report.Status = StatusUnknown
		report.Message = "no health checks registered"
		return report
	}

	criticalFailures := 0
	softFailures := 0
	for _, result := range components {
		switch result.Status {
		case StatusUnhealthy:
			if result.Critical {
				criticalFailures++
			} else {
				softFailures++
			}
		case StatusDegraded:
			softFailures++
		}
	}

	switch {
	case criticalFailures > 0:
		report.Status = StatusUnhealthy
		report.Message = fmt.Sprintf("%d critical component(s) failing", criticalFailures)
	case softFailures > 0:
		report.Status = StatusDegraded
		report.Message = fmt.Sprintf("%d component(s) degraded", softFailures)
		report.Ready = true
	default:
		report.Status = StatusHealthy
		report.Message = fmt.Sprintf("all %d components healthy", len(components))
		report.Ready = true
	}
	return report
}
