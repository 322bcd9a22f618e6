package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/praxian-ai/scout/internal/gather"
	"github.com/praxian-ai/scout/internal/metrics"
	"github.com/praxian-ai/scout/internal/plan"
	"github.com/praxian-ai/scout/internal/progress"
	"github.com/praxian-ai/scout/internal/tasks"
)

// State is the lifecycle phase of a research run.
type State string

const (
	StatePending     State = "pending"
	StateGathering   State = "gathering"
	StateDispatching State = "dispatching"
	StateAggregating State = "aggregating"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

// Config controls run behavior.
type Config struct {
	// MaxParallel caps concurrently executing tasks
	MaxParallel int
	// TaskTimeout bounds each task; a task that exceeds it fails alone
	TaskTimeout time.Duration
	// Vendor is the selling party the plan is prepared for
	Vendor string
	// RunRetention is how long finished runs and their progress history
	// stay queryable after completion
	RunRetention time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxParallel <= 0 {
		c.MaxParallel = 8
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = 2 * time.Minute
	}
	if c.RunRetention <= 0 {
		c.RunRetention = time.Hour
	}
	return c
}

// DataGatherer prepares company knowledge before dispatch.
type DataGatherer interface {
	EnsureData(ctx context.Context, runID, company string) (*gather.Stats, error)
	EnsurePeerData(ctx context.Context, runID string, peers []string) []gather.PeerFailure
}

// TaskExecutor runs one research task.
type TaskExecutor interface {
	Execute(ctx context.Context, kind tasks.Kind, in tasks.Input) (plan.TaskResult, error)
}

// Run is the tracked state of one research run.
type Run struct {
	ID         string
	Company    string
	Peers      []string
	State      State
	Plan       *plan.AccountPlan
	Stats      *gather.Stats
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Orchestrator drives research runs: gather data, dispatch the task
// battery in parallel, and aggregate results into an account plan.
type Orchestrator struct {
	cfg      Config
	gatherer DataGatherer
	runner   TaskExecutor
	progress *progress.Manager
	log      *zap.Logger

	mu   sync.RWMutex
	runs map[string]*Run
}

// New creates an orchestrator.
func New(cfg Config, gatherer DataGatherer, runner TaskExecutor, prog *progress.Manager, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prog == nil {
		prog = progress.Get()
	}
	return &Orchestrator{
		cfg:      cfg.withDefaults(),
		gatherer: gatherer,
		runner:   runner,
		progress: prog,
		log:      logger,
		runs:     make(map[string]*Run),
	}
}

// GetRun returns the tracked run by ID.
func (o *Orchestrator) GetRun(runID string) (*Run, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	run, ok := o.runs[runID]
	return run, ok
}

// SetMaxParallel replaces the task parallelism cap at runtime. Values
// below one are ignored. In-flight runs keep the cap they started with.
func (o *Orchestrator) SetMaxParallel(n int) {
	if n <= 0 {
		return
	}
	o.mu.Lock()
	o.cfg.MaxParallel = n
	o.mu.Unlock()
}

func (o *Orchestrator) maxParallel() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.cfg.MaxParallel
}

// Request describes one account-plan generation run.
type Request struct {
	Company string
	// Tasks is the subset to dispatch; empty means the default battery.
	Tasks []tasks.Kind
	// References are caller-supplied notes added to every task's context.
	References []string
	// ExtraRequest is an ad hoc question; when set, the custom-request
	// task joins the battery.
	ExtraRequest string
	// AssociatedCompanies are gathered best-effort for comparison.
	AssociatedCompanies []string
	// Sequential forces one task at a time. Runs with a single task
	// are sequential regardless.
	Sequential bool
	// SkipGather reuses whatever the knowledge store already holds.
	SkipGather bool
}

func (r Request) kinds() []tasks.Kind {
	kinds := r.Tasks
	if len(kinds) == 0 {
		kinds = tasks.DefaultSet
	}
	if r.ExtraRequest == "" {
		return kinds
	}
	for _, k := range kinds {
		if k == tasks.KindCustomRequest {
			return kinds
		}
	}
	out := make([]tasks.Kind, 0, len(kinds)+1)
	out = append(out, kinds...)
	return append(out, tasks.KindCustomRequest)
}

// Research executes a full research run for a company and returns the
// aggregated account plan. peers are companies requested for
// comparison; their data is gathered best-effort and gaps are recorded
// in the plan metadata.
func (o *Orchestrator) Research(ctx context.Context, company string, peers ...string) (*plan.AccountPlan, error) {
	return o.GenerateAccountPlan(ctx, Request{Company: company, AssociatedCompanies: peers})
}

// GenerateAccountPlan runs one research request. Individual task
// failures degrade the plan; the run only fails when gathering fails
// or no task succeeds.
func (o *Orchestrator) GenerateAccountPlan(ctx context.Context, req Request) (*plan.AccountPlan, error) {
	run := &Run{
		ID:        uuid.New().String(),
		Company:   req.Company,
		Peers:     req.AssociatedCompanies,
		State:     StatePending,
		StartedAt: time.Now(),
	}
	o.mu.Lock()
	o.runs[run.ID] = run
	o.mu.Unlock()

	metrics.RunsStarted.WithLabelValues("research").Inc()
	o.log.Info("Research run started",
		zap.String("run_id", run.ID),
		zap.String("company", req.Company),
		zap.Int("tasks", len(req.kinds())),
	)

	p, err := o.executeRun(ctx, run, req)
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.RecordRunMetrics("research", status, time.Since(run.StartedAt).Seconds())

	o.mu.Lock()
	run.FinishedAt = time.Now()
	o.mu.Unlock()
	o.pruneRuns()
	return p, err
}

// pruneRuns drops finished runs past the retention window, along with
// their progress history, so long-lived processes don't accumulate
// every run ever made.
func (o *Orchestrator) pruneRuns() {
	cutoff := time.Now().Add(-o.cfg.RunRetention)

	o.mu.Lock()
	var expired []string
	for id, run := range o.runs {
		if !run.FinishedAt.IsZero() && run.FinishedAt.Before(cutoff) {
			delete(o.runs, id)
			expired = append(expired, id)
		}
	}
	o.mu.Unlock()

	for _, id := range expired {
		o.progress.Forget(id)
	}
}

func (o *Orchestrator) executeRun(ctx context.Context, run *Run, req Request) (*plan.AccountPlan, error) {
	// Gathering
	var peerFailures []gather.PeerFailure
	if req.SkipGather {
		o.setState(run, StateGathering, "Reusing stored knowledge")
	} else {
		o.setState(run, StateGathering, "Checking existing knowledge")
		stats, err := o.gatherer.EnsureData(ctx, run.ID, run.Company)
		run.Stats = stats
		if err != nil {
			o.fail(run, fmt.Errorf("gather data for %s: %w", run.Company, err))
			return nil, run.Err
		}
		if len(run.Peers) > 0 {
			peerFailures = o.gatherer.EnsurePeerData(ctx, run.ID, run.Peers)
		}
	}

	// Dispatching
	kinds := req.kinds()
	o.setState(run, StateDispatching, fmt.Sprintf("Running %d analysis tasks", len(kinds)))
	p := plan.New(run.ID, run.Company, o.cfg.Vendor)
	run.Plan = p
	limit := o.maxParallel()
	if req.Sequential || len(kinds) <= 1 {
		limit = 1
	}
	o.dispatch(ctx, run, p, kinds, tasks.Input{
		Company:     run.Company,
		Vendor:      o.cfg.Vendor,
		Peers:       req.AssociatedCompanies,
		Notes:       req.References,
		CustomQuery: req.ExtraRequest,
	}, limit)

	// Aggregating
	o.setState(run, StateAggregating, "Assembling account plan")
	if run.Stats != nil {
		p.Metadata.UsedExistingData = run.Stats.UsedExisting
		p.Metadata.DocumentCount = run.Stats.TotalDocuments
		p.Metadata.QualityScore = run.Stats.QualityScore
		p.Metadata.PagesFetched = run.Stats.PageCount
	}
	p.Metadata.References = req.References
	p.Metadata.ExtraRequest = req.ExtraRequest
	p.Metadata.AssociatedCompanies = req.AssociatedCompanies
	p.Metadata.Mode = "parallel"
	if limit == 1 {
		p.Metadata.Mode = "sequential"
	}
	for _, pf := range peerFailures {
		p.Metadata.FailedComparisons = append(p.Metadata.FailedComparisons, plan.ComparisonStat{
			Company: pf.Company,
			Reason:  pf.Reason,
		})
	}
	p.CompletedAt = time.Now()

	if p.SucceededCount() == 0 {
		o.fail(run, fmt.Errorf("all %d tasks failed for %s", len(kinds), run.Company))
		return p, run.Err
	}

	o.setState(run, StateDone, fmt.Sprintf("Plan ready with %d sections", p.SucceededCount()))
	o.log.Info("Research run completed",
		zap.String("run_id", run.ID),
		zap.String("company", run.Company),
		zap.Int("succeeded", p.SucceededCount()),
		zap.Strings("failed", p.FailedKinds()),
		zap.Duration("duration", time.Since(run.StartedAt)),
	)
	return p, nil
}

// dispatch runs the task kinds with bounded parallelism and records
// results on the plan in completion order, publishing progress as each
// task lands.
func (o *Orchestrator) dispatch(ctx context.Context, run *Run, p *plan.AccountPlan, kinds []tasks.Kind, base tasks.Input, limit int) {
	sem := semaphore.NewWeighted(int64(limit))
	results := make(chan plan.TaskResult)

	var wg sync.WaitGroup
	for _, kind := range kinds {
		wg.Add(1)
		go func(kind tasks.Kind) {
			defer wg.Done()
			results <- o.runTask(ctx, sem, kind, base)
		}(kind)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	total := len(kinds)
	completed := 0
	for result := range results {
		completed++
		p.AddResult(result)
		o.progress.Publish(run.ID, progress.Event{
			Stage:     string(StateDispatching),
			TaskKind:  result.Kind,
			Message:   result.DisplayName,
			Completed: completed,
			Total:     total,
		})
	}
}

// runTask executes one task under the parallelism cap with its own
// timeout. Any failure becomes an errored TaskResult so one task can
// never sink the run.
func (o *Orchestrator) runTask(ctx context.Context, sem *semaphore.Weighted, kind tasks.Kind, in tasks.Input) plan.TaskResult {
	failed := func(err error) plan.TaskResult {
		return plan.TaskResult{
			Kind:        string(kind),
			DisplayName: kind.DisplayName(),
			Error:       err.Error(),
			CompletedAt: time.Now(),
		}
	}

	if err := sem.Acquire(ctx, 1); err != nil {
		return failed(err)
	}
	defer sem.Release(1)

	taskCtx, cancel := context.WithTimeout(ctx, o.cfg.TaskTimeout)
	defer cancel()

	result, err := o.runner.Execute(taskCtx, kind, in)
	if err != nil {
		return failed(err)
	}
	if taskCtx.Err() == context.DeadlineExceeded && result.Error == "" && result.Content == "" {
		return failed(fmt.Errorf("task timed out after %s", o.cfg.TaskTimeout))
	}
	return result
}

func (o *Orchestrator) setState(run *Run, state State, message string) {
	o.mu.Lock()
	run.State = state
	o.mu.Unlock()
	o.progress.Publish(run.ID, progress.Event{Stage: string(state), Message: message})
}

func (o *Orchestrator) fail(run *Run, err error) {
	run.Err = err
	o.setState(run, StateFailed, err.Error())
	o.log.Error("Research run failed",
		zap.String("run_id", run.ID),
		zap.String("company", run.Company),
		zap.Error(err),
	)
}
