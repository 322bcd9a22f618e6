package tasks

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/praxian-ai/scout/internal/backend"
	"github.com/praxian-ai/scout/internal/classifier"
	"github.com/praxian-ai/scout/internal/knowledge"
	"github.com/praxian-ai/scout/internal/metrics"
	"github.com/praxian-ai/scout/internal/plan"
)

// DocumentSource retrieves research context for a task.
type DocumentSource interface {
	Search(ctx context.Context, company, query string, topK int) ([]knowledge.SearchHit, error)
	SearchReference(ctx context.Context, query string, topK int) ([]knowledge.SearchHit, error)
}

// Runner executes research tasks: retrieve context, build the prompt,
// generate, and post-process into a plan section.
type Runner struct {
	generator backend.Generator
	source    DocumentSource
	rewriter  *classifier.PersonaRewriter
	topK      int
	log       *zap.Logger
}

// NewRunner creates a task runner.
func NewRunner(generator backend.Generator, source DocumentSource, rewriter *classifier.PersonaRewriter, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		generator: generator,
		source:    source,
		rewriter:  rewriter,
		topK:      5,
		log:       logger,
	}
}

// Execute runs one task to completion. The returned TaskResult carries
// either content or the error that stopped it; Execute only returns a
// Go error for invalid input.
func (r *Runner) Execute(ctx context.Context, kind Kind, in Input) (plan.TaskResult, error) {
	if !kind.Valid() {
		return plan.TaskResult{}, fmt.Errorf("unknown task kind %q", kind)
	}
	if kind == KindCustomRequest && in.CustomQuery == "" {
		return plan.TaskResult{}, fmt.Errorf("custom request task needs a query")
	}

	start := time.Now()
	result := plan.TaskResult{
		Kind:        string(kind),
		DisplayName: kind.DisplayName(),
	}

	in = r.enrich(ctx, kind, in)

	resp, err := r.generator.Generate(ctx, backend.Request{
		Prompt:      buildPrompt(kind, in),
		System:      systemPrompt,
		Temperature: 0.4,
		MaxTokens:   2048,
	})
	result.Duration = time.Since(start)
	result.CompletedAt = time.Now()

	if err != nil {
		result.Error = err.Error()
		metrics.RecordTaskMetrics(string(kind), "error", result.Duration.Seconds())
		r.log.Warn("Task failed",
			zap.String("task", string(kind)),
			zap.String("company", in.Company),
			zap.Error(err),
		)
		return result, nil
	}

	content := resp.Text
	if r.rewriter != nil {
		content = r.rewriter.Rewrite(content)
	}
	result.Content = content
	metrics.RecordTaskMetrics(string(kind), "success", result.Duration.Seconds())
	r.log.Debug("Task completed",
		zap.String("task", string(kind)),
		zap.String("company", in.Company),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}

// enrich fills in retrieval context the caller did not supply.
func (r *Runner) enrich(ctx context.Context, kind Kind, in Input) Input {
	if r.source == nil {
		return in
	}

	query := retrievalQueryFor(kind, in)
	if in.Documents == nil && query != "" {
		docs, err := r.source.Search(ctx, in.Company, query, r.topK)
		if err != nil {
			r.log.Warn("Context retrieval failed",
				zap.String("task", string(kind)),
				zap.Error(err),
			)
		} else {
			in.Documents = docs
		}
	}

	if specs[kind].usesReference && in.Reference == nil {
		ref, err := r.source.SearchReference(ctx, in.Company+" product fit", r.topK)
		if err != nil {
			r.log.Warn("Reference retrieval failed",
				zap.String("task", string(kind)),
				zap.Error(err),
			)
		} else {
			in.Reference = ref
		}
	}
	return in
}
