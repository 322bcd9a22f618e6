package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/praxian-ai/scout/internal/backend"
	"github.com/praxian-ai/scout/internal/metrics"
	"github.com/praxian-ai/scout/internal/plan"
	"github.com/praxian-ai/scout/internal/tasks"
)

// Follow-up sources: where the answer came from.
const (
	SourceCached   = "cached"
	SourceFresh    = "fresh"
	SourceDeclined = "declined"
	SourceError    = "error"
)

// needAdditionalData is the sentinel the first phase emits when the
// cached plan cannot answer the question.
const needAdditionalData = "NEED_ADDITIONAL_DATA"

// FollowUpResult is a resolved follow-up question.
type FollowUpResult struct {
	Answer     string
	Source     string
	Confidence float64
}

// FollowUpResolver answers questions about a completed plan. It works
// in two phases: first against the cached plan sections, then by
// dispatching a fresh custom-request task when the cache cannot answer.
type FollowUpResolver struct {
	generator backend.Generator
	runner    TaskExecutor
	log       *zap.Logger
}

// NewFollowUpResolver creates a resolver.
func NewFollowUpResolver(generator backend.Generator, runner TaskExecutor, logger *zap.Logger) *FollowUpResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FollowUpResolver{generator: generator, runner: runner, log: logger}
}

const followUpPrompt = `A research plan about %COMPANY% is shown below, followed by recent
conversation history and a follow-up question.

Plan sections:
%SECTIONS%

Recent conversation:
%HISTORY%

Question: %QUESTION%

If the plan sections answer the question, respond with JSON:
{"can_answer": true, "answer": "...", "confidence": 0.0}

If the question is out of scope for business research, or asks for
personal, confidential, or otherwise inappropriate information, respond
with JSON:
{"can_answer": false, "decline": true, "answer": "<a brief, polite refusal>", "confidence": 0.0}

Otherwise respond with JSON:
{"can_answer": false, "answer": "NEED_ADDITIONAL_DATA", "confidence": 0.0}`

type followUpPhase1 struct {
	CanAnswer  bool    `json:"can_answer"`
	Decline    bool    `json:"decline"`
	Answer     string  `json:"answer"`
	Confidence float64 `json:"confidence"`
}

// Resolve answers a follow-up question about the plan.
func (r *FollowUpResolver) Resolve(ctx context.Context, p *plan.AccountPlan, history []string, question string) FollowUpResult {
	result := r.resolve(ctx, p, history, question)
	metrics.FollowUps.WithLabelValues(result.Source).Inc()
	return result
}

func (r *FollowUpResolver) resolve(ctx context.Context, p *plan.AccountPlan, history []string, question string) FollowUpResult {
	phase1, err := r.fromCache(ctx, p, history, question)
	if err != nil {
		r.log.Warn("Cached follow-up phase failed, escalating",
			zap.String("company", p.Company),
			zap.Error(err),
		)
	} else if phase1.Decline {
		// Out-of-scope questions get a refusal, never an escalation.
		answer := phase1.Answer
		if answer == "" || strings.Contains(answer, needAdditionalData) {
			answer = "I can only help with business research questions about companies. Is there anything about " + p.Company + " I can look into?"
		}
		return FollowUpResult{Answer: answer, Source: SourceDeclined, Confidence: 1}
	} else if phase1.CanAnswer {
		return FollowUpResult{Answer: phase1.Answer, Source: SourceCached, Confidence: phase1.Confidence}
	}

	// Escalate: gather a fresh answer through the custom-request task
	taskResult, err := r.runner.Execute(ctx, tasks.KindCustomRequest, tasks.Input{
		Company:     p.Company,
		Vendor:      p.Vendor,
		CustomQuery: question,
	})
	if err != nil {
		return FollowUpResult{Answer: fmt.Sprintf("Unable to answer: %v", err), Source: SourceError}
	}
	if !taskResult.Succeeded() {
		return FollowUpResult{Answer: fmt.Sprintf("Unable to answer: %s", taskResult.Error), Source: SourceError}
	}

	p.AddResult(taskResult)
	return FollowUpResult{Answer: taskResult.Content, Source: SourceFresh, Confidence: 0.8}
}

// fromCache runs the first phase against the completed plan's
// sections. A result with neither CanAnswer nor Decline set means the
// cache could not answer and the question escalates.
func (r *FollowUpResolver) fromCache(ctx context.Context, p *plan.AccountPlan, history []string, question string) (followUpPhase1, error) {
	prompt := strings.NewReplacer(
		"%COMPANY%", p.Company,
		"%SECTIONS%", planSections(p),
		"%HISTORY%", historyText(history),
		"%QUESTION%", question,
	).Replace(followUpPrompt)

	resp, err := r.generator.Generate(ctx, backend.Request{
		Prompt:      prompt,
		Temperature: 0.2,
		MaxTokens:   1024,
	})
	if err != nil {
		return followUpPhase1{}, err
	}

	var phase1 followUpPhase1
	if err := json.Unmarshal([]byte(extractJSON(resp.Text)), &phase1); err != nil {
		return followUpPhase1{}, fmt.Errorf("parse follow-up response: %w", err)
	}

	if phase1.Decline {
		return phase1, nil
	}
	if !phase1.CanAnswer || strings.Contains(phase1.Answer, needAdditionalData) {
		return followUpPhase1{}, nil
	}
	if phase1.Confidence <= 0 || phase1.Confidence > 1 {
		phase1.Confidence = 0.7
	}
	return phase1, nil
}

func planSections(p *plan.AccountPlan) string {
	var b strings.Builder
	for kind, section := range p.Sections {
		if !section.Succeeded() {
			continue
		}
		fmt.Fprintf(&b, "## %s (%s)\n%s\n\n", section.DisplayName, kind, section.Content)
	}
	if b.Len() == 0 {
		return "(no completed sections)"
	}
	return b.String()
}

func historyText(history []string) string {
	if len(history) == 0 {
		return "(none)"
	}
	return strings.Join(history, "\n")
}

// extractJSON trims fences and prose around a JSON object.
func extractJSON(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return text
	}
	return text[start : end+1]
}
