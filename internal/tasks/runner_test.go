package tasks

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/praxian-ai/scout/internal/backend"
	"github.com/praxian-ai/scout/internal/classifier"
	"github.com/praxian-ai/scout/internal/knowledge"
)

type stubGenerator struct {
	prompts []backend.Request
	text    string
	err     error
}

func (s *stubGenerator) Generate(_ context.Context, req backend.Request) (*backend.Response, error) {
	s.prompts = append(s.prompts, req)
	if s.err != nil {
		return nil, s.err
	}
	return &backend.Response{Text: s.text, Model: "stub"}, nil
}

type stubSource struct {
	docs    []knowledge.SearchHit
	ref     []knowledge.SearchHit
	queries []string
}

func (s *stubSource) Search(_ context.Context, _, query string, _ int) ([]knowledge.SearchHit, error) {
	s.queries = append(s.queries, query)
	return s.docs, nil
}

func (s *stubSource) SearchReference(_ context.Context, query string, _ int) ([]knowledge.SearchHit, error) {
	return s.ref, nil
}

func hitWith(title, content string) knowledge.SearchHit {
	return knowledge.SearchHit{Document: knowledge.Document{Title: title, Content: content}, Score: 0.9}
}

func TestExecuteSuccess(t *testing.T) {
	gen := &stubGenerator{text: "Acme is the leading anvil maker."}
	source := &stubSource{docs: []knowledge.SearchHit{hitWith("Home", "Acme builds anvils")}}
	r := NewRunner(gen, source, nil, zap.NewNop())

	result, err := r.Execute(context.Background(), KindOverview, Input{Company: "Acme Corp", Vendor: "Praxian AI"})
	require.NoError(t, err)
	assert.True(t, result.Succeeded())
	assert.Equal(t, "overview", result.Kind)
	assert.Equal(t, "Company Overview & Value Proposition", result.DisplayName)
	assert.Equal(t, "Acme is the leading anvil maker.", result.Content)
	assert.NotZero(t, result.Duration)

	// The prompt carries company and retrieved context
	require.Len(t, gen.prompts, 1)
	prompt := gen.prompts[0].Prompt
	assert.Contains(t, prompt, "Acme Corp")
	assert.Contains(t, prompt, "Acme builds anvils")
}

func TestExecuteGenerationErrorIsCaptured(t *testing.T) {
	gen := &stubGenerator{err: errors.New("all credentials exhausted")}
	r := NewRunner(gen, &stubSource{}, nil, zap.NewNop())

	result, err := r.Execute(context.Background(), KindPricing, Input{Company: "Acme Corp"})
	require.NoError(t, err, "task failures are results, not errors")
	assert.False(t, result.Succeeded())
	assert.Contains(t, result.Error, "credentials exhausted")
	assert.Empty(t, result.Content)
}

func TestExecuteUnknownKind(t *testing.T) {
	r := NewRunner(&stubGenerator{text: "x"}, nil, nil, zap.NewNop())
	_, err := r.Execute(context.Background(), Kind("sentiment"), Input{Company: "Acme"})
	assert.Error(t, err)
}

func TestExecuteCustomRequestNeedsQuery(t *testing.T) {
	r := NewRunner(&stubGenerator{text: "x"}, nil, nil, zap.NewNop())

	_, err := r.Execute(context.Background(), KindCustomRequest, Input{Company: "Acme"})
	assert.Error(t, err)

	result, err := r.Execute(context.Background(), KindCustomRequest, Input{Company: "Acme", CustomQuery: "What is their headcount?"})
	require.NoError(t, err)
	assert.True(t, result.Succeeded())
}

func TestExecuteCustomRequestRetrievesByQuery(t *testing.T) {
	source := &stubSource{docs: []knowledge.SearchHit{hitWith("HR page", "About 5000 employees")}}
	gen := &stubGenerator{text: "Around 5000 employees."}
	r := NewRunner(gen, source, nil, zap.NewNop())

	_, err := r.Execute(context.Background(), KindCustomRequest, Input{Company: "Acme", CustomQuery: "What is their headcount?"})
	require.NoError(t, err)
	require.Len(t, source.queries, 1)
	assert.Equal(t, "What is their headcount?", source.queries[0])
	assert.Contains(t, gen.prompts[0].Prompt, "What is their headcount?")
}

func TestExecuteReferenceTasksIncludeVendorMaterial(t *testing.T) {
	source := &stubSource{
		docs: []knowledge.SearchHit{hitWith("Goals", "Acme wants to triple output")},
		ref:  []knowledge.SearchHit{hitWith("Product", "Praxian AI sells workforce planning tools")},
	}
	gen := &stubGenerator{text: "Strong fit."}
	r := NewRunner(gen, source, nil, zap.NewNop())

	_, err := r.Execute(context.Background(), KindProductFit, Input{Company: "Acme Corp", Vendor: "Praxian AI"})
	require.NoError(t, err)

	prompt := gen.prompts[0].Prompt
	assert.Contains(t, prompt, "workforce planning tools")
	assert.Contains(t, prompt, "Praxian AI's offerings")
}

func TestExecuteAppliesPersonaRewrite(t *testing.T) {
	gen := &stubGenerator{text: "our tools fit their hiring goals"}
	rewriter := classifier.NewPersonaRewriter("Praxian AI")
	r := NewRunner(gen, &stubSource{}, rewriter, zap.NewNop())

	result, err := r.Execute(context.Background(), KindSynergy, Input{Company: "Acme Corp", Vendor: "Praxian AI"})
	require.NoError(t, err)
	assert.Equal(t, "Praxian AI's tools fit their hiring goals", result.Content)
}

func TestDefaultSetIsSevenStandardTasks(t *testing.T) {
	assert.Len(t, DefaultSet, 7)
	for _, k := range DefaultSet {
		assert.True(t, k.Valid())
		assert.NotEqual(t, KindCustomRequest, k)
	}
}

func TestDisplayNames(t *testing.T) {
	assert.Equal(t, "Partnership Synergies", KindSynergy.DisplayName())
	assert.Equal(t, "Additional Data Request", KindCustomRequest.DisplayName())
	assert.True(t, strings.HasPrefix(KindROI.DisplayName(), "ROI"))
}
