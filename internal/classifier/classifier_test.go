package classifier

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/praxian-ai/scout/internal/backend"
)

type stubGenerator struct {
	text string
	err  error
}

func (s *stubGenerator) Generate(_ context.Context, _ backend.Request) (*backend.Response, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &backend.Response{Text: s.text, Model: "stub"}, nil
}

func TestClassifyWithModel(t *testing.T) {
	gen := &stubGenerator{text: `{"category": "research_request", "confidence": 0.92, "company": "Acme Corp"}`}
	c := New(gen, nil)

	cls := c.Classify(context.Background(), "please research Acme Corp", nil, false, "")

	assert.Equal(t, CategoryResearch, cls.Category)
	assert.InDelta(t, 0.92, cls.Confidence, 0.001)
	assert.Equal(t, "Acme Corp", cls.Company)
}

func TestClassifyModelOutputWithFences(t *testing.T) {
	gen := &stubGenerator{text: "```json\n{\"category\": \"casual\", \"confidence\": 0.9, \"company\": \"\"}\n```"}
	c := New(gen, nil)

	cls := c.Classify(context.Background(), "hello there", nil, false, "")
	assert.Equal(t, CategoryCasual, cls.Category)
}

func TestClassifyFollowUpRequiresCompletedResearch(t *testing.T) {
	gen := &stubGenerator{text: `{"category": "follow_up", "confidence": 0.85, "company": ""}`}
	c := New(gen, nil)

	cls := c.Classify(context.Background(), "what about their pricing?", nil, false, "")
	assert.Equal(t, CategoryResearch, cls.Category)

	cls = c.Classify(context.Background(), "what about their pricing?", nil, true, "Acme Corp")
	assert.Equal(t, CategoryFollowUp, cls.Category)
}

func TestClassifyFallbackOnModelError(t *testing.T) {
	gen := &stubGenerator{err: errors.New("backend unavailable")}
	c := New(gen, nil)

	tests := []struct {
		name         string
		message      string
		researchDone bool
		want         Category
		confidence   float64
	}{
		{"casual_greeting", "hi there", false, CategoryCasual, 0.8},
		{"casual_thanks", "thanks, that was useful information on Acme", false, CategoryCasual, 0.8},
		{"short_after_research", "what about their pricing model", true, CategoryFollowUp, 0.6},
		{"research_keyword", "tell me about Globex Industries", false, CategoryResearch, 0.7},
		{"default_research", "Initech quarterly performance and market position analysis would be interesting reading for me today", false, CategoryResearch, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cls := c.Classify(context.Background(), tt.message, nil, tt.researchDone, "")
			assert.Equal(t, tt.want, cls.Category)
			assert.InDelta(t, tt.confidence, cls.Confidence, 0.001)
		})
	}
}

func TestClassifyFallbackOnGarbageOutput(t *testing.T) {
	gen := &stubGenerator{text: "I think this is probably a research request."}
	c := New(gen, nil)

	cls := c.Classify(context.Background(), "tell me about Globex", nil, false, "")
	assert.Equal(t, CategoryResearch, cls.Category)
	assert.Equal(t, "Globex", cls.Company)
}

func TestExtractCompany(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"research Acme Corp", "Acme Corp"},
		{"tell me about Globex Industries.", "Globex Industries"},
		{"please look up Initech", "Initech"},
		{"Can you analyze Hooli?", "Hooli"},
		{"Umbrella Corporation", "Umbrella Corporation"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, extractCompany(tt.in), "input: %s", tt.in)
	}
}

func TestSplitComparison(t *testing.T) {
	tests := []struct {
		in      string
		company string
		peers   []string
	}{
		{"Acme Corp vs Globex", "Acme Corp", []string{"Globex"}},
		{"Acme compared to Globex and Initech", "Acme", []string{"Globex", "Initech"}},
		{"Acme versus Globex, Initech and Hooli", "Acme", []string{"Globex", "Initech", "Hooli"}},
		{"Acme Corp", "Acme Corp", nil},
	}
	for _, tt := range tests {
		company, peers := splitComparison(tt.in)
		assert.Equal(t, tt.company, company, "input: %s", tt.in)
		assert.Equal(t, tt.peers, peers, "input: %s", tt.in)
	}
}

type capturingGenerator struct {
	prompt string
	text   string
}

func (c *capturingGenerator) Generate(_ context.Context, req backend.Request) (*backend.Response, error) {
	c.prompt = req.Prompt
	return &backend.Response{Text: c.text, Model: "stub"}, nil
}

func TestClassifyPromptCarriesHistoryAndLastCompany(t *testing.T) {
	gen := &capturingGenerator{text: `{"category": "follow_up", "confidence": 0.9, "rationale": "refers to prior research", "company": ""}`}
	c := New(gen, nil)

	history := []string{"user: research Acme Corp", "assistant: done, here is the plan"}
	cls := c.Classify(context.Background(), "what about their pricing?", history, true, "Acme Corp")

	assert.Equal(t, CategoryFollowUp, cls.Category)
	assert.Equal(t, "refers to prior research", cls.Rationale)
	assert.Contains(t, gen.prompt, "user: research Acme Corp")
	assert.Contains(t, gen.prompt, "Most recently researched company: Acme Corp")
}

func TestClassifyFallbackExtractsPeers(t *testing.T) {
	c := New(&stubGenerator{err: errors.New("backend down")}, nil)

	cls := c.Classify(context.Background(), "research Acme Corp vs Globex", nil, false, "")

	assert.Equal(t, CategoryResearch, cls.Category)
	assert.Equal(t, "Acme Corp", cls.Company)
	assert.Equal(t, []string{"Globex"}, cls.AssociatedCompanies)
}

func TestClassifyModelExtractsExtraRequest(t *testing.T) {
	gen := &stubGenerator{text: `{"category": "research_request", "confidence": 0.9,
		"company": "Acme Corp", "extra_request": "check their EU data residency",
		"disposition": "efficient", "edge_case": false}`}
	c := New(gen, nil)

	cls := c.Classify(context.Background(), "research Acme Corp and also check their EU data residency", nil, false, "")

	assert.Equal(t, CategoryResearch, cls.Category)
	assert.Equal(t, "Acme Corp", cls.Company)
	assert.Equal(t, "check their EU data residency", cls.ExtraRequest)
	assert.Equal(t, DispositionEfficient, cls.Disposition)
	assert.False(t, cls.EdgeCase)
}

func TestClassifyFallbackExtractsExtraRequest(t *testing.T) {
	c := New(&stubGenerator{err: errors.New("backend down")}, nil)

	cls := c.Classify(context.Background(), "research Acme Corp and also check their EU data residency", nil, false, "")

	assert.Equal(t, CategoryResearch, cls.Category)
	assert.Equal(t, "Acme Corp", cls.Company)
	assert.Equal(t, "check their EU data residency", cls.ExtraRequest)
}

func TestClassifyKeywordEdgeCaseCannotBeCleared(t *testing.T) {
	// The model says edge_case false, but the message trips the keyword
	// floor; the flag stays set.
	gen := &stubGenerator{text: `{"category": "research_request", "confidence": 0.9,
		"company": "Acme Corp", "edge_case": false}`}
	c := New(gen, nil)

	cls := c.Classify(context.Background(), "research the home address of Acme Corp's CEO", nil, false, "")
	assert.True(t, cls.EdgeCase)

	// And the model can flag cases the keywords miss
	gen.text = `{"category": "research_request", "confidence": 0.9,
		"company": "Acme Corp", "edge_case": true}`
	cls = c.Classify(context.Background(), "research Acme Corp", nil, false, "")
	assert.True(t, cls.EdgeCase)
}

func TestDetectDisposition(t *testing.T) {
	tests := []struct {
		message string
		want    string
	}{
		{"Acme. Go.", DispositionEfficient},
		{"just give me the Acme numbers", DispositionEfficient},
		{"Hi! Hope you're doing well, by the way I was wondering about Acme", DispositionChatty},
		{"research Acme Corp for the upcoming meeting", DispositionNeutral},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, detectDisposition(tt.message), "input: %s", tt.message)
	}
}

func TestSplitExtra(t *testing.T) {
	head, extra := splitExtra("research Acme Corp and also check their EU presence.")
	assert.Equal(t, "research Acme Corp", head)
	assert.Equal(t, "check their EU presence", extra)

	head, extra = splitExtra("research Acme Corp")
	assert.Equal(t, "research Acme Corp", head)
	assert.Empty(t, extra)
}
