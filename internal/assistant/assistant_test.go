package assistant

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/praxian-ai/scout/internal/backend"
	"github.com/praxian-ai/scout/internal/classifier"
	"github.com/praxian-ai/scout/internal/orchestrator"
	"github.com/praxian-ai/scout/internal/plan"
	"github.com/praxian-ai/scout/internal/session"
)

type stubIntent struct {
	result classifier.Classification
	calls  int
}

func (s *stubIntent) Classify(_ context.Context, _ string, _ []string, _ bool, _ string) classifier.Classification {
	s.calls++
	return s.result
}

type stubResearcher struct {
	plan     *plan.AccountPlan
	err      error
	requests []orchestrator.Request
}

func (s *stubResearcher) GenerateAccountPlan(_ context.Context, req orchestrator.Request) (*plan.AccountPlan, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	if s.plan == nil {
		p := plan.New("run-1", req.Company, "Praxian AI")
		p.AddResult(plan.TaskResult{
			Kind:        "overview",
			DisplayName: "Company Overview & Value Proposition",
			Content:     req.Company + " overview.",
			CompletedAt: time.Now(),
		})
		return p, nil
	}
	return s.plan, nil
}

func (s *stubResearcher) lastRequest() orchestrator.Request {
	if len(s.requests) == 0 {
		return orchestrator.Request{}
	}
	return s.requests[len(s.requests)-1]
}

type stubResolver struct {
	result orchestrator.FollowUpResult
}

func (s *stubResolver) Resolve(_ context.Context, _ *plan.AccountPlan, _ []string, _ string) orchestrator.FollowUpResult {
	return s.result
}

type stubChat struct {
	text string
	err  error
}

func (s *stubChat) Generate(_ context.Context, _ backend.Request) (*backend.Response, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &backend.Response{Text: s.text, Model: "stub"}, nil
}

type recordingStore struct {
	mu    sync.Mutex
	turns []string
	plans []*plan.AccountPlan
}

func (r *recordingStore) SaveTurnAsync(_, role, content, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns = append(r.turns, role+": "+content)
}

func (r *recordingStore) SavePlanAsync(p *plan.AccountPlan, _ func(error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plans = append(r.plans, p)
}

type fixture struct {
	assistant *Assistant
	sessions  *session.Manager
	intent    *stubIntent
	store     *recordingStore
}

func newFixture(t *testing.T, intent *stubIntent, researcher Researcher, resolver FollowUpResolver, chat backend.Generator) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	sessions, err := session.NewManager(mr.Addr(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { sessions.Close() })

	store := &recordingStore{}
	a := New(sessions, intent, researcher, resolver,
		chat, classifier.NewPersonaRewriter("Praxian AI"), store, zap.NewNop())
	return &fixture{assistant: a, sessions: sessions, intent: intent, store: store}
}

func TestCasualMessage(t *testing.T) {
	f := newFixture(t,
		&stubIntent{result: classifier.Classification{Category: classifier.CategoryCasual, Confidence: 0.8}},
		&stubResearcher{}, &stubResolver{}, &stubChat{text: "Hi! Which company would you like me to research?"})

	reply, err := f.assistant.HandleMessage(context.Background(), "conv-1", "hello")
	require.NoError(t, err)
	assert.Equal(t, ReplyChat, reply.Type)
	assert.Contains(t, reply.Text, "Which company")

	conv, err := f.sessions.Get(context.Background(), "conv-1")
	require.NoError(t, err)
	require.Len(t, conv.Turns, 2)
	assert.Equal(t, "user", conv.Turns[0].Role)
	assert.Equal(t, "casual", conv.Turns[0].Category)
	assert.Equal(t, "assistant", conv.Turns[1].Role)
	assert.Len(t, f.store.turns, 2)
}

func TestCasualFallbackOnGeneratorError(t *testing.T) {
	f := newFixture(t,
		&stubIntent{result: classifier.Classification{Category: classifier.CategoryCasual}},
		&stubResearcher{}, &stubResolver{}, &stubChat{err: errors.New("backend down")})

	reply, err := f.assistant.HandleMessage(context.Background(), "conv-1", "hey")
	require.NoError(t, err)
	assert.Equal(t, ReplyChat, reply.Type)
	assert.Equal(t, fallbackCasualReply, reply.Text)
}

func TestResearchRequestAsksForConfirmation(t *testing.T) {
	f := newFixture(t,
		&stubIntent{result: classifier.Classification{Category: classifier.CategoryResearch, Company: "Acme Corp"}},
		&stubResearcher{}, &stubResolver{}, &stubChat{})

	reply, err := f.assistant.HandleMessage(context.Background(), "conv-1", "research Acme Corp")
	require.NoError(t, err)
	assert.Equal(t, ReplyConfirmation, reply.Type)
	assert.Contains(t, reply.Text, "Acme Corp")

	conv, err := f.sessions.Get(context.Background(), "conv-1")
	require.NoError(t, err)
	require.NotNil(t, conv.Pending)
	assert.Equal(t, "Acme Corp", conv.Pending.Company)
	assert.Equal(t, session.StatusIdle, conv.Status)
}

func TestResearchRequestNeedsCompany(t *testing.T) {
	f := newFixture(t,
		&stubIntent{result: classifier.Classification{Category: classifier.CategoryResearch, Company: ""}},
		&stubResearcher{}, &stubResolver{}, &stubChat{})

	reply, err := f.assistant.HandleMessage(context.Background(), "conv-1", "can you do some research")
	require.NoError(t, err)
	assert.Equal(t, ReplyClarification, reply.Type)
}

func TestConfirmedResearchProducesPlan(t *testing.T) {
	intent := &stubIntent{result: classifier.Classification{Category: classifier.CategoryResearch, Company: "Acme Corp"}}
	f := newFixture(t, intent, &stubResearcher{}, &stubResolver{}, &stubChat{})
	ctx := context.Background()

	_, err := f.assistant.HandleMessage(ctx, "conv-1", "research Acme Corp")
	require.NoError(t, err)

	reply, err := f.assistant.HandleMessage(ctx, "conv-1", "yes")
	require.NoError(t, err)
	assert.Equal(t, ReplyPlan, reply.Type)
	require.NotNil(t, reply.Plan)
	assert.Equal(t, "Acme Corp", reply.Plan.Company)
	assert.Contains(t, reply.Text, "Acme Corp")

	conv, err := f.sessions.Get(ctx, "conv-1")
	require.NoError(t, err)
	assert.Nil(t, conv.Pending)
	assert.Equal(t, session.StatusComplete, conv.Status)
	assert.True(t, conv.ResearchDone())
	assert.Equal(t, "Acme Corp", conv.Company)
	require.Len(t, f.store.plans, 1)

	// The confirmation never reached the classifier
	assert.Equal(t, 1, intent.calls)
}

func TestComparisonPeersReachResearcher(t *testing.T) {
	intent := &stubIntent{result: classifier.Classification{
		Category:            classifier.CategoryResearch,
		Company:             "Acme Corp",
		AssociatedCompanies: []string{"Globex", "Initech"},
	}}
	researcher := &stubResearcher{}
	f := newFixture(t, intent, researcher, &stubResolver{}, &stubChat{})
	ctx := context.Background()

	reply, err := f.assistant.HandleMessage(ctx, "conv-1", "research Acme Corp vs Globex and Initech")
	require.NoError(t, err)
	assert.Equal(t, ReplyConfirmation, reply.Type)
	assert.Contains(t, reply.Text, "comparison data on Globex, Initech")

	_, err = f.assistant.HandleMessage(ctx, "conv-1", "yes")
	require.NoError(t, err)
	assert.Equal(t, []string{"Globex", "Initech"}, researcher.lastRequest().AssociatedCompanies)

	conv, err := f.sessions.Get(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Globex", "Initech"}, conv.AssociatedCompanies)
}

func TestDeclinedResearchClearsPending(t *testing.T) {
	f := newFixture(t,
		&stubIntent{result: classifier.Classification{Category: classifier.CategoryResearch, Company: "Acme Corp"}},
		&stubResearcher{}, &stubResolver{}, &stubChat{})
	ctx := context.Background()

	_, err := f.assistant.HandleMessage(ctx, "conv-1", "research Acme Corp")
	require.NoError(t, err)

	reply, err := f.assistant.HandleMessage(ctx, "conv-1", "no, not now")
	require.NoError(t, err)
	assert.Equal(t, ReplyChat, reply.Type)

	conv, err := f.sessions.Get(ctx, "conv-1")
	require.NoError(t, err)
	assert.Nil(t, conv.Pending)
	assert.Equal(t, session.StatusIdle, conv.Status)
}

func TestUnrelatedMessageDropsPending(t *testing.T) {
	intent := &stubIntent{result: classifier.Classification{Category: classifier.CategoryResearch, Company: "Acme Corp"}}
	f := newFixture(t, intent, &stubResearcher{}, &stubResolver{}, &stubChat{})
	ctx := context.Background()

	_, err := f.assistant.HandleMessage(ctx, "conv-1", "research Acme Corp")
	require.NoError(t, err)

	intent.result = classifier.Classification{Category: classifier.CategoryResearch, Company: "Globex"}
	reply, err := f.assistant.HandleMessage(ctx, "conv-1", "actually research Globex instead")
	require.NoError(t, err)
	assert.Equal(t, ReplyConfirmation, reply.Type)

	conv, err := f.sessions.Get(ctx, "conv-1")
	require.NoError(t, err)
	require.NotNil(t, conv.Pending)
	assert.Equal(t, "Globex", conv.Pending.Company)
}

func TestResearchFailureSetsErrorStatus(t *testing.T) {
	f := newFixture(t,
		&stubIntent{result: classifier.Classification{Category: classifier.CategoryResearch, Company: "Acme Corp"}},
		&stubResearcher{err: errors.New("no usable data found")}, &stubResolver{}, &stubChat{})
	ctx := context.Background()

	_, err := f.assistant.HandleMessage(ctx, "conv-1", "research Acme Corp")
	require.NoError(t, err)

	reply, err := f.assistant.HandleMessage(ctx, "conv-1", "go ahead")
	require.NoError(t, err)
	assert.Equal(t, ReplyError, reply.Type)
	assert.Contains(t, reply.Text, "no usable data found")

	conv, err := f.sessions.Get(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, session.StatusError, conv.Status)
}

func TestFollowUpUsesResolver(t *testing.T) {
	intent := &stubIntent{result: classifier.Classification{Category: classifier.CategoryResearch, Company: "Acme Corp"}}
	resolver := &stubResolver{result: orchestrator.FollowUpResult{
		Answer:     "They sell automation gear.",
		Source:     orchestrator.SourceCached,
		Confidence: 0.9,
	}}
	f := newFixture(t, intent, &stubResearcher{}, resolver, &stubChat{})
	ctx := context.Background()

	_, err := f.assistant.HandleMessage(ctx, "conv-1", "research Acme Corp")
	require.NoError(t, err)
	_, err = f.assistant.HandleMessage(ctx, "conv-1", "yes")
	require.NoError(t, err)

	intent.result = classifier.Classification{Category: classifier.CategoryFollowUp}
	reply, err := f.assistant.HandleMessage(ctx, "conv-1", "what do they sell?")
	require.NoError(t, err)
	assert.Equal(t, ReplyAnswer, reply.Type)
	assert.Equal(t, "They sell automation gear.", reply.Text)
}

func TestFollowUpWithoutResearch(t *testing.T) {
	f := newFixture(t,
		&stubIntent{result: classifier.Classification{Category: classifier.CategoryFollowUp}},
		&stubResearcher{}, &stubResolver{}, &stubChat{})

	reply, err := f.assistant.HandleMessage(context.Background(), "conv-1", "what about pricing?")
	require.NoError(t, err)
	assert.Equal(t, ReplyClarification, reply.Type)
}

func TestBlankMessageIsSkipped(t *testing.T) {
	intent := &stubIntent{result: classifier.Classification{Category: classifier.CategoryCasual}}
	f := newFixture(t, intent, &stubResearcher{}, &stubResolver{}, &stubChat{text: "hi"})

	reply, err := f.assistant.HandleMessage(context.Background(), "conv-1", "   \t\n  ")
	require.NoError(t, err)
	assert.Empty(t, reply.Text)
	assert.Empty(t, reply.Type)
	assert.Equal(t, 0, intent.calls, "whitespace never reaches classification")
}

func TestExtraRequestReachesResearcher(t *testing.T) {
	intent := &stubIntent{result: classifier.Classification{
		Category:     classifier.CategoryResearch,
		Company:      "Acme Corp",
		ExtraRequest: "check their EU data residency",
	}}
	researcher := &stubResearcher{}
	f := newFixture(t, intent, researcher, &stubResolver{}, &stubChat{})
	ctx := context.Background()

	reply, err := f.assistant.HandleMessage(ctx, "conv-1", "research Acme Corp and also check their EU data residency")
	require.NoError(t, err)
	assert.Equal(t, ReplyConfirmation, reply.Type)
	assert.Contains(t, reply.Text, "check their EU data residency")

	_, err = f.assistant.HandleMessage(ctx, "conv-1", "yes")
	require.NoError(t, err)
	assert.Equal(t, "check their EU data residency", researcher.lastRequest().ExtraRequest)
}

func TestEdgeCaseRequestIsDeclined(t *testing.T) {
	intent := &stubIntent{result: classifier.Classification{
		Category: classifier.CategoryResearch,
		Company:  "Acme Corp",
		EdgeCase: true,
	}}
	researcher := &stubResearcher{}
	f := newFixture(t, intent, researcher, &stubResolver{}, &stubChat{})

	reply, err := f.assistant.HandleMessage(context.Background(), "conv-1", "research the CEO's home address at Acme Corp")
	require.NoError(t, err)
	assert.Equal(t, ReplyChat, reply.Type)
	assert.Contains(t, reply.Text, "publicly available business information")
	assert.Empty(t, researcher.requests, "declined requests never start research")

	conv, err := f.sessions.Get(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.Nil(t, conv.Pending)
}

// prefReadingGenerator simulates rotation settling on a new credential
// by bumping the preference carried on the context.
type prefReadingGenerator struct {
	settleOn int
	seeded   []int
}

func (g *prefReadingGenerator) Generate(ctx context.Context, _ backend.Request) (*backend.Response, error) {
	if pref := backend.PreferenceFrom(ctx); pref != nil {
		g.seeded = append(g.seeded, pref.Index())
		pref.SetIndex(g.settleOn)
	}
	return &backend.Response{Text: "Hello!", Model: "stub"}, nil
}

func TestSessionCredentialAffinityPersists(t *testing.T) {
	gen := &prefReadingGenerator{settleOn: 2}
	f := newFixture(t,
		&stubIntent{result: classifier.Classification{Category: classifier.CategoryCasual}},
		&stubResearcher{}, &stubResolver{}, gen)
	ctx := context.Background()

	_, err := f.assistant.HandleMessage(ctx, "conv-1", "hello")
	require.NoError(t, err)

	conv, err := f.sessions.Get(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, 2, conv.CredentialIndex, "settled index saved with the conversation")

	// The next message seeds the preference from the stored index
	_, err = f.assistant.HandleMessage(ctx, "conv-1", "hello again")
	require.NoError(t, err)
	require.Len(t, gen.seeded, 2)
	assert.Equal(t, 0, gen.seeded[0])
	assert.Equal(t, 2, gen.seeded[1])
}

func TestAffirmativeAndNegativeDetection(t *testing.T) {
	for _, msg := range []string{"yes", "Yes.", "yeah", "go ahead", "OK", "sure, sounds good", "do it!"} {
		assert.True(t, isAffirmative(msg), msg)
	}
	for _, msg := range []string{"no", "Nope", "cancel", "never mind", "not now please"} {
		assert.True(t, isNegative(msg), msg)
	}
	for _, msg := range []string{"what about Globex", "tell me more", "research Acme"} {
		assert.False(t, isAffirmative(msg), msg)
		assert.False(t, isNegative(msg), msg)
	}
}
