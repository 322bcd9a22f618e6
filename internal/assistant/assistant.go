// Package assistant routes inbound conversation messages: it
// classifies intent and dispatches to casual chat, research runs, or
// follow-up resolution, keeping the conversation state current.
package assistant

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/praxian-ai/scout/internal/backend"
	"github.com/praxian-ai/scout/internal/classifier"
	"github.com/praxian-ai/scout/internal/orchestrator"
	"github.com/praxian-ai/scout/internal/plan"
	"github.com/praxian-ai/scout/internal/session"
)

// Reply types returned to the transport layer.
const (
	ReplyChat          = "chat"
	ReplyClarification = "clarification"
	ReplyConfirmation  = "confirmation"
	ReplyPlan          = "plan"
	ReplyAnswer        = "answer"
	ReplyError         = "error"
)

// Reply is the assistant's response to one inbound message.
type Reply struct {
	Text string
	Type string
	Plan *plan.AccountPlan
}

// Researcher runs a full research request and returns the aggregated
// account plan.
type Researcher interface {
	GenerateAccountPlan(ctx context.Context, req orchestrator.Request) (*plan.AccountPlan, error)
}

// FollowUpResolver answers questions about a completed plan.
type FollowUpResolver interface {
	Resolve(ctx context.Context, p *plan.AccountPlan, history []string, question string) orchestrator.FollowUpResult
}

// IntentClassifier detects the category of an inbound message.
type IntentClassifier interface {
	Classify(ctx context.Context, message string, history []string, researchDone bool, lastCompany string) classifier.Classification
}

// Persister stores turns and finished plans. Writes are
// fire-and-forget; a nil Persister disables persistence.
type Persister interface {
	SaveTurnAsync(conversationID, role, content, category string)
	SavePlanAsync(p *plan.AccountPlan, callback func(error))
}

// Assistant is the message loop: preprocess, classify, route.
type Assistant struct {
	sessions   *session.Manager
	classifier IntentClassifier
	researcher Researcher
	followUps  FollowUpResolver
	generator  backend.Generator
	rewriter   *classifier.PersonaRewriter
	store      Persister
	log        *zap.Logger
}

// New wires an Assistant. store may be nil.
func New(
	sessions *session.Manager,
	intent IntentClassifier,
	researcher Researcher,
	followUps FollowUpResolver,
	generator backend.Generator,
	rewriter *classifier.PersonaRewriter,
	store Persister,
	logger *zap.Logger,
) *Assistant {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assistant{
		sessions:   sessions,
		classifier: intent,
		researcher: researcher,
		followUps:  followUps,
		generator:  generator,
		rewriter:   rewriter,
		store:      store,
		log:        logger,
	}
}

// HandleMessage processes one user message in a conversation and
// returns the assistant's reply. Empty messages are skipped without
// classification or a reply.
func (a *Assistant) HandleMessage(ctx context.Context, conversationID, message string) (Reply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return Reply{}, nil
	}

	conv, err := a.sessions.GetOrCreate(ctx, conversationID)
	if err != nil {
		return Reply{}, fmt.Errorf("load conversation: %w", err)
	}

	// Every backend call in this message shares the session's sticky
	// credential; the settled index is saved back with the conversation.
	pref := backend.NewPreferenceAt(conv.CredentialIndex)
	ctx = backend.WithPreference(ctx, pref)

	rewritten := a.rewriter.Rewrite(message)

	// A pending confirmation short-circuits classification: the user
	// is answering "should I research X?".
	if conv.Pending != nil {
		if reply, handled := a.resolveConfirmation(ctx, conv, rewritten); handled {
			return reply, nil
		}
	}

	cls := a.classifier.Classify(ctx, rewritten, conv.HistoryLines(6), conv.ResearchDone(), conv.Company)
	a.recordTurn(ctx, conv, "user", message, string(cls.Category))

	var reply Reply
	switch cls.Category {
	case classifier.CategoryResearch:
		reply = a.handleResearchRequest(ctx, conv, cls)
	case classifier.CategoryFollowUp:
		reply = a.handleFollowUp(ctx, conv, rewritten)
	default:
		reply = a.handleCasual(ctx, conv, rewritten, cls.Disposition)
	}

	a.recordTurn(ctx, conv, "assistant", reply.Text, "")
	a.saveConversation(ctx, conv)
	return reply, nil
}

// saveConversation persists the conversation, folding in the credential
// index the session's backend calls settled on.
func (a *Assistant) saveConversation(ctx context.Context, conv *session.Conversation) {
	if pref := backend.PreferenceFrom(ctx); pref != nil {
		conv.CredentialIndex = pref.Index()
	}
	if err := a.sessions.Update(ctx, conv); err != nil {
		a.log.Warn("Failed to save conversation", zap.String("conversation_id", conv.ID), zap.Error(err))
	}
}

// resolveConfirmation handles yes/no answers to a pending research
// confirmation. Returns handled=false when the message is neither, so
// normal routing takes over (and the stale confirmation is dropped).
func (a *Assistant) resolveConfirmation(ctx context.Context, conv *session.Conversation, message string) (Reply, bool) {
	pending := *conv.Pending
	switch {
	case isAffirmative(message):
		conv.Pending = nil
		a.recordTurn(ctx, conv, "user", message, "confirmation")
		reply := a.runResearch(ctx, conv, pending)
		a.recordTurn(ctx, conv, "assistant", reply.Text, "")
		a.saveConversation(ctx, conv)
		return reply, true
	case isNegative(message):
		conv.Pending = nil
		a.recordTurn(ctx, conv, "user", message, "confirmation")
		reply := Reply{
			Text: "No problem. Which company would you like me to research instead?",
			Type: ReplyChat,
		}
		a.recordTurn(ctx, conv, "assistant", reply.Text, "")
		a.saveConversation(ctx, conv)
		return reply, true
	default:
		conv.Pending = nil
		return Reply{}, false
	}
}

func (a *Assistant) handleResearchRequest(ctx context.Context, conv *session.Conversation, cls classifier.Classification) Reply {
	if cls.EdgeCase {
		return Reply{
			Text: "I can only research publicly available business information, so I can't help with personal or confidential details. I'd be glad to put together a business-strategy analysis instead.",
			Type: ReplyChat,
		}
	}
	if cls.Company == "" {
		return Reply{
			Text: "I'd be happy to help. What's the name of the company you'd like me to research?",
			Type: ReplyClarification,
		}
	}

	conv.Pending = &session.PendingConfirmation{
		Company:      cls.Company,
		Peers:        cls.AssociatedCompanies,
		ExtraRequest: cls.ExtraRequest,
		AskedAt:      time.Now(),
	}
	text := fmt.Sprintf("I'll put together a full account plan for %s. Go ahead?", cls.Company)
	if len(cls.AssociatedCompanies) > 0 {
		text = fmt.Sprintf("I'll put together a full account plan for %s, with comparison data on %s. Go ahead?",
			cls.Company, strings.Join(cls.AssociatedCompanies, ", "))
	}
	if cls.ExtraRequest != "" {
		text = strings.TrimSuffix(text, " Go ahead?") +
			fmt.Sprintf(" I'll also cover: %s. Go ahead?", cls.ExtraRequest)
	}
	return Reply{
		Text: text,
		Type: ReplyConfirmation,
	}
}

// runResearch executes a confirmed research request synchronously.
// Progress streams through the progress manager while this blocks.
func (a *Assistant) runResearch(ctx context.Context, conv *session.Conversation, pending session.PendingConfirmation) Reply {
	if conv.Status != session.StatusIdle {
		if err := conv.Transition(session.StatusIdle); err != nil {
			a.log.Warn("Conversation reset failed", zap.String("conversation_id", conv.ID), zap.Error(err))
		}
	}
	if err := conv.Transition(session.StatusResearching); err != nil {
		return Reply{Text: fmt.Sprintf("I can't start a new research run right now: %v", err), Type: ReplyError}
	}
	conv.Company = pending.Company
	conv.AssociatedCompanies = pending.Peers
	a.saveConversation(ctx, conv)

	p, err := a.researcher.GenerateAccountPlan(ctx, orchestrator.Request{
		Company:             pending.Company,
		AssociatedCompanies: pending.Peers,
		ExtraRequest:        pending.ExtraRequest,
	})
	if err != nil {
		_ = conv.Transition(session.StatusError)
		a.log.Error("Research run failed",
			zap.String("conversation_id", conv.ID),
			zap.String("company", pending.Company),
			zap.Error(err),
		)
		return Reply{
			Text: fmt.Sprintf("I couldn't complete the research on %s: %v", pending.Company, err),
			Type: ReplyError,
		}
	}

	conv.Plan = p
	_ = conv.Transition(session.StatusComplete)
	if a.store != nil {
		a.store.SavePlanAsync(p, nil)
	}
	return Reply{Text: p.Markdown(), Type: ReplyPlan, Plan: p}
}

func (a *Assistant) handleFollowUp(ctx context.Context, conv *session.Conversation, question string) Reply {
	if !conv.ResearchDone() {
		return Reply{
			Text: "I don't have a finished research run to draw on yet. Which company should I research first?",
			Type: ReplyClarification,
		}
	}

	result := a.followUps.Resolve(ctx, conv.Plan, conv.HistoryLines(10), question)
	replyType := ReplyAnswer
	switch result.Source {
	case orchestrator.SourceError:
		replyType = ReplyError
	case orchestrator.SourceDeclined:
		replyType = ReplyChat
	}
	return Reply{Text: result.Answer, Type: replyType}
}

func (a *Assistant) recordTurn(ctx context.Context, conv *session.Conversation, role, content, category string) {
	if content == "" {
		return
	}
	if err := a.sessions.AddTurn(ctx, conv.ID, session.Turn{Role: role, Content: content, Category: category}); err != nil {
		a.log.Warn("Failed to record turn", zap.String("conversation_id", conv.ID), zap.Error(err))
	}
	if a.store != nil {
		a.store.SaveTurnAsync(conv.ID, role, content, category)
	}
}

var affirmativeWords = []string{
	"yes", "yeah", "yep", "sure", "ok", "okay", "go ahead", "proceed", "do it", "confirm", "sounds good",
}

var negativeWords = []string{
	"no", "nope", "don't", "cancel", "stop", "never mind", "not now",
}

func isAffirmative(message string) bool {
	return matchesAny(message, affirmativeWords)
}

func isNegative(message string) bool {
	return matchesAny(message, negativeWords)
}

func matchesAny(message string, words []string) bool {
	m := strings.ToLower(strings.TrimRight(strings.TrimSpace(message), ".!"))
	for _, w := range words {
		if m == w || strings.HasPrefix(m, w+" ") || strings.HasPrefix(m, w+",") {
			return true
		}
	}
	return false
}
