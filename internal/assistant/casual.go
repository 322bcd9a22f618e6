package assistant

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/praxian-ai/scout/internal/backend"
	"github.com/praxian-ai/scout/internal/classifier"
	"github.com/praxian-ai/scout/internal/session"
)

// casualPrompt keeps small talk on-mission: brief, one question at a
// time, and always steering back to company research. Handles the
// confused, efficient, chatty, and out-of-scope user styles.
const casualPrompt = `You are a sales intelligence assistant for %VENDOR%. Your only
purpose is researching companies and building account plans.

Conversation so far:
%HISTORY%

Current user message: %MESSAGE%
User disposition: %DISPOSITION%

Rules:
- Be extremely concise: one or two sentences, under 20 words.
- Greetings get a warm greeting back plus "Which company would you like me to research?"
- Gibberish or incomprehensible text: ask them to clarify, do not ask for a company name.
- Confused users: ask ONE clarifying question at a time; never repeat a question they already answered.
- If they give clues but no name, suggest a likely company instead of re-asking.
- Efficient users: acknowledge and act, no filler.
- Chatty users: brief warm acknowledgment, then redirect to research.
- Requests for personal or confidential information: decline in one sentence and offer a business-strategy analysis instead.
- Off-topic requests: "I only do company research. Which company?"

Respond:`

const fallbackCasualReply = "Hello! Which company would you like me to research?"

func (a *Assistant) handleCasual(ctx context.Context, conv *session.Conversation, message, disposition string) Reply {
	history := conv.HistoryLines(10)
	historyText := "(none)"
	if len(history) > 0 {
		historyText = strings.Join(history, "\n")
	}
	if disposition == "" {
		disposition = classifier.DispositionNeutral
	}

	prompt := strings.NewReplacer(
		"%VENDOR%", a.rewriter.Vendor(),
		"%HISTORY%", historyText,
		"%MESSAGE%", message,
		"%DISPOSITION%", disposition,
	).Replace(casualPrompt)

	resp, err := a.generator.Generate(ctx, backend.Request{
		Prompt:      prompt,
		Temperature: 0.6,
		MaxTokens:   256,
	})
	if err != nil {
		a.log.Warn("Casual chat generation failed",
			zap.String("conversation_id", conv.ID),
			zap.Error(err),
		)
		return Reply{Text: fallbackCasualReply, Type: ReplyChat}
	}
	return Reply{Text: strings.TrimSpace(resp.Text), Type: ReplyChat}
}
