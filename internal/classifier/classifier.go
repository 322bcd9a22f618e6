package classifier

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/praxian-ai/scout/internal/backend"
	"github.com/praxian-ai/scout/internal/metrics"
)

// Category is the intent of an incoming message.
type Category string

const (
	CategoryCasual   Category = "casual"
	CategoryResearch Category = "research_request"
	CategoryFollowUp Category = "follow_up"
)

// Dispositions describe how the user is communicating, so replies can
// match their register.
const (
	DispositionNeutral   = "neutral"
	DispositionEfficient = "efficient"
	DispositionChatty    = "chatty"
)

// Classification is the outcome of intent detection for one message.
type Classification struct {
	Category   Category
	Confidence float64
	// Rationale is the model's one-line explanation of the category.
	// Keyword fallback fills in a canned rationale.
	Rationale string
	Company   string
	// AssociatedCompanies are companies the user asked to compare
	// against, e.g. "research Acme vs Globex".
	AssociatedCompanies []string
	// ExtraRequest is an ad hoc question riding along with the research
	// request, e.g. "research Acme and also check their EU presence".
	ExtraRequest string
	// Disposition is one of the Disposition constants.
	Disposition string
	// EdgeCase marks requests for personal, confidential, or otherwise
	// inappropriate information. Keyword detection is the ground truth
	// here; the model can flag more cases but never clear one.
	EdgeCase bool
}

var casualKeywords = []string{
	"hi", "hello", "hey", "how are you", "what can you do",
	"help", "thanks", "thank you",
}

var researchKeywords = []string{
	"research", "analyze", "tell me about", "information on",
	"look up", "find out about",
}

// Classifier detects message intent using the model, falling back to
// keyword heuristics when the model call or its output fails.
type Classifier struct {
	generator backend.Generator
	logger    *zap.Logger
}

// New creates a Classifier over the given generator.
func New(generator backend.Generator, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{generator: generator, logger: logger}
}

const classifyPrompt = `Classify the user message into exactly one category:
- "casual": greetings, small talk, questions about the assistant itself
- "research_request": asks to research or analyze a company
- "follow_up": asks about an earlier research result in this conversation

A follow_up is only possible when research has already completed in this conversation.
Research completed: %COMPLETED%
Most recently researched company: %LAST_COMPANY%

Recent conversation:
%HISTORY%

If the category is research_request, extract the company name. If the
user asks to compare against other companies, list those under
associated_companies. A message like "what about their pricing" refers
to the most recently researched company. If the message carries an ad
hoc question on top of the research itself ("research Acme and also
check their EU presence"), put that question under extra_request.

Set disposition to "efficient" for terse, get-it-done messages,
"chatty" for conversational ones, "neutral" otherwise. Set edge_case to
true when the message asks for personal, confidential, or otherwise
inappropriate information.

Respond with JSON only:
{"category": "...", "confidence": 0.0, "rationale": "...", "company": "...",
 "associated_companies": [], "extra_request": "", "disposition": "neutral",
 "edge_case": false}

Message: %MESSAGE%`

type classifyResult struct {
	Category            string   `json:"category"`
	Confidence          float64  `json:"confidence"`
	Rationale           string   `json:"rationale"`
	Company             string   `json:"company"`
	AssociatedCompanies []string `json:"associated_companies"`
	ExtraRequest        string   `json:"extra_request"`
	Disposition         string   `json:"disposition"`
	EdgeCase            bool     `json:"edge_case"`
}

// Classify detects the intent of message. history is the tail of the
// conversation transcript, oldest first. researchDone reports whether a
// completed research run exists in the conversation, which is what
// makes follow_up a legal outcome; lastCompany is the company that run
// covered, so pronoun-style follow-ups can be resolved.
func (c *Classifier) Classify(ctx context.Context, message string, history []string, researchDone bool, lastCompany string) Classification {
	if cls, ok := c.classifyWithModel(ctx, message, history, researchDone, lastCompany); ok {
		metrics.Classifications.WithLabelValues(string(cls.Category), "model").Inc()
		return cls
	}

	cls := c.classifyWithKeywords(message, researchDone)
	metrics.Classifications.WithLabelValues(string(cls.Category), "fallback").Inc()
	return cls
}

func (c *Classifier) classifyWithModel(ctx context.Context, message string, history []string, researchDone bool, lastCompany string) (Classification, bool) {
	if c.generator == nil {
		return Classification{}, false
	}

	if lastCompany == "" {
		lastCompany = "none"
	}
	transcript := "(empty)"
	if len(history) > 0 {
		transcript = strings.Join(history, "\n")
	}
	prompt := strings.NewReplacer(
		"%COMPLETED%", boolWord(researchDone),
		"%LAST_COMPANY%", lastCompany,
		"%HISTORY%", transcript,
		"%MESSAGE%", message,
	).Replace(classifyPrompt)

	resp, err := c.generator.Generate(ctx, backend.Request{
		Prompt:      prompt,
		Temperature: 0.1,
		MaxTokens:   256,
	})
	if err != nil {
		c.logger.Warn("Model classification failed, using keyword fallback", zap.Error(err))
		return Classification{}, false
	}

	var result classifyResult
	if err := json.Unmarshal([]byte(extractJSON(resp.Text)), &result); err != nil {
		c.logger.Warn("Unparseable classification output, using keyword fallback",
			zap.Error(err),
		)
		return Classification{}, false
	}

	category := Category(result.Category)
	switch category {
	case CategoryCasual, CategoryResearch:
	case CategoryFollowUp:
		if !researchDone {
			// The model cannot promote a message to follow_up before
			// any research exists
			category = CategoryResearch
		}
	default:
		return Classification{}, false
	}

	confidence := result.Confidence
	if confidence <= 0 || confidence > 1 {
		confidence = 0.5
	}

	var peers []string
	for _, p := range result.AssociatedCompanies {
		if p = strings.TrimSpace(p); p != "" {
			peers = append(peers, p)
		}
	}

	disposition := result.Disposition
	switch disposition {
	case DispositionEfficient, DispositionChatty, DispositionNeutral:
	default:
		disposition = detectDisposition(message)
	}

	return Classification{
		Category:            category,
		Confidence:          confidence,
		Rationale:           strings.TrimSpace(result.Rationale),
		Company:             strings.TrimSpace(result.Company),
		AssociatedCompanies: peers,
		ExtraRequest:        strings.TrimSpace(result.ExtraRequest),
		Disposition:         disposition,
		// Keyword detection can only be extended by the model, never
		// overruled
		EdgeCase: result.EdgeCase || detectEdgeCase(message),
	}, true
}

func (c *Classifier) classifyWithKeywords(message string, researchDone bool) Classification {
	lower := strings.ToLower(strings.TrimSpace(message))
	disposition := detectDisposition(message)
	edgeCase := detectEdgeCase(message)

	for _, kw := range casualKeywords {
		if strings.Contains(lower, kw) {
			return Classification{
				Category:    CategoryCasual,
				Confidence:  0.8,
				Rationale:   "matched casual keyword",
				Disposition: disposition,
				EdgeCase:    edgeCase,
			}
		}
	}

	if researchDone && wordCount(message) < 15 {
		return Classification{
			Category:    CategoryFollowUp,
			Confidence:  0.6,
			Rationale:   "short message after completed research",
			Disposition: disposition,
			EdgeCase:    edgeCase,
		}
	}

	head, extra := splitExtra(message)
	company, peers := splitComparison(extractCompany(head))
	confidence, rationale := 0.5, "no keyword match, defaulting to research"
	for _, kw := range researchKeywords {
		if strings.Contains(lower, kw) {
			confidence, rationale = 0.7, "matched research keyword"
			break
		}
	}

	return Classification{
		Category:            CategoryResearch,
		Confidence:          confidence,
		Rationale:           rationale,
		Company:             company,
		AssociatedCompanies: peers,
		ExtraRequest:        extra,
		Disposition:         disposition,
		EdgeCase:            edgeCase,
	}
}

var edgeCaseKeywords = []string{
	"home address", "personal phone", "personal email", "private life",
	"salary of", "social security", "confidential", "insider",
	"non-public", "hack", "password", "date of birth",
}

// detectEdgeCase flags requests for personal or confidential
// information. This keyword pass is the safety floor: the model path
// can add cases on top but never bypasses it.
func detectEdgeCase(message string) bool {
	lower := strings.ToLower(message)
	for _, kw := range edgeCaseKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

var efficientMarkers = []string{"just ", "asap", "quick", "now.", "no fluff"}
var chattyMarkers = []string{"by the way", "hope you", "how's", "haha", "btw", "!"}

// detectDisposition guesses the user's register from surface cues.
func detectDisposition(message string) string {
	lower := strings.ToLower(message)
	for _, m := range efficientMarkers {
		if strings.Contains(lower, m) {
			return DispositionEfficient
		}
	}
	if wordCount(message) <= 3 {
		return DispositionEfficient
	}
	for _, m := range chattyMarkers {
		if strings.Contains(lower, m) {
			return DispositionChatty
		}
	}
	if wordCount(message) > 25 {
		return DispositionChatty
	}
	return DispositionNeutral
}

var extraMarkers = []string{" and also ", "; also ", ". also ", ", also "}

// splitExtra separates an ad hoc rider from the research request
// proper: "research Acme and also check their EU presence" yields the
// head "research Acme" and the extra "check their EU presence".
func splitExtra(message string) (head, extra string) {
	lower := strings.ToLower(message)
	for _, marker := range extraMarkers {
		idx := strings.Index(lower, marker)
		if idx < 0 {
			continue
		}
		head = strings.TrimSpace(message[:idx])
		extra = strings.TrimSpace(strings.TrimRight(message[idx+len(marker):], ".!?"))
		return head, extra
	}
	return message, ""
}

var comparisonMarkers = []string{
	" compared to ", " compared with ", " versus ", " vs. ", " vs ", " against ",
}

// splitComparison separates "Acme vs Globex and Initech" into the
// primary company and its comparison peers.
func splitComparison(name string) (string, []string) {
	lower := strings.ToLower(name)
	for _, marker := range comparisonMarkers {
		idx := strings.Index(lower, marker)
		if idx < 0 {
			continue
		}
		company := strings.TrimSpace(name[:idx])
		rest := name[idx+len(marker):]
		var peers []string
		for _, part := range strings.FieldsFunc(rest, func(r rune) bool { return r == ',' }) {
			for _, peer := range strings.Split(part, " and ") {
				if peer = strings.TrimSpace(peer); peer != "" {
					peers = append(peers, peer)
				}
			}
		}
		return company, peers
	}
	return name, nil
}

// extractCompany strips leading research phrasing and trailing
// punctuation from a message to guess the company name.
func extractCompany(message string) string {
	s := strings.TrimSpace(message)
	lower := strings.ToLower(s)
	for _, prefix := range []string{
		"please ", "can you ", "could you ",
	} {
		if strings.HasPrefix(lower, prefix) {
			s = s[len(prefix):]
			lower = lower[len(prefix):]
		}
	}
	for _, prefix := range []string{
		"research ", "analyze ", "tell me about ", "information on ",
		"look up ", "find out about ",
	} {
		if strings.HasPrefix(lower, prefix) {
			s = s[len(prefix):]
			break
		}
	}
	return strings.TrimRight(strings.TrimSpace(s), ".!?")
}

// extractJSON trims markdown fences and surrounding prose so model
// output parses as a bare JSON object.
func extractJSON(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return text
	}
	return text[start : end+1]
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

func boolWord(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
