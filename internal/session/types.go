package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/praxian-ai/scout/internal/plan"
)

var (
	// ErrNotFound is returned when a conversation doesn't exist.
	ErrNotFound = errors.New("conversation not found")

	// ErrExpired is returned when a conversation has expired.
	ErrExpired = errors.New("conversation expired")
)

// Status is the lifecycle state of a conversation.
type Status string

const (
	StatusIdle        Status = "idle"
	StatusResearching Status = "researching"
	StatusComplete    Status = "complete"
	StatusError       Status = "error"
)

// legalTransitions is the closed set of allowed status changes:
// research starts only from idle, finishes as complete or error, and
// any state may reset to idle.
var legalTransitions = map[Status][]Status{
	StatusIdle:        {StatusResearching},
	StatusResearching: {StatusComplete, StatusError, StatusIdle},
	StatusComplete:    {StatusIdle},
	StatusError:       {StatusIdle},
}

// Turn is one message in a conversation, with the classification that
// routed it when the speaker was the user.
type Turn struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Category  string    `json:"category,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// PendingConfirmation holds a research request awaiting the user's
// go-ahead.
type PendingConfirmation struct {
	Company      string    `json:"company"`
	Peers        []string  `json:"peers,omitempty"`
	ExtraRequest string    `json:"extra_request,omitempty"`
	AskedAt      time.Time `json:"asked_at"`
}

// Conversation is the per-session state: message history, research
// status, the cached plan for follow-ups, and the credential index the
// session last succeeded with.
type Conversation struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt time.Time `json:"expires_at"`

	Status              Status               `json:"status"`
	Turns               []Turn               `json:"turns"`
	Company             string               `json:"company,omitempty"`
	AssociatedCompanies []string             `json:"associated_companies,omitempty"`
	Pending             *PendingConfirmation `json:"pending,omitempty"`
	Plan                *plan.AccountPlan    `json:"plan,omitempty"`

	// CredentialIndex is the backend credential this session last
	// succeeded with, persisted so affinity survives restarts.
	CredentialIndex int `json:"credential_index"`
}

// IsExpired reports whether the conversation has passed its TTL.
func (c *Conversation) IsExpired() bool {
	return time.Now().After(c.ExpiresAt)
}

// Transition moves the conversation to a new status, enforcing the
// legal transition set.
func (c *Conversation) Transition(to Status) error {
	if c.Status == to {
		return nil
	}
	for _, allowed := range legalTransitions[c.Status] {
		if allowed == to {
			c.Status = to
			c.UpdatedAt = time.Now()
			return nil
		}
	}
	return fmt.Errorf("illegal status transition %s -> %s", c.Status, to)
}

// ResearchDone reports whether this conversation has a completed plan
// to answer follow-ups from.
func (c *Conversation) ResearchDone() bool {
	return c.Status == StatusComplete && c.Plan != nil
}

// RecentTurns returns the most recent count turns.
func (c *Conversation) RecentTurns(count int) []Turn {
	if len(c.Turns) <= count {
		return c.Turns
	}
	return c.Turns[len(c.Turns)-count:]
}

// HistoryLines renders recent turns as "role: content" lines for
// prompt context.
func (c *Conversation) HistoryLines(count int) []string {
	turns := c.RecentTurns(count)
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		lines = append(lines, t.Role+": "+strings.TrimSpace(t.Content))
	}
	return lines
}
