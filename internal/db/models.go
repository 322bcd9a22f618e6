package db

import (
	"encoding/json"
	"time"
)

// PlanRecord is a persisted account plan.
type PlanRecord struct {
	ID            string          `db:"id"`
	RunID         string          `db:"run_id"`
	Company       string          `db:"company"`
	Vendor        string          `db:"vendor"`
	Sections      json.RawMessage `db:"sections"`
	Markdown      string          `db:"markdown"`
	DocumentCount int             `db:"document_count"`
	QualityScore  float64         `db:"quality_score"`
	CreatedAt     time.Time       `db:"created_at"`
}

// TurnRecord is a persisted conversation turn.
type TurnRecord struct {
	ID             string    `db:"id"`
	ConversationID string    `db:"conversation_id"`
	Role           string    `db:"role"`
	Content        string    `db:"content"`
	Category       string    `db:"category"`
	CreatedAt      time.Time `db:"created_at"`
}
