package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/praxian-ai/scout/internal/plan"
)

// SavePlanAsync queues an account plan for persistence.
func (c *Client) SavePlanAsync(p *plan.AccountPlan, callback func(error)) {
	sections, err := p.JSON()
	if err != nil {
		c.logger.Error("Failed to serialize plan", zap.Error(err))
		if callback != nil {
			callback(err)
		}
		return
	}

	record := &PlanRecord{
		ID:            uuid.New().String(),
		RunID:         p.RunID,
		Company:       p.Company,
		Vendor:        p.Vendor,
		Sections:      sections,
		Markdown:      p.Markdown(),
		DocumentCount: p.Metadata.DocumentCount,
		QualityScore:  p.Metadata.QualityScore,
		CreatedAt:     time.Now(),
	}
	c.queueWrite(writePlan, record, callback)
}

// SaveTurnAsync queues a conversation turn for persistence.
func (c *Client) SaveTurnAsync(conversationID, role, content, category string) {
	record := &TurnRecord{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Category:       category,
		CreatedAt:      time.Now(),
	}
	c.queueWrite(writeTurn, record, nil)
}

func (c *Client) insertPlan(ctx context.Context, record *PlanRecord) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO account_plans (id, run_id, company, vendor, sections, markdown, document_count, quality_score, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (run_id) DO NOTHING`,
		record.ID, record.RunID, record.Company, record.Vendor,
		record.Sections, record.Markdown, record.DocumentCount,
		record.QualityScore, record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert plan for %s: %w", record.Company, err)
	}
	return nil
}

func (c *Client) insertTurn(ctx context.Context, record *TurnRecord) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO conversation_turns (id, conversation_id, role, content, category, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		record.ID, record.ConversationID, record.Role,
		record.Content, record.Category, record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert turn for %s: %w", record.ConversationID, err)
	}
	return nil
}

// GetPlan loads a persisted plan by run ID.
func (c *Client) GetPlan(ctx context.Context, runID string) (*PlanRecord, error) {
	var record PlanRecord
	err := c.db.GetContext(ctx, &record, `
		SELECT id, run_id, company, vendor, sections, markdown, document_count, quality_score, created_at
		FROM account_plans WHERE run_id = $1`, runID)
	if err != nil {
		return nil, fmt.Errorf("get plan %s: %w", runID, err)
	}
	return &record, nil
}

// RecentPlans lists the most recent plans for a company.
func (c *Client) RecentPlans(ctx context.Context, company string, limit int) ([]PlanRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	var records []PlanRecord
	err := c.db.SelectContext(ctx, &records, `
		SELECT id, run_id, company, vendor, sections, markdown, document_count, quality_score, created_at
		FROM account_plans WHERE company = $1
		ORDER BY created_at DESC LIMIT $2`, company, limit)
	if err != nil {
		return nil, fmt.Errorf("list plans for %s: %w", company, err)
	}
	return records, nil
}

// RecentTurns lists the most recent turns of a conversation, oldest
// first.
func (c *Client) RecentTurns(ctx context.Context, conversationID string, limit int) ([]TurnRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []TurnRecord
	err := c.db.SelectContext(ctx, &records, `
		SELECT id, conversation_id, role, content, category, created_at
		FROM (
			SELECT id, conversation_id, role, content, category, created_at
			FROM conversation_turns WHERE conversation_id = $1
			ORDER BY created_at DESC LIMIT $2
		) recent ORDER BY created_at ASC`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("list turns for %s: %w", conversationID, err)
	}
	return records, nil
}
