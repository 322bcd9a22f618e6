package knowledge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/praxian-ai/scout/internal/backend"
)

// Embedder turns text into vectors. Satisfied by embeddings.Service.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string, model string) ([]float32, error)
	GenerateBatchEmbeddings(ctx context.Context, texts []string, model string) ([][]float32, error)
}

// Store is the company knowledge base: gathered documents plus vendor
// reference material, retrievable by similarity search. The sufficiency
// gate scores sampled documents through the generation backend.
type Store struct {
	client    *Client
	embedder  Embedder
	validator backend.Generator
	log       *zap.Logger

	mu  sync.RWMutex
	cfg Config
}

// NewStore builds a store over a Qdrant client and an embedder.
// validator scores sampled documents for the sufficiency gate; when nil
// the gate falls back to the quality recorded at write time.
func NewStore(client *Client, embedder Embedder, validator backend.Generator, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		client:    client,
		embedder:  embedder,
		validator: validator,
		cfg:       client.GetConfig(),
		log:       logger,
	}
}

// SetGate replaces the sufficiency thresholds at runtime. Zero values
// leave the corresponding threshold unchanged.
func (s *Store) SetGate(minDocuments int, minQuality float64, sampleSize int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if minDocuments > 0 {
		s.cfg.MinDocuments = minDocuments
	}
	if minQuality > 0 {
		s.cfg.MinQuality = minQuality
	}
	if sampleSize > 0 {
		s.cfg.SampleSize = sampleSize
	}
}

func (s *Store) gate() (minDocs int, minQuality float64, sample int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.MinDocuments, s.cfg.MinQuality, s.cfg.SampleSize
}

// AddDocuments embeds and stores gathered documents for a company.
func (s *Store) AddDocuments(ctx context.Context, docs []Document) error {
	return s.add(ctx, s.cfg.Documents, docs)
}

// AddReferenceDocuments stores vendor reference material used to frame
// product-fit and synergy analysis.
func (s *Store) AddReferenceDocuments(ctx context.Context, docs []Document) error {
	return s.add(ctx, s.cfg.Reference, docs)
}

func (s *Store) add(ctx context.Context, collection string, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}
	vecs, err := s.embedder.GenerateBatchEmbeddings(ctx, texts, s.cfg.EmbeddingModel)
	if err != nil {
		return fmt.Errorf("embed documents: %w", err)
	}

	items := make([]UpsertItem, len(docs))
	for i, d := range docs {
		id := d.ID
		if id == "" {
			id = uuid.New().String()
		}
		createdAt := d.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		items[i] = UpsertItem{
			ID:     id,
			Vector: vecs[i],
			Payload: map[string]interface{}{
				"company":    d.Company,
				"title":      d.Title,
				"url":        d.URL,
				"content":    d.Content,
				"source":     d.Source,
				"category":   d.Category,
				"quality":    d.Quality,
				"created_at": createdAt.Unix(),
			},
		}
	}

	if err := s.client.Upsert(ctx, collection, items); err != nil {
		return fmt.Errorf("upsert documents: %w", err)
	}
	s.log.Debug("Stored documents",
		zap.String("collection", collection),
		zap.Int("count", len(docs)),
	)
	return nil
}

// Search returns company documents most similar to the query.
func (s *Store) Search(ctx context.Context, company, query string, topK int) ([]SearchHit, error) {
	return s.search(ctx, s.cfg.Documents, companyFilter(company), query, topK)
}

// SearchReference returns vendor reference documents similar to the query.
func (s *Store) SearchReference(ctx context.Context, query string, topK int) ([]SearchHit, error) {
	return s.search(ctx, s.cfg.Reference, nil, query, topK)
}

func (s *Store) search(ctx context.Context, collection string, filter map[string]interface{}, query string, topK int) ([]SearchHit, error) {
	if topK <= 0 {
		topK = s.cfg.TopK
	}
	vec, err := s.embedder.GenerateEmbedding(ctx, query, s.cfg.EmbeddingModel)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	points, err := s.client.Search(ctx, collection, vec, topK, s.cfg.Threshold, filter)
	if err != nil {
		return nil, err
	}
	hits := make([]SearchHit, 0, len(points))
	for _, p := range points {
		hits = append(hits, SearchHit{
			Document: docFromPayload(p.Payload),
			Score:    p.Score,
		})
	}
	return hits, nil
}

// HasSufficientData reports whether the store already holds enough
// quality material about a company to skip fresh gathering. The gate
// requires a minimum document count and a minimum average quality over
// a small sample, each sampled document scored as meaningful or not by
// a binary validator call.
func (s *Store) HasSufficientData(ctx context.Context, company string) (SufficiencyReport, error) {
	minDocs, minQuality, sampleSize := s.gate()

	count, err := s.client.Count(ctx, s.cfg.Documents, companyFilter(company))
	if err != nil {
		return SufficiencyReport{}, err
	}

	report := SufficiencyReport{DocumentCount: count}
	if count < minDocs {
		return report, nil
	}

	sample := sampleSize
	if count < sample {
		sample = count
	}
	points, err := s.client.Scroll(ctx, s.cfg.Documents, companyFilter(company), sample)
	if err != nil {
		return report, err
	}

	var total float64
	for _, p := range points {
		score, err := s.scoreDocument(ctx, docFromPayload(p.Payload))
		if err != nil {
			return report, err
		}
		total += score
	}
	if len(points) > 0 {
		report.AvgQuality = total / float64(len(points))
	}
	report.SampleSize = len(points)
	report.Sufficient = report.AvgQuality >= minQuality
	return report, nil
}

const validatePrompt = `Does the following text contain meaningful, substantive information
about the company %s (facts about its business, products, strategy,
people, or finances)? Answer with a single word: yes or no.

Text:
%s`

// scoreDocument scores one sampled document 1.0 (meaningful) or 0.0
// via a binary validator call. Without a validator, or when the call
// fails for any reason other than credential exhaustion, the quality
// recorded at write time stands in.
func (s *Store) scoreDocument(ctx context.Context, doc Document) (float64, error) {
	if s.validator == nil {
		return doc.Quality, nil
	}

	excerpt := doc.Content
	if len(excerpt) > 1500 {
		excerpt = excerpt[:1500]
	}
	resp, err := s.validator.Generate(ctx, backend.Request{
		Prompt:      fmt.Sprintf(validatePrompt, doc.Company, excerpt),
		Temperature: 0,
		MaxTokens:   8,
	})
	if err != nil {
		if errors.Is(err, backend.ErrCredentialsExhausted) {
			return 0, fmt.Errorf("validate document: %w", err)
		}
		s.log.Warn("Document validation failed, using stored quality",
			zap.String("company", doc.Company),
			zap.Error(err),
		)
		return doc.Quality, nil
	}

	if strings.Contains(strings.ToLower(resp.Text), "yes") {
		return 1, nil
	}
	return 0, nil
}

// Profile summarizes what the store knows about a company: document
// count, gathering categories covered, distinct sources, and the
// average recorded quality. Refreshed by the gatherer after every
// storage pass.
func (s *Store) Profile(ctx context.Context, company string) (*CompanyProfile, error) {
	count, err := s.client.Count(ctx, s.cfg.Documents, companyFilter(company))
	if err != nil {
		return nil, err
	}
	profile := &CompanyProfile{
		Company:       company,
		Key:           normalizeKey(company),
		DocumentCount: count,
	}
	if count == 0 {
		return profile, nil
	}

	points, err := s.client.Scroll(ctx, s.cfg.Documents, companyFilter(company), count)
	if err != nil {
		return nil, err
	}
	seenSource := make(map[string]struct{})
	seenCategory := make(map[string]struct{})
	var totalQuality float64
	for _, p := range points {
		doc := docFromPayload(p.Payload)
		if doc.Source != "" {
			if _, ok := seenSource[doc.Source]; !ok {
				seenSource[doc.Source] = struct{}{}
				profile.Sources = append(profile.Sources, doc.Source)
			}
		}
		if doc.Category != "" {
			if _, ok := seenCategory[doc.Category]; !ok {
				seenCategory[doc.Category] = struct{}{}
				profile.Categories = append(profile.Categories, doc.Category)
			}
		}
		totalQuality += doc.Quality
		if doc.CreatedAt.After(profile.LastUpdated) {
			profile.LastUpdated = doc.CreatedAt
		}
	}
	if len(points) > 0 {
		profile.QualityScore = totalQuality / float64(len(points))
	}
	return profile, nil
}

// normalizeKey lowercases a company name and collapses whitespace so
// the same company always maps to one profile key.
func normalizeKey(company string) string {
	return strings.Join(strings.Fields(strings.ToLower(company)), "-")
}

func docFromPayload(payload map[string]interface{}) Document {
	doc := Document{}
	if payload == nil {
		return doc
	}
	if v, ok := payload["company"].(string); ok {
		doc.Company = v
	}
	if v, ok := payload["title"].(string); ok {
		doc.Title = v
	}
	if v, ok := payload["url"].(string); ok {
		doc.URL = v
	}
	if v, ok := payload["content"].(string); ok {
		doc.Content = v
	}
	if v, ok := payload["source"].(string); ok {
		doc.Source = v
	}
	if v, ok := payload["category"].(string); ok {
		doc.Category = v
	}
	if v, ok := payload["quality"].(float64); ok {
		doc.Quality = v
	}
	if v, ok := payload["created_at"].(float64); ok {
		doc.CreatedAt = time.Unix(int64(v), 0)
	}
	return doc
}
