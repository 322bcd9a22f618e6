package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/praxian-ai/scout/internal/circuitbreaker"
	"github.com/praxian-ai/scout/internal/metrics"
)

// Client is a minimal Qdrant HTTP client
type Client struct {
	cfg  Config
	base string
	http *circuitbreaker.HTTPClient
	log  *zap.Logger
}

// NewClient builds a Qdrant client with circuit breaker protection.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := circuitbreaker.NewHTTPClient("qdrant",
		&http.Client{Timeout: cfg.Timeout},
		circuitbreaker.GetHTTPConfig(),
		logger,
	)
	return &Client{
		cfg:  cfg,
		base: fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port),
		http: httpClient,
		log:  logger,
	}
}

// GetConfig returns the current configuration
func (c *Client) GetConfig() Config {
	if c == nil {
		return Config{}.withDefaults()
	}
	return c.cfg
}

type queryRequest struct {
	Query          []float32              `json:"query"`
	Limit          int                    `json:"limit"`
	ScoreThreshold *float64               `json:"score_threshold,omitempty"`
	WithPayload    bool                   `json:"with_payload"`
	Filter         map[string]interface{} `json:"filter,omitempty"`
}

type point struct {
	ID      interface{}            `json:"id"`
	Score   float64                `json:"score"`
	Payload map[string]interface{} `json:"payload"`
}

type queryResponse struct {
	Result struct {
		Points []point `json:"points"`
	} `json:"result"`
	Status string `json:"status"`
}

// UpsertItem represents a single point to insert
type UpsertItem struct {
	ID      interface{}            `json:"id,omitempty"`
	Vector  []float32              `json:"vector"`
	Payload map[string]interface{} `json:"payload"`
}

func (c *Client) post(ctx context.Context, method, url string, body interface{}) (*http.Response, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.http.Do(req)
}

// Search runs similarity search over a collection with an optional filter.
func (c *Client) Search(ctx context.Context, collection string, vec []float32, limit int, threshold float64, filter map[string]interface{}) ([]point, error) {
	if c == nil || !c.cfg.Enabled {
		return nil, fmt.Errorf("knowledge: search called while disabled")
	}
	start := time.Now()

	var thr *float64
	if threshold > 0 {
		thr = &threshold
	}
	url := fmt.Sprintf("%s/collections/%s/points/query", c.base, collection)
	resp, err := c.post(ctx, http.MethodPost, url, queryRequest{
		Query:          vec,
		Limit:          limit,
		ScoreThreshold: thr,
		WithPayload:    true,
		Filter:         filter,
	})
	if err != nil {
		metrics.RecordVectorSearchMetrics(collection, "error", time.Since(start).Seconds())
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		metrics.RecordVectorSearchMetrics(collection, "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("qdrant query status %d", resp.StatusCode)
	}

	var qr queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		metrics.RecordVectorSearchMetrics(collection, "error", time.Since(start).Seconds())
		return nil, err
	}
	metrics.RecordVectorSearchMetrics(collection, "ok", time.Since(start).Seconds())
	return qr.Result.Points, nil
}

// Upsert inserts or updates points in a collection
func (c *Client) Upsert(ctx context.Context, collection string, points []UpsertItem) error {
	if c == nil || !c.cfg.Enabled {
		return fmt.Errorf("knowledge: upsert called while disabled")
	}
	url := fmt.Sprintf("%s/collections/%s/points", c.base, collection)
	resp, err := c.post(ctx, http.MethodPut, url, map[string]interface{}{"points": points})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant upsert status %d", resp.StatusCode)
	}
	return nil
}

// Count returns how many points match the filter.
func (c *Client) Count(ctx context.Context, collection string, filter map[string]interface{}) (int, error) {
	if c == nil || !c.cfg.Enabled {
		return 0, fmt.Errorf("knowledge: count called while disabled")
	}
	url := fmt.Sprintf("%s/collections/%s/points/count", c.base, collection)
	body := map[string]interface{}{"exact": true}
	if filter != nil {
		body["filter"] = filter
	}
	resp, err := c.post(ctx, http.MethodPost, url, body)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("qdrant count status %d", resp.StatusCode)
	}
	var r struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return 0, err
	}
	return r.Result.Count, nil
}

// Scroll retrieves points by filter without a query vector.
func (c *Client) Scroll(ctx context.Context, collection string, filter map[string]interface{}, limit int) ([]point, error) {
	if c == nil || !c.cfg.Enabled {
		return nil, fmt.Errorf("knowledge: scroll called while disabled")
	}
	url := fmt.Sprintf("%s/collections/%s/points/scroll", c.base, collection)
	body := map[string]interface{}{
		"limit":        limit,
		"with_payload": true,
	}
	if filter != nil {
		body["filter"] = filter
	}
	resp, err := c.post(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("qdrant scroll status %d", resp.StatusCode)
	}
	var r struct {
		Result struct {
			Points []point `json:"points"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, err
	}
	return r.Result.Points, nil
}

// companyFilter builds a Qdrant must-match filter on the company payload key.
func companyFilter(company string) map[string]interface{} {
	return map[string]interface{}{
		"must": []map[string]interface{}{
			{"key": "company", "match": map[string]interface{}{"value": company}},
		},
	}
}
