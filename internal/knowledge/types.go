package knowledge

import "time"

// Config controls the Qdrant-backed knowledge store
type Config struct {
	Enabled bool
	Host    string
	Port    int
	// Collections
	Documents string
	Reference string
	// Search params
	TopK      int
	Threshold float64
	Timeout   time.Duration
	// Sufficiency gate
	MinDocuments int
	MinQuality   float64
	SampleSize   int
	// Embedding model used for this store's collections
	EmbeddingModel string
}

func (c Config) withDefaults() Config {
	if c.Port == 0 {
		c.Port = 6333
	}
	if c.Documents == "" {
		c.Documents = "company_documents"
	}
	if c.Reference == "" {
		c.Reference = "reference_documents"
	}
	if c.TopK == 0 {
		c.TopK = 5
	}
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Second
	}
	if c.MinDocuments == 0 {
		c.MinDocuments = 10
	}
	if c.MinQuality == 0 {
		c.MinQuality = 0.6
	}
	if c.SampleSize == 0 {
		c.SampleSize = 5
	}
	return c
}

// Document is a unit of stored company knowledge.
type Document struct {
	ID      string `json:"id"`
	Company string `json:"company"`
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
	Source  string `json:"source"`
	// Category is the gathering topic that produced the document
	// (overview, goals, leadership, financials, culture).
	Category  string    `json:"category,omitempty"`
	Quality   float64   `json:"quality"`
	CreatedAt time.Time `json:"created_at"`
}

// SearchHit is a document returned from similarity search.
type SearchHit struct {
	Document Document
	Score    float64
}

// SufficiencyReport is the outcome of the existing-data gate.
type SufficiencyReport struct {
	DocumentCount int
	SampleSize    int
	AvgQuality    float64
	Sufficient    bool
}

// CompanyProfile summarizes what the store knows about a company.
type CompanyProfile struct {
	Company       string
	Key           string
	DocumentCount int
	Categories    []string
	Sources       []string
	QualityScore  float64
	LastUpdated   time.Time
}
