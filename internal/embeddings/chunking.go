package embeddings

import (
	"strings"

	"github.com/google/uuid"
)

// ChunkingConfig controls how long documents are split before indexing
type ChunkingConfig struct {
	Enabled       bool `yaml:"Enabled"`
	MaxTokens     int  `yaml:"MaxTokens"`
	OverlapTokens int  `yaml:"OverlapTokens"`
}

// DefaultChunkingConfig returns sensible defaults
func DefaultChunkingConfig() ChunkingConfig {
	return ChunkingConfig{
		Enabled:       true,
		MaxTokens:     1800,
		OverlapTokens: 200,
	}
}

// Chunk is one piece of a split document
type Chunk struct {
	DocID      string // shared across all chunks of the same document
	Text       string
	Index      int // 0-based chunk position
	TotalCount int
}

// Chunker splits long document text into overlapping chunks
type Chunker struct {
	maxTokens     int
	overlapTokens int
}

// NewChunker creates a chunker with the given configuration
func NewChunker(config ChunkingConfig) *Chunker {
	if config.MaxTokens <= 0 {
		config.MaxTokens = 1800
	}
	if config.OverlapTokens <= 0 {
		config.OverlapTokens = 200
	}
	return &Chunker{
		maxTokens:     config.MaxTokens,
		overlapTokens: config.OverlapTokens,
	}
}

// ChunkText splits text into overlapping chunks.
// Returns nil if text fits within maxTokens (no chunking needed).
func (c *Chunker) ChunkText(text string) []Chunk {
	tokens := strings.Fields(text)

	if len(tokens) <= c.maxTokens {
		return nil
	}

	docID := uuid.New().String()
	chunks := []Chunk{}

	step := c.maxTokens - c.overlapTokens
	if step <= 0 {
		step = c.maxTokens / 2
	}

	for i := 0; i < len(tokens); i += step {
		end := i + c.maxTokens
		if end > len(tokens) {
			end = len(tokens)
		}

		chunks = append(chunks, Chunk{
			DocID: docID,
			Text:  strings.Join(tokens[i:end], " "),
			Index: len(chunks),
		})

		if end == len(tokens) {
			break
		}
	}

	for i := range chunks {
		chunks[i].TotalCount = len(chunks)
	}

	return chunks
}

// CountTokens estimates the token count for a given text
func (c *Chunker) CountTokens(text string) int {
	return len(strings.Fields(text))
}
