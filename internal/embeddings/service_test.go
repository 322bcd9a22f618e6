package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func embedServer(t *testing.T, calls *atomic.Int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := embedResponse{Dimensions: 3, ModelUsed: req.Model}
		for range req.Texts {
			resp.Embeddings = append(resp.Embeddings, []float64{0.1, 0.2, 0.3})
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestGenerateEmbeddingUsesLRU(t *testing.T) {
	var calls atomic.Int64
	srv := embedServer(t, &calls)
	defer srv.Close()

	svc := NewService(Config{BaseURL: srv.URL, DefaultModel: "test-model", Timeout: time.Second, MaxLRU: 16, CacheTTL: time.Hour}, nil)

	v1, err := svc.GenerateEmbedding(context.Background(), "acme overview", "")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, v1)
	assert.Equal(t, int64(1), calls.Load())

	// Second call hits the LRU
	v2, err := svc.GenerateEmbedding(context.Background(), "acme overview", "")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
	assert.Equal(t, int64(1), calls.Load())
}

func TestGenerateBatchEmbeddingsPartialCache(t *testing.T) {
	var calls atomic.Int64
	srv := embedServer(t, &calls)
	defer srv.Close()

	svc := NewService(Config{BaseURL: srv.URL, DefaultModel: "test-model", Timeout: time.Second, MaxLRU: 16, CacheTTL: time.Hour}, nil)

	_, err := svc.GenerateEmbedding(context.Background(), "first", "")
	require.NoError(t, err)

	vecs, err := svc.GenerateBatchEmbeddings(context.Background(), []string{"first", "second", "third"}, "")
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	for _, v := range vecs {
		assert.Len(t, v, 3)
	}
	// One call for "first", one batch call for the remaining two
	assert.Equal(t, int64(2), calls.Load())
}

func TestGenerateEmbeddingServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	svc := NewService(Config{BaseURL: srv.URL, DefaultModel: "test-model", Timeout: time.Second, MaxLRU: 16}, nil)

	_, err := svc.GenerateEmbedding(context.Background(), "text", "")
	assert.Error(t, err)
}

func TestLocalLRUEvictionAndTTL(t *testing.T) {
	lru := NewLocalLRU(2)
	ctx := context.Background()

	lru.Set(ctx, "a", []float32{1}, time.Hour)
	lru.Set(ctx, "b", []float32{2}, time.Hour)
	lru.Set(ctx, "c", []float32{3}, time.Hour)

	_, ok := lru.Get(ctx, "a")
	assert.False(t, ok, "oldest entry evicted")
	_, ok = lru.Get(ctx, "c")
	assert.True(t, ok)

	lru.Set(ctx, "d", []float32{4}, -time.Second)
	_, ok = lru.Get(ctx, "d")
	assert.False(t, ok, "expired entry not served")
}

func TestChunkerSplitsWithOverlap(t *testing.T) {
	c := NewChunker(ChunkingConfig{MaxTokens: 10, OverlapTokens: 2})

	words := make([]string, 25)
	for i := range words {
		words[i] = "w"
	}
	text := ""
	for i, w := range words {
		if i > 0 {
			text += " "
		}
		text += w
	}

	chunks := c.ChunkText(text)
	require.NotEmpty(t, chunks)
	assert.Equal(t, chunks[0].DocID, chunks[1].DocID)
	for _, ch := range chunks {
		assert.LessOrEqual(t, c.CountTokens(ch.Text), 10)
		assert.Equal(t, len(chunks), ch.TotalCount)
	}
}

func TestChunkerShortTextNoChunks(t *testing.T) {
	c := NewChunker(DefaultChunkingConfig())
	assert.Nil(t, c.ChunkText("short document"))
}
