package webtool

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const searchPage = `<html><body>
<div class="result">
  <a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Facme.test%2F">Acme Corp - Official Site</a>
  <a class="result__snippet" href="#">Acme Corp is the leading anvil manufacturer.</a>
</div>
<div class="result">
  <a class="result__a" href="https://example.com/acme-profile">Acme Corp Profile</a>
  <div class="result__snippet">Company profile and financials.</div>
</div>
<div class="result">
  <a class="result__a" href="https://example.com/acme-news">Acme News</a>
</div>
</body></html>`

func TestSearchParsesResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Acme Corp company overview", r.URL.Query().Get("q"))
		io.WriteString(w, searchPage)
	}))
	defer srv.Close()

	s := NewSearcher(zap.NewNop(), WithSearchBaseURL(srv.URL+"/"))

	results, err := s.Search(context.Background(), "Acme Corp company overview", 5)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "Acme Corp - Official Site", results[0].Title)
	assert.Equal(t, "https://acme.test/", results[0].URL, "redirect link unwrapped")
	assert.Equal(t, "Acme Corp is the leading anvil manufacturer.", results[0].Snippet)

	assert.Equal(t, "https://example.com/acme-profile", results[1].URL)
	assert.Equal(t, "Company profile and financials.", results[1].Snippet)
	assert.Empty(t, results[2].Snippet)
}

func TestSearchRespectsMaxResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, searchPage)
	}))
	defer srv.Close()

	s := NewSearcher(zap.NewNop(), WithSearchBaseURL(srv.URL+"/"))

	results, err := s.Search(context.Background(), "acme", 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSearchServerFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "blocked", http.StatusForbidden)
	}))
	defer srv.Close()

	s := NewSearcher(zap.NewNop(), WithSearchBaseURL(srv.URL+"/"))

	_, err := s.Search(context.Background(), "acme", 5)
	assert.Error(t, err)
}

func TestCleanResultURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://example.com/page", "https://example.com/page"},
		{"//duckduckgo.com/l/?uddg=" + url.QueryEscape("https://acme.test/about"), "https://acme.test/about"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cleanResultURL(tt.in))
	}
}
