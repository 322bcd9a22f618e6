package webtool

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"github.com/praxian-ai/scout/internal/circuitbreaker"
)

const defaultSearchBaseURL = "https://html.duckduckgo.com/html/"

// Searcher runs web searches against the DuckDuckGo HTML endpoint.
type Searcher struct {
	http    *circuitbreaker.HTTPClient
	baseURL string
	limiter *rate.Limiter
	log     *zap.Logger
}

// SearcherOption customizes a Searcher.
type SearcherOption func(*Searcher)

// WithSearchBaseURL overrides the search endpoint.
func WithSearchBaseURL(base string) SearcherOption {
	return func(s *Searcher) { s.baseURL = base }
}

// NewSearcher creates a rate-limited searcher.
func NewSearcher(logger *zap.Logger, opts ...SearcherOption) *Searcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Searcher{
		http: circuitbreaker.NewHTTPClient("web-search",
			&http.Client{Timeout: 15 * time.Second},
			circuitbreaker.GetHTTPConfig(),
			logger,
		),
		baseURL: defaultSearchBaseURL,
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
		log:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search returns up to maxResults hits for the query.
func (s *Searcher) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	if maxResults <= 0 {
		maxResults = 5
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s?q=%s", s.baseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search status %d", resp.StatusCode)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse search results: %w", err)
	}

	results := parseSearchResults(doc, maxResults)
	s.log.Debug("Web search completed",
		zap.String("query", query),
		zap.Int("results", len(results)),
	)
	return results, nil
}

// parseSearchResults walks the result list markup: anchors with class
// result__a carry title and link, result__snippet carries the snippet.
func parseSearchResults(doc *html.Node, maxResults int) []SearchResult {
	var results []SearchResult
	var current *SearchResult

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if len(results) >= maxResults && current == nil {
			return
		}
		if n.Type == html.ElementNode {
			switch {
			case n.Data == "a" && hasClass(n, "result__a"):
				if current != nil {
					results = append(results, *current)
				}
				if len(results) >= maxResults {
					current = nil
					return
				}
				current = &SearchResult{
					Title: nodeText(n),
					URL:   cleanResultURL(attrValue(n, "href")),
				}
			case (n.Data == "a" || n.Data == "div") && hasClass(n, "result__snippet"):
				if current != nil {
					current.Snippet = nodeText(n)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	if current != nil && len(results) < maxResults {
		results = append(results, *current)
	}
	return results
}

// cleanResultURL unwraps the redirect links the HTML endpoint emits.
func cleanResultURL(href string) string {
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if strings.Contains(u.Host, "duckduckgo.com") && strings.HasPrefix(u.Path, "/l/") {
		if target := u.Query().Get("uddg"); target != "" {
			if decoded, err := url.QueryUnescape(target); err == nil {
				return decoded
			}
			return target
		}
	}
	return href
}
