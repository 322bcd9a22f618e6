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
	"github.com/praxian-ai/scout/internal/metrics"
)

const (
	userAgent        = "Mozilla/5.0 (compatible; scout/1.0)"
	maxContentLength = 5000
	maxAboutPages    = 2
)

// aboutLinkHints mark links worth following beyond the home page.
var aboutLinkHints = []string{"about", "company", "who-we-are"}

// Scraper fetches site content for research, politely rate limited and
// cached by URL.
type Scraper struct {
	http       *circuitbreaker.HTTPClient
	cache      *PageCache
	limiter    *rate.Limiter
	maxContent int
	log        *zap.Logger
}

// ScraperOption customizes a Scraper.
type ScraperOption func(*Scraper)

// WithFetchInterval overrides the pacing between outbound fetches.
func WithFetchInterval(interval time.Duration) ScraperOption {
	return func(s *Scraper) {
		s.limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
}

// NewScraper creates a scraper over a page cache.
func NewScraper(cache *PageCache, logger *zap.Logger, opts ...ScraperOption) *Scraper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cache == nil {
		cache = NewPageCache(nil, 0)
	}
	s := &Scraper{
		http: circuitbreaker.NewHTTPClient("web-scraper",
			&http.Client{Timeout: 15 * time.Second},
			circuitbreaker.GetHTTPConfig(),
			logger,
		),
		cache:      cache,
		limiter:    rate.NewLimiter(rate.Every(time.Second), 1),
		maxContent: maxContentLength,
		log:        logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FetchPage returns the page at pageURL, serving from cache when fresh.
// The returned status distinguishes fresh fetches from cache hits.
func (s *Scraper) FetchPage(ctx context.Context, pageURL string) (*Page, FetchStatus, error) {
	if page, ok := s.cache.Get(ctx, pageURL); ok {
		metrics.PagesFetched.WithLabelValues(string(FetchCached)).Inc()
		return page, FetchCached, nil
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, FetchFailed, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		metrics.PagesFetched.WithLabelValues(string(FetchFailed)).Inc()
		return nil, FetchFailed, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.http.Do(req)
	if err != nil {
		metrics.PagesFetched.WithLabelValues(string(FetchFailed)).Inc()
		return nil, FetchFailed, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		metrics.PagesFetched.WithLabelValues(string(FetchFailed)).Inc()
		return nil, FetchFailed, fmt.Errorf("fetch %s: status %d", pageURL, resp.StatusCode)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		metrics.PagesFetched.WithLabelValues(string(FetchFailed)).Inc()
		return nil, FetchFailed, fmt.Errorf("parse %s: %w", pageURL, err)
	}

	page := &Page{
		URL:         pageURL,
		Title:       extractTitle(doc),
		Description: extractDescription(doc),
		Content:     extractText(doc, s.maxContent),
		Links:       aboutLinks(doc, pageURL),
		FetchedAt:   time.Now(),
	}
	s.cache.Set(ctx, page)
	metrics.PagesFetched.WithLabelValues(string(FetchSuccess)).Inc()
	return page, FetchSuccess, nil
}

// ScrapeSite fetches a site's home page plus up to two about-style
// pages linked from it. Individual page failures are logged and
// reported to the observer but do not fail the whole scrape.
func (s *Scraper) ScrapeSite(ctx context.Context, siteURL string, observe Observer) ([]*Page, error) {
	home, status, err := s.fetchObserved(ctx, siteURL, observe)
	if err != nil {
		return nil, err
	}
	pages := []*Page{home}

	for _, link := range home.Links {
		page, _, err := s.fetchObserved(ctx, link, observe)
		if err != nil {
			s.log.Warn("About page fetch failed",
				zap.String("url", link),
				zap.Error(err),
			)
			continue
		}
		pages = append(pages, page)
	}

	s.log.Info("Site scrape completed",
		zap.String("site", siteURL),
		zap.Int("pages", len(pages)),
		zap.String("home_status", string(status)),
	)
	return pages, nil
}

func (s *Scraper) fetchObserved(ctx context.Context, pageURL string, observe Observer) (*Page, FetchStatus, error) {
	page, status, err := s.FetchPage(ctx, pageURL)
	if observe != nil {
		evt := FetchEvent{URL: pageURL, Status: status, Domain: domainOf(pageURL)}
		if page != nil {
			evt.Title = page.Title
			evt.Description = page.Description
		}
		observe(evt)
	}
	return page, status, err
}

// aboutLinks returns up to maxAboutPages same-host links on the page
// that look like company pages.
func aboutLinks(doc *html.Node, pageURL string) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}

	seen := map[string]struct{}{pageURL: {}}
	var links []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if len(links) >= maxAboutPages {
			return
		}
		if n.Type == html.ElementNode && n.Data == "a" {
			href := attrValue(n, "href")
			if href != "" && looksLikeAboutLink(href) {
				if resolved := resolveLink(base, href); resolved != "" {
					if _, dup := seen[resolved]; !dup {
						seen[resolved] = struct{}{}
						links = append(links, resolved)
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return links
}

func looksLikeAboutLink(href string) bool {
	lower := strings.ToLower(href)
	for _, hint := range aboutLinkHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

// resolveLink makes href absolute and rejects cross-host links.
func resolveLink(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(ref)
	if resolved.Host != base.Host {
		return ""
	}
	resolved.Fragment = ""
	return resolved.String()
}

func domainOf(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	return u.Host
}
