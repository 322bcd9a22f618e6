package webtool

import "time"

// SearchResult is one hit from web search.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// FetchStatus describes how a page was obtained.
type FetchStatus string

const (
	FetchSuccess FetchStatus = "success"
	FetchCached  FetchStatus = "cached"
	FetchFailed  FetchStatus = "failed"
)

// Page is scraped content from a single URL. Links holds same-host
// about-style links discovered on the page, so cached pages keep their
// crawl frontier.
type Page struct {
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Content     string    `json:"content"`
	Links       []string  `json:"links,omitempty"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// FetchEvent reports the outcome of one page fetch to an observer.
type FetchEvent struct {
	URL         string
	Title       string
	Description string
	Domain      string
	Status      FetchStatus
}

// Observer receives fetch events as the scraper works. May be nil.
type Observer func(FetchEvent)
