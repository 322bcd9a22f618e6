package gather

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/praxian-ai/scout/internal/backend"
	"github.com/praxian-ai/scout/internal/knowledge"
	"github.com/praxian-ai/scout/internal/metrics"
	"github.com/praxian-ai/scout/internal/progress"
	"github.com/praxian-ai/scout/internal/webtool"
)

// KnowledgeBase is the slice of the knowledge store the gatherer needs.
type KnowledgeBase interface {
	HasSufficientData(ctx context.Context, company string) (knowledge.SufficiencyReport, error)
	AddDocuments(ctx context.Context, docs []knowledge.Document) error
	Profile(ctx context.Context, company string) (*knowledge.CompanyProfile, error)
}

// Searcher runs web searches.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]webtool.SearchResult, error)
}

// SiteScraper fetches site pages.
type SiteScraper interface {
	ScrapeSite(ctx context.Context, siteURL string, observe webtool.Observer) ([]*webtool.Page, error)
}

// Stats summarizes one gathering pass.
type Stats struct {
	Success           bool
	TotalDocuments    int
	UsedExisting      bool
	QualityScore      float64
	SearchResultCount int
	PageCount         int
}

// searchBattery is the set of query templates run per company. Each
// query tags its documents with a gathering category so company
// profiles can report what ground has been covered.
var searchBattery = []struct {
	category string
	template string
}{
	{"overview", "%s company overview business model products services"},
	{"goals", "%s strategic goals expansion plans growth initiatives"},
	{"leadership", "%s leadership team executives stakeholders"},
	{"financials", "%s annual report financial results workforce"},
	{"culture", "%s company culture employee experience hiring"},
}

const (
	resultsPerQuery    = 5
	searchDocQuality   = 0.5
	scrapedPageQuality = 0.75
)

// Gatherer decides whether stored knowledge suffices for a company and
// fetches fresh material when it does not.
type Gatherer struct {
	kb       KnowledgeBase
	searcher Searcher
	scraper  SiteScraper
	progress *progress.Manager
	log      *zap.Logger
}

// New creates a Gatherer.
func New(kb KnowledgeBase, searcher Searcher, scraper SiteScraper, prog *progress.Manager, logger *zap.Logger) *Gatherer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prog == nil {
		prog = progress.Get()
	}
	return &Gatherer{kb: kb, searcher: searcher, scraper: scraper, progress: prog, log: logger}
}

// EnsureData makes sure the knowledge base holds enough material about
// the company, gathering from the web when the sufficiency gate fails.
// Finding nothing is not an error: the stats come back with Success
// false and downstream tasks work with whatever the store holds. The
// only fatal case is credential exhaustion with an empty store, since
// no task could produce anything from that.
func (g *Gatherer) EnsureData(ctx context.Context, runID, company string) (*Stats, error) {
	report, err := g.kb.HasSufficientData(ctx, company)
	if err != nil {
		if errors.Is(err, backend.ErrCredentialsExhausted) && report.DocumentCount == 0 {
			return nil, fmt.Errorf("validate stored knowledge for %s: %w", company, err)
		}
		g.log.Warn("Sufficiency check failed, gathering fresh data",
			zap.String("company", company),
			zap.Error(err),
		)
		report = knowledge.SufficiencyReport{DocumentCount: report.DocumentCount}
	}

	if report.Sufficient {
		metrics.GatherDecisions.WithLabelValues("reused").Inc()
		g.publish(runID, "gathering", fmt.Sprintf("Using %d existing documents about %s", report.DocumentCount, company))
		return &Stats{
			Success:        true,
			TotalDocuments: report.DocumentCount,
			UsedExisting:   true,
			QualityScore:   report.AvgQuality,
		}, nil
	}

	metrics.GatherDecisions.WithLabelValues("fetched").Inc()
	return g.gatherFresh(ctx, runID, company, report.DocumentCount)
}

// PeerFailure records a comparison company whose data could not be
// gathered.
type PeerFailure struct {
	Company string
	Reason  string
}

// EnsurePeerData gathers data for comparison companies. Peer failures
// never abort the run; they are returned so the caller can surface
// them in the plan.
func (g *Gatherer) EnsurePeerData(ctx context.Context, runID string, peers []string) []PeerFailure {
	var failures []PeerFailure
	for _, peer := range peers {
		stats, err := g.EnsureData(ctx, runID, peer)
		switch {
		case err != nil:
			g.log.Warn("Comparison data gathering failed",
				zap.String("company", peer),
				zap.Error(err),
			)
			failures = append(failures, PeerFailure{Company: peer, Reason: err.Error()})
		case stats != nil && !stats.Success:
			failures = append(failures, PeerFailure{
				Company: peer,
				Reason:  fmt.Sprintf("no usable data found for %s", peer),
			})
		}
	}
	return failures
}

func (g *Gatherer) gatherFresh(ctx context.Context, runID, company string, existing int) (*Stats, error) {
	stats := &Stats{TotalDocuments: existing}

	g.publish(runID, "gathering", fmt.Sprintf("Searching the web for %s", company))

	var docs []knowledge.Document
	var officialSite string
	for _, battery := range searchBattery {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		query := fmt.Sprintf(battery.template, company)
		results, err := g.searcher.Search(ctx, query, resultsPerQuery)
		if err != nil {
			g.log.Warn("Search query failed",
				zap.String("query", query),
				zap.Error(err),
			)
			continue
		}
		stats.SearchResultCount += len(results)
		for _, r := range results {
			if officialSite == "" && r.URL != "" {
				officialSite = r.URL
			}
			if r.Snippet == "" {
				continue
			}
			docs = append(docs, knowledge.Document{
				Company:  company,
				Title:    r.Title,
				URL:      r.URL,
				Content:  r.Snippet,
				Source:   "search",
				Category: battery.category,
				Quality:  searchDocQuality,
			})
		}
	}

	if officialSite != "" {
		g.publish(runID, "gathering", fmt.Sprintf("Reading %s", officialSite))
		pages, err := g.scraper.ScrapeSite(ctx, officialSite, func(evt webtool.FetchEvent) {
			g.publish(runID, "gathering", fmt.Sprintf("Fetched %s (%s)", evt.URL, evt.Status))
		})
		if err != nil {
			g.log.Warn("Site scrape failed",
				zap.String("site", officialSite),
				zap.Error(err),
			)
		}
		for _, p := range pages {
			if p.Content == "" {
				continue
			}
			stats.PageCount++
			docs = append(docs, knowledge.Document{
				Company:  company,
				Title:    p.Title,
				URL:      p.URL,
				Content:  p.Content,
				Source:   "scrape",
				Category: "overview",
				Quality:  scrapedPageQuality,
			})
		}
	}

	if len(docs) == 0 {
		g.log.Warn("No usable data found, proceeding with stored knowledge",
			zap.String("company", company),
			zap.Int("existing", existing),
		)
		g.publish(runID, "gathering", fmt.Sprintf("No new material found for %s", company))
		return stats, nil
	}

	if err := g.kb.AddDocuments(ctx, docs); err != nil {
		return stats, fmt.Errorf("store gathered documents: %w", err)
	}

	stats.Success = true
	stats.TotalDocuments += len(docs)
	stats.QualityScore = avgQuality(docs)
	g.refreshProfile(ctx, company, stats)
	g.publish(runID, "gathering", fmt.Sprintf("Stored %d new documents about %s", len(docs), company))
	return stats, nil
}

// refreshProfile re-reads the company profile after a storage pass and
// folds the authoritative counts into the stats. Best effort.
func (g *Gatherer) refreshProfile(ctx context.Context, company string, stats *Stats) {
	profile, err := g.kb.Profile(ctx, company)
	if err != nil {
		g.log.Warn("Company profile refresh failed",
			zap.String("company", company),
			zap.Error(err),
		)
		return
	}
	if profile.DocumentCount > 0 {
		stats.TotalDocuments = profile.DocumentCount
	}
	g.log.Info("Company profile updated",
		zap.String("company", CompanySlug(company)),
		zap.Int("documents", profile.DocumentCount),
		zap.Strings("categories", profile.Categories),
		zap.Float64("quality", profile.QualityScore),
	)
}

func (g *Gatherer) publish(runID, stage, message string) {
	if runID == "" {
		return
	}
	g.progress.Publish(runID, progress.Event{Stage: stage, Message: message})
}

func avgQuality(docs []knowledge.Document) float64 {
	if len(docs) == 0 {
		return 0
	}
	var total float64
	for _, d := range docs {
		total += d.Quality
	}
	return total / float64(len(docs))
}

// CompanySlug normalizes a company name for use in cache keys and logs.
func CompanySlug(company string) string {
	slug := strings.ToLower(strings.TrimSpace(company))
	return strings.Join(strings.Fields(slug), "-")
}
