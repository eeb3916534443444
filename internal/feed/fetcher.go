// Package feed implements the feed fetcher (spec §4.4): build queries, poll
// the aggregator RSS feed, parse entries, dedupe by feed-ID, maintain
// CityStats sharding bookkeeping. Grounded on the original's
// v1/backend/app/services/ingestion.py (build_rss_url, DEFAULT_PARAMS,
// DEFAULT_QUERIES, parse_headline_and_publisher) for the exact request
// template and default seed queries, and on the teacher's
// RateLimitedFetcher per-domain ticker for rate limiting.
package feed

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/time/rate"

	"github.com/arquivodaviolencia/incident-pipeline/internal/resolve"
)

const aggregatorBaseURL = "https://news.google.com/rss"

// Query pairs a search string with the locality it targets, per spec §4.4's
// "(query, locality) pairs".
type Query struct {
	Search   string
	Locality string
}

// Config is the subset of spec §6.6 this component reads.
type Config struct {
	When                string // default recency window, e.g. "7d"
	RequestsPerMinute   float64
	MinIntervalSeconds  float64
	ShardingThreshold   int // default 100
	PublisherDomains    []string
}

func DefaultConfig() Config {
	return Config{
		When:               "7d",
		RequestsPerMinute:  20,
		MinIntervalSeconds: 2,
		ShardingThreshold:  100,
	}
}

// DefaultQueries mirrors the original's DEFAULT_QUERIES
// (backend/app/services/cities.py): Rio de Janeiro violent-death search
// terms in Portuguese.
func DefaultQueries() []Query {
	rio := "Rio de Janeiro"
	return []Query{
		{Search: "homicídio " + rio, Locality: rio},
		{Search: "assassinato " + rio, Locality: rio},
		{Search: "tiroteio " + rio, Locality: rio},
	}
}

// Entry is one parsed feed item, pre-persistence.
type Entry struct {
	FeedID        string
	AggregatorURL string
	ResolvedURL   string
	Headline      string
	PublisherName string
	PublisherURL  string
	PublishedAt   *time.Time
	SearchQuery   string
}

// Fetcher polls the aggregator feed per spec §4.4/§6.1.
type Fetcher struct {
	cfg      Config
	parser   *gofeed.Parser
	resolver *resolve.Resolver
	limiter  *rate.Limiter
	lastReq  time.Time
}

func New(cfg Config, resolver *resolve.Resolver) *Fetcher {
	return &Fetcher{
		cfg:      cfg,
		parser:   gofeed.NewParser(),
		resolver: resolver,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerMinute/60.0), 1),
	}
}

// buildRSSURL matches spec §6.1's request template exactly:
// <base>/search?q=<query>+when:<window>&hl=pt-BR&gl=BR&ceid=BR:pt-419
func buildRSSURL(query, when string) string {
	fullQuery := query
	if when != "" {
		fullQuery = fmt.Sprintf("%s when:%s", query, when)
	}
	v := url.Values{}
	v.Set("q", fullQuery)
	v.Set("hl", "pt-BR")
	v.Set("gl", "BR")
	v.Set("ceid", "BR:pt-419")
	return fmt.Sprintf("%s/search?%s", aggregatorBaseURL, v.Encode())
}

// parseHeadlineAndPublisher splits an RSS title "Headline - Publisher" at
// the last " - ", per spec §4.4 step 1.
func parseHeadlineAndPublisher(title string) (headline, publisher string) {
	if idx := strings.LastIndex(title, " - "); idx != -1 {
		return strings.TrimSpace(title[:idx]), strings.TrimSpace(title[idx+3:])
	}
	return strings.TrimSpace(title), ""
}

// Poll issues one paged feed request for q and returns its parsed,
// URL-resolved entries. Duplicate-feed-ID filtering against existing
// storage is the caller's responsibility (the idempotence boundary named in
// spec §4.4 step 3 lives at the Source-insert layer, not here).
func (f *Fetcher) Poll(ctx context.Context, q Query) ([]Entry, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("feed: rate limiter: %w", err)
	}
	f.respectMinInterval()

	rssURL := buildRSSURL(q.Search, f.cfg.When)
	feedData, err := f.parser.ParseURLWithContext(rssURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("feed: parse %s: %w", rssURL, err)
	}

	entries := make([]Entry, 0, len(feedData.Items))
	for _, item := range feedData.Items {
		headline, publisher := parseHeadlineAndPublisher(item.Title)

		var publishedAt *time.Time
		if item.PublishedParsed != nil {
			publishedAt = item.PublishedParsed
		}

		resolved := ""
		if f.resolver != nil && item.Link != "" {
			resolved = f.resolver.Resolve(ctx, item.Link)
		}

		feedID := item.GUID
		if feedID == "" {
			feedID = item.Link
		}

		entries = append(entries, Entry{
			FeedID:        feedID,
			AggregatorURL: item.Link,
			ResolvedURL:   resolved,
			Headline:      headline,
			PublisherName: publisher,
			PublishedAt:   publishedAt,
			SearchQuery:   q.Search,
		})
	}
	return entries, nil
}

func (f *Fetcher) respectMinInterval() {
	min := time.Duration(f.cfg.MinIntervalSeconds * float64(time.Second))
	if min <= 0 {
		return
	}
	elapsed := time.Since(f.lastReq)
	if elapsed < min {
		time.Sleep(min - elapsed)
	}
	f.lastReq = time.Now()
}

// ShardedQueries returns q re-issued per known publisher domain, per spec
// §4.4 step 4's "re-issues the query per known publisher domain (list
// maintained in config) and unions results" once CityStats.NeedsSharding is
// set for q's locality.
func ShardedQueries(q Query, publisherDomains []string) []Query {
	out := make([]Query, 0, len(publisherDomains))
	for _, domain := range publisherDomains {
		out = append(out, Query{
			Search:   fmt.Sprintf("%s site:%s", q.Search, domain),
			Locality: q.Locality,
		})
	}
	return out
}
