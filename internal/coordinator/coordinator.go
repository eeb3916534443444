// Package coordinator implements the pipeline coordinator (spec §4.9):
// bounded per-stage worker pools driven by the atomic claim pattern, an
// imperative per-stage trigger, a composite "run everything" entrypoint,
// an hourly cron driver, and an optional disabled-by-default stale-claim
// janitor sweep. Grounded on the teacher's cursor-driven batch loops
// (internal/ingest/pipeline.go's IngestSource/IngestAll run-record
// bookkeeping) generalized into N independently-sized pools, and on
// robfig/cron/v3 -- new to this project, since the teacher has no
// built-in scheduler of its own.
package coordinator

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/arquivodaviolencia/incident-pipeline/internal/classify"
	"github.com/arquivodaviolencia/incident-pipeline/internal/dedup"
	"github.com/arquivodaviolencia/incident-pipeline/internal/download"
	"github.com/arquivodaviolencia/incident-pipeline/internal/extractstage"
	"github.com/arquivodaviolencia/incident-pipeline/internal/feed"
	"github.com/arquivodaviolencia/incident-pipeline/internal/models"
)

// Store is the subset of internal/db.Store the coordinator needs, isolated
// here so this package can be tested against a fake.
type Store interface {
	// ClaimSources atomically transitions up to limit Sources from
	// inputState to its *-ing claim state and returns the claimed rows.
	// This is the read-candidates -> conditional batch UPDATE -> read-back
	// atomic claim pattern named in spec §4.9/§5.
	ClaimSources(ctx context.Context, inputState models.SourceState, limit int) ([]models.Source, error)
	// UpdateSource persists a Source's mutated fields (state, payload,
	// error) after stage processing.
	UpdateSource(ctx context.Context, src models.Source) error
	// InsertSource idempotently inserts a newly-fetched feed entry,
	// returning (id, true) if inserted or (0, false) if feedID already
	// exists (spec §4.4 step 3's dedup-by-feed-ID boundary).
	InsertSource(ctx context.Context, src models.Source) (int64, bool, error)
	// InsertRawEvent persists a successful extraction.
	InsertRawEvent(ctx context.Context, event models.RawEvent) (int64, error)
	// CityStatsFor loads or lazily creates the CityStats row for locality.
	CityStatsFor(ctx context.Context, locality string) (*models.CityStats, error)
	// SaveCityStats persists CityStats bookkeeping.
	SaveCityStats(ctx context.Context, stats models.CityStats) error
	// ReleaseStaleClaims resets any Source stuck in a claim (*-ing) state
	// longer than staleAfter back to its pre-claim ready state, for the
	// optional janitor sweep.
	ReleaseStaleClaims(ctx context.Context, staleAfter time.Duration) (int, error)
}

// Config is the subset of spec §6.6 the coordinator reads.
type Config struct {
	ClassifierConcurrency int // default 10
	DownloaderConcurrency int // default 10
	ExtractorConcurrency  int // default 15
	EnrichmentConcurrency int // default 10

	CronSpec string // e.g. "17 * * * *" -- hourly at :17, avoiding the :00 stampede

	JanitorEnabled     bool
	ClaimStaleAfter    time.Duration
}

func DefaultConfig() Config {
	return Config{
		ClassifierConcurrency: 10,
		DownloaderConcurrency: 10,
		ExtractorConcurrency:  15,
		EnrichmentConcurrency: 10,
		CronSpec:              "17 * * * *",
		JanitorEnabled:        false,
		ClaimStaleAfter:       30 * time.Minute,
	}
}

// Coordinator wires every pipeline stage's capability together behind the
// claim-then-process loop.
type Coordinator struct {
	store Store
	cfg   Config

	fetcher    *feed.Fetcher
	feedCfg    feed.Config
	classifier *classify.Classifier
	downloader *download.Downloader
	extractor  *extractstage.Extractor
	dedupCore  *dedup.Core

	queries []feed.Query

	cron *cron.Cron
}

func New(store Store, cfg Config, fetcher *feed.Fetcher, feedCfg feed.Config, classifier *classify.Classifier, downloader *download.Downloader, extractor *extractstage.Extractor, dedupCore *dedup.Core, queries []feed.Query) *Coordinator {
	return &Coordinator{
		store:      store,
		cfg:        cfg,
		fetcher:    fetcher,
		feedCfg:    feedCfg,
		classifier: classifier,
		downloader: downloader,
		extractor:  extractor,
		dedupCore:  dedupCore,
		queries:    queries,
	}
}

// claimBatchMultiplier bounds how many Sources a single claim round pulls
// per stage: the stage's own concurrency times this factor, so one round
// keeps every worker busy without claiming an unbounded number of rows.
const claimBatchMultiplier = 3

// RunFeedFetch executes one poll round over every configured query,
// inserting newly-discovered Sources and updating CityStats bookkeeping
// (spec §4.4).
func (co *Coordinator) RunFeedFetch(ctx context.Context) error {
	for _, q := range co.queries {
		entries, err := co.pollQuery(ctx, q)
		if err != nil {
			log.Printf("[feed] poll %q: %v", q.Search, err)
			continue
		}

		inserted := 0
		for _, e := range entries {
			src := models.Source{
				FeedID:         e.FeedID,
				FeedURL:        e.AggregatorURL,
				Headline:       e.Headline,
				PublisherName:  e.PublisherName,
				PublishedAt:    e.PublishedAt,
				SearchQuery:    e.SearchQuery,
				State:          models.SourceReadyForClassification,
				FirstFetchedAt: time.Now(),
				LastUpdatedAt:  time.Now(),
			}
			if e.ResolvedURL != "" {
				resolved := e.ResolvedURL
				src.ResolvedURL = &resolved
			}
			_, ok, err := co.store.InsertSource(ctx, src)
			if err != nil {
				log.Printf("[feed] insert %q: %v", e.FeedID, err)
				continue
			}
			if ok {
				inserted++
			}
		}

		stats, err := co.store.CityStatsFor(ctx, q.Locality)
		if err != nil {
			log.Printf("[feed] citystats %q: %v", q.Locality, err)
			continue
		}
		feed.UpdateCityStats(stats, len(entries), co.feedCfg.ShardingThreshold)
		if err := co.store.SaveCityStats(ctx, *stats); err != nil {
			log.Printf("[feed] save citystats %q: %v", q.Locality, err)
		}
		log.Printf("[feed] %q: %d entries, %d new", q.Search, len(entries), inserted)
	}
	return nil
}

// pollQuery polls q once, or -- once CityStats for q.Locality has tripped
// NeedsSharding -- re-issues the query once per known publisher domain
// (feed.ShardedQueries) and unions the results by feed ID, per spec §4.4
// step 4's "subsequent polls shard by publisher domain" requirement.
func (co *Coordinator) pollQuery(ctx context.Context, q feed.Query) ([]feed.Entry, error) {
	stats, err := co.store.CityStatsFor(ctx, q.Locality)
	if err != nil {
		log.Printf("[feed] citystats lookup %q: %v", q.Locality, err)
		stats = nil
	}
	if stats == nil || !stats.NeedsSharding || len(co.feedCfg.PublisherDomains) == 0 {
		return co.fetcher.Poll(ctx, q)
	}

	seen := make(map[string]bool)
	var union []feed.Entry
	for _, shard := range feed.ShardedQueries(q, co.feedCfg.PublisherDomains) {
		entries, err := co.fetcher.Poll(ctx, shard)
		if err != nil {
			log.Printf("[feed] sharded poll %q: %v", shard.Search, err)
			continue
		}
		for _, e := range entries {
			if seen[e.FeedID] {
				continue
			}
			seen[e.FeedID] = true
			union = append(union, e)
		}
	}
	return union, nil
}

// RunClassifierStage claims and processes one batch of
// ready-for-classification Sources.
func (co *Coordinator) RunClassifierStage(ctx context.Context) error {
	return co.runStage(ctx, models.SourceReadyForClassification, co.cfg.ClassifierConcurrency, func(ctx context.Context, src *models.Source) error {
		result, err := co.classifier.Classify(ctx, src.Headline)
		if err != nil {
			src.State = models.SourceReadyForClassification // retry next round
			src.LastError = err.Error()
			return nil
		}
		src.State = classify.ApplyTransition(src, result)
		return nil
	})
}

// RunDownloaderStage claims and processes one batch of ready-for-download
// Sources.
func (co *Coordinator) RunDownloaderStage(ctx context.Context) error {
	return co.runStage(ctx, models.SourceReadyForDownload, co.cfg.DownloaderConcurrency, func(ctx context.Context, src *models.Source) error {
		_, state, err := co.downloader.Download(ctx, src)
		if err != nil {
			src.LastError = err.Error()
		}
		src.State = state
		return nil
	})
}

// RunExtractorStage claims and processes one batch of ready-for-extraction
// Sources, persisting a RawEvent on success.
func (co *Coordinator) RunExtractorStage(ctx context.Context) error {
	return co.runStage(ctx, models.SourceReadyForExtraction, co.cfg.ExtractorConcurrency, func(ctx context.Context, src *models.Source) error {
		event, err := co.extractor.Extract(ctx, src)
		if err != nil {
			src.State = models.SourceFailedInExtraction
			src.LastError = err.Error()
			return nil
		}
		if _, err := co.store.InsertRawEvent(ctx, *event); err != nil {
			return fmt.Errorf("persist raw event: %w", err)
		}
		src.State = models.SourceExtracted
		return nil
	})
}

// RunEnrichment runs the dedup/enrichment core (Phase 1a/1b/2 + post-pass).
func (co *Coordinator) RunEnrichment(ctx context.Context) error {
	return co.dedupCore.Run(ctx, co.cfg.EnrichmentConcurrency)
}

// runStage implements the atomic claim pattern generically: claim a batch
// from inputState, run fn over each claimed Source with bounded
// concurrency, then persist every mutated Source exactly once. A worker
// that returns an error aborts only that Source's processing (it is
// persisted with whatever src.State/LastError fn set); the errgroup error
// surfaces only for true infrastructure failures (DB write failure),
// matching the teacher's "continue with other sources" resilience idiom in
// IngestAll.
func (co *Coordinator) runStage(ctx context.Context, inputState models.SourceState, concurrency int, fn func(ctx context.Context, src *models.Source) error) error {
	limit := concurrency * claimBatchMultiplier
	claimed, err := co.store.ClaimSources(ctx, inputState, limit)
	if err != nil {
		return fmt.Errorf("coordinator: claim %s: %w", inputState, err)
	}
	if len(claimed) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i := range claimed {
		src := &claimed[i]
		g.Go(func() error {
			if err := fn(gctx, src); err != nil {
				log.Printf("[coordinator] stage %s source=%d: %v", inputState, src.ID, err)
			}
			src.LastUpdatedAt = time.Now()
			if uerr := co.store.UpdateSource(gctx, *src); uerr != nil {
				return fmt.Errorf("update source %d: %w", src.ID, uerr)
			}
			return nil
		})
	}
	return g.Wait()
}

// RunAll is the composite trigger (spec §4.9): feed fetch, then every
// stage in pipeline order, then enrichment. Each step's error is logged and
// does not abort the remaining steps, mirroring the teacher's IngestAll
// per-source resilience.
func (co *Coordinator) RunAll(ctx context.Context) {
	if err := co.RunFeedFetch(ctx); err != nil {
		log.Printf("[coordinator] feed fetch: %v", err)
	}
	if err := co.RunClassifierStage(ctx); err != nil {
		log.Printf("[coordinator] classifier stage: %v", err)
	}
	if err := co.RunDownloaderStage(ctx); err != nil {
		log.Printf("[coordinator] downloader stage: %v", err)
	}
	if err := co.RunExtractorStage(ctx); err != nil {
		log.Printf("[coordinator] extractor stage: %v", err)
	}
	if err := co.RunEnrichment(ctx); err != nil {
		log.Printf("[coordinator] enrichment: %v", err)
	}
}

// StartCron registers RunAll on co.cfg.CronSpec and, if enabled, the
// janitor sweep on a fixed 5-minute interval, then starts the scheduler.
// The caller is responsible for calling Stop() on shutdown.
func (co *Coordinator) StartCron(ctx context.Context) error {
	co.cron = cron.New()
	if _, err := co.cron.AddFunc(co.cfg.CronSpec, func() { co.RunAll(ctx) }); err != nil {
		return fmt.Errorf("coordinator: schedule run-all: %w", err)
	}
	if co.cfg.JanitorEnabled {
		if _, err := co.cron.AddFunc("@every 5m", func() { co.runJanitor(ctx) }); err != nil {
			return fmt.Errorf("coordinator: schedule janitor: %w", err)
		}
	}
	co.cron.Start()
	return nil
}

func (co *Coordinator) Stop() {
	if co.cron != nil {
		co.cron.Stop()
	}
}

// runJanitor releases Sources stuck in a claim state past ClaimStaleAfter,
// per spec §9's Open Question 3 -- disabled by default, opt-in via config.
func (co *Coordinator) runJanitor(ctx context.Context) {
	n, err := co.store.ReleaseStaleClaims(ctx, co.cfg.ClaimStaleAfter)
	if err != nil {
		log.Printf("[janitor] release stale claims: %v", err)
		return
	}
	if n > 0 {
		log.Printf("[janitor] released %d stale claims", n)
	}
}
