// Package dedup implements the deduplication & enrichment core (spec §4.8),
// the hardest and largest component: Phase 1a match, Phase 1b grouped
// cluster-creation, Phase 2 enrichment, and a bounded post-pass merge
// sweep. Grounded on spec.md §4.8/§8/§9 directly, on the teacher's
// pgvector.NewVector upsert idiom (internal/ingest/pipeline.go,
// SaveOpportunity) for the enrichment authoritative-overwrite pattern, and
// on the teacher's ComputeStatusDecision (internal/ingest/status_engine.go)
// as the template for a cascading decision function returning
// {decision, reason, confidence}.
package dedup

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/cloudflare/ahocorasick"
	"golang.org/x/sync/errgroup"

	"github.com/arquivodaviolencia/incident-pipeline/internal/geocoder"
	"github.com/arquivodaviolencia/incident-pipeline/internal/llm"
	"github.com/arquivodaviolencia/incident-pipeline/internal/models"
)

// Confidence boundary convention (resolves spec §9 Open Question, recorded
// in DESIGN.md): Phase 1a links inclusively at >=0.8 because linking is
// correctable later; the post-pass sweep deletes a UniqueEvent and so
// requires a strictly higher bar, >0.8.
const (
	Phase1aMatchThreshold  = 0.8
	PostPassMatchThreshold = 0.8
)

// Store is the persistence capability this package needs. The concrete
// implementation lives in internal/db.
type Store interface {
	// PendingRawEvents returns RawEvents with dedup_state=pending and a
	// non-null event date (spec §4.8's operand set).
	PendingRawEvents(ctx context.Context) ([]models.RawEvent, error)
	// UniqueEventIDSnapshot returns all current UniqueEvent IDs, taken once
	// at phase start so Phase 1a never matches against a UniqueEvent
	// created concurrently by Phase 1b.
	UniqueEventIDSnapshot(ctx context.Context) ([]int64, error)
	// CandidatesWithinWindow returns UniqueEvents from snapshotIDs whose
	// event date is within +/-toleranceDays of date.
	CandidatesWithinWindow(ctx context.Context, date time.Time, toleranceDays int, snapshotIDs []int64) ([]models.UniqueEvent, error)
	// LinkRawEvent sets a RawEvent's unique_event_link and dedup_state, and
	// marks the target UniqueEvent needs-enrichment.
	LinkRawEvent(ctx context.Context, rawEventID, uniqueEventID int64) error
	// CreateUniqueEventFromCluster creates one UniqueEvent seeded from
	// seed, links every member's RawEvent to it, and marks it
	// needs-enrichment. Returns the new UniqueEvent's ID.
	CreateUniqueEventFromCluster(ctx context.Context, seed models.RawEvent, members []models.RawEvent) (int64, error)
	// NeedsEnrichmentUniqueEvents returns all UniqueEvents currently flagged
	// needs-enrichment.
	NeedsEnrichmentUniqueEvents(ctx context.Context) ([]models.UniqueEvent, error)
	// LinkedRawEvents returns every RawEvent linked to uniqueEventID.
	LinkedRawEvents(ctx context.Context, uniqueEventID int64) ([]models.RawEvent, error)
	// WriteEnrichedUniqueEvent writes back the synthesized field set
	// authoritatively (overwrites prior values) and clears needs-enrichment.
	WriteEnrichedUniqueEvent(ctx context.Context, event models.UniqueEvent) error
	// UniqueEventsInWindow returns UniqueEvents with event date within the
	// post-pass window, grouped implicitly by day (caller buckets).
	UniqueEventsInWindow(ctx context.Context, windowDays int) ([]models.UniqueEvent, error)
	// MergeUniqueEvents re-parents every RawEvent owned by loserID to
	// winnerID and deletes the loser. Confirmed UniqueEvents and those with
	// a linked gold-standard RawEvent (supplemented feature, spec §3/§4.8)
	// are never passed as loserID by the caller.
	MergeUniqueEvents(ctx context.Context, winnerID, loserID int64) error
}

// MatchResult mirrors spec §6.4c.
type MatchResult struct {
	Match        bool    `json:"match"`
	IncidentID   *int64  `json:"incident_id,omitempty"`
	Confidence   float64 `json:"confidence"`
	Reasoning    string  `json:"reasoning"`
}

func (r *MatchResult) Validate() error {
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("dedup: confidence out of [0,1]: %f", r.Confidence)
	}
	return nil
}

// ClusterResult mirrors spec §6.4d: 1-indexed id partitions.
type ClusterResult struct {
	Clusters [][]int `json:"clusters"`
}

func (r *ClusterResult) Validate() error { return nil }

// EnrichmentResult mirrors spec §6.4e's canonical UniqueEvent field set.
type EnrichmentResult struct {
	Title                    string  `json:"title"`
	Date                     *string `json:"date"`
	VictimsSummary           string  `json:"victims_summary"`
	DeathCount               int     `json:"death_count"`
	Country                  string  `json:"country"`
	State                    string  `json:"state"`
	City                     string  `json:"city"`
	Neighborhood             string  `json:"neighborhood"`
	Street                   string  `json:"street"`
	LocationExtraInfo        string  `json:"location_extra_info"`
	Description              string  `json:"description"`
}

func (r *EnrichmentResult) Validate() error { return nil }

// Core runs the three-phase deduplication algorithm plus the post-pass
// sweep.
type Core struct {
	store    Store
	llm      *llm.Client
	geo      geocoder.Geocoder
	embed    llm.Embedder
	model    string
	dateTol  int // dedup.date_tolerance_days, default 1
	postPassWindowDays int // default 7
}

type Config struct {
	Model              string
	DateToleranceDays  int
	PostPassWindowDays int
}

// New builds the dedup core. geo may be nil -- geocoding is enabled purely
// by the caller having constructed a non-nil Geocoder (spec §6.6: "default
// false unless an API key is present"), not by a separate config flag.
// embed may also be nil -- the pgvector narrowing signal (spec §4.8) is
// enabled purely by the configured Backend implementing llm.Embedder; the
// Anthropic backend does not, so callers type-assert it themselves.
func New(store Store, llmClient *llm.Client, geo geocoder.Geocoder, embed llm.Embedder, cfg Config) *Core {
	if cfg.DateToleranceDays == 0 {
		cfg.DateToleranceDays = 1
	}
	if cfg.PostPassWindowDays == 0 {
		cfg.PostPassWindowDays = 7
	}
	return &Core{
		store:              store,
		llm:                llmClient,
		geo:                geo,
		embed:              embed,
		model:              cfg.Model,
		dateTol:            cfg.DateToleranceDays,
		postPassWindowDays: cfg.PostPassWindowDays,
	}
}

// Run executes Phase 1a, then 1b, then 2, strictly sequenced, then the
// post-pass sweep, then Phase 2 once more so that each merge winner (which
// the sweep flags needs-enrichment) is re-enriched in the same run. Phase 2
// and the sweep run even when no RawEvent is pending. Phase ordering is required (spec §4.8/§5) to prevent the
// Phase 1b race of two concurrent workers each creating a UniqueEvent for
// the same incident.
func (c *Core) Run(ctx context.Context, concurrency int) error {
	pending, err := c.store.PendingRawEvents(ctx)
	if err != nil {
		return fmt.Errorf("dedup: load pending: %w", err)
	}
	snapshot, err := c.store.UniqueEventIDSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("dedup: snapshot: %w", err)
	}

	unmatched, err := c.phase1a(ctx, pending, snapshot, concurrency)
	if err != nil {
		return fmt.Errorf("dedup: phase 1a: %w", err)
	}

	if err := c.phase1b(ctx, unmatched, concurrency); err != nil {
		return fmt.Errorf("dedup: phase 1b: %w", err)
	}

	if err := c.phase2(ctx, concurrency); err != nil {
		return fmt.Errorf("dedup: phase 2: %w", err)
	}

	if err := c.postPassSweep(ctx); err != nil {
		return err
	}

	if err := c.phase2(ctx, concurrency); err != nil {
		return fmt.Errorf("dedup: phase 2 after sweep: %w", err)
	}
	return nil
}

// phase1a blocks each pending RawEvent against UniqueEvents in the snapshot
// set whose event date is within dateTol days, asks the LLM to match, and
// links on confidence >= Phase1aMatchThreshold. Returns the RawEvents that
// found no match, for Phase 1b.
func (c *Core) phase1a(ctx context.Context, pending []models.RawEvent, snapshot []int64, concurrency int) ([]models.RawEvent, error) {
	unmatchedCh := make(chan models.RawEvent, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, re := range pending {
		re := re
		g.Go(func() error {
			if re.EventDate == nil {
				// Not deduplicatable; remains pending (spec §4.8 operand set).
				return nil
			}
			candidates, err := c.store.CandidatesWithinWindow(gctx, *re.EventDate, c.dateTol, snapshot)
			if err != nil {
				return fmt.Errorf("candidates: %w", err)
			}
			if len(candidates) == 0 {
				unmatchedCh <- re
				return nil
			}

			candidates = narrowByLocationOverlap(re, candidates)
			candidates = c.narrowByEmbeddingSimilarity(gctx, re, candidates)

			match, err := c.callMatch(gctx, re, candidates)
			if err != nil {
				// A transient LLM failure leaves the RawEvent pending for
				// the next pass rather than escalating; it's simply not
				// queued for Phase 1b this round.
				return nil
			}
			if match.Match && match.Confidence >= Phase1aMatchThreshold && match.IncidentID != nil {
				if err := c.store.LinkRawEvent(gctx, re.ID, *match.IncidentID); err != nil {
					return fmt.Errorf("link: %w", err)
				}
				return nil
			}
			unmatchedCh <- re
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	close(unmatchedCh)

	unmatched := make([]models.RawEvent, 0, len(pending))
	for re := range unmatchedCh {
		unmatched = append(unmatched, re)
	}
	return unmatched, nil
}

// narrowByLocationOverlap is a cheap rule-based pre-filter ahead of the LLM
// match call: it builds an Aho-Corasick matcher over each candidate's known
// location tokens (neighborhood, city) and keeps only candidates whose token
// appears in the RawEvent's own narrative text. If the filter would discard
// every candidate -- e.g. the narrative mentions no location token at all --
// it is skipped rather than trusted, since absence of a textual mention is
// not evidence of non-match.
func narrowByLocationOverlap(re models.RawEvent, candidates []models.UniqueEvent) []models.UniqueEvent {
	haystack := normalize(re.ChronologicalDescription + " " + re.Title + " " + re.City + " " + re.Neighborhood)

	tokensByIdx := make([][]string, len(candidates))
	var allTokens []string
	for i, cand := range candidates {
		var toks []string
		if cand.Neighborhood != "" {
			toks = append(toks, normalize(cand.Neighborhood))
		}
		if cand.City != "" {
			toks = append(toks, normalize(cand.City))
		}
		tokensByIdx[i] = toks
		allTokens = append(allTokens, toks...)
	}
	if len(allTokens) == 0 {
		return candidates
	}

	matcher := ahocorasick.NewStringMatcher(allTokens)
	hits := matcher.Match([]byte(haystack))
	if len(hits) == 0 {
		return candidates
	}
	hitSet := make(map[string]bool, len(hits))
	for _, h := range hits {
		hitSet[allTokens[h]] = true
	}

	narrowed := make([]models.UniqueEvent, 0, len(candidates))
	for i, cand := range candidates {
		for _, tok := range tokensByIdx[i] {
			if hitSet[tok] {
				narrowed = append(narrowed, cand)
				break
			}
		}
	}
	if len(narrowed) == 0 {
		return candidates
	}
	return narrowed
}

// EmbeddingSimilarityThreshold is the cosine-similarity cutoff below which a
// candidate is considered unrelated by the embedding signal (spec §4.8): a
// title+description embedding narrowing pass, as cheap as the location
// pre-filter above, run ahead of the LLM match call.
const EmbeddingSimilarityThreshold = 0.3

// narrowByEmbeddingSimilarity is a no-op when no Embedder is configured
// (e.g. the Anthropic backend, which has no embeddings endpoint) or when a
// candidate has no stored embedding yet (it hasn't been through Phase 2
// enrichment). Like narrowByLocationOverlap, it only narrows -- it never
// empties the candidate set outright, since a transient embed failure
// should not block a match that the LLM call could still make.
func (c *Core) narrowByEmbeddingSimilarity(ctx context.Context, re models.RawEvent, candidates []models.UniqueEvent) []models.UniqueEvent {
	if c.embed == nil {
		return candidates
	}
	withEmbeddings := 0
	for _, cand := range candidates {
		if len(cand.Embedding) > 0 {
			withEmbeddings++
		}
	}
	if withEmbeddings == 0 {
		return candidates
	}

	vec, err := c.embed.Embed(ctx, re.Title+"\n"+re.ChronologicalDescription)
	if err != nil || len(vec) == 0 {
		return candidates
	}

	narrowed := make([]models.UniqueEvent, 0, len(candidates))
	for _, cand := range candidates {
		if len(cand.Embedding) == 0 {
			narrowed = append(narrowed, cand) // not yet enriched; don't discard on missing signal
			continue
		}
		if cosineSimilarity(vec, cand.Embedding) >= EmbeddingSimilarityThreshold {
			narrowed = append(narrowed, cand)
		}
	}
	if len(narrowed) == 0 {
		return candidates
	}
	return narrowed
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func (c *Core) callMatch(ctx context.Context, re models.RawEvent, candidates []models.UniqueEvent) (MatchResult, error) {
	system := `Você determina se um relato de incidente (RawEvent) se refere ao mesmo evento real que algum dos candidatos. Mesma vítima + mesma data + mesmo local => mesmo evento, mesmo com ênfase descritiva diferente. Variações de grafia de nomes contam como correspondência. +-1 dia conta como mesma data. Bairro/cidade sobrepostos contam como mesmo local.`
	user := buildMatchPrompt(re, candidates)
	var result MatchResult
	if err := c.llm.Complete(ctx, c.model, system, user, &result); err != nil {
		return MatchResult{}, err
	}
	return result, nil
}

func buildMatchPrompt(re models.RawEvent, candidates []models.UniqueEvent) string {
	s := fmt.Sprintf("RELATO:\nTítulo: %s\nData: %v\nLocal: %s/%s\nDescrição: %s\n\nCANDIDATOS:\n",
		re.Title, re.EventDate, re.City, re.Neighborhood, re.ChronologicalDescription)
	for _, cand := range candidates {
		s += fmt.Sprintf("- id=%d título=%q data=%v local=%s/%s\n", cand.ID, cand.Title, cand.EventDate, cand.City, cand.Neighborhood)
	}
	s += `\nResponda APENAS: {"match": bool, "incident_id": int|null, "confidence": float 0..1, "reasoning": string}`
	return s
}

// groupKey is (event-date-day, normalized-location-key) per spec §4.8 Phase
// 1b.
type groupKey struct {
	day      string
	location string
}

func locationKey(re models.RawEvent) string {
	if re.Neighborhood != "" {
		return normalize(re.Neighborhood)
	}
	return normalize(re.City)
}

func normalize(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r >= 'A' && r <= 'Z' {
			r = r + ('a' - 'A')
		}
		out = append(out, r)
	}
	return string(out)
}

// phase1b groups unmatched RawEvents by (date-day, location-key); groups run
// in parallel, but processing *within* a group is sequential -- this is the
// only safe way to prevent two concurrent "unmatched" workers from each
// creating a UniqueEvent for the same incident (spec §4.8/§9).
func (c *Core) phase1b(ctx context.Context, unmatched []models.RawEvent, concurrency int) error {
	groups := make(map[groupKey][]models.RawEvent)
	for _, re := range unmatched {
		if re.EventDate == nil {
			continue
		}
		key := groupKey{day: re.EventDate.Format("2006-01-02"), location: locationKey(re)}
		groups[key] = append(groups[key], re)
	}

	keys := make([]groupKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].day != keys[j].day {
			return keys[i].day < keys[j].day
		}
		return keys[i].location < keys[j].location
	})

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, k := range keys {
		members := groups[k]
		g.Go(func() error {
			return c.processGroup(gctx, members)
		})
	}
	return g.Wait()
}

// processGroup clusters one (day, location) group sequentially: members
// within a group are never processed concurrently with each other.
func (c *Core) processGroup(ctx context.Context, members []models.RawEvent) error {
	if len(members) == 0 {
		return nil
	}
	if len(members) == 1 {
		_, err := c.store.CreateUniqueEventFromCluster(ctx, members[0], members)
		return err
	}

	clusters, err := c.callCluster(ctx, members)
	if err != nil {
		// Fallback: one UniqueEvent per RawEvent -- a safe overestimate;
		// the post-pass sweep may merge later (spec §4.8).
		for _, m := range members {
			if _, cerr := c.store.CreateUniqueEventFromCluster(ctx, m, []models.RawEvent{m}); cerr != nil {
				return cerr
			}
		}
		return nil
	}

	for _, idxs := range clusters.Clusters {
		clusterMembers := make([]models.RawEvent, 0, len(idxs))
		for _, idx1 := range idxs {
			idx := idx1 - 1 // 1-indexed per spec §6.4d
			if idx < 0 || idx >= len(members) {
				continue
			}
			clusterMembers = append(clusterMembers, members[idx])
		}
		if len(clusterMembers) == 0 {
			continue
		}
		if _, err := c.store.CreateUniqueEventFromCluster(ctx, clusterMembers[0], clusterMembers); err != nil {
			return err
		}
	}
	return nil
}

func (c *Core) callCluster(ctx context.Context, members []models.RawEvent) (ClusterResult, error) {
	system := `Você agrupa relatos de incidentes em classes de equivalência: relatos que descrevem o mesmo evento real devem ficar no mesmo cluster.`
	user := "RELATOS:\n"
	for i, m := range members {
		user += fmt.Sprintf("%d. título=%q descrição=%q\n", i+1, m.Title, m.ChronologicalDescription)
	}
	user += `\nResponda APENAS: {"clusters": [[ids 1-indexados...], ...]} particionando todo o conjunto.`

	var result ClusterResult
	if err := c.llm.Complete(ctx, c.model, system, user, &result); err != nil {
		return ClusterResult{}, err
	}
	return result, nil
}

// phase2 enriches every needs-enrichment UniqueEvent in parallel. The
// synthesis is idempotent and authoritative: it overwrites prior values.
func (c *Core) phase2(ctx context.Context, concurrency int) error {
	events, err := c.store.NeedsEnrichmentUniqueEvents(ctx)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, event := range events {
		event := event
		g.Go(func() error {
			return c.enrichOne(gctx, event)
		})
	}
	return g.Wait()
}

func (c *Core) enrichOne(ctx context.Context, event models.UniqueEvent) error {
	linked, err := c.store.LinkedRawEvents(ctx, event.ID)
	if err != nil {
		return err
	}
	if len(linked) == 0 {
		return nil
	}

	result, err := c.callEnrich(ctx, linked)
	if err != nil {
		return nil // leave needs-enrichment set for next pass
	}

	applyEnrichment(&event, result, linked)

	if c.geo != nil {
		if geo, gerr := c.geo.Geocode(ctx, geocodeQuery(event)); gerr == nil && geo != nil {
			event.Latitude = &geo.Lat
			event.Longitude = &geo.Lng
			event.GeoPrecision = models.NormalizeGeoPrecision(string(geo.Precision))
			event.GeoSource = geo.Source
			event.GeoConfidence = geo.Confidence
		}
	}

	if c.embed != nil {
		if vec, verr := c.embed.Embed(ctx, event.Title+"\n"+event.ChronologicalDescription); verr == nil && len(vec) > 0 {
			event.Embedding = vec
		}
	}

	now := time.Now()
	event.LastEnrichedAt = &now
	event.EnrichmentModel = c.model
	event.NeedsEnrichment = false
	event.SourceCount = len(linked)

	return c.store.WriteEnrichedUniqueEvent(ctx, event)
}

func (c *Core) callEnrich(ctx context.Context, linked []models.RawEvent) (EnrichmentResult, error) {
	system := `Você sintetiza um registro canônico de incidente a partir de múltiplos relatos vinculados. A síntese é autoritativa: sobrescreva valores anteriores quando novas evidências corrigirem palpites antigos.`
	user := "RELATOS VINCULADOS:\n"
	for _, re := range linked {
		user += fmt.Sprintf("- título=%q data=%v local=%s/%s descrição=%q vítimas=%d\n",
			re.Title, re.EventDate, re.City, re.Neighborhood, re.ChronologicalDescription, re.VictimCount)
	}
	user += `\nResponda APENAS com o conjunto de campos canônico: {"title":string,"date":string|null,"victims_summary":string,"death_count":int,"country":string,"state":string,"city":string,"neighborhood":string,"street":string,"location_extra_info":string,"description":string}`

	var result EnrichmentResult
	if err := c.llm.Complete(ctx, c.model, system, user, &result); err != nil {
		return EnrichmentResult{}, err
	}
	return result, nil
}

// applyEnrichment writes result onto event. When a linked RawEvent is
// gold-standard (supplemented feature, spec §3's is-gold-standard flag), its
// non-empty title, state, city and neighborhood take precedence over the
// synthesized values; every other field, including the date, victim count
// and description, always takes the synthesized value.
func applyEnrichment(event *models.UniqueEvent, result EnrichmentResult, linked []models.RawEvent) {
	goldOverrides := firstGoldStandard(linked)

	event.Title = coalesce(goldOverride(goldOverrides, "title"), result.Title)
	event.VictimSummary = result.VictimsSummary
	event.VictimCount = result.DeathCount
	event.Country = coalesce(goldOverride(goldOverrides, "country"), result.Country)
	event.State = coalesce(goldOverride(goldOverrides, "state"), result.State)
	event.City = coalesce(goldOverride(goldOverrides, "city"), result.City)
	event.Neighborhood = coalesce(goldOverride(goldOverrides, "neighborhood"), result.Neighborhood)
	event.Street = coalesce(goldOverride(goldOverrides, "street"), result.Street)
	event.LocationExtraInfo = result.LocationExtraInfo
	event.ChronologicalDescription = result.Description
	event.SecurityForceInvolved = anySecurityForceInvolved(linked)

	if result.Date != nil && *result.Date != "" {
		if t, err := time.Parse("2006-01-02", *result.Date); err == nil {
			event.EventDate = &t
		}
	}
}

// anySecurityForceInvolved is true if any linked RawEvent reports security
// force involvement -- a single corroborating report is enough to flag the
// canonical record, since the extractor only sets this on an explicit textual
// mention (spec §6.4b).
func anySecurityForceInvolved(linked []models.RawEvent) bool {
	for _, re := range linked {
		if re.SecurityForceInvolved {
			return true
		}
	}
	return false
}

func firstGoldStandard(linked []models.RawEvent) *models.RawEvent {
	for i := range linked {
		if linked[i].IsGoldStandard {
			return &linked[i]
		}
	}
	return nil
}

func goldOverride(gold *models.RawEvent, field string) string {
	if gold == nil {
		return ""
	}
	switch field {
	case "title":
		return gold.Title
	case "country":
		return "" // not denormalized on RawEvent; only UniqueEvent carries it
	case "state":
		return gold.State
	case "city":
		return gold.City
	case "neighborhood":
		return gold.Neighborhood
	case "street":
		return ""
	}
	return ""
}

func coalesce(override, synthesized string) string {
	if override != "" {
		return override
	}
	return synthesized
}

func geocodeQuery(event models.UniqueEvent) string {
	return geocoder.BuildQuery(event.Street, event.Neighborhood, event.City, event.State, event.Country)
}

// postPassSweep compares UniqueEvent pairs within the bounded window
// (default 7 days), same-day bucketed, merging on confidence >
// PostPassMatchThreshold. O(k^2) in k = small, per spec §4.8.
func (c *Core) postPassSweep(ctx context.Context) error {
	events, err := c.store.UniqueEventsInWindow(ctx, c.postPassWindowDays)
	if err != nil {
		return err
	}

	byDay := make(map[string][]models.UniqueEvent)
	for _, e := range events {
		if e.EventDate == nil {
			continue
		}
		day := e.EventDate.Format("2006-01-02")
		byDay[day] = append(byDay[day], e)
	}

	for _, bucket := range byDay {
		if err := c.sweepBucket(ctx, bucket); err != nil {
			return err
		}
	}
	return nil
}

func (c *Core) sweepBucket(ctx context.Context, bucket []models.UniqueEvent) error {
	protected := make(map[int64]bool, len(bucket))
	for _, e := range bucket {
		linked, err := c.store.LinkedRawEvents(ctx, e.ID)
		protected[e.ID] = e.Confirmed || err != nil || firstGoldStandard(linked) != nil
	}
	merged := make(map[int64]bool)
	for i := 0; i < len(bucket); i++ {
		if merged[bucket[i].ID] || protected[bucket[i].ID] {
			continue // confirmed or gold-standard-sourced events are never the loser
		}
		for j := i + 1; j < len(bucket); j++ {
			if merged[bucket[j].ID] {
				continue
			}
			match, err := c.callPostPassMatch(ctx, bucket[i], bucket[j])
			if err != nil {
				continue
			}
			if match.Match && match.Confidence > PostPassMatchThreshold {
				winner, loser := bucket[i], bucket[j]
				if protected[loser.ID] {
					winner, loser = bucket[j], bucket[i]
				}
				if err := c.store.MergeUniqueEvents(ctx, winner.ID, loser.ID); err != nil {
					return err
				}
				merged[loser.ID] = true
			}
		}
	}
	return nil
}

func (c *Core) callPostPassMatch(ctx context.Context, a, b models.UniqueEvent) (MatchResult, error) {
	system := `Você determina se dois registros de incidente já canonicalizados descrevem o mesmo evento real, para possível fusão.`
	user := fmt.Sprintf("A: título=%q local=%s/%s\nB: título=%q local=%s/%s\nResponda APENAS: {\"match\":bool,\"incident_id\":null,\"confidence\":float,\"reasoning\":string}",
		a.Title, a.City, a.Neighborhood, b.Title, b.City, b.Neighborhood)
	var result MatchResult
	if err := c.llm.Complete(ctx, c.model, system, user, &result); err != nil {
		return MatchResult{}, err
	}
	return result, nil
}
