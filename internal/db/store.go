package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/arquivodaviolencia/incident-pipeline/internal/models"
)

// Store is the persistence layer for the four entities (spec §3). It
// implements internal/coordinator.Store and internal/dedup.Store, and
// backs internal/api's read endpoints. Grounded on the teacher's
// internal/db/store.go idiom: nullable-pointer scan helpers, a dynamic
// WHERE-clause builder for list filters, and JSON-column marshal/unmarshal
// for opaque payloads.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const sourceCols = `id, feed_id, feed_url, resolved_url, headline, publisher_name, publisher_url,
	published_at, main_text, search_query, first_fetched_at, last_updated_at, state,
	is_violent_death, confidence, reasoning, last_error`

func scanSource(scan func(dest ...interface{}) error) (models.Source, error) {
	var s models.Source
	err := scan(
		&s.ID, &s.FeedID, &s.FeedURL, &s.ResolvedURL, &s.Headline, &s.PublisherName, &s.PublisherURL,
		&s.PublishedAt, &s.MainText, &s.SearchQuery, &s.FirstFetchedAt, &s.LastUpdatedAt, &s.State,
		&s.IsViolentDeath, &s.Confidence, &s.Reasoning, &s.LastError,
	)
	return s, err
}

// InsertSource idempotently inserts a newly-fetched feed entry keyed by
// feed_id (spec §4.4 step 3's dedup boundary). Returns (0, false, nil) on
// conflict rather than erroring, since "already exists" is an expected,
// frequent outcome of polling the same query repeatedly.
func (s *Store) InsertSource(ctx context.Context, src models.Source) (int64, bool, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO sources (feed_id, feed_url, resolved_url, headline, publisher_name, publisher_url,
			published_at, search_query, first_fetched_at, last_updated_at, state)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (feed_id) DO NOTHING
		RETURNING id
	`, src.FeedID, src.FeedURL, src.ResolvedURL, src.Headline, src.PublisherName, src.PublisherURL,
		src.PublishedAt, src.SearchQuery, src.FirstFetchedAt, src.LastUpdatedAt, src.State).Scan(&id)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("db: insert source: %w", err)
	}
	return id, true, nil
}

// ClaimSources implements the atomic claim pattern (spec §4.9/§5): select
// up to limit candidate IDs in inputState, conditionally transition them to
// the *-ing claim state in one UPDATE ... RETURNING, and return the
// claimed rows. Two concurrent callers racing on the same candidate set
// never double-claim a row, because the UPDATE's WHERE clause re-checks
// state = inputState at the row level and only the first writer wins it.
func (s *Store) ClaimSources(ctx context.Context, inputState models.SourceState, limit int) ([]models.Source, error) {
	claimState, ok := models.ClaimStateFor(inputState)
	if !ok {
		return nil, fmt.Errorf("db: %s has no claim state", inputState)
	}

	rows, err := s.pool.Query(ctx, `
		WITH candidates AS (
			SELECT id FROM sources
			WHERE state = $1
			ORDER BY id
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE sources SET state = $3, last_updated_at = NOW()
		WHERE id IN (SELECT id FROM candidates)
		RETURNING `+sourceCols, inputState, limit, claimState)
	if err != nil {
		return nil, fmt.Errorf("db: claim sources: %w", err)
	}
	defer rows.Close()

	var out []models.Source
	for rows.Next() {
		src, err := scanSource(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("db: scan claimed source: %w", err)
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

// UpdateSource persists every mutable field a stage worker may have set.
func (s *Store) UpdateSource(ctx context.Context, src models.Source) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE sources SET
			resolved_url = $2, main_text = $3, state = $4,
			is_violent_death = $5, confidence = $6, reasoning = $7,
			last_error = $8, last_updated_at = $9, published_at = $10
		WHERE id = $1
	`, src.ID, src.ResolvedURL, src.MainText, src.State,
		src.IsViolentDeath, src.Confidence, src.Reasoning,
		src.LastError, src.LastUpdatedAt, src.PublishedAt)
	if err != nil {
		return fmt.Errorf("db: update source %d: %w", src.ID, err)
	}
	return nil
}

// ReleaseStaleClaims resets any Source stuck in a *-ing claim state longer
// than staleAfter back to its pre-claim ready state (the janitor sweep,
// spec §9 Open Question 3, disabled by default).
func (s *Store) ReleaseStaleClaims(ctx context.Context, staleAfter time.Duration) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sources SET state = CASE state
				WHEN 'classifying' THEN 'ready-for-classification'
				WHEN 'downloading' THEN 'ready-for-download'
				WHEN 'extracting' THEN 'ready-for-extraction'
				ELSE state
			END,
			last_error = 'released by janitor: stale claim'
		WHERE state IN ('classifying', 'downloading', 'extracting')
			AND last_updated_at < NOW() - $1::interval
	`, staleAfter.String())
	if err != nil {
		return 0, fmt.Errorf("db: release stale claims: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

const rawEventCols = `id, source_id, event_date, date_precision, time_of_day, city, state, neighborhood,
	victim_count, identified_victim_count, perpetrator_count, security_force_involved, homicide_type,
	method, title, chronological_description, payload_json, extraction_model, success, error_message,
	dedup_state, unique_event_id, is_gold_standard, created_at, updated_at`

func scanRawEvent(scan func(dest ...interface{}) error) (models.RawEvent, error) {
	var e models.RawEvent
	var payloadRaw []byte
	err := scan(
		&e.ID, &e.SourceID, &e.EventDate, &e.DatePrecision, &e.TimeOfDay, &e.City, &e.State, &e.Neighborhood,
		&e.VictimCount, &e.IdentifiedVictimCount, &e.PerpetratorCount, &e.SecurityForceInvolved, &e.HomicideType,
		&e.Method, &e.Title, &e.ChronologicalDescription, &payloadRaw, &e.ExtractionModel, &e.Success, &e.ErrorMessage,
		&e.DedupState, &e.UniqueEventID, &e.IsGoldStandard, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return e, err
	}
	if len(payloadRaw) > 0 {
		_ = json.Unmarshal(payloadRaw, &e.Payload)
	}
	return e, nil
}

// InsertRawEvent persists a successful extraction.
func (s *Store) InsertRawEvent(ctx context.Context, e models.RawEvent) (int64, error) {
	payloadRaw, err := json.Marshal(e.Payload)
	if err != nil {
		return 0, fmt.Errorf("db: marshal payload: %w", err)
	}
	var id int64
	err = s.pool.QueryRow(ctx, `
		INSERT INTO raw_events (source_id, event_date, date_precision, time_of_day, city, state, neighborhood,
			victim_count, identified_victim_count, perpetrator_count, security_force_involved, homicide_type,
			method, title, chronological_description, payload_json, extraction_model, success, error_message,
			dedup_state, is_gold_standard)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
		RETURNING id
	`, e.SourceID, e.EventDate, e.DatePrecision, e.TimeOfDay, e.City, e.State, e.Neighborhood,
		e.VictimCount, e.IdentifiedVictimCount, e.PerpetratorCount, e.SecurityForceInvolved, e.HomicideType,
		e.Method, e.Title, e.ChronologicalDescription, payloadRaw, e.ExtractionModel, e.Success, e.ErrorMessage,
		models.DedupPending, e.IsGoldStandard).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("db: insert raw event: %w", err)
	}
	return id, nil
}

// PendingRawEvents returns RawEvents with dedup_state=pending and a
// resolved event date (spec §4.8's operand set).
func (s *Store) PendingRawEvents(ctx context.Context) ([]models.RawEvent, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+rawEventCols+` FROM raw_events
		WHERE dedup_state = $1 AND event_date IS NOT NULL
		ORDER BY id`, models.DedupPending)
	if err != nil {
		return nil, fmt.Errorf("db: pending raw events: %w", err)
	}
	defer rows.Close()

	var out []models.RawEvent
	for rows.Next() {
		e, err := scanRawEvent(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) UniqueEventIDSnapshot(ctx context.Context) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM unique_events`)
	if err != nil {
		return nil, fmt.Errorf("db: unique event snapshot: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const uniqueEventCols = `id, homicide_type, method, event_date, date_precision, time_of_day,
	country, state, city, neighborhood, street, establishment, location_extra_info,
	latitude, longitude, plus_code, place_id, formatted_address, geo_precision, geo_source, geo_confidence,
	victim_count, identified_victim_count, victim_summary, perpetrator_count, identified_perpetrator_count,
	security_force_involved, title, chronological_description, additional_context, merged_payload_json,
	source_count, confirmed, needs_enrichment, last_enriched_at, enrichment_model, embedding, created_at, updated_at`

func scanUniqueEvent(scan func(dest ...interface{}) error) (models.UniqueEvent, error) {
	var e models.UniqueEvent
	var mergedRaw []byte
	var embedding *pgvector.Vector
	err := scan(
		&e.ID, &e.HomicideType, &e.Method, &e.EventDate, &e.DatePrecision, &e.TimeOfDay,
		&e.Country, &e.State, &e.City, &e.Neighborhood, &e.Street, &e.Establishment, &e.LocationExtraInfo,
		&e.Latitude, &e.Longitude, &e.PlusCode, &e.PlaceID, &e.FormattedAddress, &e.GeoPrecision, &e.GeoSource, &e.GeoConfidence,
		&e.VictimCount, &e.IdentifiedVictimCount, &e.VictimSummary, &e.PerpetratorCount, &e.IdentifiedPerpetratorCount,
		&e.SecurityForceInvolved, &e.Title, &e.ChronologicalDescription, &e.AdditionalContext, &mergedRaw,
		&e.SourceCount, &e.Confirmed, &e.NeedsEnrichment, &e.LastEnrichedAt, &e.EnrichmentModel, &embedding, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return e, err
	}
	if len(mergedRaw) > 0 {
		_ = json.Unmarshal(mergedRaw, &e.MergedPayload)
	}
	if embedding != nil {
		e.Embedding = embedding.Slice()
	}
	return e, nil
}

// CandidatesWithinWindow returns UniqueEvents from snapshotIDs whose event
// date is within +/-toleranceDays of date (spec §4.8 Phase 1a blocking).
func (s *Store) CandidatesWithinWindow(ctx context.Context, date time.Time, toleranceDays int, snapshotIDs []int64) ([]models.UniqueEvent, error) {
	if len(snapshotIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT `+uniqueEventCols+` FROM unique_events
		WHERE id = ANY($1) AND event_date BETWEEN $2::date - $3::int AND $2::date + $3::int
		ORDER BY id`, snapshotIDs, date, toleranceDays)
	if err != nil {
		return nil, fmt.Errorf("db: candidates within window: %w", err)
	}
	defer rows.Close()

	var out []models.UniqueEvent
	for rows.Next() {
		e, err := scanUniqueEvent(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// LinkRawEvent sets a RawEvent's unique_event_link, marks it matched, and
// flags the target UniqueEvent needs-enrichment.
func (s *Store) LinkRawEvent(ctx context.Context, rawEventID, uniqueEventID int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("db: begin link tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `UPDATE raw_events SET unique_event_id = $1, dedup_state = $2, updated_at = NOW() WHERE id = $3`,
		uniqueEventID, models.DedupMatched, rawEventID); err != nil {
		return fmt.Errorf("db: link raw event: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE unique_events SET needs_enrichment = TRUE, updated_at = NOW() WHERE id = $1`, uniqueEventID); err != nil {
		return fmt.Errorf("db: flag needs enrichment: %w", err)
	}
	return tx.Commit(ctx)
}

// CreateUniqueEventFromCluster creates one UniqueEvent seeded from seed,
// links every member's RawEvent to it, and flags it needs-enrichment so
// Phase 2 synthesizes its canonical fields from the full member set.
func (s *Store) CreateUniqueEventFromCluster(ctx context.Context, seed models.RawEvent, members []models.RawEvent) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("db: begin cluster tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx, `
		INSERT INTO unique_events (homicide_type, method, event_date, date_precision, time_of_day,
			city, neighborhood, title, chronological_description, victim_count,
			identified_victim_count, perpetrator_count, security_force_involved, source_count, needs_enrichment)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,TRUE)
		RETURNING id
	`, seed.HomicideType, seed.Method, seed.EventDate, seed.DatePrecision, seed.TimeOfDay,
		seed.City, seed.Neighborhood, seed.Title, seed.ChronologicalDescription, seed.VictimCount,
		seed.IdentifiedVictimCount, seed.PerpetratorCount, seed.SecurityForceInvolved, len(members)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("db: create unique event: %w", err)
	}

	for _, m := range members {
		if _, err := tx.Exec(ctx, `UPDATE raw_events SET unique_event_id = $1, dedup_state = $2, updated_at = NOW() WHERE id = $3`,
			id, models.DedupClustered, m.ID); err != nil {
			return 0, fmt.Errorf("db: link cluster member %d: %w", m.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("db: commit cluster tx: %w", err)
	}
	return id, nil
}

func (s *Store) NeedsEnrichmentUniqueEvents(ctx context.Context) ([]models.UniqueEvent, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+uniqueEventCols+` FROM unique_events WHERE needs_enrichment = TRUE ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("db: needs enrichment: %w", err)
	}
	defer rows.Close()

	var out []models.UniqueEvent
	for rows.Next() {
		e, err := scanUniqueEvent(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) LinkedRawEvents(ctx context.Context, uniqueEventID int64) ([]models.RawEvent, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+rawEventCols+` FROM raw_events WHERE unique_event_id = $1 ORDER BY id`, uniqueEventID)
	if err != nil {
		return nil, fmt.Errorf("db: linked raw events: %w", err)
	}
	defer rows.Close()

	var out []models.RawEvent
	for rows.Next() {
		e, err := scanRawEvent(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// WriteEnrichedUniqueEvent writes the synthesized field set authoritatively
// (overwrites prior values) and clears needs-enrichment.
func (s *Store) WriteEnrichedUniqueEvent(ctx context.Context, e models.UniqueEvent) error {
	mergedRaw, err := json.Marshal(e.MergedPayload)
	if err != nil {
		mergedRaw = []byte("{}")
	}

	var embedding interface{}
	if len(e.Embedding) > 0 {
		embedding = pgvector.NewVector(e.Embedding)
	}

	_, err = s.pool.Exec(ctx, `
		UPDATE unique_events SET
			title = $2, event_date = $3, victim_summary = $4, victim_count = $5,
			country = $6, state = $7, city = $8, neighborhood = $9, street = $10, location_extra_info = $11,
			chronological_description = $12, merged_payload_json = $13,
			latitude = $14, longitude = $15, geo_precision = $16, geo_source = $17, geo_confidence = $18,
			source_count = $19, needs_enrichment = FALSE, last_enriched_at = $20, enrichment_model = $21,
			security_force_involved = $22, embedding = $23, updated_at = NOW()
		WHERE id = $1
	`, e.ID, e.Title, e.EventDate, e.VictimSummary, e.VictimCount,
		e.Country, e.State, e.City, e.Neighborhood, e.Street, e.LocationExtraInfo,
		e.ChronologicalDescription, mergedRaw,
		e.Latitude, e.Longitude, e.GeoPrecision, e.GeoSource, e.GeoConfidence,
		e.SourceCount, e.LastEnrichedAt, e.EnrichmentModel, e.SecurityForceInvolved, embedding)
	if err != nil {
		return fmt.Errorf("db: write enriched unique event %d: %w", e.ID, err)
	}
	return nil
}

// MarkNeedsEnrichment flags UniqueEvents for re-enrichment by Phase 2 on
// the next dedup run, for the enrich_recompute tool. Passing an empty ids
// slice flags every UniqueEvent.
func (s *Store) MarkNeedsEnrichment(ctx context.Context, ids []int64) (int, error) {
	var tag pgconn.CommandTag
	var err error
	if len(ids) == 0 {
		tag, err = s.pool.Exec(ctx, `UPDATE unique_events SET needs_enrichment = TRUE WHERE needs_enrichment = FALSE`)
	} else {
		tag, err = s.pool.Exec(ctx, `UPDATE unique_events SET needs_enrichment = TRUE WHERE id = ANY($1) AND needs_enrichment = FALSE`, ids)
	}
	if err != nil {
		return 0, fmt.Errorf("db: mark needs enrichment: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// SourceStateCounts returns the number of Sources in each state, for the
// check_runs tool's pipeline-health snapshot.
func (s *Store) SourceStateCounts(ctx context.Context) (map[models.SourceState]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT state, COUNT(*) FROM sources GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("db: source state counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.SourceState]int)
	for rows.Next() {
		var state models.SourceState
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, err
		}
		counts[state] = n
	}
	return counts, rows.Err()
}

// UniqueEventsInWindow returns UniqueEvents whose event date falls within
// the last windowDays days, for the post-pass merge sweep.
func (s *Store) UniqueEventsInWindow(ctx context.Context, windowDays int) ([]models.UniqueEvent, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+uniqueEventCols+` FROM unique_events
		WHERE event_date IS NOT NULL AND event_date >= NOW() - ($1::int * INTERVAL '1 day')
		ORDER BY event_date`, windowDays)
	if err != nil {
		return nil, fmt.Errorf("db: unique events in window: %w", err)
	}
	defer rows.Close()

	var out []models.UniqueEvent
	for rows.Next() {
		e, err := scanUniqueEvent(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// MergeUniqueEvents re-parents every RawEvent owned by loserID to winnerID
// and deletes the loser.
func (s *Store) MergeUniqueEvents(ctx context.Context, winnerID, loserID int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("db: begin merge tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `UPDATE raw_events SET unique_event_id = $1, updated_at = NOW() WHERE unique_event_id = $2`, winnerID, loserID); err != nil {
		return fmt.Errorf("db: reparent raw events: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE unique_events SET needs_enrichment = TRUE WHERE id = $1`, winnerID); err != nil {
		return fmt.Errorf("db: reflag winner: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM unique_events WHERE id = $1`, loserID); err != nil {
		return fmt.Errorf("db: delete merge loser: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *Store) CityStatsFor(ctx context.Context, locality string) (*models.CityStats, error) {
	var cs models.CityStats
	err := s.pool.QueryRow(ctx, `SELECT id, locality, last_result_count, hit_limit_count, needs_sharding, updated_at
		FROM city_stats WHERE locality = $1`, locality).Scan(
		&cs.ID, &cs.Locality, &cs.LastResultCount, &cs.HitLimitCount, &cs.NeedsSharding, &cs.UpdatedAt)
	if err == nil {
		return &cs, nil
	}
	if err != pgx.ErrNoRows {
		return nil, fmt.Errorf("db: city stats for %q: %w", locality, err)
	}

	cs = models.CityStats{Locality: locality}
	err = s.pool.QueryRow(ctx, `INSERT INTO city_stats (locality) VALUES ($1)
		ON CONFLICT (locality) DO UPDATE SET locality = EXCLUDED.locality
		RETURNING id, last_result_count, hit_limit_count, needs_sharding, updated_at`, locality).Scan(
		&cs.ID, &cs.LastResultCount, &cs.HitLimitCount, &cs.NeedsSharding, &cs.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("db: create city stats for %q: %w", locality, err)
	}
	return &cs, nil
}

func (s *Store) SaveCityStats(ctx context.Context, cs models.CityStats) error {
	_, err := s.pool.Exec(ctx, `UPDATE city_stats SET last_result_count = $2, hit_limit_count = $3,
		needs_sharding = $4, updated_at = NOW() WHERE id = $1`,
		cs.ID, cs.LastResultCount, cs.HitLimitCount, cs.NeedsSharding)
	if err != nil {
		return fmt.Errorf("db: save city stats %d: %w", cs.ID, err)
	}
	return nil
}

// ListParams filters the UniqueEvent read API (spec's dropped web dashboard
// is out of scope, but the read API itself -- kept/adapted from the
// teacher's ListOpportunities -- still needs a filterable listing).
type ListParams struct {
	City          string
	Neighborhood  string
	HomicideType  string
	FromDate      *time.Time
	ToDate        *time.Time
	Limit         int
	Offset        int
}

type ListResult struct {
	Events []models.UniqueEvent `json:"events"`
	Total  int                  `json:"total"`
	Limit  int                  `json:"limit"`
	Offset int                  `json:"offset"`
}

// buildUniqueEventWhere is the dynamic WHERE-clause builder, split out as a
// pure function (mirroring the teacher's buildOpenTabConstraint) so its
// SQL-fragment construction is unit-testable without a database.
func buildUniqueEventWhere(p ListParams) (string, []interface{}) {
	where := "WHERE 1=1"
	var args []interface{}
	argIdx := 1

	if p.City != "" {
		where += fmt.Sprintf(" AND city ILIKE $%d", argIdx)
		args = append(args, p.City)
		argIdx++
	}
	if p.Neighborhood != "" {
		where += fmt.Sprintf(" AND neighborhood ILIKE $%d", argIdx)
		args = append(args, p.Neighborhood)
		argIdx++
	}
	if p.HomicideType != "" {
		where += fmt.Sprintf(" AND homicide_type = $%d", argIdx)
		args = append(args, p.HomicideType)
		argIdx++
	}
	if p.FromDate != nil {
		where += fmt.Sprintf(" AND event_date >= $%d", argIdx)
		args = append(args, *p.FromDate)
		argIdx++
	}
	if p.ToDate != nil {
		where += fmt.Sprintf(" AND event_date <= $%d", argIdx)
		args = append(args, *p.ToDate)
		argIdx++
	}
	return where, args
}

// ListUniqueEvents mirrors the teacher's ListOpportunities dynamic
// WHERE-clause-builder idiom, generalized to the incident domain's filter
// set.
func (s *Store) ListUniqueEvents(ctx context.Context, p ListParams) (*ListResult, error) {
	where, args := buildUniqueEventWhere(p)
	argIdx := len(args) + 1

	limit := p.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM unique_events "+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("db: count unique events: %w", err)
	}

	args = append(args, limit, p.Offset)
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM unique_events %s ORDER BY event_date DESC NULLS LAST, id DESC LIMIT $%d OFFSET $%d`,
		uniqueEventCols, where, argIdx, argIdx+1), args...)
	if err != nil {
		return nil, fmt.Errorf("db: list unique events: %w", err)
	}
	defer rows.Close()

	events := make([]models.UniqueEvent, 0, limit)
	for rows.Next() {
		e, err := scanUniqueEvent(rows.Scan)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &ListResult{Events: events, Total: total, Limit: limit, Offset: p.Offset}, nil
}

func (s *Store) GetUniqueEvent(ctx context.Context, id int64) (*models.UniqueEvent, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+uniqueEventCols+` FROM unique_events WHERE id = $1`, id)
	e, err := scanUniqueEvent(row.Scan)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("db: get unique event %d: %w", id, err)
	}
	return &e, nil
}

// Stats is the aggregate counters the API's stats endpoint reports.
type Stats struct {
	TotalSources      int `json:"total_sources"`
	TotalRawEvents    int `json:"total_raw_events"`
	TotalUniqueEvents int `json:"total_unique_events"`
	PendingDedup      int `json:"pending_dedup"`
	NeedsEnrichment   int `json:"needs_enrichment"`
	FailedInDownload   int `json:"failed_in_download"`
	FailedInExtraction int `json:"failed_in_extraction"`
}

func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	var st Stats
	if err := s.pool.QueryRow(ctx, `SELECT
		(SELECT COUNT(*) FROM sources),
		(SELECT COUNT(*) FROM raw_events),
		(SELECT COUNT(*) FROM unique_events),
		(SELECT COUNT(*) FROM raw_events WHERE dedup_state = 'pending'),
		(SELECT COUNT(*) FROM unique_events WHERE needs_enrichment),
		(SELECT COUNT(*) FROM sources WHERE state = 'failed-in-download'),
		(SELECT COUNT(*) FROM sources WHERE state = 'failed-in-extraction')
	`).Scan(&st.TotalSources, &st.TotalRawEvents, &st.TotalUniqueEvents, &st.PendingDedup, &st.NeedsEnrichment,
		&st.FailedInDownload, &st.FailedInExtraction); err != nil {
		return nil, fmt.Errorf("db: stats: %w", err)
	}
	return &st, nil
}

func (s *Store) ListSources(ctx context.Context, limit, offset int) ([]models.Source, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `SELECT `+sourceCols+` FROM sources ORDER BY id DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("db: list sources: %w", err)
	}
	defer rows.Close()

	var out []models.Source
	for rows.Next() {
		src, err := scanSource(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, rows.Err()
}
