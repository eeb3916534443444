// Package models defines the persistent entities of the ingestion pipeline:
// Source, RawEvent, UniqueEvent, and CityStats.
package models

import "time"

// SourceState is the closed set of states a Source can occupy. The *-ing
// states are claim markers (see internal/coordinator) and are never set
// except by the atomic claim step.
type SourceState string

const (
	SourceReadyForClassification SourceState = "ready-for-classification"
	SourceClassifying            SourceState = "classifying"
	SourceDiscarded              SourceState = "discarded"
	SourceReadyForDownload       SourceState = "ready-for-download"
	SourceDownloading            SourceState = "downloading"
	SourceFailedInDownload       SourceState = "failed-in-download"
	SourceReadyForExtraction     SourceState = "ready-for-extraction"
	SourceExtracting             SourceState = "extracting"
	SourceFailedInExtraction     SourceState = "failed-in-extraction"
	SourceExtracted              SourceState = "extracted"
)

// ClaimStateFor returns the *-ing claim state a worker set must transition
// into before processing a Source in the given input state. The second
// return value is false if inputState has no claim state (i.e. it is not a
// valid stage-entry state).
func ClaimStateFor(inputState SourceState) (SourceState, bool) {
	switch inputState {
	case SourceReadyForClassification:
		return SourceClassifying, true
	case SourceReadyForDownload:
		return SourceDownloading, true
	case SourceReadyForExtraction:
		return SourceExtracting, true
	default:
		return "", false
	}
}

// Confidence is the classifier's self-reported confidence tag, reported in
// Portuguese exactly as the LLM is prompted to answer.
type Confidence string

const (
	ConfidenceHigh   Confidence = "alta"
	ConfidenceMedium Confidence = "média"
	ConfidenceLow    Confidence = "baixa"
)

// DedupState tracks a RawEvent's progress through the deduplication core.
type DedupState string

const (
	DedupPending   DedupState = "pending"
	DedupMatched   DedupState = "matched"
	DedupClustered DedupState = "clustered"
)

// DatePrecision describes how exactly an event's date is known.
type DatePrecision string

const (
	DateExact   DatePrecision = "exata"
	DatePartial DatePrecision = "parcial"
	DateUnknown DatePrecision = "não informada"
)

// GeoPrecision is the closed set of precision tags this system records for
// a geocoded location. Any tag the Geocoder capability returns outside this
// set is coerced to GeoApproximate rather than failing (spec §9).
type GeoPrecision string

const (
	GeoExact             GeoPrecision = "exact"
	GeoApproximate       GeoPrecision = "approximate"
	GeoNeighborhoodCenter GeoPrecision = "neighborhood_center"
	GeoCityCenter        GeoPrecision = "city_center"
)

// NormalizeGeoPrecision coerces any unrecognized precision tag to
// GeoApproximate.
func NormalizeGeoPrecision(tag string) GeoPrecision {
	switch GeoPrecision(tag) {
	case GeoExact, GeoApproximate, GeoNeighborhoodCenter, GeoCityCenter:
		return GeoPrecision(tag)
	default:
		return GeoApproximate
	}
}

// Source is one row per unique feed entry.
type Source struct {
	ID int64

	// identity
	FeedID       string
	FeedURL      string
	ResolvedURL  *string

	// content
	Headline      string
	PublisherName string
	PublisherURL  string
	PublishedAt   *time.Time
	MainText      *string

	// provenance
	SearchQuery string
	FirstFetchedAt time.Time
	LastUpdatedAt  time.Time

	// state
	State SourceState

	// classification
	IsViolentDeath *bool
	Confidence     Confidence
	Reasoning      string

	// error bookkeeping (populated on failed-in-* transitions)
	LastError string
}

// ExtractionPayload is the full structured extraction result as returned by
// the LLM extraction schema (spec §6.4b), stored opaquely as JSON alongside
// the denormalized query columns below.
type ExtractionPayload struct {
	LocationInfo     LocationInfo      `json:"location_info"`
	DateTime         ExtractedDateTime `json:"date_time"`
	Victims          PeopleGroup       `json:"victims"`
	Perpetrators     *PeopleGroup      `json:"perpetrators,omitempty"`
	HomicideDynamic  HomicideDynamic   `json:"homicide_dynamic"`
	AdditionalContext string           `json:"additional_context,omitempty"`
}

type LocationInfo struct {
	Neighborhood    string `json:"neighborhood,omitempty"`
	Street          string `json:"street,omitempty"`
	Establishment   string `json:"establishment,omitempty"`
	City            string `json:"city,omitempty"`
	State           string `json:"state,omitempty"`
	Country         string `json:"country,omitempty"`
	FullDescription string `json:"full_description,omitempty"`
}

// DateVerification is the sub-object that forces the model to declare
// whether the article actually contains a resolvable date. A post-validation
// step (see internal/extractstage) rejects any payload where Date is
// non-null while this says the date could not be determined.
type DateVerification struct {
	HasExplicitDate        bool   `json:"has_explicit_date"`
	DateSource             string `json:"date_source"` // "explicit" | "inferred_from_publication" | "none"
	DateTextQuote          string `json:"date_text_quote,omitempty"`
	YearExplicitlyMentioned bool  `json:"year_explicitly_mentioned"`
	VerificationReasoning  string `json:"verification_reasoning"`
}

type ExtractedDateTime struct {
	DateVerification DateVerification `json:"date_verification"`
	Date             *string          `json:"date,omitempty"` // "YYYY-MM-DD"
	DatePrecision    DatePrecision    `json:"date_precision,omitempty"`
	Time             string           `json:"time,omitempty"`
	TimeOfDay        string           `json:"time_of_day,omitempty"`
}

type IdentifiedPerson struct {
	Name string `json:"name,omitempty"`
	Age  *int   `json:"age,omitempty"`
}

type PeopleGroup struct {
	IdentifiableVictims       []IdentifiedPerson `json:"identifiable_victims,omitempty"`
	NumberOfIdentifiable      int                `json:"number_of_identifiable_victims"`
	UnidentifiedGroups        []string           `json:"unidentified_groups,omitempty"`
	NumberOfUnidentified      int                `json:"number_of_unidentified_victims,omitempty"`
	NumberOfVictims           int                `json:"number_of_victims"`
}

type HomicideDynamic struct {
	Title                    string `json:"title"`
	HomicideType             string `json:"homicide_type"`
	Method                   string `json:"method,omitempty"`
	ChronologicalDescription string `json:"chronological_description"`
	SecurityForceInvolved    bool   `json:"security_force_involved"`
}

// RawEvent is one row per successful extraction. Owned by its parent Source
// (one-to-one); may link to at most one UniqueEvent.
type RawEvent struct {
	ID       int64
	SourceID int64

	// denormalized query columns
	EventDate              *time.Time
	DatePrecision          DatePrecision
	TimeOfDay              string
	City                   string
	State                  string
	Neighborhood           string
	VictimCount            int
	IdentifiedVictimCount  int
	PerpetratorCount       int
	SecurityForceInvolved  bool
	HomicideType           string
	Method                 string
	Title                  string
	ChronologicalDescription string

	// full payload
	Payload ExtractionPayload

	// provenance
	ExtractionModel string
	Success         bool
	ErrorMessage    string

	// dedup state
	DedupState      DedupState
	UniqueEventID   *int64
	IsGoldStandard  bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// UniqueEvent is one row per distinct real-world incident.
type UniqueEvent struct {
	ID int64

	// classification
	HomicideType string
	Method       string
	EventDate    *time.Time
	DatePrecision DatePrecision
	TimeOfDay    string

	// location
	Country           string
	State             string
	City              string
	Neighborhood      string
	Street            string
	Establishment     string
	LocationExtraInfo string
	Latitude          *float64
	Longitude         *float64
	PlusCode          string
	PlaceID           string
	FormattedAddress  string
	GeoPrecision      GeoPrecision
	GeoSource         string
	GeoConfidence     float64

	// people
	VictimCount             int
	IdentifiedVictimCount   int
	VictimSummary           string
	PerpetratorCount        int
	IdentifiedPerpetratorCount int
	SecurityForceInvolved   bool

	// narrative
	Title                    string
	ChronologicalDescription string
	AdditionalContext        string

	// merged payload (opaque JSON synthesis of all source payloads)
	MergedPayload map[string]interface{}

	// Embedding is a title+description vector over the canonical record,
	// used as a pgvector cosine-similarity narrowing signal ahead of the
	// Phase 1a LLM match call (spec §4.8). Nil until the first enrichment
	// pass, and permanently nil when no Embedder backend is configured.
	Embedding []float32

	// provenance
	SourceCount       int
	Confirmed         bool
	NeedsEnrichment   bool
	LastEnrichedAt    *time.Time
	EnrichmentModel   string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CityStats is a counter per ingested locality (spec §3).
type CityStats struct {
	ID              int64
	Locality        string
	LastResultCount int
	HitLimitCount   int
	NeedsSharding   bool
	UpdatedAt       time.Time
}
