// Package config loads the pipeline-wide settings spec §6.6 enumerates:
// LLM backend selection, per-stage concurrency, cron spec, dedup
// tolerances, geocoder enablement, and feed queries/sharding. Grounded on
// the teacher's internal/ingest/registry.go: a YAML file with
// os.ExpandEnv applied first so secrets (API keys, DSNs) stay out of the
// checked-in file and are supplied via environment instead.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arquivodaviolencia/incident-pipeline/internal/coordinator"
	"github.com/arquivodaviolencia/incident-pipeline/internal/dedup"
	"github.com/arquivodaviolencia/incident-pipeline/internal/feed"
)

// LLMConfig selects and configures the completion backend (spec §6.2).
type LLMConfig struct {
	Backend          string `yaml:"backend"` // "ollama" or "anthropic"
	OllamaBaseURL    string `yaml:"ollama_base_url,omitempty"`
	AnthropicAPIKey  string `yaml:"anthropic_api_key,omitempty"`
	ClassifierModel  string `yaml:"classifier_model"`
	ExtractionModel  string `yaml:"extraction_model"`
	DedupModel       string `yaml:"dedup_model"`
	EmbedModel       string `yaml:"embed_model,omitempty"` // Ollama only; spec §4.8 pgvector narrowing signal
	MaxRetries       int    `yaml:"max_retries,omitempty"`
}

// FeedConfig mirrors feed.Config plus the seed queries, so the YAML file
// can override the default Rio de Janeiro query set without a code
// change.
type FeedConfig struct {
	When                string   `yaml:"when,omitempty"`
	RequestsPerMinute   float64  `yaml:"requests_per_minute,omitempty"`
	MinIntervalSeconds  float64  `yaml:"min_interval_seconds,omitempty"`
	ShardingThreshold   int      `yaml:"sharding_threshold,omitempty"`
	PublisherDomains    []string `yaml:"publisher_domains,omitempty"`
	Queries             []struct {
		Search   string `yaml:"search"`
		Locality string `yaml:"locality"`
	} `yaml:"queries,omitempty"`
}

// CoordinatorConfig mirrors coordinator.Config in YAML-friendly form.
type CoordinatorConfig struct {
	ClassifierConcurrency int    `yaml:"classifier_concurrency,omitempty"`
	DownloaderConcurrency int    `yaml:"downloader_concurrency,omitempty"`
	ExtractorConcurrency  int    `yaml:"extractor_concurrency,omitempty"`
	EnrichmentConcurrency int    `yaml:"enrichment_concurrency,omitempty"`
	CronSpec              string `yaml:"cron_spec,omitempty"`
	JanitorEnabled        bool   `yaml:"janitor_enabled,omitempty"`
	ClaimStaleAfterMins   int    `yaml:"claim_stale_after_minutes,omitempty"`
}

// DedupConfig mirrors dedup.Config. Geocoder enablement has no field here --
// it is derived purely from GeocoderAPIKey's presence (spec §6.6).
type DedupConfig struct {
	DateToleranceDays  int `yaml:"date_tolerance_days,omitempty"`
	PostPassWindowDays int `yaml:"post_pass_window_days,omitempty"`
}

// ContentConfig mirrors spec §6.6's content.* settings.
type ContentConfig struct {
	MinPublicationYear int `yaml:"min_publication_year,omitempty"`
}

// Config is the full pipeline configuration, loaded once at startup.
type Config struct {
	LLM             LLMConfig         `yaml:"llm"`
	GeocoderAPIKey  string            `yaml:"geocoder_api_key,omitempty"`
	Feed            FeedConfig        `yaml:"feed"`
	Coordinator     CoordinatorConfig `yaml:"coordinator"`
	Dedup           DedupConfig       `yaml:"dedup"`
	Content         ContentConfig     `yaml:"content"`
	ServerPort      string            `yaml:"server_port,omitempty"`
}

// Default returns the hardcoded defaults (mirroring feed.DefaultConfig,
// coordinator.DefaultConfig and dedup's zero-value defaults), used when no
// config file is present so the pipeline still runs out of the box against
// a local Ollama instance.
func Default() Config {
	fc := feed.DefaultConfig()
	cc := coordinator.DefaultConfig()
	return Config{
		LLM: LLMConfig{
			Backend:         "ollama",
			OllamaBaseURL:   "http://127.0.0.1:11434",
			ClassifierModel: "llama3.1",
			ExtractionModel: "llama3.1",
			DedupModel:      "llama3.1",
			EmbedModel:      "nomic-embed-text",
		},
		Feed: FeedConfig{
			When:                fc.When,
			RequestsPerMinute:   fc.RequestsPerMinute,
			MinIntervalSeconds:  fc.MinIntervalSeconds,
			ShardingThreshold:   fc.ShardingThreshold,
		},
		Coordinator: CoordinatorConfig{
			ClassifierConcurrency: cc.ClassifierConcurrency,
			DownloaderConcurrency: cc.DownloaderConcurrency,
			ExtractorConcurrency:  cc.ExtractorConcurrency,
			EnrichmentConcurrency: cc.EnrichmentConcurrency,
			CronSpec:              cc.CronSpec,
			JanitorEnabled:        cc.JanitorEnabled,
			ClaimStaleAfterMins:   int(cc.ClaimStaleAfter.Minutes()),
		},
		Dedup: DedupConfig{
			DateToleranceDays:  1,
			PostPassWindowDays: 7,
		},
		Content: ContentConfig{
			MinPublicationYear: 2000,
		},
		ServerPort: "8081",
	}
}

// Load reads the YAML file at path, expanding ${VAR} environment
// references first (so API keys and DSNs never need to live in the
// checked-in file), and decodes it over Default(), so any key the file does
// not set keeps its default value (a key set explicitly to zero stays zero). If
// path does not exist, Load returns Default() unmodified -- the pipeline
// is usable with no config file at all.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	return cfg, nil
}

// FeedQueries returns the configured (query, locality) pairs, falling back
// to feed.DefaultQueries when the config file specifies none.
func (c Config) FeedQueries() []feed.Query {
	if len(c.Feed.Queries) == 0 {
		return feed.DefaultQueries()
	}
	queries := make([]feed.Query, 0, len(c.Feed.Queries))
	for _, q := range c.Feed.Queries {
		queries = append(queries, feed.Query{Search: q.Search, Locality: q.Locality})
	}
	return queries
}

// ToFeedConfig converts the YAML-friendly FeedConfig into feed.Config.
func (c Config) ToFeedConfig() feed.Config {
	fc := feed.DefaultConfig()
	if c.Feed.When != "" {
		fc.When = c.Feed.When
	}
	if c.Feed.RequestsPerMinute != 0 {
		fc.RequestsPerMinute = c.Feed.RequestsPerMinute
	}
	if c.Feed.MinIntervalSeconds != 0 {
		fc.MinIntervalSeconds = c.Feed.MinIntervalSeconds
	}
	if c.Feed.ShardingThreshold != 0 {
		fc.ShardingThreshold = c.Feed.ShardingThreshold
	}
	if len(c.Feed.PublisherDomains) != 0 {
		fc.PublisherDomains = c.Feed.PublisherDomains
	}
	return fc
}

// ToCoordinatorConfig converts to coordinator.Config.
func (c Config) ToCoordinatorConfig() coordinator.Config {
	return coordinator.Config{
		ClassifierConcurrency: c.Coordinator.ClassifierConcurrency,
		DownloaderConcurrency: c.Coordinator.DownloaderConcurrency,
		ExtractorConcurrency:  c.Coordinator.ExtractorConcurrency,
		EnrichmentConcurrency: c.Coordinator.EnrichmentConcurrency,
		CronSpec:              c.Coordinator.CronSpec,
		JanitorEnabled:        c.Coordinator.JanitorEnabled,
		ClaimStaleAfter:       time.Duration(c.Coordinator.ClaimStaleAfterMins) * time.Minute,
	}
}

// ToDedupConfig converts to dedup.Config.
func (c Config) ToDedupConfig() dedup.Config {
	return dedup.Config{
		Model:              c.LLM.DedupModel,
		DateToleranceDays:  c.Dedup.DateToleranceDays,
		PostPassWindowDays: c.Dedup.PostPassWindowDays,
	}
}
