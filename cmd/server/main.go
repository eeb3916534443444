package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/arquivodaviolencia/incident-pipeline/internal/api"
	"github.com/arquivodaviolencia/incident-pipeline/internal/classify"
	"github.com/arquivodaviolencia/incident-pipeline/internal/config"
	"github.com/arquivodaviolencia/incident-pipeline/internal/coordinator"
	"github.com/arquivodaviolencia/incident-pipeline/internal/db"
	"github.com/arquivodaviolencia/incident-pipeline/internal/dedup"
	"github.com/arquivodaviolencia/incident-pipeline/internal/download"
	"github.com/arquivodaviolencia/incident-pipeline/internal/extract"
	"github.com/arquivodaviolencia/incident-pipeline/internal/extractstage"
	"github.com/arquivodaviolencia/incident-pipeline/internal/feed"
	"github.com/arquivodaviolencia/incident-pipeline/internal/geocoder"
	"github.com/arquivodaviolencia/incident-pipeline/internal/llm"
	"github.com/arquivodaviolencia/incident-pipeline/internal/resolve"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.ServerPort
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	store := db.NewStore(pool)

	backend, err := buildLLMBackend(cfg.LLM)
	if err != nil {
		log.Fatalf("Failed to configure LLM backend: %v", err)
	}
	llmClient := llm.New(backend, llm.Config{MaxRetries: cfg.LLM.MaxRetries})

	classifier := classify.New(llmClient, cfg.LLM.ClassifierModel)

	transport := extract.NewTransport(extract.FetchConfig{
		TimeoutSeconds: 30,
		MaxRetries:     3,
		RateLimitRPS:   1.0,
	})
	extractor := extract.New(transport, cfg.Content.MinPublicationYear)
	downloader := download.New(extractor)

	extractionStage := extractstage.New(llmClient, cfg.LLM.ExtractionModel)

	resolver := resolve.New(&http.Client{Timeout: 15 * time.Second})
	feedCfg := cfg.ToFeedConfig()
	fetcher := feed.New(feedCfg, resolver)

	// Geocoding is enabled purely by API key presence (spec §6.6: "default
	// false unless an API key is present").
	var geo geocoder.Geocoder
	if cfg.GeocoderAPIKey != "" {
		geoClient, err := geocoder.New(cfg.GeocoderAPIKey)
		if err != nil {
			log.Fatalf("Failed to configure geocoder: %v", err)
		}
		geo = geoClient
	}
	// The pgvector narrowing signal (spec §4.8) is enabled purely by the
	// configured backend implementing llm.Embedder; the Anthropic backend
	// does not, so embed is nil in that configuration.
	embed, _ := backend.(llm.Embedder)
	dedupCore := dedup.New(store, llmClient, geo, embed, cfg.ToDedupConfig())

	co := coordinator.New(store, cfg.ToCoordinatorConfig(), fetcher, feedCfg, classifier, downloader, extractionStage, dedupCore, cfg.FeedQueries())
	if err := co.StartCron(ctx); err != nil {
		log.Fatalf("Failed to start cron scheduler: %v", err)
	}
	defer co.Stop()

	srv := api.NewServer(pool, co)
	log.Printf("Server starting on port %s...", port)
	if err := srv.Start(port); err != nil {
		log.Fatal(err)
	}
}

// buildLLMBackend picks the completion backend named by cfg.Backend (spec
// §6.2): "anthropic" for the hosted Claude API, anything else falls back to
// a local Ollama instance so the pipeline runs with no cloud credentials.
func buildLLMBackend(cfg config.LLMConfig) (llm.Backend, error) {
	switch cfg.Backend {
	case "anthropic":
		return llm.NewAnthropicBackend(cfg.AnthropicAPIKey), nil
	default:
		baseURL := cfg.OllamaBaseURL
		if baseURL == "" {
			baseURL = "http://127.0.0.1:11434"
		}
		return llm.NewOllamaBackend(baseURL, cfg.EmbedModel), nil
	}
}
