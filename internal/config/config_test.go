package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFileReturnsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.Backend != "ollama" {
		t.Errorf("expected default backend ollama, got %q", cfg.LLM.Backend)
	}
	if cfg.Coordinator.CronSpec != "17 * * * *" {
		t.Errorf("expected default cron spec, got %q", cfg.Coordinator.CronSpec)
	}
}

func TestLoad_ExpandsEnvAndOverridesDefaults(t *testing.T) {
	t.Setenv("TEST_ANTHROPIC_KEY", "sk-test-123")

	path := filepath.Join(t.TempDir(), "config.yaml")
	contents := `
llm:
  backend: anthropic
  anthropic_api_key: ${TEST_ANTHROPIC_KEY}
  classifier_model: claude-haiku
  extraction_model: claude-sonnet
  dedup_model: claude-sonnet
geocoder_api_key: ${TEST_ANTHROPIC_KEY}
dedup:
  date_tolerance_days: 2
content:
  min_publication_year: 2015
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.AnthropicAPIKey != "sk-test-123" {
		t.Errorf("expected expanded env var, got %q", cfg.LLM.AnthropicAPIKey)
	}
	if cfg.GeocoderAPIKey != "sk-test-123" {
		t.Errorf("expected expanded geocoder api key, got %q", cfg.GeocoderAPIKey)
	}
	if cfg.Dedup.DateToleranceDays != 2 {
		t.Errorf("expected date_tolerance_days override to 2, got %d", cfg.Dedup.DateToleranceDays)
	}
	if cfg.Content.MinPublicationYear != 2015 {
		t.Errorf("expected min_publication_year override to 2015, got %d", cfg.Content.MinPublicationYear)
	}
	// Fields not set in the YAML keep the hardcoded default.
	if cfg.Coordinator.ClassifierConcurrency != 10 {
		t.Errorf("expected default classifier concurrency 10, got %d", cfg.Coordinator.ClassifierConcurrency)
	}
}

func TestDefault_MinPublicationYearIs2000(t *testing.T) {
	cfg := Default()
	if cfg.Content.MinPublicationYear != 2000 {
		t.Errorf("expected default min_publication_year 2000, got %d", cfg.Content.MinPublicationYear)
	}
}

func TestDefault_EmbedModelIsNomicEmbedText(t *testing.T) {
	cfg := Default()
	if cfg.LLM.EmbedModel != "nomic-embed-text" {
		t.Errorf("expected default embed_model nomic-embed-text, got %q", cfg.LLM.EmbedModel)
	}
}

func TestFeedQueries_FallsBackToDefaults(t *testing.T) {
	cfg := Default()
	queries := cfg.FeedQueries()
	if len(queries) == 0 {
		t.Fatal("expected non-empty default queries")
	}
}
