package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OllamaBackend is a thin HTTP wrapper around a local Ollama server's
// /api/generate and /api/embeddings endpoints, kept structurally close to
// the teacher's ai.OllamaClient (internal/ai/ollama.go) but stripped of
// everything the Client above now owns (retry, schema validation).
type OllamaBackend struct {
	BaseURL    string
	EmbedModel string
	client     *http.Client
}

func NewOllamaBackend(baseURL, embedModel string) *OllamaBackend {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if embedModel == "" {
		embedModel = "nomic-embed-text"
	}
	return &OllamaBackend{BaseURL: baseURL, EmbedModel: embedModel, client: &http.Client{Timeout: 60 * time.Second}}
}

func (b *OllamaBackend) Complete(ctx context.Context, model, system, user string, jsonMode bool) (string, error) {
	prompt := user
	if system != "" {
		prompt = system + "\n\n" + user
	}

	reqBody := map[string]interface{}{
		"model":  model,
		"prompt": prompt,
		"stream": false,
	}
	if jsonMode {
		reqBody["format"] = "json"
	}

	buf, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("ollama: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.BaseURL+"/api/generate", bytes.NewReader(buf))
	if err != nil {
		return "", fmt.Errorf("ollama: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("ollama: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama: status %d: %s", resp.StatusCode, string(body))
	}

	var parsed struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("ollama: unmarshal response: %w", err)
	}
	return parsed.Response, nil
}

// Embed satisfies llm.Embedder via Ollama's /api/embeddings endpoint,
// mirroring the teacher's OllamaClient.GenerateEmbedding (internal/ai/ollama.go).
func (b *OllamaBackend) Embed(ctx context.Context, text string) ([]float32, error) {
	reqBody := map[string]string{
		"model":  b.EmbedModel,
		"prompt": text,
	}
	buf, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("ollama: marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.BaseURL+"/api/embeddings", bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("ollama: build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama: embed request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ollama: read embed response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama: embed status %d: %s", resp.StatusCode, string(body))
	}

	var parsed struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("ollama: unmarshal embed response: %w", err)
	}
	return parsed.Embedding, nil
}
