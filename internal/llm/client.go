// Package llm provides a schema-validated, retrying LLM completion
// capability (spec §4.3), generalizing the teacher's ad hoc
// ai.GenerateCompletion/extractFirstJSONObject call-site pattern
// (internal/ai/ollama.go, internal/ai/extract.go) into a single interface
// with interchangeable backends, wrapped in a circuit breaker.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/sony/gobreaker"

	"github.com/arquivodaviolencia/incident-pipeline/internal/pipelineerr"
)

// Backend is the minimal capability a concrete LLM provider must expose:
// one free-text completion call, optionally constrained to JSON output.
type Backend interface {
	// Complete issues one completion call and returns the raw text response.
	Complete(ctx context.Context, model, system, user string, jsonMode bool) (string, error)
}

// Embedder is an optional capability a Backend may additionally implement,
// used by the dedup package's pgvector narrowing signal (spec §4.8).
// OllamaBackend implements it; AnthropicBackend does not, since the
// Anthropic API exposes no embeddings endpoint -- callers type-assert a
// Backend to Embedder and treat a failed assertion as "signal unavailable".
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Client is the schema-validated, retrying capability named in spec §4.3.
// Complete's T is supplied by the caller via a pointer target; the response
// is unmarshalled into *target, then validated by calling target's Validate
// method if it implements Validatable.
type Client struct {
	backend    Backend
	maxRetries int
	breaker    *gobreaker.CircuitBreaker
}

// Validatable is implemented by response types that carry invariants the
// schema alone cannot express (e.g. the extraction schema's date/
// date_verification consistency rule, spec §4.7).
type Validatable interface {
	Validate() error
}

// Config controls the retry budget; the circuit breaker's settings are fixed
// in New. MaxRetries defaults to 3 per spec §6.6 (llm.max_retries).
type Config struct {
	MaxRetries int
}

func New(backend Backend, cfg Config) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "llm-client",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Client{backend: backend, maxRetries: cfg.MaxRetries, breaker: breaker}
}

// Complete calls the backend with the given model/system/user prompt,
// retrying up to the configured budget on schema-violation and transport
// errors with exponential backoff, and unmarshals+validates the result into
// target. target must be a pointer.
func (c *Client) Complete(ctx context.Context, model, system, user string, target any) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * 500 * time.Millisecond
			select {
			case <-ctx.Done():
				return fmt.Errorf("llm: context done during backoff: %w", ctx.Err())
			case <-time.After(backoff):
			}
		}

		result, err := c.breaker.Execute(func() (interface{}, error) {
			return c.backend.Complete(ctx, model, system, user, true)
		})
		if err != nil {
			lastErr = fmt.Errorf("%w: %v", pipelineerr.ErrTransient, err)
			continue
		}
		raw, _ := result.(string)

		obj := ExtractFirstJSONObject(raw)
		if obj == "" {
			lastErr = fmt.Errorf("%w: no JSON object in response", pipelineerr.ErrSchemaViolation)
			continue
		}
		if err := json.Unmarshal([]byte(obj), target); err != nil {
			lastErr = fmt.Errorf("%w: unmarshal: %v", pipelineerr.ErrSchemaViolation, err)
			continue
		}
		if v, ok := target.(Validatable); ok {
			if err := v.Validate(); err != nil {
				lastErr = fmt.Errorf("%w: %v", pipelineerr.ErrSchemaViolation, err)
				continue
			}
		}
		return nil
	}
	return lastErr
}
