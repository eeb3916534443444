// Package classify implements the classifier stage (spec §4.5): headline-only
// LLM call against the classification schema (spec §6.4a), writing the
// boolean/confidence/reasoning and transitioning the Source accordingly.
// Grounded on the teacher's ai.ClassifyGrant call-site shape
// (internal/ai/classifier.go) and on the original's
// ViolentDeathClassification model + system prompt
// (backend/app/services/classification.py) for the exact Portuguese
// classification semantics.
package classify

import (
	"context"
	"fmt"

	"github.com/arquivodaviolencia/incident-pipeline/internal/llm"
	"github.com/arquivodaviolencia/incident-pipeline/internal/models"
)

const systemPrompt = `Você é um classificador de manchetes de notícias. Sua única tarefa é determinar se uma manchete indica notícia sobre uma ou mais MORTES VIOLENTAS (homicídios, assassinatos, execuções, feminicídios, latrocínios, mortes em operação policial).

CLASSIFIQUE COMO MORTE VIOLENTA (is_violent_death = true):
- Morte por arma de fogo ou arma branca
- Corpo encontrado com marcas de violência
- Morte em operação policial ou confronto
- Feminicídio, latrocínio, homicídio, assassinato, infanticídio
- Morte por espancamento ou estrangulamento

NÃO CLASSIFIQUE COMO MORTE VIOLENTA (is_violent_death = false):
- Prisões sem morte
- Violência sem morte (feridos, agressões, sobreviventes)
- Políticas de segurança pública
- Apreensões de drogas ou armas

Baseie-se APENAS no texto da manchete fornecida. Responda APENAS com um objeto JSON:
{"is_violent_death": bool, "confidence": "alta"|"média"|"baixa", "reasoning": string de até 500 caracteres}`

// Result mirrors spec §6.4a exactly.
type Result struct {
	IsViolentDeath bool   `json:"is_violent_death"`
	Confidence     string `json:"confidence"`
	Reasoning      string `json:"reasoning"`
}

func (r *Result) Validate() error {
	switch r.Confidence {
	case "alta", "média", "baixa":
	default:
		return fmt.Errorf("classify: invalid confidence tag %q", r.Confidence)
	}
	if len(r.Reasoning) > 500 {
		r.Reasoning = r.Reasoning[:500]
	}
	return nil
}

// Classifier runs the classification stage over a single Source's headline.
type Classifier struct {
	client *llm.Client
	model  string
}

func New(client *llm.Client, model string) *Classifier {
	return &Classifier{client: client, model: model}
}

// Classify submits headline only (never body text, per spec §4.5) and
// returns the decision. On error the caller must leave the Source's state
// unchanged so the next scheduling pass retries.
func (c *Classifier) Classify(ctx context.Context, headline string) (Result, error) {
	var result Result
	userPrompt := fmt.Sprintf("MANCHETE: %s", headline)
	if err := c.client.Complete(ctx, c.model, systemPrompt, userPrompt, &result); err != nil {
		return Result{}, fmt.Errorf("classify: %w", err)
	}
	return result, nil
}

// ApplyTransition writes the classification result onto src and returns the
// next Source state per spec §4.5's state machine.
func ApplyTransition(src *models.Source, r Result) models.SourceState {
	isViolent := r.IsViolentDeath
	src.IsViolentDeath = &isViolent
	src.Confidence = models.Confidence(r.Confidence)
	src.Reasoning = r.Reasoning

	if isViolent {
		return models.SourceReadyForDownload
	}
	return models.SourceDiscarded
}
