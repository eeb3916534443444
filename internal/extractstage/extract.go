// Package extractstage implements the extractor stage (spec §4.7): call the
// LLM wrapper with the extraction schema (spec §6.4b) plus downloaded text
// and a metadata preamble, enforcing the date ↔ date_verification
// consistency rule before a RawEvent is ever created. Grounded on the
// original's backend/app/services/extraction_schemas.py for the nested
// date_verification object and on the teacher's date_parser.go for the
// robust-fallback date parsing idiom, extended with a Portuguese locale
// branch.
package extractstage

import (
	"context"
	"fmt"
	"time"

	"github.com/araddon/dateparse"

	"github.com/arquivodaviolencia/incident-pipeline/internal/llm"
	"github.com/arquivodaviolencia/incident-pipeline/internal/models"
)

const systemPrompt = `Você é um extrator de dados estruturados especializado em notícias sobre mortes violentas no Brasil. Extraia as informações do texto em um objeto JSON estritamente conforme o schema fornecido.

"homicide_dynamic.security_force_involved" deve ser verdadeiro somente quando o texto indicar a participação de policiais, militares ou outra força de segurança pública como autores ou agentes do incidente.

REGRA CRÍTICA SOBRE DATAS: o campo "date" DEVE ser nulo a menos que "date_verification.has_explicit_date" seja verdadeiro E "date_verification.date_source" não seja "none". Nunca invente uma data. Se o texto disser apenas algo como "ontem à noite" sem uma data explícita ou data de publicação confiável, marque has_explicit_date=false, date_source="none" e date=null.

Responda APENAS com um objeto JSON no formato:
{
  "location_info": {"neighborhood": string?, "street": string?, "establishment": string?, "city": string?, "state": string?, "country": string?, "full_description": string?},
  "date_time": {
    "date_verification": {"has_explicit_date": bool, "date_source": "explicit"|"inferred_from_publication"|"none", "date_text_quote": string?, "year_explicitly_mentioned": bool, "verification_reasoning": string},
    "date": "YYYY-MM-DD"|null,
    "date_precision": "exata"|"parcial"|"não informada",
    "time": string?, "time_of_day": string?
  },
  "victims": {"identifiable_victims": [{"name": string, "age": int?}], "number_of_identifiable_victims": int, "unidentified_groups": [string]?, "number_of_unidentified_victims": int?, "number_of_victims": int},
  "perpetrators": {...same shape as victims}?,
  "homicide_dynamic": {"title": string, "homicide_type": string, "method": string?, "chronological_description": string, "security_force_involved": bool},
  "additional_context": string?
}`

// schemaResponse wraps models.ExtractionPayload to attach the Validate
// method the llm.Client requires without polluting the persisted entity
// type with LLM-schema-only behavior.
type schemaResponse struct {
	models.ExtractionPayload
}

// Validate enforces spec §4.7's schema-level date-consistency rule: date
// must be null whenever has_explicit_date is false or date_source is
// "none". Invalid payloads are rejected before a RawEvent is ever created.
func (r *schemaResponse) Validate() error {
	dv := r.DateTime.DateVerification
	dateIsSet := r.DateTime.Date != nil && *r.DateTime.Date != ""
	if dateIsSet && (!dv.HasExplicitDate || dv.DateSource == "none") {
		return fmt.Errorf("extractstage: date set but date_verification says unresolvable")
	}
	if r.HomicideDynamic.Title == "" {
		return fmt.Errorf("extractstage: homicide_dynamic.title is required")
	}
	return nil
}

type Extractor struct {
	client *llm.Client
	model  string
}

func New(client *llm.Client, model string) *Extractor {
	return &Extractor{client: client, model: model}
}

// Extract calls the LLM extraction schema against headline/publisher/URL/
// parsed-publication-date preamble plus the downloaded main text, and
// returns a populated RawEvent already linked to src (SourceID set) or an
// error. No RawEvent should be persisted by the caller on error.
func (e *Extractor) Extract(ctx context.Context, src *models.Source) (*models.RawEvent, error) {
	preamble := fmt.Sprintf("MANCHETE: %s\nVEÍCULO: %s\nURL: %s\n", src.Headline, src.PublisherName, src.FeedURL)
	if src.PublishedAt != nil {
		preamble += fmt.Sprintf("DATA DE PUBLICAÇÃO DO VEÍCULO: %s\n", src.PublishedAt.Format("2006-01-02"))
	}
	body := ""
	if src.MainText != nil {
		body = *src.MainText
	}
	userPrompt := preamble + "\n\nTEXTO DA NOTÍCIA:\n" + body

	var resp schemaResponse
	if err := e.client.Complete(ctx, e.model, systemPrompt, userPrompt, &resp); err != nil {
		return nil, fmt.Errorf("extractstage: %w", err)
	}

	event := &models.RawEvent{
		SourceID:                 src.ID,
		City:                     resp.LocationInfo.City,
		State:                    resp.LocationInfo.State,
		Neighborhood:             resp.LocationInfo.Neighborhood,
		TimeOfDay:                resp.DateTime.TimeOfDay,
		VictimCount:              resp.Victims.NumberOfVictims,
		IdentifiedVictimCount:    resp.Victims.NumberOfIdentifiable,
		HomicideType:             resp.HomicideDynamic.HomicideType,
		Method:                   resp.HomicideDynamic.Method,
		Title:                    resp.HomicideDynamic.Title,
		ChronologicalDescription: resp.HomicideDynamic.ChronologicalDescription,
		SecurityForceInvolved:    resp.HomicideDynamic.SecurityForceInvolved,
		Payload:                  resp.ExtractionPayload,
		ExtractionModel:          e.model,
		Success:                  true,
		DedupState:               models.DedupPending,
		DatePrecision:            resp.DateTime.DatePrecision,
	}
	if resp.Perpetrators != nil {
		event.PerpetratorCount = resp.Perpetrators.NumberOfVictims
	}

	if resp.DateTime.Date != nil && *resp.DateTime.Date != "" {
		if t, err := parseEventDate(*resp.DateTime.Date); err == nil {
			event.EventDate = &t
		}
	} else if quote := resp.DateTime.DateVerification.DateTextQuote; quote != "" && resp.DateTime.DateVerification.HasExplicitDate {
		// The model found an explicit date quote but didn't normalize it;
		// attempt to recover it ourselves rather than discard the signal.
		if t, err := parseDateRobustPT(quote); err == nil {
			event.EventDate = &t
		}
	}

	return event, nil
}

// parseEventDate parses the LLM's declared "YYYY-MM-DD" date, with
// dateparse.ParseAny as a last-resort fallback for near-miss formats the
// model occasionally emits despite the schema (e.g. "2025/12/15").
func parseEventDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return dateparse.ParseAny(s)
}
