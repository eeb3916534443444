package dedup

import (
	"context"
	"testing"

	"github.com/arquivodaviolencia/incident-pipeline/internal/models"
)

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vec, f.err
}

func TestNormalize(t *testing.T) {
	if got := normalize("Copacabana RJ"); got != "copacabana rj" {
		t.Errorf("got %q", got)
	}
}

func TestLocationKey_PrefersNeighborhood(t *testing.T) {
	re := models.RawEvent{City: "Rio de Janeiro", Neighborhood: "Maré"}
	if got := locationKey(re); got != "maré" {
		t.Errorf("got %q, want maré", got)
	}
}

func TestLocationKey_FallsBackToCity(t *testing.T) {
	re := models.RawEvent{City: "Rio de Janeiro"}
	if got := locationKey(re); got != "rio de janeiro" {
		t.Errorf("got %q, want rio de janeiro", got)
	}
}

func TestNarrowByLocationOverlap_FiltersToMatchingCandidates(t *testing.T) {
	re := models.RawEvent{ChronologicalDescription: "O corpo foi encontrado na Maré, zona norte do Rio."}
	candidates := []models.UniqueEvent{
		{ID: 1, Neighborhood: "Maré"},
		{ID: 2, Neighborhood: "Copacabana"},
	}
	got := narrowByLocationOverlap(re, candidates)
	if len(got) != 1 || got[0].ID != 1 {
		t.Fatalf("expected only candidate 1, got %+v", got)
	}
}

func TestNarrowByLocationOverlap_NoTokensReturnsAllCandidates(t *testing.T) {
	re := models.RawEvent{ChronologicalDescription: "um incidente qualquer"}
	candidates := []models.UniqueEvent{{ID: 1}, {ID: 2}}
	got := narrowByLocationOverlap(re, candidates)
	if len(got) != 2 {
		t.Fatalf("expected all candidates returned when no location tokens exist, got %d", len(got))
	}
}

func TestNarrowByLocationOverlap_NoHitsReturnsAllCandidates(t *testing.T) {
	re := models.RawEvent{ChronologicalDescription: "um incidente em outro lugar qualquer"}
	candidates := []models.UniqueEvent{{ID: 1, Neighborhood: "Maré"}, {ID: 2, Neighborhood: "Copacabana"}}
	got := narrowByLocationOverlap(re, candidates)
	if len(got) != 2 {
		t.Fatalf("expected all candidates returned when no token is mentioned, got %d", len(got))
	}
}

func TestFirstGoldStandard(t *testing.T) {
	linked := []models.RawEvent{
		{ID: 1, IsGoldStandard: false},
		{ID: 2, IsGoldStandard: true},
		{ID: 3, IsGoldStandard: true},
	}
	got := firstGoldStandard(linked)
	if got == nil || got.ID != 2 {
		t.Fatalf("expected first gold standard event (id=2), got %+v", got)
	}
}

func TestFirstGoldStandard_NoneReturnsNil(t *testing.T) {
	linked := []models.RawEvent{{ID: 1, IsGoldStandard: false}}
	if got := firstGoldStandard(linked); got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}

func TestGoldOverride_UsesGoldFieldsWhenPresent(t *testing.T) {
	gold := &models.RawEvent{Title: "Título confirmado", City: "Rio de Janeiro", Neighborhood: "Maré"}
	if got := goldOverride(gold, "title"); got != "Título confirmado" {
		t.Errorf("got %q", got)
	}
	if got := goldOverride(gold, "neighborhood"); got != "Maré" {
		t.Errorf("got %q", got)
	}
	if got := goldOverride(nil, "title"); got != "" {
		t.Errorf("expected empty string for nil gold, got %q", got)
	}
}

func TestCoalesce(t *testing.T) {
	if got := coalesce("override", "synth"); got != "override" {
		t.Errorf("got %q", got)
	}
	if got := coalesce("", "synth"); got != "synth" {
		t.Errorf("got %q", got)
	}
}

func TestCosineSimilarity_IdenticalVectorsAreOne(t *testing.T) {
	v := []float32{1, 2, 3}
	if got := cosineSimilarity(v, v); got < 0.999 || got > 1.001 {
		t.Errorf("expected ~1.0, got %f", got)
	}
}

func TestCosineSimilarity_OrthogonalVectorsAreZero(t *testing.T) {
	if got := cosineSimilarity([]float32{1, 0}, []float32{0, 1}); got != 0 {
		t.Errorf("expected 0, got %f", got)
	}
}

func TestCosineSimilarity_MismatchedLengthIsZero(t *testing.T) {
	if got := cosineSimilarity([]float32{1, 2}, []float32{1, 2, 3}); got != 0 {
		t.Errorf("expected 0 for mismatched lengths, got %f", got)
	}
}

func TestNarrowByEmbeddingSimilarity_NoEmbedderReturnsAllCandidates(t *testing.T) {
	c := &Core{embed: nil}
	candidates := []models.UniqueEvent{{ID: 1}, {ID: 2}}
	got := c.narrowByEmbeddingSimilarity(context.Background(), models.RawEvent{}, candidates)
	if len(got) != 2 {
		t.Fatalf("expected all candidates when no embedder configured, got %d", len(got))
	}
}

func TestNarrowByEmbeddingSimilarity_NoCandidateEmbeddingsIsNoOp(t *testing.T) {
	c := &Core{embed: fakeEmbedder{vec: []float32{1, 0}}}
	candidates := []models.UniqueEvent{{ID: 1}, {ID: 2}}
	got := c.narrowByEmbeddingSimilarity(context.Background(), models.RawEvent{}, candidates)
	if len(got) != 2 {
		t.Fatalf("expected all candidates when none has a stored embedding, got %d", len(got))
	}
}

func TestNarrowByEmbeddingSimilarity_FiltersBelowThreshold(t *testing.T) {
	c := &Core{embed: fakeEmbedder{vec: []float32{1, 0}}}
	candidates := []models.UniqueEvent{
		{ID: 1, Embedding: []float32{1, 0}},  // cosine 1.0, kept
		{ID: 2, Embedding: []float32{0, 1}},  // cosine 0.0, dropped
	}
	got := c.narrowByEmbeddingSimilarity(context.Background(), models.RawEvent{}, candidates)
	if len(got) != 1 || got[0].ID != 1 {
		t.Fatalf("expected only candidate 1, got %+v", got)
	}
}

func TestNarrowByEmbeddingSimilarity_EmbedFailureReturnsAllCandidates(t *testing.T) {
	c := &Core{embed: fakeEmbedder{err: context.DeadlineExceeded}}
	candidates := []models.UniqueEvent{{ID: 1, Embedding: []float32{1, 0}}}
	got := c.narrowByEmbeddingSimilarity(context.Background(), models.RawEvent{}, candidates)
	if len(got) != 1 {
		t.Fatalf("expected candidates unfiltered on embed failure, got %d", len(got))
	}
}

func TestAnySecurityForceInvolved_TrueWhenAnyLinkedReportsIt(t *testing.T) {
	linked := []models.RawEvent{{SecurityForceInvolved: false}, {SecurityForceInvolved: true}}
	if !anySecurityForceInvolved(linked) {
		t.Error("expected true")
	}
}

func TestAnySecurityForceInvolved_FalseWhenNoneReportIt(t *testing.T) {
	linked := []models.RawEvent{{SecurityForceInvolved: false}, {SecurityForceInvolved: false}}
	if anySecurityForceInvolved(linked) {
		t.Error("expected false")
	}
}

func TestGeocodeQuery_DelegatesToGeocoderBuildQuery(t *testing.T) {
	event := models.UniqueEvent{Street: "Rua das Flores", Neighborhood: "Copacabana"}
	if got := geocodeQuery(event); got != "Rua das Flores, Copacabana, Rio de Janeiro, RJ, Brasil" {
		t.Errorf("got %q", got)
	}
}
