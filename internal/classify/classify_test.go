package classify

import (
	"testing"

	"github.com/arquivodaviolencia/incident-pipeline/internal/models"
)

func TestResult_Validate(t *testing.T) {
	cases := []struct {
		name    string
		result  Result
		wantErr bool
	}{
		{"alta ok", Result{Confidence: "alta"}, false},
		{"media ok", Result{Confidence: "média"}, false},
		{"baixa ok", Result{Confidence: "baixa"}, false},
		{"invalid tag", Result{Confidence: "high"}, true},
		{"empty tag", Result{Confidence: ""}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.result.Validate()
			if (err != nil) != c.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, c.wantErr)
			}
		})
	}
}

func TestResult_Validate_TruncatesLongReasoning(t *testing.T) {
	long := make([]byte, 600)
	for i := range long {
		long[i] = 'a'
	}
	r := Result{Confidence: "alta", Reasoning: string(long)}
	if err := r.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(r.Reasoning) != 500 {
		t.Errorf("expected reasoning truncated to 500 chars, got %d", len(r.Reasoning))
	}
}

func TestApplyTransition_ViolentDeathGoesToDownload(t *testing.T) {
	src := &models.Source{}
	next := ApplyTransition(src, Result{IsViolentDeath: true, Confidence: "alta", Reasoning: "arma de fogo"})
	if next != models.SourceReadyForDownload {
		t.Errorf("expected ready-for-download, got %s", next)
	}
	if src.IsViolentDeath == nil || !*src.IsViolentDeath {
		t.Error("expected IsViolentDeath to be set true")
	}
	if src.Confidence != models.Confidence("alta") {
		t.Errorf("expected confidence alta, got %s", src.Confidence)
	}
}

func TestApplyTransition_NonViolentIsDiscarded(t *testing.T) {
	src := &models.Source{}
	next := ApplyTransition(src, Result{IsViolentDeath: false, Confidence: "baixa"})
	if next != models.SourceDiscarded {
		t.Errorf("expected discarded, got %s", next)
	}
}
