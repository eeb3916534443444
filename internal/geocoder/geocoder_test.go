package geocoder

import (
	"testing"

	"github.com/arquivodaviolencia/incident-pipeline/internal/models"
)

func TestBuildQuery_FillsDefaultLocality(t *testing.T) {
	got := BuildQuery("", "", "", "", "")
	want := "Rio de Janeiro, RJ, Brasil"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestBuildQuery_KeepsKnownFragments(t *testing.T) {
	got := BuildQuery("Rua das Flores", "Copacabana", "Rio de Janeiro", "RJ", "Brasil")
	want := "Rua das Flores, Copacabana, Rio de Janeiro, RJ, Brasil"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestBuildQuery_PartialOverrideStillFillsRest(t *testing.T) {
	got := BuildQuery("", "Maré", "", "", "")
	want := "Maré, Rio de Janeiro, RJ, Brasil"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestGeocodeLocationTypeToPrecision(t *testing.T) {
	cases := []struct {
		locationType string
		want         models.GeoPrecision
	}{
		{"ROOFTOP", models.GeoExact},
		{"RANGE_INTERPOLATED", models.GeoApproximate},
		{"GEOMETRIC_CENTER", models.GeoApproximate},
		{"APPROXIMATE", models.GeoApproximate},
	}
	for _, c := range cases {
		if got := geocodeLocationTypeToPrecision(c.locationType); got != c.want {
			t.Errorf("%s: got %v, want %v", c.locationType, got, c.want)
		}
	}
}
