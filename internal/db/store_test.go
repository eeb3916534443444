package db

import (
	"strings"
	"testing"
	"time"
)

func TestBuildUniqueEventWhere_NoFilters(t *testing.T) {
	where, args := buildUniqueEventWhere(ListParams{})
	if where != "WHERE 1=1" {
		t.Fatalf("expected no-op where clause, got %q", where)
	}
	if len(args) != 0 {
		t.Fatalf("expected no args, got %v", args)
	}
}

func TestBuildUniqueEventWhere_CombinesFilters(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	where, args := buildUniqueEventWhere(ListParams{
		City:         "Rio de Janeiro",
		Neighborhood: "Maré",
		HomicideType: "tiroteio",
		FromDate:     &from,
	})

	mustContain := []string{
		"AND city ILIKE $1",
		"AND neighborhood ILIKE $2",
		"AND homicide_type = $3",
		"AND event_date >= $4",
	}
	for _, token := range mustContain {
		if !strings.Contains(where, token) {
			t.Fatalf("where clause missing token %q: %s", token, where)
		}
	}
	if len(args) != 4 {
		t.Fatalf("expected 4 bound args, got %d: %v", len(args), args)
	}
}

func TestBuildUniqueEventWhere_ArgOrderMatchesPlaceholders(t *testing.T) {
	to := time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)
	where, args := buildUniqueEventWhere(ListParams{HomicideType: "homicídio", ToDate: &to})

	if !strings.Contains(where, "homicide_type = $1") {
		t.Fatalf("expected homicide_type to bind to $1, got: %s", where)
	}
	if !strings.Contains(where, "event_date <= $2") {
		t.Fatalf("expected to-date to bind to $2, got: %s", where)
	}
	if args[0] != "homicídio" {
		t.Fatalf("expected first arg to be homicide type, got %v", args[0])
	}
}
