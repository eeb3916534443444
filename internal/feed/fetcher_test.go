package feed

import (
	"strings"
	"testing"
)

func TestBuildRSSURL_MatchesRequestTemplate(t *testing.T) {
	got := buildRSSURL("homicídio Rio de Janeiro", "7d")
	for _, want := range []string{
		"news.google.com/rss/search?",
		"hl=pt-BR",
		"gl=BR",
		"ceid=BR%3Apt-419",
		"when%3A7d",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("expected URL to contain %q, got %s", want, got)
		}
	}
}

func TestBuildRSSURL_NoWindowOmitsWhenClause(t *testing.T) {
	got := buildRSSURL("tiroteio", "")
	if strings.Contains(got, "when") {
		t.Errorf("expected no when clause, got %s", got)
	}
}

func TestParseHeadlineAndPublisher(t *testing.T) {
	cases := []struct {
		title         string
		wantHeadline  string
		wantPublisher string
	}{
		{"Homem é morto a tiros em Copacabana - G1", "Homem é morto a tiros em Copacabana", "G1"},
		{"Título sem publisher separado por hífen simples - com - múltiplos - travessões - O Globo", "Título sem publisher separado por hífen simples - com - múltiplos - travessões", "O Globo"},
		{"Título sem publisher", "Título sem publisher", ""},
	}
	for _, c := range cases {
		headline, publisher := parseHeadlineAndPublisher(c.title)
		if headline != c.wantHeadline || publisher != c.wantPublisher {
			t.Errorf("parseHeadlineAndPublisher(%q) = (%q, %q), want (%q, %q)",
				c.title, headline, publisher, c.wantHeadline, c.wantPublisher)
		}
	}
}

func TestShardedQueries(t *testing.T) {
	q := Query{Search: "homicídio", Locality: "Rio de Janeiro"}
	out := ShardedQueries(q, []string{"g1.globo.com", "oglobo.globo.com"})
	if len(out) != 2 {
		t.Fatalf("expected 2 sharded queries, got %d", len(out))
	}
	if out[0].Search != "homicídio site:g1.globo.com" || out[0].Locality != "Rio de Janeiro" {
		t.Errorf("unexpected sharded query: %+v", out[0])
	}
}
