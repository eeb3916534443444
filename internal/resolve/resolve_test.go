package resolve

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestExtractDecodeParams_FindsURLAndTimestamp(t *testing.T) {
	payload := []byte(`garbage1699999999999prefix https://g1.globo.com/rio-de-janeiro/noticia/123.ghtml suffix`)
	sig, ts, target, ok := extractDecodeParams(payload)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if target != "https://g1.globo.com/rio-de-janeiro/noticia/123.ghtml" {
		t.Errorf("unexpected target: %q", target)
	}
	if ts != "1699999999999" {
		t.Errorf("unexpected ts: %q", ts)
	}
	if sig == "" {
		t.Error("expected non-empty sig")
	}
}

func TestExtractDecodeParams_NoURLFails(t *testing.T) {
	_, _, _, ok := extractDecodeParams([]byte("no url here at all 1234567890123"))
	if ok {
		t.Error("expected ok=false when no URL present")
	}
}

func TestExtractDecodeParams_NoNumericFails(t *testing.T) {
	_, _, _, ok := extractDecodeParams([]byte("https://example.com/no-timestamp-here"))
	if ok {
		t.Error("expected ok=false when no long numeric run present")
	}
}

func TestBuildBatchExecuteBody_EncodesTargetAndTimestamp(t *testing.T) {
	body := buildBatchExecuteBody("https://g1.globo.com/x", "abc", "1699999999999")
	s := string(body)
	if !strings.HasPrefix(s, "f.req=") {
		t.Fatalf("expected f.req-prefixed form body, got %s", s)
	}
	if !strings.Contains(s, "1699999999999") {
		t.Error("expected timestamp present in encoded body")
	}
}

func TestFindFirstURL_DepthFirstSearch(t *testing.T) {
	v := []interface{}{
		"not a url",
		[]interface{}{
			42.0,
			[]interface{}{"https://oglobo.globo.com/rio/noticia"},
		},
	}
	if got := findFirstURL(v); got != "https://oglobo.globo.com/rio/noticia" {
		t.Errorf("got %q", got)
	}
}

func TestFindFirstURL_NoURLReturnsEmpty(t *testing.T) {
	v := []interface{}{"no url", 1.0, []interface{}{"still no url"}}
	if got := findFirstURL(v); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
}

func TestParseBatchExecuteResponse_ExtractsURLFromWrappedJSON(t *testing.T) {
	inner, err := json.Marshal([]interface{}{[]interface{}{"wrap", []interface{}{"https://g1.globo.com/noticia/abc"}}})
	if err != nil {
		t.Fatal(err)
	}
	body := []byte(")]}'\n\n" + string(inner) + "\n")
	got, err := parseBatchExecuteResponse(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "https://g1.globo.com/noticia/abc" {
		t.Errorf("got %q", got)
	}
}

func TestParseBatchExecuteResponse_NoMatchReturnsError(t *testing.T) {
	_, err := parseBatchExecuteResponse([]byte("garbage\nmore garbage\n"))
	if err == nil {
		t.Fatal("expected error when no array line is present")
	}
}
