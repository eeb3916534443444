// Package resolve decodes aggregator-obfuscated feed URLs into publisher
// URLs (spec §4.1). Grounded on v1/backend/app/services/ingestion.py's use
// of googlenewsdecoder.new_decoderv1(url, interval=0.5): same documented
// batchexecute scheme, reimplemented in Go since no pack example carries it.
package resolve

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const (
	batchExecuteURL = "https://news.google.com/_/DotsSplashUi/data/batchexecute"
	politeInterval  = 500 * time.Millisecond
)

var articlePathRegexp = regexp.MustCompile(`^/(rss/articles|articles|read)/`)

// Resolver decodes Google-News-style obfuscated URLs into their publisher
// target. Non-aggregator URLs pass through unchanged. A failed decode
// returns "" -- it never raises, per spec.
type Resolver struct {
	httpClient *http.Client
	interval   time.Duration
}

func New(httpClient *http.Client) *Resolver {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Resolver{httpClient: httpClient, interval: politeInterval}
}

// Resolve decodes aggregatorURL to a publisher URL, or returns "" if the URL
// cannot be resolved. It retries the decode RPC exactly once at a fixed
// small backoff before giving up.
func (r *Resolver) Resolve(ctx context.Context, aggregatorURL string) string {
	u, err := url.Parse(aggregatorURL)
	if err != nil || !strings.Contains(u.Host, "news.google.com") {
		return aggregatorURL
	}
	if !articlePathRegexp.MatchString(u.Path) {
		return aggregatorURL
	}

	encoded := strings.TrimPrefix(articlePathRegexp.ReplaceAllString(u.Path, ""), "/")
	decoded, err := r.decodeOnce(ctx, encoded)
	if err != nil {
		time.Sleep(r.interval)
		decoded, err = r.decodeOnce(ctx, encoded)
		if err != nil {
			return ""
		}
	}
	return decoded
}

// decodeOnce base64-decodes the article ID from the URL path, pulls the
// decode parameters out of that payload (extractDecodeParams), and submits
// the batchexecute RPC whose response carries the real publisher URL. No
// article page is fetched.
func (r *Resolver) decodeOnce(ctx context.Context, encodedID string) (string, error) {
	payload, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(encodedID)
	if err != nil {
		payload, err = base64.StdEncoding.DecodeString(encodedID)
		if err != nil {
			return "", fmt.Errorf("resolve: decode path segment: %w", err)
		}
	}

	sig, ts, target, ok := extractDecodeParams(payload)
	if !ok {
		return "", fmt.Errorf("resolve: could not extract decode parameters")
	}

	reqBody := buildBatchExecuteBody(target, sig, ts)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, batchExecuteURL, bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("resolve: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded;charset=UTF-8")
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; incident-pipeline/1.0)")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("resolve: batchexecute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("resolve: read response: %w", err)
	}

	return parseBatchExecuteResponse(body)
}

// extractDecodeParams pulls the signature, timestamp, and embedded target
// URL out of the decoded article-ID payload. The exact byte layout is
// aggregator-internal and undocumented upstream; target is the first
// http(s) substring, ts the first run of ten or more digits, and sig the
// payload length in hex. buildBatchExecuteBody sends target and ts only.
func extractDecodeParams(payload []byte) (sig, ts, target string, ok bool) {
	s := string(payload)
	urlMatch := regexp.MustCompile(`https?://\S+`).FindString(s)
	if urlMatch == "" {
		return "", "", "", false
	}
	numeric := regexp.MustCompile(`\d{10,}`).FindAllString(s, -1)
	if len(numeric) == 0 {
		return "", "", "", false
	}
	ts = numeric[0]
	sig = fmt.Sprintf("%x", len(s))
	return sig, ts, urlMatch, true
}

func buildBatchExecuteBody(target, sig, ts string) []byte {
	inner := fmt.Sprintf(`[[["Fbv4je","[\"garturlreq\",[[\"X\",\"X\",[\"X\",\"X\"],null,null,1,1,\"US:en\",null,1,null,null,null,null,null,0,1],\"X\",\"X\",1,[1,1,1],1,1,null,0,0,null,0],\"%s\",%s,\"generic\"]",null,"generic"]]]`, target, ts)
	values := url.Values{}
	values.Set("f.req", inner)
	return []byte(values.Encode())
}

// parseBatchExecuteResponse extracts the decoded publisher URL from the
// batchexecute RPC's wrapped-JSON response body.
func parseBatchExecuteResponse(body []byte) (string, error) {
	lines := strings.Split(string(body), "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "[[") {
			continue
		}
		var outer []interface{}
		if err := json.Unmarshal([]byte(line), &outer); err != nil {
			continue
		}
		if u := findFirstURL(outer); u != "" {
			return u, nil
		}
	}
	return "", fmt.Errorf("resolve: no publisher url found in response")
}

func findFirstURL(v interface{}) string {
	switch t := v.(type) {
	case string:
		if strings.HasPrefix(t, "http://") || strings.HasPrefix(t, "https://") {
			return t
		}
	case []interface{}:
		for _, item := range t {
			if u := findFirstURL(item); u != "" {
				return u
			}
		}
	}
	return ""
}
