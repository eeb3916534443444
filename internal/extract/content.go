package extract

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"github.com/gogs/chardet"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// Result is what the content extractor hands to the downloader/extractor
// stages: main text, a small metadata bag, and a resolved publication
// timestamp (nil if none could be trusted).
type Result struct {
	MainText    string
	Metadata    map[string]string
	PublishedAt *time.Time
}

// Extractor runs the two-pass extraction described in spec §4.2.
type Extractor struct {
	transport    *Transport
	sanitizer    *bluemonday.Policy
	minPubYear   int
}

func New(transport *Transport, minPublicationYear int) *Extractor {
	if minPublicationYear == 0 {
		minPublicationYear = 2000
	}
	return &Extractor{
		transport:  transport,
		sanitizer:  bluemonday.UGCPolicy(),
		minPubYear: minPublicationYear,
	}
}

// Extract fetches publisherURL and returns (mainText, metadata, publishedAt)
// or nil on any failure, per spec §4.2. feedPublishedAt is the fetcher's
// recorded publication time, used as a fallback when no in-document
// metadata is present.
func (e *Extractor) Extract(ctx context.Context, publisherURL string, feedPublishedAt *time.Time) (*Result, error) {
	doc, err := e.transport.Fetch(ctx, publisherURL)
	if err != nil {
		return nil, fmt.Errorf("extract: fetch: %w", err)
	}
	if len(doc.Body) == 0 {
		return nil, fmt.Errorf("extract: empty body")
	}

	body := e.decodeCharset(doc.Body, doc.ContentType)

	precision, err := readability.FromReader(bytes.NewReader(body), mustParseURL(publisherURL))
	var precisionText string
	if err == nil {
		precisionText = strings.TrimSpace(precision.TextContent)
	}

	recallText, metaDescription := e.recallPass(body)

	mainText := mergeExtractions(precisionText, recallText)
	if metaDescription != "" && !substantiallyOverlapping(metaDescription, mainText) {
		mainText = metaDescription + "\n\n" + mainText
	}

	if strings.TrimSpace(mainText) == "" {
		if doc2, perr := html.Parse(bytes.NewReader(body)); perr == nil {
			mainText = domTextFallback(doc2)
		}
	}
	if strings.TrimSpace(mainText) == "" {
		return nil, fmt.Errorf("extract: no main content recovered")
	}

	publishedAt := e.resolvePublishedAt(precision, feedPublishedAt)

	return &Result{
		MainText: mainText,
		Metadata: map[string]string{
			"title":        precision.Title,
			"byline":       precision.Byline,
			"excerpt":      precision.Excerpt,
			"site_name":    precision.SiteName,
			"content_type": doc.ContentType,
		},
		PublishedAt: publishedAt,
	}, nil
}

// recallPass re-parses the raw DOM favoring recall: it keeps comment blocks
// and captions the precision pass discards, and reads the meta description/
// og:description tags.
func (e *Extractor) recallPass(body []byte) (text string, metaDescription string) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", ""
	}

	if desc, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		metaDescription = strings.TrimSpace(desc)
	}
	if metaDescription == "" {
		if desc, ok := doc.Find(`meta[property="og:description"]`).Attr("content"); ok {
			metaDescription = strings.TrimSpace(desc)
		}
	}

	var sb strings.Builder
	doc.Find("article, .content, .article-body, .comments, p, figcaption").Each(func(_ int, s *goquery.Selection) {
		t := strings.TrimSpace(s.Text())
		if t != "" {
			sb.WriteString(t)
			sb.WriteString("\n")
		}
	})

	return e.sanitizer.Sanitize(sb.String()), metaDescription
}

// mergeExtractions keeps the precision-favoring text and appends any
// substantively new content from the recall pass.
func mergeExtractions(precisionText, recallText string) string {
	if precisionText == "" {
		return recallText
	}
	if recallText == "" {
		return precisionText
	}
	if substantiallyOverlapping(recallText, precisionText) {
		return precisionText
	}
	return precisionText + "\n\n" + recallText
}

// substantiallyOverlapping is a cheap containment-ratio heuristic: if most
// of candidate's non-trivial words already appear in base, it's not
// "substantively new".
func substantiallyOverlapping(candidate, base string) bool {
	candidate = strings.ToLower(strings.TrimSpace(candidate))
	base = strings.ToLower(base)
	if candidate == "" {
		return true
	}
	if len(candidate) < 40 {
		return strings.Contains(base, candidate)
	}
	words := strings.Fields(candidate)
	if len(words) == 0 {
		return true
	}
	hits, nonTrivial := 0, 0
	for _, w := range words {
		if len(w) <= 4 {
			continue
		}
		nonTrivial++
		if strings.Contains(base, w) {
			hits++
		}
	}
	if nonTrivial == 0 {
		return false
	}
	return float64(hits)/float64(nonTrivial) > 0.7
}

// resolvePublishedAt follows spec §4.2: trafilatura-style metadata first
// (here, readability's parsed PublishedTime), falling back to the feed's
// published-at; fetched-at is never used. Future dates or dates older than
// minPubYear are rejected to nil.
func (e *Extractor) resolvePublishedAt(article readability.Article, feedPublishedAt *time.Time) *time.Time {
	var candidate *time.Time
	if article.PublishedTime != nil && !article.PublishedTime.IsZero() {
		candidate = article.PublishedTime
	} else {
		candidate = feedPublishedAt
	}
	if candidate == nil {
		return nil
	}
	if candidate.After(time.Now()) {
		return nil
	}
	if candidate.Year() < e.minPubYear {
		return nil
	}
	return candidate
}

// decodeCharset transcodes body to UTF-8 when chardet detects a non-UTF8
// charset (common on older Brazilian publisher sites still serving
// ISO-8859-1/Windows-1252). Detection failure, an already-UTF8 result, or an
// encoding name htmlindex doesn't recognize all fall through to the raw
// bytes unchanged, rather than risk a lossy re-encode on a guess.
func (e *Extractor) decodeCharset(body []byte, contentType string) []byte {
	if strings.Contains(strings.ToLower(contentType), "utf-8") {
		return body
	}
	detector := chardet.NewTextDetector()
	result, err := detector.DetectBest(body)
	if err != nil || result == nil || strings.EqualFold(result.Charset, "UTF-8") {
		return body
	}
	enc, err := htmlindex.Get(result.Charset)
	if err != nil {
		return body
	}
	decoded, _, err := transform.Bytes(enc.NewDecoder(), body)
	if err != nil {
		return body
	}
	return decoded
}

func mustParseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		return &url.URL{}
	}
	return u
}
