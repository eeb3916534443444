// Package download implements the downloader stage (spec §4.6): run the
// content extractor against a Source's resolved URL (falling back to the
// feed URL), persist main text, and transition state accordingly. Each
// Source is one already-known article URL, fetched by calling
// extract.Extractor directly; there is no crawl over listing pages.
package download

import (
	"context"
	"fmt"

	"github.com/arquivodaviolencia/incident-pipeline/internal/extract"
	"github.com/arquivodaviolencia/incident-pipeline/internal/models"
)

type Downloader struct {
	extractor *extract.Extractor
}

func New(extractor *extract.Extractor) *Downloader {
	return &Downloader{extractor: extractor}
}

// Download runs the content extractor against src's resolved URL, falling
// back to the feed URL, and returns the result to be persisted by the
// caller along with the next Source state.
func (d *Downloader) Download(ctx context.Context, src *models.Source) (*extract.Result, models.SourceState, error) {
	target := src.FeedURL
	if src.ResolvedURL != nil && *src.ResolvedURL != "" {
		target = *src.ResolvedURL
	}

	result, err := d.extractor.Extract(ctx, target, src.PublishedAt)
	if err != nil {
		return nil, models.SourceFailedInDownload, fmt.Errorf("download: %w", err)
	}
	if result == nil || result.MainText == "" {
		return nil, models.SourceFailedInDownload, fmt.Errorf("download: empty extraction result")
	}

	src.MainText = &result.MainText
	if result.PublishedAt != nil {
		src.PublishedAt = result.PublishedAt
	}
	return result, models.SourceReadyForExtraction, nil
}
