// manual_ingest inserts a single Source directly, bypassing the feed
// fetcher (spec §4.4), for backfilling a specific article an operator
// already knows about. Grounded on the teacher's manual_ingest tool
// (single-source trigger) but repointed at InsertSource instead of the
// old scrape-strategy pipeline.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/arquivodaviolencia/incident-pipeline/internal/db"
	"github.com/arquivodaviolencia/incident-pipeline/internal/models"
)

func main() {
	var (
		url          string
		headline     string
		publisher    string
		publisherURL string
		locality     string
	)

	cmd := &cobra.Command{
		Use:   "manual_ingest",
		Short: "Manually enqueue one article URL as a Source",
		RunE: func(cmd *cobra.Command, args []string) error {
			if url == "" || headline == "" {
				return fmt.Errorf("--url and --headline are required")
			}

			ctx := context.Background()
			pool, err := db.Connect(ctx)
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			defer pool.Close()

			if err := db.ApplyMigrations(ctx, pool); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}

			store := db.NewStore(pool)
			now := time.Now()
			src := models.Source{
				FeedID:         fmt.Sprintf("manual:%s", url),
				FeedURL:        url,
				ResolvedURL:    &url,
				Headline:       headline,
				PublisherName:  publisher,
				PublisherURL:   publisherURL,
				SearchQuery:    locality,
				FirstFetchedAt: now,
				LastUpdatedAt:  now,
				State:          models.SourceReadyForClassification,
			}

			id, inserted, err := store.InsertSource(ctx, src)
			if err != nil {
				return fmt.Errorf("insert: %w", err)
			}
			if !inserted {
				log.Println("source already exists for this URL; not re-inserted")
				return nil
			}
			log.Printf("inserted source %d, ready for classification", id)
			return nil
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "article URL to ingest")
	cmd.Flags().StringVar(&headline, "headline", "", "article headline")
	cmd.Flags().StringVar(&publisher, "publisher", "", "publisher name")
	cmd.Flags().StringVar(&publisherURL, "publisher-url", "", "publisher URL")
	cmd.Flags().StringVar(&locality, "locality", "", "locality this source targets, stored as search_query")

	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
