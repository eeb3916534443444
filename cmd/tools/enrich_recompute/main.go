// enrich_recompute forces Phase 2 (spec §4.8) to resynthesize one or more
// UniqueEvents that were already enriched, by clearing their
// needs_enrichment flag's complement -- i.e. setting it back to TRUE so
// the next enrichment round picks them up again. Grounded on the
// teacher's enrich_recompute tool (forced status recompute across a
// domain set), repointed at UniqueEvent IDs instead of opportunity
// domains.
package main

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/arquivodaviolencia/incident-pipeline/internal/db"
)

func main() {
	var idsCSV string

	cmd := &cobra.Command{
		Use:   "enrich_recompute",
		Short: "Flag UniqueEvents for re-enrichment on the next dedup run",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(idsCSV)
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.Connect(ctx)
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			defer pool.Close()

			store := db.NewStore(pool)
			n, err := store.MarkNeedsEnrichment(ctx, ids)
			if err != nil {
				return err
			}

			if len(ids) == 0 {
				log.Printf("flagged all %d previously-enriched unique events for re-enrichment", n)
			} else {
				log.Printf("flagged %d of %d requested unique events for re-enrichment", n, len(ids))
			}
			log.Println("run the enrich stage (cmd/tools/trigger enrich, or wait for cron) to apply")
			return nil
		},
	}

	cmd.Flags().StringVar(&idsCSV, "ids", "", "comma-separated unique_event IDs to recompute; empty means all")

	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func parseIDs(csv string) ([]int64, error) {
	csv = strings.TrimSpace(csv)
	if csv == "" {
		return nil, nil
	}
	parts := strings.Split(csv, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q: %w", p, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
