// check_runs prints the current count of Sources in each pipeline state,
// a quick pipeline-health snapshot standing in for the teacher's run-log
// table (internal/ingest has no run-log table in this domain; state is
// tracked per-Source directly, spec §4.9).
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/arquivodaviolencia/incident-pipeline/internal/db"
	"github.com/arquivodaviolencia/incident-pipeline/internal/models"
)

func main() {
	cmd := &cobra.Command{
		Use:   "check_runs",
		Short: "Print Source counts broken down by pipeline state",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			pool, err := db.Connect(ctx)
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			defer pool.Close()

			store := db.NewStore(pool)
			counts, err := store.SourceStateCounts(ctx)
			if err != nil {
				return err
			}

			states := make([]models.SourceState, 0, len(counts))
			for s := range counts {
				states = append(states, s)
			}
			sort.Slice(states, func(i, j int) bool { return states[i] < states[j] })

			total := 0
			fmt.Fprintf(os.Stdout, "%-32s %s\n", "state", "count")
			for _, s := range states {
				fmt.Fprintf(os.Stdout, "%-32s %d\n", s, counts[s])
				total += counts[s]
			}
			fmt.Fprintf(os.Stdout, "%-32s %d\n", "total", total)
			return nil
		},
	}

	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
