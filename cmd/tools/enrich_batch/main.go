// enrich_batch repeatedly triggers the enrichment stage via the admin API.
// Each round runs the whole dedup/enrichment core once over every pending
// RawEvent and every NeedsEnrichment UniqueEvent
// (coordinator.Config.EnrichmentConcurrency bounds parallelism, not how many
// events a round handles); events whose enrichment failed stay flagged and
// are retried by the next round.
// Grounded on the teacher's enrich_batch tool's multi-call/report loop,
// repointed at the single /run/enrich endpoint instead of a
// per-domain/per-opportunity call.
package main

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type roundResult struct {
	Round    int
	Status   string
	Duration time.Duration
	Error    string
}

func main() {
	var (
		baseURL     string
		adminSecret string
		rounds      int
		intervalSec int
	)

	cmd := &cobra.Command{
		Use:   "enrich_batch",
		Short: "Trigger the enrichment stage repeatedly to drain a backlog",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := strings.TrimSpace(adminSecret)
			if secret == "" {
				secret = strings.TrimSpace(os.Getenv("ADMIN_SECRET"))
			}
			if secret == "" {
				return fmt.Errorf("missing admin secret: use --admin-secret or ADMIN_SECRET env")
			}
			if rounds <= 0 {
				return fmt.Errorf("--rounds must be > 0")
			}

			client := &http.Client{Timeout: 120 * time.Second}
			results := make([]roundResult, 0, rounds)

			for i := 1; i <= rounds; i++ {
				start := time.Now()
				status, err := callEnrich(client, baseURL, secret)
				result := roundResult{Round: i, Status: status, Duration: time.Since(start)}
				if err != nil {
					result.Error = err.Error()
				}
				results = append(results, result)

				if i < rounds && intervalSec > 0 {
					time.Sleep(time.Duration(intervalSec) * time.Second)
				}
			}

			printReport(results)
			return nil
		},
	}

	cmd.Flags().StringVar(&baseURL, "base-url", "http://localhost:8081", "API base URL")
	cmd.Flags().StringVar(&adminSecret, "admin-secret", "", "admin secret (defaults to ADMIN_SECRET env)")
	cmd.Flags().IntVar(&rounds, "rounds", 5, "number of enrichment rounds to trigger")
	cmd.Flags().IntVar(&intervalSec, "interval-sec", 2, "seconds to wait between rounds")

	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func callEnrich(client *http.Client, baseURL, adminSecret string) (string, error) {
	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(baseURL, "/")+"/api/v1/admin/run/enrich", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("X-Admin-Secret", adminSecret)

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return resp.Status, fmt.Errorf("http %d", resp.StatusCode)
	}
	return resp.Status, nil
}

func printReport(results []roundResult) {
	fmt.Println("\n=== Enrichment Batch Report ===")
	fmt.Printf("%-6s %-12s %-10s %s\n", "round", "status", "sec", "error")
	errs := 0
	for _, r := range results {
		if r.Error != "" {
			errs++
		}
		fmt.Printf("%-6d %-12s %-10.2f %s\n", r.Round, r.Status, r.Duration.Seconds(), r.Error)
	}
	fmt.Printf("\nRounds: %d, errors: %d\n", len(results), errs)
}
