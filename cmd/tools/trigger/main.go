// trigger calls the server's admin-gated manual stage-trigger endpoints
// (internal/api/server.go's /api/v1/admin/run/*), for kicking off a stage
// out-of-band without waiting for the hourly cron. Grounded on the
// teacher's single-endpoint trigger tool, generalized into one subcommand
// per pipeline stage plus a job-status check.
package main

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func main() {
	var baseURL, adminSecret string

	root := &cobra.Command{
		Use:   "trigger",
		Short: "Manually trigger a pipeline stage via the admin API",
	}
	root.PersistentFlags().StringVar(&baseURL, "base-url", "http://localhost:8081", "API base URL")
	root.PersistentFlags().StringVar(&adminSecret, "admin-secret", "", "admin secret (defaults to ADMIN_SECRET env)")

	stage := func(name, path string) *cobra.Command {
		return &cobra.Command{
			Use:   name,
			Short: fmt.Sprintf("Trigger the %s stage", name),
			RunE: func(cmd *cobra.Command, args []string) error {
				return callAdmin(baseURL, resolveSecret(adminSecret), path)
			},
		}
	}

	root.AddCommand(
		stage("feed-fetch", "/api/v1/admin/run/feed-fetch"),
		stage("classify", "/api/v1/admin/run/classify"),
		stage("download", "/api/v1/admin/run/download"),
		stage("extract", "/api/v1/admin/run/extract"),
		stage("enrich", "/api/v1/admin/run/enrich"),
		stage("all", "/api/v1/admin/run/all"),
		&cobra.Command{
			Use:   "job",
			Short: "Check the status of the last /run/all trigger",
			RunE: func(cmd *cobra.Command, args []string) error {
				return getAdmin(baseURL, resolveSecret(adminSecret), "/api/v1/admin/job")
			},
		},
	)

	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}

func resolveSecret(flagValue string) string {
	if strings.TrimSpace(flagValue) != "" {
		return flagValue
	}
	return strings.TrimSpace(os.Getenv("ADMIN_SECRET"))
}

func callAdmin(baseURL, adminSecret, path string) error {
	return doRequest(http.MethodPost, baseURL, adminSecret, path)
}

func getAdmin(baseURL, adminSecret, path string) error {
	return doRequest(http.MethodGet, baseURL, adminSecret, path)
}

func doRequest(method, baseURL, adminSecret, path string) error {
	if adminSecret == "" {
		return fmt.Errorf("missing admin secret: use --admin-secret or ADMIN_SECRET env")
	}

	req, err := http.NewRequest(method, strings.TrimRight(baseURL, "/")+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Admin-Secret", adminSecret)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	fmt.Printf("%s %s -> %s\n%s\n", method, path, resp.Status, body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("request failed: %s", resp.Status)
	}
	return nil
}
