// Package api implements the read API and admin-gated manual pipeline
// triggers. Grounded on the teacher's internal/api/server.go: Echo server
// setup, CORS-from-env, admin-secret middleware with constant compare via
// header/bearer, and the background-job tracking idiom for long-running
// manual triggers -- adapted field-for-field from the grant/Opportunity
// domain to the UniqueEvent/incident domain. Web dashboards are out of
// scope per spec.md §1's Non-goals; this is a JSON API only.
package api

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/arquivodaviolencia/incident-pipeline/internal/coordinator"
	"github.com/arquivodaviolencia/incident-pipeline/internal/db"
)

type Server struct {
	Store       *db.Store
	Echo        *echo.Echo
	DB          *pgxpool.Pool
	Coordinator *coordinator.Coordinator

	jobMu      sync.Mutex
	runningJob *backgroundJob
}

type backgroundJob struct {
	ID        string             `json:"id"`
	Status    string             `json:"status"` // running, completed
	StartedAt time.Time          `json:"started_at"`
	EndedAt   time.Time          `json:"ended_at,omitempty"`
	Error     string             `json:"error,omitempty"`
	Cancel    context.CancelFunc `json:"-"`
}

var (
	adminSecretOnce    sync.Once
	adminSecretRuntime string
	adminSecretErr     error
)

func NewServer(pool *pgxpool.Pool, co *coordinator.Coordinator) *Server {
	e := echo.New()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	allowedOrigins := []string{"http://localhost:4200"}
	if extra := os.Getenv("CORS_ORIGINS"); extra != "" {
		for _, o := range strings.Split(extra, ",") {
			o = strings.TrimSpace(o)
			if o != "" {
				allowedOrigins = append(allowedOrigins, o)
			}
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: allowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "X-Admin-Secret"},
	}))

	s := &Server{
		DB:          pool,
		Store:       db.NewStore(pool),
		Echo:        e,
		Coordinator: co,
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.Echo.GET("/health", s.handleHealth)

	api := s.Echo.Group("/api/v1")
	api.GET("/incidents", s.handleListIncidents)
	api.GET("/incidents/:id", s.handleGetIncident)
	api.GET("/sources", s.handleListSources)
	api.GET("/stats", s.handleGetStats)

	admin := api.Group("/admin")
	admin.Use(s.adminMiddleware)
	admin.POST("/run/feed-fetch", s.handleRunFeedFetch)
	admin.POST("/run/classify", s.handleRunClassify)
	admin.POST("/run/download", s.handleRunDownload)
	admin.POST("/run/extract", s.handleRunExtract)
	admin.POST("/run/enrich", s.handleRunEnrich)
	admin.POST("/run/all", s.handleRunAll)
	admin.GET("/job", s.handleJobStatus)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

func (s *Server) handleListIncidents(c echo.Context) error {
	params := db.ListParams{
		City:         c.QueryParam("city"),
		Neighborhood: c.QueryParam("neighborhood"),
		HomicideType: c.QueryParam("homicide_type"),
	}
	if l, err := strconv.Atoi(c.QueryParam("limit")); err == nil && l > 0 {
		params.Limit = l
	}
	if o, err := strconv.Atoi(c.QueryParam("offset")); err == nil && o >= 0 {
		params.Offset = o
	}
	if from, err := time.Parse("2006-01-02", c.QueryParam("from")); err == nil {
		params.FromDate = &from
	}
	if to, err := time.Parse("2006-01-02", c.QueryParam("to")); err == nil {
		params.ToDate = &to
	}

	result, err := s.Store.ListUniqueEvents(c.Request().Context(), params)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleGetIncident(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
	}
	event, err := s.Store.GetUniqueEvent(c.Request().Context(), id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if event == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
	}
	return c.JSON(http.StatusOK, event)
}

func (s *Server) handleListSources(c echo.Context) error {
	limit := 50
	offset := 0
	if l, err := strconv.Atoi(c.QueryParam("limit")); err == nil && l > 0 {
		limit = l
	}
	if o, err := strconv.Atoi(c.QueryParam("offset")); err == nil && o >= 0 {
		offset = o
	}
	sources, err := s.Store.ListSources(c.Request().Context(), limit, offset)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, sources)
}

func (s *Server) handleGetStats(c echo.Context) error {
	stats, err := s.Store.GetStats(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, stats)
}

func (s *Server) handleRunFeedFetch(c echo.Context) error {
	return s.runSync(c, func(ctx context.Context) error { return s.Coordinator.RunFeedFetch(ctx) })
}

func (s *Server) handleRunClassify(c echo.Context) error {
	return s.runSync(c, func(ctx context.Context) error { return s.Coordinator.RunClassifierStage(ctx) })
}

func (s *Server) handleRunDownload(c echo.Context) error {
	return s.runSync(c, func(ctx context.Context) error { return s.Coordinator.RunDownloaderStage(ctx) })
}

func (s *Server) handleRunExtract(c echo.Context) error {
	return s.runSync(c, func(ctx context.Context) error { return s.Coordinator.RunExtractorStage(ctx) })
}

func (s *Server) handleRunEnrich(c echo.Context) error {
	return s.runSync(c, func(ctx context.Context) error { return s.Coordinator.RunEnrichment(ctx) })
}

// handleRunAll kicks off the composite trigger in the background and
// returns immediately, since a full run (feed fetch through enrichment) can
// take longer than an HTTP client wants to wait; progress is polled via
// /admin/job.
func (s *Server) handleRunAll(c echo.Context) error {
	s.jobMu.Lock()
	if s.runningJob != nil && s.runningJob.Status == "running" {
		s.jobMu.Unlock()
		return c.JSON(http.StatusConflict, map[string]string{"error": "a run is already in progress"})
	}
	ctx, cancel := context.WithCancel(context.Background())
	job := &backgroundJob{ID: fmt.Sprintf("run-%d", time.Now().UnixNano()), Status: "running", StartedAt: time.Now(), Cancel: cancel}
	s.runningJob = job
	s.jobMu.Unlock()

	go func() {
		s.Coordinator.RunAll(ctx)
		s.jobMu.Lock()
		job.Status = "completed"
		job.EndedAt = time.Now()
		s.jobMu.Unlock()
	}()

	return c.JSON(http.StatusAccepted, job)
}

func (s *Server) handleJobStatus(c echo.Context) error {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	if s.runningJob == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "no job has run yet"})
	}
	return c.JSON(http.StatusOK, s.runningJob)
}

// runSync runs fn synchronously and reports its error as a 500, for the
// individual-stage triggers -- each stage's own claim batch size keeps a
// single round bounded, unlike the composite RunAll trigger.
func (s *Server) runSync(c echo.Context, fn func(ctx context.Context) error) error {
	if err := fn(c.Request().Context()); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) Start(port string) error {
	return s.Echo.Start(":" + port)
}

func (s *Server) adminMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		secret, err := adminSecret()
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "server admin configuration error"})
		}

		authHeader := c.Request().Header.Get("Authorization")
		adminHeader := c.Request().Header.Get("X-Admin-Secret")

		if subtle.ConstantTimeCompare([]byte(adminHeader), []byte(secret)) == 1 {
			return next(c)
		}
		if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") && subtle.ConstantTimeCompare([]byte(authHeader[7:]), []byte(secret)) == 1 {
			return next(c)
		}
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unauthorized admin access"})
	}
}

func adminSecret() (string, error) {
	adminSecretOnce.Do(func() {
		secret := strings.TrimSpace(os.Getenv("ADMIN_SECRET"))
		if secret != "" {
			adminSecretRuntime = secret
			return
		}

		buf := make([]byte, 48)
		if _, err := rand.Read(buf); err != nil {
			adminSecretErr = fmt.Errorf("failed to generate ADMIN_SECRET fallback: %w", err)
			return
		}

		adminSecretRuntime = base64.RawURLEncoding.EncodeToString(buf)
		log.Print("ADMIN_SECRET is not set; using ephemeral in-memory fallback secret")
	})

	if adminSecretErr != nil {
		return "", adminSecretErr
	}
	if adminSecretRuntime == "" {
		return "", fmt.Errorf("admin secret unavailable")
	}
	return adminSecretRuntime, nil
}
