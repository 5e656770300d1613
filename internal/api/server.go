package api

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/mkessler/event-scout/internal/auth"
	"github.com/mkessler/event-scout/internal/db"
	"github.com/mkessler/event-scout/internal/ingest"
	"github.com/mkessler/event-scout/internal/models"
)

type Server struct {
	Store       *db.Store
	AuthService *auth.Service
	Echo        *echo.Echo
	DB          *pgxpool.Pool
	Pipeline    *ingest.Pipeline
	Registry    *ingest.Registry

	// Background job tracking
	jobMu      sync.Mutex
	runningJob *backgroundJob
}

type backgroundJob struct {
	ID        string             `json:"id"`
	Status    string             `json:"status"` // running, completed, failed
	StartedAt time.Time          `json:"started_at"`
	EndedAt   time.Time          `json:"ended_at,omitempty"`
	Result    any                `json:"result,omitempty"`
	Error     string             `json:"error,omitempty"`
	Cancel    context.CancelFunc `json:"-"`
}

var (
	adminSecretOnce    sync.Once
	adminSecretRuntime string
	adminSecretErr     error
)

func NewServer(pool *pgxpool.Pool, registry *ingest.Registry) *Server {
	e := echo.New()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	// CORS: allow frontend origins from env or default to localhost
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
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "X-Admin-Secret"},
	}))

	store := db.NewStore(pool)
	authService := auth.NewService(pool)
	pipeline := ingest.NewPipeline(nil, store, registry)

	s := &Server{
		DB:          pool,
		Store:       store,
		AuthService: authService,
		Echo:        e,
		Pipeline:    pipeline,
		Registry:    registry,
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.Echo.GET("/health", s.handleHealth)
	api := s.Echo.Group("/api/v1")
	api.GET("/events", s.handleListEvents)
	api.GET("/events/:id", s.handleGetEvent)
	api.GET("/sources", s.handleGetSources)
	api.GET("/stats", s.handleGetStats)

	// Admin Routes (approval queue & scrape control)
	admin := api.Group("")
	admin.Use(s.adminMiddleware)
	admin.GET("/admin/pending", s.handlePendingEvents)
	admin.POST("/admin/events/:id/approve", s.handleApproveEvent)
	admin.POST("/admin/events/:id/reject", s.handleRejectEvent)
	admin.POST("/admin/scrape", s.handleTriggerScrape)
	admin.POST("/admin/scrape/source/:id", s.handleScrapeSource)
	admin.POST("/admin/preview", s.handlePreviewURL)
	admin.GET("/admin/job/:id", s.handleJobStatus)
	admin.GET("/admin/runs", s.handleListRuns)

	// Auth Routes
	api.POST("/auth/signup", s.handleSignup)
	api.POST("/auth/login", s.handleLogin)

	// Protected Routes
	me := api.Group("/me")
	me.Use(auth.Middleware)
	me.GET("", s.handleMe)
}

func (s *Server) handleMe(c echo.Context) error {
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}
	user, err := s.AuthService.UserByID(c.Request().Context(), userID)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "User not found"})
	}
	return c.JSON(http.StatusOK, user)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

func (s *Server) handleSignup(c echo.Context) error {
	var req auth.SignupRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	resp, err := s.AuthService.Signup(c.Request().Context(), req)
	if err != nil {
		if err == auth.ErrUserExists {
			return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusCreated, resp)
}

func (s *Server) handleLogin(c echo.Context) error {
	var req auth.LoginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	resp, err := s.AuthService.Login(c.Request().Context(), req)
	if err != nil {
		if err == auth.ErrInvalidCreds {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid credentials"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleListEvents(c echo.Context) error {
	params := db.ListParams{
		Status:   c.QueryParam("status"),
		SourceID: c.QueryParam("source"),
		Category: c.QueryParam("category"),
	}
	if l, err := strconv.Atoi(c.QueryParam("limit")); err == nil && l > 0 && l <= 200 {
		params.Limit = l
	}
	if o, err := strconv.Atoi(c.QueryParam("offset")); err == nil && o >= 0 {
		params.Offset = o
	}
	if raw := c.QueryParam("from"); raw != "" {
		if t, err := time.Parse("2006-01-02", raw); err == nil {
			params.From = &t
		}
	}

	// The public listing only ever serves approved events; the wider
	// filters are reserved for admins.
	if !s.isAdminRequest(c) {
		params.Status = models.StatusApproved
	}

	events, err := s.Store.ListEvents(c.Request().Context(), params)
	if err != nil {
		c.Logger().Errorf("Failed to list events: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}
	if events == nil {
		events = []models.Event{}
	}
	return c.JSON(http.StatusOK, events)
}

func (s *Server) handleGetEvent(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid event ID"})
	}
	ev, err := s.Store.GetEvent(c.Request().Context(), id)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Not found"})
	}
	return c.JSON(http.StatusOK, ev)
}

func (s *Server) handleGetSources(c echo.Context) error {
	type sourceInfo struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Strategy string `json:"strategy"`
		Mode     string `json:"mode"`
		URLCount int    `json:"url_count"`
		Schedule string `json:"schedule,omitempty"`
	}

	out := make([]sourceInfo, 0, len(s.Registry.Sources))
	for _, src := range s.Registry.Sources {
		out = append(out, sourceInfo{
			ID:       src.ID,
			Name:     src.Name,
			Strategy: src.Strategy,
			Mode:     src.Mode,
			URLCount: len(src.URLs),
			Schedule: src.Schedule,
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleGetStats(c echo.Context) error {
	stats, err := s.Store.Stats(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, stats)
}

func (s *Server) handlePendingEvents(c echo.Context) error {
	limit := 0
	if l, err := strconv.Atoi(c.QueryParam("limit")); err == nil {
		limit = l
	}
	events, err := s.Store.PendingEvents(c.Request().Context(), limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if events == nil {
		events = []models.Event{}
	}
	return c.JSON(http.StatusOK, events)
}

func (s *Server) handleApproveEvent(c echo.Context) error {
	return s.decideEvent(c, models.StatusApproved)
}

func (s *Server) handleRejectEvent(c echo.Context) error {
	return s.decideEvent(c, models.StatusRejected)
}

func (s *Server) decideEvent(c echo.Context, status string) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid event ID"})
	}
	if err := s.Store.SetApproval(c.Request().Context(), id, status); err != nil {
		if err == db.ErrNotFound {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "No pending event with that ID"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"id": id.String(), "status": status})
}

// handleTriggerScrape starts a scrape of one source (?source=id) or all
// registered sources in a background goroutine and returns 202 with a
// job id to poll.
func (s *Server) handleTriggerScrape(c echo.Context) error {
	sourceID := strings.TrimSpace(c.QueryParam("source"))
	if sourceID != "" {
		if _, err := s.Registry.SourceByID(sourceID); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
	}

	s.jobMu.Lock()
	if s.runningJob != nil && s.runningJob.Status == "running" {
		job := s.runningJob
		s.jobMu.Unlock()
		return c.JSON(http.StatusConflict, map[string]interface{}{
			"error":  "A scrape job is already running",
			"job_id": job.ID,
		})
	}

	// context.WithoutCancel detaches from HTTP lifecycle but preserves
	// trace values. We add our own timeout for safety.
	jobCtx, jobCancel := context.WithTimeout(
		context.WithoutCancel(c.Request().Context()), 30*time.Minute,
	)

	jobID := uuid.New().String()[:8]
	job := &backgroundJob{
		ID:        jobID,
		Status:    "running",
		StartedAt: time.Now(),
		Cancel:    jobCancel,
	}
	s.runningJob = job
	s.jobMu.Unlock()

	go func() {
		defer jobCancel()

		var result any
		var err error
		if sourceID != "" {
			result, err = s.Pipeline.RunSource(jobCtx, sourceID)
		} else {
			result, err = s.Pipeline.RunAll(jobCtx)
		}

		s.jobMu.Lock()
		defer s.jobMu.Unlock()
		job.EndedAt = time.Now()
		if err != nil {
			job.Status = "failed"
			job.Error = err.Error()
			log.Printf("[scrape-job %s] failed: %v", jobID, err)
			return
		}
		job.Status = "completed"
		job.Result = result
		log.Printf("[scrape-job %s] completed", jobID)
	}()

	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"message": "Scrape job started",
		"job_id":  jobID,
		"poll":    fmt.Sprintf("/api/v1/admin/job/%s", jobID),
	})
}

// handleScrapeSource runs one source synchronously and returns its stats.
func (s *Server) handleScrapeSource(c echo.Context) error {
	sourceID := c.Param("id")
	stats, err := s.Pipeline.RunSource(c.Request().Context(), sourceID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": fmt.Sprintf("%s scrape complete", sourceID),
		"stats":   stats,
	})
}

// handlePreviewURL extracts and scores one page without persisting
// anything. Useful for vetting a new source before registering it.
func (s *Server) handlePreviewURL(c echo.Context) error {
	urlStr := c.QueryParam("url")
	if urlStr == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "url param required"})
	}

	u, err := url.Parse(urlStr)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid URL scheme"})
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "URL host is required"})
	}
	if host == "localhost" || host == "127.0.0.1" || host == "::1" || strings.HasSuffix(host, ".local") {
		return c.JSON(http.StatusForbidden, map[string]string{"error": "Internal network access forbidden"})
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Unable to resolve URL host"})
	}
	if len(ips) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "URL host resolved to no addresses"})
	}
	for _, ip := range ips {
		if isPrivateOrSpecialIP(ip) {
			return c.JSON(http.StatusForbidden, map[string]string{"error": "Internal network access forbidden"})
		}
	}

	mode := c.QueryParam("mode")
	if mode != ingest.ModeThorough {
		mode = ingest.ModeFast
	}

	events, err := s.Pipeline.RunURL(c.Request().Context(), urlStr, mode)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"url":    urlStr,
		"count":  len(events),
		"events": events,
	})
}

func (s *Server) handleJobStatus(c echo.Context) error {
	queried := c.Param("id")
	s.jobMu.Lock()
	job := s.runningJob
	s.jobMu.Unlock()

	if job == nil || job.ID != queried {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "job not found"})
	}

	s.jobMu.Lock()
	resp := map[string]interface{}{
		"id":         job.ID,
		"status":     job.Status,
		"started_at": job.StartedAt,
	}
	if !job.EndedAt.IsZero() {
		resp["ended_at"] = job.EndedAt
		resp["duration"] = job.EndedAt.Sub(job.StartedAt).String()
	}
	if job.Result != nil {
		resp["result"] = job.Result
	}
	if job.Error != "" {
		resp["error"] = job.Error
	}
	s.jobMu.Unlock()

	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleListRuns(c echo.Context) error {
	limit := 0
	if l, err := strconv.Atoi(c.QueryParam("limit")); err == nil {
		limit = l
	}
	runs, err := s.Store.ListRuns(c.Request().Context(), c.QueryParam("source"), limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if runs == nil {
		runs = []models.ScrapeRun{}
	}
	return c.JSON(http.StatusOK, runs)
}

func (s *Server) Start(port string) error {
	return s.Echo.Start(":" + port)
}

func isPrivateOrSpecialIP(ip net.IP) bool {
	if ip == nil {
		return true
	}
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() || ip.IsMulticast() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}

	if ip4 := ip.To4(); ip4 != nil {
		if ip4[0] == 100 && ip4[1]&0xC0 == 64 {
			return true
		}
		if ip4[0] == 169 && ip4[1] == 254 {
			return true
		}
	}

	return false
}

func (s *Server) adminMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.isAdminRequest(c) {
			return next(c)
		}
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized admin access"})
	}
}

// isAdminRequest checks the X-Admin-Secret header or a Bearer token
// against the configured admin secret.
func (s *Server) isAdminRequest(c echo.Context) bool {
	secret, err := adminSecret()
	if err != nil {
		return false
	}

	authHeader := c.Request().Header.Get("Authorization")
	adminHeader := c.Request().Header.Get("X-Admin-Secret")

	if adminHeader == secret {
		return true
	}
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		if authHeader[7:] == secret {
			return true
		}
	}
	return false
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
