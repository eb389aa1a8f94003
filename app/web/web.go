// Package web implements the status API for tunetrack
package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/didip/tollbooth/v8"
	"github.com/didip/tollbooth/v8/limiter"
	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/rest"
	"github.com/go-pkgz/rest/logger"
	"github.com/go-pkgz/routegroup"

	"github.com/jacvision/tunetrack/app/finetune"
	"github.com/jacvision/tunetrack/app/tracker"
)

//go:generate moq -out mocks/tracker.go -pkg mocks -skip-ensure -fmt goimports . Tracker
//go:generate moq -out mocks/history.go -pkg mocks -skip-ensure -fmt goimports . History

// Tracker is the active job tracker
type Tracker interface {
	Submit(ctx context.Context, req finetune.Request) (finetune.Job, error)
	State() tracker.State
}

// History gives access to recorded jobs and snapshots
type History interface {
	LoadJobs(limit int) ([]finetune.Job, error)
	GetJob(taskID string) (finetune.Job, error)
	GetSnapshots(taskID string, limit int) ([]finetune.Snapshot, error)
}

// Server represents the status API server
type Server struct {
	tracker      Tracker
	history      History
	metrics      http.Handler
	version      string
	passwordHash string
	submitLimit  float64
}

// Config holds server configuration
type Config struct {
	Tracker      Tracker
	History      History      // optional, history endpoints disabled if nil
	Metrics      http.Handler // optional, served on /metrics
	Version      string
	PasswordHash string  // bcrypt hash for basic auth on submit (empty to disable)
	SubmitLimit  float64 // max submit requests per second per client, 0 - default of 1
}

// New makes status API server
func New(cfg Config) (*Server, error) {
	if cfg.Tracker == nil {
		return nil, fmt.Errorf("web server initialization failed: tracker is required")
	}
	if cfg.SubmitLimit <= 0 {
		cfg.SubmitLimit = 1
	}
	return &Server{
		tracker:      cfg.Tracker,
		history:      cfg.History,
		metrics:      cfg.Metrics,
		version:      cfg.Version,
		passwordHash: cfg.PasswordHash,
		submitLimit:  cfg.SubmitLimit,
	}, nil
}

// Run starts the web server and blocks until ctx is canceled
func (s *Server) Run(ctx context.Context, address string) error {
	server := &http.Server{
		Addr:              address,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("[WARN] failed to shutdown server: %v", err)
		}
	}()

	log.Printf("[INFO] starting web server on %s", address)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("web server failed: %w", err)
	}
	return nil
}

// routes returns the http.Handler with all routes configured
func (s *Server) routes() http.Handler {
	router := routegroup.New(http.NewServeMux())

	router.Use(
		rest.RealIP,
		rest.Recoverer(log.Default()),
		rest.Throttle(1000),
		rest.AppInfo("tunetrack", "jacvision", s.version),
		rest.Ping,
		rest.Trace,
		rest.SizeLimit(64*1024),
		logger.New(logger.Log(log.Default()), logger.Prefix("[DEBUG]")).Handler,
	)

	submitLimiter := tollbooth.NewLimiter(s.submitLimit, nil)
	submitLimiter.SetIPLookup(limiter.IPLookup{Name: "RemoteAddr"})
	submitLimiter.SetMessage(`{"error":"too many requests"}`)
	submitLimiter.SetMessageContentType("application/json")

	router.Mount("/api/v1").Route(func(api *routegroup.Bundle) {
		api.Use(rest.NoCache)
		api.HandleFunc("GET /job", s.handleCurrentJob)
		api.With(s.authMiddleware, tollbooth.HTTPMiddleware(submitLimiter)).HandleFunc("POST /jobs", s.handleSubmit)
		api.HandleFunc("GET /jobs/{id}/table", s.handleTable)
		if s.history != nil {
			api.HandleFunc("GET /jobs", s.handleJobs)
			api.HandleFunc("GET /jobs/{id}/snapshots", s.handleSnapshots)
		}
	})

	if s.metrics != nil {
		router.Handle("GET /metrics", s.metrics)
	}
	return router
}
