// Package server exposes the ingestion engine over a small REST API: job
// control for operators plus tenant-scoped feed and entry access.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/go-pkgz/rest"
	"github.com/go-pkgz/rest/logger"
	"github.com/go-pkgz/routegroup"

	"github.com/feedsmith/feedsmith/pkg/domain"
)

// Server represents HTTP server instance
type Server struct {
	config  ConfigProvider
	store   Store
	jobs    JobRunner
	sweeper Sweeper
	version string
	debug   bool

	lock       sync.Mutex
	httpServer *http.Server
	router     *routegroup.Bundle
}

// Store is the persistence surface the API reads and mutates
type Store interface {
	GetFeeds(ctx context.Context, userID int64) ([]*domain.Feed, error)
	GetFeed(ctx context.Context, userID, feedID int64) (*domain.Feed, error)
	GetEntries(ctx context.Context, userID, feedID int64, limit, offset int) ([]*domain.Entry, error)
	MarkRead(ctx context.Context, userID, entryID int64, read bool) error
	MarkStarred(ctx context.Context, userID, entryID int64, starred bool) error
}

// JobRunner controls the recurring jobs
type JobRunner interface {
	ListJobs(ctx context.Context) ([]*domain.Job, error)
	Run(ctx context.Context, name string) error
	SetPaused(ctx context.Context, name string, paused bool) error
}

// Sweeper triggers on-demand synchronization of a single feed
type Sweeper interface {
	RefreshFeed(ctx context.Context, userID, feedID int64) error
	RefreshIcon(ctx context.Context, userID, feedID int64) error
}

// ConfigProvider provides server configuration
type ConfigProvider interface {
	GetServerConfig() (listen string, timeout time.Duration)
}

// New initializes a new server instance
func New(cfg ConfigProvider, store Store, jobs JobRunner, sweeper Sweeper, version string, debug bool) *Server {
	s := &Server{
		config:  cfg,
		store:   store,
		jobs:    jobs,
		sweeper: sweeper,
		version: version,
		debug:   debug,
		router:  routegroup.New(http.NewServeMux()),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Run starts the HTTP server and handles graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	listen, timeout := s.config.GetServerConfig()
	lgr.Printf("[INFO] starting server on %s", listen)

	s.lock.Lock()
	s.httpServer = &http.Server{
		Addr:         listen,
		Handler:      s.router,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}
	s.lock.Unlock()

	go func() {
		<-ctx.Done()
		lgr.Printf("[INFO] shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			lgr.Printf("[WARN] server shutdown error: %v", err)
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server error: %w", err)
	}

	return nil
}

// setupMiddleware configures standard middleware for the server
func (s *Server) setupMiddleware() {
	s.router.Use(rest.AppInfo("feedsmith", "feedsmith", s.version))
	s.router.Use(rest.Ping)

	if s.debug {
		s.router.Use(logger.New(logger.Log(lgr.Default()), logger.Prefix("[DEBUG]")).Handler)
	}

	s.router.Use(rest.Recoverer(lgr.Default()))
	s.router.Use(rest.Throttle(100))
	s.router.Use(rest.SizeLimit(1024 * 1024)) // 1MB
}

// setupRoutes configures application routes
func (s *Server) setupRoutes() {
	s.router.Mount("/api/v1").Route(func(r *routegroup.Bundle) {
		r.HandleFunc("GET /status", s.statusHandler)

		r.HandleFunc("GET /jobs", s.listJobsHandler)
		r.HandleFunc("POST /jobs/{name}/run", s.runJobHandler)
		r.HandleFunc("POST /jobs/{name}/pause", s.pauseJobHandler)
		r.HandleFunc("POST /jobs/{name}/resume", s.resumeJobHandler)

		r.HandleFunc("GET /users/{uid}/feeds", s.listFeedsHandler)
		r.HandleFunc("GET /users/{uid}/feeds/{id}", s.getFeedHandler)
		r.HandleFunc("POST /users/{uid}/feeds/{id}/refresh", s.refreshFeedHandler)
		r.HandleFunc("POST /users/{uid}/feeds/{id}/refresh-icon", s.refreshIconHandler)
		r.HandleFunc("GET /users/{uid}/feeds/{id}/entries", s.listEntriesHandler)
		r.HandleFunc("POST /users/{uid}/entries/{id}/read", s.markReadHandler)
		r.HandleFunc("POST /users/{uid}/entries/{id}/star", s.markStarredHandler)
	})
}

// statusHandler returns server status
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":  "ok",
		"version": s.version,
		"time":    time.Now().UTC(),
	}
	RenderJSON(w, r, http.StatusOK, status)
}

// RenderJSON sends JSON response
func RenderJSON(w http.ResponseWriter, _ *http.Request, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			lgr.Printf("[ERROR] can't encode response to JSON: %v", err)
		}
	}
}

// renderError maps domain errors to HTTP status codes
func renderError(w http.ResponseWriter, r *http.Request, err error) {
	code := http.StatusInternalServerError
	if errors.Is(err, domain.ErrNotFound) {
		code = http.StatusNotFound
	}
	RenderJSON(w, r, code, map[string]string{"error": err.Error()})
}
