// Package server exposes the vault operations over HTTP. This is the
// boundary the surrounding protocol layer consumes; everything behind it
// lives in store, index, and query.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/emberwell/vault/internal/config"
	"github.com/emberwell/vault/internal/query"
	"github.com/emberwell/vault/internal/store"
)

// Server is the vault HTTP API server.
type Server struct {
	cfg     *config.Config
	store   *store.Store
	engine  *query.Engine
	router  chi.Router
	version string
	started time.Time
}

// New creates a Server over the given store and query engine.
func New(cfg *config.Config, st *store.Store, eng *query.Engine, version string) *Server {
	s := &Server{
		cfg:     cfg,
		store:   st,
		engine:  eng,
		version: version,
		started: time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Post("/records", s.handleAppend)
		r.Get("/records", s.handleQuery)
		r.Get("/records/{recordID}/ancestors", s.handleAncestors)

		r.Post("/cache/rebuild", s.handleRebuild)

		r.Post("/snapshot", s.handleSnapshotCreate)
		r.Get("/snapshot", s.handleSnapshotGet)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"root":    s.cfg.Vault.Root,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
