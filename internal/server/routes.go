package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/emberwell/vault/internal/query"
	"github.com/emberwell/vault/internal/record"
	"github.com/emberwell/vault/internal/snapshot"
	"github.com/emberwell/vault/internal/store"
)

type appendRequest struct {
	Category string        `json:"category"`
	Domain   string        `json:"domain"`
	Record   record.Record `json:"record"`
}

func (s *Server) handleAppend(w http.ResponseWriter, r *http.Request) {
	var req appendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Category == "" || req.Domain == "" {
		writeError(w, http.StatusBadRequest, "category and domain required")
		return
	}

	id, err := s.store.Append(r.Context(), req.Category, req.Domain, req.Record)
	switch {
	case err == nil:
	case errors.Is(err, record.ErrInvalidKind),
		errors.Is(err, record.ErrInvalidDomain),
		errors.Is(err, record.ErrInvalidIntensity),
		errors.Is(err, record.ErrMissingField):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, store.ErrLockTimeout):
		// Retriable: the writer lost the race for the file lock.
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// parseFilter maps URL query parameters onto a query.Filter. A well-formed
// request never fails; junk numeric values degrade to their zero values.
func (s *Server) parseFilter(r *http.Request) query.Filter {
	q := r.URL.Query()
	f := query.Filter{
		Domain:  q.Get("domain"),
		Session: q.Get("session"),
		Keyword: q.Get("keyword"),
	}
	if cat := q.Get("category"); cat != "" {
		if canonical, err := s.cfg.ResolveCategory(cat); err == nil {
			f.Category = canonical
		} else {
			f.Category = cat // unknown category matches nothing, which is a valid answer
		}
	}
	if v := q.Get("min_intensity"); v != "" {
		if min, err := strconv.ParseFloat(v, 64); err == nil {
			f.MinIntensity = min
		}
	}
	for _, k := range q["kind"] {
		f.Kinds = append(f.Kinds, record.Kind(k))
	}
	if v := q.Get("since"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.Since = t
		}
	}
	if v := q.Get("until"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.Until = t
		}
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			f.Limit = n
		}
	}
	if q.Get("order") == "asc" {
		f.Ascending = true
	}
	return f
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	recs, err := s.engine.Query(r.Context(), s.parseFilter(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if recs == nil {
		recs = []record.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"records": recs,
		"count":   len(recs),
	})
}

func (s *Server) handleAncestors(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "recordID")

	recs, err := s.engine.Ancestors(r.Context(), id)
	if err != nil {
		var cycle *query.CycleError
		switch {
		case errors.As(err, &cycle):
			writeJSON(w, http.StatusConflict, map[string]any{
				"error": "cycle detected",
				"cycle": cycle.IDs,
			})
		case errors.Is(err, query.ErrNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	if recs == nil {
		recs = []record.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":        id,
		"ancestors": recs,
	})
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.RebuildCache(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleSnapshotCreate(w http.ResponseWriter, r *http.Request) {
	sum, err := snapshot.Materialize(r.Context(), s.engine.Scanner(), s.cfg.SnapshotPath())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, sum)
}

func (s *Server) handleSnapshotGet(w http.ResponseWriter, r *http.Request) {
	sum, err := snapshot.Load(s.cfg.SnapshotPath())
	if err != nil {
		writeError(w, http.StatusNotFound, "no snapshot; POST /api/snapshot to create one")
		return
	}
	writeJSON(w, http.StatusOK, sum)
}
