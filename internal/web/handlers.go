package web

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/labimport/internal/core"
	"github.com/JonMunkholm/labimport/internal/logging"
)

const healthTimeout = 3 * time.Second

// handleHealth reports whether the result database is reachable and which
// sources are importing.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	if err := s.db.Ping(ctx); err != nil {
		s.respondError(w, r, err, http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, HealthResponse{Status: "ok", Running: s.importer.Running()})
}

// handleImportAll runs every enabled source and answers with the literal
// run result.
func (s *Server) handleImportAll(w http.ResponseWriter, r *http.Request) {
	ctx := importContext(r)
	logging.FromContext(ctx).Info("manual import requested", "source", "all")

	writeRunResult(w, s.importer.ImportAll(ctx))
}

// handleImportSource runs one source.
func (s *Server) handleImportSource(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")
	ctx := importContext(r)
	logging.FromContext(ctx).Info("manual import requested", "source", source)

	result, err := s.importer.Import(ctx, source)
	if errors.Is(err, core.ErrUnknownSource) {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}
	writeRunResult(w, result)
}

// HealthResponse is the body of GET /healthz. Running lists the sources
// with a run in progress.
type HealthResponse struct {
	Status  string   `json:"status"`
	Running []string `json:"running"`
}

// RunsResponse is the body of GET /api/labresults/runs.
type RunsResponse struct {
	Runs []core.RunEntry `json:"runs"`
}

// handleRuns lists recent runs, optionally filtered by ?source= and capped
// by ?limit= (default 20).
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	source := r.URL.Query().Get("source")
	if source != "" && source != core.SourceHL7 && source != core.SourceCSV {
		s.respondError(w, r, core.ErrUnknownSource, http.StatusNotFound)
		return
	}
	limit := parseIntParam(r, "limit", 20)

	writeJSON(w, RunsResponse{Runs: s.history.Recent(source, limit)})
}

// parseIntParam parses a positive integer query parameter with a default.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}

// writeRunResult writes "success" or "error" as plain text. A failed run is
// reported with 500 so callers need not parse the body.
func writeRunResult(w http.ResponseWriter, result core.RunResult) {
	status := http.StatusOK
	if result != core.RunSuccess {
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(result))
}
