package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/promptsense/promptsense/internal/eval"
	"github.com/promptsense/promptsense/internal/models"
	"github.com/promptsense/promptsense/internal/report"
	"github.com/promptsense/promptsense/internal/store"
	"github.com/promptsense/promptsense/internal/ui"
)

// Server provides the read-only REST API over stored datasets and runs.
type Server struct {
	store   store.Store
	version string
}

// NewServer creates a new API server.
func NewServer(s store.Store, version string) *Server {
	return &Server{store: s, version: version}
}

// Router returns an http.Handler for the API routes and the dashboard.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/datasets", s.listDatasets)
	mux.HandleFunc("GET /api/v1/datasets/{id}", s.getDataset)
	mux.HandleFunc("GET /api/v1/datasets/{id}/reviews", s.listDatasetReviews)

	mux.HandleFunc("GET /api/v1/runs", s.listRuns)
	mux.HandleFunc("GET /api/v1/runs/{id}", s.getRun)
	mux.HandleFunc("GET /api/v1/runs/{id}/results", s.listRunResults)
	mux.HandleFunc("GET /api/v1/runs/{id}/metrics", s.runMetrics)

	mux.HandleFunc("GET /runs/{id}/report", s.runReport)
	mux.HandleFunc("GET /{$}", s.index)

	return logMiddleware(corsMiddleware(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		if sw.status >= http.StatusInternalServerError {
			slog.Warn("request failed", "method", r.Method, "path", r.URL.Path, "status", sw.status)
		}
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// findDataset resolves a dataset by ID, falling back to name so URLs
// stay readable.
func (s *Server) findDataset(ctx context.Context, ref string) (*models.Dataset, error) {
	d, err := s.store.GetDataset(ctx, ref)
	if err == nil {
		return d, nil
	}
	return s.store.GetDatasetByName(ctx, ref)
}

// findRun resolves a run by ID, falling back to name.
func (s *Server) findRun(ctx context.Context, ref string) (*models.Run, error) {
	r, err := s.store.GetRun(ctx, ref)
	if err == nil {
		return r, nil
	}
	return s.store.GetRunByName(ctx, ref)
}

// --- Datasets ---

func (s *Server) listDatasets(w http.ResponseWriter, r *http.Request) {
	datasets, err := s.store.ListDatasets(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if datasets == nil {
		datasets = []*models.Dataset{}
	}
	writeJSON(w, http.StatusOK, datasets)
}

func (s *Server) getDataset(w http.ResponseWriter, r *http.Request) {
	dataset, err := s.findDataset(r.Context(), r.PathValue("id"))
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, dataset)
}

func (s *Server) listDatasetReviews(w http.ResponseWriter, r *http.Request) {
	dataset, err := s.findDataset(r.Context(), r.PathValue("id"))
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
	}

	reviews, err := s.store.ListReviews(r.Context(), dataset.ID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if reviews == nil {
		reviews = []*models.Review{}
	}
	writeJSON(w, http.StatusOK, reviews)
}

// --- Runs ---

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	datasetID := r.URL.Query().Get("dataset_id")
	runs, err := s.store.ListRuns(r.Context(), datasetID, 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []*models.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.findRun(r.Context(), r.PathValue("id"))
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) listRunResults(w http.ResponseWriter, r *http.Request) {
	run, err := s.findRun(r.Context(), r.PathValue("id"))
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	filter := store.ResultFilter{
		RunID:    run.ID,
		Style:    r.URL.Query().Get("style"),
		Provider: r.URL.Query().Get("provider"),
	}
	if v := r.URL.Query().Get("task"); v != "" {
		task, err := models.ParseTask(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Task = task
	}

	results, err := s.store.ListResults(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if results == nil {
		results = []*models.Result{}
	}
	writeJSON(w, http.StatusOK, results)
}

// runMetrics evaluates the run's stored results on the fly, so metrics
// are available as soon as a run finishes.
func (s *Server) runMetrics(w http.ResponseWriter, r *http.Request) {
	run, err := s.findRun(r.Context(), r.PathValue("id"))
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	results, err := s.store.ListResults(r.Context(), store.ResultFilter{RunID: run.ID})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, eval.Evaluate(run, results))
}

// --- Report ---

func (s *Server) runReport(w http.ResponseWriter, r *http.Request) {
	run, err := s.findRun(r.Context(), r.PathValue("id"))
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	dataset, err := s.store.GetDataset(r.Context(), run.DatasetID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	results, err := s.store.ListResults(r.Context(), store.ResultFilter{RunID: run.ID})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	data := &report.Data{Run: run, Dataset: dataset, Summary: eval.Evaluate(run, results)}

	// Render to a buffer first so a chart error can still become a 500.
	var buf bytes.Buffer
	if err := report.HTML(&buf, data); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

// --- Dashboard ---

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	datasets, err := s.store.ListDatasets(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	runs, err := s.store.ListRuns(r.Context(), "", 20)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	names := make(map[string]string, len(datasets))
	for _, d := range datasets {
		names[d.ID] = d.Name
	}

	var buf bytes.Buffer
	err = ui.RenderIndex(&buf, ui.IndexData{
		Version:      s.version,
		Datasets:     datasets,
		Runs:         runs,
		DatasetNames: names,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}
