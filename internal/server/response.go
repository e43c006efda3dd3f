package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/procurepro/tbe/internal/metrics"
	apperrors "github.com/procurepro/tbe/internal/pkg/errors"
	"github.com/procurepro/tbe/internal/report"
)

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status        string  `json:"status"`
	Version       string  `json:"version"`
	Cache         string  `json:"cache"`
	StoredRecords int     `json:"stored_records"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// VersionResponse is the body of GET /version.
type VersionResponse struct {
	Version string `json:"version"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:        "ok",
		Version:       s.cfg.Version,
		Cache:         s.cache.Stats().Type,
		StoredRecords: s.store.Count(),
		UptimeSeconds: s.metrics.UptimeSeconds(),
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{Version: s.cfg.Version})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, metrics.NewCollector(s.metrics, s.store, s.cache).Collect())
}

// handleExport streams the comparison workbook of a stored run.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	out, err := s.eval.Outcome(r.Context(), id)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}

	// Render fully before writing headers so a failure can still be reported.
	var buf bytes.Buffer
	if err := report.WriteXLSX(&buf, out); err != nil {
		apperrors.WriteError(w, apperrors.InternalError("failed to render workbook", err))
		return
	}

	w.Header().Set("Content-Type", report.ContentTypeXLSX)
	w.Header().Set("Content-Disposition", `attachment; filename="evaluation-`+id+`.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// handleReport serves the executive summary as JSON, or as plain text with
// ?format=text.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	out, err := s.eval.Outcome(r.Context(), r.PathValue("id"))
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}

	exec := report.NewExecutive(out)
	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(exec.Text()))
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

// CORSMiddleware sets CORS headers for origins and answers preflight
// requests.
func CORSMiddleware(origins string, next http.Handler) http.Handler {
	maxAge := strconv.Itoa(int((12 * time.Hour).Seconds()))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", origins)
		h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
		h.Set("Access-Control-Expose-Headers", "X-Request-ID")
		h.Set("Access-Control-Max-Age", maxAge)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
