package evaluation

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/procurepro/tbe/internal/bid"
	"github.com/procurepro/tbe/internal/compliance"
	apperrors "github.com/procurepro/tbe/internal/pkg/errors"
	"github.com/procurepro/tbe/internal/store"
)

const (
	// MaxBodyBytes bounds request bodies.
	MaxBodyBytes = 8 << 20

	// MaxBatchSize bounds the requests of one batch call.
	MaxBatchSize = 100
)

// Handler provides HTTP handlers for evaluations.
type Handler struct {
	svc *Service
}

// NewHandler creates a new evaluation handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers evaluation routes.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/evaluations", h.handleEvaluate)
	mux.HandleFunc("POST /v1/evaluations/batch", h.handleBatch)
	mux.HandleFunc("POST /v1/evaluations/preview", h.handlePreview)
	mux.HandleFunc("GET /v1/evaluations", h.handleList)
	mux.HandleFunc("GET /v1/evaluations/{id}", h.handleGet)
	mux.HandleFunc("DELETE /v1/evaluations/{id}", h.handleDelete)

	mux.HandleFunc("GET /v1/evaluations/{id}/results", h.outcomeView(func(o *Outcome) any {
		return o.Results
	}))
	mux.HandleFunc("GET /v1/evaluations/{id}/matrix", h.outcomeView(func(o *Outcome) any {
		return o.Matrix
	}))
	mux.HandleFunc("GET /v1/evaluations/{id}/ranking", h.outcomeView(func(o *Outcome) any {
		return RankingView{Ranking: o.Ranking, Comparison: o.Comparison, Summary: o.Summary.Ranking}
	}))
	mux.HandleFunc("GET /v1/evaluations/{id}/tco", h.outcomeView(func(o *Outcome) any {
		return TCOView{Breakdowns: o.TCO, Summary: o.Summary.TCO}
	}))
	mux.HandleFunc("GET /v1/evaluations/{id}/compliance", h.outcomeView(func(o *Outcome) any {
		return ComplianceView{Details: o.Compliance, Summary: o.Summary.Compliance, NoCompliantVendor: o.NoCompliantVendor}
	}))
	mux.HandleFunc("GET /v1/evaluations/{id}/summary", h.outcomeView(func(o *Outcome) any {
		return o.Summary
	}))
	mux.HandleFunc("GET /v1/evaluations/{id}/warnings", h.outcomeView(func(o *Outcome) any {
		return o.Warnings
	}))

	mux.HandleFunc("GET /v1/iso-standards", h.handleStandards)
}

// BatchRequest is the body of a batch evaluation call.
type BatchRequest struct {
	Requests []Request `json:"requests"`
}

// BatchResponse is the reply to a batch evaluation call.
type BatchResponse struct {
	Items     []BatchItem `json:"items"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
}

// PreviewRequest is the body of a preview call.
type PreviewRequest struct {
	Bid     bid.VendorBid  `json:"bid" yaml:"bid"`
	Context PreviewContext `json:"context" yaml:"context"`
}

// ListResponse is the reply to a list call.
type ListResponse struct {
	Evaluations []store.Record `json:"evaluations"`
	Total       int            `json:"total"`
}

// RankingView groups the ranking parts of an outcome.
type RankingView struct {
	Ranking    any `json:"ranking"`
	Comparison any `json:"comparison"`
	Summary    any `json:"summary"`
}

// TCOView groups the cost parts of an outcome.
type TCOView struct {
	Breakdowns any `json:"breakdowns"`
	Summary    any `json:"summary"`
}

// ComplianceView groups the compliance parts of an outcome.
type ComplianceView struct {
	Details           any  `json:"details"`
	Summary           any  `json:"summary"`
	NoCompliantVendor bool `json:"no_compliant_vendor"`
}

func (h *Handler) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := decodeBody(w, r, &req); err != nil {
		apperrors.WriteError(w, err)
		return
	}

	run, err := h.svc.Evaluate(r.Context(), req)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *Handler) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := decodeBody(w, r, &req); err != nil {
		apperrors.WriteError(w, err)
		return
	}
	if len(req.Requests) == 0 {
		apperrors.WriteError(w, apperrors.ValidationError("requests must not be empty"))
		return
	}
	if len(req.Requests) > MaxBatchSize {
		apperrors.WriteError(w, apperrors.ValidationError(
			"batch exceeds "+strconv.Itoa(MaxBatchSize)+" requests"))
		return
	}

	items, err := h.svc.EvaluateBatch(r.Context(), req.Requests)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}

	resp := BatchResponse{Items: items}
	for _, it := range items {
		if it.Error != nil {
			resp.Failed++
		} else {
			resp.Succeeded++
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if err := decodeBody(w, r, &req); err != nil {
		apperrors.WriteError(w, err)
		return
	}

	res, err := h.svc.Preview(r.Context(), req.Bid, req.Context)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	f := store.ListFilter{RFQID: r.URL.Query().Get("rfq_id")}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			apperrors.WriteError(w, apperrors.InvalidRequestError("limit must be a non-negative integer"))
			return
		}
		f.Limit = n
	}

	recs := h.svc.List(r.Context(), f)
	writeJSON(w, http.StatusOK, ListResponse{Evaluations: recs, Total: len(recs)})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, err := h.svc.Get(r.Context(), id)
	if err != nil {
		apperrors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), r.PathValue("id")); err != nil {
		apperrors.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// outcomeView serves one projection of a stored outcome.
func (h *Handler) outcomeView(view func(*Outcome) any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := h.svc.Outcome(r.Context(), r.PathValue("id"))
		if err != nil {
			apperrors.WriteError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view(out))
	}
}

func (h *Handler) handleStandards(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"standards": compliance.Catalog(),
		"relations": compliance.DefaultRelations(),
	})
}

// decodeBody decodes a size-limited JSON body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return apperrors.InvalidRequestError("request body too large")
		case errors.Is(err, io.EOF):
			return apperrors.InvalidRequestError("request body is empty")
		default:
			return apperrors.InvalidRequestError("invalid JSON: " + err.Error())
		}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
