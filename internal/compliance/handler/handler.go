package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/blociq/blociq-backend/internal/compliance/domain"
	"github.com/blociq/blociq-backend/internal/compliance/export"
	"github.com/blociq/blociq-backend/internal/compliance/processor"
	"github.com/blociq/blociq-backend/internal/compliance/service"
	"github.com/blociq/blociq-backend/pkg/errors"
	"github.com/blociq/blociq-backend/pkg/httputil"
	"github.com/blociq/blociq-backend/pkg/logger"
	"github.com/blociq/blociq-backend/pkg/messaging"
)

const (
	defaultDueWindow    = 30 * 24 * time.Hour
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200

	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// DocumentRequest carries one document's text. Either pages or text must be
// set; text is treated as a single page.
type DocumentRequest struct {
	Pages []domain.Page `json:"pages" validate:"required_without=Text,dive"`
	Text  string        `json:"text"`
}

func (d DocumentRequest) pages() []domain.Page {
	if len(d.Pages) == 0 {
		return processor.TextPages(d.Text)
	}
	return d.Pages
}

// AnalyzeRequest is the body of the analyze endpoints.
type AnalyzeRequest struct {
	DocumentRequest
	BuildingID string `json:"building_id" validate:"omitempty,uuid"`
	AssetID    string `json:"asset_id" validate:"omitempty,uuid"`
}

// ExportRequest is the body of the export endpoint.
type ExportRequest struct {
	Documents []NamedDocument `json:"documents" validate:"required,min=1,max=500,dive"`
}

// NamedDocument is one document inside an export request.
type NamedDocument struct {
	Name string `json:"name" validate:"required"`
	DocumentRequest
}

// Handler serves the compliance API.
type Handler struct {
	service *service.Service
	log     *logger.Logger
}

// NewHandler creates a compliance handler.
func NewHandler(svc *service.Service, log *logger.Logger) *Handler {
	return &Handler{
		service: svc,
		log:     log.WithComponent("compliance-handler"),
	}
}

// Register mounts the compliance routes under /api/v1/compliance.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api/v1/compliance", func(r chi.Router) {
		r.Get("/types", h.ListTypes)

		r.Route("/documents", func(r chi.Router) {
			r.Post("/detect", h.Detect)
			r.Post("/analyze", h.Analyze)
			r.Post("/analyze/async", h.AnalyzeAsync)
			r.Post("/export", h.Export)
		})

		r.Get("/jobs/{jobId}", h.GetJob)
		r.Get("/buildings/{buildingId}/due", h.ListDue)
		r.Get("/assets/{assetId}/analyses", h.ListAnalyses)
	})
}

// Detect handles POST /documents/detect
func (h *Handler) Detect(w http.ResponseWriter, r *http.Request) {
	var req DocumentRequest
	if !decode(w, r, &req) {
		return
	}

	result, err := h.service.Detect(req.pages())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// Analyze handles POST /documents/analyze
// Runs the full pipeline and, when asset_id is given, applies the patch.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if !decode(w, r, &req) {
		return
	}

	ctx := messaging.WithCorrelationID(r.Context(), httputil.GetRequestID(r.Context()))
	result, err := h.service.Analyze(ctx, service.AnalyzeRequest{
		Pages:      req.pages(),
		BuildingID: req.BuildingID,
		AssetID:    req.AssetID,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, result, &httputil.Meta{
		RegexVersion:  result.RegexVersion,
		ProcessingMs:  result.ProcessingTimeMs,
		CorrelationID: httputil.GetRequestID(r.Context()),
	})
}

// AnalyzeAsync handles POST /documents/analyze/async
// Returns 202 with a job to poll at /jobs/{jobId}.
func (h *Handler) AnalyzeAsync(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if !decode(w, r, &req) {
		return
	}

	ctx := messaging.WithCorrelationID(r.Context(), httputil.GetRequestID(r.Context()))
	job := h.service.StartAnalysis(ctx, service.AnalyzeRequest{
		Pages:      req.pages(),
		BuildingID: req.BuildingID,
		AssetID:    req.AssetID,
	})

	httputil.Accepted(w, job)
}

// GetJob handles GET /jobs/{jobId}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.service.GetJob(chi.URLParam(r, "jobId"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, job)
}

// ListTypes handles GET /types
func (h *Handler) ListTypes(w http.ResponseWriter, r *http.Request) {
	types, version, err := h.service.Types()
	if err != nil {
		h.fail(w, r, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, types, &httputil.Meta{
		Total:        int64(len(types)),
		RegexVersion: version,
	})
}

// Export handles POST /documents/export
// Analyses every document without persisting and returns an XLSX workbook.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	var req ExportRequest
	if !decode(w, r, &req) {
		return
	}

	rows := make([]export.Row, 0, len(req.Documents))
	for _, doc := range req.Documents {
		analysis, err := h.service.Preview(doc.pages())
		if err != nil {
			h.fail(w, r, err)
			return
		}
		rows = append(rows, export.Row{Name: doc.Name, Analysis: analysis})
	}

	data, err := export.Workbook(rows)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="compliance-documents.xlsx"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// ListDue handles GET /buildings/{buildingId}/due?before=YYYY-MM-DD
// Without before, assets due in the next 30 days are listed.
func (h *Handler) ListDue(w http.ResponseWriter, r *http.Request) {
	buildingID := chi.URLParam(r, "buildingId")
	if err := httputil.ValidateVar(buildingID, "uuid"); err != nil {
		httputil.Error(w, errors.Validation(map[string]string{"building_id": "must be a valid UUID"}))
		return
	}

	before := time.Now().UTC().Add(defaultDueWindow)
	if raw := r.URL.Query().Get("before"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httputil.Error(w, errors.Validation(map[string]string{"before": "must be a date in YYYY-MM-DD format"}))
			return
		}
		before = parsed
	}

	assets, err := h.service.DueAssets(r.Context(), buildingID, before)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, assets, &httputil.Meta{Total: int64(len(assets))})
}

// ListAnalyses handles GET /assets/{assetId}/analyses?limit=N
func (h *Handler) ListAnalyses(w http.ResponseWriter, r *http.Request) {
	assetID := chi.URLParam(r, "assetId")
	if err := httputil.ValidateVar(assetID, "uuid"); err != nil {
		httputil.Error(w, errors.Validation(map[string]string{"asset_id": "must be a valid UUID"}))
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxHistoryLimit {
			httputil.Error(w, errors.Validation(map[string]string{
				"limit": fmt.Sprintf("must be between 1 and %d", maxHistoryLimit),
			}))
			return
		}
		limit = n
	}

	entries, err := h.service.AnalysisHistory(r.Context(), assetID, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, entries, &httputil.Meta{Total: int64(len(entries))})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := httputil.DecodeJSON(w, r, v); err != nil {
		httputil.Error(w, err)
		return false
	}
	if err := httputil.Validate(v); err != nil {
		httputil.Error(w, err)
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *errors.AppError
	if !errors.As(err, &appErr) || appErr.StatusCode >= http.StatusInternalServerError {
		h.log.WithRequestID(httputil.GetRequestID(r.Context())).Error().
			Err(err).
			Str("path", r.URL.Path).
			Msg("compliance request failed")
	}
	httputil.Error(w, err)
}
