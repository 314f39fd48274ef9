/*
handlers.go - HTTP API handlers for the archive engine

PURPOSE:
  Exposes the archive engine via a JSON API. Handlers parse the request,
  call one engine operation, and serialize the result. No business logic
  lives here.

ENDPOINTS:
  Uploads:
    POST   /api/uploads                    Ingest a spreadsheet (multipart "file")

  Agreements:
    GET    /api/agreements/search?q=       First agreement whose number contains q
    GET    /api/agreements/{number}        Exact lookup

  Boxes:
    GET    /api/boxes/{type}               Current open box for a type
    POST   /api/boxes/{type}/next          Roll over to the next box

  Assignments:
    POST   /api/assignments                File an agreement into a box

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Unreadable upload, missing header/column, missing fields
  - 404: Unknown agreement or box type
  - 409: Agreement already archived
  - 503: Store unavailable (timeout, connection failure)
  - 500: Anything else

SECURITY NOTE:
  Login/session handling belongs to the fronting gateway. All endpoints
  here assume an authenticated operator.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warp/archive-engine/archive"
)

// maxUploadBytes caps multipart uploads.
const maxUploadBytes = 32 << 20

// Pinger reports whether the store answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine *archive.Engine
	Health Pinger // optional
	Logger *zap.Logger
}

// NewHandler creates a new handler around engine.
func NewHandler(engine *archive.Engine, health Pinger, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{Engine: engine, Health: health, Logger: logger}
}

// =============================================================================
// UPLOADS
// =============================================================================

// Upload ingests an uploaded spreadsheet.
// POST /api/uploads
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file", err)
		return
	}
	defer file.Close()

	if header.Filename == "" {
		writeError(w, http.StatusBadRequest, "No file selected", nil)
		return
	}

	report, err := h.Engine.IngestFile(r.Context(), header.Filename, file)
	if err != nil {
		h.writeEngineError(w, "Upload failed", err)
		return
	}

	dto := toIngestReportDTO(report)
	dto.Message = fmt.Sprintf("Uploaded %d records", report.Attempted)
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// AGREEMENTS
// =============================================================================

// GetAgreement returns one agreement.
// GET /api/agreements/{number}
func (h *Handler) GetAgreement(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")

	a, err := h.Engine.GetAgreement(r.Context(), number)
	if err != nil {
		h.writeEngineError(w, "Failed to get agreement", err)
		return
	}
	writeJSON(w, http.StatusOK, toAgreementDTO(a))
}

// SearchAgreement returns the first agreement matching q, or null.
// GET /api/agreements/search?q=
func (h *Handler) SearchAgreement(w http.ResponseWriter, r *http.Request) {
	a, err := h.Engine.SearchAgreement(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.writeEngineError(w, "Search failed", err)
		return
	}
	if a == nil {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, toAgreementDTO(*a))
}

// =============================================================================
// BOXES
// =============================================================================

// GetActiveBox returns the open box for a type.
// GET /api/boxes/{type}
func (h *Handler) GetActiveBox(w http.ResponseWriter, r *http.Request) {
	box, err := h.Engine.GetActiveBox(r.Context(), chi.URLParam(r, "type"))
	if err != nil {
		h.writeEngineError(w, "Failed to get active box", err)
		return
	}
	writeJSON(w, http.StatusOK, toActiveBoxDTO(box))
}

// NextBox retires the open box for a type and opens the next one.
// POST /api/boxes/{type}/next
func (h *Handler) NextBox(w http.ResponseWriter, r *http.Request) {
	var req NextBoxRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	box, err := h.Engine.AllocateNextBox(r.Context(), chi.URLParam(r, "type"), req.DokID)
	if err != nil {
		h.writeEngineError(w, "Failed to create new box", err)
		return
	}
	writeJSON(w, http.StatusCreated, toActiveBoxDTO(box))
}

// =============================================================================
// ASSIGNMENTS
// =============================================================================

// Assign files an agreement into a box.
// POST /api/assignments
func (h *Handler) Assign(w http.ResponseWriter, r *http.Request) {
	var req AssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	err := h.Engine.AssignAgreement(r.Context(), archive.AssignRequest{
		AgreementNumber: req.AgreementNumber,
		BoxName:         req.BoxName,
		DokID:           req.DokID,
		BoxType:         req.BoxType,
	})
	if err != nil {
		h.writeEngineError(w, "Failed to assign agreement", err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

// =============================================================================
// HEALTH
// =============================================================================

// Healthz reports whether the store answers.
// GET /healthz
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.Health != nil {
		if err := h.Health.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Store unavailable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case archive.IsClientError(err):
		return http.StatusBadRequest
	case archive.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, archive.ErrAgreementArchived):
		return http.StatusConflict
	case errors.Is(err, archive.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeEngineError(w http.ResponseWriter, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.Logger.Error(message, zap.Error(err))
	}
	writeError(w, status, message, err)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
