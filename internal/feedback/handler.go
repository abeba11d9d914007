package feedback

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/atelier-systems/tailor/internal/jobs"
	"github.com/atelier-systems/tailor/pkg/handlers"
	"github.com/atelier-systems/tailor/pkg/pagination"
	"github.com/atelier-systems/tailor/pkg/routes"
)

// Handler provides HTTP endpoints for feedback operations.
type Handler struct {
	sys        System
	logger     *slog.Logger
	pagination pagination.Config
}

// NewHandler creates a Handler with the given system, logger, and pagination config.
func NewHandler(sys System, logger *slog.Logger, pagination pagination.Config) *Handler {
	return &Handler{
		sys:        sys,
		logger:     logger.With("handler", "feedback"),
		pagination: pagination,
	}
}

// SubmitRequest is the payload for recording feedback on a job.
type SubmitRequest struct {
	Comment string  `json:"comment"`
	Score   float64 `json:"score"`
}

// Routes returns the route group definition for feedback endpoints.
// The submit route nests under /jobs so feedback is addressed by job.
func (h *Handler) Routes() []routes.Group {
	return []routes.Group{
		{
			Prefix: "/feedback",
			Routes: []routes.Route{
				{Method: "GET", Pattern: "", Handler: h.List},
			},
		},
		{
			Prefix: "/jobs",
			Routes: []routes.Route{
				{Method: "POST", Pattern: "/{id}/feedback", Handler: h.Submit},
			},
		},
	}
}

// Submit records reviewer feedback against a job.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	tenant, ok := jobs.Tenant(w, r, h.logger)
	if !ok {
		return
	}

	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidRequest)
		return
	}

	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidRequest)
		return
	}

	f, err := h.sys.Create(r.Context(), CreateCommand{
		TenantID: tenant,
		JobID:    jobID,
		Comment:  req.Comment,
		Score:    req.Score,
	})
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusCreated, f)
}

// List returns a paginated tenant-scoped feedback listing.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	tenant, ok := jobs.Tenant(w, r, h.logger)
	if !ok {
		return
	}

	page := pagination.PageRequestFromQuery(r.URL.Query(), h.pagination)

	result, err := h.sys.List(r.Context(), tenant, page)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}
