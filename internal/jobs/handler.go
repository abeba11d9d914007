package jobs

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/atelier-systems/tailor/pkg/handlers"
	"github.com/atelier-systems/tailor/pkg/pagination"
	"github.com/atelier-systems/tailor/pkg/routes"
	"github.com/atelier-systems/tailor/pkg/storage"
)

// TenantHeader carries the caller's tenant identity. Claim extraction and
// verification happen at the edge; this service trusts the header.
const TenantHeader = "X-Tenant-ID"

// Dispatcher starts or resumes orchestration for a job. Implemented by
// the pipeline orchestrator; injected to keep the domain free of a
// package cycle.
type Dispatcher interface {
	Dispatch(job *Job)
}

// Handler provides HTTP endpoints for job operations.
type Handler struct {
	sys         System
	store       storage.System
	dispatcher  Dispatcher
	logger      *slog.Logger
	pagination  pagination.Config
	downloadTTL time.Duration
}

// NewHandler creates a Handler with the given system, storage, dispatcher,
// logger, pagination config, and signed-download lifetime.
func NewHandler(
	sys System,
	store storage.System,
	dispatcher Dispatcher,
	logger *slog.Logger,
	pagination pagination.Config,
	downloadTTL time.Duration,
) *Handler {
	return &Handler{
		sys:         sys,
		store:       store,
		dispatcher:  dispatcher,
		logger:      logger.With("handler", "jobs"),
		pagination:  pagination,
		downloadTTL: downloadTTL,
	}
}

// SubmitRequest is the intake payload for a new tailoring job.
type SubmitRequest struct {
	JDKey     string `json:"jd_key"`
	ResumeKey string `json:"resume_key"`
}

// SearchRequest combines pagination and filter criteria for the search endpoint.
type SearchRequest struct {
	pagination.PageRequest
	Filters
}

// ArtifactLinks holds signed download references for a job's outputs.
type ArtifactLinks struct {
	Document  string `json:"document,omitempty"`
	ChangeLog string `json:"change_log,omitempty"`
	Report    string `json:"report,omitempty"`
	ExpiresAt string `json:"expires_at"`
}

// Routes returns the route group definition for job endpoints.
func (h *Handler) Routes() routes.Group {
	return routes.Group{
		Prefix: "/jobs",
		Routes: []routes.Route{
			{Method: "GET", Pattern: "", Handler: h.List},
			{Method: "POST", Pattern: "", Handler: h.Submit},
			{Method: "POST", Pattern: "/search", Handler: h.Search},
			{Method: "GET", Pattern: "/{id}", Handler: h.Find},
			{Method: "POST", Pattern: "/{id}/cancel", Handler: h.Cancel},
			{Method: "GET", Pattern: "/{id}/report", Handler: h.Report},
			{Method: "GET", Pattern: "/{id}/artifacts", Handler: h.Artifacts},
			{Method: "GET", Pattern: "/{id}/executions", Handler: h.Executions},
		},
	}
}

// Tenant extracts the tenant identity from the request, or responds 400.
func Tenant(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (string, bool) {
	tenant := r.Header.Get(TenantHeader)
	if tenant == "" {
		handlers.RespondError(w, logger, http.StatusBadRequest, ErrTenantRequired)
		return "", false
	}
	return tenant, true
}

// Submit registers a new job and dispatches orchestration.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	tenant, ok := Tenant(w, r, h.logger)
	if !ok {
		return
	}

	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidRequest)
		return
	}

	job, err := h.sys.Create(r.Context(), CreateCommand{
		TenantID:  tenant,
		JDKey:     req.JDKey,
		ResumeKey: req.ResumeKey,
	})
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	h.dispatcher.Dispatch(job)
	handlers.RespondJSON(w, http.StatusAccepted, job)
}

// List returns a paginated tenant-scoped job listing.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	tenant, ok := Tenant(w, r, h.logger)
	if !ok {
		return
	}

	page := pagination.PageRequestFromQuery(r.URL.Query(), h.pagination)
	filters := FiltersFromQuery(r.URL.Query())

	result, err := h.sys.List(r.Context(), tenant, page, filters)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

// Search accepts a JSON body with pagination and filter criteria.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	tenant, ok := Tenant(w, r, h.logger)
	if !ok {
		return
	}

	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidRequest)
		return
	}

	req.PageRequest.Normalize(h.pagination)

	result, err := h.sys.List(r.Context(), tenant, req.PageRequest, req.Filters)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, result)
}

// Find returns a job summary reflecting the last durably committed state.
func (h *Handler) Find(w http.ResponseWriter, r *http.Request) {
	job, ok := h.loadJob(w, r)
	if !ok {
		return
	}

	handlers.RespondJSON(w, http.StatusOK, job)
}

// Cancel requests cooperative cancellation; honored at the next stage boundary.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	tenant, ok := Tenant(w, r, h.logger)
	if !ok {
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidRequest)
		return
	}

	job, err := h.sys.RequestCancel(r.Context(), tenant, id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusAccepted, job)
}

// Report returns the stored evaluation report for a completed job.
func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	job, ok := h.loadJob(w, r)
	if !ok {
		return
	}

	if job.Report == nil {
		handlers.RespondError(w, h.logger, http.StatusNotFound, ErrNotFound)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, job.Report)
}

// Artifacts returns signed download references for a job's output artifacts.
func (h *Handler) Artifacts(w http.ResponseWriter, r *http.Request) {
	job, ok := h.loadJob(w, r)
	if !ok {
		return
	}

	links := ArtifactLinks{
		ExpiresAt: time.Now().UTC().Add(h.downloadTTL).Format(time.RFC3339),
	}

	keys := []struct {
		key    *string
		target *string
	}{
		{job.DocumentKey, &links.Document},
		{job.ChangeLogKey, &links.ChangeLog},
		{job.ReportKey, &links.Report},
	}

	for _, k := range keys {
		if k.key == nil {
			continue
		}
		signed, err := h.store.SignedURL(r.Context(), *k.key, h.downloadTTL)
		if err != nil {
			handlers.RespondError(w, h.logger, storage.MapHTTPStatus(err), err)
			return
		}
		*k.target = signed
	}

	handlers.RespondJSON(w, http.StatusOK, links)
}

// Executions returns the per-stage attempt history for a job.
func (h *Handler) Executions(w http.ResponseWriter, r *http.Request) {
	tenant, ok := Tenant(w, r, h.logger)
	if !ok {
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidRequest)
		return
	}

	execs, err := h.sys.Executions(r.Context(), tenant, id)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, execs)
}

func (h *Handler) loadJob(w http.ResponseWriter, r *http.Request) (*Job, bool) {
	tenant, ok := Tenant(w, r, h.logger)
	if !ok {
		return nil, false
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidRequest)
		return nil, false
	}

	job, err := h.sys.Find(r.Context(), tenant, id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return nil, false
	}
	return job, true
}
