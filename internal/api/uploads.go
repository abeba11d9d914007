package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"path"

	"github.com/google/uuid"

	"github.com/atelier-systems/tailor/internal/jobs"
	"github.com/atelier-systems/tailor/pkg/handlers"
	"github.com/atelier-systems/tailor/pkg/routes"
	"github.com/atelier-systems/tailor/pkg/storage"
)

// uploadKinds are the accepted input document kinds.
var uploadKinds = map[string]bool{
	"jd":     true,
	"resume": true,
}

type storageHandler struct {
	store         storage.System
	logger        *slog.Logger
	maxUploadSize int64
	maxListSize   int32
}

func newStorageHandler(
	store storage.System,
	logger *slog.Logger,
	maxUploadSize int64,
	maxListSize int32,
) *storageHandler {
	return &storageHandler{
		store:         store,
		logger:        logger.With("handler", "storage"),
		maxUploadSize: maxUploadSize,
		maxListSize:   maxListSize,
	}
}

func (h *storageHandler) routes() []routes.Group {
	return []routes.Group{
		{
			Prefix: "/uploads",
			Routes: []routes.Route{
				{Method: "POST", Pattern: "/{kind}", Handler: h.upload},
			},
		},
		{
			Prefix: "/artifacts",
			Routes: []routes.Route{
				{Method: "GET", Pattern: "", Handler: h.list},
			},
		},
	}
}

// UploadResult returns the storage key assigned to an uploaded document.
type UploadResult struct {
	Key string `json:"key"`
}

// upload accepts a multipart input document and stores it under a
// tenant-scoped key referenced later by job submission.
func (h *storageHandler) upload(w http.ResponseWriter, r *http.Request) {
	tenant, ok := jobs.Tenant(w, r, h.logger)
	if !ok {
		return
	}

	kind := r.PathValue("kind")
	if !uploadKinds[kind] {
		handlers.RespondError(w, h.logger, http.StatusBadRequest,
			fmt.Errorf("unknown upload kind %q", kind))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	file, header, err := r.FormFile("file")
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest,
			fmt.Errorf("read multipart file: %w", err))
		return
	}
	defer file.Close()

	ext := path.Ext(header.Filename)
	key := fmt.Sprintf("%s/uploads/%s/%s%s", tenant, kind, uuid.New(), ext)

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if err := h.store.Upload(r.Context(), key, file, contentType); err != nil {
		handlers.RespondError(w, h.logger, storage.MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusCreated, UploadResult{Key: key})
}

// list returns the tenant's stored objects, optionally narrowed by a
// relative prefix.
func (h *storageHandler) list(w http.ResponseWriter, r *http.Request) {
	tenant, ok := jobs.Tenant(w, r, h.logger)
	if !ok {
		return
	}

	prefix := tenant + "/"
	if p := r.URL.Query().Get("prefix"); p != "" {
		prefix += p
	}

	objects, err := h.store.List(r.Context(), prefix, h.maxListSize)
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusInternalServerError, err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, objects)
}
