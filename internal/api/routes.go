package api

import (
	"net/http"

	"github.com/atelier-systems/tailor/internal/config"
	"github.com/atelier-systems/tailor/internal/feedback"
	"github.com/atelier-systems/tailor/internal/jobs"
	"github.com/atelier-systems/tailor/pkg/handlers"
	"github.com/atelier-systems/tailor/pkg/routes"
)

func registerRoutes(
	mux *http.ServeMux,
	domain *Domain,
	cfg *config.Config,
	runtime *Runtime,
) {
	jobsHandler := jobs.NewHandler(
		domain.Jobs,
		runtime.Storage,
		domain.Orchestrator,
		runtime.Logger,
		runtime.Pagination,
		cfg.Pipeline.DownloadTTLDuration(),
	)

	feedbackHandler := feedback.NewHandler(
		domain.Feedback,
		runtime.Logger,
		runtime.Pagination,
	)

	storage := newStorageHandler(
		runtime.Storage,
		runtime.Logger,
		cfg.API.MaxUploadSizeBytes(),
		cfg.Storage.MaxListSize,
	)

	groups := []routes.Group{jobsHandler.Routes()}
	groups = append(groups, feedbackHandler.Routes()...)
	groups = append(groups, storage.routes()...)
	groups = append(groups, housekeepingGroup(domain, runtime))

	routes.Register(mux, groups...)
}

// housekeepingGroup exposes a manual sweep trigger alongside the
// periodic one.
func housekeepingGroup(domain *Domain, runtime *Runtime) routes.Group {
	logger := runtime.Logger.With("handler", "housekeeping")

	return routes.Group{
		Prefix: "/housekeeping",
		Routes: []routes.Route{
			{Method: "POST", Pattern: "", Handler: func(w http.ResponseWriter, r *http.Request) {
				if err := domain.Housekeeper.Sweep(r.Context()); err != nil {
					handlers.RespondError(w, logger, http.StatusInternalServerError, err)
					return
				}
				handlers.RespondJSON(w, http.StatusAccepted, map[string]string{"status": "swept"})
			}},
		},
	}
}
