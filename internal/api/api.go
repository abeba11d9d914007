// Package api assembles the API module: domain systems, pipeline
// components, middleware, and route registration.
package api

import (
	"net/http"

	"github.com/atelier-systems/tailor/internal/config"
	"github.com/atelier-systems/tailor/internal/infrastructure"
	"github.com/atelier-systems/tailor/pkg/middleware"
	"github.com/atelier-systems/tailor/pkg/module"
)

// NewModule creates the API module with all domain handlers and middleware,
// and registers the pipeline components on the lifecycle coordinator.
func NewModule(cfg *config.Config, infra *infrastructure.Infrastructure) (*module.Module, error) {
	runtime := NewRuntime(cfg, infra)
	domain := NewDomain(cfg, runtime)

	if err := domain.Start(runtime); err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	registerRoutes(mux, domain, cfg, runtime)

	m := module.New(cfg.API.BasePath, mux)
	m.Use(middleware.CORS(&cfg.API.CORS))
	m.Use(middleware.Logger(runtime.Logger))

	return m, nil
}
