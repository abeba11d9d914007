package api

import (
	"github.com/atelier-systems/tailor/internal/capability"
	"github.com/atelier-systems/tailor/internal/config"
	"github.com/atelier-systems/tailor/internal/evaluation"
	"github.com/atelier-systems/tailor/internal/feedback"
	"github.com/atelier-systems/tailor/internal/jobs"
	"github.com/atelier-systems/tailor/internal/pipeline"
)

// Domain holds the domain systems and pipeline components that comprise
// the API.
type Domain struct {
	Jobs         jobs.System
	Feedback     feedback.System
	Orchestrator *pipeline.Orchestrator
	Housekeeper  *pipeline.Housekeeper
}

// NewDomain creates all domain systems from the API runtime and the
// pipeline configuration.
func NewDomain(cfg *config.Config, runtime *Runtime) *Domain {
	jobSystem := jobs.New(
		runtime.Database.Connection(),
		runtime.Logger,
		runtime.Pagination,
		cfg.Pipeline.ArtifactTTLDuration(),
	)

	feedbackSystem := feedback.New(
		runtime.Database.Connection(),
		runtime.Logger,
		runtime.Pagination,
	)

	adapters := capability.NewHTTPSet(&cfg.Capability, runtime.Logger).Adapters()

	executor := pipeline.NewExecutor(
		jobSystem,
		pipeline.RetryPolicy{
			MaxAttempts: cfg.Pipeline.MaxAttempts,
			Base:        cfg.Pipeline.BackoffBaseDuration(),
		},
		cfg.Pipeline.StageTimeoutDuration(),
		runtime.Logger,
	)

	orchestrator := pipeline.NewOrchestrator(
		jobSystem,
		feedbackSystem,
		adapters,
		evaluation.Engine{Keywords: cfg.Pipeline.Keywords},
		runtime.Storage,
		executor,
		pipeline.Options{
			JobTimeout:   cfg.Pipeline.JobTimeoutDuration(),
			GapFillLimit: cfg.Pipeline.GapFillLimit,
			TopK:         cfg.Capability.TopK,
			Thresholds: evaluation.Thresholds{
				Coverage: cfg.Pipeline.CoverageThreshold,
				Keyword:  cfg.Pipeline.KeywordThreshold,
			},
		},
		runtime.Logger,
	)

	housekeeper := pipeline.NewHousekeeper(
		jobSystem,
		runtime.Storage,
		orchestrator,
		cfg.Pipeline.SweepIntervalDuration(),
		cfg.Pipeline.StuckThresholdDuration(),
		cfg.Pipeline.JobTimeoutDuration(),
		runtime.Logger,
	)

	return &Domain{
		Jobs:         jobSystem,
		Feedback:     feedbackSystem,
		Orchestrator: orchestrator,
		Housekeeper:  housekeeper,
	}
}

// Start registers the pipeline components with the lifecycle coordinator.
func (d *Domain) Start(runtime *Runtime) error {
	if err := d.Orchestrator.Start(runtime.Lifecycle); err != nil {
		return err
	}
	return d.Housekeeper.Start(runtime.Lifecycle)
}
