package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/atelier-systems/tailor/internal/jobs"
	"github.com/atelier-systems/tailor/pkg/lifecycle"
	"github.com/atelier-systems/tailor/pkg/storage"
)

// sweepBatch bounds how many jobs one sweep pass touches per category.
const sweepBatch = 50

// Housekeeper periodically recovers jobs no orchestrator is driving:
// idle non-terminal jobs are re-dispatched, jobs past the absolute
// timeout are failed, and expired jobs are tombstoned with their blobs
// removed.
type Housekeeper struct {
	jobs           jobs.System
	store          storage.System
	dispatcher     jobs.Dispatcher
	interval       time.Duration
	stuckThreshold time.Duration
	jobTimeout     time.Duration
	logger         *slog.Logger
}

// NewHousekeeper creates a Housekeeper over the given collaborators.
func NewHousekeeper(
	jobSys jobs.System,
	store storage.System,
	dispatcher jobs.Dispatcher,
	interval, stuckThreshold, jobTimeout time.Duration,
	logger *slog.Logger,
) *Housekeeper {
	return &Housekeeper{
		jobs:           jobSys,
		store:          store,
		dispatcher:     dispatcher,
		interval:       interval,
		stuckThreshold: stuckThreshold,
		jobTimeout:     jobTimeout,
		logger:         logger.With("system", "housekeeper"),
	}
}

// Start registers the periodic sweep on the lifecycle coordinator. The
// ticker goroutine exits when the coordinator's context is cancelled.
func (h *Housekeeper) Start(lc *lifecycle.Coordinator) error {
	h.logger.Info("starting housekeeper", "interval", h.interval)

	go func() {
		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()

		for {
			select {
			case <-lc.Context().Done():
				return
			case <-ticker.C:
				if err := h.Sweep(lc.Context()); err != nil {
					h.logger.Error("sweep failed", "error", err)
				}
			}
		}
	}()

	return nil
}

// Sweep runs one recovery pass over stuck and expired jobs.
func (h *Housekeeper) Sweep(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return h.sweepStuck(ctx) })
	g.Go(func() error { return h.sweepExpired(ctx) })
	return g.Wait()
}

// sweepStuck re-dispatches idle non-terminal jobs, failing any past the
// absolute job timeout instead.
func (h *Housekeeper) sweepStuck(ctx context.Context) error {
	idleSince := time.Now().UTC().Add(-h.stuckThreshold)

	stuck, err := h.jobs.Stuck(ctx, idleSince, sweepBatch)
	if err != nil {
		return err
	}

	for i := range stuck {
		job := &stuck[i]

		if time.Now().After(job.CreatedAt.Add(h.jobTimeout)) {
			if _, err := h.jobs.Fail(ctx, job, jobs.ReasonTimeout); err != nil {
				if !errors.Is(err, jobs.ErrStale) {
					h.logger.Error("timeout fail failed", "tenant", job.TenantID, "job", job.ID, "error", err)
				}
				continue
			}
			h.logger.Warn("job timed out", "tenant", job.TenantID, "job", job.ID, "stage", job.Stage)
			continue
		}

		h.logger.Info("resuming stuck job", "tenant", job.TenantID, "job", job.ID, "stage", job.Stage)
		h.dispatcher.Dispatch(job)
	}

	return nil
}

// sweepExpired tombstones jobs past their retention window and deletes
// their stored artifacts.
func (h *Housekeeper) sweepExpired(ctx context.Context) error {
	expired, err := h.jobs.Expired(ctx, sweepBatch)
	if err != nil {
		return err
	}

	for i := range expired {
		job := &expired[i]

		if err := h.deleteArtifacts(ctx, job); err != nil {
			h.logger.Error("artifact cleanup failed", "tenant", job.TenantID, "job", job.ID, "error", err)
			continue
		}

		if err := h.jobs.Tombstone(ctx, job); err != nil {
			if !errors.Is(err, jobs.ErrStale) {
				h.logger.Error("tombstone failed", "tenant", job.TenantID, "job", job.ID, "error", err)
			}
			continue
		}

		h.logger.Info("job expired", "tenant", job.TenantID, "job", job.ID)
	}

	return nil
}

func (h *Housekeeper) deleteArtifacts(ctx context.Context, job *jobs.Job) error {
	objects, err := h.store.List(ctx, jobPrefix(job.TenantID, job.ID), storage.MaxListCap)
	if err != nil {
		return err
	}

	for _, object := range objects {
		if err := h.store.Delete(ctx, object.Key); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
	}
	return nil
}
