package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/atelier-systems/tailor/internal/evaluation"
	"github.com/atelier-systems/tailor/pkg/pagination"
)

// System defines the public contract for job domain operations. Advance,
// GapFill, Complete, Fail, and MarkCancelled apply an optimistic check on
// the caller's last-known version and return ErrStale when a concurrent
// writer got there first.
type System interface {
	Create(ctx context.Context, cmd CreateCommand) (*Job, error)
	Find(ctx context.Context, tenantID string, id uuid.UUID) (*Job, error)
	List(
		ctx context.Context,
		tenantID string,
		page pagination.PageRequest,
		filters Filters,
	) (*pagination.PageResult[Job], error)

	Advance(ctx context.Context, job *Job, next Stage) (*Job, error)
	GapFill(ctx context.Context, job *Job) (*Job, error)
	Complete(ctx context.Context, job *Job, keys ArtifactKeys, report *evaluation.Report) (*Job, error)
	Fail(ctx context.Context, job *Job, reason string) (*Job, error)

	RequestCancel(ctx context.Context, tenantID string, id uuid.UUID) (*Job, error)
	MarkCancelled(ctx context.Context, job *Job) (*Job, error)

	Stuck(ctx context.Context, idleSince time.Time, limit int) ([]Job, error)
	Expired(ctx context.Context, limit int) ([]Job, error)
	Tombstone(ctx context.Context, job *Job) error

	NextAttempt(ctx context.Context, tenantID string, jobID uuid.UUID, stage Stage) (int, error)
	BeginExecution(ctx context.Context, tenantID string, jobID uuid.UUID, stage Stage, attempt int) (*StageExecution, error)
	FinishExecution(ctx context.Context, id uuid.UUID, status ExecutionStatus, errClass, errDetail *string) error
	Executions(ctx context.Context, tenantID string, jobID uuid.UUID) ([]StageExecution, error)
}
