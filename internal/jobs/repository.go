package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/atelier-systems/tailor/internal/evaluation"
	"github.com/atelier-systems/tailor/pkg/pagination"
	"github.com/atelier-systems/tailor/pkg/query"
	"github.com/atelier-systems/tailor/pkg/repository"
)

type repo struct {
	db          *sql.DB
	logger      *slog.Logger
	pagination  pagination.Config
	artifactTTL time.Duration
}

// New creates a job repository implementing the System interface.
// artifactTTL controls how far in the future new jobs' expires_at is set.
func New(
	db *sql.DB,
	logger *slog.Logger,
	pagination pagination.Config,
	artifactTTL time.Duration,
) System {
	return &repo{
		db:          db,
		logger:      logger.With("system", "jobs"),
		pagination:  pagination,
		artifactTTL: artifactTTL,
	}
}

func (r *repo) Create(ctx context.Context, cmd CreateCommand) (*Job, error) {
	if cmd.TenantID == "" {
		return nil, ErrTenantRequired
	}
	if cmd.JDKey == "" || cmd.ResumeKey == "" {
		return nil, fmt.Errorf("%w: jd_key and resume_key required", ErrInvalidRequest)
	}

	q := fmt.Sprintf(`
		INSERT INTO jobs(tenant_id, id, stage, status, jd_key, resume_key, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING %s`, jobColumns)

	args := []any{
		cmd.TenantID,
		uuid.New(),
		StageIntake,
		StatusPending,
		cmd.JDKey,
		cmd.ResumeKey,
		time.Now().UTC().Add(r.artifactTTL),
	}

	j, err := repository.QueryOne(ctx, r.db, q, args, scanJob)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	r.logger.Info("job created", "tenant", j.TenantID, "id", j.ID)
	return &j, nil
}

func (r *repo) Find(ctx context.Context, tenantID string, id uuid.UUID) (*Job, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}

	q, args := query.NewBuilder(projection).
		WhereEquals("TenantID", tenantID).
		WhereEquals("ID", id).
		BuildSingleOrNull()

	j, err := repository.QueryOne(ctx, r.db, q, args, scanJob)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &j, nil
}

func (r *repo) List(
	ctx context.Context,
	tenantID string,
	page pagination.PageRequest,
	filters Filters,
) (*pagination.PageResult[Job], error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}
	page.Normalize(r.pagination)

	qb := query.
		NewBuilder(projection, defaultSort).
		WhereEquals("TenantID", tenantID).
		WhereNullable("DeletedAt", nil)

	filters.Apply(qb)

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	countSQL, countArgs := qb.BuildCount()
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}

	pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
	items, err := repository.QueryMany(ctx, r.db, pageSQL, pageArgs, scanJob)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}

	result := pagination.NewPageResult(items, total, page.Page, page.PageSize)
	return &result, nil
}

// mutate runs an optimistic job update: the WHERE clause carries the
// caller's last-known version and the statement increments it. Zero rows
// means a concurrent writer advanced the job first.
func (r *repo) mutate(ctx context.Context, job *Job, set string, setArgs ...any) (*Job, error) {
	n := len(setArgs)
	q := fmt.Sprintf(`
		UPDATE jobs
		SET %s, updated_at = now(), version = version + 1
		WHERE tenant_id = $%d AND id = $%d AND version = $%d AND deleted_at IS NULL
		RETURNING %s`, set, n+1, n+2, n+3, jobColumns)

	args := append(setArgs, job.TenantID, job.ID, job.Version)

	j, err := repository.QueryOne(ctx, r.db, q, args, scanJob)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStale
		}
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &j, nil
}

func (r *repo) Advance(ctx context.Context, job *Job, next Stage) (*Job, error) {
	if job.Status.Terminal() {
		return nil, ErrTerminal
	}
	if next.Index() <= job.Stage.Index() {
		return nil, fmt.Errorf("%w: stage %s does not follow %s", ErrInvalidRequest, next, job.Stage)
	}

	updated, err := r.mutate(ctx, job, "stage = $1, status = $2", next, StatusRunning)
	if err != nil {
		return nil, err
	}

	r.logger.Info("job advanced", "tenant", job.TenantID, "id", job.ID, "stage", next)
	return updated, nil
}

func (r *repo) GapFill(ctx context.Context, job *Job) (*Job, error) {
	if job.Stage != StageValidate {
		return nil, fmt.Errorf("%w: gap-fill only re-enters from %s", ErrInvalidRequest, StageValidate)
	}

	updated, err := r.mutate(ctx, job,
		"stage = $1, gap_fill_cycles = gap_fill_cycles + 1", StageGenerate)
	if err != nil {
		return nil, err
	}

	r.logger.Info("job re-entered generation",
		"tenant", job.TenantID, "id", job.ID, "cycle", updated.GapFillCycles)
	return updated, nil
}

func (r *repo) Complete(
	ctx context.Context,
	job *Job,
	keys ArtifactKeys,
	report *evaluation.Report,
) (*Job, error) {
	reportJSON, err := marshalReport(report)
	if err != nil {
		return nil, err
	}

	updated, err := r.mutate(ctx, job,
		`stage = $1, status = $2, document_key = $3, change_log_key = $4,
		 report_key = $5, report = $6`,
		StageDone, StatusSucceeded, keys.Document, keys.ChangeLog, keys.Report, reportJSON)
	if err != nil {
		return nil, err
	}

	r.logger.Info("job completed", "tenant", job.TenantID, "id", job.ID)
	return updated, nil
}

func (r *repo) Fail(ctx context.Context, job *Job, reason string) (*Job, error) {
	updated, err := r.mutate(ctx, job,
		"status = $1, failure_reason = $2", StatusFailed, reason)
	if err != nil {
		return nil, err
	}

	r.logger.Warn("job failed", "tenant", job.TenantID, "id", job.ID, "reason", reason)
	return updated, nil
}

// RequestCancel flags the job for cancellation without a version check;
// the flag is monotonic and honored by the orchestrator at the next
// stage boundary.
func (r *repo) RequestCancel(ctx context.Context, tenantID string, id uuid.UUID) (*Job, error) {
	job, err := r.Find(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return nil, ErrTerminal
	}

	q := fmt.Sprintf(`
		UPDATE jobs
		SET cancel_requested = TRUE, updated_at = now(), version = version + 1
		WHERE tenant_id = $1 AND id = $2 AND deleted_at IS NULL
		RETURNING %s`, jobColumns)

	j, err := repository.QueryOne(ctx, r.db, q, []any{tenantID, id}, scanJob)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	r.logger.Info("job cancel requested", "tenant", tenantID, "id", id)
	return &j, nil
}

func (r *repo) MarkCancelled(ctx context.Context, job *Job) (*Job, error) {
	updated, err := r.mutate(ctx, job, "status = $1", StatusCancelled)
	if err != nil {
		return nil, err
	}

	r.logger.Info("job cancelled", "tenant", job.TenantID, "id", job.ID)
	return updated, nil
}

func (r *repo) Stuck(ctx context.Context, idleSince time.Time, limit int) ([]Job, error) {
	q := fmt.Sprintf(`
		SELECT %s FROM jobs
		WHERE status IN ($1, $2) AND deleted_at IS NULL AND updated_at < $3
		ORDER BY updated_at ASC
		LIMIT $4`, jobColumns)

	return repository.QueryMany(ctx, r.db, q,
		[]any{StatusPending, StatusRunning, idleSince, limit}, scanJob)
}

func (r *repo) Expired(ctx context.Context, limit int) ([]Job, error) {
	q := fmt.Sprintf(`
		SELECT %s FROM jobs
		WHERE expires_at < now() AND deleted_at IS NULL
		ORDER BY expires_at ASC
		LIMIT $1`, jobColumns)

	return repository.QueryMany(ctx, r.db, q, []any{limit}, scanJob)
}

// Tombstone marks an expired job as logically deleted. Rows are never
// removed; history remains queryable for audit.
func (r *repo) Tombstone(ctx context.Context, job *Job) error {
	if _, err := r.mutate(ctx, job, "deleted_at = now()"); err != nil {
		return err
	}

	r.logger.Info("job tombstoned", "tenant", job.TenantID, "id", job.ID)
	return nil
}

func (r *repo) NextAttempt(ctx context.Context, tenantID string, jobID uuid.UUID, stage Stage) (int, error) {
	var next int
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(attempt), 0) + 1 FROM stage_executions
		WHERE tenant_id = $1 AND job_id = $2 AND stage = $3`,
		tenantID, jobID, stage,
	).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next attempt: %w", err)
	}
	return next, nil
}

func (r *repo) BeginExecution(
	ctx context.Context,
	tenantID string,
	jobID uuid.UUID,
	stage Stage,
	attempt int,
) (*StageExecution, error) {
	q := `
		INSERT INTO stage_executions(id, tenant_id, job_id, stage, attempt, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, tenant_id, job_id, stage, attempt, status, error_class, error_detail, started_at, finished_at`

	args := []any{uuid.New(), tenantID, jobID, stage, attempt, ExecutionRunning}

	e, err := repository.QueryOne(ctx, r.db, q, args, scanExecution)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicateAttempt)
	}
	return &e, nil
}

func (r *repo) FinishExecution(
	ctx context.Context,
	id uuid.UUID,
	status ExecutionStatus,
	errClass, errDetail *string,
) error {
	err := repository.ExecExpectOne(ctx, r.db, `
		UPDATE stage_executions
		SET status = $1, error_class = $2, error_detail = $3, finished_at = now()
		WHERE id = $4 AND finished_at IS NULL`,
		status, errClass, errDetail, id)
	if err != nil {
		return repository.MapError(err, ErrNotFound, ErrDuplicateAttempt)
	}
	return nil
}

func (r *repo) Executions(ctx context.Context, tenantID string, jobID uuid.UUID) ([]StageExecution, error) {
	return repository.QueryMany(ctx, r.db, `
		SELECT id, tenant_id, job_id, stage, attempt, status, error_class, error_detail, started_at, finished_at
		FROM stage_executions
		WHERE tenant_id = $1 AND job_id = $2
		ORDER BY started_at ASC, attempt ASC`,
		[]any{tenantID, jobID}, scanExecution)
}

func marshalReport(report *evaluation.Report) (any, error) {
	if report == nil {
		return nil, nil
	}
	data, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	return data, nil
}
