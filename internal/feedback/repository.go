package feedback

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/atelier-systems/tailor/pkg/pagination"
	"github.com/atelier-systems/tailor/pkg/query"
	"github.com/atelier-systems/tailor/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "feedback", "f").
	Project("tenant_id", "TenantID").
	Project("id", "ID").
	Project("job_id", "JobID").
	Project("comment", "Comment").
	Project("score", "Score").
	Project("created_at", "CreatedAt")

var defaultSort = query.SortField{
	Field:      "CreatedAt",
	Descending: true,
}

type repo struct {
	db         *sql.DB
	logger     *slog.Logger
	pagination pagination.Config
}

// New creates a feedback repository implementing the System interface.
func New(db *sql.DB, logger *slog.Logger, pagination pagination.Config) System {
	return &repo{
		db:         db,
		logger:     logger.With("system", "feedback"),
		pagination: pagination,
	}
}

func (r *repo) Create(ctx context.Context, cmd CreateCommand) (*Feedback, error) {
	if cmd.TenantID == "" {
		return nil, ErrTenantRequired
	}
	if cmd.Comment == "" {
		return nil, fmt.Errorf("%w: comment required", ErrInvalidRequest)
	}
	if cmd.Score < 0 || cmd.Score > 1 {
		return nil, fmt.Errorf("%w: score must be within [0, 1]", ErrInvalidRequest)
	}

	q := `
		INSERT INTO feedback(tenant_id, id, job_id, comment, score)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING tenant_id, id, job_id, comment, score, created_at`

	args := []any{cmd.TenantID, uuid.New(), cmd.JobID, cmd.Comment, cmd.Score}

	f, err := repository.QueryOne(ctx, r.db, q, args, scanFeedback)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrInvalidRequest)
	}

	r.logger.Info("feedback recorded", "tenant", f.TenantID, "job", f.JobID)
	return &f, nil
}

func (r *repo) List(
	ctx context.Context,
	tenantID string,
	page pagination.PageRequest,
) (*pagination.PageResult[Feedback], error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}
	page.Normalize(r.pagination)

	qb := query.
		NewBuilder(projection, defaultSort).
		WhereEquals("TenantID", tenantID)

	if len(page.Sort) > 0 {
		qb.OrderByFields(page.Sort)
	}

	countSQL, countArgs := qb.BuildCount()
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count feedback: %w", err)
	}

	pageSQL, pageArgs := qb.BuildPage(page.Page, page.PageSize)
	items, err := repository.QueryMany(ctx, r.db, pageSQL, pageArgs, scanFeedback)
	if err != nil {
		return nil, fmt.Errorf("query feedback: %w", err)
	}

	result := pagination.NewPageResult(items, total, page.Page, page.PageSize)
	return &result, nil
}

// Recent returns the newest feedback for a tenant, used to weight
// retrieval for new jobs.
func (r *repo) Recent(ctx context.Context, tenantID string, limit int) ([]Feedback, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}

	return repository.QueryMany(ctx, r.db, `
		SELECT tenant_id, id, job_id, comment, score, created_at
		FROM feedback
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		[]any{tenantID, limit}, scanFeedback)
}

func scanFeedback(s repository.Scanner) (Feedback, error) {
	var f Feedback
	err := s.Scan(&f.TenantID, &f.ID, &f.JobID, &f.Comment, &f.Score, &f.CreatedAt)
	return f, err
}
