package jobs

import (
	"encoding/json"
	"net/url"

	"github.com/atelier-systems/tailor/internal/evaluation"
	"github.com/atelier-systems/tailor/pkg/query"
	"github.com/atelier-systems/tailor/pkg/repository"
)

var projection = query.
	NewProjectionMap("public", "jobs", "j").
	Project("tenant_id", "TenantID").
	Project("id", "ID").
	Project("stage", "Stage").
	Project("status", "Status").
	Project("failure_reason", "FailureReason").
	Project("gap_fill_cycles", "GapFillCycles").
	Project("cancel_requested", "CancelRequested").
	Project("version", "Version").
	Project("jd_key", "JDKey").
	Project("resume_key", "ResumeKey").
	Project("document_key", "DocumentKey").
	Project("change_log_key", "ChangeLogKey").
	Project("report_key", "ReportKey").
	Project("report", "Report").
	Project("created_at", "CreatedAt").
	Project("updated_at", "UpdatedAt").
	Project("expires_at", "ExpiresAt").
	Project("deleted_at", "DeletedAt")

var defaultSort = query.SortField{
	Field:      "CreatedAt",
	Descending: true,
}

// jobColumns mirrors the projection order for unaliased RETURNING clauses.
const jobColumns = `tenant_id, id, stage, status, failure_reason, gap_fill_cycles,
	cancel_requested, version, jd_key, resume_key, document_key, change_log_key,
	report_key, report, created_at, updated_at, expires_at, deleted_at`

// Filters contains optional filtering criteria for job queries.
// Nil fields are ignored; Status and Stage use exact matching.
type Filters struct {
	Status *string `json:"status,omitempty"`
	Stage  *string `json:"stage,omitempty"`
}

// Apply adds filter conditions to a query builder.
func (f Filters) Apply(b *query.Builder) *query.Builder {
	return b.
		WhereEquals("Status", f.Status).
		WhereEquals("Stage", f.Stage)
}

// FiltersFromQuery extracts filter values from URL query parameters.
func FiltersFromQuery(values url.Values) Filters {
	var f Filters

	if s := values.Get("status"); s != "" {
		f.Status = &s
	}
	if s := values.Get("stage"); s != "" {
		f.Stage = &s
	}

	return f
}

func scanJob(s repository.Scanner) (Job, error) {
	var (
		j      Job
		report []byte
	)

	err := s.Scan(
		&j.TenantID,
		&j.ID,
		&j.Stage,
		&j.Status,
		&j.FailureReason,
		&j.GapFillCycles,
		&j.CancelRequested,
		&j.Version,
		&j.JDKey,
		&j.ResumeKey,
		&j.DocumentKey,
		&j.ChangeLogKey,
		&j.ReportKey,
		&report,
		&j.CreatedAt,
		&j.UpdatedAt,
		&j.ExpiresAt,
		&j.DeletedAt,
	)
	if err != nil {
		return j, err
	}

	if len(report) > 0 {
		var r evaluation.Report
		if err := json.Unmarshal(report, &r); err != nil {
			return j, err
		}
		j.Report = &r
	}

	return j, nil
}

func scanExecution(s repository.Scanner) (StageExecution, error) {
	var e StageExecution
	err := s.Scan(
		&e.ID,
		&e.TenantID,
		&e.JobID,
		&e.Stage,
		&e.Attempt,
		&e.Status,
		&e.ErrorClass,
		&e.ErrorDetail,
		&e.StartedAt,
		&e.FinishedAt,
	)
	return e, err
}
