// Package jobs implements the job domain for Tailor: the persisted,
// tenant-scoped record of each tailoring run and its per-stage execution
// history. The job row is the source of truth for idempotent resumption;
// all mutations apply an optimistic version check.
package jobs

import (
	"time"

	"github.com/google/uuid"

	"github.com/atelier-systems/tailor/internal/evaluation"
)

// Stage is one ordered unit of the tailoring pipeline.
type Stage string

const (
	StageIntake   Stage = "INTAKE"
	StageParse    Stage = "PARSE"
	StageEmbed    Stage = "EMBED"
	StageRetrieve Stage = "RETRIEVE"
	StageGenerate Stage = "GENERATE"
	StageValidate Stage = "VALIDATE"
	StageRender   Stage = "RENDER"
	StagePersist  Stage = "PERSIST"
	StageDone     Stage = "DONE"
)

// StageOrder is the fixed pipeline sequence. A job's stage only advances
// through this order, except for the bounded VALIDATE → GENERATE
// gap-fill re-entry.
var StageOrder = []Stage{
	StageIntake,
	StageParse,
	StageEmbed,
	StageRetrieve,
	StageGenerate,
	StageValidate,
	StageRender,
	StagePersist,
	StageDone,
}

// Index returns the stage's position in StageOrder, or -1 if unknown.
func (s Stage) Index() int {
	for i, stage := range StageOrder {
		if stage == s {
			return i
		}
	}
	return -1
}

// Next returns the following stage in order. ok is false for DONE and
// unknown stages.
func (s Stage) Next() (next Stage, ok bool) {
	i := s.Index()
	if i < 0 || i >= len(StageOrder)-1 {
		return "", false
	}
	return StageOrder[i+1], true
}

// Status is the job's lifecycle state.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCancelled
}

// Failure reasons recorded on terminal failure.
const (
	ReasonInputMissing        = "InputMissing"
	ReasonUnreadableDocument  = "UnreadableDocument"
	ReasonQualityGateExceeded = "QualityGateExceeded"
	ReasonTimeout             = "Timeout"
	ReasonStageFailed         = "StageFailed"
)

// Job is one tailoring run, identified by (tenant_id, id).
type Job struct {
	TenantID        string             `json:"tenant_id"`
	ID              uuid.UUID          `json:"id"`
	Stage           Stage              `json:"stage"`
	Status          Status             `json:"status"`
	FailureReason   *string            `json:"failure_reason,omitempty"`
	GapFillCycles   int                `json:"gap_fill_cycles"`
	CancelRequested bool               `json:"cancel_requested"`
	Version         int64              `json:"version"`
	JDKey           string             `json:"jd_key"`
	ResumeKey       string             `json:"resume_key"`
	DocumentKey     *string            `json:"document_key,omitempty"`
	ChangeLogKey    *string            `json:"change_log_key,omitempty"`
	ReportKey       *string            `json:"report_key,omitempty"`
	Report          *evaluation.Report `json:"report,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
	ExpiresAt       time.Time          `json:"expires_at"`
	DeletedAt       *time.Time         `json:"deleted_at,omitempty"`
}

// CreateCommand carries the data needed to register a new job.
type CreateCommand struct {
	TenantID  string
	JDKey     string
	ResumeKey string
}

// ArtifactKeys references the output artifacts committed on completion.
type ArtifactKeys struct {
	Document  string `json:"document"`
	ChangeLog string `json:"change_log"`
	Report    string `json:"report"`
}

// ExecutionStatus is the state of one stage attempt.
type ExecutionStatus string

const (
	ExecutionRunning   ExecutionStatus = "RUNNING"
	ExecutionSucceeded ExecutionStatus = "SUCCEEDED"
	ExecutionFailed    ExecutionStatus = "FAILED"
)

// StageExecution records one attempt of one stage for a job. Rows are
// immutable once terminal; the unique (tenant, job, stage, attempt) key
// makes duplicate dispatch a no-op.
type StageExecution struct {
	ID          uuid.UUID       `json:"id"`
	TenantID    string          `json:"tenant_id"`
	JobID       uuid.UUID       `json:"job_id"`
	Stage       Stage           `json:"stage"`
	Attempt     int             `json:"attempt"`
	Status      ExecutionStatus `json:"status"`
	ErrorClass  *string         `json:"error_class,omitempty"`
	ErrorDetail *string         `json:"error_detail,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	FinishedAt  *time.Time      `json:"finished_at,omitempty"`
}
