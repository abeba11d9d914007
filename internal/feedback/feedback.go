// Package feedback records reviewer feedback on tailored documents and
// feeds it back into retrieval weighting for subsequent jobs.
package feedback

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/atelier-systems/tailor/internal/capability"
	"github.com/atelier-systems/tailor/pkg/pagination"
)

var (
	ErrNotFound       = errors.New("feedback not found")
	ErrInvalidRequest = errors.New("invalid feedback request")
	ErrTenantRequired = errors.New("tenant id required")
)

// MapHTTPStatus maps feedback domain errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, ErrInvalidRequest) || errors.Is(err, ErrTenantRequired) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// Feedback is a reviewer note attached to a job's output.
type Feedback struct {
	TenantID  string    `json:"tenant_id"`
	ID        uuid.UUID `json:"id"`
	JobID     uuid.UUID `json:"job_id"`
	Comment   string    `json:"comment"`
	Score     float64   `json:"score"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateCommand carries the inputs for recording feedback.
type CreateCommand struct {
	TenantID string
	JobID    uuid.UUID
	Comment  string
	Score    float64
}

// System defines the public contract for feedback operations.
type System interface {
	Create(ctx context.Context, cmd CreateCommand) (*Feedback, error)
	List(
		ctx context.Context,
		tenantID string,
		page pagination.PageRequest,
	) (*pagination.PageResult[Feedback], error)
	Recent(ctx context.Context, tenantID string, limit int) ([]Feedback, error)
}

// Notes converts stored feedback into the retrieval weighting shape.
func Notes(items []Feedback) []capability.FeedbackNote {
	notes := make([]capability.FeedbackNote, 0, len(items))
	for _, f := range items {
		notes = append(notes, capability.FeedbackNote{
			Comment: f.Comment,
			Score:   f.Score,
		})
	}
	return notes
}
