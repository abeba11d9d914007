package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/atelier-systems/tailor/internal/capability"
	"github.com/atelier-systems/tailor/internal/evaluation"
	"github.com/atelier-systems/tailor/pkg/storage"
)

// State carries intermediate stage outputs between stage boundaries. It
// is persisted to blob storage after each completed stage so a job can
// be resumed from its last committed stage by any process.
type State struct {
	JD          *capability.JobDescription `json:"jd,omitempty"`
	Resume      *capability.ResumeDocument `json:"resume,omitempty"`
	QueryVector []float64                  `json:"queryVector,omitempty"`
	Evidence    []capability.EvidenceChunk `json:"evidence,omitempty"`
	Candidate   *capability.ResumeDocument `json:"candidate,omitempty"`
	ChangeLog   []capability.ChangeEntry   `json:"changeLog,omitempty"`
	Directives  []string                   `json:"directives,omitempty"`
	Report      *evaluation.Report         `json:"report,omitempty"`
	DOCX        []byte                     `json:"docx,omitempty"`
	PDF         []byte                     `json:"pdf,omitempty"`
}

// artifactKey builds the blob key for a job-scoped artifact.
func artifactKey(tenantID string, jobID uuid.UUID, name string) string {
	return fmt.Sprintf("%s/jobs/%s/%s", tenantID, jobID, name)
}

// jobPrefix is the blob key prefix covering all of a job's artifacts.
func jobPrefix(tenantID string, jobID uuid.UUID) string {
	return fmt.Sprintf("%s/jobs/%s/", tenantID, jobID)
}

// StateStore persists pipeline state to blob storage.
type StateStore struct {
	store storage.System
}

// NewStateStore creates a StateStore backed by the given storage system.
func NewStateStore(store storage.System) *StateStore {
	return &StateStore{store: store}
}

// Load fetches the persisted state for a job. A job with no stored state
// yet yields an empty State.
func (s *StateStore) Load(ctx context.Context, tenantID string, jobID uuid.UUID) (*State, error) {
	reader, err := s.store.Download(ctx, artifactKey(tenantID, jobID, "state.json"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return &State{}, nil
		}
		return nil, fmt.Errorf("load pipeline state: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read pipeline state: %w", err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode pipeline state: %w", err)
	}
	return &st, nil
}

// Save overwrites the persisted state for a job.
func (s *StateStore) Save(ctx context.Context, tenantID string, jobID uuid.UUID, st *State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode pipeline state: %w", err)
	}

	key := artifactKey(tenantID, jobID, "state.json")
	if err := s.store.Upload(ctx, key, bytes.NewReader(data), "application/json"); err != nil {
		return fmt.Errorf("save pipeline state: %w", err)
	}
	return nil
}
