package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/atelier-systems/tailor/internal/capability"
	"github.com/atelier-systems/tailor/internal/evaluation"
	"github.com/atelier-systems/tailor/internal/feedback"
	"github.com/atelier-systems/tailor/internal/jobs"
	"github.com/atelier-systems/tailor/pkg/lifecycle"
	"github.com/atelier-systems/tailor/pkg/pagination"
	"github.com/atelier-systems/tailor/pkg/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// memJobs is an in-memory jobs.System with the same optimistic version
// semantics as the database-backed repository.
type memJobs struct {
	mu      sync.Mutex
	rows    map[uuid.UUID]jobs.Job
	execs   []jobs.StageExecution
	dupNext bool
}

func newMemJobs() *memJobs {
	return &memJobs{rows: make(map[uuid.UUID]jobs.Job)}
}

// put seeds a job row directly, bypassing Create defaults.
func (m *memJobs) put(j jobs.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[j.ID] = j
}

func (m *memJobs) Create(ctx context.Context, cmd jobs.CreateCommand) (*jobs.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	j := jobs.Job{
		TenantID:  cmd.TenantID,
		ID:        uuid.New(),
		Stage:     jobs.StageIntake,
		Status:    jobs.StatusPending,
		JDKey:     cmd.JDKey,
		ResumeKey: cmd.ResumeKey,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(168 * time.Hour),
	}
	m.rows[j.ID] = j

	out := j
	return &out, nil
}

func (m *memJobs) Find(ctx context.Context, tenantID string, id uuid.UUID) (*jobs.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.rows[id]
	if !ok || j.TenantID != tenantID {
		return nil, jobs.ErrNotFound
	}
	out := j
	return &out, nil
}

func (m *memJobs) List(
	ctx context.Context,
	tenantID string,
	page pagination.PageRequest,
	filters jobs.Filters,
) (*pagination.PageResult[jobs.Job], error) {
	return nil, errors.New("not supported")
}

func (m *memJobs) mutate(job *jobs.Job, apply func(*jobs.Job)) (*jobs.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.rows[job.ID]
	if !ok || row.DeletedAt != nil {
		return nil, jobs.ErrNotFound
	}
	if row.Version != job.Version {
		return nil, jobs.ErrStale
	}

	apply(&row)
	row.Version++
	row.UpdatedAt = time.Now().UTC()
	m.rows[job.ID] = row

	out := row
	return &out, nil
}

func (m *memJobs) Advance(ctx context.Context, job *jobs.Job, next jobs.Stage) (*jobs.Job, error) {
	if job.Status.Terminal() {
		return nil, jobs.ErrTerminal
	}
	if next.Index() <= job.Stage.Index() {
		return nil, jobs.ErrInvalidRequest
	}
	return m.mutate(job, func(j *jobs.Job) {
		j.Stage = next
		j.Status = jobs.StatusRunning
	})
}

func (m *memJobs) GapFill(ctx context.Context, job *jobs.Job) (*jobs.Job, error) {
	if job.Stage != jobs.StageValidate {
		return nil, jobs.ErrInvalidRequest
	}
	return m.mutate(job, func(j *jobs.Job) {
		j.Stage = jobs.StageGenerate
		j.GapFillCycles++
	})
}

func (m *memJobs) Complete(
	ctx context.Context,
	job *jobs.Job,
	keys jobs.ArtifactKeys,
	report *evaluation.Report,
) (*jobs.Job, error) {
	return m.mutate(job, func(j *jobs.Job) {
		j.Stage = jobs.StageDone
		j.Status = jobs.StatusSucceeded
		j.DocumentKey = &keys.Document
		j.ChangeLogKey = &keys.ChangeLog
		j.ReportKey = &keys.Report
		j.Report = report
	})
}

func (m *memJobs) Fail(ctx context.Context, job *jobs.Job, reason string) (*jobs.Job, error) {
	return m.mutate(job, func(j *jobs.Job) {
		j.Status = jobs.StatusFailed
		j.FailureReason = &reason
	})
}

func (m *memJobs) RequestCancel(ctx context.Context, tenantID string, id uuid.UUID) (*jobs.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.rows[id]
	if !ok || row.TenantID != tenantID {
		return nil, jobs.ErrNotFound
	}
	if row.Status.Terminal() {
		return nil, jobs.ErrTerminal
	}

	row.CancelRequested = true
	row.Version++
	row.UpdatedAt = time.Now().UTC()
	m.rows[id] = row

	out := row
	return &out, nil
}

func (m *memJobs) MarkCancelled(ctx context.Context, job *jobs.Job) (*jobs.Job, error) {
	return m.mutate(job, func(j *jobs.Job) {
		j.Status = jobs.StatusCancelled
	})
}

func (m *memJobs) Stuck(ctx context.Context, idleSince time.Time, limit int) ([]jobs.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stuck []jobs.Job
	for _, j := range m.rows {
		if j.Status.Terminal() || j.DeletedAt != nil {
			continue
		}
		if j.UpdatedAt.Before(idleSince) {
			stuck = append(stuck, j)
		}
		if len(stuck) >= limit {
			break
		}
	}
	return stuck, nil
}

func (m *memJobs) Expired(ctx context.Context, limit int) ([]jobs.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expired []jobs.Job
	for _, j := range m.rows {
		if j.DeletedAt != nil {
			continue
		}
		if j.ExpiresAt.Before(time.Now().UTC()) {
			expired = append(expired, j)
		}
		if len(expired) >= limit {
			break
		}
	}
	return expired, nil
}

func (m *memJobs) Tombstone(ctx context.Context, job *jobs.Job) error {
	_, err := m.mutate(job, func(j *jobs.Job) {
		now := time.Now().UTC()
		j.DeletedAt = &now
	})
	return err
}

func (m *memJobs) NextAttempt(ctx context.Context, tenantID string, jobID uuid.UUID, stage jobs.Stage) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	max := 0
	for _, e := range m.execs {
		if e.TenantID == tenantID && e.JobID == jobID && e.Stage == stage && e.Attempt > max {
			max = e.Attempt
		}
	}
	return max + 1, nil
}

func (m *memJobs) BeginExecution(
	ctx context.Context,
	tenantID string,
	jobID uuid.UUID,
	stage jobs.Stage,
	attempt int,
) (*jobs.StageExecution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dupNext {
		// Simulate a concurrent dispatcher claiming this attempt first.
		m.dupNext = false
		m.execs = append(m.execs, jobs.StageExecution{
			ID:       uuid.New(),
			TenantID: tenantID,
			JobID:    jobID,
			Stage:    stage,
			Attempt:  attempt,
			Status:   jobs.ExecutionRunning,
		})
		return nil, jobs.ErrDuplicateAttempt
	}

	for _, e := range m.execs {
		if e.TenantID == tenantID && e.JobID == jobID && e.Stage == stage && e.Attempt == attempt {
			return nil, jobs.ErrDuplicateAttempt
		}
	}

	e := jobs.StageExecution{
		ID:        uuid.New(),
		TenantID:  tenantID,
		JobID:     jobID,
		Stage:     stage,
		Attempt:   attempt,
		Status:    jobs.ExecutionRunning,
		StartedAt: time.Now().UTC(),
	}
	m.execs = append(m.execs, e)

	out := e
	return &out, nil
}

func (m *memJobs) FinishExecution(
	ctx context.Context,
	id uuid.UUID,
	status jobs.ExecutionStatus,
	errClass, errDetail *string,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.execs {
		if m.execs[i].ID == id && m.execs[i].FinishedAt == nil {
			now := time.Now().UTC()
			m.execs[i].Status = status
			m.execs[i].ErrorClass = errClass
			m.execs[i].ErrorDetail = errDetail
			m.execs[i].FinishedAt = &now
			return nil
		}
	}
	return jobs.ErrNotFound
}

func (m *memJobs) Executions(ctx context.Context, tenantID string, jobID uuid.UUID) ([]jobs.StageExecution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []jobs.StageExecution
	for _, e := range m.execs {
		if e.TenantID == tenantID && e.JobID == jobID {
			out = append(out, e)
		}
	}
	return out, nil
}

// executionsFor filters recorded attempts by stage.
func (m *memJobs) executionsFor(stage jobs.Stage) []jobs.StageExecution {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []jobs.StageExecution
	for _, e := range m.execs {
		if e.Stage == stage {
			out = append(out, e)
		}
	}
	return out
}

// memStore is an in-memory storage.System.
type memStore struct {
	mu         sync.Mutex
	blobs      map[string][]byte
	uploadErrs map[string]error
}

func newMemStore() *memStore {
	return &memStore{
		blobs:      make(map[string][]byte),
		uploadErrs: make(map[string]error),
	}
}

func (s *memStore) Start(lc *lifecycle.Coordinator) error { return nil }

// failUploadOnce makes the next Upload of key return err.
func (s *memStore) failUploadOnce(key string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploadErrs[key] = err
}

func (s *memStore) Upload(ctx context.Context, key string, reader io.Reader, contentType string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err, ok := s.uploadErrs[key]; ok {
		delete(s.uploadErrs, key)
		return err
	}

	s.blobs[key] = data
	return nil
}

func (s *memStore) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.blobs[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *memStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blobs[key]; !ok {
		return storage.ErrNotFound
	}
	delete(s.blobs, key)
	return nil
}

func (s *memStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.blobs[key]
	return ok, nil
}

func (s *memStore) List(ctx context.Context, prefix string, max int32) ([]storage.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []storage.ObjectInfo
	for key, data := range s.blobs {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		out = append(out, storage.ObjectInfo{Key: key, Size: int64(len(data))})
		if int32(len(out)) >= max {
			break
		}
	}
	return out, nil
}

func (s *memStore) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blobs[key]; !ok {
		return "", storage.ErrNotFound
	}
	return "https://signed.test/" + key, nil
}

func (s *memStore) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.blobs[key]
	return ok
}

// fakeFeedback serves a fixed set of reviewer notes.
type fakeFeedback struct {
	items []feedback.Feedback
	err   error
}

func (f fakeFeedback) Create(ctx context.Context, cmd feedback.CreateCommand) (*feedback.Feedback, error) {
	return nil, errors.New("not supported")
}

func (f fakeFeedback) List(
	ctx context.Context,
	tenantID string,
	page pagination.PageRequest,
) (*pagination.PageResult[feedback.Feedback], error) {
	return nil, errors.New("not supported")
}

func (f fakeFeedback) Recent(ctx context.Context, tenantID string, limit int) ([]feedback.Feedback, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.items, nil
}

// Function adapters for the capability contracts.
type parserFunc func(context.Context, capability.ParseRequest) (*capability.ParseResult, error)

func (f parserFunc) Parse(ctx context.Context, req capability.ParseRequest) (*capability.ParseResult, error) {
	return f(ctx, req)
}

type embedderFunc func(context.Context, capability.EmbedRequest) (*capability.EmbedResult, error)

func (f embedderFunc) Embed(ctx context.Context, req capability.EmbedRequest) (*capability.EmbedResult, error) {
	return f(ctx, req)
}

type retrieverFunc func(context.Context, capability.RetrieveRequest) (*capability.RetrieveResult, error)

func (f retrieverFunc) Retrieve(ctx context.Context, req capability.RetrieveRequest) (*capability.RetrieveResult, error) {
	return f(ctx, req)
}

type generatorFunc func(context.Context, capability.GenerateRequest) (*capability.GenerateResult, error)

func (f generatorFunc) Generate(ctx context.Context, req capability.GenerateRequest) (*capability.GenerateResult, error) {
	return f(ctx, req)
}

type rendererFunc func(context.Context, capability.RenderRequest) (*capability.RenderResult, error)

func (f rendererFunc) Render(ctx context.Context, req capability.RenderRequest) (*capability.RenderResult, error) {
	return f(ctx, req)
}
