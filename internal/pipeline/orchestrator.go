package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"golang.org/x/sync/errgroup"

	"github.com/atelier-systems/tailor/internal/capability"
	"github.com/atelier-systems/tailor/internal/evaluation"
	"github.com/atelier-systems/tailor/internal/feedback"
	"github.com/atelier-systems/tailor/internal/jobs"
	"github.com/atelier-systems/tailor/pkg/formatting"
	"github.com/atelier-systems/tailor/pkg/lifecycle"
	"github.com/atelier-systems/tailor/pkg/storage"
)

var (
	errInputMissing = errors.New("input document missing")
	errQualityGate  = errors.New("quality gate not met")
	errStateMissing = errors.New("pipeline state incomplete for stage")
	errStatePersist = errors.New("pipeline state not persisted")
)

// feedbackLimit caps how many recent reviewer notes weight retrieval.
const feedbackLimit = 20

// verifyPDF confirms rendered PDF bytes parse and contain at least one
// page before they are committed as the job's artifact.
var verifyPDF = func(data []byte) error {
	pages, err := api.PageCount(bytes.NewReader(data), nil)
	if err != nil {
		return err
	}
	if pages < 1 {
		return errors.New("pdf has no pages")
	}
	return nil
}

// Options holds orchestration bounds and quality-gate thresholds.
type Options struct {
	JobTimeout   time.Duration
	GapFillLimit int
	TopK         int
	Thresholds   evaluation.Thresholds
}

// Orchestrator drives jobs through the stage sequence. Each job runs on
// its own goroutine; the inflight map makes Dispatch idempotent within a
// process, and optimistic job versioning makes it safe across processes.
type Orchestrator struct {
	jobs     jobs.System
	feedback feedback.System
	caps     capability.Set
	engine   evaluation.Engine
	store    storage.System
	states   *StateStore
	exec     *Executor
	opts     Options
	logger   *slog.Logger

	base     context.Context
	inflight sync.Map
}

// NewOrchestrator creates an Orchestrator over the given collaborators.
func NewOrchestrator(
	jobSys jobs.System,
	feedbackSys feedback.System,
	caps capability.Set,
	engine evaluation.Engine,
	store storage.System,
	exec *Executor,
	opts Options,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		jobs:     jobSys,
		feedback: feedbackSys,
		caps:     caps,
		engine:   engine,
		store:    store,
		states:   NewStateStore(store),
		exec:     exec,
		opts:     opts,
		logger:   logger.With("system", "orchestrator"),
	}
}

// Start binds the orchestrator to the lifecycle coordinator's context;
// in-flight stage work observes shutdown through derived contexts.
func (o *Orchestrator) Start(lc *lifecycle.Coordinator) error {
	o.base = lc.Context()
	o.logger.Info("starting orchestrator")
	return nil
}

// Dispatch starts or resumes orchestration for a job. A job already
// running in this process is left alone.
func (o *Orchestrator) Dispatch(job *jobs.Job) {
	if _, running := o.inflight.LoadOrStore(job.ID, struct{}{}); running {
		return
	}

	go func() {
		defer o.inflight.Delete(job.ID)
		o.run(job)
	}()
}

func (o *Orchestrator) baseContext() context.Context {
	if o.base != nil {
		return o.base
	}
	return context.Background()
}

func (o *Orchestrator) run(job *jobs.Job) {
	deadline := job.CreatedAt.Add(o.opts.JobTimeout)
	ctx, cancel := context.WithDeadline(o.baseContext(), deadline)
	defer cancel()

	st, err := o.states.Load(ctx, job.TenantID, job.ID)
	if err != nil {
		o.logger.Error("state load failed", "tenant", job.TenantID, "job", job.ID, "error", err)
		return
	}

	for {
		fresh, err := o.jobs.Find(ctx, job.TenantID, job.ID)
		if err != nil {
			o.logger.Error("job reload failed", "tenant", job.TenantID, "job", job.ID, "error", err)
			return
		}
		job = fresh

		if job.Status.Terminal() || job.Stage == jobs.StageDone {
			return
		}
		if job.CancelRequested {
			if _, err := o.jobs.MarkCancelled(ctx, job); err != nil && !errors.Is(err, jobs.ErrStale) {
				o.logger.Error("cancel commit failed", "tenant", job.TenantID, "job", job.ID, "error", err)
			}
			return
		}
		if time.Now().After(deadline) {
			o.fail(job, jobs.ReasonTimeout)
			return
		}

		next, err := o.step(ctx, job, st)
		if err != nil {
			if errors.Is(err, jobs.ErrStale) {
				// Another writer advanced the job; reload and reassess.
				continue
			}
			if errors.Is(err, context.Canceled) {
				// Shutdown; the housekeeper resumes the job later.
				return
			}
			if errors.Is(err, errStatePersist) {
				// The job row still points at its last committed stage, so
				// the stuck-job sweep re-dispatches it once it goes idle.
				o.logger.Warn("state save failed, leaving job for sweep",
					"tenant", job.TenantID, "job", job.ID, "stage", job.Stage, "error", err)
				return
			}
			o.fail(job, failureReason(err))
			return
		}
		job = next
	}
}

// step executes the job's current stage and commits the resulting
// transition. It returns the updated job row.
func (o *Orchestrator) step(ctx context.Context, job *jobs.Job, st *State) (*jobs.Job, error) {
	switch job.Stage {
	case jobs.StageIntake:
		return o.simpleStage(ctx, job, st, jobs.StageParse, func(ctx context.Context) error {
			return o.intake(ctx, job)
		})
	case jobs.StageParse:
		return o.simpleStage(ctx, job, st, jobs.StageEmbed, func(ctx context.Context) error {
			return o.parse(ctx, job, st)
		})
	case jobs.StageEmbed:
		return o.simpleStage(ctx, job, st, jobs.StageRetrieve, func(ctx context.Context) error {
			return o.embed(ctx, job, st)
		})
	case jobs.StageRetrieve:
		return o.simpleStage(ctx, job, st, jobs.StageGenerate, func(ctx context.Context) error {
			return o.retrieve(ctx, job, st)
		})
	case jobs.StageGenerate:
		return o.simpleStage(ctx, job, st, jobs.StageValidate, func(ctx context.Context) error {
			return o.generate(ctx, job, st)
		})
	case jobs.StageValidate:
		return o.validate(ctx, job, st)
	case jobs.StageRender:
		return o.simpleStage(ctx, job, st, jobs.StagePersist, func(ctx context.Context) error {
			return o.render(ctx, job, st)
		})
	case jobs.StagePersist:
		return o.persist(ctx, job, st)
	default:
		return nil, fmt.Errorf("unknown stage %s", job.Stage)
	}
}

// simpleStage runs fn through the executor, saves state, and advances.
func (o *Orchestrator) simpleStage(
	ctx context.Context,
	job *jobs.Job,
	st *State,
	next jobs.Stage,
	fn StageFunc,
) (*jobs.Job, error) {
	if err := o.exec.Run(ctx, job, job.Stage, fn); err != nil {
		return nil, err
	}
	if err := o.states.Save(ctx, job.TenantID, job.ID, st); err != nil {
		return nil, fmt.Errorf("%w: %w", errStatePersist, err)
	}
	return o.jobs.Advance(ctx, job, next)
}

// validate computes the quality report and applies the gate: pass
// advances to RENDER, a failing report re-enters GENERATE with gap-fill
// directives until the cycle bound, then the job fails.
func (o *Orchestrator) validate(ctx context.Context, job *jobs.Job, st *State) (*jobs.Job, error) {
	err := o.exec.Run(ctx, job, job.Stage, func(ctx context.Context) error {
		if st.JD == nil || st.Candidate == nil {
			return fmt.Errorf("%w: %s", errStateMissing, job.Stage)
		}
		report := o.engine.Evaluate(*st.JD, *st.Candidate, st.Evidence)
		st.Report = &report
		return nil
	})
	if err != nil {
		return nil, err
	}

	if st.Report.Passes(o.opts.Thresholds) {
		st.Directives = nil
		if err := o.states.Save(ctx, job.TenantID, job.ID, st); err != nil {
			return nil, fmt.Errorf("%w: %w", errStatePersist, err)
		}
		return o.jobs.Advance(ctx, job, jobs.StageRender)
	}

	if job.GapFillCycles >= o.opts.GapFillLimit {
		return nil, fmt.Errorf("%w after %d gap-fill cycles", errQualityGate, job.GapFillCycles)
	}

	st.Directives = directives(*st.Report)
	if err := o.states.Save(ctx, job.TenantID, job.ID, st); err != nil {
		return nil, fmt.Errorf("%w: %w", errStatePersist, err)
	}

	o.logger.Info("quality gate failed, re-entering generation",
		"tenant", job.TenantID, "job", job.ID,
		"coverage", st.Report.JDCoverage, "keywords", st.Report.ATSKeywordScore,
		"hallucinations", len(st.Report.Hallucinations))
	return o.jobs.GapFill(ctx, job)
}

// persist uploads the artifacts and commits keys, report, and DONE in a
// single optimistic update. Failure leaves the job in PERSIST; uploads
// are idempotent overwrites, so re-dispatch is safe.
func (o *Orchestrator) persist(ctx context.Context, job *jobs.Job, st *State) (*jobs.Job, error) {
	var keys jobs.ArtifactKeys

	err := o.exec.Run(ctx, job, job.Stage, func(ctx context.Context) error {
		uploaded, err := o.uploadArtifacts(ctx, job, st)
		if err != nil {
			return err
		}
		keys = uploaded
		return nil
	})
	if err != nil {
		return nil, err
	}

	return o.jobs.Complete(ctx, job, keys, st.Report)
}

func (o *Orchestrator) uploadArtifacts(ctx context.Context, job *jobs.Job, st *State) (jobs.ArtifactKeys, error) {
	var keys jobs.ArtifactKeys

	if st.Report == nil || len(st.DOCX) == 0 || len(st.PDF) == 0 {
		return keys, fmt.Errorf("%w: %s", errStateMissing, job.Stage)
	}
	if err := verifyPDF(st.PDF); err != nil {
		return keys, fmt.Errorf("%w: pdf verification: %w", capability.ErrRenderFailed, err)
	}

	changeLog, err := json.Marshal(st.ChangeLog)
	if err != nil {
		return keys, fmt.Errorf("encode change log: %w", err)
	}
	report, err := json.Marshal(st.Report)
	if err != nil {
		return keys, fmt.Errorf("encode report: %w", err)
	}

	keys = jobs.ArtifactKeys{
		Document:  artifactKey(job.TenantID, job.ID, "tailored.docx"),
		ChangeLog: artifactKey(job.TenantID, job.ID, "changelog.json"),
		Report:    artifactKey(job.TenantID, job.ID, "report.json"),
	}
	pdfKey := artifactKey(job.TenantID, job.ID, "tailored.pdf")

	uploads := []struct {
		key         string
		data        []byte
		contentType string
	}{
		{keys.Document, st.DOCX, "application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
		{pdfKey, st.PDF, "application/pdf"},
		{keys.ChangeLog, changeLog, "application/json"},
		{keys.Report, report, "application/json"},
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, u := range uploads {
		g.Go(func() error {
			if err := o.store.Upload(ctx, u.key, bytes.NewReader(u.data), u.contentType); err != nil {
				return fmt.Errorf("%w: upload %s: %w", capability.ErrUnavailable, u.key, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return keys, err
	}

	return keys, nil
}

func (o *Orchestrator) intake(ctx context.Context, job *jobs.Job) error {
	for _, key := range []string{job.JDKey, job.ResumeKey} {
		exists, err := o.store.Exists(ctx, key)
		if err != nil {
			return fmt.Errorf("%w: check %s: %w", capability.ErrUnavailable, key, err)
		}
		if !exists {
			return fmt.Errorf("%w: %s", errInputMissing, key)
		}
	}
	return nil
}

func (o *Orchestrator) parse(ctx context.Context, job *jobs.Job, st *State) error {
	jd, err := o.parseDocument(ctx, job, job.JDKey, capability.KindJobDescription)
	if err != nil {
		return err
	}
	if jd.JobDescription == nil {
		return fmt.Errorf("%w: provider returned no job description", capability.ErrUnreadableDocument)
	}

	resume, err := o.parseDocument(ctx, job, job.ResumeKey, capability.KindResume)
	if err != nil {
		return err
	}
	if resume.Resume == nil {
		return fmt.Errorf("%w: provider returned no resume", capability.ErrUnreadableDocument)
	}

	st.JD = jd.JobDescription
	st.Resume = resume.Resume
	return nil
}

func (o *Orchestrator) parseDocument(
	ctx context.Context,
	job *jobs.Job,
	key string,
	kind capability.DocumentKind,
) (*capability.ParseResult, error) {
	reader, err := o.store.Download(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", errInputMissing, key)
		}
		return nil, fmt.Errorf("%w: download %s: %w", capability.ErrUnavailable, key, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", capability.ErrUnavailable, key, err)
	}

	return o.caps.Parser.Parse(ctx, capability.ParseRequest{
		TenantID:    job.TenantID,
		Data:        data,
		ContentType: contentTypeForKey(key),
		Kind:        kind,
	})
}

func (o *Orchestrator) embed(ctx context.Context, job *jobs.Job, st *State) error {
	if st.JD == nil {
		return fmt.Errorf("%w: %s", errStateMissing, job.Stage)
	}

	result, err := o.caps.Embedder.Embed(ctx, capability.EmbedRequest{
		TenantID: job.TenantID,
		JobID:    job.ID.String(),
		Texts:    []string{queryText(st.JD)},
	})
	if err != nil {
		return err
	}
	if len(result.Vectors) == 0 {
		return fmt.Errorf("%w: no vectors returned", capability.ErrEmbeddingUnavailable)
	}

	st.QueryVector = result.Vectors[0]
	return nil
}

func (o *Orchestrator) retrieve(ctx context.Context, job *jobs.Job, st *State) error {
	if len(st.QueryVector) == 0 {
		return fmt.Errorf("%w: %s", errStateMissing, job.Stage)
	}

	// Feedback weighting is auxiliary: a read failure degrades to an
	// unweighted query rather than failing the stage.
	var notes []capability.FeedbackNote
	if recent, err := o.feedback.Recent(ctx, job.TenantID, feedbackLimit); err != nil {
		o.logger.Warn("feedback read failed", "tenant", job.TenantID, "job", job.ID, "error", err)
	} else {
		notes = feedback.Notes(recent)
	}

	result, err := o.caps.Retriever.Retrieve(ctx, capability.RetrieveRequest{
		TenantID: job.TenantID,
		JobID:    job.ID.String(),
		Vector:   st.QueryVector,
		TopK:     o.opts.TopK,
		Feedback: notes,
	})
	if err != nil {
		return err
	}

	st.Evidence = result.Chunks
	return nil
}

type generatedPayload struct {
	Document  capability.ResumeDocument `json:"document"`
	ChangeLog []capability.ChangeEntry  `json:"changeLog"`
}

func (o *Orchestrator) generate(ctx context.Context, job *jobs.Job, st *State) error {
	if st.JD == nil || st.Resume == nil {
		return fmt.Errorf("%w: %s", errStateMissing, job.Stage)
	}

	result, err := o.caps.Generator.Generate(ctx, capability.GenerateRequest{
		TenantID:   job.TenantID,
		JobID:      job.ID.String(),
		Prompt:     buildPrompt(st.JD, st.Resume),
		Evidence:   st.Evidence,
		Directives: st.Directives,
	})
	if err != nil {
		return err
	}

	payload, err := formatting.Parse[generatedPayload](result.Text)
	if err != nil {
		return fmt.Errorf("generation output: %w", err)
	}

	st.Candidate = &payload.Document
	st.ChangeLog = payload.ChangeLog
	return nil
}

func (o *Orchestrator) render(ctx context.Context, job *jobs.Job, st *State) error {
	if st.Candidate == nil {
		return fmt.Errorf("%w: %s", errStateMissing, job.Stage)
	}

	result, err := o.caps.Renderer.Render(ctx, capability.RenderRequest{
		TenantID:  job.TenantID,
		JobID:     job.ID.String(),
		Document:  *st.Candidate,
		ChangeLog: st.ChangeLog,
	})
	if err != nil {
		return err
	}
	if len(result.DOCX) == 0 || len(result.PDF) == 0 {
		return fmt.Errorf("%w: provider returned empty artifact", capability.ErrRenderFailed)
	}

	st.DOCX = result.DOCX
	st.PDF = result.PDF
	if result.ChangeLog != nil {
		st.ChangeLog = result.ChangeLog
	}
	return nil
}

// fail commits a terminal failure on a fresh context so a job-timeout
// expiry can still be recorded.
func (o *Orchestrator) fail(job *jobs.Job, reason string) {
	ctx, cancel := context.WithTimeout(o.baseContext(), 10*time.Second)
	defer cancel()

	if _, err := o.jobs.Fail(ctx, job, reason); err != nil && !errors.Is(err, jobs.ErrStale) {
		o.logger.Error("failure commit failed",
			"tenant", job.TenantID, "job", job.ID, "reason", reason, "error", err)
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, errInputMissing):
		return jobs.ReasonInputMissing
	case errors.Is(err, capability.ErrUnreadableDocument):
		return jobs.ReasonUnreadableDocument
	case errors.Is(err, errQualityGate):
		return jobs.ReasonQualityGateExceeded
	case errors.Is(err, context.DeadlineExceeded):
		return jobs.ReasonTimeout
	default:
		return jobs.ReasonStageFailed
	}
}

// queryText flattens the parsed JD into the retrieval query text.
func queryText(jd *capability.JobDescription) string {
	if jd.RawText != "" {
		return jd.RawText
	}

	parts := []string{jd.Title, jd.Summary}
	parts = append(parts, jd.Responsibilities...)
	parts = append(parts, jd.Requirements...)
	parts = append(parts, jd.Skills...)
	return strings.Join(parts, "\n")
}

func contentTypeForKey(key string) string {
	switch {
	case strings.HasSuffix(key, ".pdf"):
		return "application/pdf"
	case strings.HasSuffix(key, ".docx"):
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case strings.HasSuffix(key, ".txt"):
		return "text/plain"
	case strings.HasSuffix(key, ".md"):
		return "text/markdown"
	default:
		return "application/octet-stream"
	}
}
