package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/atelier-systems/tailor/internal/capability"
	"github.com/atelier-systems/tailor/internal/jobs"
)

// Error classes recorded on stage executions.
const (
	classTransient = "transient"
	classTerminal  = "terminal"
	classTimeout   = "timeout"
)

// ErrAttemptsExhausted wraps the last transient failure once the retry
// budget for a stage is spent.
var ErrAttemptsExhausted = errors.New("stage attempts exhausted")

// StageFunc performs the work of one stage attempt.
type StageFunc func(ctx context.Context) error

// Executor runs one stage of one job with per-attempt timeout and
// bounded exponential-backoff retry. Every attempt is recorded as a
// StageExecution row before the caller observes the outcome, so the
// store reflects the true history even across a crash.
type Executor struct {
	sys          jobs.System
	policy       RetryPolicy
	stageTimeout time.Duration
	logger       *slog.Logger
}

// NewExecutor creates an Executor with the given job system, retry
// policy, and per-attempt timeout.
func NewExecutor(sys jobs.System, policy RetryPolicy, stageTimeout time.Duration, logger *slog.Logger) *Executor {
	return &Executor{
		sys:          sys,
		policy:       policy,
		stageTimeout: stageTimeout,
		logger:       logger.With("system", "executor"),
	}
}

// Run executes fn for the given stage until it succeeds, a terminal
// failure surfaces, or the retry budget is exhausted. Transient failures
// back off exponentially between attempts. The budget counts attempts
// made by this invocation: recorded attempt numbers are cumulative per
// (job, stage), but a gap-fill re-entry gets the full budget again.
func (e *Executor) Run(ctx context.Context, job *jobs.Job, stage jobs.Stage, fn StageFunc) error {
	tries := 0

	for {
		attempt, err := e.sys.NextAttempt(ctx, job.TenantID, job.ID, stage)
		if err != nil {
			return err
		}

		exec, err := e.sys.BeginExecution(ctx, job.TenantID, job.ID, stage, attempt)
		if err != nil {
			if errors.Is(err, jobs.ErrDuplicateAttempt) {
				// Concurrent dispatch claimed this attempt first.
				continue
			}
			return err
		}

		tries++
		attemptCtx, cancel := context.WithTimeout(ctx, e.stageTimeout)
		stageErr := fn(attemptCtx)
		cancel()

		if stageErr == nil {
			if err := e.sys.FinishExecution(ctx, exec.ID, jobs.ExecutionSucceeded, nil, nil); err != nil {
				return err
			}
			return nil
		}

		class := classify(stageErr)
		detail := stageErr.Error()
		if err := e.sys.FinishExecution(ctx, exec.ID, jobs.ExecutionFailed, &class, &detail); err != nil {
			return err
		}

		e.logger.Warn("stage attempt failed",
			"tenant", job.TenantID, "job", job.ID,
			"stage", stage, "attempt", attempt,
			"class", class, "error", stageErr)

		if class == classTerminal {
			return stageErr
		}
		if tries >= e.policy.MaxAttempts {
			return fmt.Errorf("%w: stage %s after %d attempts: %w",
				ErrAttemptsExhausted, stage, tries, stageErr)
		}

		select {
		case <-time.After(e.policy.Backoff(tries)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func classify(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return classTimeout
	}
	if capability.Classify(err) == capability.ClassTransient {
		return classTransient
	}
	return classTerminal
}
