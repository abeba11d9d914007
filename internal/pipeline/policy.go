// Package pipeline drives tailoring jobs through the stage sequence:
// the stage executor wraps each capability call with timeout and retry,
// the orchestrator applies the transition table and quality gate, and
// the housekeeper recovers jobs the orchestrator lost track of.
package pipeline

import "time"

// RetryPolicy bounds transient-failure retries for one stage.
type RetryPolicy struct {
	MaxAttempts int
	Base        time.Duration
}

// Backoff returns the delay before the attempt following the given one.
// Delays double per attempt: base, 2*base, 4*base, ...
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return p.Base << (attempt - 1)
}
