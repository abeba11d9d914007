package capability

import (
	"context"
	"errors"
	"net"
)

// Stage failure signals. Each adapter wraps provider failures in its
// designated sentinel so the executor can classify the outcome.
var (
	ErrUnreadableDocument   = errors.New("unreadable document")
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	ErrIndexUnavailable     = errors.New("index unavailable")
	ErrGenerationBlocked    = errors.New("generation blocked by policy")
	ErrRenderFailed         = errors.New("render failed")

	// ErrThrottled indicates the provider rejected the call due to rate
	// limiting; always retryable.
	ErrThrottled = errors.New("provider throttled")
	// ErrUnavailable indicates a 5xx-equivalent provider fault; retryable.
	ErrUnavailable = errors.New("provider unavailable")
)

// Class partitions adapter failures for the retry policy.
type Class string

const (
	// ClassTransient failures are retried with backoff.
	ClassTransient Class = "transient"
	// ClassTerminal failures surface immediately to the orchestrator.
	ClassTerminal Class = "terminal"
)

// Classify maps an adapter error to its retry class. Timeouts, throttling,
// and provider unavailability (including embedding and index outages) are
// transient; malformed input and policy rejections are terminal.
func Classify(err error) Class {
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTransient
	}
	if errors.Is(err, ErrThrottled) || errors.Is(err, ErrUnavailable) {
		return ClassTransient
	}
	if errors.Is(err, ErrEmbeddingUnavailable) || errors.Is(err, ErrIndexUnavailable) {
		return ClassTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassTransient
	}

	return ClassTerminal
}
