// Package retry runs an operation against a fixed backoff schedule.
//
// Classification is shared by every caller: HTTP 408/429/5xx replies, rate
// limit errors, network timeouts and per-attempt deadline expiry are retried.
// Cancellation of the parent context and client errors are not.
package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	"pinganalyst/internal/analyzer"
	"pinganalyst/internal/services/llm"
)

// DefaultDelays is the schedule between attempts: 5s, 10s, 20s.
var DefaultDelays = []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second}

const defaultMaxDelay = time.Minute

// Policy describes how many times and how long to wait.
type Policy struct {
	// Delays[i] is slept after failed attempt i+1. Attempts = len(Delays)+1.
	Delays []time.Duration
	// MaxDelay caps Retry-After hints. Zero means one minute.
	MaxDelay time.Duration
	// AttemptTimeout bounds each attempt. Zero leaves attempts unbounded.
	AttemptTimeout time.Duration
	// Sleep replaces the real timer in tests.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnRetry is called before each sleep.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// Default returns the standard schedule.
func Default() Policy {
	return Policy{Delays: append([]time.Duration(nil), DefaultDelays...)}
}

// Attempts returns the total number of tries.
func (p Policy) Attempts() int {
	return len(p.Delays) + 1
}

// Classify reports whether err is worth another attempt and the minimum delay
// the server asked for.
func Classify(err error) (bool, time.Duration) {
	if err == nil {
		return false, 0
	}
	if errors.Is(err, context.Canceled) {
		return false, 0
	}
	if errors.Is(err, analyzer.ErrNoFrames) || errors.Is(err, analyzer.ErrCreditsExhausted) {
		return false, 0
	}

	var statusErr *llm.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable(), statusErr.RetryAfter
	}
	if errors.Is(err, analyzer.ErrRateLimited) {
		return true, 0
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true, 0
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true, 0
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return true, 0
	}
	return false, 0
}

// Do runs fn until it succeeds, fails with a non-retryable error, the
// schedule is exhausted or ctx is done. fn receives the 1-based attempt.
func (p Policy) Do(ctx context.Context, op string, fn func(ctx context.Context, attempt int) error) error {
	attempts := p.Attempts()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := p.runAttempt(ctx, attempt, fn)
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return ctx.Err()
		}
		retryable, hint := Classify(err)
		if !retryable || attempt == attempts {
			break
		}
		delay := p.delayFor(attempt, hint)
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}
		if err := p.sleep(ctx, delay); err != nil {
			return err
		}
	}
	if retryable, _ := Classify(lastErr); !retryable {
		return lastErr
	}
	return fmt.Errorf("%s: failed after %d attempts: %w", op, attempts, lastErr)
}

func (p Policy) runAttempt(ctx context.Context, attempt int, fn func(context.Context, int) error) error {
	if p.AttemptTimeout <= 0 {
		return fn(ctx, attempt)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, p.AttemptTimeout)
	defer cancel()
	return fn(attemptCtx, attempt)
}

func (p Policy) delayFor(attempt int, hint time.Duration) time.Duration {
	var delay time.Duration
	if idx := attempt - 1; idx >= 0 && idx < len(p.Delays) {
		delay = p.Delays[idx]
	}
	if hint > delay {
		delay = hint
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultMaxDelay
	}
	if delay > maxDelay {
		delay = maxDelay
	}
	if delay < 0 {
		return 0
	}
	return delay
}

func (p Policy) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if p.Sleep != nil {
		return p.Sleep(ctx, delay)
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
