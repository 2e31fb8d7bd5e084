package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/piggyclaim/piggyclaim/pkg/logger"
	"github.com/piggyclaim/piggyclaim/pkg/timekeeper"
)

// Policy bounds a retried operation. An operation runs at most Retries+1
// times. The wait before attempt n+1 is Delay * Backoff^(n-1).
type Policy struct {
	Retries int
	Delay   time.Duration
	Backoff float64

	// Name labels log lines and the retry counter
	Name    string
	Logger  logger.Logger
	Clock   timekeeper.Clock
	OnRetry func(name string, attempt int, err error)
}

func (p Policy) Validate() error {
	if p.Retries < 0 {
		return fmt.Errorf("retries must be >= 0, got %d", p.Retries)
	}
	if p.Delay < 0 {
		return fmt.Errorf("retry delay must be >= 0, got %s", p.Delay)
	}
	if p.Backoff < 1 {
		return fmt.Errorf("retry backoff must be >= 1, got %v", p.Backoff)
	}
	return nil
}

// Named returns a copy of the policy with a new label.
func (p Policy) Named(name string) Policy {
	p.Name = name
	return p
}

// WaitBefore returns how long to wait after the given failed attempt (1 based).
func (p Policy) WaitBefore(attempt int) time.Duration {
	backoff := p.Backoff
	if backoff < 1 {
		backoff = 1
	}
	return time.Duration(float64(p.Delay) * math.Pow(backoff, float64(attempt-1)))
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Do returns it right away.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Do runs op until it succeeds or the policy is exhausted. Only a returned
// error triggers a retry, a zero value result is a valid answer.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	clock := p.Clock
	if clock == nil {
		clock = timekeeper.RealClock()
	}
	log := logger.EnsureLogger(p.Logger)

	retries := p.Retries
	if retries < 0 {
		retries = 0
	}

	var lastErr error
	for attempt := 1; attempt <= retries+1; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if IsPermanent(err) {
			return zero, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, err
		}
		if attempt > retries {
			break
		}

		wait := p.WaitBefore(attempt)
		log.Warn("operation failed, retrying",
			"op", p.Name,
			"attempt", attempt,
			"max_attempts", retries+1,
			"retry_in", wait,
			"error", err)
		if p.OnRetry != nil {
			p.OnRetry(p.Name, attempt, err)
		}

		if err := clock.Sleep(ctx, wait); err != nil {
			return zero, fmt.Errorf("%s: retry wait interrupted: %w", p.Name, lastErr)
		}
	}

	return zero, fmt.Errorf("%s failed after %d attempts: %w", p.Name, retries+1, lastErr)
}
