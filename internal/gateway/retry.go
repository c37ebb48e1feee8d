package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"reelforge/internal/logging"
	"reelforge/internal/services"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 1 * time.Second
	defaultMaxDelay    = 10 * time.Second
)

// Policy controls how a backend call is retried.
type Policy struct {
	// MaxAttempts counts total attempts, including the first.
	MaxAttempts int
	Base        time.Duration
	Max         time.Duration
	// Timeout bounds each attempt. Zero leaves the caller's deadline alone.
	Timeout time.Duration
	// Sleeper overrides how retry sleeps are performed (tests).
	Sleeper func(time.Duration)
	Logger  *slog.Logger
}

// DefaultPolicy returns the standard three attempt, 1s..10s policy.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: defaultMaxAttempts, Base: defaultBaseDelay, Max: defaultMaxDelay}
}

// Do runs fn until it succeeds, fails with a non-retryable error, or the
// attempts are exhausted.
func (p Policy) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	return p.do(ctx, op, nil, fn)
}

// do is Do with an optional acquire step that runs before each attempt's
// timeout starts. The release it returns runs when the attempt ends.
func (p Policy) do(ctx context.Context, op string, acquire func(context.Context) (func(), error), fn func(context.Context) error) error {
	attempts := p.attempts()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := p.once(ctx, acquire, fn)
		if err == nil {
			return nil
		}
		lastErr = err
		delay, retry := p.retryDelay(ctx, err, attempt, attempts)
		if !retry {
			if attempt > 1 && attempt >= attempts && services.Retryable(err) {
				return fmt.Errorf("%s: failed after %d attempts: %w", op, attempts, err)
			}
			return err
		}
		if p.Logger != nil {
			p.Logger.Debug("retrying backend call",
				logging.String("operation", op),
				logging.Int("attempt", attempt),
				logging.Duration("delay", delay),
				logging.Error(err),
			)
		}
		if err := p.sleep(ctx, delay); err != nil {
			return err
		}
	}
	if lastErr == nil {
		lastErr = errors.New("unknown retry failure")
	}
	return fmt.Errorf("%s: failed after %d attempts: %w", op, attempts, lastErr)
}

func (p Policy) once(ctx context.Context, acquire func(context.Context) (func(), error), fn func(context.Context) error) error {
	if acquire != nil {
		release, err := acquire(ctx)
		if err != nil {
			return err
		}
		defer release()
	}
	if p.Timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	err := fn(attemptCtx)
	if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, "", "", fmt.Sprintf("attempt exceeded %s", p.Timeout), err)
	}
	return err
}

func (p Policy) attempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

func (p Policy) retryDelay(ctx context.Context, err error, attempt, maxAttempts int) (time.Duration, bool) {
	if attempt >= maxAttempts || err == nil {
		return 0, false
	}
	if ctx.Err() != nil {
		return 0, false
	}
	if !services.Retryable(err) {
		return 0, false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.RetryAfter > 0 {
		return p.capDelay(statusErr.RetryAfter), true
	}
	return p.backoffDelay(attempt), true
}

// backoffDelay returns base, base*2, base*4, ... for attempts 1, 2, 3.
func (p Policy) backoffDelay(attempt int) time.Duration {
	base := p.Base
	if base < 0 {
		base = defaultBaseDelay
	}
	if base == 0 {
		return 0
	}
	maxDelay := p.maxDelay()
	if attempt <= 0 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		if delay > maxDelay/2 {
			delay = maxDelay
			break
		}
		delay *= 2
	}
	return p.capDelay(delay)
}

func (p Policy) maxDelay() time.Duration {
	if p.Max > 0 {
		return p.Max
	}
	return defaultMaxDelay
}

func (p Policy) capDelay(delay time.Duration) time.Duration {
	if delay < 0 {
		return 0
	}
	if maxDelay := p.maxDelay(); delay > maxDelay {
		return maxDelay
	}
	return delay
}

func (p Policy) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if p.Sleeper != nil {
		p.Sleeper(delay)
		return ctx.Err()
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

// Call runs fn under policy, holding a limiter slot for backend only while an
// attempt is in flight. Retry sleeps happen with the slot released, and the
// wait for a slot is bounded by ctx alone, not by the attempt timeout.
func Call[T any](ctx context.Context, limiter *Limiter, backend string, policy Policy, fn func(context.Context) (T, error)) (T, error) {
	var result T
	acquire := func(ctx context.Context) (func(), error) {
		return limiter.Acquire(ctx, backend)
	}
	err := policy.do(ctx, backend, acquire, func(ctx context.Context) error {
		value, err := fn(ctx)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
