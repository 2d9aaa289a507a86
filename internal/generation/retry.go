package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultMaxAttempts = 3
	DefaultBackoffBase = 500 * time.Millisecond
	DefaultBackoffMax  = 8 * time.Second
	DefaultCallTimeout = 30 * time.Second
)

// Retrier bounds every call with a deadline and retries transient failures
// with exponential backoff. Fatal failures return immediately.
type Retrier struct {
	Generator   Generator
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration
	CallTimeout time.Duration
	Logger      *zap.Logger

	// sleep is swapped in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewRetrier(g Generator) *Retrier {
	return &Retrier{
		Generator:   g,
		MaxAttempts: DefaultMaxAttempts,
		BackoffBase: DefaultBackoffBase,
		BackoffMax:  DefaultBackoffMax,
		CallTimeout: DefaultCallTimeout,
	}
}

func (r *Retrier) Model() string {
	return ModelName(r.Generator)
}

// Do runs one generation step. Attempts counts every call made, including
// the final one.
func (r *Retrier) Do(ctx context.Context, prompt string, params Parameters) (Result, error) {
	attempts := r.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			wait := r.backoff(attempt - 1)
			logger.Debug("retrying generation", zap.Int("attempt", attempt), zap.Duration("backoff", wait), zap.Error(lastErr))
			if err := r.wait(ctx, wait); err != nil {
				return Result{Attempts: attempt - 1}, err
			}
		}

		text, err := r.call(ctx, prompt, params)
		if err == nil {
			return Result{Text: text, Model: r.Model(), Attempts: attempt}, nil
		}
		if ctx.Err() != nil {
			return Result{Attempts: attempt}, ctx.Err()
		}
		if !IsTransient(err) {
			return Result{Attempts: attempt}, err
		}
		lastErr = err
	}
	return Result{Attempts: attempts}, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempts, lastErr)
}

func (r *Retrier) call(ctx context.Context, prompt string, params Parameters) (string, error) {
	timeout := r.CallTimeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	text, err := r.Generator.Generate(callCtx, prompt, params.WithDefaults())
	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) && !IsTransient(err) {
		return "", Transient(err)
	}
	return text, err
}

// backoff returns base * 2^(n-1) capped at max, for the nth retry.
func (r *Retrier) backoff(n int) time.Duration {
	base := r.BackoffBase
	if base <= 0 {
		base = DefaultBackoffBase
	}
	ceiling := r.BackoffMax
	if ceiling <= 0 {
		ceiling = DefaultBackoffMax
	}
	d := base
	for i := 1; i < n && d < ceiling; i++ {
		d *= 2
	}
	if d > ceiling {
		return ceiling
	}
	return d
}

func (r *Retrier) wait(ctx context.Context, d time.Duration) error {
	if r.sleep != nil {
		return r.sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
