// Package retry re-runs stream passes that fail with transient errors.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/petasbytes/recagent/internal/inference"
)

// ErrRetriesExhausted wraps the last error once every attempt has failed.
var ErrRetriesExhausted = errors.New("retries exhausted")

// Policy bounds how often and how fast an operation is retried.
type Policy struct {
	MaxAttempts    int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff" yaml:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff" yaml:"max_backoff"`
	// Multiplier grows the backoff per attempt; 1 means a fixed delay.
	Multiplier float64 `mapstructure:"multiplier" yaml:"multiplier"`

	// OnRetry, if set, is called before each sleep.
	OnRetry func(attempt int, err error, wait time.Duration) `mapstructure:"-" yaml:"-"`
}

// DefaultPolicy returns three attempts with doubling backoff from 500ms up to 5s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Multiplier:     2,
	}
}

// Retryable reports whether err belongs to a transient class: a chunk timeout
// or a connection failure. Backend rejections, tool errors and cancellation are final.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.Is(err, inference.ErrChunkTimeout) || errors.Is(err, inference.ErrConnection)
}

// Do calls op until it succeeds, fails with a non-retryable error, or
// MaxAttempts is reached. attempt starts at 1.
func Do(ctx context.Context, p Policy, op func(ctx context.Context, attempt int) error) error {
	attempts := max(p.MaxAttempts, 1)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := op(ctx, attempt)
		if err == nil {
			return nil
		}
		if !Retryable(err) {
			return err
		}
		lastErr = err
		if attempt == attempts {
			break
		}

		wait := p.Backoff(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, wait)
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempts, lastErr)
}

// Backoff returns the delay after the given 1-based attempt.
func (p Policy) Backoff(attempt int) time.Duration {
	if p.InitialBackoff <= 0 {
		return 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.InitialBackoff) * math.Pow(mult, float64(attempt-1))
	if p.MaxBackoff > 0 && d > float64(p.MaxBackoff) {
		d = float64(p.MaxBackoff)
	}
	return time.Duration(d)
}
