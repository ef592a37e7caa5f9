package retry

import (
	"context"
	"fmt"
	"time"

	"git.home.luguber.info/inful/blogsync/internal/config"
	"git.home.luguber.info/inful/blogsync/internal/foundation/errors"
)

// Policy holds the backoff settings for transient remote failures.
type Policy struct {
	Mode       config.RetryBackoffMode
	Initial    time.Duration
	Max        time.Duration
	MaxRetries int // attempts after the first failure
}

// DefaultPolicy is exponential from 500ms, capped at 10s, with two retries.
func DefaultPolicy() Policy {
	return Policy{Mode: config.RetryBackoffExponential, Initial: 500 * time.Millisecond, Max: 10 * time.Second, MaxRetries: 2}
}

// FromConfig builds a policy from the forge section; unparsable durations fall back to defaults.
func FromConfig(fc config.ForgeConfig) Policy {
	p := DefaultPolicy()
	if fc.MaxRetries >= 0 {
		p.MaxRetries = fc.MaxRetries
	}
	if d, err := time.ParseDuration(fc.RetryInitialDelay); err == nil && d > 0 {
		p.Initial = d
	}
	if d, err := time.ParseDuration(fc.RetryMaxDelay); err == nil && d > 0 {
		p.Max = d
	}
	if m := config.NormalizeRetryBackoff(string(fc.RetryBackoff)); m != "" {
		p.Mode = m
	}
	if p.Initial > p.Max {
		p.Initial = p.Max
	}
	return p
}

// Delay returns the wait before retry n (1-based).
func (p Policy) Delay(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	var d time.Duration
	switch p.Mode {
	case config.RetryBackoffFixed:
		d = p.Initial
	case config.RetryBackoffLinear:
		d = time.Duration(n) * p.Initial
	default:
		d = p.Initial << (n - 1)
	}
	if d > p.Max || d <= 0 {
		return p.Max
	}
	return d
}

// Validate reports policies that cannot be applied.
func (p Policy) Validate() error {
	if p.Initial <= 0 {
		return fmt.Errorf("initial must be >0")
	}
	if p.Max <= 0 {
		return fmt.Errorf("max must be >0")
	}
	if p.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	return nil
}

// Do runs fn until it succeeds, returns a non-retryable error, or the policy is exhausted.
// Errors are retried only when their classification allows it.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= p.MaxRetries || !errors.CanRetry(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Delay(attempt + 1)):
		}
	}
}
