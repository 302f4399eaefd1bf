// Package retry runs external lookups with a bounded number of attempts and a
// capped exponential delay between them.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cenkalti/backoff/v5"
)

var errInvalidPolicy = errors.New("invalid retry policy")

// Policy describes how often and how patiently an operation is retried.
// The delay before retry n (n starting at 1) is min(Base^n * Unit, Cap).
type Policy struct {
	MaxAttempts uint          `mapstructure:"max_attempts" json:"max_attempts"`
	Base        float64       `mapstructure:"base" json:"base"`
	Unit        time.Duration `mapstructure:"unit" json:"unit"`
	Cap         time.Duration `mapstructure:"cap" json:"cap"`
}

// DefaultPolicy is three attempts, 2s then 4s, never more than 30s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		Base:        2,
		Unit:        time.Second,
		Cap:         30 * time.Second,
	}
}

// Validate rejects policies that would never run or never wait sensibly.
func (p Policy) Validate() error {
	if p.MaxAttempts == 0 {
		return fmt.Errorf("%w: max_attempts must be at least 1", errInvalidPolicy)
	}
	if p.Base < 1 {
		return fmt.Errorf("%w: base must be >= 1, got %v", errInvalidPolicy, p.Base)
	}
	if p.Unit < 0 || p.Cap < 0 {
		return fmt.Errorf("%w: unit and cap must not be negative", errInvalidPolicy)
	}
	return nil
}

// Delay returns the wait before retry number attempt.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	d := math.Pow(p.Base, float64(attempt)) * float64(p.Unit)
	if p.Cap > 0 && d > float64(p.Cap) {
		return p.Cap
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}

	return time.Duration(d)
}

// powBackOff adapts Policy to backoff.BackOff.
type powBackOff struct {
	policy  Policy
	attempt int
}

func (b *powBackOff) NextBackOff() time.Duration {
	b.attempt++
	return b.policy.Delay(b.attempt)
}

func (b *powBackOff) Reset() { b.attempt = 0 }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Notify is called after each failed attempt that will be retried.
type Notify func(attempt int, err error, wait time.Duration)

// Do runs op until it succeeds, returns a permanent error, or the policy's
// attempts are used up. It reports how many attempts were made.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error), notify Notify) (T, int, error) {
	attempts := 0

	operation := func() (T, error) {
		attempts++
		return op(ctx)
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(&powBackOff{policy: p}),
		backoff.WithMaxTries(p.MaxAttempts),
		// attempts, not elapsed time, bound the loop
		backoff.WithMaxElapsedTime(0),
	}
	if notify != nil {
		opts = append(opts, backoff.WithNotify(func(err error, wait time.Duration) {
			notify(attempts, err, wait)
		}))
	}

	res, err := backoff.Retry(ctx, operation, opts...)

	return res, attempts, err
}
