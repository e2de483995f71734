package retry

import (
	"errors"
	"fmt"
	"time"

	"github.com/vvka-141/mboxdb/pkg/mboxdb"
)

// Policy bounds how often and how fast an operation is retried.
// A Policy is immutable once constructed.
type Policy struct {
	maxAttempts int
	baseDelay   time.Duration
	backoff     mboxdb.BackoffStrategy
}

// PolicyOption is a functional option for configuring a Policy.
type PolicyOption func(*Policy)

// WithMaxAttempts sets the total number of attempts, including the first one.
func WithMaxAttempts(n int) PolicyOption {
	return func(p *Policy) {
		p.maxAttempts = n
	}
}

// WithBaseDelay sets the fixed sleep between two attempts.
func WithBaseDelay(d time.Duration) PolicyOption {
	return func(p *Policy) {
		p.baseDelay = d
	}
}

// WithBackoff replaces the fixed delay with a custom strategy.
func WithBackoff(b mboxdb.BackoffStrategy) PolicyOption {
	return func(p *Policy) {
		p.backoff = b
	}
}

// DefaultPolicy returns five attempts with a fixed 250ms delay.
func DefaultPolicy() Policy {
	return Policy{
		maxAttempts: mboxdb.DefaultRetryMaxAttempts,
		baseDelay:   mboxdb.DefaultRetryBaseDelay,
	}
}

// NewPolicy creates a policy from the defaults and the given options.
// Returns an error wrapping mboxdb.ErrInvalidConfig when maxAttempts < 1 or baseDelay < 0.
//
// Example:
//
//	policy, err := retry.NewPolicy(
//	    retry.WithMaxAttempts(3),
//	    retry.WithBaseDelay(10*time.Millisecond),
//	)
func NewPolicy(opts ...PolicyOption) (Policy, error) {
	p := DefaultPolicy()
	for _, opt := range opts {
		opt(&p)
	}
	if err := p.validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// MustPolicy is like NewPolicy but panics on invalid options.
func MustPolicy(opts ...PolicyOption) Policy {
	p, err := NewPolicy(opts...)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Policy) validate() error {
	var errs []error
	if p.maxAttempts < 1 {
		errs = append(errs, fmt.Errorf("max attempts must be at least 1, got %d: %w", p.maxAttempts, mboxdb.ErrInvalidConfig))
	}
	if p.baseDelay < 0 {
		errs = append(errs, fmt.Errorf("base delay cannot be negative, got %v: %w", p.baseDelay, mboxdb.ErrInvalidConfig))
	}
	return errors.Join(errs...)
}

// MaxAttempts returns the total number of attempts.
func (p Policy) MaxAttempts() int {
	return p.maxAttempts
}

// BaseDelay returns the fixed inter-attempt delay.
func (p Policy) BaseDelay() time.Duration {
	return p.baseDelay
}

// Backoff returns the configured strategy, or a FixedBackoff of BaseDelay.
func (p Policy) Backoff() mboxdb.BackoffStrategy {
	if p.backoff != nil {
		return p.backoff
	}
	return NewFixedBackoff(p.baseDelay)
}

func (p Policy) isZero() bool {
	return p.maxAttempts == 0 && p.baseDelay == 0 && p.backoff == nil
}

// String describes the policy for log output.
func (p Policy) String() string {
	if p.backoff != nil {
		return fmt.Sprintf("max_attempts=%d backoff=%T", p.maxAttempts, p.backoff)
	}
	return fmt.Sprintf("max_attempts=%d base_delay=%v", p.maxAttempts, p.baseDelay)
}
