package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vvka-141/mboxdb/internal/logging"
	"github.com/vvka-141/mboxdb/pkg/mboxdb"
)

const tracerName = "github.com/vvka-141/mboxdb/internal/retry"

// Executor orchestrates retry attempts with backoff and error classification.
//
// Thread Safety:
// The Executor itself is safe for concurrent use when calling Execute().
// WithOnRetry() and WithOnComplete() return a NEW instance with the callback
// configured; the original Executor remains unchanged.
type Executor struct {
	classifier mboxdb.ErrorClassifier
	policy     Policy
	counter    *Counter
	logger     mboxdb.Logger
	clock      quartz.Clock
	tracer     trace.Tracer
	onRetry    func(retry int, err error, delay time.Duration)
	onComplete func(attempts int, err error)
}

// ExecutorOption configures an Executor at construction.
type ExecutorOption func(*Executor)

// WithCounter makes the executor record retries in c. Executors sharing a
// counter report a combined total.
func WithCounter(c *Counter) ExecutorOption {
	return func(e *Executor) {
		e.counter = c
	}
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(l mboxdb.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = l
	}
}

// WithClock replaces the real clock, typically with a quartz mock in tests.
func WithClock(c quartz.Clock) ExecutorOption {
	return func(e *Executor) {
		e.clock = c
	}
}

// WithTracer sets the tracer used for execution spans.
// Defaults to the global otel tracer provider.
func WithTracer(t trace.Tracer) ExecutorOption {
	return func(e *Executor) {
		e.tracer = t
	}
}

// NewExecutor creates a new retry executor.
// A zero Policy is replaced by DefaultPolicy(). Panics if classifier is nil.
func NewExecutor(classifier mboxdb.ErrorClassifier, policy Policy, opts ...ExecutorOption) *Executor {
	if classifier == nil {
		panic("classifier cannot be nil")
	}
	if policy.isZero() {
		policy = DefaultPolicy()
	}

	e := &Executor{
		classifier: classifier,
		policy:     policy,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.counter == nil {
		e.counter = NewCounter()
	}
	if e.logger == nil {
		e.logger = logging.Discard
	}
	if e.clock == nil {
		e.clock = quartz.NewReal()
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer(tracerName)
	}
	return e
}

// WithOnRetry returns a new Executor with the specified retry callback.
// The callback runs after the counter is incremented and before the sleep.
//
// This method does NOT modify the receiver; it returns a new instance.
//
// Example:
//
//	executor := retry.NewExecutor(profile, policy)
//	executor1 := executor.WithOnRetry(callback1) // New instance
//	executor2 := executor.WithOnRetry(callback2) // Another new instance
//	// executor1 and executor2 are independent
func (e *Executor) WithOnRetry(callback func(retry int, err error, delay time.Duration)) *Executor {
	clone := *e
	clone.onRetry = callback
	return &clone
}

// WithOnComplete returns a new Executor that reports the number of attempts
// and the final error of every Execute call.
func (e *Executor) WithOnComplete(callback func(attempts int, err error)) *Executor {
	clone := *e
	clone.onComplete = callback
	return &clone
}

// Policy returns the executor's retry policy.
func (e *Executor) Policy() Policy {
	return e.policy
}

// Counter returns the counter the executor records retries in.
func (e *Executor) Counter() *Counter {
	return e.counter
}

// Classifier returns the classifier deciding which errors are retried.
func (e *Executor) Classifier() mboxdb.ErrorClassifier {
	return e.classifier
}

// Execute runs the operation with retry logic.
//
// Non-transient errors are returned unchanged. When the last permitted attempt
// fails with a transient error, a *RetryLimitExceededError is returned.
// Context cancellation aborts the loop with an error matching ctx.Err().
func (e *Executor) Execute(ctx context.Context, operation func(ctx context.Context) error) error {
	opID := uuid.NewString()

	ctx, span := e.tracer.Start(ctx, "retry.Execute", trace.WithAttributes(
		attribute.String("mboxdb.op_id", opID),
		attribute.Int("mboxdb.retry.max_attempts", e.policy.MaxAttempts()),
	))
	defer span.End()

	attempts, err := e.run(ctx, opID, span, operation)

	span.SetAttributes(attribute.Int("mboxdb.retry.attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if e.onComplete != nil {
		e.onComplete(attempts, err)
	}
	return err
}

func (e *Executor) run(ctx context.Context, opID string, span trace.Span, operation func(ctx context.Context) error) (int, error) {
	maxAttempts := e.policy.MaxAttempts()
	backoff := e.policy.Backoff()

	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, cancelled(err, lastErr)
		}

		lastErr = operation(ctx)
		if lastErr == nil {
			if attempt > 1 {
				e.logger.Verbose("[%s] succeeded on attempt %d/%d", opID, attempt, maxAttempts)
			}
			return attempt, nil
		}

		if !e.classifier.IsTransient(lastErr) {
			return attempt, lastErr
		}

		if attempt >= maxAttempts {
			e.logger.Verbose("[%s] giving up after %d attempts: %v", opID, attempt, lastErr)
			return attempt, &RetryLimitExceededError{Attempts: attempt, Err: lastErr}
		}

		retry := attempt - 1
		delay := backoff.NextDelay(retry)

		e.counter.inc()
		e.logger.Verbose("[%s] transient error on attempt %d/%d, retrying attempt %d in %v: %v",
			opID, attempt, maxAttempts, attempt+1, delay, lastErr)
		span.AddEvent("retry", trace.WithAttributes(
			attribute.Int("mboxdb.retry.attempt", attempt),
			attribute.String("mboxdb.retry.delay", delay.String()),
			attribute.String("error", lastErr.Error()),
		))
		if e.onRetry != nil {
			e.onRetry(retry, lastErr, delay)
		}

		if err := e.sleep(ctx, delay); err != nil {
			return attempt, cancelled(err, lastErr)
		}
	}
}

// sleep waits for delay, returning early with ctx.Err() on cancellation.
func (e *Executor) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}

	timer := e.clock.NewTimer(delay, "retry", "backoff")
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// cancelled reports a context error, keeping the last operation error for diagnosis.
func cancelled(ctxErr, lastErr error) error {
	if lastErr == nil {
		return ctxErr
	}
	return fmt.Errorf("%w (last error: %w)", ctxErr, lastErr)
}

// Do runs a result-returning operation through e.Execute.
//
// Example:
//
//	id, err := retry.Do(ctx, executor, func(ctx context.Context) (int64, error) {
//	    res, err := db.ExecContext(ctx, insertSQL, args...)
//	    if err != nil {
//	        return 0, err
//	    }
//	    return res.LastInsertId()
//	})
func Do[T any](ctx context.Context, e *Executor, operation func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := e.Execute(ctx, func(ctx context.Context) error {
		v, err := operation(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
