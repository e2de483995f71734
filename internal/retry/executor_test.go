package retry

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vvka-141/mboxdb/pkg/mboxdb"
)

var errLocked = errors.New("database is locked")

// lockedClassifier treats SQLite busy errors and MySQL deadlocks as transient.
var lockedClassifier = mboxdb.ClassifierFunc(func(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1213
	}
	return strings.Contains(err.Error(), "database is locked")
})

// mockOperation tracks invocation count and fails until failUntil is reached.
type mockOperation struct {
	invocations  atomic.Int32
	failUntil    int32 // Fail for invocations < failUntil
	transientErr error
	fatalErr     error
}

func (m *mockOperation) execute(context.Context) error {
	n := m.invocations.Add(1)

	if n < m.failUntil {
		if m.transientErr != nil {
			return m.transientErr
		}
		return errLocked
	}

	if n == m.failUntil && m.fatalErr != nil {
		return m.fatalErr
	}

	return nil
}

// advanceSleeps fires the next n backoff timers on mClock and returns their durations.
func advanceSleeps(ctx context.Context, t *testing.T, mClock *quartz.Mock, n int) []time.Duration {
	t.Helper()
	var delays []time.Duration
	for i := 0; i < n; i++ {
		require.Eventually(t, func() bool {
			_, ok := mClock.Peek()
			return ok
		}, 2*time.Second, time.Millisecond, "timer %d was never armed", i+1)
		d, w := mClock.AdvanceNext()
		w.MustWait(ctx)
		delays = append(delays, d)
	}
	return delays
}

func TestExecutor_Execute_SuccessOnFirstAttempt(t *testing.T) {
	counter := NewCounter()
	executor := NewExecutor(lockedClassifier, DefaultPolicy(), WithCounter(counter))

	op := &mockOperation{failUntil: 1}

	err := executor.Execute(context.Background(), op.execute)

	require.NoError(t, err)
	assert.Equal(t, int32(1), op.invocations.Load())
	assert.Equal(t, int64(0), counter.Load())
}

func TestExecutor_Execute_AlwaysLockedExhaustsAttempts(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	mClock := quartz.NewMock(t)
	counter := NewCounter()
	policy := MustPolicy(WithMaxAttempts(3), WithBaseDelay(10*time.Millisecond))
	executor := NewExecutor(lockedClassifier, policy, WithClock(mClock), WithCounter(counter))

	var invocations atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- executor.Execute(ctx, func(context.Context) error {
			invocations.Add(1)
			return errLocked
		})
	}()

	delays := advanceSleeps(ctx, t, mClock, 2)

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		t.Fatal("executor did not finish")
	}

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetryLimitExceeded)
	assert.ErrorIs(t, err, errLocked, "last error must be wrapped")

	var limitErr *RetryLimitExceededError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, 3, limitErr.Attempts)

	assert.Equal(t, int32(3), invocations.Load())
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 10 * time.Millisecond}, delays)
	assert.Equal(t, int64(2), counter.Load())

	_, armed := mClock.Peek()
	assert.False(t, armed, "no sleep may follow the last attempt")
}

func TestExecutor_Execute_SuccessAfterOneRetry(t *testing.T) {
	counter := NewCounter()
	policy := MustPolicy(WithMaxAttempts(5), WithBaseDelay(time.Millisecond))
	executor := NewExecutor(lockedClassifier, policy, WithCounter(counter))

	op := &mockOperation{failUntil: 2}

	err := executor.Execute(context.Background(), op.execute)

	require.NoError(t, err)
	assert.Equal(t, int32(2), op.invocations.Load())
	assert.Equal(t, int64(1), counter.Load())
}

func TestExecutor_Execute_FatalErrorNoRetry(t *testing.T) {
	mClock := quartz.NewMock(t)
	counter := NewCounter()
	executor := NewExecutor(lockedClassifier, DefaultPolicy(), WithClock(mClock), WithCounter(counter))

	fatalErr := &mysql.MySQLError{Number: 1062, Message: "Duplicate entry '1' for key 'PRIMARY'"}
	var retries int
	executor = executor.WithOnRetry(func(int, error, time.Duration) { retries++ })

	var invocations int
	err := executor.Execute(context.Background(), func(context.Context) error {
		invocations++
		return fatalErr
	})

	require.Error(t, err)
	assert.Same(t, fatalErr, err, "non-transient errors must be returned unchanged")
	assert.NotErrorIs(t, err, ErrRetryLimitExceeded)
	assert.Equal(t, 1, invocations)
	assert.Equal(t, 0, retries)
	assert.Equal(t, int64(0), counter.Load())
}

func TestExecutor_Execute_TransientThenFatal(t *testing.T) {
	counter := NewCounter()
	policy := MustPolicy(WithMaxAttempts(5), WithBaseDelay(time.Millisecond))
	executor := NewExecutor(lockedClassifier, policy, WithCounter(counter))

	fatalErr := errors.New("syntax error near SELEC")
	op := &mockOperation{failUntil: 3, fatalErr: fatalErr}

	err := executor.Execute(context.Background(), op.execute)

	assert.Equal(t, fatalErr, err)
	assert.Equal(t, int32(3), op.invocations.Load())
	assert.Equal(t, int64(2), counter.Load())
}

func TestExecutor_Execute_SingleAttemptPolicy(t *testing.T) {
	counter := NewCounter()
	executor := NewExecutor(lockedClassifier, MustPolicy(WithMaxAttempts(1)), WithCounter(counter))

	op := &mockOperation{failUntil: 10}

	err := executor.Execute(context.Background(), op.execute)

	assert.ErrorIs(t, err, ErrRetryLimitExceeded)
	assert.Equal(t, int32(1), op.invocations.Load())
	assert.Equal(t, int64(0), counter.Load())
}

func TestExecutor_Execute_ZeroDelayDoesNotArmTimer(t *testing.T) {
	mClock := quartz.NewMock(t)
	policy := MustPolicy(WithMaxAttempts(4), WithBaseDelay(0))
	executor := NewExecutor(lockedClassifier, policy, WithClock(mClock))

	op := &mockOperation{failUntil: 4}

	err := executor.Execute(context.Background(), op.execute)

	require.NoError(t, err)
	assert.Equal(t, int32(4), op.invocations.Load())
}

func TestExecutor_Execute_ContextCancelledDuringSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mClock := quartz.NewMock(t)
	counter := NewCounter()
	executor := NewExecutor(lockedClassifier, DefaultPolicy(), WithClock(mClock), WithCounter(counter))

	var invocations atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- executor.Execute(ctx, func(context.Context) error {
			invocations.Add(1)
			return errLocked
		})
	}()

	require.Eventually(t, func() bool {
		_, ok := mClock.Peek()
		return ok
	}, 2*time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.ErrorIs(t, err, errLocked, "last error is kept for diagnosis")
		assert.NotErrorIs(t, err, ErrRetryLimitExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("executor ignored cancellation")
	}

	assert.Equal(t, int32(1), invocations.Load())
	assert.Equal(t, int64(1), counter.Load())
}

func TestExecutor_Execute_AlreadyCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	executor := NewExecutor(lockedClassifier, DefaultPolicy())

	var invocations int
	err := executor.Execute(ctx, func(context.Context) error {
		invocations++
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, invocations)
}

func TestExecutor_Execute_OnRetryCallback(t *testing.T) {
	policy := MustPolicy(WithMaxAttempts(4), WithBaseDelay(time.Millisecond))
	executor := NewExecutor(lockedClassifier, policy)

	type call struct {
		retry int
		err   error
		delay time.Duration
	}
	var calls []call
	withCallback := executor.WithOnRetry(func(retry int, err error, delay time.Duration) {
		calls = append(calls, call{retry, err, delay})
	})

	op := &mockOperation{failUntil: 3}
	require.NoError(t, withCallback.Execute(context.Background(), op.execute))

	require.Len(t, calls, 2)
	for i, c := range calls {
		assert.Equal(t, i, c.retry)
		assert.Equal(t, errLocked, c.err)
		assert.Equal(t, time.Millisecond, c.delay)
	}

	// The original executor is untouched.
	calls = nil
	op = &mockOperation{failUntil: 2}
	require.NoError(t, executor.Execute(context.Background(), op.execute))
	assert.Empty(t, calls)
}

func TestExecutor_Execute_OnCompleteCallback(t *testing.T) {
	policy := MustPolicy(WithMaxAttempts(3), WithBaseDelay(0))

	var gotAttempts int
	var gotErr error
	executor := NewExecutor(lockedClassifier, policy).WithOnComplete(func(attempts int, err error) {
		gotAttempts = attempts
		gotErr = err
	})

	op := &mockOperation{failUntil: 10}
	err := executor.Execute(context.Background(), op.execute)

	assert.Equal(t, 3, gotAttempts)
	assert.Equal(t, err, gotErr)
}

func TestExecutor_Execute_ExponentialBackoffDelays(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	mClock := quartz.NewMock(t)
	backoff := NewExponentialBackoff(
		WithInitialDelay(100*time.Millisecond),
		WithMaxDelay(300*time.Millisecond),
		WithJitter(0),
	)
	policy := MustPolicy(WithMaxAttempts(4), WithBackoff(backoff))
	executor := NewExecutor(lockedClassifier, policy, WithClock(mClock))

	done := make(chan error, 1)
	go func() {
		done <- executor.Execute(ctx, func(context.Context) error { return errLocked })
	}()

	delays := advanceSleeps(ctx, t, mClock, 3)
	assert.ErrorIs(t, <-done, ErrRetryLimitExceeded)
	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		300 * time.Millisecond,
	}, delays)
}

func TestExecutor_SharedCounterConcurrent(t *testing.T) {
	counter := NewCounter()
	policy := MustPolicy(WithMaxAttempts(3), WithBaseDelay(0))

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			executor := NewExecutor(lockedClassifier, policy, WithCounter(counter))
			op := &mockOperation{failUntil: 3}
			assert.NoError(t, executor.Execute(context.Background(), op.execute))
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(workers*2), counter.Load())
}

func TestExecutor_ZeroPolicyUsesDefault(t *testing.T) {
	executor := NewExecutor(lockedClassifier, Policy{})

	assert.Equal(t, mboxdb.DefaultRetryMaxAttempts, executor.Policy().MaxAttempts())
	assert.Equal(t, mboxdb.DefaultRetryBaseDelay, executor.Policy().BaseDelay())
}

func TestExecutor_NilClassifierPanics(t *testing.T) {
	assert.Panics(t, func() {
		NewExecutor(nil, DefaultPolicy())
	})
}

func TestDo_ReturnsValue(t *testing.T) {
	counter := NewCounter()
	policy := MustPolicy(WithMaxAttempts(3), WithBaseDelay(0))
	executor := NewExecutor(lockedClassifier, policy, WithCounter(counter))

	var invocations int
	id, err := Do(context.Background(), executor, func(context.Context) (int64, error) {
		invocations++
		if invocations == 1 {
			return 0, &mysql.MySQLError{Number: 1213, Message: "Deadlock found when trying to get lock"}
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, int64(1), counter.Load())
}

func TestDo_ReturnsZeroOnFailure(t *testing.T) {
	policy := MustPolicy(WithMaxAttempts(2), WithBaseDelay(0))
	executor := NewExecutor(lockedClassifier, policy)

	var invocations int
	v, err := Do(context.Background(), executor, func(context.Context) (string, error) {
		invocations++
		return "partial", errLocked
	})

	assert.ErrorIs(t, err, ErrRetryLimitExceeded)
	assert.Equal(t, "", v)
	assert.Equal(t, 2, invocations)
}
