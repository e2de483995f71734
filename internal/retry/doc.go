// Package retry executes database operations with automatic retry on
// transient contention failures (deadlocks, lock wait timeouts, busy files).
//
// The package supports pluggable error classification and backoff strategies.
// The default policy makes up to five attempts with a fixed 250ms sleep
// between them; exponential backoff is available for callers that want it.
//
// # Example Usage
//
//	profile := registry.MustLookup("mysql")
//	executor := retry.NewExecutor(profile, retry.DefaultPolicy(),
//	    retry.WithCounter(counter),
//	    retry.WithLogger(logger),
//	)
//
//	err := executor.Execute(ctx, func(ctx context.Context) error {
//	    _, err := db.ExecContext(ctx, "UPDATE mailbox SET size_checkpoint = ? WHERE id = ?", size, id)
//	    return err
//	})
//
//	count, err := retry.Do(ctx, executor, func(ctx context.Context) (int, error) {
//	    return countMessages(ctx, db, folderID)
//	})
//
// # Outcomes
//
// A non-transient error is returned unchanged after the first attempt. When
// every attempt fails with a transient error the executor returns a
// *RetryLimitExceededError wrapping the last error. Cancelling the context
// stops the loop immediately, including during a backoff sleep.
//
// # Retry Accounting
//
// Every retry increments the Counter held by the executor exactly once. The
// counter is monotonic for the lifetime of the process and is exported to
// Prometheus by internal/metrics.
//
// # Thread Safety
//
// Executor instances are safe for concurrent use. Use WithOnRetry() to create
// independent configurations per goroutine.
package retry
