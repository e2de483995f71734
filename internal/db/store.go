package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vvka-141/mboxdb/internal/dialect"
	"github.com/vvka-141/mboxdb/internal/retry"
)

// Store pairs a database handle with the dialect profile of its backend and a
// retry executor that classifies failures through that profile. Every
// statement runs inside the executor, so deadlocks and lock timeouts are
// retried while everything else surfaces unchanged.
type Store struct {
	db       *sql.DB
	profile  *dialect.Profile
	executor *retry.Executor
}

// NewStore creates a Store. A nil executor is replaced by one using the
// profile as classifier and retry.DefaultPolicy().
func NewStore(db *sql.DB, profile *dialect.Profile, executor *retry.Executor) *Store {
	if db == nil {
		panic("db cannot be nil")
	}
	if profile == nil {
		panic("profile cannot be nil")
	}
	if executor == nil {
		executor = retry.NewExecutor(profile, retry.DefaultPolicy(), retry.WithLogger(profile.Logger()))
	}
	return &Store{db: db, profile: profile, executor: executor}
}

// Dialect returns the backend's profile for building SQL fragments.
func (s *Store) Dialect() *dialect.Profile {
	return s.profile
}

// Executor returns the executor statements run in.
func (s *Store) Executor() *retry.Executor {
	return s.executor
}

// DB returns the underlying handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Exec runs a statement that returns no rows.
// Statements binding more parameters than the backend allows fail with
// dialect.ErrTooManyParams before reaching the database.
func (s *Store) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if err := s.profile.CheckParamLimit(len(args)); err != nil {
		return nil, err
	}
	return retry.Do(ctx, s.executor, func(ctx context.Context) (sql.Result, error) {
		return s.db.ExecContext(ctx, query, args...)
	})
}

// Query runs a query and calls scan once per row.
//
// When an attempt fails after some rows were scanned, the query is replayed
// from the start and scan sees those rows again. Callers collecting rows
// should reset their accumulator when scan is first called with a fresh
// attempt, or collect into a map keyed by id.
func (s *Store) Query(ctx context.Context, query string, scan func(*sql.Rows) error, args ...any) error {
	if err := s.profile.CheckParamLimit(len(args)); err != nil {
		return err
	}
	return s.executor.Execute(ctx, func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			if err := scan(rows); err != nil {
				return err
			}
		}
		return rows.Err()
	})
}

// QueryRow runs a query expected to return at most one row and scans it into dest.
// sql.ErrNoRows is returned unchanged when the query matches nothing.
func (s *Store) QueryRow(ctx context.Context, dest []any, query string, args ...any) error {
	if err := s.profile.CheckParamLimit(len(args)); err != nil {
		return err
	}
	return s.executor.Execute(ctx, func(ctx context.Context) error {
		return s.db.QueryRowContext(ctx, query, args...).Scan(dest...)
	})
}

// InTx runs fn inside a transaction and commits it. When fn or the commit
// fails with a transient error the transaction is rolled back and the whole
// body is replayed in a new transaction, since a deadlock victim's earlier
// statements are lost with it.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	return s.executor.Execute(ctx, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}

		if err := fn(ctx, tx); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
			}
			return err
		}

		return tx.Commit()
	})
}

// Ping verifies the connection through the executor.
func (s *Store) Ping(ctx context.Context) error {
	return s.executor.Execute(ctx, s.db.PingContext)
}

// Close closes the underlying handle.
func (s *Store) Close() error {
	return s.db.Close()
}
