package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
)

// DBTX is the subset of database/sql used by the repositories. *sql.DB,
// *sql.Tx and *UnitOfWork all satisfy it, so the same query code runs
// inside or outside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store opens units of work against the database.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewStore returns a Store bound to db.
func NewStore(db *sql.DB, log zerolog.Logger) *Store {
	return &Store{db: db, log: log.With().Str("component", "unit_of_work").Logger()}
}

// DB exposes the pool for non-transactional point lookups.
func (s *Store) DB() *sql.DB { return s.db }

// Begin starts a unit of work. The caller must defer Close, which rolls
// back anything that was neither committed nor rolled back.
//
//	uow, err := store.Begin(ctx)
//	if err != nil { ... }
//	defer uow.Close()
//	... mutations against uow ...
//	return uow.Commit()
func (s *Store) Begin(ctx context.Context) (*UnitOfWork, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin unit of work: %w", err)
	}
	return &UnitOfWork{tx: tx, log: s.log}, nil
}

// UnitOfWork is one transaction on one connection. Statements run in
// program order. Cancelling the context passed to Begin before Commit
// rolls the transaction back.
type UnitOfWork struct {
	tx          *sql.Tx
	log         zerolog.Logger
	done        bool
	afterCommit []func()
}

func (u *UnitOfWork) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return u.tx.ExecContext(ctx, query, args...)
}

func (u *UnitOfWork) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return u.tx.QueryContext(ctx, query, args...)
}

func (u *UnitOfWork) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return u.tx.QueryRowContext(ctx, query, args...)
}

// AfterCommit registers fn to run once the transaction has committed.
// Hooks are dropped on rollback.
func (u *UnitOfWork) AfterCommit(fn func()) {
	u.afterCommit = append(u.afterCommit, fn)
}

// Commit commits the transaction and then runs the AfterCommit hooks in
// registration order.
func (u *UnitOfWork) Commit() error {
	if u.done {
		return ErrUnitOfWorkDone
	}
	u.done = true
	if err := u.tx.Commit(); err != nil {
		u.afterCommit = nil
		return fmt.Errorf("commit unit of work: %w", err)
	}
	hooks := u.afterCommit
	u.afterCommit = nil
	for _, fn := range hooks {
		fn()
	}
	return nil
}

// Rollback aborts the transaction.
func (u *UnitOfWork) Rollback() error {
	if u.done {
		return ErrUnitOfWorkDone
	}
	u.done = true
	u.afterCommit = nil
	if err := u.tx.Rollback(); err != nil {
		return fmt.Errorf("rollback unit of work: %w", err)
	}
	return nil
}

// Close rolls back a unit of work that was neither committed nor rolled
// back and logs a warning. It is a no-op otherwise.
func (u *UnitOfWork) Close() {
	if u.done {
		return
	}
	u.log.Warn().Msg("unit of work closed without commit or rollback, forcing rollback")
	if err := u.Rollback(); err != nil {
		u.log.Error().Err(err).Msg("forced rollback failed")
	}
}
