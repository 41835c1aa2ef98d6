package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lodgepole/campdesk/internal/repository"
)

// Querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx. Every
// repository runs against it, so the same code serves pooled one-shot
// queries and statements inside an open transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the Postgres-backed repository.Store. Outside a transaction it
// queries the pool directly; WithTx hands out a Store bound to a pgx.Tx.
type Store struct {
	pool *pgxpool.Pool
	q    Querier
}

var _ repository.Store = (*Store)(nil)

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, q: pool}
}

func (s *Store) Rooms() repository.RoomRepository { return &RoomStore{q: s.q} }

func (s *Store) People() repository.PersonRepository { return &PersonStore{q: s.q} }

func (s *Store) Events() repository.EventRepository { return &EventStore{q: s.q} }

func (s *Store) Staff() repository.StaffRepository { return &StaffStore{q: s.q} }

// WithTx runs fn inside a single transaction. A Store already bound to a
// transaction reuses it, so orchestrator helpers can nest freely.
func (s *Store) WithTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if _, inTx := s.q.(pgx.Tx); inTx {
		return fn(s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	// Rollback after a successful commit is a no-op.
	defer tx.Rollback(ctx)

	if err := fn(&Store{pool: s.pool, q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// uniqueViolation reports whether err is Postgres error 23505.
func uniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505"
}
