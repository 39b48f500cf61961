package pg

import (
	"context"
	"fmt"

	"valutatrade-hub/internal/application"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type txKey struct{}

// querier is satisfied by both pgxpool.Pool and pgx.Tx, so repos work
// inside and outside a unit of work.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (d *DB) querier(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return d.Pool
}

// UnitOfWork runs fn inside one database transaction, propagated through
// the context to every repo call made within fn.
type UnitOfWork struct{ db *DB }

var _ application.UnitOfWork = (*UnitOfWork)(nil)

func NewUnitOfWork(db *DB) *UnitOfWork { return &UnitOfWork{db: db} }

func (u *UnitOfWork) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := u.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
