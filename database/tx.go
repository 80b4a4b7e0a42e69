package database

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
)

// DBTX is satisfied by both *sqlx.DB and *sqlx.Tx.
type DBTX interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
	QueryxContext(ctx context.Context, query string, args ...interface{}) (*sqlx.Rows, error)
	Rebind(query string) string
}

// TxFunc runs inside a transaction started by WithTx.
type TxFunc func(ctx context.Context, tx *sqlx.Tx) error

// WithTx runs fn in one transaction: commit when fn returns nil, rollback
// when it returns an error or panics. Caller cancellation is honoured only
// until the transaction has begun; after that it runs to commit or rollback.
func WithTx(ctx context.Context, db *sqlx.DB, fn TxFunc) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	txCtx := context.WithoutCancel(ctx)

	tx, err := db.BeginTxx(txCtx, nil)
	if err != nil {
		return WrapError("begin", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		} else if err != nil {
			_ = tx.Rollback()
		} else {
			err = WrapError("commit", tx.Commit())
		}
	}()

	return WrapError("transaction", fn(txCtx, tx))
}
