package sqlbase

import (
	"context"
	"database/sql"
	"fmt"
)

// TxOption configures a transaction.
type TxOption func(*sql.TxOptions)

// WithIsolationLevel sets the transaction isolation level.
func WithIsolationLevel(level sql.IsolationLevel) TxOption {
	return func(opts *sql.TxOptions) {
		opts.Isolation = level
	}
}

// Tx runs fn inside a transaction on db. The transaction is rolled back when
// fn returns an error or panics and committed otherwise.
func Tx(ctx context.Context, db *sql.DB, fn func(context.Context, *sql.Tx) error, opts ...TxOption) (err error) {
	options := sql.TxOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	tx, err := db.BeginTx(ctx, &options)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			err = fmt.Errorf("transaction panicked: %v", r)
		}
	}()

	if err = fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback (%v): %w", rbErr, err)
		}
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
