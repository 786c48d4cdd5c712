package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

const defaultTxTimeout = 10 * time.Second

// TransactionOptions configures transaction behavior.
type TransactionOptions struct {
	IsolationLevel sql.IsolationLevel
	Timeout        time.Duration
}

// StandardTransactionOptions returns default transaction options.
func StandardTransactionOptions() *TransactionOptions {
	return &TransactionOptions{
		IsolationLevel: sql.LevelReadCommitted,
		Timeout:        defaultTxTimeout,
	}
}

// SerializableTransactionOptions returns serializable isolation for the
// ledger commit path.
func SerializableTransactionOptions() *TransactionOptions {
	return &TransactionOptions{
		IsolationLevel: sql.LevelSerializable,
		Timeout:        defaultTxTimeout,
	}
}

// TxManager provides standardized transaction utilities for the ledger
// and lifecycle write paths.
type TxManager struct {
	db *bun.DB
}

func NewTxManager(db *bun.DB) *TxManager {
	return &TxManager{db: db}
}

// WithTransaction executes fn within a database transaction.
func (tm *TxManager) WithTransaction(ctx context.Context, opts *TransactionOptions, fn func(context.Context, bun.Tx) error) error {
	if opts == nil {
		opts = StandardTransactionOptions()
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	tx, err := tm.db.BeginTx(timeoutCtx, &sql.TxOptions{
		Isolation: opts.IsolationLevel,
	})
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(timeoutCtx, tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
