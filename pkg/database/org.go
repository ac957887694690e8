package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ehr/inventory-ledger/pkg/org"
)

type txKey struct{}

// Querier is satisfied by both *sqlx.DB and *sqlx.Tx.
type Querier interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// scopeQuery sets the transaction-local org and timeouts in one round trip.
// set_config(..., true) is the parameterized form of SET LOCAL.
const scopeQuery = `SELECT set_config('app.current_org', $1, true),
       set_config('lock_timeout', $2, true),
       set_config('statement_timeout', $3, true)`

// WithOrg runs fn inside a transaction scoped to the org carried by ctx.
//
// The transaction sets app.current_org, which the row-level-security
// policies compare against org_id, and lock_timeout, which turns a blocked
// SELECT ... FOR UPDATE into a contention error instead of waiting forever.
// Nested calls join the outer transaction.
func (db *DB) WithOrg(ctx context.Context, fn func(ctx context.Context, tx *sqlx.Tx) error) error {
	return db.withOrg(ctx, nil, fn)
}

// ReadOrg is WithOrg with a read-only transaction.
func (db *DB) ReadOrg(ctx context.Context, fn func(ctx context.Context, tx *sqlx.Tx) error) error {
	return db.withOrg(ctx, &sql.TxOptions{ReadOnly: true}, fn)
}

func (db *DB) withOrg(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, tx *sqlx.Tx) error) error {
	if tx := TxFromContext(ctx); tx != nil {
		return fn(ctx, tx)
	}

	orgID, err := org.OrgID(ctx)
	if err != nil {
		return err
	}

	return db.transaction(ctx, opts, func(tx *sqlx.Tx) error {
		if err := scope(ctx, tx, orgID, db.lockTimeout, db.statementTimeout); err != nil {
			return err
		}
		return fn(context.WithValue(ctx, txKey{}, tx), tx)
	})
}

func scope(ctx context.Context, tx *sqlx.Tx, orgID uuid.UUID, lockTimeout, statementTimeout time.Duration) error {
	if _, err := tx.ExecContext(ctx, scopeQuery,
		orgID.String(),
		millis(lockTimeout),
		millis(statementTimeout),
	); err != nil {
		return MapError(fmt.Errorf("failed to scope transaction to org %s: %w", orgID, err))
	}
	return nil
}

func millis(d time.Duration) string {
	if d <= 0 {
		return "0"
	}
	return fmt.Sprintf("%dms", d.Milliseconds())
}

// TxFromContext returns the transaction started by WithOrg, if any.
func TxFromContext(ctx context.Context) *sqlx.Tx {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return nil
}

// Q returns the transaction in ctx, falling back to the pool.
func (db *DB) Q(ctx context.Context) Querier {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return db.DB
}
