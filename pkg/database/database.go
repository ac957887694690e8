package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/ehr/inventory-ledger/pkg/config"
	"github.com/ehr/inventory-ledger/pkg/logger"
)

// DB wraps sqlx.DB with transaction and org-scoping helpers.
type DB struct {
	*sqlx.DB
	logger *logger.Logger

	lockTimeout      time.Duration
	statementTimeout time.Duration
}

// Option customizes a DB.
type Option func(*DB)

// WithLockTimeout bounds how long a transaction waits on a row lock.
func WithLockTimeout(d time.Duration) Option {
	return func(db *DB) { db.lockTimeout = d }
}

// WithStatementTimeout bounds every statement inside an org transaction.
func WithStatementTimeout(d time.Duration) Option {
	return func(db *DB) { db.statementTimeout = d }
}

// New creates a new database connection
func New(cfg *config.DatabaseConfig, log *logger.Logger) (*DB, error) {
	db, err := sqlx.Connect("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return Wrap(db, log, WithLockTimeout(cfg.LockTimeout), WithStatementTimeout(cfg.StatementTimeout)), nil
}

// Wrap adopts an existing sqlx handle, e.g. a sqlmock or test container connection.
func Wrap(db *sqlx.DB, log *logger.Logger, opts ...Option) *DB {
	if log == nil {
		log = logger.Nop()
	}
	d := &DB{
		DB:          db,
		logger:      log,
		lockTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Ping checks the database connection
func (db *DB) Ping(ctx context.Context) error {
	return db.PingContext(ctx)
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}

// Health returns the health status of the database
func (db *DB) Health(ctx context.Context) map[string]string {
	status := map[string]string{
		"status": "up",
	}

	ctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		status["status"] = "down"
		status["error"] = err.Error()
	}

	return status
}

// Transaction executes a function within a transaction
func (db *DB) Transaction(ctx context.Context, fn func(*sqlx.Tx) error) error {
	return db.transaction(ctx, nil, fn)
}

func (db *DB) transaction(ctx context.Context, opts *sql.TxOptions, fn func(*sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, opts)
	if err != nil {
		return MapError(fmt.Errorf("failed to begin transaction: %w", err))
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			db.logger.Error().Err(rbErr).Msg("failed to rollback transaction")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return MapError(fmt.Errorf("failed to commit transaction: %w", err))
	}

	return nil
}
