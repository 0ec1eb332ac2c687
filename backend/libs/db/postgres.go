package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	defaultMaxOpenConns = 25
	defaultMaxIdleConns = 5
	defaultConnLifetime = time.Hour
	defaultConnIdleTime = 30 * time.Minute
	defaultPingTimeout  = 5 * time.Second
)

// PoolOptions tunes the connection pool. Zero values fall back to defaults.
type PoolOptions struct {
	MaxOpenConns int
	MaxIdleConns int
	ConnLifetime time.Duration
}

// NewPostgresDB creates a pgx/stdlib backed *sql.DB pool and validates the connection.
func NewPostgresDB(dsn string, opts PoolOptions) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("db: empty DSN")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(orDefault(opts.MaxOpenConns, defaultMaxOpenConns))
	db.SetMaxIdleConns(orDefault(opts.MaxIdleConns, defaultMaxIdleConns))
	lifetime := opts.ConnLifetime
	if lifetime <= 0 {
		lifetime = defaultConnLifetime
	}
	db.SetConnMaxLifetime(lifetime)
	db.SetConnMaxIdleTime(defaultConnIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), defaultPingTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// InTx runs fn inside a transaction, committing on success and rolling back otherwise.
func InTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
