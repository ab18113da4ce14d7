package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Supported drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// ErrConcurrencyConflict is returned when a transaction could not be serialized
// against a concurrent writer. Callers may retry the whole operation.
var ErrConcurrencyConflict = errors.New("concurrent update conflict, retry the operation")

// DBTX is satisfied by both *sql.DB and *sql.Tx so repositories can run
// inside or outside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open connects to the database named by url and applies migrations.
// postgres:// and postgresql:// URLs use lib/pq, sqlite:// URLs an embedded file.
func Open(url string) (*sql.DB, string, error) {
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		db, err := NewPostgresConnection(url)
		return db, DriverPostgres, err
	case strings.HasPrefix(url, "sqlite://"):
		db, err := NewSQLiteConnection(strings.TrimPrefix(url, "sqlite://"))
		return db, DriverSQLite, err
	default:
		return nil, "", fmt.Errorf("unsupported database url %q", url)
	}
}

// NewPostgresConnection opens a pooled Postgres connection and migrates the schema
func NewPostgresConnection(url string) (*sql.DB, error) {
	db, err := sql.Open(DriverPostgres, url)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	if err := RunMigrations(DriverPostgres, url); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// NewSQLiteConnection opens (creating if needed) a SQLite file and migrates the schema.
// SQLite allows a single writer, so the pool is limited to one connection.
func NewSQLiteConnection(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := SQLiteDSN(path)
	db, err := sql.Open(DriverSQLite, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := RunMigrations(DriverSQLite, dsn); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// SQLiteDSN builds the modernc DSN with foreign keys and a busy timeout
func SQLiteDSN(path string) string {
	return "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite"
}

// WithTx runs fn inside a transaction. The transaction is rolled back on any
// error or panic and committed otherwise. Serialization failures are wrapped
// with ErrConcurrencyConflict.
func WithTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return classify(err)
	}

	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

func classify(err error) error {
	if err == nil || errors.Is(err, ErrConcurrencyConflict) {
		return err
	}
	if IsConflict(err) {
		return fmt.Errorf("%w: %w", ErrConcurrencyConflict, err)
	}
	return err
}

// IsConflict reports whether err is a driver error meaning the write lost a
// race with another transaction.
func IsConflict(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01", "55P03":
			return true
		}
		return false
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
	}
	return false
}

// IsUniqueViolation reports whether err comes from a unique constraint
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}
