// Package postgres implements a store.Sink that mirrors accepted log records
// into PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/alfredjeanlab/logbridge/internal/model"
	"github.com/alfredjeanlab/logbridge/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store mirrors log records into the log_records table.
type Store struct {
	db *sql.DB
}

// Compile-time check that Store implements store.Sink.
var _ store.Sink = (*Store)(nil)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
func New(databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Append inserts rec. Re-appending the same record ID is a no-op.
func (s *Store) Append(ctx context.Context, rec model.Record) error {
	if err := queryInsertRecord(ctx, s.db, rec); err != nil {
		return fmt.Errorf("insert log record %s: %w", rec.ID, err)
	}
	return nil
}

// Recent returns up to limit of the newest mirrored records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]model.Record, error) {
	return queryRecentRecords(ctx, s.db, limit)
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
