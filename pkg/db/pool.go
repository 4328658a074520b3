// Package db persists the invocation audit log in Postgres via pgx.
package db

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

const logPrefix = "db:pool"

// NewPool creates a new pgx connection pool from the given database URL.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	slog.Info(fmt.Sprintf("%s - Connecting to database", logPrefix))

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to parse database URL: %w", logPrefix, err)
	}

	// Audit writes are small and bursty.
	config.MaxConns = 10
	config.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to create pool: %w", logPrefix, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s - failed to ping database: %w", logPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Database connection established", logPrefix))
	return pool, nil
}

const createMigrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
	name       TEXT PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// RunMigrations applies migrations not yet recorded in schema_migrations, each in its own transaction.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, migrations []Migration) error {
	if _, err := pool.Exec(ctx, createMigrationsTable); err != nil {
		return fmt.Errorf("%s - create schema_migrations: %w", logPrefix, err)
	}

	applied, err := AppliedMigrations(ctx, pool)
	if err != nil {
		return err
	}
	pending := PendingMigrations(migrations, applied)
	slog.Info(fmt.Sprintf("%s - Running %d of %d migrations", logPrefix, len(pending), len(migrations)))

	for _, m := range pending {
		tx, err := pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("%s - begin %s: %w", logPrefix, m.Name, err)
		}
		if _, err := tx.Exec(ctx, m.SQL); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("%s - migration %s failed: %w", logPrefix, m.Name, err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, m.Name); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("%s - record %s: %w", logPrefix, m.Name, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("%s - commit %s: %w", logPrefix, m.Name, err)
		}
		slog.Info(fmt.Sprintf("%s - Applied migration %s", logPrefix, m.Name))
	}

	slog.Info(fmt.Sprintf("%s - Migrations complete", logPrefix))
	return nil
}

// AppliedMigrations returns the set of migration names recorded in schema_migrations.
// A missing table yields an empty set.
func AppliedMigrations(ctx context.Context, pool *pgxpool.Pool) (map[string]bool, error) {
	var exists bool
	err := pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = 'schema_migrations')`).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to check schema: %w", logPrefix, err)
	}
	applied := make(map[string]bool)
	if !exists {
		return applied, nil
	}

	rows, err := pool.Query(ctx, `SELECT name FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("%s - list applied migrations: %w", logPrefix, err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("%s - scan migration name: %w", logPrefix, err)
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

// MigrationStatus writes applied and pending migrations for migrationPath to w.
func MigrationStatus(ctx context.Context, pool *pgxpool.Pool, migrationPath string, w io.Writer) error {
	const statusLogPrefix = "db:MigrationStatus"

	files, err := LoadMigrationFiles(migrationPath)
	if err != nil {
		return fmt.Errorf("%s - load migration list: %w", statusLogPrefix, err)
	}
	applied, err := AppliedMigrations(ctx, pool)
	if err != nil {
		return fmt.Errorf("%s - %w", statusLogPrefix, err)
	}

	pending := PendingMigrations(files, applied)
	fmt.Fprintf(w, "Migration status: %d applied, %d pending (%d files in %s)\n",
		len(files)-len(pending), len(pending), len(files), migrationPath)
	for _, m := range files {
		state := "applied"
		if !applied[m.Name] {
			state = "pending"
		}
		fmt.Fprintf(w, "  %-40s %s\n", m.Name, state)
	}
	return nil
}

// MigrationDown reports that migrations are forward-only.
func MigrationDown(_ context.Context, _ *pgxpool.Pool, _ string, w io.Writer) error {
	fmt.Fprintln(w, "Migration down: not supported (migrations are forward-only). Use a database backup to roll back.")
	return nil
}
