// Package localaudit keeps a file-backed SQLite log of dispatched actions for deployments
// without Postgres.
package localaudit

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"

	"github.com/morezero/actions-dispatcher/pkg/events"
)

const logPrefix = "localaudit:store"

//go:embed schema.sql
var schema string

// Store is a SQLite-backed events.EventPublisher.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the SQLite file at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("%s - open %s: %w", logPrefix, path, err)
	}
	// SQLite serializes writers anyway; one connection also keeps :memory: databases coherent.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s - init schema: %w", logPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Audit store opened at %s", logPrefix, path))
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// PublishDispatched records the event. Duplicate invocation ids are ignored.
func (s *Store) PublishDispatched(ctx context.Context, event *events.ActionDispatchedEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO invocations
		   (invocation_id, request_id, system_name, action_name, status,
		    error_type, error_message, duration_ms, dispatched_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.InvocationID, event.RequestID, event.SystemName, event.ActionName, event.Status,
		event.ErrorType, event.ErrorMessage, event.DurationMs, event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("%s - insert %s: %w", logPrefix, event.InvocationID, err)
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]events.ActionDispatchedEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT invocation_id, request_id, system_name, action_name, status,
		        error_type, error_message, duration_ms, dispatched_at
		 FROM invocations
		 ORDER BY dispatched_at DESC, rowid DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("%s - query recent: %w", logPrefix, err)
	}
	defer rows.Close()

	var out []events.ActionDispatchedEvent
	for rows.Next() {
		var e events.ActionDispatchedEvent
		if err := rows.Scan(&e.InvocationID, &e.RequestID, &e.SystemName, &e.ActionName, &e.Status,
			&e.ErrorType, &e.ErrorMessage, &e.DurationMs, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("%s - scan: %w", logPrefix, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountByStatus returns the number of recorded invocations per status.
func (s *Store) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM invocations GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("%s - count: %w", logPrefix, err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("%s - scan count: %w", logPrefix, err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
