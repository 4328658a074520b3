package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const repoLogPrefix = "db:repository"

// Repository provides database access for the invocation audit log.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertInvocation records a completed dispatch. Re-inserting the same invocation id is a no-op.
func (r *Repository) InsertInvocation(ctx context.Context, inv *Invocation) error {
	slog.Debug(fmt.Sprintf("%s - InsertInvocation id=%s system=%s action=%s", repoLogPrefix, inv.InvocationID, inv.SystemName, inv.ActionName))

	dispatchedAt := inv.DispatchedAt
	if dispatchedAt.IsZero() {
		dispatchedAt = time.Now().UTC()
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO action_invocations
		   (invocation_id, request_id, system_name, action_name, status,
		    error_type, error_message, duration_ms, dispatched_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (invocation_id) DO NOTHING`,
		inv.InvocationID, inv.RequestID, inv.SystemName, inv.ActionName, inv.Status,
		inv.ErrorType, inv.ErrorMessage, inv.DurationMs, dispatchedAt,
	)
	if err != nil {
		return fmt.Errorf("%s - InsertInvocation failed: %w", repoLogPrefix, err)
	}
	return nil
}

// ListInvocationsParams holds parameters for ListInvocations.
type ListInvocationsParams struct {
	System string
	Action string
	Status string
	Since  time.Time
	Page   int
	Limit  int
}

// ListInvocations returns invocations matching params, newest first, and the total match count.
func (r *Repository) ListInvocations(ctx context.Context, params ListInvocationsParams) ([]Invocation, int, error) {
	page := params.Page
	if page < 1 {
		page = 1
	}
	limit := params.Limit
	if limit < 1 {
		limit = 20
	}
	offset := (page - 1) * limit

	where, args := invocationFilter(params)
	query := `SELECT invocation_id, request_id, system_name, action_name, status,
	                 error_type, error_message, duration_ms, dispatched_at
	          FROM action_invocations` + where
	countQuery := `SELECT COUNT(*)::int FROM action_invocations` + where

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("%s - ListInvocations count failed: %w", repoLogPrefix, err)
	}

	query += ` ORDER BY dispatched_at DESC`
	query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("%s - ListInvocations query failed: %w", repoLogPrefix, err)
	}
	defer rows.Close()

	invs, err := scanInvocations(rows)
	if err != nil {
		return nil, 0, err
	}
	return invs, total, nil
}

// GetInvocation finds an invocation by id. Returns nil, nil when absent.
func (r *Repository) GetInvocation(ctx context.Context, invocationID string) (*Invocation, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT invocation_id, request_id, system_name, action_name, status,
		        error_type, error_message, duration_ms, dispatched_at
		 FROM action_invocations
		 WHERE invocation_id = $1
		 LIMIT 1`, invocationID)

	var inv Invocation
	err := row.Scan(
		&inv.InvocationID, &inv.RequestID, &inv.SystemName, &inv.ActionName, &inv.Status,
		&inv.ErrorType, &inv.ErrorMessage, &inv.DurationMs, &inv.DispatchedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s - scan invocation failed: %w", repoLogPrefix, err)
	}
	return &inv, nil
}

// InvocationStats aggregates invocations dispatched at or after since.
func (r *Repository) InvocationStats(ctx context.Context, since time.Time) ([]InvocationStat, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT system_name, action_name, status, COUNT(*)::int, COALESCE(AVG(duration_ms), 0)::float8
		 FROM action_invocations
		 WHERE dispatched_at >= $1
		 GROUP BY system_name, action_name, status
		 ORDER BY system_name, action_name, status`, since)
	if err != nil {
		return nil, fmt.Errorf("%s - InvocationStats query failed: %w", repoLogPrefix, err)
	}
	defer rows.Close()

	var stats []InvocationStat
	for rows.Next() {
		var s InvocationStat
		if err := rows.Scan(&s.SystemName, &s.ActionName, &s.Status, &s.Count, &s.AvgDurationMs); err != nil {
			return nil, fmt.Errorf("%s - scan stats failed: %w", repoLogPrefix, err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// PruneInvocations deletes invocations dispatched before cutoff and returns the number removed.
func (r *Repository) PruneInvocations(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM action_invocations WHERE dispatched_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%s - PruneInvocations failed: %w", repoLogPrefix, err)
	}
	slog.Info(fmt.Sprintf("%s - Pruned %d invocations before %s", repoLogPrefix, tag.RowsAffected(), cutoff.Format(time.RFC3339)))
	return tag.RowsAffected(), nil
}

// invocationFilter builds the WHERE clause and positional args for params.
func invocationFilter(params ListInvocationsParams) (string, []any) {
	where := ` WHERE 1=1`
	var args []any

	add := func(clause string, v any) {
		args = append(args, v)
		where += fmt.Sprintf(clause, len(args))
	}
	if params.System != "" {
		add(` AND system_name = $%d`, params.System)
	}
	if params.Action != "" {
		add(` AND action_name = $%d`, params.Action)
	}
	if params.Status != "" && params.Status != "all" {
		add(` AND status = $%d`, params.Status)
	}
	if !params.Since.IsZero() {
		add(` AND dispatched_at >= $%d`, params.Since)
	}
	return where, args
}

func scanInvocations(rows pgx.Rows) ([]Invocation, error) {
	var invs []Invocation
	for rows.Next() {
		var inv Invocation
		if err := rows.Scan(
			&inv.InvocationID, &inv.RequestID, &inv.SystemName, &inv.ActionName, &inv.Status,
			&inv.ErrorType, &inv.ErrorMessage, &inv.DurationMs, &inv.DispatchedAt,
		); err != nil {
			return nil, fmt.Errorf("%s - scan invocations failed: %w", repoLogPrefix, err)
		}
		invs = append(invs, inv)
	}
	return invs, rows.Err()
}
