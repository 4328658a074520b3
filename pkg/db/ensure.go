package db

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const ensureLogPrefix = "db:ensure"

// safeDBName matches allowed database names (alphanumeric and underscore only).
var safeDBName = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// EnsureDatabase creates the audit database named in databaseURL when it does not exist.
// Call before NewPool when the dispatcher should provision its own database.
func EnsureDatabase(ctx context.Context, databaseURL string) error {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return fmt.Errorf("%s - invalid database URL: %w", ensureLogPrefix, err)
	}
	dbname, err := databaseName(u)
	if err != nil {
		return err
	}

	postgresURL := buildPostgresURL(u)
	config, err := pgxpool.ParseConfig(postgresURL)
	if err != nil {
		return fmt.Errorf("%s - failed to parse postgres URL: %w", ensureLogPrefix, err)
	}
	config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return fmt.Errorf("%s - failed to connect to postgres: %w", ensureLogPrefix, err)
	}
	defer pool.Close()

	var exists bool
	err = pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)`, dbname).Scan(&exists)
	if err != nil && err != pgx.ErrNoRows {
		return fmt.Errorf("%s - failed to check database: %w", ensureLogPrefix, err)
	}

	if !exists {
		slog.Info(fmt.Sprintf("%s - Creating database %q", ensureLogPrefix, dbname))
		_, err = pool.Exec(ctx, fmt.Sprintf("CREATE DATABASE %s", quoteIdent(dbname)))
		if err != nil {
			return fmt.Errorf("%s - CREATE DATABASE failed: %w", ensureLogPrefix, err)
		}
	}

	slog.Info(fmt.Sprintf("%s - Database %q ready", ensureLogPrefix, dbname))
	return nil
}

// databaseName extracts and validates the database name from a connection URL.
func databaseName(u *url.URL) (string, error) {
	dbname := strings.TrimSpace(strings.TrimPrefix(u.Path, "/"))
	if dbname == "" {
		return "", fmt.Errorf("%s - database name empty in URL", ensureLogPrefix)
	}
	if !safeDBName.MatchString(dbname) {
		return "", fmt.Errorf("%s - database name %q contains invalid characters", ensureLogPrefix, dbname)
	}
	return dbname, nil
}

func buildPostgresURL(u *url.URL) string {
	postgres := *u
	postgres.Path = "/postgres"
	return postgres.String()
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
