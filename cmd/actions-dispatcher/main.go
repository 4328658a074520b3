// Package main is the entrypoint for the actions-dispatcher.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morezero/actions-dispatcher/internal/config"
	"github.com/morezero/actions-dispatcher/internal/server"
	"github.com/morezero/actions-dispatcher/pkg/blocking"
	"github.com/morezero/actions-dispatcher/pkg/db"
	"github.com/morezero/actions-dispatcher/pkg/events"
	"github.com/morezero/actions-dispatcher/pkg/localaudit"
	"github.com/morezero/actions-dispatcher/pkg/registry"
)

const usage = `Usage: actions-dispatcher [command]
       actions-dispatcher serve               Start the dispatcher (transport, HTTP, audit).
       actions-dispatcher actions [--json]    Print the registered action catalogue.
       actions-dispatcher migrate up          Run database migrations.
       actions-dispatcher migrate down        Explain rollback (migrations are forward-only).
       actions-dispatcher migrate status      Show migration status.
       actions-dispatcher ensure-db [name]    Create database if missing (default name: actions_dispatcher_test).
       actions-dispatcher clear               Truncate the invocation audit table; schema is preserved.
       actions-dispatcher invocations [system] List recent invocations (Postgres, else AUDIT_SQLITE_PATH).
       actions-dispatcher stats [window]      Per-action invocation counts over window (default 24h).
       actions-dispatcher prune <age>         Delete audit rows older than age (e.g. 720h).

Commands:
  serve           (default) Start the actions dispatcher.
  actions         Load the systems manifest and list every action with its required input.
  migrate up      Run database migrations only.
  migrate down    Print rollback guidance.
  migrate status  Show current migration status.
  ensure-db [name] Create database on same host as DATABASE_URL; then run tests with that URL.
  clear           Truncate audit data; schema preserved.

Environment: TRANSPORT, TEAM_ID, SOCKET_ENDPOINT, COMMS_URL, DATABASE_URL, MIGRATION_PATH,
AUDIT_SQLITE_PATH, SYSTEMS_FILE, HTTP_PORT, LOG_LEVEL. See README.
`

func main() {
	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 && args[0] != "" {
		cmd = args[0]
	}

	switch cmd {
	case "actions":
		asJSON := len(args) > 1 && args[1] == "--json"
		if err := runActions(os.Stdout, asJSON); err != nil {
			log.Fatalf("actions-dispatcher actions: %v", err)
		}
		return
	case "migrate":
		if len(args) < 2 {
			log.Fatalf("actions-dispatcher migrate: require subcommand (up, down, status)")
		}
		sub := args[1]
		switch sub {
		case "up", "status", "down":
			if err := runMigrate(sub); err != nil {
				log.Fatalf("actions-dispatcher migrate %s: %v", sub, err)
			}
		default:
			log.Fatalf("actions-dispatcher migrate: unknown subcommand %q (use up, down, status)", sub)
		}
		return
	case "clear":
		if err := withPool(func(ctx context.Context, _ *config.Config, pool *pgxpool.Pool) error {
			return db.ClearInvocations(ctx, pool)
		}); err != nil {
			log.Fatalf("actions-dispatcher clear: %v", err)
		}
		return
	case "ensure-db":
		dbName := "actions_dispatcher_test"
		if len(args) > 1 && args[1] != "" {
			dbName = args[1]
		}
		if err := runEnsureDB(dbName); err != nil {
			log.Fatalf("actions-dispatcher ensure-db: %v", err)
		}
		return
	case "invocations":
		system := ""
		if len(args) > 1 {
			system = args[1]
		}
		if err := runInvocations(os.Stdout, system); err != nil {
			log.Fatalf("actions-dispatcher invocations: %v", err)
		}
		return
	case "stats":
		window := "24h"
		if len(args) > 1 && args[1] != "" {
			window = args[1]
		}
		if err := runStats(os.Stdout, window); err != nil {
			log.Fatalf("actions-dispatcher stats: %v", err)
		}
		return
	case "prune":
		if len(args) < 2 {
			log.Fatalf("actions-dispatcher prune: require age (e.g. 720h)")
		}
		if err := runPrune(os.Stdout, args[1]); err != nil {
			log.Fatalf("actions-dispatcher prune: %v", err)
		}
		return
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	case "serve", "":
		// serve (explicit or default)
		break
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q.\n%s", cmd, usage)
		os.Exit(1)
	}

	if err := server.Run(); err != nil {
		log.Fatalf("actions-dispatcher: %v", err)
	}
}

func runActions(w io.Writer, asJSON bool) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	server.SetupLogging("warn")
	reg, _, err := server.BuildRegistry(cfg, blocking.NewPool(1))
	if err != nil {
		return err
	}
	return writeCatalogue(w, reg.Catalogue(), asJSON)
}

// writeCatalogue prints one line per action, or the catalogue as indented JSON.
func writeCatalogue(w io.Writer, catalogue []registry.SystemDescription, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(catalogue)
	}
	for _, sd := range catalogue {
		fmt.Fprintf(w, "%s (%d actions)\n", sd.Name, len(sd.Actions))
		for _, a := range sd.Actions {
			var required []string
			if req, ok := a.InputSchema["required"].([]string); ok {
				required = req
			}
			fmt.Fprintf(w, "  %-28s required: %s\n", a.Action, strings.Join(required, ", "))
		}
	}
	return nil
}

// withPool loads config, validates it for DB commands and runs fn with a connected pool.
func withPool(fn func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	return fn(ctx, cfg, pool)
}

func runMigrate(sub string) error {
	return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
		switch sub {
		case "status":
			return db.MigrationStatus(ctx, pool, cfg.MigrationPath, os.Stdout)
		case "down":
			return db.MigrationDown(ctx, pool, cfg.MigrationPath, os.Stdout)
		}
		migrations, err := db.LoadMigrationFiles(cfg.MigrationPath)
		if err != nil {
			return fmt.Errorf("load migrations: %w", err)
		}
		if err := db.RunMigrations(ctx, pool, migrations); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		return nil
	})
}

func runEnsureDB(dbName string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	targetURL, err := withDatabaseName(cfg.DatabaseURL, dbName)
	if err != nil {
		return err
	}
	if err := db.EnsureDatabase(context.Background(), targetURL); err != nil {
		return err
	}
	fmt.Printf("Database %q is ready.\n", dbName)
	return nil
}

// withDatabaseName replaces the database in a Postgres URL, keeping the query (e.g. sslmode).
func withDatabaseName(databaseURL, dbName string) (string, error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	u.Path = "/" + dbName
	return u.String(), nil
}

func runInvocations(w io.Writer, system string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.DatabaseURL == "" && cfg.AuditSQLitePath != "" {
		store, err := localaudit.Open(cfg.AuditSQLitePath)
		if err != nil {
			return err
		}
		defer store.Close()
		recent, err := store.Recent(context.Background(), 50)
		if err != nil {
			return err
		}
		writeEvents(w, recent, system)
		return nil
	}
	return withPool(func(ctx context.Context, _ *config.Config, pool *pgxpool.Pool) error {
		invs, total, err := db.NewRepository(pool).ListInvocations(ctx, db.ListInvocationsParams{
			System: system,
			Limit:  50,
		})
		if err != nil {
			return err
		}
		writeInvocations(w, invs, total)
		return nil
	})
}

func writeInvocations(w io.Writer, invs []db.Invocation, total int) {
	fmt.Fprintf(w, "%d of %d invocations\n", len(invs), total)
	for _, inv := range invs {
		errType := ""
		if inv.ErrorType != nil {
			errType = *inv.ErrorType
		}
		fmt.Fprintf(w, "%s  %-10s %-28s %-7s %6dms %s\n",
			inv.DispatchedAt.UTC().Format(time.RFC3339), inv.SystemName, inv.ActionName, inv.Status, inv.DurationMs, errType)
	}
}

// writeEvents prints local audit rows, keeping only system when it is set.
func writeEvents(w io.Writer, evs []events.ActionDispatchedEvent, system string) {
	for _, e := range evs {
		if system != "" && e.SystemName != system {
			continue
		}
		fmt.Fprintf(w, "%s  %-10s %-28s %-7s %6dms %s\n",
			e.Timestamp, e.SystemName, e.ActionName, e.Status, e.DurationMs, e.ErrorType)
	}
}

func runStats(w io.Writer, window string) error {
	d, err := parseAge(window)
	if err != nil {
		return err
	}
	return withPool(func(ctx context.Context, _ *config.Config, pool *pgxpool.Pool) error {
		stats, err := db.NewRepository(pool).InvocationStats(ctx, time.Now().Add(-d))
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Invocations in the last %s\n", d)
		for _, s := range stats {
			fmt.Fprintf(w, "  %-10s %-28s %-7s %6d  avg %.0fms\n", s.SystemName, s.ActionName, s.Status, s.Count, s.AvgDurationMs)
		}
		return nil
	})
}

func runPrune(w io.Writer, age string) error {
	d, err := parseAge(age)
	if err != nil {
		return err
	}
	return withPool(func(ctx context.Context, _ *config.Config, pool *pgxpool.Pool) error {
		n, err := db.NewRepository(pool).PruneInvocations(ctx, time.Now().Add(-d))
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Pruned %d invocations older than %s\n", n, d)
		return nil
	})
}

// parseAge parses a positive Go duration.
func parseAge(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration %q must be positive", s)
	}
	return d, nil
}
