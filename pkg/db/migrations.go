package db

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
)

const migrationsLogPrefix = "db:migrations"

// LoadMigrationFiles reads all .sql files from dir, sorted by name.
func LoadMigrationFiles(dir string) ([]Migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to read migration dir %s: %w", migrationsLogPrefix, dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".sql" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	out := make([]Migration, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%s - failed to read %s: %w", migrationsLogPrefix, path, err)
		}
		out = append(out, Migration{Name: name, SQL: string(data)})
	}
	slog.Info(fmt.Sprintf("%s - Loaded %d migration files from %s", migrationsLogPrefix, len(out), dir))
	return out, nil
}

// PendingMigrations returns the migrations whose names are not in applied, preserving order.
func PendingMigrations(all []Migration, applied map[string]bool) []Migration {
	var pending []Migration
	for _, m := range all {
		if !applied[m.Name] {
			pending = append(pending, m)
		}
	}
	return pending
}
