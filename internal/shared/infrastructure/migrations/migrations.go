// Package migrations embeds the schema for both storage backends and applies
// it in order.
package migrations

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/felixgeelhaar/paysync/internal/shared/infrastructure/database"
)

//go:embed postgres/*.sql sqlite/*.sql
var files embed.FS

// Migration is one schema step.
type Migration struct {
	Version string
	SQL     string
}

// Load returns the migrations for a driver, ordered by version.
func Load(driver database.Driver) ([]Migration, error) {
	dir := string(driver)
	entries, err := fs.ReadDir(files, dir)
	if err != nil {
		return nil, fmt.Errorf("migrations: no schema for driver %s: %w", driver, err)
	}

	var out []Migration
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), ".up.sql") {
			continue
		}
		body, err := fs.ReadFile(files, dir+"/"+e.Name())
		if err != nil {
			return nil, fmt.Errorf("migrations: read %s: %w", e.Name(), err)
		}
		out = append(out, Migration{Version: strings.TrimSuffix(e.Name(), ".up.sql"), SQL: string(body)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Run applies every migration not yet recorded in schema_migrations and
// returns the versions it applied. Each step runs in its own transaction.
func Run(ctx context.Context, conn database.Connection) ([]string, error) {
	steps, err := Load(conn.Driver())
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    TEXT PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("migrations: create schema_migrations: %w", err)
	}

	done, err := appliedVersions(ctx, conn)
	if err != nil {
		return nil, err
	}

	insert := `INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`
	if conn.Driver() == database.DriverPostgres {
		insert = `INSERT INTO schema_migrations (version, applied_at) VALUES ($1, $2)`
	}

	var applied []string
	for _, step := range steps {
		if done[step.Version] {
			continue
		}
		tx, err := conn.BeginTx(ctx)
		if err != nil {
			return applied, err
		}
		if _, err := tx.Exec(ctx, step.SQL); err != nil {
			_ = tx.Rollback(ctx)
			return applied, fmt.Errorf("migrations: apply %s: %w", step.Version, err)
		}
		if _, err := tx.Exec(ctx, insert, step.Version, database.FormatTextTime(time.Now())); err != nil {
			_ = tx.Rollback(ctx)
			return applied, fmt.Errorf("migrations: record %s: %w", step.Version, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return applied, err
		}
		applied = append(applied, step.Version)
	}
	return applied, nil
}

func appliedVersions(ctx context.Context, conn database.Connection) (map[string]bool, error) {
	rows, err := conn.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("migrations: read schema_migrations: %w", err)
	}
	defer rows.Close()

	done := map[string]bool{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		done[v] = true
	}
	return done, rows.Err()
}
