// Package migrations applies the embedded history schema to Postgres.
package migrations

import (
	"cmp"
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

//go:embed sql/*.sql
var embeddedFS embed.FS

const migrationTable = "athenarun_schema_migrations"

var fileNamePattern = regexp.MustCompile(`^([0-9]+)_(.+)\.(up|down)\.sql$`)

// Runner applies numbered up/down script pairs read from sql/ in fsys. Each
// script runs in its own transaction together with its bookkeeping row.
type Runner struct {
	fsys fs.FS
}

func NewRunner() *Runner {
	return &Runner{fsys: embeddedFS}
}

// Status reports one known migration and whether it has been applied.
type Status struct {
	Version int64
	Name    string
	Applied bool
}

type migration struct {
	version int64
	name    string
	up      string
	down    string
}

type direction struct {
	verb string
	mark string
}

var (
	forward = direction{verb: "apply", mark: `INSERT INTO ` + migrationTable + ` (version) VALUES ($1)`}
	reverse = direction{verb: "rollback", mark: `DELETE FROM ` + migrationTable + ` WHERE version = $1`}
)

// Up applies pending migrations in version order. steps <= 0 applies all.
func (r *Runner) Up(ctx context.Context, db *sql.DB, steps int) (int, error) {
	known, applied, err := r.prepare(ctx, db, "ASC")
	if err != nil {
		return 0, err
	}
	done := make(map[int64]bool, len(applied))
	for _, version := range applied {
		done[version] = true
	}

	count := 0
	for _, m := range known {
		if done[m.version] {
			continue
		}
		if steps > 0 && count == steps {
			break
		}
		if err := run(ctx, db, forward, m.version, m.up); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// Down rolls back the newest applied migrations. steps <= 0 rolls back one.
func (r *Runner) Down(ctx context.Context, db *sql.DB, steps int) (int, error) {
	steps = max(steps, 1)
	known, applied, err := r.prepare(ctx, db, "DESC")
	if err != nil {
		return 0, err
	}
	byVersion := make(map[int64]migration, len(known))
	for _, m := range known {
		byVersion[m.version] = m
	}

	count := 0
	for _, version := range applied[:min(steps, len(applied))] {
		m, ok := byVersion[version]
		if !ok {
			return count, fmt.Errorf("applied migration %d has no script in this build", version)
		}
		if err := run(ctx, db, reverse, m.version, m.down); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// Status lists every embedded migration in version order.
func (r *Runner) Status(ctx context.Context, db *sql.DB) ([]Status, error) {
	known, applied, err := r.prepare(ctx, db, "ASC")
	if err != nil {
		return nil, err
	}
	statuses := make([]Status, 0, len(known))
	for _, m := range known {
		statuses = append(statuses, Status{
			Version: m.version,
			Name:    m.name,
			Applied: slices.Contains(applied, m.version),
		})
	}
	return statuses, nil
}

func (r *Runner) prepare(ctx context.Context, db *sql.DB, order string) ([]migration, []int64, error) {
	known, err := loadMigrations(r.fsys)
	if err != nil {
		return nil, nil, err
	}
	if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS `+migrationTable+` (
	version BIGINT PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`); err != nil {
		return nil, nil, fmt.Errorf("ensure migration table: %w", err)
	}
	applied, err := appliedVersions(ctx, db, order)
	if err != nil {
		return nil, nil, err
	}
	return known, applied, nil
}

func run(ctx context.Context, db *sql.DB, dir direction, version int64, script string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s migration %d: begin: %w", dir.verb, version, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, script); err != nil {
		return fmt.Errorf("%s migration %d: %w", dir.verb, version, err)
	}
	if _, err := tx.ExecContext(ctx, dir.mark, version); err != nil {
		return fmt.Errorf("%s migration %d: record version: %w", dir.verb, version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s migration %d: commit: %w", dir.verb, version, err)
	}
	return nil
}

func appliedVersions(ctx context.Context, db *sql.DB, order string) ([]int64, error) {
	rows, err := db.QueryContext(ctx, `SELECT version FROM `+migrationTable+` ORDER BY version `+order)
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var versions []int64
	for rows.Next() {
		var version int64
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		versions = append(versions, version)
	}
	return versions, rows.Err()
}

// loadMigrations pairs NNNNNN_name.up.sql with NNNNNN_name.down.sql. Files
// that do not follow the pattern are ignored.
func loadMigrations(fsys fs.FS) ([]migration, error) {
	files, err := fs.Glob(fsys, "sql/*.sql")
	if err != nil {
		return nil, fmt.Errorf("list migration files: %w", err)
	}

	byVersion := map[int64]*migration{}
	for _, file := range files {
		parts := fileNamePattern.FindStringSubmatch(path.Base(file))
		if parts == nil {
			continue
		}
		version, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("migration %q: bad version: %w", file, err)
		}
		body, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("read migration %q: %w", file, err)
		}

		m, ok := byVersion[version]
		if !ok {
			m = &migration{version: version, name: parts[2]}
			byVersion[version] = m
		}
		if parts[3] == "up" {
			m.up = string(body)
		} else {
			m.down = string(body)
		}
	}

	out := make([]migration, 0, len(byVersion))
	for _, m := range byVersion {
		switch {
		case strings.TrimSpace(m.up) == "":
			return nil, fmt.Errorf("migration %d missing up SQL", m.version)
		case strings.TrimSpace(m.down) == "":
			return nil, fmt.Errorf("migration %d missing down SQL", m.version)
		}
		out = append(out, *m)
	}
	slices.SortFunc(out, func(a, b migration) int { return cmp.Compare(a.version, b.version) })
	return out, nil
}
