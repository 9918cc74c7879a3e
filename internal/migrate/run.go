// Package migrate applies the embedded schema migrations.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"slices"
	"strings"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// lockKey is the pg_advisory_xact_lock key held while a migration is applied, so replicas
// starting together apply each version once.
const lockKey int64 = 0x64617461706f7274

// Migration is one versioned SQL script. Version is the file name without ".sql".
type Migration struct {
	Version string
	SQL     string
}

// Load reads migrations/*.sql from fsys in version order. Subdirectories are ignored.
func Load(fsys fs.FS) ([]Migration, error) {
	names, err := fs.Glob(fsys, "migrations/*.sql")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	slices.Sort(names)

	out := make([]Migration, 0, len(names))
	for _, name := range names {
		b, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		out = append(out, Migration{Version: strings.TrimSuffix(path.Base(name), ".sql"), SQL: string(b)})
	}
	return out, nil
}

// Migrator applies a fixed list of migrations and records them in schema_migrations.
type Migrator struct {
	db         *sql.DB
	migrations []Migration
	logger     *slog.Logger
}

// New loads the migrations in fsys.
func New(db *sql.DB, fsys fs.FS, logger *slog.Logger) (*Migrator, error) {
	ms, err := Load(fsys)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Migrator{db: db, migrations: ms, logger: logger.With("component", "migrations")}, nil
}

// Run applies the embedded migrations. Already applied versions are skipped.
func Run(ctx context.Context, db *sql.DB) error {
	m, err := New(db, migrationsFS, nil)
	if err != nil {
		return err
	}
	_, err = m.Apply(ctx)
	return err
}

// Pending lists the embedded versions Run would apply.
func Pending(ctx context.Context, db *sql.DB) ([]string, error) {
	m, err := New(db, migrationsFS, nil)
	if err != nil {
		return nil, err
	}
	return m.Pending(ctx)
}

// Pending lists versions not yet recorded, in order.
func (m *Migrator) Pending(ctx context.Context) ([]string, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	rows, err := m.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan schema_migrations: %w", err)
		}
		done[v] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}

	var pending []string
	for _, mig := range m.migrations {
		if !done[mig.Version] {
			pending = append(pending, mig.Version)
		}
	}
	return pending, nil
}

// Apply runs each unapplied migration in its own transaction and returns the versions it applied.
func (m *Migrator) Apply(ctx context.Context) ([]string, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	var applied []string
	for _, mig := range m.migrations {
		ran, err := m.apply(ctx, mig)
		if err != nil {
			return applied, err
		}
		if ran {
			applied = append(applied, mig.Version)
		}
	}
	return applied, nil
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	return nil
}

func (m *Migrator) apply(ctx context.Context, mig Migration) (ran bool, err error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin %s: %w", mig.Version, err)
	}
	defer func() {
		if rerr := tx.Rollback(); rerr != nil && !errors.Is(rerr, sql.ErrTxDone) {
			err = errors.Join(err, fmt.Errorf("rollback %s: %w", mig.Version, rerr))
		}
	}()

	if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, lockKey); err != nil {
		return false, fmt.Errorf("lock %s: %w", mig.Version, err)
	}
	var exists bool
	err = tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, mig.Version).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check %s: %w", mig.Version, err)
	}
	if exists {
		return false, nil
	}

	m.logger.InfoContext(ctx, "applying migration", "version", mig.Version)
	if _, err = tx.ExecContext(ctx, mig.SQL); err != nil {
		return false, fmt.Errorf("exec %s: %w", mig.Version, err)
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, mig.Version); err != nil {
		return false, fmt.Errorf("record %s: %w", mig.Version, err)
	}
	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("commit %s: %w", mig.Version, err)
	}
	return true, nil
}
