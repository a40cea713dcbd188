package db

import (
	"cmp"
	"context"
	"fmt"
	"io/fs"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Migration is one numbered SQL file. The version is the numeric prefix of
// the file name, so "001_processed_document.sql" is version 1.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// MigrationStatus reports whether a migration has run against a schema.
type MigrationStatus struct {
	Version   int
	Name      string
	Applied   bool
	AppliedAt *time.Time
}

// Migrator applies the SQL files at the root of source to a schema and
// keeps a schema_migration history table next to the data.
type Migrator struct {
	pool   *pgxpool.Pool
	source fs.FS
}

// NewMigrator returns a Migrator over source, normally migrations.FS.
func NewMigrator(pool *pgxpool.Pool, source fs.FS) *Migrator {
	return &Migrator{pool: pool, source: source}
}

// migrationVersion parses the numeric prefix of name. Names without a
// "<n>_" prefix or ".sql" suffix are not migrations.
func migrationVersion(name string) (int, bool) {
	if !strings.HasSuffix(name, ".sql") {
		return 0, false
	}
	prefix, _, found := strings.Cut(name, "_")
	if !found {
		return 0, false
	}
	v, err := strconv.Atoi(prefix)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

// LoadMigrations returns the migrations in source ordered by version.
// Subdirectories and files that are not migrations are ignored. Two files
// sharing a version are an error.
func (m *Migrator) LoadMigrations() ([]Migration, error) {
	names, err := fs.Glob(m.source, "*.sql")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}

	byVersion := make(map[int]string, len(names))
	out := make([]Migration, 0, len(names))
	for _, name := range names {
		version, ok := migrationVersion(name)
		if !ok {
			continue
		}
		if prev, dup := byVersion[version]; dup {
			return nil, fmt.Errorf("duplicate migration version %d: %s and %s", version, prev, name)
		}
		byVersion[version] = name

		body, err := fs.ReadFile(m.source, name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		out = append(out, Migration{Version: version, Name: name, SQL: string(body)})
	}
	slices.SortFunc(out, func(a, b Migration) int { return cmp.Compare(a.Version, b.Version) })
	return out, nil
}

// history creates the schema_migration table when missing and returns the
// applied versions with their timestamps.
func (m *Migrator) history(ctx context.Context, schema string) (map[int]time.Time, error) {
	if err := ValidateSchema(schema); err != nil {
		return nil, err
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.schema_migration (
    version    INTEGER PRIMARY KEY,
    name       TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`, schema)
	if _, err := m.pool.Exec(ctx, ddl); err != nil {
		return nil, fmt.Errorf("create migration history in %s: %w", schema, err)
	}

	rows, err := m.pool.Query(ctx, fmt.Sprintf(`SELECT version, applied_at FROM %s.schema_migration`, schema))
	if err != nil {
		return nil, fmt.Errorf("read migration history in %s: %w", schema, err)
	}
	applied := make(map[int]time.Time)
	var (
		version int
		at      time.Time
	)
	_, err = pgx.ForEachRow(rows, []any{&version, &at}, func() error {
		applied[version] = at
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan migration history in %s: %w", schema, err)
	}
	return applied, nil
}

// Up applies every pending migration in version order, each in its own
// transaction, and returns how many ran. A failure stops the run; the
// migrations before it stay applied.
func (m *Migrator) Up(ctx context.Context, schema string) (int, error) {
	applied, err := m.history(ctx, schema)
	if err != nil {
		return 0, err
	}
	pending, err := m.LoadMigrations()
	if err != nil {
		return 0, err
	}

	n := 0
	for _, mig := range pending {
		if _, done := applied[mig.Version]; done {
			continue
		}
		err := pgx.BeginFunc(ctx, m.pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL search_path TO %s, public", schema)); err != nil {
				return fmt.Errorf("set search_path: %w", err)
			}
			if _, err := tx.Exec(ctx, mig.SQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, "INSERT INTO schema_migration (version, name) VALUES ($1, $2)", mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return n, fmt.Errorf("apply migration %s: %w", mig.Name, err)
		}
		n++
	}
	return n, nil
}

// Status lists every known migration with its applied time in schema.
func (m *Migrator) Status(ctx context.Context, schema string) ([]MigrationStatus, error) {
	applied, err := m.history(ctx, schema)
	if err != nil {
		return nil, err
	}
	known, err := m.LoadMigrations()
	if err != nil {
		return nil, err
	}

	out := make([]MigrationStatus, len(known))
	for i, mig := range known {
		out[i] = MigrationStatus{Version: mig.Version, Name: mig.Name}
		if at, ok := applied[mig.Version]; ok {
			out[i].Applied = true
			out[i].AppliedAt = &at
		}
	}
	return out, nil
}
