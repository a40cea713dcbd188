package db

import (
	"context"
	"fmt"
	"io/fs"
	"regexp"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schemaPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// ValidateSchema rejects names that would need quoting in SQL.
func ValidateSchema(schema string) error {
	if !schemaPattern.MatchString(schema) {
		return fmt.Errorf("invalid schema name %q", schema)
	}
	return nil
}

// EnsureSchema creates schema when missing and applies every pending
// migration from source against it.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, schema string, source fs.FS) (int, error) {
	if err := ValidateSchema(schema); err != nil {
		return 0, err
	}
	if _, err := pool.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", schema)); err != nil {
		return 0, fmt.Errorf("create schema %s: %w", schema, err)
	}
	n, err := NewMigrator(pool, source).Up(ctx, schema)
	if err != nil {
		return n, fmt.Errorf("run migrations for %s: %w", schema, err)
	}
	return n, nil
}
