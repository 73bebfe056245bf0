package db

import (
	"context"
	"embed"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// Migrator binds Migrate to a pool for callers that take the behavior as an
// interface.
type Migrator struct {
	Pool *pgxpool.Pool
}

// Migrate applies the embedded schema.
func (m Migrator) Migrate(ctx context.Context) error {
	return Migrate(ctx, m.Pool)
}

// Migrate applies the embedded schema files in lexical order. Statements are
// written to be re-runnable, so calling this on an up-to-date database is a
// no-op.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	entries, err := schemaFS.ReadDir("schema")
	if err != nil {
		return fmt.Errorf("platform/db: read schema dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		data, err := schemaFS.ReadFile("schema/" + name)
		if err != nil {
			return fmt.Errorf("platform/db: read %s: %w", name, err)
		}
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("platform/db: apply %s: %w", name, err)
		}
	}
	return nil
}
