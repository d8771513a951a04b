// Package migrations ships the goose migrations that create the cache table
// for the SQL emulation backends. Groups that name a different table get the
// same layout through CreateCacheTable.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"
	"sync"

	"github.com/dmitrijs2005/gohs/internal/dbx"
	"github.com/pressly/goose/v3"
)

//go:embed postgres/*.sql sqlite/*.sql
var Migrations embed.FS

// goose keeps its base FS and dialect in package globals.
var mu sync.Mutex

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// Dir returns the embedded directory holding the migrations for d.
func Dir(d dbx.Dialect) string {
	if _, ok := d.(dbx.Postgres); ok {
		return "postgres"
	}
	return "sqlite"
}

// Run applies every pending migration for the given dialect.
func Run(ctx context.Context, db *sql.DB, d dbx.Dialect) error {
	mu.Lock()
	defer mu.Unlock()

	goose.SetBaseFS(Migrations)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect(d.GooseDialect()); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := gooseUpContext(ctx, db, Dir(d)); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// DefaultCacheTable is the table created by the embedded migrations.
const DefaultCacheTable = "caches"

// CacheTableDDL returns the statements creating a cache table called name
// with the same layout as the embedded migrations.
func CacheTableDDL(d dbx.Dialect, name string) []string {
	intType := "INTEGER"
	if _, ok := d.(dbx.Postgres); ok {
		intType = "BIGINT"
	}
	table := d.Quote(name)
	return []string{
		strings.Join([]string{
			"CREATE TABLE IF NOT EXISTS " + table + " (",
			"    id         VARCHAR(127) PRIMARY KEY,",
			"    cache      TEXT         NOT NULL DEFAULT '',",
			"    expiration " + intType + " NOT NULL DEFAULT 0",
			")",
		}, "\n"),
		"CREATE INDEX IF NOT EXISTS " + d.Quote(name+"_expiration_idx") + " ON " + table + " (expiration)",
	}
}

// CreateCacheTable creates the cache table name unless it exists. The
// default table is left to Run.
func CreateCacheTable(ctx context.Context, db *sql.DB, d dbx.Dialect, name string) error {
	if name == "" || name == DefaultCacheTable {
		return nil
	}
	for _, stmt := range CacheTableDDL(d, name) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create cache table %q: %w", name, err)
		}
	}
	return nil
}
