package migrations

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/dmitrijs2005/gohs/internal/dbx"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "hs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, name).Scan(&n))
	return n > 0
}

func TestRun_SQLiteCreatesCacheTable(t *testing.T) {
	db := openSQLite(t)
	ctx := context.Background()

	require.NoError(t, Run(ctx, db, dbx.SQLite{}))
	assert.True(t, tableExists(t, db, "caches"))
	assert.True(t, tableExists(t, db, "goose_db_version"))

	_, err := db.Exec(`INSERT INTO caches(id, cache, expiration) VALUES ('k', 'v', 0)`)
	require.NoError(t, err)
}

func TestRun_IsIdempotent(t *testing.T) {
	db := openSQLite(t)
	ctx := context.Background()

	require.NoError(t, Run(ctx, db, dbx.SQLite{}))
	require.NoError(t, Run(ctx, db, dbx.SQLite{}))
}

func TestRun_PropagatesGooseError(t *testing.T) {
	orig := gooseUpContext
	t.Cleanup(func() { gooseUpContext = orig })

	var gotDir string
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		gotDir = dir
		return errors.New("boom")
	}

	err := Run(context.Background(), openSQLite(t), dbx.Postgres{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, "postgres", gotDir)
}

func TestEmbeddedFiles(t *testing.T) {
	for _, dir := range []string{"postgres", "sqlite"} {
		entries, err := Migrations.ReadDir(dir)
		require.NoError(t, err)
		assert.NotEmpty(t, entries, dir)
	}
}

func TestCreateCacheTable_CustomName(t *testing.T) {
	db := openSQLite(t)
	ctx := context.Background()

	require.NoError(t, CreateCacheTable(ctx, db, dbx.SQLite{}, "user sessions"))
	require.NoError(t, CreateCacheTable(ctx, db, dbx.SQLite{}, "user sessions"))
	assert.True(t, tableExists(t, db, "user sessions"))

	_, err := db.Exec(`INSERT INTO "user sessions"(id, cache, expiration) VALUES ('k', 'v', 0)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO "user sessions"(id) VALUES ('k')`)
	require.Error(t, err, "id must stay the primary key")
}

func TestCreateCacheTable_DefaultLeftToGoose(t *testing.T) {
	db := openSQLite(t)

	require.NoError(t, CreateCacheTable(context.Background(), db, dbx.SQLite{}, DefaultCacheTable))
	assert.False(t, tableExists(t, db, DefaultCacheTable))
}

func TestCacheTableDDL_Postgres(t *testing.T) {
	ddl := CacheTableDDL(dbx.Postgres{}, "sessions")
	require.Len(t, ddl, 2)
	assert.Contains(t, ddl[0], `CREATE TABLE IF NOT EXISTS "sessions" (`)
	assert.Contains(t, ddl[0], "expiration BIGINT NOT NULL DEFAULT 0")
	assert.Equal(t, `CREATE INDEX IF NOT EXISTS "sessions_expiration_idx" ON "sessions" (expiration)`, ddl[1])
}
