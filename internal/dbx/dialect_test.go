package dbx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialectFor(t *testing.T) {
	tests := []struct {
		in      string
		want    Dialect
		wantErr bool
	}{
		{in: "postgres", want: Postgres{}},
		{in: "PGX", want: Postgres{}},
		{in: "sqlite", want: SQLite{}},
		{in: "sqlite3", want: SQLite{}},
		{in: "mysql", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			d, err := DialectFor(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnknownDialect)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d)
		})
	}
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "$3", Postgres{}.Placeholder(3))
	assert.Equal(t, "?", SQLite{}.Placeholder(3))
	assert.Equal(t, `"we""ird"`, Postgres{}.Quote(`we"ird`))
}

func TestPostgres_IsUniqueViolation(t *testing.T) {
	wrapped := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})
	assert.True(t, Postgres{}.IsUniqueViolation(wrapped))
	assert.False(t, Postgres{}.IsUniqueViolation(&pgconn.PgError{Code: "23502"}))
	assert.False(t, Postgres{}.IsUniqueViolation(errors.New("23505")))
}

func TestSQLite_IsUniqueViolation(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	_, err := db.ExecContext(ctx, `INSERT INTO caches(id, cache) VALUES ('k', 'a')`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO caches(id, cache) VALUES ('k', 'b')`)
	require.Error(t, err)

	assert.True(t, SQLite{}.IsUniqueViolation(err))
	assert.False(t, SQLite{}.IsUniqueViolation(nil))
	assert.False(t, SQLite{}.IsUniqueViolation(sql.ErrNoRows))
}
