package dbx

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Dialect captures the few places where PostgreSQL and SQLite SQL differ for
// the statements the SQL store generates.
type Dialect interface {
	// Name is the database/sql driver name ("pgx" or "sqlite").
	Name() string
	// GooseDialect is the dialect name goose expects.
	GooseDialect() string
	// Placeholder returns the n-th (1-based) bind placeholder.
	Placeholder(n int) string
	// Quote quotes an identifier.
	Quote(ident string) string
	// IsUniqueViolation reports whether err is a unique/primary key violation.
	IsUniqueViolation(err error) bool
}

var ErrUnknownDialect = errors.New("unknown sql dialect")

// DialectFor maps a backend name to its dialect.
func DialectFor(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "postgres", "postgresql", "pgx":
		return Postgres{}, nil
	case "sqlite", "sqlite3":
		return SQLite{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDialect, name)
	}
}

type Postgres struct{}

func (Postgres) Name() string             { return "pgx" }
func (Postgres) GooseDialect() string     { return "postgres" }
func (Postgres) Placeholder(n int) string { return "$" + strconv.Itoa(n) }
func (Postgres) Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// IsUniqueViolation matches SQLSTATE 23505.
func (Postgres) IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

type SQLite struct{}

func (SQLite) Name() string           { return "sqlite" }
func (SQLite) GooseDialect() string   { return "sqlite3" }
func (SQLite) Placeholder(int) string { return "?" }
func (SQLite) Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// IsUniqueViolation matches on the driver message; modernc does not export a
// stable error code type for constraint failures.
func (SQLite) IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "PRIMARY KEY constraint failed")
}
