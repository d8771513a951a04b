// Package sqlstore emulates a HandlerSocket server on top of an ordinary
// SQL database (PostgreSQL through pgx, SQLite through modernc). Each
// indexed operation becomes one parameterised statement using row-value
// comparison on the index columns.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/dmitrijs2005/gohs/internal/dbx"
	"github.com/dmitrijs2005/gohs/internal/logging"
	"github.com/dmitrijs2005/gohs/internal/migrations"
	"github.com/dmitrijs2005/gohs/pkg/hs"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Table describes a table the store may open indexes on.
type Table struct {
	Name       string
	Columns    []string
	PrimaryKey []string
	Indexes    map[string][]string
	// Integer lists columns compared and bound as integers.
	Integer []string
}

// CacheTable describes a cache table as created by Migrate and
// EnsureCacheTable.
func CacheTable(name, expirationIndex string) Table {
	if name == "" {
		name = migrations.DefaultCacheTable
	}
	if expirationIndex == "" {
		expirationIndex = "expiration"
	}
	return Table{
		Name:       name,
		Columns:    []string{"id", "cache", "expiration"},
		PrimaryKey: []string{"id"},
		Indexes:    map[string][]string{expirationIndex: {"expiration"}},
		Integer:    []string{"expiration"},
	}
}

func (t Table) has(col string) bool {
	for _, c := range t.Columns {
		if c == col {
			return true
		}
	}
	return false
}

func (t Table) isInt(col string) bool {
	for _, c := range t.Integer {
		if c == col {
			return true
		}
	}
	return false
}

// Store is safe for concurrent use.
type Store struct {
	db      *sql.DB
	dialect dbx.Dialect
	log     logging.Logger

	mu     sync.RWMutex
	tables map[string]Table
}

// Option configures a Store.
type Option func(*Store)

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.log = logging.NewSlogLogger(l) }
}

// New wraps an open database.
func New(db *sql.DB, dialect dbx.Dialect, opts ...Option) *Store {
	s := &Store{db: db, dialect: dialect, log: logging.Discard(), tables: make(map[string]Table)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open opens dsn with the driver matching dialect.
func Open(dialect dbx.Dialect, dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open(dialect.Name(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect.Name(), err)
	}
	if _, ok := dialect.(dbx.SQLite); ok {
		// one writer; also keeps ":memory:" databases on a single connection
		db.SetMaxOpenConns(1)
	}
	return New(db, dialect, opts...), nil
}

// Register makes t available to OpenIndex.
func (s *Store) Register(t Table) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[t.Name] = t
}

// Migrate applies the bundled schema migrations.
func (s *Store) Migrate(ctx context.Context) error {
	return migrations.Run(ctx, s.db, s.dialect)
}

// EnsureCacheTable creates a cache table called name when it is not the
// one the bundled migrations create. Run it after Migrate.
func (s *Store) EnsureCacheTable(ctx context.Context, name string) error {
	return migrations.CreateCacheTable(ctx, s.db, s.dialect, name)
}

// DB exposes the underlying pool.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database pool.
func (s *Store) Close() error { return s.db.Close() }

// Dial satisfies hs.DialFunc. Connections share the pool.
func (s *Store) Dial(ctx context.Context, class hs.ModeClass) (hs.Conn, error) {
	if err := s.db.PingContext(ctx); err != nil {
		return nil, err
	}
	s.log.Debug(ctx, "sql connection opened", "class", class.String(), "driver", s.dialect.Name())
	return &conn{store: s, class: class, open: make(map[int]*openIndex)}, nil
}

type openIndex struct {
	table Table
	keys  []string
	cols  []string
	fcols []string
}

type conn struct {
	store  *Store
	class  hs.ModeClass
	mu     sync.Mutex
	open   map[int]*openIndex
	closed bool
}

func (c *conn) index(id int) (*openIndex, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, io.ErrClosedPipe
	}
	ix, ok := c.open[id]
	if !ok {
		return nil, hs.Reject("", 2, "stmtnum")
	}
	return ix, nil
}

func (c *conn) OpenIndex(_ context.Context, id int, _ string, def hs.IndexDefinition) error {
	c.store.mu.RLock()
	t, ok := c.store.tables[def.Table]
	c.store.mu.RUnlock()
	if !ok {
		return hs.Reject("open_index", 1, "open_table")
	}

	var keys []string
	if name := def.IndexName(); name == hs.PrimaryIndex {
		keys = t.PrimaryKey
	} else if keys, ok = t.Indexes[name]; !ok {
		return hs.Reject("open_index", 1, "idxnum")
	}
	for _, col := range append(append([]string(nil), def.Columns...), def.FilterColumns...) {
		if !t.has(col) {
			return hs.Reject("open_index", 1, "fld")
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return io.ErrClosedPipe
	}
	c.open[id] = &openIndex{table: t, keys: keys, cols: def.Columns, fcols: def.FilterColumns}
	return nil
}

// binder numbers placeholders across one statement.
type binder struct {
	d    dbx.Dialect
	args []any
}

func (b *binder) bind(v any) string {
	b.args = append(b.args, v)
	return b.d.Placeholder(len(b.args))
}

func (ix *openIndex) value(col, v string) (any, error) {
	if !ix.table.isInt(col) {
		return v, nil
	}
	if v == "" {
		return int64(0), nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, hs.Reject("find", 2, "kpnum")
	}
	return n, nil
}

func (s *Store) quoteAll(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = s.dialect.Quote(c)
	}
	return out
}

// selectSQL renders the WHERE/ORDER/LIMIT part shared by reads and
// modifications, selecting the given columns.
func (s *Store) selectSQL(ix *openIndex, r hs.FindRequest, cols []string, b *binder) (string, error) {
	var cmp string
	switch r.Op {
	case hs.OpEq, hs.OpGte, hs.OpLte, hs.OpGt, hs.OpLt:
		cmp = string(r.Op)
	default:
		return "", hs.Reject("find", 2, "op")
	}
	if len(r.Keys) == 0 || len(r.Keys) > len(ix.keys) {
		return "", hs.Reject("find", 2, "kpnum")
	}

	keyCols := ix.keys[:len(r.Keys)]
	holders := make([]string, len(r.Keys))
	for i, k := range r.Keys {
		v, err := ix.value(keyCols[i], k)
		if err != nil {
			return "", err
		}
		holders[i] = b.bind(v)
	}

	var where string
	quoted := s.quoteAll(keyCols)
	if len(keyCols) == 1 {
		where = fmt.Sprintf("%s %s %s", quoted[0], cmp, holders[0])
	} else {
		where = fmt.Sprintf("(%s) %s (%s)", strings.Join(quoted, ", "), cmp, strings.Join(holders, ", "))
	}

	conds := []string{where}
	for _, f := range r.Filters {
		if f.Column < 0 || f.Column >= len(ix.fcols) {
			return "", hs.Reject("find", 2, "filterfld")
		}
		col := ix.fcols[f.Column]
		v, err := ix.value(col, f.Value)
		if err != nil {
			return "", err
		}
		fop := hs.NormalizeOperator(string(f.Op))
		if fop == hs.OpPlus {
			return "", hs.Reject("find", 2, "filterop")
		}
		// W filters end an index scan early; on a declarative engine the
		// matched set is the same as for F when the filter is monotonic.
		conds = append(conds, fmt.Sprintf("%s %s %s", s.dialect.Quote(col), fop, b.bind(v)))
	}

	dir := "ASC"
	if r.Op == hs.OpLt || r.Op == hs.OpLte {
		dir = "DESC"
	}
	order := make([]string, 0, len(ix.keys)+len(ix.table.PrimaryKey))
	for _, k := range s.quoteAll(ix.keys) {
		order = append(order, k+" "+dir)
	}
	for _, k := range s.quoteAll(ix.table.PrimaryKey) {
		order = append(order, k+" "+dir)
	}

	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY %s LIMIT %s OFFSET %s",
		strings.Join(s.quoteAll(cols), ", "),
		s.dialect.Quote(ix.table.Name),
		strings.Join(conds, " AND "),
		strings.Join(order, ", "),
		b.bind(r.Limit), b.bind(r.Offset),
	)
	return q, nil
}

func scanRows(rows *sql.Rows, n int) ([][]string, error) {
	defer rows.Close()
	var out [][]string
	for rows.Next() {
		vals := make([]sql.NullString, n)
		ptrs := make([]any, n)
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make([]string, n)
		for i, v := range vals {
			row[i] = v.String
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (c *conn) Find(ctx context.Context, r hs.FindRequest) ([]hs.Row, error) {
	ix, err := c.index(r.IndexID)
	if err != nil {
		return nil, err
	}
	if len(ix.cols) == 0 {
		return nil, nil
	}

	b := &binder{d: c.store.dialect}
	q, err := c.store.selectSQL(ix, r, ix.cols, b)
	if err != nil {
		return nil, err
	}
	rows, err := c.store.db.QueryContext(ctx, q, b.args...)
	if err != nil {
		return nil, err
	}
	raw, err := scanRows(rows, len(ix.cols))
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]hs.Row, len(raw))
	for i, r := range raw {
		out[i] = r
	}
	return out, nil
}

func (c *conn) Modify(ctx context.Context, r hs.FindRequest, mod hs.Modification) (int, error) {
	if c.class == hs.ClassRead {
		return 0, hs.Reject("modify", 2, "readonly")
	}
	ix, err := c.index(r.IndexID)
	if err != nil {
		return 0, err
	}
	if mod.Op != hs.ModifyDelete && len(mod.Values) != len(ix.cols) {
		return 0, hs.Reject("modify", 2, "modop")
	}

	s := c.store
	pk := ix.table.PrimaryKey
	b := &binder{d: s.dialect}
	q, err := s.selectSQL(ix, r, pk, b)
	if err != nil {
		return 0, err
	}

	var n int
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		rows, err := tx.QueryContext(ctx, q, b.args...)
		if err != nil {
			return err
		}
		keys, err := scanRows(rows, len(pk))
		if err != nil {
			return err
		}
		for _, key := range keys {
			stmt, args, err := s.modifySQL(ix, mod, key)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
				if s.dialect.IsUniqueViolation(err) {
					return hs.Reject("modify", 1, "121")
				}
				return err
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) modifySQL(ix *openIndex, mod hs.Modification, key []string) (string, []any, error) {
	b := &binder{d: s.dialect}
	var head string

	switch mod.Op {
	case hs.ModifyDelete:
		head = "DELETE FROM " + s.dialect.Quote(ix.table.Name)
	case hs.ModifyUpdate, hs.ModifyIncrement, hs.ModifyDecrement:
		sets := make([]string, len(ix.cols))
		for i, col := range ix.cols {
			q := s.dialect.Quote(col)
			switch mod.Op {
			case hs.ModifyUpdate:
				v, err := ix.value(col, mod.Values[i])
				if err != nil {
					return "", nil, err
				}
				sets[i] = fmt.Sprintf("%s = %s", q, b.bind(v))
			default:
				delta, err := strconv.ParseInt(mod.Values[i], 10, 64)
				if err != nil {
					return "", nil, hs.Reject("modify", 2, "modop")
				}
				sign := "+"
				if mod.Op == hs.ModifyDecrement {
					sign = "-"
				}
				sets[i] = fmt.Sprintf("%s = COALESCE(%s, 0) %s %s", q, q, sign, b.bind(delta))
			}
		}
		head = fmt.Sprintf("UPDATE %s SET %s", s.dialect.Quote(ix.table.Name), strings.Join(sets, ", "))
	default:
		return "", nil, hs.Reject("modify", 2, "modop")
	}

	conds := make([]string, len(ix.table.PrimaryKey))
	for i, col := range ix.table.PrimaryKey {
		v, err := ix.value(col, key[i])
		if err != nil {
			return "", nil, err
		}
		conds[i] = fmt.Sprintf("%s = %s", s.dialect.Quote(col), b.bind(v))
	}
	return head + " WHERE " + strings.Join(conds, " AND "), b.args, nil
}

func (c *conn) Insert(ctx context.Context, id int, values []string) error {
	if c.class == hs.ClassRead {
		return hs.Reject("insert", 2, "readonly")
	}
	ix, err := c.index(id)
	if err != nil {
		return err
	}
	if len(values) != len(ix.cols) {
		return hs.Reject("insert", 2, "fld")
	}

	s := c.store
	b := &binder{d: s.dialect}
	holders := make([]string, len(values))
	for i, v := range values {
		bv, err := ix.value(ix.cols[i], v)
		if err != nil {
			return err
		}
		holders[i] = b.bind(bv)
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		s.dialect.Quote(ix.table.Name),
		strings.Join(s.quoteAll(ix.cols), ", "),
		strings.Join(holders, ", "),
	)
	if _, err := s.db.ExecContext(ctx, q, b.args...); err != nil {
		if s.dialect.IsUniqueViolation(err) {
			return hs.Reject("insert", 1, "121")
		}
		return err
	}
	return nil
}

func (c *conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.open = nil
	return nil
}
