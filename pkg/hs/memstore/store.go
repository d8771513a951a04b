// Package memstore is an in-process IndexedStore with HandlerSocket
// semantics. It backs tests and local development where no MySQL server
// with the HandlerSocket plugin is available.
package memstore

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/dmitrijs2005/gohs/pkg/hs"
)

// Schema declares a table. PrimaryKey columns form the unique PRIMARY
// index; Indexes maps secondary index names to their key columns.
type Schema struct {
	Columns    []string
	PrimaryKey []string
	Indexes    map[string][]string
}

// CacheSchema is the layout used by the TTL cache.
func CacheSchema(expirationIndex string) Schema {
	if expirationIndex == "" {
		expirationIndex = "expiration"
	}
	return Schema{
		Columns:    []string{"id", "cache", "expiration"},
		PrimaryKey: []string{"id"},
		Indexes:    map[string][]string{expirationIndex: {"expiration"}},
	}
}

type table struct {
	schema Schema
	colPos map[string]int
	rows   map[string][]string
}

func (t *table) indexCols(name string) ([]int, bool) {
	var cols []string
	if name == hs.PrimaryIndex {
		cols = t.schema.PrimaryKey
	} else {
		c, ok := t.schema.Indexes[name]
		if !ok {
			return nil, false
		}
		cols = c
	}
	pos := make([]int, len(cols))
	for i, c := range cols {
		pos[i] = t.colPos[c]
	}
	return pos, true
}

func (t *table) pk(row []string) string {
	parts := make([]string, len(t.schema.PrimaryKey))
	for i, c := range t.schema.PrimaryKey {
		parts[i] = row[t.colPos[c]]
	}
	return strings.Join(parts, "\x00")
}

// Store holds databases of tables. It is safe for concurrent use.
type Store struct {
	mu  sync.RWMutex
	dbs map[string]map[string]*table
}

func New() *Store {
	return &Store{dbs: make(map[string]map[string]*table)}
}

// CreateTable adds a table. Creating an existing table is a no-op.
func (s *Store) CreateTable(db, name string, schema Schema) error {
	if len(schema.Columns) == 0 || len(schema.PrimaryKey) == 0 {
		return fmt.Errorf("memstore: table %s.%s needs columns and a primary key", db, name)
	}
	colPos := make(map[string]int, len(schema.Columns))
	for i, c := range schema.Columns {
		colPos[c] = i
	}
	check := func(cols []string) error {
		for _, c := range cols {
			if _, ok := colPos[c]; !ok {
				return fmt.Errorf("memstore: unknown column %q in %s.%s", c, db, name)
			}
		}
		return nil
	}
	if err := check(schema.PrimaryKey); err != nil {
		return err
	}
	for _, cols := range schema.Indexes {
		if err := check(cols); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tables, ok := s.dbs[db]
	if !ok {
		tables = make(map[string]*table)
		s.dbs[db] = tables
	}
	if _, ok := tables[name]; !ok {
		tables[name] = &table{schema: schema, colPos: colPos, rows: make(map[string][]string)}
	}
	return nil
}

// Lookup returns a copy of the row with the given primary key, bypassing
// any connection.
func (s *Store) Lookup(db, name string, pk ...string) ([]string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.dbs[db][name]
	if !ok {
		return nil, false
	}
	row, ok := t.rows[strings.Join(pk, "\x00")]
	if !ok {
		return nil, false
	}
	return append([]string(nil), row...), true
}

// Len returns the number of rows in a table.
func (s *Store) Len(db, name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.dbs[db][name]; ok {
		return len(t.rows)
	}
	return 0
}

// Dial satisfies hs.DialFunc. Connections of ClassRead refuse writes like
// the HandlerSocket read port does.
func (s *Store) Dial(_ context.Context, class hs.ModeClass) (hs.Conn, error) {
	return &conn{store: s, class: class, open: make(map[int]*openIndex)}, nil
}

type openIndex struct {
	keys  []int
	cols  []int
	fcols []int
	tbl   *table
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

func (c *conn) OpenIndex(_ context.Context, id int, db string, def hs.IndexDefinition) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return io.ErrClosedPipe
	}

	c.store.mu.RLock()
	t, ok := c.store.dbs[db][def.Table]
	c.store.mu.RUnlock()
	if !ok {
		return hs.Reject("open_index", 1, "open_table")
	}

	keys, ok := t.indexCols(def.IndexName())
	if !ok {
		return hs.Reject("open_index", 1, "idxnum")
	}
	resolve := func(names []string) ([]int, error) {
		pos := make([]int, 0, len(names))
		for _, n := range names {
			p, ok := t.colPos[n]
			if !ok {
				return nil, hs.Reject("open_index", 1, "fld")
			}
			pos = append(pos, p)
		}
		return pos, nil
	}
	cols, err := resolve(def.Columns)
	if err != nil {
		return err
	}
	fcols, err := resolve(def.FilterColumns)
	if err != nil {
		return err
	}

	c.open[id] = &openIndex{keys: keys, cols: cols, fcols: fcols, tbl: t}
	return nil
}

// compare orders two values numerically when both are integers and
// bytewise otherwise.
func compare(a, b string) int {
	ai, errA := strconv.ParseInt(a, 10, 64)
	bi, errB := strconv.ParseInt(b, 10, 64)
	if errA == nil && errB == nil {
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(a, b)
}

func matches(op hs.Operator, cmp int) bool {
	switch op {
	case hs.OpEq:
		return cmp == 0
	case hs.OpGte:
		return cmp >= 0
	case hs.OpGt:
		return cmp > 0
	case hs.OpLte:
		return cmp <= 0
	case hs.OpLt:
		return cmp < 0
	default:
		return false
	}
}

func (ix *openIndex) compareKey(row []string, keys []string) int {
	for i, k := range keys {
		if c := compare(row[ix.keys[i]], k); c != 0 {
			return c
		}
	}
	return 0
}

// scan returns the rows matched by r in index order. The store lock must
// be held.
func (ix *openIndex) scan(r hs.FindRequest) ([][]string, error) {
	switch r.Op {
	case hs.OpEq, hs.OpGte, hs.OpGt, hs.OpLte, hs.OpLt:
	default:
		return nil, hs.Reject("find", 2, "op")
	}
	if len(r.Keys) == 0 || len(r.Keys) > len(ix.keys) {
		return nil, hs.Reject("find", 2, "kpnum")
	}
	for _, f := range r.Filters {
		if f.Column < 0 || f.Column >= len(ix.fcols) {
			return nil, hs.Reject("find", 2, "filterfld")
		}
		if f.Type != hs.FilterSkip && f.Type != hs.FilterWhile {
			return nil, hs.Reject("find", 2, "filtertype")
		}
	}

	all := make([][]string, 0, len(ix.tbl.rows))
	for _, row := range ix.tbl.rows {
		all = append(all, row)
	}
	desc := r.Op == hs.OpLt || r.Op == hs.OpLte
	sort.Slice(all, func(i, j int) bool {
		c := 0
		for _, p := range ix.keys {
			if c = compare(all[i][p], all[j][p]); c != 0 {
				break
			}
		}
		if c == 0 {
			c = strings.Compare(ix.tbl.pk(all[i]), ix.tbl.pk(all[j]))
		}
		if desc {
			return c > 0
		}
		return c < 0
	})

	var out [][]string
	skipped := 0
	for _, row := range all {
		if !matches(r.Op, ix.compareKey(row, r.Keys)) {
			if r.Op == hs.OpEq && len(out) > 0 {
				break
			}
			continue
		}
		keep, stop := ix.filter(row, r.Filters)
		if stop {
			break
		}
		if !keep {
			continue
		}
		if skipped < r.Offset {
			skipped++
			continue
		}
		if len(out) >= r.Limit {
			break
		}
		out = append(out, row)
	}
	return out, nil
}

func (ix *openIndex) filter(row []string, filters []hs.Filter) (keep, stop bool) {
	for _, f := range filters {
		ok := matches(hs.NormalizeOperator(string(f.Op)), compare(row[ix.fcols[f.Column]], f.Value))
		if ok {
			continue
		}
		if f.Type == hs.FilterWhile {
			return false, true
		}
		return false, false
	}
	return true, false
}

func (c *conn) Find(_ context.Context, r hs.FindRequest) ([]hs.Row, error) {
	ix, err := c.index(r.IndexID)
	if err != nil {
		return nil, err
	}

	c.store.mu.RLock()
	defer c.store.mu.RUnlock()

	matched, err := ix.scan(r)
	if err != nil {
		return nil, err
	}
	if len(matched) == 0 {
		return nil, nil
	}
	rows := make([]hs.Row, len(matched))
	for i, m := range matched {
		row := make(hs.Row, len(ix.cols))
		for j, p := range ix.cols {
			row[j] = m[p]
		}
		rows[i] = row
	}
	return rows, nil
}

func (c *conn) Modify(_ context.Context, r hs.FindRequest, mod hs.Modification) (int, error) {
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

	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	matched, err := ix.scan(r)
	if err != nil {
		return 0, err
	}

	t := ix.tbl
	for _, row := range matched {
		oldPK := t.pk(row)
		switch mod.Op {
		case hs.ModifyDelete:
			delete(t.rows, oldPK)
			continue
		case hs.ModifyUpdate:
			next := append([]string(nil), row...)
			for i, p := range ix.cols {
				next[p] = mod.Values[i]
			}
			newPK := t.pk(next)
			if newPK != oldPK {
				if _, dup := t.rows[newPK]; dup {
					return 0, hs.Reject("modify", 1, "121")
				}
				delete(t.rows, oldPK)
			}
			t.rows[newPK] = next
		case hs.ModifyIncrement, hs.ModifyDecrement:
			next := append([]string(nil), row...)
			for i, p := range ix.cols {
				cur, err1 := strconv.ParseInt(next[p], 10, 64)
				delta, err2 := strconv.ParseInt(mod.Values[i], 10, 64)
				if next[p] == "" {
					cur, err1 = 0, nil
				}
				if err1 != nil || err2 != nil {
					return 0, hs.Reject("modify", 2, "modop")
				}
				if mod.Op == hs.ModifyDecrement {
					delta = -delta
				}
				next[p] = strconv.FormatInt(cur+delta, 10)
			}
			if t.pk(next) != oldPK {
				return 0, hs.Reject("modify", 2, "modop")
			}
			t.rows[oldPK] = next
		default:
			return 0, hs.Reject("modify", 2, "modop")
		}
	}
	return len(matched), nil
}

func (c *conn) Insert(_ context.Context, id int, values []string) error {
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

	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	t := ix.tbl
	row := make([]string, len(t.schema.Columns))
	for i, p := range ix.cols {
		row[p] = values[i]
	}
	pk := t.pk(row)
	if _, dup := t.rows[pk]; dup {
		return hs.Reject("insert", 1, "121")
	}
	t.rows[pk] = row
	return nil
}

func (c *conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.open = nil
	return nil
}
