// Package query is a small fluent layer over hs.Client: pick columns, a
// table and one indexed condition, then run a single get, update, insert
// or delete.
//
// Builders are values. Every call returns a new Builder and never changes
// the receiver, so a base builder can be shared and specialised freely:
//
//	users := query.New(client).Select("id", "name").From("users")
//	res, err := users.Where("", "=", "42").Get(ctx)
package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gohs/pkg/hs"
)

var (
	ErrNoTable     = errors.New("query: no table")
	ErrNoCondition = errors.New("query: no condition")
	ErrNoColumns   = errors.New("query: no columns selected")
)

// Executor is the part of *hs.Client a query needs.
type Executor interface {
	OpenIndex(ctx context.Context, mode hs.Mode, def hs.IndexDefinition) (hs.Handle, error)
	Execute(ctx context.Context, h hs.Handle, op hs.Operator, keys []string, opts ...hs.ExecOption) ([]hs.Row, error)
	ExecuteUpdate(ctx context.Context, h hs.Handle, op hs.Operator, keys, values []string, opts ...hs.ExecOption) (int, error)
	ExecuteInsert(ctx context.Context, h hs.Handle, values []string) (bool, error)
	ExecuteDelete(ctx context.Context, h hs.Handle, op hs.Operator, keys []string, opts ...hs.ExecOption) (int, error)
}

// Condition is the single indexed predicate of a query.
type Condition struct {
	Index string
	Op    hs.Operator
	Keys  []string
}

// Builder accumulates query state.
type Builder struct {
	exec    Executor
	columns []string
	table   string
	cond    *Condition
}

// New starts an empty builder on exec.
func New(exec Executor) Builder {
	return Builder{exec: exec}
}

// Select appends columns. Duplicates are kept.
func (b Builder) Select(columns ...string) Builder {
	next := make([]string, 0, len(b.columns)+len(columns))
	next = append(next, b.columns...)
	b.columns = append(next, columns...)
	return b
}

// From sets the table, replacing any previous one.
func (b Builder) From(table string) Builder {
	b.table = table
	return b
}

// Where replaces the condition. An empty index means PRIMARY; an empty or
// unsupported operator means "=".
func (b Builder) Where(index, op string, keys ...string) Builder {
	if index == "" {
		index = hs.PrimaryIndex
	}
	b.cond = &Condition{
		Index: index,
		Op:    hs.NormalizeOperator(op),
		Keys:  append([]string(nil), keys...),
	}
	return b
}

// Build snapshots the builder into an independent Query.
func (b Builder) Build() Query {
	q := Query{
		exec:    b.exec,
		columns: append([]string(nil), b.columns...),
		table:   b.table,
	}
	if b.cond != nil {
		c := *b.cond
		c.Keys = append([]string(nil), c.Keys...)
		q.cond = &c
	}
	return q
}

func (b Builder) Get(ctx context.Context, opts ...hs.ExecOption) (Result, error) {
	return b.Build().Get(ctx, opts...)
}

func (b Builder) GetRecords(ctx context.Context, opts ...hs.ExecOption) ([]map[string]string, bool, error) {
	return b.Build().GetRecords(ctx, opts...)
}

func (b Builder) Update(ctx context.Context, values []string, opts ...hs.ExecOption) (int, error) {
	return b.Build().Update(ctx, values, opts...)
}

func (b Builder) Insert(ctx context.Context, row []string) (bool, error) {
	return b.Build().Insert(ctx, row)
}

func (b Builder) InsertBatch(ctx context.Context, rows [][]string) (bool, error) {
	return b.Build().InsertBatch(ctx, rows)
}

func (b Builder) Delete(ctx context.Context, opts ...hs.ExecOption) (int, error) {
	return b.Build().Delete(ctx, opts...)
}

// Query is an immutable, executable query description.
type Query struct {
	exec    Executor
	columns []string
	table   string
	cond    *Condition
}

// Columns returns a copy of the selected columns.
func (q Query) Columns() []string { return append([]string(nil), q.columns...) }

// Table returns the target table.
func (q Query) Table() string { return q.table }

// Condition returns the condition and whether one was set.
func (q Query) Condition() (Condition, bool) {
	if q.cond == nil {
		return Condition{}, false
	}
	c := *q.cond
	c.Keys = append([]string(nil), c.Keys...)
	return c, true
}

func (q Query) String() string {
	if q.cond == nil {
		return fmt.Sprintf("%s%v", q.table, q.columns)
	}
	return fmt.Sprintf("%s%v %s %s %v", q.table, q.columns, q.cond.Index, q.cond.Op, q.cond.Keys)
}

func (q Query) check(needCond bool) error {
	if q.table == "" {
		return ErrNoTable
	}
	if needCond && q.cond == nil {
		return ErrNoCondition
	}
	return nil
}

func (q Query) open(ctx context.Context, mode hs.Mode, index string, columns []string) (hs.Handle, error) {
	return q.exec.OpenIndex(ctx, mode, hs.IndexDefinition{Table: q.table, Name: index, Columns: columns})
}
