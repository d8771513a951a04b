package query

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/gohs/pkg/hs"
	"github.com/go-viper/mapstructure/v2"
)

// Result is the outcome of Get. An empty result is not an error; check Found.
type Result struct {
	Columns []string
	Rows    []hs.Row
}

// Found reports whether any row matched.
func (r Result) Found() bool { return len(r.Rows) > 0 }

// Records zips each row with the selected column names.
func (r Result) Records() []map[string]string {
	if !r.Found() {
		return nil
	}
	out := make([]map[string]string, len(r.Rows))
	for i, row := range r.Rows {
		rec := make(map[string]string, len(r.Columns))
		for j, col := range r.Columns {
			if j < len(row) {
				rec[col] = row[j]
			}
		}
		out[i] = rec
	}
	return out
}

// Get runs a SELECT over (table, condition index, selected columns).
// The default limit is 1.
func (q Query) Get(ctx context.Context, opts ...hs.ExecOption) (Result, error) {
	if err := q.check(true); err != nil {
		return Result{}, err
	}
	h, err := q.open(ctx, hs.ModeSelect, q.cond.Index, q.columns)
	if err != nil {
		return Result{}, err
	}
	rows, err := q.exec.Execute(ctx, h, q.cond.Op, q.cond.Keys, opts...)
	if err != nil {
		return Result{}, err
	}
	return Result{Columns: q.Columns(), Rows: rows}, nil
}

// GetRecords is Get followed by Records. found is false when nothing matched.
func (q Query) GetRecords(ctx context.Context, opts ...hs.ExecOption) (records []map[string]string, found bool, err error) {
	res, err := q.Get(ctx, opts...)
	if err != nil {
		return nil, false, err
	}
	return res.Records(), res.Found(), nil
}

// GetObjects decodes matched rows into T using `hs` struct tags. Numeric
// columns decode into numeric fields.
func GetObjects[T any](ctx context.Context, q Query, opts ...hs.ExecOption) ([]T, bool, error) {
	records, found, err := q.GetRecords(ctx, opts...)
	if err != nil || !found {
		return nil, found, err
	}

	var out []T
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		TagName:          "hs",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, false, err
	}
	if err := dec.Decode(records); err != nil {
		return nil, false, fmt.Errorf("decode %s rows: %w", q.table, err)
	}
	return out, true, nil
}

// Update runs an UPDATE over (table, condition index, selected columns).
// values must match the selected columns. Default limit 1, offset 0.
func (q Query) Update(ctx context.Context, values []string, opts ...hs.ExecOption) (int, error) {
	if err := q.check(true); err != nil {
		return 0, err
	}
	if len(q.columns) == 0 {
		return 0, ErrNoColumns
	}
	h, err := q.open(ctx, hs.ModeUpdate, q.cond.Index, q.columns)
	if err != nil {
		return 0, err
	}
	return q.exec.ExecuteUpdate(ctx, h, q.cond.Op, q.cond.Keys, values, opts...)
}

// Insert inserts one row over (table, PRIMARY, selected columns). It
// returns false without touching the backend when row is empty.
func (q Query) Insert(ctx context.Context, row []string) (bool, error) {
	if len(row) == 0 {
		return false, nil
	}
	return q.InsertBatch(ctx, [][]string{row})
}

// InsertBatch inserts rows one by one and stops at the first failure.
// Rows inserted before the failure stay inserted.
func (q Query) InsertBatch(ctx context.Context, rows [][]string) (bool, error) {
	if len(rows) == 0 {
		return false, nil
	}
	if err := q.check(false); err != nil {
		return false, err
	}
	if len(q.columns) == 0 {
		return false, ErrNoColumns
	}
	h, err := q.open(ctx, hs.ModeInsert, "", q.columns)
	if err != nil {
		return false, err
	}
	for i, row := range rows {
		if _, err := q.exec.ExecuteInsert(ctx, h, row); err != nil {
			return false, fmt.Errorf("insert row %d: %w", i, err)
		}
	}
	return true, nil
}

// Delete runs a DELETE over (table, condition index) with no columns.
func (q Query) Delete(ctx context.Context, opts ...hs.ExecOption) (int, error) {
	if err := q.check(true); err != nil {
		return 0, err
	}
	h, err := q.open(ctx, hs.ModeDelete, q.cond.Index, nil)
	if err != nil {
		return 0, err
	}
	return q.exec.ExecuteDelete(ctx, h, q.cond.Op, q.cond.Keys, opts...)
}
