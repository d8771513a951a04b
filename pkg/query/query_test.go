package query

import (
	"context"
	"testing"

	"github.com/dmitrijs2005/gohs/pkg/hs"
	"github.com/dmitrijs2005/gohs/pkg/hs/memstore"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBuilder(t *testing.T) (Builder, *memstore.Store) {
	t.Helper()
	s := memstore.New()
	require.NoError(t, s.CreateTable("test", "users", memstore.Schema{
		Columns:    []string{"id", "name", "age"},
		PrimaryKey: []string{"id"},
		Indexes:    map[string][]string{"by_name": {"name"}},
	}))
	c, err := hs.New(hs.Config{DBName: "test"}, hs.WithDialer(s.Dial))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return New(c), s
}

func seed(t *testing.T, b Builder) {
	t.Helper()
	ok, err := b.Select("id", "name", "age").From("users").InsertBatch(context.Background(), [][]string{
		{"1", "ann", "31"},
		{"2", "bob", "42"},
		{"3", "cid", "27"},
	})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestBuilder_Immutable(t *testing.T) {
	base := New(nil).Select("a").From("t")

	q1 := base.Select("b").Where("", "=", "1").Build()
	q2 := base.Select("c").Where("idx", ">", "2").Build()
	q3 := base.Build()

	assert.Equal(t, []string{"a", "b"}, q1.Columns())
	assert.Equal(t, []string{"a", "c"}, q2.Columns())
	assert.Equal(t, []string{"a"}, q3.Columns())

	c1, ok := q1.Condition()
	require.True(t, ok)
	assert.Equal(t, Condition{Index: hs.PrimaryIndex, Op: hs.OpEq, Keys: []string{"1"}}, c1)
	c2, _ := q2.Condition()
	assert.Equal(t, Condition{Index: "idx", Op: hs.OpGt, Keys: []string{"2"}}, c2)
	_, ok = q3.Condition()
	assert.False(t, ok, "conditions never leak between derived builders")
}

func TestBuilder_SelectKeepsDuplicates(t *testing.T) {
	q := New(nil).Select("a", "b").Select("a").Select().Build()
	assert.Equal(t, []string{"a", "b", "a"}, q.Columns())
}

func TestBuilder_FromOverwrites(t *testing.T) {
	assert.Equal(t, "second", New(nil).From("first").From("second").Build().Table())
}

func TestBuilder_WhereReplacesAndNormalizes(t *testing.T) {
	tests := []struct {
		op   string
		want hs.Operator
	}{
		{"", hs.OpEq},
		{"!=", hs.OpEq},
		{"LIKE", hs.OpEq},
		{">=", hs.OpGte},
		{"<", hs.OpLt},
		{"+", hs.OpPlus},
	}
	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			q := New(nil).Where("x", "<=", "9").Where("", tt.op, "1").Build()
			c, _ := q.Condition()
			assert.Equal(t, tt.want, c.Op)
			assert.Equal(t, hs.PrimaryIndex, c.Index)
			assert.Equal(t, []string{"1"}, c.Keys)
		})
	}
}

func TestBuild_CopiesKeys(t *testing.T) {
	keys := []string{"1"}
	q := New(nil).Where("", "=", keys...).Build()
	keys[0] = "changed"
	c, _ := q.Condition()
	assert.Equal(t, []string{"1"}, c.Keys)
}

func TestGet(t *testing.T) {
	b, _ := newBuilder(t)
	seed(t, b)
	ctx := context.Background()

	res, err := b.Select("name", "age").From("users").Where("", "=", "2").Get(ctx)
	require.NoError(t, err)
	assert.True(t, res.Found())
	assert.Equal(t, []hs.Row{{"bob", "42"}}, res.Rows)

	res, err = b.Select("name").From("users").Where("", "=", "99").Get(ctx)
	require.NoError(t, err)
	assert.False(t, res.Found(), "no match is a normal outcome")
	assert.Nil(t, res.Records())

	res, err = b.Select("id").From("users").Where("by_name", ">=", "b").Get(ctx, hs.WithLimit(10))
	require.NoError(t, err)
	assert.Equal(t, []hs.Row{{"2"}, {"3"}}, res.Rows)

	_, err = b.Select("id").Where("", "=", "1").Get(ctx)
	require.ErrorIs(t, err, ErrNoTable)
	_, err = b.Select("id").From("users").Get(ctx)
	require.ErrorIs(t, err, ErrNoCondition)
	_, err = b.Select("nope").From("users").Where("", "=", "1").Get(ctx)
	require.ErrorIs(t, err, hs.ErrProtocol)
}

func TestGetRecords_ColumnAlignment(t *testing.T) {
	b, _ := newBuilder(t)
	seed(t, b)

	recs, found, err := b.Select("age", "name").From("users").Where("PRIMARY", "=", "1").GetRecords(context.Background())
	require.NoError(t, err)
	require.True(t, found)
	if diff := cmp.Diff([]map[string]string{{"age": "31", "name": "ann"}}, recs); diff != "" {
		t.Fatalf("records mismatch (-want +got):\n%s", diff)
	}

	recs, found, err = b.Select("age").From("users").Where("", "=", "77").GetRecords(context.Background())
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, recs)
}

type user struct {
	ID   int    `hs:"id"`
	Name string `hs:"name"`
	Age  int    `hs:"age"`
}

func TestGetObjects(t *testing.T) {
	b, _ := newBuilder(t)
	seed(t, b)

	q := b.Select("id", "name", "age").From("users").Where("", ">=", "2").Build()
	users, found, err := GetObjects[user](context.Background(), q, hs.WithLimit(5))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []user{{ID: 2, Name: "bob", Age: 42}, {ID: 3, Name: "cid", Age: 27}}, users)

	none, found, err := GetObjects[user](context.Background(), b.Select("id").From("users").Where("", "=", "9").Build())
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, none)
}

func TestUpdate(t *testing.T) {
	b, s := newBuilder(t)
	seed(t, b)
	ctx := context.Background()

	n, err := b.Select("age").From("users").Where("", ">", "0").Update(ctx, []string{"50"})
	require.NoError(t, err)
	assert.Equal(t, 1, n, "default limit is 1")
	row, _ := s.Lookup("test", "users", "1")
	assert.Equal(t, "50", row[2])

	n, err = b.Select("age").From("users").Where("", ">", "0").Update(ctx, []string{"60"}, hs.WithLimit(10), hs.WithOffset(1))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = b.Select("age").From("users").Where("", "=", "404").Update(ctx, []string{"1"})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = b.Select("age", "name").From("users").Where("", "=", "1").Update(ctx, []string{"1"})
	require.ErrorIs(t, err, hs.ErrArity)

	_, err = b.From("users").Where("", "=", "1").Update(ctx, nil)
	require.ErrorIs(t, err, ErrNoColumns)
}

func TestInsert(t *testing.T) {
	b, s := newBuilder(t)
	ctx := context.Background()
	users := b.Select("id", "name", "age").From("users")

	ok, err := users.Insert(ctx, nil)
	require.NoError(t, err)
	assert.False(t, ok, "empty input inserts nothing")

	ok, err = users.InsertBatch(ctx, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = users.Insert(ctx, []string{"7", "gus", "70"})
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = users.InsertBatch(ctx, [][]string{{"8", "hal", "1"}, {"7", "dup", "2"}, {"9", "ivy", "3"}})
	require.Error(t, err)
	assert.True(t, hs.IsDuplicateKey(err))
	_, ok8 := s.Lookup("test", "users", "8")
	_, ok9 := s.Lookup("test", "users", "9")
	assert.True(t, ok8, "rows before the failure stay inserted")
	assert.False(t, ok9, "rows after the failure are not attempted")
}

func TestDelete(t *testing.T) {
	b, s := newBuilder(t)
	seed(t, b)
	ctx := context.Background()

	n, err := b.From("users").Where("", "=", "2").Delete(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = b.From("users").Where("", "=", "2").Delete(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = b.From("users").Where("", ">=", "0").Delete(ctx, hs.WithLimit(100))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 0, s.Len("test", "users"))
}

func TestQuery_String(t *testing.T) {
	q := New(nil).Select("a").From("t").Where("", ">", "1").Build()
	assert.Equal(t, "t[a] PRIMARY > [1]", q.String())
}
