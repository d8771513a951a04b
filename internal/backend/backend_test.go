package backend

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/dmitrijs2005/gohs/internal/config"
	"github.com/dmitrijs2005/gohs/internal/metrics"
	"github.com/dmitrijs2005/gohs/pkg/hs"
	"github.com/dmitrijs2005/gohs/pkg/hscache"
	"github.com/dmitrijs2005/gohs/pkg/query"
	"github.com/dmitrijs2005/gohs/pkg/registry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGroups(t *testing.T) *config.Groups {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "cache.db")
	return config.New("mem", map[string]config.JsonGroup{
		"mem":    {Backend: config.BackendMemory, Table: "sessions"},
		"local":  {Backend: config.BackendSQLite, DSN: dsn},
		"remote": {Host: "127.0.0.1", DBName: "app"},
		"broken": {Backend: config.BackendHandlerSocket},
	})
}

func TestCaches_MemoryAndSQLite(t *testing.T) {
	reg := registry.New(Caches(testGroups(t)))
	defer reg.Close()
	ctx := context.Background()

	for _, group := range []string{"", "local"} {
		t.Run(fmt.Sprintf("group %q", group), func(t *testing.T) {
			c, err := reg.Get(ctx, group)
			require.NoError(t, err)

			require.NoError(t, c.Set(ctx, "k", []byte("v"), hscache.DefaultLifetime))
			v, ok, err := c.Get(ctx, "k")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, []byte("v"), v)
		})
	}

	mem, err := reg.Get(ctx, "mem")
	require.NoError(t, err)
	assert.Equal(t, "sessions", mem.Config().Table)
}

func TestOpen_HandlerSocketDialsLazily(t *testing.T) {
	groups := testGroups(t)
	grp, err := groups.Resolve("remote")
	require.NoError(t, err)

	inst, err := Open(context.Background(), grp)
	require.NoError(t, err)
	assert.Equal(t, "app", inst.DBName())
	require.NoError(t, inst.Close())
}

func TestInstances_ConfigErrors(t *testing.T) {
	reg := registry.New(Instances(testGroups(t)))
	defer reg.Close()

	_, err := reg.Get(context.Background(), "broken")
	require.ErrorIs(t, err, hs.ErrConfiguration)

	_, err = reg.Get(context.Background(), "nope")
	require.ErrorIs(t, err, hs.ErrConfiguration)
}

func TestInstance_QueryBuilderAndMetrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	grp, err := testGroups(t).Resolve("mem")
	require.NoError(t, err)

	inst, err := Open(context.Background(), grp, WithMetrics(m))
	require.NoError(t, err)
	defer inst.Close()
	ctx := context.Background()

	ok, err := query.New(inst).Select("id", "cache", "expiration").From("sessions").Insert(ctx, []string{"a", "1", "0"})
	require.NoError(t, err)
	require.True(t, ok)

	res, err := query.New(inst).Select("cache").From("sessions").Where("", "=", "a").Get(ctx)
	require.NoError(t, err)
	require.True(t, res.Found())
	assert.Equal(t, "1", res.Rows[0][0])

	c, err := inst.Cache()
	require.NoError(t, err)
	_, _, err = c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("mem", hscache.LookupHit)))
}

func TestCaches_SQLiteCustomTable(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "cache.db")
	groups := config.New("sessions", map[string]config.JsonGroup{
		"sessions": {Backend: config.BackendSQLite, DSN: dsn, Table: "sessions"},
		"default":  {Backend: config.BackendSQLite, DSN: dsn},
	})
	reg := registry.New(Caches(groups))
	defer reg.Close()
	ctx := context.Background()

	sessions, err := reg.Get(ctx, "sessions")
	require.NoError(t, err)
	assert.Equal(t, "sessions", sessions.Config().Table)
	require.NoError(t, sessions.Set(ctx, "k", []byte("s"), hscache.DefaultLifetime))

	def, err := reg.Get(ctx, "default")
	require.NoError(t, err)
	require.NoError(t, def.Set(ctx, "k", []byte("d"), hscache.DefaultLifetime))

	v, ok, err := sessions.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("s"), v)

	n, err := sessions.GarbageCollect(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
