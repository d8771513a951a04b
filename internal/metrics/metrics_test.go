package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dmitrijs2005/gohs/pkg/hs"
	"github.com/dmitrijs2005/gohs/pkg/hscache"
	"github.com/dmitrijs2005/gohs/pkg/hs/memstore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: "ok"},
		{name: "rejected", err: hs.Reject("find", 2, "op"), want: "rejected"},
		{name: "wrapped rejected", err: fmt.Errorf("x: %w", hs.Reject("find", 1, "121")), want: "rejected"},
		{name: "transport", err: &hs.ProtocolError{Op: "find", Code: hs.TransportCode, Err: errors.New("eof")}, want: "transport"},
		{name: "other", err: context.Canceled, want: "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Status(tt.err))
		})
	}
}

func TestObserver_Counts(t *testing.T) {
	m := New(prometheus.NewRegistry())
	o := m.For("default")

	o.IndexOpened(hs.ClassRead)
	o.OperationDone("find", hs.ClassRead, 3*time.Millisecond, nil)
	o.OperationDone("find", hs.ClassRead, time.Millisecond, hs.Reject("find", 2, "op"))
	o.CacheLookup(hscache.LookupHit)
	o.CacheLookup(hscache.LookupHit)
	o.CacheCollected(0)
	o.CacheCollected(4)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.IndexOpens.WithLabelValues("default", hs.ClassRead.String())))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("default", "find", hs.ClassRead.String(), "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("default", "find", hs.ClassRead.String(), "rejected")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("default", hscache.LookupHit)))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.CacheCollected.WithLabelValues("default")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.OperationDuration))
}

func TestObserver_WiredIntoClientAndCache(t *testing.T) {
	m := New(prometheus.NewRegistry())
	obs := m.For("sessions")

	s := memstore.New()
	require.NoError(t, s.CreateTable("test", "caches", memstore.CacheSchema("")))
	client, err := hs.New(hs.Config{DBName: "test"}, hs.WithDialer(s.Dial), hs.WithObserver(obs))
	require.NoError(t, err)
	c, err := hscache.New(client, hscache.Config{Table: "caches"}, hscache.WithObserver(obs))
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))
	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	_, ok, err = c.Get(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("sessions", hscache.LookupHit)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("sessions", hscache.LookupMiss)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IndexOpens.WithLabelValues("sessions", hs.ClassRead.String())))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IndexOpens.WithLabelValues("sessions", hs.ClassWrite.String())))
}
