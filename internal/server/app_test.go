package server

import (
	"context"
	"testing"
	"time"

	gcfg "github.com/dmitrijs2005/gohs/internal/config"
	"github.com/dmitrijs2005/gohs/internal/logging"
	"github.com/dmitrijs2005/gohs/internal/server/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testApp(t *testing.T) *App {
	t.Helper()
	var c config.Config
	c.LoadDefaults()
	c.EndpointAddrGRPC = "127.0.0.1:0"
	c.MetricsAddr = "127.0.0.1:0"
	c.GCInterval = 10 * time.Millisecond

	groups := gcfg.New("a", map[string]gcfg.JsonGroup{
		"a":      {Backend: gcfg.BackendMemory},
		"b":      {Backend: gcfg.BackendMemory},
		"broken": {Backend: gcfg.BackendHandlerSocket},
	})
	return newApp(&c, logging.Discard(), groups)
}

func TestCollectGarbage_AllGroups(t *testing.T) {
	app := testApp(t)
	defer app.caches.Close()
	ctx := context.Background()

	for _, g := range []string{"a", "b"} {
		c, err := app.caches.Get(ctx, g)
		require.NoError(t, err)
		require.NoError(t, c.Set(ctx, "gone", []byte("x"), time.Second))
		require.NoError(t, c.Set(ctx, "kept", []byte("x"), 0))
	}

	assert.Equal(t, 0, app.collectGarbage(ctx))
	time.Sleep(2100 * time.Millisecond)
	assert.Equal(t, 2, app.collectGarbage(ctx), "broken group is skipped, others are collected")
}

func TestNewApp_DefaultGroupOverride(t *testing.T) {
	var c config.Config
	c.LoadDefaults()
	c.DefaultGroup = "b"
	groups := gcfg.New("a", map[string]gcfg.JsonGroup{
		"a": {Backend: gcfg.BackendMemory},
		"b": {Backend: gcfg.BackendMemory},
	})

	app := newApp(&c, logging.Discard(), groups)
	defer app.caches.Close()
	assert.Equal(t, "b", app.caches.DefaultGroup())
	assert.Equal(t, "b", app.groups.DefaultGroup())
}

func TestRun_StopsOnCancel(t *testing.T) {
	app := testApp(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("app did not stop")
	}
}
