// Package server wires the cache daemon together: backend groups, the gRPC
// service, periodic garbage collection and the metrics endpoint.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/gohs/internal/backend"
	gcfg "github.com/dmitrijs2005/gohs/internal/config"
	"github.com/dmitrijs2005/gohs/internal/logging"
	"github.com/dmitrijs2005/gohs/internal/metrics"
	"github.com/dmitrijs2005/gohs/internal/server/config"
	"github.com/dmitrijs2005/gohs/pkg/hscache"
	"github.com/dmitrijs2005/gohs/pkg/registry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	gs "github.com/dmitrijs2005/gohs/internal/server/grpc"
)

type App struct {
	config  *config.Config
	logger  *logging.SlogLogger
	groups  *gcfg.Groups
	caches  *registry.Registry[*hscache.Cache]
	promReg *prometheus.Registry
}

func NewApp(c *config.Config) (*App, error) {
	logger := logging.New(c.LogFormat, c.LogLevel)

	groups, err := gcfg.Load(c.GroupsFile)
	if err != nil {
		return nil, fmt.Errorf("groups init error: %w", err)
	}
	return newApp(c, logger, groups), nil
}

func newApp(c *config.Config, logger *logging.SlogLogger, groups *gcfg.Groups) *App {
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	defaultGroup := c.DefaultGroup
	if defaultGroup == "" {
		defaultGroup = groups.DefaultGroup()
	}
	groups = groups.WithDefault(defaultGroup)

	caches := registry.New(
		backend.Caches(groups, backend.WithLogger(logger.Slog()), backend.WithMetrics(metrics.New(promReg))),
		registry.WithDefaultGroup(defaultGroup),
	)

	return &App{config: c, logger: logger, groups: groups, caches: caches, promReg: promReg}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.caches, app.config.SecretKey)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startMetricsServer(ctx context.Context, cancelFunc context.CancelFunc) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(app.promReg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: app.config.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	app.logger.Info(ctx, "Starting metrics server", "address", app.config.MetricsAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// collectGarbage runs one garbage collection over every configured group
// and returns the number of removed entries.
func (app *App) collectGarbage(ctx context.Context) int {
	total := 0
	for _, name := range app.groups.Names() {
		c, err := app.caches.Get(ctx, name)
		if err != nil {
			app.logger.Warn(ctx, "garbage collection skipped", "group", name, "err", err)
			continue
		}
		n, err := c.GarbageCollect(ctx)
		total += n
		if err != nil {
			app.logger.Warn(ctx, "garbage collection failed", "group", name, "removed", n, "err", err)
		}
	}
	return total
}

func (app *App) startGarbageCollector(ctx context.Context) {
	ticker := time.NewTicker(app.config.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := app.collectGarbage(ctx); n > 0 {
				app.logger.Info(ctx, "garbage collected", "removed", n)
			}
		}
	}
}

// Run serves until SIGINT/SIGTERM or until a component fails, then closes
// every backend.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "groups", app.groups.Names())

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	if app.config.MetricsAddr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.startMetricsServer(ctx, cancelFunc)
		}()
	}

	if app.config.GCInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.startGarbageCollector(ctx)
		}()
	}

	wg.Wait()

	app.logger.Info(context.Background(), "Closing backends...")
	return app.caches.Close()
}
