// Package backend turns a resolved config group into a working client,
// picking the transport by the group's backend.
package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/dmitrijs2005/gohs/internal/config"
	"github.com/dmitrijs2005/gohs/internal/dbx"
	"github.com/dmitrijs2005/gohs/internal/metrics"
	"github.com/dmitrijs2005/gohs/pkg/hs"
	"github.com/dmitrijs2005/gohs/pkg/hs/memstore"
	"github.com/dmitrijs2005/gohs/pkg/hs/sqlstore"
	"github.com/dmitrijs2005/gohs/pkg/hscache"
	"github.com/dmitrijs2005/gohs/pkg/registry"
)

// Option configures Open.
type Option func(*options)

type options struct {
	log     *slog.Logger
	metrics *metrics.Metrics
	migrate bool
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithMetrics reports client and cache events under the group name.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithoutMigrations skips the schema migrations of the SQL backends.
func WithoutMigrations() Option {
	return func(o *options) { o.migrate = false }
}

func newOptions(opts []Option) options {
	o := options{log: slog.New(slog.DiscardHandler), migrate: true}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Instance is a client bound to one group. Closing it also releases the
// backend the client was dialing into.
type Instance struct {
	*hs.Client
	Group config.Group

	obs   *metrics.Observer
	store io.Closer
}

// Close closes the client and its backend.
func (i *Instance) Close() error {
	err := i.Client.Close()
	if i.store != nil {
		err = errors.Join(err, i.store.Close())
	}
	return err
}

// Cache wraps the instance in a TTL cache. The cache takes ownership.
func (i *Instance) Cache(opts ...hscache.Option) (*hscache.Cache, error) {
	if i.obs != nil {
		opts = append([]hscache.Option{hscache.WithObserver(*i.obs)}, opts...)
	}
	return hscache.New(i, i.Group.Cache, opts...)
}

// Open builds the client of grp.
func Open(ctx context.Context, grp config.Group, opts ...Option) (*Instance, error) {
	o := newOptions(opts)
	log := o.log.With("group", grp.Name, "backend", string(grp.Backend))

	inst := &Instance{Group: grp}
	hsOpts := []hs.Option{hs.WithLogger(log)}
	if o.metrics != nil {
		obs := o.metrics.For(grp.Name)
		inst.obs = &obs
		hsOpts = append(hsOpts, hs.WithObserver(obs))
	}

	switch grp.Backend {
	case config.BackendHandlerSocket:
		// TCP transport is the client default
	case config.BackendMemory:
		s := memstore.New()
		if err := s.CreateTable(grp.HS.DBName, grp.Cache.Table, memstore.CacheSchema(grp.Cache.ExpirationIndex)); err != nil {
			return nil, err
		}
		hsOpts = append(hsOpts, hs.WithDialer(s.Dial))
	case config.BackendSQLite, config.BackendPostgres:
		s, err := openSQL(ctx, grp, o, log)
		if err != nil {
			return nil, err
		}
		inst.store = s
		hsOpts = append(hsOpts, hs.WithDialer(s.Dial))
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", hs.ErrConfiguration, grp.Backend)
	}

	client, err := hs.New(grp.HS, hsOpts...)
	if err != nil {
		if inst.store != nil {
			err = errors.Join(err, inst.store.Close())
		}
		return nil, err
	}
	inst.Client = client
	log.Debug("backend opened")
	return inst, nil
}

func openSQL(ctx context.Context, grp config.Group, o options, log *slog.Logger) (*sqlstore.Store, error) {
	dialect, err := dbx.DialectFor(string(grp.Backend))
	if err != nil {
		return nil, err
	}
	s, err := sqlstore.Open(dialect, grp.DSN, sqlstore.WithLogger(log))
	if err != nil {
		return nil, err
	}
	if o.migrate {
		if err := s.Migrate(ctx); err != nil {
			return nil, errors.Join(fmt.Errorf("migration error: %w", err), s.Close())
		}
		if err := s.EnsureCacheTable(ctx, grp.Cache.Table); err != nil {
			return nil, errors.Join(err, s.Close())
		}
	}
	s.Register(sqlstore.CacheTable(grp.Cache.Table, grp.Cache.ExpirationIndex))
	return s, nil
}

// Instances returns a registry factory building clients from groups.
func Instances(groups *config.Groups, opts ...Option) registry.Factory[*Instance] {
	return func(ctx context.Context, name string) (*Instance, error) {
		grp, err := groups.Resolve(name)
		if err != nil {
			return nil, err
		}
		return Open(ctx, grp, opts...)
	}
}

// Caches returns a registry factory building caches from groups.
func Caches(groups *config.Groups, opts ...Option) registry.Factory[*hscache.Cache] {
	instances := Instances(groups, opts...)
	return func(ctx context.Context, name string) (*hscache.Cache, error) {
		inst, err := instances(ctx, name)
		if err != nil {
			return nil, err
		}
		c, err := inst.Cache(hscache.WithLogger(newOptions(opts).log))
		if err != nil {
			return nil, errors.Join(err, inst.Close())
		}
		return c, nil
	}
}
