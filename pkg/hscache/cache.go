// Package hscache is a TTL cache stored in a HandlerSocket table with the
// layout (id VARCHAR(127) PRIMARY KEY, cache TEXT, expiration INT) and a
// secondary index on expiration:
//
//	CREATE TABLE caches (
//	    id         VARCHAR(127) NOT NULL PRIMARY KEY,
//	    cache      TEXT         NOT NULL,
//	    expiration INT          NOT NULL DEFAULT 0,
//	    KEY expiration (expiration)
//	);
//
// Get, Set, Delete and DeleteAll only use the primary key. GarbageCollect
// scans the expiration index, named by Config.ExpirationIndex; without it
// the server rejects the open with "idxnum".
//
// Entries carry an absolute unix expiration, 0 meaning never. Expired
// entries are removed lazily on read and in bulk by GarbageCollect, which
// callers are expected to run periodically.
package hscache

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/gohs/internal/logging"
	"github.com/dmitrijs2005/gohs/pkg/hs"
	"golang.org/x/crypto/blake2b"
)

const (
	// Ceiling is the longest lifetime an entry can get.
	Ceiling = 30 * 24 * time.Hour
	// DefaultLifetime is used by callers that have no better idea.
	DefaultLifetime        = time.Hour
	DefaultTable           = "caches"
	DefaultExpirationIndex = "expiration"

	maxIDLen = 127
	gcBatch  = 1000
)

// Lookup outcomes reported to the Observer.
const (
	LookupHit     = "hit"
	LookupMiss    = "miss"
	LookupExpired = "expired"
)

// Config names the cache table and its expiration index.
type Config struct {
	Table           string
	ExpirationIndex string
}

func (c Config) withDefaults() Config {
	if c.ExpirationIndex == "" {
		c.ExpirationIndex = DefaultExpirationIndex
	}
	return c
}

// Validate requires a table name.
func (c Config) Validate() error {
	if c.Table == "" {
		return fmt.Errorf("%w: cache table is required", hs.ErrConfiguration)
	}
	return nil
}

// Store is the part of *hs.Client the cache uses.
type Store interface {
	OpenIndex(ctx context.Context, mode hs.Mode, def hs.IndexDefinition) (hs.Handle, error)
	Execute(ctx context.Context, h hs.Handle, op hs.Operator, keys []string, opts ...hs.ExecOption) ([]hs.Row, error)
	ExecuteUpdate(ctx context.Context, h hs.Handle, op hs.Operator, keys, values []string, opts ...hs.ExecOption) (int, error)
	ExecuteInsert(ctx context.Context, h hs.Handle, values []string) (bool, error)
	ExecuteDelete(ctx context.Context, h hs.Handle, op hs.Operator, keys []string, opts ...hs.ExecOption) (int, error)
	ExecuteDeleteAll(ctx context.Context, h hs.Handle) (int, error)
	DeleteInBatches(ctx context.Context, h hs.Handle, op hs.Operator, keys []string, batch int, opts ...hs.ExecOption) (int, error)
	Close() error
}

// Observer receives cache outcomes.
type Observer interface {
	CacheLookup(result string)
	CacheCollected(n int)
}

type nopObserver struct{}

func (nopObserver) CacheLookup(string) {}
func (nopObserver) CacheCollected(int) {}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

func WithObserver(o Observer) Option {
	return func(c *Cache) {
		if o != nil {
			c.obs = o
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		c.log = logging.NewSlogLogger(l)
	}
}

// Cache is safe for concurrent use when its Store is.
type Cache struct {
	store Store
	cfg   Config
	now   func() time.Time
	obs   Observer
	log   logging.Logger
}

// New builds a Cache over store. The cache owns store and closes it on Close.
func New(store Store, cfg Config, opts ...Option) (*Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Cache{
		store: store,
		cfg:   cfg.withDefaults(),
		now:   time.Now,
		obs:   nopObserver{},
		log:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("component", "hscache", "table", c.cfg.Table)
	return c, nil
}

// Config returns the effective configuration.
func (c *Cache) Config() Config { return c.cfg }

// sanitizeID makes an id safe as a key: path separators and spaces become
// '_', and ids longer than the key column are replaced by a digest.
func sanitizeID(id string) string {
	id = strings.NewReplacer("/", "_", `\`, "_", " ", "_").Replace(id)
	if len(id) <= maxIDLen {
		return id
	}
	sum := blake2b.Sum256([]byte(id))
	return "h:" + hex.EncodeToString(sum[:])
}

// expiresAt turns a lifetime into an absolute unix time, 0 meaning never.
func (c *Cache) expiresAt(lifetime time.Duration) int64 {
	now := c.now().Unix()
	switch {
	case lifetime > Ceiling:
		return now + int64(Ceiling/time.Second)
	case lifetime > 0:
		return now + int64((lifetime+time.Second-1)/time.Second)
	default:
		return 0
	}
}

func (c *Cache) def(index string, columns ...string) hs.IndexDefinition {
	return hs.IndexDefinition{Table: c.cfg.Table, Name: index, Columns: columns}
}

// Get returns the value stored under id. An expired entry is deleted and
// reported as a miss.
func (c *Cache) Get(ctx context.Context, id string) ([]byte, bool, error) {
	sid := sanitizeID(id)

	h, err := c.store.OpenIndex(ctx, hs.ModeSelect, c.def(hs.PrimaryIndex, "cache", "expiration"))
	if err != nil {
		return nil, false, err
	}
	rows, err := c.store.Execute(ctx, h, hs.OpEq, []string{sid}, hs.WithLimit(1))
	if err != nil {
		return nil, false, err
	}
	if len(rows) == 0 || len(rows[0]) < 2 {
		c.obs.CacheLookup(LookupMiss)
		return nil, false, nil
	}

	value, rawExp := rows[0][0], rows[0][1]
	exp, err := parseExpiration(rawExp)
	if err != nil {
		return nil, false, fmt.Errorf("hscache: entry %q: %w", sid, err)
	}

	if exp != 0 && exp <= c.now().Unix() {
		c.obs.CacheLookup(LookupExpired)
		if _, err := c.Delete(ctx, id); err != nil {
			c.log.Warn(ctx, "lazy delete failed", "id", sid, "err", err)
		}
		return nil, false, nil
	}

	c.obs.CacheLookup(LookupHit)
	return []byte(value), true, nil
}

func parseExpiration(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad expiration %q: %w", s, err)
	}
	return n, nil
}

// GetOr returns the stored value or def on a miss.
func (c *Cache) GetOr(ctx context.Context, id string, def []byte) ([]byte, error) {
	v, ok, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return def, nil
	}
	return v, nil
}

// Set stores value under id. Lifetimes above Ceiling are clamped; zero or
// negative lifetimes never expire. An existing entry is replaced.
func (c *Cache) Set(ctx context.Context, id string, value []byte, lifetime time.Duration) error {
	sid := sanitizeID(id)
	exp := strconv.FormatInt(c.expiresAt(lifetime), 10)

	ins, err := c.store.OpenIndex(ctx, hs.ModeInsert, c.def("", "id", "cache", "expiration"))
	if err != nil {
		return err
	}

	row := []string{sid, string(value), exp}
	for attempt := 0; attempt < 2; attempt++ {
		_, err := c.store.ExecuteInsert(ctx, ins, row)
		if err == nil {
			return nil
		}
		if !hs.IsDuplicateKey(err) {
			return err
		}

		replaced, err := c.replace(ctx, sid, row[1:])
		if err != nil || replaced {
			return err
		}
		// deleted between insert and update, try the insert again
	}
	return fmt.Errorf("hscache: set %q: entry kept changing", sid)
}

func (c *Cache) replace(ctx context.Context, sid string, values []string) (bool, error) {
	h, err := c.store.OpenIndex(ctx, hs.ModeUpdate, c.def(hs.PrimaryIndex, "cache", "expiration"))
	if err != nil {
		return false, err
	}
	n, err := c.store.ExecuteUpdate(ctx, h, hs.OpEq, []string{sid}, values)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Delete removes id and reports whether it existed.
func (c *Cache) Delete(ctx context.Context, id string) (bool, error) {
	h, err := c.store.OpenIndex(ctx, hs.ModeDelete, c.def("", "id"))
	if err != nil {
		return false, err
	}
	n, err := c.store.ExecuteDelete(ctx, h, hs.OpEq, []string{sanitizeID(id)})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteAll removes every entry and returns how many were removed.
func (c *Cache) DeleteAll(ctx context.Context) (int, error) {
	h, err := c.store.OpenIndex(ctx, hs.ModeDelete, c.def("", "id"))
	if err != nil {
		return 0, err
	}
	n, err := c.store.ExecuteDeleteAll(ctx, h)
	if err != nil {
		return n, err
	}
	c.log.Info(ctx, "cache flushed", "removed", n)
	return n, nil
}

// GarbageCollect removes every entry whose expiration is set and not in
// the future. It walks the expiration index downwards from now and stops
// at the never-expiring entries.
func (c *Cache) GarbageCollect(ctx context.Context) (int, error) {
	def := c.def(c.cfg.ExpirationIndex, "expiration")
	def.FilterColumns = []string{"expiration"}

	h, err := c.store.OpenIndex(ctx, hs.ModeDelete, def)
	if err != nil {
		return 0, err
	}

	now := strconv.FormatInt(c.now().Unix(), 10)
	n, err := c.store.DeleteInBatches(ctx, h, hs.OpLte, []string{now}, gcBatch,
		hs.WithFilter(hs.Filter{Type: hs.FilterWhile, Op: hs.OpGt, Column: 0, Value: "0"}))
	c.obs.CacheCollected(n)
	if err != nil {
		return n, err
	}
	if n > 0 {
		c.log.Debug(ctx, "garbage collected", "removed", n)
	}
	return n, nil
}

// Close closes the underlying store.
func (c *Cache) Close() error {
	return c.store.Close()
}
