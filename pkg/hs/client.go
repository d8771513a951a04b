// Package hs is a client for HandlerSocket style indexed stores.
//
// A Client keeps two connections, one for reads and one for writes, and
// caches opened index handles so that repeated operations on the same
// projection skip the open round trip. Connections are dialed lazily and
// replaced after a transport failure; handles opened on a replaced
// connection are reopened transparently.
package hs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/gohs/internal/logging"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

// deleteAllBatch is the row limit of each ExecuteDeleteAll round.
const deleteAllBatch = 1000

// Handle references an opened index. It stays usable after reconnects;
// the client reopens it on demand.
type Handle struct {
	id    int
	gen   uint64
	class ModeClass
	db    string
	def   IndexDefinition
}

// ID is the index id sent on the wire.
func (h Handle) ID() int { return h.id }

// Class is the connection the handle belongs to.
func (h Handle) Class() ModeClass { return h.class }

// Definition returns the opened index definition.
func (h Handle) Definition() IndexDefinition { return h.def }

type handleKey struct {
	class ModeClass
	db    string
	table string
	index string
	cols  string
	fcols string
}

func keyOf(class ModeClass, db string, def IndexDefinition) handleKey {
	return handleKey{
		class: class,
		db:    db,
		table: def.Table,
		index: def.IndexName(),
		cols:  strings.Join(def.Columns, ","),
		fcols: strings.Join(def.FilterColumns, ","),
	}
}

type slot struct {
	mu   sync.Mutex
	conn Conn
	gen  uint64
}

// Option configures a Client.
type Option func(*Client)

// WithDialer replaces the TCP transport, e.g. with an in-process backend.
// Config.Host is not required when a dialer is supplied.
func WithDialer(d DialFunc) Option {
	return func(c *Client) {
		c.dial = d
		c.customDial = true
	}
}

// WithLogger sets the logger used for connection and handle events.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.log = logging.NewSlogLogger(l)
	}
}

// WithObserver registers an Observer for opens and operations.
func WithObserver(o Observer) Option {
	return func(c *Client) {
		if o != nil {
			c.obs = o
		}
	}
}

// Client is safe for concurrent use.
type Client struct {
	cfg        Config
	id         string
	dial       DialFunc
	customDial bool
	log        logging.Logger
	obs        Observer

	slots [2]*slot

	mu      sync.Mutex
	handles *lru.Cache[handleKey, Handle]
	nextID  int
	closed  bool
}

// New validates cfg and builds a Client. No connection is made until the
// first operation.
func New(cfg Config, opts ...Option) (*Client, error) {
	c := &Client{
		cfg:   cfg.withDefaults(),
		id:    uuid.NewString(),
		log:   logging.Discard(),
		obs:   nopObserver{},
		slots: [2]*slot{{}, {}},
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.cfg.validate(!c.customDial); err != nil {
		return nil, err
	}
	if c.dial == nil {
		c.dial = TCPDialer(c.cfg)
	}
	c.log = c.log.With("component", "hs", "client_id", c.id)

	handles, err := lru.New[handleKey, Handle](c.cfg.HandleCacheSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	c.handles = handles

	return c, nil
}

// Config returns the effective configuration.
func (c *Client) Config() Config { return c.cfg }

// DBName is the database every index is opened in.
func (c *Client) DBName() string { return c.cfg.DBName }

// OpenIndex returns a handle for def in the configured database, opening it
// on the connection chosen by mode unless an identical one is cached.
func (c *Client) OpenIndex(ctx context.Context, mode Mode, def IndexDefinition) (Handle, error) {
	return c.OpenIndexIn(ctx, mode, c.cfg.DBName, def)
}

// OpenIndexIn is OpenIndex against an explicit database.
func (c *Client) OpenIndexIn(ctx context.Context, mode Mode, db string, def IndexDefinition) (Handle, error) {
	if !mode.valid() {
		return Handle{}, fmt.Errorf("%w: %d", ErrInvalidMode, int(mode))
	}
	if def.Table == "" {
		return Handle{}, Reject("open_index", 1, "open_table")
	}
	s := c.slots[mode.Class()]

	s.mu.Lock()
	defer s.mu.Unlock()

	return c.resolve(ctx, s, mode.Class(), db, def)
}

// resolve returns a live handle for (class, db, def). s.mu must be held.
func (c *Client) resolve(ctx context.Context, s *slot, class ModeClass, db string, def IndexDefinition) (Handle, error) {
	conn, err := c.connect(ctx, s, class)
	if err != nil {
		return Handle{}, err
	}

	key := keyOf(class, db, def)

	c.mu.Lock()
	if h, ok := c.handles.Get(key); ok && h.gen == s.gen {
		c.mu.Unlock()
		return h, nil
	}
	c.nextID++
	id := c.nextID
	c.mu.Unlock()

	if err := conn.OpenIndex(ctx, id, db, def); err != nil {
		return Handle{}, c.fail(ctx, s, class, "open_index", err)
	}

	h := Handle{id: id, gen: s.gen, class: class, db: db, def: def}

	c.mu.Lock()
	c.handles.Add(key, h)
	c.mu.Unlock()

	c.obs.IndexOpened(class)
	c.log.Debug(ctx, "index opened",
		"class", class.String(), "id", id, "db", db, "table", def.Table,
		"index", def.IndexName(), "columns", key.cols)

	return h, nil
}

// refresh maps a caller's handle onto the live one. s.mu must be held.
func (c *Client) refresh(ctx context.Context, s *slot, h Handle) (Handle, Conn, error) {
	live, err := c.resolve(ctx, s, h.class, h.db, h.def)
	if err != nil {
		return Handle{}, nil, err
	}
	return live, s.conn, nil
}

func (c *Client) connect(ctx context.Context, s *slot, class ModeClass) (Conn, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	if s.conn != nil {
		return s.conn, nil
	}

	conn, err := c.dial(ctx, class)
	if err != nil {
		var pe *ProtocolError
		if errors.As(err, &pe) {
			return nil, err
		}
		return nil, transportError("dial", err)
	}
	s.conn = conn
	s.gen++
	c.log.Debug(ctx, "connected", "class", class.String(), "generation", s.gen)
	return conn, nil
}

// fail classifies err. Transport failures drop the connection and every
// handle of its class; an unknown handle drops that handle only.
func (c *Client) fail(ctx context.Context, s *slot, class ModeClass, op string, err error) error {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		if pe.IsTransport() {
			c.drop(ctx, s, class, err)
		}
		if pe.Op == "" {
			pe.Op = op
		}
		return err
	}
	c.drop(ctx, s, class, err)
	return transportError(op, err)
}

func (c *Client) drop(ctx context.Context, s *slot, class ModeClass, cause error) {
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	c.purge(func(k handleKey) bool { return k.class == class })
	c.log.Warn(ctx, "connection dropped", "class", class.String(), "generation", s.gen, "err", cause)
}

func (c *Client) purge(match func(handleKey) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range c.handles.Keys() {
		if match(k) {
			c.handles.Remove(k)
		}
	}
}

func (c *Client) forget(h Handle) {
	key := keyOf(h.class, h.db, h.def)
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.handles.Peek(key); ok && cur.id == h.id {
		c.handles.Remove(key)
	}
}

// ExecOption tunes a find based operation.
type ExecOption func(*execOptions)

type execOptions struct {
	limit   int
	offset  int
	filters []Filter
}

func newExecOptions(opts []ExecOption) execOptions {
	o := execOptions{limit: 1}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLimit caps the number of matched rows. The default is 1.
func WithLimit(n int) ExecOption {
	return func(o *execOptions) {
		if n >= 0 {
			o.limit = n
		}
	}
}

// WithOffset skips the first n matched rows.
func WithOffset(n int) ExecOption {
	return func(o *execOptions) {
		if n >= 0 {
			o.offset = n
		}
	}
}

// WithFilter adds a filter on one of the index's filter columns.
func WithFilter(f Filter) ExecOption {
	return func(o *execOptions) {
		o.filters = append(o.filters, f)
	}
}

func (c *Client) run(ctx context.Context, op string, h Handle, fn func(Conn, Handle) error) (err error) {
	start := time.Now()
	defer func() {
		c.obs.OperationDone(op, h.class, time.Since(start), err)
	}()

	s := c.slots[h.class]
	s.mu.Lock()
	defer s.mu.Unlock()

	live, conn, err := c.refresh(ctx, s, h)
	if err != nil {
		return err
	}

	if err = fn(conn, live); err != nil {
		var pe *ProtocolError
		if errors.As(err, &pe) && pe.IsUnknownHandle() {
			c.forget(live)
		}
		return c.fail(ctx, s, h.class, op, err)
	}
	return nil
}

func (c *Client) findRequest(h Handle, op Operator, keys []string, o execOptions) FindRequest {
	return FindRequest{
		IndexID: h.id,
		Op:      NormalizeOperator(string(op)),
		Keys:    keys,
		Limit:   o.limit,
		Offset:  o.offset,
		Filters: o.filters,
	}
}

// Execute reads the rows matched by op and keys. No match yields nil rows
// and a nil error.
func (c *Client) Execute(ctx context.Context, h Handle, op Operator, keys []string, opts ...ExecOption) ([]Row, error) {
	o := newExecOptions(opts)
	var rows []Row
	err := c.run(ctx, "find", h, func(conn Conn, live Handle) error {
		var err error
		rows, err = conn.Find(ctx, c.findRequest(live, op, keys, o))
		return err
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ExecuteUpdate overwrites the opened columns of the matched rows with
// values and returns how many rows changed.
func (c *Client) ExecuteUpdate(ctx context.Context, h Handle, op Operator, keys, values []string, opts ...ExecOption) (int, error) {
	if err := checkWrite(h); err != nil {
		return 0, err
	}
	if len(values) != len(h.def.Columns) {
		return 0, fmt.Errorf("%w: got %d values for %d columns", ErrArity, len(values), len(h.def.Columns))
	}
	return c.modify(ctx, "update", h, op, keys, Modification{Op: ModifyUpdate, Values: values}, opts)
}

// ExecuteIncrement adds deltas to the opened columns of the matched rows.
func (c *Client) ExecuteIncrement(ctx context.Context, h Handle, op Operator, keys, deltas []string, opts ...ExecOption) (int, error) {
	if err := checkWrite(h); err != nil {
		return 0, err
	}
	if len(deltas) != len(h.def.Columns) {
		return 0, fmt.Errorf("%w: got %d values for %d columns", ErrArity, len(deltas), len(h.def.Columns))
	}
	return c.modify(ctx, "increment", h, op, keys, Modification{Op: ModifyIncrement, Values: deltas}, opts)
}

// ExecuteDecrement subtracts deltas from the opened columns of the matched rows.
func (c *Client) ExecuteDecrement(ctx context.Context, h Handle, op Operator, keys, deltas []string, opts ...ExecOption) (int, error) {
	if err := checkWrite(h); err != nil {
		return 0, err
	}
	if len(deltas) != len(h.def.Columns) {
		return 0, fmt.Errorf("%w: got %d values for %d columns", ErrArity, len(deltas), len(h.def.Columns))
	}
	return c.modify(ctx, "decrement", h, op, keys, Modification{Op: ModifyDecrement, Values: deltas}, opts)
}

// ExecuteDelete removes the matched rows and returns how many were removed.
func (c *Client) ExecuteDelete(ctx context.Context, h Handle, op Operator, keys []string, opts ...ExecOption) (int, error) {
	if err := checkWrite(h); err != nil {
		return 0, err
	}
	return c.modify(ctx, "delete", h, op, keys, Modification{Op: ModifyDelete}, opts)
}

// ExecuteDeleteAll removes every row reachable through the index, walking
// it from the lowest key in batches. Integer indexes are walked from 0.
func (c *Client) ExecuteDeleteAll(ctx context.Context, h Handle) (int, error) {
	return c.DeleteInBatches(ctx, h, OpGte, []string{""}, deleteAllBatch)
}

// DeleteInBatches repeats a delete with the given batch limit until a round
// removes fewer rows than the limit. Filters apply to every round.
func (c *Client) DeleteInBatches(ctx context.Context, h Handle, op Operator, keys []string, batch int, opts ...ExecOption) (int, error) {
	if batch <= 0 {
		batch = deleteAllBatch
	}
	opts = append(opts[:len(opts):len(opts)], WithLimit(batch), WithOffset(0))

	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := c.ExecuteDelete(ctx, h, op, keys, opts...)
		total += n
		if err != nil {
			return total, err
		}
		if n < batch {
			return total, nil
		}
	}
}

func (c *Client) modify(ctx context.Context, op string, h Handle, cmp Operator, keys []string, mod Modification, opts []ExecOption) (int, error) {
	o := newExecOptions(opts)
	var n int
	err := c.run(ctx, op, h, func(conn Conn, live Handle) error {
		var err error
		n, err = conn.Modify(ctx, c.findRequest(live, cmp, keys, o), mod)
		return err
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// ExecuteInsert inserts one row. values must match the opened columns.
// A duplicate primary key yields a *ProtocolError with IsDuplicateKey.
func (c *Client) ExecuteInsert(ctx context.Context, h Handle, values []string) (bool, error) {
	if err := checkWrite(h); err != nil {
		return false, err
	}
	if len(values) != len(h.def.Columns) {
		return false, fmt.Errorf("%w: got %d values for %d columns", ErrArity, len(values), len(h.def.Columns))
	}
	err := c.run(ctx, "insert", h, func(conn Conn, live Handle) error {
		return conn.Insert(ctx, live.id, values)
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func checkWrite(h Handle) error {
	if h.class != ClassWrite {
		return fmt.Errorf("%w: %s handle used for a write", ErrHandleMode, h.class)
	}
	return nil
}

// Close closes both connections. Later calls fail with ErrClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.handles.Purge()
	c.mu.Unlock()

	var errs []error
	for _, s := range c.slots {
		s.mu.Lock()
		if s.conn != nil {
			if err := s.conn.Close(); err != nil {
				errs = append(errs, err)
			}
			s.conn = nil
		}
		s.mu.Unlock()
	}
	return errors.Join(errs...)
}
