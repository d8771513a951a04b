package hs

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/gohs/pkg/hs/wire"
)

// TCPDialer dials the HandlerSocket read or write port from cfg and
// authenticates when cfg.AuthSecret is set.
func TCPDialer(cfg Config) DialFunc {
	return func(ctx context.Context, class ModeClass) (Conn, error) {
		port := cfg.PortRead
		if class == ClassWrite {
			port = cfg.PortWrite
		}
		addr := net.JoinHostPort(cfg.Host, strconv.Itoa(port))

		d := net.Dialer{Timeout: cfg.Timeout, KeepAlive: 30 * time.Second}
		nc, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", addr, err)
		}

		conn := NewConn(nc, cfg.Timeout)
		if cfg.AuthSecret != "" {
			if err := conn.Auth(ctx, cfg.AuthSecret); err != nil {
				_ = conn.Close()
				return nil, err
			}
		}
		return conn, nil
	}
}

// TCPConn speaks the HandlerSocket text protocol over a net.Conn.
type TCPConn struct {
	nc      net.Conn
	r       *wire.Reader
	timeout time.Duration
}

// NewConn wraps an established connection. timeout bounds each exchange
// when ctx carries no deadline; 0 disables it.
func NewConn(nc net.Conn, timeout time.Duration) *TCPConn {
	return &TCPConn{nc: nc, r: wire.NewReader(nc, 0), timeout: timeout}
}

func (c *TCPConn) roundTrip(ctx context.Context, op string, req *wire.Request) (wire.Response, error) {
	deadline, ok := ctx.Deadline()
	if !ok && c.timeout > 0 {
		deadline = time.Now().Add(c.timeout)
	}
	if err := c.nc.SetDeadline(deadline); err != nil {
		return wire.Response{}, err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = c.nc.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	if _, err := c.nc.Write(req.Bytes()); err != nil {
		return wire.Response{}, err
	}
	resp, err := c.r.ReadResponse()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return wire.Response{}, ctxErr
		}
		return wire.Response{}, err
	}
	if !resp.OK() {
		return resp, Reject(op, resp.Code, resp.Message)
	}
	return resp, nil
}

// Auth sends the "A 1 <secret>" handshake.
func (c *TCPConn) Auth(ctx context.Context, secret string) error {
	_, err := c.roundTrip(ctx, "auth", wire.NewRequest("A", "1", secret))
	return err
}

func (c *TCPConn) OpenIndex(ctx context.Context, id int, db string, def IndexDefinition) error {
	req := wire.NewRequest("P").AddInt(id).
		Add(db).Add(def.Table).Add(def.IndexName()).
		Add(strings.Join(def.Columns, ","))
	if len(def.FilterColumns) > 0 {
		req.Add(strings.Join(def.FilterColumns, ","))
	}
	_, err := c.roundTrip(ctx, "open_index", req)
	return err
}

func findTokens(r FindRequest) *wire.Request {
	req := wire.NewRequest().AddInt(r.IndexID).Add(string(r.Op)).AddInt(len(r.Keys))
	for _, k := range r.Keys {
		req.Add(k)
	}
	req.AddInt(r.Limit).AddInt(r.Offset)
	for _, f := range r.Filters {
		req.Add(string(f.Type)).Add(string(f.Op)).AddInt(f.Column).Add(f.Value)
	}
	return req
}

func (c *TCPConn) Find(ctx context.Context, r FindRequest) ([]Row, error) {
	resp, err := c.roundTrip(ctx, "find", findTokens(r))
	if err != nil {
		return nil, err
	}
	raw := resp.Rows()
	if len(raw) == 0 {
		return nil, nil
	}
	rows := make([]Row, len(raw))
	for i, r := range raw {
		rows[i] = r
	}
	return rows, nil
}

func (c *TCPConn) Modify(ctx context.Context, r FindRequest, mod Modification) (int, error) {
	req := findTokens(r).Add(string(mod.Op))
	for _, v := range mod.Values {
		req.Add(v)
	}
	resp, err := c.roundTrip(ctx, "modify", req)
	if err != nil {
		return 0, err
	}
	return resp.Count()
}

func (c *TCPConn) Insert(ctx context.Context, id int, values []string) error {
	req := wire.NewRequest().AddInt(id).Add("+").AddInt(len(values))
	for _, v := range values {
		req.Add(v)
	}
	_, err := c.roundTrip(ctx, "insert", req)
	return err
}

func (c *TCPConn) Close() error {
	return c.nc.Close()
}
