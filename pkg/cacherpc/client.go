package cacherpc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrUnavailable  = errors.New("cache daemon unavailable")
	ErrInvalid      = errors.New("invalid request")
)

// Client talks to a cache daemon. It is safe for concurrent use.
type Client struct {
	conn        grpc.ClientConnInterface
	closer      func() error
	group       string
	accessToken string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithGroup selects the daemon side config group.
func WithGroup(group string) ClientOption {
	return func(c *Client) { c.group = group }
}

// WithAccessToken attaches a token to every call.
func WithAccessToken(token string) ClientOption {
	return func(c *Client) { c.accessToken = token }
}

// Dial connects to a daemon at target without transport security.
func Dial(target string, opts ...ClientOption) (*Client, error) {
	c := newClient(nil, opts)
	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	c.conn = conn
	c.closer = conn.Close
	return c, nil
}

// NewClient uses an existing connection. Metadata is attached per call.
func NewClient(conn grpc.ClientConnInterface, opts ...ClientOption) *Client {
	return newClient(conn, opts)
}

func newClient(conn grpc.ClientConnInterface, opts []ClientOption) *Client {
	c := &Client{conn: conn, closer: func() error { return nil }}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) outgoing(ctx context.Context) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	if c.group != "" {
		md.Set(GroupHeaderName, c.group)
	}
	if c.accessToken != "" {
		md.Set(AccessTokenHeaderName, c.accessToken)
	}
	return metadata.NewOutgoingContext(ctx, md)
}

func (c *Client) invoke(ctx context.Context, method string, req, reply any) error {
	if err := c.conn.Invoke(c.outgoing(ctx), method, req, reply); err != nil {
		return mapError(err)
	}
	return nil
}

// Get returns the value of id and whether it was found.
func (c *Client) Get(ctx context.Context, id string) ([]byte, bool, error) {
	out := new(wrapperspb.BytesValue)
	err := c.conn.Invoke(c.outgoing(ctx), MethodGet, wrapperspb.String(id), out)
	if status.Code(err) == codes.NotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, mapError(err)
	}
	return out.GetValue(), true, nil
}

func (c *Client) Set(ctx context.Context, id string, value []byte, lifetime time.Duration) error {
	req, err := SetRequest{ID: id, Value: value, Lifetime: lifetime}.Encode()
	if err != nil {
		return err
	}
	return c.invoke(ctx, MethodSet, req, new(emptypb.Empty))
}

func (c *Client) Delete(ctx context.Context, id string) (bool, error) {
	out := new(wrapperspb.BoolValue)
	if err := c.invoke(ctx, MethodDelete, wrapperspb.String(id), out); err != nil {
		return false, err
	}
	return out.GetValue(), nil
}

func (c *Client) DeleteAll(ctx context.Context) (int, error) {
	out := new(wrapperspb.Int64Value)
	if err := c.invoke(ctx, MethodDeleteAll, new(emptypb.Empty), out); err != nil {
		return 0, err
	}
	return int(out.GetValue()), nil
}

func (c *Client) GarbageCollect(ctx context.Context) (int, error) {
	out := new(wrapperspb.Int64Value)
	if err := c.invoke(ctx, MethodGarbageCollect, new(emptypb.Empty), out); err != nil {
		return 0, err
	}
	return int(out.GetValue()), nil
}

// Close closes a connection made by Dial.
func (c *Client) Close() error {
	return c.closer()
}

// mapError keeps the status error in the chain.
func mapError(err error) error {
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
