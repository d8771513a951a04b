package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/gohs/pkg/cacherpc"
	"github.com/dmitrijs2005/gohs/pkg/hs"
	"github.com/dmitrijs2005/gohs/pkg/hscache"
	"github.com/dmitrijs2005/gohs/pkg/registry"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// group returns the group named in the request metadata, or the default.
func (s *GRPCServer) group(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(cacherpc.GroupHeaderName); len(values) > 0 && values[0] != "" {
			return values[0]
		}
	}
	return s.caches.DefaultGroup()
}

func (s *GRPCServer) cache(ctx context.Context) (*hscache.Cache, error) {
	c, err := s.caches.Get(ctx, s.group(ctx))
	if err != nil {
		return nil, s.mapError(ctx, err)
	}
	return c, nil
}

// mapError turns backend errors into status errors. Internal details stay
// in the log.
func (s *GRPCServer) mapError(ctx context.Context, err error) error {
	var pe *hs.ProtocolError
	switch {
	case errors.Is(err, hs.ErrConfiguration):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, registry.ErrClosed), errors.Is(err, hs.ErrClosed):
		return status.Error(codes.Unavailable, "shutting down")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.As(err, &pe) && pe.IsTransport():
		s.logger.Warn(ctx, "backend unreachable", "err", err)
		return status.Error(codes.Unavailable, "backend unavailable")
	default:
		s.logger.Error(ctx, "cache operation failed", "err", err)
		return status.Error(codes.Internal, "internal error")
	}
}

func (s *GRPCServer) Get(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	c, err := s.cache(ctx)
	if err != nil {
		return nil, err
	}

	v, ok, err := c.Get(ctx, req.GetValue())
	if err != nil {
		return nil, s.mapError(ctx, err)
	}
	if !ok {
		return nil, status.Error(codes.NotFound, "not found")
	}
	return wrapperspb.Bytes(v), nil
}

func (s *GRPCServer) Set(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	r, err := cacherpc.DecodeSetRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	c, err := s.cache(ctx)
	if err != nil {
		return nil, err
	}

	if err := c.Set(ctx, r.ID, r.Value, r.Lifetime); err != nil {
		return nil, s.mapError(ctx, err)
	}
	return &emptypb.Empty{}, nil
}

func (s *GRPCServer) Delete(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	c, err := s.cache(ctx)
	if err != nil {
		return nil, err
	}

	deleted, err := c.Delete(ctx, req.GetValue())
	if err != nil {
		return nil, s.mapError(ctx, err)
	}
	return wrapperspb.Bool(deleted), nil
}

func (s *GRPCServer) DeleteAll(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.Int64Value, error) {
	c, err := s.cache(ctx)
	if err != nil {
		return nil, err
	}

	n, err := c.DeleteAll(ctx)
	if err != nil {
		return nil, s.mapError(ctx, err)
	}
	s.logger.Info(ctx, "cache flushed", "group", s.group(ctx), "removed", n)
	return wrapperspb.Int64(int64(n)), nil
}

func (s *GRPCServer) GarbageCollect(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.Int64Value, error) {
	c, err := s.cache(ctx)
	if err != nil {
		return nil, err
	}

	n, err := c.GarbageCollect(ctx)
	if err != nil {
		return nil, s.mapError(ctx, err)
	}
	return wrapperspb.Int64(int64(n)), nil
}
