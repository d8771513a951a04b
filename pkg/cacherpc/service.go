// Package cacherpc describes the hscache.v1.Cache gRPC service and holds
// its client. Messages are protobuf well-known types so no generated code
// is needed on either side.
//
//	Get(StringValue id)            -> BytesValue      (NotFound on a miss)
//	Set(Struct{id, value, lifetime}) -> Empty  (lifetime in seconds, default 1h)
//	Delete(StringValue id)         -> BoolValue       (whether it existed)
//	DeleteAll(Empty)               -> Int64Value      (entries removed)
//	GarbageCollect(Empty)          -> Int64Value      (entries removed)
//
// The config group is carried in the "group" request metadata, the
// access token in "access_token".
package cacherpc

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/dmitrijs2005/gohs/pkg/hscache"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	ServiceName = "hscache.v1.Cache"

	GroupHeaderName       = "group"
	AccessTokenHeaderName = "access_token"
)

// Full method names, as seen by interceptors.
const (
	MethodGet            = "/" + ServiceName + "/Get"
	MethodSet            = "/" + ServiceName + "/Set"
	MethodDelete         = "/" + ServiceName + "/Delete"
	MethodDeleteAll      = "/" + ServiceName + "/DeleteAll"
	MethodGarbageCollect = "/" + ServiceName + "/GarbageCollect"
)

var ErrBadRequest = errors.New("malformed set request")

// CacheServer is implemented by the daemon.
type CacheServer interface {
	Get(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error)
	Set(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	Delete(context.Context, *wrapperspb.StringValue) (*wrapperspb.BoolValue, error)
	DeleteAll(context.Context, *emptypb.Empty) (*wrapperspb.Int64Value, error)
	GarbageCollect(context.Context, *emptypb.Empty) (*wrapperspb.Int64Value, error)
}

func RegisterCacheServer(s grpc.ServiceRegistrar, srv CacheServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// unary adapts a typed method to a grpc.MethodDesc handler.
func unary[Req any, Resp any](method string, call func(CacheServer, context.Context, *Req) (Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(CacheServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(CacheServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CacheServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Get", Handler: unary(MethodGet, CacheServer.Get)},
		{MethodName: "Set", Handler: unary(MethodSet, CacheServer.Set)},
		{MethodName: "Delete", Handler: unary(MethodDelete, CacheServer.Delete)},
		{MethodName: "DeleteAll", Handler: unary(MethodDeleteAll, CacheServer.DeleteAll)},
		{MethodName: "GarbageCollect", Handler: unary(MethodGarbageCollect, CacheServer.GarbageCollect)},
	},
	Metadata: "hscache/v1/cache.proto",
}

// SetRequest is the decoded form of a Set call.
type SetRequest struct {
	ID       string
	Value    []byte
	Lifetime time.Duration
}

// Encode packs r into a Struct. The value travels base64 encoded and the
// lifetime as whole seconds.
func (r SetRequest) Encode() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"id":       r.ID,
		"value":    base64.StdEncoding.EncodeToString(r.Value),
		"lifetime": r.Lifetime.Seconds(),
	})
}

// DecodeSetRequest reverses Encode.
func DecodeSetRequest(s *structpb.Struct) (SetRequest, error) {
	fields := s.GetFields()
	id := fields["id"].GetStringValue()
	if id == "" {
		return SetRequest{}, fmt.Errorf("%w: id is required", ErrBadRequest)
	}
	value, err := base64.StdEncoding.DecodeString(fields["value"].GetStringValue())
	if err != nil {
		return SetRequest{}, fmt.Errorf("%w: value: %v", ErrBadRequest, err)
	}
	lifetime := hscache.DefaultLifetime
	switch k := fields["lifetime"].GetKind().(type) {
	case nil, *structpb.Value_NullValue:
	case *structpb.Value_NumberValue:
		if lifetime, err = lifetimeOf(k.NumberValue); err != nil {
			return SetRequest{}, err
		}
	default:
		return SetRequest{}, fmt.Errorf("%w: lifetime must be a number", ErrBadRequest)
	}
	return SetRequest{ID: id, Value: value, Lifetime: lifetime}, nil
}

// lifetimeOf converts seconds to a duration. Anything past the cache
// ceiling is cut to just above it so the cache still clamps it.
func lifetimeOf(secs float64) (time.Duration, error) {
	if math.IsNaN(secs) || math.IsInf(secs, 0) {
		return 0, fmt.Errorf("%w: lifetime %v", ErrBadRequest, secs)
	}
	if limit := hscache.Ceiling.Seconds() + 1; secs > limit {
		secs = limit
	}
	if secs <= 0 {
		return 0, nil
	}
	return time.Duration(secs * float64(time.Second)), nil
}
