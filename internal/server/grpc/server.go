// Package grpc serves hscache.v1.Cache on top of a registry of caches.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/gohs/internal/logging"
	"github.com/dmitrijs2005/gohs/pkg/cacherpc"
	"github.com/dmitrijs2005/gohs/pkg/hscache"
	"google.golang.org/grpc"
)

// CacheProvider hands out the cache of a config group; "" is the default
// group. *registry.Registry[*hscache.Cache] satisfies it.
type CacheProvider interface {
	Get(ctx context.Context, group string) (*hscache.Cache, error)
	DefaultGroup() string
}

type GRPCServer struct {
	address   string
	caches    CacheProvider
	logger    logging.Logger
	jwtSecret []byte
}

var _ cacherpc.CacheServer = (*GRPCServer)(nil)

// NewGRPCServer builds a server. An empty secretKey turns token checks off.
func NewGRPCServer(a string, l logging.Logger, caches CacheProvider, secretKey string) *GRPCServer {
	return &GRPCServer{
		address:   a,
		logger:    l.With("module", "grpc_server"),
		caches:    caches,
		jwtSecret: []byte(secretKey),
	}
}

// Run listens on the configured address and serves until ctx is done.
func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is done, then stops
// gracefully.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor, s.accessTokenInterceptor))
	cacherpc.RegisterCacheServer(srv, s)

	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "Stopping gRPC server...")
			srv.GracefulStop()
		case <-stopped:
		}
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	if err := srv.Serve(lis); err != nil {
		return err
	}
	return nil
}
