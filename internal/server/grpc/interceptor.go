package grpc

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/gohs/internal/server/auth"
	"github.com/dmitrijs2005/gohs/pkg/cacherpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type ctxKey string

const subjectKey ctxKey = "subject"

// mutating lists the methods that need a token when a secret is set.
var mutating = map[string]bool{
	cacherpc.MethodSet:            true,
	cacherpc.MethodDelete:         true,
	cacherpc.MethodDeleteAll:      true,
	cacherpc.MethodGarbageCollect: true,
}

// SubjectFromContext returns the token subject of an authenticated call.
func SubjectFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(subjectKey).(string)
	return v, ok
}

func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if len(s.jwtSecret) == 0 || !mutating[info.FullMethod] {
		return handler(ctx, req)
	}

	var accessToken string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(cacherpc.AccessTokenHeaderName); len(values) > 0 {
			accessToken = values[0]
		}
	}
	if accessToken == "" {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	claims, err := auth.ParseToken(accessToken, s.jwtSecret)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			return nil, status.Error(codes.Unauthenticated, auth.ErrTokenExpired.Error())
		}
		return nil, status.Error(codes.Unauthenticated, auth.ErrInvalidToken.Error())
	}

	group := s.group(ctx)
	if !claims.Allows(group) {
		return nil, status.Errorf(codes.PermissionDenied, "token does not cover group %q", group)
	}

	return handler(context.WithValue(ctx, subjectKey, claims.Subject), req)
}

func (s *GRPCServer) loggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	s.logger.Debug(ctx, "rpc",
		"method", info.FullMethod,
		"group", s.group(ctx),
		"code", status.Code(err).String(),
		"duration", time.Since(start))
	return resp, err
}
