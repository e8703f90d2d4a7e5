package rpc

import (
	"context"
	"strings"
	"time"

	"google.golang.org/grpc"

	"github.com/nexuscore/core/internal/corelog"
)

// LoggingInterceptor logs every unary RPC's method, duration, and outcome,
// grounded on the teacher's pkg/api.ReadOnlyInterceptor (also a
// grpc.UnaryServerInterceptor wrapping info.FullMethod) but generalized
// from an access-control check to structured logging: this surface is a
// single-user local daemon socket, not a multi-tenant cluster endpoint, so
// there is no read-only/read-write split to enforce here.
func LoggingInterceptor() grpc.UnaryServerInterceptor {
	logger := corelog.WithComponent("rpc.server")
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		method := methodName(info.FullMethod)
		start := time.Now()
		resp, err := handler(ctx, req)
		event := logger.Info()
		if err != nil {
			event = logger.Error().Err(err)
		}
		event.Str("method", method).Dur("elapsed", time.Since(start)).Msg("rpc call")
		return resp, err
	}
}

func methodName(fullMethod string) string {
	parts := strings.Split(fullMethod, "/")
	return parts[len(parts)-1]
}
