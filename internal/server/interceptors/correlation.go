package interceptors

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"identity-service/internal/auth/service"
)

// CorrelationHeader carries the request correlation id in both directions.
const CorrelationHeader = "x-correlation-id"

// CorrelationUnary attaches the caller's x-correlation-id (or a fresh one) to the context so
// tokens issued while serving the request carry it as cid, and echoes it in the response header.
func CorrelationUnary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		id := incomingCorrelationID(ctx)
		if id == "" {
			id = uuid.New().String()
		}
		// No transport stream in unit tests; the header is best-effort.
		_ = grpc.SetHeader(ctx, metadata.Pairs(CorrelationHeader, id))
		return handler(service.WithCorrelationID(ctx, id), req)
	}
}

func incomingCorrelationID(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	vals := md.Get(CorrelationHeader)
	if len(vals) == 0 {
		return ""
	}
	return strings.TrimSpace(vals[0])
}
