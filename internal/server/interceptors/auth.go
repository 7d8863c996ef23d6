package interceptors

import (
	"context"
	"log"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"identity-service/internal/auth/service"
	"identity-service/internal/autherr"
	"identity-service/internal/telemetry"
	"identity-service/internal/token"
)

const bearerPrefix = "bearer "

// Authenticator validates access tokens; *service.AuthService implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*token.Claims, error)
}

// AuthUnary returns a unary server interceptor that validates the Bearer (access) token from
// gRPC metadata and stores its claims in the context for protected RPCs.
// publicMethods is the set of full method names that do not require a Bearer token (e.g. the
// health Check). Rejections are reported to emitter as access_denied events; pass a
// *telemetry.Async so the RPC does not wait on export. emitter may be nil.
func AuthUnary(auth Authenticator, publicMethods map[string]bool, emitter telemetry.EventEmitter) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		bearer := extractBearer(ctx)
		public := publicMethods[info.FullMethod]

		if bearer == "" {
			if public {
				return handler(ctx, req)
			}
			deny(ctx, emitter, info.FullMethod, autherr.Kind(autherr.ErrInvalidCredentials))
			return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
		}

		claims, err := auth.Authenticate(ctx, bearer)
		if err != nil {
			if public {
				return handler(ctx, req)
			}
			kind := autherr.Kind(err)
			deny(ctx, emitter, info.FullMethod, kind)
			if kind == "internal" {
				return nil, status.Error(codes.Unavailable, "authorization temporarily unavailable")
			}
			return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
		}
		return handler(WithClaims(ctx, claims), req)
	}
}

func deny(ctx context.Context, emitter telemetry.EventEmitter, method, kind string) {
	ev := &telemetry.AuthEvent{
		Type:    telemetry.EventAccessDenied,
		Outcome: "failure",
		Kind:    kind,
		Detail:  method + " from " + ClientIP(ctx),
		At:      time.Now().UTC(),
	}
	if cid, ok := service.CorrelationIDFrom(ctx); ok {
		ev.CorrelationID = cid
	}
	if emitter == nil {
		return
	}
	if err := emitter.Emit(ctx, ev); err != nil {
		log.Printf("interceptors: emit access_denied: %v", err)
	}
}

// extractBearer returns the Bearer token from ctx metadata, or "" if missing or malformed.
func extractBearer(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	vals := md.Get("authorization")
	if len(vals) == 0 {
		return ""
	}
	v := strings.TrimSpace(vals[0])
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
