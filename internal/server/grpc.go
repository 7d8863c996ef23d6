// Package server builds the gRPC server: health service, OTel stats handler, correlation and
// bearer-token interceptors.
package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"identity-service/internal/server/interceptors"
	"identity-service/internal/telemetry"
)

// Deps holds the server's dependencies.
type Deps struct {
	// Health is the health service whose status the readiness checker flips. If nil, a new
	// server reporting SERVING is registered.
	Health *health.Server
	// Auth validates bearer tokens for non-public methods. If nil, no auth interceptor is installed.
	Auth interceptors.Authenticator
	// Events receives access_denied events. May be nil.
	Events telemetry.EventEmitter
	// PublicMethods are full method names reachable without a token, in addition to the health methods.
	PublicMethods []string
}

// PublicMethods returns the full method names that never require a bearer token.
func PublicMethods(extra ...string) map[string]bool {
	m := map[string]bool{
		grpc_health_v1.Health_Check_FullMethodName: true,
		grpc_health_v1.Health_Watch_FullMethodName: true,
	}
	for _, name := range extra {
		m[name] = true
	}
	return m
}

// NewGRPCServer returns a server with the stats handler and interceptors installed and all
// services registered.
func NewGRPCServer(deps Deps) *grpc.Server {
	unary := []grpc.UnaryServerInterceptor{interceptors.CorrelationUnary()}
	if deps.Auth != nil {
		unary = append(unary, interceptors.AuthUnary(deps.Auth, PublicMethods(deps.PublicMethods...), deps.Events))
	}
	s := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(unary...),
	)
	RegisterServices(s, deps)
	return s
}

// RegisterServices registers the gRPC services with s.
func RegisterServices(s grpc.ServiceRegistrar, deps Deps) {
	hs := deps.Health
	if hs == nil {
		hs = health.NewServer()
		hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	}
	grpc_health_v1.RegisterHealthServer(s, hs)
}
