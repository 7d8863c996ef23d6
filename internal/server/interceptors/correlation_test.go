package interceptors

import (
	"context"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"identity-service/internal/auth/service"
)

func TestCorrelationUnary(t *testing.T) {
	interceptor := CorrelationUnary()
	capture := func(ctx context.Context) string {
		var got string
		_, err := interceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/x/Y"},
			func(ctx context.Context, _ interface{}) (interface{}, error) {
				got, _ = service.CorrelationIDFrom(ctx)
				return nil, nil
			})
		if err != nil {
			t.Fatalf("interceptor: %v", err)
		}
		return got
	}

	t.Run("propagates caller id", func(t *testing.T) {
		ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(CorrelationHeader, "req-7"))
		if got := capture(ctx); got != "req-7" {
			t.Errorf("correlation id = %q, want req-7", got)
		}
	})
	t.Run("generates when absent", func(t *testing.T) {
		a, b := capture(context.Background()), capture(context.Background())
		if a == "" || b == "" || a == b {
			t.Errorf("generated ids = %q, %q; want distinct non-empty", a, b)
		}
	})
}
