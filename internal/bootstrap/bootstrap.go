// Package bootstrap wires config, telemetry, keys, storage, Redis and the auth service for the
// binaries under cmd/.
package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"

	"identity-service/internal/auth/service"
	"identity-service/internal/config"
	"identity-service/internal/db"
	"identity-service/internal/health"
	"identity-service/internal/revocation"
	"identity-service/internal/security"
	sessionrepo "identity-service/internal/session/repository"
	"identity-service/internal/telemetry"
	otelsetup "identity-service/internal/telemetry/otel"
	"identity-service/internal/token"
	userrepo "identity-service/internal/user/repository"
)

// App holds the shared dependencies. Close releases them in reverse order of creation.
type App struct {
	Config    *config.Config
	Telemetry *otelsetup.Providers
	Events    telemetry.EventEmitter
	// RequestEvents is Events behind a background queue, for interceptors on the RPC path.
	RequestEvents *telemetry.Async

	DB       *sql.DB
	Dialect  db.Dialect
	Users    *userrepo.SQLRepository
	Sessions *sessionrepo.SQLRepository

	Redis    *redis.Client
	Registry *revocation.RedisRegistry
	Auth     *service.AuthService

	closers []func(context.Context) error
}

// Open builds the full auth stack. cfg must satisfy RequireAuth.
func Open(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.RequireAuth(); err != nil {
		return nil, err
	}
	app, err := OpenStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := app.openAuth(); err != nil {
		_ = app.Close(ctx)
		return nil, err
	}
	return app, nil
}

// OpenStorage builds telemetry and the SQL repositories only, for binaries that never issue
// or validate tokens (worker).
func OpenStorage(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("bootstrap: DATABASE_URL is not set")
	}
	app := &App{Config: cfg}

	providers, err := otelsetup.NewProviders(ctx, otelsetup.Options{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.ServiceName,
		Environment: cfg.Env,
		Insecure:    cfg.OTLPInsecure,
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: telemetry: %w", err)
	}
	providers.SetGlobal()
	app.Telemetry = providers
	app.Events = otelsetup.NewEventEmitter(providers.LoggerProvider)
	app.RequestEvents = telemetry.NewAsync(app.Events)
	app.closers = append(app.closers, providers.Shutdown, func(ctx context.Context) error {
		drainCtx, cancel := context.WithTimeout(ctx, telemetry.ShutdownDrainDuration)
		defer cancel()
		return app.RequestEvents.Drain(drainCtx)
	})

	conn, dialect, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		_ = app.Close(ctx)
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	app.DB, app.Dialect = conn, dialect
	app.closers = append(app.closers, func(context.Context) error { return conn.Close() })
	app.Users = userrepo.NewSQLRepository(conn, dialect)
	app.Sessions = sessionrepo.NewSQLRepository(conn, dialect)
	return app, nil
}

func (a *App) openAuth() error {
	cfg := a.Config
	signer, pub, err := security.LoadKeyPair(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath)
	if err != nil {
		return fmt.Errorf("bootstrap: signing keys: %w", err)
	}
	codec, err := token.NewCodec(signer, pub)
	if err != nil {
		return fmt.Errorf("bootstrap: token codec: %w", err)
	}

	rdb, err := revocation.NewClient(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	a.Redis = rdb
	a.closers = append(a.closers, func(context.Context) error { return rdb.Close() })
	a.Registry = revocation.NewRedisRegistry(rdb, cfg.RevocationKeyPrefix, nil)

	a.Auth, err = service.NewAuthService(
		a.Users,
		a.Sessions,
		a.Registry,
		security.NewHasher(cfg.BcryptCost),
		codec,
		service.Config{
			AccessTTL:            cfg.AccessTTL(),
			RefreshTTL:           cfg.RefreshTTL(),
			RevokeAccessOnLogout: cfg.RevokeAccessOnLogout,
		},
		service.WithTelemetry(a.Telemetry.TracerProvider, a.Telemetry.MeterProvider),
		service.WithEventEmitter(a.Events),
	)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	log.Printf("bootstrap: auth service ready (alg %s, storage %s)", security.KeyAlg(pub), a.Dialect)
	return nil
}

// HealthChecks returns the readiness probes for the dependencies this App opened.
func (a *App) HealthChecks() []health.Check {
	var checks []health.Check
	if a.DB != nil {
		checks = append(checks, health.Check{Name: "database", Ping: a.DB.PingContext})
	}
	if a.Registry != nil {
		checks = append(checks, health.Check{Name: "redis", Ping: a.Registry.Ping})
	}
	return checks
}

// Close releases everything Open created. Safe to call more than once.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
