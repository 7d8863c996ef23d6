// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment. It is built once at
// startup and passed by pointer; nothing mutates it afterwards.
type Config struct {
	// GRPCAddr is the address the gRPC server listens on (e.g. :8080).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is postgres://... for production or sqlite://path for local use.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisURL is the revocation store (redis://host:port/db).
	RedisURL string `mapstructure:"REDIS_URL"`
	// JWTPrivateKeyPath is a path to, or inline copy of, the PEM private key (RSA or ECDSA P-256).
	JWTPrivateKeyPath string `mapstructure:"JWT_PRIVATE_KEY_PATH"`
	// JWTPublicKeyPath is a path to, or inline copy of, the matching PEM public key.
	JWTPublicKeyPath string `mapstructure:"JWT_PUBLIC_KEY_PATH"`
	// Token lifetimes: ACCESS_TOKEN_EXPIRE_MINUTES=15 and REFRESH_TOKEN_EXPIRE_DAYS=7 by default.
	AccessTokenExpireMinutes int `mapstructure:"ACCESS_TOKEN_EXPIRE_MINUTES"`
	RefreshTokenExpireDays   int `mapstructure:"REFRESH_TOKEN_EXPIRE_DAYS"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`
	// RevocationKeyPrefix namespaces revoked token ids in Redis.
	RevocationKeyPrefix string `mapstructure:"REVOCATION_KEY_PREFIX"`
	// RevokeAccessOnLogout makes logout and logout-all revoke the session's outstanding access
	// token instead of letting it run to expiry.
	RevokeAccessOnLogout bool `mapstructure:"REVOKE_ACCESS_ON_LOGOUT"`
	// SessionPurgeInterval is how often the worker deletes naturally expired sessions.
	SessionPurgeInterval time.Duration `mapstructure:"SESSION_PURGE_INTERVAL"`

	// OTLPEndpoint is the OTLP gRPC collector; empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	ServiceName  string `mapstructure:"OTEL_SERVICE_NAME"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env.
func Load() (*Config, error) {
	return LoadFile(".env")
}

// LoadFile is Load with an explicit env file path.
func LoadFile(envFile string) (*Config, error) {
	v := viper.New()

	if envFile != "" {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
		_ = v.ReadInConfig() // ignore missing file
	}

	v.AutomaticEnv()

	v.SetDefault("GRPC_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("JWT_PRIVATE_KEY_PATH", "")
	v.SetDefault("JWT_PUBLIC_KEY_PATH", "")
	v.SetDefault("ACCESS_TOKEN_EXPIRE_MINUTES", 15)
	v.SetDefault("REFRESH_TOKEN_EXPIRE_DAYS", 7)
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("REVOCATION_KEY_PREFIX", "blacklist:")
	v.SetDefault("REVOKE_ACCESS_ON_LOGOUT", true)
	v.SetDefault("SESSION_PURGE_INTERVAL", "1h")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "identity-service")
	v.SetDefault("APP_ENV", "development")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// maxTokenDays bounds both token lifetimes so their durations cannot overflow.
const maxTokenDays = 3650

func (c *Config) validate() error {
	if c.GRPCAddr == "" {
		return errors.New("config: GRPC_ADDR must be set")
	}
	if c.AccessTokenExpireMinutes <= 0 || c.AccessTokenExpireMinutes > maxTokenDays*24*60 {
		return fmt.Errorf("config: ACCESS_TOKEN_EXPIRE_MINUTES must be between 1 and %d", maxTokenDays*24*60)
	}
	if c.RefreshTokenExpireDays <= 0 || c.RefreshTokenExpireDays > maxTokenDays {
		return fmt.Errorf("config: REFRESH_TOKEN_EXPIRE_DAYS must be between 1 and %d", maxTokenDays)
	}
	if c.RefreshTTL() <= c.AccessTTL() {
		return errors.New("config: refresh token lifetime must exceed access token lifetime")
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if c.SessionPurgeInterval <= 0 {
		return errors.New("config: SESSION_PURGE_INTERVAL must be positive")
	}
	if c.RevocationKeyPrefix == "" {
		return errors.New("config: REVOCATION_KEY_PREFIX must not be empty")
	}
	return nil
}

// RequireAuth checks the settings every binary that builds the auth service needs.
func (c *Config) RequireAuth() error {
	var missing []error
	if c.JWTPrivateKeyPath == "" {
		missing = append(missing, errors.New("JWT_PRIVATE_KEY_PATH"))
	}
	if c.JWTPublicKeyPath == "" {
		missing = append(missing, errors.New("JWT_PUBLIC_KEY_PATH"))
	}
	if c.DatabaseURL == "" {
		missing = append(missing, errors.New("DATABASE_URL"))
	}
	if c.RedisURL == "" {
		missing = append(missing, errors.New("REDIS_URL"))
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: required settings not set: %w", errors.Join(missing...))
	}
	return nil
}

// AccessTTL is the access-token lifetime.
func (c *Config) AccessTTL() time.Duration {
	return time.Duration(c.AccessTokenExpireMinutes) * time.Minute
}

// RefreshTTL is the refresh-token lifetime.
func (c *Config) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshTokenExpireDays) * 24 * time.Hour
}
