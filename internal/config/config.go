// Package config loads process configuration from the environment.
//
// Every setting has an env var and, except JWT_SECRET, a default that is
// fine for local development:
//
//	PORT=8080 STORE_DRIVER=sqlite DB_PATH=data/users.db TOKEN_TTL=15m
//
// Config is read once in main and passed into constructors. Nothing else in
// the module reads the environment.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"golang.org/x/crypto/bcrypt"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

const minSecretLength = 16

type Config struct {
	Port     int        `env:"PORT"      envDefault:"8080"`
	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"info"`

	StoreDriver   string `env:"STORE_DRIVER"   envDefault:"sqlite"`
	DBPath        string `env:"DB_PATH"        envDefault:"data/users.db"`
	DatabaseDSN   string `env:"DATABASE_DSN"`
	MongoURI      string `env:"MONGO_URI"`
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"app"`

	// JWTSecret signs session tokens. Generate with: openssl rand -hex 32
	JWTSecret  string        `env:"JWT_SECRET,required"`
	TokenTTL   time.Duration `env:"TOKEN_TTL"   envDefault:"15m"`
	BcryptCost int           `env:"BCRYPT_COST" envDefault:"12"`

	// BcryptConcurrency caps simultaneous bcrypt computations; 0 means GOMAXPROCS.
	BcryptConcurrency int `env:"BCRYPT_CONCURRENCY" envDefault:"0"`

	CookieDomain string `env:"COOKIE_DOMAIN"`
	CookieSecure bool   `env:"COOKIE_SECURE" envDefault:"false"`

	// PhoneRegion is the default region for phone numbers given without a
	// leading +country code.
	PhoneRegion string `env:"PHONE_REGION" envDefault:"US"`

	// OTELEndpoint enables tracing when set, e.g. http://localhost:4318.
	OTELEndpoint string `env:"OTEL_ENDPOINT"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first setting that cannot work.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: PORT %d out of range", c.Port)
	}

	switch c.StoreDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("config: DB_PATH is required for the %s driver", c.StoreDriver)
		}
	case DriverPostgres:
		if c.DatabaseDSN == "" {
			return fmt.Errorf("config: DATABASE_DSN is required for the %s driver", c.StoreDriver)
		}
	case DriverMongo:
		if c.MongoURI == "" || c.MongoDatabase == "" {
			return fmt.Errorf("config: MONGO_URI and MONGO_DATABASE are required for the %s driver", c.StoreDriver)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("config: unknown STORE_DRIVER %q", c.StoreDriver)
	}

	if len(c.JWTSecret) < minSecretLength {
		return fmt.Errorf("config: JWT_SECRET must be at least %d characters", minSecretLength)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("config: TOKEN_TTL must be positive, got %s", c.TokenTTL)
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("config: BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if c.BcryptConcurrency < 0 {
		return fmt.Errorf("config: BCRYPT_CONCURRENCY must not be negative, got %d", c.BcryptConcurrency)
	}
	return nil
}
