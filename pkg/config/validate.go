package config

import (
	"errors"
	"fmt"
	"slices"

	"github.com/rhuss/gatekeeper/pkg/auth/basic"
)

// BuiltinStrategies are the labels the server knows how to construct
// from configuration.
var BuiltinStrategies = []string{"anonymous", "apikey", "basic", "jwt"}

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port))
	}

	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level must be one of trace, debug, info, warn, error, got %q", c.Logging.Level))
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be \"text\" or \"json\", got %q", c.Logging.Format))
	}

	switch c.Auth.DefaultDecision {
	case "reject", "accept":
	default:
		errs = append(errs, fmt.Errorf("auth.default_decision must be \"reject\" or \"accept\", got %q", c.Auth.DefaultDecision))
	}

	if len(c.Auth.Strategies) == 0 {
		errs = append(errs, errors.New("auth.strategies must list at least one strategy"))
	}
	for i, label := range c.Auth.Strategies {
		if !slices.Contains(BuiltinStrategies, label) {
			errs = append(errs, fmt.Errorf("auth.strategies[%d]: unknown strategy %q", i, label))
		}
	}

	if c.uses("apikey") {
		if len(c.Auth.APIKeys) == 0 && c.Auth.KeyStore.Type == "" {
			errs = append(errs, errors.New("auth.api_keys or auth.key_store is required when the apikey strategy is enabled"))
		}
		for i, k := range c.Auth.APIKeys {
			if k.Key == "" {
				errs = append(errs, fmt.Errorf("auth.api_keys[%d]: key or key_file is required", i))
			}
			if k.Subject == "" {
				errs = append(errs, fmt.Errorf("auth.api_keys[%d]: subject is required", i))
			}
		}
	}

	if c.uses("basic") {
		if len(c.Auth.Basic.Users) == 0 {
			errs = append(errs, errors.New("auth.basic.users is required when the basic strategy is enabled"))
		}
		for i, u := range c.Auth.Basic.Users {
			if u.Username == "" {
				errs = append(errs, fmt.Errorf("auth.basic.users[%d]: username is required", i))
			}
			if u.PasswordHash == "" {
				errs = append(errs, fmt.Errorf("auth.basic.users[%d]: password_hash or password_hash_file is required", i))
			} else if err := basic.CheckHash(u.PasswordHash); err != nil {
				errs = append(errs, fmt.Errorf("auth.basic.users[%d].password_hash: %w", i, err))
			}
		}
	}

	if c.uses("jwt") && c.Auth.JWT.JWKSURL == "" {
		errs = append(errs, errors.New("auth.jwt.jwks_url is required when the jwt strategy is enabled"))
	}

	switch c.Auth.KeyStore.Type {
	case "", "memory":
	case "postgres":
		if c.Auth.KeyStore.Postgres.DSN == "" {
			errs = append(errs, errors.New("auth.key_store.postgres.dsn or dsn_file is required for the postgres key store"))
		}
		if c.Auth.KeyStore.Postgres.MaxConns < 0 {
			errs = append(errs, fmt.Errorf("auth.key_store.postgres.max_conns must be >= 0, got %d", c.Auth.KeyStore.Postgres.MaxConns))
		}
	default:
		errs = append(errs, fmt.Errorf("auth.key_store.type must be \"memory\" or \"postgres\", got %q", c.Auth.KeyStore.Type))
	}

	if c.Auth.RateLimit.DefaultRPM < 0 {
		errs = append(errs, fmt.Errorf("auth.rate_limit.default_rpm must be >= 0, got %d", c.Auth.RateLimit.DefaultRPM))
	}
	for tier, rpm := range c.Auth.RateLimit.Tiers {
		if rpm < 0 {
			errs = append(errs, fmt.Errorf("auth.rate_limit.tiers[%s] must be >= 0, got %d", tier, rpm))
		}
	}

	return errors.Join(errs...)
}

// uses reports whether label appears in the strategy chain.
func (c *Config) uses(label string) bool {
	return slices.Contains(c.Auth.Strategies, label)
}
