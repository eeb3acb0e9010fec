// Package config provides unified configuration for the gatekeeper server.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (GATEKEEPER_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import "time"

// Config holds all configuration for the gatekeeper server.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Logging       LoggingConfig       `yaml:"logging"`
	Auth          AuthConfig          `yaml:"auth"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`          // default: 8080
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"` // default: 30s
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // trace, debug, info, warn, error; default: info
	Format string `yaml:"format"` // text or json; default: text
	// Debug lists debug categories, e.g. "registry,dispatch" or "all".
	Debug string `yaml:"debug"`
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// AuthConfig holds the strategy chain and the settings of each builtin
// strategy.
type AuthConfig struct {
	// Strategies lists the labels tried in order for every request.
	Strategies []string `yaml:"strategies"`
	// DefaultDecision applies when every strategy abstains: "reject" or "accept".
	DefaultDecision string          `yaml:"default_decision"`
	Bypass          []string        `yaml:"bypass"`
	APIKeys         []APIKeyConfig  `yaml:"api_keys"`
	Basic           BasicConfig     `yaml:"basic"`
	JWT             JWTConfig       `yaml:"jwt"`
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
	KeyStore        KeyStoreConfig  `yaml:"key_store"`
}

// KeyStoreConfig selects where managed API keys live.
type KeyStoreConfig struct {
	// Type is "memory" or "postgres". Empty disables managed keys.
	Type     string         `yaml:"type"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"` // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"`
	MigrateOnStart bool   `yaml:"migrate_on_start"`
}

// APIKeyConfig describes a single API key entry.
type APIKeyConfig struct {
	Key         string `yaml:"key" json:"key"`
	KeyFile     string `yaml:"key_file" json:"key_file"` // _file variant for key
	Subject     string `yaml:"subject" json:"subject"`
	TenantID    string `yaml:"tenant_id" json:"tenant_id"`
	ServiceTier string `yaml:"service_tier" json:"service_tier"`
}

// BasicConfig holds the users of the basic strategy.
type BasicConfig struct {
	Users []BasicUserConfig `yaml:"users"`
}

// BasicUserConfig describes one user. PasswordHash is an Argon2id PHC string.
type BasicUserConfig struct {
	Username         string `yaml:"username"`
	PasswordHash     string `yaml:"password_hash"`
	PasswordHashFile string `yaml:"password_hash_file"` // _file variant for password_hash
	Subject          string `yaml:"subject"`
	TenantID         string `yaml:"tenant_id"`
	ServiceTier      string `yaml:"service_tier"`
}

// JWTConfig holds bearer token validation settings.
type JWTConfig struct {
	Issuer      string        `yaml:"issuer"`
	Audience    string        `yaml:"audience"`
	JWKSURL     string        `yaml:"jwks_url"`
	UserClaim   string        `yaml:"user_claim"`   // default: "sub"
	TenantClaim string        `yaml:"tenant_claim"` // default: "tenant_id"
	ScopesClaim string        `yaml:"scopes_claim"` // default: "scope"
	TierClaim   string        `yaml:"tier_claim"`   // default: "tier"
	CacheTTL    time.Duration `yaml:"cache_ttl"`    // default: 1h
	Leeway      time.Duration `yaml:"leeway"`
}

// RateLimitConfig holds per-tier request limits in requests per minute.
// A zero default disables limiting for tiers without an entry.
type RateLimitConfig struct {
	DefaultRPM int            `yaml:"default_rpm"`
	Tiers      map[string]int `yaml:"tiers"`
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Auth: AuthConfig{
			Strategies:      []string{"anonymous"},
			DefaultDecision: "reject",
			Bypass:          []string{"/healthz", "/metrics"},
			JWT: JWTConfig{
				UserClaim:   "sub",
				TenantClaim: "tenant_id",
				ScopesClaim: "scope",
				TierClaim:   "tier",
				CacheTTL:    time.Hour,
			},
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}
