package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "GATEKEEPER"

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, GATEKEEPER_CONFIG env, ./config.yaml, /etc/gatekeeper/config.yaml)
//  3. GATEKEEPER_* environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. GATEKEEPER_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/gatekeeper/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}

	if envPath := os.Getenv(EnvPrefix + "_CONFIG"); envPath != "" {
		return envPath
	}

	candidates := []string{
		"config.yaml",
		"/etc/gatekeeper/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// envOverrides is decoded from GATEKEEPER_* variables. Zero values mean
// the variable was not set.
type envOverrides struct {
	Port            int      `split_words:"true"`
	Strategies      []string `split_words:"true"`
	DefaultDecision string   `split_words:"true"`
	JWKSURL         string   `envconfig:"JWKS_URL"`
	JWTIssuer       string   `envconfig:"JWT_ISSUER"`
	JWTAudience     string   `envconfig:"JWT_AUDIENCE"`
	APIKeys         string   `split_words:"true"` // JSON array of API key entries
	LogLevel        string   `split_words:"true"`
	LogFormat       string   `split_words:"true"`
	KeyStore        string   `split_words:"true"`
	PostgresDSN     string   `envconfig:"POSTGRES_DSN"`
}

// applyEnvOverrides maps GATEKEEPER_* environment variables onto cfg.
func applyEnvOverrides(cfg *Config) error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return err
	}

	if env.Port != 0 {
		cfg.Server.Port = env.Port
	}
	if len(env.Strategies) > 0 {
		labels := make([]string, 0, len(env.Strategies))
		for _, s := range env.Strategies {
			if s = strings.TrimSpace(s); s != "" {
				labels = append(labels, s)
			}
		}
		cfg.Auth.Strategies = labels
	}
	if env.DefaultDecision != "" {
		cfg.Auth.DefaultDecision = env.DefaultDecision
	}
	if env.JWKSURL != "" {
		cfg.Auth.JWT.JWKSURL = env.JWKSURL
	}
	if env.JWTIssuer != "" {
		cfg.Auth.JWT.Issuer = env.JWTIssuer
	}
	if env.JWTAudience != "" {
		cfg.Auth.JWT.Audience = env.JWTAudience
	}
	if env.LogLevel != "" {
		cfg.Logging.Level = env.LogLevel
	}
	if env.LogFormat != "" {
		cfg.Logging.Format = env.LogFormat
	}

	if env.KeyStore != "" {
		cfg.Auth.KeyStore.Type = env.KeyStore
	}
	if env.PostgresDSN != "" {
		cfg.Auth.KeyStore.Postgres.DSN = env.PostgresDSN
	}

	if env.APIKeys != "" {
		keys, err := parseAPIKeysJSON(env.APIKeys)
		if err != nil {
			return err
		}
		cfg.Auth.APIKeys = keys
	}

	return nil
}

// parseAPIKeysJSON parses a JSON array of API key configurations.
func parseAPIKeysJSON(jsonStr string) ([]APIKeyConfig, error) {
	var keys []APIKeyConfig
	if err := json.Unmarshal([]byte(jsonStr), &keys); err != nil {
		return nil, fmt.Errorf("parsing %s_API_KEYS: %w", EnvPrefix, err)
	}
	return keys, nil
}

// resolveFileReferences reads _file fields and populates the corresponding value fields.
// For each field ending in _file, if the value field is empty and the file field is set,
// the file is read, whitespace is trimmed, and the value field is populated.
func resolveFileReferences(cfg *Config) error {
	for i := range cfg.Auth.APIKeys {
		k := &cfg.Auth.APIKeys[i]
		if k.KeyFile != "" && k.Key == "" {
			val, err := readSecretFile(k.KeyFile)
			if err != nil {
				return fmt.Errorf("auth.api_keys[%d].key_file: %w", i, err)
			}
			k.Key = val
		}
	}

	for i := range cfg.Auth.Basic.Users {
		u := &cfg.Auth.Basic.Users[i]
		if u.PasswordHashFile != "" && u.PasswordHash == "" {
			val, err := readSecretFile(u.PasswordHashFile)
			if err != nil {
				return fmt.Errorf("auth.basic.users[%d].password_hash_file: %w", i, err)
			}
			u.PasswordHash = val
		}
	}

	pg := &cfg.Auth.KeyStore.Postgres
	if pg.DSNFile != "" && pg.DSN == "" {
		val, err := readSecretFile(pg.DSNFile)
		if err != nil {
			return fmt.Errorf("auth.key_store.postgres.dsn_file: %w", err)
		}
		pg.DSN = val
	}

	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
