package postgres

import "time"

// Pool defaults. Key lookups are single-row reads on an indexed hash, so a
// handful of connections covers the request path.
const (
	DefaultMaxConns        int32 = 4
	DefaultMaxConnLifetime       = 30 * time.Minute
	DefaultMaxConnIdleTime       = 5 * time.Minute
)

// Config configures the key store connection pool.
type Config struct {
	// DSN is a libpq connection string or postgres:// URL.
	DSN string

	// MaxConns caps the pool. Default: DefaultMaxConns.
	MaxConns int32

	// MinConns connections are kept open while idle. Zero keeps none.
	MinConns int32

	// MaxConnLifetime recycles connections after this age.
	MaxConnLifetime time.Duration

	// MaxConnIdleTime closes connections unused for this long.
	MaxConnIdleTime time.Duration

	// MigrateOnStart applies pending schema migrations in New.
	MigrateOnStart bool
}

// withDefaults returns c with unset pool limits filled in.
func (c Config) withDefaults() Config {
	if c.MaxConns <= 0 {
		c.MaxConns = DefaultMaxConns
	}
	if c.MinConns > c.MaxConns {
		c.MinConns = c.MaxConns
	}
	if c.MaxConnLifetime <= 0 {
		c.MaxConnLifetime = DefaultMaxConnLifetime
	}
	if c.MaxConnIdleTime <= 0 {
		c.MaxConnIdleTime = DefaultMaxConnIdleTime
	}
	return c
}
