// Package postgres provides a PostgreSQL implementation of storage.KeyStore.
// It uses pgx/v5 for connection pooling; identity metadata is kept as JSONB.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/gatekeeper/pkg/storage"
)

// uniqueViolation is the SQLSTATE for unique constraint violations.
const uniqueViolation = "23505"

const selectColumns = `id, key_hash, subject, tenant_id, service_tier, scopes, metadata, created_at, revoked_at`

// Store is a PostgreSQL-backed KeyStore.
type Store struct {
	pool *pgxpool.Pool
}

// Ensure Store implements storage.KeyStore at compile time.
var _ storage.KeyStore = (*Store)(nil)

// New creates a new PostgreSQL store with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg = cfg.withDefaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

// SaveKey inserts a new key.
func (s *Store) SaveKey(ctx context.Context, rec *storage.KeyRecord) error {
	var metadataJSON []byte
	if len(rec.Identity.Metadata) > 0 {
		var err error
		metadataJSON, err = json.Marshal(rec.Identity.Metadata)
		if err != nil {
			return fmt.Errorf("marshaling metadata: %w", err)
		}
	}

	scopes := rec.Identity.Scopes
	if scopes == nil {
		scopes = []string{}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO api_keys (
			id, key_hash, subject, tenant_id, service_tier,
			scopes, metadata, created_at, revoked_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		rec.ID, rec.Hash, rec.Identity.Subject, rec.Identity.TenantID(), rec.Identity.ServiceTier,
		scopes, nullJSON(metadataJSON), rec.CreatedAt, rec.RevokedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("inserting key: %w", err)
	}

	return nil
}

// LookupKey returns the active key with the given hash.
func (s *Store) LookupKey(ctx context.Context, hash string) (*storage.KeyRecord, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+selectColumns+" FROM api_keys WHERE key_hash = $1 AND revoked_at IS NULL",
		hash,
	)

	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying key: %w", err)
	}
	return rec, nil
}

// RevokeKey sets revoked_at. Scoped by tenant when a tenant is present in
// the context.
func (s *Store) RevokeKey(ctx context.Context, id string) error {
	query := "UPDATE api_keys SET revoked_at = $1 WHERE id = $2 AND revoked_at IS NULL"
	args := []any{time.Now().UTC(), id}

	if tenantID := storage.GetTenant(ctx); tenantID != "" {
		query += " AND tenant_id = $3"
		args = append(args, tenantID)
	}

	result, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("revoking key: %w", err)
	}

	if result.RowsAffected() == 0 {
		return storage.ErrNotFound
	}

	return nil
}

// ListKeys returns the keys visible to the tenant in ctx, oldest first.
func (s *Store) ListKeys(ctx context.Context) ([]storage.KeyRecord, error) {
	query := "SELECT " + selectColumns + " FROM api_keys"
	var args []any

	if tenantID := storage.GetTenant(ctx); tenantID != "" {
		query += " WHERE tenant_id = $1"
		args = append(args, tenantID)
	}
	query += " ORDER BY created_at, id"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing keys: %w", err)
	}
	defer rows.Close()

	var result []storage.KeyRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning key: %w", err)
		}
		result = append(result, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing keys: %w", err)
	}

	return result, nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func scanRecord(row pgx.Row) (*storage.KeyRecord, error) {
	var (
		rec          storage.KeyRecord
		tenantID     string
		metadataJSON []byte
	)

	err := row.Scan(
		&rec.ID, &rec.Hash, &rec.Identity.Subject, &tenantID, &rec.Identity.ServiceTier,
		&rec.Identity.Scopes, &metadataJSON, &rec.CreatedAt, &rec.RevokedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &rec.Identity.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling metadata: %w", err)
		}
	}
	if tenantID != "" {
		if rec.Identity.Metadata == nil {
			rec.Identity.Metadata = map[string]string{}
		}
		rec.Identity.Metadata["tenant_id"] = tenantID
	}
	if len(rec.Identity.Scopes) == 0 {
		rec.Identity.Scopes = nil
	}

	return &rec, nil
}

// nullJSON converts nil/empty byte slices to nil for nullable JSONB columns.
func nullJSON(b []byte) *[]byte {
	if len(b) == 0 {
		return nil
	}
	return &b
}

// isDuplicateKey checks if the error is a PostgreSQL unique violation.
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
