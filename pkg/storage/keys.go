package storage

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/rhuss/gatekeeper/pkg/auth"
)

// KeyPrefix marks generated secrets so they are recognizable in logs and
// secret scanners.
const KeyPrefix = "gk_"

// KeyRecord is a stored API key.
type KeyRecord struct {
	ID        string        `json:"id"`
	Hash      string        `json:"-"` // hex SHA-256 of the secret
	Identity  auth.Identity `json:"identity"`
	CreatedAt time.Time     `json:"created_at"`
	RevokedAt *time.Time    `json:"revoked_at,omitempty"`
}

// Revoked reports whether the key has been revoked.
func (r *KeyRecord) Revoked() bool {
	return r.RevokedAt != nil
}

// KeyStore persists API keys.
//
// Tenant scoping: ListKeys and RevokeKey only see keys whose tenant matches
// GetTenant(ctx) when a tenant is set. LookupKey is never scoped.
type KeyStore interface {
	// SaveKey stores a new key. Returns ErrConflict if the ID or hash exists.
	SaveKey(ctx context.Context, rec *KeyRecord) error

	// LookupKey returns the active key with the given hash, or ErrNotFound.
	LookupKey(ctx context.Context, hash string) (*KeyRecord, error)

	// RevokeKey marks a key revoked. Returns ErrNotFound if it does not
	// exist or is already revoked.
	RevokeKey(ctx context.Context, id string) error

	// ListKeys returns every key, including revoked ones, oldest first.
	ListKeys(ctx context.Context) ([]KeyRecord, error)

	// Close releases resources held by the store.
	Close() error
}

// HashKey returns the hex SHA-256 digest stores index keys by.
func HashKey(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// GenerateKey creates a new key ID and plaintext secret.
func GenerateKey() (id, secret string, err error) {
	idBytes := make([]byte, 8)
	if _, err := rand.Read(idBytes); err != nil {
		return "", "", err
	}
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", "", err
	}
	return "key_" + hex.EncodeToString(idBytes), KeyPrefix + hex.EncodeToString(secretBytes), nil
}

// NewKeyRecord generates a key for identity. The returned secret is the
// only copy of the plaintext.
func NewKeyRecord(identity auth.Identity) (*KeyRecord, string, error) {
	id, secret, err := GenerateKey()
	if err != nil {
		return nil, "", err
	}
	return &KeyRecord{
		ID:        id,
		Hash:      HashKey(secret),
		Identity:  identity,
		CreatedAt: time.Now().UTC(),
	}, secret, nil
}
