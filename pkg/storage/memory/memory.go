// Package memory provides an in-memory implementation of storage.KeyStore
// for static configuration, tests and single-replica deployments. Keys are
// lost when the process restarts.
package memory

import (
	"context"
	"crypto/subtle"
	"slices"
	"sync"
	"time"

	"github.com/rhuss/gatekeeper/pkg/storage"
)

// Store is an in-memory KeyStore.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*storage.KeyRecord // by ID
}

// Ensure Store implements storage.KeyStore at compile time.
var _ storage.KeyStore = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{entries: make(map[string]*storage.KeyRecord)}
}

// SaveKey stores a copy of rec.
func (s *Store) SaveKey(_ context.Context, rec *storage.KeyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[rec.ID]; exists {
		return storage.ErrConflict
	}
	for _, e := range s.entries {
		if e.Hash == rec.Hash {
			return storage.ErrConflict
		}
	}

	s.entries[rec.ID] = clone(rec)
	return nil
}

// LookupKey compares hashes in constant time and scans every entry, so
// lookup time does not depend on which key matched.
func (s *Store) LookupKey(_ context.Context, hash string) (*storage.KeyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *storage.KeyRecord
	for _, e := range s.entries {
		if subtle.ConstantTimeCompare([]byte(hash), []byte(e.Hash)) == 1 && !e.Revoked() {
			found = e
		}
	}
	if found == nil {
		return nil, storage.ErrNotFound
	}
	return clone(found), nil
}

// RevokeKey marks a key revoked. Scoped by tenant when a tenant is present
// in the context.
func (s *Store) RevokeKey(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok || e.Revoked() || !storage.Visible(ctx, e) {
		return storage.ErrNotFound
	}

	now := time.Now().UTC()
	e.RevokedAt = &now
	return nil
}

// ListKeys returns the keys visible to the tenant in ctx, oldest first.
func (s *Store) ListKeys(ctx context.Context) ([]storage.KeyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]storage.KeyRecord, 0, len(s.entries))
	for _, e := range s.entries {
		if storage.Visible(ctx, e) {
			result = append(result, *clone(e))
		}
	}

	slices.SortFunc(result, func(a, b storage.KeyRecord) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return result, nil
}

// HealthCheck always succeeds for the in-memory store.
func (s *Store) HealthCheck(context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

// clone copies rec so callers cannot mutate stored state.
func clone(rec *storage.KeyRecord) *storage.KeyRecord {
	c := *rec
	c.Identity.Scopes = slices.Clone(rec.Identity.Scopes)
	if rec.Identity.Metadata != nil {
		c.Identity.Metadata = make(map[string]string, len(rec.Identity.Metadata))
		for k, v := range rec.Identity.Metadata {
			c.Identity.Metadata[k] = v
		}
	}
	if rec.RevokedAt != nil {
		t := *rec.RevokedAt
		c.RevokedAt = &t
	}
	return &c
}
