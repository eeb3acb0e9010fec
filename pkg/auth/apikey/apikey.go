// Package apikey provides a strategy that validates bearer tokens against
// static keys using SHA-256 hashing and constant-time comparison, optionally
// falling back to a persistent storage.KeyStore.
package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rhuss/gatekeeper/pkg/auth"
	"github.com/rhuss/gatekeeper/pkg/auth/strategy"
	"github.com/rhuss/gatekeeper/pkg/storage"
)

// Label is the registry label conventionally used for this strategy.
const Label strategy.Label = "apikey"

// Key maps a plaintext key to the identity it authenticates.
type Key struct {
	Key      string
	Identity auth.Identity
}

type entry struct {
	hash     [32]byte
	identity auth.Identity
}

// Option configures a Strategy.
type Option func(*Strategy)

// WithStore consults store for tokens that match no static key.
func WithStore(store storage.KeyStore) Option {
	return func(s *Strategy) {
		s.store = store
	}
}

// Strategy validates bearer tokens against static keys and an optional
// key store.
type Strategy struct {
	strategy.Base

	entries []entry
	store   storage.KeyStore
}

// New creates an API key strategy. Keys are hashed immediately; plaintext
// keys are not retained.
func New(keys []Key, opts ...Option) *Strategy {
	s := &Strategy{entries: make([]entry, 0, len(keys))}
	for _, k := range keys {
		s.entries = append(s.entries, entry{
			hash:     sha256.Sum256([]byte(k.Key)),
			identity: k.Identity,
		})
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Valid reports whether the request carries a bearer token that is not
// shaped like a JWT. JWT-shaped tokens are left to the jwt strategy.
func (s *Strategy) Valid(r *http.Request) bool {
	token, ok := s.Credentials(r, "Bearer")
	if !ok {
		return false
	}
	return strings.Count(token, ".") != 2
}

// Authenticate returns Yes if the bearer token matches a known key and No if
// it does not. Without a bearer token it abstains. A failing key store
// rejects the request.
func (s *Strategy) Authenticate(ctx context.Context, r *http.Request) auth.AuthResult {
	token, ok := s.Credentials(r, "Bearer")
	if !ok {
		return s.Pass()
	}
	if token == "" {
		return s.Fail(auth.ErrUnauthenticated)
	}

	tokenHash := sha256.Sum256([]byte(token))

	for _, e := range s.entries {
		if subtle.ConstantTimeCompare(tokenHash[:], e.hash[:]) == 1 {
			// Copy identity to avoid shared state.
			id := e.identity
			return s.Success(&id)
		}
	}

	if s.store == nil {
		return s.Fail(auth.ErrUnauthenticated)
	}

	rec, err := s.store.LookupKey(ctx, hex.EncodeToString(tokenHash[:]))
	if errors.Is(err, storage.ErrNotFound) {
		return s.Fail(auth.ErrUnauthenticated)
	}
	if err != nil {
		return s.Fail(fmt.Errorf("key store lookup: %w", err))
	}

	id := rec.Identity
	return s.Success(&id)
}
