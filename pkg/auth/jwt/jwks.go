package jwt

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/rhuss/gatekeeper/pkg/debug"
)

// keySet caches RSA public keys fetched from a JWKS endpoint.
type keySet struct {
	url        string
	ttl        time.Duration
	minRefresh time.Duration
	client     *http.Client
	now        func() time.Time

	mu          sync.RWMutex
	keys        map[string]*rsa.PublicKey
	fetchedAt   time.Time
	attemptedAt time.Time
}

func newKeySet(url string, ttl, minRefresh time.Duration, client *http.Client) *keySet {
	return &keySet{
		url:        url,
		ttl:        ttl,
		minRefresh: minRefresh,
		client:     client,
		now:        time.Now,
		keys:       map[string]*rsa.PublicKey{},
	}
}

// get returns the key for kid, refreshing the set when it is stale or the
// kid is unknown. At most one fetch is attempted per minRefresh, so tokens
// with made-up kids cannot drive requests to the JWKS endpoint.
func (ks *keySet) get(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	ks.mu.RLock()
	key, ok := ks.lookup(kid)
	ks.mu.RUnlock()
	if ok {
		return key, nil
	}

	ks.mu.Lock()
	defer ks.mu.Unlock()

	// Another goroutine may have refreshed while we waited.
	if key, ok := ks.lookup(kid); ok {
		return key, nil
	}

	if ks.minRefresh > 0 && !ks.attemptedAt.IsZero() && ks.now().Sub(ks.attemptedAt) < ks.minRefresh {
		debug.Log("jwt", "JWKS refresh throttled", "kid", kid)
		if key, ok := ks.keys[kid]; ok {
			return key, nil
		}
		return nil, fmt.Errorf("key %q not found in JWKS", kid)
	}

	if err := ks.refresh(ctx); err != nil {
		return nil, err
	}

	key, ok = ks.keys[kid]
	if !ok {
		return nil, fmt.Errorf("key %q not found in JWKS", kid)
	}
	return key, nil
}

// lookup must be called with at least the read lock held.
func (ks *keySet) lookup(kid string) (*rsa.PublicKey, bool) {
	if ks.now().Sub(ks.fetchedAt) >= ks.ttl {
		return nil, false
	}
	key, ok := ks.keys[kid]
	return key, ok
}

// refresh must be called with the write lock held.
func (ks *keySet) refresh(ctx context.Context) error {
	ks.attemptedAt = ks.now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ks.url, nil)
	if err != nil {
		return fmt.Errorf("creating JWKS request: %w", err)
	}

	resp, err := ks.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	var doc struct {
		Keys []jwk `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return fmt.Errorf("parsing JWKS: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" || (k.Use != "" && k.Use != "sig") {
			continue
		}
		pub, err := k.publicKey()
		if err != nil {
			slog.Warn("skipping JWKS key", "kid", k.Kid, "error", err)
			continue
		}
		keys[k.Kid] = pub
	}

	ks.keys = keys
	ks.fetchedAt = ks.now()

	debug.Log("jwt", "JWKS cache refreshed", "keys", len(keys), "url", ks.url)
	return nil
}

// jwk is a single JSON Web Key.
type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	N   string `json:"n"` // modulus, base64url
	E   string `json:"e"` // exponent, base64url
}

func (k jwk) publicKey() (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("decoding modulus: %w", err)
	}
	e, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("decoding exponent: %w", err)
	}

	exp := new(big.Int).SetBytes(e)
	if !exp.IsInt64() || exp.Int64() > 1<<31-1 {
		return nil, fmt.Errorf("RSA exponent too large")
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(n),
		E: int(exp.Int64()),
	}, nil
}
