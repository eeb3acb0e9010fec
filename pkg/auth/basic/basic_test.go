package basic

import (
	"context"
	"encoding/base64"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rhuss/gatekeeper/pkg/auth"
	"github.com/rhuss/gatekeeper/pkg/auth/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cheap keeps Argon2id fast in tests.
var cheap = []HashOption{WithTime(1), WithMemory(1024), WithThreads(1)}

func mustHash(t *testing.T, password string) string {
	t.Helper()
	h, err := HashPassword(password, cheap...)
	require.NoError(t, err)
	return h
}

func basicHeader(user, pass string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}

func newTestStrategy(t *testing.T) *Strategy {
	t.Helper()
	s, err := New([]User{
		{
			Username:     "alice",
			PasswordHash: mustHash(t, "correct-horse"),
			Identity: auth.Identity{
				Subject:     "user-alice",
				ServiceTier: "premium",
				Metadata:    map[string]string{"tenant_id": "org-1"},
			},
		},
		{
			Username:     "bob",
			PasswordHash: mustHash(t, "battery-staple"),
		},
	})
	require.NoError(t, err)
	return s
}

func TestHashPassword_Format(t *testing.T) {
	h := mustHash(t, "testPassword123")
	assert.True(t, strings.HasPrefix(h, "$argon2id$v=19$m=1024,t=1,p=1$"), "got %s", h)

	other := mustHash(t, "testPassword123")
	assert.NotEqual(t, h, other, "salts must differ")
}

func TestHashPassword_Weak(t *testing.T) {
	_, err := HashPassword("short")
	assert.ErrorIs(t, err, ErrWeakPassword)
}

func TestVerifyPassword(t *testing.T) {
	h := mustHash(t, "testPassword123")

	assert.NoError(t, VerifyPassword("testPassword123", h))
	assert.ErrorIs(t, VerifyPassword("wrongPassword", h), ErrPasswordMismatch)
}

func TestVerifyPassword_Malformed(t *testing.T) {
	cases := []string{
		"",
		"plaintext",
		"$bcrypt$v=19$m=1024,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$garbage$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=1024,t=1,p=1$!!!$aGFzaA",
		"$argon2id$v=19$m=1024,t=1,p=1$c2FsdA$!!!",
		"$argon2id$v=19$m=1024,t=0,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=1024,t=1,p=0$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=0,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=1024,t=1,p=1$$aGFzaA",
		"$argon2id$v=19$m=1024,t=1,p=1$c2FsdA$",
	}
	for _, h := range cases {
		assert.ErrorIs(t, VerifyPassword("whatever", h), ErrInvalidHash, "hash %q", h)
	}

	assert.ErrorIs(t, VerifyPassword("whatever", "$argon2id$v=16$m=1024,t=1,p=1$c2FsdA$aGFzaA"), ErrIncompatibleHash)
}

func TestNew_Errors(t *testing.T) {
	_, err := New([]User{{Username: ""}})
	assert.Error(t, err)

	h := mustHash(t, "correct-horse")
	_, err = New([]User{{Username: "a", PasswordHash: h}, {Username: "a", PasswordHash: h}})
	assert.ErrorContains(t, err, "duplicate username")

	_, err = New([]User{{Username: "a", PasswordHash: h}, {Username: "b", PasswordHash: "$argon2id$v=19$m=1024,t=0,p=1$c2FsdA$aGFzaA"}})
	assert.ErrorIs(t, err, ErrInvalidHash)
	assert.ErrorContains(t, err, "users[1]")

	_, err = New([]User{{Username: "a", PasswordHash: "plaintext"}})
	assert.ErrorIs(t, err, ErrInvalidHash)
}

func TestRegistersAsStrategy(t *testing.T) {
	reg := strategy.New()
	s := newTestStrategy(t)

	got, err := reg.Add(Label, s)
	require.NoError(t, err)
	assert.Same(t, s, got)

	found, ok := reg.Lookup(Label)
	require.True(t, ok)
	assert.Same(t, s, found)
}

func TestAuthenticate_Valid(t *testing.T) {
	s := newTestStrategy(t)
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", basicHeader("alice", "correct-horse"))

	require.True(t, s.Valid(r))
	result := s.Authenticate(context.Background(), r)

	require.Equal(t, auth.Yes, result.Decision)
	assert.Equal(t, "user-alice", result.Identity.Subject)
	assert.Equal(t, "premium", result.Identity.ServiceTier)
	assert.Equal(t, "org-1", result.Identity.TenantID())
}

func TestAuthenticate_SubjectDefaultsToUsername(t *testing.T) {
	s := newTestStrategy(t)
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", basicHeader("bob", "battery-staple"))

	result := s.Authenticate(context.Background(), r)

	require.Equal(t, auth.Yes, result.Decision)
	assert.Equal(t, "bob", result.Identity.Subject)
}

func TestAuthenticate_Rejects(t *testing.T) {
	s := newTestStrategy(t)

	headers := map[string]string{
		"wrong password": basicHeader("alice", "wrong-password"),
		"unknown user":   basicHeader("mallory", "correct-horse"),
		"bad base64":     "Basic !!!not-base64",
		"no colon":       "Basic " + base64.StdEncoding.EncodeToString([]byte("alice")),
	}
	for name, header := range headers {
		t.Run(name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.Header.Set("Authorization", header)

			result := s.Authenticate(context.Background(), r)
			assert.Equal(t, auth.No, result.Decision)
			assert.Error(t, result.Err)
			assert.Nil(t, result.Identity)
		})
	}
}

func TestAuthenticate_AbstainsWithoutBasic(t *testing.T) {
	s := newTestStrategy(t)

	r := httptest.NewRequest("GET", "/", nil)
	assert.False(t, s.Valid(r))
	assert.Equal(t, auth.Abstain, s.Authenticate(context.Background(), r).Decision)

	r.Header.Set("Authorization", "Bearer sk-123")
	assert.False(t, s.Valid(r))
	assert.Equal(t, auth.Abstain, s.Authenticate(context.Background(), r).Decision)
}
