// Package basic provides an HTTP Basic authentication strategy backed by
// Argon2id password hashes.
package basic

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/rhuss/gatekeeper/pkg/auth"
	"github.com/rhuss/gatekeeper/pkg/auth/strategy"
)

// Label is the registry label conventionally used for this strategy.
const Label strategy.Label = "basic"

// ErrMalformedCredentials is returned for Basic credentials that are not
// base64 encoded "username:password".
var ErrMalformedCredentials = errors.New("malformed basic credentials")

// User is a configured account.
type User struct {
	Username string

	// PasswordHash is an Argon2id PHC string produced by HashPassword.
	PasswordHash string

	Identity auth.Identity
}

// Strategy authenticates requests carrying Basic credentials.
type Strategy struct {
	strategy.Base

	users map[string]User

	// dummyHash is verified for unknown users so that missing accounts
	// cost the same as wrong passwords.
	dummyHash string
}

// New creates a basic strategy. Users without a subject use their username
// as subject. Every password hash must pass CheckHash.
func New(users []User) (*Strategy, error) {
	s := &Strategy{users: make(map[string]User, len(users))}
	for i, u := range users {
		if u.Username == "" {
			return nil, fmt.Errorf("users[%d]: username is required", i)
		}
		if _, dup := s.users[u.Username]; dup {
			return nil, fmt.Errorf("users[%d]: duplicate username %q", i, u.Username)
		}
		if err := CheckHash(u.PasswordHash); err != nil {
			return nil, fmt.Errorf("users[%d]: %w", i, err)
		}
		if u.Identity.Subject == "" {
			u.Identity.Subject = u.Username
		}
		s.users[u.Username] = u
		if s.dummyHash == "" {
			s.dummyHash = u.PasswordHash
		}
	}
	return s, nil
}

// Valid reports whether the request carries Basic credentials.
func (s *Strategy) Valid(r *http.Request) bool {
	_, ok := s.Credentials(r, "Basic")
	return ok
}

// Authenticate verifies the Basic username and password.
func (s *Strategy) Authenticate(_ context.Context, r *http.Request) auth.AuthResult {
	encoded, ok := s.Credentials(r, "Basic")
	if !ok {
		return s.Pass()
	}

	username, password, err := parseCredentials(encoded)
	if err != nil {
		return s.Fail(err)
	}

	user, known := s.users[username]
	if !known {
		if s.dummyHash != "" {
			_ = VerifyPassword(password, s.dummyHash)
		}
		slog.Debug("basic auth unknown user", "username", username)
		return s.Fail(auth.ErrUnauthenticated)
	}

	if err := VerifyPassword(password, user.PasswordHash); err != nil {
		if !errors.Is(err, ErrPasswordMismatch) {
			slog.Warn("basic auth password hash unusable", "username", username, "error", err)
		}
		return s.Fail(auth.ErrUnauthenticated)
	}

	id := user.Identity
	return s.Success(&id)
}

func parseCredentials(encoded string) (username, password string, err error) {
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", "", ErrMalformedCredentials
	}
	username, password, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return "", "", ErrMalformedCredentials
	}
	return username, password, nil
}
