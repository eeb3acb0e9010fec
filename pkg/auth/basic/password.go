package basic

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Default Argon2id parameters.
const (
	DefaultTime    = 3         // iterations
	DefaultMemory  = 64 * 1024 // KiB
	DefaultThreads = 4
	DefaultSaltLen = 16
	DefaultKeyLen  = 32

	// MinPasswordLen is the shortest password HashPassword accepts.
	MinPasswordLen = 8
)

var (
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrInvalidHash        = errors.New("invalid argon2id hash")
	ErrPasswordMismatch   = errors.New("password does not match")
	ErrIncompatibleHash   = errors.New("incompatible argon2 version")
	errSaltGenerationFail = errors.New("generating salt")
)

type params struct {
	time    uint32
	memory  uint32
	threads uint8
	keyLen  uint32
	saltLen uint32
}

// HashOption tunes Argon2id parameters.
type HashOption func(*params)

// WithTime sets the number of iterations.
func WithTime(t uint32) HashOption {
	return func(p *params) {
		if t > 0 {
			p.time = t
		}
	}
}

// WithMemory sets the memory cost in KiB.
func WithMemory(m uint32) HashOption {
	return func(p *params) {
		if m > 0 {
			p.memory = m
		}
	}
}

// WithThreads sets the degree of parallelism.
func WithThreads(t uint8) HashOption {
	return func(p *params) {
		if t > 0 {
			p.threads = t
		}
	}
}

// HashPassword returns an Argon2id hash in PHC string format:
//
//	$argon2id$v=19$m=65536,t=3,p=4$<salt>$<hash>
func HashPassword(password string, opts ...HashOption) (string, error) {
	if len(password) < MinPasswordLen {
		return "", ErrWeakPassword
	}

	p := &params{
		time:    DefaultTime,
		memory:  DefaultMemory,
		threads: DefaultThreads,
		keyLen:  DefaultKeyLen,
		saltLen: DefaultSaltLen,
	}
	for _, opt := range opts {
		opt(p)
	}

	salt := make([]byte, p.saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("%w: %v", errSaltGenerationFail, err)
	}

	key := argon2.IDKey([]byte(password), salt, p.time, p.memory, p.threads, p.keyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.memory, p.time, p.threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// VerifyPassword checks password against a PHC-format Argon2id hash.
// It returns ErrPasswordMismatch for a wrong password and ErrInvalidHash
// when the hash cannot be parsed.
func VerifyPassword(password, phc string) error {
	h, err := decodeHash(phc)
	if err != nil {
		return err
	}

	computed := argon2.IDKey([]byte(password), h.salt, h.time, h.memory, h.threads, uint32(len(h.key)))
	if subtle.ConstantTimeCompare(computed, h.key) != 1 {
		return ErrPasswordMismatch
	}
	return nil
}

// CheckHash reports whether phc is an Argon2id hash VerifyPassword can use.
func CheckHash(phc string) error {
	_, err := decodeHash(phc)
	return err
}

type decodedHash struct {
	time    uint32
	memory  uint32
	threads uint8
	salt    []byte
	key     []byte
}

func decodeHash(phc string) (*decodedHash, error) {
	parts := strings.Split(phc, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return nil, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHash, err)
	}
	if version != argon2.Version {
		return nil, ErrIncompatibleHash
	}

	h := &decodedHash{}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &h.memory, &h.time, &h.threads); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHash, err)
	}
	// argon2.IDKey panics on zero rounds or zero parallelism.
	if h.time == 0 || h.threads == 0 || h.memory == 0 {
		return nil, fmt.Errorf("%w: m, t and p must be positive", ErrInvalidHash)
	}

	var err error
	if h.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return nil, fmt.Errorf("%w: salt: %v", ErrInvalidHash, err)
	}
	if h.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return nil, fmt.Errorf("%w: hash: %v", ErrInvalidHash, err)
	}
	if len(h.salt) == 0 || len(h.key) == 0 {
		return nil, fmt.Errorf("%w: empty salt or hash", ErrInvalidHash)
	}
	return h, nil
}
