// Package auth: password hashing.
//
// Every account stores two strings, a salt and a hash. A login is accepted
// when hashing the submitted password with the stored salt reproduces the
// stored hash. The plaintext is never stored and never logged.
//
// WHY AN INTERFACE?
// The store keeps (salt, hash) pairs without knowing how they were produced,
// so the algorithm can be chosen at startup. Argon2id is the default. bcrypt
// is still available for deployments that already hold bcrypt hashes; it
// embeds its salt inside the hash, so its stored salt is empty.
//
// WHY ARGON2ID?
// It is memory-hard: every guess costs the attacker RAM as well as CPU, which
// blunts GPU and ASIC cracking far more than a purely iterated hash does.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidPassword is returned by Verify when the password does not match.
	ErrInvalidPassword = errors.New("auth: invalid password")
	// ErrPasswordTooLong is returned by Hash when the algorithm cannot take
	// the whole password.
	ErrPasswordTooLong = errors.New("auth: password too long")
)

// Hasher produces and checks password verification material.
type Hasher interface {
	// Hash derives a fresh (salt, hash) pair for password. Every call uses a
	// new random salt, so hashing the same password twice gives different
	// results.
	Hash(password string) (salt, hash string, err error)
	// Verify returns nil when password matches, ErrInvalidPassword when it
	// does not, and any other error when the stored material is unusable.
	Verify(password, salt, hash string) error
}

// =========================================================================
// ARGON2ID
// =========================================================================

const (
	argon2SaltLen = 16
	argon2KeyLen  = 32
)

// Argon2Params are the cost parameters of the argon2id derivation.
//
// The defaults follow the RFC 9106 "second recommended" profile, scaled down
// to 64 MiB so a small server can handle bursts of logins.
type Argon2Params struct {
	Time      uint32
	MemoryKiB uint32
	Threads   uint8
}

// DefaultArgon2Params is what the server uses when nothing is configured.
var DefaultArgon2Params = Argon2Params{Time: 3, MemoryKiB: 64 * 1024, Threads: 2}

type Argon2Hasher struct {
	params Argon2Params
}

var _ Hasher = (*Argon2Hasher)(nil)

func NewArgon2Hasher(params Argon2Params) *Argon2Hasher {
	return &Argon2Hasher{params: params}
}

func (h *Argon2Hasher) Hash(password string) (string, string, error) {
	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", "", fmt.Errorf("auth: generating salt: %w", err)
	}
	key := h.derive(password, salt)
	return hex.EncodeToString(salt), hex.EncodeToString(key), nil
}

func (h *Argon2Hasher) Verify(password, salt, hash string) error {
	saltBytes, err := hex.DecodeString(salt)
	if err != nil || len(saltBytes) == 0 {
		return fmt.Errorf("auth: stored salt is not usable")
	}
	want, err := hex.DecodeString(hash)
	if err != nil || len(want) == 0 {
		return fmt.Errorf("auth: stored hash is not usable")
	}

	got := h.derive(password, saltBytes)

	// ConstantTimeCompare keeps the response time independent of how many
	// leading bytes matched.
	if subtle.ConstantTimeCompare(got, want) != 1 {
		return ErrInvalidPassword
	}
	return nil
}

func (h *Argon2Hasher) derive(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, h.params.Time, h.params.MemoryKiB, h.params.Threads, argon2KeyLen)
}

// =========================================================================
// BCRYPT
// =========================================================================

// bcryptMaxPassword is bcrypt's input limit. Longer passwords would be
// silently truncated, so they are rejected instead.
const bcryptMaxPassword = 72

type BcryptHasher struct {
	cost int
}

var _ Hasher = (*BcryptHasher)(nil)

// NewBcryptHasher returns a bcrypt hasher. Tests pass bcrypt.MinCost to keep
// hashing fast; production should use 12 or more.
func NewBcryptHasher(cost int) *BcryptHasher {
	return &BcryptHasher{cost: cost}
}

// Hash returns an empty salt: bcrypt's output already embeds it.
func (h *BcryptHasher) Hash(password string) (string, string, error) {
	if len(password) > bcryptMaxPassword {
		return "", "", fmt.Errorf("%w: bcrypt takes at most %d bytes", ErrPasswordTooLong, bcryptMaxPassword)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", "", fmt.Errorf("auth: hashing password: %w", err)
	}
	return "", string(hashed), nil
}

func (h *BcryptHasher) Verify(password, _, hash string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrInvalidPassword
		}
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
	return nil
}
