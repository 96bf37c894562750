package auth

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

// =========================================================================
// HELPERS
// =========================================================================

// testArgon2Params keeps the memory cost tiny so the suite stays fast.
var testArgon2Params = Argon2Params{Time: 1, MemoryKiB: 64, Threads: 1}

func testHashers() map[string]Hasher {
	return map[string]Hasher{
		"argon2id": NewArgon2Hasher(testArgon2Params),
		"bcrypt":   NewBcryptHasher(bcrypt.MinCost),
	}
}

// =========================================================================
// SHARED BEHAVIOUR
// =========================================================================

func TestHasher_RoundTrip(t *testing.T) {
	for name, h := range testHashers() {
		t.Run(name, func(t *testing.T) {
			salt, hash, err := h.Hash("correct horse")
			if err != nil {
				t.Fatalf("Hash() error = %v", err)
			}
			if hash == "" {
				t.Fatal("Hash() returned an empty hash")
			}

			if err := h.Verify("correct horse", salt, hash); err != nil {
				t.Errorf("Verify() with the right password error = %v", err)
			}
		})
	}
}

func TestHasher_WrongPassword(t *testing.T) {
	for name, h := range testHashers() {
		t.Run(name, func(t *testing.T) {
			salt, hash, _ := h.Hash("correct horse")

			err := h.Verify("wrong horse", salt, hash)
			if !errors.Is(err, ErrInvalidPassword) {
				t.Errorf("Verify() error = %v, want ErrInvalidPassword", err)
			}
		})
	}
}

func TestHasher_FreshSaltEveryTime(t *testing.T) {
	for name, h := range testHashers() {
		t.Run(name, func(t *testing.T) {
			salt1, hash1, _ := h.Hash("same")
			salt2, hash2, _ := h.Hash("same")

			if salt1+hash1 == salt2+hash2 {
				t.Error("Hash() produced identical output twice; salt must be random")
			}
		})
	}
}

// =========================================================================
// ARGON2ID
// =========================================================================

func TestArgon2_SaltAndHashAreHex(t *testing.T) {
	h := NewArgon2Hasher(testArgon2Params)

	salt, hash, err := h.Hash("pw")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if len(salt) != argon2SaltLen*2 {
		t.Errorf("salt length = %d, want %d hex chars", len(salt), argon2SaltLen*2)
	}
	if len(hash) != argon2KeyLen*2 {
		t.Errorf("hash length = %d, want %d hex chars", len(hash), argon2KeyLen*2)
	}
}

func TestArgon2_CorruptStoredMaterial(t *testing.T) {
	h := NewArgon2Hasher(testArgon2Params)
	salt, hash, _ := h.Hash("pw")

	tests := []struct {
		name string
		salt string
		hash string
	}{
		{"empty salt", "", hash},
		{"non-hex salt", "zz", hash},
		{"empty hash", salt, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.Verify("pw", tt.salt, tt.hash)
			if err == nil {
				t.Fatal("Verify() should fail on corrupt stored material")
			}
			if errors.Is(err, ErrInvalidPassword) {
				t.Error("corrupt material should not look like a wrong password")
			}
		})
	}
}

// =========================================================================
// BCRYPT
// =========================================================================

func TestBcrypt_EmptySaltAndPrefix(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	salt, hash, err := h.Hash("pw")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if salt != "" {
		t.Errorf("salt = %q, want empty (bcrypt embeds it)", salt)
	}
	if !strings.HasPrefix(hash, "$2") {
		t.Errorf("hash %q does not look like bcrypt", hash)
	}
}

func TestBcrypt_RejectsLongPassword(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)

	if _, _, err := h.Hash(strings.Repeat("a", 73)); !errors.Is(err, ErrPasswordTooLong) {
		t.Errorf("Hash() of 73 bytes error = %v, want ErrPasswordTooLong", err)
	}
	if _, _, err := h.Hash(strings.Repeat("a", 72)); err != nil {
		t.Errorf("Hash() of exactly 72 bytes error = %v", err)
	}
}
