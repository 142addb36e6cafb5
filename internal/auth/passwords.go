package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"HoneyHubUsers/internal/domain"
)

// CreateSalt returns SaltLength bytes from the system CSPRNG.
func CreateSalt() []byte {
	salt := make([]byte, SaltLength)
	// crypto/rand.Read never returns an error; it crashes the program instead.
	_, _ = rand.Read(salt)
	return salt
}

// HashPassword derives the Argon2id key for password and salt. The same
// inputs under the same policy always produce the same bytes.
func HashPassword(password string, salt []byte, policy HashingPolicy) ([]byte, error) {
	if password == "" {
		return nil, fmt.Errorf("hash password: empty password: %w", domain.ErrInvalidArgument)
	}
	if len(salt) == 0 {
		return nil, fmt.Errorf("hash password: empty salt: %w", domain.ErrInvalidArgument)
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("hash password: %w: %w", domain.ErrInvalidArgument, err)
	}

	return argon2.IDKey(
		[]byte(password),
		salt,
		uint32(policy.iterations),
		policy.argon2Memory(),
		uint8(policy.parallelism),
		uint32(policy.keyLength),
	), nil
}

// VerifyPassword recomputes the key from base64 salt and compares it with the
// base64 stored hash in constant time. Malformed input yields false.
func VerifyPassword(password, storedHash, salt string, policy HashingPolicy) bool {
	if password == "" || storedHash == "" || salt == "" {
		return false
	}
	want, err := base64.StdEncoding.DecodeString(storedHash)
	if err != nil || len(want) == 0 {
		return false
	}
	saltBytes, err := base64.StdEncoding.DecodeString(salt)
	if err != nil || len(saltBytes) == 0 {
		return false
	}

	got, err := HashPassword(password, saltBytes, policy)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(want, got) == 1
}

// EncodeCredential renders the stored credential as "base64(salt):base64(hash)".
func EncodeCredential(salt, hash []byte) string {
	b64 := base64.StdEncoding
	return b64.EncodeToString(salt) + ":" + b64.EncodeToString(hash)
}

// SplitCredential returns the base64 salt and hash parts of a stored credential.
func SplitCredential(stored string) (salt, hash string, ok bool) {
	salt, hash, ok = strings.Cut(stored, ":")
	if !ok || salt == "" || hash == "" || strings.Contains(hash, ":") {
		return "", "", false
	}
	return salt, hash, true
}

func VerifyCredential(password, stored string, policy HashingPolicy) bool {
	salt, hash, ok := SplitCredential(stored)
	if !ok {
		return false
	}
	return VerifyPassword(password, hash, salt, policy)
}
