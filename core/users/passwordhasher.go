package users

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"

	"golang.org/x/crypto/pbkdf2"
)

// Constants for password hashing parameters
const (
	iterationCount = 10000 // PBKDF2 iterations
	keyLength      = 32    // 256 bits
	saltLength     = 16    // 128 bits for salt
)

type PasswordHasher interface {
	// HashPassword hashes the given password with a fresh random salt
	HashPassword(password string) (hash, salt string, err error)
	// VerifyPassword compares a password with a stored hash and salt
	VerifyPassword(password, hash, salt string) bool
}

// PBKDF2PasswordHasher implements the PasswordHasher interface using PBKDF2
// with SHA-256
type PBKDF2PasswordHasher struct{}

// NewPBKDF2PasswordHasher creates a new PBKDF2PasswordHasher instance
func NewPBKDF2PasswordHasher() *PBKDF2PasswordHasher {
	return &PBKDF2PasswordHasher{}
}

// HashPassword hashes the given password with a fresh random salt
func (h *PBKDF2PasswordHasher) HashPassword(password string) (string, string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", "", err
	}

	key := pbkdf2.Key([]byte(password), salt, iterationCount, keyLength, sha256.New)

	return base64.StdEncoding.EncodeToString(key), base64.StdEncoding.EncodeToString(salt), nil
}

// VerifyPassword compares a password with a stored hash and salt
func (h *PBKDF2PasswordHasher) VerifyPassword(password, hash, salt string) bool {
	decodedHash, err := base64.StdEncoding.DecodeString(hash)
	if err != nil {
		return false
	}

	decodedSalt, err := base64.StdEncoding.DecodeString(salt)
	if err != nil {
		return false
	}

	computed := pbkdf2.Key([]byte(password), decodedSalt, iterationCount, keyLength, sha256.New)

	// compare using constant time comparison to prevent timing attacks
	return subtle.ConstantTimeCompare(decodedHash, computed) == 1
}
