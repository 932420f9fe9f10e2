package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// KeyPrefixLen is how many leading characters of a raw key are stored in
// clear for lookup.
const KeyPrefixLen = 8

const keyScheme = "rb_"

// GenerateAPIKey returns a new raw key, its lookup prefix, and its bcrypt
// hash. Only the prefix and hash are persisted.
func GenerateAPIKey() (raw, prefix, hash string, err error) {
	secret, err := randomHex(24)
	if err != nil {
		return "", "", "", fmt.Errorf("generate key: %w", err)
	}
	raw = keyScheme + secret
	h, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return "", "", "", fmt.Errorf("hash key: %w", err)
	}
	return raw, raw[:KeyPrefixLen], string(h), nil
}

// VerifyAPIKey reports whether raw matches the stored hash.
func VerifyAPIKey(hash, raw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(raw)) == nil
}
