// Package auth signs users in with Google OpenID Connect, keeps them signed
// in with an HS256 session cookie, and issues personal API keys.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
)

var (
	ErrInvalidState   = errors.New("invalid or expired login state")
	ErrInvalidSession = errors.New("invalid session")
	ErrEmailMissing   = errors.New("identity provider returned no email")
)

// IsAdmin reports whether email is the configured admin address.
func IsAdmin(email, adminEmail string) bool {
	if adminEmail == "" {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(email), strings.TrimSpace(adminEmail))
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
