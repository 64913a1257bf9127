package tutorauth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// Default token expiry durations
const (
	TokenExpiryEmailVerification = 24 * time.Hour
	TokenExpiryPasswordReset     = 1 * time.Hour
	TokenExpiryAccessToken       = 15 * time.Minute
	TokenExpiryRefreshToken      = 7 * 24 * time.Hour
)

// GenerateSecureToken generates a cryptographically secure random token
// (32 random bytes, hex encoded).
func GenerateSecureToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// NewOneTimeToken creates a fresh token valid for ttl from now
func NewOneTimeToken(now time.Time, ttl time.Duration) (OneTimeToken, error) {
	tok, err := GenerateSecureToken()
	if err != nil {
		return OneTimeToken{}, err
	}
	return OneTimeToken{Token: tok, ExpiresAt: now.Add(ttl)}, nil
}
