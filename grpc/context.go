// Package grpc authenticates gRPC calls with tutorauth access tokens. Clients
// send "authorization: Bearer <token>" metadata; the interceptors verify it
// and expose the user id to handlers.
package grpc

import (
	"context"
	"strings"

	"google.golang.org/grpc/metadata"

	ta "github.com/panyam/tutorauth"
)

// DefaultMetadataKeyAuthorization is the metadata key carrying the access token
const DefaultMetadataKeyAuthorization = "authorization"

// TokenVerifier verifies an access token and returns its user id.
// *tutorauth.TokenIssuer satisfies it.
type TokenVerifier interface {
	VerifyAccess(token string) (string, error)
}

// Config holds the metadata key configuration for auth context.
type Config struct {
	// MetadataKeyAuthorization defaults to "authorization"
	MetadataKeyAuthorization string

	// Verifier checks access tokens. Required.
	Verifier TokenVerifier
}

// DefaultConfig returns the default configuration for verifier
func DefaultConfig(verifier TokenVerifier) *Config {
	return &Config{
		MetadataKeyAuthorization: DefaultMetadataKeyAuthorization,
		Verifier:                 verifier,
	}
}

// EnsureDefaults fills in default values for any unset fields.
func (c *Config) EnsureDefaults() {
	if c.MetadataKeyAuthorization == "" {
		c.MetadataKeyAuthorization = DefaultMetadataKeyAuthorization
	}
}

// UserIDFromContext returns the user id placed there by the interceptors,
// or "" for anonymous calls.
func UserIDFromContext(ctx context.Context) string {
	return ta.UserIDFromContext(ctx)
}

// IsAuthenticated returns true if there is an authenticated user in the context.
func IsAuthenticated(ctx context.Context) bool {
	return UserIDFromContext(ctx) != ""
}

// AccessTokenToOutgoingContext attaches an access token to outgoing metadata
func AccessTokenToOutgoingContext(ctx context.Context, accessToken string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, DefaultMetadataKeyAuthorization, "Bearer "+accessToken)
}

func bearerFromMetadata(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, v := range md.Get(key) {
		v = strings.TrimSpace(v)
		if len(v) > 7 && strings.EqualFold(v[:7], "Bearer ") {
			return strings.TrimSpace(v[7:])
		}
	}
	return ""
}
