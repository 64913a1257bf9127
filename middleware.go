package tutorauth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

type userIDKey struct{}
type credentialKey struct{}

// Middleware authenticates requests carrying a Bearer access token and puts
// the caller's credential into the request context.
type Middleware struct {
	Issuer              *TokenIssuer
	Store               CredentialStore
	AuthTokenHeaderName string
	Logger              *slog.Logger
}

// EnsureReasonableDefaults fills unset optional fields
func (m *Middleware) EnsureReasonableDefaults() {
	if m.AuthTokenHeaderName == "" {
		m.AuthTokenHeaderName = "Authorization"
	}
	if m.Logger == nil {
		m.Logger = slog.Default()
	}
}

// RequireUser rejects the request with 401 unless it carries a valid access
// token for an existing account.
func (m *Middleware) RequireUser(next http.Handler) http.Handler {
	m.EnsureReasonableDefaults()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := m.bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, ErrCodeInvalidToken, "Access token is required")
			return
		}
		cred, err := m.authenticate(r.Context(), token)
		if err != nil {
			status, code, msg := http.StatusUnauthorized, ErrCodeInvalidToken, "Invalid token"
			if errors.Is(err, ErrNotFound) {
				msg = "User not found"
			} else if !errors.Is(err, ErrInvalidToken) {
				m.Logger.Error("auth middleware lookup failed", "error", err)
				status, code, msg = http.StatusInternalServerError, ErrCodeInternal, "Internal server error"
			}
			writeError(w, status, code, msg)
			return
		}
		next.ServeHTTP(w, withCredential(r, cred))
	})
}

// OptionalUser attaches the credential when a valid token is present and
// otherwise lets the request through anonymously.
func (m *Middleware) OptionalUser(next http.Handler) http.Handler {
	m.EnsureReasonableDefaults()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token := m.bearerToken(r); token != "" {
			if cred, err := m.authenticate(r.Context(), token); err == nil {
				r = withCredential(r, cred)
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) authenticate(ctx context.Context, token string) (*Credential, error) {
	userID, err := m.Issuer.VerifyAccess(token)
	if err != nil {
		return nil, err
	}
	return m.Store.GetCredentialByID(ctx, userID)
}

func (m *Middleware) bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get(m.AuthTokenHeaderName))
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func withCredential(r *http.Request, cred *Credential) *http.Request {
	ctx := context.WithValue(r.Context(), userIDKey{}, cred.ID)
	ctx = context.WithValue(ctx, credentialKey{}, cred)
	return r.WithContext(ctx)
}

// UserIDFromContext returns the authenticated user id, or "" when anonymous
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey{}).(string); ok {
		return v
	}
	return ""
}

// CredentialFromContext returns the authenticated credential, or nil
func CredentialFromContext(ctx context.Context) *Credential {
	if v, ok := ctx.Value(credentialKey{}).(*Credential); ok {
		return v
	}
	return nil
}

// ContextWithUserID returns a context carrying userID, for callers outside
// HTTP (gRPC interceptors, background jobs) that authenticate by other means.
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}
