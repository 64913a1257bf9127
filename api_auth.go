package tutorauth

import (
	"log/slog"
	"net/http"

	"github.com/alexedwards/scs/v2"
)

// Rate limit scopes
const (
	ScopeAuth    = "auth"
	ScopeGeneral = "general"
)

// API exposes AuthService over HTTP under /api/auth
type API struct {
	Auth       *AuthService
	Middleware *Middleware

	// Sessions stores the OAuth state for the Google redirect flow.
	// The redirect routes are only mounted when it is set.
	Sessions *scs.SessionManager

	// AuthLimiter guards credential-bearing routes, GeneralLimiter the rest
	AuthLimiter    RateLimiter
	GeneralLimiter RateLimiter

	Metrics *Metrics
	Logger  *slog.Logger

	// ClientURL is the frontend origin, used for CORS and redirects
	ClientURL string

	// Production turns on Secure cookies and disables the localhost CORS allowance
	Production bool

	// TrustProxy takes the client address from X-Forwarded-For, X-Real-IP or
	// Forwarded. Only set it behind a reverse proxy that overwrites them.
	TrustProxy bool
}

// NewAPI wires the API around an AuthService
func NewAPI(auth *AuthService) *API {
	return &API{
		Auth: auth,
		Middleware: &Middleware{
			Issuer: auth.Issuer,
			Store:  auth.Store,
			Logger: auth.Logger,
		},
		Metrics: auth.Metrics,
		Logger:  auth.Logger,
	}
}

func (a *API) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}

func (a *API) writeSession(w http.ResponseWriter, message string, sess *Session) {
	setRefreshCookie(w, sess.Tokens.RefreshToken, a.Auth.Issuer.RefreshTTL(), a.Production)
	view := sess.Credential.Projection()
	writeJSON(w, http.StatusOK, Response{
		Success:     true,
		Message:     message,
		User:        &view,
		AccessToken: sess.Tokens.AccessToken,
	})
}

// HandleLogin handles POST /api/auth/login
func (a *API) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var in LoginInput
	if err := decodeJSON(r, &in); err != nil {
		writeServiceError(w, a.logger(), err)
		return
	}
	sess, err := a.Auth.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		writeServiceError(w, a.logger(), err)
		return
	}
	a.writeSession(w, "Login successful", sess)
}

// HandleRefresh handles POST /api/auth/refresh. The refresh token is read
// from the HTTP-only cookie and both tokens are rotated.
func (a *API) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(RefreshCookieName)
	if err != nil || cookie.Value == "" {
		writeError(w, http.StatusUnauthorized, ErrCodeInvalidToken, "Refresh token not found")
		return
	}
	sess, err := a.Auth.RefreshToken(r.Context(), cookie.Value)
	if err != nil {
		if HTTPStatus(err) == http.StatusUnauthorized {
			clearRefreshCookie(w, a.Production)
			writeError(w, http.StatusUnauthorized, ErrCodeInvalidToken, "Invalid refresh token")
			return
		}
		writeServiceError(w, a.logger(), err)
		return
	}
	a.writeSession(w, "Token refreshed successfully", sess)
}

// HandleLogout handles POST /api/auth/logout
func (a *API) HandleLogout(w http.ResponseWriter, r *http.Request) {
	a.Auth.Logout(r.Context(), a.Middleware.bearerToken(r))
	clearRefreshCookie(w, a.Production)
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "Logout successful"})
}

// HandleMe handles GET /api/auth/me
func (a *API) HandleMe(w http.ResponseWriter, r *http.Request) {
	cred := CredentialFromContext(r.Context())
	if cred == nil {
		writeError(w, http.StatusUnauthorized, ErrCodeInvalidToken, "Access token is required")
		return
	}
	view := cred.Projection()
	writeJSON(w, http.StatusOK, Response{Success: true, Message: "User retrieved successfully", User: &view})
}

// limit wraps next with a per-IP rate limiter. A nil limiter disables the check.
func (a *API) limit(scope string, limiter RateLimiter, message string, next http.HandlerFunc) http.Handler {
	if limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow(r.Context(), scope+":"+getClientIP(r)) {
			a.Metrics.observeRateLimited(scope)
			writeError(w, http.StatusTooManyRequests, ErrCodeRateLimited, message)
			return
		}
		next(w, r)
	})
}

func (a *API) authLimited(next http.HandlerFunc) http.Handler {
	return a.limit(ScopeAuth, a.AuthLimiter, "Too many authentication attempts, please try again later.", next)
}

func (a *API) generalLimited(next http.HandlerFunc) http.Handler {
	return a.limit(ScopeGeneral, a.GeneralLimiter, "Too many requests, please try again later.", next)
}
