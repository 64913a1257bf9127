package tutorauth

import (
	"crypto/subtle"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

const oauthStateKey = "googleOAuthState"

var localhostOrigin = regexp.MustCompile(`^https?://(localhost|127\.0\.0\.1)(:\d+)?$`)

// Handler builds the full HTTP surface: /health, /metrics and /api/auth/*
func (a *API) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(a.logRequests)
	r.Use(a.Metrics.Middleware)

	r.HandleFunc("/health", a.HandleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", a.Metrics.Handler()).Methods(http.MethodGet)

	a.Mount(r.PathPrefix("/api/auth").Subrouter())

	var h http.Handler = r
	if a.TrustProxy {
		h = handlers.ProxyHeaders(h)
	}
	return handlers.CORS(
		handlers.AllowedOriginValidator(a.allowOrigin),
		handlers.AllowCredentials(),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-Requested-With", "Accept"}),
		handlers.MaxAge(86400),
	)(handlers.RecoveryHandler(handlers.PrintRecoveryStack(false))(h))
}

// Mount registers the auth routes on an existing router, for hosts that
// serve other APIs next to it.
func (a *API) Mount(r *mux.Router) {
	mw := a.Middleware
	mw.EnsureReasonableDefaults()

	r.Handle("/register", a.authLimited(a.HandleRegister)).Methods(http.MethodPost)
	r.Handle("/login", a.authLimited(a.HandleLogin)).Methods(http.MethodPost)
	r.Handle("/google", a.authLimited(a.HandleGoogle)).Methods(http.MethodPost)
	r.Handle("/refresh", a.generalLimited(a.HandleRefresh)).Methods(http.MethodPost)
	r.Handle("/verify-email", a.generalLimited(a.HandleVerifyEmail)).Methods(http.MethodGet)
	r.Handle("/resend-verification", a.authLimited(a.HandleResendVerification)).Methods(http.MethodPost)
	r.Handle("/skip-verification", a.authLimited(a.HandleSkipVerification)).Methods(http.MethodPost)
	r.Handle("/forgot-password", a.authLimited(a.HandleForgotPassword)).Methods(http.MethodPost)
	r.Handle("/reset-password", a.authLimited(a.HandleResetPassword)).Methods(http.MethodPost)

	r.Handle("/logout", mw.RequireUser(http.HandlerFunc(a.HandleLogout))).Methods(http.MethodPost)
	r.Handle("/me", mw.RequireUser(http.HandlerFunc(a.HandleMe))).Methods(http.MethodGet)
	r.Handle("/password", mw.RequireUser(a.generalLimited(a.HandleChangePassword))).Methods(http.MethodPut)
	r.Handle("/set-password", mw.RequireUser(a.generalLimited(a.HandleSetPassword))).Methods(http.MethodPost)

	if a.Sessions != nil {
		r.Handle("/google/start", a.Sessions.LoadAndSave(a.generalLimited(a.HandleGoogleStart))).Methods(http.MethodGet)
		r.Handle("/google/callback", a.Sessions.LoadAndSave(a.authLimited(a.HandleGoogleCallback))).Methods(http.MethodGet)
	}
}

// HandleHealth reports liveness
func (a *API) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"message":   "Server is running",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleGoogle handles POST /api/auth/google with {"code": "..."} obtained
// by the frontend from Google's consent screen.
func (a *API) HandleGoogle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, a.logger(), err)
		return
	}
	sess, err := a.Auth.AuthenticateWithExternalCode(r.Context(), req.Code)
	if err != nil {
		writeServiceError(w, a.logger(), err)
		return
	}
	a.writeSession(w, "Google login successful", sess)
}

// HandleGoogleStart begins the server-side redirect flow
func (a *API) HandleGoogleStart(w http.ResponseWriter, r *http.Request) {
	provider, ok := a.Auth.Provider.(RedirectProvider)
	if !ok {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "Google sign-in is not configured")
		return
	}
	state, err := GenerateSecureToken()
	if err != nil {
		writeServiceError(w, a.logger(), err)
		return
	}
	a.Sessions.Put(r.Context(), oauthStateKey, state)
	http.Redirect(w, r, provider.AuthCodeURL(state), http.StatusFound)
}

// HandleGoogleCallback completes the redirect flow. The refresh cookie is set
// and the browser is sent back to the frontend, which then calls /refresh
// to obtain an access token.
func (a *API) HandleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	expected := a.Sessions.PopString(r.Context(), oauthStateKey)
	state := r.URL.Query().Get("state")
	if expected == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(state)) != 1 {
		a.logger().Warn("google callback with invalid state")
		a.redirectToClient(w, r, "/login", url.Values{"error": {"invalid_state"}})
		return
	}
	if errParam := r.URL.Query().Get("error"); errParam != "" {
		a.redirectToClient(w, r, "/login", url.Values{"error": {"access_denied"}})
		return
	}

	sess, err := a.Auth.AuthenticateWithExternalCode(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		a.logger().Warn("google callback failed", "error", err)
		a.redirectToClient(w, r, "/login", url.Values{"error": {ErrorCode(err)}})
		return
	}
	if err := a.Sessions.RenewToken(r.Context()); err != nil {
		a.logger().Warn("could not renew session token", "error", err)
	}
	setRefreshCookie(w, sess.Tokens.RefreshToken, a.Auth.Issuer.RefreshTTL(), a.Production)
	a.redirectToClient(w, r, "/auth/callback", nil)
}

func (a *API) redirectToClient(w http.ResponseWriter, r *http.Request, path string, q url.Values) {
	target := strings.TrimRight(a.ClientURL, "/") + path
	if len(q) > 0 {
		target += "?" + q.Encode()
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (a *API) allowOrigin(origin string) bool {
	if origin == "" {
		return false
	}
	if a.ClientURL != "" && origin == strings.TrimRight(a.ClientURL, "/") {
		return true
	}
	return !a.Production && localhostOrigin.MatchString(origin)
}

func (a *API) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		a.logger().Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}
