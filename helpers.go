package tutorauth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"
)

const maxBodyBytes = 1 << 20

// Response is the JSON envelope of every auth endpoint
type Response struct {
	Success     bool      `json:"success"`
	Message     string    `json:"message"`
	User        *UserView `json:"user,omitempty"`
	AccessToken string    `json:"accessToken,omitempty"`
	Code        string    `json:"code,omitempty"`
	Field       string    `json:"field,omitempty"`
	Reasons     []string  `json:"reasons,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Response{Success: false, Message: message, Code: code})
}

// writeServiceError maps a service error to its status and stable message.
// Internal errors are logged and never leak to the client.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "error", err)
	}
	resp := Response{Success: false, Message: PublicMessage(err), Code: ErrorCode(err)}
	var verr *ValidationError
	if errors.As(err, &verr) {
		resp.Field = verr.Field
		resp.Reasons = verr.Reasons
	}
	writeJSON(w, status, resp)
}

// decodeJSON reads a bounded JSON body into v
func decodeJSON(r *http.Request, v any) error {
	body := io.LimitReader(r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return NewValidationError("body", "Request body is required")
		}
		return NewValidationError("body", "Invalid request body")
	}
	return nil
}

// getClientIP returns the address rate limits are keyed on. Only the socket
// address is used; forwarding headers are honoured solely when API.TrustProxy
// has rewritten RemoteAddr from them.
func getClientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// RateLimiter decides whether the caller identified by key may proceed.
// Implementations live in the ratelimit package.
type RateLimiter interface {
	Allow(ctx context.Context, key string) bool
}

// RefreshCookieName is the cookie carrying the refresh token
const RefreshCookieName = "refreshToken"

func setRefreshCookie(w http.ResponseWriter, token string, ttl time.Duration, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(ttl),
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func clearRefreshCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
}
