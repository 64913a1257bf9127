// Package client is a Go client for the tutorauth HTTP API. It keeps the
// access token in memory, lets a cookie jar hold the HttpOnly refresh
// cookie, and refreshes transparently when a request comes back 401.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	ta "github.com/panyam/tutorauth"
)

// RefreshThreshold is how long before expiry to proactively refresh
const RefreshThreshold = 1 * time.Minute

// DefaultAPIPrefix is where the auth routes are mounted on the server
const DefaultAPIPrefix = "/api/auth"

// APIError is a non-2xx answer from the auth API
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Field      string
	Reasons    []string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tutorauth: %s (%d %s)", e.Message, e.StatusCode, e.Code)
	}
	return fmt.Sprintf("tutorauth: %s (%d)", e.Message, e.StatusCode)
}

// Session is the client's view of a logged in user
type Session struct {
	AccessToken string
	ExpiresAt   time.Time
	User        *ta.UserView
}

func (s *Session) expiringSoon(within time.Duration) bool {
	return !s.ExpiresAt.IsZero() && time.Now().Add(within).After(s.ExpiresAt)
}

// AuthClient talks to a tutorauth server and manages the token pair
type AuthClient struct {
	mu        sync.Mutex
	serverURL string
	apiPrefix string
	session   *Session

	// raw carries the cookie jar and is used for the auth endpoints
	raw *http.Client

	// httpClient adds the bearer token and refreshes on 401
	httpClient *http.Client
}

// ClientOption configures an AuthClient
type ClientOption func(*AuthClient)

// WithAPIPrefix overrides the path the auth routes are mounted under
func WithAPIPrefix(prefix string) ClientOption {
	return func(c *AuthClient) {
		c.apiPrefix = "/" + strings.Trim(prefix, "/")
	}
}

// WithTransport sets the base transport (for test servers, proxies, etc.)
func WithTransport(transport http.RoundTripper) ClientOption {
	return func(c *AuthClient) {
		c.raw.Transport = transport
	}
}

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) ClientOption {
	return func(c *AuthClient) {
		c.raw.Timeout = d
	}
}

// NewAuthClient creates a client for the server at serverURL
func NewAuthClient(serverURL string, opts ...ClientOption) (*AuthClient, error) {
	u, err := url.Parse(serverURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid server url %q", serverURL)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	c := &AuthClient{
		serverURL: fmt.Sprintf("%s://%s", u.Scheme, u.Host),
		apiPrefix: DefaultAPIPrefix,
		raw:       &http.Client{Jar: jar, Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	base := c.raw.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	c.httpClient = &http.Client{
		Jar:       jar,
		Timeout:   c.raw.Timeout,
		Transport: &refreshTransport{client: c, base: base},
	}
	return c, nil
}

// HTTPClient returns a client that authenticates every request with the
// current access token
func (c *AuthClient) HTTPClient() *http.Client {
	return c.httpClient
}

// ServerURL returns the server URL this client is configured for
func (c *AuthClient) ServerURL() string {
	return c.serverURL
}

// Session returns the current session, or nil when logged out
func (c *AuthClient) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// IsLoggedIn reports whether an access token is held
func (c *AuthClient) IsLoggedIn() bool {
	return c.Session() != nil
}

// Register creates an account. The server answers without a session; the
// user has to verify their email before logging in.
func (c *AuthClient) Register(ctx context.Context, in ta.RegisterInput) (*ta.UserView, string, error) {
	resp, err := c.call(ctx, http.MethodPost, "/register", in, "")
	if err != nil {
		return nil, "", err
	}
	return resp.User, resp.Message, nil
}

// Login authenticates with email and password
func (c *AuthClient) Login(ctx context.Context, email, password string) (*Session, error) {
	resp, err := c.call(ctx, http.MethodPost, "/login", ta.LoginInput{Email: email, Password: password}, "")
	if err != nil {
		return nil, err
	}
	return c.storeSession(resp), nil
}

// LoginWithGoogle exchanges a Google authorization code for a session
func (c *AuthClient) LoginWithGoogle(ctx context.Context, code string) (*Session, error) {
	resp, err := c.call(ctx, http.MethodPost, "/google", map[string]string{"code": code}, "")
	if err != nil {
		return nil, err
	}
	return c.storeSession(resp), nil
}

// Refresh trades the refresh cookie for a new token pair
func (c *AuthClient) Refresh(ctx context.Context) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshLocked(ctx)
}

func (c *AuthClient) refreshLocked(ctx context.Context) (*Session, error) {
	resp, err := c.call(ctx, http.MethodPost, "/refresh", nil, "")
	if err != nil {
		c.session = nil
		return nil, err
	}
	prev := c.session
	c.session = newSession(resp)
	if c.session.User == nil && prev != nil {
		c.session.User = prev.User
	}
	return c.session, nil
}

// Logout ends the session on the server and forgets it locally
func (c *AuthClient) Logout(ctx context.Context) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}
	_, err = c.call(ctx, http.MethodPost, "/logout", nil, token)

	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()
	return err
}

// Me fetches the current user
func (c *AuthClient) Me(ctx context.Context) (*ta.UserView, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/me"), nil)
	if err != nil {
		return nil, err
	}
	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()
	resp, err := decodeResponse(httpResp)
	if err != nil {
		return nil, err
	}
	return resp.User, nil
}

// accessToken returns a usable access token, refreshing first when the
// current one is about to expire
func (c *AuthClient) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return "", nil
	}
	if c.session.expiringSoon(RefreshThreshold) {
		if _, err := c.refreshLocked(ctx); err != nil {
			return "", fmt.Errorf("token expired and refresh failed: %w", err)
		}
	}
	return c.session.AccessToken, nil
}

func (c *AuthClient) storeSession(resp *ta.Response) *Session {
	sess := newSession(resp)
	c.mu.Lock()
	c.session = sess
	c.mu.Unlock()
	return sess
}

func newSession(resp *ta.Response) *Session {
	return &Session{
		AccessToken: resp.AccessToken,
		ExpiresAt:   tokenExpiry(resp.AccessToken),
		User:        resp.User,
	}
}

// tokenExpiry reads exp from the access token without verifying it. The
// client never holds the signing secret; the server remains the authority.
func tokenExpiry(token string) time.Time {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil || claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}

func (c *AuthClient) endpoint(path string) string {
	return c.serverURL + c.apiPrefix + path
}

// call performs a request against an auth endpoint on the raw client
func (c *AuthClient) call(ctx context.Context, method, path string, body any, bearer string) (*ta.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	httpResp, err := c.raw.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	defer httpResp.Body.Close()
	return decodeResponse(httpResp)
}

func decodeResponse(httpResp *http.Response) (*ta.Response, error) {
	var resp ta.Response
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		if httpResp.StatusCode >= 300 {
			return nil, &APIError{StatusCode: httpResp.StatusCode, Message: http.StatusText(httpResp.StatusCode)}
		}
		return nil, fmt.Errorf("invalid response from server: %w", err)
	}
	if httpResp.StatusCode >= 300 || !resp.Success {
		return nil, &APIError{
			StatusCode: httpResp.StatusCode,
			Code:       resp.Code,
			Message:    resp.Message,
			Field:      resp.Field,
			Reasons:    resp.Reasons,
		}
	}
	return &resp, nil
}
