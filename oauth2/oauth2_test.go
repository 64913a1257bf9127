package oauth2_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	oauth2lib "golang.org/x/oauth2"

	"github.com/panyam/tutorauth/oauth2"
)

// mockGoogleServer stands in for Google's token endpoint and the
// /oauth2/v2/userinfo API.
type mockGoogleServer struct {
	server *httptest.Server

	tokenResponse    map[string]any
	userInfoResponse map[string]any
	tokenError       bool
	userInfoError    bool
	lastCode         string
	lastAuthHeader   string
}

func newMockGoogleServer() *mockGoogleServer {
	mock := &mockGoogleServer{
		tokenResponse: map[string]any{
			"access_token": "mock_access_token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		},
		userInfoResponse: map[string]any{
			"id":             "g-12345",
			"email":          "Learner@Example.com",
			"verified_email": true,
			"name":           "Ada Lovelace",
			"given_name":     "Ada",
			"family_name":    "Lovelace",
			"picture":        "https://example.com/ada.png",
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if mock.tokenError {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		r.ParseForm()
		mock.lastCode = r.FormValue("code")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(mock.tokenResponse)
	})
	mux.HandleFunc("/oauth2/v2/userinfo", func(w http.ResponseWriter, r *http.Request) {
		mock.lastAuthHeader = r.Header.Get("Authorization")
		if mock.userInfoError {
			http.Error(w, `{"error":{"code":401,"message":"bad token"}}`, http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(mock.userInfoResponse)
	})
	mock.server = httptest.NewServer(mux)
	return mock
}

func (m *mockGoogleServer) Close() { m.server.Close() }

func (m *mockGoogleServer) provider() *oauth2.GoogleProvider {
	return oauth2.NewGoogleProvider("test-client-id", "test-client-secret", "http://localhost:8080/api/auth/google/callback",
		oauth2.WithEndpoint(oauth2lib.Endpoint{
			AuthURL:  m.server.URL + "/auth",
			TokenURL: m.server.URL + "/token",
		}),
		oauth2.WithAPIEndpoint(m.server.URL+"/"),
		oauth2.WithHTTPClient(m.server.Client()),
	)
}

func TestGoogleProviderAuthCodeURL(t *testing.T) {
	mock := newMockGoogleServer()
	defer mock.Close()

	location := mock.provider().AuthCodeURL("state-123")
	require.True(t, strings.HasPrefix(location, mock.server.URL+"/auth"), location)

	parsed, err := url.Parse(location)
	require.NoError(t, err)
	q := parsed.Query()
	assert.Equal(t, "test-client-id", q.Get("client_id"))
	assert.Equal(t, "state-123", q.Get("state"))
	assert.Equal(t, "http://localhost:8080/api/auth/google/callback", q.Get("redirect_uri"))
	assert.Contains(t, q.Get("scope"), "userinfo.email")
}

func TestGoogleProviderExchange(t *testing.T) {
	t.Run("returns profile", func(t *testing.T) {
		mock := newMockGoogleServer()
		defer mock.Close()

		profile, err := mock.provider().Exchange(context.Background(), "auth-code")
		require.NoError(t, err)
		assert.Equal(t, "auth-code", mock.lastCode)
		assert.Equal(t, "Bearer mock_access_token", mock.lastAuthHeader)
		assert.Equal(t, "g-12345", profile.Subject)
		assert.Equal(t, "Learner@Example.com", profile.Email)
		assert.True(t, profile.EmailVerified)
		assert.Equal(t, "Ada", profile.GivenName)
		assert.Equal(t, "Lovelace", profile.FamilyName)
		assert.Equal(t, "https://example.com/ada.png", profile.Picture)
	})

	t.Run("unverified email is reported", func(t *testing.T) {
		mock := newMockGoogleServer()
		defer mock.Close()
		mock.userInfoResponse["verified_email"] = false

		profile, err := mock.provider().Exchange(context.Background(), "auth-code")
		require.NoError(t, err)
		assert.False(t, profile.EmailVerified)
	})

	tests := []struct {
		name  string
		setup func(m *mockGoogleServer)
	}{
		{"token exchange fails", func(m *mockGoogleServer) { m.tokenError = true }},
		{"userinfo fails", func(m *mockGoogleServer) { m.userInfoError = true }},
		{"profile without email", func(m *mockGoogleServer) { delete(m.userInfoResponse, "email") }},
		{"profile without id", func(m *mockGoogleServer) { delete(m.userInfoResponse, "id") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMockGoogleServer()
			defer mock.Close()
			tt.setup(mock)

			profile, err := mock.provider().Exchange(context.Background(), "auth-code")
			assert.Error(t, err)
			assert.Nil(t, profile)
		})
	}

	t.Run("missing client id", func(t *testing.T) {
		t.Setenv("GOOGLE_CLIENT_ID", "")
		p := oauth2.NewGoogleProvider("", "secret", "http://localhost/cb")
		_, err := p.Exchange(context.Background(), "code")
		assert.Error(t, err)
	})
}
