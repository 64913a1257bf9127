// Package oauth2 implements the Google identity provider used by tutorauth's
// external sign-in: the authorization code exchange through
// golang.org/x/oauth2 and the profile fetch through the Google OAuth2 v2 API.
package oauth2

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	goauth2 "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	ta "github.com/panyam/tutorauth"
)

// DefaultScopes are the scopes requested from Google
var DefaultScopes = []string{
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
}

// GoogleProvider implements ta.RedirectProvider against Google
type GoogleProvider struct {
	oauthConfig oauth2.Config
	apiEndpoint string
	httpClient  *http.Client
}

type Option func(*GoogleProvider)

// WithEndpoint overrides the authorization and token endpoints
func WithEndpoint(ep oauth2.Endpoint) Option {
	return func(g *GoogleProvider) { g.oauthConfig.Endpoint = ep }
}

// WithAPIEndpoint overrides the base URL of the userinfo API
func WithAPIEndpoint(url string) Option {
	return func(g *GoogleProvider) { g.apiEndpoint = url }
}

// WithHTTPClient sets the client used for the token exchange
func WithHTTPClient(c *http.Client) Option {
	return func(g *GoogleProvider) { g.httpClient = c }
}

// NewGoogleProvider creates a provider. Empty arguments fall back to the
// GOOGLE_CLIENT_ID, GOOGLE_CLIENT_SECRET and GOOGLE_REDIRECT_URI variables.
func NewGoogleProvider(clientId, clientSecret, redirectURL string, opts ...Option) *GoogleProvider {
	if clientId == "" {
		clientId = os.Getenv("GOOGLE_CLIENT_ID")
	}
	if clientSecret == "" {
		clientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	}
	if redirectURL == "" {
		redirectURL = os.Getenv("GOOGLE_REDIRECT_URI")
	}
	g := &GoogleProvider{
		oauthConfig: oauth2.Config{
			ClientID:     clientId,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       DefaultScopes,
			Endpoint:     google.Endpoint,
		},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// AuthCodeURL returns the consent screen URL carrying state
func (g *GoogleProvider) AuthCodeURL(state string) string {
	return g.oauthConfig.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades an authorization code for the user's Google profile
func (g *GoogleProvider) Exchange(ctx context.Context, code string) (*ta.ExternalProfile, error) {
	if g.oauthConfig.ClientID == "" {
		return nil, errors.New("google: client id not configured")
	}
	if g.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)
	}

	token, err := g.oauthConfig.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("google: code exchange: %w", err)
	}

	opts := []option.ClientOption{option.WithHTTPClient(g.oauthConfig.Client(ctx, token))}
	if g.apiEndpoint != "" {
		opts = append(opts, option.WithEndpoint(g.apiEndpoint))
	}
	svc, err := goauth2.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("google: userinfo client: %w", err)
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("google: fetch userinfo: %w", err)
	}
	if info.Id == "" || info.Email == "" {
		return nil, errors.New("google: userinfo missing id or email")
	}

	verified := false
	if info.VerifiedEmail != nil {
		verified = *info.VerifiedEmail
	}
	return &ta.ExternalProfile{
		Subject:       info.Id,
		Email:         info.Email,
		EmailVerified: verified,
		Name:          info.Name,
		GivenName:     info.GivenName,
		FamilyName:    info.FamilyName,
		Picture:       info.Picture,
	}, nil
}
