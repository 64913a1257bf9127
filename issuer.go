package tutorauth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenPair is an access/refresh pair minted together
type TokenPair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"-"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"-"`
}

// IssuerConfig configures a TokenIssuer
type IssuerConfig struct {
	AccessSecret  string
	RefreshSecret string

	// Defaults to 15 minutes
	AccessTTL time.Duration

	// Defaults to 7 days
	RefreshTTL time.Duration

	// Now defaults to time.Now; tests override it
	Now func() time.Time
}

// TokenIssuer mints and verifies HS256 access and refresh tokens. Access and
// refresh tokens are signed with different secrets so one can never be
// accepted as the other.
type TokenIssuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// sessionClaims carry the user id plus a random jti so that two pairs minted
// within the same second are still distinct.
type sessionClaims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// NewTokenIssuer validates the config and returns an issuer
func NewTokenIssuer(cfg IssuerConfig) (*TokenIssuer, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, errors.New("token issuer: access and refresh secrets are required")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, errors.New("token issuer: access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = TokenExpiryAccessToken
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = TokenExpiryRefreshToken
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &TokenIssuer{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		now:           cfg.Now,
	}, nil
}

// AccessTTL returns the configured access token lifetime
func (t *TokenIssuer) AccessTTL() time.Duration { return t.accessTTL }

// RefreshTTL returns the configured refresh token lifetime
func (t *TokenIssuer) RefreshTTL() time.Duration { return t.refreshTTL }

// Issue mints a new access/refresh pair for userID
func (t *TokenIssuer) Issue(userID string) (*TokenPair, error) {
	if userID == "" {
		return nil, errors.New("token issuer: empty user id")
	}
	now := t.now()
	access, accessExp, err := t.sign(userID, now, t.accessTTL, t.accessSecret)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := t.sign(userID, now, t.refreshTTL, t.refreshSecret)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// VerifyAccess returns the user id carried by a valid access token
func (t *TokenIssuer) VerifyAccess(token string) (string, error) {
	return t.verify(token, t.accessSecret)
}

// VerifyRefresh returns the user id carried by a valid refresh token
func (t *TokenIssuer) VerifyRefresh(token string) (string, error) {
	return t.verify(token, t.refreshSecret)
}

func (t *TokenIssuer) sign(userID string, now time.Time, ttl time.Duration, secret []byte) (string, time.Time, error) {
	nonce, err := newNonce()
	if err != nil {
		return "", time.Time{}, err
	}
	expiresAt := now.Add(ttl)
	claims := sessionClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        nonce,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// verify collapses every failure (bad signature, expiry, malformed, wrong
// algorithm, missing user id) into ErrInvalidToken.
func (t *TokenIssuer) verify(tokenString string, secret []byte) (string, error) {
	if tokenString == "" {
		return "", ErrInvalidToken
	}
	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || !token.Valid || claims.UserID == "" {
		return "", ErrInvalidToken
	}
	return claims.UserID, nil
}

func newNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
