package tutorauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultExternalTimeout bounds the provider code exchange
const DefaultExternalTimeout = 10 * time.Second

// ExternalProfile is the identity asserted by an external provider
type ExternalProfile struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	GivenName     string
	FamilyName    string
	Picture       string
}

// IdentityProvider exchanges an authorization code for a profile
type IdentityProvider interface {
	Exchange(ctx context.Context, code string) (*ExternalProfile, error)
}

// RedirectProvider is an IdentityProvider that can also start a browser
// redirect flow.
type RedirectProvider interface {
	IdentityProvider
	AuthCodeURL(state string) string
}

// AuthenticateWithExternalCode signs a user in with a Google authorization
// code. An account already linked to the subject is used as is, unknown
// emails get a new passwordless account, existing accounts without a linked
// identity get linked, and every path ends in the same token issuance as a
// password login.
func (s *AuthService) AuthenticateWithExternalCode(ctx context.Context, code string) (sess *Session, err error) {
	defer func() { s.Metrics.ObserveAuth("external_login", err) }()

	if strings.TrimSpace(code) == "" {
		return nil, NewValidationError("code", "Authorization code is required")
	}
	if s.Provider == nil {
		return nil, fmt.Errorf("%w: no identity provider configured", ErrExternalAuthFailed)
	}

	timeout := s.ExternalTimeout
	if timeout <= 0 {
		timeout = DefaultExternalTimeout
	}
	exCtx, cancel := context.WithTimeout(ctx, timeout)
	profile, err := s.Provider.Exchange(exCtx, code)
	cancel()
	if err != nil {
		s.logger().Warn("external code exchange failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrExternalAuthFailed, err)
	}
	if profile == nil || profile.Subject == "" || profile.Email == "" {
		return nil, fmt.Errorf("%w: incomplete profile", ErrExternalAuthFailed)
	}
	email := NormalizeEmail(profile.Email)

	// a linked account is found by subject even if its Google email changed
	cred, err := s.Store.GetCredentialByGoogleID(ctx, profile.Subject)
	if err == nil {
		return s.startSession(ctx, cred, CredentialUpdate{})
	} else if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("external login: lookup: %w", err)
	}

	cred, err = s.Store.GetCredentialByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		cred, err = s.createExternal(ctx, email, profile)
		if errors.Is(err, ErrDuplicateEmail) {
			// lost a race with a concurrent registration; link instead
			cred, err = s.Store.GetCredentialByEmail(ctx, email)
		} else if err == nil {
			return s.startSession(ctx, cred, CredentialUpdate{})
		}
	}
	if err != nil {
		return nil, fmt.Errorf("external login: %w", err)
	}

	var upd CredentialUpdate
	switch {
	case cred.GoogleID == "":
		subject := profile.Subject
		upd.GoogleID = &subject
		if profile.Picture != "" {
			picture := profile.Picture
			upd.Avatar = &picture
		}
		if profile.EmailVerified && !cred.IsEmailVerified {
			verified := true
			upd.IsEmailVerified = &verified
			upd.Verification = ClearToken()
		}
		s.logger().Info("linked google identity", "user_id", cred.ID)
	case cred.GoogleID != profile.Subject:
		s.logger().Warn("google subject mismatch for existing account", "user_id", cred.ID)
		return nil, fmt.Errorf("%w: account linked to a different identity", ErrExternalAuthFailed)
	}

	sess, err = s.startSession(ctx, cred, upd)
	if errors.Is(err, ErrDuplicateExternalID) {
		return nil, fmt.Errorf("%w: identity linked to another account", ErrExternalAuthFailed)
	}
	return sess, err
}

func (s *AuthService) createExternal(ctx context.Context, email string, p *ExternalProfile) (*Credential, error) {
	first, last := p.GivenName, p.FamilyName
	if first == "" && last == "" {
		first, last = splitDisplayName(p.Name)
	}
	if first == "" {
		first = strings.SplitN(email, "@", 2)[0]
	}
	avatar := p.Picture
	if avatar == "" {
		avatar = DefaultAvatarURL(email)
	}

	now := s.now()
	cred := &Credential{
		ID:              uuid.NewString(),
		Email:           email,
		FirstName:       first,
		LastName:        last,
		GoogleID:        p.Subject,
		Avatar:          avatar,
		IsEmailVerified: p.EmailVerified,
		Role:            RoleStudent,
		Preferences:     DefaultPreferences(),
		Progress:        DefaultProgress(),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.Store.CreateCredential(ctx, cred); err != nil {
		if errors.Is(err, ErrDuplicateExternalID) {
			return nil, fmt.Errorf("%w: identity linked to another account", ErrExternalAuthFailed)
		}
		return nil, err
	}
	s.logger().Info("account created from google identity", "user_id", cred.ID)
	return cred, nil
}
