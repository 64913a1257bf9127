package tutorauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RegisterMessage is returned to the caller after a successful registration
const RegisterMessage = "Registration successful! Please check your email to verify your account."

// Session is the outcome of a successful login, external login or refresh
type Session struct {
	Credential *Credential
	Tokens     *TokenPair
}

// AuthService implements the session lifecycle: registration, verification,
// login, token refresh, logout, password reset and the external identity
// bridge. It holds no per-user state; the store is the only shared state.
type AuthService struct {
	Store    CredentialStore
	Issuer   *TokenIssuer
	Mailer   *Mailer
	Provider IdentityProvider
	Policy   PasswordPolicy
	DevMode  DevMode
	Logger   *slog.Logger
	Metrics  *Metrics

	// ExternalTimeout bounds the provider code exchange. Defaults to 10s.
	ExternalTimeout time.Duration

	// Now defaults to time.Now
	Now func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService wires an AuthService with the default policy
func NewAuthService(store CredentialStore, issuer *TokenIssuer, mailer *Mailer) *AuthService {
	return &AuthService{
		Store:           store,
		Issuer:          issuer,
		Mailer:          mailer,
		Policy:          DefaultPasswordPolicy(),
		ExternalTimeout: DefaultExternalTimeout,
	}
}

func (s *AuthService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *AuthService) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *AuthService) policy() PasswordPolicy {
	if s.Policy == (PasswordPolicy{}) {
		return DefaultPasswordPolicy()
	}
	return s.Policy
}

// burnHash runs a bcrypt comparison against a throwaway hash so that an
// unknown email takes as long as a wrong password.
func (s *AuthService) burnHash(pw string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = HashPassword("not-a-real-password-1A!")
	})
	CheckPassword(s.dummyHash, pw)
}

// Register creates an unverified local account and emails its verification
// link. Input is fully validated before anything is written. A failed email
// is logged; the account stays and the user can ask for a resend.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (cred *Credential, msg string, err error) {
	defer func() { s.Metrics.ObserveAuth("register", err) }()

	in.Normalize()
	if err := in.Validate(s.policy()); err != nil {
		return nil, "", err
	}

	if _, err := s.Store.GetCredentialByEmail(ctx, in.Email); err == nil {
		return nil, "", ErrDuplicateEmail
	} else if !errors.Is(err, ErrNotFound) {
		return nil, "", fmt.Errorf("register: lookup: %w", err)
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, "", fmt.Errorf("register: hash password: %w", err)
	}

	now := s.now()
	verification, err := NewOneTimeToken(now, TokenExpiryEmailVerification)
	if err != nil {
		return nil, "", err
	}

	cred = &Credential{
		ID:           uuid.NewString(),
		Email:        in.Email,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		PasswordHash: hash,
		Avatar:       DefaultAvatarURL(in.Email),
		Verification: &verification,
		Role:         RoleStudent,
		Preferences:  DefaultPreferences(),
		Progress:     DefaultProgress(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.Store.CreateCredential(ctx, cred); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, "", ErrDuplicateEmail
		}
		return nil, "", fmt.Errorf("register: create: %w", err)
	}

	s.logger().Info("account registered", "user_id", cred.ID)
	s.sendVerification(ctx, cred, verification.Token)
	return cred, RegisterMessage, nil
}

func (s *AuthService) sendVerification(ctx context.Context, c *Credential, token string) error {
	if s.Mailer == nil {
		s.logger().Warn("no mailer configured, verification email not sent", "user_id", c.ID)
		return nil
	}
	if err := s.Mailer.SendVerification(ctx, c, token); err != nil {
		s.logger().Error("failed to send verification email", "user_id", c.ID, "error", err)
		return err
	}
	return nil
}

// Login checks an email and password and issues a fresh token pair.
// Checks run in a fixed order: account exists, account has a password,
// password matches, email is verified (unless the dev bypass is active).
func (s *AuthService) Login(ctx context.Context, email, password string) (sess *Session, err error) {
	defer func() { s.Metrics.ObserveAuth("login", err) }()

	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if password == "" {
		return nil, NewValidationError("password", "Password is required")
	}

	cred, err := s.Store.GetCredentialByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		s.burnHash(password)
		return nil, ErrInvalidCredentials
	} else if err != nil {
		return nil, fmt.Errorf("login: lookup: %w", err)
	}

	if !cred.HasPassword() {
		return nil, ErrExternalIdentityOnly
	}
	if !CheckPassword(cred.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	if !cred.IsEmailVerified {
		if !s.DevMode.Active() {
			return nil, ErrEmailNotVerified
		}
		s.logger().Warn("dev mode: allowing login with unverified email", "user_id", cred.ID)
	}

	return s.startSession(ctx, cred, CredentialUpdate{})
}

// startSession stamps last-login (plus any extra fields in upd) and issues a
// token pair. Every login path ends here so token semantics never diverge.
func (s *AuthService) startSession(ctx context.Context, cred *Credential, upd CredentialUpdate) (*Session, error) {
	now := s.now()
	upd.LastLogin = &now
	if err := s.Store.UpdateCredential(ctx, cred.ID, upd); err != nil {
		return nil, fmt.Errorf("session: update: %w", err)
	}
	upd.ApplyTo(cred)
	cred.UpdatedAt = now

	tokens, err := s.Issuer.Issue(cred.ID)
	if err != nil {
		return nil, fmt.Errorf("session: issue tokens: %w", err)
	}
	return &Session{Credential: cred, Tokens: tokens}, nil
}

// RefreshToken verifies a refresh token and rotates both tokens. The account
// must still exist.
func (s *AuthService) RefreshToken(ctx context.Context, refresh string) (sess *Session, err error) {
	defer func() { s.Metrics.ObserveAuth("refresh", err) }()

	userID, err := s.Issuer.VerifyRefresh(refresh)
	if err != nil {
		return nil, ErrInvalidToken
	}
	cred, err := s.Store.GetCredentialByID(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidToken
	} else if err != nil {
		return nil, fmt.Errorf("refresh: lookup: %w", err)
	}
	tokens, err := s.Issuer.Issue(cred.ID)
	if err != nil {
		return nil, fmt.Errorf("refresh: issue tokens: %w", err)
	}
	return &Session{Credential: cred, Tokens: tokens}, nil
}

// Logout is best effort. Tokens are stateless so there is nothing to revoke
// server side; the HTTP layer clears the refresh cookie.
func (s *AuthService) Logout(ctx context.Context, access string) {
	s.Metrics.ObserveAuth("logout", nil)
	if userID, err := s.Issuer.VerifyAccess(access); err == nil {
		s.logger().Info("logout", "user_id", userID)
	}
}

// VerifyEmail marks the account holding token as verified and clears the token
func (s *AuthService) VerifyEmail(ctx context.Context, token string) (err error) {
	defer func() { s.Metrics.ObserveAuth("verify_email", err) }()

	if token == "" {
		return ErrInvalidOrExpiredToken
	}
	cred, err := s.Store.GetCredentialByVerificationToken(ctx, token, s.now())
	if errors.Is(err, ErrNotFound) {
		return ErrInvalidOrExpiredToken
	} else if err != nil {
		return fmt.Errorf("verify email: lookup: %w", err)
	}

	verified := true
	err = s.Store.UpdateCredential(ctx, cred.ID, CredentialUpdate{
		IsEmailVerified: &verified,
		Verification:    ClearToken(),
	})
	if err != nil {
		return fmt.Errorf("verify email: update: %w", err)
	}
	s.logger().Info("email verified", "user_id", cred.ID)
	return nil
}

// ResendVerification issues a new verification token and emails it
func (s *AuthService) ResendVerification(ctx context.Context, email string) (err error) {
	defer func() { s.Metrics.ObserveAuth("resend_verification", err) }()

	cred, err := s.lookupUnverified(ctx, email)
	if err != nil {
		return err
	}
	verification, err := NewOneTimeToken(s.now(), TokenExpiryEmailVerification)
	if err != nil {
		return err
	}
	err = s.Store.UpdateCredential(ctx, cred.ID, CredentialUpdate{Verification: SetToken(verification)})
	if err != nil {
		return fmt.Errorf("resend verification: update: %w", err)
	}
	return s.sendVerification(ctx, cred, verification.Token)
}

// SkipVerification force-verifies an account. Only available when the dev
// bypass is active.
func (s *AuthService) SkipVerification(ctx context.Context, email string) (err error) {
	defer func() { s.Metrics.ObserveAuth("skip_verification", err) }()

	if !s.DevMode.Active() {
		return ErrDevModeDisabled
	}
	cred, err := s.lookupUnverified(ctx, email)
	if err != nil {
		return err
	}
	verified := true
	err = s.Store.UpdateCredential(ctx, cred.ID, CredentialUpdate{
		IsEmailVerified: &verified,
		Verification:    ClearToken(),
	})
	if err != nil {
		return fmt.Errorf("skip verification: update: %w", err)
	}
	s.logger().Warn("dev mode: email verification skipped", "user_id", cred.ID)
	return nil
}

func (s *AuthService) lookupUnverified(ctx context.Context, email string) (*Credential, error) {
	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	cred, err := s.Store.GetCredentialByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("lookup: %w", err)
	}
	if cred.IsEmailVerified {
		return nil, ErrAlreadyVerified
	}
	return cred, nil
}

// ForgotPassword emails a one hour reset link. It reports success for
// unknown emails too, so callers cannot tell which accounts exist.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) (err error) {
	defer func() { s.Metrics.ObserveAuth("forgot_password", err) }()

	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return err
	}
	cred, err := s.Store.GetCredentialByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		s.logger().Info("password reset requested for unknown email")
		return nil
	} else if err != nil {
		return fmt.Errorf("forgot password: lookup: %w", err)
	}

	reset, err := NewOneTimeToken(s.now(), TokenExpiryPasswordReset)
	if err != nil {
		return err
	}
	if err := s.Store.UpdateCredential(ctx, cred.ID, CredentialUpdate{Reset: SetToken(reset)}); err != nil {
		return fmt.Errorf("forgot password: update: %w", err)
	}
	if s.Mailer == nil {
		s.logger().Warn("no mailer configured, reset email not sent", "user_id", cred.ID)
		return nil
	}
	if err := s.Mailer.SendPasswordReset(ctx, cred, reset.Token); err != nil {
		s.logger().Error("failed to send password reset email", "user_id", cred.ID, "error", err)
	}
	return nil
}

// ResetPassword sets a new password using a reset token. Receiving the reset
// email proves ownership of the address, so the account is also marked
// verified.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) (err error) {
	defer func() { s.Metrics.ObserveAuth("reset_password", err) }()

	if err := s.policy().Validate(newPassword); err != nil {
		return err
	}
	if token == "" {
		return ErrInvalidOrExpiredToken
	}
	cred, err := s.Store.GetCredentialByResetToken(ctx, token, s.now())
	if errors.Is(err, ErrNotFound) {
		return ErrInvalidOrExpiredToken
	} else if err != nil {
		return fmt.Errorf("reset password: lookup: %w", err)
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("reset password: hash: %w", err)
	}
	verified := true
	upd := CredentialUpdate{
		PasswordHash:    &hash,
		IsEmailVerified: &verified,
		Reset:           ClearToken(),
	}
	if !cred.IsEmailVerified {
		upd.Verification = ClearToken()
	}
	if err := s.Store.UpdateCredential(ctx, cred.ID, upd); err != nil {
		return fmt.Errorf("reset password: update: %w", err)
	}
	s.logger().Info("password reset", "user_id", cred.ID)
	return nil
}

// ChangePassword replaces the password of a logged in user who knows the
// current one.
func (s *AuthService) ChangePassword(ctx context.Context, userID, current, next string) (err error) {
	defer func() { s.Metrics.ObserveAuth("change_password", err) }()

	if err := s.policy().Validate(next); err != nil {
		return err
	}
	cred, err := s.Me(ctx, userID)
	if err != nil {
		return err
	}
	if !cred.HasPassword() {
		return ErrExternalIdentityOnly
	}
	if !CheckPassword(cred.PasswordHash, current) {
		return ErrInvalidCredentials
	}
	hash, err := HashPassword(next)
	if err != nil {
		return fmt.Errorf("change password: hash: %w", err)
	}
	if err := s.Store.UpdateCredential(ctx, cred.ID, CredentialUpdate{PasswordHash: &hash}); err != nil {
		return fmt.Errorf("change password: update: %w", err)
	}
	return nil
}

// SetPassword adds a local password to an account that so far only signs in
// through Google.
func (s *AuthService) SetPassword(ctx context.Context, userID, password string) (err error) {
	defer func() { s.Metrics.ObserveAuth("set_password", err) }()

	if err := s.policy().Validate(password); err != nil {
		return err
	}
	cred, err := s.Me(ctx, userID)
	if err != nil {
		return err
	}
	if cred.HasPassword() {
		return ErrPasswordAlreadySet
	}
	hash, err := HashPassword(password)
	if err != nil {
		return fmt.Errorf("set password: hash: %w", err)
	}
	if err := s.Store.UpdateCredential(ctx, cred.ID, CredentialUpdate{PasswordHash: &hash}); err != nil {
		return fmt.Errorf("set password: update: %w", err)
	}
	s.logger().Info("local password added", "user_id", cred.ID)
	return nil
}

// Me returns the credential for userID
func (s *AuthService) Me(ctx context.Context, userID string) (*Credential, error) {
	if userID == "" {
		return nil, ErrNotFound
	}
	cred, err := s.Store.GetCredentialByID(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	return cred, nil
}
