package tutorauth

import (
	"context"
	"strings"
	"time"
)

// Role is the authorization role of a credential
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return true
	}
	return false
}

// Theme is the UI theme preference
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// Preferences holds per-user UI settings
type Preferences struct {
	Theme         Theme `json:"theme"`
	Notifications bool  `json:"notifications"`
}

// DefaultPreferences returns the preferences given to new accounts
func DefaultPreferences() Preferences {
	return Preferences{Theme: ThemeDark, Notifications: true}
}

// Progress is the learning progress aggregate.
// Level starts at 1 and XP at 0; neither decreases.
type Progress struct {
	Level            int      `json:"level"`
	XP               int      `json:"xp"`
	CompletedLessons []string `json:"completedLessons"`
}

// DefaultProgress returns the progress of a fresh account
func DefaultProgress() Progress {
	return Progress{Level: 1, XP: 0, CompletedLessons: []string{}}
}

// OneTimeToken is a single-use token with its expiry. The two are always
// stored and cleared together.
type OneTimeToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ValidAt reports whether the token has not expired at t
func (t *OneTimeToken) ValidAt(now time.Time) bool {
	return t != nil && t.Token != "" && now.Before(t.ExpiresAt)
}

// Credential is the stored identity and auth data for one user
type Credential struct {
	ID              string        `json:"id"`
	Email           string        `json:"email"`
	FirstName       string        `json:"first_name"`
	LastName        string        `json:"last_name"`
	PasswordHash    string        `json:"password_hash,omitempty"`
	GoogleID        string        `json:"google_id,omitempty"`
	Avatar          string        `json:"avatar,omitempty"`
	IsEmailVerified bool          `json:"is_email_verified"`
	Verification    *OneTimeToken `json:"verification,omitempty"`
	Reset           *OneTimeToken `json:"reset,omitempty"`
	Role            Role          `json:"role"`
	Preferences     Preferences   `json:"preferences"`
	Progress        Progress      `json:"progress"`
	LastLogin       *time.Time    `json:"last_login,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// HasPassword is true when the account can log in with a local password
func (c *Credential) HasPassword() bool {
	return c.PasswordHash != ""
}

// HasExternalIdentity is true when a Google account is linked
func (c *Credential) HasExternalIdentity() bool {
	return c.GoogleID != ""
}

// UserView is the public projection of a credential returned to clients.
// It never carries the password hash or any one-time token.
type UserView struct {
	ID              string      `json:"id"`
	FirstName       string      `json:"firstName"`
	LastName        string      `json:"lastName"`
	Email           string      `json:"email"`
	Avatar          string      `json:"avatar,omitempty"`
	Role            Role        `json:"role"`
	IsEmailVerified bool        `json:"isEmailVerified"`
	Preferences     Preferences `json:"preferences"`
	Progress        Progress    `json:"progress"`
}

// Projection returns the client-facing view of c
func (c *Credential) Projection() UserView {
	progress := c.Progress
	if progress.CompletedLessons == nil {
		progress.CompletedLessons = []string{}
	}
	return UserView{
		ID:              c.ID,
		FirstName:       c.FirstName,
		LastName:        c.LastName,
		Email:           c.Email,
		Avatar:          c.Avatar,
		Role:            c.Role,
		IsEmailVerified: c.IsEmailVerified,
		Preferences:     c.Preferences,
		Progress:        progress,
	}
}

// NormalizeEmail lower-cases and trims an email so lookups are case-insensitive
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// TokenChange describes how a field-level update touches a one-time token:
// leave it alone (zero value), replace it, or clear it.
type TokenChange struct {
	set   *OneTimeToken
	clear bool
}

// SetToken replaces the stored token and expiry
func SetToken(t OneTimeToken) TokenChange { return TokenChange{set: &t} }

// ClearToken removes the stored token and expiry
func ClearToken() TokenChange { return TokenChange{clear: true} }

// Token returns the replacement token, if any
func (c TokenChange) Token() (OneTimeToken, bool) {
	if c.set == nil {
		return OneTimeToken{}, false
	}
	return *c.set, true
}

// Cleared reports whether the change clears the token
func (c TokenChange) Cleared() bool { return c.clear }

// IsZero reports whether the change leaves the token untouched
func (c TokenChange) IsZero() bool { return c.set == nil && !c.clear }

func (c TokenChange) apply(cur *OneTimeToken) *OneTimeToken {
	switch {
	case c.set != nil:
		t := *c.set
		return &t
	case c.clear:
		return nil
	}
	return cur
}

// CredentialUpdate is a field-level update. Nil pointers and zero token
// changes leave the stored value untouched.
type CredentialUpdate struct {
	PasswordHash    *string
	GoogleID        *string
	Avatar          *string
	IsEmailVerified *bool
	LastLogin       *time.Time
	Verification    TokenChange
	Reset           TokenChange
}

// ApplyTo copies the update onto c. Stores that keep whole records use this
// so the field semantics stay identical across backends.
func (u CredentialUpdate) ApplyTo(c *Credential) {
	if u.PasswordHash != nil {
		c.PasswordHash = *u.PasswordHash
	}
	if u.GoogleID != nil {
		c.GoogleID = *u.GoogleID
	}
	if u.Avatar != nil {
		c.Avatar = *u.Avatar
	}
	if u.IsEmailVerified != nil {
		c.IsEmailVerified = *u.IsEmailVerified
	}
	if u.LastLogin != nil {
		t := *u.LastLogin
		c.LastLogin = &t
	}
	c.Verification = u.Verification.apply(c.Verification)
	c.Reset = u.Reset.apply(c.Reset)
}

// CredentialStore is the single source of truth for credential records.
// Implementations enforce email uniqueness themselves and return
// ErrDuplicateEmail when an insert loses that race, and ErrNotFound when a
// lookup matches nothing.
type CredentialStore interface {
	// CreateCredential inserts a new record
	CreateCredential(ctx context.Context, c *Credential) error

	// GetCredentialByID looks up a record by identifier
	GetCredentialByID(ctx context.Context, id string) (*Credential, error)

	// GetCredentialByEmail looks up a record by normalized email
	GetCredentialByEmail(ctx context.Context, email string) (*Credential, error)

	// GetCredentialByGoogleID looks up the record linked to a Google subject
	GetCredentialByGoogleID(ctx context.Context, subject string) (*Credential, error)

	// GetCredentialByVerificationToken finds the record holding token with an expiry after now
	GetCredentialByVerificationToken(ctx context.Context, token string, now time.Time) (*Credential, error)

	// GetCredentialByResetToken finds the record holding a password reset token with an expiry after now
	GetCredentialByResetToken(ctx context.Context, token string, now time.Time) (*Credential, error)

	// UpdateCredential applies a field-level update to the record with the given id
	UpdateCredential(ctx context.Context, id string, upd CredentialUpdate) error
}
