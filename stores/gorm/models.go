//go:build !wasm

package gorm

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	ta "github.com/panyam/tutorauth"
)

// StringSlice is a helper type for storing string slices in GORM
type StringSlice []string

func (s StringSlice) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	b, err := json.Marshal(s)
	return string(b), err
}

func (s *StringSlice) Scan(value any) error {
	if value == nil {
		*s = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil
	}
	return json.Unmarshal(bytes, s)
}

// CredentialModel is the GORM model for credentials. The one-time tokens are
// flattened into token/expiry column pairs that are always written together.
type CredentialModel struct {
	ID                  string  `gorm:"primaryKey;size:64"`
	Email               string  `gorm:"size:255;not null;uniqueIndex:idx_credentials_email"`
	FirstName           string  `gorm:"size:50"`
	LastName            string  `gorm:"size:50"`
	PasswordHash        string  `gorm:"size:128"`
	GoogleID            *string `gorm:"size:128;uniqueIndex:idx_credentials_google_id"`
	Avatar              string  `gorm:"size:512"`
	IsEmailVerified     bool    `gorm:"default:false"`
	VerificationToken   *string `gorm:"size:128;index"`
	VerificationExpires *time.Time
	ResetToken          *string `gorm:"size:128;index"`
	ResetExpires        *time.Time
	Role                string      `gorm:"size:16;default:student"`
	Theme               string      `gorm:"size:16;default:dark"`
	Notifications       bool        `gorm:"not null"`
	Level               int         `gorm:"default:1"`
	XP                  int         `gorm:"default:0"`
	CompletedLessons    StringSlice `gorm:"type:jsonb"`
	LastLogin           *time.Time
	CreatedAt           time.Time `gorm:"autoCreateTime"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime"`
}

func (CredentialModel) TableName() string {
	return "credentials"
}

func (m *CredentialModel) ToCredential() *ta.Credential {
	c := &ta.Credential{
		ID:              m.ID,
		Email:           m.Email,
		FirstName:       m.FirstName,
		LastName:        m.LastName,
		PasswordHash:    m.PasswordHash,
		Avatar:          m.Avatar,
		IsEmailVerified: m.IsEmailVerified,
		Verification:    joinToken(m.VerificationToken, m.VerificationExpires),
		Reset:           joinToken(m.ResetToken, m.ResetExpires),
		Role:            ta.Role(m.Role),
		Preferences: ta.Preferences{
			Theme:         ta.Theme(m.Theme),
			Notifications: m.Notifications,
		},
		Progress: ta.Progress{
			Level:            m.Level,
			XP:               m.XP,
			CompletedLessons: []string(m.CompletedLessons),
		},
		LastLogin: m.LastLogin,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	if m.GoogleID != nil {
		c.GoogleID = *m.GoogleID
	}
	if c.Progress.CompletedLessons == nil {
		c.Progress.CompletedLessons = []string{}
	}
	return c
}

func CredentialToModel(c *ta.Credential) *CredentialModel {
	m := &CredentialModel{
		ID:               c.ID,
		Email:            ta.NormalizeEmail(c.Email),
		FirstName:        c.FirstName,
		LastName:         c.LastName,
		PasswordHash:     c.PasswordHash,
		GoogleID:         nullable(c.GoogleID),
		Avatar:           c.Avatar,
		IsEmailVerified:  c.IsEmailVerified,
		Role:             string(c.Role),
		Theme:            string(c.Preferences.Theme),
		Notifications:    c.Preferences.Notifications,
		Level:            c.Progress.Level,
		XP:               c.Progress.XP,
		CompletedLessons: StringSlice(c.Progress.CompletedLessons),
		LastLogin:        c.LastLogin,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
	m.VerificationToken, m.VerificationExpires = splitToken(c.Verification)
	m.ResetToken, m.ResetExpires = splitToken(c.Reset)
	if m.Role == "" {
		m.Role = string(ta.RoleStudent)
	}
	if m.Theme == "" {
		m.Theme = string(ta.ThemeDark)
	}
	if m.Level < 1 {
		m.Level = 1
	}
	return m
}

// updateColumns translates a field-level update into a column map. Token
// and expiry columns are always set or cleared as a pair.
func updateColumns(upd ta.CredentialUpdate) map[string]any {
	cols := map[string]any{}
	if upd.PasswordHash != nil {
		cols["password_hash"] = *upd.PasswordHash
	}
	if upd.GoogleID != nil {
		cols["google_id"] = nullable(*upd.GoogleID)
	}
	if upd.Avatar != nil {
		cols["avatar"] = *upd.Avatar
	}
	if upd.IsEmailVerified != nil {
		cols["is_email_verified"] = *upd.IsEmailVerified
	}
	if upd.LastLogin != nil {
		cols["last_login"] = *upd.LastLogin
	}
	tokenColumns(cols, "verification_token", "verification_expires", upd.Verification)
	tokenColumns(cols, "reset_token", "reset_expires", upd.Reset)
	return cols
}

func tokenColumns(cols map[string]any, tokenCol, expiresCol string, change ta.TokenChange) {
	if tok, ok := change.Token(); ok {
		cols[tokenCol] = tok.Token
		cols[expiresCol] = tok.ExpiresAt
	} else if change.Cleared() {
		cols[tokenCol] = nil
		cols[expiresCol] = nil
	}
}

func joinToken(token *string, expires *time.Time) *ta.OneTimeToken {
	if token == nil || *token == "" || expires == nil {
		return nil
	}
	return &ta.OneTimeToken{Token: *token, ExpiresAt: *expires}
}

func splitToken(t *ta.OneTimeToken) (*string, *time.Time) {
	if t == nil || t.Token == "" {
		return nil, nil
	}
	token, expires := t.Token, t.ExpiresAt
	return &token, &expires
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
