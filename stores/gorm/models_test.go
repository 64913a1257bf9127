//go:build !wasm

package gorm

import (
	"context"
	"errors"
	"os"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/schema"

	ta "github.com/panyam/tutorauth"
)

func TestCredentialModelRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	c := &ta.Credential{
		ID:              "u1",
		Email:           " Ada@Example.com",
		FirstName:       "Ada",
		LastName:        "Lovelace",
		PasswordHash:    "$2a$12$hash",
		GoogleID:        "g-1",
		IsEmailVerified: true,
		Verification:    &ta.OneTimeToken{Token: "v", ExpiresAt: now.Add(time.Hour)},
		Role:            ta.RoleTeacher,
		Preferences:     ta.Preferences{Theme: ta.ThemeLight, Notifications: false},
		Progress:        ta.Progress{Level: 3, XP: 250, CompletedLessons: []string{"intro"}},
		LastLogin:       &now,
	}

	m := CredentialToModel(c)
	assert.Equal(t, "ada@example.com", m.Email)
	require.NotNil(t, m.GoogleID)
	require.NotNil(t, m.VerificationToken)
	assert.Nil(t, m.ResetToken)
	assert.Nil(t, m.ResetExpires)

	back := m.ToCredential()
	assert.Equal(t, "ada@example.com", back.Email)
	assert.Equal(t, c.GoogleID, back.GoogleID)
	assert.Equal(t, c.Verification, back.Verification)
	assert.Nil(t, back.Reset)
	assert.Equal(t, c.Role, back.Role)
	assert.Equal(t, c.Preferences, back.Preferences)
	assert.Equal(t, c.Progress, back.Progress)
}

func TestCredentialToModelDefaults(t *testing.T) {
	m := CredentialToModel(&ta.Credential{ID: "u2", Email: "x@example.com"})
	assert.Nil(t, m.GoogleID, "empty subject must be stored as NULL so the unique index allows many")
	assert.Equal(t, string(ta.RoleStudent), m.Role)
	assert.Equal(t, string(ta.ThemeDark), m.Theme)
	assert.Equal(t, 1, m.Level)

	back := m.ToCredential()
	assert.NotNil(t, back.Progress.CompletedLessons)
}

// gorm skips zero values that carry a column default on insert, so a bool
// defaulting to true could never be stored as false.
func TestBoolColumnsDefaultFalse(t *testing.T) {
	s, err := schema.Parse(&CredentialModel{}, &sync.Map{}, schema.NamingStrategy{})
	require.NoError(t, err)

	f := s.LookUpField("Notifications")
	require.NotNil(t, f)
	assert.False(t, f.HasDefaultValue, "notifications must not have a column default")

	for _, f := range s.Fields {
		if f.FieldType.Kind() != reflect.Bool || !f.HasDefaultValue {
			continue
		}
		assert.Equal(t, false, f.DefaultValueInterface, "%s defaults to true", f.Name)
	}
}

func TestUpdateColumns(t *testing.T) {
	expires := time.Now().Add(time.Hour)
	hash := "$2a$12$x"
	empty := ""
	verified := true

	tests := []struct {
		name string
		upd  ta.CredentialUpdate
		want map[string]any
	}{
		{"empty", ta.CredentialUpdate{}, map[string]any{}},
		{
			"password and verification",
			ta.CredentialUpdate{PasswordHash: &hash, IsEmailVerified: &verified, Verification: ta.ClearToken()},
			map[string]any{
				"password_hash":        hash,
				"is_email_verified":    true,
				"verification_token":   nil,
				"verification_expires": nil,
			},
		},
		{
			"set reset token",
			ta.CredentialUpdate{Reset: ta.SetToken(ta.OneTimeToken{Token: "r", ExpiresAt: expires})},
			map[string]any{"reset_token": "r", "reset_expires": expires},
		},
		{
			"unlink subject",
			ta.CredentialUpdate{GoogleID: &empty},
			map[string]any{"google_id": (*string)(nil)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, updateColumns(tt.upd))
		})
	}
}

func TestStringSlice(t *testing.T) {
	v, err := StringSlice(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", v)

	v, err = StringSlice{"a", "b"}.Value()
	require.NoError(t, err)
	assert.Equal(t, `["a","b"]`, v)

	var s StringSlice
	require.NoError(t, s.Scan([]byte(`["x"]`)))
	assert.Equal(t, StringSlice{"x"}, s)
	require.NoError(t, s.Scan(`["y","z"]`))
	assert.Equal(t, StringSlice{"y", "z"}, s)
	require.NoError(t, s.Scan(nil))
	assert.Nil(t, s)
	assert.Error(t, s.Scan("not json"))
}

// TestCredentialStorePostgres runs against a real database when
// TUTORAUTH_TEST_DSN is set.
func TestCredentialStorePostgres(t *testing.T) {
	dsn := os.Getenv("TUTORAUTH_TEST_DSN")
	if dsn == "" {
		t.Skip("TUTORAUTH_TEST_DSN not set")
	}
	db, err := Open(dsn)
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))
	store := NewCredentialStore(db)
	ctx := context.Background()
	now := time.Now()

	suffix := uuid.NewString()
	email := "pg-" + suffix + "@example.com"
	c := &ta.Credential{ID: "pg-" + suffix, Email: email, FirstName: "Pg", LastName: "Test",
		Verification: &ta.OneTimeToken{Token: "tok-" + suffix, ExpiresAt: now.Add(time.Hour)}}
	require.NoError(t, store.CreateCredential(ctx, c))
	t.Cleanup(func() { db.Where("id = ?", c.ID).Delete(&CredentialModel{}) })

	dup := &ta.Credential{ID: "pg2-" + suffix, Email: email}
	assert.True(t, errors.Is(store.CreateCredential(ctx, dup), ta.ErrDuplicateEmail))

	got, err := store.GetCredentialByVerificationToken(ctx, "tok-"+suffix, now)
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)

	_, err = store.GetCredentialByVerificationToken(ctx, "tok-"+suffix, now.Add(2*time.Hour))
	assert.True(t, errors.Is(err, ta.ErrNotFound))

	verified := true
	require.NoError(t, store.UpdateCredential(ctx, c.ID, ta.CredentialUpdate{IsEmailVerified: &verified, Verification: ta.ClearToken()}))
	got, err = store.GetCredentialByEmail(ctx, email)
	require.NoError(t, err)
	assert.True(t, got.IsEmailVerified)
	assert.Nil(t, got.Verification)

	assert.True(t, errors.Is(store.UpdateCredential(ctx, "missing-"+suffix, ta.CredentialUpdate{IsEmailVerified: &verified}), ta.ErrNotFound))
}
