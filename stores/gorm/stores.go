//go:build !wasm

package gorm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	ta "github.com/panyam/tutorauth"
)

const pgUniqueViolation = "23505"

// Open connects to PostgreSQL
func Open(dsn string) (*gorm.DB, error) {
	db, err := openDialector(postgres.Open(dsn))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

// openDialector leaves driver errors untranslated so the store can read the
// violated constraint from *pgconn.PgError.
func openDialector(d gorm.Dialector) (*gorm.DB, error) {
	return gorm.Open(d, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
}

// AutoMigrate runs database migrations for the credential table
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&CredentialModel{})
}

// CredentialStore implements ta.CredentialStore using GORM
type CredentialStore struct {
	db *gorm.DB
}

func NewCredentialStore(db *gorm.DB) *CredentialStore {
	return &CredentialStore{db: db}
}

func (s *CredentialStore) CreateCredential(ctx context.Context, c *ta.Credential) error {
	model := CredentialToModel(c)
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		return s.translateConflict(ctx, err, model.Email)
	}
	c.CreatedAt = model.CreatedAt
	c.UpdatedAt = model.UpdatedAt
	return nil
}

func (s *CredentialStore) GetCredentialByID(ctx context.Context, id string) (*ta.Credential, error) {
	return s.first(ctx, "id = ?", id)
}

func (s *CredentialStore) GetCredentialByEmail(ctx context.Context, email string) (*ta.Credential, error) {
	return s.first(ctx, "email = ?", ta.NormalizeEmail(email))
}

func (s *CredentialStore) GetCredentialByGoogleID(ctx context.Context, subject string) (*ta.Credential, error) {
	if subject == "" {
		return nil, ta.ErrNotFound
	}
	return s.first(ctx, "google_id = ?", subject)
}

func (s *CredentialStore) GetCredentialByVerificationToken(ctx context.Context, token string, now time.Time) (*ta.Credential, error) {
	if token == "" {
		return nil, ta.ErrNotFound
	}
	return s.first(ctx, "verification_token = ? AND verification_expires > ?", token, now)
}

func (s *CredentialStore) GetCredentialByResetToken(ctx context.Context, token string, now time.Time) (*ta.Credential, error) {
	if token == "" {
		return nil, ta.ErrNotFound
	}
	return s.first(ctx, "reset_token = ? AND reset_expires > ?", token, now)
}

func (s *CredentialStore) UpdateCredential(ctx context.Context, id string, upd ta.CredentialUpdate) error {
	cols := updateColumns(upd)
	if len(cols) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&CredentialModel{}).Where("id = ?", id).Updates(cols)
		if res.Error != nil {
			if isUniqueViolation(res.Error) {
				return ta.ErrDuplicateExternalID
			}
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ta.ErrNotFound
		}
		return nil
	})
}

func (s *CredentialStore) first(ctx context.Context, query string, args ...any) (*ta.Credential, error) {
	var model CredentialModel
	if err := s.db.WithContext(ctx).Where(query, args...).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ta.ErrNotFound
		}
		return nil, err
	}
	return model.ToCredential(), nil
}

// translateConflict maps a failed insert to the duplicate error for the
// column that collided.
func (s *CredentialStore) translateConflict(ctx context.Context, err error, email string) error {
	if !isUniqueViolation(err) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.ConstraintName {
		case "idx_credentials_email":
			return ta.ErrDuplicateEmail
		case "idx_credentials_google_id":
			return ta.ErrDuplicateExternalID
		}
	}
	var n int64
	if cerr := s.db.WithContext(ctx).Model(&CredentialModel{}).Where("email = ?", email).Count(&n).Error; cerr == nil && n == 0 {
		return ta.ErrDuplicateExternalID
	}
	return ta.ErrDuplicateEmail
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
