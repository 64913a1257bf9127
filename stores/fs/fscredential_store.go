package fs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	ta "github.com/panyam/tutorauth"
)

// Index kinds. Each index maps a hashed key to a credential id, so lookups by
// email, Google subject or one-time token never scan the credential files.
const (
	indexEmail        = "emails"
	indexGoogle       = "google_ids"
	indexVerification = "verification_tokens"
	indexReset        = "reset_tokens"
)

// FSCredentialStore stores credentials as JSON files under StoragePath.
// Intended for development and tests; a single process owns the directory.
type FSCredentialStore struct {
	StoragePath string
	mu          sync.RWMutex
}

// NewFSCredentialStore creates a file-based credential store rooted at storagePath
func NewFSCredentialStore(storagePath string) *FSCredentialStore {
	return &FSCredentialStore{StoragePath: storagePath}
}

type indexEntry struct {
	CredentialID string `json:"credential_id"`
}

func (s *FSCredentialStore) credentialPath(id string) string {
	return filepath.Join(s.StoragePath, "credentials", filepath.Base(id)+".json")
}

func (s *FSCredentialStore) indexPath(kind, key string) string {
	hash := sha256.Sum256([]byte(key))
	return filepath.Join(s.StoragePath, kind, hex.EncodeToString(hash[:])+".json")
}

// CreateCredential inserts c, failing with ErrDuplicateEmail if the email is
// taken and ErrDuplicateExternalID if the Google subject is.
func (s *FSCredentialStore) CreateCredential(ctx context.Context, c *ta.Credential) error {
	if c.ID == "" || c.Email == "" {
		return errors.New("fs store: credential id and email are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.credentialPath(c.ID)); err == nil {
		return fmt.Errorf("fs store: credential %s already exists", c.ID)
	}
	if _, err := s.lookupIndex(indexEmail, c.Email); err == nil {
		return ta.ErrDuplicateEmail
	} else if !errors.Is(err, ta.ErrNotFound) {
		return err
	}
	if c.GoogleID != "" {
		if _, err := s.lookupIndex(indexGoogle, c.GoogleID); err == nil {
			return ta.ErrDuplicateExternalID
		} else if !errors.Is(err, ta.ErrNotFound) {
			return err
		}
	}

	now := time.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	if err := s.saveCredential(c); err != nil {
		return err
	}
	return s.writeIndexes(nil, c)
}

func (s *FSCredentialStore) GetCredentialByID(ctx context.Context, id string) (*ta.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readCredential(id)
}

func (s *FSCredentialStore) GetCredentialByEmail(ctx context.Context, email string) (*ta.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, err := s.lookupIndex(indexEmail, ta.NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	return s.readCredential(id)
}

func (s *FSCredentialStore) GetCredentialByGoogleID(ctx context.Context, subject string) (*ta.Credential, error) {
	if subject == "" {
		return nil, ta.ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, err := s.lookupIndex(indexGoogle, subject)
	if err != nil {
		return nil, err
	}
	return s.readCredential(id)
}

func (s *FSCredentialStore) GetCredentialByVerificationToken(ctx context.Context, token string, now time.Time) (*ta.Credential, error) {
	return s.getByToken(indexVerification, token, now, func(c *ta.Credential) *ta.OneTimeToken { return c.Verification })
}

func (s *FSCredentialStore) GetCredentialByResetToken(ctx context.Context, token string, now time.Time) (*ta.Credential, error) {
	return s.getByToken(indexReset, token, now, func(c *ta.Credential) *ta.OneTimeToken { return c.Reset })
}

func (s *FSCredentialStore) getByToken(kind, token string, now time.Time, field func(*ta.Credential) *ta.OneTimeToken) (*ta.Credential, error) {
	if token == "" {
		return nil, ta.ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, err := s.lookupIndex(kind, token)
	if err != nil {
		return nil, err
	}
	c, err := s.readCredential(id)
	if err != nil {
		return nil, err
	}
	// the record is the source of truth, the index only narrows the search
	tok := field(c)
	if tok == nil || tok.Token != token || !tok.ValidAt(now) {
		return nil, ta.ErrNotFound
	}
	return c, nil
}

// UpdateCredential applies upd to the stored record and keeps the indexes in step
func (s *FSCredentialStore) UpdateCredential(ctx context.Context, id string, upd ta.CredentialUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, err := s.readCredential(id)
	if err != nil {
		return err
	}
	updated := *old
	upd.ApplyTo(&updated)

	if updated.GoogleID != "" && updated.GoogleID != old.GoogleID {
		if owner, err := s.lookupIndex(indexGoogle, updated.GoogleID); err == nil && owner != id {
			return ta.ErrDuplicateExternalID
		}
	}

	updated.UpdatedAt = time.Now()
	if err := s.saveCredential(&updated); err != nil {
		return err
	}
	return s.writeIndexes(old, &updated)
}

// writeIndexes removes index entries that no longer match and writes the
// current ones. old is nil on create.
func (s *FSCredentialStore) writeIndexes(old, cur *ta.Credential) error {
	type pair struct {
		kind     string
		old, cur string
	}
	pairs := []pair{
		{indexEmail, "", cur.Email},
		{indexGoogle, "", cur.GoogleID},
		{indexVerification, "", tokenValue(cur.Verification)},
		{indexReset, "", tokenValue(cur.Reset)},
	}
	if old != nil {
		pairs[0].old = old.Email
		pairs[1].old = old.GoogleID
		pairs[2].old = tokenValue(old.Verification)
		pairs[3].old = tokenValue(old.Reset)
	}
	for _, p := range pairs {
		if p.old != "" && p.old != p.cur {
			if err := os.Remove(s.indexPath(p.kind, p.old)); err != nil && !os.IsNotExist(err) {
				return err
			}
		}
		if p.cur != "" && p.cur != p.old {
			if err := s.writeIndex(p.kind, p.cur, cur.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

func tokenValue(t *ta.OneTimeToken) string {
	if t == nil {
		return ""
	}
	return t.Token
}

func (s *FSCredentialStore) lookupIndex(kind, key string) (string, error) {
	data, err := os.ReadFile(s.indexPath(kind, key))
	if err != nil {
		if os.IsNotExist(err) {
			return "", ta.ErrNotFound
		}
		return "", err
	}
	var entry indexEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return "", fmt.Errorf("fs store: corrupt %s index: %w", kind, err)
	}
	return entry.CredentialID, nil
}

func (s *FSCredentialStore) writeIndex(kind, key, id string) error {
	path := s.indexPath(kind, key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.Marshal(indexEntry{CredentialID: id})
	if err != nil {
		return err
	}
	return writeAtomicFile(path, data)
}

func (s *FSCredentialStore) readCredential(id string) (*ta.Credential, error) {
	if id == "" {
		return nil, ta.ErrNotFound
	}
	data, err := os.ReadFile(s.credentialPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ta.ErrNotFound
		}
		return nil, err
	}
	var c ta.Credential
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("fs store: corrupt credential %s: %w", id, err)
	}
	return &c, nil
}

func (s *FSCredentialStore) saveCredential(c *ta.Credential) error {
	path := s.credentialPath(c.ID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomicFile(path, data)
}
