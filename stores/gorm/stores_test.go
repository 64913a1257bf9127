//go:build !wasm

package gorm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	ta "github.com/panyam/tutorauth"
)

// failingPool answers every statement with err, standing in for a postgres
// connection that reports constraint violations.
type failingPool struct {
	err     error
	queries []string
}

func (p *failingPool) PrepareContext(ctx context.Context, query string) (*sql.Stmt, error) {
	return nil, p.err
}

func (p *failingPool) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	p.queries = append(p.queries, query)
	return nil, p.err
}

func (p *failingPool) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	p.queries = append(p.queries, query)
	return nil, p.err
}

func (p *failingPool) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return nil
}

func (p *failingPool) BeginTx(ctx context.Context, opts *sql.TxOptions) (gorm.ConnPool, error) {
	return &failingTx{p}, nil
}

type failingTx struct{ *failingPool }

func (failingTx) Commit() error   { return nil }
func (failingTx) Rollback() error { return nil }

func newFailingStore(t *testing.T, err error) (*CredentialStore, *failingPool) {
	t.Helper()
	pool := &failingPool{err: err}
	db, oerr := openDialector(postgres.New(postgres.Config{Conn: pool}))
	require.NoError(t, oerr)
	return NewCredentialStore(db), pool
}

func uniqueViolation(constraint string) error {
	return &pgconn.PgError{Code: pgUniqueViolation, ConstraintName: constraint, Message: "duplicate key value violates unique constraint"}
}

func TestCreateCredentialConflicts(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"email index", uniqueViolation("idx_credentials_email"), ta.ErrDuplicateEmail},
		{"google index", uniqueViolation("idx_credentials_google_id"), ta.ErrDuplicateExternalID},
		// the follow-up count fails too, so the email is assumed taken
		{"unnamed constraint", uniqueViolation(""), ta.ErrDuplicateEmail},
		{"wrapped", fmt.Errorf("insert: %w", uniqueViolation("idx_credentials_email")), ta.ErrDuplicateEmail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, pool := newFailingStore(t, tt.err)
			err := store.CreateCredential(context.Background(), &ta.Credential{ID: "u1", Email: "race@example.com"})
			assert.True(t, errors.Is(err, tt.want), "got %v, want %v", err, tt.want)
			assert.NotEmpty(t, pool.queries, "insert was never sent")
		})
	}
}

func TestCreateCredentialOtherErrorsPassThrough(t *testing.T) {
	notNull := &pgconn.PgError{Code: "23502", ColumnName: "email"}
	store, _ := newFailingStore(t, notNull)
	err := store.CreateCredential(context.Background(), &ta.Credential{ID: "u1", Email: "x@example.com"})

	var pgErr *pgconn.PgError
	require.True(t, errors.As(err, &pgErr), "got %v", err)
	assert.Equal(t, "23502", pgErr.Code)
	assert.False(t, errors.Is(err, ta.ErrDuplicateEmail))
}

func TestUpdateCredentialLinkConflict(t *testing.T) {
	store, _ := newFailingStore(t, uniqueViolation("idx_credentials_google_id"))
	gid := "g-taken"
	err := store.UpdateCredential(context.Background(), "u1", ta.CredentialUpdate{GoogleID: &gid})
	assert.True(t, errors.Is(err, ta.ErrDuplicateExternalID), "got %v", err)
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(uniqueViolation("x")))
	assert.True(t, isUniqueViolation(gorm.ErrDuplicatedKey))
	assert.True(t, isUniqueViolation(fmt.Errorf("wrapped: %w", gorm.ErrDuplicatedKey)))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("connection reset")))
}

func TestGetCredentialByGoogleIDEmpty(t *testing.T) {
	store, pool := newFailingStore(t, errors.New("unreachable"))
	_, err := store.GetCredentialByGoogleID(context.Background(), "")
	assert.True(t, errors.Is(err, ta.ErrNotFound))
	assert.Empty(t, pool.queries, "an empty subject must not reach the database")
}
