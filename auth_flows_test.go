package tutorauth_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	ta "github.com/panyam/tutorauth"
)

func googleProfile(subject, email string, verified bool) *ta.ExternalProfile {
	return &ta.ExternalProfile{
		Subject:       subject,
		Email:         email,
		EmailVerified: verified,
		Name:          "Katherine Johnson",
		GivenName:     "Katherine",
		FamilyName:    "Johnson",
		Picture:       "https://example.com/katherine.png",
	}
}

// A new Google user gets a passwordless account and can never log in with a password
func TestExternalLogin_CreatesPasswordlessAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.provider.add("code-1", googleProfile("g-1", "Katherine@Example.com", true))

	sess, err := env.auth.AuthenticateWithExternalCode(ctx, "code-1")
	if err != nil {
		t.Fatalf("AuthenticateWithExternalCode: %v", err)
	}
	cred := sess.Credential
	if cred.Email != "katherine@example.com" {
		t.Errorf("email not normalized: %q", cred.Email)
	}
	if cred.GoogleID != "g-1" || cred.HasPassword() {
		t.Errorf("expected linked passwordless account, got google=%q hasPassword=%v", cred.GoogleID, cred.HasPassword())
	}
	if !cred.IsEmailVerified {
		t.Error("provider verified email should mark the account verified")
	}
	if cred.FirstName != "Katherine" || cred.LastName != "Johnson" {
		t.Errorf("unexpected names %q %q", cred.FirstName, cred.LastName)
	}
	if cred.Avatar != "https://example.com/katherine.png" {
		t.Errorf("expected provider picture, got %q", cred.Avatar)
	}
	if cred.LastLogin == nil {
		t.Error("LastLogin not set")
	}
	if got, err := env.issuer.VerifyAccess(sess.Tokens.AccessToken); err != nil || got != cred.ID {
		t.Errorf("access token does not verify: %v", err)
	}

	if _, err := env.auth.Login(ctx, "katherine@example.com", "Anything1!"); !errors.Is(err, ta.ErrExternalIdentityOnly) {
		t.Fatalf("expected ErrExternalIdentityOnly, got %v", err)
	}

	// a second login with the same identity reuses the account
	env.provider.add("code-2", googleProfile("g-1", "katherine@example.com", true))
	again, err := env.auth.AuthenticateWithExternalCode(ctx, "code-2")
	if err != nil {
		t.Fatalf("second external login: %v", err)
	}
	if again.Credential.ID != cred.ID {
		t.Error("second login created a new account")
	}
}

func TestExternalLogin_NameFallbacks(t *testing.T) {
	tests := []struct {
		name      string
		profile   *ta.ExternalProfile
		wantFirst string
		wantLast  string
		wantAv    string
	}{
		{
			name:      "display name split",
			profile:   &ta.ExternalProfile{Subject: "s1", Email: "dn@example.com", Name: "Ada King Lovelace"},
			wantFirst: "Ada", wantLast: "King Lovelace",
			wantAv: ta.DefaultAvatarURL("dn@example.com"),
		},
		{
			name:      "email local part",
			profile:   &ta.ExternalProfile{Subject: "s2", Email: "solo@example.com"},
			wantFirst: "solo", wantLast: "",
			wantAv: ta.DefaultAvatarURL("solo@example.com"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.provider.add("c", tt.profile)
			sess, err := env.auth.AuthenticateWithExternalCode(context.Background(), "c")
			if err != nil {
				t.Fatalf("AuthenticateWithExternalCode: %v", err)
			}
			if sess.Credential.FirstName != tt.wantFirst || sess.Credential.LastName != tt.wantLast {
				t.Errorf("got names %q %q", sess.Credential.FirstName, sess.Credential.LastName)
			}
			if sess.Credential.Avatar != tt.wantAv {
				t.Errorf("got avatar %q", sess.Credential.Avatar)
			}
			if sess.Credential.IsEmailVerified {
				t.Error("unverified provider email must not verify the account")
			}
		})
	}
}

// An existing local account is linked and keeps its password
func TestExternalLogin_LinksExistingAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	local, _ := env.register(t, "linker@example.com")

	env.provider.add("code", googleProfile("g-link", "linker@example.com", true))
	sess, err := env.auth.AuthenticateWithExternalCode(ctx, "code")
	if err != nil {
		t.Fatalf("AuthenticateWithExternalCode: %v", err)
	}
	if sess.Credential.ID != local.ID {
		t.Fatal("expected the existing account to be linked")
	}

	stored := env.reload(t, local.ID)
	if stored.GoogleID != "g-link" {
		t.Errorf("google id not stored: %q", stored.GoogleID)
	}
	if !stored.IsEmailVerified || stored.Verification != nil {
		t.Error("provider-verified link should verify the account and clear its token")
	}
	if stored.Avatar != "https://example.com/katherine.png" {
		t.Errorf("avatar not updated: %q", stored.Avatar)
	}
	if !stored.HasPassword() {
		t.Fatal("linking must keep the local password")
	}
	if _, err := env.auth.Login(ctx, "linker@example.com", testPassword); err != nil {
		t.Errorf("password login after linking: %v", err)
	}
}

func TestExternalLogin_UnverifiedLinkKeepsVerificationState(t *testing.T) {
	env := newTestEnv(t)
	local, token := env.register(t, "cautious@example.com")

	env.provider.add("code", googleProfile("g-c", "cautious@example.com", false))
	if _, err := env.auth.AuthenticateWithExternalCode(context.Background(), "code"); err != nil {
		t.Fatalf("AuthenticateWithExternalCode: %v", err)
	}
	stored := env.reload(t, local.ID)
	if stored.IsEmailVerified {
		t.Error("unverified provider email must not verify the account")
	}
	if stored.Verification == nil || stored.Verification.Token != token {
		t.Error("pending verification token should be kept")
	}
}

func TestExternalLogin_SubjectMismatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.provider.add("first", googleProfile("g-original", "owner@example.com", true))
	if _, err := env.auth.AuthenticateWithExternalCode(ctx, "first"); err != nil {
		t.Fatalf("first login: %v", err)
	}

	env.provider.add("other", googleProfile("g-intruder", "owner@example.com", true))
	if _, err := env.auth.AuthenticateWithExternalCode(ctx, "other"); !errors.Is(err, ta.ErrExternalAuthFailed) {
		t.Fatalf("expected ErrExternalAuthFailed, got %v", err)
	}
}

func TestExternalLogin_GoogleEmailChanged(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.provider.add("before", googleProfile("g-moved", "old@example.com", true))
	first, err := env.auth.AuthenticateWithExternalCode(ctx, "before")
	if err != nil {
		t.Fatalf("first login: %v", err)
	}

	env.provider.add("after", googleProfile("g-moved", "new@example.com", true))
	again, err := env.auth.AuthenticateWithExternalCode(ctx, "after")
	if err != nil {
		t.Fatalf("login after the Google email changed: %v", err)
	}
	if again.Credential.ID != first.Credential.ID {
		t.Error("a second account was created for the same subject")
	}
	if again.Credential.Email != "old@example.com" {
		t.Errorf("stored email changed to %q", again.Credential.Email)
	}
	if _, err := env.store.GetCredentialByEmail(ctx, "new@example.com"); !errors.Is(err, ta.ErrNotFound) {
		t.Errorf("no account should exist for the new email, got %v", err)
	}
}

func TestExternalLogin_Failures(t *testing.T) {
	tests := []struct {
		name  string
		code  string
		setup func(env *testEnv)
		want  error
	}{
		{"empty code", "  ", nil, ta.ErrValidation},
		{"exchange rejected", "unknown-code", nil, ta.ErrExternalAuthFailed},
		{"provider error", "c", func(env *testEnv) { env.provider.err = errors.New("boom") }, ta.ErrExternalAuthFailed},
		{"no provider", "c", func(env *testEnv) { env.auth.Provider = nil }, ta.ErrExternalAuthFailed},
		{"profile without email", "c", func(env *testEnv) {
			env.provider.add("c", &ta.ExternalProfile{Subject: "s"})
		}, ta.ErrExternalAuthFailed},
		{"exchange timeout", "slow", func(env *testEnv) {
			env.provider.add("slow", googleProfile("g", "slow@example.com", true))
			env.provider.delay = time.Second
			env.auth.ExternalTimeout = 20 * time.Millisecond
		}, ta.ErrExternalAuthFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			if tt.setup != nil {
				tt.setup(env)
			}
			sess, err := env.auth.AuthenticateWithExternalCode(context.Background(), tt.code)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if sess != nil {
				t.Error("no session expected")
			}
			if got := ta.PublicMessage(err); tt.want == ta.ErrExternalAuthFailed && got != "Google authentication failed" {
				t.Errorf("provider details leaked into public message: %q", got)
			}
		})
	}
}

// Concurrent first logins with the same Google identity end up on one account
func TestExternalLogin_ConcurrentFirstLogin(t *testing.T) {
	env := newTestEnv(t)
	env.provider.add("code", googleProfile("g-race", "race@example.com", true))

	const n = 5
	var wg sync.WaitGroup
	ids := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess, err := env.auth.AuthenticateWithExternalCode(context.Background(), "code")
			errs[i] = err
			if err == nil {
				ids[i] = sess.Credential.ID
			}
		}(i)
	}
	wg.Wait()

	var id string
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("login %d failed: %v", i, errs[i])
		}
		if id == "" {
			id = ids[i]
		} else if ids[i] != id {
			t.Fatalf("logins produced different accounts: %s vs %s", id, ids[i])
		}
	}
}

func TestSetPasswordForExternalAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.provider.add("code", googleProfile("g-set", "setter@example.com", true))
	sess, err := env.auth.AuthenticateWithExternalCode(ctx, "code")
	if err != nil {
		t.Fatalf("AuthenticateWithExternalCode: %v", err)
	}
	id := sess.Credential.ID

	if err := env.auth.SetPassword(ctx, id, "weak"); !errors.Is(err, ta.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
	if err := env.auth.ChangePassword(ctx, id, "", "N3wPassword!"); !errors.Is(err, ta.ErrExternalIdentityOnly) {
		t.Errorf("expected ErrExternalIdentityOnly from ChangePassword, got %v", err)
	}
	if err := env.auth.SetPassword(ctx, id, "N3wPassword!"); err != nil {
		t.Fatalf("SetPassword: %v", err)
	}
	if err := env.auth.SetPassword(ctx, id, "Other123!x"); !errors.Is(err, ta.ErrPasswordAlreadySet) {
		t.Errorf("expected ErrPasswordAlreadySet, got %v", err)
	}
	if _, err := env.auth.Login(ctx, "setter@example.com", "N3wPassword!"); err != nil {
		t.Errorf("password login after SetPassword: %v", err)
	}
}
