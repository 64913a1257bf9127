package tutorauth_test

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	ta "github.com/panyam/tutorauth"
	"github.com/panyam/tutorauth/stores/fs"
)

const (
	testClientURL = "http://localhost:3000"
	testPassword  = "Learn2Code!"
)

var linkToken = regexp.MustCompile(`token=([0-9a-f]+)`)

// outbox records every email instead of sending it
type outbox struct {
	mu   sync.Mutex
	msgs []ta.Message
	fail error
}

func (o *outbox) Send(ctx context.Context, msg ta.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fail != nil {
		return o.fail
	}
	o.msgs = append(o.msgs, msg)
	return nil
}

func (o *outbox) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.msgs)
}

func (o *outbox) last(t *testing.T) ta.Message {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.msgs) == 0 {
		t.Fatal("no email was sent")
	}
	return o.msgs[len(o.msgs)-1]
}

// lastToken extracts the one-time token from the link in the last email
func (o *outbox) lastToken(t *testing.T) string {
	t.Helper()
	m := linkToken.FindStringSubmatch(o.last(t).Text)
	if len(m) != 2 {
		t.Fatalf("no token link in email body: %q", o.last(t).Text)
	}
	return m[1]
}

// clock is a settable time source shared by the service and the issuer
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeProvider stands in for Google
type fakeProvider struct {
	mu       sync.Mutex
	profiles map[string]*ta.ExternalProfile
	err      error
	delay    time.Duration
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{profiles: make(map[string]*ta.ExternalProfile)}
}

func (p *fakeProvider) add(code string, profile *ta.ExternalProfile) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.profiles[code] = profile
}

func (p *fakeProvider) Exchange(ctx context.Context, code string) (*ta.ExternalProfile, error) {
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	profile, ok := p.profiles[code]
	if !ok {
		return nil, errors.New("invalid_grant")
	}
	cp := *profile
	return &cp, nil
}

func (p *fakeProvider) AuthCodeURL(state string) string {
	return "https://accounts.example.com/auth?state=" + state
}

type testEnv struct {
	auth     *ta.AuthService
	store    *fs.FSCredentialStore
	issuer   *ta.TokenIssuer
	outbox   *outbox
	provider *fakeProvider
	clock    *clock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:    fs.NewFSCredentialStore(t.TempDir()),
		outbox:   &outbox{},
		provider: newFakeProvider(),
		clock:    &clock{now: time.Now()},
	}
	issuer, err := ta.NewTokenIssuer(ta.IssuerConfig{
		AccessSecret:  "test-access-secret",
		RefreshSecret: "test-refresh-secret",
		Now:           env.clock.Now,
	})
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	env.issuer = issuer
	env.auth = ta.NewAuthService(env.store, issuer, ta.NewMailerWithSender(testClientURL, env.outbox))
	env.auth.Provider = env.provider
	env.auth.Now = env.clock.Now
	return env
}

func registerInput(email string) ta.RegisterInput {
	return ta.RegisterInput{FirstName: "Marie", LastName: "Curie", Email: email, Password: testPassword}
}

// register creates an unverified account and returns it with its verification token
func (e *testEnv) register(t *testing.T, email string) (*ta.Credential, string) {
	t.Helper()
	cred, _, err := e.auth.Register(context.Background(), registerInput(email))
	if err != nil {
		t.Fatalf("Register(%s): %v", email, err)
	}
	return cred, e.outbox.lastToken(t)
}

// registerVerified creates an account and verifies its email
func (e *testEnv) registerVerified(t *testing.T, email string) *ta.Credential {
	t.Helper()
	cred, token := e.register(t, email)
	if err := e.auth.VerifyEmail(context.Background(), token); err != nil {
		t.Fatalf("VerifyEmail: %v", err)
	}
	return cred
}

func (e *testEnv) reload(t *testing.T, id string) *ta.Credential {
	t.Helper()
	cred, err := e.store.GetCredentialByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetCredentialByID(%s): %v", id, err)
	}
	return cred
}
