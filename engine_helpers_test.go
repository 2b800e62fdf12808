package goRenew

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goRenew/credential"
	"github.com/MrEthical07/goRenew/directory"
	"github.com/MrEthical07/goRenew/session"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeCredentials struct {
	mu         sync.Mutex
	passwords  map[string]string
	principals map[string]directory.Principal
	federated  map[string]directory.Principal
	err        error
}

func newFakeCredentials() *fakeCredentials {
	return &fakeCredentials{
		passwords:  map[string]string{},
		principals: map[string]directory.Principal{},
	}
}

func (f *fakeCredentials) add(email, password, id string, roles ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := strings.ToLower(email)
	f.passwords[key] = password
	f.principals[key] = directory.Principal{ID: id, Email: key, Roles: roles}
}

func (f *fakeCredentials) ValidatePassword(_ context.Context, email, password string) (directory.Principal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return directory.Principal{}, f.err
	}
	key := strings.ToLower(strings.TrimSpace(email))
	p, ok := f.principals[key]
	if !ok || f.passwords[key] != password {
		return directory.Principal{}, credential.ErrCredentialInvalid
	}
	return p, nil
}

func (f *fakeCredentials) ValidateFederated(_ context.Context, provider, idToken string) (directory.Principal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.federated == nil {
		return directory.Principal{}, credential.ErrFederationOff
	}
	p, ok := f.federated[provider+"|"+idToken]
	if !ok {
		return directory.Principal{}, credential.ErrCredentialInvalid
	}
	return p, nil
}

func testSigningKey(tb testing.TB) ed25519.PrivateKey {
	tb.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		tb.Fatalf("generate key: %v", err)
	}
	return priv
}

func testConfig(tb testing.TB) Config {
	tb.Helper()
	cfg := DefaultConfig()
	cfg.JWT.PrivateKey = testSigningKey(tb)
	return cfg
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEngine struct {
	*Engine
	clock *testClock
	store *session.MemoryStore
	creds *fakeCredentials
}

func newTestEngine(tb testing.TB, mutate func(*Config), configure ...func(*Builder)) *testEngine {
	tb.Helper()

	cfg := testConfig(tb)
	if mutate != nil {
		mutate(&cfg)
	}

	te := &testEngine{
		clock: newTestClock(),
		creds: newFakeCredentials(),
	}
	te.store = session.NewMemoryStore(session.WithClock(te.clock.Now))
	te.creds.add("alice@example.com", "correct-password-123", "p-alice", "user")

	b := New().
		WithConfig(cfg).
		WithLogger(discardLogger()).
		WithClock(te.clock.Now).
		WithSessionStore(te.store).
		WithCredentials(te.creds)
	for _, fn := range configure {
		fn(b)
	}

	engine, err := b.Build()
	if err != nil {
		tb.Fatalf("build engine: %v", err)
	}
	tb.Cleanup(func() { _ = engine.Close(context.Background()) })

	te.Engine = engine
	return te
}

func (te *testEngine) login(tb testing.TB) *TokenBundle {
	tb.Helper()
	bundle, err := te.Login(context.Background(), "p-alice", []string{"user"})
	if err != nil {
		tb.Fatalf("login: %v", err)
	}
	return bundle
}
