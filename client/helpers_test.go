package client

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	goRenew "github.com/MrEthical07/goRenew"
	"github.com/MrEthical07/goRenew/credential"
	"github.com/MrEthical07/goRenew/directory"
	"github.com/MrEthical07/goRenew/session"
	"github.com/MrEthical07/goRenew/transport/httpapi"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type aliceOnly struct{}

func (aliceOnly) ValidatePassword(_ context.Context, email, password string) (directory.Principal, error) {
	if email == "alice@example.com" && password == "correct-password-123" {
		return directory.Principal{ID: "p-alice", Email: email, Roles: []string{"user"}}, nil
	}
	return directory.Principal{}, credential.ErrCredentialInvalid
}

func (aliceOnly) ValidateFederated(context.Context, string, string) (directory.Principal, error) {
	return directory.Principal{}, credential.ErrFederationOff
}

func newEngine(t *testing.T) (*goRenew.Engine, *fakeClock) {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	cfg := goRenew.DefaultConfig()
	cfg.JWT.PrivateKey = priv
	cfg.Security.EnableRefreshThrottle = false

	clock := &fakeClock{now: time.Now()}
	engine, err := goRenew.New().
		WithConfig(cfg).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		WithClock(clock.Now).
		WithCredentials(aliceOnly{}).
		WithSessionStore(session.NewMemoryStore(session.WithClock(clock.Now))).
		Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close(context.Background()) })
	return engine, clock
}

// browser is an HTTP API server plus a cookie-carrying client that has logged in.
type browser struct {
	engine *goRenew.Engine
	clock  *fakeClock
	server *httptest.Server
	http   *http.Client
	tokens Tokens
}

func newBrowser(t *testing.T) *browser {
	t.Helper()

	engine, clock := newEngine(t)
	srv := httptest.NewServer(httpapi.NewServer(engine, httpapi.Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}))
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	hc := &http.Client{Jar: jar, Timeout: 5 * time.Second}

	resp, err := hc.Get(srv.URL + "/auth/csrf")
	require.NoError(t, err)
	var anon struct {
		Token string `json:"csrf_token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&anon))
	_ = resp.Body.Close()

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/auth/login",
		strings.NewReader(`{"email":"alice@example.com","password":"correct-password-123"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CSRF-Token", anon.Token)
	resp, err = hc.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	tokens, err := TokensFromLogin(resp.Body)
	require.NoError(t, err)

	return &browser{engine: engine, clock: clock, server: srv, http: hc, tokens: tokens}
}

// renewer ignores recorded expiry so that renewal is driven by the server's marker.
func (b *browser) renewer(t *testing.T, calls *atomic.Int32) *Renewer {
	t.Helper()
	refresher := &HTTPRefresher{Client: b.http, URL: b.server.URL + "/auth/refresh"}
	return NewRenewer(b.tokens, func(ctx context.Context, cur Tokens) (Tokens, error) {
		if calls != nil {
			calls.Add(1)
		}
		return refresher.Refresh(ctx, cur)
	}, WithClock(func() time.Time { return time.Time{} }))
}

func (b *browser) apiClient(r *Renewer) *http.Client {
	return &http.Client{
		Jar:       b.http.Jar,
		Timeout:   5 * time.Second,
		Transport: &Transport{Renewer: r},
	}
}
