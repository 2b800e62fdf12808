package httpapi

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	goRenew "github.com/MrEthical07/goRenew"
	"github.com/MrEthical07/goRenew/credential"
	"github.com/MrEthical07/goRenew/directory"
	"github.com/MrEthical07/goRenew/session"
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

type stubCredentials struct{}

func (stubCredentials) ValidatePassword(_ context.Context, email, password string) (directory.Principal, error) {
	if strings.EqualFold(email, "alice@example.com") && password == "correct-password-123" {
		return directory.Principal{ID: "p-alice", Email: "alice@example.com", Roles: []string{"user"}}, nil
	}
	return directory.Principal{}, credential.ErrCredentialInvalid
}

func (stubCredentials) ValidateFederated(context.Context, string, string) (directory.Principal, error) {
	return directory.Principal{}, credential.ErrFederationOff
}

type testEnv struct {
	engine *goRenew.Engine
	server *Server
	clock  *fakeClock
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	cfg := goRenew.DefaultConfig()
	cfg.JWT.PrivateKey = priv
	cfg.Security.EnableRefreshThrottle = false

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	engine, err := goRenew.New().
		WithConfig(cfg).
		WithLogger(logger).
		WithClock(clock.Now).
		WithCredentials(stubCredentials{}).
		WithMetricsEnabled(true).
		WithSessionStore(session.NewMemoryStore(session.WithClock(clock.Now))).
		Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close(context.Background()) })

	if opts.Logger == nil {
		opts.Logger = logger
	}
	return &testEnv{engine: engine, server: NewServer(engine, opts), clock: clock}
}

type call struct {
	method  string
	path    string
	body    any
	bearer  string
	csrf    string
	cookies []*http.Cookie
	header  map[string]string
}

func (e *testEnv) do(t *testing.T, c call) *httptest.ResponseRecorder {
	t.Helper()

	var body io.Reader
	if c.body != nil {
		raw, err := json.Marshal(c.body)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(c.method, c.path, body)
	if c.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	if c.csrf != "" {
		req.Header.Set("X-CSRF-Token", c.csrf)
	}
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	for k, v := range c.header {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func cookieNamed(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// loggedIn performs the anonymous anti-forgery handshake followed by a password login.
func (e *testEnv) loggedIn(t *testing.T) (sessionResponse, *http.Cookie) {
	t.Helper()

	rec := e.do(t, call{method: http.MethodGet, path: "/auth/csrf"})
	require.Equal(t, http.StatusOK, rec.Code)
	anon := decodeBody[antiForgeryResponse](t, rec)

	rec = e.do(t, call{
		method: http.MethodPost,
		path:   "/auth/login",
		csrf:   anon.Token,
		body:   loginRequest{Email: "alice@example.com", Password: "correct-password-123"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	refresh := cookieNamed(rec, "refresh_token")
	require.NotNil(t, refresh)
	return decodeBody[sessionResponse](t, rec), refresh
}
