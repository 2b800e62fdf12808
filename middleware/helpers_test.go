package middleware

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	goRenew "github.com/MrEthical07/goRenew"
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

func newEngine(t *testing.T) (*goRenew.Engine, *fakeClock) {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	cfg := goRenew.DefaultConfig()
	cfg.JWT.PrivateKey = priv

	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	engine, err := goRenew.New().
		WithConfig(cfg).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		WithClock(clock.Now).
		WithSessionStore(session.NewMemoryStore(session.WithClock(clock.Now))).
		Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close(context.Background()) })
	return engine, clock
}

func login(t *testing.T, engine *goRenew.Engine) *goRenew.TokenBundle {
	t.Helper()
	b, err := engine.Login(context.Background(), "p-alice", []string{"user"})
	require.NoError(t, err)
	return b
}
