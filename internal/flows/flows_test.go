package flows

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/goRenew/internal/ids"
	"github.com/MrEthical07/goRenew/jwt"
	"github.com/MrEthical07/goRenew/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	manager *jwt.Manager
	store   *session.MemoryStore
	now     time.Time
	svc     Service
}

func newHarness(t *testing.T, mutate func(*Deps)) *harness {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	h := &harness{now: time.Unix(1_700_000_000, 0)}
	clock := func() time.Time { return h.now }
	h.manager, err = jwt.NewManager(jwt.Config{
		SigningMethod:  jwt.MethodEd25519,
		PrivateKey:     priv,
		KeyID:          "k1",
		Issuer:         "goRenew",
		Audience:       "api",
		AccessTTL:      5 * time.Minute,
		RefreshTTL:     time.Hour,
		AntiForgeryTTL: 30 * time.Minute,
		Now:            clock,
	})
	require.NoError(t, err)
	h.store = session.NewMemoryStore(session.WithClock(clock))

	deps := Deps{
		Issue: IssueDeps{Signer: h.manager, SessionStore: h.store, NewTokenID: ids.New},
		Refresh: RefreshDeps{
			VerifyRefresh: h.manager.VerifyRefresh,
			Signer:        h.manager,
			NewTokenID:    ids.New,
			SessionStore:  h.store,
		},
		Validate:    ValidateDeps{VerifyAccess: h.manager.VerifyAccess, Mode: ModeStateless, SessionStore: h.store},
		AntiForgery: AntiForgeryDeps{VerifyAntiForgery: h.manager.VerifyAntiForgery, SessionBound: true, SessionStore: h.store},
		Logout:      LogoutDeps{InspectRefresh: h.manager.InspectRefresh, SessionStore: h.store},
		Introspection: IntrospectionDeps{
			SessionStore:       h.store,
			EngineNotReadyErr:  errors.New("not ready"),
			SessionNotFoundErr: errors.New("no session"),
			InvalidInputErr:    errors.New("bad input"),
		},
	}
	if mutate != nil {
		mutate(&deps)
	}
	h.svc = New(deps)
	return h
}

func (h *harness) login(t *testing.T) Bundle {
	t.Helper()
	res := h.svc.Issue(context.Background(), "p1", []string{"user"})
	require.Equal(t, IssueFailureNone, res.Failure, "issue: %v", res.Err)
	return res.Bundle
}

func TestIssueProducesLinkedTriple(t *testing.T) {
	h := newHarness(t, nil)
	b := h.login(t)

	access, err := h.manager.VerifyAccess(b.AccessToken)
	require.NoError(t, err)
	refresh, err := h.manager.VerifyRefresh(b.RefreshToken)
	require.NoError(t, err)
	csrf, err := h.manager.VerifyAntiForgery(b.AntiForgeryToken)
	require.NoError(t, err)

	assert.Equal(t, b.SessionID, access.SessionID)
	assert.Equal(t, b.SessionID, refresh.SessionID)
	assert.Equal(t, b.SessionID, csrf.SessionID)
	assert.Equal(t, jwt.ScopeAuthenticated, csrf.Scope)
	assert.Equal(t, b.RefreshTokenID, refresh.ID)
	assert.Equal(t, []string{"user"}, access.Roles)

	sess, err := h.svc.GetSession(context.Background(), b.SessionID)
	require.NoError(t, err)
	assert.Equal(t, b.RefreshTokenID, sess.CurrentTokenID)
	assert.True(t, h.svc.Initialized())
}

type failingRecorder struct {
	*session.MemoryStore
	revoked atomic.Int32
}

func (f *failingRecorder) RecordRefreshToken(context.Context, string, string, time.Time) error {
	return session.ErrUnavailable
}

func (f *failingRecorder) RevokeSession(ctx context.Context, sid string) error {
	f.revoked.Add(1)
	return f.MemoryStore.RevokeSession(ctx, sid)
}

func TestIssueRevokesSessionWhenRecordFails(t *testing.T) {
	var store *failingRecorder
	h := newHarness(t, func(d *Deps) {
		store = &failingRecorder{MemoryStore: session.NewMemoryStore()}
		d.Issue.SessionStore = store
	})

	res := h.svc.Issue(context.Background(), "p1", nil)
	assert.Equal(t, IssueFailureRecord, res.Failure)
	assert.ErrorIs(t, res.Err, session.ErrUnavailable)
	assert.Equal(t, int32(1), store.revoked.Load())

	ok, err := store.IsSessionValid(context.Background(), res.SessionID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRefreshRotatesAndDetectsReuse(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	first := h.login(t)

	res := h.svc.Refresh(ctx, first.RefreshToken)
	require.Equal(t, RefreshFailureNone, res.Failure, "refresh: %v", res.Err)
	assert.Equal(t, first.SessionID, res.Bundle.SessionID)
	assert.NotEqual(t, first.RefreshTokenID, res.Bundle.RefreshTokenID)
	assert.Equal(t, []string{"user"}, res.Bundle.Roles)

	res = h.svc.Refresh(ctx, first.RefreshToken)
	assert.Equal(t, RefreshFailureReuse, res.Failure)
	assert.Equal(t, first.SessionID, res.SessionID)
	assert.Equal(t, "p1", res.PrincipalID)

	ok, err := h.store.IsSessionValid(ctx, first.SessionID)
	require.NoError(t, err)
	assert.False(t, ok, "reuse must revoke the session")
}

func TestRefreshFailureClassification(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	res := h.svc.Refresh(ctx, "not-a-token")
	assert.Equal(t, RefreshFailureVerify, res.Failure)

	b := h.login(t)
	res = h.svc.Refresh(ctx, b.AccessToken)
	assert.Equal(t, RefreshFailureVerify, res.Failure)
	assert.ErrorIs(t, res.Err, jwt.ErrWrongPurpose)

	require.NoError(t, h.svc.Logout(ctx, b.SessionID))
	res = h.svc.Refresh(ctx, b.RefreshToken)
	assert.Equal(t, RefreshFailureRevoked, res.Failure)

	b = h.login(t)
	h.now = h.now.Add(2 * time.Hour)
	res = h.svc.Refresh(ctx, b.RefreshToken)
	assert.Equal(t, RefreshFailureVerify, res.Failure)
	assert.ErrorIs(t, res.Err, jwt.ErrExpired)
}

type denyAll struct{}

func (denyAll) CheckRefresh(context.Context, string) error { return errors.New("limited") }

func TestRefreshRateLimitedBeforeConsume(t *testing.T) {
	h := newHarness(t, func(d *Deps) { d.Refresh.RateLimiter = denyAll{} })
	b := h.login(t)

	res := h.svc.Refresh(context.Background(), b.RefreshToken)
	assert.Equal(t, RefreshFailureRateLimited, res.Failure)

	sess, err := h.store.GetSession(context.Background(), b.SessionID)
	require.NoError(t, err)
	assert.Equal(t, b.RefreshTokenID, sess.CurrentTokenID, "token must stay current")
}

func TestConcurrentRefreshSingleWinner(t *testing.T) {
	h := newHarness(t, nil)
	b := h.login(t)

	const n = 16
	var wg sync.WaitGroup
	results := make([]RefreshResult, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = h.svc.Refresh(context.Background(), b.RefreshToken)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, r := range results {
		switch r.Failure {
		case RefreshFailureNone:
			wins++
		case RefreshFailureAlreadyConsumed, RefreshFailureReuse:
		default:
			t.Fatalf("unexpected failure kind %d: %v", r.Failure, r.Err)
		}
	}
	assert.Equal(t, 1, wins)
}

func TestConsumeDoesNotIssue(t *testing.T) {
	h := newHarness(t, nil)
	b := h.login(t)

	res := h.svc.Consume(context.Background(), b.RefreshToken)
	require.Equal(t, RefreshFailureNone, res.Failure)
	assert.Empty(t, res.Bundle.AccessToken)
	assert.Equal(t, b.SessionID, res.SessionID)

	lineage, err := h.svc.Lineage(context.Background(), b.SessionID)
	require.NoError(t, err)
	require.Len(t, lineage, 1)
	assert.Equal(t, session.StateConsumed, lineage[0].State)
}

func TestValidateModes(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	b := h.login(t)

	res := h.svc.Validate(ctx, b.AccessToken, -1)
	require.Equal(t, ValidateFailureNone, res.Failure)
	assert.Equal(t, "p1", res.Claims.Subject)

	require.NoError(t, h.svc.Logout(ctx, b.SessionID))
	assert.Equal(t, ValidateFailureNone, h.svc.Validate(ctx, b.AccessToken, ModeStateless).Failure)
	assert.Equal(t, ValidateFailureSessionRevoked, h.svc.Validate(ctx, b.AccessToken, ModeStrict).Failure)

	assert.Equal(t, ValidateFailureToken, h.svc.Validate(ctx, b.RefreshToken, -1).Failure)

	h.now = h.now.Add(5 * time.Minute)
	res = h.svc.Validate(ctx, b.AccessToken, ModeStateless)
	assert.Equal(t, ValidateFailureToken, res.Failure)
	assert.ErrorIs(t, res.Err, jwt.ErrExpired, "expiry is a closed boundary")
}

func TestValidateAntiForgery(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	b := h.login(t)

	assert.Equal(t, AntiForgeryFailureMissing, h.svc.ValidateAntiForgery(ctx, "", b.SessionID).Failure)
	assert.Equal(t, AntiForgeryFailureNone, h.svc.ValidateAntiForgery(ctx, b.AntiForgeryToken, b.SessionID).Failure)
	assert.Equal(t, AntiForgeryFailureMismatch, h.svc.ValidateAntiForgery(ctx, b.AntiForgeryToken, "other").Failure)
	assert.Equal(t, AntiForgeryFailureToken, h.svc.ValidateAntiForgery(ctx, b.AccessToken, b.SessionID).Failure)

	anon, _, err := h.manager.IssueAntiForgery("")
	require.NoError(t, err)
	assert.Equal(t, AntiForgeryFailureNone, h.svc.ValidateAntiForgery(ctx, anon, "").Failure)
	assert.Equal(t, AntiForgeryFailureMismatch, h.svc.ValidateAntiForgery(ctx, anon, b.SessionID).Failure)

	require.NoError(t, h.svc.Logout(ctx, b.SessionID))
	assert.Equal(t, AntiForgeryFailureSessionInvalid, h.svc.ValidateAntiForgery(ctx, b.AntiForgeryToken, b.SessionID).Failure)
}

func TestLogoutWithRefreshAcceptsExpiredToken(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	b := h.login(t)
	h.now = h.now.Add(3 * time.Hour)

	res := h.svc.LogoutWithRefresh(ctx, b.RefreshToken)
	require.NoError(t, res.TokenErr)
	require.NoError(t, res.Err)
	assert.Equal(t, b.SessionID, res.SessionID)
	assert.Equal(t, "p1", res.PrincipalID)

	res = h.svc.LogoutWithRefresh(ctx, "garbage")
	assert.Error(t, res.TokenErr)

	require.NoError(t, h.svc.Logout(ctx, b.SessionID), "logout is idempotent")
}

func TestIntrospection(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.login(t)
	h.login(t)

	list, err := h.svc.ListSessions(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	_, err = h.svc.ListSessions(ctx, "")
	assert.EqualError(t, err, "bad input")
	_, err = h.svc.GetSession(ctx, "missing")
	assert.EqualError(t, err, "no session")

	empty := New(Deps{Introspection: IntrospectionDeps{EngineNotReadyErr: errors.New("not ready")}})
	_, err = empty.Lineage(ctx, "s")
	assert.EqualError(t, err, "not ready")
	assert.False(t, empty.Initialized())
}
