package goRenew

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/goRenew/session"
)

func TestListSessionsReturnsActiveOnly(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()

	first := te.login(t)
	te.clock.Advance(time.Second)
	second := te.login(t)

	got, err := te.ListSessions(ctx, "p-alice")
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(got) != 2 || got[0].SessionID != first.SessionID || got[1].SessionID != second.SessionID {
		t.Fatalf("expected both sessions oldest first, got %+v", got)
	}
	for _, s := range got {
		if !s.Active || s.PrincipalID != "p-alice" || len(s.Roles) != 1 || s.Roles[0] != "user" {
			t.Fatalf("unexpected session info: %+v", s)
		}
	}

	if err := te.Logout(ctx, first.SessionID); err != nil {
		t.Fatalf("logout: %v", err)
	}
	got, err = te.ListSessions(ctx, "p-alice")
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(got) != 1 || got[0].SessionID != second.SessionID {
		t.Fatalf("expected only the live session, got %+v", got)
	}
}

func TestGetSessionShowsRevocation(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()
	b := te.login(t)

	info, err := te.GetSession(ctx, b.SessionID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if !info.Active || !info.RefreshExpiresAt.Equal(b.RefreshExpiresAt) {
		t.Fatalf("unexpected session info: %+v", info)
	}

	if err := te.Logout(ctx, b.SessionID); err != nil {
		t.Fatalf("logout: %v", err)
	}
	info, err = te.GetSession(ctx, b.SessionID)
	if err != nil {
		t.Fatalf("get revoked session: %v", err)
	}
	if info.Active || info.RevokeReason != session.ReasonLogout || info.RevokedAt.IsZero() {
		t.Fatalf("expected revoked view, got %+v", info)
	}
}

func TestGetSessionErrors(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()

	if _, err := te.GetSession(ctx, "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := te.GetSession(ctx, ""); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if _, err := te.ListSessions(ctx, ""); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestSessionLineageTracksRotation(t *testing.T) {
	te := newTestEngine(t, nil)
	ctx := context.Background()
	b := te.login(t)

	next, err := te.Refresh(ctx, b.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if _, err := te.Refresh(ctx, next.RefreshToken); err != nil {
		t.Fatalf("second refresh: %v", err)
	}

	lineage, err := te.SessionLineage(ctx, b.SessionID)
	if err != nil {
		t.Fatalf("lineage: %v", err)
	}
	if len(lineage) != 3 {
		t.Fatalf("expected three generations, got %+v", lineage)
	}
	wantStates := []session.State{session.StateRotated, session.StateRotated, session.StateCurrent}
	for i, e := range lineage {
		if e.State != string(wantStates[i]) {
			t.Fatalf("generation %d: state %q, want %q", i, e.State, wantStates[i])
		}
		if e.TokenID == "" {
			t.Fatalf("generation %d without token id", i)
		}
	}
}

func TestHealthReportsStore(t *testing.T) {
	te := newTestEngine(t, nil)
	if h := te.Health(context.Background()); !h.StoreAvailable {
		t.Fatalf("memory store should be healthy: %+v", h)
	}

	var nilEngine *Engine
	if h := nilEngine.Health(context.Background()); h.StoreAvailable {
		t.Fatal("nil engine cannot be healthy")
	}
}

func TestGetLoginAttemptsFromRedisLimiter(t *testing.T) {
	engine, _ := newRedisEngine(t, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := engine.LoginWithPassword(ctx, "Alice@Example.com", "wrong"); !errors.Is(err, ErrCredentialInvalid) {
			t.Fatalf("expected ErrCredentialInvalid, got %v", err)
		}
	}

	n, err := engine.GetLoginAttempts(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("login attempts: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 attempts, got %d", n)
	}

	if _, err := engine.LoginWithPassword(ctx, "alice@example.com", "correct-password-123"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if n, _ := engine.GetLoginAttempts(ctx, "alice@example.com"); n != 0 {
		t.Fatalf("successful login should reset attempts, got %d", n)
	}
}
