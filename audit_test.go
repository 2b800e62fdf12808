package goRenew

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func auditEngine(t *testing.T, sink AuditSink) *testEngine {
	t.Helper()
	return newTestEngine(t, func(c *Config) {
		c.Audit.Enabled = true
		c.Audit.BufferSize = 64
		c.Audit.DropIfFull = false
	}, func(b *Builder) {
		b.WithAuditSink(sink)
	})
}

func nextEvent(t *testing.T, sink *ChannelSink) AuditEvent {
	t.Helper()
	select {
	case ev := <-sink.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for audit event")
		return AuditEvent{}
	}
}

func waitForEvent(t *testing.T, sink *ChannelSink, eventType string) AuditEvent {
	t.Helper()
	for {
		ev := nextEvent(t, sink)
		if ev.EventType == eventType {
			return ev
		}
	}
}

func TestAuditLoginSuccessCarriesRequestContext(t *testing.T) {
	sink := NewChannelSink(16)
	te := auditEngine(t, sink)

	ctx := WithUserAgent(WithClientIP(context.Background(), "203.0.113.7"), "test-agent/1.0")
	b, err := te.LoginWithPassword(ctx, "alice@example.com", "correct-password-123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	ev := waitForEvent(t, sink, AuditLoginSuccess)
	if !ev.Success || ev.PrincipalID != "p-alice" || ev.SessionID != b.SessionID {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.IP != "203.0.113.7" || ev.UserAgent != "test-agent/1.0" {
		t.Fatalf("request context missing: %+v", ev)
	}
	if ev.ID == "" {
		t.Fatal("audit event without id")
	}
	if !ev.Timestamp.Equal(te.clock.Now().UTC()) {
		t.Fatalf("timestamp %v does not follow the engine clock", ev.Timestamp)
	}
	if ev.Metadata["method"] != "password" {
		t.Fatalf("unexpected metadata: %v", ev.Metadata)
	}
}

func TestAuditLoginFailureHasStableErrorCode(t *testing.T) {
	sink := NewChannelSink(16)
	te := auditEngine(t, sink)

	_, err := te.LoginWithPassword(context.Background(), "alice@example.com", "wrong")
	if !errors.Is(err, ErrCredentialInvalid) {
		t.Fatalf("expected ErrCredentialInvalid, got %v", err)
	}

	ev := waitForEvent(t, sink, AuditLoginFailure)
	if ev.Success || ev.Error != "credential_invalid" {
		t.Fatalf("unexpected failure event: %+v", ev)
	}
}

func TestAuditRefreshReuse(t *testing.T) {
	sink := NewChannelSink(32)
	te := auditEngine(t, sink)
	ctx := context.Background()
	b := te.login(t)

	if _, err := te.Refresh(ctx, b.RefreshToken); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	_, _ = te.Refresh(ctx, b.RefreshToken)

	ev := waitForEvent(t, sink, AuditRefreshReuse)
	if ev.SessionID != b.SessionID || ev.PrincipalID != "p-alice" {
		t.Fatalf("unexpected reuse event: %+v", ev)
	}
	if ev.Error != "session_compromised" || ev.Metadata["token_id"] == "" {
		t.Fatalf("reuse event missing details: %+v", ev)
	}
}

func TestAuditAntiForgeryRejectedReason(t *testing.T) {
	sink := NewChannelSink(16)
	te := auditEngine(t, sink)
	ctx := context.Background()
	b := te.login(t)
	other := te.login(t)

	if err := te.ValidateAntiForgery(ctx, other.AntiForgeryToken, b.SessionID); !errors.Is(err, ErrCSRFInvalid) {
		t.Fatalf("expected ErrCSRFInvalid, got %v", err)
	}
	ev := waitForEvent(t, sink, AuditAntiForgeryRejected)
	if ev.Metadata["reason"] != "session_mismatch" {
		t.Fatalf("unexpected reason: %v", ev.Metadata)
	}
}

func TestAuditRateLimitedLogin(t *testing.T) {
	sink := NewChannelSink(32)
	te := newTestEngine(t, func(c *Config) {
		c.Audit.Enabled = true
		c.Security.MaxLoginAttempts = 1
	}, func(b *Builder) { b.WithAuditSink(sink) })
	ctx := context.Background()

	_, _ = te.LoginWithPassword(ctx, "alice@example.com", "wrong")
	if _, err := te.LoginWithPassword(ctx, "alice@example.com", "wrong"); !errors.Is(err, ErrLoginRateLimited) {
		t.Fatalf("expected ErrLoginRateLimited, got %v", err)
	}
	ev := waitForEvent(t, sink, AuditLoginRateLimited)
	if ev.Metadata["scope"] != "login" {
		t.Fatalf("unexpected metadata: %v", ev.Metadata)
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestAuditJSONWriterSinkDrainsOnClose(t *testing.T) {
	var out syncBuffer
	te := auditEngine(t, NewJSONWriterSink(&out))

	b := te.login(t)
	if err := te.Logout(context.Background(), b.SessionID); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if err := te.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	var last AuditEvent
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &last); err != nil {
		t.Fatalf("decode audit line: %v", err)
	}
	if last.EventType != AuditLogout || last.SessionID != b.SessionID {
		t.Fatalf("unexpected last event: %+v", last)
	}
}

func TestAuditDisabledEmitsNothing(t *testing.T) {
	sink := NewChannelSink(4)
	te := newTestEngine(t, nil, func(b *Builder) { b.WithAuditSink(sink) })
	te.login(t)

	select {
	case ev := <-sink.Events():
		t.Fatalf("unexpected event with audit disabled: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
	if te.AuditDropped() != 0 {
		t.Fatal("nothing can be dropped by a disabled dispatcher")
	}
}
