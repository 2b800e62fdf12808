package goRenew

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goRenew/session"
)

// SessionInfo is the safe introspection view for a session.
// It intentionally excludes token material and refresh token identifiers.
type SessionInfo struct {
	SessionID        string
	PrincipalID      string
	Roles            []string
	CreatedAt        time.Time
	RefreshExpiresAt time.Time
	RevokedAt        time.Time
	RevokeReason     string
	Active           bool
}

// LineageEntry is one step of a session's refresh token history.
type LineageEntry struct {
	TokenID   string
	State     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// HealthStatus is an on-demand backend health result.
type HealthStatus struct {
	StoreAvailable bool
	StoreLatency   time.Duration
}

type pinger interface {
	Ping(ctx context.Context) error
}

type loginAttemptCounter interface {
	LoginAttempts(ctx context.Context, identifier string) (int, error)
}

// ListSessions describes the listsessions operation and its observable behavior.
//
// ListSessions may return an error when input validation, dependency calls, or security checks fail.
// ListSessions does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ListSessions(ctx context.Context, principalID string) ([]SessionInfo, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	sessions, err := e.flows.ListSessions(ctx, principalID)
	if err != nil {
		return nil, introspectionError(err)
	}

	now := e.now()
	out := make([]SessionInfo, 0, len(sessions))
	for i := range sessions {
		out = append(out, toSessionInfo(&sessions[i], now))
	}
	return out, nil
}

// GetSession returns the introspection view of one session. Revoked sessions are returned
// with Active false until the store forgets them.
func (e *Engine) GetSession(ctx context.Context, sessionID string) (*SessionInfo, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	sess, err := e.flows.GetSession(ctx, sessionID)
	if err != nil {
		return nil, introspectionError(err)
	}

	info := toSessionInfo(sess, e.now())
	return &info, nil
}

// SessionLineage returns the refresh token history of a session, oldest first.
func (e *Engine) SessionLineage(ctx context.Context, sessionID string) ([]LineageEntry, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	records, err := e.flows.Lineage(ctx, sessionID)
	if err != nil {
		return nil, introspectionError(err)
	}

	out := make([]LineageEntry, 0, len(records))
	for _, r := range records {
		out = append(out, LineageEntry{
			TokenID:   r.TokenID,
			State:     string(r.State),
			IssuedAt:  r.IssuedAt,
			ExpiresAt: r.ExpiresAt,
		})
	}
	return out, nil
}

// Health describes the health operation and its observable behavior.
//
// Health may return an error when input validation, dependency calls, or security checks fail.
// Health does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	if e == nil || e.store == nil {
		return HealthStatus{}
	}

	p, ok := e.store.(pinger)
	if !ok {
		return HealthStatus{StoreAvailable: true}
	}

	start := time.Now()
	err := p.Ping(ctx)
	return HealthStatus{
		StoreAvailable: err == nil,
		StoreLatency:   time.Since(start),
	}
}

// GetLoginAttempts returns the failed-login counter of identifier. Limiters that cannot
// report counts return zero.
func (e *Engine) GetLoginAttempts(ctx context.Context, identifier string) (int, error) {
	if e == nil || e.limiter == nil {
		return 0, ErrEngineNotReady
	}
	if identifier == "" {
		return 0, nil
	}

	c, ok := e.limiter.(loginAttemptCounter)
	if !ok {
		return 0, nil
	}
	n, err := c.LoginAttempts(ctx, identifier)
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

func introspectionError(err error) error {
	switch {
	case errors.Is(err, ErrEngineNotReady),
		errors.Is(err, ErrSessionNotFound),
		errors.Is(err, ErrInvalidArgument):
		return err
	case errors.Is(err, session.ErrSessionNotFound):
		return ErrSessionNotFound
	default:
		return unavailable(err)
	}
}

func toSessionInfo(sess *session.Session, now time.Time) SessionInfo {
	return SessionInfo{
		SessionID:        sess.ID,
		PrincipalID:      sess.PrincipalID,
		Roles:            sess.Roles,
		CreatedAt:        sess.CreatedAt,
		RefreshExpiresAt: sess.RefreshExpiresAt,
		RevokedAt:        sess.RevokedAt,
		RevokeReason:     sess.RevokeReason,
		Active:           !sess.Revoked() && now.Before(sess.RefreshExpiresAt),
	}
}
