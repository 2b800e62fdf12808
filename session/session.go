package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a refresh token identifier was never recorded or has aged out.
	ErrNotFound = errors.New("session: refresh token not found")
	// ErrSessionNotFound is returned when a session ID is unknown.
	ErrSessionNotFound = errors.New("session: session not found")
	// ErrExpired is returned when the refresh token is past its expiry.
	ErrExpired = errors.New("session: refresh token expired")
	// ErrRevoked is returned for any token under a revoked session.
	ErrRevoked = errors.New("session: session revoked")
	// ErrAlreadyConsumed is returned to callers that lose a consume race.
	ErrAlreadyConsumed = errors.New("session: refresh token already consumed")
	// ErrReused is returned when a rotated token is presented again. The session has been
	// revoked by the time this error is returned.
	ErrReused = errors.New("session: rotated refresh token reused")
	// ErrUnavailable wraps backend failures.
	ErrUnavailable = errors.New("session: backend unavailable")
)

// State is the lifecycle position of one refresh token.
type State string

const (
	StateCurrent  State = "current"
	StateConsumed State = "consumed"
	StateRotated  State = "rotated"
	StateRevoked  State = "revoked"
)

const (
	ReasonLogout = "logout"
	ReasonReuse  = "refresh_reuse"
)

// Session is the unit of revocation.
type Session struct {
	ID               string
	PrincipalID      string
	Roles            []string
	CreatedAt        time.Time
	CurrentTokenID   string
	RefreshExpiresAt time.Time
	RevokedAt        time.Time
	RevokeReason     string
}

// Revoked reports whether the session reached its terminal state.
func (s Session) Revoked() bool {
	return !s.RevokedAt.IsZero()
}

// RefreshRecord is one step of a session's lineage. Rotated records are kept for audit and
// reuse detection until they age out.
type RefreshRecord struct {
	TokenID   string
	SessionID string
	State     State
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Consumed is the session context returned by a successful consume. On ErrReused it still
// carries SessionID and PrincipalID so the caller can report the incident.
type Consumed struct {
	TokenID     string
	SessionID   string
	PrincipalID string
	Roles       []string
}

// Store is the session store contract. Implementations must make ConsumeRefreshToken
// linearizable per token: of N concurrent calls with one current token exactly one succeeds.
type Store interface {
	CreateSession(ctx context.Context, principalID string, roles []string) (string, error)
	RecordRefreshToken(ctx context.Context, sessionID, tokenID string, expiresAt time.Time) error
	ConsumeRefreshToken(ctx context.Context, tokenID string) (Consumed, error)
	RevokeSession(ctx context.Context, sessionID string) error
	IsSessionValid(ctx context.Context, sessionID string) (bool, error)
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	ListSessions(ctx context.Context, principalID string) ([]Session, error)
	Lineage(ctx context.Context, sessionID string) ([]RefreshRecord, error)
}

type options struct {
	now        func() time.Time
	retention  time.Duration
	pendingTTL time.Duration
}

// Option tunes a store.
type Option func(*options)

// WithClock overrides the store clock.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithRetention sets how long lineage records outlive their refresh expiry.
func WithRetention(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.retention = d
		}
	}
}

// WithPendingTTL bounds how long a session may exist before its first refresh token is recorded.
func WithPendingTTL(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pendingTTL = d
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		now:        time.Now,
		retention:  24 * time.Hour,
		pendingTTL: time.Hour,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func encodeRoles(roles []string) string {
	if len(roles) == 0 {
		return ""
	}
	b, _ := json.Marshal(roles)
	return string(b)
}

func decodeRoles(s string) []string {
	if s == "" {
		return nil
	}
	var roles []string
	if err := json.Unmarshal([]byte(s), &roles); err != nil {
		return nil
	}
	return roles
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func cloneRoles(roles []string) []string {
	if len(roles) == 0 {
		return nil
	}
	return append([]string(nil), roles...)
}
