package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/MrEthical07/goRenew/internal/ids"
)

// MemoryStore is a mutex-guarded [Store] for a single process. Sessions do not survive a
// restart and are not shared between instances.
type MemoryStore struct {
	mu       sync.Mutex
	opts     options
	sessions map[string]*Session
	tokens   map[string]*RefreshRecord
	lineage  map[string][]string
}

// NewMemoryStore creates an empty [MemoryStore].
func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{
		opts:     buildOptions(opts),
		sessions: make(map[string]*Session),
		tokens:   make(map[string]*RefreshRecord),
		lineage:  make(map[string][]string),
	}
}

func (s *MemoryStore) CreateSession(_ context.Context, principalID string, roles []string) (string, error) {
	sid, err := ids.NewSessionID()
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sid.String()] = &Session{
		ID:          sid.String(),
		PrincipalID: principalID,
		Roles:       cloneRoles(roles),
		CreatedAt:   s.opts.now().Truncate(time.Millisecond),
	}
	return sid.String(), nil
}

func (s *MemoryStore) RecordRefreshToken(_ context.Context, sessionID, tokenID string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if sess.Revoked() {
		return ErrRevoked
	}
	if prev, ok := s.tokens[sess.CurrentTokenID]; ok {
		prev.State = StateRotated
	}

	s.tokens[tokenID] = &RefreshRecord{
		TokenID:   tokenID,
		SessionID: sessionID,
		State:     StateCurrent,
		IssuedAt:  s.opts.now().Truncate(time.Millisecond),
		ExpiresAt: expiresAt.Truncate(time.Millisecond),
	}
	s.lineage[sessionID] = append(s.lineage[sessionID], tokenID)
	sess.CurrentTokenID = tokenID
	sess.RefreshExpiresAt = expiresAt.Truncate(time.Millisecond)
	return nil
}

func (s *MemoryStore) ConsumeRefreshToken(_ context.Context, tokenID string) (Consumed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.tokens[tokenID]
	if !ok {
		return Consumed{}, ErrNotFound
	}
	sess, ok := s.sessions[rec.SessionID]
	if !ok {
		return Consumed{}, ErrNotFound
	}
	out := Consumed{TokenID: tokenID, SessionID: sess.ID, PrincipalID: sess.PrincipalID}
	now := s.opts.now()

	switch {
	case sess.Revoked():
		return out, ErrRevoked
	case rec.State == StateRotated:
		s.revokeLocked(sess, ReasonReuse, now)
		return out, ErrReused
	case rec.State != StateCurrent:
		return out, ErrAlreadyConsumed
	case !now.Before(rec.ExpiresAt):
		return out, ErrExpired
	}

	rec.State = StateConsumed
	out.Roles = cloneRoles(sess.Roles)
	return out, nil
}

func (s *MemoryStore) RevokeSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[sessionID]; ok && !sess.Revoked() {
		s.revokeLocked(sess, ReasonLogout, s.opts.now())
	}
	return nil
}

func (s *MemoryStore) revokeLocked(sess *Session, reason string, now time.Time) {
	sess.RevokedAt = now.Truncate(time.Millisecond)
	sess.RevokeReason = reason
	if cur, ok := s.tokens[sess.CurrentTokenID]; ok && cur.State == StateCurrent {
		cur.State = StateRevoked
	}
}

func (s *MemoryStore) IsSessionValid(_ context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok || sess.Revoked() {
		return false, nil
	}
	if !sess.RefreshExpiresAt.IsZero() && !s.opts.now().Before(sess.RefreshExpiresAt) {
		return false, nil
	}
	return true, nil
}

func (s *MemoryStore) GetSession(_ context.Context, sessionID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *sess
	cp.Roles = cloneRoles(sess.Roles)
	return &cp, nil
}

func (s *MemoryStore) ListSessions(_ context.Context, principalID string) ([]Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Session
	for _, sess := range s.sessions {
		if sess.PrincipalID != principalID || sess.Revoked() {
			continue
		}
		cp := *sess
		cp.Roles = cloneRoles(sess.Roles)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) Lineage(_ context.Context, sessionID string) ([]RefreshRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	jtis := s.lineage[sessionID]
	out := make([]RefreshRecord, 0, len(jtis))
	for _, jti := range jtis {
		if rec, ok := s.tokens[jti]; ok {
			out = append(out, *rec)
		}
	}
	return out, nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }
