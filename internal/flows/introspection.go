package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/goRenew/session"
)

type IntrospectionSessionStore interface {
	GetSession(ctx context.Context, sessionID string) (*session.Session, error)
	ListSessions(ctx context.Context, principalID string) ([]session.Session, error)
	Lineage(ctx context.Context, sessionID string) ([]session.RefreshRecord, error)
}

type IntrospectionDeps struct {
	SessionStore       IntrospectionSessionStore
	EngineNotReadyErr  error
	SessionNotFoundErr error
	InvalidInputErr    error
}

func RunListSessions(ctx context.Context, principalID string, deps IntrospectionDeps) ([]session.Session, error) {
	if deps.SessionStore == nil {
		return nil, deps.EngineNotReadyErr
	}
	if principalID == "" {
		return nil, deps.InvalidInputErr
	}
	return deps.SessionStore.ListSessions(ctx, principalID)
}

func RunGetSession(ctx context.Context, sessionID string, deps IntrospectionDeps) (*session.Session, error) {
	if deps.SessionStore == nil {
		return nil, deps.EngineNotReadyErr
	}
	if sessionID == "" {
		return nil, deps.InvalidInputErr
	}
	sess, err := deps.SessionStore.GetSession(ctx, sessionID)
	if errors.Is(err, session.ErrSessionNotFound) {
		return nil, deps.SessionNotFoundErr
	}
	return sess, err
}

func RunLineage(ctx context.Context, sessionID string, deps IntrospectionDeps) ([]session.RefreshRecord, error) {
	if deps.SessionStore == nil {
		return nil, deps.EngineNotReadyErr
	}
	if sessionID == "" {
		return nil, deps.InvalidInputErr
	}
	records, err := deps.SessionStore.Lineage(ctx, sessionID)
	if errors.Is(err, session.ErrSessionNotFound) {
		return nil, deps.SessionNotFoundErr
	}
	return records, err
}
