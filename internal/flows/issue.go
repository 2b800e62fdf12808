package flows

import (
	"context"
	"time"
)

// IssueFailureKind classifies issuance failures for root-level mapping.
type IssueFailureKind int

const (
	IssueFailureNone IssueFailureKind = iota
	IssueFailureCreateSession
	IssueFailureSign
	IssueFailureRecord
)

// Bundle is the token triple handed to a client after login or refresh.
type Bundle struct {
	SessionID   string
	PrincipalID string
	Roles       []string

	AccessToken     string
	AccessExpiresAt time.Time

	RefreshToken     string
	RefreshTokenID   string
	RefreshExpiresAt time.Time

	AntiForgeryToken     string
	AntiForgeryExpiresAt time.Time
}

// TokenSigner is the signing half of the token manager.
type TokenSigner interface {
	IssueAccess(subject, sessionID string, roles []string) (string, time.Time, error)
	IssueRefresh(subject, sessionID, tokenID string) (string, time.Time, error)
	IssueAntiForgery(sessionID string) (string, time.Time, error)
}

type IssueSessionStore interface {
	CreateSession(ctx context.Context, principalID string, roles []string) (string, error)
	RecordRefreshToken(ctx context.Context, sessionID, tokenID string, expiresAt time.Time) error
	RevokeSession(ctx context.Context, sessionID string) error
}

// IssueDeps captures login issuance dependencies.
type IssueDeps struct {
	Signer       TokenSigner
	SessionStore IssueSessionStore
	NewTokenID   func() string
	Warn         func(context.Context, string, ...any)
}

// IssueResult carries either the issued bundle or failure metadata.
type IssueResult struct {
	Failure   IssueFailureKind
	Err       error
	SessionID string
	Bundle    Bundle
}

// RunIssue opens a session for principalID and issues its first token triple. A session
// whose first refresh token could not be recorded is revoked again.
func RunIssue(ctx context.Context, principalID string, roles []string, deps IssueDeps) IssueResult {
	sessionID, err := deps.SessionStore.CreateSession(ctx, principalID, roles)
	if err != nil {
		return IssueResult{Failure: IssueFailureCreateSession, Err: err}
	}

	bundle, failure, err := issueBundle(ctx, sessionID, principalID, roles, deps.Signer, deps.SessionStore, deps.NewTokenID)
	if err != nil {
		if revokeErr := deps.SessionStore.RevokeSession(ctx, sessionID); revokeErr != nil && deps.Warn != nil {
			deps.Warn(ctx, "revoke after failed issuance", "session_id", sessionID, "error", revokeErr)
		}
		return IssueResult{Failure: failure, Err: err, SessionID: sessionID}
	}

	return IssueResult{SessionID: sessionID, Bundle: bundle}
}

type refreshRecorder interface {
	RecordRefreshToken(ctx context.Context, sessionID, tokenID string, expiresAt time.Time) error
}

// issueBundle signs the access and refresh tokens, records the refresh token as the
// session's current one and signs the authenticated anti-forgery token.
func issueBundle(
	ctx context.Context,
	sessionID, principalID string,
	roles []string,
	signer TokenSigner,
	store refreshRecorder,
	newTokenID func() string,
) (Bundle, IssueFailureKind, error) {
	b := Bundle{
		SessionID:      sessionID,
		PrincipalID:    principalID,
		Roles:          roles,
		RefreshTokenID: newTokenID(),
	}

	var err error
	b.AccessToken, b.AccessExpiresAt, err = signer.IssueAccess(principalID, sessionID, roles)
	if err != nil {
		return Bundle{}, IssueFailureSign, err
	}
	b.RefreshToken, b.RefreshExpiresAt, err = signer.IssueRefresh(principalID, sessionID, b.RefreshTokenID)
	if err != nil {
		return Bundle{}, IssueFailureSign, err
	}
	b.AntiForgeryToken, b.AntiForgeryExpiresAt, err = signer.IssueAntiForgery(sessionID)
	if err != nil {
		return Bundle{}, IssueFailureSign, err
	}

	if err := store.RecordRefreshToken(ctx, sessionID, b.RefreshTokenID, b.RefreshExpiresAt); err != nil {
		return Bundle{}, IssueFailureRecord, err
	}
	return b, IssueFailureNone, nil
}
