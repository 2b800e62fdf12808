package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goRenew/jwt"
	"github.com/MrEthical07/goRenew/session"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureVerify
	RefreshFailureRateLimited
	RefreshFailureNotFound
	RefreshFailureExpired
	RefreshFailureAlreadyConsumed
	RefreshFailureRevoked
	RefreshFailureReuse
	RefreshFailureUnavailable
	RefreshFailureSign
	RefreshFailureRecord
)

// RefreshResult carries either the rotated bundle or failure metadata.
type RefreshResult struct {
	Failure     RefreshFailureKind
	Err         error
	SessionID   string
	PrincipalID string
	TokenID     string
	Bundle      Bundle
}

type RefreshRateLimiter interface {
	CheckRefresh(ctx context.Context, sessionID string) error
}

type RefreshSessionStore interface {
	ConsumeRefreshToken(ctx context.Context, tokenID string) (session.Consumed, error)
	RecordRefreshToken(ctx context.Context, sessionID, tokenID string, expiresAt time.Time) error
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	VerifyRefresh func(string) (*jwt.RefreshClaims, error)
	Signer        TokenSigner
	NewTokenID    func() string
	RateLimiter   RefreshRateLimiter
	SessionStore  RefreshSessionStore
}

// RunConsume verifies the refresh token and consumes it in the session store. It is the
// first half of RunRefresh and never issues tokens.
func RunConsume(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	claims, err := deps.VerifyRefresh(refreshToken)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureVerify, Err: err}
	}
	res := RefreshResult{
		SessionID:   claims.SessionID,
		PrincipalID: claims.Subject,
		TokenID:     claims.ID,
	}
	if claims.ID == "" || claims.SessionID == "" {
		res.Failure = RefreshFailureVerify
		res.Err = jwt.ErrMalformed
		return res
	}

	if deps.RateLimiter != nil {
		if err := deps.RateLimiter.CheckRefresh(ctx, claims.SessionID); err != nil {
			res.Failure = RefreshFailureRateLimited
			res.Err = err
			return res
		}
	}

	consumed, err := deps.SessionStore.ConsumeRefreshToken(ctx, claims.ID)
	if err != nil {
		res.Err = err
		res.Failure = consumeFailure(err)
		return res
	}
	if consumed.SessionID != claims.SessionID {
		// A signed token whose jti belongs to another session is never issued by us.
		res.Failure = RefreshFailureVerify
		res.Err = errors.New("refresh token session mismatch")
		return res
	}

	res.PrincipalID = consumed.PrincipalID
	res.Bundle.Roles = consumed.Roles
	return res
}

// RunRefresh rotates a refresh token: verify, consume, then issue and record the successor.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	res := RunConsume(ctx, refreshToken, deps)
	if res.Failure != RefreshFailureNone {
		return res
	}

	bundle, failure, err := issueBundle(ctx, res.SessionID, res.PrincipalID, res.Bundle.Roles, deps.Signer, deps.SessionStore, deps.NewTokenID)
	if err != nil {
		res.Err = err
		switch {
		case failure == IssueFailureSign:
			res.Failure = RefreshFailureSign
		case errors.Is(err, session.ErrRevoked):
			// Logged out between consume and record.
			res.Failure = RefreshFailureRevoked
		default:
			res.Failure = RefreshFailureRecord
		}
		return res
	}

	res.Bundle = bundle
	return res
}

func consumeFailure(err error) RefreshFailureKind {
	switch {
	case errors.Is(err, session.ErrReused):
		return RefreshFailureReuse
	case errors.Is(err, session.ErrAlreadyConsumed):
		return RefreshFailureAlreadyConsumed
	case errors.Is(err, session.ErrRevoked):
		return RefreshFailureRevoked
	case errors.Is(err, session.ErrExpired):
		return RefreshFailureExpired
	case errors.Is(err, session.ErrNotFound):
		return RefreshFailureNotFound
	default:
		return RefreshFailureUnavailable
	}
}
