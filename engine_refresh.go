package goRenew

import (
	"context"
	"fmt"
	"time"

	"github.com/MrEthical07/goRenew/internal/flows"
)

// Refresh rotates refreshToken: the token is consumed and a new triple under the same session
// is returned. Presenting a token that was already rotated revokes the session and returns
// ErrSessionCompromised.
//
// Refresh may return an error when input validation, dependency calls, or security checks fail.
// Refresh does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenBundle, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if refreshToken == "" {
		e.metricInc(MetricRefreshInvalid)
		return nil, ErrRefreshInvalid
	}

	start := time.Now()
	defer e.observe(MetricRefreshLatency, start)

	res := e.flows.Refresh(ctx, refreshToken)
	if res.Failure != flows.RefreshFailureNone {
		return nil, e.refreshFailure(ctx, res)
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, AuditRefreshSuccess, true, res.PrincipalID, res.SessionID, nil, nil)
	return toTokenBundle(res.Bundle), nil
}

// ConsumeRefreshToken verifies and consumes refreshToken without issuing a successor and
// returns its session ID. The errors are those of Refresh.
//
// A successful call ends the session's refresh lineage: no token of the session is current
// afterwards, so later refreshes fail with ErrAlreadyConsumed. The session itself is not
// revoked; access tokens keep validating until they expire or the caller runs Logout.
//
// ConsumeRefreshToken may return an error when input validation, dependency calls, or security checks fail.
// ConsumeRefreshToken does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ConsumeRefreshToken(ctx context.Context, refreshToken string) (string, error) {
	if !e.ready() {
		return "", ErrEngineNotReady
	}
	if refreshToken == "" {
		return "", ErrRefreshInvalid
	}

	res := e.flows.Consume(ctx, refreshToken)
	if res.Failure != flows.RefreshFailureNone {
		return "", e.refreshFailure(ctx, res)
	}
	return res.SessionID, nil
}

func (e *Engine) refreshFailure(ctx context.Context, res flows.RefreshResult) error {
	invalid := func(reason string, err error) error {
		e.metricInc(MetricRefreshInvalid)
		e.emitAudit(ctx, AuditRefreshInvalid, false, res.PrincipalID, res.SessionID, err, func() map[string]string {
			return map[string]string{"reason": reason}
		})
		return err
	}

	switch res.Failure {
	case flows.RefreshFailureVerify:
		return invalid("token", ErrRefreshInvalid)

	case flows.RefreshFailureNotFound:
		return invalid("not_found", ErrRefreshInvalid)

	case flows.RefreshFailureExpired:
		return invalid("expired", ErrRefreshInvalid)

	case flows.RefreshFailureRevoked:
		return invalid("revoked", ErrRevoked)

	case flows.RefreshFailureAlreadyConsumed:
		e.metricInc(MetricRefreshAlreadyConsumed)
		e.emitAudit(ctx, AuditRefreshInvalid, false, res.PrincipalID, res.SessionID, ErrAlreadyConsumed, func() map[string]string {
			return map[string]string{"reason": "already_consumed"}
		})
		return ErrAlreadyConsumed

	case flows.RefreshFailureReuse:
		e.metricInc(MetricRefreshReuseDetected)
		e.metricInc(MetricSessionRevoked)
		e.logger.ErrorContext(ctx, "refresh token reuse detected, session revoked",
			"session_id", res.SessionID,
			"principal_id", res.PrincipalID,
			"token_id", res.TokenID,
			"ip", clientIPFromContext(ctx),
		)
		e.emitAudit(ctx, AuditRefreshReuse, false, res.PrincipalID, res.SessionID, ErrSessionCompromised, func() map[string]string {
			return map[string]string{"token_id": res.TokenID}
		})
		return ErrSessionCompromised

	case flows.RefreshFailureRateLimited:
		if isRateLimited(res.Err) {
			e.metricInc(MetricRefreshRateLimited)
			e.emitRateLimit(ctx, AuditRefreshRateLimited, res.SessionID, func() map[string]string {
				return map[string]string{"scope": "refresh"}
			})
			return ErrRefreshRateLimited
		}
		e.metricInc(MetricBackendUnavailable)
		return unavailable(res.Err)

	case flows.RefreshFailureSign:
		e.logger.ErrorContext(ctx, "token signing failed", "session_id", res.SessionID, "error", res.Err)
		return fmt.Errorf("sign token: %w", res.Err)

	default:
		// The consumed token stays consumed; a retry with it reports ErrAlreadyConsumed.
		e.metricInc(MetricBackendUnavailable)
		e.logger.WarnContext(ctx, "refresh failed on session store", "session_id", res.SessionID, "error", res.Err)
		return unavailable(res.Err)
	}
}

// Logout revokes sessionID. Revoking an unknown or already revoked session succeeds.
//
// Logout may return an error when input validation, dependency calls, or security checks fail.
// Logout does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Logout(ctx context.Context, sessionID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if sessionID == "" {
		return ErrInvalidArgument
	}

	if err := e.flows.Logout(ctx, sessionID); err != nil {
		e.metricInc(MetricBackendUnavailable)
		return unavailable(err)
	}

	e.metricInc(MetricLogout)
	e.metricInc(MetricSessionRevoked)
	e.emitAudit(ctx, AuditLogout, true, "", sessionID, nil, nil)
	return nil
}

// LogoutWithRefresh revokes the session named by refreshToken. An expired refresh token is
// accepted as long as its signature verifies, so a client can always end its session.
//
// LogoutWithRefresh may return an error when input validation, dependency calls, or security checks fail.
// LogoutWithRefresh does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) LogoutWithRefresh(ctx context.Context, refreshToken string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if refreshToken == "" {
		return ErrRefreshInvalid
	}

	res := e.flows.LogoutWithRefresh(ctx, refreshToken)
	if res.TokenErr != nil {
		return ErrRefreshInvalid
	}
	if res.Err != nil {
		e.metricInc(MetricBackendUnavailable)
		return unavailable(res.Err)
	}

	e.metricInc(MetricLogout)
	e.metricInc(MetricSessionRevoked)
	e.emitAudit(ctx, AuditLogout, true, res.PrincipalID, res.SessionID, nil, nil)
	return nil
}

// RefreshWithAntiForgery is Refresh for cookie-carried refresh tokens: antiForgeryToken must
// be an authenticated anti-forgery token bound to the refresh token's session. The session
// store alone decides whether that session is still live.
func (e *Engine) RefreshWithAntiForgery(ctx context.Context, refreshToken, antiForgeryToken string) (*TokenBundle, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	claims, err := e.jwt.VerifyRefresh(refreshToken)
	if err != nil {
		e.metricInc(MetricRefreshInvalid)
		return nil, ErrRefreshInvalid
	}
	if err := e.checkBoundAntiForgery(ctx, antiForgeryToken, claims.SessionID); err != nil {
		return nil, err
	}
	return e.Refresh(ctx, refreshToken)
}

// LogoutWithAntiForgery is LogoutWithRefresh guarded by an anti-forgery token bound to the
// refresh token's session. Logging out of an already revoked session still succeeds.
func (e *Engine) LogoutWithAntiForgery(ctx context.Context, refreshToken, antiForgeryToken string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	claims, err := e.jwt.InspectRefresh(refreshToken)
	if err != nil {
		return ErrRefreshInvalid
	}
	if err := e.checkBoundAntiForgery(ctx, antiForgeryToken, claims.SessionID); err != nil {
		return err
	}
	return e.LogoutWithRefresh(ctx, refreshToken)
}
