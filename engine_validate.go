package goRenew

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goRenew/internal/flows"
	"github.com/MrEthical07/goRenew/jwt"
)

// ValidateAccess validates an access token under the engine's configured validation mode.
// Of all failures only ErrTokenExpired may be cured by a refresh.
func (e *Engine) ValidateAccess(ctx context.Context, token string) (*AuthResult, error) {
	return e.Validate(ctx, token, ModeInherit)
}

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Validate(ctx context.Context, token string, mode ValidationMode) (*AuthResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if token == "" {
		e.metricInc(MetricValidateRejected)
		return nil, ErrTokenMissing
	}
	switch mode {
	case ModeInherit, ModeStateless, ModeStrict:
	default:
		return nil, ErrInvalidArgument
	}

	start := time.Now()
	defer e.observe(MetricValidateLatency, start)

	res := e.flows.Validate(ctx, token, int(mode))
	switch res.Failure {
	case flows.ValidateFailureNone:
	case flows.ValidateFailureToken:
		err := tokenError(res.Err)
		if errors.Is(err, ErrTokenExpired) {
			e.metricInc(MetricValidateExpired)
		} else {
			e.metricInc(MetricValidateRejected)
		}
		return nil, err
	case flows.ValidateFailureSessionRevoked:
		e.metricInc(MetricValidateRejected)
		return nil, ErrTokenRevoked
	default:
		// Strict validation fails closed.
		e.metricInc(MetricBackendUnavailable)
		return nil, unavailable(res.Err)
	}

	e.metricInc(MetricValidateSuccess)
	return toAuthResult(res.Claims), nil
}

// tokenError maps a verifier error onto the public token errors. The jwt package reports the
// first failing check, so the mapping is one to one.
func tokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrBadSignature):
		return ErrTokenBadSignature
	case errors.Is(err, jwt.ErrNotYetValid):
		return ErrTokenNotYetValid
	case errors.Is(err, jwt.ErrWrongIssuer):
		return ErrTokenWrongIssuer
	case errors.Is(err, jwt.ErrWrongAudience):
		return ErrTokenWrongAudience
	case errors.Is(err, jwt.ErrWrongPurpose):
		return ErrTokenWrongPurpose
	default:
		return ErrTokenMalformed
	}
}

func toAuthResult(c *jwt.AccessClaims) *AuthResult {
	r := &AuthResult{
		PrincipalID: c.Subject,
		SessionID:   c.SessionID,
		Roles:       c.Roles,
	}
	if c.IssuedAt != nil {
		r.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		r.ExpiresAt = c.ExpiresAt.Time
	}
	return r
}

// ValidateAntiForgery checks the anti-forgery token sent with a state-changing request made
// under sessionID. sessionID is empty for requests without a session, such as the login form,
// and then only an anonymous token is accepted.
//
// ValidateAntiForgery may return an error when input validation, dependency calls, or security checks fail.
// ValidateAntiForgery does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ValidateAntiForgery(ctx context.Context, token, sessionID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	res := e.flows.ValidateAntiForgery(ctx, token, sessionID)
	return e.antiForgeryOutcome(ctx, sessionID, res)
}

// checkBoundAntiForgery checks that token is an authenticated anti-forgery token for
// sessionID without consulting the session store. Refresh and logout use it because the
// session store decides their outcome anyway. An expired token is accepted; renewal is
// where the client gets a fresh one.
func (e *Engine) checkBoundAntiForgery(ctx context.Context, token, sessionID string) error {
	res := flows.RunValidateAntiForgery(ctx, token, sessionID, flows.AntiForgeryDeps{
		VerifyAntiForgery: e.jwt.InspectAntiForgery,
	})
	if res.Failure == flows.AntiForgeryFailureNone && res.Claims.Scope != jwt.ScopeAuthenticated {
		res.Failure = flows.AntiForgeryFailureMismatch
	}
	return e.antiForgeryOutcome(ctx, sessionID, res)
}

func (e *Engine) antiForgeryOutcome(ctx context.Context, sessionID string, res flows.AntiForgeryResult) error {
	var reason string
	switch res.Failure {
	case flows.AntiForgeryFailureNone:
		return nil
	case flows.AntiForgeryFailureUnavailable:
		e.metricInc(MetricBackendUnavailable)
		return unavailable(res.Err)
	case flows.AntiForgeryFailureMissing:
		reason = "missing"
	case flows.AntiForgeryFailureMismatch:
		reason = "session_mismatch"
	case flows.AntiForgeryFailureSessionInvalid:
		reason = "session_invalid"
	default:
		reason = "token"
	}

	e.metricInc(MetricCSRFRejected)
	e.emitAudit(ctx, AuditAntiForgeryRejected, false, "", sessionID, ErrCSRFInvalid, func() map[string]string {
		return map[string]string{"reason": reason}
	})
	return ErrCSRFInvalid
}

// IssueAnonymousAntiForgery returns an anti-forgery token for forms shown before login.
func (e *Engine) IssueAnonymousAntiForgery(ctx context.Context) (string, time.Time, error) {
	if !e.ready() {
		return "", time.Time{}, ErrEngineNotReady
	}
	return e.jwt.IssueAntiForgery("")
}

// IssueAntiForgery returns a fresh anti-forgery token bound to sessionID, for clients that
// lost the one issued with their last token triple. The session must still be valid.
func (e *Engine) IssueAntiForgery(ctx context.Context, sessionID string) (string, time.Time, error) {
	if !e.ready() {
		return "", time.Time{}, ErrEngineNotReady
	}
	if sessionID == "" {
		return "", time.Time{}, ErrInvalidArgument
	}

	ok, err := e.store.IsSessionValid(ctx, sessionID)
	if err != nil {
		e.metricInc(MetricBackendUnavailable)
		return "", time.Time{}, unavailable(err)
	}
	if !ok {
		return "", time.Time{}, ErrRevoked
	}
	return e.jwt.IssueAntiForgery(sessionID)
}
