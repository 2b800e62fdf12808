package goRenew

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MrEthical07/goRenew/credential"
	"github.com/MrEthical07/goRenew/internal/audit"
	"github.com/MrEthical07/goRenew/internal/flows"
	"github.com/MrEthical07/goRenew/internal/rate"
	"github.com/MrEthical07/goRenew/jwt"
	"github.com/MrEthical07/goRenew/session"
)

// Engine issues, renews and validates token triples.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config      Config
	logger      *slog.Logger
	jwt         *jwt.Manager
	store       session.Store
	limiter     LoginLimiter
	credentials CredentialValidator
	audit       *audit.Dispatcher
	metrics     *Metrics
	flows       flows.Service
}

// Close stops the audit dispatcher after draining queued events, or when ctx is done.
// Close may be called more than once.
func (e *Engine) Close(ctx context.Context) error {
	if e == nil || e.audit == nil {
		return nil
	}
	return e.audit.Close(ctx)
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped may return an error when input validation, dependency calls, or security checks fail.
// AuditDropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot may return an error when input validation, dependency calls, or security checks fail.
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	return cloneConfig(e.config)
}

// JWKS returns the verification keys resource services need to validate access tokens.
func (e *Engine) JWKS() jwt.JWKSet {
	if e == nil || e.jwt == nil {
		return jwt.JWKSet{Keys: []jwt.JWK{}}
	}
	return e.jwt.JWKS()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) observe(id MetricID, start time.Time) {
	if e == nil || !e.metrics.LatencyEnabled() {
		return
	}
	e.metrics.Observe(id, time.Since(start))
}

func (e *Engine) ready() bool {
	return e != nil && e.jwt != nil && e.flows.Initialized()
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
}

// Login opens a session for an already authenticated principal and returns its first token
// triple. Callers that verify credentials themselves use it directly; LoginWithPassword and
// LoginWithFederated call it after validation.
func (e *Engine) Login(ctx context.Context, principalID string, roles []string) (*TokenBundle, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if strings.TrimSpace(principalID) == "" {
		return nil, ErrInvalidArgument
	}

	res := e.flows.Issue(ctx, principalID, roles)
	switch res.Failure {
	case flows.IssueFailureNone:
	case flows.IssueFailureSign:
		e.logger.ErrorContext(ctx, "token signing failed", "principal_id", principalID, "error", res.Err)
		return nil, fmt.Errorf("sign token: %w", res.Err)
	default:
		e.metricInc(MetricBackendUnavailable)
		return nil, unavailable(res.Err)
	}

	e.metricInc(MetricSessionCreated)
	return toTokenBundle(res.Bundle), nil
}

// LoginWithPassword validates email and password and opens a session. Failed attempts count
// against the per-identifier budget, and against the per-IP budget when the caller's IP was
// attached with WithClientIP.
//
// LoginWithPassword may return an error when input validation, dependency calls, or security checks fail.
// LoginWithPassword does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) LoginWithPassword(ctx context.Context, email, password string) (*TokenBundle, error) {
	if !e.ready() || e.credentials == nil {
		return nil, ErrEngineNotReady
	}

	identifier := strings.ToLower(strings.TrimSpace(email))
	ip := clientIPFromContext(ctx)

	if err := e.limiter.CheckLogin(ctx, identifier, ip); err != nil {
		if isRateLimited(err) {
			e.metricInc(MetricLoginRateLimited)
			e.emitRateLimit(ctx, AuditLoginRateLimited, "", func() map[string]string {
				return map[string]string{"scope": "login"}
			})
			return nil, ErrLoginRateLimited
		}
		e.metricInc(MetricBackendUnavailable)
		return nil, unavailable(err)
	}

	p, err := e.credentials.ValidatePassword(ctx, email, password)
	if err != nil {
		if !isCredentialInvalid(err) {
			e.metricInc(MetricBackendUnavailable)
			return nil, unavailable(err)
		}
		if incErr := e.limiter.IncrementLogin(ctx, identifier, ip); incErr != nil {
			e.logger.WarnContext(ctx, "login attempt not counted", "error", incErr)
		}
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, AuditLoginFailure, false, "", "", ErrCredentialInvalid, func() map[string]string {
			return map[string]string{"method": "password"}
		})
		return nil, ErrCredentialInvalid
	}

	if err := e.limiter.ResetLogin(ctx, identifier, ip); err != nil {
		e.logger.WarnContext(ctx, "login attempts not reset", "principal_id", p.ID, "error", err)
	}

	bundle, err := e.Login(ctx, p.ID, p.Roles)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, AuditLoginSuccess, true, p.ID, bundle.SessionID, nil, func() map[string]string {
		return map[string]string{"method": "password"}
	})
	return bundle, nil
}

// LoginWithFederated verifies an ID token from a configured identity provider and opens a
// session for the linked principal. The first login from a provider subject creates the
// principal.
//
// LoginWithFederated may return an error when input validation, dependency calls, or security checks fail.
// LoginWithFederated does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) LoginWithFederated(ctx context.Context, provider, idToken string) (*TokenBundle, error) {
	if !e.ready() || e.credentials == nil {
		return nil, ErrEngineNotReady
	}

	p, err := e.credentials.ValidateFederated(ctx, provider, idToken)
	if err != nil {
		switch {
		case errors.Is(err, credential.ErrFederationOff), errors.Is(err, ErrFederationDisabled):
			return nil, ErrFederationDisabled
		case isCredentialInvalid(err):
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, AuditLoginFailure, false, "", "", ErrCredentialInvalid, func() map[string]string {
				return map[string]string{"method": "federated", "provider": provider}
			})
			return nil, ErrCredentialInvalid
		default:
			e.metricInc(MetricBackendUnavailable)
			return nil, unavailable(err)
		}
	}

	bundle, err := e.Login(ctx, p.ID, p.Roles)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.metricInc(MetricFederatedLogin)
	e.emitAudit(ctx, AuditFederatedLogin, true, p.ID, bundle.SessionID, nil, func() map[string]string {
		return map[string]string{"method": "federated", "provider": provider}
	})
	return bundle, nil
}

func isCredentialInvalid(err error) bool {
	return errors.Is(err, credential.ErrCredentialInvalid) || errors.Is(err, ErrCredentialInvalid)
}

func isRateLimited(err error) bool {
	return errors.Is(err, rate.ErrRateLimited) ||
		errors.Is(err, ErrLoginRateLimited) ||
		errors.Is(err, ErrRefreshRateLimited)
}

func toTokenBundle(b flows.Bundle) *TokenBundle {
	return &TokenBundle{
		SessionID:            b.SessionID,
		PrincipalID:          b.PrincipalID,
		Roles:                b.Roles,
		AccessToken:          b.AccessToken,
		AccessExpiresAt:      b.AccessExpiresAt,
		RefreshToken:         b.RefreshToken,
		RefreshExpiresAt:     b.RefreshExpiresAt,
		AntiForgeryToken:     b.AntiForgeryToken,
		AntiForgeryExpiresAt: b.AntiForgeryExpiresAt,
	}
}
