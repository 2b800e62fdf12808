// Package credential turns presented credentials into a principal.
//
// Two credential kinds are supported: an email and password checked against the stored
// argon2id hash, and a signed assertion from a federated identity provider. Every rejection
// is reported as ErrCredentialInvalid so callers cannot tell an unknown principal from a wrong
// secret.
package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrEthical07/goRenew/directory"
	"github.com/MrEthical07/goRenew/federation"
	"github.com/MrEthical07/goRenew/password"
)

var (
	ErrCredentialInvalid = errors.New("credential: invalid credentials")
	ErrUnavailable       = errors.New("credential: backend unavailable")
	ErrFederationOff     = errors.New("credential: federated login not configured")
)

// Directory is the principal lookup the validator depends on. *directory.Store satisfies it.
type Directory interface {
	PrincipalByEmail(ctx context.Context, email string) (directory.Principal, error)
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error
	ResolveFederated(ctx context.Context, provider, subject, email string, linkByEmail bool) (directory.Principal, bool, error)
}

// AssertionVerifier checks federated ID tokens. *federation.Verifier satisfies it.
type AssertionVerifier interface {
	Verify(ctx context.Context, provider, idToken string) (federation.Assertion, error)
}

// Validator authenticates principals.
type Validator struct {
	dir    Directory
	hasher password.Hasher
	fed    AssertionVerifier
	logger *slog.Logger

	linkVerifiedEmail bool
}

// Option configures a Validator.
type Option func(*Validator)

// WithFederation enables ValidateFederated.
func WithFederation(v AssertionVerifier) Option {
	return func(val *Validator) { val.fed = v }
}

// WithLinkVerifiedEmail attaches a first federated login to an existing principal when the
// provider vouches for the email.
func WithLinkVerifiedEmail(enabled bool) Option {
	return func(val *Validator) { val.linkVerifiedEmail = enabled }
}

// WithLogger sets the logger used for best-effort warnings.
func WithLogger(l *slog.Logger) Option {
	return func(val *Validator) {
		if l != nil {
			val.logger = l
		}
	}
}

// NewValidator builds a Validator over dir using hasher for password checks.
func NewValidator(dir Directory, hasher password.Hasher, opts ...Option) *Validator {
	v := &Validator{
		dir:    dir,
		hasher: hasher,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ValidatePassword checks email and password. Unknown principals still pay for one hash
// verification.
func (v *Validator) ValidatePassword(ctx context.Context, email, secret string) (directory.Principal, error) {
	p, err := v.dir.PrincipalByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			v.hasher.VerifyDummy(secret)
			return directory.Principal{}, ErrCredentialInvalid
		}
		return directory.Principal{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if p.PasswordHash == "" {
		// Federated-only principal.
		v.hasher.VerifyDummy(secret)
		return directory.Principal{}, ErrCredentialInvalid
	}

	ok, err := v.hasher.Verify(secret, p.PasswordHash)
	if err != nil || !ok {
		if err != nil && !errors.Is(err, password.ErrTooLong) {
			v.logger.WarnContext(ctx, "stored password hash rejected", "principal_id", p.ID, "error", err)
		}
		return directory.Principal{}, ErrCredentialInvalid
	}

	if upgrade, err := v.hasher.NeedsUpgrade(p.PasswordHash); err == nil && upgrade {
		if fresh, err := v.hasher.Hash(secret); err == nil {
			if err := v.dir.UpdatePasswordHash(ctx, p.ID, fresh); err != nil {
				v.logger.WarnContext(ctx, "password rehash not stored", "principal_id", p.ID, "error", err)
			} else {
				p.PasswordHash = fresh
			}
		}
	}
	return p, nil
}

// ValidateFederated verifies idToken from provider and resolves, or on first login creates,
// the linked principal.
func (v *Validator) ValidateFederated(ctx context.Context, provider, idToken string) (directory.Principal, error) {
	if v.fed == nil {
		return directory.Principal{}, ErrFederationOff
	}
	a, err := v.fed.Verify(ctx, provider, idToken)
	if err != nil {
		return directory.Principal{}, ErrCredentialInvalid
	}

	p, created, err := v.dir.ResolveFederated(ctx, a.Provider, a.Subject, a.Email, v.linkVerifiedEmail && a.EmailVerified)
	switch {
	case errors.Is(err, directory.ErrEmailTaken):
		return directory.Principal{}, ErrCredentialInvalid
	case err != nil:
		return directory.Principal{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if created {
		v.logger.InfoContext(ctx, "principal created by federated login", "principal_id", p.ID, "provider", a.Provider)
	}
	return p, nil
}
