// Package federation verifies identity assertions issued by external identity providers.
//
// An assertion is a signed ID token. The verifier checks signature, issuer, audience and
// expiry against per-provider settings and yields the provider subject and email. It never
// contacts the provider; keys are configured up front.
package federation

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrUnknownProvider  = errors.New("federation: unknown provider")
	ErrInvalidAssertion = errors.New("federation: invalid assertion")
)

// Provider describes one trusted identity provider.
type Provider struct {
	Name     string
	Issuer   string
	Audience string
	// Keys maps key IDs to verification keys. A token without a kid header is accepted only
	// when exactly one key is configured.
	Keys map[string]crypto.PublicKey
	// TrustEmail marks the provider's email claim as verified even when the token omits
	// email_verified.
	TrustEmail bool
}

// Assertion is the verified outcome of a federated login.
type Assertion struct {
	Provider      string
	Subject       string
	Email         string
	EmailVerified bool
}

type idTokenClaims struct {
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified,omitempty"`
	jwt.RegisteredClaims
}

// Verifier checks ID tokens for a fixed set of providers.
type Verifier struct {
	providers map[string]Provider
	leeway    time.Duration
	now       func() time.Time
}

// NewVerifier validates provider settings. leeway bounds clock skew on exp and nbf.
func NewVerifier(leeway time.Duration, providers ...Provider) (*Verifier, error) {
	if leeway < 0 || leeway > 2*time.Minute {
		return nil, errors.New("federation: leeway must be between 0 and 2m")
	}
	v := &Verifier{
		providers: make(map[string]Provider, len(providers)),
		leeway:    leeway,
		now:       time.Now,
	}
	for _, p := range providers {
		switch {
		case p.Name == "":
			return nil, errors.New("federation: provider name is required")
		case p.Issuer == "" || p.Audience == "":
			return nil, fmt.Errorf("federation: provider %q needs issuer and audience", p.Name)
		case len(p.Keys) == 0:
			return nil, fmt.Errorf("federation: provider %q has no keys", p.Name)
		}
		if _, dup := v.providers[p.Name]; dup {
			return nil, fmt.Errorf("federation: duplicate provider %q", p.Name)
		}
		v.providers[p.Name] = p
	}
	return v, nil
}

// WithClock overrides the time source, for tests.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

// Providers lists configured provider names.
func (v *Verifier) Providers() []string {
	out := make([]string, 0, len(v.providers))
	for name := range v.providers {
		out = append(out, name)
	}
	return out
}

// Verify checks idToken as issued by provider.
func (v *Verifier) Verify(_ context.Context, provider, idToken string) (Assertion, error) {
	p, ok := v.providers[provider]
	if !ok {
		return Assertion{}, ErrUnknownProvider
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"RS256", "ES256", "EdDSA"}),
		jwt.WithIssuer(p.Issuer),
		jwt.WithAudience(p.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	)

	var claims idTokenClaims
	_, err := parser.ParseWithClaims(idToken, &claims, func(t *jwt.Token) (any, error) {
		return keyFor(p, t)
	})
	if err != nil {
		return Assertion{}, fmt.Errorf("%w: %w", ErrInvalidAssertion, err)
	}
	if claims.Subject == "" {
		return Assertion{}, fmt.Errorf("%w: missing subject", ErrInvalidAssertion)
	}

	return Assertion{
		Provider:      p.Name,
		Subject:       claims.Subject,
		Email:         claims.Email,
		EmailVerified: claims.Email != "" && (claims.EmailVerified || p.TrustEmail),
	}, nil
}

func keyFor(p Provider, t *jwt.Token) (any, error) {
	var key crypto.PublicKey
	kid, _ := t.Header["kid"].(string)
	if kid == "" {
		if len(p.Keys) != 1 {
			return nil, errors.New("kid header required")
		}
		for _, k := range p.Keys {
			key = k
		}
	} else {
		k, ok := p.Keys[kid]
		if !ok {
			return nil, fmt.Errorf("unknown kid %q", kid)
		}
		key = k
	}

	// Each key is bound to its algorithm family.
	switch key.(type) {
	case *rsa.PublicKey:
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, errors.New("algorithm does not match key")
		}
	case *ecdsa.PublicKey:
		if _, ok := t.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, errors.New("algorithm does not match key")
		}
	case ed25519.PublicKey:
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, errors.New("algorithm does not match key")
		}
	default:
		return nil, errors.New("unsupported key type")
	}
	return key, nil
}

// ParsePublicKeyPEM decodes an RSA, ECDSA or Ed25519 public key.
func ParsePublicKeyPEM(data []byte) (crypto.PublicKey, error) {
	if k, err := jwt.ParseRSAPublicKeyFromPEM(data); err == nil {
		return k, nil
	}
	if k, err := jwt.ParseECPublicKeyFromPEM(data); err == nil {
		return k, nil
	}
	if k, err := jwt.ParseEdPublicKeyFromPEM(data); err == nil {
		return k, nil
	}
	return nil, errors.New("federation: unrecognized public key")
}
