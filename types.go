package goRenew

import (
	"context"
	"time"

	"github.com/MrEthical07/goRenew/directory"
)

// TokenBundle is the token triple handed to a client after a login or a refresh. The refresh
// token is the only element backed by server state.
type TokenBundle struct {
	SessionID   string
	PrincipalID string
	Roles       []string

	AccessToken     string
	AccessExpiresAt time.Time

	RefreshToken     string
	RefreshExpiresAt time.Time

	AntiForgeryToken     string
	AntiForgeryExpiresAt time.Time
}

// AuthResult is the principal context established by a valid access token.
//
//	Docs: middleware.AuthResultFromContext
type AuthResult struct {
	PrincipalID string
	SessionID   string
	Roles       []string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// HasRole reports whether the result carries role.
func (r *AuthResult) HasRole(role string) bool {
	if r == nil {
		return false
	}
	for _, have := range r.Roles {
		if have == role {
			return true
		}
	}
	return false
}

// ValidationMode selects how much state ValidateAccess consults.
type ValidationMode int

const (
	// ModeInherit uses the engine's configured mode.
	ModeInherit ValidationMode = -1
	// ModeStateless verifies the signature and claims only. A revoked session keeps working
	// until its access token expires.
	ModeStateless ValidationMode = 0
	// ModeStrict additionally requires the session to be valid in the session store and fails
	// closed when the store is unavailable.
	ModeStrict ValidationMode = 1
)

func (m ValidationMode) String() string {
	switch m {
	case ModeInherit:
		return "inherit"
	case ModeStateless:
		return "stateless"
	case ModeStrict:
		return "strict"
	default:
		return "unknown"
	}
}

// AntiForgeryMode selects the strength of anti-forgery validation.
type AntiForgeryMode int

const (
	// AntiForgerySessionBound checks signature, purpose, the sid binding and that the bound
	// session is still valid in the session store.
	AntiForgerySessionBound AntiForgeryMode = iota
	// AntiForgeryStateless checks signature, purpose and the sid binding only.
	AntiForgeryStateless
)

func (m AntiForgeryMode) String() string {
	switch m {
	case AntiForgerySessionBound:
		return "session_bound"
	case AntiForgeryStateless:
		return "stateless"
	default:
		return "unknown"
	}
}

// CredentialValidator turns a presented credential into a principal. It is implemented by
// credential.Validator.
type CredentialValidator interface {
	ValidatePassword(ctx context.Context, email, password string) (directory.Principal, error)
	ValidateFederated(ctx context.Context, provider, idToken string) (directory.Principal, error)
}

// LoginLimiter throttles failed logins and refresh attempts. It is implemented by the Redis
// and in-process limiters of the engine.
type LoginLimiter interface {
	CheckLogin(ctx context.Context, identifier, ip string) error
	IncrementLogin(ctx context.Context, identifier, ip string) error
	ResetLogin(ctx context.Context, identifier, ip string) error
	CheckRefresh(ctx context.Context, sessionID string) error
}
