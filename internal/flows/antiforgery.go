package flows

import (
	"context"

	"github.com/MrEthical07/goRenew/jwt"
)

// AntiForgeryFailureKind classifies anti-forgery validation failures.
type AntiForgeryFailureKind int

const (
	AntiForgeryFailureNone AntiForgeryFailureKind = iota
	AntiForgeryFailureMissing
	AntiForgeryFailureToken
	AntiForgeryFailureMismatch
	AntiForgeryFailureSessionInvalid
	AntiForgeryFailureUnavailable
)

// AntiForgeryResult returns either the verified claims or a classified failure.
type AntiForgeryResult struct {
	Failure AntiForgeryFailureKind
	Err     error
	Claims  *jwt.AntiForgeryClaims
}

// AntiForgeryDeps captures anti-forgery validation dependencies.
type AntiForgeryDeps struct {
	VerifyAntiForgery func(string) (*jwt.AntiForgeryClaims, error)
	// SessionBound additionally requires the bound session to still be valid.
	SessionBound bool
	SessionStore SessionValidityChecker
}

// RunValidateAntiForgery checks tokenStr for a request made under sessionID. Anonymous
// tokens are only accepted when sessionID is empty (pre-login forms); authenticated tokens
// must be bound to exactly sessionID.
func RunValidateAntiForgery(ctx context.Context, tokenStr, sessionID string, deps AntiForgeryDeps) AntiForgeryResult {
	if tokenStr == "" {
		return AntiForgeryResult{Failure: AntiForgeryFailureMissing}
	}
	claims, err := deps.VerifyAntiForgery(tokenStr)
	if err != nil {
		return AntiForgeryResult{Failure: AntiForgeryFailureToken, Err: err}
	}

	switch claims.Scope {
	case jwt.ScopeAnonymous:
		if sessionID != "" || claims.SessionID != "" {
			return AntiForgeryResult{Failure: AntiForgeryFailureMismatch, Claims: claims}
		}
		return AntiForgeryResult{Claims: claims}
	case jwt.ScopeAuthenticated:
		if claims.SessionID == "" || claims.SessionID != sessionID {
			return AntiForgeryResult{Failure: AntiForgeryFailureMismatch, Claims: claims}
		}
	default:
		return AntiForgeryResult{Failure: AntiForgeryFailureToken, Err: jwt.ErrMalformed, Claims: claims}
	}

	if deps.SessionBound {
		ok, err := deps.SessionStore.IsSessionValid(ctx, claims.SessionID)
		if err != nil {
			return AntiForgeryResult{Failure: AntiForgeryFailureUnavailable, Err: err, Claims: claims}
		}
		if !ok {
			return AntiForgeryResult{Failure: AntiForgeryFailureSessionInvalid, Claims: claims}
		}
	}
	return AntiForgeryResult{Claims: claims}
}
