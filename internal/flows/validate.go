package flows

import (
	"context"

	"github.com/MrEthical07/goRenew/jwt"
)

// Validation modes understood by RunValidate. The root package owns the public enum and
// passes its values as plain ints; a negative mode means the engine default.
const (
	ModeStateless = iota
	ModeStrict
)

// ValidateFailureKind classifies validation failures for root-level mapping.
type ValidateFailureKind int

const (
	ValidateFailureNone ValidateFailureKind = iota
	ValidateFailureToken
	ValidateFailureSessionRevoked
	ValidateFailureUnavailable
)

// ValidateResult returns either claims or a classified failure.
type ValidateResult struct {
	Failure ValidateFailureKind
	Err     error
	Claims  *jwt.AccessClaims
}

type SessionValidityChecker interface {
	IsSessionValid(ctx context.Context, sessionID string) (bool, error)
}

// ValidateDeps captures access-token validation dependencies.
type ValidateDeps struct {
	VerifyAccess func(string) (*jwt.AccessClaims, error)
	Mode         int
	SessionStore SessionValidityChecker
}

// RunValidate verifies an access token. In strict mode the session must also still be
// valid in the store, which makes logout take effect before the access token expires.
func RunValidate(ctx context.Context, tokenStr string, mode int, deps ValidateDeps) ValidateResult {
	claims, err := deps.VerifyAccess(tokenStr)
	if err != nil {
		return ValidateResult{Failure: ValidateFailureToken, Err: err}
	}
	if claims.SessionID == "" || claims.Subject == "" {
		return ValidateResult{Failure: ValidateFailureToken, Err: jwt.ErrMalformed}
	}

	if mode < 0 {
		mode = deps.Mode
	}
	if mode != ModeStrict {
		return ValidateResult{Claims: claims}
	}

	ok, err := deps.SessionStore.IsSessionValid(ctx, claims.SessionID)
	if err != nil {
		return ValidateResult{Failure: ValidateFailureUnavailable, Err: err, Claims: claims}
	}
	if !ok {
		return ValidateResult{Failure: ValidateFailureSessionRevoked, Claims: claims}
	}
	return ValidateResult{Claims: claims}
}
