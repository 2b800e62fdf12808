package goRenew

import "errors"

// classError is a sentinel that also matches its parent class under errors.Is, so that
// callers can branch either on the precise failure or on the class it belongs to.
type classError struct {
	msg    string
	parent error
}

func (e *classError) Error() string { return e.msg }

func (e *classError) Unwrap() error { return e.parent }

func subError(parent error, msg string) error {
	return &classError{msg: msg, parent: parent}
}

var (
	// ErrCredentialInvalid is returned for an unknown principal, a wrong password or a rejected
	// federated assertion. The cases are not distinguished.
	ErrCredentialInvalid = errors.New("invalid credentials")

	// ErrTokenInvalid is the class of every access-token verification failure.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenMissing is returned when no access token was presented.
	ErrTokenMissing = subError(ErrTokenInvalid, "token missing")
	// ErrTokenMalformed is returned for a token that is not a well-formed JWS.
	ErrTokenMalformed = subError(ErrTokenInvalid, "token malformed")
	// ErrTokenBadSignature is returned when the signature does not verify under any known key.
	ErrTokenBadSignature = subError(ErrTokenInvalid, "token signature invalid")
	// ErrTokenExpired is the only token failure that may be cured by a refresh.
	ErrTokenExpired = subError(ErrTokenInvalid, "token expired")
	// ErrTokenNotYetValid is returned for a token whose nbf lies in the future.
	ErrTokenNotYetValid = subError(ErrTokenInvalid, "token not yet valid")
	// ErrTokenWrongIssuer is returned for a token minted by another issuer.
	ErrTokenWrongIssuer = subError(ErrTokenInvalid, "token issuer mismatch")
	// ErrTokenWrongAudience is returned for a token minted for another audience.
	ErrTokenWrongAudience = subError(ErrTokenInvalid, "token audience mismatch")
	// ErrTokenWrongPurpose is returned when a refresh or anti-forgery token is presented as an
	// access token, or the other way round.
	ErrTokenWrongPurpose = subError(ErrTokenInvalid, "token purpose mismatch")
	// ErrTokenRevoked is returned by strict validation when the token's session is gone.
	ErrTokenRevoked = subError(ErrTokenInvalid, "token session revoked")

	// ErrRefreshInvalid is the class of refresh failures that require a full login.
	ErrRefreshInvalid = errors.New("invalid refresh token")
	// ErrAlreadyConsumed is returned to the loser of a concurrent refresh of one token.
	ErrAlreadyConsumed = subError(ErrRefreshInvalid, "refresh token already consumed")
	// ErrRevoked is returned when the refresh token's session has been revoked.
	ErrRevoked = subError(ErrRefreshInvalid, "session revoked")
	// ErrSessionCompromised is returned when an already rotated refresh token is presented.
	// The session is revoked before the error is returned.
	ErrSessionCompromised = errors.New("session compromised: refresh token reuse detected")

	// ErrCSRFInvalid is returned when the anti-forgery token is missing, invalid or bound to
	// another session.
	ErrCSRFInvalid = errors.New("anti-forgery token invalid")

	// ErrLoginRateLimited is returned while the failed-login budget is exhausted.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrRefreshRateLimited is returned while the per-session refresh budget is exhausted.
	ErrRefreshRateLimited = errors.New("refresh rate limited")

	// ErrBackendUnavailable wraps session store, directory and limiter failures.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrSessionNotFound is returned by introspection for unknown sessions.
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvalidArgument is returned for empty identifiers passed to introspection.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrFederationDisabled is returned by LoginWithFederated when no verifier is configured.
	ErrFederationDisabled = errors.New("federated login not configured")
	// ErrEngineNotReady is returned by methods called on a nil or unbuilt engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// Kind is the stable classification of an engine error. Its string form is the wire code used
// by transports.
type Kind int

const (
	KindNone Kind = iota
	KindCredentialInvalid
	KindTokenMissing
	KindTokenMalformed
	KindTokenBadSignature
	KindTokenExpired
	KindTokenNotYetValid
	KindTokenWrongIssuer
	KindTokenWrongAudience
	KindTokenWrongPurpose
	KindTokenRevoked
	KindRefreshInvalid
	KindAlreadyConsumed
	KindRevoked
	KindSessionCompromised
	KindCSRFInvalid
	KindRateLimited
	KindUnavailable
	KindNotFound
	KindInvalidArgument
	KindNotReady
	KindInternal
)

var kindCodes = [...]string{
	KindNone:               "",
	KindCredentialInvalid:  "credential_invalid",
	KindTokenMissing:       "token_missing",
	KindTokenMalformed:     "token_malformed",
	KindTokenBadSignature:  "token_bad_signature",
	KindTokenExpired:       "token_expired",
	KindTokenNotYetValid:   "token_not_yet_valid",
	KindTokenWrongIssuer:   "token_wrong_issuer",
	KindTokenWrongAudience: "token_wrong_audience",
	KindTokenWrongPurpose:  "token_wrong_purpose",
	KindTokenRevoked:       "token_revoked",
	KindRefreshInvalid:     "refresh_invalid",
	KindAlreadyConsumed:    "refresh_already_consumed",
	KindRevoked:            "session_revoked",
	KindSessionCompromised: "session_compromised",
	KindCSRFInvalid:        "csrf_invalid",
	KindRateLimited:        "rate_limited",
	KindUnavailable:        "backend_unavailable",
	KindNotFound:           "not_found",
	KindInvalidArgument:    "invalid_argument",
	KindNotReady:           "engine_not_ready",
	KindInternal:           "internal_error",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindCodes) {
		return kindCodes[KindInternal]
	}
	return kindCodes[k]
}

var kindTable = []struct {
	err  error
	kind Kind
}{
	{ErrCredentialInvalid, KindCredentialInvalid},
	{ErrTokenMissing, KindTokenMissing},
	{ErrTokenMalformed, KindTokenMalformed},
	{ErrTokenBadSignature, KindTokenBadSignature},
	{ErrTokenExpired, KindTokenExpired},
	{ErrTokenNotYetValid, KindTokenNotYetValid},
	{ErrTokenWrongIssuer, KindTokenWrongIssuer},
	{ErrTokenWrongAudience, KindTokenWrongAudience},
	{ErrTokenWrongPurpose, KindTokenWrongPurpose},
	{ErrTokenRevoked, KindTokenRevoked},
	{ErrAlreadyConsumed, KindAlreadyConsumed},
	{ErrRevoked, KindRevoked},
	{ErrRefreshInvalid, KindRefreshInvalid},
	{ErrSessionCompromised, KindSessionCompromised},
	{ErrCSRFInvalid, KindCSRFInvalid},
	{ErrLoginRateLimited, KindRateLimited},
	{ErrRefreshRateLimited, KindRateLimited},
	{ErrBackendUnavailable, KindUnavailable},
	{ErrSessionNotFound, KindNotFound},
	{ErrInvalidArgument, KindInvalidArgument},
	{ErrFederationDisabled, KindCredentialInvalid},
	{ErrEngineNotReady, KindNotReady},
	{ErrTokenInvalid, KindTokenMalformed},
}

// ErrorKind classifies err. Sub-errors are matched before their class, so ErrAlreadyConsumed
// reports KindAlreadyConsumed even though it also matches ErrRefreshInvalid.
func ErrorKind(err error) Kind {
	if err == nil {
		return KindNone
	}
	for _, entry := range kindTable {
		if errors.Is(err, entry.err) {
			return entry.kind
		}
	}
	return KindInternal
}
