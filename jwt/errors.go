package jwt

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformed is returned when the token is not a three-segment compact JWS, its
	// segments cannot be decoded, or it lacks an exp claim.
	ErrMalformed = errors.New("jwt: token malformed")
	// ErrBadSignature is returned when no configured key verifies the signature.
	ErrBadSignature = errors.New("jwt: bad signature")
	// ErrExpired is returned when exp <= now (minus leeway).
	ErrExpired = errors.New("jwt: token expired")
	// ErrNotYetValid is returned when nbf is in the future.
	ErrNotYetValid = errors.New("jwt: token not yet valid")
	// ErrWrongIssuer is returned when iss differs from the configured issuer.
	ErrWrongIssuer = errors.New("jwt: wrong issuer")
	// ErrWrongAudience is returned when aud does not contain the configured audience.
	ErrWrongAudience = errors.New("jwt: wrong audience")
	// ErrWrongPurpose is returned when a valid token of another kind is presented.
	ErrWrongPurpose = errors.New("jwt: wrong token purpose")
)

func fail(kind error, cause error) error {
	if cause == nil {
		return kind
	}
	return fmt.Errorf("%w: %w", kind, cause)
}
