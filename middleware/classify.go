package middleware

import (
	"errors"
	"net/http"

	goRenew "github.com/MrEthical07/goRenew"
)

// RenewalHeader is set on responses whose access token expired and may be renewed.
const RenewalHeader = "X-Auth-Renewal"

// RenewalValue is the only value of RenewalHeader.
const RenewalValue = "refresh"

// Decision is how a transport should answer a failed authentication.
type Decision struct {
	Status int
	// Renew is set only for an expired access token. The client may refresh and retry once.
	Renew bool
	Code  string
}

// Classify maps an engine error onto a Decision. Every adapter in this package answers
// through it, so HTTP and gRPC callers see the same renewal semantics.
func Classify(err error) Decision {
	if err == nil {
		return Decision{Status: http.StatusOK}
	}

	code := goRenew.ErrorKind(err).String()
	switch {
	case errors.Is(err, goRenew.ErrTokenExpired):
		return Decision{Status: http.StatusUnauthorized, Renew: true, Code: code}
	case errors.Is(err, goRenew.ErrTokenInvalid):
		return Decision{Status: http.StatusUnauthorized, Code: code}
	case errors.Is(err, goRenew.ErrCSRFInvalid):
		return Decision{Status: http.StatusForbidden, Code: code}
	case errors.Is(err, goRenew.ErrBackendUnavailable):
		return Decision{Status: http.StatusServiceUnavailable, Code: code}
	default:
		return Decision{Status: http.StatusUnauthorized, Code: code}
	}
}
