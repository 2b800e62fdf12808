package middleware

import (
	"context"
	"net/http"
)

// AntiForgeryValidator is the part of [goRenew.Engine] RequireAntiForgery needs.
type AntiForgeryValidator interface {
	ValidateAntiForgery(ctx context.Context, token, sessionID string) error
}

// DefaultAntiForgeryHeader is the request header carrying the anti-forgery token.
const DefaultAntiForgeryHeader = "X-CSRF-Token"

// RequireAntiForgery rejects state-changing requests without a valid anti-forgery token in
// header. Behind Guard the token must be bound to the caller's session; without Guard only
// an anonymous token is accepted. Safe methods pass through. An empty header name selects
// DefaultAntiForgeryHeader.
func RequireAntiForgery(v AntiForgeryValidator, header string) func(http.Handler) http.Handler {
	if header == "" {
		header = DefaultAntiForgeryHeader
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isSafeMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			var sessionID string
			if res, ok := AuthResultFromContext(r.Context()); ok {
				sessionID = res.SessionID
			}

			if err := v.ValidateAntiForgery(r.Context(), r.Header.Get(header), sessionID); err != nil {
				WriteError(w, Classify(err))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}
