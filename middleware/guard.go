package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	goRenew "github.com/MrEthical07/goRenew"
)

// Validator is the part of [goRenew.Engine] the guards need.
type Validator interface {
	Validate(ctx context.Context, token string, mode goRenew.ValidationMode) (*goRenew.AuthResult, error)
}

type authResultContextKey struct{}

// AuthResultFromContext returns the principal established by Guard.
func AuthResultFromContext(ctx context.Context) (*goRenew.AuthResult, bool) {
	res, ok := ctx.Value(authResultContextKey{}).(*goRenew.AuthResult)
	return res, ok
}

// ContextWithAuthResult returns ctx carrying res, as Guard does.
func ContextWithAuthResult(ctx context.Context, res *goRenew.AuthResult) context.Context {
	return context.WithValue(ctx, authResultContextKey{}, res)
}

type guardOptions struct {
	mode       goRenew.ValidationMode
	cookieName string
	onDecision func(r *http.Request, d Decision)
}

// Option configures Guard.
type Option func(*guardOptions)

// WithValidationMode overrides the engine's validation mode for the guarded routes.
func WithValidationMode(mode goRenew.ValidationMode) Option {
	return func(o *guardOptions) { o.mode = mode }
}

// WithAccessCookie makes Guard fall back to the named cookie when no Authorization header is
// present.
func WithAccessCookie(name string) Option {
	return func(o *guardOptions) { o.cookieName = name }
}

// WithDecisionHook is called for every rejected request, for logging or metrics.
func WithDecisionHook(fn func(r *http.Request, d Decision)) Option {
	return func(o *guardOptions) { o.onDecision = fn }
}

// Guard rejects requests without a valid access token. A request whose token merely expired
// is answered with 401, the renewal header and a WWW-Authenticate challenge naming the
// expiry, so that clients know a refresh may succeed.
func Guard(v Validator, opts ...Option) func(http.Handler) http.Handler {
	o := guardOptions{mode: goRenew.ModeInherit}
	for _, opt := range opts {
		opt(&o)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				reject(w, r, o, Decision{Status: http.StatusUnauthorized, Code: goRenew.KindNotReady.String()})
				return
			}

			token := accessToken(r, o.cookieName)
			res, err := v.Validate(r.Context(), token, o.mode)
			if err != nil {
				reject(w, r, o, Classify(err))
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithAuthResult(r.Context(), res)))
		})
	}
}

// RequireStrict guards with session-store validation regardless of the engine default.
func RequireStrict(v Validator, opts ...Option) func(http.Handler) http.Handler {
	return Guard(v, append(opts, WithValidationMode(goRenew.ModeStrict))...)
}

// RequireStateless guards with signature and claim checks only.
func RequireStateless(v Validator, opts ...Option) func(http.Handler) http.Handler {
	return Guard(v, append(opts, WithValidationMode(goRenew.ModeStateless))...)
}

func reject(w http.ResponseWriter, r *http.Request, o guardOptions, d Decision) {
	if o.onDecision != nil {
		o.onDecision(r, d)
	}

	if d.Status == http.StatusUnauthorized {
		if d.Renew {
			w.Header().Set(RenewalHeader, RenewalValue)
			w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="token expired"`)
		} else {
			w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		}
	}
	WriteError(w, d)
}

type errorBody struct {
	Code    string `json:"error_code"`
	Message string `json:"error_message"`
}

// WriteError writes d as the JSON error body shared with the HTTP API.
func WriteError(w http.ResponseWriter, d Decision) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(d.Status)
	_ = json.NewEncoder(w).Encode(errorBody{Code: d.Code, Message: http.StatusText(d.Status)})
}

func accessToken(r *http.Request, cookieName string) string {
	if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
		return token
	}
	if cookieName != "" {
		if c, err := r.Cookie(cookieName); err == nil {
			return c.Value
		}
	}
	return ""
}

func bearerToken(value string) (string, bool) {
	const bearer = "bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
