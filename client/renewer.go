package client

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// State is a position in the renewal protocol.
type State int

const (
	Authenticated State = iota
	AccessExpired
	Renewing
	LoggedOut
)

func (s State) String() string {
	switch s {
	case Authenticated:
		return "authenticated"
	case AccessExpired:
		return "access_expired"
	case Renewing:
		return "renewing"
	case LoggedOut:
		return "logged_out"
	default:
		return "unknown"
	}
}

// Tokens is the client-held part of a token bundle. RefreshToken is empty for browser-style
// clients whose refresh token lives in a cookie jar.
type Tokens struct {
	AccessToken          string
	AccessExpiresAt      time.Time
	RefreshToken         string
	AntiForgeryToken     string
	AntiForgeryExpiresAt time.Time
}

// RefreshFunc exchanges the current tokens for a renewed set.
type RefreshFunc func(ctx context.Context, current Tokens) (Tokens, error)

const (
	defaultRefreshTimeout = 10 * time.Second
	defaultExpirySkew     = 5 * time.Second
)

// Renewer owns a client's tokens and drives the renewal protocol. Every request that fails
// with the renewal marker calls Renew with the generation of the tokens it used; callers
// sharing a generation share one refresh call.
type Renewer struct {
	refresh  RefreshFunc
	timeout  time.Duration
	skew     time.Duration
	now      func() time.Time
	onChange func(from, to State)
	log      *slog.Logger

	group singleflight.Group

	mu         sync.Mutex
	state      State
	tokens     Tokens
	generation uint64
}

// Option configures a Renewer.
type Option func(*Renewer)

// WithRefreshTimeout bounds each refresh call. A timed out refresh logs the client out.
func WithRefreshTimeout(d time.Duration) Option {
	return func(r *Renewer) { r.timeout = d }
}

// WithExpirySkew renews this long before the access token's recorded expiry.
func WithExpirySkew(d time.Duration) Option {
	return func(r *Renewer) { r.skew = d }
}

// OnStateChange registers fn to run after every transition. It runs outside the Renewer's lock.
func OnStateChange(fn func(from, to State)) Option {
	return func(r *Renewer) { r.onChange = fn }
}

func WithClock(now func() time.Time) Option {
	return func(r *Renewer) { r.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Renewer) { r.log = l }
}

// NewRenewer starts in Authenticated when initial carries an access token and in LoggedOut
// otherwise.
func NewRenewer(initial Tokens, refresh RefreshFunc, opts ...Option) *Renewer {
	r := &Renewer{
		refresh: refresh,
		timeout: defaultRefreshTimeout,
		skew:    defaultExpirySkew,
		now:     time.Now,
		log:     slog.Default(),
		tokens:  initial,
		state:   LoggedOut,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With("component", "goRenew.client")
	if initial.AccessToken != "" {
		r.state = Authenticated
	}
	return r
}

type transition struct{ from, to State }

// setLocked records a transition for notify. r.mu must be held.
func (r *Renewer) setLocked(to State, pending []transition) []transition {
	if r.state == to {
		return pending
	}
	pending = append(pending, transition{r.state, to})
	r.state = to
	return pending
}

func (r *Renewer) notify(pending []transition) {
	for _, t := range pending {
		r.log.Debug("renewal state changed", "from", t.from.String(), "to", t.to.String())
		if r.onChange != nil {
			r.onChange(t.from, t.to)
		}
	}
}

// State reports the current protocol state.
func (r *Renewer) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// SetTokens installs the bundle of a fresh login.
func (r *Renewer) SetTokens(t Tokens) {
	r.mu.Lock()
	r.tokens = t
	r.generation++
	pending := r.setLocked(Authenticated, nil)
	r.mu.Unlock()
	r.notify(pending)
}

// Logout discards the tokens locally. It does not call the server.
func (r *Renewer) Logout() {
	r.mu.Lock()
	pending := r.logoutLocked(nil)
	r.mu.Unlock()
	r.notify(pending)
}

func (r *Renewer) logoutLocked(pending []transition) []transition {
	r.tokens = Tokens{}
	r.generation++
	return r.setLocked(LoggedOut, pending)
}

// Current returns the tokens to send and their generation. An access token past its recorded
// expiry is renewed first.
func (r *Renewer) Current(ctx context.Context) (Tokens, uint64, error) {
	r.mu.Lock()
	if r.state == LoggedOut {
		r.mu.Unlock()
		return Tokens{}, 0, ErrLoggedOut
	}
	tokens, gen := r.tokens, r.generation
	expired := r.state == Authenticated && !tokens.AccessExpiresAt.IsZero() &&
		!r.now().Before(tokens.AccessExpiresAt.Add(-r.skew))
	r.mu.Unlock()

	if !expired {
		return tokens, gen, nil
	}
	return r.Renew(ctx, gen)
}

// Renew is called after the access token of generation gen was rejected with the renewal
// marker. If another caller already renewed past gen its tokens are returned without a new
// refresh call. A failed or timed out refresh moves the Renewer to LoggedOut and returns an
// error wrapping ErrLoggedOut.
//
// Cancelling ctx abandons the wait but not the shared refresh call.
func (r *Renewer) Renew(ctx context.Context, gen uint64) (Tokens, uint64, error) {
	r.mu.Lock()
	switch {
	case r.state == LoggedOut:
		r.mu.Unlock()
		return Tokens{}, 0, ErrLoggedOut
	case gen < r.generation && r.state == Authenticated:
		tokens, cur := r.tokens, r.generation
		r.mu.Unlock()
		return tokens, cur, nil
	}
	var pending []transition
	if r.state == Authenticated {
		pending = r.setLocked(AccessExpired, pending)
		pending = r.setLocked(Renewing, pending)
	}
	current := r.tokens
	gen = r.generation
	r.mu.Unlock()
	r.notify(pending)

	ch := r.group.DoChan(strconv.FormatUint(gen, 10), func() (any, error) {
		return r.doRefresh(context.WithoutCancel(ctx), gen, current)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return Tokens{}, 0, res.Err
		}
		out := res.Val.(renewed)
		return out.tokens, out.generation, nil
	case <-ctx.Done():
		return Tokens{}, 0, ctx.Err()
	}
}

type renewed struct {
	tokens     Tokens
	generation uint64
}

func (r *Renewer) doRefresh(ctx context.Context, gen uint64, current Tokens) (renewed, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	next, err := r.refresh(ctx, current)
	if err == nil && next.AccessToken == "" {
		err = fmt.Errorf("%w: empty access token", ErrRefreshRejected)
	}

	r.mu.Lock()
	var pending []transition
	defer func() {
		r.mu.Unlock()
		r.notify(pending)
	}()

	if r.state == LoggedOut {
		return renewed{}, ErrLoggedOut
	}
	if r.generation != gen {
		// A login during the refresh superseded it.
		return renewed{tokens: r.tokens, generation: r.generation}, nil
	}
	if err != nil {
		r.log.Warn("token renewal failed", "error", err)
		pending = r.logoutLocked(pending)
		return renewed{}, fmt.Errorf("%w: %w", ErrLoggedOut, err)
	}

	if next.RefreshToken == "" {
		next.RefreshToken = current.RefreshToken
	}
	r.tokens = next
	r.generation++
	pending = r.setLocked(Authenticated, pending)
	return renewed{tokens: next, generation: r.generation}, nil
}
