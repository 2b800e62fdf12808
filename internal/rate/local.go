package rate

import (
	"context"
	"strings"
	"sync"
	"time"

	xrate "golang.org/x/time/rate"
)

// LocalLimiter is the in-process counterpart of [Limiter]. Each key owns a token bucket
// refilled at max/cooldown, so a burst of max failures is allowed per cooldown window.
type LocalLimiter struct {
	config Config
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	lim      *xrate.Limiter
	lastSeen time.Time
}

const localSweepThreshold = 10_000

// NewLocal creates a [LocalLimiter].
func NewLocal(cfg Config) *LocalLimiter {
	return &LocalLimiter{
		config:  cfg,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

func (l *LocalLimiter) bucketFor(key string, max int, window time.Duration) *xrate.Limiter {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.buckets) > localSweepThreshold {
		for k, b := range l.buckets {
			if now.Sub(b.lastSeen) > window {
				delete(l.buckets, k)
			}
		}
	}

	b, ok := l.buckets[key]
	if !ok {
		every := xrate.Every(window / time.Duration(max))
		b = &bucket{lim: xrate.NewLimiter(every, max)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b.lim
}

func (l *LocalLimiter) loginKeys(identifier, ip string) []string {
	keys := []string{"lu:" + strings.ToLower(identifier)}
	if l.config.EnableIPThrottle && ip != "" {
		keys = append(keys, "li:"+ip)
	}
	return keys
}

// CheckLogin reports ErrRateLimited once the failure budget is spent.
func (l *LocalLimiter) CheckLogin(_ context.Context, identifier, ip string) error {
	for _, key := range l.loginKeys(identifier, ip) {
		lim := l.bucketFor(key, l.config.MaxLoginAttempts, l.config.LoginCooldownDuration)
		if lim.TokensAt(l.now()) < 1 {
			return ErrRateLimited
		}
	}
	return nil
}

// IncrementLogin spends one token per failed login.
func (l *LocalLimiter) IncrementLogin(_ context.Context, identifier, ip string) error {
	limited := false
	for _, key := range l.loginKeys(identifier, ip) {
		lim := l.bucketFor(key, l.config.MaxLoginAttempts, l.config.LoginCooldownDuration)
		if !lim.AllowN(l.now(), 1) {
			limited = true
		}
	}
	if limited {
		return ErrRateLimited
	}
	return nil
}

// ResetLogin forgets the identifier bucket.
func (l *LocalLimiter) ResetLogin(_ context.Context, identifier, _ string) error {
	l.mu.Lock()
	delete(l.buckets, "lu:"+strings.ToLower(identifier))
	l.mu.Unlock()
	return nil
}

// CheckRefresh spends one token per refresh attempt on the session.
func (l *LocalLimiter) CheckRefresh(_ context.Context, sessionID string) error {
	if !l.config.EnableRefreshThrottle {
		return nil
	}
	lim := l.bucketFor("r:"+sessionID, l.config.MaxRefreshAttempts, l.config.RefreshCooldownDuration)
	if !lim.AllowN(l.now(), 1) {
		return ErrRateLimited
	}
	return nil
}
