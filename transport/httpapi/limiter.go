package httpapi

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterSweepThreshold = 4096

// ipLimiter gives each client IP its own token bucket of perMinute requests.
type ipLimiter struct {
	perMinute int
	now       func() time.Time

	mu      sync.RWMutex
	clients map[string]*client
}

type client struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newIPLimiter(perMinute int, now func() time.Time) *ipLimiter {
	return &ipLimiter{
		perMinute: perMinute,
		now:       now,
		clients:   make(map[string]*client),
	}
}

func (l *ipLimiter) get(ip string) *client {
	l.mu.RLock()
	c, ok := l.clients[ip]
	l.mu.RUnlock()
	if ok {
		return c
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok = l.clients[ip]; ok {
		return c
	}
	if len(l.clients) >= limiterSweepThreshold {
		l.sweepLocked()
	}
	c = &client{lim: rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMinute)), l.perMinute)}
	l.clients[ip] = c
	return c
}

// sweepLocked drops clients idle for longer than a full refill.
func (l *ipLimiter) sweepLocked() {
	cutoff := l.now().Add(-time.Minute)
	for ip, c := range l.clients {
		if c.lastSeen.Before(cutoff) {
			delete(l.clients, ip)
		}
	}
}

func (l *ipLimiter) allow(ip string) bool {
	c := l.get(ip)
	now := l.now()
	l.mu.Lock()
	c.lastSeen = now
	l.mu.Unlock()
	return c.lim.AllowN(now, 1)
}

func (l *ipLimiter) retryAfterSeconds() int {
	return int(math.Ceil(time.Minute.Seconds() / float64(l.perMinute)))
}
