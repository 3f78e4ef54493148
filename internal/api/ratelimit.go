package api

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// tokenBucket is a refilling bucket for one client. Capacity equals the
// per-minute allowance so a client can burst a full window.
type tokenBucket struct {
	tokens     float64
	lastRefill time.Time
}

// limiterIdleTTL is how long an idle client's bucket survives before the
// sweep drops it.
const limiterIdleTTL = 10 * time.Minute

// rateLimiter applies a per-client token bucket, keyed by remote host.
type rateLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*tokenBucket
	perMinute float64
	lastSweep time.Time
}

func newRateLimiter(perMinute int) *rateLimiter {
	return &rateLimiter{
		buckets:   make(map[string]*tokenBucket),
		perMinute: float64(perMinute),
		lastSweep: time.Now(),
	}
}

// allow reports whether the client may proceed, consuming a token if so.
func (l *rateLimiter) allow(client string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	l.sweep(now)

	bucket, ok := l.buckets[client]
	if !ok {
		bucket = &tokenBucket{tokens: l.perMinute, lastRefill: now}
		l.buckets[client] = bucket
	}

	elapsed := now.Sub(bucket.lastRefill).Minutes()
	bucket.tokens += elapsed * l.perMinute
	if bucket.tokens > l.perMinute {
		bucket.tokens = l.perMinute
	}
	bucket.lastRefill = now

	if bucket.tokens >= 1.0 {
		bucket.tokens--
		return true
	}
	return false
}

// sweep drops buckets idle past the TTL. Caller holds the lock.
func (l *rateLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < limiterIdleTTL {
		return
	}
	for client, bucket := range l.buckets {
		if now.Sub(bucket.lastRefill) > limiterIdleTTL {
			delete(l.buckets, client)
		}
	}
	l.lastSweep = now
}

// rateLimitMiddleware rejects clients exceeding the configured per-minute
// request allowance with 429. A zero or negative allowance disables the
// limiter.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	if s.cfg.RateLimit <= 0 {
		return next
	}
	limiter := newRateLimiter(s.cfg.RateLimit)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			client = r.RemoteAddr
		}
		if !limiter.allow(client) {
			s.logger.Warn("rate limit exceeded",
				"client", client,
				"path", r.URL.Path,
			)
			writeTooManyRequests(w, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
