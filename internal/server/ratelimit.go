package server

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ipLimiter tracks a rate limiter and its last access time.
type ipLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// rateLimiter applies a token bucket per client IP.
type rateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*ipLimiter
	rate     rate.Limit
	burst    int
	maxIdle  time.Duration
	now      func() time.Time
}

func newRateLimiter(rps float64, burst int) *rateLimiter {
	return &rateLimiter{
		limiters: make(map[string]*ipLimiter),
		rate:     rate.Limit(rps),
		burst:    burst,
		maxIdle:  5 * time.Minute,
		now:      time.Now,
	}
}

func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	l, ok := rl.limiters[ip]
	if !ok {
		rl.evictIdle(now)
		l = &ipLimiter{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[ip] = l
	}
	l.lastAccess = now
	return l.limiter.AllowN(now, 1)
}

// evictIdle drops limiters unused for maxIdle. Caller holds mu.
func (rl *rateLimiter) evictIdle(now time.Time) {
	cutoff := now.Add(-rl.maxIdle)
	for ip, l := range rl.limiters {
		if l.lastAccess.Before(cutoff) {
			delete(rl.limiters, ip)
		}
	}
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(clientIP(r)) {
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"detail": "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
