package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Per-IP token buckets idle longer than this are dropped on the next sweep.
const limiterIdleTTL = 10 * time.Minute

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter holds one token bucket per client IP.
type RateLimiter struct {
	perMinute  int
	limit      rate.Limit
	trustProxy bool

	mu        sync.Mutex
	limiters  map[string]*ipLimiter
	lastSweep time.Time
	now       func() time.Time
}

// NewRateLimiter allows perMinute requests per IP with an equal burst.
// perMinute <= 0 disables limiting. With trustProxy the client IP is taken
// from X-Forwarded-For or X-Real-IP; enable it only behind a proxy that sets
// those headers, as clients can otherwise pick their own key.
func NewRateLimiter(perMinute int, trustProxy bool) *RateLimiter {
	return &RateLimiter{
		perMinute:  perMinute,
		limit:      rate.Limit(float64(perMinute) / 60.0),
		trustProxy: trustProxy,
		limiters:   make(map[string]*ipLimiter),
		now:        time.Now,
	}
}

func (l *RateLimiter) getLimiter(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > limiterIdleTTL {
		for k, v := range l.limiters {
			if now.Sub(v.lastSeen) > limiterIdleTTL {
				delete(l.limiters, k)
			}
		}
		l.lastSweep = now
	}

	if e, ok := l.limiters[ip]; ok {
		e.lastSeen = now
		return e.limiter
	}
	lim := rate.NewLimiter(l.limit, l.perMinute)
	l.limiters[ip] = &ipLimiter{limiter: lim, lastSeen: now}
	return lim
}

// Middleware rejects requests over the limit with 429 and a Retry-After header.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	if l == nil || l.perMinute <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limiter := l.getLimiter(getClientIP(r, l.trustProxy))
		now := l.now()
		reservation := limiter.ReserveN(now, 1)
		delay := reservation.DelayFrom(now)
		if !reservation.OK() || delay > 0 {
			reservation.CancelAt(now)
			retryAfter := int(delay.Seconds()) + 1
			if retryAfter > 60 || !reservation.OK() {
				retryAfter = 60
			}
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.perMinute))
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"Too many requests. Please retry later.","code":"RATE_LIMIT_EXCEEDED"}`))
			return
		}
		tokens := int(limiter.TokensAt(now))
		if tokens < 0 {
			tokens = 0
		}
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.perMinute))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(tokens))
		next.ServeHTTP(w, r)
	})
}

func getClientIP(r *http.Request, trustProxy bool) string {
	if !trustProxy {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			return host
		}
		return r.RemoteAddr
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
