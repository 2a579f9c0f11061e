package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// DefaultMaxClients bounds how many client buckets a RateLimiter keeps.
const DefaultMaxClients = 10000

// RateLimiter holds one token bucket per client IP. Buckets of the least
// recently seen clients are evicted once maxClients is reached; an evicted
// client starts again with a full burst.
type RateLimiter struct {
	mu        sync.Mutex
	limiters  *lru.Cache[string, *rate.Limiter]
	perMinute int
	burst     int
}

// NewRateLimiter allows perMinute requests per client with the given burst,
// tracking at most DefaultMaxClients clients.
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	return NewRateLimiterSize(perMinute, burst, DefaultMaxClients)
}

// NewRateLimiterSize is NewRateLimiter with an explicit client bound.
func NewRateLimiterSize(perMinute, burst, maxClients int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	if maxClients < 1 {
		maxClients = DefaultMaxClients
	}
	// lru.New only fails for a non-positive size.
	limiters, _ := lru.New[string, *rate.Limiter](maxClients)
	return &RateLimiter{
		limiters:  limiters,
		perMinute: perMinute,
		burst:     burst,
	}
}

func (l *RateLimiter) limiter(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.limiters.Get(ip); ok {
		return lim
	}
	lim := rate.NewLimiter(rate.Limit(float64(l.perMinute)/60.0), l.burst)
	l.limiters.Add(ip, lim)
	return lim
}

// Clients returns the number of client buckets currently held.
func (l *RateLimiter) Clients() int {
	return l.limiters.Len()
}

func clientIP(r *http.Request) string {
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

// Middleware limits requests per client IP. /health and /metrics are exempt.
// Rejected requests get 429 with Retry-After; allowed ones carry X-RateLimit-* headers.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.perMinute <= 0 || r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		limiter := l.limiter(clientIP(r))
		reservation := limiter.Reserve()
		if delay := reservation.Delay(); !reservation.OK() || delay > 0 {
			reservation.Cancel()
			retryAfter := int(delay.Seconds()) + 1
			if !reservation.OK() || retryAfter > 60 {
				retryAfter = 60
			}
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.perMinute))
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(delay).Unix(), 10))
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"too many requests, retry later"}`))
			return
		}

		tokens := int(limiter.Tokens())
		if tokens < 0 {
			tokens = 0
		}
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.perMinute))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(tokens))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Minute).Unix(), 10))
		next.ServeHTTP(w, r)
	})
}
