package middleware

import (
	"net"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/wenqu/procurement-assistant/internal/api/response"
	"github.com/wenqu/procurement-assistant/internal/repository/redis"
)

// RateLimitMiddleware throttles chat requests per client IP. A nil limiter
// disables throttling entirely.
type RateLimitMiddleware struct {
	limiter *redis.RateLimiter
}

// NewRateLimitMiddleware creates a new rate limit middleware
func NewRateLimitMiddleware(limiter *redis.RateLimiter) *RateLimitMiddleware {
	return &RateLimitMiddleware{limiter: limiter}
}

// Limit applies the per-IP budget. Redis failures fail open so a cache
// outage never blocks chat.
func (m *RateLimitMiddleware) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.limiter == nil {
			next.ServeHTTP(w, r)
			return
		}

		key := clientIP(r)
		allowed, remaining, resetAt, err := m.limiter.Allow(r.Context(), key)
		if err != nil {
			log.Warn().Err(err).Msg("rate limit check failed, allowing request")
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			response.Error(w, http.StatusTooManyRequests, "rate_limited", "请求过于频繁，请稍后重试。")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	// RealIP middleware already rewrote RemoteAddr when forwarded headers
	// are present.
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
