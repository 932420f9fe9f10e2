package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/kiranshivaraju/recipebox/internal/api/response"
	"github.com/kiranshivaraju/recipebox/internal/cache"
)

const defaultRequestsPerMinute = 120

// RateLimit provides fixed-window per-user rate limiting via Redis.
type RateLimit struct {
	cache          cache.Cache
	requestsPerMin int
}

// NewRateLimit creates a new RateLimit middleware.
func NewRateLimit(c cache.Cache, requestsPerMin int) *RateLimit {
	if requestsPerMin <= 0 {
		requestsPerMin = defaultRequestsPerMinute
	}
	return &RateLimit{cache: c, requestsPerMin: requestsPerMin}
}

// Limit applies rate limiting keyed by the user set by the auth middleware.
func (rl *RateLimit) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, ok := getRateLimitSubject(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		count, err := rl.cache.IncrWithExpiry(r.Context(), cache.RateLimitKey(subject), time.Minute)
		if err != nil {
			// fail open
			next.ServeHTTP(w, r)
			return
		}

		remaining := rl.requestsPerMin - int(count)
		if remaining < 0 {
			remaining = 0
		}
		resetTime := time.Now().Add(time.Minute).Unix()

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.requestsPerMin))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", resetTime))

		if count > int64(rl.requestsPerMin) {
			w.Header().Set("Retry-After", "60")
			response.Error(w, http.StatusTooManyRequests,
				"RATE_LIMIT_EXCEEDED", "Too many requests", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}
