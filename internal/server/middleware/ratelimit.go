package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/alanyoungcy/solbot/internal/domain"
)

// RateLimit returns middleware that takes a permit from limiter before each
// request. A request that cannot get a permit within maxWait is rejected
// with 429 instead of queueing behind the limiter.
func RateLimit(limiter domain.RateLimiter, maxWait time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), maxWait)
			err := limiter.Acquire(ctx)
			cancel()
			if err != nil {
				w.Header().Set("Retry-After", "1")
				writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
