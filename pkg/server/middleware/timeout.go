package middleware

import (
	"context"
	"net/http"
	"time"
)

// TimeoutMiddleware gives every request a deadline. Handlers observe it
// through the request context: evaluations in flight at the deadline are
// cancelled and reported as failed. A non-positive timeout disables it.
func TimeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if timeout <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
