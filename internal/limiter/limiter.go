// Package limiter rate-limits tracking endpoints per client IP.
package limiter

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Limiter is a fixed-window per-second counter in Redis. Fails open:
// tracking data is not worth refusing on a Redis outage.
type Limiter struct {
	client    *redis.Client
	perSecond int
}

func New(client *redis.Client, perSecond int) *Limiter {
	return &Limiter{client: client, perSecond: perSecond}
}

// Allow reports whether the caller identified by key is within budget
// for the current second.
func (l *Limiter) Allow(ctx context.Context, key string) bool {
	if l.client == nil {
		return true
	}

	count, err := l.client.Incr(ctx, "ratelimit:"+key).Result()
	if err != nil {
		return true
	}

	// Set expiry on first request in the window
	if count == 1 {
		l.client.Expire(ctx, "ratelimit:"+key, time.Second)
	}

	return count <= int64(l.perSecond)
}

// Middleware rejects over-budget requests with 429, keyed by RemoteAddr
// (the RealIP middleware runs earlier in the chain).
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(r.Context(), r.RemoteAddr) {
			log.Debug().Str("remote", r.RemoteAddr).Msg("Rate limit exceeded")
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
