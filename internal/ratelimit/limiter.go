package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/zad/exchange-api/internal/cache"
)

const (
	keyPrefix   = "RATE_LIMIT:"
	maxRequests = 10
	window      = time.Minute
)

// Limiter is a fixed-window admission gate: 10 requests per identity per
// minute. The window starts on the first request and the counter key expires
// with it.
type Limiter struct {
	store cache.Store
	log   *slog.Logger
}

func NewLimiter(store cache.Store, log *slog.Logger) *Limiter {
	return &Limiter{store: store, log: log}
}

// IsAllowed reports whether the identity may issue another request in the
// current window. Counter failures deny the request: a broken limiter must
// not become an open gate.
func (l *Limiter) IsAllowed(ctx context.Context, identity string) bool {
	key := keyPrefix + identity

	count, err := l.store.Incr(ctx, key)
	if err != nil {
		l.log.Error("rate limit counter unavailable", "identity", identity, "error", err)
		return false
	}
	if count == 1 {
		if err := l.store.Expire(ctx, key, window); err != nil {
			l.log.Error("rate limit window not set", "identity", identity, "error", err)
			return false
		}
	}

	if count > maxRequests {
		l.log.Warn("rate limit exceeded", "identity", identity, "count", count)
		return false
	}
	return true
}
