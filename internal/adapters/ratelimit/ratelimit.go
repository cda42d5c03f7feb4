// Package ratelimit admits or rejects batch submissions per tenant
// using a fixed-window counter in Redis. Redis trouble fails open so a
// cache outage never blocks predictions.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/merchkit/stockcast/pkg/logger"
)

// Default window configuration.
const (
	defaultLimit  = 60
	defaultWindow = time.Minute
)

// Limiter is a Redis-backed fixed-window rate limiter.
type Limiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
	log    logger.Logger
}

// Option applies a configuration option to the Limiter.
type Option func(*Limiter)

// WithLimit sets the maximum admissions per window.
func WithLimit(limit int64) Option {
	return func(l *Limiter) {
		if limit > 0 {
			l.limit = limit
		}
	}
}

// WithWindow sets the window length.
func WithWindow(window time.Duration) Option {
	return func(l *Limiter) {
		if window > 0 {
			l.window = window
		}
	}
}

// New creates a Limiter on an existing Redis client.
func New(client *redis.Client, opts ...Option) *Limiter {
	l := &Limiter{
		client: client,
		limit:  defaultLimit,
		window: defaultWindow,
		log:    logger.Get().Named("ratelimit"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Admit reports whether the tenant may submit another batch in the
// current window. Errors talking to Redis admit the request.
func (l *Limiter) Admit(ctx context.Context, tenantID string) bool {
	key := fmt.Sprintf("stockcast:ratelimit:%s:%d", tenantID, time.Now().Unix()/int64(l.window.Seconds()))

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		l.log.Warn(ctx, "rate limit check failed, admitting",
			logger.String("tenant", tenantID), logger.Error(err))
		return true
	}
	if count == 1 {
		l.client.Expire(ctx, key, l.window)
	}
	return count <= l.limit
}
