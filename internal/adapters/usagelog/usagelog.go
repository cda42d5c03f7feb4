// Package usagelog appends per-batch usage entries to a Redis list for
// offline billing and capacity reports. Appends are fire and forget.
package usagelog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/merchkit/stockcast/pkg/logger"
	"github.com/merchkit/stockcast/pkg/metrics"
)

const defaultListKey = "stockcast:usage"

// Entry is one batch usage record.
type Entry struct {
	BatchID      string    `json:"batchId"`
	TenantID     string    `json:"tenantId,omitempty"`
	ItemCount    int       `json:"itemCount"`
	SuccessCount int       `json:"successCount"`
	FailureCount int       `json:"failureCount"`
	Transport    string    `json:"transport"`
	DurationMS   int64     `json:"durationMs"`
	At           time.Time `json:"at"`
}

// Log appends usage entries to Redis.
type Log struct {
	client  *redis.Client
	listKey string
	log     logger.Logger
}

// Option applies a configuration option to the Log.
type Option func(*Log)

// WithListKey overrides the Redis list key.
func WithListKey(key string) Option {
	return func(l *Log) {
		if key != "" {
			l.listKey = key
		}
	}
}

// New creates a Log on an existing Redis client.
func New(client *redis.Client, opts ...Option) *Log {
	l := &Log{
		client:  client,
		listKey: defaultListKey,
		log:     logger.Get().Named("usagelog"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append pushes one entry. Failures are logged and counted, never
// returned; usage accounting must not affect prediction results.
func (l *Log) Append(ctx context.Context, entry Entry) {
	payload, err := json.Marshal(entry)
	if err != nil {
		metrics.RecordUsageLogFailure()
		l.log.Warn(ctx, "encode usage entry failed", logger.Error(err))
		return
	}
	if err := l.client.RPush(ctx, l.listKey, payload).Err(); err != nil {
		metrics.RecordUsageLogFailure()
		l.log.Warn(ctx, "append usage entry failed",
			logger.String("batch", entry.BatchID), logger.Error(err))
	}
}
