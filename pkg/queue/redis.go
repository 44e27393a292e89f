package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/go-term-sync/pkg/dispatch"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultReferenceTTL is how long an enqueued reference blocks re-adding it.
const DefaultReferenceTTL = 48 * time.Hour

// RedisQueue is a FIFO work queue on a Redis list. Each reference can be
// enqueued once per TTL window; repeated adds succeed without pushing again.
type RedisQueue struct {
	redis  *redis.Client
	keys   Keys
	refTTL time.Duration
	logger zerolog.Logger
}

// NewRedisQueue creates a queue named name.
func NewRedisQueue(redisClient *redis.Client, name string, logger zerolog.Logger) *RedisQueue {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisQueue{
		redis:  redisClient,
		keys:   Keys{Name: name},
		refTTL: DefaultReferenceTTL,
		logger: logger.With().Str("component", "queue").Str("queue", name).Logger(),
	}
}

// SetReferenceTTL changes the duplicate detection window.
func (q *RedisQueue) SetReferenceTTL(ttl time.Duration) {
	q.refTTL = ttl
}

// Name returns the queue name.
func (q *RedisQueue) Name() string {
	return q.keys.Name
}

// AddItem pushes payload under reference. Errors that cannot succeed on retry
// are wrapped with dispatch.NoRetry.
func (q *RedisQueue) AddItem(ctx context.Context, payload map[string]any, reference string) error {
	if reference == "" {
		return dispatch.NoRetry(ErrEmptyReference)
	}

	data, err := json.Marshal(Entry{
		Item:       Item{Reference: reference, Data: payload},
		EnqueuedAt: time.Now().UTC(),
	})
	if err != nil {
		QueueErrors.WithLabelValues("add").Inc()
		return dispatch.NoRetry(fmt.Errorf("marshal queue entry: %w", err))
	}

	refKey := q.keys.Reference(reference)
	fresh, err := q.redis.SetNX(ctx, refKey, time.Now().UTC().Format(time.RFC3339), q.refTTL).Result()
	if err != nil {
		QueueErrors.WithLabelValues("add").Inc()
		return fmt.Errorf("redis setnx: %w", err)
	}
	if !fresh {
		DuplicateReferences.WithLabelValues(q.keys.Name).Inc()
		q.logger.Info().Str("reference", reference).Msg("Reference already enqueued, skipping")
		return nil
	}

	if err := q.redis.RPush(ctx, q.keys.List(), data).Err(); err != nil {
		// Release the marker so a retry can push the item.
		_ = q.redis.Del(context.WithoutCancel(ctx), refKey).Err()
		QueueErrors.WithLabelValues("add").Inc()
		return fmt.Errorf("redis rpush: %w", err)
	}

	ItemsEnqueued.WithLabelValues(q.keys.Name).Inc()
	return nil
}

// Next blocks up to timeout for the oldest item. It returns ErrEmpty when the
// wait times out.
func (q *RedisQueue) Next(ctx context.Context, timeout time.Duration) (*Entry, error) {
	res, err := q.redis.BLPop(ctx, timeout, q.keys.List()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrEmpty
		}
		QueueErrors.WithLabelValues("next").Inc()
		return nil, fmt.Errorf("redis blpop: %w", err)
	}
	if len(res) != 2 {
		QueueErrors.WithLabelValues("next").Inc()
		return nil, fmt.Errorf("%w: unexpected blpop reply of %d elements", ErrInvalidEntry, len(res))
	}

	var entry Entry
	if err := json.Unmarshal([]byte(res[1]), &entry); err != nil {
		QueueErrors.WithLabelValues("next").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	ItemsDequeued.WithLabelValues(q.keys.Name).Inc()
	return &entry, nil
}

// Len returns the number of pending items.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.redis.LLen(ctx, q.keys.List()).Result()
	if err != nil {
		QueueErrors.WithLabelValues("len").Inc()
		return 0, fmt.Errorf("redis llen: %w", err)
	}
	return n, nil
}
