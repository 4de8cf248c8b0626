package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/campus-events-api/pkg/errors"
)

// PendingWritesKey is the journal list holding writes that could not reach
// Postgres. Entries are replayed on the next successful flush.
const PendingWritesKey = "events:pending_writes"

// PendingWrite is one journaled mutation awaiting replay.
type PendingWrite struct {
	Kind      string          `json:"kind"`
	EventID   string          `json:"eventId"`
	Payload   json.RawMessage `json:"payload"`
	QueuedAt  time.Time       `json:"queuedAt"`
	Attempts  int             `json:"attempts"`
	RequestID string          `json:"requestId,omitempty"`
}

// CacheRepository provides helpers around Redis for event list caching and
// the pending-write journal.
type CacheRepository struct {
	client *redis.Client
	logger *zap.Logger
}

// NewCacheRepository constructs a cache repository.
func NewCacheRepository(client *redis.Client, logger *zap.Logger) *CacheRepository {
	return &CacheRepository{client: client, logger: logger}
}

// Get retrieves and unmarshals the cached value into the provided destination.
func (r *CacheRepository) Get(ctx context.Context, key string, dest interface{}) error {
	if r.client == nil {
		return appErrors.ErrCacheMiss
	}

	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return appErrors.ErrCacheMiss
		}
		return fmt.Errorf("redis get %s: %w", key, err)
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("unmarshal cache value for %s: %w", key, err)
	}

	return nil
}

// Set marshals the provided value and stores it with the given TTL.
func (r *CacheRepository) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if r.client == nil {
		return nil
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value for %s: %w", key, err)
	}

	if err := r.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}

	return nil
}

// DeleteByPattern removes cached entries matching the provided pattern.
func (r *CacheRepository) DeleteByPattern(ctx context.Context, pattern string) error {
	if r.client == nil {
		return nil
	}

	iter := r.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if err := r.client.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("redis delete %s: %w", key, err)
		}
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan pattern %s: %w", pattern, err)
	}

	return nil
}

// JournalWrite appends a mutation to the pending-write journal.
func (r *CacheRepository) JournalWrite(ctx context.Context, write PendingWrite) error {
	if r.client == nil {
		return appErrors.ErrUnavailable
	}

	if write.QueuedAt.IsZero() {
		write.QueuedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(write)
	if err != nil {
		return fmt.Errorf("marshal pending write: %w", err)
	}

	if err := r.client.RPush(ctx, PendingWritesKey, payload).Err(); err != nil {
		return fmt.Errorf("journal pending write: %w", err)
	}
	r.logger.Warn("write journaled for later replay",
		zap.String("kind", write.Kind),
		zap.String("event_id", write.EventID))
	return nil
}

// DrainPendingWrites pops every journaled write in FIFO order. Entries that
// fail replay should be re-journaled by the caller with Attempts incremented.
func (r *CacheRepository) DrainPendingWrites(ctx context.Context) ([]PendingWrite, error) {
	if r.client == nil {
		return nil, nil
	}

	var writes []PendingWrite
	for {
		raw, err := r.client.LPop(ctx, PendingWritesKey).Bytes()
		if err != nil {
			if err == redis.Nil {
				break
			}
			return writes, fmt.Errorf("drain pending writes: %w", err)
		}
		var write PendingWrite
		if err := json.Unmarshal(raw, &write); err != nil {
			r.logger.Error("dropping malformed pending write", zap.Error(err))
			continue
		}
		writes = append(writes, write)
	}
	return writes, nil
}

// PendingWriteCount reports the journal depth for health reporting.
func (r *CacheRepository) PendingWriteCount(ctx context.Context) (int64, error) {
	if r.client == nil {
		return 0, nil
	}
	n, err := r.client.LLen(ctx, PendingWritesKey).Result()
	if err != nil {
		return 0, fmt.Errorf("pending write count: %w", err)
	}
	return n, nil
}

// Close releases the underlying Redis connection if present.
func (r *CacheRepository) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
