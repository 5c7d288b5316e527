package media

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DeletionQueue remembers asset ids that must be deleted from the object
// store. An id stays pending until it is acked.
type DeletionQueue interface {
	Enqueue(ctx context.Context, assetID string) error
	Ack(ctx context.Context, assetID string) error
	// Defer hides a pending id from Pending for delay. Unknown ids are
	// ignored.
	Defer(ctx context.Context, assetID string, delay time.Duration) error
	// Pending returns up to limit ids that are due, earliest first.
	Pending(ctx context.Context, limit int) ([]string, error)
}

// DefaultQueueKey is the sorted set RedisQueue uses unless told otherwise.
const DefaultQueueKey = "media:pending-deletions"

// RedisQueue keeps pending ids in a sorted set scored by the time they are
// due, in unix milliseconds, so they survive a restart.
type RedisQueue struct {
	rdb *redis.Client
	key string
	now func() time.Time
}

func NewRedisQueue(rdb *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = DefaultQueueKey
	}
	return &RedisQueue{rdb: rdb, key: key, now: time.Now}
}

// Enqueue keeps the original score when the id is already pending.
func (q *RedisQueue) Enqueue(ctx context.Context, assetID string) error {
	err := q.rdb.ZAddNX(ctx, q.key, redis.Z{
		Score:  float64(q.now().UnixMilli()),
		Member: assetID,
	}).Err()
	if err != nil {
		return fmt.Errorf("redis zadd: %w", err)
	}
	return nil
}

func (q *RedisQueue) Ack(ctx context.Context, assetID string) error {
	if err := q.rdb.ZRem(ctx, q.key, assetID).Err(); err != nil {
		return fmt.Errorf("redis zrem: %w", err)
	}
	return nil
}

// Defer only moves ids that are still pending.
func (q *RedisQueue) Defer(ctx context.Context, assetID string, delay time.Duration) error {
	err := q.rdb.ZAddXX(ctx, q.key, redis.Z{
		Score:  float64(q.now().Add(delay).UnixMilli()),
		Member: assetID,
	}).Err()
	if err != nil {
		return fmt.Errorf("redis zadd: %w", err)
	}
	return nil
}

func (q *RedisQueue) Pending(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	ids, err := q.rdb.ZRangeByScore(ctx, q.key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(q.now().UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrangebyscore: %w", err)
	}
	return ids, nil
}

// MemoryQueue is a DeletionQueue for single-process setups; pending ids
// are lost on restart.
type MemoryQueue struct {
	mu    sync.Mutex
	items map[string]pendingDeletion
	seq   int64
	now   func() time.Time
}

type pendingDeletion struct {
	due time.Time
	seq int64
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{items: make(map[string]pendingDeletion), now: time.Now}
}

func (q *MemoryQueue) Enqueue(_ context.Context, assetID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.items[assetID]; !ok {
		q.seq++
		q.items[assetID] = pendingDeletion{due: q.now(), seq: q.seq}
	}
	return nil
}

func (q *MemoryQueue) Ack(_ context.Context, assetID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.items, assetID)
	return nil
}

func (q *MemoryQueue) Defer(_ context.Context, assetID string, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if p, ok := q.items[assetID]; ok {
		p.due = q.now().Add(delay)
		q.items[assetID] = p
	}
	return nil
}

func (q *MemoryQueue) Pending(_ context.Context, limit int) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	ids := make([]string, 0, len(q.items))
	for id, p := range q.items {
		if !p.due.After(now) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := q.items[ids[i]], q.items[ids[j]]
		if !a.due.Equal(b.due) {
			return a.due.Before(b.due)
		}
		return a.seq < b.seq
	})

	if limit >= 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}
