// Package queue implements the durable ingress/problem queues (spec.md
// §6.1) over go-redis blocking list operations, the per-OJ in-memory
// fan-out queues (spec.md §5), and an asynq-driven periodic scheduler used
// by CrawlerHandler's 600s refresh tick (SPEC_FULL.md §4).
package queue

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Durable is a FIFO, at-least-once queue backed by a Redis list, matching
// spec.md §6.1's "blocking left-pop" semantics (rendered as BLPop against
// a right-pushed list, which is the RPUSH/BLPOP idiom the original project
// uses for brpop — see vjudge/main.py's SubmitQueueHandler).
type Durable interface {
	// Push enqueues payload at the tail of the queue.
	Push(ctx context.Context, payload string) error

	// BlockingPop waits up to timeout for an item, returning ok=false on
	// timeout (never an error) so callers can distinguish "nothing to do"
	// from a real failure.
	BlockingPop(ctx context.Context, timeout time.Duration) (payload string, ok bool, err error)
}

// RedisDurable is the production Durable implementation.
type RedisDurable struct {
	rdb *redis.Client
	key string
}

// NewRedisDurable builds a Durable over the given key on rdb.
func NewRedisDurable(rdb *redis.Client, key string) *RedisDurable {
	return &RedisDurable{rdb: rdb, key: key}
}

func (q *RedisDurable) Push(ctx context.Context, payload string) error {
	return q.rdb.RPush(ctx, q.key, payload).Err()
}

func (q *RedisDurable) BlockingPop(ctx context.Context, timeout time.Duration) (string, bool, error) {
	res, err := q.rdb.BLPop(ctx, timeout, q.key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	// BLPop returns [key, value].
	if len(res) < 2 {
		return "", false, nil
	}
	return res[1], true, nil
}

var _ Durable = (*RedisDurable)(nil)
