package queue

import (
	"context"
	"errors"

	"compliance-engine/internal/models"

	"github.com/redis/go-redis/v9"
)

const DefaultRedisKey = "compliance:dispatch"

// RedisQueue is a FIFO over a Redis list: LPUSH on push, RPOP on pop.
type RedisQueue struct {
	client redis.Cmdable
	key    string
}

func NewRedisQueue(client redis.Cmdable, key string) *RedisQueue {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisQueue{client: client, key: key}
}

func (q *RedisQueue) Push(ctx context.Context, intent models.DispatchIntent) error {
	payload, err := encode(intent)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, payload).Err()
}

func (q *RedisQueue) Pop(ctx context.Context) (*models.DispatchIntent, error) {
	payload, err := q.client.RPop(ctx, q.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, err
	}
	return decode(payload)
}

func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}
