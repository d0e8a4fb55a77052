// Package queue decouples notification creation from outbound email. Every
// backing hands out each intent to at most one consumer.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"compliance-engine/internal/common/config"
	"compliance-engine/internal/models"

	"github.com/redis/go-redis/v9"
)

// ErrEmpty is returned by Pop when nothing is queued.
var ErrEmpty = errors.New("queue: empty")

type Queue interface {
	Push(ctx context.Context, intent models.DispatchIntent) error
	// Pop removes and returns the oldest intent, or ErrEmpty.
	Pop(ctx context.Context) (*models.DispatchIntent, error)
	Len(ctx context.Context) (int64, error)
}

// New picks the backing named by cfg.Backend. rdb and db may be nil when the
// selected backing does not need them.
func New(cfg config.QueueConfig, rdb redis.Cmdable, db *sql.DB) (Queue, error) {
	switch cfg.Backend {
	case config.QueueBackendMemory:
		return NewMemoryQueue(), nil
	case config.QueueBackendRedis:
		if rdb == nil {
			return nil, fmt.Errorf("redis queue backing requires a redis client")
		}
		return NewRedisQueue(rdb, cfg.RedisKey), nil
	case config.QueueBackendPostgres:
		if db == nil {
			return nil, fmt.Errorf("postgres queue backing requires a database")
		}
		return NewPostgresQueue(db), nil
	default:
		return nil, fmt.Errorf("unknown queue backend: %s", cfg.Backend)
	}
}

func encode(intent models.DispatchIntent) ([]byte, error) {
	payload, err := json.Marshal(intent)
	if err != nil {
		return nil, fmt.Errorf("failed to encode intent: %w", err)
	}
	return payload, nil
}

func decode(payload []byte) (*models.DispatchIntent, error) {
	var intent models.DispatchIntent
	if err := json.Unmarshal(payload, &intent); err != nil {
		return nil, fmt.Errorf("failed to decode intent: %w", err)
	}
	return &intent, nil
}
