package queue

import (
	"context"
	"sync"

	"compliance-engine/internal/models"
)

type MemoryQueue struct {
	mu    sync.Mutex
	items []models.DispatchIntent
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Push(_ context.Context, intent models.DispatchIntent) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, intent)
	return nil
}

func (q *MemoryQueue) Pop(_ context.Context) (*models.DispatchIntent, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, ErrEmpty
	}
	intent := q.items[0]
	q.items[0] = models.DispatchIntent{}
	q.items = q.items[1:]
	return &intent, nil
}

func (q *MemoryQueue) Len(_ context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.items)), nil
}
