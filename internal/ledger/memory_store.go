package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"compliance-engine/internal/models"
)

type memoryRecord struct {
	seq int64
	n   models.Notification
}

// MemoryStore keeps notifications in process memory. It backs tests and the
// single-process development mode.
type MemoryStore struct {
	mu      sync.RWMutex
	seq     int64
	records map[string]*memoryRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*memoryRecord)}
}

func (s *MemoryStore) Insert(_ context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertLocked(n)
	return nil
}

func (s *MemoryStore) InsertIfAbsent(_ context.Context, n *models.Notification, key DedupKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if matches(&rec.n, key) {
			return false, nil
		}
	}
	s.insertLocked(n)
	return true, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	return clone(&rec.n), nil
}

func (s *MemoryStore) Find(_ context.Context, recipientID string, recipientType models.RecipientType, opts models.ListOptions) ([]*models.Notification, error) {
	s.mu.RLock()
	matched := make([]*memoryRecord, 0)
	for _, rec := range s.records {
		if rec.n.RecipientID != recipientID || rec.n.RecipientType != recipientType {
			continue
		}
		if opts.UnreadOnly && rec.n.IsRead {
			continue
		}
		matched = append(matched, rec)
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.n.CreatedAt.Equal(b.n.CreatedAt) {
			return a.n.CreatedAt.After(b.n.CreatedAt)
		}
		return a.seq > b.seq
	})

	out := make([]*models.Notification, 0, opts.Limit)
	for i := opts.Offset; i < len(matched) && len(out) < opts.Limit; i++ {
		out = append(out, clone(&matched[i].n))
	}
	return out, nil
}

func (s *MemoryStore) CountUnread(_ context.Context, recipientID string, recipientType models.RecipientType) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, rec := range s.records {
		if rec.n.RecipientID == recipientID && rec.n.RecipientType == recipientType && !rec.n.IsRead {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) MarkRead(_ context.Context, id, recipientID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok || rec.n.RecipientID != recipientID || rec.n.IsRead {
		return false, nil
	}
	rec.n.IsRead = true
	rec.n.ReadAt = &at
	return true, nil
}

func (s *MemoryStore) MarkAllRead(_ context.Context, recipientID string, recipientType models.RecipientType, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, rec := range s.records {
		if rec.n.RecipientID == recipientID && rec.n.RecipientType == recipientType && !rec.n.IsRead {
			readAt := at
			rec.n.IsRead = true
			rec.n.ReadAt = &readAt
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) MarkDelivered(_ context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return false, nil
	}
	if !rec.n.IsDelivered {
		rec.n.IsDelivered = true
		rec.n.DeliveredAt = &at
	}
	return true, nil
}

func (s *MemoryStore) insertLocked(n *models.Notification) {
	s.seq++
	s.records[n.ID] = &memoryRecord{seq: s.seq, n: *clone(n)}
}

func matches(n *models.Notification, key DedupKey) bool {
	return !n.IsRead &&
		n.Type == key.Type &&
		n.Related != nil && n.Related.ID == key.RelatedEntityID &&
		n.WeekNumber() == key.WeekNumber
}

func clone(n *models.Notification) *models.Notification {
	c := *n
	c.Metadata = copyMetadata(n.Metadata)
	if n.Related != nil {
		ref := *n.Related
		c.Related = &ref
	}
	c.ReadAt = copyTime(n.ReadAt)
	c.DeliveredAt = copyTime(n.DeliveredAt)
	c.ScheduledFor = copyTime(n.ScheduledFor)
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
