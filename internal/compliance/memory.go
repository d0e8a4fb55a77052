package compliance

import (
	"context"
	"sync"

	"compliance-engine/internal/models"
)

// StaticAllocations is an in-memory AllocationSource.
type StaticAllocations struct {
	mu          sync.RWMutex
	allocations []models.Allocation
}

func NewStaticAllocations(allocations ...models.Allocation) *StaticAllocations {
	return &StaticAllocations{allocations: allocations}
}

func (s *StaticAllocations) Set(allocations ...models.Allocation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allocations = allocations
}

func (s *StaticAllocations) ActiveAllocations(_ context.Context) ([]models.Allocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Allocation, 0, len(s.allocations))
	for _, a := range s.allocations {
		if a.IsActive {
			out = append(out, a)
		}
	}
	return out, nil
}

type recordKey struct {
	allocationID string
	week         int
}

// RecordSet is an in-memory ComplianceRecords.
type RecordSet struct {
	mu      sync.RWMutex
	records map[recordKey]bool
}

func NewRecordSet() *RecordSet {
	return &RecordSet{records: make(map[recordKey]bool)}
}

// Submit records an active compliance record for (allocationID, week).
func (r *RecordSet) Submit(allocationID string, week int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[recordKey{allocationID, week}] = true
}

func (r *RecordSet) HasActiveRecord(_ context.Context, allocationID string, weekNumber int) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.records[recordKey{allocationID, weekNumber}], nil
}
