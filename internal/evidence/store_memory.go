package evidence

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"recordgate/pkg/platform/sentinel"
)

// MemoryStore implements Store on plain slices. Dev and test backend; the
// postgres store is the production one.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
	byID    map[uuid.UUID]int
}

// NewMemoryStore creates an empty in-memory evidence store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[uuid.UUID]int)}
}

// Append writes one entry. Duplicate ids are ignored, matching the postgres
// store's ON CONFLICT DO NOTHING semantics.
func (s *MemoryStore) Append(ctx context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[entry.ID]; exists {
		return nil
	}
	s.byID[entry.ID] = len(s.entries)
	s.entries = append(s.entries, entry)
	return nil
}

// FinalizeBatch sets the final counts exactly once.
func (s *MemoryStore) FinalizeBatch(ctx context.Context, batchID uuid.UUID, successCount, failureCount int, completedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.byID[batchID]
	if !ok || s.entries[idx].Kind != KindBatch {
		return sentinel.ErrNotFound
	}
	if s.entries[idx].Status == BatchCompleted {
		return sentinel.ErrInvalidState
	}

	s.entries[idx].Status = BatchCompleted
	s.entries[idx].SuccessCount = successCount
	s.entries[idx].FailureCount = failureCount
	s.entries[idx].CompletedAt = &completedAt
	return nil
}

// GetBatch loads a batch parent.
func (s *MemoryStore) GetBatch(ctx context.Context, batchID uuid.UUID) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.byID[batchID]
	if !ok || s.entries[idx].Kind != KindBatch {
		return Entry{}, sentinel.ErrNotFound
	}
	return s.entries[idx], nil
}

// ListByBatch returns a batch's children in insertion order.
func (s *MemoryStore) ListByBatch(ctx context.Context, batchID uuid.UUID) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var children []Entry
	for _, e := range s.entries {
		if e.Kind == KindRecord && e.BatchID != nil && *e.BatchID == batchID {
			children = append(children, e)
		}
	}
	return children, nil
}

// ListRecent returns the N most recent entries, newest first.
func (s *MemoryStore) ListRecent(ctx context.Context, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.entries) {
		limit = len(s.entries)
	}
	out := make([]Entry, 0, limit)
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.entries[i])
	}
	return out, nil
}
