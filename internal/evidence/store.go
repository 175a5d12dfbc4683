package evidence

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the primary, mandatory evidence store.
//
// Implementations return pkg/platform/sentinel errors for infrastructure
// facts: ErrNotFound for unknown batch ids, ErrInvalidState when a batch is
// finalized twice.
type Store interface {
	// Append writes one entry. Idempotent on entry id.
	Append(ctx context.Context, entry Entry) error

	// FinalizeBatch records the final counts on a batch parent exactly once.
	// A second finalization returns sentinel.ErrInvalidState; the first
	// write wins and is never overwritten.
	FinalizeBatch(ctx context.Context, batchID uuid.UUID, successCount, failureCount int, completedAt time.Time) error

	// GetBatch loads a batch parent.
	GetBatch(ctx context.Context, batchID uuid.UUID) (Entry, error)

	// ListByBatch returns the children of a batch, oldest first.
	ListByBatch(ctx context.Context, batchID uuid.UUID) ([]Entry, error)

	// ListRecent returns the N most recent entries, newest first.
	ListRecent(ctx context.Context, limit int) ([]Entry, error)
}

// Sink is a best-effort secondary destination for evidence entries. Failures
// are logged and counted, never surfaced to callers.
type Sink interface {
	Publish(ctx context.Context, entry Entry) error
}
