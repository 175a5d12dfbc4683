package record

import (
	"context"

	"recordgate/pkg/domain"
)

// Store is the typed boundary to the record store. Implementations own
// storage, indexing, and the capability rules; the governance layer only
// decides what is allowed to reach them.
//
// Stores return pkg/platform/sentinel errors for infrastructure facts
// (ErrNotFound, ErrUnavailable); services translate them.
type Store interface {
	// Select executes a validated query and returns matching records in a
	// deterministic order. No capability filtering happens here.
	Select(ctx context.Context, q Query) ([]Record, error)

	// Get loads one record. Returns sentinel.ErrNotFound when absent.
	Get(ctx context.Context, table, id string) (Record, error)

	// Mutate applies one change and returns the resulting record state.
	// For deletes the returned record is the last state before removal.
	Mutate(ctx context.Context, m Mutation) (Record, error)
}

// CapabilityChecker answers the store's per-table and per-record access
// questions. Kept separate from Store so authorization backends can differ
// from the storage backend.
type CapabilityChecker interface {
	// CanAccessTable is the coarse pre-check run before a query or action
	// touches any record of a table.
	CanAccessTable(ctx context.Context, auth domain.AuthContext, table string, cap domain.Capability) (bool, error)

	// CanAccessRecord is the per-record re-check. Query results drop records
	// that fail it; actions refuse to mutate them.
	CanAccessRecord(ctx context.Context, auth domain.AuthContext, rec Record, cap domain.Capability) (bool, error)
}
