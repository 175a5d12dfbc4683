// Package evidence persists the audit trail for executed actions: one parent
// entry per bulk batch, one child entry per audited record mutation, and
// standalone entries for row actions.
package evidence

import (
	"time"

	"github.com/google/uuid"

	"recordgate/pkg/domain"
)

// EntryKind distinguishes batch parents from per-record entries.
type EntryKind string

const (
	// KindBatch is the parent entry for one bulk operation. Written before
	// any mutation so intent survives mid-batch failure.
	KindBatch EntryKind = "batch"
	// KindRecord is one audited record mutation. References its batch parent
	// when part of a bulk operation; standalone for row actions.
	KindRecord EntryKind = "record"
)

// BatchStatus tracks the parent entry lifecycle.
type BatchStatus string

const (
	// BatchPending is set at creation, before any mutation runs.
	BatchPending BatchStatus = "pending"
	// BatchCompleted is set exactly once, with the final counts.
	BatchCompleted BatchStatus = "completed"
)

// Entry is one audit trail record. Append-only: the single permitted update
// is the one-time finalization of a batch parent.
type Entry struct {
	ID      uuid.UUID
	Kind    EntryKind
	BatchID *uuid.UUID // set on children of a bulk batch

	ActionID       string
	Table          string
	RecordID       string // empty on batch parents
	ActorID        string
	CorrelationID  domain.CorrelationID
	InvocationType domain.InvocationType
	Justification  string

	// Outcome of a record entry.
	Succeeded    bool
	ErrorMessage string

	// Batch parent bookkeeping. TotalRecords is known at creation;
	// SuccessCount/FailureCount are written by finalization.
	Status       BatchStatus
	TotalRecords int
	SuccessCount int
	FailureCount int

	Warnings    []string
	CreatedAt   time.Time
	CompletedAt *time.Time
}
