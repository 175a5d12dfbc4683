package evidence

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"recordgate/internal/platform/metrics"
	"recordgate/pkg/domain"
)

// RowEvidence is the input for a standalone row action entry.
type RowEvidence struct {
	ActionID      string
	Table         string
	RecordID      string
	ActorID       string
	CorrelationID domain.CorrelationID
	Justification string
	Succeeded     bool
	ErrorMessage  string
	Warnings      []string
}

// BatchEvidence is the input for a bulk batch parent entry.
type BatchEvidence struct {
	ActionID      string
	ActorID       string
	CorrelationID domain.CorrelationID
	Justification string
	TotalRecords  int
	Warnings      []string
}

// RecordEvidence is the input for one child entry of a bulk batch.
type RecordEvidence struct {
	ActionID      string
	Table         string
	RecordID      string
	ActorID       string
	CorrelationID domain.CorrelationID
	Succeeded     bool
	ErrorMessage  string
}

// Writer persists the audit trail. The primary store is mandatory but its
// failure is a warning attached to the action result, never a rollback: a
// lost audit entry must be operationally visible without undoing a business
// mutation. The secondary sink is best-effort.
type Writer struct {
	primary   Store
	secondary Sink
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithSecondary attaches a best-effort secondary sink.
func WithSecondary(sink Sink) WriterOption {
	return func(w *Writer) {
		w.secondary = sink
	}
}

// WithLogger sets the writer logger.
func WithLogger(logger *slog.Logger) WriterOption {
	return func(w *Writer) {
		w.logger = logger
	}
}

// WithMetrics sets the Prometheus metrics sink.
func WithMetrics(m *metrics.Metrics) WriterOption {
	return func(w *Writer) {
		w.metrics = m
	}
}

// NewWriter constructs a Writer over the mandatory primary store.
func NewWriter(primary Store, opts ...WriterOption) *Writer {
	w := &Writer{primary: primary, logger: slog.Default()}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// WriteRowEvidence persists one standalone row action entry. The returned
// warning is empty on success and describes the degradation otherwise.
func (w *Writer) WriteRowEvidence(ctx context.Context, ev RowEvidence, now time.Time) (uuid.UUID, string) {
	entry := Entry{
		ID:             uuid.New(),
		Kind:           KindRecord,
		ActionID:       ev.ActionID,
		Table:          ev.Table,
		RecordID:       ev.RecordID,
		ActorID:        ev.ActorID,
		CorrelationID:  ev.CorrelationID,
		InvocationType: domain.InvocationRow,
		Justification:  ev.Justification,
		Succeeded:      ev.Succeeded,
		ErrorMessage:   ev.ErrorMessage,
		Warnings:       ev.Warnings,
		CreatedAt:      now,
	}
	warning := w.append(ctx, entry)
	return entry.ID, warning
}

// WriteBulkBatchEvidence persists the batch parent. Called before any
// mutation so intent is captured even when the batch dies midway.
func (w *Writer) WriteBulkBatchEvidence(ctx context.Context, ev BatchEvidence, now time.Time) (uuid.UUID, string) {
	entry := Entry{
		ID:             uuid.New(),
		Kind:           KindBatch,
		ActionID:       ev.ActionID,
		ActorID:        ev.ActorID,
		CorrelationID:  ev.CorrelationID,
		InvocationType: domain.InvocationBulk,
		Justification:  ev.Justification,
		Status:         BatchPending,
		TotalRecords:   ev.TotalRecords,
		Warnings:       ev.Warnings,
		CreatedAt:      now,
	}
	warning := w.append(ctx, entry)
	return entry.ID, warning
}

// WriteBulkRecordEvidence persists one child entry referencing the parent.
func (w *Writer) WriteBulkRecordEvidence(ctx context.Context, batchID uuid.UUID, ev RecordEvidence, now time.Time) (uuid.UUID, string) {
	entry := Entry{
		ID:             uuid.New(),
		Kind:           KindRecord,
		BatchID:        &batchID,
		ActionID:       ev.ActionID,
		Table:          ev.Table,
		RecordID:       ev.RecordID,
		ActorID:        ev.ActorID,
		CorrelationID:  ev.CorrelationID,
		InvocationType: domain.InvocationBulk,
		Succeeded:      ev.Succeeded,
		ErrorMessage:   ev.ErrorMessage,
		CreatedAt:      now,
	}
	warning := w.append(ctx, entry)
	return entry.ID, warning
}

// UpdateBatchEvidenceResults finalizes the parent with the batch outcome.
// The store enforces exactly-once; a duplicate finalization is reported as a
// warning, not an error, because the first write already holds the truth.
func (w *Writer) UpdateBatchEvidenceResults(ctx context.Context, batchID uuid.UUID, successCount, failureCount int, now time.Time) string {
	if err := w.primary.FinalizeBatch(ctx, batchID, successCount, failureCount, now); err != nil {
		w.logger.Warn("batch evidence finalization failed",
			"batch_id", batchID,
			"error", err)
		w.countFailure("primary")
		return "audit trail degraded: batch evidence finalization failed"
	}
	return ""
}

// append writes to the primary store and mirrors to the secondary sink.
func (w *Writer) append(ctx context.Context, entry Entry) string {
	var warning string
	if err := w.primary.Append(ctx, entry); err != nil {
		w.logger.Warn("primary evidence write failed",
			"entry_id", entry.ID,
			"kind", entry.Kind,
			"correlation_id", entry.CorrelationID,
			"error", err)
		w.countFailure("primary")
		warning = "audit trail degraded: primary evidence write failed"
	}

	if w.secondary != nil {
		if err := w.secondary.Publish(ctx, entry); err != nil {
			// Secondary unavailability is tolerated outright.
			w.logger.Warn("secondary evidence publish failed",
				"entry_id", entry.ID,
				"error", err)
			w.countFailure("secondary")
		}
	}
	return warning
}

func (w *Writer) countFailure(tier string) {
	if w.metrics != nil {
		w.metrics.EvidenceWriteFailed.WithLabelValues(tier).Inc()
	}
}
