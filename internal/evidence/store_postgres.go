package evidence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"recordgate/pkg/domain"
	"recordgate/pkg/platform/sentinel"
)

// PostgresStore implements Store on PostgreSQL. Entries are append-only; the
// single update path is batch finalization, guarded at the SQL level so a
// completed parent can never be overwritten.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL evidence store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// PostgresSchema is the DDL for the evidence table. Integration tests apply
// it to a fresh database; deployments manage it through their own migrations.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS evidence_entries (
	id              UUID PRIMARY KEY,
	kind            TEXT NOT NULL,
	batch_id        UUID,
	action_id       TEXT NOT NULL,
	table_name      TEXT NOT NULL DEFAULT '',
	record_id       TEXT NOT NULL DEFAULT '',
	actor_id        TEXT NOT NULL DEFAULT '',
	correlation_id  TEXT NOT NULL,
	invocation_type TEXT NOT NULL,
	justification   TEXT NOT NULL DEFAULT '',
	succeeded       BOOLEAN NOT NULL DEFAULT FALSE,
	error_message   TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL DEFAULT '',
	total_records   INT NOT NULL DEFAULT 0,
	success_count   INT NOT NULL DEFAULT 0,
	failure_count   INT NOT NULL DEFAULT 0,
	warnings        TEXT[] NOT NULL DEFAULT '{}',
	created_at      TIMESTAMPTZ NOT NULL,
	completed_at    TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS evidence_entries_batch_idx ON evidence_entries (batch_id) WHERE batch_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS evidence_entries_created_idx ON evidence_entries (created_at DESC);
`

// Append inserts one entry. Idempotent via ON CONFLICT DO NOTHING.
func (s *PostgresStore) Append(ctx context.Context, entry Entry) error {
	query := `
		INSERT INTO evidence_entries (
			id, kind, batch_id, action_id, table_name, record_id, actor_id,
			correlation_id, invocation_type, justification,
			succeeded, error_message,
			status, total_records, success_count, failure_count,
			warnings, created_at, completed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (id) DO NOTHING
	`
	warnings := entry.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	_, err := s.db.ExecContext(ctx, query,
		entry.ID,
		string(entry.Kind),
		entry.BatchID,
		entry.ActionID,
		entry.Table,
		entry.RecordID,
		entry.ActorID,
		entry.CorrelationID.String(),
		entry.InvocationType.String(),
		entry.Justification,
		entry.Succeeded,
		entry.ErrorMessage,
		string(entry.Status),
		entry.TotalRecords,
		entry.SuccessCount,
		entry.FailureCount,
		pq.Array(warnings),
		entry.CreatedAt,
		entry.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert evidence entry: %w", err)
	}
	return nil
}

// FinalizeBatch sets the final counts exactly once. The status guard in the
// WHERE clause makes the first write win; a second call finds no pending row.
func (s *PostgresStore) FinalizeBatch(ctx context.Context, batchID uuid.UUID, successCount, failureCount int, completedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE evidence_entries
		SET status = $2, success_count = $3, failure_count = $4, completed_at = $5
		WHERE id = $1 AND kind = $6 AND status = $7
	`, batchID, string(BatchCompleted), successCount, failureCount, completedAt,
		string(KindBatch), string(BatchPending))
	if err != nil {
		return fmt.Errorf("finalize batch evidence: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finalize batch evidence: %w", err)
	}
	if affected == 1 {
		return nil
	}

	// No pending row: either the batch does not exist or it was already
	// finalized.
	var status string
	err = s.db.QueryRowContext(ctx,
		`SELECT status FROM evidence_entries WHERE id = $1 AND kind = $2`,
		batchID, string(KindBatch),
	).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check batch evidence status: %w", err)
	}
	return sentinel.ErrInvalidState
}

// GetBatch loads a batch parent.
func (s *PostgresStore) GetBatch(ctx context.Context, batchID uuid.UUID) (Entry, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+`
		FROM evidence_entries WHERE id = $1 AND kind = $2
	`, batchID, string(KindBatch))
	if err != nil {
		return Entry{}, fmt.Errorf("query batch evidence: %w", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return Entry{}, err
	}
	if len(entries) == 0 {
		return Entry{}, sentinel.ErrNotFound
	}
	return entries[0], nil
}

// ListByBatch returns a batch's children, oldest first.
func (s *PostgresStore) ListByBatch(ctx context.Context, batchID uuid.UUID) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+`
		FROM evidence_entries
		WHERE batch_id = $1 AND kind = $2
		ORDER BY created_at ASC
	`, batchID, string(KindRecord))
	if err != nil {
		return nil, fmt.Errorf("query batch children: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// ListRecent returns the N most recent entries, newest first.
func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+`
		FROM evidence_entries
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent evidence: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

const selectColumns = `
	SELECT id, kind, batch_id, action_id, table_name, record_id, actor_id,
	       correlation_id, invocation_type, justification,
	       succeeded, error_message,
	       status, total_records, success_count, failure_count,
	       warnings, created_at, completed_at
`

// scanEntries scans multiple rows into an Entry slice.
func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry

	for rows.Next() {
		var (
			e              Entry
			kind, status   string
			corrID, invTyp string
			warnings       pq.StringArray
		)
		err := rows.Scan(
			&e.ID,
			&kind,
			&e.BatchID,
			&e.ActionID,
			&e.Table,
			&e.RecordID,
			&e.ActorID,
			&corrID,
			&invTyp,
			&e.Justification,
			&e.Succeeded,
			&e.ErrorMessage,
			&status,
			&e.TotalRecords,
			&e.SuccessCount,
			&e.FailureCount,
			&warnings,
			&e.CreatedAt,
			&e.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan evidence entry: %w", err)
		}
		e.Kind = EntryKind(kind)
		e.Status = BatchStatus(status)
		e.CorrelationID = domain.CorrelationID(corrID)
		e.InvocationType = domain.InvocationType(invTyp)
		e.Warnings = []string(warnings)
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate evidence entries: %w", err)
	}
	return entries, nil
}
