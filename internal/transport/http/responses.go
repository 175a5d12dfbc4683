package httptransport

import (
	"errors"
	"time"

	"recordgate/internal/evidence"
	"recordgate/internal/registry"
	dErrors "recordgate/pkg/domain-errors"
	"recordgate/pkg/platform/sentinel"
)

type listsEnvelope struct {
	Lists []listResponse `json:"lists"`
}

// listResponse exposes a list descriptor's public attributes. The backing
// table name stays server-side.
type listResponse struct {
	ID                string   `json:"id"`
	DisplayField      string   `json:"display_field"`
	AllowedFields     []string `json:"allowed_fields"`
	AllowedSortFields []string `json:"allowed_sort_fields"`
	SearchFields      []string `json:"search_fields,omitempty"`
}

func fromListDescriptor(d registry.ListDescriptor) listResponse {
	return listResponse{
		ID:                d.ID,
		DisplayField:      d.DisplayField,
		AllowedFields:     d.AllowedFields,
		AllowedSortFields: d.AllowedSortFields,
		SearchFields:      d.IndexedSearchFields,
	}
}

type actionsEnvelope struct {
	Actions []actionResponse `json:"actions"`
}

type actionResponse struct {
	ID                    string   `json:"id"`
	Kind                  string   `json:"kind"`
	JustificationRequired bool     `json:"justification_required"`
	RequiredRole          string   `json:"required_role,omitempty"`
	BulkCapable           bool     `json:"bulk_capable"`
	MaxBulkRecords        int      `json:"max_bulk_records,omitempty"`
	RequiredParams        []string `json:"required_params,omitempty"`
}

func fromActionDescriptor(d registry.ActionDescriptor) actionResponse {
	return actionResponse{
		ID:                    d.ID,
		Kind:                  string(d.Kind),
		JustificationRequired: d.JustificationRequired,
		RequiredRole:          string(d.RequiredRole),
		BulkCapable:           d.BulkCapable,
		MaxBulkRecords:        d.MaxBulkRecords,
		RequiredParams:        d.RequiredParams,
	}
}

type evidenceEnvelope struct {
	Entries []entryResponse `json:"entries"`
}

type batchEnvelope struct {
	Batch   entryResponse   `json:"batch"`
	Records []entryResponse `json:"records"`
}

type entryResponse struct {
	ID             string   `json:"id"`
	Kind           string   `json:"kind"`
	BatchID        string   `json:"batch_id,omitempty"`
	ActionID       string   `json:"action_id"`
	Table          string   `json:"table,omitempty"`
	RecordID       string   `json:"record_id,omitempty"`
	ActorID        string   `json:"actor_id,omitempty"`
	CorrelationID  string   `json:"correlation_id"`
	InvocationType string   `json:"invocation_type"`
	Justification  string   `json:"justification,omitempty"`
	Succeeded      bool     `json:"succeeded"`
	ErrorMessage   string   `json:"error_message,omitempty"`
	Status         string   `json:"status,omitempty"`
	TotalRecords   int      `json:"total_records,omitempty"`
	SuccessCount   int      `json:"success_count,omitempty"`
	FailureCount   int      `json:"failure_count,omitempty"`
	Warnings       []string `json:"warnings,omitempty"`
	CreatedAt      string   `json:"created_at"`
	CompletedAt    string   `json:"completed_at,omitempty"`
}

func fromEntry(e evidence.Entry) entryResponse {
	resp := entryResponse{
		ID:             e.ID.String(),
		Kind:           string(e.Kind),
		ActionID:       e.ActionID,
		Table:          e.Table,
		RecordID:       e.RecordID,
		ActorID:        e.ActorID,
		CorrelationID:  e.CorrelationID.String(),
		InvocationType: e.InvocationType.String(),
		Justification:  e.Justification,
		Succeeded:      e.Succeeded,
		ErrorMessage:   e.ErrorMessage,
		Status:         string(e.Status),
		TotalRecords:   e.TotalRecords,
		SuccessCount:   e.SuccessCount,
		FailureCount:   e.FailureCount,
		Warnings:       e.Warnings,
		CreatedAt:      e.CreatedAt.UTC().Format(time.RFC3339),
	}
	if e.BatchID != nil {
		resp.BatchID = e.BatchID.String()
	}
	if e.CompletedAt != nil {
		resp.CompletedAt = e.CompletedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func fromEntries(entries []evidence.Entry) []entryResponse {
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, fromEntry(e))
	}
	return out
}

func translateEvidenceErr(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "batch not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "evidence read failed")
}
