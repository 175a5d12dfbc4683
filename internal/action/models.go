// Package action executes registered mutation intents against the record
// store, gated by the action registry, the audit metadata contract, and
// per-record capability re-checks.
package action

import (
	"strings"

	"github.com/google/uuid"

	"recordgate/internal/auditmeta"
	"recordgate/pkg/domain"
	dErrors "recordgate/pkg/domain-errors"
)

const (
	maxParams       = 32
	maxParamValue   = 4096
	maxBulkRequest  = 1024 // structural sanity bound, distinct from the execution caps
	maxRecordIDSize = 128
)

// RowTarget identifies one record an action runs against.
type RowTarget struct {
	Table    string `json:"table"`
	RecordID string `json:"recordId"`
}

// RowRequest invokes one action against one record.
type RowRequest struct {
	ActionID string              `json:"actionId"`
	Target   RowTarget           `json:"target"`
	Params   map[string]any      `json:"params,omitempty"`
	Metadata *auditmeta.Metadata `json:"auditMetadata"`
}

// Normalize trims identifier fields in place.
func (r *RowRequest) Normalize() {
	r.ActionID = strings.TrimSpace(r.ActionID)
	r.Target.Table = strings.TrimSpace(r.Target.Table)
	r.Target.RecordID = strings.TrimSpace(r.Target.RecordID)
}

// Validate checks structural soundness only; registry and capability checks
// belong to the service.
// Follows validation order: Size -> Required -> Syntax -> Semantic.
func (r *RowRequest) Validate() error {
	if err := validateParams(r.Params); err != nil {
		return err
	}
	if r.ActionID == "" {
		return dErrors.New(dErrors.CodeValidation, "actionId is required")
	}
	if err := r.Target.validate(); err != nil {
		return err
	}
	if r.Metadata == nil {
		return dErrors.New(dErrors.CodeValidation, "auditMetadata is required")
	}
	return nil
}

// BulkRequest invokes one action against a set of records, possibly spanning
// tables.
type BulkRequest struct {
	ActionID string              `json:"actionId"`
	Targets  []RowTarget         `json:"targets"`
	Params   map[string]any      `json:"params,omitempty"`
	Metadata *auditmeta.Metadata `json:"auditMetadata"`
}

// Normalize trims identifier fields in place.
func (r *BulkRequest) Normalize() {
	r.ActionID = strings.TrimSpace(r.ActionID)
	for i := range r.Targets {
		r.Targets[i].Table = strings.TrimSpace(r.Targets[i].Table)
		r.Targets[i].RecordID = strings.TrimSpace(r.Targets[i].RecordID)
	}
}

// Validate checks structural soundness. The bulk execution caps are enforced
// by the service against the resolved descriptor, not here.
// Follows validation order: Size -> Required -> Syntax -> Semantic.
func (r *BulkRequest) Validate() error {
	if len(r.Targets) > maxBulkRequest {
		return dErrors.Newf(dErrors.CodeValidation, "too many targets (max %d)", maxBulkRequest)
	}
	if err := validateParams(r.Params); err != nil {
		return err
	}
	if r.ActionID == "" {
		return dErrors.New(dErrors.CodeValidation, "actionId is required")
	}
	if len(r.Targets) == 0 {
		return dErrors.New(dErrors.CodeValidation, "targets must be non-empty")
	}
	for _, t := range r.Targets {
		if err := t.validate(); err != nil {
			return err
		}
	}
	if r.Metadata == nil {
		return dErrors.New(dErrors.CodeValidation, "auditMetadata is required")
	}
	return nil
}

func (t RowTarget) validate() error {
	if len(t.RecordID) > maxRecordIDSize {
		return dErrors.Newf(dErrors.CodeValidation, "record id exceeds %d characters", maxRecordIDSize)
	}
	if t.Table == "" {
		return dErrors.New(dErrors.CodeValidation, "target table is required")
	}
	if t.RecordID == "" {
		return dErrors.New(dErrors.CodeValidation, "target recordId is required")
	}
	return nil
}

func validateParams(params map[string]any) error {
	if len(params) > maxParams {
		return dErrors.Newf(dErrors.CodeValidation, "too many params (max %d)", maxParams)
	}
	for key, v := range params {
		if s, ok := v.(string); ok && len(s) > maxParamValue {
			return dErrors.Newf(dErrors.CodeValidation, "param %q exceeds %d characters", key, maxParamValue)
		}
	}
	return nil
}

// RecordResult is the per-record outcome. Exactly one of Result or Error is
// meaningful, selected by Success.
type RecordResult struct {
	RecordID string         `json:"id"`
	Table    string         `json:"table"`
	Success  bool           `json:"success"`
	Result   map[string]any `json:"result,omitempty"`
	Error    string         `json:"error,omitempty"`
	AuditID  uuid.UUID      `json:"auditId"`
}

// RowResult is the outcome of a row invocation. A false Success with a
// populated Error means the mutation itself failed after all gates passed;
// gate failures surface as coded errors instead.
type RowResult struct {
	RecordResult
	Warnings      []string             `json:"warnings,omitempty"`
	CorrelationID domain.CorrelationID `json:"correlationId"`
}

// BulkResult is the outcome of a bulk invocation.
//
// Success reports that the batch RAN, not that every record succeeded:
// per-record failures live in Results and the counts, never in the top-level
// status. Callers that treat Success as all-or-nothing will misread partial
// failures.
type BulkResult struct {
	Success       bool                 `json:"success"`
	BatchAuditID  uuid.UUID            `json:"batchAuditId"`
	TotalRecords  int                  `json:"totalRecords"`
	SuccessCount  int                  `json:"successCount"`
	FailureCount  int                  `json:"failureCount"`
	Results       []RecordResult       `json:"results"`
	Warnings      []string             `json:"warnings,omitempty"`
	CorrelationID domain.CorrelationID `json:"correlationId"`
}
