package action

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"recordgate/internal/auditmeta"
	"recordgate/internal/evidence"
	"recordgate/internal/platform/metrics"
	"recordgate/internal/record"
	"recordgate/internal/registry"
	"recordgate/pkg/domain"
	dErrors "recordgate/pkg/domain-errors"
	"recordgate/pkg/platform/sentinel"
	"recordgate/pkg/requestcontext"
)

const defaultBulkRecordCeiling = 100

// Service executes registered actions. Every gate (descriptor, role,
// justification, metadata, capability) runs before the record store is
// mutated; evidence writing runs after, and can degrade but never abort.
type Service struct {
	actions           *registry.ActionRegistry
	store             record.Store
	caps              record.CapabilityChecker
	metadata          *auditmeta.Validator
	writer            *evidence.Writer
	handlers          handlerSet
	bulkRecordCeiling int
	logger            *slog.Logger
	metrics           *metrics.Metrics
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMetrics sets the Prometheus metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithBulkRecordCeiling overrides the global bulk record ceiling. Descriptor
// caps still lower it per action; the stricter limit always wins.
func WithBulkRecordCeiling(ceiling int) Option {
	return func(s *Service) {
		if ceiling > 0 {
			s.bulkRecordCeiling = ceiling
		}
	}
}

// New constructs an action Service. Fails when the registry contains an
// action kind with no mutation handler.
func New(actions *registry.ActionRegistry, store record.Store, caps record.CapabilityChecker,
	metadata *auditmeta.Validator, writer *evidence.Writer, opts ...Option) (*Service, error) {

	s := &Service{
		actions:           actions,
		store:             store,
		caps:              caps,
		metadata:          metadata,
		writer:            writer,
		handlers:          defaultHandlers(),
		bulkRecordCeiling: defaultBulkRecordCeiling,
		logger:            slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.handlers.verify(actions); err != nil {
		return nil, err
	}
	return s, nil
}

// ValidateAction resolves an action id against a table without executing
// anything.
func (s *Service) ValidateAction(actionID, table string) (registry.ActionDescriptor, error) {
	return s.actions.ResolveForTable(actionID, table)
}

// ExecuteRow runs one action against one record. Gate failures return coded
// errors; a mutation failure after the gates returns a result with
// Success=false so the evidence trail still records the attempt.
func (s *Service) ExecuteRow(ctx context.Context, auth domain.AuthContext, req *RowRequest) (*RowResult, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		s.countRejection("invalid_request")
		return nil, err
	}

	warnings, err := s.checkMetadata(ctx, req.Metadata, req.ActionID, domain.InvocationRow)
	if err != nil {
		return nil, err
	}
	// The declared selection must be exactly the record being mutated, so the
	// evidence trail cannot describe a different selection than what ran.
	if len(req.Metadata.RecordIDs) != 1 || req.Metadata.RecordIDs[0] != req.Target.RecordID {
		s.countRejection("invalid_metadata")
		return nil, dErrors.New(dErrors.CodeValidation,
			"audit metadata record_ids does not match the targeted record")
	}

	desc, err := s.actions.ResolveForTable(req.ActionID, req.Target.Table)
	if err != nil {
		s.countRejection("unknown_action")
		return nil, err
	}
	if err := s.checkRole(auth, desc); err != nil {
		return nil, err
	}

	rec, err := s.loadAndAuthorize(ctx, auth, desc, req.Target)
	if err != nil {
		return nil, err
	}

	handler := s.handlers[desc.Kind]
	mutation, err := handler(desc, rec, req.Params)
	if err != nil {
		s.countRejection("invalid_params")
		return nil, err
	}

	now := requestcontext.Now(ctx)
	correlationID := domain.CorrelationID(req.Metadata.ClientCorrelationID)

	result := RecordResult{
		RecordID: req.Target.RecordID,
		Table:    req.Target.Table,
	}
	if _, err := s.store.Mutate(ctx, mutation); err != nil {
		result.Error = errMessage(err)
		s.logger.Error("row action mutation failed",
			"action", desc.ID,
			"table", req.Target.Table,
			"record_id", req.Target.RecordID,
			"correlation_id", correlationID,
			"error", err)
	} else {
		result.Success = true
		result.Result = mutationResult(mutation)
	}

	auditID, warning := s.writer.WriteRowEvidence(ctx, evidence.RowEvidence{
		ActionID:      desc.ID,
		Table:         req.Target.Table,
		RecordID:      req.Target.RecordID,
		ActorID:       auth.ActorID,
		CorrelationID: correlationID,
		Justification: req.Metadata.Justification,
		Succeeded:     result.Success,
		ErrorMessage:  result.Error,
		Warnings:      warnings,
	}, now)
	result.AuditID = auditID
	if warning != "" {
		warnings = append(warnings, warning)
	}

	s.countExecution(desc.ID, result.Success)
	return &RowResult{
		RecordResult:  result,
		Warnings:      warnings,
		CorrelationID: correlationID,
	}, nil
}

// ExecuteBulk runs one action against a set of records. All gates run before
// any record is touched; from the first mutation on, failures are isolated
// per record and the batch always runs to completion.
func (s *Service) ExecuteBulk(ctx context.Context, auth domain.AuthContext, req *BulkRequest) (*BulkResult, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		s.countRejection("invalid_request")
		return nil, err
	}

	desc, err := s.actions.Resolve(req.ActionID)
	if err != nil {
		s.countRejection("unknown_action")
		return nil, err
	}
	if !desc.BulkCapable {
		s.countRejection("not_bulk_capable")
		return nil, dErrors.Newf(dErrors.CodeValidation, "action %q cannot be invoked in bulk", desc.ID)
	}

	// The stricter of the global and action caps wins, checked before any
	// record is touched.
	limit := s.bulkRecordCeiling
	if desc.MaxBulkRecords > 0 && desc.MaxBulkRecords < limit {
		limit = desc.MaxBulkRecords
	}
	if len(req.Targets) > limit {
		s.countRejection("bulk_cap_exceeded")
		return nil, dErrors.Newf(dErrors.CodeValidation,
			"bulk request has %d records, cap is %d", len(req.Targets), limit)
	}

	warnings, err := s.checkMetadata(ctx, req.Metadata, req.ActionID, domain.InvocationBulk)
	if err != nil {
		return nil, err
	}
	// The declared selection must match the records actually submitted.
	if len(req.Metadata.RecordIDs) != len(req.Targets) {
		s.countRejection("invalid_metadata")
		return nil, dErrors.New(dErrors.CodeValidation,
			"audit metadata record_ids does not match the submitted targets")
	}

	if err := s.checkRole(auth, desc); err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	correlationID := domain.CorrelationID(req.Metadata.ClientCorrelationID)

	// Parent evidence goes in before the first mutation so the intent
	// survives a mid-batch crash.
	batchID, warning := s.writer.WriteBulkBatchEvidence(ctx, evidence.BatchEvidence{
		ActionID:      desc.ID,
		ActorID:       auth.ActorID,
		CorrelationID: correlationID,
		Justification: req.Metadata.Justification,
		TotalRecords:  len(req.Targets),
		Warnings:      warnings,
	}, now)
	if warning != "" {
		warnings = append(warnings, warning)
	}

	results := make([]RecordResult, 0, len(req.Targets))
	successCount, failureCount := 0, 0
	for _, target := range groupByTable(req.Targets) {
		res := s.executeBulkRecord(ctx, auth, desc, target, req.Params)

		auditID, warning := s.writer.WriteBulkRecordEvidence(ctx, batchID, evidence.RecordEvidence{
			ActionID:      desc.ID,
			Table:         target.Table,
			RecordID:      target.RecordID,
			ActorID:       auth.ActorID,
			CorrelationID: correlationID,
			Succeeded:     res.Success,
			ErrorMessage:  res.Error,
		}, now)
		res.AuditID = auditID
		if warning != "" {
			warnings = append(warnings, warning)
		}

		if res.Success {
			successCount++
		} else {
			failureCount++
		}
		s.countExecution(desc.ID, res.Success)
		results = append(results, res)
	}

	if warning := s.writer.UpdateBatchEvidenceResults(ctx, batchID, successCount, failureCount, requestcontext.Now(ctx)); warning != "" {
		warnings = append(warnings, warning)
	}

	if failureCount > 0 {
		if s.metrics != nil {
			s.metrics.BulkPartialFailures.Inc()
		}
		s.logger.Warn("bulk action completed with failures",
			"action", desc.ID,
			"batch_id", batchID,
			"correlation_id", correlationID,
			"succeeded", successCount,
			"failed", failureCount)
	}

	// Success means the batch ran to completion; per-record outcomes live in
	// Results and the counts.
	return &BulkResult{
		Success:       true,
		BatchAuditID:  batchID,
		TotalRecords:  len(req.Targets),
		SuccessCount:  successCount,
		FailureCount:  failureCount,
		Results:       results,
		Warnings:      warnings,
		CorrelationID: correlationID,
	}, nil
}

// executeBulkRecord runs the row-equivalent path for one record of a batch.
// Every failure mode becomes an explicit per-record error; nothing here
// aborts the siblings.
func (s *Service) executeBulkRecord(ctx context.Context, auth domain.AuthContext,
	desc registry.ActionDescriptor, target RowTarget, params map[string]any) RecordResult {

	result := RecordResult{RecordID: target.RecordID, Table: target.Table}

	if !desc.AppliesTo(target.Table) {
		result.Error = "action does not apply to table " + target.Table
		return result
	}
	rec, err := s.loadAndAuthorize(ctx, auth, desc, target)
	if err != nil {
		result.Error = errMessage(err)
		return result
	}
	mutation, err := s.handlers[desc.Kind](desc, rec, params)
	if err != nil {
		result.Error = errMessage(err)
		return result
	}
	if _, err := s.store.Mutate(ctx, mutation); err != nil {
		result.Error = errMessage(err)
		return result
	}

	result.Success = true
	result.Result = mutationResult(mutation)
	return result
}

// checkMetadata runs the full audit metadata contract: field presence and
// shape, the client-side storage scan, and the per-action justification
// rule. Errors reject the request; warnings ride along.
func (s *Service) checkMetadata(ctx context.Context, m *auditmeta.Metadata, actionID string, expected domain.InvocationType) ([]string, error) {
	res := s.metadata.Validate(m, expected, requestcontext.Now(ctx))
	if storage := s.metadata.ValidateNoClientSideStorage(m); !storage.Valid {
		res.Valid = false
		res.Errors = append(res.Errors, storage.Errors...)
	}
	if just := s.metadata.ValidateJustification(actionID, m.Justification); !just.Valid {
		res.Valid = false
		res.Errors = append(res.Errors, just.Errors...)
	}
	if !res.Valid {
		s.countRejection("invalid_metadata")
		return nil, dErrors.New(dErrors.CodeValidation,
			"audit metadata rejected: "+strings.Join(res.Errors, "; "))
	}
	return res.Warnings, nil
}

// checkRole enforces the descriptor's role requirement on top of the record
// store's capability checks.
func (s *Service) checkRole(auth domain.AuthContext, desc registry.ActionDescriptor) error {
	if desc.RequiredRole == "" {
		return nil
	}
	if !auth.HasRole(desc.RequiredRole) {
		s.countRejection("missing_role")
		// Generic message: do not reveal which role would have sufficed.
		return dErrors.New(dErrors.CodeForbidden, "permission denied")
	}
	return nil
}

// loadAndAuthorize fetches the record and re-checks the action's capability
// against it. The re-check runs per record even when a coarser table check
// already passed.
func (s *Service) loadAndAuthorize(ctx context.Context, auth domain.AuthContext,
	desc registry.ActionDescriptor, target RowTarget) (record.Record, error) {

	rec, err := s.store.Get(ctx, target.Table, target.RecordID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return record.Record{}, dErrors.New(dErrors.CodeNotFound, "record not found")
	}
	if err != nil {
		return record.Record{}, dErrors.Wrap(err, dErrors.CodeInternal, "record load failed")
	}

	allowed, err := s.caps.CanAccessRecord(ctx, auth, rec, desc.Capability)
	if err != nil {
		return record.Record{}, dErrors.Wrap(err, dErrors.CodeInternal, "record capability check failed")
	}
	if !allowed {
		s.countRejection("access_denied")
		return record.Record{}, dErrors.New(dErrors.CodeForbidden, "permission denied")
	}
	return rec, nil
}

// groupByTable reorders targets so records of the same table run
// consecutively, preserving first-seen table order and the submitted order
// within a table.
func groupByTable(targets []RowTarget) []RowTarget {
	byTable := make(map[string][]RowTarget)
	var order []string
	for _, t := range targets {
		if _, seen := byTable[t.Table]; !seen {
			order = append(order, t.Table)
		}
		byTable[t.Table] = append(byTable[t.Table], t)
	}

	out := make([]RowTarget, 0, len(targets))
	for _, table := range order {
		out = append(out, byTable[table]...)
	}
	return out
}

// mutationResult is the caller-visible summary of an applied mutation.
func mutationResult(m record.Mutation) map[string]any {
	if m.Delete {
		return map[string]any{"deleted": true}
	}
	out := make(map[string]any, len(m.SetFields))
	for k, v := range m.SetFields {
		out[k] = v
	}
	return out
}

// errMessage extracts a caller-safe message from a coded error.
func errMessage(err error) string {
	if msg := dErrors.MessageOf(err); msg != "" {
		return msg
	}
	return "internal error"
}

func (s *Service) countRejection(reason string) {
	if s.metrics != nil {
		s.metrics.ActionsRejected.WithLabelValues(reason).Inc()
	}
}

func (s *Service) countExecution(actionID string, success bool) {
	if s.metrics == nil {
		return
	}
	outcome := "failure"
	if success {
		outcome = "success"
	}
	s.metrics.ActionsExecuted.WithLabelValues(actionID, outcome).Inc()
}
