// Package httptransport is the thin HTTP layer over the query and action
// services. Handlers decode, delegate, and encode; every decision about
// allow-lists, capabilities, and evidence lives in the services.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"recordgate/internal/action"
	"recordgate/internal/evidence"
	"recordgate/internal/query"
	"recordgate/internal/record"
	"recordgate/internal/registry"
	"recordgate/pkg/domain"
	dErrors "recordgate/pkg/domain-errors"
	"recordgate/pkg/platform/httputil"
	"recordgate/pkg/requestcontext"
)

const recentEvidenceLimit = 100

// QueryService defines the interface for list queries.
type QueryService interface {
	Execute(ctx context.Context, auth domain.AuthContext, req *query.Request) (*query.Response, error)
}

// ActionService defines the interface for action execution.
type ActionService interface {
	ExecuteRow(ctx context.Context, auth domain.AuthContext, req *action.RowRequest) (*action.RowResult, error)
	ExecuteBulk(ctx context.Context, auth domain.AuthContext, req *action.BulkRequest) (*action.BulkResult, error)
}

// EvidenceReader defines the read surface over the evidence store.
type EvidenceReader interface {
	GetBatch(ctx context.Context, batchID uuid.UUID) (evidence.Entry, error)
	ListByBatch(ctx context.Context, batchID uuid.UUID) ([]evidence.Entry, error)
	ListRecent(ctx context.Context, limit int) ([]evidence.Entry, error)
}

// HealthChecker reports primary store reachability.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Handler wires the governance endpoints to their services.
type Handler struct {
	queries  QueryService
	actions  ActionService
	lists    *registry.ListRegistry
	registry *registry.ActionRegistry
	caps     record.CapabilityChecker
	evidence EvidenceReader
	health   HealthChecker
	logger   *slog.Logger
}

// New constructs a Handler with its dependencies. health may be nil when the
// backing store has no liveness probe.
func New(queries QueryService, actions ActionService,
	lists *registry.ListRegistry, actionRegistry *registry.ActionRegistry,
	caps record.CapabilityChecker,
	evidenceReader EvidenceReader, health HealthChecker, logger *slog.Logger) *Handler {
	return &Handler{
		queries:  queries,
		actions:  actions,
		lists:    lists,
		registry: actionRegistry,
		caps:     caps,
		evidence: evidenceReader,
		health:   health,
		logger:   logger,
	}
}

// HandleQuery handles POST /query requests.
func (h *Handler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := requestcontext.CorrelationID(ctx).String()
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[query.Request](w, r, h.logger, correlationID)
	if !ok {
		return
	}

	resp, err := h.queries.Execute(ctx, requestcontext.Auth(ctx), req)
	if err != nil {
		h.logError(ctx, "query failed", req.ListKey, correlationID, err)
		httputil.WriteError(w, correlationID, err)
		return
	}

	h.logger.InfoContext(ctx, "query served",
		"list_key", req.ListKey,
		"correlation_id", correlationID,
		"rows", len(resp.Rows),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, correlationID, resp)
}

// HandleRowAction handles POST /actions/row requests.
func (h *Handler) HandleRowAction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := requestcontext.CorrelationID(ctx).String()

	req, ok := httputil.DecodeAndPrepare[action.RowRequest](w, r, h.logger, correlationID)
	if !ok {
		return
	}

	result, err := h.actions.ExecuteRow(ctx, requestcontext.Auth(ctx), req)
	if err != nil {
		h.logError(ctx, "row action rejected", req.ActionID, correlationID, err)
		httputil.WriteError(w, correlationID, err)
		return
	}

	h.logger.InfoContext(ctx, "row action executed",
		"action", req.ActionID,
		"record_id", req.Target.RecordID,
		"success", result.Success,
		"correlation_id", correlationID,
	)
	httputil.WriteJSON(w, http.StatusOK, correlationID, result)
}

// HandleBulkAction handles POST /actions/bulk requests.
func (h *Handler) HandleBulkAction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := requestcontext.CorrelationID(ctx).String()

	req, ok := httputil.DecodeAndPrepare[action.BulkRequest](w, r, h.logger, correlationID)
	if !ok {
		return
	}

	result, err := h.actions.ExecuteBulk(ctx, requestcontext.Auth(ctx), req)
	if err != nil {
		h.logError(ctx, "bulk action rejected", req.ActionID, correlationID, err)
		httputil.WriteError(w, correlationID, err)
		return
	}

	h.logger.InfoContext(ctx, "bulk action executed",
		"action", req.ActionID,
		"batch_id", result.BatchAuditID,
		"total", result.TotalRecords,
		"failed", result.FailureCount,
		"correlation_id", correlationID,
	)
	httputil.WriteJSON(w, http.StatusOK, correlationID, result)
}

// HandleLists handles GET /lists requests. Only lists whose backing table the
// caller can read are returned; a list the caller cannot see is simply absent,
// the same silent-drop rule the query path applies to rows.
func (h *Handler) HandleLists(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := requestcontext.CorrelationID(ctx).String()
	auth := requestcontext.Auth(ctx)

	descriptors := h.lists.All()
	out := make([]listResponse, 0, len(descriptors))
	for _, d := range descriptors {
		allowed, err := h.caps.CanAccessTable(ctx, auth, d.Table, domain.CapabilityRead)
		if err != nil {
			h.logError(ctx, "list capability check failed", d.ID, correlationID, err)
			continue
		}
		if !allowed {
			continue
		}
		out = append(out, fromListDescriptor(d))
	}
	httputil.WriteJSON(w, http.StatusOK, correlationID, listsEnvelope{Lists: out})
}

// HandleActions handles GET /actions requests.
func (h *Handler) HandleActions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := requestcontext.CorrelationID(ctx).String()

	descriptors := h.registry.All()
	out := make([]actionResponse, 0, len(descriptors))
	for _, d := range descriptors {
		out = append(out, fromActionDescriptor(d))
	}
	httputil.WriteJSON(w, http.StatusOK, correlationID, actionsEnvelope{Actions: out})
}

// HandleEvidenceRecent handles GET /evidence/recent requests.
func (h *Handler) HandleEvidenceRecent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := requestcontext.CorrelationID(ctx).String()

	entries, err := h.evidence.ListRecent(ctx, recentEvidenceLimit)
	if err != nil {
		h.logError(ctx, "evidence read failed", "recent", correlationID, err)
		httputil.WriteError(w, correlationID,
			dErrors.Wrap(err, dErrors.CodeInternal, "evidence read failed"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, correlationID, evidenceEnvelope{Entries: fromEntries(entries)})
}

// HandleEvidenceBatch handles GET /evidence/batches/{batchID} requests,
// returning the parent with its children.
func (h *Handler) HandleEvidenceBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := requestcontext.CorrelationID(ctx).String()

	batchID, err := uuid.Parse(chi.URLParam(r, "batchID"))
	if err != nil {
		httputil.WriteError(w, correlationID,
			dErrors.New(dErrors.CodeValidation, "batch id must be a UUID"))
		return
	}

	parent, err := h.evidence.GetBatch(ctx, batchID)
	if err != nil {
		httputil.WriteError(w, correlationID, translateEvidenceErr(err))
		return
	}
	children, err := h.evidence.ListByBatch(ctx, batchID)
	if err != nil {
		h.logError(ctx, "evidence read failed", batchID.String(), correlationID, err)
		httputil.WriteError(w, correlationID,
			dErrors.Wrap(err, dErrors.CodeInternal, "evidence read failed"))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, correlationID, batchEnvelope{
		Batch:   fromEntry(parent),
		Records: fromEntries(children),
	})
}

// HandleHealthz handles GET /healthz requests.
func (h *Handler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.health != nil {
		if err := h.health.Health(ctx); err != nil {
			httputil.WriteJSON(w, http.StatusServiceUnavailable, "", map[string]string{"status": "degraded"})
			return
		}
	}
	httputil.WriteJSON(w, http.StatusOK, "", map[string]string{"status": "ok"})
}

func (h *Handler) logError(ctx context.Context, msg, subject, correlationID string, err error) {
	h.logger.ErrorContext(ctx, msg,
		"subject", subject,
		"correlation_id", correlationID,
		"error", err,
	)
}
