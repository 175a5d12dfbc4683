package query

import (
	"context"
	"log/slog"
	"time"

	"recordgate/internal/platform/metrics"
	"recordgate/internal/record"
	"recordgate/internal/registry"
	"recordgate/pkg/domain"
	dErrors "recordgate/pkg/domain-errors"
)

const defaultPageSize = 50

// Service validates queries against the allow-list registry, executes them
// against the record store, and projects only permitted fields.
type Service struct {
	lists           *registry.ListRegistry
	store           record.Store
	caps            record.CapabilityChecker
	pageSizeCeiling int
	logger          *slog.Logger
	metrics         *metrics.Metrics
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

// WithPageSizeCeiling overrides the hard page size ceiling.
func WithPageSizeCeiling(ceiling int) Option {
	return func(s *Service) {
		if ceiling > 0 {
			s.pageSizeCeiling = ceiling
		}
	}
}

// New constructs a query Service.
func New(lists *registry.ListRegistry, store record.Store, caps record.CapabilityChecker, opts ...Option) *Service {
	s := &Service{
		lists:           lists,
		store:           store,
		caps:            caps,
		pageSizeCeiling: 200,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ValidateListKey resolves a list key without executing anything. Clients use
// it for fail-fast checks; Execute re-resolves regardless.
func (s *Service) ValidateListKey(listKey string) (registry.ListDescriptor, error) {
	return s.lists.Resolve(listKey)
}

// Execute runs one validated query. Every rejection happens before the record
// store is touched; per-record capability exclusions happen after, silently.
func (s *Service) Execute(ctx context.Context, auth domain.AuthContext, req *Request) (*Response, error) {
	start := time.Now()

	req.Normalize()
	if err := req.Validate(); err != nil {
		s.countRejection("invalid_request")
		return nil, err
	}

	desc, err := s.lists.Resolve(req.ListKey)
	if err != nil {
		s.countRejection("unknown_list")
		return nil, err
	}

	allowed, err := s.caps.CanAccessTable(ctx, auth, desc.Table, domain.CapabilityRead)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "table capability check failed")
	}
	if !allowed {
		s.countRejection("access_denied")
		// Generic message: do not leak which tables exist or why access failed.
		return nil, dErrors.New(dErrors.CodeForbidden, "access denied")
	}

	storeQuery, err := s.buildQuery(desc, req)
	if err != nil {
		s.countRejection("disallowed_field")
		return nil, err
	}

	candidates, err := s.store.Select(ctx, storeQuery)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "record store query failed")
	}

	rows, dropped, err := s.projectRows(ctx, auth, desc, candidates)
	if err != nil {
		return nil, err
	}
	if dropped > 0 && s.metrics != nil {
		s.metrics.QueryRowsDropped.Add(float64(dropped))
	}

	resp := &Response{
		Rows:          rows,
		CorrelationID: req.Context.CorrelationID,
	}
	// The cursor is computed from the candidate page, not the post-exclusion
	// row count: capability drops are exclusions, not consumed page space.
	if len(candidates) == storeQuery.Page.Size {
		next := storeQuery.Page.Offset + storeQuery.Page.Size
		resp.NextCursor = &next
	}

	if s.metrics != nil {
		s.metrics.QueriesServed.Inc()
		s.metrics.QueryDurationSeconds.Observe(time.Since(start).Seconds())
	}
	s.logger.Debug("query executed",
		"list_key", req.ListKey,
		"correlation_id", req.Context.CorrelationID,
		"rows", len(rows),
		"dropped", dropped)

	return resp, nil
}

// buildQuery merges default and caller filters, validates field allow-listing
// for filters/sort/search, and clamps the page size. Any disallowed field
// rejects the entire request; there is no partial application.
func (s *Service) buildQuery(desc registry.ListDescriptor, req *Request) (record.Query, error) {
	filters := make([]record.Filter, 0, len(desc.DefaultFilters)+len(req.Filters))
	filters = append(filters, desc.DefaultFilters...)
	for _, f := range req.Filters {
		if !desc.FieldAllowed(f.Field) {
			return record.Query{}, dErrors.Newf(dErrors.CodeValidation,
				"filter field %q is not allowed for list %q", f.Field, desc.ID)
		}
		filters = append(filters, f)
	}

	if req.Search != "" && !desc.Searchable() {
		return record.Query{}, dErrors.Newf(dErrors.CodeValidation,
			"list %q does not support search", desc.ID)
	}

	sort := make([]record.SortSpec, 0, len(req.Sort)+1)
	for _, key := range req.Sort {
		if !desc.SortAllowed(key.Field) {
			return record.Query{}, dErrors.Newf(dErrors.CodeValidation,
				"sort field %q is not allowed for list %q", key.Field, desc.ID)
		}
		sort = append(sort, key)
	}
	if len(sort) == 0 {
		// Stable default: newest first.
		sort = append(sort, record.SortSpec{Field: "created_at", Direction: record.SortDesc})
	}

	size := req.Page.Size
	if size == 0 {
		size = defaultPageSize
	}
	if size > s.pageSizeCeiling {
		size = s.pageSizeCeiling
	}

	return record.Query{
		Table:        desc.Table,
		Filters:      filters,
		Search:       req.Search,
		SearchFields: desc.IndexedSearchFields,
		Sort:         sort,
		Page:         record.Page{Size: size, Offset: req.Page.Offset},
	}, nil
}

// projectRows re-checks read capability per record and projects allowed
// fields. Unauthorized records are dropped without error: exclusion, not
// failure.
func (s *Service) projectRows(ctx context.Context, auth domain.AuthContext, desc registry.ListDescriptor, candidates []record.Record) ([]Row, int, error) {
	rows := make([]Row, 0, len(candidates))
	dropped := 0
	for _, rec := range candidates {
		readable, err := s.caps.CanAccessRecord(ctx, auth, rec, domain.CapabilityRead)
		if err != nil {
			return nil, 0, dErrors.Wrap(err, dErrors.CodeInternal, "record capability check failed")
		}
		if !readable {
			dropped++
			continue
		}

		row := Row{
			ID:         rec.ID,
			ObjectType: rec.Table,
			Fields:     make(map[string]FieldValue, len(desc.AllowedFields)),
		}
		for _, field := range desc.AllowedFields {
			v, ok := rec.Field(field)
			if !ok {
				// Field missing on the record (or withheld by the store):
				// omit silently rather than erroring, so a projection can
				// never leak whether a field exists.
				continue
			}
			row.Fields[field] = FieldValue{Value: v, Display: displayValue(v)}
		}
		if dv, ok := rec.Field(desc.DisplayField); ok {
			row.Display = displayValue(dv)
		}
		rows = append(rows, row)
	}
	return rows, dropped, nil
}

func (s *Service) countRejection(reason string) {
	if s.metrics != nil {
		s.metrics.QueriesRejected.WithLabelValues(reason).Inc()
	}
}

func displayValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	}
	return record.Display(v)
}
