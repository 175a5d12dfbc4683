// Package client assembles well-formed query and action requests with the
// audit metadata the server demands. Everything built here is pre-validated
// with the same rules the server applies, so a bad request fails locally
// before it costs a round trip. The server re-validates regardless; local
// checks are a convenience, never an authority.
package client

import (
	"time"

	"recordgate/internal/action"
	"recordgate/internal/auditmeta"
	"recordgate/internal/query"
	"recordgate/internal/record"
	"recordgate/pkg/domain"
	dErrors "recordgate/pkg/domain-errors"
)

// Builder constructs requests for one client session. The user agent is
// fixed per builder; correlation ids are minted per request.
type Builder struct {
	userAgent             string
	justificationRequired map[string]bool
	newID                 func() domain.CorrelationID
	now                   func() time.Time
}

// Option configures a Builder.
type Option func(*Builder)

// WithJustificationRequired mirrors the server's justification-required
// action set for fail-fast checks. Without it, justification rules are left
// entirely to the server.
func WithJustificationRequired(set map[string]bool) Option {
	return func(b *Builder) {
		b.justificationRequired = set
	}
}

// WithIDGenerator overrides correlation id minting, for deterministic tests.
func WithIDGenerator(gen func() domain.CorrelationID) Option {
	return func(b *Builder) {
		b.newID = gen
	}
}

// WithClock overrides the timestamp source, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) {
		b.now = now
	}
}

// NewBuilder constructs a Builder for the given user agent string.
func NewBuilder(userAgent string, opts ...Option) *Builder {
	b := &Builder{
		userAgent: userAgent,
		newID:     domain.NewCorrelationID,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// QueryInput is the caller's view of a list query.
type QueryInput struct {
	ListKey string
	Filters []record.Filter
	Sort    []record.SortSpec
	Search  string
	Page    query.PageRequest
	ViewID  *string
}

// BuildQuery assembles and pre-validates one query request.
func (b *Builder) BuildQuery(in QueryInput) (*query.Request, error) {
	req := &query.Request{
		ListKey: in.ListKey,
		Filters: in.Filters,
		Sort:    in.Sort,
		Search:  in.Search,
		Page:    in.Page,
		Context: query.RequestContext{
			ViewID:        in.ViewID,
			CorrelationID: b.newID().String(),
		},
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}

// RowInput is the caller's view of one row action.
type RowInput struct {
	ActionID      string
	ListKey       string
	ViewID        *string
	Target        action.RowTarget
	Params        map[string]any
	Justification string
}

// BuildRowAction assembles and pre-validates one row action request,
// including its audit metadata.
func (b *Builder) BuildRowAction(in RowInput) (*action.RowRequest, error) {
	req := &action.RowRequest{
		ActionID: in.ActionID,
		Target:   in.Target,
		Params:   in.Params,
		Metadata: b.metadata(in.ActionID, in.ListKey, in.ViewID, in.Justification,
			domain.InvocationRow, []string{in.Target.RecordID}),
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := b.checkMetadata(req.Metadata, in.ActionID, domain.InvocationRow); err != nil {
		return nil, err
	}
	return req, nil
}

// BulkInput is the caller's view of one bulk action.
type BulkInput struct {
	ActionID      string
	ListKey       string
	ViewID        *string
	Targets       []action.RowTarget
	Params        map[string]any
	Justification string
}

// BuildBulkAction assembles and pre-validates one bulk action request. The
// selection count and record id list always come from the same target slice,
// so they cannot drift apart.
func (b *Builder) BuildBulkAction(in BulkInput) (*action.BulkRequest, error) {
	recordIDs := make([]string, 0, len(in.Targets))
	for _, t := range in.Targets {
		recordIDs = append(recordIDs, t.RecordID)
	}

	meta := b.metadata(in.ActionID, in.ListKey, in.ViewID, in.Justification,
		domain.InvocationBulk, recordIDs)
	count := len(recordIDs)
	meta.SelectionCount = &count

	req := &action.BulkRequest{
		ActionID: in.ActionID,
		Targets:  in.Targets,
		Params:   in.Params,
		Metadata: meta,
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := b.checkMetadata(req.Metadata, in.ActionID, domain.InvocationBulk); err != nil {
		return nil, err
	}
	return req, nil
}

func (b *Builder) metadata(actionID, listKey string, viewID *string, justification string,
	invocation domain.InvocationType, recordIDs []string) *auditmeta.Metadata {
	return &auditmeta.Metadata{
		SourceComponent:     auditmeta.SourceComponent,
		ListKey:             listKey,
		ViewID:              auditmeta.NullableString{Present: true, Value: viewID},
		ClientCorrelationID: b.newID().String(),
		InvocationType:      invocation,
		Justification:       justification,
		Timestamp:           b.now().UTC().Format(time.RFC3339),
		UserAgent:           b.userAgent,
		ActionID:            actionID,
		RecordIDs:           recordIDs,
	}
}

// checkMetadata runs the server's metadata validator locally.
func (b *Builder) checkMetadata(m *auditmeta.Metadata, actionID string, expected domain.InvocationType) error {
	v := auditmeta.NewValidator(b.justificationRequired)
	if res := v.Validate(m, expected, b.now()); !res.Valid {
		return dErrors.New(dErrors.CodeValidation, res.Errors[0])
	}
	if res := v.ValidateJustification(actionID, m.Justification); !res.Valid {
		return dErrors.New(dErrors.CodeValidation, res.Errors[0])
	}
	if res := v.ValidateNoClientSideStorage(m); !res.Valid {
		return dErrors.New(dErrors.CodeValidation, res.Errors[0])
	}
	return nil
}
