// Package query implements the allow-list-gated query service.
package query

import (
	"strings"

	"recordgate/internal/record"
	"recordgate/pkg/domain"
	dErrors "recordgate/pkg/domain-errors"
)

// PageRequest is the caller's pagination input. Size is clamped to the server
// ceiling before execution, whatever the caller asked for.
type PageRequest struct {
	Size   int `json:"size"`
	Offset int `json:"offset"`
}

// RequestContext carries client-side tracing fields. ViewID is nullable but
// the field itself travels with every request.
type RequestContext struct {
	ViewID        *string `json:"view_id"`
	CorrelationID string  `json:"correlation_id"`
}

// Request is one list query.
type Request struct {
	ListKey string            `json:"list_key"`
	Filters []record.Filter   `json:"filters,omitempty"`
	Sort    []record.SortSpec `json:"sort,omitempty"`
	Search  string            `json:"search,omitempty"`
	Page    PageRequest       `json:"page"`
	Context RequestContext    `json:"context"`
}

// Normalize trims free-text inputs in place.
func (r *Request) Normalize() {
	if r == nil {
		return
	}
	r.ListKey = strings.TrimSpace(r.ListKey)
	r.Search = strings.TrimSpace(r.Search)
}

// Follows validation order: Size -> Required -> Syntax -> Semantic.
// Allow-list membership is semantic and belongs to the service, which holds
// the registry; Validate covers everything checkable without it.
func (r *Request) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}

	if len(r.Filters) > 32 {
		return dErrors.New(dErrors.CodeValidation, "at most 32 filters per query")
	}
	if len(r.Sort) > 4 {
		return dErrors.New(dErrors.CodeValidation, "at most 4 sort keys per query")
	}
	if len(r.Search) > 256 {
		return dErrors.New(dErrors.CodeValidation, "search text must be 256 characters or less")
	}

	if r.ListKey == "" {
		return dErrors.New(dErrors.CodeValidation, "list key is required")
	}

	if _, err := domain.ParseCorrelationID(r.Context.CorrelationID); err != nil {
		return err
	}
	if r.Page.Size < 0 {
		return dErrors.New(dErrors.CodeValidation, "page size cannot be negative")
	}
	if r.Page.Offset < 0 {
		return dErrors.New(dErrors.CodeValidation, "page offset cannot be negative")
	}

	for _, f := range r.Filters {
		if err := f.Validate(); err != nil {
			return err
		}
	}
	for _, s := range r.Sort {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// FieldValue is one projected field as a raw value plus display form.
type FieldValue struct {
	Value   any    `json:"value"`
	Display string `json:"display"`
}

// Row is one projected result record. Only allow-listed fields appear in
// Fields; fields the caller may not read are omitted without error.
type Row struct {
	ID         string                `json:"id"`
	ObjectType string                `json:"object_type"`
	Display    string                `json:"display"`
	Fields     map[string]FieldValue `json:"fields"`
}

// Response is the query result. NextCursor is the offset of the next page and
// is only set when the current page came back exactly full.
type Response struct {
	Rows          []Row  `json:"rows"`
	NextCursor    *int   `json:"next_cursor,omitempty"`
	Total         *int   `json:"total,omitempty"`
	CorrelationID string `json:"correlation_id"`
}
