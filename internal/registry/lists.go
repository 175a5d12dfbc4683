// Package registry holds the immutable allow-list and action registries.
// Both are constructed once at startup and injected into services; nothing
// mutates them at runtime, so concurrent reads need no locking.
package registry

import (
	"fmt"

	"recordgate/internal/record"
	dErrors "recordgate/pkg/domain-errors"
	pkgstrings "recordgate/pkg/platform/strings"
)

// ListDescriptor is the allow-list entry for one queryable data set. Every
// query is validated against it before the record store is touched.
type ListDescriptor struct {
	// ID is the list key clients query by, e.g. "incident.active".
	ID string
	// Table is the backing record store table.
	Table string
	// DisplayField is projected as the row's display value.
	DisplayField string
	// AllowedFields are the only fields filters may reference and projection
	// may return.
	AllowedFields []string
	// AllowedSortFields are the only fields sorting may reference.
	AllowedSortFields []string
	// IndexedSearchFields back free-text search. Empty means the list does
	// not support search.
	IndexedSearchFields []string
	// DefaultFilters are applied before caller filters on every query.
	DefaultFilters []record.Filter

	allowedFields map[string]struct{}
	allowedSort   map[string]struct{}
}

// FieldAllowed reports whether a field may be filtered on or projected.
func (d ListDescriptor) FieldAllowed(field string) bool {
	_, ok := d.allowedFields[field]
	return ok
}

// SortAllowed reports whether a field may be sorted on.
func (d ListDescriptor) SortAllowed(field string) bool {
	_, ok := d.allowedSort[field]
	return ok
}

// Searchable reports whether the list supports free-text search.
func (d ListDescriptor) Searchable() bool {
	return len(d.IndexedSearchFields) > 0
}

// ListRegistry is the immutable map of list descriptors.
type ListRegistry struct {
	lists map[string]ListDescriptor
}

// NewListRegistry validates and indexes the descriptors. Construction is the
// only place invariants are checked; after this the registry is read-only.
func NewListRegistry(descriptors ...ListDescriptor) (*ListRegistry, error) {
	lists := make(map[string]ListDescriptor, len(descriptors))
	for _, d := range descriptors {
		if d.ID == "" {
			return nil, fmt.Errorf("list descriptor missing id")
		}
		if d.Table == "" {
			return nil, fmt.Errorf("list %q: backing table is required", d.ID)
		}
		if d.DisplayField == "" {
			return nil, fmt.Errorf("list %q: display field is required", d.ID)
		}
		if _, exists := lists[d.ID]; exists {
			return nil, fmt.Errorf("duplicate list id %q", d.ID)
		}

		d.AllowedFields = pkgstrings.DedupeAndTrim(d.AllowedFields)
		d.AllowedSortFields = pkgstrings.DedupeAndTrim(d.AllowedSortFields)
		d.IndexedSearchFields = pkgstrings.DedupeAndTrim(d.IndexedSearchFields)
		d.allowedFields = toSet(d.AllowedFields)
		d.allowedSort = toSet(d.AllowedSortFields)

		if !d.FieldAllowed(d.DisplayField) {
			return nil, fmt.Errorf("list %q: display field %q not in allowed fields", d.ID, d.DisplayField)
		}
		for _, field := range d.AllowedSortFields {
			if !d.FieldAllowed(field) && field != "created_at" {
				return nil, fmt.Errorf("list %q: sort field %q not in allowed fields", d.ID, field)
			}
		}
		for _, field := range d.IndexedSearchFields {
			if !d.FieldAllowed(field) {
				return nil, fmt.Errorf("list %q: search field %q not in allowed fields", d.ID, field)
			}
		}
		for _, f := range d.DefaultFilters {
			if err := f.Validate(); err != nil {
				return nil, fmt.Errorf("list %q: default filter on %q: %w", d.ID, f.Field, err)
			}
		}

		lists[d.ID] = d
	}
	return &ListRegistry{lists: lists}, nil
}

// Resolve returns the descriptor for a list key. Unknown keys reject the
// whole request before any record store access.
func (r *ListRegistry) Resolve(listKey string) (ListDescriptor, error) {
	d, ok := r.lists[listKey]
	if !ok {
		return ListDescriptor{}, dErrors.Newf(dErrors.CodeValidation, "unknown list key %q", listKey)
	}
	return d, nil
}

// All returns every descriptor, for registry introspection endpoints.
func (r *ListRegistry) All() []ListDescriptor {
	out := make([]ListDescriptor, 0, len(r.lists))
	for _, d := range r.lists {
		out = append(out, d)
	}
	return out
}

func toSet(fields []string) map[string]struct{} {
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}
