package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and the record-store
// boundary return these (optionally wrapped) so services can translate them
// into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store
// - ErrConflict: uniqueness or state conflict in store
// - ErrPermissionDenied: the record store's capability check refused access
// - ErrInvalidState: entity in wrong state for requested operation
// - ErrUnavailable: store or sink temporarily unreachable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors.
var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidState     = errors.New("invalid state")
	ErrUnavailable      = errors.New("unavailable")
)
