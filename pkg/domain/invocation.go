package domain

import dErrors "recordgate/pkg/domain-errors"

// InvocationType distinguishes a single-record action call from a bulk call.
// Audit metadata must carry the type matching the endpoint it arrived on.
type InvocationType string

const (
	InvocationRow  InvocationType = "row"
	InvocationBulk InvocationType = "bulk"
)

// ParseInvocationType constructs an InvocationType from external input.
func ParseInvocationType(s string) (InvocationType, error) {
	switch InvocationType(s) {
	case InvocationRow:
		return InvocationRow, nil
	case InvocationBulk:
		return InvocationBulk, nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "invocation type must be 'row' or 'bulk'")
}

// IsValid checks if the invocation type is one of the supported values.
func (t InvocationType) IsValid() bool {
	return t == InvocationRow || t == InvocationBulk
}

func (t InvocationType) String() string {
	return string(t)
}
