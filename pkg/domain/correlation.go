package domain

import (
	"regexp"

	"github.com/google/uuid"

	dErrors "recordgate/pkg/domain-errors"
)

// CorrelationID threads one logical operation across caller and service.
// Invariant: lowercase alphanumeric segments separated by hyphens, 8 to 64
// characters total. A bare UUID satisfies the pattern, so both client-minted
// structured ids and server-minted UUIDs are valid.
type CorrelationID string

var correlationPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// NewCorrelationID mints a server-side correlation id.
func NewCorrelationID() CorrelationID {
	return CorrelationID(uuid.NewString())
}

// ParseCorrelationID constructs a CorrelationID from external input.
func ParseCorrelationID(s string) (CorrelationID, error) {
	c := CorrelationID(s)
	if !c.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation,
			"correlation id must be 8-64 lowercase alphanumeric characters with hyphen separators")
	}
	return c, nil
}

// IsValid checks the structural pattern without allocating.
func (c CorrelationID) IsValid() bool {
	if len(c) < 8 || len(c) > 64 {
		return false
	}
	return correlationPattern.MatchString(string(c))
}

func (c CorrelationID) String() string {
	return string(c)
}
