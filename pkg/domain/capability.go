package domain

import dErrors "recordgate/pkg/domain-errors"

// Capability is the record-store access level an action or query needs.
// Invariant: the value must be one of the supported capabilities.
//
// Usage: construct via ParseCapability at trust boundaries to enforce the
// allowlist; direct casting bypasses validation.
type Capability string

const (
	CapabilityRead   Capability = "read"
	CapabilityWrite  Capability = "write"
	CapabilityDelete Capability = "delete"
	CapabilityAdmin  Capability = "admin"
)

// validCapabilities is the single source of truth for valid capabilities.
var validCapabilities = map[Capability]bool{
	CapabilityRead:   true,
	CapabilityWrite:  true,
	CapabilityDelete: true,
	CapabilityAdmin:  true,
}

// ParseCapability constructs a Capability from external input.
func ParseCapability(s string) (Capability, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeValidation, "capability cannot be empty")
	}
	c := Capability(s)
	if !c.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "invalid capability")
	}
	return c, nil
}

// IsValid checks if the capability is one of the supported enum values.
func (c Capability) IsValid() bool {
	return validCapabilities[c]
}

func (c Capability) String() string {
	return string(c)
}
