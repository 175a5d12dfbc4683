package registry

import (
	"fmt"

	dErrors "recordgate/pkg/domain-errors"
	"recordgate/pkg/domain"
)

// ActionKind tags the mutation behavior of an action. The execution service
// registers one handler per kind, so an unhandled kind fails at startup
// rather than at dispatch time.
type ActionKind string

const (
	// KindSetField writes descriptor-defined field values to the record.
	KindSetField ActionKind = "set_field"
	// KindAssign sets the record's assignee from a request parameter.
	KindAssign ActionKind = "assign"
	// KindDelete removes the record.
	KindDelete ActionKind = "delete"
)

var validActionKinds = map[ActionKind]bool{
	KindSetField: true,
	KindAssign:   true,
	KindDelete:   true,
}

// ActionDescriptor is the registry entry for one mutation intent. The
// registry is the sole authorization surface for mutations: an action id
// absent from it can never execute, whatever the caller's capabilities.
type ActionDescriptor struct {
	// ID is the action identifier clients invoke, e.g. "incident.resolve".
	ID string
	// Kind selects the mutation handler.
	Kind ActionKind
	// Capability is the record-store access level re-checked per record.
	Capability domain.Capability
	// ApplicableTables limits the action to specific tables. Empty means any
	// table (wildcard).
	ApplicableTables []string
	// JustificationRequired forces a non-blank justification in the audit
	// metadata before the action may run.
	JustificationRequired bool
	// RequiredRole, when set, must be held by the caller on top of the
	// capability check.
	RequiredRole domain.Role
	// BulkCapable permits invocation through the bulk endpoint.
	BulkCapable bool
	// MaxBulkRecords lowers the global bulk ceiling for this action.
	// Zero means no action-specific cap.
	MaxBulkRecords int
	// RequiredParams are request parameters the action cannot run without.
	RequiredParams []string
	// StaticFields are the field values a set_field action writes.
	StaticFields map[string]any

	applicable map[string]struct{}
}

// AppliesTo reports whether the action may run against the table.
func (d ActionDescriptor) AppliesTo(table string) bool {
	if len(d.applicable) == 0 {
		return true
	}
	_, ok := d.applicable[table]
	return ok
}

// ActionRegistry is the immutable map of action descriptors.
type ActionRegistry struct {
	actions map[string]ActionDescriptor
}

// NewActionRegistry validates and indexes the descriptors.
func NewActionRegistry(descriptors ...ActionDescriptor) (*ActionRegistry, error) {
	actions := make(map[string]ActionDescriptor, len(descriptors))
	for _, d := range descriptors {
		if d.ID == "" {
			return nil, fmt.Errorf("action descriptor missing id")
		}
		if !validActionKinds[d.Kind] {
			return nil, fmt.Errorf("action %q: unknown kind %q", d.ID, d.Kind)
		}
		if !d.Capability.IsValid() {
			return nil, fmt.Errorf("action %q: invalid capability %q", d.ID, d.Capability)
		}
		if _, exists := actions[d.ID]; exists {
			return nil, fmt.Errorf("duplicate action id %q", d.ID)
		}
		if d.MaxBulkRecords < 0 {
			return nil, fmt.Errorf("action %q: negative bulk cap", d.ID)
		}
		if d.MaxBulkRecords > 0 && !d.BulkCapable {
			return nil, fmt.Errorf("action %q: bulk cap on non-bulk action", d.ID)
		}
		if d.Kind == KindSetField && len(d.StaticFields) == 0 {
			return nil, fmt.Errorf("action %q: set_field actions need static fields", d.ID)
		}

		d.applicable = toSet(d.ApplicableTables)
		actions[d.ID] = d
	}
	return &ActionRegistry{actions: actions}, nil
}

// Resolve returns the descriptor for an action id. Unknown ids are always
// rejected; there is no fallback execution path.
func (r *ActionRegistry) Resolve(actionID string) (ActionDescriptor, error) {
	d, ok := r.actions[actionID]
	if !ok {
		return ActionDescriptor{}, dErrors.Newf(dErrors.CodeValidation, "unknown action %q", actionID)
	}
	return d, nil
}

// ResolveForTable resolves the descriptor and checks table applicability in
// one step, the common path for row execution.
func (r *ActionRegistry) ResolveForTable(actionID, table string) (ActionDescriptor, error) {
	d, err := r.Resolve(actionID)
	if err != nil {
		return ActionDescriptor{}, err
	}
	if !d.AppliesTo(table) {
		return ActionDescriptor{}, dErrors.Newf(dErrors.CodeValidation,
			"action %q does not apply to table %q", actionID, table)
	}
	return d, nil
}

// JustificationRequiredSet returns the ids of all actions that demand a
// justification. The audit metadata validator checks against this set.
func (r *ActionRegistry) JustificationRequiredSet() map[string]bool {
	set := make(map[string]bool)
	for id, d := range r.actions {
		if d.JustificationRequired {
			set[id] = true
		}
	}
	return set
}

// All returns every descriptor, for registry introspection endpoints.
func (r *ActionRegistry) All() []ActionDescriptor {
	out := make([]ActionDescriptor, 0, len(r.actions))
	for _, d := range r.actions {
		out = append(out, d)
	}
	return out
}
