package action

import (
	"fmt"
	"strings"

	"recordgate/internal/record"
	"recordgate/internal/registry"
	dErrors "recordgate/pkg/domain-errors"
)

// MutationHandler turns a resolved action invocation into one store-level
// mutation. Handlers see the loaded record, so they can reference its current
// state, but they never touch the store themselves.
type MutationHandler func(desc registry.ActionDescriptor, rec record.Record, params map[string]any) (record.Mutation, error)

// handlerSet maps action kinds to their handlers. Built once at service
// construction and checked against the registry there, so a descriptor with
// an unhandled kind fails at startup instead of at dispatch time.
type handlerSet map[registry.ActionKind]MutationHandler

func defaultHandlers() handlerSet {
	return handlerSet{
		registry.KindSetField: handleSetField,
		registry.KindAssign:   handleAssign,
		registry.KindDelete:   handleDelete,
	}
}

// verify checks that every kind the registry uses has a handler.
func (h handlerSet) verify(reg *registry.ActionRegistry) error {
	for _, d := range reg.All() {
		if _, ok := h[d.Kind]; !ok {
			return fmt.Errorf("no mutation handler for action kind %q (action %q)", d.Kind, d.ID)
		}
	}
	return nil
}

// handleSetField writes the descriptor's static field values.
func handleSetField(desc registry.ActionDescriptor, rec record.Record, _ map[string]any) (record.Mutation, error) {
	fields := make(map[string]any, len(desc.StaticFields))
	for k, v := range desc.StaticFields {
		fields[k] = v
	}
	return record.Mutation{
		Table:     rec.Table,
		RecordID:  rec.ID,
		SetFields: fields,
	}, nil
}

// handleAssign sets the assignee from the request parameter.
func handleAssign(desc registry.ActionDescriptor, rec record.Record, params map[string]any) (record.Mutation, error) {
	if err := requireParams(desc, params); err != nil {
		return record.Mutation{}, err
	}
	assignee, ok := params["assignee"].(string)
	if !ok || strings.TrimSpace(assignee) == "" {
		return record.Mutation{}, dErrors.New(dErrors.CodeValidation, "param \"assignee\" must be a non-empty string")
	}
	return record.Mutation{
		Table:     rec.Table,
		RecordID:  rec.ID,
		SetFields: map[string]any{"assignee": strings.TrimSpace(assignee)},
	}, nil
}

// handleDelete removes the record.
func handleDelete(_ registry.ActionDescriptor, rec record.Record, _ map[string]any) (record.Mutation, error) {
	return record.Mutation{
		Table:    rec.Table,
		RecordID: rec.ID,
		Delete:   true,
	}, nil
}

func requireParams(desc registry.ActionDescriptor, params map[string]any) error {
	for _, name := range desc.RequiredParams {
		if _, ok := params[name]; !ok {
			return dErrors.Newf(dErrors.CodeValidation, "param %q is required for action %q", name, desc.ID)
		}
	}
	return nil
}
