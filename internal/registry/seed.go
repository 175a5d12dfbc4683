package registry

import (
	"recordgate/internal/record"
	"recordgate/pkg/domain"
)

// DefaultLists is the built-in allow-list configuration. Deployments replace
// it with their own; tests lean on it for realistic descriptors.
func DefaultLists() []ListDescriptor {
	return []ListDescriptor{
		{
			ID:           "incident.active",
			Table:        "incident",
			DisplayField: "title",
			AllowedFields: []string{
				"title", "status", "severity", "assignee", "active", "created_at",
			},
			AllowedSortFields:   []string{"created_at", "severity", "status"},
			IndexedSearchFields: []string{"title"},
			DefaultFilters: []record.Filter{
				{Field: "active", Op: record.OpEq, Value: true},
			},
		},
		{
			ID:           "incident.all",
			Table:        "incident",
			DisplayField: "title",
			AllowedFields: []string{
				"title", "status", "severity", "assignee", "active", "resolution", "created_at",
			},
			AllowedSortFields:   []string{"created_at", "severity", "status"},
			IndexedSearchFields: []string{"title", "resolution"},
		},
		{
			ID:                "customer.directory",
			Table:             "customer",
			DisplayField:      "name",
			AllowedFields:     []string{"name", "region", "tier"},
			AllowedSortFields: []string{"name", "created_at"},
			// No indexed search fields: the customer table has no search
			// index, so search requests against this list are rejected.
		},
	}
}

// DefaultActions is the built-in action configuration.
func DefaultActions() []ActionDescriptor {
	return []ActionDescriptor{
		{
			ID:               "incident.resolve",
			Kind:             KindSetField,
			Capability:       domain.CapabilityWrite,
			ApplicableTables: []string{"incident"},
			BulkCapable:      true,
			MaxBulkRecords:   50,
			StaticFields:     map[string]any{"status": "resolved", "active": false},
		},
		{
			ID:               "incident.assign",
			Kind:             KindAssign,
			Capability:       domain.CapabilityWrite,
			ApplicableTables: []string{"incident"},
			BulkCapable:      true,
			RequiredParams:   []string{"assignee"},
		},
		{
			ID:                    "record.delete",
			Kind:                  KindDelete,
			Capability:            domain.CapabilityDelete,
			JustificationRequired: true,
			RequiredRole:          domain.RoleSupervisor,
		},
		{
			ID:                    "record.bulk_delete",
			Kind:                  KindDelete,
			Capability:            domain.CapabilityDelete,
			JustificationRequired: true,
			RequiredRole:          domain.RoleSupervisor,
			BulkCapable:           true,
			MaxBulkRecords:        50,
		},
	}
}
