// Package record defines the typed boundary to the underlying record store.
// The governance layer validates and authorizes on top of this boundary; it
// never reimplements the store's storage engine or capability rules.
package record

import (
	"time"
)

// Record is one row of a governed table. Fields carries the raw column
// values; projection to allow-listed fields happens in the query service.
type Record struct {
	ID        string
	Table     string
	Fields    map[string]any
	CreatedAt time.Time
}

// Field returns a field value, with the id and creation timestamp addressable
// under their conventional names.
func (r Record) Field(name string) (any, bool) {
	switch name {
	case "id":
		return r.ID, true
	case "created_at":
		return r.CreatedAt, true
	}
	v, ok := r.Fields[name]
	return v, ok
}

// Mutation describes one store-level change to a single record.
// Exactly one of SetFields or Delete is populated.
type Mutation struct {
	Table     string
	RecordID  string
	SetFields map[string]any
	Delete    bool
}
