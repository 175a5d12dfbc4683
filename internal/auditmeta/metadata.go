// Package auditmeta validates the audit metadata attached to every mutating
// action. The validator is deliberately strict: evidence written from
// incomplete metadata is worse than a rejected action.
package auditmeta

import (
	"encoding/json"

	"recordgate/pkg/domain"
)

// SourceComponent is the single authorized origin for action requests. Any
// other value is treated as a forged or misrouted request.
const SourceComponent = "record-console"

// NullableString distinguishes an explicitly-null JSON field from an absent
// one. The view id is nullable but must always be present: a client that
// omits it entirely is not following the audit contract.
type NullableString struct {
	Present bool
	Value   *string
}

// UnmarshalJSON only runs when the key exists, which is exactly the presence
// signal we need.
func (n *NullableString) UnmarshalJSON(data []byte) error {
	n.Present = true
	if string(data) == "null" {
		n.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	n.Value = &s
	return nil
}

// MarshalJSON round-trips the null/value distinction.
func (n NullableString) MarshalJSON() ([]byte, error) {
	if n.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*n.Value)
}

// Metadata is the audit envelope for one action invocation. Timestamp stays a
// string so the validator owns parsing and can warn on skew instead of
// failing at decode time.
type Metadata struct {
	SourceComponent     string                `json:"source_component"`
	ListKey             string                `json:"list_key"`
	ViewID              NullableString        `json:"view_id"`
	ClientCorrelationID string                `json:"client_correlation_id"`
	InvocationType      domain.InvocationType `json:"invocation_type"`
	SelectionCount      *int                  `json:"selection_count,omitempty"`
	Justification       string                `json:"justification,omitempty"`
	Timestamp           string                `json:"timestamp"`
	UserAgent           string                `json:"user_agent"`
	ActionID            string                `json:"action_id"`
	RecordIDs           []string              `json:"record_ids"`

	// Extra captures keys outside the contract. The client-side-storage scan
	// runs over it; anything else there is ignored.
	Extra map[string]json.RawMessage `json:"-"`
}

// metadataAlias avoids UnmarshalJSON recursion.
type metadataAlias Metadata

var knownMetadataKeys = map[string]bool{
	"source_component":      true,
	"list_key":              true,
	"view_id":               true,
	"client_correlation_id": true,
	"invocation_type":       true,
	"selection_count":       true,
	"justification":         true,
	"timestamp":             true,
	"user_agent":            true,
	"action_id":             true,
	"record_ids":            true,
}

// UnmarshalJSON decodes the contract fields and keeps every unknown key in
// Extra so the storage-marker scan sees exactly what the client sent.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var alias metadataAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for key := range raw {
		if knownMetadataKeys[key] {
			delete(raw, key)
		}
	}
	alias.Extra = raw

	*m = Metadata(alias)
	return nil
}

// MarshalJSON emits only the contract fields; Extra never round-trips into
// evidence.
func (m Metadata) MarshalJSON() ([]byte, error) {
	return json.Marshal(metadataAlias(m))
}
