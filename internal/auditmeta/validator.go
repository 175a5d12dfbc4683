package auditmeta

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mssola/useragent"

	"recordgate/pkg/domain"
)

const (
	justificationMinLen = 10
	justificationMaxLen = 1000

	// Clock-skew tolerances. Outside them the timestamp is flagged, not
	// rejected: client clocks drift, and the evidence keeps the server time
	// anyway.
	maxTimestampAge    = time.Hour
	maxTimestampFuture = time.Minute
)

// storageMarkerKeys are metadata keys that only appear when a client has
// persisted audit content in browser storage. Their presence is a hard
// security failure regardless of everything else.
var storageMarkerKeys = []string{
	"local_storage",
	"session_storage",
	"persisted_audit",
	"cached_justification",
	"storage_snapshot",
}

// storageMarkerPatterns are substrings scanned for inside free-text metadata
// values.
var storageMarkerPatterns = []string{
	"localstorage",
	"sessionstorage",
	"indexeddb",
}

// Result is the outcome of a metadata validation pass. Warnings never flip
// Valid; they ride along into the evidence entry.
type Result struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

func (r *Result) addError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Valid = false
}

func (r *Result) addWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// Validator enforces the audit metadata contract. It is constructed once
// with the justification-required action set derived from the action
// registry.
type Validator struct {
	justificationRequired map[string]bool
}

// NewValidator builds a Validator over the given justification-required set.
func NewValidator(justificationRequired map[string]bool) *Validator {
	if justificationRequired == nil {
		justificationRequired = map[string]bool{}
	}
	return &Validator{justificationRequired: justificationRequired}
}

// Validate checks presence and shape of every mandatory field and that the
// invocation type matches what the endpoint expects. now anchors the
// clock-skew check.
func (v *Validator) Validate(m *Metadata, expected domain.InvocationType, now time.Time) Result {
	result := Result{Valid: true}
	if m == nil {
		result.addError("audit metadata is required")
		return result
	}

	if m.SourceComponent == "" {
		result.addError("source_component is required")
	} else if m.SourceComponent != SourceComponent {
		result.addError("source_component is not an authorized origin")
	}

	if m.ListKey == "" {
		result.addError("list_key is required")
	}

	// Null is an acceptable value; a missing key is not.
	if !m.ViewID.Present {
		result.addError("view_id must be present (null is allowed, absence is not)")
	}

	if m.ClientCorrelationID == "" {
		result.addError("client_correlation_id is required")
	} else if _, err := domain.ParseCorrelationID(m.ClientCorrelationID); err != nil {
		result.addError("client_correlation_id does not match the required pattern")
	}

	if !m.InvocationType.IsValid() {
		result.addError("invocation_type must be 'row' or 'bulk'")
	} else if m.InvocationType != expected {
		result.addError("invocation_type does not match the invoked endpoint")
	}

	if m.ActionID == "" {
		result.addError("action_id is required")
	}

	if len(m.RecordIDs) == 0 {
		result.addError("record_ids must be non-empty")
	}

	if expected == domain.InvocationBulk {
		switch {
		case m.SelectionCount == nil:
			result.addError("selection_count is required for bulk invocations")
		case *m.SelectionCount <= 0:
			result.addError("selection_count must be a positive integer")
		case *m.SelectionCount != len(m.RecordIDs):
			result.addError("selection_count does not match the number of record ids")
		}
	}

	v.validateTimestamp(m.Timestamp, now, &result)
	v.validateUserAgent(m.UserAgent, &result)

	return result
}

func (v *Validator) validateTimestamp(ts string, now time.Time, result *Result) {
	if ts == "" {
		result.addError("timestamp is required")
		return
	}
	parsed, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		result.addError("timestamp must be RFC 3339")
		return
	}
	if now.Sub(parsed) > maxTimestampAge {
		result.addWarning("timestamp is more than an hour old")
	}
	if parsed.Sub(now) > maxTimestampFuture {
		result.addWarning("timestamp is more than a minute in the future")
	}
}

func (v *Validator) validateUserAgent(ua string, result *Result) {
	if ua == "" {
		result.addError("user_agent is required")
		return
	}
	parsed := useragent.New(ua)
	if parsed.Bot() {
		result.addWarning("user agent identifies as a bot")
	}
}

// ValidateJustification enforces the per-action justification rule: actions
// in the justification-required set need non-blank text within the length
// bounds; every other action passes regardless of content.
func (v *Validator) ValidateJustification(actionID, justification string) Result {
	result := Result{Valid: true}
	if !v.justificationRequired[actionID] {
		return result
	}

	// Length bounds count characters, not bytes, so multibyte text is
	// measured the way the writer sees it.
	trimmed := strings.TrimSpace(justification)
	switch {
	case trimmed == "":
		result.addError("justification is required for this action")
	case utf8.RuneCountInString(trimmed) < justificationMinLen:
		result.addError("justification must be at least 10 characters")
	case utf8.RuneCountInString(trimmed) > justificationMaxLen:
		result.addError("justification must be at most 1000 characters")
	}
	return result
}

// ValidateNoClientSideStorage scans for markers indicating the caller
// persisted audit content client-side. Any match is a hard security failure,
// independent of the other checks.
func (v *Validator) ValidateNoClientSideStorage(m *Metadata) Result {
	result := Result{Valid: true}
	if m == nil {
		return result
	}

	for key := range m.Extra {
		lower := strings.ToLower(key)
		for _, marker := range storageMarkerKeys {
			if lower == marker {
				result.addError("metadata contains client-side storage marker field: " + key)
			}
		}
	}

	for _, text := range []string{m.Justification, m.UserAgent, m.ListKey} {
		lower := strings.ToLower(text)
		for _, pattern := range storageMarkerPatterns {
			if strings.Contains(lower, pattern) {
				result.addError("metadata value references client-side storage")
			}
		}
	}
	for _, raw := range m.Extra {
		lower := strings.ToLower(string(raw))
		for _, pattern := range storageMarkerPatterns {
			if strings.Contains(lower, pattern) {
				result.addError("metadata value references client-side storage")
			}
		}
	}
	return result
}
