package record

import (
	"context"
	"sort"
	"strings"
	"sync"

	"recordgate/pkg/domain"
	"recordgate/pkg/platform/sentinel"
)

// TableRule decides table-level access for the in-memory store.
type TableRule func(auth domain.AuthContext, table string, cap domain.Capability) bool

// RecordRule decides record-level access for the in-memory store.
type RecordRule func(auth domain.AuthContext, rec Record, cap domain.Capability) bool

// MutationHook runs before each mutation; returning an error fails that
// mutation. Tests use it to induce per-record failures.
type MutationHook func(m Mutation) error

// MemoryStore implements Store and CapabilityChecker on plain maps.
// Dev and test backend; production uses PostgresStore.
type MemoryStore struct {
	mu     sync.RWMutex
	tables map[string]map[string]Record

	tableRule    TableRule
	recordRule   RecordRule
	mutationHook MutationHook
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithTableRule overrides the table-level capability rule.
func WithTableRule(rule TableRule) MemoryOption {
	return func(s *MemoryStore) {
		if rule != nil {
			s.tableRule = rule
		}
	}
}

// WithRecordRule overrides the record-level capability rule.
func WithRecordRule(rule RecordRule) MemoryOption {
	return func(s *MemoryStore) {
		if rule != nil {
			s.recordRule = rule
		}
	}
}

// WithMutationHook installs a pre-mutation hook.
func WithMutationHook(hook MutationHook) MemoryOption {
	return func(s *MemoryStore) {
		s.mutationHook = hook
	}
}

// NewMemoryStore creates an empty in-memory record store. The default
// capability rule grants everything to authenticated callers and nothing to
// anonymous ones.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		tables:     make(map[string]map[string]Record),
		tableRule:  func(auth domain.AuthContext, _ string, _ domain.Capability) bool { return !auth.Anonymous() },
		recordRule: func(auth domain.AuthContext, _ Record, _ domain.Capability) bool { return !auth.Anonymous() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Seed inserts records directly, bypassing capability checks. Test setup only.
func (s *MemoryStore) Seed(records ...Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		table, ok := s.tables[r.Table]
		if !ok {
			table = make(map[string]Record)
			s.tables[r.Table] = table
		}
		table[r.ID] = cloneRecord(r)
	}
}

// Select evaluates filters, search, and sort in memory. Order is
// deterministic: the requested sort keys, then record id as tiebreaker.
func (s *MemoryStore) Select(ctx context.Context, q Query) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []Record
	for _, r := range s.tables[q.Table] {
		if !matchesAll(r, q.Filters) {
			continue
		}
		if q.Search != "" && !matchesSearch(r, q.Search, q.SearchFields) {
			continue
		}
		matched = append(matched, cloneRecord(r))
	}

	sortRecords(matched, q.Sort)

	if q.Page.Offset >= len(matched) {
		return nil, nil
	}
	matched = matched[q.Page.Offset:]
	if q.Page.Size > 0 && len(matched) > q.Page.Size {
		matched = matched[:q.Page.Size]
	}
	return matched, nil
}

// Get loads one record by table and id.
func (s *MemoryStore) Get(ctx context.Context, table, id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.tables[table][id]
	if !ok {
		return Record{}, sentinel.ErrNotFound
	}
	return cloneRecord(r), nil
}

// Mutate applies one field update or delete.
func (s *MemoryStore) Mutate(ctx context.Context, m Mutation) (Record, error) {
	if s.mutationHook != nil {
		if err := s.mutationHook(m); err != nil {
			return Record{}, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	table, ok := s.tables[m.Table]
	if !ok {
		return Record{}, sentinel.ErrNotFound
	}
	r, ok := table[m.RecordID]
	if !ok {
		return Record{}, sentinel.ErrNotFound
	}

	if m.Delete {
		delete(table, m.RecordID)
		return cloneRecord(r), nil
	}

	updated := cloneRecord(r)
	for k, v := range m.SetFields {
		updated.Fields[k] = v
	}
	table[m.RecordID] = updated
	return cloneRecord(updated), nil
}

// CanAccessTable applies the configured table rule.
func (s *MemoryStore) CanAccessTable(ctx context.Context, auth domain.AuthContext, table string, cap domain.Capability) (bool, error) {
	return s.tableRule(auth, table, cap), nil
}

// CanAccessRecord applies the configured record rule.
func (s *MemoryStore) CanAccessRecord(ctx context.Context, auth domain.AuthContext, rec Record, cap domain.Capability) (bool, error) {
	return s.recordRule(auth, rec, cap), nil
}

func matchesAll(r Record, filters []Filter) bool {
	for _, f := range filters {
		if !f.Matches(r) {
			return false
		}
	}
	return true
}

func matchesSearch(r Record, search string, fields []string) bool {
	needle := strings.ToLower(search)
	for _, field := range fields {
		v, ok := r.Field(field)
		if !ok {
			continue
		}
		if strings.Contains(strings.ToLower(stringify(v)), needle) {
			return true
		}
	}
	return false
}

func sortRecords(records []Record, keys []SortSpec) {
	sort.SliceStable(records, func(i, j int) bool {
		for _, key := range keys {
			vi, _ := records[i].Field(key.Field)
			vj, _ := records[j].Field(key.Field)
			cmp := compareValues(vi, vj)
			if cmp == 0 {
				continue
			}
			if key.Direction == SortDesc {
				return cmp > 0
			}
			return cmp < 0
		}
		return records[i].ID < records[j].ID
	})
}

func cloneRecord(r Record) Record {
	fields := make(map[string]any, len(r.Fields))
	for k, v := range r.Fields {
		fields[k] = v
	}
	r.Fields = fields
	return r
}
