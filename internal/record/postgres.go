package record

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"recordgate/pkg/domain"
	"recordgate/pkg/platform/sentinel"
)

// PostgresStore implements Store and CapabilityChecker on a generic governed
// schema: all record data lives in the records table with a jsonb field bag,
// table-level capability grants in table_grants, and per-record overrides in
// record_acl.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a record store backed by pgx.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Health checks database reachability.
func (s *PostgresStore) Health(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Schema is the DDL for the governed record schema. Integration tests apply
// it to a fresh database; deployments manage it through their own migrations.
const Schema = `
CREATE TABLE IF NOT EXISTS records (
	table_name TEXT NOT NULL,
	id         TEXT NOT NULL,
	fields     JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (table_name, id)
);

CREATE TABLE IF NOT EXISTS table_grants (
	role       TEXT NOT NULL,
	table_name TEXT NOT NULL,
	capability TEXT NOT NULL,
	PRIMARY KEY (role, table_name, capability)
);

CREATE TABLE IF NOT EXISTS record_acl (
	table_name   TEXT NOT NULL,
	record_id    TEXT NOT NULL,
	capability   TEXT NOT NULL,
	allowed_role TEXT NOT NULL,
	PRIMARY KEY (table_name, record_id, capability, allowed_role)
);
`

// Select compiles the validated query to parameterized SQL.
func (s *PostgresStore) Select(ctx context.Context, q Query) ([]Record, error) {
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(`SELECT id, fields, created_at FROM records WHERE table_name = `)
	args = append(args, q.Table)
	sb.WriteString(placeholder(len(args)))

	for _, f := range q.Filters {
		clause, err := compileFilter(f, &args)
		if err != nil {
			return nil, err
		}
		sb.WriteString(" AND ")
		sb.WriteString(clause)
	}

	if q.Search != "" && len(q.SearchFields) > 0 {
		var ors []string
		args = append(args, "%"+escapeLike(q.Search)+"%")
		needle := placeholder(len(args))
		for _, field := range q.SearchFields {
			ors = append(ors, fmt.Sprintf("%s ILIKE %s", fieldExpr(field), needle))
		}
		sb.WriteString(" AND (")
		sb.WriteString(strings.Join(ors, " OR "))
		sb.WriteString(")")
	}

	sb.WriteString(" ORDER BY ")
	var orderKeys []string
	for _, key := range q.Sort {
		dir := "ASC"
		if key.Direction == SortDesc {
			dir = "DESC"
		}
		orderKeys = append(orderKeys, fmt.Sprintf("%s %s", fieldExpr(key.Field), dir))
	}
	// id tiebreaker keeps pagination stable across identical sort keys
	orderKeys = append(orderKeys, "id ASC")
	sb.WriteString(strings.Join(orderKeys, ", "))

	if q.Page.Size > 0 {
		args = append(args, q.Page.Size)
		sb.WriteString(" LIMIT " + placeholder(len(args)))
	}
	args = append(args, q.Page.Offset)
	sb.WriteString(" OFFSET " + placeholder(len(args)))

	rows, err := s.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("select records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		r := Record{Table: q.Table}
		var fields []byte
		if err := rows.Scan(&r.ID, &fields, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if err := json.Unmarshal(fields, &r.Fields); err != nil {
			return nil, fmt.Errorf("decode record fields: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// Get loads one record by table and id.
func (s *PostgresStore) Get(ctx context.Context, table, id string) (Record, error) {
	r := Record{Table: table, ID: id}
	var fields []byte
	err := s.pool.QueryRow(ctx,
		`SELECT fields, created_at FROM records WHERE table_name = $1 AND id = $2`,
		table, id,
	).Scan(&fields, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, sentinel.ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("get record: %w", err)
	}
	if err := json.Unmarshal(fields, &r.Fields); err != nil {
		return Record{}, fmt.Errorf("decode record fields: %w", err)
	}
	return r, nil
}

// Mutate applies one field update or delete and returns the resulting state.
func (s *PostgresStore) Mutate(ctx context.Context, m Mutation) (Record, error) {
	if m.Delete {
		prior, err := s.Get(ctx, m.Table, m.RecordID)
		if err != nil {
			return Record{}, err
		}
		tag, err := s.pool.Exec(ctx,
			`DELETE FROM records WHERE table_name = $1 AND id = $2`,
			m.Table, m.RecordID,
		)
		if err != nil {
			return Record{}, fmt.Errorf("delete record: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return Record{}, sentinel.ErrNotFound
		}
		return prior, nil
	}

	patch, err := json.Marshal(m.SetFields)
	if err != nil {
		return Record{}, fmt.Errorf("encode field patch: %w", err)
	}
	r := Record{Table: m.Table, ID: m.RecordID}
	var fields []byte
	err = s.pool.QueryRow(ctx,
		`UPDATE records SET fields = fields || $3::jsonb
		 WHERE table_name = $1 AND id = $2
		 RETURNING fields, created_at`,
		m.Table, m.RecordID, patch,
	).Scan(&fields, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, sentinel.ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("update record: %w", err)
	}
	if err := json.Unmarshal(fields, &r.Fields); err != nil {
		return Record{}, fmt.Errorf("decode record fields: %w", err)
	}
	return r, nil
}

// CanAccessTable checks table_grants for any of the caller's roles.
// The admin role is granted everything.
func (s *PostgresStore) CanAccessTable(ctx context.Context, auth domain.AuthContext, table string, cap domain.Capability) (bool, error) {
	if auth.Anonymous() {
		return false, nil
	}
	if auth.HasRole(domain.RoleAdmin) {
		return true, nil
	}
	var allowed bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM table_grants
			WHERE role = ANY($1) AND table_name = $2 AND capability = $3
		)`,
		roleStrings(auth.Roles), table, cap.String(),
	).Scan(&allowed)
	if err != nil {
		return false, fmt.Errorf("check table grant: %w", err)
	}
	return allowed, nil
}

// CanAccessRecord consults record_acl overrides; when none exist for the
// record and capability, the table grant decides.
func (s *PostgresStore) CanAccessRecord(ctx context.Context, auth domain.AuthContext, rec Record, cap domain.Capability) (bool, error) {
	if auth.Anonymous() {
		return false, nil
	}
	if auth.HasRole(domain.RoleAdmin) {
		return true, nil
	}
	var hasOverride, allowed bool
	err := s.pool.QueryRow(ctx,
		`SELECT
			EXISTS (
				SELECT 1 FROM record_acl
				WHERE table_name = $1 AND record_id = $2 AND capability = $3
			),
			EXISTS (
				SELECT 1 FROM record_acl
				WHERE table_name = $1 AND record_id = $2 AND capability = $3
				  AND allowed_role = ANY($4)
			)`,
		rec.Table, rec.ID, cap.String(), roleStrings(auth.Roles),
	).Scan(&hasOverride, &allowed)
	if err != nil {
		return false, fmt.Errorf("check record acl: %w", err)
	}
	if hasOverride {
		return allowed, nil
	}
	return s.CanAccessTable(ctx, auth, rec.Table, cap)
}

// compileFilter turns one validated filter into a SQL clause, appending bind
// arguments as it goes.
func compileFilter(f Filter, args *[]any) (string, error) {
	expr := fieldExpr(f.Field)

	switch f.Op {
	case OpIsEmpty:
		return fmt.Sprintf("(%s IS NULL OR %s = '')", expr, expr), nil
	case OpIsNotEmpty:
		return fmt.Sprintf("(%s IS NOT NULL AND %s <> '')", expr, expr), nil
	case OpIn, OpNotIn:
		items, ok := f.Value.([]any)
		if !ok {
			return "", fmt.Errorf("operator %s requires a list value", f.Op)
		}
		list := make([]string, len(items))
		for i, item := range items {
			list[i] = stringify(item)
		}
		*args = append(*args, list)
		if f.Op == OpNotIn {
			return fmt.Sprintf("%s <> ALL(%s)", expr, placeholder(len(*args))), nil
		}
		return fmt.Sprintf("%s = ANY(%s)", expr, placeholder(len(*args))), nil
	case OpContains, OpNotContains, OpStartsWith, OpEndsWith:
		pattern := escapeLike(stringify(f.Value))
		switch f.Op {
		case OpContains, OpNotContains:
			pattern = "%" + pattern + "%"
		case OpStartsWith:
			pattern += "%"
		case OpEndsWith:
			pattern = "%" + pattern
		}
		*args = append(*args, pattern)
		like := "LIKE"
		if f.Op == OpNotContains {
			like = "NOT LIKE"
		}
		return fmt.Sprintf("%s %s %s", expr, like, placeholder(len(*args))), nil
	case OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte:
		op := string(f.Op)
		if f.Op == OpNeq {
			op = "<>"
		}
		// created_at compares natively so RFC 3339 bounds order
		// chronologically rather than as text.
		if f.Field == "created_at" {
			*args = append(*args, stringify(f.Value))
			return fmt.Sprintf("created_at %s (%s)::timestamptz", op, placeholder(len(*args))), nil
		}
		// Numeric comparisons cast the jsonb text when the bound value is a
		// number; everything else compares as text.
		if n, ok := toFloat(f.Value); ok {
			*args = append(*args, n)
			return fmt.Sprintf("(%s)::numeric %s %s", expr, op, placeholder(len(*args))), nil
		}
		*args = append(*args, stringify(f.Value))
		return fmt.Sprintf("%s %s %s", expr, op, placeholder(len(*args))), nil
	}
	return "", fmt.Errorf("unsupported operator %s", f.Op)
}

func fieldExpr(field string) string {
	switch field {
	case "id":
		return "id"
	case "created_at":
		return "created_at::text"
	}
	// jsonb text extraction; field names come from the allow-list registry,
	// never raw caller input, but quoting keeps the expression well-formed.
	return fmt.Sprintf("fields->>'%s'", strings.ReplaceAll(field, "'", "''"))
}

func placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}

func roleStrings(roles []domain.Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}
