//go:build integration

package record_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"recordgate/internal/record"
	"recordgate/pkg/domain"
	"recordgate/pkg/platform/sentinel"
	"recordgate/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	ctx   context.Context
	pg    *containers.PostgresContainer
	store *record.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	s.pg = containers.NewPostgresContainer(s.T())
	s.pg.Apply(s.ctx, s.T(), record.Schema)
	s.store = record.NewPostgresStore(s.pg.Pool)
}

func (s *PostgresStoreSuite) TearDownSuite() {
	s.pg.Terminate(s.ctx)
}

func (s *PostgresStoreSuite) SetupTest() {
	for _, table := range []string{"records", "table_grants", "record_acl"} {
		_, err := s.pg.DB.ExecContext(s.ctx, "TRUNCATE "+table)
		s.Require().NoError(err)
	}
}

func (s *PostgresStoreSuite) seedIncident(id string, fields map[string]any, createdAt time.Time) {
	payload, err := json.Marshal(fields)
	s.Require().NoError(err)
	_, err = s.pg.DB.ExecContext(s.ctx,
		`INSERT INTO records (table_name, id, fields, created_at) VALUES ('incident', $1, $2, $3)`,
		id, payload, createdAt)
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) seedDefaults() {
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	for i := 1; i <= 5; i++ {
		s.seedIncident(fmt.Sprintf("inc-%d", i), map[string]any{
			"title":    fmt.Sprintf("incident %d", i),
			"status":   "open",
			"severity": i,
			"active":   i%2 == 1,
			"assignee": "",
		}, base.Add(time.Duration(i)*time.Minute))
	}
}

func (s *PostgresStoreSuite) TestSelect() {
	s.seedDefaults()

	s.Run("equality filter on jsonb field", func() {
		got, err := s.store.Select(s.ctx, record.Query{
			Table:   "incident",
			Filters: []record.Filter{{Field: "status", Op: record.OpEq, Value: "open"}},
		})
		s.Require().NoError(err)
		s.Len(got, 5)
	})

	s.Run("numeric comparison casts the jsonb text", func() {
		got, err := s.store.Select(s.ctx, record.Query{
			Table:   "incident",
			Filters: []record.Filter{{Field: "severity", Op: record.OpGte, Value: 4}},
		})
		s.Require().NoError(err)
		s.Len(got, 2)
	})

	s.Run("boolean filter compares as text", func() {
		got, err := s.store.Select(s.ctx, record.Query{
			Table:   "incident",
			Filters: []record.Filter{{Field: "active", Op: record.OpEq, Value: true}},
		})
		s.Require().NoError(err)
		s.Len(got, 3)
	})

	s.Run("created_at range compares chronologically", func() {
		// an RFC 3339 bound must match rows by timestamp, not by the text
		// form of the column
		got, err := s.store.Select(s.ctx, record.Query{
			Table:   "incident",
			Filters: []record.Filter{{Field: "created_at", Op: record.OpGte, Value: "2026-02-01T00:03:00Z"}},
		})
		s.Require().NoError(err)
		s.Len(got, 3)
	})

	s.Run("emptiness matches blank and missing fields", func() {
		s.seedIncident("inc-bare", map[string]any{"title": "no assignee key"}, time.Now().UTC())

		got, err := s.store.Select(s.ctx, record.Query{
			Table:   "incident",
			Filters: []record.Filter{{Field: "assignee", Op: record.OpIsEmpty}},
		})
		s.Require().NoError(err)
		s.Len(got, 6)
	})

	s.Run("membership operator", func() {
		got, err := s.store.Select(s.ctx, record.Query{
			Table:   "incident",
			Filters: []record.Filter{{Field: "severity", Op: record.OpIn, Value: []any{1, 2}}},
		})
		s.Require().NoError(err)
		s.Len(got, 2)
	})

	s.Run("like patterns are escaped", func() {
		s.seedIncident("inc-pct", map[string]any{"title": "disk 100% full"}, time.Now().UTC())

		got, err := s.store.Select(s.ctx, record.Query{
			Table:   "incident",
			Filters: []record.Filter{{Field: "title", Op: record.OpContains, Value: "100%"}},
		})
		s.Require().NoError(err)
		s.Require().Len(got, 1)
		s.Equal("inc-pct", got[0].ID)
	})

	s.Run("search across configured fields", func() {
		got, err := s.store.Select(s.ctx, record.Query{
			Table:        "incident",
			Search:       "INCIDENT 3",
			SearchFields: []string{"title"},
		})
		s.Require().NoError(err)
		s.Require().Len(got, 1)
		s.Equal("inc-3", got[0].ID)
	})

	s.Run("sort and pagination are stable", func() {
		got, err := s.store.Select(s.ctx, record.Query{
			Table: "incident",
			Sort:  []record.SortSpec{{Field: "created_at", Direction: record.SortDesc}},
			Page:  record.Page{Size: 2, Offset: 1},
		})
		s.Require().NoError(err)
		s.Require().Len(got, 2)
		s.Equal("inc-4", got[0].ID)
		s.Equal("inc-3", got[1].ID)
	})
}

func (s *PostgresStoreSuite) TestGetAndMutate() {
	s.seedDefaults()

	s.Run("get round trip", func() {
		rec, err := s.store.Get(s.ctx, "incident", "inc-1")
		s.Require().NoError(err)
		s.Equal("incident 1", rec.Fields["title"])
	})

	s.Run("missing record", func() {
		_, err := s.store.Get(s.ctx, "incident", "inc-404")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("field patch merges into the bag", func() {
		updated, err := s.store.Mutate(s.ctx, record.Mutation{
			Table:     "incident",
			RecordID:  "inc-1",
			SetFields: map[string]any{"status": "resolved", "active": false},
		})
		s.Require().NoError(err)
		s.Equal("resolved", updated.Fields["status"])
		s.Equal("incident 1", updated.Fields["title"])
	})

	s.Run("delete returns the prior state", func() {
		prior, err := s.store.Mutate(s.ctx, record.Mutation{
			Table: "incident", RecordID: "inc-2", Delete: true,
		})
		s.Require().NoError(err)
		s.Equal("incident 2", prior.Fields["title"])

		_, err = s.store.Get(s.ctx, "incident", "inc-2")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("mutating a missing record", func() {
		_, err := s.store.Mutate(s.ctx, record.Mutation{
			Table: "incident", RecordID: "inc-404",
			SetFields: map[string]any{"status": "resolved"},
		})
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *PostgresStoreSuite) TestCapabilities() {
	s.seedDefaults()
	_, err := s.pg.DB.ExecContext(s.ctx,
		`INSERT INTO table_grants (role, table_name, capability) VALUES
			('agent', 'incident', 'read'),
			('agent', 'incident', 'write'),
			('supervisor', 'incident', 'delete')`)
	s.Require().NoError(err)

	agent := domain.AuthContext{ActorID: "agent-1", Roles: []domain.Role{domain.RoleAgent}}
	admin := domain.AuthContext{ActorID: "root", Roles: []domain.Role{domain.RoleAdmin}}

	s.Run("table grants decide by role", func() {
		ok, err := s.store.CanAccessTable(s.ctx, agent, "incident", domain.CapabilityRead)
		s.Require().NoError(err)
		s.True(ok)

		ok, err = s.store.CanAccessTable(s.ctx, agent, "incident", domain.CapabilityDelete)
		s.Require().NoError(err)
		s.False(ok)
	})

	s.Run("anonymous always denied", func() {
		ok, err := s.store.CanAccessTable(s.ctx, domain.AuthContext{}, "incident", domain.CapabilityRead)
		s.Require().NoError(err)
		s.False(ok)
	})

	s.Run("admin bypasses grants", func() {
		ok, err := s.store.CanAccessTable(s.ctx, admin, "customer", domain.CapabilityDelete)
		s.Require().NoError(err)
		s.True(ok)
	})

	s.Run("record acl overrides the table grant", func() {
		rec, err := s.store.Get(s.ctx, "incident", "inc-1")
		s.Require().NoError(err)

		// without an override the table grant allows the read
		ok, err := s.store.CanAccessRecord(s.ctx, agent, rec, domain.CapabilityRead)
		s.Require().NoError(err)
		s.True(ok)

		_, err = s.pg.DB.ExecContext(s.ctx,
			`INSERT INTO record_acl (table_name, record_id, capability, allowed_role)
			 VALUES ('incident', 'inc-1', 'read', 'supervisor')`)
		s.Require().NoError(err)

		ok, err = s.store.CanAccessRecord(s.ctx, agent, rec, domain.CapabilityRead)
		s.Require().NoError(err)
		s.False(ok)
	})
}
