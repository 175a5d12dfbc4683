package httptransport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"recordgate/internal/action"
	"recordgate/internal/auditmeta"
	"recordgate/internal/evidence"
	"recordgate/internal/query"
	"recordgate/internal/record"
	"recordgate/internal/registry"
	"recordgate/pkg/client"
	"recordgate/pkg/domain"
	"recordgate/pkg/platform/httputil"
	"recordgate/pkg/platform/middleware/auth"
	"recordgate/pkg/testutil"
)

const testUserAgent = "Mozilla/5.0 (X11; Linux x86_64) Firefox/128.0"

// failingHealth simulates an unreachable primary store.
type failingHealth struct{}

func (failingHealth) Health(context.Context) error { return errors.New("pool exhausted") }

type RouterSuite struct {
	suite.Suite
	router   http.Handler
	verifier *auth.Verifier
	store    *record.MemoryStore
	evStore  *evidence.MemoryStore
	builder  *client.Builder
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	lists, err := registry.NewListRegistry(registry.DefaultLists()...)
	s.Require().NoError(err)
	actions, err := registry.NewActionRegistry(registry.DefaultActions()...)
	s.Require().NoError(err)

	s.store = record.NewMemoryStore()
	for i := 1; i <= 3; i++ {
		s.store.Seed(record.Record{
			ID:    fmt.Sprintf("inc-%d", i),
			Table: "incident",
			Fields: map[string]any{
				"title":  fmt.Sprintf("incident %d", i),
				"status": "open",
				"active": true,
			},
			CreatedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Hour),
		})
	}

	s.evStore = evidence.NewMemoryStore()
	writer := evidence.NewWriter(s.evStore, evidence.WithLogger(logger))
	validator := auditmeta.NewValidator(actions.JustificationRequiredSet())

	queries := query.New(lists, s.store, s.store)
	actionSvc, err := action.New(actions, s.store, s.store, validator, writer, action.WithLogger(logger))
	s.Require().NoError(err)

	s.verifier = auth.NewVerifier([]byte("handler-test-signing-key"))
	handler := New(queries, actionSvc, lists, actions, s.store, s.evStore, nil, logger)
	s.router = NewRouter(handler, s.verifier, logger)

	s.builder = client.NewBuilder(testUserAgent)
}

func (s *RouterSuite) token(actorID string, roles ...domain.Role) string {
	token, err := s.verifier.Issue(domain.AuthContext{ActorID: actorID, Roles: roles})
	s.Require().NoError(err)
	return token
}

func (s *RouterSuite) do(method, path, token string, body any) *httptest.ResponseRecorder {
	req := testutil.NewJSONRequest(s.T(), method, path, body)
	req.Header.Set("User-Agent", testUserAgent)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return testutil.DoRequest(s.router, req)
}

func (s *RouterSuite) decode(rr *httptest.ResponseRecorder, out any) {
	testutil.DecodeResponse(s.T(), rr, out)
}

func (s *RouterSuite) TestAuthentication() {
	queryReq, err := s.builder.BuildQuery(client.QueryInput{ListKey: "incident.active"})
	s.Require().NoError(err)

	s.Run("missing token", func() {
		rr := s.do(http.MethodPost, "/query", "", queryReq)
		s.Equal(http.StatusUnauthorized, rr.Code)

		var resp httputil.ErrorResponse
		s.decode(rr, &resp)
		s.Equal("missing or invalid Authorization header", resp.ErrorDescription)
	})

	s.Run("garbage token", func() {
		rr := s.do(http.MethodPost, "/query", "not-a-jwt", queryReq)
		s.Equal(http.StatusUnauthorized, rr.Code)
	})

	s.Run("token signed with another key", func() {
		other := auth.NewVerifier([]byte("some-other-key"))
		token, err := other.Issue(domain.AuthContext{ActorID: "intruder"})
		s.Require().NoError(err)

		rr := s.do(http.MethodPost, "/query", token, queryReq)
		s.Equal(http.StatusUnauthorized, rr.Code)
	})
}

func (s *RouterSuite) TestQueryEndpoint() {
	token := s.token("agent-1", domain.RoleAgent)

	s.Run("query round trip", func() {
		req, err := s.builder.BuildQuery(client.QueryInput{ListKey: "incident.active"})
		s.Require().NoError(err)

		rr := s.do(http.MethodPost, "/query", token, req)
		s.Require().Equal(http.StatusOK, rr.Code)
		s.NotEmpty(rr.Header().Get(httputil.CorrelationHeader))

		var resp query.Response
		s.decode(rr, &resp)
		s.Len(resp.Rows, 3)
		s.Equal("incident", resp.Rows[0].ObjectType)
	})

	s.Run("unknown list is a validation error", func() {
		req, err := s.builder.BuildQuery(client.QueryInput{ListKey: "incident.archived"})
		s.Require().NoError(err)

		rr := s.do(http.MethodPost, "/query", token, req)
		s.Equal(http.StatusUnprocessableEntity, rr.Code)
	})

	s.Run("malformed body is a bad request", func() {
		req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/query", "{nope")
		req.Header.Set("Authorization", "Bearer "+token)
		rr := testutil.DoRequest(s.router, req)
		s.Equal(http.StatusBadRequest, rr.Code)
	})
}

func (s *RouterSuite) TestActionEndpoints() {
	s.Run("row action executes and leaves evidence", func() {
		req, err := s.builder.BuildRowAction(client.RowInput{
			ActionID: "incident.resolve",
			ListKey:  "incident.active",
			Target:   action.RowTarget{Table: "incident", RecordID: "inc-1"},
		})
		s.Require().NoError(err)

		rr := s.do(http.MethodPost, "/actions/row", s.token("agent-1", domain.RoleAgent), req)
		s.Require().Equal(http.StatusOK, rr.Code)

		var result action.RowResult
		s.decode(rr, &result)
		s.True(result.Success)

		recent, err := s.evStore.ListRecent(context.Background(), 1)
		s.Require().NoError(err)
		s.Require().Len(recent, 1)
		s.Equal("agent-1", recent[0].ActorID)
	})

	s.Run("bulk action reports per-record outcomes", func() {
		req, err := s.builder.BuildBulkAction(client.BulkInput{
			ActionID: "incident.resolve",
			ListKey:  "incident.active",
			Targets: []action.RowTarget{
				{Table: "incident", RecordID: "inc-2"},
				{Table: "incident", RecordID: "inc-404"},
			},
		})
		s.Require().NoError(err)

		rr := s.do(http.MethodPost, "/actions/bulk", s.token("agent-1", domain.RoleAgent), req)
		s.Require().Equal(http.StatusOK, rr.Code)

		var result action.BulkResult
		s.decode(rr, &result)
		s.True(result.Success)
		s.Equal(1, result.SuccessCount)
		s.Equal(1, result.FailureCount)
	})

	s.Run("gate failure maps to the error envelope", func() {
		req, err := s.builder.BuildRowAction(client.RowInput{
			ActionID:      "record.delete",
			ListKey:       "incident.active",
			Target:        action.RowTarget{Table: "incident", RecordID: "inc-3"},
			Justification: "duplicate #7",
		})
		s.Require().NoError(err)

		// agent lacks the supervisor role the delete action demands
		rr := s.do(http.MethodPost, "/actions/row", s.token("agent-1", domain.RoleAgent), req)
		s.Equal(http.StatusForbidden, rr.Code)

		var resp httputil.ErrorResponse
		s.decode(rr, &resp)
		s.Equal("permission denied", resp.ErrorDescription)
	})
}

func (s *RouterSuite) TestIntrospectionEndpoints() {
	token := s.token("agent-1", domain.RoleAgent)

	s.Run("lists", func() {
		rr := s.do(http.MethodGet, "/lists", token, nil)
		s.Require().Equal(http.StatusOK, rr.Code)

		var env listsEnvelope
		s.decode(rr, &env)
		s.Len(env.Lists, 3)
	})

	s.Run("actions", func() {
		rr := s.do(http.MethodGet, "/actions", token, nil)
		s.Require().Equal(http.StatusOK, rr.Code)

		var env actionsEnvelope
		s.decode(rr, &env)
		s.Len(env.Actions, 4)
	})
}

func (s *RouterSuite) TestEvidenceEndpoints() {
	// produce one bulk batch through the public surface
	req, err := s.builder.BuildBulkAction(client.BulkInput{
		ActionID: "incident.resolve",
		ListKey:  "incident.active",
		Targets:  []action.RowTarget{{Table: "incident", RecordID: "inc-1"}},
	})
	s.Require().NoError(err)
	rr := s.do(http.MethodPost, "/actions/bulk", s.token("agent-1", domain.RoleAgent), req)
	s.Require().Equal(http.StatusOK, rr.Code)
	var bulk action.BulkResult
	s.decode(rr, &bulk)

	s.Run("non-admin denied", func() {
		rr := s.do(http.MethodGet, "/evidence/recent", s.token("agent-1", domain.RoleAgent), nil)
		s.Equal(http.StatusForbidden, rr.Code)
	})

	s.Run("admin reads recent entries", func() {
		rr := s.do(http.MethodGet, "/evidence/recent", s.token("auditor-1", domain.RoleAdmin), nil)
		s.Require().Equal(http.StatusOK, rr.Code)

		var env evidenceEnvelope
		s.decode(rr, &env)
		s.Len(env.Entries, 2) // parent plus one child
	})

	s.Run("admin reads a batch with children", func() {
		rr := s.do(http.MethodGet, "/evidence/batches/"+bulk.BatchAuditID.String(),
			s.token("auditor-1", domain.RoleAdmin), nil)
		s.Require().Equal(http.StatusOK, rr.Code)

		var env batchEnvelope
		s.decode(rr, &env)
		s.Equal("completed", env.Batch.Status)
		s.Len(env.Records, 1)
	})

	s.Run("malformed batch id", func() {
		rr := s.do(http.MethodGet, "/evidence/batches/not-a-uuid",
			s.token("auditor-1", domain.RoleAdmin), nil)
		s.Equal(http.StatusUnprocessableEntity, rr.Code)
	})

	s.Run("unknown batch id", func() {
		rr := s.do(http.MethodGet, "/evidence/batches/00000000-0000-0000-0000-000000000001",
			s.token("auditor-1", domain.RoleAdmin), nil)
		s.Equal(http.StatusNotFound, rr.Code)
	})
}

func (s *RouterSuite) TestHealthz() {
	s.Run("no probe means ok", func() {
		rr := s.do(http.MethodGet, "/healthz", "", nil)
		s.Equal(http.StatusOK, rr.Code)
	})

	s.Run("failing probe degrades", func() {
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		h := New(nil, nil, nil, nil, nil, nil, failingHealth{}, logger)

		rr := httptest.NewRecorder()
		h.HandleHealthz(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		s.Equal(http.StatusServiceUnavailable, rr.Code)
	})
}

func (s *RouterSuite) TestMetricsEndpointPublic() {
	rr := s.do(http.MethodGet, "/metrics", "", nil)
	s.Equal(http.StatusOK, rr.Code)
}
