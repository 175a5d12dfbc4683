package action

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"recordgate/internal/auditmeta"
	"recordgate/internal/evidence"
	"recordgate/internal/record"
	"recordgate/internal/registry"
	"recordgate/pkg/domain"
	dErrors "recordgate/pkg/domain-errors"
	"recordgate/pkg/requestcontext"
)

const testCorrelationID = "test-run-0001"

type ActionServiceSuite struct {
	suite.Suite
	ctx        context.Context
	now        time.Time
	agent      domain.AuthContext
	supervisor domain.AuthContext
	actions    *registry.ActionRegistry
}

func TestActionServiceSuite(t *testing.T) {
	suite.Run(t, new(ActionServiceSuite))
}

func (s *ActionServiceSuite) SetupTest() {
	s.now = time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.agent = domain.AuthContext{ActorID: "agent-1", Roles: []domain.Role{domain.RoleAgent}}
	s.supervisor = domain.AuthContext{ActorID: "supervisor-1", Roles: []domain.Role{domain.RoleSupervisor}}

	actions, err := registry.NewActionRegistry(registry.DefaultActions()...)
	s.Require().NoError(err)
	s.actions = actions
}

// newService wires a fresh service over the given record store, returning the
// evidence store so tests can inspect the audit trail.
func (s *ActionServiceSuite) newService(store *record.MemoryStore, opts ...Option) (*Service, *evidence.MemoryStore) {
	evStore := evidence.NewMemoryStore()
	writer := evidence.NewWriter(evStore)
	validator := auditmeta.NewValidator(s.actions.JustificationRequiredSet())

	svc, err := New(s.actions, store, store, validator, writer, opts...)
	s.Require().NoError(err)
	return svc, evStore
}

func (s *ActionServiceSuite) seedIncidents(store *record.MemoryStore, n int) {
	for i := 1; i <= n; i++ {
		store.Seed(record.Record{
			ID:    fmt.Sprintf("inc-%d", i),
			Table: "incident",
			Fields: map[string]any{
				"title":  fmt.Sprintf("incident %d", i),
				"status": "open",
				"active": true,
			},
			CreatedAt: s.now.Add(-time.Hour),
		})
	}
}

func (s *ActionServiceSuite) metadata(actionID string, invocation domain.InvocationType, recordIDs ...string) *auditmeta.Metadata {
	m := &auditmeta.Metadata{
		SourceComponent:     auditmeta.SourceComponent,
		ListKey:             "incident.active",
		ViewID:              auditmeta.NullableString{Present: true},
		ClientCorrelationID: testCorrelationID,
		InvocationType:      invocation,
		Timestamp:           s.now.Add(-time.Minute).Format(time.RFC3339),
		UserAgent:           "Mozilla/5.0 (X11; Linux x86_64) Firefox/128.0",
		ActionID:            actionID,
		RecordIDs:           recordIDs,
	}
	if invocation == domain.InvocationBulk {
		count := len(recordIDs)
		m.SelectionCount = &count
	}
	return m
}

func (s *ActionServiceSuite) rowRequest(actionID, recordID string) *RowRequest {
	return &RowRequest{
		ActionID: actionID,
		Target:   RowTarget{Table: "incident", RecordID: recordID},
		Metadata: s.metadata(actionID, domain.InvocationRow, recordID),
	}
}

func (s *ActionServiceSuite) bulkRequest(actionID string, recordIDs ...string) *BulkRequest {
	targets := make([]RowTarget, 0, len(recordIDs))
	for _, id := range recordIDs {
		targets = append(targets, RowTarget{Table: "incident", RecordID: id})
	}
	return &BulkRequest{
		ActionID: actionID,
		Targets:  targets,
		Metadata: s.metadata(actionID, domain.InvocationBulk, recordIDs...),
	}
}

func (s *ActionServiceSuite) TestExecuteRow() {
	s.Run("set_field action applies static fields", func() {
		store := record.NewMemoryStore()
		s.seedIncidents(store, 1)
		svc, evStore := s.newService(store)

		res, err := svc.ExecuteRow(s.ctx, s.agent, s.rowRequest("incident.resolve", "inc-1"))
		s.Require().NoError(err)
		s.True(res.Success)
		s.NotEqual(uuid.Nil, res.AuditID)
		s.Equal(domain.CorrelationID(testCorrelationID), res.CorrelationID)
		s.Equal("resolved", res.Result["status"])

		rec, err := store.Get(s.ctx, "incident", "inc-1")
		s.Require().NoError(err)
		s.Equal("resolved", rec.Fields["status"])
		s.Equal(false, rec.Fields["active"])

		// a standalone entry, not a batch child
		recent, err := evStore.ListRecent(s.ctx, 1)
		s.Require().NoError(err)
		s.Require().Len(recent, 1)
		s.Equal(evidence.KindRecord, recent[0].Kind)
		s.Nil(recent[0].BatchID)
		s.True(recent[0].Succeeded)
		s.Equal("agent-1", recent[0].ActorID)
	})

	s.Run("assign requires the assignee param", func() {
		store := record.NewMemoryStore()
		s.seedIncidents(store, 1)
		svc, _ := s.newService(store)

		_, err := svc.ExecuteRow(s.ctx, s.agent, s.rowRequest("incident.assign", "inc-1"))
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))

		req := s.rowRequest("incident.assign", "inc-1")
		req.Params = map[string]any{"assignee": "agent-2"}
		res, err := svc.ExecuteRow(s.ctx, s.agent, req)
		s.Require().NoError(err)
		s.True(res.Success)

		rec, err := store.Get(s.ctx, "incident", "inc-1")
		s.Require().NoError(err)
		s.Equal("agent-2", rec.Fields["assignee"])
	})

	s.Run("missing record is a not-found error", func() {
		svc, _ := s.newService(record.NewMemoryStore())

		_, err := svc.ExecuteRow(s.ctx, s.agent, s.rowRequest("incident.resolve", "inc-404"))
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("action not applicable to target table", func() {
		svc, _ := s.newService(record.NewMemoryStore())

		req := s.rowRequest("incident.resolve", "cust-1")
		req.Target.Table = "customer"
		_, err := svc.ExecuteRow(s.ctx, s.agent, req)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("invocation type mismatch rejected", func() {
		svc, _ := s.newService(record.NewMemoryStore())

		req := s.rowRequest("incident.resolve", "inc-1")
		req.Metadata.InvocationType = domain.InvocationBulk
		_, err := svc.ExecuteRow(s.ctx, s.agent, req)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *ActionServiceSuite) TestRowRecordIDConsistency() {
	store := record.NewMemoryStore()
	s.seedIncidents(store, 1)
	svc, evStore := s.newService(store)

	s.Run("record ids naming other records rejected", func() {
		req := s.rowRequest("incident.resolve", "inc-1")
		req.Metadata.RecordIDs = []string{"some-other-record", "and-another"}

		_, err := svc.ExecuteRow(s.ctx, s.agent, req)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Contains(dErrors.MessageOf(err), "record_ids")
	})

	s.Run("single mismatched record id rejected", func() {
		req := s.rowRequest("incident.resolve", "inc-1")
		req.Metadata.RecordIDs = []string{"inc-2"}

		_, err := svc.ExecuteRow(s.ctx, s.agent, req)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))

		// rejection happened before any mutation or evidence write
		rec, err := store.Get(s.ctx, "incident", "inc-1")
		s.Require().NoError(err)
		s.Equal("open", rec.Fields["status"])
		recent, err := evStore.ListRecent(s.ctx, 10)
		s.Require().NoError(err)
		s.Empty(recent)
	})

	s.Run("matching record id passes", func() {
		res, err := svc.ExecuteRow(s.ctx, s.agent, s.rowRequest("incident.resolve", "inc-1"))
		s.Require().NoError(err)
		s.True(res.Success)
	})
}

func (s *ActionServiceSuite) TestRowJustification() {
	store := record.NewMemoryStore()
	s.seedIncidents(store, 1)
	svc, evStore := s.newService(store)

	s.Run("delete without justification rejected", func() {
		_, err := svc.ExecuteRow(s.ctx, s.supervisor, s.rowRequest("record.delete", "inc-1"))
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Contains(dErrors.MessageOf(err), "justification")

		// rejection happened before any mutation
		_, err = store.Get(s.ctx, "incident", "inc-1")
		s.NoError(err)
	})

	s.Run("delete with adequate justification proceeds", func() {
		req := s.rowRequest("record.delete", "inc-1")
		req.Metadata.Justification = "duplicate #7"

		res, err := svc.ExecuteRow(s.ctx, s.supervisor, req)
		s.Require().NoError(err)
		s.True(res.Success)
		s.Equal(true, res.Result["deleted"])

		recent, err := evStore.ListRecent(s.ctx, 1)
		s.Require().NoError(err)
		s.Require().Len(recent, 1)
		s.Equal("duplicate #7", recent[0].Justification)
	})
}

func (s *ActionServiceSuite) TestRowAuthorization() {
	s.Run("missing role denied generically", func() {
		store := record.NewMemoryStore()
		s.seedIncidents(store, 1)
		svc, _ := s.newService(store)

		req := s.rowRequest("record.delete", "inc-1")
		req.Metadata.Justification = "duplicate #7"
		_, err := svc.ExecuteRow(s.ctx, s.agent, req)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		s.Equal("permission denied", dErrors.MessageOf(err))
	})

	s.Run("record capability re-check denies per record", func() {
		store := record.NewMemoryStore(record.WithRecordRule(
			func(auth domain.AuthContext, rec record.Record, cap domain.Capability) bool {
				return rec.Fields["owner"] == auth.ActorID
			}))
		store.Seed(record.Record{
			ID: "inc-1", Table: "incident",
			Fields: map[string]any{"owner": "agent-2", "status": "open"},
		})
		svc, _ := s.newService(store)

		_, err := svc.ExecuteRow(s.ctx, s.agent, s.rowRequest("incident.resolve", "inc-1"))
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *ActionServiceSuite) TestRowMutationFailure() {
	store := record.NewMemoryStore(record.WithMutationHook(func(record.Mutation) error {
		return errors.New("store offline")
	}))
	s.seedIncidents(store, 1)
	svc, evStore := s.newService(store)

	// gates passed, so the failure lands in the result rather than an error
	res, err := svc.ExecuteRow(s.ctx, s.agent, s.rowRequest("incident.resolve", "inc-1"))
	s.Require().NoError(err)
	s.False(res.Success)
	s.NotEmpty(res.Error)
	s.NotEqual(uuid.Nil, res.AuditID)

	recent, err := evStore.ListRecent(s.ctx, 1)
	s.Require().NoError(err)
	s.Require().Len(recent, 1)
	s.False(recent[0].Succeeded)
}

func (s *ActionServiceSuite) TestExecuteBulk() {
	s.Run("batch with partial failure still completes", func() {
		store := record.NewMemoryStore()
		s.seedIncidents(store, 2)
		svc, evStore := s.newService(store)

		req := s.bulkRequest("record.bulk_delete", "inc-1", "inc-404", "inc-2")
		req.Metadata.Justification = "duplicate import cleanup"

		res, err := svc.ExecuteBulk(s.ctx, s.supervisor, req)
		s.Require().NoError(err)
		s.True(res.Success)
		s.Equal(3, res.TotalRecords)
		s.Equal(2, res.SuccessCount)
		s.Equal(1, res.FailureCount)
		s.Require().Len(res.Results, 3)
		s.Equal("record not found", res.Results[1].Error)

		parent, err := evStore.GetBatch(s.ctx, res.BatchAuditID)
		s.Require().NoError(err)
		s.Equal(evidence.BatchCompleted, parent.Status)
		s.Equal(3, parent.TotalRecords)
		s.Equal(2, parent.SuccessCount)
		s.Equal(1, parent.FailureCount)

		children, err := evStore.ListByBatch(s.ctx, res.BatchAuditID)
		s.Require().NoError(err)
		s.Len(children, 3)

		_, err = store.Get(s.ctx, "incident", "inc-1")
		s.Error(err)
		_, err = store.Get(s.ctx, "incident", "inc-2")
		s.Error(err)
	})

	s.Run("descriptor cap checked before anything runs", func() {
		store := record.NewMemoryStore()
		s.seedIncidents(store, 60)
		svc, evStore := s.newService(store)

		ids := make([]string, 60)
		for i := range ids {
			ids[i] = fmt.Sprintf("inc-%d", i+1)
		}
		req := s.bulkRequest("record.bulk_delete", ids...)
		req.Metadata.Justification = "duplicate import cleanup"

		_, err := svc.ExecuteBulk(s.ctx, s.supervisor, req)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Contains(dErrors.MessageOf(err), "cap is 50")

		// no evidence and no mutation happened
		recent, err := evStore.ListRecent(s.ctx, 10)
		s.Require().NoError(err)
		s.Empty(recent)
		_, err = store.Get(s.ctx, "incident", "inc-1")
		s.NoError(err)
	})

	s.Run("service ceiling can be stricter than the descriptor", func() {
		store := record.NewMemoryStore()
		s.seedIncidents(store, 3)
		svc, _ := s.newService(store, WithBulkRecordCeiling(2))

		req := s.bulkRequest("record.bulk_delete", "inc-1", "inc-2", "inc-3")
		req.Metadata.Justification = "duplicate import cleanup"

		_, err := svc.ExecuteBulk(s.ctx, s.supervisor, req)
		s.Require().Error(err)
		s.Contains(dErrors.MessageOf(err), "cap is 2")
	})

	s.Run("non-bulk action rejected", func() {
		svc, _ := s.newService(record.NewMemoryStore())

		req := s.bulkRequest("record.delete", "inc-1")
		req.Metadata.Justification = "duplicate import cleanup"

		_, err := svc.ExecuteBulk(s.ctx, s.supervisor, req)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Contains(dErrors.MessageOf(err), "cannot be invoked in bulk")
	})

	s.Run("metadata record ids must match the targets", func() {
		store := record.NewMemoryStore()
		s.seedIncidents(store, 2)
		svc, _ := s.newService(store)

		req := s.bulkRequest("incident.resolve", "inc-1", "inc-2")
		req.Metadata.RecordIDs = []string{"inc-1"}
		count := 1
		req.Metadata.SelectionCount = &count

		_, err := svc.ExecuteBulk(s.ctx, s.agent, req)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("targets grouped by table in the results", func() {
		store := record.NewMemoryStore()
		store.Seed(record.Record{ID: "inc-1", Table: "incident", Fields: map[string]any{}})
		store.Seed(record.Record{ID: "cust-1", Table: "customer", Fields: map[string]any{}})
		store.Seed(record.Record{ID: "inc-2", Table: "incident", Fields: map[string]any{}})
		svc, _ := s.newService(store)

		req := &BulkRequest{
			ActionID: "record.bulk_delete",
			Targets: []RowTarget{
				{Table: "incident", RecordID: "inc-1"},
				{Table: "customer", RecordID: "cust-1"},
				{Table: "incident", RecordID: "inc-2"},
			},
			Metadata: s.metadata("record.bulk_delete", domain.InvocationBulk, "inc-1", "cust-1", "inc-2"),
		}
		req.Metadata.Justification = "duplicate import cleanup"

		res, err := svc.ExecuteBulk(s.ctx, s.supervisor, req)
		s.Require().NoError(err)
		s.Require().Len(res.Results, 3)
		s.Equal("inc-1", res.Results[0].RecordID)
		s.Equal("inc-2", res.Results[1].RecordID)
		s.Equal("cust-1", res.Results[2].RecordID)
		s.Equal(3, res.SuccessCount)
	})
}

func (s *ActionServiceSuite) TestValidateAction() {
	svc, _ := s.newService(record.NewMemoryStore())

	desc, err := svc.ValidateAction("incident.resolve", "incident")
	s.Require().NoError(err)
	s.Equal(registry.KindSetField, desc.Kind)

	_, err = svc.ValidateAction("incident.resolve", "customer")
	s.Require().Error(err)
}
