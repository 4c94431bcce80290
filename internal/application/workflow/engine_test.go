package workflow

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/doc-approval/internal/application/dispatcher"
	"github.com/garyjia/doc-approval/internal/application/permission"
	"github.com/garyjia/doc-approval/internal/application/port"
	"github.com/garyjia/doc-approval/internal/domain/entity"
	"github.com/garyjia/doc-approval/internal/domain/event"
	domainwf "github.com/garyjia/doc-approval/internal/domain/workflow"
	"github.com/garyjia/doc-approval/internal/infrastructure/persistence/memory"
)

type harness struct {
	engine    Engine
	defs      DefinitionService
	instances *memory.InstanceStore
	perms     permission.Engine
	disp      dispatcher.Dispatcher

	mu     sync.Mutex
	events []*event.Event
}

func newHarness(t *testing.T, opts ...EngineOption) *harness {
	t.Helper()

	h := &harness{
		instances: memory.NewInstanceStore(),
		disp:      dispatcher.NewDispatcher(),
	}

	users := memory.NewUsers(
		entity.User{ID: "owner", Active: true},
		entity.User{ID: "viewer", Active: true},
	)
	docs := memory.NewDocuments(
		entity.Document{ID: "doc", OwnerID: "owner"},
		entity.Document{ID: "doc2", OwnerID: "owner"},
	)
	h.perms = permission.NewEngine(memory.NewGrantStore(), docs, users)

	definitions := memory.NewDefinitionStore()
	h.defs = NewDefinitionService(definitions, h.disp, nil)
	h.engine = NewEngine(definitions, h.instances, h.perms, append([]EngineOption{WithDispatcher(h.disp)}, opts...)...)

	all := []event.Type{
		event.TypeInstanceSubmitted, event.TypeDecisionRecorded, event.TypeStageAdvanced,
		event.TypeInstanceApproved, event.TypeInstanceRejected,
	}
	h.disp.SubscribeMany(all, "recorder", func(ctx context.Context, evt *event.Event) error {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.events = append(h.events, evt)
		return nil
	})
	return h
}

func (h *harness) drain(t *testing.T) []event.Type {
	t.Helper()
	require.NoError(t, h.disp.Close())
	h.mu.Lock()
	defer h.mu.Unlock()
	types := make([]event.Type, 0, len(h.events))
	for _, e := range h.events {
		types = append(types, e.Type)
	}
	return types
}

// twoStage builds stage 0 {A,B} requireAll and stage 1 {C} any-one
func (h *harness) twoStage(t *testing.T) int64 {
	t.Helper()
	def, err := h.defs.Create(context.Background(), CreateDefinitionRequest{
		Name:      "contract review",
		CreatedBy: "owner",
		Config: entity.WorkflowConfig{Stages: []entity.Stage{
			{Name: "legal", Approvers: []string{"A", "B"}, RequireAll: true},
			{Name: "exec", Approvers: []string{"C"}},
		}},
	})
	require.NoError(t, err)
	return def.ID
}

func (h *harness) submit(t *testing.T, wfID int64) *entity.ApprovalInstance {
	t.Helper()
	inst, err := h.engine.Submit(context.Background(), "doc", wfID, "owner")
	require.NoError(t, err)
	return inst
}

func TestSubmit(t *testing.T) {
	h := newHarness(t)
	wf := h.twoStage(t)

	inst := h.submit(t, wf)
	assert.Equal(t, domainwf.StatePending, inst.Status)
	assert.Equal(t, 0, inst.CurrentStage)
	assert.Equal(t, int64(1), inst.WorkflowVersion)
	assert.Len(t, inst.Stages, 2)
	assert.NotEmpty(t, inst.ID)

	_, err := h.engine.Submit(context.Background(), "doc", wf, "owner")
	assert.ErrorIs(t, err, entity.ErrDocumentAlreadyInWorkflow)

	assert.Equal(t, []event.Type{event.TypeInstanceSubmitted}, h.drain(t))
}

func TestSubmit_CheckOrder(t *testing.T) {
	h := newHarness(t)
	wf := h.twoStage(t)
	ctx := context.Background()

	_, err := h.engine.Submit(ctx, "doc", 999, "stranger")
	assert.ErrorIs(t, err, entity.ErrPermissionDenied, "permission is checked before the workflow")

	_, err = h.engine.Submit(ctx, "doc", 999, "owner")
	assert.ErrorIs(t, err, entity.ErrWorkflowNotFound)

	inactive := false
	_, err = h.defs.Update(ctx, wf, UpdateDefinitionRequest{Active: &inactive})
	require.NoError(t, err)
	_, err = h.engine.Submit(ctx, "doc", wf, "owner")
	assert.ErrorIs(t, err, entity.ErrWorkflowNotFound)
}

func TestSubmit_ViewerMaySubmit(t *testing.T) {
	h := newHarness(t)
	wf := h.twoStage(t)
	ctx := context.Background()

	_, err := h.perms.Grant(ctx, permission.GrantRequest{DocumentID: "doc", GranterID: "owner", TargetID: "viewer", Type: entity.PermissionView})
	require.NoError(t, err)

	inst, err := h.engine.Submit(ctx, "doc", wf, "viewer")
	require.NoError(t, err)
	assert.Equal(t, "viewer", inst.SubmittedBy)
}

func TestScenarioB_RequireAllThenSingle(t *testing.T) {
	h := newHarness(t)
	inst := h.submit(t, h.twoStage(t))
	ctx := context.Background()

	got, err := h.engine.Approve(ctx, inst.ID, "A", "")
	require.NoError(t, err)
	assert.Equal(t, domainwf.StatePending, got.Status)
	assert.Equal(t, 0, got.CurrentStage)

	got, err = h.engine.Approve(ctx, inst.ID, "B", "fine")
	require.NoError(t, err)
	assert.Equal(t, domainwf.StatePending, got.Status)
	assert.Equal(t, 1, got.CurrentStage)

	got, err = h.engine.Approve(ctx, inst.ID, "C", "ship it")
	require.NoError(t, err)
	assert.Equal(t, domainwf.StateApproved, got.Status)
	assert.Equal(t, 1, got.CurrentStage)
	assert.NotNil(t, got.CompletedAt)
	require.Len(t, got.Decisions, 3)
	assert.NotZero(t, got.Decisions[2].ID)

	stored, err := h.instances.GetByID(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stored.Version)

	assert.Equal(t, []event.Type{
		event.TypeInstanceSubmitted,
		event.TypeDecisionRecorded,
		event.TypeStageAdvanced,
		event.TypeInstanceApproved,
	}, h.drainSorted(t))
}

// drainSorted returns event types in emission order; events carry ULIDs
// that sort by creation
func (h *harness) drainSorted(t *testing.T) []event.Type {
	t.Helper()
	require.NoError(t, h.disp.Close())
	h.mu.Lock()
	defer h.mu.Unlock()
	evts := append([]*event.Event(nil), h.events...)
	for i := 1; i < len(evts); i++ {
		for j := i; j > 0 && evts[j].ID < evts[j-1].ID; j-- {
			evts[j], evts[j-1] = evts[j-1], evts[j]
		}
	}
	types := make([]event.Type, len(evts))
	for i, e := range evts {
		types[i] = e.Type
	}
	return types
}

func TestScenarioC_RejectOverridesRequireAll(t *testing.T) {
	h := newHarness(t)
	inst := h.submit(t, h.twoStage(t))
	ctx := context.Background()

	_, err := h.engine.Approve(ctx, inst.ID, "A", "")
	require.NoError(t, err)

	got, err := h.engine.Reject(ctx, inst.ID, "B", "not compliant")
	require.NoError(t, err)
	assert.Equal(t, domainwf.StateRejected, got.Status)
	assert.Equal(t, 0, got.CurrentStage)
	assert.Equal(t, "not compliant", got.LastComment())
}

func TestRejectAtAnyStage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	inst := h.submit(t, h.twoStage(t))

	_, err := h.engine.Approve(ctx, inst.ID, "A", "")
	require.NoError(t, err)
	_, err = h.engine.Approve(ctx, inst.ID, "B", "")
	require.NoError(t, err)

	got, err := h.engine.Reject(ctx, inst.ID, "C", "budget")
	require.NoError(t, err)
	assert.Equal(t, domainwf.StateRejected, got.Status)
	assert.Equal(t, 1, got.CurrentStage)
}

func TestDecisionErrors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	inst := h.submit(t, h.twoStage(t))

	_, err := h.engine.Approve(ctx, "missing", "A", "")
	assert.ErrorIs(t, err, entity.ErrInstanceNotFound)

	_, err = h.engine.Approve(ctx, inst.ID, "C", "")
	assert.ErrorIs(t, err, entity.ErrNotAnApprover, "C is not on the current stage")

	_, err = h.engine.Reject(ctx, inst.ID, "A", "   ")
	assert.ErrorIs(t, err, entity.ErrCommentRequired)

	_, err = h.engine.Reject(ctx, inst.ID, "stranger", "")
	assert.ErrorIs(t, err, entity.ErrCommentRequired, "comment is validated first")

	_, err = h.engine.Approve(ctx, inst.ID, "A", "")
	require.NoError(t, err)
	_, err = h.engine.Approve(ctx, inst.ID, "A", "")
	assert.ErrorIs(t, err, entity.ErrDuplicateDecision)
	_, err = h.engine.Reject(ctx, inst.ID, "A", "changed my mind")
	assert.ErrorIs(t, err, entity.ErrDuplicateDecision)
}

func TestTerminalInstanceRejectsDecisions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	inst := h.submit(t, h.twoStage(t))

	_, err := h.engine.Reject(ctx, inst.ID, "A", "no")
	require.NoError(t, err)

	_, err = h.engine.Approve(ctx, inst.ID, "B", "")
	assert.ErrorIs(t, err, entity.ErrAlreadyDecided)
	_, err = h.engine.Reject(ctx, inst.ID, "B", "also no")
	assert.ErrorIs(t, err, entity.ErrAlreadyDecided)

	stored, _ := h.instances.GetByID(ctx, inst.ID)
	assert.Len(t, stored.Decisions, 1)

	again, err := h.engine.Submit(ctx, "doc", inst.WorkflowID, "owner")
	require.NoError(t, err, "a finished document can be resubmitted")
	assert.NotEqual(t, inst.ID, again.ID)
}

func TestSnapshotSurvivesDefinitionUpdate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	wf := h.twoStage(t)
	inst := h.submit(t, wf)

	cfg := entity.WorkflowConfig{Stages: []entity.Stage{{Name: "solo", Approvers: []string{"Z"}}}}
	updated, err := h.defs.Update(ctx, wf, UpdateDefinitionRequest{Config: &cfg})
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)

	_, err = h.engine.Approve(ctx, inst.ID, "Z", "")
	assert.ErrorIs(t, err, entity.ErrNotAnApprover)

	got, err := h.engine.Approve(ctx, inst.ID, "A", "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.WorkflowVersion)
}

func TestConcurrentApprovalsAdvanceOnce(t *testing.T) {
	for round := 0; round < 20; round++ {
		h := newHarness(t, WithMaxAttempts(10))
		ctx := context.Background()

		def, err := h.defs.Create(ctx, CreateDefinitionRequest{
			Name: fmt.Sprintf("race-%d", round),
			Config: entity.WorkflowConfig{Stages: []entity.Stage{
				{Name: "first", Approvers: []string{"p1", "p2", "p3", "p4"}},
				{Name: "second", Approvers: []string{"q"}},
				{Name: "third", Approvers: []string{"r"}},
			}},
		})
		require.NoError(t, err)
		inst := h.submit(t, def.ID)

		var wg sync.WaitGroup
		errs := make([]error, 4)
		for i, approver := range []string{"p1", "p2", "p3", "p4"} {
			wg.Add(1)
			go func(i int, approver string) {
				defer wg.Done()
				_, errs[i] = h.engine.Approve(ctx, inst.ID, approver, "")
			}(i, approver)
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			assert.ErrorIs(t, err, entity.ErrNotAnApprover, "losers see the advanced stage")
		}
		assert.Equal(t, 1, succeeded)

		stored, err := h.instances.GetByID(ctx, inst.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, stored.CurrentStage, "stage advanced exactly once")
		assert.Equal(t, domainwf.StatePending, stored.Status)
		assert.Len(t, stored.Decisions, 1)
		assert.Equal(t, int64(2), stored.Version)
	}
}

func TestConcurrentRequireAllCountsEveryApprover(t *testing.T) {
	h := newHarness(t, WithMaxAttempts(20))
	ctx := context.Background()
	approvers := []string{"a1", "a2", "a3", "a4", "a5"}
	def, err := h.defs.Create(ctx, CreateDefinitionRequest{
		Name:   "all-hands",
		Config: entity.WorkflowConfig{Stages: []entity.Stage{{Name: "all", Approvers: approvers, RequireAll: true}}},
	})
	require.NoError(t, err)
	inst := h.submit(t, def.ID)

	var wg sync.WaitGroup
	for _, a := range approvers {
		wg.Add(1)
		go func(a string) {
			defer wg.Done()
			_, err := h.engine.Approve(ctx, inst.ID, a, "")
			assert.NoError(t, err)
		}(a)
	}
	wg.Wait()

	stored, err := h.instances.GetByID(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, domainwf.StateApproved, stored.Status)
	assert.Len(t, stored.Decisions, len(approvers))
}

// conflictingStore always loses the compare-and-swap
type conflictingStore struct {
	*memory.InstanceStore
	attempts int
}

func (s *conflictingStore) AppendDecision(ctx context.Context, next *entity.ApprovalInstance, d *entity.Decision, expected int64) error {
	s.attempts++
	return port.ErrVersionConflict
}

func TestRetriesExhausted(t *testing.T) {
	ctx := context.Background()
	defs := memory.NewDefinitionStore()
	store := &conflictingStore{InstanceStore: memory.NewInstanceStore()}
	docs := memory.NewDocuments(entity.Document{ID: "doc", OwnerID: "owner"})
	perms := permission.NewEngine(memory.NewGrantStore(), docs, memory.NewUsers())
	engine := NewEngine(defs, store, perms)

	def, err := NewDefinitionService(defs, nil, nil).Create(ctx, CreateDefinitionRequest{
		Name:   "x",
		Config: entity.WorkflowConfig{Stages: []entity.Stage{{Name: "s", Approvers: []string{"A"}}}},
	})
	require.NoError(t, err)
	inst, err := engine.Submit(ctx, "doc", def.ID, "owner")
	require.NoError(t, err)

	_, err = engine.Approve(ctx, inst.ID, "A", "")
	assert.ErrorIs(t, err, entity.ErrConcurrentModification)
	assert.Equal(t, entity.KindConflict, entity.KindOf(err))
	assert.Equal(t, DefaultMaxAttempts, store.attempts)
}

func TestQueries(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	wf := h.twoStage(t)
	inst := h.submit(t, wf)

	_, err := h.engine.GetInstance(ctx, inst.ID, "C")
	require.NoError(t, err, "later-stage approvers can read")
	_, err = h.engine.GetInstance(ctx, inst.ID, "stranger")
	assert.ErrorIs(t, err, entity.ErrPermissionDenied)
	_, err = h.engine.GetInstance(ctx, "nope", "owner")
	assert.ErrorIs(t, err, entity.ErrInstanceNotFound)

	pending, err := h.engine.PendingForApprover(ctx, "A")
	require.NoError(t, err)
	require.Len(t, pending, 1)

	_, err = h.engine.Approve(ctx, inst.ID, "A", "")
	require.NoError(t, err)
	pending, _ = h.engine.PendingForApprover(ctx, "A")
	assert.Empty(t, pending, "A already decided")
	pending, _ = h.engine.PendingForApprover(ctx, "B")
	assert.Len(t, pending, 1)
	pending, _ = h.engine.PendingForApprover(ctx, "C")
	assert.Empty(t, pending, "C waits for stage 1")

	list, err := h.engine.ListForDocument(ctx, "doc", "owner")
	require.NoError(t, err)
	assert.Len(t, list, 1)
	_, err = h.engine.ListForDocument(ctx, "doc", "A")
	assert.ErrorIs(t, err, entity.ErrPermissionDenied)
}

func TestDefinitionService(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	wf := h.twoStage(t)

	_, err := h.defs.Create(ctx, CreateDefinitionRequest{
		Name:   "contract review",
		Config: entity.WorkflowConfig{Stages: []entity.Stage{{Name: "s", Approvers: []string{"A"}}}},
	})
	assert.ErrorIs(t, err, entity.ErrDuplicateWorkflowName)

	_, err = h.defs.Create(ctx, CreateDefinitionRequest{Name: "empty"})
	assert.ErrorIs(t, err, entity.ErrInvalidWorkflowDefinition)

	_, err = h.defs.Create(ctx, CreateDefinitionRequest{
		Name:   " ",
		Config: entity.WorkflowConfig{Stages: []entity.Stage{{Name: "s", Approvers: []string{"A"}}}},
	})
	assert.ErrorIs(t, err, entity.ErrInvalidWorkflowDefinition)

	other, err := h.defs.Create(ctx, CreateDefinitionRequest{
		Name:   "other",
		Config: entity.WorkflowConfig{Stages: []entity.Stage{{Name: "s", Approvers: []string{"A"}}}},
	})
	require.NoError(t, err)

	name := "contract review"
	_, err = h.defs.Update(ctx, other.ID, UpdateDefinitionRequest{Name: &name})
	assert.ErrorIs(t, err, entity.ErrDuplicateWorkflowName)

	_, err = h.defs.Get(ctx, 12345)
	assert.ErrorIs(t, err, entity.ErrWorkflowNotFound)

	inactive := false
	_, err = h.defs.Update(ctx, wf, UpdateDefinitionRequest{Active: &inactive})
	require.NoError(t, err)

	active, err := h.defs.List(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "other", active[0].Name)

	all, err := h.defs.List(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestClockIsUsed(t *testing.T) {
	fixed := time.Date(2026, 5, 5, 9, 0, 0, 0, time.UTC)
	h := newHarness(t, WithClock(func() time.Time { return fixed }))
	inst := h.submit(t, h.twoStage(t))
	assert.Equal(t, fixed, inst.SubmittedAt)
}
