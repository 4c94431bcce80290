package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/doc-approval/internal/application/dispatcher"
	"github.com/garyjia/doc-approval/internal/application/port"
	"github.com/garyjia/doc-approval/internal/domain/entity"
	"github.com/garyjia/doc-approval/internal/domain/event"
	domainwf "github.com/garyjia/doc-approval/internal/domain/workflow"
	"github.com/garyjia/doc-approval/pkg/ids"
)

// DefaultMaxAttempts bounds optimistic retries of a single decision
const DefaultMaxAttempts = 3

// Engine drives approval instances through their stages
type Engine interface {
	// Submit starts an approval of documentID under workflowID
	Submit(ctx context.Context, documentID string, workflowID int64, submitterID string) (*entity.ApprovalInstance, error)

	// Approve records an approve decision and advances or completes the instance
	Approve(ctx context.Context, instanceID, approverID, comment string) (*entity.ApprovalInstance, error)

	// Reject records a reject decision; the instance becomes REJECTED
	Reject(ctx context.Context, instanceID, approverID, comment string) (*entity.ApprovalInstance, error)

	// GetInstance returns an instance visible to requesterID
	GetInstance(ctx context.Context, instanceID, requesterID string) (*entity.ApprovalInstance, error)

	// ListForDocument returns every instance of a document the requester can view
	ListForDocument(ctx context.Context, documentID, requesterID string) ([]*entity.ApprovalInstance, error)

	// PendingForApprover lists instances waiting on userID at their current stage
	PendingForApprover(ctx context.Context, userID string) ([]*entity.ApprovalInstance, error)
}

// PermissionChecker is the slice of the permission engine the workflow needs
type PermissionChecker interface {
	CheckPermission(ctx context.Context, documentID, userID string, t entity.PermissionType) (bool, error)
}

type engineImpl struct {
	definitions port.WorkflowDefinitionStore
	instances   port.ApprovalInstanceStore
	permissions PermissionChecker
	dispatcher  dispatcher.Dispatcher
	logger      port.Logger
	metrics     port.Metrics

	maxAttempts int
	now         func() time.Time
}

// EngineOption configures the workflow engine
type EngineOption func(*engineImpl)

// WithDispatcher sets the event dispatcher for emitting events
func WithDispatcher(d dispatcher.Dispatcher) EngineOption {
	return func(e *engineImpl) {
		e.dispatcher = d
	}
}

// WithLogger sets the logger
func WithLogger(l port.Logger) EngineOption {
	return func(e *engineImpl) {
		e.logger = l
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(m port.Metrics) EngineOption {
	return func(e *engineImpl) {
		e.metrics = m
	}
}

// WithMaxAttempts sets how many times a conflicting decision is re-evaluated
func WithMaxAttempts(n int) EngineOption {
	return func(e *engineImpl) {
		if n > 0 {
			e.maxAttempts = n
		}
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) EngineOption {
	return func(e *engineImpl) {
		e.now = now
	}
}

// NewEngine creates a new workflow engine
func NewEngine(
	definitions port.WorkflowDefinitionStore,
	instances port.ApprovalInstanceStore,
	permissions PermissionChecker,
	opts ...EngineOption,
) Engine {
	e := &engineImpl{
		definitions: definitions,
		instances:   instances,
		permissions: permissions,
		logger:      port.NopLogger{},
		metrics:     port.NopMetrics{},
		maxAttempts: DefaultMaxAttempts,
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

func (e *engineImpl) Submit(ctx context.Context, documentID string, workflowID int64, submitterID string) (*entity.ApprovalInstance, error) {
	allowed, err := e.permissions.CheckPermission(ctx, documentID, submitterID, entity.PermissionView)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, entity.ErrPermissionDenied
	}

	def, err := e.definitions.GetByID(ctx, workflowID)
	if err != nil {
		return nil, e.storageErr("load workflow", err, "workflow_id", workflowID)
	}
	if def == nil || !def.Active {
		return nil, fmt.Errorf("%w: %d", entity.ErrWorkflowNotFound, workflowID)
	}

	pending, err := e.instances.FindPending(ctx, documentID)
	if err != nil {
		return nil, e.storageErr("find pending instance", err, "document_id", documentID)
	}
	if pending != nil {
		return nil, entity.ErrDocumentAlreadyInWorkflow
	}

	inst := &entity.ApprovalInstance{
		ID:              ids.New(),
		DocumentID:      documentID,
		WorkflowID:      def.ID,
		WorkflowVersion: def.Version,
		Stages:          entity.CloneStages(def.Stages),
		SubmittedBy:     submitterID,
		SubmittedAt:     e.now().UTC(),
		CurrentStage:    0,
		Status:          domainwf.StatePending,
		Version:         1,
		Decisions:       []entity.Decision{},
	}

	if err := e.instances.Create(ctx, inst); err != nil {
		if errors.Is(err, port.ErrDuplicateKey) {
			return nil, entity.ErrDocumentAlreadyInWorkflow
		}
		return nil, e.storageErr("create instance", err, "document_id", documentID)
	}

	e.logger.Info("Approval submitted",
		"instance_id", inst.ID,
		"document_id", documentID,
		"workflow_id", def.ID,
		"submitted_by", submitterID,
	)
	e.metrics.InstanceTransitioned(inst.Status.String())

	stage := inst.Stages[0]
	e.publish(ctx, event.NewEvent(event.TypeInstanceSubmitted, documentID, inst.ID, submitterID, map[string]interface{}{
		event.KeyWorkflowID:   def.ID,
		event.KeyWorkflowName: def.Name,
		event.KeyStageIndex:   0,
		event.KeyStageName:    stage.Name,
		event.KeyApprovers:    append([]string(nil), stage.Approvers...),
		event.KeySubmittedBy:  submitterID,
	}))

	return inst, nil
}

func (e *engineImpl) Approve(ctx context.Context, instanceID, approverID, comment string) (*entity.ApprovalInstance, error) {
	return e.decide(ctx, instanceID, approverID, entity.OutcomeApprove, comment)
}

func (e *engineImpl) Reject(ctx context.Context, instanceID, approverID, comment string) (*entity.ApprovalInstance, error) {
	if strings.TrimSpace(comment) == "" {
		return nil, entity.ErrCommentRequired
	}
	return e.decide(ctx, instanceID, approverID, entity.OutcomeReject, comment)
}

// decide performs the read-evaluate-write cycle, re-reading on version
// conflicts so eligibility (including duplicate detection) is re-checked
func (e *engineImpl) decide(ctx context.Context, instanceID, approverID string, outcome entity.Outcome, comment string) (*entity.ApprovalInstance, error) {
	for attempt := 1; ; attempt++ {
		current, err := e.instances.GetByID(ctx, instanceID)
		if err != nil {
			return nil, e.storageErr("load instance", err, "instance_id", instanceID)
		}
		if current == nil {
			return nil, entity.ErrInstanceNotFound
		}

		t, err := e.apply(ctx, current, approverID, outcome, comment)
		if err != nil {
			return nil, err
		}

		err = e.instances.AppendDecision(ctx, t.next, t.decision, current.Version)
		if errors.Is(err, port.ErrVersionConflict) {
			e.metrics.VersionConflict()
			e.logger.Info("Decision version conflict",
				"instance_id", instanceID,
				"approver_id", approverID,
				"attempt", attempt,
			)
			if attempt >= e.maxAttempts {
				return nil, entity.ErrConcurrentModification
			}
			continue
		}
		if err != nil {
			return nil, e.storageErr("append decision", err, "instance_id", instanceID)
		}

		t.next.Decisions[len(t.next.Decisions)-1].ID = t.decision.ID

		e.logger.Info("Decision recorded",
			"instance_id", instanceID,
			"approver_id", approverID,
			"outcome", outcome,
			"stage", t.decision.StageIndex,
			"status", t.next.Status,
		)
		e.metrics.DecisionRecorded(string(outcome))
		if t.next.Status != current.Status || t.next.CurrentStage != current.CurrentStage {
			e.metrics.InstanceTransitioned(t.next.Status.String())
		}
		e.publish(ctx, t.evt)

		return t.next, nil
	}
}

// transition is the computed result of applying one decision
type transition struct {
	next     *entity.ApprovalInstance
	decision *entity.Decision
	evt      *event.Event
}

func (e *engineImpl) apply(ctx context.Context, current *entity.ApprovalInstance, approverID string, outcome entity.Outcome, comment string) (*transition, error) {
	if !current.Status.IsValid() {
		return nil, e.storageErr("load instance", fmt.Errorf("invalid stored status %q", current.Status), "instance_id", current.ID)
	}
	if current.IsTerminal() {
		return nil, entity.ErrAlreadyDecided
	}

	stage := current.CurrentStageDef()
	if stage == nil {
		return nil, e.storageErr("load instance", fmt.Errorf("stage %d out of range", current.CurrentStage), "instance_id", current.ID)
	}
	if !stage.HasApprover(approverID) {
		return nil, entity.ErrNotAnApprover
	}
	if current.HasDecision(current.CurrentStage, approverID) {
		return nil, entity.ErrDuplicateDecision
	}

	now := e.now().UTC()
	decision := &entity.Decision{
		InstanceID: current.ID,
		StageIndex: current.CurrentStage,
		ApproverID: approverID,
		Outcome:    outcome,
		Comment:    comment,
		DecidedAt:  now,
	}

	next := current.Clone()
	next.Decisions = append(next.Decisions, *decision)
	next.Version = current.Version + 1

	complete := next.StageComplete()
	machine := domainwf.NewApprovalMachine(current.Status, domainwf.StageProgress{
		Complete: complete,
		Last:     next.IsLastStage(),
	})

	trigger := domainwf.TriggerApprove
	if outcome == entity.OutcomeReject {
		trigger = domainwf.TriggerReject
	}
	if err := machine.Fire(ctx, trigger); err != nil {
		if errors.Is(err, domainwf.ErrInvalidTransition) {
			return nil, entity.ErrAlreadyDecided
		}
		return nil, err
	}
	next.Status = machine.State()

	payload := map[string]interface{}{
		event.KeyStageIndex:  decision.StageIndex,
		event.KeyStageName:   stage.Name,
		event.KeyOutcome:     string(outcome),
		event.KeyComment:     comment,
		event.KeySubmittedBy: current.SubmittedBy,
	}

	var evtType event.Type
	switch {
	case next.Status == domainwf.StateRejected:
		evtType = event.TypeInstanceRejected
	case next.Status == domainwf.StateApproved:
		evtType = event.TypeInstanceApproved
	case complete:
		next.CurrentStage++
		evtType = event.TypeStageAdvanced
		advanced := next.Stages[next.CurrentStage]
		payload[event.KeyNextStage] = next.CurrentStage
		payload[event.KeyNextStageName] = advanced.Name
		payload[event.KeyApprovers] = append([]string(nil), advanced.Approvers...)
	default:
		evtType = event.TypeDecisionRecorded
	}

	if next.IsTerminal() {
		next.CompletedAt = &now
	}

	return &transition{
		next:     next,
		decision: decision,
		evt:      event.NewEvent(evtType, current.DocumentID, current.ID, approverID, payload),
	}, nil
}

func (e *engineImpl) publish(ctx context.Context, evt *event.Event) {
	if e.dispatcher != nil {
		e.dispatcher.DispatchAsync(ctx, evt)
	}
}

// storageErr logs the driver detail and returns an opaque storage error
func (e *engineImpl) storageErr(op string, err error, keysAndValues ...interface{}) error {
	if errors.Is(err, entity.ErrStorage) {
		return err
	}
	e.logger.Error("Workflow store failure", append([]interface{}{"op", op, "error", err}, keysAndValues...)...)
	return fmt.Errorf("%w: %s", entity.ErrStorage, op)
}
