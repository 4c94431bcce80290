package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/garyjia/doc-approval/internal/application/dispatcher"
	"github.com/garyjia/doc-approval/internal/application/port"
	"github.com/garyjia/doc-approval/internal/domain/entity"
	"github.com/garyjia/doc-approval/internal/domain/event"
)

// AuditedEvents lists every event type that lands in the audit trail
var AuditedEvents = []event.Type{
	event.TypePermissionGranted,
	event.TypePermissionRevoked,
	event.TypeGrantsSwept,
	event.TypeWorkflowCreated,
	event.TypeWorkflowUpdated,
	event.TypeInstanceSubmitted,
	event.TypeDecisionRecorded,
	event.TypeStageAdvanced,
	event.TypeInstanceApproved,
	event.TypeInstanceRejected,
}

// AuditRecorder turns domain events into audit records and fans them out
// to every configured sink
type AuditRecorder struct {
	sinks  []port.AuditSink
	logger port.Logger
}

// NewAuditRecorder creates an AuditRecorder
func NewAuditRecorder(logger port.Logger, sinks ...port.AuditSink) *AuditRecorder {
	if logger == nil {
		logger = port.NopLogger{}
	}
	return &AuditRecorder{sinks: sinks, logger: logger}
}

// Register subscribes the recorder to all audited events
func (r *AuditRecorder) Register(d dispatcher.Dispatcher) {
	d.SubscribeMany(AuditedEvents, "audit", r.Handle)
}

// Handle records one event. Every sink is attempted; failures are joined.
func (r *AuditRecorder) Handle(ctx context.Context, evt *event.Event) error {
	rec := RecordFromEvent(evt)

	var errs []error
	for _, sink := range r.sinks {
		if err := sink.Record(ctx, rec); err != nil {
			errs = append(errs, fmt.Errorf("%T: %w", sink, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("record audit %s: %w", evt.Type, errors.Join(errs...))
	}
	return nil
}

// RecordFromEvent maps a domain event onto an audit record
func RecordFromEvent(evt *event.Event) port.AuditRecord {
	rec := port.AuditRecord{
		EventID:    evt.ID,
		DocumentID: evt.DocumentID,
		ActorID:    evt.ActorID,
		Action:     actionFor(evt.Type),
		InstanceID: evt.InstanceID,
		Outcome:    evt.GetPayloadString(event.KeyOutcome),
		Timestamp:  evt.Timestamp,
	}

	if evt.HasPayload(event.KeyStageIndex) {
		stage := int(evt.GetPayloadInt(event.KeyStageIndex))
		rec.StageIndex = &stage
	}

	details := make(map[string]interface{}, len(evt.Payload))
	for k, v := range evt.Payload {
		if k == event.KeyOutcome || k == event.KeyStageIndex {
			continue
		}
		details[k] = v
	}
	if len(details) > 0 {
		rec.Details = details
	}

	return rec
}

func actionFor(t event.Type) string {
	switch t {
	case event.TypePermissionGranted:
		return entity.ActionPermissionGranted
	case event.TypePermissionRevoked:
		return entity.ActionPermissionRevoked
	case event.TypeGrantsSwept:
		return entity.ActionGrantsSwept
	case event.TypeWorkflowCreated:
		return entity.ActionWorkflowCreated
	case event.TypeWorkflowUpdated:
		return entity.ActionWorkflowUpdated
	case event.TypeInstanceSubmitted:
		return entity.ActionWorkflowSubmitted
	case event.TypeDecisionRecorded, event.TypeStageAdvanced, event.TypeInstanceApproved:
		return entity.ActionWorkflowApproved
	case event.TypeInstanceRejected:
		return entity.ActionWorkflowRejected
	default:
		return t.String()
	}
}
