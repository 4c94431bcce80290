package service

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/garyjia/doc-approval/internal/application/dispatcher"
	"github.com/garyjia/doc-approval/internal/application/port"
	"github.com/garyjia/doc-approval/internal/domain/entity"
	"github.com/garyjia/doc-approval/internal/domain/event"
)

// NotifiedEvents lists the event types that produce user notifications
var NotifiedEvents = []event.Type{
	event.TypeInstanceSubmitted,
	event.TypeStageAdvanced,
	event.TypeInstanceApproved,
	event.TypeInstanceRejected,
	event.TypePermissionGranted,
}

// Notifier translates domain events into gateway notifications:
// current-stage approvers on submit and advance, the submitter on
// completion, and the target of a new grant
type Notifier struct {
	gateway port.NotificationGateway
	limiter *rate.Limiter
	metrics port.Metrics
	logger  port.Logger
}

// NotifierOption configures the Notifier
type NotifierOption func(*Notifier)

// WithRateLimit throttles outgoing notifications; rps <= 0 disables throttling
func WithRateLimit(rps float64, burst int) NotifierOption {
	return func(n *Notifier) {
		if rps <= 0 {
			n.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		n.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithNotifierMetrics sets the metrics sink
func WithNotifierMetrics(m port.Metrics) NotifierOption {
	return func(n *Notifier) {
		n.metrics = m
	}
}

// NewNotifier creates a Notifier
func NewNotifier(gateway port.NotificationGateway, logger port.Logger, opts ...NotifierOption) *Notifier {
	if logger == nil {
		logger = port.NopLogger{}
	}
	n := &Notifier{
		gateway: gateway,
		metrics: port.NopMetrics{},
		logger:  logger,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Register subscribes the notifier to the events it handles
func (n *Notifier) Register(d dispatcher.Dispatcher) {
	d.SubscribeMany(NotifiedEvents, "notifier", n.Handle)
}

// Handle sends every notification implied by evt
func (n *Notifier) Handle(ctx context.Context, evt *event.Event) error {
	template, recipients, data := n.plan(evt)
	if template == "" || len(recipients) == 0 {
		return nil
	}

	var errs []error
	for _, recipient := range recipients {
		if n.limiter != nil {
			if err := n.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("notification throttled: %w", err)
			}
		}

		if err := n.gateway.Notify(ctx, recipient, template, data); err != nil {
			errs = append(errs, fmt.Errorf("notify %s: %w", recipient, err))
			continue
		}

		n.metrics.NotificationSent(template)
		n.logger.Info("Notification sent",
			"template", template,
			"recipient", recipient,
			"event_id", evt.ID,
		)
	}

	return errors.Join(errs...)
}

// plan decides template, recipients and template data for evt
func (n *Notifier) plan(evt *event.Event) (string, []string, map[string]interface{}) {
	data := map[string]interface{}{
		"document_id": evt.DocumentID,
		"actor_id":    evt.ActorID,
	}
	if evt.InstanceID != "" {
		data["instance_id"] = evt.InstanceID
	}

	switch evt.Type {
	case event.TypeInstanceSubmitted:
		data["stage_name"] = evt.GetPayloadString(event.KeyStageName)
		data["submitted_by"] = evt.GetPayloadString(event.KeySubmittedBy)
		data["workflow_name"] = evt.GetPayloadString(event.KeyWorkflowName)
		return entity.TemplateApprovalRequested, evt.GetPayloadStrings(event.KeyApprovers), data

	case event.TypeStageAdvanced:
		data["stage_name"] = evt.GetPayloadString(event.KeyNextStageName)
		data["submitted_by"] = evt.GetPayloadString(event.KeySubmittedBy)
		return entity.TemplateApprovalRequested, evt.GetPayloadStrings(event.KeyApprovers), data

	case event.TypeInstanceApproved, event.TypeInstanceRejected:
		data["comment"] = evt.GetPayloadString(event.KeyComment)
		data["decided_by"] = evt.ActorID
		template := entity.TemplateApprovalApproved
		if evt.Type == event.TypeInstanceRejected {
			template = entity.TemplateApprovalRejected
		}
		return template, single(evt.GetPayloadString(event.KeySubmittedBy)), data

	case event.TypePermissionGranted:
		data["permission_type"] = evt.GetPayloadString(event.KeyPermissionType)
		data["granted_by"] = evt.ActorID
		if exp := evt.GetPayloadString(event.KeyExpiresAt); exp != "" {
			data["expires_at"] = exp
		}
		return entity.TemplateDocumentShared, single(evt.GetPayloadString(event.KeyTargetID)), data
	}

	return "", nil, nil
}

func single(id string) []string {
	if id == "" {
		return nil
	}
	return []string{id}
}
