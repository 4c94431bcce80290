package port

import (
	"context"
	"time"
)

// UserDirectory answers questions about grant targets
type UserDirectory interface {
	Exists(ctx context.Context, userID string) (bool, error)
	IsActive(ctx context.Context, userID string) (bool, error)
}

// OwnerLookup resolves document ownership; "" means the document is unknown
type OwnerLookup interface {
	GetOwner(ctx context.Context, documentID string) (string, error)
}

// AuditRecord is one entry in the audit trail
type AuditRecord struct {
	ID         int64                  `json:"id,omitempty"`
	EventID    string                 `json:"event_id"`
	DocumentID string                 `json:"document_id"`
	ActorID    string                 `json:"actor_id"`
	Action     string                 `json:"action"`
	InstanceID string                 `json:"instance_id,omitempty"`
	StageIndex *int                   `json:"stage_index,omitempty"`
	Outcome    string                 `json:"outcome,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// AuditSink accepts audit records
type AuditSink interface {
	Record(ctx context.Context, rec AuditRecord) error
}

// NotificationGateway delivers a templated message to one user
type NotificationGateway interface {
	Notify(ctx context.Context, recipientID, templateID string, data map[string]interface{}) error
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// NopLogger discards everything
type NopLogger struct{}

func (NopLogger) Info(string, ...interface{})  {}
func (NopLogger) Error(string, ...interface{}) {}

// Metrics receives engine counters
type Metrics interface {
	PermissionChecked(t string, allowed bool)
	DecisionRecorded(outcome string)
	InstanceTransitioned(status string)
	VersionConflict()
	NotificationSent(templateID string)
}

// NopMetrics discards everything
type NopMetrics struct{}

func (NopMetrics) PermissionChecked(string, bool) {}
func (NopMetrics) DecisionRecorded(string)        {}
func (NopMetrics) InstanceTransitioned(string)    {}
func (NopMetrics) VersionConflict()               {}
func (NopMetrics) NotificationSent(string)        {}
