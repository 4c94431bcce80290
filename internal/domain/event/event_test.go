package event

import (
	"testing"
	"time"

	"github.com/garyjia/doc-approval/pkg/ids"
)

func TestType_IsValid(t *testing.T) {
	tests := []struct {
		name      string
		eventType Type
		want      bool
	}{
		{name: "permission granted", eventType: TypePermissionGranted, want: true},
		{name: "permission revoked", eventType: TypePermissionRevoked, want: true},
		{name: "grants swept", eventType: TypeGrantsSwept, want: true},
		{name: "workflow created", eventType: TypeWorkflowCreated, want: true},
		{name: "instance submitted", eventType: TypeInstanceSubmitted, want: true},
		{name: "decision recorded", eventType: TypeDecisionRecorded, want: true},
		{name: "stage advanced", eventType: TypeStageAdvanced, want: true},
		{name: "instance approved", eventType: TypeInstanceApproved, want: true},
		{name: "instance rejected", eventType: TypeInstanceRejected, want: true},
		{name: "unknown type", eventType: Type("unknown.type"), want: false},
		{name: "empty string", eventType: Type(""), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.eventType.IsValid(); got != tt.want {
				t.Errorf("Type.IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestType_IsWorkflow(t *testing.T) {
	if !TypeStageAdvanced.IsWorkflow() {
		t.Error("stage.advanced should be a workflow event")
	}
	if TypePermissionGranted.IsWorkflow() {
		t.Error("permission.granted should not be a workflow event")
	}
}

func TestNewEvent(t *testing.T) {
	payload := map[string]interface{}{
		KeyOutcome: "approve",
	}

	event := NewEvent(TypeDecisionRecorded, "doc-1", "inst-1", "alice", payload)

	if event == nil {
		t.Fatal("NewEvent() returned nil")
	}
	if !ids.Valid(event.ID) {
		t.Errorf("Event ID %q should be a ULID", event.ID)
	}
	if event.Type != TypeDecisionRecorded {
		t.Errorf("Event Type = %v, want %v", event.Type, TypeDecisionRecorded)
	}
	if event.DocumentID != "doc-1" || event.InstanceID != "inst-1" || event.ActorID != "alice" {
		t.Errorf("unexpected identity fields: %+v", event)
	}
	if event.GetPayloadString(KeyOutcome) != "approve" {
		t.Errorf("Event Payload[outcome] = %v, want approve", event.Payload[KeyOutcome])
	}
	if event.CorrelationID == "" {
		t.Error("Event CorrelationID should not be empty")
	}
	if time.Since(event.Timestamp) > time.Second {
		t.Error("Event Timestamp should be recent")
	}
}

func TestNewEventWithCorrelation_NilPayload(t *testing.T) {
	event := NewEventWithCorrelation(TypeGrantsSwept, "", "", "system", nil, "corr-1")

	if event.CorrelationID != "corr-1" {
		t.Errorf("Event CorrelationID = %v, want corr-1", event.CorrelationID)
	}
	if event.Payload == nil {
		t.Fatal("Event Payload should be initialized")
	}
}

func TestEvent_WithPayload(t *testing.T) {
	original := NewEvent(TypeInstanceSubmitted, "doc", "inst", "bob", map[string]interface{}{
		"key1": "value1",
	})

	modified := original.WithPayload("key2", "value2")

	if _, exists := original.Payload["key2"]; exists {
		t.Error("Original event should not be modified")
	}
	if modified.Payload["key1"] != "value1" || modified.Payload["key2"] != "value2" {
		t.Error("Modified event should carry both payload keys")
	}
	if modified.ID != original.ID || modified.CorrelationID != original.CorrelationID {
		t.Error("Modified event should keep identity fields")
	}
}

func TestEvent_PayloadAccessors(t *testing.T) {
	when := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	event := NewEvent(TypeStageAdvanced, "doc", "inst", "carol", map[string]interface{}{
		KeyStageIndex: 2,
		KeyApprovers:  []string{"a", "b"},
		"decoded":     []interface{}{"x", 1, "y"},
		KeyExpiresAt:  when.Format(time.RFC3339Nano),
		"typed_time":  when,
		"not_a_list":  "a",
	})

	if got := event.GetPayloadInt(KeyStageIndex); got != 2 {
		t.Errorf("GetPayloadInt = %d, want 2", got)
	}
	if got := event.GetPayloadInt("missing"); got != 0 {
		t.Errorf("GetPayloadInt(missing) = %d, want 0", got)
	}
	if got := event.GetPayloadStrings(KeyApprovers); len(got) != 2 || got[1] != "b" {
		t.Errorf("GetPayloadStrings = %v", got)
	}
	if got := event.GetPayloadStrings("decoded"); len(got) != 2 || got[1] != "y" {
		t.Errorf("GetPayloadStrings(decoded) = %v", got)
	}
	if got := event.GetPayloadStrings("not_a_list"); got != nil {
		t.Errorf("GetPayloadStrings(not_a_list) = %v, want nil", got)
	}
	if got := event.GetPayloadTime(KeyExpiresAt); got == nil || !got.Equal(when) {
		t.Errorf("GetPayloadTime = %v, want %v", got, when)
	}
	if got := event.GetPayloadTime("typed_time"); got == nil || !got.Equal(when) {
		t.Errorf("GetPayloadTime(typed_time) = %v", got)
	}
	if event.GetPayloadTime("missing") != nil {
		t.Error("GetPayloadTime(missing) should be nil")
	}
	if !event.HasPayload(KeyStageIndex) || event.HasPayload("missing") {
		t.Error("HasPayload mismatch")
	}
}
