package event

// Type identifies the type of domain event
type Type string

const (
	TypePermissionGranted Type = "permission.granted"
	TypePermissionRevoked Type = "permission.revoked"
	TypeGrantsSwept       Type = "permission.swept"
	TypeWorkflowCreated   Type = "workflow.created"
	TypeWorkflowUpdated   Type = "workflow.updated"
	TypeInstanceSubmitted Type = "instance.submitted"
	TypeDecisionRecorded  Type = "decision.recorded"
	TypeStageAdvanced     Type = "stage.advanced"
	TypeInstanceApproved  Type = "instance.approved"
	TypeInstanceRejected  Type = "instance.rejected"
)

// Payload keys shared by publishers and subscribers
const (
	KeyPermissionType = "permission_type"
	KeyTargetID       = "target_id"
	KeyExpiresAt      = "expires_at"
	KeyCount          = "count"
	KeyWorkflowID     = "workflow_id"
	KeyWorkflowName   = "workflow_name"
	KeyStageIndex     = "stage_index"
	KeyStageName      = "stage_name"
	KeyNextStage      = "next_stage_index"
	KeyNextStageName  = "next_stage_name"
	KeyApprovers      = "approvers"
	KeySubmittedBy    = "submitted_by"
	KeyOutcome        = "outcome"
	KeyComment        = "comment"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypePermissionGranted,
		TypePermissionRevoked,
		TypeGrantsSwept,
		TypeWorkflowCreated,
		TypeWorkflowUpdated,
		TypeInstanceSubmitted,
		TypeDecisionRecorded,
		TypeStageAdvanced,
		TypeInstanceApproved,
		TypeInstanceRejected:
		return true
	default:
		return false
	}
}

// IsWorkflow reports whether the event concerns an approval instance
func (t Type) IsWorkflow() bool {
	switch t {
	case TypeInstanceSubmitted, TypeDecisionRecorded, TypeStageAdvanced, TypeInstanceApproved, TypeInstanceRejected:
		return true
	default:
		return false
	}
}
