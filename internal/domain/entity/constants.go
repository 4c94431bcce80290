package entity

// Decision outcomes
const (
	OutcomeApprove Outcome = "approve"
	OutcomeReject  Outcome = "reject"
)

// Audit actions recorded for engine operations
const (
	ActionPermissionGranted = "permission.grant"
	ActionPermissionRevoked = "permission.revoke"
	ActionGrantsSwept       = "permission.sweep"
	ActionWorkflowCreated   = "workflow.create"
	ActionWorkflowUpdated   = "workflow.update"
	ActionWorkflowSubmitted = "workflow.submit"
	ActionWorkflowApproved  = "workflow.approve"
	ActionWorkflowRejected  = "workflow.reject"
)

// Notification templates understood by the gateways
const (
	TemplateApprovalRequested = "approval.requested"
	TemplateApprovalApproved  = "approval.approved"
	TemplateApprovalRejected  = "approval.rejected"
	TemplateDocumentShared    = "document.shared"
)

// MaxUserIDLength bounds user identifiers accepted in workflow configuration
const MaxUserIDLength = 128
