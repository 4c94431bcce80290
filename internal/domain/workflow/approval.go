package workflow

import "context"

// StageProgress describes the current stage once the incoming decision has been counted
type StageProgress struct {
	// Complete is true when the stage's completion rule is satisfied
	Complete bool
	// Last is true when the current stage is the final one
	Last bool
}

// NewApprovalMachine returns the approval lifecycle positioned at current.
//
//	PENDING --APPROVE [complete && last]--> APPROVED
//	PENDING --APPROVE--> PENDING   (advance or keep waiting)
//	PENDING --REJECT--> REJECTED
//
// Terminal states accept no triggers.
func NewApprovalMachine(current State, progress StageProgress) StateMachine {
	b := NewBuilder()

	b.Configure(StatePending).
		PermitIf(TriggerApprove, StateApproved, func(context.Context) bool {
			return progress.Complete && progress.Last
		}).
		Permit(TriggerApprove, StatePending).
		Permit(TriggerReject, StateRejected)

	b.Configure(StateApproved)
	b.Configure(StateRejected)

	return b.Build(current)
}
