package entity

import (
	"time"

	"github.com/garyjia/doc-approval/internal/domain/workflow"
)

// Outcome is the verdict an approver records on a stage
type Outcome string

// IsValid reports whether o is approve or reject
func (o Outcome) IsValid() bool {
	return o == OutcomeApprove || o == OutcomeReject
}

// Decision is one approver verdict, appended in commit order
type Decision struct {
	ID         int64     `json:"id,omitempty"`
	InstanceID string    `json:"instance_id"`
	StageIndex int       `json:"stage_index"`
	ApproverID string    `json:"approver_id"`
	Outcome    Outcome   `json:"outcome"`
	Comment    string    `json:"comment,omitempty"`
	DecidedAt  time.Time `json:"decided_at"`
}

// ApprovalInstance is one submission of a document to a workflow.
// Stages is the definition snapshot taken at submit time.
type ApprovalInstance struct {
	ID              string         `json:"id"`
	DocumentID      string         `json:"document_id"`
	WorkflowID      int64          `json:"workflow_id"`
	WorkflowVersion int64          `json:"workflow_version"`
	Stages          []Stage        `json:"stages"`
	SubmittedBy     string         `json:"submitted_by"`
	SubmittedAt     time.Time      `json:"submitted_at"`
	CurrentStage    int            `json:"current_stage"`
	Status          workflow.State `json:"status"`
	Version         int64          `json:"version"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
	Decisions       []Decision     `json:"decisions"`
}

// IsTerminal reports whether no further decisions can be recorded
func (i *ApprovalInstance) IsTerminal() bool {
	return i.Status.IsTerminal()
}

// CurrentStageDef returns the stage awaiting decisions, or nil once terminal
func (i *ApprovalInstance) CurrentStageDef() *Stage {
	if i.IsTerminal() || i.CurrentStage < 0 || i.CurrentStage >= len(i.Stages) {
		return nil
	}
	return &i.Stages[i.CurrentStage]
}

// IsLastStage reports whether the current stage is the final one
func (i *ApprovalInstance) IsLastStage() bool {
	return i.CurrentStage == len(i.Stages)-1
}

// HasDecision reports whether userID already decided at stage
func (i *ApprovalInstance) HasDecision(stage int, userID string) bool {
	for _, d := range i.Decisions {
		if d.StageIndex == stage && d.ApproverID == userID {
			return true
		}
	}
	return false
}

// StageApprovals returns the set of approvers with an approve decision at stage
func (i *ApprovalInstance) StageApprovals(stage int) map[string]bool {
	approved := make(map[string]bool)
	for _, d := range i.Decisions {
		if d.StageIndex == stage && d.Outcome == OutcomeApprove {
			approved[d.ApproverID] = true
		}
	}
	return approved
}

// StageComplete reports whether the current stage's completion rule is met
func (i *ApprovalInstance) StageComplete() bool {
	stage := i.CurrentStageDef()
	if stage == nil {
		return false
	}
	approved := i.StageApprovals(i.CurrentStage)
	if !stage.RequireAll {
		return len(approved) > 0
	}
	for _, a := range stage.Approvers {
		if !approved[a] {
			return false
		}
	}
	return true
}

// IsParticipant reports whether userID submitted the instance or appears
// as an approver on any snapshotted stage
func (i *ApprovalInstance) IsParticipant(userID string) bool {
	if i.SubmittedBy == userID {
		return true
	}
	for _, s := range i.Stages {
		if s.HasApprover(userID) {
			return true
		}
	}
	return false
}

// LastComment returns the comment of the most recent decision
func (i *ApprovalInstance) LastComment() string {
	if len(i.Decisions) == 0 {
		return ""
	}
	return i.Decisions[len(i.Decisions)-1].Comment
}

// Clone returns a deep copy so stores never share slices with callers
func (i *ApprovalInstance) Clone() *ApprovalInstance {
	if i == nil {
		return nil
	}
	c := *i
	c.Stages = CloneStages(i.Stages)
	c.Decisions = append([]Decision(nil), i.Decisions...)
	if i.CompletedAt != nil {
		t := *i.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
