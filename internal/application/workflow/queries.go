package workflow

import (
	"context"

	"github.com/garyjia/doc-approval/internal/domain/entity"
)

func (e *engineImpl) GetInstance(ctx context.Context, instanceID, requesterID string) (*entity.ApprovalInstance, error) {
	inst, err := e.instances.GetByID(ctx, instanceID)
	if err != nil {
		return nil, e.storageErr("load instance", err, "instance_id", instanceID)
	}
	if inst == nil {
		return nil, entity.ErrInstanceNotFound
	}
	if inst.IsParticipant(requesterID) {
		return inst, nil
	}

	if err := e.requireView(ctx, inst.DocumentID, requesterID); err != nil {
		return nil, err
	}
	return inst, nil
}

func (e *engineImpl) ListForDocument(ctx context.Context, documentID, requesterID string) ([]*entity.ApprovalInstance, error) {
	if err := e.requireView(ctx, documentID, requesterID); err != nil {
		return nil, err
	}

	list, err := e.instances.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, e.storageErr("list instances", err, "document_id", documentID)
	}
	return list, nil
}

func (e *engineImpl) PendingForApprover(ctx context.Context, userID string) ([]*entity.ApprovalInstance, error) {
	pending, err := e.instances.ListPending(ctx)
	if err != nil {
		return nil, e.storageErr("list pending instances", err)
	}

	out := make([]*entity.ApprovalInstance, 0)
	for _, inst := range pending {
		stage := inst.CurrentStageDef()
		if stage == nil || !stage.HasApprover(userID) {
			continue
		}
		if inst.HasDecision(inst.CurrentStage, userID) {
			continue
		}
		out = append(out, inst)
	}
	return out, nil
}

func (e *engineImpl) requireView(ctx context.Context, documentID, userID string) error {
	ok, err := e.permissions.CheckPermission(ctx, documentID, userID, entity.PermissionView)
	if err != nil {
		return err
	}
	if !ok {
		return entity.ErrPermissionDenied
	}
	return nil
}
