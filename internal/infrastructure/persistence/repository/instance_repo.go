package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/doc-approval/internal/application/port"
	"github.com/garyjia/doc-approval/internal/domain/entity"
	"github.com/garyjia/doc-approval/internal/domain/workflow"
	"github.com/garyjia/doc-approval/internal/infrastructure/persistence/sqldb"
)

// InstanceRepository implements port.ApprovalInstanceStore.
// Instances and their decision log live in separate tables; AppendDecision
// writes both in one transaction guarded by the instance version.
type InstanceRepository struct {
	db     *sqldb.DB
	logger *zap.Logger
}

// NewInstanceRepository creates a new approval instance repository
func NewInstanceRepository(db *sqldb.DB, logger *zap.Logger) *InstanceRepository {
	return &InstanceRepository{
		db:     db,
		logger: logger,
	}
}

const instanceColumns = `id, document_id, workflow_id, workflow_version, stages, submitted_by,
	submitted_at, current_stage, status, version, completed_at`

// Create inserts a new instance. The partial unique index on pending
// instances turns a second submission into port.ErrDuplicateKey.
func (r *InstanceRepository) Create(ctx context.Context, inst *entity.ApprovalInstance) error {
	stages, err := json.Marshal(inst.Stages)
	if err != nil {
		return fmt.Errorf("failed to marshal stages: %w", err)
	}

	query := `
		INSERT INTO approval_instances (` + instanceColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Executor(ctx).ExecContext(ctx, r.db.Rebind(query),
		inst.ID,
		inst.DocumentID,
		inst.WorkflowID,
		inst.WorkflowVersion,
		string(stages),
		inst.SubmittedBy,
		utc(inst.SubmittedAt),
		inst.CurrentStage,
		string(inst.Status),
		inst.Version,
		nullableTime(inst.CompletedAt),
	)
	if err != nil {
		if sqldb.IsUniqueViolation(err) {
			return port.ErrDuplicateKey
		}
		r.logger.Error("Failed to create approval instance",
			zap.String("instance_id", inst.ID),
			zap.String("document_id", inst.DocumentID),
			zap.Error(err))
		return fmt.Errorf("failed to create approval instance: %w", err)
	}

	r.logger.Info("Approval instance created",
		zap.String("instance_id", inst.ID),
		zap.String("document_id", inst.DocumentID))
	return nil
}

// GetByID retrieves an instance with its decisions
func (r *InstanceRepository) GetByID(ctx context.Context, id string) (*entity.ApprovalInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM approval_instances WHERE id = ?`
	return r.getOne(ctx, query, id)
}

// FindPending returns the document's pending instance, if any
func (r *InstanceRepository) FindPending(ctx context.Context, documentID string) (*entity.ApprovalInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM approval_instances WHERE document_id = ? AND status = ?`
	return r.getOne(ctx, query, documentID, string(workflow.StatePending))
}

// ListByDocument returns the document's instances in submission order
func (r *InstanceRepository) ListByDocument(ctx context.Context, documentID string) ([]*entity.ApprovalInstance, error) {
	query := `
		SELECT ` + instanceColumns + `
		FROM approval_instances
		WHERE document_id = ?
		ORDER BY submitted_at, id
	`
	return r.list(ctx, query, documentID)
}

// ListPending returns every pending instance in submission order
func (r *InstanceRepository) ListPending(ctx context.Context) ([]*entity.ApprovalInstance, error) {
	query := `
		SELECT ` + instanceColumns + `
		FROM approval_instances
		WHERE status = ?
		ORDER BY submitted_at, id
	`
	return r.list(ctx, query, string(workflow.StatePending))
}

// AppendDecision writes next's state and appends decision provided the
// stored version still equals expectedVersion
func (r *InstanceRepository) AppendDecision(ctx context.Context, next *entity.ApprovalInstance, decision *entity.Decision, expectedVersion int64) error {
	return r.db.WithTransaction(ctx, func(txCtx context.Context) error {
		exec := r.db.Executor(txCtx)

		update := `
			UPDATE approval_instances
			SET current_stage = ?, status = ?, version = ?, completed_at = ?
			WHERE id = ? AND version = ?
		`
		result, err := exec.ExecContext(txCtx, r.db.Rebind(update),
			next.CurrentStage,
			string(next.Status),
			next.Version,
			nullableTime(next.CompletedAt),
			next.ID,
			expectedVersion,
		)
		if err != nil {
			r.logger.Error("Failed to update approval instance", zap.String("instance_id", next.ID), zap.Error(err))
			return fmt.Errorf("failed to update approval instance: %w", err)
		}

		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get affected rows: %w", err)
		}
		if n == 0 {
			return port.ErrVersionConflict
		}

		insert := `
			INSERT INTO approval_decisions (instance_id, stage_index, approver_id, outcome, comment, decided_at)
			VALUES (?, ?, ?, ?, ?, ?)
			RETURNING id
		`
		err = exec.QueryRowContext(txCtx, r.db.Rebind(insert),
			decision.InstanceID,
			decision.StageIndex,
			decision.ApproverID,
			string(decision.Outcome),
			decision.Comment,
			utc(decision.DecidedAt),
		).Scan(&decision.ID)
		if err != nil {
			// a committed decision by the same approver means we lost a race
			if sqldb.IsUniqueViolation(err) {
				return port.ErrVersionConflict
			}
			r.logger.Error("Failed to insert decision", zap.String("instance_id", next.ID), zap.Error(err))
			return fmt.Errorf("failed to insert decision: %w", err)
		}

		return nil
	})
}

func (r *InstanceRepository) getOne(ctx context.Context, query string, args ...interface{}) (*entity.ApprovalInstance, error) {
	inst, err := scanInstance(r.db.Executor(ctx).QueryRowContext(ctx, r.db.Rebind(query), args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get approval instance", zap.Error(err))
		return nil, fmt.Errorf("failed to get approval instance: %w", err)
	}

	if inst.Decisions, err = r.loadDecisions(ctx, inst.ID); err != nil {
		return nil, err
	}
	return inst, nil
}

func (r *InstanceRepository) list(ctx context.Context, query string, args ...interface{}) ([]*entity.ApprovalInstance, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		r.logger.Error("Failed to list approval instances", zap.Error(err))
		return nil, fmt.Errorf("failed to list approval instances: %w", err)
	}

	instances := make([]*entity.ApprovalInstance, 0)
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan approval instance: %w", err)
		}
		instances = append(instances, inst)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for _, inst := range instances {
		if inst.Decisions, err = r.loadDecisions(ctx, inst.ID); err != nil {
			return nil, err
		}
	}
	return instances, nil
}

// loadDecisions returns the decision log in commit order
func (r *InstanceRepository) loadDecisions(ctx context.Context, instanceID string) ([]entity.Decision, error) {
	query := `
		SELECT id, instance_id, stage_index, approver_id, outcome, comment, decided_at
		FROM approval_decisions
		WHERE instance_id = ?
		ORDER BY id
	`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, r.db.Rebind(query), instanceID)
	if err != nil {
		r.logger.Error("Failed to load decisions", zap.String("instance_id", instanceID), zap.Error(err))
		return nil, fmt.Errorf("failed to load decisions: %w", err)
	}
	defer rows.Close()

	decisions := make([]entity.Decision, 0)
	for rows.Next() {
		var d entity.Decision
		var outcome string
		if err := rows.Scan(&d.ID, &d.InstanceID, &d.StageIndex, &d.ApproverID, &outcome, &d.Comment, &d.DecidedAt); err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		d.Outcome = entity.Outcome(outcome)
		d.DecidedAt = d.DecidedAt.UTC()
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}

func scanInstance(row rowScanner) (*entity.ApprovalInstance, error) {
	var inst entity.ApprovalInstance
	var stages []byte
	var status string
	var completedAt sql.NullTime

	err := row.Scan(
		&inst.ID,
		&inst.DocumentID,
		&inst.WorkflowID,
		&inst.WorkflowVersion,
		&stages,
		&inst.SubmittedBy,
		&inst.SubmittedAt,
		&inst.CurrentStage,
		&status,
		&inst.Version,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(stages, &inst.Stages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stages: %w", err)
	}
	inst.Status = workflow.State(status)
	inst.SubmittedAt = inst.SubmittedAt.UTC()
	inst.CompletedAt = timePtr(completedAt)
	return &inst, nil
}

var _ port.ApprovalInstanceStore = (*InstanceRepository)(nil)
