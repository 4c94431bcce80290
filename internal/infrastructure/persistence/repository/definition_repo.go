package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/doc-approval/internal/application/port"
	"github.com/garyjia/doc-approval/internal/domain/entity"
	"github.com/garyjia/doc-approval/internal/infrastructure/persistence/sqldb"
)

// DefinitionRepository implements port.WorkflowDefinitionStore
type DefinitionRepository struct {
	db     *sqldb.DB
	logger *zap.Logger
}

// NewDefinitionRepository creates a new workflow definition repository
func NewDefinitionRepository(db *sqldb.DB, logger *zap.Logger) *DefinitionRepository {
	return &DefinitionRepository{
		db:     db,
		logger: logger,
	}
}

const definitionColumns = `id, name, description, active, stages, version, created_by, created_at, updated_at`

// Create inserts a definition and assigns its ID
func (r *DefinitionRepository) Create(ctx context.Context, def *entity.WorkflowDefinition) error {
	stages, err := json.Marshal(def.Stages)
	if err != nil {
		return fmt.Errorf("failed to marshal stages: %w", err)
	}

	query := `
		INSERT INTO workflow_definitions (name, description, active, stages, version, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`

	err = r.db.Executor(ctx).QueryRowContext(ctx, r.db.Rebind(query),
		def.Name,
		def.Description,
		def.Active,
		string(stages),
		def.Version,
		def.CreatedBy,
		utc(def.CreatedAt),
		utc(def.UpdatedAt),
	).Scan(&def.ID)
	if err != nil {
		if sqldb.IsUniqueViolation(err) {
			return port.ErrDuplicateKey
		}
		r.logger.Error("Failed to create workflow definition", zap.String("name", def.Name), zap.Error(err))
		return fmt.Errorf("failed to create workflow definition: %w", err)
	}

	r.logger.Info("Workflow definition created", zap.Int64("id", def.ID), zap.String("name", def.Name))
	return nil
}

// Update writes def when the stored version equals expectedVersion
func (r *DefinitionRepository) Update(ctx context.Context, def *entity.WorkflowDefinition, expectedVersion int64) error {
	stages, err := json.Marshal(def.Stages)
	if err != nil {
		return fmt.Errorf("failed to marshal stages: %w", err)
	}

	query := `
		UPDATE workflow_definitions
		SET name = ?, description = ?, active = ?, stages = ?, version = ?, updated_at = ?
		WHERE id = ? AND version = ?
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, r.db.Rebind(query),
		def.Name,
		def.Description,
		def.Active,
		string(stages),
		def.Version,
		utc(def.UpdatedAt),
		def.ID,
		expectedVersion,
	)
	if err != nil {
		if sqldb.IsUniqueViolation(err) {
			return port.ErrDuplicateKey
		}
		r.logger.Error("Failed to update workflow definition", zap.Int64("id", def.ID), zap.Error(err))
		return fmt.Errorf("failed to update workflow definition: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n == 0 {
		return port.ErrVersionConflict
	}
	return nil
}

// GetByID retrieves a definition by ID
func (r *DefinitionRepository) GetByID(ctx context.Context, id int64) (*entity.WorkflowDefinition, error) {
	query := `SELECT ` + definitionColumns + ` FROM workflow_definitions WHERE id = ?`
	return r.getOne(ctx, query, id)
}

// GetByName retrieves a definition by its unique name
func (r *DefinitionRepository) GetByName(ctx context.Context, name string) (*entity.WorkflowDefinition, error) {
	query := `SELECT ` + definitionColumns + ` FROM workflow_definitions WHERE name = ?`
	return r.getOne(ctx, query, name)
}

// List returns definitions ordered by name
func (r *DefinitionRepository) List(ctx context.Context, activeOnly bool) ([]*entity.WorkflowDefinition, error) {
	query := `SELECT ` + definitionColumns + ` FROM workflow_definitions`
	var args []interface{}
	if activeOnly {
		query += ` WHERE active = ?`
		args = append(args, true)
	}
	query += ` ORDER BY name`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		r.logger.Error("Failed to list workflow definitions", zap.Error(err))
		return nil, fmt.Errorf("failed to list workflow definitions: %w", err)
	}
	defer rows.Close()

	defs := make([]*entity.WorkflowDefinition, 0)
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow definition: %w", err)
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

func (r *DefinitionRepository) getOne(ctx context.Context, query string, arg interface{}) (*entity.WorkflowDefinition, error) {
	def, err := scanDefinition(r.db.Executor(ctx).QueryRowContext(ctx, r.db.Rebind(query), arg))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get workflow definition", zap.Any("key", arg), zap.Error(err))
		return nil, fmt.Errorf("failed to get workflow definition: %w", err)
	}
	return def, nil
}

func scanDefinition(row rowScanner) (*entity.WorkflowDefinition, error) {
	var def entity.WorkflowDefinition
	var stages []byte

	err := row.Scan(
		&def.ID,
		&def.Name,
		&def.Description,
		&def.Active,
		&stages,
		&def.Version,
		&def.CreatedBy,
		&def.CreatedAt,
		&def.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(stages, &def.Stages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stages: %w", err)
	}
	def.CreatedAt = def.CreatedAt.UTC()
	def.UpdatedAt = def.UpdatedAt.UTC()
	return &def, nil
}

var _ port.WorkflowDefinitionStore = (*DefinitionRepository)(nil)
