package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/doc-approval/internal/application/dispatcher"
	"github.com/garyjia/doc-approval/internal/application/port"
	"github.com/garyjia/doc-approval/internal/domain/entity"
	"github.com/garyjia/doc-approval/internal/domain/event"
)

// DefinitionService manages named workflow configurations. Updates bump the
// version; in-flight instances keep the stages they snapshotted at submit.
type DefinitionService interface {
	Create(ctx context.Context, req CreateDefinitionRequest) (*entity.WorkflowDefinition, error)
	Update(ctx context.Context, id int64, req UpdateDefinitionRequest) (*entity.WorkflowDefinition, error)
	Get(ctx context.Context, id int64) (*entity.WorkflowDefinition, error)
	List(ctx context.Context, activeOnly bool) ([]*entity.WorkflowDefinition, error)
}

// CreateDefinitionRequest carries the inputs of Create. Active defaults to true.
type CreateDefinitionRequest struct {
	Name        string
	Description string
	CreatedBy   string
	Config      entity.WorkflowConfig
	Active      *bool
}

// UpdateDefinitionRequest changes only the fields that are set
type UpdateDefinitionRequest struct {
	Name        *string
	Description *string
	Config      *entity.WorkflowConfig
	Active      *bool
	UpdatedBy   string
}

type definitionService struct {
	store      port.WorkflowDefinitionStore
	dispatcher dispatcher.Dispatcher
	logger     port.Logger
	now        func() time.Time
}

// NewDefinitionService creates a DefinitionService
func NewDefinitionService(store port.WorkflowDefinitionStore, d dispatcher.Dispatcher, logger port.Logger) DefinitionService {
	if logger == nil {
		logger = port.NopLogger{}
	}
	return &definitionService{
		store:      store,
		dispatcher: d,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *definitionService) Create(ctx context.Context, req CreateDefinitionRequest) (*entity.WorkflowDefinition, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", entity.ErrInvalidWorkflowDefinition)
	}
	stages, err := req.Config.Validate()
	if err != nil {
		return nil, err
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	now := s.now().UTC()
	def := &entity.WorkflowDefinition{
		Name:        name,
		Description: req.Description,
		Active:      active,
		Stages:      stages,
		Version:     1,
		CreatedBy:   req.CreatedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.Create(ctx, def); err != nil {
		if errors.Is(err, port.ErrDuplicateKey) {
			return nil, fmt.Errorf("%w: %s", entity.ErrDuplicateWorkflowName, name)
		}
		return nil, s.storageErr("create workflow", err)
	}

	s.logger.Info("Workflow created", "workflow_id", def.ID, "name", def.Name, "stages", len(def.Stages))
	s.publish(ctx, event.TypeWorkflowCreated, def, req.CreatedBy)

	return def, nil
}

func (s *definitionService) Update(ctx context.Context, id int64, req UpdateDefinitionRequest) (*entity.WorkflowDefinition, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	next := *current
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name is required", entity.ErrInvalidWorkflowDefinition)
		}
		next.Name = name
	}
	if req.Description != nil {
		next.Description = *req.Description
	}
	if req.Config != nil {
		stages, err := req.Config.Validate()
		if err != nil {
			return nil, err
		}
		next.Stages = stages
	}
	if req.Active != nil {
		next.Active = *req.Active
	}
	next.Version = current.Version + 1
	next.UpdatedAt = s.now().UTC()

	if err := s.store.Update(ctx, &next, current.Version); err != nil {
		switch {
		case errors.Is(err, port.ErrDuplicateKey):
			return nil, fmt.Errorf("%w: %s", entity.ErrDuplicateWorkflowName, next.Name)
		case errors.Is(err, port.ErrVersionConflict):
			return nil, entity.ErrConcurrentModification
		default:
			return nil, s.storageErr("update workflow", err)
		}
	}

	s.logger.Info("Workflow updated", "workflow_id", next.ID, "version", next.Version)
	s.publish(ctx, event.TypeWorkflowUpdated, &next, req.UpdatedBy)

	return &next, nil
}

func (s *definitionService) Get(ctx context.Context, id int64) (*entity.WorkflowDefinition, error) {
	def, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, s.storageErr("load workflow", err)
	}
	if def == nil {
		return nil, fmt.Errorf("%w: %d", entity.ErrWorkflowNotFound, id)
	}
	return def, nil
}

func (s *definitionService) List(ctx context.Context, activeOnly bool) ([]*entity.WorkflowDefinition, error) {
	defs, err := s.store.List(ctx, activeOnly)
	if err != nil {
		return nil, s.storageErr("list workflows", err)
	}
	return defs, nil
}

func (s *definitionService) publish(ctx context.Context, t event.Type, def *entity.WorkflowDefinition, actor string) {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.DispatchAsync(ctx, event.NewEvent(t, "", "", actor, map[string]interface{}{
		event.KeyWorkflowID:   def.ID,
		event.KeyWorkflowName: def.Name,
		event.KeyCount:        len(def.Stages),
	}))
}

func (s *definitionService) storageErr(op string, err error) error {
	s.logger.Error("Workflow definition store failure", "op", op, "error", err)
	return fmt.Errorf("%w: %s", entity.ErrStorage, op)
}
