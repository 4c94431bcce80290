package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/garyjia/doc-approval/internal/application/port"
	"github.com/garyjia/doc-approval/internal/domain/entity"
)

// DefinitionStore implements port.WorkflowDefinitionStore
type DefinitionStore struct {
	mu     sync.RWMutex
	nextID int64
	defs   map[int64]*entity.WorkflowDefinition
}

// NewDefinitionStore creates an empty definition store
func NewDefinitionStore() *DefinitionStore {
	return &DefinitionStore{defs: make(map[int64]*entity.WorkflowDefinition)}
}

func (s *DefinitionStore) Create(ctx context.Context, def *entity.WorkflowDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.nameTaken(def.Name, 0) {
		return port.ErrDuplicateKey
	}

	s.nextID++
	def.ID = s.nextID
	s.defs[def.ID] = cloneDefinition(def)
	return nil
}

func (s *DefinitionStore) Update(ctx context.Context, def *entity.WorkflowDefinition, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.defs[def.ID]
	if !ok || stored.Version != expectedVersion {
		return port.ErrVersionConflict
	}
	if s.nameTaken(def.Name, def.ID) {
		return port.ErrDuplicateKey
	}

	s.defs[def.ID] = cloneDefinition(def)
	return nil
}

func (s *DefinitionStore) GetByID(ctx context.Context, id int64) (*entity.WorkflowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if d, ok := s.defs[id]; ok {
		return cloneDefinition(d), nil
	}
	return nil, nil
}

func (s *DefinitionStore) GetByName(ctx context.Context, name string) (*entity.WorkflowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.defs {
		if d.Name == name {
			return cloneDefinition(d), nil
		}
	}
	return nil, nil
}

func (s *DefinitionStore) List(ctx context.Context, activeOnly bool) ([]*entity.WorkflowDefinition, error) {
	s.mu.RLock()
	out := make([]*entity.WorkflowDefinition, 0, len(s.defs))
	for _, d := range s.defs {
		if activeOnly && !d.Active {
			continue
		}
		out = append(out, cloneDefinition(d))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *DefinitionStore) nameTaken(name string, exceptID int64) bool {
	for id, d := range s.defs {
		if id != exceptID && d.Name == name {
			return true
		}
	}
	return false
}

func cloneDefinition(d *entity.WorkflowDefinition) *entity.WorkflowDefinition {
	c := *d
	c.Stages = entity.CloneStages(d.Stages)
	return &c
}

var _ port.WorkflowDefinitionStore = (*DefinitionStore)(nil)
