package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/garyjia/doc-approval/internal/application/port"
	"github.com/garyjia/doc-approval/internal/domain/entity"
	"github.com/garyjia/doc-approval/internal/domain/workflow"
)

// InstanceStore implements port.ApprovalInstanceStore. AppendDecision is a
// compare-and-swap on Version performed under the store mutex.
type InstanceStore struct {
	mu         sync.RWMutex
	instances  map[string]*entity.ApprovalInstance
	decisionID int64
}

// NewInstanceStore creates an empty instance store
func NewInstanceStore() *InstanceStore {
	return &InstanceStore{instances: make(map[string]*entity.ApprovalInstance)}
}

func (s *InstanceStore) Create(ctx context.Context, inst *entity.ApprovalInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.instances[inst.ID]; ok {
		return port.ErrDuplicateKey
	}
	if inst.Status == workflow.StatePending {
		for _, other := range s.instances {
			if other.DocumentID == inst.DocumentID && other.Status == workflow.StatePending {
				return port.ErrDuplicateKey
			}
		}
	}

	s.instances[inst.ID] = inst.Clone()
	return nil
}

func (s *InstanceStore) GetByID(ctx context.Context, id string) (*entity.ApprovalInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.instances[id].Clone(), nil
}

func (s *InstanceStore) FindPending(ctx context.Context, documentID string) (*entity.ApprovalInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, inst := range s.instances {
		if inst.DocumentID == documentID && inst.Status == workflow.StatePending {
			return inst.Clone(), nil
		}
	}
	return nil, nil
}

func (s *InstanceStore) ListByDocument(ctx context.Context, documentID string) ([]*entity.ApprovalInstance, error) {
	return s.list(func(i *entity.ApprovalInstance) bool { return i.DocumentID == documentID }), nil
}

func (s *InstanceStore) ListPending(ctx context.Context) ([]*entity.ApprovalInstance, error) {
	return s.list(func(i *entity.ApprovalInstance) bool { return i.Status == workflow.StatePending }), nil
}

func (s *InstanceStore) AppendDecision(ctx context.Context, next *entity.ApprovalInstance, decision *entity.Decision, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.instances[next.ID]
	if !ok || stored.Version != expectedVersion {
		return port.ErrVersionConflict
	}

	s.decisionID++
	decision.ID = s.decisionID

	c := next.Clone()
	if n := len(c.Decisions); n > 0 {
		c.Decisions[n-1].ID = decision.ID
	}
	s.instances[next.ID] = c
	return nil
}

// list returns matching instances in submission order
func (s *InstanceStore) list(match func(*entity.ApprovalInstance) bool) []*entity.ApprovalInstance {
	s.mu.RLock()
	out := make([]*entity.ApprovalInstance, 0)
	for _, inst := range s.instances {
		if match(inst) {
			out = append(out, inst.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].SubmittedAt.Before(out[j].SubmittedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

var _ port.ApprovalInstanceStore = (*InstanceStore)(nil)
