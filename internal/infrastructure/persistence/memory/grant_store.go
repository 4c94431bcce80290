// Package memory holds mutex-guarded reference implementations of the
// application ports. They back the engine tests and the "memory" database
// driver used for local runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/garyjia/doc-approval/internal/application/port"
	"github.com/garyjia/doc-approval/internal/domain/entity"
)

type grantKey struct {
	documentID string
	userID     string
	permType   entity.PermissionType
}

// GrantStore implements port.PermissionStore
type GrantStore struct {
	mu     sync.RWMutex
	grants map[grantKey]entity.Grant
}

// NewGrantStore creates an empty grant store
func NewGrantStore() *GrantStore {
	return &GrantStore{grants: make(map[grantKey]entity.Grant)}
}

func (s *GrantStore) Upsert(ctx context.Context, grant *entity.Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants[grantKey{grant.DocumentID, grant.UserID, grant.Type}] = copyGrant(grant)
	return nil
}

func (s *GrantStore) FindActive(ctx context.Context, documentID, userID string, types []entity.PermissionType, now time.Time) (*entity.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range types {
		g, ok := s.grants[grantKey{documentID, userID, t}]
		if ok && !g.ExpiredAt(now) {
			out := copyGrant(&g)
			return &out, nil
		}
	}
	return nil, nil
}

func (s *GrantStore) Delete(ctx context.Context, documentID, userID string, t entity.PermissionType) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := grantKey{documentID, userID, t}
	if _, ok := s.grants[key]; !ok {
		return false, nil
	}
	delete(s.grants, key)
	return true, nil
}

func (s *GrantStore) DeleteAll(ctx context.Context, documentID, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key := range s.grants {
		if key.documentID == documentID && key.userID == userID {
			delete(s.grants, key)
			n++
		}
	}
	return n, nil
}

func (s *GrantStore) ListByDocument(ctx context.Context, documentID string, now time.Time) ([]*entity.Grant, error) {
	return s.list(func(g *entity.Grant) bool { return g.DocumentID == documentID }, now), nil
}

func (s *GrantStore) ListByUser(ctx context.Context, userID string, now time.Time) ([]*entity.Grant, error) {
	return s.list(func(g *entity.Grant) bool { return g.UserID == userID }, now), nil
}

func (s *GrantStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key, g := range s.grants {
		if g.ExpiresAt != nil && g.ExpiresAt.Before(cutoff) {
			delete(s.grants, key)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored grants, expired ones included
func (s *GrantStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.grants)
}

// list returns active grants ordered by document, user, then type name
func (s *GrantStore) list(match func(*entity.Grant) bool, now time.Time) []*entity.Grant {
	s.mu.RLock()
	out := make([]*entity.Grant, 0)
	for _, g := range s.grants {
		g := g
		if match(&g) && !g.ExpiredAt(now) {
			c := copyGrant(&g)
			out = append(out, &c)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].DocumentID != out[j].DocumentID {
			return out[i].DocumentID < out[j].DocumentID
		}
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].Type < out[j].Type
	})
	return out
}

func copyGrant(g *entity.Grant) entity.Grant {
	c := *g
	if g.ExpiresAt != nil {
		t := *g.ExpiresAt
		c.ExpiresAt = &t
	}
	return c
}

var _ port.PermissionStore = (*GrantStore)(nil)
