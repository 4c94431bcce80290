package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/garyjia/doc-approval/internal/application/port"
	"github.com/garyjia/doc-approval/internal/domain/entity"
)

// Users implements port.UserDirectory and port.UserRegistry
type Users struct {
	mu    sync.RWMutex
	users map[string]entity.User
}

// NewUsers creates a directory seeded with the given users
func NewUsers(users ...entity.User) *Users {
	u := &Users{users: make(map[string]entity.User)}
	for _, user := range users {
		u.users[user.ID] = user
	}
	return u
}

func (u *Users) Exists(ctx context.Context, userID string) (bool, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	_, ok := u.users[userID]
	return ok, nil
}

func (u *Users) IsActive(ctx context.Context, userID string) (bool, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.users[userID].Active, nil
}

func (u *Users) Save(ctx context.Context, user *entity.User) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.users[user.ID] = *user
	return nil
}

func (u *Users) GetByID(ctx context.Context, id string) (*entity.User, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if user, ok := u.users[id]; ok {
		return &user, nil
	}
	return nil, nil
}

// Documents implements port.OwnerLookup and port.DocumentRegistry
type Documents struct {
	mu   sync.RWMutex
	docs map[string]entity.Document
}

// NewDocuments creates a registry seeded with the given documents
func NewDocuments(docs ...entity.Document) *Documents {
	d := &Documents{docs: make(map[string]entity.Document)}
	for _, doc := range docs {
		d.docs[doc.ID] = doc
	}
	return d
}

func (d *Documents) GetOwner(ctx context.Context, documentID string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.docs[documentID].OwnerID, nil
}

func (d *Documents) Save(ctx context.Context, doc *entity.Document) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.docs[doc.ID] = *doc
	return nil
}

func (d *Documents) GetByID(ctx context.Context, id string) (*entity.Document, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if doc, ok := d.docs[id]; ok {
		return &doc, nil
	}
	return nil, nil
}

// AuditLog implements port.AuditRepository
type AuditLog struct {
	mu      sync.RWMutex
	records []port.AuditRecord
}

// NewAuditLog creates an empty audit log
func NewAuditLog() *AuditLog {
	return &AuditLog{}
}

func (a *AuditLog) Record(ctx context.Context, rec port.AuditRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	rec.ID = int64(len(a.records) + 1)
	a.records = append(a.records, rec)
	return nil
}

// ListByDocument returns the newest records first
func (a *AuditLog) ListByDocument(ctx context.Context, documentID string, limit int) ([]port.AuditRecord, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]port.AuditRecord, 0)
	for _, r := range a.records {
		if r.DocumentID == documentID {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// All returns every record in insertion order
func (a *AuditLog) All() []port.AuditRecord {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]port.AuditRecord(nil), a.records...)
}

// TxManager runs fn directly; memory stores are individually atomic
type TxManager struct{}

func (TxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

var (
	_ port.UserDirectory      = (*Users)(nil)
	_ port.UserRegistry       = (*Users)(nil)
	_ port.OwnerLookup        = (*Documents)(nil)
	_ port.DocumentRegistry   = (*Documents)(nil)
	_ port.AuditRepository    = (*AuditLog)(nil)
	_ port.TransactionManager = TxManager{}
)
