package port

import (
	"context"
	"errors"
	"time"

	"github.com/garyjia/doc-approval/internal/domain/entity"
)

// Store-level errors. Engines translate them into domain errors.
var (
	// ErrVersionConflict means a conditional write found a newer version
	ErrVersionConflict = errors.New("version conflict")
	// ErrDuplicateKey means a unique constraint rejected the write
	ErrDuplicateKey = errors.New("duplicate key")
)

// PermissionStore persists grants keyed by (document, user, type).
// "Active" queries exclude grants whose ExpiresAt is not after now.
type PermissionStore interface {
	Upsert(ctx context.Context, grant *entity.Grant) error
	FindActive(ctx context.Context, documentID, userID string, types []entity.PermissionType, now time.Time) (*entity.Grant, error)
	Delete(ctx context.Context, documentID, userID string, t entity.PermissionType) (bool, error)
	DeleteAll(ctx context.Context, documentID, userID string) (int, error)
	ListByDocument(ctx context.Context, documentID string, now time.Time) ([]*entity.Grant, error)
	ListByUser(ctx context.Context, userID string, now time.Time) ([]*entity.Grant, error)
	DeleteExpired(ctx context.Context, cutoff time.Time) (int, error)
}

// WorkflowDefinitionStore persists named workflow configurations
type WorkflowDefinitionStore interface {
	Create(ctx context.Context, def *entity.WorkflowDefinition) error
	// Update writes def when the stored version equals expectedVersion
	Update(ctx context.Context, def *entity.WorkflowDefinition, expectedVersion int64) error
	GetByID(ctx context.Context, id int64) (*entity.WorkflowDefinition, error)
	GetByName(ctx context.Context, name string) (*entity.WorkflowDefinition, error)
	List(ctx context.Context, activeOnly bool) ([]*entity.WorkflowDefinition, error)
}

// ApprovalInstanceStore persists instances together with their decision log
type ApprovalInstanceStore interface {
	// Create returns ErrDuplicateKey when the document already has a pending instance
	Create(ctx context.Context, inst *entity.ApprovalInstance) error
	GetByID(ctx context.Context, id string) (*entity.ApprovalInstance, error)
	FindPending(ctx context.Context, documentID string) (*entity.ApprovalInstance, error)
	ListByDocument(ctx context.Context, documentID string) ([]*entity.ApprovalInstance, error)
	ListPending(ctx context.Context) ([]*entity.ApprovalInstance, error)
	// AppendDecision atomically writes next's state and appends decision,
	// provided the stored version still equals expectedVersion
	AppendDecision(ctx context.Context, next *entity.ApprovalInstance, decision *entity.Decision, expectedVersion int64) error
}

// AuditRepository reads back the persisted audit trail
type AuditRepository interface {
	AuditSink
	ListByDocument(ctx context.Context, documentID string, limit int) ([]AuditRecord, error)
}

// UserRegistry maintains the user directory
type UserRegistry interface {
	Save(ctx context.Context, user *entity.User) error
	GetByID(ctx context.Context, id string) (*entity.User, error)
}

// DocumentRegistry maintains document ownership facts
type DocumentRegistry interface {
	Save(ctx context.Context, doc *entity.Document) error
	GetByID(ctx context.Context, id string) (*entity.Document, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
