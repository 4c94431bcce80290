package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/doc-approval/internal/application/port"
	"github.com/garyjia/doc-approval/internal/domain/entity"
	"github.com/garyjia/doc-approval/internal/infrastructure/persistence/sqldb"
)

// UserRepository backs the user directory
type UserRepository struct {
	db     *sqldb.DB
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sqldb.DB, logger *zap.Logger) *UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

// Save creates or updates a user. CreatedAt is kept from the first save.
func (r *UserRepository) Save(ctx context.Context, user *entity.User) error {
	query := `
		INSERT INTO users (id, display_name, email, lark_open_id, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			display_name = excluded.display_name,
			email = excluded.email,
			lark_open_id = excluded.lark_open_id,
			active = excluded.active
	`

	_, err := r.db.Executor(ctx).ExecContext(ctx, r.db.Rebind(query),
		user.ID,
		user.DisplayName,
		user.Email,
		user.LarkOpenID,
		user.Active,
		utc(user.CreatedAt),
	)
	if err != nil {
		r.logger.Error("Failed to save user", zap.String("user_id", user.ID), zap.Error(err))
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*entity.User, error) {
	query := `
		SELECT id, display_name, email, lark_open_id, active, created_at
		FROM users
		WHERE id = ?
	`

	var u entity.User
	err := r.db.Executor(ctx).QueryRowContext(ctx, r.db.Rebind(query), id).Scan(
		&u.ID,
		&u.DisplayName,
		&u.Email,
		&u.LarkOpenID,
		&u.Active,
		&u.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get user", zap.String("user_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}

// Exists reports whether the user is registered
func (r *UserRepository) Exists(ctx context.Context, userID string) (bool, error) {
	u, err := r.GetByID(ctx, userID)
	if err != nil {
		return false, err
	}
	return u != nil, nil
}

// IsActive reports whether the user is registered and active
func (r *UserRepository) IsActive(ctx context.Context, userID string) (bool, error) {
	u, err := r.GetByID(ctx, userID)
	if err != nil {
		return false, err
	}
	return u != nil && u.Active, nil
}

// DocumentRepository backs document ownership lookups
type DocumentRepository struct {
	db     *sqldb.DB
	logger *zap.Logger
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *sqldb.DB, logger *zap.Logger) *DocumentRepository {
	return &DocumentRepository{
		db:     db,
		logger: logger,
	}
}

// Save creates or updates a document
func (r *DocumentRepository) Save(ctx context.Context, doc *entity.Document) error {
	query := `
		INSERT INTO documents (id, owner_id, title, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			owner_id = excluded.owner_id,
			title = excluded.title
	`

	_, err := r.db.Executor(ctx).ExecContext(ctx, r.db.Rebind(query),
		doc.ID,
		doc.OwnerID,
		doc.Title,
		utc(doc.CreatedAt),
	)
	if err != nil {
		r.logger.Error("Failed to save document", zap.String("document_id", doc.ID), zap.Error(err))
		return fmt.Errorf("failed to save document: %w", err)
	}
	return nil
}

// GetByID retrieves a document by ID
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*entity.Document, error) {
	query := `SELECT id, owner_id, title, created_at FROM documents WHERE id = ?`

	var d entity.Document
	err := r.db.Executor(ctx).QueryRowContext(ctx, r.db.Rebind(query), id).Scan(
		&d.ID,
		&d.OwnerID,
		&d.Title,
		&d.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get document", zap.String("document_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	d.CreatedAt = d.CreatedAt.UTC()
	return &d, nil
}

// GetOwner returns the owner id, or "" for an unknown document
func (r *DocumentRepository) GetOwner(ctx context.Context, documentID string) (string, error) {
	query := `SELECT owner_id FROM documents WHERE id = ?`

	var owner string
	err := r.db.Executor(ctx).QueryRowContext(ctx, r.db.Rebind(query), documentID).Scan(&owner)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		r.logger.Error("Failed to get document owner", zap.String("document_id", documentID), zap.Error(err))
		return "", fmt.Errorf("failed to get document owner: %w", err)
	}
	return owner, nil
}

var (
	_ port.UserDirectory    = (*UserRepository)(nil)
	_ port.UserRegistry     = (*UserRepository)(nil)
	_ port.OwnerLookup      = (*DocumentRepository)(nil)
	_ port.DocumentRegistry = (*DocumentRepository)(nil)
)
