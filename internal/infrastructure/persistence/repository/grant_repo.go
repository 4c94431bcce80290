package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/doc-approval/internal/application/port"
	"github.com/garyjia/doc-approval/internal/domain/entity"
	"github.com/garyjia/doc-approval/internal/infrastructure/persistence/sqldb"
)

// GrantRepository implements port.PermissionStore
type GrantRepository struct {
	db     *sqldb.DB
	logger *zap.Logger
}

// NewGrantRepository creates a new grant repository
func NewGrantRepository(db *sqldb.DB, logger *zap.Logger) *GrantRepository {
	return &GrantRepository{
		db:     db,
		logger: logger,
	}
}

const grantColumns = `document_id, user_id, permission_type, granted_by, granted_at, expires_at`

// Upsert creates the grant or replaces the one stored for the same tuple
func (r *GrantRepository) Upsert(ctx context.Context, grant *entity.Grant) error {
	query := `
		INSERT INTO permission_grants (` + grantColumns + `)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (document_id, user_id, permission_type) DO UPDATE SET
			granted_by = excluded.granted_by,
			granted_at = excluded.granted_at,
			expires_at = excluded.expires_at
	`

	_, err := r.db.Executor(ctx).ExecContext(ctx, r.db.Rebind(query),
		grant.DocumentID,
		grant.UserID,
		string(grant.Type),
		grant.GrantedBy,
		utc(grant.GrantedAt),
		nullableTime(grant.ExpiresAt),
	)
	if err != nil {
		r.logger.Error("Failed to upsert grant",
			zap.String("document_id", grant.DocumentID),
			zap.String("user_id", grant.UserID),
			zap.Error(err))
		return fmt.Errorf("failed to upsert grant: %w", err)
	}
	return nil
}

// FindActive returns any unexpired grant of one of the given types
func (r *GrantRepository) FindActive(ctx context.Context, documentID, userID string, types []entity.PermissionType, now time.Time) (*entity.Grant, error) {
	if len(types) == 0 {
		return nil, nil
	}

	query := `
		SELECT ` + grantColumns + `
		FROM permission_grants
		WHERE document_id = ? AND user_id = ?
			AND permission_type IN (` + placeholders(len(types)) + `)
			AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY permission_type
		LIMIT 1
	`

	args := append([]interface{}{documentID, userID}, typeArgs(types)...)
	args = append(args, utc(now))

	grant, err := scanGrant(r.db.Executor(ctx).QueryRowContext(ctx, r.db.Rebind(query), args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to find grant",
			zap.String("document_id", documentID),
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to find grant: %w", err)
	}
	return grant, nil
}

// Delete removes one grant
func (r *GrantRepository) Delete(ctx context.Context, documentID, userID string, t entity.PermissionType) (bool, error) {
	query := `DELETE FROM permission_grants WHERE document_id = ? AND user_id = ? AND permission_type = ?`

	result, err := r.db.Executor(ctx).ExecContext(ctx, r.db.Rebind(query), documentID, userID, string(t))
	if err != nil {
		r.logger.Error("Failed to delete grant", zap.String("document_id", documentID), zap.Error(err))
		return false, fmt.Errorf("failed to delete grant: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return n > 0, nil
}

// DeleteAll removes every grant the user holds on the document
func (r *GrantRepository) DeleteAll(ctx context.Context, documentID, userID string) (int, error) {
	query := `DELETE FROM permission_grants WHERE document_id = ? AND user_id = ?`

	result, err := r.db.Executor(ctx).ExecContext(ctx, r.db.Rebind(query), documentID, userID)
	if err != nil {
		r.logger.Error("Failed to delete grants", zap.String("document_id", documentID), zap.Error(err))
		return 0, fmt.Errorf("failed to delete grants: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return int(n), nil
}

// ListByDocument returns active grants ordered by user then type
func (r *GrantRepository) ListByDocument(ctx context.Context, documentID string, now time.Time) ([]*entity.Grant, error) {
	query := `
		SELECT ` + grantColumns + `
		FROM permission_grants
		WHERE document_id = ? AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY user_id, permission_type
	`
	return r.list(ctx, query, documentID, utc(now))
}

// ListByUser returns the active grants a user holds, ordered by document then type
func (r *GrantRepository) ListByUser(ctx context.Context, userID string, now time.Time) ([]*entity.Grant, error) {
	query := `
		SELECT ` + grantColumns + `
		FROM permission_grants
		WHERE user_id = ? AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY document_id, permission_type
	`
	return r.list(ctx, query, userID, utc(now))
}

// DeleteExpired removes grants that expired strictly before cutoff
func (r *GrantRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int, error) {
	query := `DELETE FROM permission_grants WHERE expires_at IS NOT NULL AND expires_at < ?`

	result, err := r.db.Executor(ctx).ExecContext(ctx, r.db.Rebind(query), utc(cutoff))
	if err != nil {
		r.logger.Error("Failed to delete expired grants", zap.Error(err))
		return 0, fmt.Errorf("failed to delete expired grants: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return int(n), nil
}

func (r *GrantRepository) list(ctx context.Context, query string, args ...interface{}) ([]*entity.Grant, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		r.logger.Error("Failed to list grants", zap.Error(err))
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	defer rows.Close()

	grants := make([]*entity.Grant, 0)
	for rows.Next() {
		grant, err := scanGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan grant: %w", err)
		}
		grants = append(grants, grant)
	}
	return grants, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanGrant(row rowScanner) (*entity.Grant, error) {
	var g entity.Grant
	var permType string
	var expiresAt sql.NullTime

	if err := row.Scan(&g.DocumentID, &g.UserID, &permType, &g.GrantedBy, &g.GrantedAt, &expiresAt); err != nil {
		return nil, err
	}

	g.Type = entity.PermissionType(permType)
	g.GrantedAt = g.GrantedAt.UTC()
	g.ExpiresAt = timePtr(expiresAt)
	return &g, nil
}

var _ port.PermissionStore = (*GrantRepository)(nil)
