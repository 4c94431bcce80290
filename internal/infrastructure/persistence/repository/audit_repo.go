package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/doc-approval/internal/application/port"
	"github.com/garyjia/doc-approval/internal/infrastructure/persistence/sqldb"
)

// AuditRepository persists audit records; implements port.AuditRepository
type AuditRepository struct {
	db     *sqldb.DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *sqldb.DB, logger *zap.Logger) *AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// Record appends one audit record. Redelivery of an already recorded event
// is ignored.
func (r *AuditRepository) Record(ctx context.Context, rec port.AuditRecord) error {
	details := rec.Details
	if details == nil {
		details = map[string]interface{}{}
	}
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("failed to marshal audit details: %w", err)
	}

	var stageIndex interface{}
	if rec.StageIndex != nil {
		stageIndex = *rec.StageIndex
	}

	query := `
		INSERT INTO audit_log (event_id, document_id, actor_id, action, instance_id, stage_index, outcome, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (event_id) DO NOTHING
	`

	_, err = r.db.Executor(ctx).ExecContext(ctx, r.db.Rebind(query),
		rec.EventID,
		rec.DocumentID,
		rec.ActorID,
		rec.Action,
		rec.InstanceID,
		stageIndex,
		rec.Outcome,
		string(detailsJSON),
		utc(rec.Timestamp),
	)
	if err != nil {
		r.logger.Error("Failed to record audit entry",
			zap.String("event_id", rec.EventID),
			zap.String("action", rec.Action),
			zap.Error(err))
		return fmt.Errorf("failed to record audit entry: %w", err)
	}
	return nil
}

// ListByDocument returns the newest records first; limit <= 0 means no limit
func (r *AuditRepository) ListByDocument(ctx context.Context, documentID string, limit int) ([]port.AuditRecord, error) {
	query := `
		SELECT id, event_id, document_id, actor_id, action, instance_id, stage_index, outcome, details, created_at
		FROM audit_log
		WHERE document_id = ?
		ORDER BY id DESC
	`
	args := []interface{}{documentID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.Executor(ctx).QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		r.logger.Error("Failed to list audit entries", zap.String("document_id", documentID), zap.Error(err))
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	records := make([]port.AuditRecord, 0)
	for rows.Next() {
		var rec port.AuditRecord
		var stageIndex sql.NullInt64
		var details []byte

		err := rows.Scan(
			&rec.ID,
			&rec.EventID,
			&rec.DocumentID,
			&rec.ActorID,
			&rec.Action,
			&rec.InstanceID,
			&stageIndex,
			&rec.Outcome,
			&details,
			&rec.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}

		if stageIndex.Valid {
			idx := int(stageIndex.Int64)
			rec.StageIndex = &idx
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &rec.Details); err != nil {
				return nil, fmt.Errorf("failed to unmarshal audit details: %w", err)
			}
		}
		rec.Timestamp = rec.Timestamp.UTC()
		records = append(records, rec)
	}
	return records, rows.Err()
}

var _ port.AuditRepository = (*AuditRepository)(nil)
