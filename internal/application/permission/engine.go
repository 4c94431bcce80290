package permission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/doc-approval/internal/application/dispatcher"
	"github.com/garyjia/doc-approval/internal/application/port"
	"github.com/garyjia/doc-approval/internal/domain/entity"
	"github.com/garyjia/doc-approval/internal/domain/event"
)

// SystemActor is recorded as the actor of maintenance operations
const SystemActor = "system"

// Engine decides and manages document access
type Engine interface {
	// CheckPermission reports whether userID may perform t on documentID.
	// Owners hold every type; edit, delete and share each include view.
	CheckPermission(ctx context.Context, documentID, userID string, t entity.PermissionType) (bool, error)

	// Grant creates or replaces the grant for (document, target, type)
	Grant(ctx context.Context, req GrantRequest) (*entity.Grant, error)

	// Revoke removes one grant; false means nothing was stored
	Revoke(ctx context.Context, documentID, revokerID, targetID string, t entity.PermissionType) (bool, error)

	// RevokeAll removes every grant the target holds on the document
	RevokeAll(ctx context.Context, documentID, revokerID, targetID string) (int, error)

	// ListGrants enumerates active grants for the owner or a share holder
	ListGrants(ctx context.Context, documentID, requesterID string) ([]*entity.Grant, error)

	// SharedWith lists the active grants held by userID across documents
	SharedWith(ctx context.Context, userID string) ([]*entity.Grant, error)

	// SweepExpired physically deletes grants that expired before now
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}

// GrantRequest carries the inputs of Grant
type GrantRequest struct {
	DocumentID string
	GranterID  string
	TargetID   string
	Type       entity.PermissionType
	ExpiresAt  *time.Time
}

type engineImpl struct {
	store      port.PermissionStore
	owners     port.OwnerLookup
	users      port.UserDirectory
	dispatcher dispatcher.Dispatcher
	logger     port.Logger
	metrics    port.Metrics
	now        func() time.Time
}

// EngineOption configures the permission engine
type EngineOption func(*engineImpl)

// WithDispatcher sets the event dispatcher for emitting events
func WithDispatcher(d dispatcher.Dispatcher) EngineOption {
	return func(e *engineImpl) {
		e.dispatcher = d
	}
}

// WithLogger sets the logger
func WithLogger(l port.Logger) EngineOption {
	return func(e *engineImpl) {
		e.logger = l
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(m port.Metrics) EngineOption {
	return func(e *engineImpl) {
		e.metrics = m
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) EngineOption {
	return func(e *engineImpl) {
		e.now = now
	}
}

// NewEngine creates a new permission engine
func NewEngine(
	store port.PermissionStore,
	owners port.OwnerLookup,
	users port.UserDirectory,
	opts ...EngineOption,
) Engine {
	e := &engineImpl{
		store:   store,
		owners:  owners,
		users:   users,
		logger:  port.NopLogger{},
		metrics: port.NopMetrics{},
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

func (e *engineImpl) CheckPermission(ctx context.Context, documentID, userID string, t entity.PermissionType) (bool, error) {
	if !t.IsValid() {
		return false, fmt.Errorf("%w: %q", entity.ErrInvalidPermissionType, t)
	}

	allowed, err := e.check(ctx, documentID, userID, t)
	if err != nil {
		return false, err
	}

	e.metrics.PermissionChecked(t.String(), allowed)
	return allowed, nil
}

func (e *engineImpl) check(ctx context.Context, documentID, userID string, t entity.PermissionType) (bool, error) {
	if userID == "" {
		return false, nil
	}

	owner, err := e.owners.GetOwner(ctx, documentID)
	if err != nil {
		return false, e.storageErr("lookup owner", err, "document_id", documentID)
	}
	if owner == "" {
		return false, nil
	}
	if owner == userID {
		return true, nil
	}

	grant, err := e.store.FindActive(ctx, documentID, userID, t.Satisfying(), e.now())
	if err != nil {
		return false, e.storageErr("find grant", err, "document_id", documentID, "user_id", userID)
	}

	return grant != nil, nil
}

// authorizeShare requires the actor to be the owner or hold share
func (e *engineImpl) authorizeShare(ctx context.Context, documentID, actorID string) error {
	ok, err := e.check(ctx, documentID, actorID, entity.PermissionShare)
	if err != nil {
		return err
	}
	if !ok {
		return entity.ErrPermissionDenied
	}
	return nil
}

func (e *engineImpl) Grant(ctx context.Context, req GrantRequest) (*entity.Grant, error) {
	if !req.Type.IsValid() {
		return nil, fmt.Errorf("%w: %q", entity.ErrInvalidPermissionType, req.Type)
	}
	if err := e.authorizeShare(ctx, req.DocumentID, req.GranterID); err != nil {
		return nil, err
	}
	if err := e.validateTarget(ctx, req.TargetID); err != nil {
		return nil, err
	}

	grant := &entity.Grant{
		DocumentID: req.DocumentID,
		UserID:     req.TargetID,
		Type:       req.Type,
		GrantedBy:  req.GranterID,
		GrantedAt:  e.now().UTC(),
	}
	if req.ExpiresAt != nil {
		exp := req.ExpiresAt.UTC()
		grant.ExpiresAt = &exp
	}

	if err := e.store.Upsert(ctx, grant); err != nil {
		return nil, e.storageErr("save grant", err, "document_id", req.DocumentID, "user_id", req.TargetID)
	}

	e.logger.Info("Permission granted",
		"document_id", grant.DocumentID,
		"user_id", grant.UserID,
		"type", grant.Type,
		"granted_by", grant.GrantedBy,
	)

	payload := map[string]interface{}{
		event.KeyTargetID:       grant.UserID,
		event.KeyPermissionType: grant.Type.String(),
	}
	if grant.ExpiresAt != nil {
		payload[event.KeyExpiresAt] = grant.ExpiresAt.Format(time.RFC3339Nano)
	}
	e.publish(ctx, event.NewEvent(event.TypePermissionGranted, grant.DocumentID, "", grant.GrantedBy, payload))

	return grant, nil
}

func (e *engineImpl) validateTarget(ctx context.Context, userID string) error {
	exists, err := e.users.Exists(ctx, userID)
	if err != nil {
		return e.storageErr("lookup user", err, "user_id", userID)
	}
	if !exists {
		return fmt.Errorf("%w: %s", entity.ErrUserNotFound, userID)
	}

	active, err := e.users.IsActive(ctx, userID)
	if err != nil {
		return e.storageErr("lookup user", err, "user_id", userID)
	}
	if !active {
		return fmt.Errorf("%w: %s", entity.ErrUserInactive, userID)
	}
	return nil
}

func (e *engineImpl) Revoke(ctx context.Context, documentID, revokerID, targetID string, t entity.PermissionType) (bool, error) {
	if !t.IsValid() {
		return false, fmt.Errorf("%w: %q", entity.ErrInvalidPermissionType, t)
	}
	if err := e.authorizeShare(ctx, documentID, revokerID); err != nil {
		return false, err
	}

	removed, err := e.store.Delete(ctx, documentID, targetID, t)
	if err != nil {
		return false, e.storageErr("delete grant", err, "document_id", documentID, "user_id", targetID)
	}
	if !removed {
		return false, nil
	}

	e.logger.Info("Permission revoked",
		"document_id", documentID,
		"user_id", targetID,
		"type", t,
		"revoked_by", revokerID,
	)
	e.publish(ctx, event.NewEvent(event.TypePermissionRevoked, documentID, "", revokerID, map[string]interface{}{
		event.KeyTargetID:       targetID,
		event.KeyPermissionType: t.String(),
		event.KeyCount:          1,
	}))

	return true, nil
}

func (e *engineImpl) RevokeAll(ctx context.Context, documentID, revokerID, targetID string) (int, error) {
	if err := e.authorizeShare(ctx, documentID, revokerID); err != nil {
		return 0, err
	}

	n, err := e.store.DeleteAll(ctx, documentID, targetID)
	if err != nil {
		return 0, e.storageErr("delete grants", err, "document_id", documentID, "user_id", targetID)
	}
	if n == 0 {
		return 0, nil
	}

	e.logger.Info("All permissions revoked",
		"document_id", documentID,
		"user_id", targetID,
		"count", n,
		"revoked_by", revokerID,
	)
	e.publish(ctx, event.NewEvent(event.TypePermissionRevoked, documentID, "", revokerID, map[string]interface{}{
		event.KeyTargetID: targetID,
		event.KeyCount:    n,
	}))

	return n, nil
}

func (e *engineImpl) ListGrants(ctx context.Context, documentID, requesterID string) ([]*entity.Grant, error) {
	if err := e.authorizeShare(ctx, documentID, requesterID); err != nil {
		return nil, err
	}

	grants, err := e.store.ListByDocument(ctx, documentID, e.now())
	if err != nil {
		return nil, e.storageErr("list grants", err, "document_id", documentID)
	}
	return grants, nil
}

func (e *engineImpl) SharedWith(ctx context.Context, userID string) ([]*entity.Grant, error) {
	grants, err := e.store.ListByUser(ctx, userID, e.now())
	if err != nil {
		return nil, e.storageErr("list grants", err, "user_id", userID)
	}
	return grants, nil
}

func (e *engineImpl) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	cutoff := now
	if cutoff.IsZero() {
		cutoff = e.now()
	}

	n, err := e.store.DeleteExpired(ctx, cutoff)
	if err != nil {
		return 0, e.storageErr("sweep grants", err)
	}

	if n > 0 {
		e.logger.Info("Expired grants swept", "count", n, "cutoff", cutoff)
		e.publish(ctx, event.NewEvent(event.TypeGrantsSwept, "", "", SystemActor, map[string]interface{}{
			event.KeyCount: n,
		}))
	}

	return n, nil
}

func (e *engineImpl) publish(ctx context.Context, evt *event.Event) {
	if e.dispatcher != nil {
		e.dispatcher.DispatchAsync(ctx, evt)
	}
}

// storageErr logs the driver detail and returns an opaque storage error
func (e *engineImpl) storageErr(op string, err error, keysAndValues ...interface{}) error {
	if errors.Is(err, entity.ErrStorage) {
		return err
	}
	e.logger.Error("Permission store failure", append([]interface{}{"op", op, "error", err}, keysAndValues...)...)
	return fmt.Errorf("%w: %s", entity.ErrStorage, op)
}
