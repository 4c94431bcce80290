package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/doc-approval/internal/application/port"
	"github.com/garyjia/doc-approval/internal/domain/entity"
	"github.com/garyjia/doc-approval/internal/domain/workflow"
	"github.com/garyjia/doc-approval/internal/infrastructure/persistence/sqldb"
	"github.com/garyjia/doc-approval/migrations"
	"github.com/garyjia/doc-approval/pkg/database"
)

func newTestDB(t *testing.T) *sqldb.DB {
	t.Helper()

	logger := zap.NewNop()
	db, err := database.New(database.Config{
		Driver: database.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "test.db"),
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.NewMigrator(db, logger).RunMigrations(migrations.FS, database.DriverSQLite.MigrationsDir()))
	return sqldb.NewDB(db.DB, db.Driver, logger)
}

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestGrantRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewGrantRepository(newTestDB(t), zap.NewNop())

	soon := base.Add(time.Hour)
	grants := []*entity.Grant{
		{DocumentID: "doc1", UserID: "bob", Type: entity.PermissionEdit, GrantedBy: "alice", GrantedAt: base},
		{DocumentID: "doc1", UserID: "bob", Type: entity.PermissionView, GrantedBy: "alice", GrantedAt: base},
		{DocumentID: "doc1", UserID: "amy", Type: entity.PermissionShare, GrantedBy: "alice", GrantedAt: base, ExpiresAt: &soon},
		{DocumentID: "doc2", UserID: "bob", Type: entity.PermissionView, GrantedBy: "carol", GrantedAt: base},
	}
	for _, g := range grants {
		require.NoError(t, repo.Upsert(ctx, g))
	}

	t.Run("find active matches any satisfying type", func(t *testing.T) {
		g, err := repo.FindActive(ctx, "doc1", "bob", entity.PermissionView.Satisfying(), base)
		require.NoError(t, err)
		require.NotNil(t, g)
		assert.Equal(t, "alice", g.GrantedBy)

		g, err = repo.FindActive(ctx, "doc1", "bob", entity.PermissionDelete.Satisfying(), base)
		require.NoError(t, err)
		assert.Nil(t, g)
	})

	t.Run("expiry boundary is exclusive", func(t *testing.T) {
		g, err := repo.FindActive(ctx, "doc1", "amy", []entity.PermissionType{entity.PermissionShare}, soon.Add(-time.Millisecond))
		require.NoError(t, err)
		require.NotNil(t, g)
		require.NotNil(t, g.ExpiresAt)
		assert.True(t, g.ExpiresAt.Equal(soon))

		g, err = repo.FindActive(ctx, "doc1", "amy", []entity.PermissionType{entity.PermissionShare}, soon)
		require.NoError(t, err)
		assert.Nil(t, g)
	})

	t.Run("list by document is ordered by user then type", func(t *testing.T) {
		list, err := repo.ListByDocument(ctx, "doc1", base)
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, "amy", list[0].UserID)
		assert.Equal(t, entity.PermissionEdit, list[1].Type)
		assert.Equal(t, entity.PermissionView, list[2].Type)

		list, err = repo.ListByDocument(ctx, "doc1", soon)
		require.NoError(t, err)
		assert.Len(t, list, 2)
	})

	t.Run("list by user", func(t *testing.T) {
		list, err := repo.ListByUser(ctx, "bob", base)
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, "doc2", list[2].DocumentID)
	})

	t.Run("upsert replaces expiry", func(t *testing.T) {
		later := base.Add(48 * time.Hour)
		require.NoError(t, repo.Upsert(ctx, &entity.Grant{
			DocumentID: "doc1", UserID: "amy", Type: entity.PermissionShare,
			GrantedBy: "alice", GrantedAt: base.Add(time.Minute), ExpiresAt: &later,
		}))

		g, err := repo.FindActive(ctx, "doc1", "amy", []entity.PermissionType{entity.PermissionShare}, soon)
		require.NoError(t, err)
		require.NotNil(t, g)
		assert.True(t, g.ExpiresAt.Equal(later))
	})

	t.Run("delete expired uses strict cutoff", func(t *testing.T) {
		n, err := repo.DeleteExpired(ctx, base.Add(48*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		n, err = repo.DeleteExpired(ctx, base.Add(49*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("delete", func(t *testing.T) {
		ok, err := repo.Delete(ctx, "doc1", "bob", entity.PermissionEdit)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.Delete(ctx, "doc1", "bob", entity.PermissionEdit)
		require.NoError(t, err)
		assert.False(t, ok)

		n, err := repo.DeleteAll(ctx, "doc2", "bob")
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})
}

func TestDefinitionRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewDefinitionRepository(newTestDB(t), zap.NewNop())

	def := &entity.WorkflowDefinition{
		Name:   "expense",
		Active: true,
		Stages: []entity.Stage{
			{Name: "manager", Approvers: []string{"m1"}},
			{Name: "finance", Approvers: []string{"f1", "f2"}, RequireAll: true},
		},
		Version:   1,
		CreatedBy: "admin",
		CreatedAt: base,
		UpdatedAt: base,
	}
	require.NoError(t, repo.Create(ctx, def))
	require.NotZero(t, def.ID)

	dup := *def
	assert.ErrorIs(t, repo.Create(ctx, &dup), port.ErrDuplicateKey)

	got, err := repo.GetByName(ctx, "expense")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, def.Stages, got.Stages)
	assert.True(t, got.CreatedAt.Equal(base))

	next := *got
	next.Active = false
	next.Version = 2
	next.UpdatedAt = base.Add(time.Hour)
	require.NoError(t, repo.Update(ctx, &next, 1))
	assert.ErrorIs(t, repo.Update(ctx, &next, 1), port.ErrVersionConflict)

	got, err = repo.GetByID(ctx, def.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	assert.False(t, got.Active)

	all, err := repo.List(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	active, err := repo.List(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, active)

	missing, err := repo.GetByID(ctx, 999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestInstanceRepository(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	defs := NewDefinitionRepository(db, zap.NewNop())
	repo := NewInstanceRepository(db, zap.NewNop())

	def := &entity.WorkflowDefinition{
		Name: "two-step", Active: true, Version: 1, CreatedAt: base, UpdatedAt: base,
		Stages: []entity.Stage{
			{Name: "review", Approvers: []string{"r1"}},
			{Name: "sign", Approvers: []string{"s1"}},
		},
	}
	require.NoError(t, defs.Create(ctx, def))

	inst := &entity.ApprovalInstance{
		ID:              "inst-1",
		DocumentID:      "doc1",
		WorkflowID:      def.ID,
		WorkflowVersion: def.Version,
		Stages:          entity.CloneStages(def.Stages),
		SubmittedBy:     "alice",
		SubmittedAt:     base,
		Status:          workflow.StatePending,
		Version:         1,
	}
	require.NoError(t, repo.Create(ctx, inst))

	second := inst.Clone()
	second.ID = "inst-2"
	assert.ErrorIs(t, repo.Create(ctx, second), port.ErrDuplicateKey)

	pending, err := repo.FindPending(ctx, "doc1")
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, "inst-1", pending.ID)
	assert.Empty(t, pending.Decisions)

	next := pending.Clone()
	decision := entity.Decision{
		InstanceID: inst.ID, StageIndex: 0, ApproverID: "r1",
		Outcome: entity.OutcomeApprove, Comment: "ok", DecidedAt: base.Add(time.Minute),
	}
	next.Decisions = append(next.Decisions, decision)
	next.CurrentStage = 1
	next.Version = 2
	require.NoError(t, repo.AppendDecision(ctx, next, &decision, 1))
	assert.NotZero(t, decision.ID)

	stale := pending.Clone()
	stale.Version = 2
	lost := entity.Decision{InstanceID: inst.ID, StageIndex: 0, ApproverID: "r1", Outcome: entity.OutcomeReject, DecidedAt: base}
	assert.ErrorIs(t, repo.AppendDecision(ctx, stale, &lost, 1), port.ErrVersionConflict)

	final := next.Clone()
	signed := entity.Decision{
		InstanceID: inst.ID, StageIndex: 1, ApproverID: "s1",
		Outcome: entity.OutcomeApprove, DecidedAt: base.Add(2 * time.Minute),
	}
	done := base.Add(2 * time.Minute)
	final.Decisions = append(final.Decisions, signed)
	final.Status = workflow.StateApproved
	final.CompletedAt = &done
	final.Version = 3
	require.NoError(t, repo.AppendDecision(ctx, final, &signed, 2))

	got, err := repo.GetByID(ctx, inst.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, workflow.StateApproved, got.Status)
	assert.Equal(t, int64(3), got.Version)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.CompletedAt.Equal(done))
	require.Len(t, got.Decisions, 2)
	assert.Equal(t, "ok", got.Decisions[0].Comment)
	assert.Equal(t, "s1", got.Decisions[1].ApproverID)
	assert.Equal(t, def.Stages, got.Stages)

	pending, err = repo.FindPending(ctx, "doc1")
	require.NoError(t, err)
	assert.Nil(t, pending)

	// the document is free for a new submission once the first one is terminal
	second.SubmittedAt = base.Add(time.Hour)
	require.NoError(t, repo.Create(ctx, second))

	list, err := repo.ListByDocument(ctx, "doc1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "inst-1", list[0].ID)
	assert.Len(t, list[0].Decisions, 2)

	open, err := repo.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "inst-2", open[0].ID)
}

func TestAuditRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewAuditRepository(newTestDB(t), zap.NewNop())

	stage := 1
	records := []port.AuditRecord{
		{EventID: "e1", DocumentID: "doc1", ActorID: "alice", Action: entity.ActionPermissionGranted, Details: map[string]interface{}{"target_id": "bob"}, Timestamp: base},
		{EventID: "e2", DocumentID: "doc1", ActorID: "bob", Action: entity.ActionWorkflowApproved, InstanceID: "inst-1", StageIndex: &stage, Outcome: "approve", Timestamp: base.Add(time.Minute)},
		{EventID: "e3", DocumentID: "doc2", ActorID: "carol", Action: entity.ActionWorkflowSubmitted, Timestamp: base},
	}
	for _, rec := range records {
		require.NoError(t, repo.Record(ctx, rec))
	}
	// redelivered event
	require.NoError(t, repo.Record(ctx, records[0]))

	list, err := repo.ListByDocument(ctx, "doc1", 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "e2", list[0].EventID)
	require.NotNil(t, list[0].StageIndex)
	assert.Equal(t, 1, *list[0].StageIndex)
	assert.Nil(t, list[1].StageIndex)
	assert.Equal(t, "bob", list[1].Details["target_id"])

	limited, err := repo.ListByDocument(ctx, "doc1", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestDirectoryRepositories(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	users := NewUserRepository(db, zap.NewNop())
	docs := NewDocumentRepository(db, zap.NewNop())

	require.NoError(t, users.Save(ctx, &entity.User{ID: "bob", DisplayName: "Bob", Active: true, CreatedAt: base}))
	require.NoError(t, users.Save(ctx, &entity.User{ID: "eve", DisplayName: "Eve", Active: false, CreatedAt: base}))

	ok, err := users.Exists(ctx, "eve")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = users.IsActive(ctx, "eve")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = users.Exists(ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, users.Save(ctx, &entity.User{ID: "bob", DisplayName: "Robert", LarkOpenID: "ou_1", Active: true, CreatedAt: base.Add(time.Hour)}))
	u, err := users.GetByID(ctx, "bob")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "Robert", u.DisplayName)
	assert.Equal(t, "ou_1", u.LarkOpenID)
	assert.True(t, u.CreatedAt.Equal(base))

	require.NoError(t, docs.Save(ctx, &entity.Document{ID: "doc1", OwnerID: "alice", Title: "Budget", CreatedAt: base}))
	owner, err := docs.GetOwner(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, "alice", owner)

	owner, err = docs.GetOwner(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, owner)

	d, err := docs.GetByID(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestTransactionSharedAcrossRepositories(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	docs := NewDocumentRepository(db, zap.NewNop())
	users := NewUserRepository(db, zap.NewNop())

	err := db.WithTransaction(ctx, func(txCtx context.Context) error {
		require.True(t, sqldb.InTransaction(txCtx))
		if err := docs.Save(txCtx, &entity.Document{ID: "doc1", OwnerID: "alice", CreatedAt: base}); err != nil {
			return err
		}
		if err := users.Save(txCtx, &entity.User{ID: "alice", Active: true, CreatedAt: base}); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	owner, err := docs.GetOwner(ctx, "doc1")
	require.NoError(t, err)
	assert.Empty(t, owner, "rolled back")
}
