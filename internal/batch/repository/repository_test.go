package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	batchdomain "github.com/greenyard/packhouse/internal/batch/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&batchdomain.Batch{},
		&batchdomain.GradeAllocation{},
		&batchdomain.DisposalEntry{},
	))
	return db
}

func seedBatch(t *testing.T, db *gorm.DB, repo batchdomain.Repository, node *snowflake.Node, createdAt time.Time) *batchdomain.Batch {
	t.Helper()
	id := node.Generate()
	batch := &batchdomain.Batch{
		ID:             id,
		Code:           "B-" + id.Base36(),
		Variety:        "strawberry",
		SourceOrigin:   "field-1",
		StatedMassKg:   50,
		ActualMassKg:   50,
		LifecycleState: batchdomain.StateInspection,
		Outcome:        batchdomain.OutcomeInProgress,
		DueAt:          createdAt.Add(4 * time.Hour),
		Version:        1,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}
	require.NoError(t, repo.Insert(context.Background(), db, batch))
	return batch
}

func TestUpdateGuardedRejectsStaleVersion(t *testing.T) {
	db := newTestDB(t)
	repo := Provide()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	ctx := context.Background()

	batch := seedBatch(t, db, repo, node, time.Now().UTC())

	// First writer wins and bumps the version.
	batch.LifecycleState = batchdomain.StateGrading
	require.NoError(t, repo.UpdateGuarded(ctx, db, batch, 1))
	assert.Equal(t, int64(2), batch.Version)

	// A writer still holding version 1 is rejected.
	stale := *batch
	stale.LifecycleState = batchdomain.StateDisposal
	err = repo.UpdateGuarded(ctx, db, &stale, 1)
	assert.ErrorIs(t, err, batchdomain.ErrStateConflict)

	// The stored row kept the first write.
	stored, err := repo.FindByID(ctx, db, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, batchdomain.StateGrading, stored.LifecycleState)
	assert.Equal(t, int64(2), stored.Version)
}

func TestUpdateAllocationGuarded(t *testing.T) {
	db := newTestDB(t)
	repo := Provide()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	ctx := context.Background()

	batch := seedBatch(t, db, repo, node, time.Now().UTC())
	alloc := batchdomain.GradeAllocation{
		ID:              node.Generate(),
		BatchID:         batch.ID,
		Grade:           batchdomain.GradeA,
		MassKg:          50,
		PackagingStatus: batchdomain.PackagingPending,
		Version:         1,
		CreatedAt:       batch.CreatedAt,
		UpdatedAt:       batch.CreatedAt,
	}
	require.NoError(t, repo.InsertAllocations(ctx, db, []batchdomain.GradeAllocation{alloc}))

	alloc.MassKg = 0
	alloc.PackagingStatus = batchdomain.PackagingCompleted
	require.NoError(t, repo.UpdateAllocationGuarded(ctx, db, &alloc, 1))

	err = repo.UpdateAllocationGuarded(ctx, db, &alloc, 1)
	assert.ErrorIs(t, err, batchdomain.ErrStateConflict)
}

func TestFindByIDNotFound(t *testing.T) {
	db := newTestDB(t)
	repo := Provide()

	_, err := repo.FindByID(context.Background(), db, snowflake.ID(999))
	assert.ErrorIs(t, err, batchdomain.ErrNotFound)
}

func TestListFiltersByVarietyAndState(t *testing.T) {
	db := newTestDB(t)
	repo := Provide()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	ctx := context.Background()

	base := time.Now().UTC()
	first := seedBatch(t, db, repo, node, base)
	second := seedBatch(t, db, repo, node, base.Add(time.Minute))

	second.LifecycleState = batchdomain.StateGrading
	require.NoError(t, repo.UpdateGuarded(ctx, db, second, 1))

	inspecting, err := repo.List(ctx, db, batchdomain.ListFilter{
		Variety: "strawberry",
		State:   batchdomain.StateInspection,
	})
	require.NoError(t, err)
	require.Len(t, inspecting, 1)
	assert.Equal(t, first.ID, inspecting[0].ID)

	all, err := repo.List(ctx, db, batchdomain.ListFilter{Variety: "strawberry"})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
