package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	batchdomain "github.com/greenyard/packhouse/internal/batch/domain"
	"github.com/greenyard/packhouse/internal/batch/repository"
	"github.com/greenyard/packhouse/internal/clock"
	"github.com/greenyard/packhouse/internal/config"
	"github.com/greenyard/packhouse/internal/weight"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (batchdomain.Service, *clock.FakeClock, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&batchdomain.Batch{},
		&batchdomain.GradeAllocation{},
		&batchdomain.DisposalEntry{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	clk := clock.NewFakeClock(time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC))
	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		Clock: clk,
		GenID: node,
		Cfg: config.Config{Pipeline: config.PipelineConfig{
			UnitMassKg:       0.2,
			InspectionWindow: 4 * time.Hour,
			PackagingWindow:  24 * time.Hour,
		}},
		Repo: repository.Provide(),
	})
	return svc, clk, db
}

func intakeBatch(t *testing.T, svc batchdomain.Service, massKg float64) *batchdomain.Batch {
	t.Helper()
	batch, err := svc.SubmitIntake(context.Background(), batchdomain.IntakeRequest{
		Variety:      "strawberry",
		SourceOrigin: "field-7",
		StatedMassKg: massKg,
		ActualMassKg: massKg,
	})
	require.NoError(t, err)
	return batch
}

func TestSubmitIntake(t *testing.T) {
	svc, clk, _ := newTestService(t)

	batch := intakeBatch(t, svc, 100)
	assert.Equal(t, batchdomain.StateInspection, batch.LifecycleState)
	assert.Equal(t, batchdomain.OutcomeInProgress, batch.Outcome)
	assert.Equal(t, 100.0, batch.ActualMassKg)
	assert.Equal(t, clk.Now().Add(4*time.Hour), batch.DueAt)
	assert.NotEmpty(t, batch.Code)

	_, err := svc.SubmitIntake(context.Background(), batchdomain.IntakeRequest{
		Variety:      "strawberry",
		SourceOrigin: "field-7",
		StatedMassKg: 10,
		ActualMassKg: 0,
	})
	assert.ErrorIs(t, err, batchdomain.ErrInvalidMass)
}

func TestInspectionForksRejectedSibling(t *testing.T) {
	svc, _, _ := newTestService(t)
	batch := intakeBatch(t, svc, 100)

	result, err := svc.SubmitInspection(context.Background(), batchdomain.InspectionRequest{
		BatchID:        batch.ID,
		RejectedMassKg: 20,
		Checklist:      map[string]any{"mold": false, "bruising": true},
		Inspector:      "ines",
	})
	require.NoError(t, err)

	original := result.Batch
	sibling := result.RejectedSibling
	require.NotNil(t, sibling)

	assert.Equal(t, batchdomain.StateGrading, original.LifecycleState)
	assert.Equal(t, 80.0, original.ActualMassKg)
	assert.Equal(t, 80.0, original.AcceptedMassKg)
	assert.Equal(t, 20.0, original.RejectedMassKg)

	assert.Equal(t, batchdomain.StateDisposal, sibling.LifecycleState)
	assert.Equal(t, 20.0, sibling.ActualMassKg)
	assert.Equal(t, 20.0, sibling.RejectedMassKg)
	assert.Equal(t, batch.Code+"-REJ", sibling.Code)
	require.NotNil(t, sibling.ParentBatchID)
	assert.Equal(t, batch.ID, *sibling.ParentBatchID)

	// Mass is partitioned, never created or destroyed.
	assert.Equal(t, 100.0, original.ActualMassKg+sibling.ActualMassKg)
}

func TestInspectionCleanPass(t *testing.T) {
	svc, _, _ := newTestService(t)
	batch := intakeBatch(t, svc, 50)

	result, err := svc.SubmitInspection(context.Background(), batchdomain.InspectionRequest{
		BatchID:   batch.ID,
		Inspector: "ines",
	})
	require.NoError(t, err)
	assert.Nil(t, result.RejectedSibling)
	assert.Equal(t, batchdomain.StateGrading, result.Batch.LifecycleState)
	assert.Equal(t, 50.0, result.Batch.ActualMassKg)
	assert.Equal(t, 50.0, result.Batch.AcceptedMassKg)
}

func TestInspectionFullRejection(t *testing.T) {
	svc, _, _ := newTestService(t)
	batch := intakeBatch(t, svc, 40)

	result, err := svc.SubmitInspection(context.Background(), batchdomain.InspectionRequest{
		BatchID:        batch.ID,
		RejectedMassKg: 40,
		Inspector:      "ines",
	})
	require.NoError(t, err)
	assert.Nil(t, result.RejectedSibling)
	assert.Equal(t, batchdomain.StateDisposal, result.Batch.LifecycleState)
	assert.Equal(t, 40.0, result.Batch.RejectedMassKg)
	assert.Equal(t, 0.0, result.Batch.AcceptedMassKg)
}

func TestRejectWholeBatchShortcut(t *testing.T) {
	svc, _, _ := newTestService(t)
	batch := intakeBatch(t, svc, 25)

	result, err := svc.RejectWholeBatch(context.Background(), batch.ID, "ines")
	require.NoError(t, err)
	assert.Equal(t, batchdomain.StateDisposal, result.Batch.LifecycleState)
	assert.Equal(t, 25.0, result.Batch.RejectedMassKg)
}

func TestInspectionValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	batch := intakeBatch(t, svc, 30)

	_, err := svc.SubmitInspection(context.Background(), batchdomain.InspectionRequest{
		BatchID:        batch.ID,
		RejectedMassKg: 31,
	})
	assert.ErrorIs(t, err, batchdomain.ErrRejectedExceedsTotal)

	_, err = svc.SubmitInspection(context.Background(), batchdomain.InspectionRequest{
		BatchID:        batch.ID,
		RejectedMassKg: -1,
	})
	assert.ErrorIs(t, err, batchdomain.ErrInvalidMass)

	// A batch can only be inspected while in inspection.
	_, err = svc.SubmitInspection(context.Background(), batchdomain.InspectionRequest{BatchID: batch.ID})
	require.NoError(t, err)
	_, err = svc.SubmitInspection(context.Background(), batchdomain.InspectionRequest{BatchID: batch.ID})
	var transition *batchdomain.TransitionError
	assert.ErrorAs(t, err, &transition)
}

func TestInspectionSiblingCodeCollisionIsConflict(t *testing.T) {
	svc, clk, db := newTestService(t)
	batch := intakeBatch(t, svc, 100)

	// Simulate a concurrent inspection that already forked the
	// rejection sibling.
	taken := &batchdomain.Batch{
		ID:             batch.ID + 1,
		Code:           batch.Code + "-REJ",
		Variety:        batch.Variety,
		SourceOrigin:   batch.SourceOrigin,
		StatedMassKg:   20,
		ActualMassKg:   20,
		LifecycleState: batchdomain.StateDisposal,
		Outcome:        batchdomain.OutcomeInProgress,
		DueAt:          clk.Now(),
		Version:        1,
		CreatedAt:      clk.Now(),
		UpdatedAt:      clk.Now(),
	}
	require.NoError(t, db.Create(taken).Error)

	_, err := svc.SubmitInspection(context.Background(), batchdomain.InspectionRequest{
		BatchID:        batch.ID,
		RejectedMassKg: 20,
		Inspector:      "ines",
	})
	assert.ErrorIs(t, err, batchdomain.ErrStateConflict)

	// The transaction rolled back, so the original is still awaiting
	// inspection.
	unchanged, err := svc.GetBatch(context.Background(), batch.ID)
	require.NoError(t, err)
	assert.Equal(t, batchdomain.StateInspection, unchanged.LifecycleState)
	assert.Equal(t, 100.0, unchanged.ActualMassKg)
}

func TestReopenInspection(t *testing.T) {
	svc, _, _ := newTestService(t)
	batch := intakeBatch(t, svc, 40)

	_, err := svc.RejectWholeBatch(context.Background(), batch.ID, "ines")
	require.NoError(t, err)

	reopened, err := svc.ReopenInspection(context.Background(), batch.ID)
	require.NoError(t, err)
	assert.Equal(t, batchdomain.StateInspection, reopened.LifecycleState)
	assert.Equal(t, 0.0, reopened.RejectedMassKg)
	assert.Equal(t, 0.0, reopened.AcceptedMassKg)
	assert.Empty(t, reopened.Inspector)
	assert.False(t, reopened.InspectedAt.Valid)

	// The corrected batch goes through inspection again.
	result, err := svc.SubmitInspection(context.Background(), batchdomain.InspectionRequest{
		BatchID:   batch.ID,
		Inspector: "ines",
	})
	require.NoError(t, err)
	assert.Equal(t, batchdomain.StateGrading, result.Batch.LifecycleState)

	// Reopen only applies to batches awaiting disposal.
	_, err = svc.ReopenInspection(context.Background(), batch.ID)
	var transition *batchdomain.TransitionError
	assert.ErrorAs(t, err, &transition)
}

func TestGradingReconciliation(t *testing.T) {
	svc, _, _ := newTestService(t)
	batch := intakeBatch(t, svc, 100)
	_, err := svc.SubmitInspection(context.Background(), batchdomain.InspectionRequest{
		BatchID:        batch.ID,
		RejectedMassKg: 20,
	})
	require.NoError(t, err)

	// 50 + 19.9 + 10 misses the accepted 80 kg by more than tolerance.
	_, err = svc.SubmitGrading(context.Background(), batchdomain.GradingRequest{
		BatchID: batch.ID,
		Grades: []batchdomain.GradeMass{
			{Grade: batchdomain.GradeA, MassKg: 50},
			{Grade: batchdomain.GradeB, MassKg: 19.9},
			{Grade: batchdomain.GradeC, MassKg: 10},
		},
	})
	var mismatch *weight.MismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 80.0, mismatch.ExpectedKg)
	assert.InDelta(t, 79.9, mismatch.ActualKg, 1e-9)

	// The failed attempt left the batch untouched.
	unchanged, err := svc.GetBatch(context.Background(), batch.ID)
	require.NoError(t, err)
	assert.Equal(t, batchdomain.StateGrading, unchanged.LifecycleState)
	assert.Empty(t, unchanged.Allocations)

	graded, err := svc.SubmitGrading(context.Background(), batchdomain.GradingRequest{
		BatchID: batch.ID,
		Grades: []batchdomain.GradeMass{
			{Grade: batchdomain.GradeA, MassKg: 50},
			{Grade: batchdomain.GradeB, MassKg: 20},
			{Grade: batchdomain.GradeC, MassKg: 10},
		},
		GradedBy: "gus",
	})
	require.NoError(t, err)
	assert.Equal(t, batchdomain.StateCleaning, graded.LifecycleState)
	require.Len(t, graded.Allocations, 3)
	assert.Equal(t, 50.0, graded.AllocationFor(batchdomain.GradeA).MassKg)
	assert.Equal(t, 20.0, graded.AllocationFor(batchdomain.GradeB).MassKg)
	assert.Equal(t, 10.0, graded.AllocationFor(batchdomain.GradeC).MassKg)
}

func TestGradingRejectsUnknownGrade(t *testing.T) {
	svc, _, _ := newTestService(t)
	batch := intakeBatch(t, svc, 10)
	_, err := svc.SubmitInspection(context.Background(), batchdomain.InspectionRequest{BatchID: batch.ID})
	require.NoError(t, err)

	_, err = svc.SubmitGrading(context.Background(), batchdomain.GradingRequest{
		BatchID: batch.ID,
		Grades:  []batchdomain.GradeMass{{Grade: "D", MassKg: 10}},
	})
	assert.ErrorIs(t, err, batchdomain.ErrInvalidGrade)
}

func TestDisposalReconciliation(t *testing.T) {
	svc, _, _ := newTestService(t)
	batch := intakeBatch(t, svc, 20)
	_, err := svc.RejectWholeBatch(context.Background(), batch.ID, "ines")
	require.NoError(t, err)

	// 12 + 8 covers the 20 kg rejected mass.
	disposed, err := svc.SubmitDisposal(context.Background(), batchdomain.DisposalRequest{
		BatchID: batch.ID,
		Entries: []batchdomain.DisposalEntryInput{
			{Method: batchdomain.DisposalComposting, MassKg: 12},
			{Method: batchdomain.DisposalIncineration, MassKg: 8},
		},
		RecordedBy: "dai",
	})
	require.NoError(t, err)
	assert.Equal(t, batchdomain.StateClosed, disposed.LifecycleState)
	assert.Equal(t, batchdomain.OutcomeDisposed, disposed.Outcome)
	assert.True(t, disposed.ClosedAt.Valid)

	entries, err := svc.ListDisposalEntries(context.Background(), batch.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestDisposalMismatchRejected(t *testing.T) {
	svc, _, _ := newTestService(t)
	batch := intakeBatch(t, svc, 19)
	_, err := svc.RejectWholeBatch(context.Background(), batch.ID, "ines")
	require.NoError(t, err)

	_, err = svc.SubmitDisposal(context.Background(), batchdomain.DisposalRequest{
		BatchID: batch.ID,
		Entries: []batchdomain.DisposalEntryInput{
			{Method: batchdomain.DisposalComposting, MassKg: 12},
			{Method: batchdomain.DisposalIncineration, MassKg: 8},
		},
	})
	var mismatch *weight.MismatchError
	require.ErrorAs(t, err, &mismatch)

	unchanged, err := svc.GetBatch(context.Background(), batch.ID)
	require.NoError(t, err)
	assert.Equal(t, batchdomain.StateDisposal, unchanged.LifecycleState)
}

func TestCleaningExtendsDeadlineFromPrevious(t *testing.T) {
	svc, clk, _ := newTestService(t)
	batch := intakeBatch(t, svc, 60)
	intakeDue := batch.DueAt

	_, err := svc.SubmitInspection(context.Background(), batchdomain.InspectionRequest{BatchID: batch.ID})
	require.NoError(t, err)
	_, err = svc.SubmitGrading(context.Background(), batchdomain.GradingRequest{
		BatchID: batch.ID,
		Grades: []batchdomain.GradeMass{
			{Grade: batchdomain.GradeA, MassKg: 60},
		},
	})
	require.NoError(t, err)

	_, err = svc.SubmitCleaning(context.Background(), batchdomain.CleaningRequest{
		BatchID:   batch.ID,
		Confirmed: false,
	})
	assert.ErrorIs(t, err, batchdomain.ErrConfirmationRequired)

	// Hours pass before the confirmation; the deadline must extend the
	// prior one, not restart from now.
	clk.Advance(10 * time.Hour)

	cleaned, err := svc.SubmitCleaning(context.Background(), batchdomain.CleaningRequest{
		BatchID:   batch.ID,
		Confirmed: true,
		CleanedBy: "carol",
	})
	require.NoError(t, err)
	assert.Equal(t, batchdomain.StateReadyForPackaging, cleaned.LifecycleState)
	assert.Equal(t, batchdomain.OutcomeReadyForPackaging, cleaned.Outcome)
	assert.Equal(t, intakeDue.Add(24*time.Hour), cleaned.DueAt)

	assert.Equal(t, batchdomain.PackagingPending, cleaned.AllocationFor(batchdomain.GradeA).PackagingStatus)
	assert.Equal(t, batchdomain.PackagingSkipped, cleaned.AllocationFor(batchdomain.GradeB).PackagingStatus)
	assert.Equal(t, batchdomain.PackagingSkipped, cleaned.AllocationFor(batchdomain.GradeC).PackagingStatus)
}

func TestMassConservationAcrossLifecycle(t *testing.T) {
	svc, _, db := newTestService(t)
	batch := intakeBatch(t, svc, 100)

	_, err := svc.SubmitInspection(context.Background(), batchdomain.InspectionRequest{
		BatchID:        batch.ID,
		RejectedMassKg: 20,
	})
	require.NoError(t, err)

	var total float64
	require.NoError(t, db.Raw(`SELECT SUM(actual_mass_kg) FROM batches`).Scan(&total).Error)
	assert.Equal(t, 100.0, total)
}
