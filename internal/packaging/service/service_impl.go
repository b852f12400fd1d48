package service

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	batchdomain "github.com/greenyard/packhouse/internal/batch/domain"
	"github.com/greenyard/packhouse/internal/clock"
	"github.com/greenyard/packhouse/internal/config"
	inventorydomain "github.com/greenyard/packhouse/internal/inventory/domain"
	packagingdomain "github.com/greenyard/packhouse/internal/packaging/domain"
	"github.com/greenyard/packhouse/internal/weight"
	"github.com/greenyard/packhouse/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	GenID     *snowflake.Node
	Cfg       config.Config
	Repo      packagingdomain.Repository
	BatchRepo batchdomain.Repository
	Stock     inventorydomain.StockSink
	Movements inventorydomain.MovementLedger
	Counter   inventorydomain.UnitCounter
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	clock     clock.Clock
	genID     *snowflake.Node
	cfg       config.PipelineConfig
	repo      packagingdomain.Repository
	batchRepo batchdomain.Repository
	stock     inventorydomain.StockSink
	movements inventorydomain.MovementLedger
	counter   inventorydomain.UnitCounter
}

func New(p Params) packagingdomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("packaging.service"),
		clock:     p.Clock,
		genID:     p.GenID,
		cfg:       p.Cfg.Pipeline,
		repo:      p.Repo,
		batchRepo: p.BatchRepo,
		stock:     p.Stock,
		movements: p.Movements,
		counter:   p.Counter,
	}
}

func (s *Service) ListEligible(ctx context.Context, variety string, grade batchdomain.Grade) ([]batchdomain.Batch, error) {
	if !grade.Valid() {
		return nil, batchdomain.ErrInvalidGrade
	}
	return s.batchRepo.ListEligible(ctx, s.db, variety, grade)
}

func (s *Service) Preview(ctx context.Context, variety string, grade batchdomain.Grade, batchIDs []snowflake.ID) (*packagingdomain.RunPreview, error) {
	if !grade.Valid() {
		return nil, batchdomain.ErrInvalidGrade
	}

	batches, err := s.loadPool(ctx, s.db, variety, grade, batchIDs)
	if err != nil {
		return nil, err
	}

	total := pooledMass(batches, grade)
	return &packagingdomain.RunPreview{
		Variety:       variety,
		Grade:         grade,
		TotalPooledKg: total,
		UnitMassKg:    s.cfg.UnitMassKg,
		MaxUnits:      maxUnits(total, s.cfg.UnitMassKg),
		Batches:       batches,
	}, nil
}

func (s *Service) Commit(ctx context.Context, req packagingdomain.RunRequest) (*packagingdomain.RunResult, error) {
	if !req.ComplianceChecked {
		return nil, packagingdomain.ErrComplianceRequired
	}
	if !req.Grade.Valid() {
		return nil, batchdomain.ErrInvalidGrade
	}
	if len(req.BatchIDs) == 0 {
		return nil, packagingdomain.ErrNoBatchesSelected
	}
	if req.UnitsRequested < 0 {
		return nil, packagingdomain.ErrInvalidUnits
	}

	now := s.clock.Now()
	runID := s.genID.Generate()
	result := &packagingdomain.RunResult{
		RunID:   runID,
		Variety: req.Variety,
		Grade:   req.Grade,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		batches, err := s.loadPool(ctx, tx, req.Variety, req.Grade, req.BatchIDs)
		if err != nil {
			return err
		}

		total := pooledMass(batches, req.Grade)
		units := req.UnitsRequested
		if units == 0 {
			units = maxUnits(total, s.cfg.UnitMassKg)
		}
		if units <= 0 {
			return packagingdomain.ErrInvalidUnits
		}

		// Mass accounting is exact: every committed run consumes
		// precisely units * unit mass. Only the per-batch attributed
		// unit counts round.
		massNeeded := float64(units) * s.cfg.UnitMassKg
		if massNeeded > total+weight.MassEpsilonKg {
			return &packagingdomain.InsufficientMassError{RequestedKg: massNeeded, PooledKg: total}
		}

		// Oldest material is packaged first.
		sort.Slice(batches, func(i, j int) bool {
			if batches[i].CreatedAt.Equal(batches[j].CreatedAt) {
				return batches[i].ID < batches[j].ID
			}
			return batches[i].CreatedAt.Before(batches[j].CreatedAt)
		})

		records := make([]packagingdomain.PackRecord, 0, len(batches))
		remaining := massNeeded
		for i := range batches {
			if remaining <= weight.MassEpsilonKg {
				break
			}
			batch := &batches[i]
			alloc := batch.AllocationFor(req.Grade)
			available := alloc.MassKg

			deduct := math.Min(available, remaining)
			leftInBatch := available - deduct
			remaining -= deduct

			attributed := int(math.Round(deduct / massNeeded * float64(units)))
			records = append(records, packagingdomain.PackRecord{
				ID:              s.genID.Generate(),
				RunID:           runID,
				BatchID:         batch.ID,
				BatchCode:       batch.Code,
				Variety:         batch.Variety,
				Grade:           req.Grade,
				MassConsumedKg:  deduct,
				UnitsAttributed: attributed,
				RemainingMassKg: leftInBatch,
				Operator:        req.Operator,
				CreatedAt:       now,
			})

			// The allocation always closes out for this batch id;
			// leftover mass continues as a remainder sibling so the
			// audit trail per batch stays clean.
			allocPrior := alloc.Version
			alloc.MassKg = 0
			alloc.PackagingStatus = batchdomain.PackagingCompleted
			alloc.UpdatedAt = now
			if err := s.batchRepo.UpdateAllocationGuarded(ctx, tx, alloc, allocPrior); err != nil {
				return err
			}

			if !weight.Exhausted(leftInBatch) {
				remainder, err := s.spinOffRemainder(ctx, tx, batch, req.Grade, leftInBatch, now)
				if err != nil {
					return err
				}
				result.RemainderBatch = remainder
			}

			if batch.AllocationsSettled() {
				prior := batch.Version
				batch.LifecycleState = batchdomain.StateClosed
				batch.Outcome = batchdomain.OutcomeCompleted
				batch.ClosedAt = sql.NullTime{Time: now, Valid: true}
				batch.UpdatedAt = now
				if err := s.batchRepo.UpdateGuarded(ctx, tx, batch, prior); err != nil {
					return err
				}
				result.ClosedBatchIDs = append(result.ClosedBatchIDs, batch.ID)
			}
		}

		if remaining > weight.MassEpsilonKg {
			// The pool was validated to cover the request; reaching
			// here means mass went missing mid-walk.
			s.log.Error("packaging run under-consumed validated pool",
				zap.String("run_id", runID.String()),
				zap.Float64("remaining_kg", remaining),
			)
			return fmt.Errorf("packaging run %s: %.3f kg unaccounted after walking pool", runID, remaining)
		}

		if err := s.repo.Insert(ctx, tx, records); err != nil {
			return err
		}

		if err := s.stock.Increment(ctx, tx, req.Variety, req.Grade, massNeeded); err != nil {
			return fmt.Errorf("inventory increment: %w", err)
		}
		if err := s.movements.Append(ctx, tx, &inventorydomain.StockMovement{
			ID:          s.genID.Generate(),
			Type:        inventorydomain.MovementIn,
			Variety:     req.Variety,
			Grade:       req.Grade,
			MassKg:      massNeeded,
			ReferenceID: runID,
			Actor:       req.Operator,
			OccurredAt:  now,
			CreatedAt:   now,
		}); err != nil {
			return fmt.Errorf("movement append: %w", err)
		}

		result.UnitsProduced = units
		result.MassConsumedKg = massNeeded
		result.Records = records
		return nil
	})
	if err != nil {
		return nil, err
	}

	// The sellable-unit counter is best-effort: a failure is logged
	// for reconciliation, never surfaced to the operator.
	if err := s.counter.IncrementBy(ctx, s.db, productKey(req.Variety, req.Grade), int64(result.UnitsProduced)); err != nil {
		s.log.Warn("sellable-unit counter increment failed",
			zap.String("run_id", runID.String()),
			zap.String("product_key", productKey(req.Variety, req.Grade)),
			zap.Int("units", result.UnitsProduced),
			zap.Error(err),
		)
	}

	s.log.Info("packaging run committed",
		zap.String("run_id", runID.String()),
		zap.String("variety", req.Variety),
		zap.String("grade", string(req.Grade)),
		zap.Int("units", result.UnitsProduced),
		zap.Float64("mass_consumed_kg", result.MassConsumedKg),
		zap.Int("batches_touched", len(result.Records)),
	)
	return result, nil
}

func (s *Service) ListRecords(ctx context.Context, filter packagingdomain.RecordFilter) ([]packagingdomain.PackRecord, error) {
	return s.repo.List(ctx, s.db, filter)
}

// loadPool fetches the requested batches and verifies each one is
// ready for the variety and grade.
func (s *Service) loadPool(ctx context.Context, db *gorm.DB, variety string, grade batchdomain.Grade, batchIDs []snowflake.ID) ([]batchdomain.Batch, error) {
	if len(batchIDs) == 0 {
		return nil, packagingdomain.ErrNoBatchesSelected
	}

	batches, err := s.batchRepo.FindByIDs(ctx, db, batchIDs)
	if err != nil {
		return nil, err
	}
	if len(batches) != len(batchIDs) {
		return nil, batchdomain.ErrNotFound
	}

	for i := range batches {
		batch := &batches[i]
		if batch.Variety != variety {
			return nil, &packagingdomain.IneligibleBatchError{BatchCode: batch.Code, Reason: "different variety"}
		}
		if batch.LifecycleState != batchdomain.StateReadyForPackaging {
			return nil, &packagingdomain.IneligibleBatchError{BatchCode: batch.Code, Reason: "not ready for packaging"}
		}
		alloc := batch.AllocationFor(grade)
		if alloc == nil || alloc.PackagingStatus != batchdomain.PackagingPending {
			return nil, &packagingdomain.IneligibleBatchError{BatchCode: batch.Code, Reason: fmt.Sprintf("grade %s not pending", grade)}
		}
		if weight.Exhausted(alloc.MassKg) {
			return nil, &packagingdomain.IneligibleBatchError{BatchCode: batch.Code, Reason: fmt.Sprintf("no mass allocated to grade %s", grade)}
		}
	}
	return batches, nil
}

// spinOffRemainder creates a new ready batch carrying the leftover
// mass of a partially consumed allocation. Other grades stay with the
// original batch. The code carries the grade so a parent packaged
// grade by grade yields distinct remainder codes.
func (s *Service) spinOffRemainder(ctx context.Context, tx *gorm.DB, parent *batchdomain.Batch, grade batchdomain.Grade, leftKg float64, now time.Time) (*batchdomain.Batch, error) {
	id := s.genID.Generate()
	parentID := parent.ID
	remainder := &batchdomain.Batch{
		ID:             id,
		Code:           parent.Code + "-REM-" + string(grade),
		ParentBatchID:  &parentID,
		Variety:        parent.Variety,
		SourceOrigin:   parent.SourceOrigin,
		StatedMassKg:   leftKg,
		ActualMassKg:   leftKg,
		AcceptedMassKg: leftKg,
		LifecycleState: batchdomain.StateReadyForPackaging,
		Outcome:        batchdomain.OutcomeReadyForPackaging,
		DueAt:          parent.DueAt,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.batchRepo.Insert(ctx, tx, remainder); err != nil {
		if db.IsDuplicateKeyErr(err) {
			// A concurrent run already spun off this remainder.
			return nil, batchdomain.ErrStateConflict
		}
		return nil, err
	}

	allocations := make([]batchdomain.GradeAllocation, 0, len(batchdomain.Grades()))
	for _, g := range batchdomain.Grades() {
		massKg := 0.0
		status := batchdomain.PackagingSkipped
		if g == grade {
			massKg = leftKg
			status = batchdomain.PackagingPending
		}
		allocations = append(allocations, batchdomain.GradeAllocation{
			ID:              s.genID.Generate(),
			BatchID:         id,
			Grade:           g,
			MassKg:          massKg,
			PackagingStatus: status,
			Version:         1,
			CreatedAt:       now,
			UpdatedAt:       now,
		})
	}
	if err := s.batchRepo.InsertAllocations(ctx, tx, allocations); err != nil {
		return nil, err
	}

	remainder.Allocations = allocations
	return remainder, nil
}

func pooledMass(batches []batchdomain.Batch, grade batchdomain.Grade) float64 {
	total := 0.0
	for i := range batches {
		if alloc := batches[i].AllocationFor(grade); alloc != nil {
			total += alloc.MassKg
		}
	}
	return total
}

func maxUnits(totalKg, unitMassKg float64) int {
	if unitMassKg <= 0 {
		return 0
	}
	return int(math.Floor(totalKg/unitMassKg + 1e-9))
}

func productKey(variety string, grade batchdomain.Grade) string {
	return fmt.Sprintf("pack:%s:%s", variety, grade)
}
