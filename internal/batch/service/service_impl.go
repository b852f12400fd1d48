package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/bwmarrin/snowflake"
	batchdomain "github.com/greenyard/packhouse/internal/batch/domain"
	"github.com/greenyard/packhouse/internal/clock"
	"github.com/greenyard/packhouse/internal/config"
	"github.com/greenyard/packhouse/internal/weight"
	"github.com/greenyard/packhouse/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	GenID *snowflake.Node
	Cfg   config.Config
	Repo  batchdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	genID *snowflake.Node
	cfg   config.PipelineConfig
	repo  batchdomain.Repository
}

func New(p Params) batchdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("batch.service"),
		clock: p.Clock,
		genID: p.GenID,
		cfg:   p.Cfg.Pipeline,
		repo:  p.Repo,
	}
}

func (s *Service) SubmitIntake(ctx context.Context, req batchdomain.IntakeRequest) (*batchdomain.Batch, error) {
	if req.ActualMassKg <= 0 || req.StatedMassKg <= 0 {
		return nil, batchdomain.ErrInvalidMass
	}

	now := s.clock.Now()
	id := s.genID.Generate()
	batch := &batchdomain.Batch{
		ID:             id,
		Code:           batchCode(id),
		Variety:        req.Variety,
		SourceOrigin:   req.SourceOrigin,
		StatedMassKg:   req.StatedMassKg,
		ActualMassKg:   req.ActualMassKg,
		LifecycleState: batchdomain.StateInspection,
		Outcome:        batchdomain.OutcomeInProgress,
		DueAt:          now.Add(s.cfg.InspectionWindow),
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.repo.Insert(ctx, s.db, batch); err != nil {
		return nil, err
	}

	s.log.Info("batch intake",
		zap.String("batch_code", batch.Code),
		zap.String("variety", batch.Variety),
		zap.Float64("actual_mass_kg", batch.ActualMassKg),
	)
	return batch, nil
}

func (s *Service) SubmitInspection(ctx context.Context, req batchdomain.InspectionRequest) (*batchdomain.InspectionResult, error) {
	if req.RejectedMassKg < 0 {
		return nil, batchdomain.ErrInvalidMass
	}

	var result batchdomain.InspectionResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		batch, err := s.repo.FindByID(ctx, tx, req.BatchID)
		if err != nil {
			return err
		}
		if batch.LifecycleState != batchdomain.StateInspection {
			return &batchdomain.TransitionError{BatchCode: batch.Code, From: batch.LifecycleState, Operation: "inspect"}
		}
		if req.RejectedMassKg > batch.ActualMassKg {
			return batchdomain.ErrRejectedExceedsTotal
		}

		now := s.clock.Now()
		prior := batch.Version
		accepted := batch.ActualMassKg - req.RejectedMassKg

		batch.Inspector = req.Inspector
		batch.InspectedAt = sql.NullTime{Time: now, Valid: true}
		batch.Checklist = datatypes.JSONMap(req.Checklist)
		batch.UpdatedAt = now

		switch {
		case weight.Exhausted(accepted):
			// Nothing survived the check: the whole batch goes to
			// disposal carrying its full mass.
			batch.AcceptedMassKg = 0
			batch.RejectedMassKg = batch.ActualMassKg
			batch.LifecycleState = batchdomain.StateDisposal

		case req.RejectedMassKg > 0:
			// Fork: the rejected mass continues as a sibling batch in
			// disposal, the original carries only the accepted mass.
			// Conservation: sibling.actual + batch.actual == intake mass.
			sibling := s.forkSibling(batch, "-REJ", req.RejectedMassKg, now)
			sibling.LifecycleState = batchdomain.StateDisposal
			sibling.RejectedMassKg = req.RejectedMassKg
			sibling.Inspector = req.Inspector
			sibling.InspectedAt = sql.NullTime{Time: now, Valid: true}
			sibling.Checklist = datatypes.JSONMap(req.Checklist)

			if err := s.repo.Insert(ctx, tx, sibling); err != nil {
				if db.IsDuplicateKeyErr(err) {
					// A concurrent inspection already forked this
					// sibling; re-fetching shows the settled state.
					return batchdomain.ErrStateConflict
				}
				return err
			}

			batch.ActualMassKg = accepted
			batch.AcceptedMassKg = accepted
			batch.RejectedMassKg = req.RejectedMassKg
			batch.LifecycleState = batchdomain.StateGrading
			result.RejectedSibling = sibling

		default:
			batch.AcceptedMassKg = batch.ActualMassKg
			batch.RejectedMassKg = 0
			batch.LifecycleState = batchdomain.StateGrading
		}

		if err := s.repo.UpdateGuarded(ctx, tx, batch, prior); err != nil {
			return err
		}
		result.Batch = batch
		return nil
	})
	if err != nil {
		return nil, err
	}

	fields := []zap.Field{
		zap.String("batch_code", result.Batch.Code),
		zap.String("state", string(result.Batch.LifecycleState)),
		zap.Float64("rejected_mass_kg", req.RejectedMassKg),
	}
	if result.RejectedSibling != nil {
		fields = append(fields, zap.String("sibling_code", result.RejectedSibling.Code))
	}
	s.log.Info("batch inspected", fields...)
	return &result, nil
}

func (s *Service) RejectWholeBatch(ctx context.Context, batchID snowflake.ID, inspector string) (*batchdomain.InspectionResult, error) {
	batch, err := s.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	return s.SubmitInspection(ctx, batchdomain.InspectionRequest{
		BatchID:        batchID,
		RejectedMassKg: batch.ActualMassKg,
		Inspector:      inspector,
	})
}

func (s *Service) ReopenInspection(ctx context.Context, batchID snowflake.ID) (*batchdomain.Batch, error) {
	var reopened *batchdomain.Batch
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		batch, err := s.repo.FindByID(ctx, tx, batchID)
		if err != nil {
			return err
		}
		if batch.LifecycleState != batchdomain.StateDisposal {
			return &batchdomain.TransitionError{BatchCode: batch.Code, From: batch.LifecycleState, Operation: "reopen inspection"}
		}

		prior := batch.Version
		batch.LifecycleState = batchdomain.StateInspection
		batch.AcceptedMassKg = 0
		batch.RejectedMassKg = 0
		batch.Checklist = nil
		batch.Inspector = ""
		batch.InspectedAt = sql.NullTime{}
		batch.UpdatedAt = s.clock.Now()

		if err := s.repo.UpdateGuarded(ctx, tx, batch, prior); err != nil {
			return err
		}
		reopened = batch
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("batch returned to inspection", zap.String("batch_code", reopened.Code))
	return reopened, nil
}

func (s *Service) SubmitGrading(ctx context.Context, req batchdomain.GradingRequest) (*batchdomain.Batch, error) {
	masses := make(map[batchdomain.Grade]float64, len(req.Grades))
	total := 0.0
	for _, gm := range req.Grades {
		if !gm.Grade.Valid() {
			return nil, batchdomain.ErrInvalidGrade
		}
		if gm.MassKg < 0 {
			return nil, batchdomain.ErrInvalidMass
		}
		masses[gm.Grade] += gm.MassKg
		total += gm.MassKg
	}

	var graded *batchdomain.Batch
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		batch, err := s.repo.FindByID(ctx, tx, req.BatchID)
		if err != nil {
			return err
		}
		if batch.LifecycleState != batchdomain.StateGrading {
			return &batchdomain.TransitionError{BatchCode: batch.Code, From: batch.LifecycleState, Operation: "grade"}
		}
		if err := weight.CheckReconciled("grading", batch.AcceptedMassKg, total); err != nil {
			return err
		}

		now := s.clock.Now()
		prior := batch.Version

		allocations := make([]batchdomain.GradeAllocation, 0, len(batchdomain.Grades()))
		for _, grade := range batchdomain.Grades() {
			allocations = append(allocations, batchdomain.GradeAllocation{
				ID:              s.genID.Generate(),
				BatchID:         batch.ID,
				Grade:           grade,
				MassKg:          masses[grade],
				PackagingStatus: batchdomain.PackagingPending,
				Version:         1,
				CreatedAt:       now,
				UpdatedAt:       now,
			})
		}
		if err := s.repo.InsertAllocations(ctx, tx, allocations); err != nil {
			return err
		}

		batch.GradedBy = req.GradedBy
		batch.GradedAt = sql.NullTime{Time: now, Valid: true}
		batch.LifecycleState = batchdomain.StateCleaning
		batch.UpdatedAt = now
		if err := s.repo.UpdateGuarded(ctx, tx, batch, prior); err != nil {
			return err
		}

		batch.Allocations = allocations
		graded = batch
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("batch graded",
		zap.String("batch_code", graded.Code),
		zap.Float64("accepted_mass_kg", graded.AcceptedMassKg),
	)
	return graded, nil
}

func (s *Service) SubmitDisposal(ctx context.Context, req batchdomain.DisposalRequest) (*batchdomain.Batch, error) {
	total := 0.0
	for _, entry := range req.Entries {
		if !entry.Method.Valid() {
			return nil, batchdomain.ErrInvalidMethod
		}
		if entry.MassKg <= 0 {
			return nil, batchdomain.ErrInvalidMass
		}
		total += entry.MassKg
	}

	var disposed *batchdomain.Batch
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		batch, err := s.repo.FindByID(ctx, tx, req.BatchID)
		if err != nil {
			return err
		}
		if batch.LifecycleState != batchdomain.StateDisposal {
			return &batchdomain.TransitionError{BatchCode: batch.Code, From: batch.LifecycleState, Operation: "dispose"}
		}
		if err := weight.CheckReconciled("disposal", batch.RejectedMassKg, total); err != nil {
			return err
		}

		now := s.clock.Now()
		prior := batch.Version

		entries := make([]batchdomain.DisposalEntry, 0, len(req.Entries))
		for _, entry := range req.Entries {
			entries = append(entries, batchdomain.DisposalEntry{
				ID:         s.genID.Generate(),
				BatchID:    batch.ID,
				Method:     entry.Method,
				MassKg:     entry.MassKg,
				RecordedBy: req.RecordedBy,
				CreatedAt:  now,
			})
		}
		if err := s.repo.InsertDisposalEntries(ctx, tx, entries); err != nil {
			return err
		}

		batch.LifecycleState = batchdomain.StateClosed
		batch.Outcome = batchdomain.OutcomeDisposed
		batch.ClosedAt = sql.NullTime{Time: now, Valid: true}
		batch.UpdatedAt = now
		if err := s.repo.UpdateGuarded(ctx, tx, batch, prior); err != nil {
			return err
		}
		disposed = batch
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("batch disposed",
		zap.String("batch_code", disposed.Code),
		zap.Float64("rejected_mass_kg", disposed.RejectedMassKg),
	)
	return disposed, nil
}

func (s *Service) SubmitCleaning(ctx context.Context, req batchdomain.CleaningRequest) (*batchdomain.Batch, error) {
	if !req.Confirmed {
		return nil, batchdomain.ErrConfirmationRequired
	}

	var cleaned *batchdomain.Batch
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		batch, err := s.repo.FindByID(ctx, tx, req.BatchID)
		if err != nil {
			return err
		}
		if batch.LifecycleState != batchdomain.StateCleaning {
			return &batchdomain.TransitionError{BatchCode: batch.Code, From: batch.LifecycleState, Operation: "clean"}
		}

		now := s.clock.Now()
		prior := batch.Version

		for i := range batch.Allocations {
			alloc := &batch.Allocations[i]
			status := batchdomain.PackagingSkipped
			if !weight.Exhausted(alloc.MassKg) {
				status = batchdomain.PackagingPending
			}
			if alloc.PackagingStatus == status {
				continue
			}
			allocPrior := alloc.Version
			alloc.PackagingStatus = status
			alloc.UpdatedAt = now
			if err := s.repo.UpdateAllocationGuarded(ctx, tx, alloc, allocPrior); err != nil {
				return err
			}
		}

		batch.CleanedBy = req.CleanedBy
		batch.CleanedAt = sql.NullTime{Time: now, Valid: true}
		batch.LifecycleState = batchdomain.StateReadyForPackaging
		batch.Outcome = batchdomain.OutcomeReadyForPackaging
		// The packaging deadline extends the prior one rather than
		// restarting from now, so the SLA accumulates across stages.
		batch.DueAt = batch.DueAt.Add(s.cfg.PackagingWindow)
		batch.UpdatedAt = now
		if err := s.repo.UpdateGuarded(ctx, tx, batch, prior); err != nil {
			return err
		}
		cleaned = batch
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("batch ready for packaging",
		zap.String("batch_code", cleaned.Code),
		zap.Time("due_at", cleaned.DueAt),
	)
	return cleaned, nil
}

func (s *Service) GetBatch(ctx context.Context, id snowflake.ID) (*batchdomain.Batch, error) {
	return s.repo.FindByID(ctx, s.db, id)
}

func (s *Service) ListBatches(ctx context.Context, filter batchdomain.ListFilter) ([]batchdomain.Batch, error) {
	return s.repo.List(ctx, s.db, filter)
}

func (s *Service) ListDisposalEntries(ctx context.Context, batchID snowflake.ID) ([]batchdomain.DisposalEntry, error) {
	return s.repo.ListDisposalEntries(ctx, s.db, batchID)
}

// forkSibling creates a derived batch carrying massKg of the parent's
// mass. The caller sets the lifecycle fields before inserting.
func (s *Service) forkSibling(parent *batchdomain.Batch, suffix string, massKg float64, now time.Time) *batchdomain.Batch {
	id := s.genID.Generate()
	parentID := parent.ID
	return &batchdomain.Batch{
		ID:             id,
		Code:           parent.Code + suffix,
		ParentBatchID:  &parentID,
		Variety:        parent.Variety,
		SourceOrigin:   parent.SourceOrigin,
		StatedMassKg:   massKg,
		ActualMassKg:   massKg,
		LifecycleState: batchdomain.StateInspection,
		Outcome:        batchdomain.OutcomeInProgress,
		DueAt:          parent.DueAt,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func batchCode(id snowflake.ID) string {
	return "B-" + id.Base36()
}
