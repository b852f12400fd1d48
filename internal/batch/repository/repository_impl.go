package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	batchdomain "github.com/greenyard/packhouse/internal/batch/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() batchdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, batch *batchdomain.Batch) error {
	return db.WithContext(ctx).Create(batch).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*batchdomain.Batch, error) {
	var batch batchdomain.Batch
	err := db.WithContext(ctx).
		Preload("Allocations").
		Where("id = ?", id).
		First(&batch).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, batchdomain.ErrNotFound
		}
		return nil, err
	}
	return &batch, nil
}

func (r *repo) FindByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) ([]batchdomain.Batch, error) {
	var batches []batchdomain.Batch
	err := db.WithContext(ctx).
		Preload("Allocations").
		Where("id IN ?", ids).
		Find(&batches).Error
	return batches, err
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter batchdomain.ListFilter) ([]batchdomain.Batch, error) {
	stmt := db.WithContext(ctx).Preload("Allocations")
	if filter.Variety != "" {
		stmt = stmt.Where("variety = ?", filter.Variety)
	}
	if filter.State != "" {
		stmt = stmt.Where("lifecycle_state = ?", filter.State)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	var batches []batchdomain.Batch
	err := stmt.Order("created_at ASC, id ASC").Limit(limit).Find(&batches).Error
	return batches, err
}

func (r *repo) UpdateGuarded(ctx context.Context, db *gorm.DB, batch *batchdomain.Batch, expectedVersion int64) error {
	batch.Version = expectedVersion + 1
	result := db.WithContext(ctx).
		Model(&batchdomain.Batch{}).
		Where("id = ? AND version = ?", batch.ID, expectedVersion).
		Select("*").
		Omit("id", "created_at", "Allocations").
		Updates(batch)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return batchdomain.ErrStateConflict
	}
	return nil
}

func (r *repo) InsertAllocations(ctx context.Context, db *gorm.DB, allocations []batchdomain.GradeAllocation) error {
	if len(allocations) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&allocations).Error
}

func (r *repo) UpdateAllocationGuarded(ctx context.Context, db *gorm.DB, allocation *batchdomain.GradeAllocation, expectedVersion int64) error {
	allocation.Version = expectedVersion + 1
	result := db.WithContext(ctx).
		Model(&batchdomain.GradeAllocation{}).
		Where("id = ? AND version = ?", allocation.ID, expectedVersion).
		Select("mass_kg", "packaging_status", "version", "updated_at").
		Updates(allocation)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return batchdomain.ErrStateConflict
	}
	return nil
}

func (r *repo) InsertDisposalEntries(ctx context.Context, db *gorm.DB, entries []batchdomain.DisposalEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&entries).Error
}

func (r *repo) ListDisposalEntries(ctx context.Context, db *gorm.DB, batchID snowflake.ID) ([]batchdomain.DisposalEntry, error) {
	var entries []batchdomain.DisposalEntry
	err := db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("created_at ASC, id ASC").
		Find(&entries).Error
	return entries, err
}

func (r *repo) ListEligible(ctx context.Context, db *gorm.DB, variety string, grade batchdomain.Grade) ([]batchdomain.Batch, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT b.id
		 FROM batches b
		 JOIN batch_grade_allocations a ON a.batch_id = b.id
		 WHERE b.variety = ?
		   AND b.lifecycle_state = ?
		   AND a.grade = ?
		   AND a.packaging_status = ?
		   AND a.mass_kg > 0
		 ORDER BY b.created_at ASC, b.id ASC`,
		variety,
		batchdomain.StateReadyForPackaging,
		grade,
		batchdomain.PackagingPending,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	batches, err := r.FindByIDs(ctx, db, ids)
	if err != nil {
		return nil, err
	}

	// FindByIDs does not preserve the FIFO ordering.
	byID := make(map[snowflake.ID]batchdomain.Batch, len(batches))
	for _, b := range batches {
		byID[b.ID] = b
	}
	ordered := make([]batchdomain.Batch, 0, len(ids))
	for _, id := range ids {
		if b, ok := byID[id]; ok {
			ordered = append(ordered, b)
		}
	}
	return ordered, nil
}
