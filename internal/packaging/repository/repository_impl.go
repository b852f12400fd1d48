package repository

import (
	"context"

	packagingdomain "github.com/greenyard/packhouse/internal/packaging/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() packagingdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, records []packagingdomain.PackRecord) error {
	if len(records) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&records).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter packagingdomain.RecordFilter) ([]packagingdomain.PackRecord, error) {
	stmt := db.WithContext(ctx)
	if filter.Variety != "" {
		stmt = stmt.Where("variety = ?", filter.Variety)
	}
	if filter.BatchID != 0 {
		stmt = stmt.Where("batch_id = ?", filter.BatchID)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	var records []packagingdomain.PackRecord
	err := stmt.Order("created_at DESC, id DESC").Limit(limit).Find(&records).Error
	return records, err
}
