package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	batchdomain "github.com/greenyard/packhouse/internal/batch/domain"
	"gorm.io/gorm"
)

// Repository persists and queries pack records. The db handle is
// passed per call so records commit inside the run's transaction.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, records []PackRecord) error
	List(ctx context.Context, db *gorm.DB, filter RecordFilter) ([]PackRecord, error)
}

// Service consolidates pooled ready batches into fixed-size packs.
// A committed run deducts mass oldest-batch-first, closes exhausted
// batches, spins off a remainder batch for uncommitted leftover mass,
// and emits the inventory side effects in the same transaction.
type Service interface {
	ListEligible(ctx context.Context, variety string, grade batchdomain.Grade) ([]batchdomain.Batch, error)
	Preview(ctx context.Context, variety string, grade batchdomain.Grade, batchIDs []snowflake.ID) (*RunPreview, error)
	Commit(ctx context.Context, req RunRequest) (*RunResult, error)
	ListRecords(ctx context.Context, filter RecordFilter) ([]PackRecord, error)
}
