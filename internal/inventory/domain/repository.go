package domain

import (
	"context"

	batchdomain "github.com/greenyard/packhouse/internal/batch/domain"
	"gorm.io/gorm"
)

// StockSink receives aggregate stock increments. The db handle is
// passed per call so a packaging run can commit the increment in the
// same transaction as the batch updates.
type StockSink interface {
	Increment(ctx context.Context, db *gorm.DB, variety string, grade batchdomain.Grade, massKg float64) error
	Levels(ctx context.Context, db *gorm.DB, variety string) ([]StockLevel, error)
}

// MovementLedger is the append-only stock-movement audit log.
type MovementLedger interface {
	Append(ctx context.Context, db *gorm.DB, movement *StockMovement) error
	List(ctx context.Context, db *gorm.DB, variety string, limit int) ([]StockMovement, error)
}

// UnitCounter increments the downstream sellable-unit counter. Callers
// treat failures as non-fatal.
type UnitCounter interface {
	IncrementBy(ctx context.Context, db *gorm.DB, productKey string, units int64) error
}
