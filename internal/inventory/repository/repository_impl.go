package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	batchdomain "github.com/greenyard/packhouse/internal/batch/domain"
	inventorydomain "github.com/greenyard/packhouse/internal/inventory/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct {
	genID *snowflake.Node
}

func Provide(genID *snowflake.Node) (inventorydomain.StockSink, inventorydomain.MovementLedger, inventorydomain.UnitCounter) {
	r := &repo{genID: genID}
	return r, r, r
}

func (r *repo) Increment(ctx context.Context, db *gorm.DB, variety string, grade batchdomain.Grade, massKg float64) error {
	now := time.Now().UTC()
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "variety"}, {Name: "grade"}},
		DoUpdates: clause.Assignments(map[string]any{
			"mass_kg":    gorm.Expr("stock_levels.mass_kg + ?", massKg),
			"updated_at": now,
		}),
	}).Create(&inventorydomain.StockLevel{
		ID:        r.genID.Generate(),
		Variety:   variety,
		Grade:     grade,
		MassKg:    massKg,
		UpdatedAt: now,
	}).Error
}

func (r *repo) Levels(ctx context.Context, db *gorm.DB, variety string) ([]inventorydomain.StockLevel, error) {
	stmt := db.WithContext(ctx)
	if variety != "" {
		stmt = stmt.Where("variety = ?", variety)
	}
	var levels []inventorydomain.StockLevel
	err := stmt.Order("variety ASC, grade ASC").Find(&levels).Error
	return levels, err
}

func (r *repo) Append(ctx context.Context, db *gorm.DB, movement *inventorydomain.StockMovement) error {
	return db.WithContext(ctx).Create(movement).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, variety string, limit int) ([]inventorydomain.StockMovement, error) {
	stmt := db.WithContext(ctx)
	if variety != "" {
		stmt = stmt.Where("variety = ?", variety)
	}
	if limit <= 0 {
		limit = 100
	}
	var movements []inventorydomain.StockMovement
	err := stmt.Order("occurred_at DESC, id DESC").Limit(limit).Find(&movements).Error
	return movements, err
}

func (r *repo) IncrementBy(ctx context.Context, db *gorm.DB, productKey string, units int64) error {
	now := time.Now().UTC()
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "product_key"}},
		DoUpdates: clause.Assignments(map[string]any{
			"units":      gorm.Expr("product_counters.units + ?", units),
			"updated_at": now,
		}),
	}).Create(&inventorydomain.ProductCounter{
		ID:         r.genID.Generate(),
		ProductKey: productKey,
		Units:      units,
		UpdatedAt:  now,
	}).Error
}
