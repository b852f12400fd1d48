package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	batchdomain "github.com/greenyard/packhouse/internal/batch/domain"
)

// MovementType labels a stock-movement ledger entry.
type MovementType string

const (
	MovementIn  MovementType = "in"
	MovementOut MovementType = "out"
)

// StockLevel is the aggregate on-hand mass per variety and grade.
type StockLevel struct {
	ID        snowflake.ID      `json:"id" gorm:"primaryKey"`
	Variety   string            `json:"variety" gorm:"type:text;not null;uniqueIndex:ux_stock_levels_variety_grade,priority:1"`
	Grade     batchdomain.Grade `json:"grade" gorm:"type:text;not null;uniqueIndex:ux_stock_levels_variety_grade,priority:2"`
	MassKg    float64           `json:"mass_kg" gorm:"not null"`
	UpdatedAt time.Time         `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (StockLevel) TableName() string { return "stock_levels" }

// StockMovement is one append-only entry in the movement ledger.
type StockMovement struct {
	ID          snowflake.ID      `json:"id" gorm:"primaryKey"`
	Type        MovementType      `json:"type" gorm:"type:text;not null"`
	Variety     string            `json:"variety" gorm:"type:text;not null;index"`
	Grade       batchdomain.Grade `json:"grade" gorm:"type:text;not null"`
	MassKg      float64           `json:"mass_kg" gorm:"not null"`
	ReferenceID snowflake.ID      `json:"reference_id" gorm:"not null;index"`
	Actor       string            `json:"actor" gorm:"type:text"`
	OccurredAt  time.Time         `json:"occurred_at" gorm:"not null"`
	CreatedAt   time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (StockMovement) TableName() string { return "stock_movements" }

// ProductCounter tracks sellable units per product key for downstream
// consumers. It is maintained best-effort.
type ProductCounter struct {
	ID         snowflake.ID `json:"id" gorm:"primaryKey"`
	ProductKey string       `json:"product_key" gorm:"type:text;not null;uniqueIndex"`
	Units      int64        `json:"units" gorm:"not null"`
	UpdatedAt  time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (ProductCounter) TableName() string { return "product_counters" }
