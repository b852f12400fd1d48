package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	batchdomain "github.com/greenyard/packhouse/internal/batch/domain"
)

// PackRecord is the durable audit trail of a packaging run: one row
// per contributing batch actually touched.
type PackRecord struct {
	ID              snowflake.ID      `json:"id" gorm:"primaryKey"`
	RunID           snowflake.ID      `json:"run_id" gorm:"not null;index"`
	BatchID         snowflake.ID      `json:"batch_id" gorm:"not null;index"`
	BatchCode       string            `json:"batch_code" gorm:"type:text;not null"`
	Variety         string            `json:"variety" gorm:"type:text;not null;index"`
	Grade           batchdomain.Grade `json:"grade" gorm:"type:text;not null"`
	MassConsumedKg  float64           `json:"mass_consumed_kg" gorm:"not null"`
	UnitsAttributed int               `json:"units_attributed" gorm:"not null"`
	RemainingMassKg float64           `json:"remaining_mass_kg" gorm:"not null"`
	Operator        string            `json:"operator" gorm:"type:text;not null"`
	CreatedAt       time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (PackRecord) TableName() string { return "pack_records" }

// RunRequest describes one packaging run over a caller-selected pool
// of ready batches sharing variety and grade.
type RunRequest struct {
	Variety string            `json:"variety"`
	Grade   batchdomain.Grade `json:"grade"`
	// BatchIDs is the pool to consume from, any subset of the eligible
	// batches.
	BatchIDs []snowflake.ID `json:"batch_ids"`
	// UnitsRequested defaults to the maximum the pooled mass allows
	// when zero. Operators may reduce it, never exceed the maximum.
	UnitsRequested int    `json:"units_requested"`
	Operator       string `json:"operator"`
	// ComplianceChecked asserts the operator verified labels and unit
	// weight. Runs without it are rejected before any mutation.
	ComplianceChecked bool `json:"compliance_checked"`
}

// RunResult summarizes a committed packaging run.
type RunResult struct {
	RunID          snowflake.ID       `json:"run_id"`
	Variety        string             `json:"variety"`
	Grade          batchdomain.Grade  `json:"grade"`
	UnitsProduced  int                `json:"units_produced"`
	MassConsumedKg float64            `json:"mass_consumed_kg"`
	Records        []PackRecord       `json:"records"`
	RemainderBatch *batchdomain.Batch `json:"remainder_batch,omitempty"`
	ClosedBatchIDs []snowflake.ID     `json:"closed_batch_ids"`
}

// RunPreview reports what a pool of batches could produce.
type RunPreview struct {
	Variety       string              `json:"variety"`
	Grade         batchdomain.Grade   `json:"grade"`
	TotalPooledKg float64             `json:"total_pooled_kg"`
	UnitMassKg    float64             `json:"unit_mass_kg"`
	MaxUnits      int                 `json:"max_units"`
	Batches       []batchdomain.Batch `json:"batches"`
}

// RecordFilter narrows pack-record listings.
type RecordFilter struct {
	Variety string
	BatchID snowflake.ID
	Limit   int
}
