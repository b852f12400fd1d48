package domain

import (
	"database/sql"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// LifecycleState identifies where a batch sits in the processing
// pipeline. Transitions are owned by the batch service; nothing else
// writes this column.
type LifecycleState string

const (
	StateInspection        LifecycleState = "inspection"
	StateGrading           LifecycleState = "grading"
	StateDisposal          LifecycleState = "disposal"
	StateCleaning          LifecycleState = "cleaning"
	StateReadyForPackaging LifecycleState = "ready_for_packaging"
	StateClosed            LifecycleState = "closed"
)

// Outcome is the coarse status surfaced to operators and reporting.
type Outcome string

const (
	OutcomeInProgress        Outcome = "in_progress"
	OutcomeReadyForPackaging Outcome = "ready_for_packaging"
	OutcomeCompleted         Outcome = "completed"
	OutcomeDisposed          Outcome = "disposed"
)

// Grade is the closed set of quality tiers assigned at grading.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
)

// Grades lists every grade in allocation order.
func Grades() []Grade {
	return []Grade{GradeA, GradeB, GradeC}
}

func (g Grade) Valid() bool {
	switch g {
	case GradeA, GradeB, GradeC:
		return true
	default:
		return false
	}
}

// PackagingStatus tracks a single grade allocation through packaging.
type PackagingStatus string

const (
	PackagingPending   PackagingStatus = "pending"
	PackagingCompleted PackagingStatus = "completed"
	PackagingSkipped   PackagingStatus = "skipped"
)

// DisposalMethod is the closed set of waste-disposal routes.
type DisposalMethod string

const (
	DisposalComposting   DisposalMethod = "composting"
	DisposalIncineration DisposalMethod = "incineration"
	DisposalLandfill     DisposalMethod = "landfill"
	DisposalAnimalFeed   DisposalMethod = "animal_feed"
)

func (m DisposalMethod) Valid() bool {
	switch m {
	case DisposalComposting, DisposalIncineration, DisposalLandfill, DisposalAnimalFeed:
		return true
	default:
		return false
	}
}

// Batch is the unit of traceability for a quantity of produce. Derived
// batches (rejection and remainder siblings) reference their parent
// through ParentBatchID; the code suffix is audit convenience only.
type Batch struct {
	ID            snowflake.ID  `json:"id" gorm:"primaryKey"`
	Code          string        `json:"code" gorm:"type:text;not null;uniqueIndex"`
	ParentBatchID *snowflake.ID `json:"parent_batch_id,omitempty" gorm:"index"`

	Variety      string  `json:"variety" gorm:"type:text;not null;index"`
	SourceOrigin string  `json:"source_origin" gorm:"type:text;not null"`
	StatedMassKg float64 `json:"stated_mass_kg" gorm:"not null"`
	// ActualMassKg is the mass this batch is responsible for from this
	// point forward. Inspection forks and packaging deductions always
	// repartition it, never erase it.
	ActualMassKg float64 `json:"actual_mass_kg" gorm:"not null"`

	LifecycleState LifecycleState `json:"lifecycle_state" gorm:"type:text;not null;index"`
	Outcome        Outcome        `json:"outcome" gorm:"type:text;not null"`

	AcceptedMassKg float64           `json:"accepted_mass_kg"`
	RejectedMassKg float64           `json:"rejected_mass_kg"`
	Checklist      datatypes.JSONMap `json:"checklist,omitempty"`
	Inspector      string            `json:"inspector,omitempty" gorm:"type:text"`
	InspectedAt    sql.NullTime      `json:"inspected_at,omitempty"`
	GradedBy       string            `json:"graded_by,omitempty" gorm:"type:text"`
	GradedAt       sql.NullTime      `json:"graded_at,omitempty"`
	CleanedBy      string            `json:"cleaned_by,omitempty" gorm:"type:text"`
	CleanedAt      sql.NullTime      `json:"cleaned_at,omitempty"`
	ClosedAt       sql.NullTime      `json:"closed_at,omitempty"`

	// DueAt is the operational deadline. Set at intake and extended at
	// cleaning from the previous deadline so the SLA accumulates across
	// the whole pipeline.
	DueAt time.Time `json:"due_at" gorm:"not null;index"`

	// Version guards every update. Writers must match the version they
	// read or the write is rejected as a state conflict.
	Version int64 `json:"version" gorm:"not null;default:1"`

	CreatedAt time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`

	Allocations []GradeAllocation `json:"allocations,omitempty" gorm:"foreignKey:BatchID"`
}

// TableName sets the database table name.
func (Batch) TableName() string { return "batches" }

// AllocationFor returns the allocation row for a grade, or nil.
func (b *Batch) AllocationFor(grade Grade) *GradeAllocation {
	for i := range b.Allocations {
		if b.Allocations[i].Grade == grade {
			return &b.Allocations[i]
		}
	}
	return nil
}

// AllocationsSettled reports whether every grade is completed or
// skipped, i.e. nothing is left for packaging.
func (b *Batch) AllocationsSettled() bool {
	for i := range b.Allocations {
		if b.Allocations[i].PackagingStatus == PackagingPending {
			return false
		}
	}
	return len(b.Allocations) > 0
}

// GradeAllocation is the per-grade share of a batch's accepted mass,
// set at grading and mutated only by the packaging consolidator.
type GradeAllocation struct {
	ID              snowflake.ID    `json:"id" gorm:"primaryKey"`
	BatchID         snowflake.ID    `json:"batch_id" gorm:"not null;uniqueIndex:ux_allocations_batch_grade,priority:1"`
	Grade           Grade           `json:"grade" gorm:"type:text;not null;uniqueIndex:ux_allocations_batch_grade,priority:2"`
	MassKg          float64         `json:"mass_kg" gorm:"not null"`
	PackagingStatus PackagingStatus `json:"packaging_status" gorm:"type:text;not null"`
	Version         int64           `json:"version" gorm:"not null;default:1"`
	CreatedAt       time.Time       `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt       time.Time       `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (GradeAllocation) TableName() string { return "batch_grade_allocations" }

// DisposalEntry is one itemized waste-disposal line against a batch's
// rejected mass. The entries for a batch must sum to that mass.
type DisposalEntry struct {
	ID         snowflake.ID   `json:"id" gorm:"primaryKey"`
	BatchID    snowflake.ID   `json:"batch_id" gorm:"not null;index"`
	Method     DisposalMethod `json:"method" gorm:"type:text;not null"`
	MassKg     float64        `json:"mass_kg" gorm:"not null"`
	RecordedBy string         `json:"recorded_by" gorm:"type:text"`
	CreatedAt  time.Time      `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (DisposalEntry) TableName() string { return "batch_disposal_entries" }
