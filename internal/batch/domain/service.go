package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// IntakeRequest starts a batch from a delivery of harvested produce.
type IntakeRequest struct {
	Variety      string  `json:"variety"`
	SourceOrigin string  `json:"source_origin"`
	StatedMassKg float64 `json:"stated_mass_kg"`
	ActualMassKg float64 `json:"actual_mass_kg"`
}

// InspectionRequest records the quality check on an intake batch.
type InspectionRequest struct {
	BatchID        snowflake.ID   `json:"-"`
	RejectedMassKg float64        `json:"rejected_mass_kg"`
	Checklist      map[string]any `json:"checklist"`
	Inspector      string         `json:"inspector"`
}

// InspectionResult carries the inspected batch and, when part of the
// mass failed the check, the rejection sibling forked to carry it.
type InspectionResult struct {
	Batch           *Batch `json:"batch"`
	RejectedSibling *Batch `json:"rejected_sibling,omitempty"`
}

// GradeMass is one grade's share of the accepted mass.
type GradeMass struct {
	Grade  Grade   `json:"grade"`
	MassKg float64 `json:"mass_kg"`
}

// GradingRequest allocates a batch's accepted mass across grades. The
// masses must reconcile with the accepted mass within tolerance.
type GradingRequest struct {
	BatchID  snowflake.ID `json:"-"`
	Grades   []GradeMass  `json:"grades"`
	GradedBy string       `json:"graded_by"`
}

// DisposalEntryInput is one (method, mass) line of a disposal record.
type DisposalEntryInput struct {
	Method DisposalMethod `json:"method"`
	MassKg float64        `json:"mass_kg"`
}

// DisposalRequest closes out a batch's rejected mass. The entry masses
// must reconcile with the rejected mass within tolerance.
type DisposalRequest struct {
	BatchID    snowflake.ID         `json:"-"`
	Entries    []DisposalEntryInput `json:"entries"`
	RecordedBy string               `json:"recorded_by"`
}

// CleaningRequest confirms a graded batch was cleaned and is ready for
// packaging.
type CleaningRequest struct {
	BatchID   snowflake.ID `json:"-"`
	Confirmed bool         `json:"confirmed"`
	CleanedBy string       `json:"cleaned_by"`
}

// Service drives a batch through the pipeline:
// inspection → grading → (disposal | cleaning) → ready for packaging →
// closed. Every mutation is a guarded read-modify-write; concurrent
// writers observe ErrStateConflict instead of lost updates.
type Service interface {
	SubmitIntake(ctx context.Context, req IntakeRequest) (*Batch, error)
	SubmitInspection(ctx context.Context, req InspectionRequest) (*InspectionResult, error)
	// RejectWholeBatch is the operator shortcut that marks every
	// kilogram of the batch rejected without per-field entry.
	RejectWholeBatch(ctx context.Context, batchID snowflake.ID, inspector string) (*InspectionResult, error)
	// ReopenInspection returns a batch awaiting disposal to inspection,
	// the correction path for a wrongly rejected batch.
	ReopenInspection(ctx context.Context, batchID snowflake.ID) (*Batch, error)
	SubmitGrading(ctx context.Context, req GradingRequest) (*Batch, error)
	SubmitDisposal(ctx context.Context, req DisposalRequest) (*Batch, error)
	SubmitCleaning(ctx context.Context, req CleaningRequest) (*Batch, error)

	GetBatch(ctx context.Context, id snowflake.ID) (*Batch, error)
	ListBatches(ctx context.Context, filter ListFilter) ([]Batch, error)
	ListDisposalEntries(ctx context.Context, batchID snowflake.ID) ([]DisposalEntry, error)
}
