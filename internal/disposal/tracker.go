// Package disposal accumulates itemized waste entries against a
// batch's rejected mass so operator terminals can show a running total
// before committing the disposal record.
package disposal

import (
	"context"

	"github.com/bwmarrin/snowflake"
	batchdomain "github.com/greenyard/packhouse/internal/batch/domain"
	"github.com/greenyard/packhouse/internal/weight"
)

// Tracker collects (method, mass) entries client-side. Commit only
// succeeds once the entries reconcile with the rejected mass.
type Tracker struct {
	batchID        snowflake.ID
	rejectedMassKg float64
	entries        []batchdomain.DisposalEntryInput
}

// NewTracker starts a tracker for a batch awaiting disposal.
func NewTracker(batch *batchdomain.Batch) *Tracker {
	return &Tracker{
		batchID:        batch.ID,
		rejectedMassKg: batch.RejectedMassKg,
	}
}

// Add records one disposal line.
func (t *Tracker) Add(method batchdomain.DisposalMethod, massKg float64) error {
	if !method.Valid() {
		return batchdomain.ErrInvalidMethod
	}
	if massKg <= 0 {
		return batchdomain.ErrInvalidMass
	}
	t.entries = append(t.entries, batchdomain.DisposalEntryInput{Method: method, MassKg: massKg})
	return nil
}

// Total is the running sum of entered masses.
func (t *Tracker) Total() float64 {
	total := 0.0
	for _, entry := range t.entries {
		total += entry.MassKg
	}
	return total
}

// Remaining is the mass still to be accounted for. Negative when the
// entries overshoot the rejected mass.
func (t *Tracker) Remaining() float64 {
	return t.rejectedMassKg - t.Total()
}

// Balanced reports whether the entries reconcile with the rejected
// mass within the disposal tolerance.
func (t *Tracker) Balanced() bool {
	return weight.WithinTolerance(t.rejectedMassKg, t.Total(), weight.ReconcileToleranceKg)
}

// Entries returns a copy of the accumulated lines.
func (t *Tracker) Entries() []batchdomain.DisposalEntryInput {
	out := make([]batchdomain.DisposalEntryInput, len(t.entries))
	copy(out, t.entries)
	return out
}

// Commit submits the accumulated entries through the batch service.
// The tolerance check runs here first so an unbalanced tracker never
// reaches the store.
func (t *Tracker) Commit(ctx context.Context, svc batchdomain.Service, recordedBy string) (*batchdomain.Batch, error) {
	if err := weight.CheckReconciled("disposal", t.rejectedMassKg, t.Total()); err != nil {
		return nil, err
	}
	return svc.SubmitDisposal(ctx, batchdomain.DisposalRequest{
		BatchID:    t.batchID,
		Entries:    t.Entries(),
		RecordedBy: recordedBy,
	})
}
