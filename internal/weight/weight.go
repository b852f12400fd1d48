// Package weight holds the mass-reconciliation helpers shared by the
// batch state machine and the packaging consolidator. Tolerances are
// stage-specific: human-entered weights (grading, disposal) allow a
// coarser discrepancy than machine-computed packaging deductions.
package weight

import (
	"fmt"
	"math"
)

const (
	// ReconcileToleranceKg bounds the discrepancy allowed when manually
	// entered weights are reconciled against a batch total.
	ReconcileToleranceKg = 0.05

	// MassEpsilonKg bounds the residue treated as zero in packaging
	// mass accounting.
	MassEpsilonKg = 0.001
)

// WithinTolerance reports whether a and b differ by at most eps.
func WithinTolerance(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}

// MismatchError reports a failed mass reconciliation with both totals
// so the operator can correct the entry.
type MismatchError struct {
	Stage      string
	ExpectedKg float64
	ActualKg   float64
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s mass mismatch: expected %.3f kg, got %.3f kg", e.Stage, e.ExpectedKg, e.ActualKg)
}

// CheckReconciled validates a human-entered total against an expected
// total using the reconciliation tolerance.
func CheckReconciled(stage string, expectedKg, actualKg float64) error {
	if WithinTolerance(expectedKg, actualKg, ReconcileToleranceKg) {
		return nil
	}
	return &MismatchError{Stage: stage, ExpectedKg: expectedKg, ActualKg: actualKg}
}

// Exhausted reports whether a remaining mass is indistinguishable from
// zero under the packaging epsilon.
func Exhausted(massKg float64) bool {
	return massKg <= MassEpsilonKg
}
