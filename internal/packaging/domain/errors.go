package domain

import (
	"errors"
	"fmt"
)

var (
	ErrComplianceRequired = errors.New("compliance check must be asserted before packaging")
	ErrNoBatchesSelected  = errors.New("at least one contributing batch is required")
	ErrInvalidUnits       = errors.New("units requested must be positive")
)

// InsufficientMassError rejects a run that asks for more mass than the
// pooled batches hold.
type InsufficientMassError struct {
	RequestedKg float64
	PooledKg    float64
}

func (e *InsufficientMassError) Error() string {
	return fmt.Sprintf("insufficient pooled mass: need %.3f kg, have %.3f kg", e.RequestedKg, e.PooledKg)
}

// IneligibleBatchError rejects a run whose pool includes a batch that
// is not ready for the requested variety and grade.
type IneligibleBatchError struct {
	BatchCode string
	Reason    string
}

func (e *IneligibleBatchError) Error() string {
	return fmt.Sprintf("batch %s is not eligible: %s", e.BatchCode, e.Reason)
}
