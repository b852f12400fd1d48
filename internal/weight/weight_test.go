package weight

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithinTolerance(t *testing.T) {
	assert.True(t, WithinTolerance(80, 80, ReconcileToleranceKg))
	assert.True(t, WithinTolerance(80, 79.96, ReconcileToleranceKg))
	assert.True(t, WithinTolerance(79.96, 80, ReconcileToleranceKg))
	assert.False(t, WithinTolerance(80, 79.9, ReconcileToleranceKg))
	assert.False(t, WithinTolerance(80, 80.1, ReconcileToleranceKg))
}

func TestCheckReconciled(t *testing.T) {
	assert.NoError(t, CheckReconciled("grading", 80, 80.04))

	err := CheckReconciled("grading", 80, 79.9)
	assert.Error(t, err)

	var mismatch *MismatchError
	assert.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "grading", mismatch.Stage)
	assert.Equal(t, 80.0, mismatch.ExpectedKg)
	assert.Equal(t, 79.9, mismatch.ActualKg)
	assert.Contains(t, mismatch.Error(), "80.000")
	assert.Contains(t, mismatch.Error(), "79.900")
}

func TestExhausted(t *testing.T) {
	assert.True(t, Exhausted(0))
	assert.True(t, Exhausted(0.0005))
	assert.True(t, Exhausted(-0.0001))
	assert.False(t, Exhausted(0.002))
	assert.False(t, Exhausted(5))
}
