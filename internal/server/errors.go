package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	batchdomain "github.com/greenyard/packhouse/internal/batch/domain"
	packagingdomain "github.com/greenyard/packhouse/internal/packaging/domain"
	"github.com/greenyard/packhouse/internal/weight"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type       string   `json:"type"`
	Message    string   `json:"message"`
	ExpectedKg *float64 `json:"expected_kg,omitempty"`
	ActualKg   *float64 `json:"actual_kg,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var ErrInvalidRequest = errors.New("invalid_request")

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	var mismatch *weight.MismatchError
	if errors.As(err, &mismatch) {
		expected, actual := mismatch.ExpectedKg, mismatch.ActualKg
		return http.StatusBadRequest, errorPayload{
			Type:       "mass_mismatch",
			Message:    mismatch.Error(),
			ExpectedKg: &expected,
			ActualKg:   &actual,
		}
	}

	var insufficient *packagingdomain.InsufficientMassError
	if errors.As(err, &insufficient) {
		requested, pooled := insufficient.RequestedKg, insufficient.PooledKg
		return http.StatusBadRequest, errorPayload{
			Type:       "insufficient_mass",
			Message:    insufficient.Error(),
			ExpectedKg: &requested,
			ActualKg:   &pooled,
		}
	}

	var transition *batchdomain.TransitionError
	if errors.As(err, &transition) {
		return http.StatusConflict, errorPayload{
			Type:    "invalid_transition",
			Message: transition.Error(),
		}
	}

	var ineligible *packagingdomain.IneligibleBatchError
	if errors.As(err, &ineligible) {
		return http.StatusBadRequest, errorPayload{
			Type:    "ineligible_batch",
			Message: ineligible.Error(),
		}
	}

	switch {
	case errors.Is(err, batchdomain.ErrStateConflict):
		return http.StatusConflict, errorPayload{
			Type:    "state_conflict",
			Message: "state changed, please retry",
		}
	case errors.Is(err, batchdomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, batchdomain.ErrInvalidMass),
		errors.Is(err, batchdomain.ErrRejectedExceedsTotal),
		errors.Is(err, batchdomain.ErrInvalidGrade),
		errors.Is(err, batchdomain.ErrInvalidMethod),
		errors.Is(err, batchdomain.ErrConfirmationRequired),
		errors.Is(err, packagingdomain.ErrComplianceRequired),
		errors.Is(err, packagingdomain.ErrNoBatchesSelected),
		errors.Is(err, packagingdomain.ErrInvalidUnits):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}
