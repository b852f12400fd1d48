package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	batchdomain "github.com/greenyard/packhouse/internal/batch/domain"
)

func (s *Server) submitIntake(c *gin.Context) {
	var req batchdomain.IntakeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	req.Variety = strings.TrimSpace(req.Variety)
	req.SourceOrigin = strings.TrimSpace(req.SourceOrigin)
	if req.Variety == "" || req.SourceOrigin == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	batch, err := s.batchSvc.SubmitIntake(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": batch})
}

func (s *Server) listBatches(c *gin.Context) {
	var query struct {
		Variety string `form:"variety"`
		State   string `form:"state"`
		Limit   int    `form:"limit"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	batches, err := s.batchSvc.ListBatches(c.Request.Context(), batchdomain.ListFilter{
		Variety: strings.TrimSpace(query.Variety),
		State:   batchdomain.LifecycleState(strings.TrimSpace(query.State)),
		Limit:   query.Limit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": batches})
}

func (s *Server) getBatch(c *gin.Context) {
	id, err := parseBatchID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	batch, err := s.batchSvc.GetBatch(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": batch})
}

func (s *Server) submitInspection(c *gin.Context) {
	id, err := parseBatchID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req batchdomain.InspectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	req.BatchID = id

	result, err := s.batchSvc.SubmitInspection(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) rejectWholeBatch(c *gin.Context) {
	id, err := parseBatchID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req struct {
		Inspector string `json:"inspector"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.batchSvc.RejectWholeBatch(c.Request.Context(), id, strings.TrimSpace(req.Inspector))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) reopenInspection(c *gin.Context) {
	id, err := parseBatchID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	batch, err := s.batchSvc.ReopenInspection(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": batch})
}

func (s *Server) submitGrading(c *gin.Context) {
	id, err := parseBatchID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req batchdomain.GradingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	req.BatchID = id

	batch, err := s.batchSvc.SubmitGrading(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": batch})
}

func (s *Server) submitDisposal(c *gin.Context) {
	id, err := parseBatchID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req batchdomain.DisposalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	req.BatchID = id

	batch, err := s.batchSvc.SubmitDisposal(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": batch})
}

func (s *Server) listDisposalEntries(c *gin.Context) {
	id, err := parseBatchID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	entries, err := s.batchSvc.ListDisposalEntries(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": entries})
}

func (s *Server) submitCleaning(c *gin.Context) {
	id, err := parseBatchID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req batchdomain.CleaningRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	req.BatchID = id

	batch, err := s.batchSvc.SubmitCleaning(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": batch})
}

func parseBatchID(c *gin.Context) (snowflake.ID, error) {
	raw := strings.TrimSpace(c.Param("id"))
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || parsed == 0 {
		return 0, ErrInvalidRequest
	}
	return snowflake.ID(parsed), nil
}
