package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	batchdomain "github.com/greenyard/packhouse/internal/batch/domain"
	packagingdomain "github.com/greenyard/packhouse/internal/packaging/domain"
)

func (s *Server) listEligibleBatches(c *gin.Context) {
	variety, grade, err := poolQuery(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	batches, err := s.packagingSvc.ListEligible(c.Request.Context(), variety, grade)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": batches})
}

func (s *Server) previewRun(c *gin.Context) {
	variety, grade, err := poolQuery(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	ids, err := parseBatchIDs(c.QueryArray("batch_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	preview, err := s.packagingSvc.Preview(c.Request.Context(), variety, grade, ids)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": preview})
}

type commitRunRequest struct {
	Variety           string   `json:"variety"`
	Grade             string   `json:"grade"`
	BatchIDs          []string `json:"batch_ids"`
	UnitsRequested    int      `json:"units_requested"`
	Operator          string   `json:"operator"`
	ComplianceChecked bool     `json:"compliance_checked"`
}

func (s *Server) commitRun(c *gin.Context) {
	var req commitRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	ids, err := parseBatchIDs(req.BatchIDs)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.packagingSvc.Commit(c.Request.Context(), packagingdomain.RunRequest{
		Variety:           strings.TrimSpace(req.Variety),
		Grade:             batchdomain.Grade(strings.TrimSpace(req.Grade)),
		BatchIDs:          ids,
		UnitsRequested:    req.UnitsRequested,
		Operator:          strings.TrimSpace(req.Operator),
		ComplianceChecked: req.ComplianceChecked,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": result})
}

func (s *Server) listPackRecords(c *gin.Context) {
	var query struct {
		Variety string `form:"variety"`
		BatchID string `form:"batch_id"`
		Limit   int    `form:"limit"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	filter := packagingdomain.RecordFilter{
		Variety: strings.TrimSpace(query.Variety),
		Limit:   query.Limit,
	}
	if raw := strings.TrimSpace(query.BatchID); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		filter.BatchID = snowflake.ID(parsed)
	}

	records, err := s.packagingSvc.ListRecords(c.Request.Context(), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": records})
}

func poolQuery(c *gin.Context) (string, batchdomain.Grade, error) {
	variety := strings.TrimSpace(c.Query("variety"))
	grade := batchdomain.Grade(strings.TrimSpace(c.Query("grade")))
	if variety == "" {
		return "", "", ErrInvalidRequest
	}
	if !grade.Valid() {
		return "", "", batchdomain.ErrInvalidGrade
	}
	return variety, grade, nil
}

func parseBatchIDs(raw []string) ([]snowflake.ID, error) {
	ids := make([]snowflake.ID, 0, len(raw))
	for _, value := range raw {
		parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil || parsed == 0 {
			return nil, ErrInvalidRequest
		}
		ids = append(ids, snowflake.ID(parsed))
	}
	return ids, nil
}
