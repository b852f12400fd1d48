package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

func (s *Server) listStockLevels(c *gin.Context) {
	variety := strings.TrimSpace(c.Query("variety"))

	levels, err := s.stock.Levels(c.Request.Context(), s.db, variety)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": levels})
}

func (s *Server) listStockMovements(c *gin.Context) {
	var query struct {
		Variety string `form:"variety"`
		Limit   int    `form:"limit"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	movements, err := s.movements.List(c.Request.Context(), s.db, strings.TrimSpace(query.Variety), query.Limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": movements})
}
