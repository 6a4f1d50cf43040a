package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterHealthRoutes registers the readiness probe endpoint.
func (s *Server) RegisterHealthRoutes(r *gin.Engine) {
	r.GET("/health", s.handleHealth)
}

// handleHealth reports readiness of the database and the dedup index.
// A probe loop polls this endpoint until both dependencies answer.
func (s *Server) handleHealth(c *gin.Context) {
	sqlDB, err := s.store.DB().DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "database: " + err.Error()})
		return
	}

	indexed, err := s.index.Count(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "dedup index: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"indexed": indexed,
	})
}
