package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterRunRoutes registers crawl run endpoints.
func (s *Server) RegisterRunRoutes(r *gin.Engine) {
	g := r.Group("/api/runs")
	g.GET("", s.handleListRuns)
	g.POST("/refresh", s.handleRefresh)
}

// handleListRuns returns recent crawl runs with their counters.
func (s *Server) handleListRuns(c *gin.Context) {
	limit := queryLimit(c, 20)
	runs, err := s.store.RecentRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs)})
}

// handleRefresh triggers an ingestion batch outside the schedule.
// It runs asynchronously and returns 202 Accepted immediately.
func (s *Server) handleRefresh(c *gin.Context) {
	if s.refresh == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "manual refresh not wired"})
		return
	}
	go func() {
		if err := s.refresh(context.Background()); err != nil {
			s.log.Error("manual refresh failed", "error", err)
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"status": "refresh started"})
}
