package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"policylens/types"
)

// RegisterRecordRoutes registers record, quarantine and extraction endpoints.
func (s *Server) RegisterRecordRoutes(r *gin.Engine) {
	g := r.Group("/api/records")
	g.GET("", s.handleListRecords)
	g.GET("/lookup", s.handleGetRecord)
	g.GET("/:id", s.handleGetRecordByID)
	g.GET("/:id/versions/:version/entities", s.handleVersionEntities)
	g.POST("/:id/reextract", s.handleReextract)

	r.GET("/api/quarantine", s.handleQuarantine)
	r.GET("/api/extractions/failed", s.handleFailedExtractions)
}

// handleListRecords returns the most recently updated records.
func (s *Server) handleListRecords(c *gin.Context) {
	limit := queryLimit(c, 50)
	records, err := s.store.CurrentRecords(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records, "count": len(records)})
}

// handleGetRecord looks a record up by canonical URL, with its versions.
// GET /api/records/lookup?url=<canonical url>
func (s *Server) handleGetRecord(c *gin.Context) {
	rawURL := c.Query("url")
	if rawURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url query parameter is required"})
		return
	}

	record, err := s.store.GetRecord(c.Request.Context(), types.CanonicalURL(rawURL))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, record)
}

func (s *Server) handleGetRecordByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid record id"})
		return
	}

	record, err := s.store.GetRecordByID(c.Request.Context(), id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, record)
}

// handleVersionEntities returns the extracted entities for one version of a record.
func (s *Server) handleVersionEntities(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid record id"})
		return
	}
	version, err := strconv.Atoi(c.Param("version"))
	if err != nil || version < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid version number"})
		return
	}

	row, err := s.store.GetVersion(c.Request.Context(), id, version)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "version not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	entities, err := s.store.EntitiesForVersion(c.Request.Context(), row.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"record_id":         id,
		"version":           version,
		"extraction_status": row.ExtractionStatus,
		"entities":          entities,
	})
}

// handleReextract resets the record's current version to pending and
// republishes it, so a new model pass can supersede the stored entities.
func (s *Server) handleReextract(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid record id"})
		return
	}

	if err := s.store.ResetExtraction(c.Request.Context(), id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "re-extraction queued", "record_id": id})
}

// handleQuarantine lists recently quarantined items with their rejection reasons.
func (s *Server) handleQuarantine(c *gin.Context) {
	limit := queryLimit(c, 50)
	items, err := s.store.QuarantineList(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

// handleFailedExtractions lists versions whose extraction exhausted its retries.
func (s *Server) handleFailedExtractions(c *gin.Context) {
	limit := queryLimit(c, 50)
	versions, err := s.store.FailedExtractions(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"versions": versions, "count": len(versions)})
}

func queryLimit(c *gin.Context, fallback int) int {
	raw := c.Query("limit")
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return fallback
	}
	return limit
}
