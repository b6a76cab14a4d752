package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"reelsmith/store"
	"reelsmith/types"
)

// RegisterScriptRoutes registers script-related routes
func (s *Server) RegisterScriptRoutes(r *gin.RouterGroup) {
	r.POST("/scripts", s.handleCreateScript)
	r.GET("/scripts/:id", s.handleGetScript)
}

// handleCreateScript accepts a four-part script and stores it for later
// session runs. POST /api/scripts
func (s *Server) handleCreateScript(c *gin.Context) {
	var script types.Script
	if err := c.ShouldBindJSON(&script); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if script.Title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
		return
	}
	if len(script.Sections) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one script section is required"})
		return
	}
	for _, sec := range script.Sections {
		if sec.Text == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "section " + sec.Name + " has no text"})
			return
		}
	}

	script.ID = uuid.NewString()
	script.UserID = currentUser(c)

	if err := s.store.CreateScript(c.Request.Context(), &script); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, script)
}

// handleGetScript returns one of the caller's scripts. GET /api/scripts/:id
func (s *Server) handleGetScript(c *gin.Context) {
	script, err := s.store.GetScript(c.Request.Context(), c.Param("id"), currentUser(c))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "script not found"})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, script)
}
