package api

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"reelsmith/orchestrator"
	"reelsmith/store"
	"reelsmith/types"
)

// RegisterSessionRoutes registers session lifecycle and stage routes
func (s *Server) RegisterSessionRoutes(r *gin.RouterGroup) {
	r.GET("/sessions/:id", s.handleGetSession)
	r.GET("/sessions/:id/assets", s.handleListAssets)
	r.GET("/sessions/:id/costs", s.handleListCosts)

	r.POST("/sessions/:id/storyboard", s.handleStoryboard)
	r.POST("/sessions/:id/audio", s.handleAudio)
	r.POST("/sessions/:id/images", s.handleImages)
	r.POST("/sessions/:id/clips", s.handleClips)
	r.POST("/sessions/:id/compose", s.handleCompose)
}

// RegisterAssetRoutes registers the reviewer action
func (s *Server) RegisterAssetRoutes(r *gin.RouterGroup) {
	r.POST("/assets/:id/approve", s.handleApproveAsset)
}

// handleGetSession returns the session status snapshot. GET /api/sessions/:id
func (s *Server) handleGetSession(c *gin.Context) {
	session, err := s.store.GetSession(c.Request.Context(), c.Param("id"), currentUser(c))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// handleListAssets returns the session's assets, optionally filtered by kind.
// GET /api/sessions/:id/assets?kind=image
func (s *Server) handleListAssets(c *gin.Context) {
	sessionID := c.Param("id")
	if _, err := s.store.GetSession(c.Request.Context(), sessionID, currentUser(c)); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	assets, err := s.store.ListAssets(c.Request.Context(), sessionID, c.Query("kind"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assets": assets})
}

// handleListCosts returns the session's cost ledger and its total.
// GET /api/sessions/:id/costs
func (s *Server) handleListCosts(c *gin.Context) {
	sessionID := c.Param("id")
	if _, err := s.store.GetSession(c.Request.Context(), sessionID, currentUser(c)); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	costs, err := s.store.ListCosts(c.Request.Context(), sessionID)
	if err != nil {
		respondError(c, err)
		return
	}
	total, err := s.store.TotalCost(c.Request.Context(), sessionID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"costs": costs, "total": total})
}

// handleApproveAsset flips an asset's approval flag (reviewer action).
// POST /api/assets/:id/approve
func (s *Server) handleApproveAsset(c *gin.Context) {
	var body struct {
		Approved bool `json:"approved"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := s.store.ApproveAsset(c.Request.Context(), c.Param("id"), body.Approved)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "asset not found"})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "approved": body.Approved})
}

// handleStoryboard plans the session's scenes, creating the session on first
// call. POST /api/sessions/:id/storyboard
func (s *Server) handleStoryboard(c *gin.Context) {
	var body struct {
		ScriptID string                 `json:"script_id"`
		Title    string                 `json:"title"`
		Config   types.StoryboardConfig `json:"config"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if body.ScriptID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "script_id is required"})
		return
	}

	result, err := s.orchestrator.GenerateStoryboard(c.Request.Context(), orchestrator.StoryboardRequest{
		SessionID: c.Param("id"),
		UserID:    currentUser(c),
		ScriptID:  body.ScriptID,
		Title:     body.Title,
		Config:    body.Config,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleAudio synthesizes narration and optional music.
// POST /api/sessions/:id/audio
func (s *Server) handleAudio(c *gin.Context) {
	var cfg types.AudioConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := s.orchestrator.GenerateAudio(c.Request.Context(), c.Param("id"), currentUser(c), cfg)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleImages renders one image per storyboard scene.
// POST /api/sessions/:id/images
func (s *Server) handleImages(c *gin.Context) {
	var cfg types.ImageConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := s.orchestrator.GenerateImages(c.Request.Context(), c.Param("id"), currentUser(c), cfg)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleClips runs the clip stage detached: image-to-video calls take
// minutes, so the request returns 202 and progress flows over the event
// stream. A detached stage keeps running if the client disconnects.
// POST /api/sessions/:id/clips
func (s *Server) handleClips(c *gin.Context) {
	var cfg types.ClipConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sessionID := c.Param("id")
	userID := currentUser(c)
	go func() {
		if _, err := s.orchestrator.GenerateClips(context.Background(), sessionID, userID, cfg); err != nil {
			log.Printf("api: clip stage failed for session %s: %v", sessionID, err)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "session_id": sessionID})
}

// handleCompose runs the composition stage detached, like clips.
// POST /api/sessions/:id/compose
func (s *Server) handleCompose(c *gin.Context) {
	var cfg types.ComposeConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sessionID := c.Param("id")
	userID := currentUser(c)
	go func() {
		if _, err := s.orchestrator.ComposeVideo(context.Background(), sessionID, userID, cfg); err != nil {
			log.Printf("api: compose stage failed for session %s: %v", sessionID, err)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "session_id": sessionID})
}
