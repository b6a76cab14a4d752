package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"reelsmith/broadcast"
	"reelsmith/config"
)

// RegisterProgressRoutes registers the live progress stream
func (s *Server) RegisterProgressRoutes(r *gin.RouterGroup) {
	r.GET("/sessions/:id/events", s.handleSessionEvents)
}

// handleSessionEvents streams progress events over SSE until the session
// reaches a terminal event or the client disconnects. Disconnecting only
// drops the subscription; the running stage is unaffected.
// GET /api/sessions/:id/events
func (s *Server) handleSessionEvents(c *gin.Context) {
	sessionID := c.Param("id")
	if _, err := s.store.GetSession(c.Request.Context(), sessionID, currentUser(c)); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	sub := broadcast.NewChannelSubscriber(32)
	handle := s.registry.Subscribe(sessionID, sub)
	defer s.registry.Unsubscribe(handle)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case ev := <-sub.Events():
			c.SSEvent(ev.Type, ev)
			// Terminal events end the stream
			return ev.Type == config.EventProgress
		case <-c.Request.Context().Done():
			return false
		}
	})
}
