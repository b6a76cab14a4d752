package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"reelsmith/broadcast"
	"reelsmith/orchestrator"
	"reelsmith/store"
	"reelsmith/types"
)

// Server holds the dependencies shared by all controllers
type Server struct {
	store        store.Store
	orchestrator *orchestrator.Orchestrator
	registry     *broadcast.Registry
}

// NewRouter constructs a Gin engine with registered routes.
func NewRouter(st store.Store, orch *orchestrator.Orchestrator, registry *broadcast.Registry, auth Authenticator) *gin.Engine {
	s := &Server{store: st, orchestrator: orch, registry: registry}

	r := gin.New()
	// Minimal middleware: recovery; logger optional to reduce verbosity
	r.Use(gin.Recovery())

	RegisterHealthRoutes(r)

	authed := r.Group("/api", AuthMiddleware(auth))
	s.RegisterScriptRoutes(authed)
	s.RegisterSessionRoutes(authed)
	s.RegisterAssetRoutes(authed)
	s.RegisterProgressRoutes(authed)
	return r
}

// RegisterHealthRoutes registers the health check
func RegisterHealthRoutes(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
}

// respondError maps domain errors to HTTP statuses
func respondError(c *gin.Context, err error) {
	switch {
	case types.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case types.IsPrecondition(err):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		var ext *types.ExternalServiceError
		if errors.As(err, &ext) {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
