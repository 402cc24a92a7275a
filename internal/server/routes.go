package server

import (
	"net/http"

	"github.com/dtorcivia/calmerge/internal/response"
	"github.com/dtorcivia/calmerge/internal/server/middleware"
)

// Version is reported by the health endpoint.
var Version = "dev"

// setupRoutes registers all HTTP routes.
func (s *Server) setupRoutes() {
	// Health check (no auth required)
	s.router.HandleFunc("GET /health", s.handleHealth)

	apiMux := http.NewServeMux()
	s.apiHandler.RegisterRoutes(apiMux)

	apiHandler := middleware.BearerAuth(s.verifier)(apiMux)
	apiHandler = s.rateLimiter.Middleware(apiHandler)
	s.router.Handle("/api/", apiHandler)

	// OAuth redirects come from the browser and carry no API token.
	s.apiHandler.RegisterPublicRoutes(s.router)
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.PingContext(r.Context()); err != nil {
		response.JSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "unhealthy",
			"error":  "database unavailable",
		})
		return
	}

	response.JSON(w, http.StatusOK, map[string]interface{}{
		"status":   "healthy",
		"version":  Version,
		"backends": s.mux.Backends(),
	})
}
