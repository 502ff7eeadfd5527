package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/triago/pkg/version"
)

// healthHandler handles GET /healthz.
func (s *Server) healthHandler(c *gin.Context) {
	status := s.requests.SystemStatus()
	// A pool with running workers is healthy whether or not they are
	// currently busy.
	healthy := status.Pool.TotalWorkers > 0

	code := http.StatusOK
	state := "healthy"
	if !healthy {
		code = http.StatusServiceUnavailable
		state = "unhealthy"
	}
	c.JSON(code, gin.H{
		"status":  state,
		"version": version.GitCommit,
		"pool":    status.Pool,
	})
}

// systemStatusHandler handles GET /api/v1/system/status.
func (s *Server) systemStatusHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.requests.SystemStatus())
}

// drainHandler handles POST /api/v1/system/drain. Idempotent: repeated
// drains are no-ops.
func (s *Server) drainHandler(c *gin.Context) {
	s.requests.Drain()
	c.JSON(http.StatusOK, gin.H{"status": "draining"})
}

// reloadConfigHandler handles POST /api/v1/system/reload-config. On
// validation failure the previous configuration stays active.
func (s *Server) reloadConfigHandler(c *gin.Context) {
	if s.configs == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "configuration manager not available"})
		return
	}
	if err := s.configs.Reload(c.Request.Context()); err != nil {
		s.logger.Warn("Config reload rejected", "error", err)
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reloaded", "stats": s.configs.Current().Stats()})
}
