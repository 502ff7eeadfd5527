// Package api exposes the HTTP surface: request submission and lifecycle
// operations, operator endpoints, and health.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/triago/pkg/config"
	"github.com/codeready-toolchain/triago/pkg/services"
)

// Server carries the handler dependencies.
type Server struct {
	requests *services.RequestService
	configs  *config.Manager
	logger   *slog.Logger
}

// NewServer creates the API server.
func NewServer(requests *services.RequestService, configs *config.Manager) *Server {
	if requests == nil {
		panic("NewServer: request service must not be nil")
	}
	return &Server{
		requests: requests,
		configs:  configs,
		logger:   slog.Default().With("component", "api"),
	}
}

// Routes builds the gin engine with all endpoints registered.
func (s *Server) Routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), s.requestLogger(), securityHeaders())

	engine.GET("/healthz", s.healthHandler)

	v1 := engine.Group("/api/v1")
	{
		v1.POST("/requests", s.submitHandler)
		v1.GET("/requests/:id", s.statusHandler)
		v1.POST("/requests/:id/cancel", s.cancelHandler)
		v1.POST("/requests/:id/complete", s.completeHandler)

		v1.GET("/system/status", s.systemStatusHandler)
		v1.POST("/system/drain", s.drainHandler)
		v1.POST("/system/reload-config", s.reloadConfigHandler)
	}

	return engine
}

// HTTPServer wraps the engine in a http.Server with sane timeouts.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}
