package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/triago/pkg/queue"
	"github.com/codeready-toolchain/triago/pkg/services"
)

// abortWithServiceError maps service-layer errors to HTTP responses.
func abortWithServiceError(c *gin.Context, err error) {
	var validErr *services.ValidationError
	switch {
	case errors.As(err, &validErr):
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": validErr.Error()})
	case errors.Is(err, services.ErrRequestNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "request not found"})
	case errors.Is(err, services.ErrNotAssigned):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "request has no assigned agent"})
	case errors.Is(err, queue.ErrPoolStopped):
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "draining, not accepting submissions"})
	case errors.Is(err, queue.ErrPoolSaturated), errors.Is(err, queue.ErrQueueFull):
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rejected_backpressure"})
	default:
		slog.Error("Unexpected service error", "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
