package notify

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/codeready-toolchain/triago/pkg/config"
	"github.com/codeready-toolchain/triago/pkg/models"
)

// Service handles notification delivery.
// Nil-safe: all methods are no-ops when the service is nil.
type Service struct {
	client *Client
	logger *slog.Logger
}

// NewService creates a notification service from config. Returns nil when
// notifications are disabled or the token is missing.
func NewService(cfg *config.SlackConfig) *Service {
	if cfg == nil || !cfg.Enabled || cfg.Channel == "" {
		return nil
	}
	token := os.Getenv(cfg.TokenEnv)
	if token == "" {
		slog.Warn("Slack notifications enabled but token env var is empty, disabling",
			"token_env", cfg.TokenEnv)
		return nil
	}
	return &Service{
		client: NewClient(token, cfg.Channel),
		logger: slog.Default().With("component", "notify-service"),
	}
}

// NewServiceWithClient creates a Service backed by a pre-built Client.
// Useful for testing with a mock API server.
func NewServiceWithClient(client *Client) *Service {
	return &Service{
		client: client,
		logger: slog.Default().With("component", "notify-service"),
	}
}

// NotifyAssigned tells the agent channel about a new assignment.
// Fail-open: errors are logged, never returned.
func (s *Service) NotifyAssigned(ctx context.Context, req *models.Request, agentName string) {
	if s == nil || req.RoutingDecision == nil {
		return
	}
	blocks := BuildAssignedMessage(req, agentName)
	if err := s.client.PostMessage(ctx, blocks, 5*time.Second); err != nil {
		s.logger.Error("Failed to send assignment notification",
			"request_id", req.RequestID,
			"agent", agentName,
			"error", err)
	}
}

// NotifyQueueOverflow raises a back-pressure alert.
func (s *Service) NotifyQueueOverflow(ctx context.Context, depth, overflow int) {
	if s == nil {
		return
	}
	if err := s.client.PostMessage(ctx, BuildQueueOverflowMessage(depth, overflow), 5*time.Second); err != nil {
		s.logger.Error("Failed to send queue overflow notification", "error", err)
	}
}

// NotifyCancelled tells the assigned agent the customer abandoned the
// request.
func (s *Service) NotifyCancelled(ctx context.Context, requestID, agentName string) {
	if s == nil {
		return
	}
	if err := s.client.PostMessage(ctx, BuildCancellationMessage(requestID, agentName), 5*time.Second); err != nil {
		s.logger.Error("Failed to send cancellation notification",
			"request_id", requestID,
			"error", err)
	}
}
