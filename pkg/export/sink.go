// Package export writes terminated requests' telemetry to a configured
// backend. Request content is discarded with the request; only telemetry
// and outcome fields leave the core.
package export

import (
	"context"
	"log/slog"

	"github.com/codeready-toolchain/triago/pkg/models"
)

// Sink receives the telemetry of each terminated request.
type Sink interface {
	Export(ctx context.Context, req *models.Request) error
	Close() error
}

// LogSink writes telemetry as structured log records. It is the default
// backend and never fails.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates the log-backed sink.
func NewLogSink() *LogSink {
	return &LogSink{logger: slog.Default().With("component", "telemetry-export")}
}

// Export logs one terminated request's telemetry.
func (s *LogSink) Export(_ context.Context, req *models.Request) error {
	attrs := []any{
		"request_id", req.RequestID,
		"user_id", req.UserID,
		"session_id", req.SessionID,
		"workflow_status", req.WorkflowStatus,
		"tokens_total", req.Telemetry.TokensTotal,
		"cost_total", req.Telemetry.CostTotal,
		"stage_durations", req.Telemetry.StageDurations,
		"retries", req.Telemetry.Retries,
		"errors", req.Telemetry.Errors,
	}
	if req.QualityAssessment != nil {
		attrs = append(attrs,
			"quality_score", req.QualityAssessment.Score,
			"quality_verdict", req.QualityAssessment.Verdict)
	}
	if req.FrustrationAssessment != nil {
		attrs = append(attrs,
			"frustration_level", req.FrustrationAssessment.Level,
			"frustration_score", req.FrustrationAssessment.Score)
	}
	if req.RoutingDecision != nil {
		attrs = append(attrs,
			"assigned_agent_id", req.RoutingDecision.AssignedAgentID,
			"routing_strategy", req.RoutingDecision.Strategy)
	}
	s.logger.Info("Request telemetry", attrs...)
	return nil
}

// Close is a no-op for the log sink.
func (s *LogSink) Close() error {
	return nil
}
