package stage

import (
	"context"
	"log/slog"
	"time"

	"github.com/codeready-toolchain/triago/pkg/config"
	"github.com/codeready-toolchain/triago/pkg/contextstore"
	"github.com/codeready-toolchain/triago/pkg/llm"
	"github.com/codeready-toolchain/triago/pkg/models"
)

// Stage names used in telemetry.
const (
	StageAutomation  = "automation"
	StageChatbot     = "chatbot"
	StageQuality     = "quality_gate"
	StageFrustration = "frustration"
	StageContext     = "context"
	StageRouting     = "routing"
)

// Router hands a human-flagged request to the routing substrate: it
// either assigns an agent or enqueues, setting the routing decision and
// workflow status. An error means neither was possible.
type Router interface {
	Route(ctx context.Context, req *models.Request) error
}

// ConfigProvider yields the current configuration. Each pipeline pass
// samples it exactly once, so a hot reload never changes thresholds or
// weights mid-request.
type ConfigProvider interface {
	Current() *config.Config
}

// Pipeline drives one request through the stages with the early-exit
// rules applied.
type Pipeline struct {
	configs ConfigProvider
	gen     llm.Generator
	store   contextstore.Store
	router  Router
	logger  *slog.Logger
}

// NewPipeline wires the stage dependencies.
func NewPipeline(configs ConfigProvider, gen llm.Generator, store contextstore.Store, router Router) *Pipeline {
	return &Pipeline{
		configs: configs,
		gen:     gen,
		store:   store,
		router:  router,
		logger:  slog.Default().With("component", "pipeline"),
	}
}

// Execute runs the stages for one request. The request is owned by this
// call for its duration: no other goroutine mutates it. Context
// cancellation marks the request abandoned between stages.
func (p *Pipeline) Execute(ctx context.Context, req *models.Request) {
	if req.WorkflowStatus.Terminal() {
		return
	}
	req.WorkflowStatus = models.WorkflowInProgress

	cfg := p.configs.Current()
	frustration := NewFrustration(cfg, p.gen, p.store)

	p.timed(req, StageAutomation, func() {
		NewAutomation(cfg).Run(req)
	})
	if p.abandoned(ctx, req) {
		return
	}

	// Pre-scan: obviously critical affect skips response generation and
	// goes straight to frustration scoring and routing.
	skippedGeneration := false
	if quick := frustration.QuickScore(req.QueryText); models.FrustrationLevelForScore(quick) == models.FrustrationCritical {
		skippedGeneration = true
		p.logger.Info("Critical affect pre-scan, skipping response generation",
			"request_id", req.RequestID,
			"quick_score", quick)
	} else {
		p.runGeneration(ctx, req, cfg)
		if p.abandoned(ctx, req) {
			return
		}
	}

	p.timed(req, StageFrustration, func() {
		frCtx, cancel := context.WithTimeout(ctx, cfg.Pipeline.FrustrationTimeout.Duration())
		defer cancel()
		frustration.Run(frCtx, req)
	})
	if p.abandoned(ctx, req) {
		return
	}

	if skippedGeneration {
		if req.FrustrationAssessment != nil && req.FrustrationAssessment.Level == models.FrustrationCritical {
			if req.QualityAssessment == nil {
				req.QualityAssessment = &models.QualityAssessment{
					Verdict:   models.VerdictHumanIntervention,
					Reasoning: "critical_frustration",
				}
			}
		} else {
			// The pre-scan over-predicted; run the skipped stages after all.
			p.runGeneration(ctx, req, cfg)
			if p.abandoned(ctx, req) {
				return
			}
		}
	}

	p.timed(req, StageContext, func() {
		ctxCtx, cancel := context.WithTimeout(ctx, cfg.Pipeline.StageTimeout.Duration())
		defer cancel()
		NewContextManager(cfg, p.store).Run(ctxCtx, req)
	})
	if p.abandoned(ctx, req) {
		return
	}

	if !req.NeedsHuman() {
		req.FinalResponse = req.ChatbotOutput.Text
		req.WorkflowStatus = models.WorkflowDelivered
		p.logger.Info("Request delivered",
			"request_id", req.RequestID,
			"quality_score", req.QualityAssessment.Score)
		return
	}

	// The router records its own stage duration before it makes the
	// request visible to the queue dispatcher; after Route returns the
	// worker no longer writes to the request.
	if routeErr := p.router.Route(ctx, req); routeErr != nil {
		if p.abandoned(ctx, req) {
			return
		}
		req.WorkflowStatus = models.WorkflowFailed
		req.Telemetry.RecordError("routing_failed")
		req.AppendMessage(models.RoleSystem,
			"We could not connect you with a support agent. Please try again shortly.")
		p.logger.Error("Routing failed, request terminated",
			"request_id", req.RequestID,
			"error", routeErr)
	}
}

// runGeneration executes the chatbot and quality stages with their
// deadlines.
func (p *Pipeline) runGeneration(ctx context.Context, req *models.Request, cfg *config.Config) {
	p.timed(req, StageChatbot, func() {
		genCtx, cancel := context.WithTimeout(ctx, cfg.Pipeline.StageTimeout.Duration())
		defer cancel()
		NewChatbot(cfg, p.gen).Run(genCtx, req)
	})
	if ctx.Err() != nil {
		return
	}
	p.timed(req, StageQuality, func() {
		qCtx, cancel := context.WithTimeout(ctx, cfg.Pipeline.StageTimeout.Duration())
		defer cancel()
		NewQualityGate(cfg, p.gen).Run(qCtx, req)
	})
}

func (p *Pipeline) timed(req *models.Request, stage string, fn func()) {
	start := time.Now()
	fn()
	req.Telemetry.RecordStage(stage, time.Since(start))
}

// abandoned checks for customer cancellation between stages.
func (p *Pipeline) abandoned(ctx context.Context, req *models.Request) bool {
	if ctx.Err() == nil {
		return false
	}
	req.WorkflowStatus = models.WorkflowAbandoned
	p.logger.Info("Request abandoned mid-pipeline", "request_id", req.RequestID)
	return true
}
