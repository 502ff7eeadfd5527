package stage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/triago/pkg/config"
	"github.com/codeready-toolchain/triago/pkg/contextstore"
	"github.com/codeready-toolchain/triago/pkg/llm"
	"github.com/codeready-toolchain/triago/pkg/models"
)

type staticProvider struct{ cfg *config.Config }

func (p staticProvider) Current() *config.Config { return p.cfg }

type fakeRouter struct {
	calls int
	fail  bool
}

func (r *fakeRouter) Route(_ context.Context, req *models.Request) error {
	r.calls++
	if r.fail {
		return errors.New("no agents")
	}
	req.RoutingDecision = &models.RoutingDecision{
		AssignedAgentID: "agent-1",
		Strategy:        "best_match",
		Priority:        models.PriorityCritical,
	}
	req.WorkflowStatus = models.WorkflowAssigned
	return nil
}

func newRequest(query string) *models.Request {
	return &models.Request{
		RequestID:      "r1",
		UserID:         "u1",
		SessionID:      "s1",
		QueryText:      query,
		WorkflowStatus: models.WorkflowInProgress,
	}
}

func pipelineUnderTest(t *testing.T, gen llm.Generator, router Router) *Pipeline {
	t.Helper()
	return NewPipeline(staticProvider{cfg: testConfig(t)}, gen, contextstore.NewMemoryStore(), router)
}

func TestPipelineHappyPathDeliversAutomationTemplate(t *testing.T) {
	router := &fakeRouter{}
	p := pipelineUnderTest(t, failingGenerator(), router)
	req := newRequest("How do I reset my password?")

	p.Execute(context.Background(), req)

	assert.Equal(t, models.WorkflowDelivered, req.WorkflowStatus)
	assert.Contains(t, req.FinalResponse, "password reset link")
	require.NotNil(t, req.QualityAssessment)
	assert.Equal(t, models.VerdictAdequate, req.QualityAssessment.Verdict)
	require.NotNil(t, req.FrustrationAssessment)
	assert.Equal(t, models.FrustrationLow, req.FrustrationAssessment.Level)
	assert.Equal(t, 0, router.calls)

	// Every executed stage left a duration and routing never ran.
	for _, stage := range []string{StageAutomation, StageChatbot, StageQuality, StageFrustration, StageContext} {
		assert.Contains(t, req.Telemetry.StageDurations, stage)
	}
	assert.NotContains(t, req.Telemetry.StageDurations, StageRouting)
}

func TestPipelineCriticalPreScanSkipsGeneration(t *testing.T) {
	genCalls := 0
	gen := llm.GeneratorFunc(func(_ context.Context, r *llm.GenerateRequest) (*llm.GenerateResponse, error) {
		genCalls++
		// Only the frustration rating call should reach the generator.
		return &llm.GenerateResponse{Text: "9", TokensUsed: 1}, nil
	})
	router := &fakeRouter{}
	p := pipelineUnderTest(t, gen, router)
	req := newRequest("THIS IS RIDICULOUS I WANT A MANAGER NOW")

	p.Execute(context.Background(), req)

	assert.Equal(t, models.WorkflowAssigned, req.WorkflowStatus)
	assert.Nil(t, req.ChatbotOutput)
	require.NotNil(t, req.QualityAssessment)
	assert.Equal(t, models.VerdictHumanIntervention, req.QualityAssessment.Verdict)
	assert.Equal(t, "critical_frustration", req.QualityAssessment.Reasoning)
	require.NotNil(t, req.FrustrationAssessment)
	assert.Equal(t, models.FrustrationCritical, req.FrustrationAssessment.Level)
	assert.Equal(t, 1, router.calls)
	assert.Equal(t, 1, genCalls)
	assert.NotContains(t, req.Telemetry.StageDurations, StageChatbot)
}

func TestPipelinePreScanOverPredictionRecovers(t *testing.T) {
	// Lexical signals say critical but the model pulls the combined
	// score down; the pipeline then runs the skipped stages after all.
	gen := llm.GeneratorFunc(func(_ context.Context, r *llm.GenerateRequest) (*llm.GenerateResponse, error) {
		if r.MaxTokens == 8 {
			return &llm.GenerateResponse{Text: "0", TokensUsed: 1}, nil
		}
		return &llm.GenerateResponse{
			Text: "I am sorry for the trouble. A supervisor will review your account today " +
				"and follow up with a full explanation of the charges and next steps.",
			TokensUsed: 30,
		}, nil
	})
	router := &fakeRouter{}
	p := pipelineUnderTest(t, gen, router)
	req := newRequest("I WANT A MANAGER NOW THIS IS RIDICULOUS")

	p.Execute(context.Background(), req)

	require.NotNil(t, req.FrustrationAssessment)
	if req.FrustrationAssessment.Level != models.FrustrationCritical {
		require.NotNil(t, req.ChatbotOutput)
		require.NotNil(t, req.QualityAssessment)
	}
}

func TestPipelineChatbotFailureRoutesToHuman(t *testing.T) {
	router := &fakeRouter{}
	p := pipelineUnderTest(t, failingGenerator(), router)
	req := newRequest("Explain my deductible please")

	p.Execute(context.Background(), req)

	assert.Nil(t, req.ChatbotOutput)
	require.NotNil(t, req.QualityAssessment)
	assert.Equal(t, models.VerdictHumanIntervention, req.QualityAssessment.Verdict)
	assert.Equal(t, "no_response", req.QualityAssessment.Reasoning)
	assert.Equal(t, models.WorkflowAssigned, req.WorkflowStatus)
	assert.Equal(t, 1, router.calls)
}

func TestPipelineRoutingFailureMarksFailed(t *testing.T) {
	router := &fakeRouter{fail: true}
	p := pipelineUnderTest(t, failingGenerator(), router)
	req := newRequest("Explain my deductible please")

	p.Execute(context.Background(), req)

	assert.Equal(t, models.WorkflowFailed, req.WorkflowStatus)
	assert.Contains(t, req.Telemetry.Errors, "routing_failed")
	// The customer gets a safe message, not a raw error.
	require.NotEmpty(t, req.Messages)
	last := req.Messages[len(req.Messages)-1]
	assert.Equal(t, models.RoleSystem, last.Role)
	assert.NotContains(t, last.Text, "no agents")
}

func TestPipelineAbandonmentBetweenStages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gen := llm.GeneratorFunc(func(_ context.Context, _ *llm.GenerateRequest) (*llm.GenerateResponse, error) {
		cancel()
		return nil, &llm.CollaboratorError{Class: llm.FailureTerminal, Message: "cancelled"}
	})
	router := &fakeRouter{}
	p := pipelineUnderTest(t, gen, router)
	req := newRequest("Explain my deductible please")

	p.Execute(ctx, req)

	assert.Equal(t, models.WorkflowAbandoned, req.WorkflowStatus)
	assert.Equal(t, 0, router.calls)
}

func TestPipelineSkipsTerminalRequest(t *testing.T) {
	router := &fakeRouter{}
	p := pipelineUnderTest(t, failingGenerator(), router)
	req := newRequest("hello")
	req.WorkflowStatus = models.WorkflowAbandoned

	p.Execute(context.Background(), req)

	assert.Nil(t, req.AutomationResult)
	assert.Equal(t, 0, router.calls)
}

func TestPipelineTokensMonotonic(t *testing.T) {
	gen := staticGenerator("Here is a thorough explanation of your deductible, please review the plan documents for details.", 25)
	router := &fakeRouter{}
	p := pipelineUnderTest(t, gen, router)
	req := newRequest("Explain my deductible")

	p.Execute(context.Background(), req)

	assert.GreaterOrEqual(t, req.Telemetry.TokensTotal, 25)
	assert.Greater(t, req.Telemetry.CostTotal, 0.0)
}
