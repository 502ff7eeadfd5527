package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/triago/pkg/config"
	"github.com/codeready-toolchain/triago/pkg/contextstore"
	"github.com/codeready-toolchain/triago/pkg/directory"
	"github.com/codeready-toolchain/triago/pkg/llm"
	"github.com/codeready-toolchain/triago/pkg/models"
	"github.com/codeready-toolchain/triago/pkg/notify"
	"github.com/codeready-toolchain/triago/pkg/queue"
	"github.com/codeready-toolchain/triago/pkg/stage"
)

type staticProvider struct {
	cfg *config.Config
}

func (p staticProvider) Current() *config.Config { return p.cfg }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Initialize(context.Background(), t.TempDir())
	require.NoError(t, err)
	return cfg
}

func staticGenerator(text string, tokens int) llm.GeneratorFunc {
	return func(_ context.Context, _ *llm.GenerateRequest) (*llm.GenerateResponse, error) {
		return &llm.GenerateResponse{Text: text, TokensUsed: tokens}, nil
	}
}

func failingGenerator() llm.GeneratorFunc {
	return func(_ context.Context, _ *llm.GenerateRequest) (*llm.GenerateResponse, error) {
		return nil, &llm.CollaboratorError{Class: llm.FailureTerminal, Message: "provider down"}
	}
}

// recordingSink captures exported request ids and terminal statuses.
type recordingSink struct {
	mu       sync.Mutex
	exported []string
	statuses map[string]models.WorkflowStatus
}

func (s *recordingSink) Export(_ context.Context, req *models.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.statuses == nil {
		s.statuses = make(map[string]models.WorkflowStatus)
	}
	s.exported = append(s.exported, req.RequestID)
	s.statuses[req.RequestID] = req.WorkflowStatus
	return nil
}

func (s *recordingSink) Close() error { return nil }

func (s *recordingSink) count(requestID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range s.exported {
		if id == requestID {
			n++
		}
	}
	return n
}

func seedAgents() []models.AgentIdentity {
	return []models.AgentIdentity{
		{
			AgentID:              "agent-a",
			Name:                 "Dana",
			SkillTier:            models.TierSenior,
			Skills:               map[string]models.Proficiency{"billing": models.ProficiencyAdvanced},
			FrustrationTolerance: models.ToleranceHigh,
			MaxConcurrentCases:   2,
		},
		{
			AgentID:              "agent-b",
			Name:                 "Robin",
			SkillTier:            models.TierJunior,
			Skills:               map[string]models.Proficiency{"orders": models.ProficiencyBasic},
			FrustrationTolerance: models.ToleranceLow,
			MaxConcurrentCases:   1,
		},
	}
}

// harness wires the full service substrate over in-memory components.
type harness struct {
	cfg        *config.Config
	dir        *directory.Directory
	wait       *queue.WaitQueue
	registry   *Registry
	sink       *recordingSink
	pool       *queue.WorkerPool
	router     *Router
	dispatcher *Dispatcher
	svc        *RequestService
}

func newHarness(t *testing.T, gen llm.Generator) *harness {
	t.Helper()

	cfg := testConfig(t)
	cfg.Queue.WorkerCount = 2
	provider := staticProvider{cfg}

	dir := directory.New(seedAgents())
	wait := queue.NewWaitQueue()
	registry := NewRegistry()
	sink := &recordingSink{}
	var notifier *notify.Service // disabled, nil-safe

	dispatcher := NewDispatcher(provider, dir, wait, registry, notifier, sink)
	router := NewRouter(provider, dir, wait, registry, notifier)
	pipeline := stage.NewPipeline(provider, gen, contextstore.NewMemoryStore(), router)
	exec := NewPipelineExecutor(pipeline, registry, dir, notifier, sink)

	pool := queue.NewWorkerPool("pod-test", cfg.Queue, exec)
	require.NoError(t, pool.Start(context.Background()))
	t.Cleanup(pool.Stop)

	return &harness{
		cfg:        cfg,
		dir:        dir,
		wait:       wait,
		registry:   registry,
		sink:       sink,
		pool:       pool,
		router:     router,
		dispatcher: dispatcher,
		svc:        NewRequestService(pool, wait, dir, registry, dispatcher, notifier, sink),
	}
}

// saturateAgents commits assignments until every agent is at capacity.
func (h *harness) saturateAgents(t *testing.T) {
	t.Helper()
	for _, seed := range seedAgents() {
		for i := 0; i < seed.MaxConcurrentCases; i++ {
			token, err := h.dir.ClaimForAssignment(seed.AgentID)
			require.NoError(t, err)
			require.NoError(t, h.dir.CommitAssignment(token, "busy"))
		}
	}
}

// criticalRequest is a request the pipeline routes to a human.
func criticalRequest(id string) *models.Request {
	return &models.Request{
		RequestID: id,
		UserID:    "u-1",
		SessionID: "s-1",
		QueryText: "THIS IS RIDICULOUS I WANT A MANAGER NOW",
		FrustrationAssessment: &models.FrustrationAssessment{
			Score: 8.6,
			Level: models.FrustrationCritical,
			Trend: models.TrendStable,
		},
		QualityAssessment: &models.QualityAssessment{
			Verdict:   models.VerdictHumanIntervention,
			Reasoning: "critical_frustration",
		},
		WorkflowStatus: models.WorkflowInProgress,
	}
}
