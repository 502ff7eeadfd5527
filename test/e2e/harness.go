// Package e2e exercises complete customer journeys through the real HTTP
// surface: submission, pipeline execution against a scripted generator
// backend, routing, queueing, completion, and cancellation.
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/triago/pkg/api"
	"github.com/codeready-toolchain/triago/pkg/config"
	"github.com/codeready-toolchain/triago/pkg/contextstore"
	"github.com/codeready-toolchain/triago/pkg/directory"
	"github.com/codeready-toolchain/triago/pkg/export"
	"github.com/codeready-toolchain/triago/pkg/llm"
	"github.com/codeready-toolchain/triago/pkg/queue"
	"github.com/codeready-toolchain/triago/pkg/services"
	"github.com/codeready-toolchain/triago/pkg/stage"
)

// defaultAgentsYAML seeds two agents: a tolerant senior generalist and a
// junior with low frustration tolerance and capacity one.
const defaultAgentsYAML = `
agents:
  - agent_id: agent-senior
    name: Dana
    skill_tier: senior
    frustration_tolerance: HIGH
    max_concurrent_cases: 2
    skills:
      billing: expert
      account: advanced
  - agent_id: agent-junior
    name: Robin
    skill_tier: junior
    frustration_tolerance: LOW
    max_concurrent_cases: 1
    skills:
      orders: intermediate
`

// TestApp boots a complete triago instance for e2e testing: real config
// loading, real worker pool, real HTTP API, and a generator adapter
// pointed at the scripted backend over real HTTP.
type TestApp struct {
	Config    *config.Config
	Manager   *config.Manager
	Directory *directory.Directory
	Wait      *queue.WaitQueue
	Registry  *services.Registry
	Pool      *queue.WorkerPool
	Requests  *services.RequestService
	Backend   *ScriptedBackend

	BaseURL string

	t *testing.T
}

type appOptions struct {
	yaml    string
	mutate  func(*config.Config)
	backend *ScriptedBackend
}

// TestAppOption configures the test app.
type TestAppOption func(*appOptions)

// WithYAML replaces the configuration file content. The content must
// include an agents section.
func WithYAML(yaml string) TestAppOption {
	return func(o *appOptions) { o.yaml = yaml }
}

// WithConfigMutation adjusts the loaded configuration before the app is
// wired, for knobs YAML cannot express conveniently.
func WithConfigMutation(f func(*config.Config)) TestAppOption {
	return func(o *appOptions) { o.mutate = f }
}

// WithBackend injects a pre-scripted generator backend.
func WithBackend(b *ScriptedBackend) TestAppOption {
	return func(o *appOptions) { o.backend = b }
}

// NewTestApp boots the full stack. Everything is torn down via t.Cleanup.
func NewTestApp(t *testing.T, opts ...TestAppOption) *TestApp {
	t.Helper()

	o := &appOptions{yaml: defaultAgentsYAML}
	for _, opt := range opts {
		opt(o)
	}

	backend := o.backend
	if backend == nil {
		backend = NewScriptedBackend()
	}
	t.Cleanup(backend.Close)

	configDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(configDir, config.ConfigFileName), []byte(o.yaml), 0o644))

	ctx := context.Background()
	cfg, err := config.Initialize(ctx, configDir)
	require.NoError(t, err)

	// Point the generator adapter at the scripted backend and keep the
	// call policy snappy for tests.
	cfg.Collaborators.LLM.BaseURL = backend.URL()
	cfg.Collaborators.LLM.MaxRetries = 0
	cfg.Collaborators.LLM.CallTimeout = config.Duration(5 * time.Second)
	cfg.Pipeline.RoutingTimeout = config.Duration(time.Second)
	cfg.Queue.WorkerCount = 2
	if o.mutate != nil {
		o.mutate(cfg)
	}

	manager := config.NewManager(configDir, cfg)
	dir := directory.New(cfg.Agents)
	generator := llm.NewClient(llm.NewHTTPGenerator(cfg.Collaborators.LLM), cfg.Collaborators.LLM)
	store := contextstore.NewMemoryStore()
	wait := queue.NewWaitQueue()
	registry := services.NewRegistry()
	sink := export.NewLogSink()

	dispatcher := services.NewDispatcher(manager, dir, wait, registry, nil, sink)
	router := services.NewRouter(manager, dir, wait, registry, nil)
	pipeline := stage.NewPipeline(manager, generator, store, router)
	executor := services.NewPipelineExecutor(pipeline, registry, dir, nil, sink)

	pool := queue.NewWorkerPool("e2e", cfg.Queue, executor)
	require.NoError(t, pool.Start(ctx))
	t.Cleanup(pool.Stop)

	requests := services.NewRequestService(pool, wait, dir, registry, dispatcher, nil, sink)

	srv := httptest.NewServer(api.NewServer(requests, manager).Routes())
	t.Cleanup(srv.Close)

	return &TestApp{
		Config:    cfg,
		Manager:   manager,
		Directory: dir,
		Wait:      wait,
		Registry:  registry,
		Pool:      pool,
		Requests:  requests,
		Backend:   backend,
		BaseURL:   srv.URL,
		t:         t,
	}
}

// StatusView mirrors the status endpoint payload.
type StatusView struct {
	RequestID             string    `json:"request_id"`
	Status                string    `json:"status"`
	FinalResponse         string    `json:"final_response"`
	AssignedAgentID       string    `json:"assigned_agent_id"`
	QueuePosition         int       `json:"queue_position"`
	EstimatedAssignmentAt time.Time `json:"estimated_assignment_at"`
	Flags                 []string  `json:"flags"`
}

// Submit posts a request and requires a 201.
func (a *TestApp) Submit(t *testing.T, userID, query string) string {
	t.Helper()
	code, body := a.post(t, "/api/v1/requests", map[string]any{
		"user_id":    userID,
		"query_text": query,
	})
	require.Equal(t, http.StatusCreated, code, "submit failed: %s", body)

	var resp struct {
		RequestID string `json:"request_id"`
	}
	require.NoError(t, json.Unmarshal(body, &resp))
	require.NotEmpty(t, resp.RequestID)
	return resp.RequestID
}

// Status fetches the current status view.
func (a *TestApp) Status(t *testing.T, requestID string) StatusView {
	t.Helper()
	resp, err := http.Get(a.BaseURL + "/api/v1/requests/" + requestID)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var view StatusView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	return view
}

// AwaitStatus polls until the request reaches the wanted status.
func (a *TestApp) AwaitStatus(t *testing.T, requestID, want string) StatusView {
	t.Helper()
	var view StatusView
	require.Eventually(t, func() bool {
		view = a.Status(t, requestID)
		return view.Status == want
	}, 10*time.Second, 10*time.Millisecond, "request %s never reached %s", requestID, want)
	return view
}

// Cancel posts a cancellation and returns the status code.
func (a *TestApp) Cancel(t *testing.T, requestID string) int {
	t.Helper()
	code, _ := a.post(t, fmt.Sprintf("/api/v1/requests/%s/cancel", requestID), map[string]any{})
	return code
}

// Complete posts a human completion with the given rating.
func (a *TestApp) Complete(t *testing.T, requestID string, rating float64, escalated bool) int {
	t.Helper()
	code, _ := a.post(t, fmt.Sprintf("/api/v1/requests/%s/complete", requestID), map[string]any{
		"satisfaction_rating": rating,
		"escalated":           escalated,
	})
	return code
}

func (a *TestApp) post(t *testing.T, path string, body any) (int, []byte) {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(a.BaseURL+path, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	return resp.StatusCode, buf.Bytes()
}
