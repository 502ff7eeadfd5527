package models

import "time"

// Request is the per-submission state object driven through the pipeline.
// It is owned by exactly one stage at a time (single-writer); once the
// workflow status is terminal no further stage mutations are permitted.
type Request struct {
	RequestID string    `json:"request_id"`
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
	QueryText string    `json:"query_text"`

	// AdditionalContext carries caller-supplied hints (language, vip, ...).
	AdditionalContext map[string]string `json:"additional_context,omitempty"`

	Messages []Message `json:"messages"`

	AutomationResult      *AutomationResult      `json:"automation_result,omitempty"`
	ChatbotOutput         *ChatbotOutput         `json:"chatbot_output,omitempty"`
	QualityAssessment     *QualityAssessment     `json:"quality_assessment,omitempty"`
	FrustrationAssessment *FrustrationAssessment `json:"frustration_assessment,omitempty"`
	ContextBundle         *ContextBundle         `json:"context_bundle,omitempty"`
	RoutingDecision       *RoutingDecision       `json:"routing_decision,omitempty"`

	FinalResponse  string         `json:"final_response,omitempty"`
	WorkflowStatus WorkflowStatus `json:"workflow_status"`

	Telemetry Telemetry `json:"telemetry"`
}

// AppendMessage adds an entry to the ordered conversation log.
func (r *Request) AppendMessage(role MessageRole, text string) {
	r.Messages = append(r.Messages, Message{
		Role:      role,
		Text:      text,
		Timestamp: time.Now().UTC(),
	})
}

// NeedsHuman reports whether the request has been flagged for human handling.
func (r *Request) NeedsHuman() bool {
	if r.QualityAssessment != nil && r.QualityAssessment.Verdict == VerdictHumanIntervention {
		return true
	}
	if r.FrustrationAssessment != nil && r.FrustrationAssessment.Level == FrustrationCritical {
		return true
	}
	return false
}

// Message is one entry in the append-only conversation log.
type Message struct {
	Role      MessageRole `json:"role"`
	Text      string      `json:"text"`
	Timestamp time.Time   `json:"timestamp"`
}

// AutomationResult is the automation stage's output.
type AutomationResult struct {
	TaskID  string            `json:"task_id,omitempty"`
	Outcome AutomationOutcome `json:"outcome"`
	Payload string            `json:"payload,omitempty"`
	Reason  string            `json:"reason,omitempty"`
}

// ChatbotOutput is the chatbot stage's output.
type ChatbotOutput struct {
	Text          string        `json:"text"`
	SurfaceAffect SurfaceAffect `json:"surface_affect"`
	Confidence    float64       `json:"confidence"`
	TokensUsed    int           `json:"tokens_used"`
}

// SurfaceAffect holds lexicon-derived affect signals from the raw query.
type SurfaceAffect struct {
	UrgencySignals     []string `json:"urgency_signals,omitempty"`
	FrustrationSignals []string `json:"frustration_signals,omitempty"`
	PolitenessSignals  []string `json:"politeness_signals,omitempty"`
}

// QualityDimensions are the five per-dimension scores, each in [0,10].
type QualityDimensions struct {
	Accuracy     float64 `json:"accuracy"`
	Completeness float64 `json:"completeness"`
	Clarity      float64 `json:"clarity"`
	Service      float64 `json:"service"`
	Contextual   float64 `json:"contextual"`
}

// QualityAssessment is the quality gate's output.
type QualityAssessment struct {
	Score          float64           `json:"score"`
	Verdict        QualityVerdict    `json:"verdict"`
	Dimensions     QualityDimensions `json:"dimensions"`
	Reasoning      string            `json:"reasoning,omitempty"`
	AdjustAttempts int               `json:"adjust_attempts,omitempty"`
}

// FrustrationAssessment is the frustration analyzer's output.
type FrustrationAssessment struct {
	Level      FrustrationLevel `json:"level"`
	Score      float64          `json:"score"`
	Trend      FrustrationTrend `json:"trend"`
	Indicators []string         `json:"indicators,omitempty"`
}

// ContextRecord is one retrieved context item with its relevance score.
type ContextRecord struct {
	Source    string            `json:"source"`
	ID        string            `json:"id"`
	Text      string            `json:"text"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Relevance float64           `json:"relevance"`
}

// ContextSummaries are the four audience-tailored context digests.
type ContextSummaries struct {
	ForAI      string `json:"for_ai,omitempty"`
	ForHuman   string `json:"for_human,omitempty"`
	ForQuality string `json:"for_quality,omitempty"`
	ForRouting string `json:"for_routing,omitempty"`
}

// ContextBundle is the context manager's output.
type ContextBundle struct {
	Records        []ContextRecord  `json:"records,omitempty"`
	Summaries      ContextSummaries `json:"summaries"`
	RequiredSkills []string         `json:"required_skills,omitempty"`
	ComplexityHint Complexity       `json:"complexity_hint,omitempty"`
}

// RoutingDecision is the routing scorer's output.
type RoutingDecision struct {
	AssignedAgentID string   `json:"assigned_agent_id,omitempty"`
	Strategy        string   `json:"strategy"`
	RequiredSkills  []string `json:"required_skills,omitempty"`
	Priority        Priority `json:"priority"`
	Complexity      Complexity `json:"complexity"`
	MatchScore      float64  `json:"match_score,omitempty"`
	Confidence      float64  `json:"confidence,omitempty"`
	FallbackRank    []string `json:"fallback_rank,omitempty"`
	Degraded        bool     `json:"degraded,omitempty"`
	TimedOut        bool     `json:"timed_out,omitempty"`
}

// Telemetry accumulates per-request processing metrics. Token and cost
// counters are monotonically non-decreasing across stages.
type Telemetry struct {
	StageDurations map[string]time.Duration `json:"stage_durations,omitempty"`
	TokensTotal    int                      `json:"tokens_total"`
	CostTotal      float64                  `json:"cost_total"`
	Retries        map[string]int           `json:"retries,omitempty"`
	Errors         []string                 `json:"errors,omitempty"`
}

// RecordStage stores the duration of a completed stage.
func (t *Telemetry) RecordStage(stage string, d time.Duration) {
	if t.StageDurations == nil {
		t.StageDurations = map[string]time.Duration{}
	}
	t.StageDurations[stage] = d
}

// AddTokens increases the monotonic token counter and the derived cost.
func (t *Telemetry) AddTokens(tokens int, costPerToken float64) {
	if tokens <= 0 {
		return
	}
	t.TokensTotal += tokens
	t.CostTotal += float64(tokens) * costPerToken
}

// RecordRetry increments the retry counter for a stage.
func (t *Telemetry) RecordRetry(stage string) {
	if t.Retries == nil {
		t.Retries = map[string]int{}
	}
	t.Retries[stage]++
}

// RecordError appends a stage-local error marker.
func (t *Telemetry) RecordError(kind string) {
	t.Errors = append(t.Errors, kind)
}
