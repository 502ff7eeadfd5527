// Package config loads, merges, validates, and hot-swaps the orchestrator
// configuration: pipeline thresholds, routing weight tables, quality
// dimension weights, frustration lexicons, the automation task catalog,
// collaborator limits, and the agent directory seed.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/codeready-toolchain/triago/pkg/models"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "30s" as well as integer nanoseconds.
type Duration time.Duration

// Duration returns the standard library representation.
func (d Duration) Duration() time.Duration { return time.Duration(d) }

// String matches time.Duration formatting.
func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalYAML accepts either a duration string or nanoseconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var ns int64
	if err := value.Decode(&ns); err == nil {
		*d = Duration(ns)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML emits the string form.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// TriagoYAMLConfig represents the complete triago.yaml file structure.
type TriagoYAMLConfig struct {
	Pipeline      *PipelineConfig      `yaml:"pipeline"`
	Thresholds    *Thresholds          `yaml:"thresholds"`
	Routing       *RoutingConfig       `yaml:"routing"`
	Quality       *QualityConfig       `yaml:"quality"`
	Frustration   *FrustrationConfig   `yaml:"frustration"`
	Automation    *AutomationConfig    `yaml:"automation"`
	Collaborators *CollaboratorsConfig `yaml:"collaborators"`
	Queue         *QueueConfig         `yaml:"queue"`
	Export        *ExportConfig        `yaml:"export"`
	Notifications *NotificationsConfig `yaml:"notifications"`
	Agents        []models.AgentIdentity `yaml:"agents"`
}

// PipelineConfig holds per-stage deadlines.
type PipelineConfig struct {
	StageTimeout          Duration `yaml:"stage_timeout"`
	QualityRewriteTimeout Duration `yaml:"quality_rewrite_timeout"`
	FrustrationTimeout    Duration `yaml:"frustration_timeout"`
	RoutingTimeout        Duration `yaml:"routing_timeout"`
}

// Thresholds groups the scalar tuning knobs of the pipeline and queue.
type Thresholds struct {
	// Quality gate.
	QualityAdequate       float64 `yaml:"quality_adequate"`        // T_adequate
	QualityAdjust         float64 `yaml:"quality_adjust"`          // T_adjust
	QualityMaxAdjust      int     `yaml:"quality_max_adjust"`      // N_adjust
	QualityMinImprovement float64 `yaml:"quality_min_improvement"` // rewrite must improve by this much

	// Context manager.
	ContextRelevance float64 `yaml:"context_relevance"` // T_rel
	ContextPerSource int     `yaml:"context_per_source"` // L_s
	ContextTotal     int     `yaml:"context_total"`      // L_total

	// Wellbeing protection.
	CooldownHours          float64 `yaml:"cooldown_hours"`
	MaxConsecutiveDifficult int    `yaml:"max_consecutive_difficult"`
	StressBreak            float64 `yaml:"stress_break"` // stress_score above this forces a break
	MinBreakMinutes        int     `yaml:"min_break_minutes"`

	// Queue and routing.
	QueueOverflow     int           `yaml:"queue_overflow"`
	ReselectAttempts  int           `yaml:"reselect_attempts"`
	StressTickPeriod  Duration      `yaml:"stress_tick_period"`
	FrustrationWindow int           `yaml:"frustration_window"` // prior interactions for trend
}

// CategoryWeights is one row of the routing weight table. The five
// category weights must sum to 1.0.
type CategoryWeights struct {
	SkillMatch         float64 `yaml:"skill_match"`
	Availability       float64 `yaml:"availability"`
	PerformanceHistory float64 `yaml:"performance_history"`
	Wellbeing          float64 `yaml:"wellbeing"`
	CustomerFactors    float64 `yaml:"customer_factors"`
}

// Sum returns the total of all category weights.
func (w CategoryWeights) Sum() float64 {
	return w.SkillMatch + w.Availability + w.PerformanceHistory + w.Wellbeing + w.CustomerFactors
}

// RoutingConfig holds the per-priority weight tables and selection knobs.
type RoutingConfig struct {
	Weights      map[models.Priority]CategoryWeights `yaml:"weights"`
	FallbackRank int                                 `yaml:"fallback_rank"`

	// Experiments optionally swap the whole weight table for a traffic
	// fraction; variant assignment is deterministic in hash(request_id).
	Experiments []RoutingExperiment `yaml:"experiments,omitempty"`
}

// RoutingExperiment is an A/B variant of the routing weight table.
type RoutingExperiment struct {
	Name            string                              `yaml:"name"`
	TrafficFraction float64                             `yaml:"traffic_fraction"`
	Weights         map[models.Priority]CategoryWeights `yaml:"weights"`
}

// QualityConfig holds quality gate dimension weights.
type QualityConfig struct {
	DimensionWeights DimensionWeights `yaml:"dimension_weights"`
}

// DimensionWeights are relative weights of the five quality dimensions.
type DimensionWeights struct {
	Accuracy     float64 `yaml:"accuracy"`
	Completeness float64 `yaml:"completeness"`
	Clarity      float64 `yaml:"clarity"`
	Service      float64 `yaml:"service"`
	Contextual   float64 `yaml:"contextual"`
}

// Sum returns the total of all dimension weights.
func (w DimensionWeights) Sum() float64 {
	return w.Accuracy + w.Completeness + w.Clarity + w.Service + w.Contextual
}

// FrustrationConfig holds the frustration lexicon and signal weights.
// The lexicon is first-class configuration, never hard-coded in stage logic.
type FrustrationConfig struct {
	Lexicon map[string][]string      `yaml:"lexicon"` // category → phrases
	Weights FrustrationSignalWeights `yaml:"weights"`
}

// FrustrationSignalWeights blend the three frustration signal sources.
// When the LLM signal is unavailable its weight is redistributed
// proportionally across the other two.
type FrustrationSignalWeights struct {
	Lexical    float64 `yaml:"lexical"`
	Behavioral float64 `yaml:"behavioral"`
	LLM        float64 `yaml:"llm"`
}

// AutomationConfig holds the static task catalog and the match threshold.
type AutomationConfig struct {
	MatchThreshold float64      `yaml:"match_threshold"`
	Tasks          []TaskConfig `yaml:"tasks"`
}

// TaskConfig describes one entry of the automation task catalog.
type TaskConfig struct {
	TaskID           string   `yaml:"task_id"`
	Category         string   `yaml:"category"`
	TriggerKeywords  []string `yaml:"trigger_keywords"`
	RequiredFields   []string `yaml:"required_fields,omitempty"`
	SuccessRate      float64  `yaml:"success_rate"`
	MeanTimeSeconds  float64  `yaml:"mean_time_seconds,omitempty"`
	ResponseTemplate string   `yaml:"response_template"`
	EscalationReason string   `yaml:"escalation_reason,omitempty"`
}

// CollaboratorsConfig groups external collaborator settings.
type CollaboratorsConfig struct {
	LLM          *LLMCollaboratorConfig     `yaml:"llm"`
	ContextStore *ContextCollaboratorConfig `yaml:"context_store"`
}

// LLMCollaboratorConfig configures the generator collaborator adapter and
// its client-side limits.
type LLMCollaboratorConfig struct {
	BaseURL       string        `yaml:"base_url"`
	APIKeyEnv     string        `yaml:"api_key_env"`
	Model         string        `yaml:"model"`
	MaxTokens     int           `yaml:"max_tokens"`
	CostPerToken  float64       `yaml:"cost_per_token"`
	CallTimeout   Duration      `yaml:"call_timeout"`
	MaxRetries    int           `yaml:"max_retries"`
	RateRPS       float64       `yaml:"rate_rps"`
	RateBurst     int           `yaml:"rate_burst"`
	MaxConcurrent int           `yaml:"max_concurrent"`
}

// ContextCollaboratorConfig configures context store client-side limits.
type ContextCollaboratorConfig struct {
	RateRPS       float64 `yaml:"rate_rps"`
	RateBurst     int     `yaml:"rate_burst"`
	MaxConcurrent int     `yaml:"max_concurrent"`
}

// QueueConfig contains worker pool and shutdown configuration.
type QueueConfig struct {
	// WorkerCount is the number of pipeline worker goroutines.
	WorkerCount int `yaml:"worker_count"`

	// SubmitBuffer is the capacity of the pending-submission channel.
	SubmitBuffer int `yaml:"submit_buffer"`

	// GracefulShutdownTimeout is the max time to wait for in-flight
	// requests to complete during drain.
	GracefulShutdownTimeout Duration `yaml:"graceful_shutdown_timeout"`
}

// ExportConfig selects the telemetry export backend.
type ExportConfig struct {
	Backend  string          `yaml:"backend"` // "log" or "postgres"
	Postgres *PostgresConfig `yaml:"postgres,omitempty"`
}

// PostgresConfig holds connection settings for the Postgres export sink.
type PostgresConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	PasswordEnv  string `yaml:"password_env"`
	Database     string `yaml:"database"`
	SSLMode      string `yaml:"ssl_mode"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// NotificationsConfig groups outbound notification settings.
type NotificationsConfig struct {
	Slack *SlackConfig `yaml:"slack"`
}

// SlackConfig holds Slack notification settings.
type SlackConfig struct {
	Enabled  bool   `yaml:"enabled"`
	TokenEnv string `yaml:"token_env,omitempty"`
	Channel  string `yaml:"channel,omitempty"`
}
