package config

import (
	"fmt"
	"math"

	"github.com/codeready-toolchain/triago/pkg/models"
)

// weightSumTolerance allows for float rounding in user-authored tables.
const weightSumTolerance = 1e-6

// ConfigValidator validates configuration comprehensively with clear
// error messages.
type ConfigValidator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration.
func NewValidator(cfg *Config) *ConfigValidator {
	return &ConfigValidator{cfg: cfg}
}

// ValidateAll performs comprehensive validation (fail-fast, stops at the
// first error).
func (v *ConfigValidator) ValidateAll() error {
	if err := v.validateThresholds(); err != nil {
		return fmt.Errorf("threshold validation failed: %w", err)
	}
	if err := v.validateRouting(); err != nil {
		return fmt.Errorf("routing validation failed: %w", err)
	}
	if err := v.validateQuality(); err != nil {
		return fmt.Errorf("quality validation failed: %w", err)
	}
	if err := v.validateFrustration(); err != nil {
		return fmt.Errorf("frustration validation failed: %w", err)
	}
	if err := v.validateAutomation(); err != nil {
		return fmt.Errorf("automation validation failed: %w", err)
	}
	if err := v.validateAgents(); err != nil {
		return fmt.Errorf("agent validation failed: %w", err)
	}
	if err := v.validateQueue(); err != nil {
		return fmt.Errorf("queue validation failed: %w", err)
	}
	if err := v.validateExport(); err != nil {
		return fmt.Errorf("export validation failed: %w", err)
	}
	return nil
}

func (v *ConfigValidator) validateThresholds() error {
	t := v.cfg.Thresholds
	if t.QualityAdequate < 0 || t.QualityAdequate > 10 {
		return NewValidationError("thresholds", "quality_adequate", "", fmt.Errorf("must be in [0,10], got %v", t.QualityAdequate))
	}
	if t.QualityAdjust < 0 || t.QualityAdjust > t.QualityAdequate {
		return NewValidationError("thresholds", "quality_adjust", "", fmt.Errorf("must be in [0, quality_adequate], got %v", t.QualityAdjust))
	}
	if t.QualityMaxAdjust < 0 {
		return NewValidationError("thresholds", "quality_max_adjust", "", fmt.Errorf("must be >= 0"))
	}
	if t.ContextRelevance < 0 || t.ContextRelevance > 1 {
		return NewValidationError("thresholds", "context_relevance", "", fmt.Errorf("must be in [0,1], got %v", t.ContextRelevance))
	}
	if t.ContextPerSource < 1 || t.ContextTotal < 1 {
		return NewValidationError("thresholds", "context_limits", "", fmt.Errorf("per-source and total limits must be >= 1"))
	}
	if t.StressBreak <= 0 || t.StressBreak > 1 {
		return NewValidationError("thresholds", "stress_break", "", fmt.Errorf("must be in (0,1], got %v", t.StressBreak))
	}
	if t.QueueOverflow < 1 {
		return NewValidationError("thresholds", "queue_overflow", "", fmt.Errorf("must be >= 1"))
	}
	if t.ReselectAttempts < 1 {
		return NewValidationError("thresholds", "reselect_attempts", "", fmt.Errorf("must be >= 1"))
	}
	if t.StressTickPeriod <= 0 {
		return NewValidationError("thresholds", "stress_tick_period", "", fmt.Errorf("must be positive"))
	}
	return nil
}

func (v *ConfigValidator) validateRouting() error {
	if err := validateWeightTable("routing", v.cfg.Routing.Weights); err != nil {
		return err
	}
	if v.cfg.Routing.FallbackRank < 0 {
		return NewValidationError("routing", "fallback_rank", "", fmt.Errorf("must be >= 0"))
	}
	for _, exp := range v.cfg.Routing.Experiments {
		if exp.TrafficFraction < 0 || exp.TrafficFraction > 1 {
			return NewValidationError("experiment", exp.Name, "traffic_fraction", fmt.Errorf("must be in [0,1], got %v", exp.TrafficFraction))
		}
		if err := validateWeightTable("experiment:"+exp.Name, exp.Weights); err != nil {
			return err
		}
	}
	return nil
}

func validateWeightTable(component string, table map[models.Priority]CategoryWeights) error {
	for _, p := range []models.Priority{models.PriorityLow, models.PriorityMedium, models.PriorityHigh, models.PriorityCritical} {
		row, ok := table[p]
		if !ok {
			return NewValidationError(component, string(p), "weights", fmt.Errorf("missing weight row"))
		}
		if sum := row.Sum(); math.Abs(sum-1.0) > weightSumTolerance {
			return NewValidationError(component, string(p), "weights", fmt.Errorf("category weights must sum to 1.0, got %v", sum))
		}
	}
	for p := range table {
		if !p.IsValid() {
			return NewValidationError(component, string(p), "weights", fmt.Errorf("unknown priority"))
		}
	}
	return nil
}

func (v *ConfigValidator) validateQuality() error {
	w := v.cfg.Quality.DimensionWeights
	if w.Sum() <= 0 {
		return NewValidationError("quality", "dimension_weights", "", fmt.Errorf("weights must sum to a positive value"))
	}
	for name, val := range map[string]float64{
		"accuracy":     w.Accuracy,
		"completeness": w.Completeness,
		"clarity":      w.Clarity,
		"service":      w.Service,
		"contextual":   w.Contextual,
	} {
		if val < 0 {
			return NewValidationError("quality", "dimension_weights", name, fmt.Errorf("must be >= 0, got %v", val))
		}
	}
	return nil
}

func (v *ConfigValidator) validateFrustration() error {
	if len(v.cfg.Frustration.Lexicon) == 0 {
		return NewValidationError("frustration", "lexicon", "", fmt.Errorf("at least one lexicon category required"))
	}
	w := v.cfg.Frustration.Weights
	if w.Lexical < 0 || w.Behavioral < 0 || w.LLM < 0 {
		return NewValidationError("frustration", "weights", "", fmt.Errorf("signal weights must be >= 0"))
	}
	if w.Lexical+w.Behavioral <= 0 {
		return NewValidationError("frustration", "weights", "", fmt.Errorf("lexical + behavioral weight must be positive"))
	}
	return nil
}

func (v *ConfigValidator) validateAutomation() error {
	a := v.cfg.Automation
	if a.MatchThreshold < 0 || a.MatchThreshold > 1 {
		return NewValidationError("automation", "match_threshold", "", fmt.Errorf("must be in [0,1], got %v", a.MatchThreshold))
	}
	seen := map[string]bool{}
	for _, task := range a.Tasks {
		if task.TaskID == "" {
			return NewValidationError("task", "", "task_id", ErrMissingRequiredField)
		}
		if seen[task.TaskID] {
			return NewValidationError("task", task.TaskID, "task_id", fmt.Errorf("duplicate task id"))
		}
		seen[task.TaskID] = true
		if len(task.TriggerKeywords) == 0 {
			return NewValidationError("task", task.TaskID, "trigger_keywords", fmt.Errorf("at least one trigger keyword required"))
		}
		if task.SuccessRate < 0 || task.SuccessRate > 1 {
			return NewValidationError("task", task.TaskID, "success_rate", fmt.Errorf("must be in [0,1], got %v", task.SuccessRate))
		}
		if task.EscalationReason == "" && task.ResponseTemplate == "" {
			return NewValidationError("task", task.TaskID, "response_template", fmt.Errorf("non-escalating tasks need a response template"))
		}
	}
	return nil
}

func (v *ConfigValidator) validateAgents() error {
	seen := map[string]bool{}
	for _, agent := range v.cfg.Agents {
		if agent.AgentID == "" {
			return NewValidationError("agent", "", "agent_id", ErrMissingRequiredField)
		}
		if seen[agent.AgentID] {
			return NewValidationError("agent", agent.AgentID, "agent_id", fmt.Errorf("duplicate agent id"))
		}
		seen[agent.AgentID] = true
		if agent.SkillTier != "" && !agent.SkillTier.IsValid() {
			return NewValidationError("agent", agent.AgentID, "skill_tier", fmt.Errorf("invalid tier: %s", agent.SkillTier))
		}
		if agent.MaxConcurrentCases < 1 {
			return NewValidationError("agent", agent.AgentID, "max_concurrent_cases", fmt.Errorf("must be at least 1"))
		}
	}
	return nil
}

func (v *ConfigValidator) validateQueue() error {
	q := v.cfg.Queue
	if q.WorkerCount < 1 {
		return NewValidationError("queue", "worker_count", "", fmt.Errorf("must be at least 1"))
	}
	if q.SubmitBuffer < 1 {
		return NewValidationError("queue", "submit_buffer", "", fmt.Errorf("must be at least 1"))
	}
	return nil
}

func (v *ConfigValidator) validateExport() error {
	switch v.cfg.Export.Backend {
	case "log":
		return nil
	case "postgres":
		pg := v.cfg.Export.Postgres
		if pg == nil {
			return NewValidationError("export", "postgres", "postgres", fmt.Errorf("postgres backend requires connection settings"))
		}
		if pg.Host == "" || pg.Database == "" {
			return NewValidationError("export", "postgres", "host", fmt.Errorf("host and database are required"))
		}
		if pg.Port <= 0 || pg.Port > 65535 {
			return NewValidationError("export", "postgres", "port", fmt.Errorf("must be in (0,65535], got %d", pg.Port))
		}
		return nil
	default:
		return NewValidationError("export", v.cfg.Export.Backend, "backend", fmt.Errorf("must be 'log' or 'postgres'"))
	}
}
