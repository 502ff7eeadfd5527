package models

import "time"

// AgentIdentity is the immutable part of a human agent's directory record.
type AgentIdentity struct {
	AgentID              string                 `json:"agent_id" yaml:"agent_id"`
	Name                 string                 `json:"name" yaml:"name"`
	SkillTier            SkillTier              `json:"skill_tier" yaml:"skill_tier"`
	Skills               map[string]Proficiency `json:"skills" yaml:"skills"`
	Specializations      []string               `json:"specializations,omitempty" yaml:"specializations"`
	Languages            map[string]Proficiency `json:"languages,omitempty" yaml:"languages"`
	FrustrationTolerance FrustrationTolerance   `json:"frustration_tolerance" yaml:"frustration_tolerance"`
	MaxConcurrentCases   int                    `json:"max_concurrent_cases" yaml:"max_concurrent_cases"`
	YearsExperience      float64                `json:"years_experience,omitempty" yaml:"years_experience"`
	Certified            bool                   `json:"certified,omitempty" yaml:"certified"`
	VIPEligible          bool                   `json:"vip_eligible,omitempty" yaml:"vip_eligible"`
	Timezone             string                 `json:"timezone,omitempty" yaml:"timezone"`
}

// RollingMetrics are EWMA-maintained performance aggregates per agent.
type RollingMetrics struct {
	CustomerSatisfactionAvg    float64 `json:"customer_satisfaction_avg"`
	AvgResolutionMinutes       float64 `json:"avg_resolution_minutes"`
	EscalationRate             float64 `json:"escalation_rate"`
	FirstContactResolutionRate float64 `json:"first_contact_resolution_rate"`
}

// AgentSnapshot is a consistent point-in-time view of one agent's identity
// and real-time state, as handed to the routing scorer. Snapshots are
// consistent per agent but not across agents; hard filters are re-checked
// at assignment commit.
type AgentSnapshot struct {
	AgentIdentity

	Status                    AgentStatus    `json:"status"`
	StatusSince               time.Time      `json:"status_since"`
	CurrentWorkload           int            `json:"current_workload"`
	ConsecutiveDifficultCases int            `json:"consecutive_difficult_cases"`
	LastDifficultCaseAt       time.Time      `json:"last_difficult_case_at,omitzero"`
	LastBreakAt               time.Time      `json:"last_break_at,omitzero"`
	LastAssignmentAt          time.Time      `json:"last_assignment_at,omitzero"`
	Metrics                   RollingMetrics `json:"rolling_metrics"`
	StressScore               float64        `json:"stress_score"`
}

// LoadRatio is current workload as a fraction of capacity.
func (s *AgentSnapshot) LoadRatio() float64 {
	if s.MaxConcurrentCases <= 0 {
		return 1.0
	}
	return float64(s.CurrentWorkload) / float64(s.MaxConcurrentCases)
}

// AtCapacity reports whether the agent cannot take another case.
func (s *AgentSnapshot) AtCapacity() bool {
	return s.CurrentWorkload >= s.MaxConcurrentCases
}

// CompletionOutcome carries the rolling-metric inputs reported when a
// human assignment terminates.
type CompletionOutcome struct {
	RequestID          string            `json:"request_id"`
	Outcome            AssignmentOutcome `json:"outcome"`
	SatisfactionRating float64           `json:"satisfaction_rating"` // 1..5
	ResolutionMinutes  float64           `json:"resolution_minutes"`
	FirstContact       bool              `json:"first_contact"`
	Difficult          bool              `json:"difficult"` // frustration >= HIGH or complexity = high
}
