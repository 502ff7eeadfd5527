// Package models defines the shared data types driven through the
// orchestration pipeline: the Request state object, stage outputs,
// agent directory records, and queue entries.
package models

// WorkflowStatus is the lifecycle state of a Request.
type WorkflowStatus string

// Workflow status constants.
const (
	WorkflowInProgress WorkflowStatus = "in_progress"
	WorkflowDelivered  WorkflowStatus = "delivered"
	WorkflowQueued     WorkflowStatus = "queued"
	WorkflowAssigned   WorkflowStatus = "assigned"
	WorkflowAbandoned  WorkflowStatus = "abandoned"
	WorkflowFailed     WorkflowStatus = "failed"
)

// Terminal reports whether no further stage mutations are permitted.
func (s WorkflowStatus) Terminal() bool {
	switch s {
	case WorkflowDelivered, WorkflowAssigned, WorkflowAbandoned, WorkflowFailed:
		return true
	}
	return false
}

// MessageRole identifies the author of a conversation message.
type MessageRole string

// Message role constants.
const (
	RoleCustomer       MessageRole = "customer"
	RoleChatbot        MessageRole = "chatbot"
	RoleQualityRewrite MessageRole = "quality_rewrite"
	RoleHuman          MessageRole = "human"
	RoleSystem         MessageRole = "system"
)

// AutomationOutcome is the result class of the automation stage.
type AutomationOutcome string

// Automation outcome constants.
const (
	AutomationCompleted  AutomationOutcome = "completed"
	AutomationPartial    AutomationOutcome = "partial"
	AutomationUnresolved AutomationOutcome = "unresolved"
)

// QualityVerdict is the quality gate's classification of a chatbot response.
type QualityVerdict string

// Quality verdict constants.
const (
	VerdictAdequate          QualityVerdict = "ADEQUATE"
	VerdictNeedsAdjustment   QualityVerdict = "NEEDS_ADJUSTMENT"
	VerdictHumanIntervention QualityVerdict = "HUMAN_INTERVENTION"
)

// FrustrationLevel buckets the combined frustration score.
type FrustrationLevel string

// Frustration level constants, ordered LOW < MODERATE < HIGH < CRITICAL.
const (
	FrustrationLow      FrustrationLevel = "LOW"
	FrustrationModerate FrustrationLevel = "MODERATE"
	FrustrationHigh     FrustrationLevel = "HIGH"
	FrustrationCritical FrustrationLevel = "CRITICAL"
)

// AtLeast reports whether the level is at or above other in severity order.
func (l FrustrationLevel) AtLeast(other FrustrationLevel) bool {
	return l.rank() >= other.rank()
}

func (l FrustrationLevel) rank() int {
	switch l {
	case FrustrationModerate:
		return 1
	case FrustrationHigh:
		return 2
	case FrustrationCritical:
		return 3
	}
	return 0
}

// FrustrationLevelForScore buckets a combined score in [0,10].
func FrustrationLevelForScore(score float64) FrustrationLevel {
	switch {
	case score < 3:
		return FrustrationLow
	case score < 6:
		return FrustrationModerate
	case score < 8:
		return FrustrationHigh
	default:
		return FrustrationCritical
	}
}

// FrustrationTrend compares the current score with the recent history mean.
type FrustrationTrend string

// Frustration trend constants.
const (
	TrendStable  FrustrationTrend = "stable"
	TrendRising  FrustrationTrend = "rising"
	TrendFalling FrustrationTrend = "falling"
	TrendUnknown FrustrationTrend = "unknown"
)

// Priority is the request urgency bucket.
type Priority string

// Priority constants.
const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Rank maps a priority to its queue ordering rank (critical highest).
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 3
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	}
	return 0
}

// Escalate returns the next higher priority; critical stays put.
func (p Priority) Escalate() Priority {
	switch p {
	case PriorityLow:
		return PriorityMedium
	case PriorityMedium:
		return PriorityHigh
	case PriorityHigh:
		return PriorityCritical
	}
	return p
}

// IsValid reports whether p is a recognized priority.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Complexity is the estimated handling complexity of a request.
type Complexity string

// Complexity constants.
const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// IsValid reports whether c is a recognized complexity.
func (c Complexity) IsValid() bool {
	switch c {
	case ComplexityLow, ComplexityMedium, ComplexityHigh:
		return true
	}
	return false
}

// AgentStatus is a human agent's real-time availability state.
type AgentStatus string

// Agent status constants.
const (
	AgentAvailable AgentStatus = "available"
	AgentBusy      AgentStatus = "busy"
	AgentBreak     AgentStatus = "break"
	AgentMeeting   AgentStatus = "meeting"
	AgentTraining  AgentStatus = "training"
	AgentOffline   AgentStatus = "offline"
)

// IsValid reports whether s is a recognized agent status.
func (s AgentStatus) IsValid() bool {
	switch s {
	case AgentAvailable, AgentBusy, AgentBreak, AgentMeeting, AgentTraining, AgentOffline:
		return true
	}
	return false
}

// SkillTier is a human agent's seniority level.
type SkillTier string

// Skill tier constants.
const (
	TierJunior       SkillTier = "junior"
	TierIntermediate SkillTier = "intermediate"
	TierSenior       SkillTier = "senior"
	TierExpert       SkillTier = "expert"
)

// IsValid reports whether t is a recognized skill tier.
func (t SkillTier) IsValid() bool {
	switch t {
	case TierJunior, TierIntermediate, TierSenior, TierExpert:
		return true
	}
	return false
}

// Proficiency is a skill or language proficiency level.
type Proficiency string

// Proficiency constants.
const (
	ProficiencyBasic        Proficiency = "basic"
	ProficiencyIntermediate Proficiency = "intermediate"
	ProficiencyAdvanced     Proficiency = "advanced"
	ProficiencyExpert       Proficiency = "expert"
)

// Conversational reports whether the proficiency suffices for handling
// a conversation in the language (intermediate or better).
func (p Proficiency) Conversational() bool {
	switch p {
	case ProficiencyIntermediate, ProficiencyAdvanced, ProficiencyExpert:
		return true
	}
	return false
}

// FrustrationTolerance is an agent's configured tolerance for frustrated
// customers, used by the wellbeing hard filters.
type FrustrationTolerance string

// Frustration tolerance constants.
const (
	ToleranceLow    FrustrationTolerance = "low"
	ToleranceMedium FrustrationTolerance = "medium"
	ToleranceHigh   FrustrationTolerance = "high"
)

// QueueEntryStatus is the lifecycle state of a queue entry.
type QueueEntryStatus string

// Queue entry status constants.
const (
	EntryQueued    QueueEntryStatus = "queued"
	EntryAssigned  QueueEntryStatus = "assigned"
	EntryCompleted QueueEntryStatus = "completed"
	EntryCancelled QueueEntryStatus = "cancelled"
)

// AssignmentOutcome is how a human assignment ended.
type AssignmentOutcome string

// Assignment outcome constants.
const (
	OutcomeCompleted   AssignmentOutcome = "completed"
	OutcomeEscalated   AssignmentOutcome = "escalated"
	OutcomeTransferred AssignmentOutcome = "transferred"
	OutcomeCancelled   AssignmentOutcome = "cancelled"
)
