package config

import (
	"time"

	"github.com/codeready-toolchain/triago/pkg/models"
)

// builtinConfig returns the built-in defaults. User-provided YAML is merged
// on top; anything the user omits falls back to these values.
func builtinConfig() *TriagoYAMLConfig {
	return &TriagoYAMLConfig{
		Pipeline: &PipelineConfig{
			StageTimeout:          Duration(30 * time.Second),
			QualityRewriteTimeout: Duration(15 * time.Second),
			FrustrationTimeout:    Duration(10 * time.Second),
			RoutingTimeout:        Duration(2 * time.Second),
		},
		Thresholds: &Thresholds{
			QualityAdequate:         7.0,
			QualityAdjust:           5.0,
			QualityMaxAdjust:        2,
			QualityMinImprovement:   1.5,
			ContextRelevance:        0.3,
			ContextPerSource:        5,
			ContextTotal:            12,
			CooldownHours:           2,
			MaxConsecutiveDifficult: 3,
			StressBreak:             0.7,
			MinBreakMinutes:         10,
			QueueOverflow:           400,
			ReselectAttempts:        3,
			StressTickPeriod:        Duration(60 * time.Second),
			FrustrationWindow:       5,
		},
		Routing: &RoutingConfig{
			Weights: map[models.Priority]CategoryWeights{
				models.PriorityLow: {
					SkillMatch:         0.25,
					Availability:       0.35,
					PerformanceHistory: 0.15,
					Wellbeing:          0.20,
					CustomerFactors:    0.05,
				},
				models.PriorityMedium: {
					SkillMatch:         0.35,
					Availability:       0.25,
					PerformanceHistory: 0.20,
					Wellbeing:          0.15,
					CustomerFactors:    0.05,
				},
				models.PriorityHigh: {
					SkillMatch:         0.40,
					Availability:       0.23,
					PerformanceHistory: 0.22,
					Wellbeing:          0.10,
					CustomerFactors:    0.05,
				},
				models.PriorityCritical: {
					SkillMatch:         0.45,
					Availability:       0.20,
					PerformanceHistory: 0.25,
					Wellbeing:          0.05,
					CustomerFactors:    0.05,
				},
			},
			FallbackRank: 3,
		},
		Quality: &QualityConfig{
			DimensionWeights: DimensionWeights{
				Accuracy:     1,
				Completeness: 1,
				Clarity:      1,
				Service:      1,
				Contextual:   1,
			},
		},
		Frustration: &FrustrationConfig{
			Lexicon: map[string][]string{
				"profanity": {
					"damn", "hell", "crap", "bullshit", "wtf",
				},
				"capitalization": {
					"RIDICULOUS", "UNACCEPTABLE", "NOW", "TERRIBLE", "WORST",
				},
				"repetition": {
					"again", "still not", "once more", "how many times", "yet again",
				},
				"threat_to_leave": {
					"cancel my account", "switch to", "take my business", "never using",
					"close my account", "find another",
				},
				"explicit_escalation_request": {
					"speak to a manager", "want a manager", "talk to a human",
					"real person", "supervisor", "escalate",
				},
			},
			Weights: FrustrationSignalWeights{
				Lexical:    0.4,
				Behavioral: 0.3,
				LLM:        0.3,
			},
		},
		Automation: &AutomationConfig{
			MatchThreshold: 0.45,
			Tasks: []TaskConfig{
				{
					TaskID:          "reset_password",
					Category:        "account",
					TriggerKeywords: []string{"reset", "password", "forgot", "login"},
					SuccessRate:     0.92,
					MeanTimeSeconds: 30,
					ResponseTemplate: "I've sent a password reset link to the email " +
						"on file for your account. The link expires in 30 minutes.",
				},
				{
					TaskID:          "order_status",
					Category:        "orders",
					TriggerKeywords: []string{"order", "status", "where", "shipped", "tracking"},
					RequiredFields:  []string{"order_number"},
					SuccessRate:     0.88,
					MeanTimeSeconds: 20,
					ResponseTemplate: "Order {order_number} is on its way. You can follow " +
						"the shipment with the tracking link in your confirmation email.",
				},
				{
					TaskID:          "update_email",
					Category:        "account",
					TriggerKeywords: []string{"change", "update", "email", "address"},
					RequiredFields:  []string{"email"},
					SuccessRate:     0.85,
					MeanTimeSeconds: 25,
					ResponseTemplate: "I've updated your contact email to {email}. " +
						"A confirmation was sent to both addresses.",
				},
				{
					TaskID:           "billing_dispute",
					Category:         "billing",
					TriggerKeywords:  []string{"charge", "refund", "dispute", "billed", "overcharged"},
					SuccessRate:      0.40,
					MeanTimeSeconds:  90,
					ResponseTemplate: "",
					EscalationReason: "billing_disputes_require_review",
				},
			},
		},
		Collaborators: &CollaboratorsConfig{
			LLM: &LLMCollaboratorConfig{
				BaseURL:       "http://localhost:11434",
				APIKeyEnv:     "LLM_API_KEY",
				Model:         "support-chat",
				MaxTokens:     1024,
				CostPerToken:  0.000002,
				CallTimeout:   Duration(20 * time.Second),
				MaxRetries:    3,
				RateRPS:       5,
				RateBurst:     10,
				MaxConcurrent: 8,
			},
			ContextStore: &ContextCollaboratorConfig{
				RateRPS:       20,
				RateBurst:     40,
				MaxConcurrent: 16,
			},
		},
		Queue: &QueueConfig{
			WorkerCount:             4,
			SubmitBuffer:            256,
			GracefulShutdownTimeout: Duration(60 * time.Second),
		},
		Export: &ExportConfig{
			Backend: "log",
			Postgres: &PostgresConfig{
				Host:         "localhost",
				Port:         5432,
				User:         "triago",
				PasswordEnv:  "TRIAGO_DB_PASSWORD",
				Database:     "triago",
				SSLMode:      "disable",
				MaxOpenConns: 10,
				MaxIdleConns: 5,
			},
		},
		Notifications: &NotificationsConfig{
			Slack: &SlackConfig{Enabled: false},
		},
	}
}
