package routing

import (
	"time"

	"github.com/codeready-toolchain/triago/pkg/config"
	"github.com/codeready-toolchain/triago/pkg/models"
)

// filterVerdict classifies why an agent was (not) eliminated.
type filterVerdict int

const (
	filterPass filterVerdict = iota
	filterOffline
	filterCapacity
	filterLanguage
	filterWellbeing
)

// hardFilter applies the elimination rules before any scoring.
func hardFilter(agent *models.AgentSnapshot, input *Input, th config.Thresholds) filterVerdict {
	if agent.Status == models.AgentOffline {
		return filterOffline
	}
	if agent.AtCapacity() {
		return filterCapacity
	}

	frustrated := input.FrustrationLevel.AtLeast(models.FrustrationHigh)
	if frustrated && agent.FrustrationTolerance == models.ToleranceLow {
		return filterWellbeing
	}
	if frustrated && !agent.LastDifficultCaseAt.IsZero() {
		cooldown := time.Duration(th.CooldownHours * float64(time.Hour))
		if time.Since(agent.LastDifficultCaseAt) < cooldown &&
			agent.ConsecutiveDifficultCases >= th.MaxConsecutiveDifficult {
			return filterWellbeing
		}
	}

	if input.Language != "" {
		prof, ok := agent.Languages[input.Language]
		if !ok || !prof.Conversational() {
			return filterLanguage
		}
	}

	return filterPass
}

// Eligible reports whether the agent passes the hard filters for the
// input. The queue dispatcher uses it to decide whether a waiting entry
// may be handed to a newly freed agent.
func Eligible(agent *models.AgentSnapshot, input *Input, th config.Thresholds) bool {
	return hardFilter(agent, input, th) == filterPass
}
