package routing

import (
	"strings"
	"time"

	"github.com/codeready-toolchain/triago/pkg/models"
)

// Raw-point constants for the skill match sub-score.
const (
	exactSkillPoints   = 15.0
	partialSkillPoints = 8.0
	specializationBonus = 12.0
	certificationBonus  = 5.0
	maxExperiencePoints = 10.0 // years_experience * 0.5, capped
)

// proficiencyPoints maps proficiency to its skill bonus.
func proficiencyPoints(p models.Proficiency) float64 {
	switch p {
	case models.ProficiencyExpert:
		return 10
	case models.ProficiencyAdvanced:
		return 7
	case models.ProficiencyIntermediate:
		return 4
	case models.ProficiencyBasic:
		return 1
	}
	return 0
}

// skillMatchScore accumulates raw skill points and normalizes by the
// theoretical maximum for the given requirements. An empty requirement
// list is neutral (0.5) rather than zero.
func skillMatchScore(agent *models.AgentSnapshot, required []string) float64 {
	if len(required) == 0 {
		return 0.5
	}

	raw := 0.0
	for _, req := range required {
		req = strings.ToLower(req)
		if prof, ok := agent.Skills[req]; ok {
			raw += exactSkillPoints + proficiencyPoints(prof)
			continue
		}
		for domain, prof := range agent.Skills {
			if strings.Contains(strings.ToLower(domain), req) || strings.Contains(req, strings.ToLower(domain)) {
				raw += partialSkillPoints + proficiencyPoints(prof)
				break
			}
		}
	}

	experience := agent.YearsExperience * 0.5
	if experience > maxExperiencePoints {
		experience = maxExperiencePoints
	}
	raw += experience

	for _, spec := range agent.Specializations {
		for _, req := range required {
			if strings.EqualFold(spec, req) {
				raw += specializationBonus
				goto specDone
			}
		}
	}
specDone:

	if agent.Certified {
		raw += certificationBonus
	}

	max := float64(len(required))*(exactSkillPoints+proficiencyPoints(models.ProficiencyExpert)) +
		maxExperiencePoints + specializationBonus + certificationBonus
	return clamp01(raw / max)
}

// availabilityScore reflects status, load, and time since last assignment.
func availabilityScore(agent *models.AgentSnapshot) float64 {
	raw := 0.0
	switch agent.Status {
	case models.AgentAvailable:
		raw += 20
	case models.AgentBusy:
		switch load := agent.LoadRatio(); {
		case load < 0.5:
			raw += 10
		case load < 0.8:
			raw += 5
		default:
			raw -= 5
		}
	case models.AgentBreak:
		raw -= 10
	default: // meeting, training, offline
		raw -= 50
	}

	raw -= 2 * float64(agent.CurrentWorkload)
	if agent.AtCapacity() {
		raw -= 15
	}

	if !agent.LastAssignmentAt.IsZero() {
		idle := time.Since(agent.LastAssignmentAt).Minutes() * 0.1
		if idle > 10 {
			idle = 10
		}
		raw += idle
	}

	// Raw range is [-80, +30]; map onto [0,1].
	return clamp01((raw + 80) / 110)
}

// performanceBaselineMinutes is the resolution-time baseline: minutes
// under it are rewarded, over it penalized.
const performanceBaselineMinutes = 30.0

// performanceScore blends satisfaction, resolution speed, escalation
// rate, and first-contact resolution.
func performanceScore(agent *models.AgentSnapshot) float64 {
	m := agent.Metrics

	resolution := performanceBaselineMinutes - m.AvgResolutionMinutes
	if resolution > 10 {
		resolution = 10
	}
	if resolution < -10 {
		resolution = -10
	}

	raw := 0.4*(m.CustomerSatisfactionAvg*2.5) +
		0.3*resolution +
		0.2*(-50*m.EscalationRate) +
		0.1*(20*m.FirstContactResolutionRate)

	// Raw range is [-13, +10]; map onto [0,1].
	return clamp01((raw + 13) / 23)
}

// wellbeingScore starts at 1.0 and subtracts burnout penalties.
func wellbeingScore(agent *models.AgentSnapshot) float64 {
	penalty := 0.0

	switch c := agent.ConsecutiveDifficultCases; {
	case c >= 4:
		penalty += 20
	case c == 3:
		penalty += 10
	case c == 2:
		penalty += 5
	case c == 1:
		penalty += 2
	}

	if !agent.LastDifficultCaseAt.IsZero() {
		since := time.Since(agent.LastDifficultCaseAt)
		switch {
		case since < time.Hour:
			penalty += 5
		case since < 2*time.Hour:
			penalty += 2
		case since >= 4*time.Hour:
			penalty -= 3
		}
	}

	penalty += agent.StressScore * 10

	if !agent.LastBreakAt.IsZero() && time.Since(agent.LastBreakAt) < 2*time.Hour {
		penalty -= 2
	}

	// Penalty points re-scaled so 30 points exhaust the score.
	return clamp01(1 - penalty/30)
}

// customerFactorsScore covers VIP handling, language, and timezone fit.
func customerFactorsScore(agent *models.AgentSnapshot, input *Input) float64 {
	score := 0.5
	if input.VIP && agent.VIPEligible {
		score += 0.25
	}
	if input.Language != "" {
		if prof, ok := agent.Languages[input.Language]; ok && prof.Conversational() {
			score += 0.15
		}
	}
	if input.Timezone != "" && strings.EqualFold(agent.Timezone, input.Timezone) {
		score += 0.10
	}
	return clamp01(score)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
