// Package routing selects a human agent for requests flagged for human
// handling, scoring candidates across five weighted categories and
// protecting agent wellbeing with hard elimination filters.
package routing

import (
	"errors"
	"hash/fnv"
	"math"
	"sort"

	"github.com/codeready-toolchain/triago/pkg/config"
	"github.com/codeready-toolchain/triago/pkg/models"
)

// ErrNoEligibleAgent indicates every candidate was eliminated by the
// hard filters; the request must be enqueued.
var ErrNoEligibleAgent = errors.New("no eligible agent")

// Strategy labels recorded on routing decisions.
const (
	StrategyBestMatch           = "best_match"
	StrategyWellbeingProtection = "wellbeing_protection"
	StrategyQueueDrain          = "queue_drain"
)

// Input describes one request to route.
type Input struct {
	RequestID        string
	RequiredSkills   []string
	Complexity       models.Complexity
	Priority         models.Priority
	FrustrationLevel models.FrustrationLevel
	Language         string // empty means English / no language constraint
	VIP              bool
	Timezone         string
}

// Candidate is one scored agent.
type Candidate struct {
	AgentID   string
	Composite float64
	SubScores SubScores
	Workload  int
}

// SubScores are the five category sub-scores, each normalized to [0,1].
type SubScores struct {
	SkillMatch         float64
	Availability       float64
	PerformanceHistory float64
	Wellbeing          float64
	CustomerFactors    float64
}

// Result is one completed scoring pass.
type Result struct {
	Best       Candidate
	Ranked     []Candidate // best first
	Confidence float64
	Strategy   string
}

// Scorer computes composite scores for a routing pass. The configuration
// is sampled once at pass start; a hot reload affects only later passes.
type Scorer struct {
	cfg *config.Config
}

// NewScorer creates a scorer bound to one sampled configuration.
func NewScorer(cfg *config.Config) *Scorer {
	return &Scorer{cfg: cfg}
}

// Select applies hard filters and weighted scoring to a directory
// snapshot and returns the ranked result.
func (s *Scorer) Select(input *Input, snapshot []models.AgentSnapshot) (*Result, error) {
	weights := s.weightsFor(input)

	wellbeingEliminated := false
	candidates := make([]Candidate, 0, len(snapshot))
	for i := range snapshot {
		agent := &snapshot[i]
		verdict := hardFilter(agent, input, s.cfg.Thresholds)
		switch verdict {
		case filterPass:
		case filterWellbeing:
			wellbeingEliminated = true
			continue
		default:
			continue
		}

		sub := SubScores{
			SkillMatch:         skillMatchScore(agent, input.RequiredSkills),
			Availability:       availabilityScore(agent),
			PerformanceHistory: performanceScore(agent),
			Wellbeing:          wellbeingScore(agent),
			CustomerFactors:    customerFactorsScore(agent, input),
		}
		composite := weights.SkillMatch*sub.SkillMatch +
			weights.Availability*sub.Availability +
			weights.PerformanceHistory*sub.PerformanceHistory +
			weights.Wellbeing*sub.Wellbeing +
			weights.CustomerFactors*sub.CustomerFactors

		candidates = append(candidates, Candidate{
			AgentID:   agent.AgentID,
			Composite: composite,
			SubScores: sub,
			Workload:  agent.CurrentWorkload,
		})
	}

	if len(candidates) == 0 {
		return nil, ErrNoEligibleAgent
	}

	sort.SliceStable(candidates, func(i, j int) bool { return less(candidates[j], candidates[i]) })

	confidence := 1.0
	if len(candidates) > 1 {
		confidence = math.Min(1.0, candidates[0].Composite-candidates[1].Composite+0.5)
	}

	strategy := StrategyBestMatch
	if wellbeingEliminated {
		strategy = StrategyWellbeingProtection
	}

	return &Result{
		Best:       candidates[0],
		Ranked:     candidates,
		Confidence: confidence,
		Strategy:   strategy,
	}, nil
}

// Fallbacks returns the agent ids ranked after the winner, capped at the
// configured depth.
func (s *Scorer) Fallbacks(res *Result) []string {
	k := s.cfg.Routing.FallbackRank
	if k <= 0 || len(res.Ranked) <= 1 {
		return nil
	}
	out := make([]string, 0, k)
	for _, c := range res.Ranked[1:] {
		if len(out) == k {
			break
		}
		out = append(out, c.AgentID)
	}
	return out
}

// less orders candidates ascending with the tie-breaks: composite,
// then skill match, then availability, then lower workload, then
// lexicographic agent id.
func less(a, b Candidate) bool {
	if a.Composite != b.Composite {
		return a.Composite < b.Composite
	}
	if a.SubScores.SkillMatch != b.SubScores.SkillMatch {
		return a.SubScores.SkillMatch < b.SubScores.SkillMatch
	}
	if a.SubScores.Availability != b.SubScores.Availability {
		return a.SubScores.Availability < b.SubScores.Availability
	}
	if a.Workload != b.Workload {
		return a.Workload > b.Workload
	}
	return a.AgentID > b.AgentID
}

// weightsFor picks the weight row for the pass: the priority row of the
// active table, or an experiment variant when the deterministic traffic
// hash lands inside its fraction.
func (s *Scorer) weightsFor(input *Input) config.CategoryWeights {
	table := s.cfg.Routing.Weights
	if frac := trafficFraction(input.RequestID); len(s.cfg.Routing.Experiments) > 0 {
		cut := 0.0
		for _, exp := range s.cfg.Routing.Experiments {
			cut += exp.TrafficFraction
			if frac < cut {
				table = exp.Weights
				break
			}
		}
	}
	return table[input.Priority]
}

// trafficFraction maps a request id deterministically into [0,1).
func trafficFraction(requestID string) float64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(requestID))
	return float64(h.Sum64()%10000) / 10000.0
}
