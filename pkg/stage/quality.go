package stage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/triago/pkg/config"
	"github.com/codeready-toolchain/triago/pkg/llm"
	"github.com/codeready-toolchain/triago/pkg/models"
)

const rewriteSystemInstructions = `You improve customer-service responses. ` +
	`Rewrite the draft to be more accurate, complete, clear, and empathetic. ` +
	`Preserve all factual content. Return only the rewritten response.`

// serviceMarkers raise the service dimension when present in a response.
var serviceMarkers = []string{"please", "sorry", "thank", "happy to", "glad to", "apologize"}

// DimensionScorer rates a response on the five quality dimensions.
// Pluggable so deployments can swap the rubric without touching the gate.
type DimensionScorer func(req *models.Request, text string) models.QualityDimensions

// QualityGate scores the chatbot response, optionally rewrites it, and
// classifies it ADEQUATE, NEEDS_ADJUSTMENT, or HUMAN_INTERVENTION.
type QualityGate struct {
	cfg    *config.Config
	gen    llm.Generator
	score  DimensionScorer
	logger *slog.Logger
}

// NewQualityGate creates the quality gate bound to one config snapshot.
func NewQualityGate(cfg *config.Config, gen llm.Generator) *QualityGate {
	return &QualityGate{
		cfg:    cfg,
		gen:    gen,
		score:  heuristicDimensions,
		logger: slog.Default().With("component", "quality-gate"),
	}
}

// SetScorer replaces the dimension rubric.
func (g *QualityGate) SetScorer(s DimensionScorer) {
	g.score = s
}

// Run sets req.QualityAssessment. A NEEDS_ADJUSTMENT verdict drives the
// rewrite loop; an accepted rewrite replaces the response text and
// appends a quality_rewrite message.
func (g *QualityGate) Run(ctx context.Context, req *models.Request) {
	if req.ChatbotOutput == nil || strings.TrimSpace(req.ChatbotOutput.Text) == "" {
		req.QualityAssessment = &models.QualityAssessment{
			Score:     0,
			Verdict:   models.VerdictHumanIntervention,
			Reasoning: "no_response",
		}
		g.logger.Warn("No chatbot response to assess, forcing human intervention",
			"request_id", req.RequestID)
		return
	}

	thresholds := g.cfg.Thresholds
	dims := g.score(req, req.ChatbotOutput.Text)
	assessment := &models.QualityAssessment{
		Score:      g.weightedScore(dims),
		Dimensions: dims,
	}

	for {
		switch {
		case assessment.Score >= thresholds.QualityAdequate:
			assessment.Verdict = models.VerdictAdequate
		case assessment.Score >= thresholds.QualityAdjust && assessment.AdjustAttempts < thresholds.QualityMaxAdjust:
			assessment.Verdict = models.VerdictNeedsAdjustment
		default:
			assessment.Verdict = models.VerdictHumanIntervention
			if assessment.Reasoning == "" {
				if assessment.Score >= thresholds.QualityAdjust {
					assessment.Reasoning = "adjust_attempts_exhausted"
				} else {
					assessment.Reasoning = fmt.Sprintf("score %.1f below adjustment threshold", assessment.Score)
				}
			}
		}

		if assessment.Verdict != models.VerdictNeedsAdjustment {
			break
		}

		improved := g.rewrite(ctx, req, assessment)
		if !improved {
			assessment.Verdict = models.VerdictHumanIntervention
			if assessment.Reasoning == "" {
				assessment.Reasoning = "rewrite_did_not_improve"
			}
			break
		}
	}

	req.QualityAssessment = assessment
	g.logger.Info("Quality gate finished",
		"request_id", req.RequestID,
		"score", assessment.Score,
		"verdict", assessment.Verdict,
		"adjust_attempts", assessment.AdjustAttempts)
}

// rewrite asks the collaborator for an improved response and accepts it
// only when the re-scored result improves by the configured margin.
// Returns false when the attempt is spent without an accepted improvement.
func (g *QualityGate) rewrite(ctx context.Context, req *models.Request, assessment *models.QualityAssessment) bool {
	assessment.AdjustAttempts++
	req.Telemetry.RecordRetry("quality_rewrite")

	rewriteCtx, cancel := context.WithTimeout(ctx, g.cfg.Pipeline.QualityRewriteTimeout.Duration())
	defer cancel()

	resp, err := g.gen.Generate(rewriteCtx, &llm.GenerateRequest{
		Nonce:              uuid.NewString(),
		Prompt:             g.rewritePrompt(req, assessment),
		SystemInstructions: rewriteSystemInstructions,
		MaxTokens:          g.cfg.Collaborators.LLM.MaxTokens,
	})
	if err != nil {
		req.Telemetry.RecordError("collaborator_terminal")
		assessment.Reasoning = "rewrite_failed"
		g.logger.Warn("Rewrite generation failed",
			"request_id", req.RequestID,
			"attempt", assessment.AdjustAttempts,
			"error", err)
		return false
	}
	req.Telemetry.AddTokens(resp.TokensUsed, g.cfg.Collaborators.LLM.CostPerToken)

	newDims := g.score(req, resp.Text)
	newScore := g.weightedScore(newDims)
	if newScore-assessment.Score < g.cfg.Thresholds.QualityMinImprovement {
		g.logger.Debug("Rewrite rejected, insufficient improvement",
			"request_id", req.RequestID,
			"old_score", assessment.Score,
			"new_score", newScore)
		return false
	}

	req.ChatbotOutput.Text = resp.Text
	req.ChatbotOutput.TokensUsed += resp.TokensUsed
	req.AppendMessage(models.RoleQualityRewrite, resp.Text)
	assessment.Score = newScore
	assessment.Dimensions = newDims
	assessment.Reasoning = ""
	return true
}

func (g *QualityGate) rewritePrompt(req *models.Request, assessment *models.QualityAssessment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Customer query:\n%s\n\n", req.QueryText)
	fmt.Fprintf(&b, "Draft response (scored %.1f/10):\n%s\n\n", assessment.Score, req.ChatbotOutput.Text)
	d := assessment.Dimensions
	fmt.Fprintf(&b, "Weak dimensions: accuracy %.1f, completeness %.1f, clarity %.1f, service %.1f, contextual %.1f.\n",
		d.Accuracy, d.Completeness, d.Clarity, d.Service, d.Contextual)
	b.WriteString("Rewrite the draft to address the weak dimensions.")
	return b.String()
}

// weightedScore combines the five dimensions by the configured weights.
func (g *QualityGate) weightedScore(d models.QualityDimensions) float64 {
	w := g.cfg.Quality.DimensionWeights
	total := w.Sum()
	if total <= 0 {
		return 0
	}
	sum := d.Accuracy*w.Accuracy +
		d.Completeness*w.Completeness +
		d.Clarity*w.Clarity +
		d.Service*w.Service +
		d.Contextual*w.Contextual
	return sum / total
}

// heuristicDimensions is the default rubric: deterministic signals from
// response shape, query coverage, and tone markers.
func heuristicDimensions(req *models.Request, text string) models.QualityDimensions {
	words := strings.Fields(text)
	lower := strings.ToLower(text)

	confidence := 0.5
	if req.ChatbotOutput != nil {
		confidence = req.ChatbotOutput.Confidence
	}
	accuracy := clampDim(4 + 6*confidence)

	queryTokens := tokenSet(req.QueryText)
	coverage := tokenCoverage(queryTokens, tokenSet(text))
	completeness := 2.0
	switch {
	case len(words) >= 40:
		completeness = 8.5
	case len(words) >= 15:
		completeness = 7
	case len(words) >= 5:
		completeness = 5
	}
	if coverage >= 0.5 {
		completeness += 1.5
	}
	completeness = clampDim(completeness)

	clarity := 9.0
	if avg := avgSentenceLength(text); avg > 25 {
		clarity -= 2
	}
	if capsRatio(text) > 0.5 {
		clarity -= 3
	}
	clarity = clampDim(clarity)

	service := 5.0
	for _, marker := range serviceMarkers {
		if strings.Contains(lower, marker) {
			service++
		}
	}
	if service > 9 {
		service = 9
	}
	for _, marker := range refusalMarkers {
		if strings.Contains(lower, marker) {
			service -= 3
			break
		}
	}
	service = clampDim(service)

	contextual := 5 + 3*coverage
	if req.ContextBundle != nil && req.ContextBundle.Summaries.ForQuality != "" {
		contextual++
	}
	contextual = clampDim(contextual)

	return models.QualityDimensions{
		Accuracy:     accuracy,
		Completeness: completeness,
		Clarity:      clarity,
		Service:      service,
		Contextual:   contextual,
	}
}

// tokenCoverage is the fraction of query tokens present in the response.
func tokenCoverage(query, response map[string]bool) float64 {
	if len(query) == 0 {
		return 0
	}
	hits := 0
	for tok := range query {
		if response[tok] {
			hits++
		}
	}
	return float64(hits) / float64(len(query))
}

func avgSentenceLength(text string) float64 {
	sentences := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
	if len(sentences) == 0 {
		return 0
	}
	words := 0
	for _, s := range sentences {
		words += len(strings.Fields(s))
	}
	return float64(words) / float64(len(sentences))
}

func capsRatio(text string) float64 {
	letters, upper := 0, 0
	for _, r := range text {
		switch {
		case r >= 'A' && r <= 'Z':
			letters++
			upper++
		case r >= 'a' && r <= 'z':
			letters++
		}
	}
	if letters == 0 {
		return 0
	}
	return float64(upper) / float64(letters)
}

func clampDim(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 10 {
		return 10
	}
	return v
}
