package stage

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/triago/pkg/config"
	"github.com/codeready-toolchain/triago/pkg/contextstore"
	"github.com/codeready-toolchain/triago/pkg/llm"
	"github.com/codeready-toolchain/triago/pkg/models"
)

const frustrationSystemInstructions = `You rate customer frustration. ` +
	`Given a customer message, respond with a single number from 0 to 10 ` +
	`where 0 is calm and 10 is furious. Respond with the number only.`

// trendDelta is the score movement that classifies rising or falling.
const trendDelta = 1.0

// categoryWeights scale lexicon hits by how strong a frustration signal
// the category is. Unlisted categories weigh 1.0.
var categoryWeights = map[string]float64{
	"profanity":                   2.0,
	"capitalization":              1.5,
	"repetition":                  1.0,
	"threat_to_leave":             2.5,
	"explicit_escalation_request": 3.0,
}

// lexicalScale converts the weighted hit sum into the [0,10] range.
const lexicalScale = 1.5

// Frustration scores customer affect from lexical, behavioral, and model
// signals, and classifies the trend against recent interactions.
type Frustration struct {
	cfg    *config.Config
	gen    llm.Generator
	store  contextstore.Store
	logger *slog.Logger
}

// NewFrustration creates the analyzer bound to one config snapshot. The
// generator and store may be nil; the analyzer then works from lexical
// and behavioral signals alone.
func NewFrustration(cfg *config.Config, gen llm.Generator, store contextstore.Store) *Frustration {
	return &Frustration{
		cfg:    cfg,
		gen:    gen,
		store:  store,
		logger: slog.Default().With("component", "frustration"),
	}
}

// Run sets req.FrustrationAssessment. A stage deadline that expires
// before scoring finishes degrades to LOW with an unknown trend.
func (f *Frustration) Run(ctx context.Context, req *models.Request) {
	if ctx.Err() != nil {
		req.FrustrationAssessment = defaultAssessment()
		req.Telemetry.RecordError("deadline_exceeded")
		return
	}

	score, indicators := f.combinedScore(ctx, req)
	if ctx.Err() != nil {
		req.FrustrationAssessment = defaultAssessment()
		req.Telemetry.RecordError("deadline_exceeded")
		f.logger.Warn("Frustration scoring timed out, defaulting to LOW",
			"request_id", req.RequestID)
		return
	}

	req.FrustrationAssessment = &models.FrustrationAssessment{
		Level:      models.FrustrationLevelForScore(score),
		Score:      score,
		Trend:      f.trend(ctx, req.UserID, score),
		Indicators: indicators,
	}

	f.logger.Info("Frustration stage finished",
		"request_id", req.RequestID,
		"score", score,
		"level", req.FrustrationAssessment.Level,
		"trend", req.FrustrationAssessment.Trend)
}

// QuickScore computes the lexical and behavioral signals only, with the
// model weight redistributed. The pipeline uses it to pre-scan for
// critical affect before spending a generation call.
func (f *Frustration) QuickScore(queryText string) float64 {
	lex, _ := f.lexicalScore(queryText)
	beh, _ := f.behavioralScore(queryText)
	w := f.cfg.Frustration.Weights
	return blend(lex, beh, 0, w.Lexical, w.Behavioral, 0)
}

func (f *Frustration) combinedScore(ctx context.Context, req *models.Request) (float64, []string) {
	lex, lexHits := f.lexicalScore(req.QueryText)
	beh, behHits := f.behavioralScore(req.QueryText)
	indicators := append(lexHits, behHits...)

	w := f.cfg.Frustration.Weights
	llmScore, ok := f.llmScore(ctx, req)
	if !ok {
		// Model signal unavailable: redistribute its weight.
		return blend(lex, beh, 0, w.Lexical, w.Behavioral, 0), indicators
	}
	return blend(lex, beh, llmScore, w.Lexical, w.Behavioral, w.LLM), indicators
}

// lexicalScore counts lexicon hits weighted by category strength. The
// capitalization category matches case-sensitively; all others fold case.
func (f *Frustration) lexicalScore(queryText string) (float64, []string) {
	lower := strings.ToLower(queryText)
	var weighted float64
	var hits []string
	for category, phrases := range f.cfg.Frustration.Lexicon {
		haystack := lower
		caseSensitive := category == "capitalization"
		if caseSensitive {
			haystack = queryText
		}
		cw, ok := categoryWeights[category]
		if !ok {
			cw = 1.0
		}
		for _, phrase := range phrases {
			needle := phrase
			if !caseSensitive {
				needle = strings.ToLower(phrase)
			}
			if strings.Contains(haystack, needle) {
				weighted += cw
				hits = append(hits, category+":"+phrase)
			}
		}
	}
	return clampDim(weighted * lexicalScale), hits
}

// behavioralScore derives signals from text shape: ALL-CAPS ratio,
// exclamation density, and repeated questions.
func (f *Frustration) behavioralScore(queryText string) (float64, []string) {
	var score float64
	var hits []string

	words := strings.Fields(queryText)
	if ratio := capsRatio(queryText); ratio > 0.3 && len(words) >= 3 {
		score += ratio * 6
		if ratio > 0.7 {
			score += 2
		}
		hits = append(hits, fmt.Sprintf("all_caps_ratio:%.2f", ratio))
	}

	if len(words) > 0 {
		exclaims := strings.Count(queryText, "!")
		if density := float64(exclaims) / float64(len(words)); density > 0.1 {
			score += density * 10
			hits = append(hits, fmt.Sprintf("exclamation_density:%.2f", density))
		}
	}

	if questions := strings.Count(queryText, "?"); questions >= 3 {
		score += 2
		hits = append(hits, fmt.Sprintf("repeated_questions:%d", questions))
	}

	return clampDim(score), hits
}

// llmScore asks the generator for a numeric rating; any failure or
// unparseable answer drops the signal rather than the stage.
func (f *Frustration) llmScore(ctx context.Context, req *models.Request) (float64, bool) {
	if f.gen == nil {
		return 0, false
	}
	resp, err := f.gen.Generate(ctx, &llm.GenerateRequest{
		Nonce:              uuid.NewString(),
		Prompt:             req.QueryText,
		SystemInstructions: frustrationSystemInstructions,
		MaxTokens:          8,
	})
	if err != nil {
		f.logger.Debug("Frustration model signal unavailable",
			"request_id", req.RequestID,
			"error", err)
		return 0, false
	}
	req.Telemetry.AddTokens(resp.TokensUsed, f.cfg.Collaborators.LLM.CostPerToken)

	v, err := strconv.ParseFloat(strings.TrimSpace(resp.Text), 64)
	if err != nil {
		return 0, false
	}
	return clampDim(v), true
}

// trend compares the current score to the mean of the last W_window
// interactions that carry a recorded frustration score.
func (f *Frustration) trend(ctx context.Context, userID string, score float64) models.FrustrationTrend {
	if f.store == nil {
		return models.TrendStable
	}
	records, err := f.store.RecentInteractions(ctx, userID, f.cfg.Thresholds.FrustrationWindow)
	if err != nil {
		f.logger.Debug("Recent interactions unavailable for trend", "user_id", userID, "error", err)
		return models.TrendUnknown
	}

	var sum float64
	n := 0
	for _, rec := range records {
		raw, ok := rec.Metadata[contextstore.FrustrationScoreKey]
		if !ok {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return models.TrendStable
	}

	switch delta := score - sum/float64(n); {
	case delta >= trendDelta:
		return models.TrendRising
	case delta <= -trendDelta:
		return models.TrendFalling
	default:
		return models.TrendStable
	}
}

// blend combines signal scores by their weights, normalizing so missing
// signals redistribute proportionally.
func blend(lex, beh, llmScore, wLex, wBeh, wLLM float64) float64 {
	total := wLex + wBeh + wLLM
	if total <= 0 {
		return 0
	}
	return clampDim((lex*wLex + beh*wBeh + llmScore*wLLM) / total)
}

func defaultAssessment() *models.FrustrationAssessment {
	return &models.FrustrationAssessment{
		Level: models.FrustrationLow,
		Score: 0,
		Trend: models.TrendUnknown,
	}
}
