package stage

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/codeready-toolchain/triago/pkg/config"
	"github.com/codeready-toolchain/triago/pkg/contextstore"
	"github.com/codeready-toolchain/triago/pkg/models"
)

// Context source names used in records and summaries.
const (
	SourceRecentInteractions = "recent_interactions"
	SourceUserProfile        = "user_profile"
	SourceSimilarCases       = "similar_cases"
	SourceKnowledgeBase      = "knowledge_base"
)

// RelevanceFunc scores a candidate record against the query text.
// Pluggable; the default is cosine similarity over token sets.
type RelevanceFunc func(queryText, recordText string) float64

// ContextManager aggregates multi-source context and emits the four
// audience-tailored summaries plus routing hints.
type ContextManager struct {
	cfg       *config.Config
	store     contextstore.Store
	relevance RelevanceFunc
	logger    *slog.Logger
}

// NewContextManager creates the stage bound to one config snapshot.
func NewContextManager(cfg *config.Config, store contextstore.Store) *ContextManager {
	return &ContextManager{
		cfg:       cfg,
		store:     store,
		relevance: tokenCosine,
		logger:    slog.Default().With("component", "context-manager"),
	}
}

// SetRelevance replaces the relevance scorer.
func (m *ContextManager) SetRelevance(fn RelevanceFunc) {
	m.relevance = fn
}

// Run sets req.ContextBundle. Retrieval failures and deadline expiry
// degrade to an empty bundle; the pipeline continues either way.
func (m *ContextManager) Run(ctx context.Context, req *models.Request) {
	if m.store == nil || ctx.Err() != nil {
		req.ContextBundle = &models.ContextBundle{}
		return
	}

	records := m.retrieve(ctx, req)
	if ctx.Err() != nil {
		req.ContextBundle = &models.ContextBundle{}
		req.Telemetry.RecordError("deadline_exceeded")
		m.logger.Warn("Context aggregation timed out, continuing with empty bundle",
			"request_id", req.RequestID)
		return
	}

	// Rank across sources and cap the total.
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Relevance > records[j].Relevance
	})
	if limit := m.cfg.Thresholds.ContextTotal; limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	bundle := &models.ContextBundle{
		Records:        records,
		RequiredSkills: m.skillHints(req, records),
		ComplexityHint: m.complexityHint(req, records),
	}
	bundle.Summaries = m.summarize(req, bundle)
	req.ContextBundle = bundle

	m.logger.Info("Context stage finished",
		"request_id", req.RequestID,
		"records", len(records),
		"required_skills", bundle.RequiredSkills,
		"complexity_hint", bundle.ComplexityHint)
}

// retrieve pulls candidates from every source, scores relevance, and
// keeps those at or above the relevance threshold. A failing source is
// skipped, not fatal.
func (m *ContextManager) retrieve(ctx context.Context, req *models.Request) []models.ContextRecord {
	perSource := m.cfg.Thresholds.ContextPerSource
	var out []models.ContextRecord

	collect := func(source string, recs []contextstore.Record, err error) {
		if err != nil {
			m.logger.Debug("Context source unavailable",
				"request_id", req.RequestID,
				"source", source,
				"error", err)
			return
		}
		for _, rec := range recs {
			rel := m.relevance(req.QueryText, rec.Text)
			if rel < m.cfg.Thresholds.ContextRelevance {
				continue
			}
			out = append(out, models.ContextRecord{
				Source:    source,
				ID:        rec.ID,
				Text:      rec.Text,
				Metadata:  rec.Metadata,
				Timestamp: rec.Timestamp,
				Relevance: rel,
			})
		}
	}

	recent, err := m.store.RecentInteractions(ctx, req.UserID, perSource)
	collect(SourceRecentInteractions, recent, err)

	profile, err := m.store.UserProfile(ctx, req.UserID)
	if profile != nil {
		// The profile is a single record and always relevant to its user.
		out = append(out, models.ContextRecord{
			Source:    SourceUserProfile,
			ID:        profile.ID,
			Text:      profile.Text,
			Metadata:  profile.Metadata,
			Timestamp: profile.Timestamp,
			Relevance: 1.0,
		})
	} else if err != nil {
		m.logger.Debug("User profile unavailable", "user_id", req.UserID, "error", err)
	}

	similar, err := m.store.SimilarCases(ctx, req.QueryText, perSource)
	collect(SourceSimilarCases, similar, err)

	kb, err := m.store.KnowledgeBaseMatch(ctx, req.QueryText, perSource)
	collect(SourceKnowledgeBase, kb, err)

	return out
}

// skillHints unions skill metadata from kept records with the matched
// automation task's category.
func (m *ContextManager) skillHints(req *models.Request, records []models.ContextRecord) []string {
	seen := make(map[string]bool)
	var skills []string
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			skills = append(skills, s)
		}
	}

	if req.AutomationResult != nil && req.AutomationResult.TaskID != "" {
		if task, err := m.cfg.TaskByID(req.AutomationResult.TaskID); err == nil {
			add(task.Category)
		}
	}
	for _, rec := range records {
		add(rec.Metadata["skill"])
	}
	sort.Strings(skills)
	return skills
}

// complexityHint prefers complexity metadata from similar cases and
// falls back to query length.
func (m *ContextManager) complexityHint(req *models.Request, records []models.ContextRecord) models.Complexity {
	votes := make(map[models.Complexity]int)
	for _, rec := range records {
		if c := models.Complexity(rec.Metadata["complexity"]); c.IsValid() {
			votes[c]++
		}
	}
	if len(votes) > 0 {
		best := models.ComplexityMedium
		bestVotes := -1
		for _, c := range []models.Complexity{models.ComplexityHigh, models.ComplexityMedium, models.ComplexityLow} {
			if votes[c] > bestVotes {
				best = c
				bestVotes = votes[c]
			}
		}
		return best
	}

	words := len(strings.Fields(req.QueryText))
	switch {
	case words < 12:
		return models.ComplexityLow
	case words < 40:
		return models.ComplexityMedium
	default:
		return models.ComplexityHigh
	}
}

// summarize produces the four audience-tailored digests with rule-based
// templates.
func (m *ContextManager) summarize(req *models.Request, bundle *models.ContextBundle) models.ContextSummaries {
	if len(bundle.Records) == 0 {
		return models.ContextSummaries{}
	}

	var forAI, forHuman, forQuality strings.Builder
	for _, rec := range bundle.Records {
		fmt.Fprintf(&forAI, "source=%s relevance=%.2f text=%s\n", rec.Source, rec.Relevance, rec.Text)
	}

	bySource := make(map[string]int)
	for _, rec := range bundle.Records {
		bySource[rec.Source]++
	}
	fmt.Fprintf(&forHuman, "Customer %s has %d related context items", req.UserID, len(bundle.Records))
	if n := bySource[SourceRecentInteractions]; n > 0 {
		fmt.Fprintf(&forHuman, ", including %d recent interactions", n)
	}
	if n := bySource[SourceSimilarCases]; n > 0 {
		fmt.Fprintf(&forHuman, " and %d similar past cases", n)
	}
	forHuman.WriteString(".")

	for _, rec := range bundle.Records {
		if score, ok := rec.Metadata[contextstore.FrustrationScoreKey]; ok {
			fmt.Fprintf(&forQuality, "prior_frustration_score=%s ", score)
		}
		if rec.Metadata["escalated"] == "true" {
			forQuality.WriteString("prior_escalation ")
		}
	}

	forRouting := fmt.Sprintf("required_skills=%s complexity=%s",
		strings.Join(bundle.RequiredSkills, ","), bundle.ComplexityHint)

	return models.ContextSummaries{
		ForAI:      strings.TrimSpace(forAI.String()),
		ForHuman:   forHuman.String(),
		ForQuality: strings.TrimSpace(forQuality.String()),
		ForRouting: forRouting,
	}
}

// tokenCosine is cosine similarity over unweighted token sets.
func tokenCosine(queryText, recordText string) float64 {
	a, b := tokenSet(queryText), tokenSet(recordText)
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for tok := range a {
		if b[tok] {
			shared++
		}
	}
	return float64(shared) / math.Sqrt(float64(len(a))*float64(len(b)))
}
