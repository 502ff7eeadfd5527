package stage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/triago/pkg/contextstore"
	"github.com/codeready-toolchain/triago/pkg/llm"
	"github.com/codeready-toolchain/triago/pkg/models"
)

func TestFrustrationCriticalFromAllCapsEscalation(t *testing.T) {
	fr := NewFrustration(testConfig(t), nil, nil)
	req := &models.Request{RequestID: "r1", UserID: "u3", QueryText: "THIS IS RIDICULOUS I WANT A MANAGER NOW"}

	fr.Run(context.Background(), req)

	require.NotNil(t, req.FrustrationAssessment)
	assert.GreaterOrEqual(t, req.FrustrationAssessment.Score, 8.0)
	assert.Equal(t, models.FrustrationCritical, req.FrustrationAssessment.Level)
	assert.NotEmpty(t, req.FrustrationAssessment.Indicators)
}

func TestFrustrationLowForCalmQuery(t *testing.T) {
	fr := NewFrustration(testConfig(t), nil, nil)
	req := &models.Request{RequestID: "r1", UserID: "u1", QueryText: "How do I reset my password?"}

	fr.Run(context.Background(), req)

	require.NotNil(t, req.FrustrationAssessment)
	assert.Equal(t, models.FrustrationLow, req.FrustrationAssessment.Level)
	assert.Less(t, req.FrustrationAssessment.Score, 3.0)
}

func TestFrustrationLLMSignalBlended(t *testing.T) {
	gen := llm.GeneratorFunc(func(_ context.Context, _ *llm.GenerateRequest) (*llm.GenerateResponse, error) {
		return &llm.GenerateResponse{Text: "9", TokensUsed: 1}, nil
	})
	fr := NewFrustration(testConfig(t), gen, nil)
	req := &models.Request{RequestID: "r1", UserID: "u1", QueryText: "still not working, this is getting unacceptable"}

	fr.Run(context.Background(), req)

	require.NotNil(t, req.FrustrationAssessment)
	// With lexical and behavioral near zero, a model score of 9 at weight
	// 0.3 contributes 2.7 on its own.
	assert.GreaterOrEqual(t, req.FrustrationAssessment.Score, 2.7)
	assert.Equal(t, 1, req.Telemetry.TokensTotal)
}

func TestFrustrationLLMFailureRedistributesWeight(t *testing.T) {
	fr := NewFrustration(testConfig(t), failingGenerator(), nil)
	req := &models.Request{RequestID: "r1", UserID: "u1", QueryText: "THIS IS RIDICULOUS I WANT A MANAGER NOW"}

	fr.Run(context.Background(), req)

	require.NotNil(t, req.FrustrationAssessment)
	// The lexical and behavioral signals alone still reach CRITICAL.
	assert.Equal(t, models.FrustrationCritical, req.FrustrationAssessment.Level)
}

func TestFrustrationUnparseableLLMAnswerDropped(t *testing.T) {
	gen := llm.GeneratorFunc(func(_ context.Context, _ *llm.GenerateRequest) (*llm.GenerateResponse, error) {
		return &llm.GenerateResponse{Text: "the customer seems upset", TokensUsed: 5}, nil
	})
	fr := NewFrustration(testConfig(t), gen, nil)
	req := &models.Request{RequestID: "r1", UserID: "u1", QueryText: "hello there"}

	fr.Run(context.Background(), req)

	require.NotNil(t, req.FrustrationAssessment)
	assert.Equal(t, models.FrustrationLow, req.FrustrationAssessment.Level)
}

func TestFrustrationTimeoutDefaultsLow(t *testing.T) {
	fr := NewFrustration(testConfig(t), nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := &models.Request{RequestID: "r1", UserID: "u1", QueryText: "THIS IS RIDICULOUS"}

	fr.Run(ctx, req)

	require.NotNil(t, req.FrustrationAssessment)
	assert.Equal(t, models.FrustrationLow, req.FrustrationAssessment.Level)
	assert.Equal(t, models.TrendUnknown, req.FrustrationAssessment.Trend)
	assert.Contains(t, req.Telemetry.Errors, "deadline_exceeded")
}

func TestFrustrationTrendRising(t *testing.T) {
	store := contextstore.NewMemoryStore()
	for i, score := range []float64{1.0, 1.5, 2.0} {
		store.AddInteraction("u1", contextstore.Record{
			ID:        fmt.Sprintf("i%d", i),
			Text:      "earlier conversation",
			Metadata:  map[string]string{contextstore.FrustrationScoreKey: fmt.Sprintf("%.1f", score)},
			Timestamp: time.Now().Add(-time.Duration(i) * time.Hour),
		})
	}
	fr := NewFrustration(testConfig(t), nil, store)
	req := &models.Request{RequestID: "r1", UserID: "u1", QueryText: "still not working AGAIN, this is unacceptable!!"}

	fr.Run(context.Background(), req)

	require.NotNil(t, req.FrustrationAssessment)
	assert.Equal(t, models.TrendRising, req.FrustrationAssessment.Trend)
}

func TestFrustrationTrendStableWithoutHistory(t *testing.T) {
	fr := NewFrustration(testConfig(t), nil, contextstore.NewMemoryStore())
	req := &models.Request{RequestID: "r1", UserID: "unknown", QueryText: "hello"}

	fr.Run(context.Background(), req)

	assert.Equal(t, models.TrendStable, req.FrustrationAssessment.Trend)
}

func TestFrustrationTrendUnknownOnStoreError(t *testing.T) {
	fr := NewFrustration(testConfig(t), nil, erroringStore{})
	req := &models.Request{RequestID: "r1", UserID: "u1", QueryText: "hello"}

	fr.Run(context.Background(), req)

	assert.Equal(t, models.TrendUnknown, req.FrustrationAssessment.Trend)
}

func TestQuickScoreMatchesCombinedWithoutLLM(t *testing.T) {
	cfg := testConfig(t)
	fr := NewFrustration(cfg, nil, nil)
	query := "THIS IS RIDICULOUS I WANT A MANAGER NOW"

	req := &models.Request{RequestID: "r1", UserID: "u1", QueryText: query}
	fr.Run(context.Background(), req)

	assert.InDelta(t, req.FrustrationAssessment.Score, fr.QuickScore(query), 1e-9)
}

func TestLexicalScoreCapitalizationIsCaseSensitive(t *testing.T) {
	fr := NewFrustration(testConfig(t), nil, nil)

	upper, upperHits := fr.lexicalScore("this is RIDICULOUS")
	lower, lowerHits := fr.lexicalScore("this is ridiculous")

	assert.Greater(t, upper, lower)
	assert.NotEmpty(t, upperHits)
	assert.Empty(t, lowerHits)
}

func TestBehavioralScoreSignals(t *testing.T) {
	fr := NewFrustration(testConfig(t), nil, nil)

	calm, _ := fr.behavioralScore("could you check my invoice when you have a moment")
	shouty, shoutyHits := fr.behavioralScore("WHY IS THIS STILL BROKEN!!! FIX IT!!!")

	assert.Less(t, calm, 1.0)
	assert.Greater(t, shouty, 5.0)
	assert.NotEmpty(t, shoutyHits)
}

// erroringStore fails every read.
type erroringStore struct{}

func (erroringStore) RecentInteractions(context.Context, string, int) ([]contextstore.Record, error) {
	return nil, errors.New("store down")
}

func (erroringStore) UserProfile(context.Context, string) (*contextstore.Record, error) {
	return nil, errors.New("store down")
}

func (erroringStore) SimilarCases(context.Context, string, int) ([]contextstore.Record, error) {
	return nil, errors.New("store down")
}

func (erroringStore) KnowledgeBaseMatch(context.Context, string, int) ([]contextstore.Record, error) {
	return nil, errors.New("store down")
}
