// Package contextstore defines the read-only context collaborator the
// pipeline consumes: prior interactions, user profiles, similar cases, and
// knowledge-base matches.
package contextstore

import (
	"context"
	"time"
)

// Record is one retrieved context item.
type Record struct {
	ID        string            `json:"id"`
	Text      string            `json:"text"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// FrustrationScoreKey is the metadata key under which prior interactions
// carry their recorded frustration score (used for trend analysis).
const FrustrationScoreKey = "frustration_score"

// Store is the read-only context collaborator interface.
type Store interface {
	RecentInteractions(ctx context.Context, userID string, limit int) ([]Record, error)
	UserProfile(ctx context.Context, userID string) (*Record, error)
	SimilarCases(ctx context.Context, queryText string, limit int) ([]Record, error)
	KnowledgeBaseMatch(ctx context.Context, queryText string, limit int) ([]Record, error)
}
