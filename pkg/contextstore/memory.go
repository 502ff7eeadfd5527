package contextstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for the simplest deployment and for
// tests. Writes happen outside the pipeline (the pipeline only reads).
type MemoryStore struct {
	mu           sync.RWMutex
	interactions map[string][]Record // user_id → newest last
	profiles     map[string]Record   // user_id → profile
	cases        []Record
	knowledge    []Record
}

// NewMemoryStore creates an empty in-memory context store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		interactions: make(map[string][]Record),
		profiles:     make(map[string]Record),
	}
}

// AddInteraction appends a prior interaction for a user.
func (s *MemoryStore) AddInteraction(userID string, rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	s.interactions[userID] = append(s.interactions[userID], rec)
}

// SetProfile stores a user profile record.
func (s *MemoryStore) SetProfile(userID string, rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[userID] = rec
}

// AddCase stores a resolved case for similarity lookup.
func (s *MemoryStore) AddCase(rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cases = append(s.cases, rec)
}

// AddKnowledge stores a knowledge-base article.
func (s *MemoryStore) AddKnowledge(rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.knowledge = append(s.knowledge, rec)
}

// RecentInteractions returns up to limit most recent interactions,
// newest first.
func (s *MemoryStore) RecentInteractions(_ context.Context, userID string, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.interactions[userID]
	out := make([]Record, len(all))
	copy(out, all)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UserProfile returns the stored profile or nil when unknown.
func (s *MemoryStore) UserProfile(_ context.Context, userID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rec, ok := s.profiles[userID]; ok {
		return &rec, nil
	}
	return nil, nil
}

// SimilarCases returns stored cases sharing tokens with the query.
func (s *MemoryStore) SimilarCases(_ context.Context, queryText string, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return matchByTokens(s.cases, queryText, limit), nil
}

// KnowledgeBaseMatch returns knowledge articles sharing tokens with the query.
func (s *MemoryStore) KnowledgeBaseMatch(_ context.Context, queryText string, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return matchByTokens(s.knowledge, queryText, limit), nil
}

func matchByTokens(records []Record, queryText string, limit int) []Record {
	tokens := strings.Fields(strings.ToLower(queryText))
	var out []Record
	for _, rec := range records {
		text := strings.ToLower(rec.Text)
		for _, tok := range tokens {
			if strings.Contains(text, tok) {
				out = append(out, rec)
				break
			}
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
