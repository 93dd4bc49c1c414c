package checkin

import (
	"github.com/meetsign/meetsign/internal/embedding"
)

// Matcher finds the best-matching attendee for a query embedding.
// Implementations must be deterministic and safe for concurrent use.
// FindBest returns an empty user ID and score 0 when the cache is empty.
type Matcher interface {
	FindBest(query []float32) (userID string, score float64)
}

// linearMatcher scans every cached template. Rosters are bounded by
// meeting size (tens to low thousands), so a full scan is fine; larger
// rosters get the HNSW matcher instead.
type linearMatcher struct {
	cache *TemplateCache
}

// NewLinearMatcher creates a matcher that scans the whole cache.
func NewLinearMatcher(cache *TemplateCache) Matcher {
	return &linearMatcher{cache: cache}
}

// FindBest returns the attendee with the highest cosine similarity to
// the query. The cache is sorted by user ID and only a strictly greater
// score replaces the current best, so equal scores resolve to the
// lexicographically smaller user ID.
func (m *linearMatcher) FindBest(query []float32) (string, float64) {
	bestID := ""
	bestScore := 0.0
	for i := range m.cache.All() {
		t := &m.cache.All()[i]
		score := embedding.CosineSimilarity(query, t.Embedding)
		if bestID == "" || score > bestScore {
			bestID = t.UserID
			bestScore = score
		}
	}
	return bestID, bestScore
}

// NewMatcher selects a matcher implementation for the cache. Small
// rosters use the linear scanner; rosters at or above hnswCutoff use the
// HNSW index. A cutoff of 0 disables HNSW.
func NewMatcher(cache *TemplateCache, hnswCutoff int) Matcher {
	if hnswCutoff > 0 && cache.Len() >= hnswCutoff {
		return NewHNSWMatcher(cache)
	}
	return NewLinearMatcher(cache)
}
