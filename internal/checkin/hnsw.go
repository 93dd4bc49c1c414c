package checkin

import (
	"sync"

	"github.com/coder/hnsw"

	"github.com/meetsign/meetsign/internal/embedding"
)

// HNSW graph parameters for 512-dim face embeddings.
const (
	hnswMaxNeighbors = 16

	// hnswCandidates is how many approximate neighbors we pull from the
	// graph before exact re-scoring. Large enough that the true best is
	// practically always in the candidate set for roster-sized graphs.
	hnswCandidates = 16
)

// hnswMatcher answers FindBest from an HNSW graph instead of a full
// scan. Candidates from the graph are re-scored with exact cosine
// similarity, so results (including tie-breaks) match the linear matcher.
type hnswMatcher struct {
	graph *hnsw.Graph[string]
	cache *TemplateCache
	mu    sync.RWMutex
}

// NewHNSWMatcher builds an HNSW index over the cache. The graph is
// read-only after construction.
func NewHNSWMatcher(cache *TemplateCache) Matcher {
	g := hnsw.NewGraph[string]()
	g.M = hnswMaxNeighbors
	g.Ml = 1.0 / float64(hnswMaxNeighbors)
	g.Distance = hnsw.CosineDistance

	for i := range cache.All() {
		t := &cache.All()[i]
		g.Add(hnsw.MakeNode(t.UserID, t.Embedding))
	}

	return &hnswMatcher{graph: g, cache: cache}
}

func (m *hnswMatcher) FindBest(query []float32) (string, float64) {
	if m.cache.Len() == 0 {
		return "", 0
	}

	k := hnswCandidates
	if m.cache.Len() < k {
		k = m.cache.Len()
	}

	m.mu.RLock()
	neighbors := m.graph.Search(query, k)
	m.mu.RUnlock()

	bestID := ""
	bestScore := 0.0
	for _, n := range neighbors {
		t := m.cache.Get(n.Key)
		if t == nil {
			continue
		}
		score := embedding.CosineSimilarity(query, t.Embedding)
		if bestID == "" || score > bestScore || (score == bestScore && n.Key < bestID) {
			bestID = n.Key
			bestScore = score
		}
	}
	return bestID, bestScore
}
