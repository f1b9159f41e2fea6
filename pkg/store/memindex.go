package store

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"sync"

	"github.com/stackrag/stackrag/internal/types"
)

type memCollection struct {
	embedModel string
	chunks     []string
	embeddings [][]float32
}

// MemIndex is an in-memory RetrievalIndex with the same semantics as PGIndex.
// Used in tests and for running without Postgres.
type MemIndex struct {
	embedder types.Embedder

	mu          sync.RWMutex
	collections map[string]*memCollection
}

func NewMemIndex(embedder types.Embedder) *MemIndex {
	return &MemIndex{
		embedder:    embedder,
		collections: make(map[string]*memCollection),
	}
}

func (m *MemIndex) Rebuild(ctx context.Context, key, embedModel string, chunks []string) error {
	if len(chunks) == 0 {
		m.mu.Lock()
		delete(m.collections, key)
		m.mu.Unlock()
		return nil
	}

	embeddings, err := m.embedder.Embed(ctx, embedModel, chunks)
	if err != nil {
		return fmt.Errorf("failed to embed chunks: %w", err)
	}
	if len(embeddings) != len(chunks) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(embeddings), len(chunks))
	}

	m.mu.Lock()
	m.collections[key] = &memCollection{
		embedModel: embedModel,
		chunks:     append([]string(nil), chunks...),
		embeddings: embeddings,
	}
	m.mu.Unlock()
	return nil
}

func (m *MemIndex) Query(ctx context.Context, key, embedModel, query string, topK int) ([]string, error) {
	if topK <= 0 {
		topK = 3
	}

	m.mu.RLock()
	coll, ok := m.collections[key]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	if embedModel != "" && embedModel != coll.embedModel {
		log.Printf("warning: collection %q built with model %q, queried with %q", key, coll.embedModel, embedModel)
	}

	embeddings, err := m.embedder.Embed(ctx, embedModel, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("embedder returned no vector for query")
	}
	qvec := embeddings[0]

	type scored struct {
		text  string
		score float64
	}
	ranked := make([]scored, len(coll.chunks))
	for i, chunk := range coll.chunks {
		ranked[i] = scored{text: chunk, score: cosineSimilarity(qvec, coll.embeddings[i])}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if topK > len(ranked) {
		topK = len(ranked)
	}
	results := make([]string, topK)
	for i := 0; i < topK; i++ {
		results[i] = ranked[i].text
	}
	return results, nil
}

func cosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

var _ types.RetrievalIndex = (*MemIndex)(nil)
