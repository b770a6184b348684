package knowledge

import (
	"context"
	"sort"
	"sync"

	"gonum.org/v1/gonum/floats"
)

// Document is a stored chunk of knowledge.
type Document struct {
	ID        string                 `json:"id"`
	Content   string                 `json:"content"`
	Embedding []float64              `json:"-"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// SearchResult is a document with its similarity to the query.
type SearchResult struct {
	Document
	Score float64 `json:"score"`
}

// VectorStore holds documents and finds the nearest ones to a query vector.
type VectorStore interface {
	// Upsert adds documents, replacing any with the same ID.
	Upsert(ctx context.Context, docs []Document) error

	// Search returns up to limit documents, most similar first.
	Search(ctx context.Context, query []float64, limit int) ([]SearchResult, error)

	// Count returns the number of stored documents.
	Count(ctx context.Context) (int, error)
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0
// when their lengths differ or either is all zeros.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(a, b) / (na * nb)
}

// rank scores candidates against query and keeps the best limit. Ties keep
// insertion order.
func rank(query []float64, docs []Document, limit int) []SearchResult {
	results := make([]SearchResult, len(docs))
	for i, d := range docs {
		results[i] = SearchResult{Document: d, Score: CosineSimilarity(query, d.Embedding)}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

// MemoryVectorStore is an in-process vector store using exhaustive cosine
// search. Good for tests and small knowledge bases.
type MemoryVectorStore struct {
	mu    sync.RWMutex
	order []string
	docs  map[string]Document
}

// NewMemoryVectorStore creates an empty store.
func NewMemoryVectorStore() *MemoryVectorStore {
	return &MemoryVectorStore{docs: make(map[string]Document)}
}

// Upsert implements VectorStore.
func (s *MemoryVectorStore) Upsert(ctx context.Context, docs []Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range docs {
		if _, ok := s.docs[d.ID]; !ok {
			s.order = append(s.order, d.ID)
		}
		s.docs[d.ID] = d
	}
	return nil
}

// Search implements VectorStore.
func (s *MemoryVectorStore) Search(ctx context.Context, query []float64, limit int) ([]SearchResult, error) {
	s.mu.RLock()
	docs := make([]Document, 0, len(s.order))
	for _, id := range s.order {
		docs = append(docs, s.docs[id])
	}
	s.mu.RUnlock()

	return rank(query, docs, limit), nil
}

// Count implements VectorStore.
func (s *MemoryVectorStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs), nil
}
