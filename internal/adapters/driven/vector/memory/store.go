// Package memory provides an in-memory VectorStore for tests and for
// running without a Chroma server. Search is brute-force cosine
// similarity; nothing is persisted.
package memory

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/marginal-labs/marginalia-cli/internal/core/domain"
	"github.com/marginal-labs/marginalia-cli/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.VectorStore = (*Store)(nil)

// entry is one stored record with its vector.
type entry struct {
	record domain.HighlightRecord
	vector []float32
}

// Store is an in-memory vector store.
type Store struct {
	mu      sync.RWMutex
	open    bool
	entries map[string]entry
	order   []string
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{entries: make(map[string]entry)}
}

// Open marks the store ready. The in-memory collection always exists.
func (s *Store) Open(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = true
	return nil
}

// Upsert stores records keyed by identity; an existing id is
// overwritten in place, keeping its original insertion position.
func (s *Store) Upsert(_ context.Context, records []domain.HighlightRecord, vectors [][]float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return domain.ErrStoreNotOpen
	}
	if len(records) != len(vectors) {
		return domain.ErrInvalidInput
	}

	for i, rec := range records {
		if _, exists := s.entries[rec.ID]; !exists {
			s.order = append(s.order, rec.ID)
		}
		s.entries[rec.ID] = entry{record: rec, vector: vectors[i]}
	}
	return nil
}

// Query returns the k stored records nearest the vector by cosine
// similarity, most similar first.
func (s *Store) Query(_ context.Context, vector []float32, k int) ([]driven.RetrievedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.open {
		return nil, domain.ErrStoreNotOpen
	}

	hits := make([]driven.RetrievedRecord, 0, len(s.order))
	for _, id := range s.order {
		e := s.entries[id]
		hits = append(hits, driven.RetrievedRecord{
			ID:         e.record.ID,
			Body:       e.record.Body,
			Attributes: e.record.Attributes,
			Score:      cosine(vector, e.vector),
		})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })

	if k > 0 && k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

// Count reports how many records the store holds.
func (s *Store) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.open {
		return 0, domain.ErrStoreNotOpen
	}
	return len(s.entries), nil
}

// Close releases resources.
func (s *Store) Close() error {
	return nil
}

// cosine computes cosine similarity between two vectors. Mismatched or
// zero-magnitude vectors score zero.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
