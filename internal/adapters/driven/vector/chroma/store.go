// Package chroma provides a VectorStore adapter backed by a Chroma
// server. The collection is addressed by name; records are keyed by
// their identity so re-ingestion overwrites instead of duplicating.
package chroma

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/marginal-labs/marginalia-cli/internal/core/domain"
	"github.com/marginal-labs/marginalia-cli/internal/core/ports/driven"
	"github.com/marginal-labs/marginalia-cli/internal/logger"
)

// Ensure Store implements the interface.
var _ driven.VectorStore = (*Store)(nil)

// Default configuration values.
const (
	DefaultBaseURL    = "http://localhost:8000"
	DefaultCollection = "readwise_highlights"
	DefaultTimeout    = 30 * time.Second
)

// Config holds configuration for the Chroma store.
type Config struct {
	// BaseURL is the Chroma server URL (default: http://localhost:8000).
	BaseURL string

	// Collection is the collection name (default: readwise_highlights).
	Collection string

	// Timeout is the per-request timeout (default: 30s).
	Timeout time.Duration
}

// Store is a REST client to a Chroma collection.
type Store struct {
	client       *http.Client
	baseURL      string
	collection   string
	collectionID string
}

// NewStore creates a Chroma store client. No network traffic happens
// until Open.
func NewStore(cfg Config) *Store {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Store{
		client:     &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		collection: cfg.Collection,
	}
}

// collectionResponse is the create/get collection response shape.
type collectionResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Open resolves the named collection, creating it with cosine distance
// if it does not exist yet.
func (s *Store) Open(ctx context.Context) error {
	body := map[string]any{
		"name":          s.collection,
		"get_or_create": true,
		"metadata":      map[string]any{"hnsw:space": "cosine"},
	}

	var coll collectionResponse
	err := s.postJSON(ctx, s.baseURL+"/api/v1/collections", body, &coll)
	if err != nil {
		return fmt.Errorf("open collection %q: %w", s.collection, err)
	}
	if coll.ID == "" {
		return fmt.Errorf("open collection %q: server returned no id", s.collection)
	}

	s.collectionID = coll.ID
	logger.Debug("Chroma collection %q ready (id=%s)", s.collection, coll.ID)
	return nil
}

// Upsert stores records keyed by identity. Records and vectors
// correspond by index; re-upserting an id overwrites the stored record.
func (s *Store) Upsert(ctx context.Context, records []domain.HighlightRecord, vectors [][]float32) error {
	if s.collectionID == "" {
		return domain.ErrStoreNotOpen
	}
	if len(records) != len(vectors) {
		return fmt.Errorf("%w: %d records, %d vectors", domain.ErrInvalidInput, len(records), len(vectors))
	}
	if len(records) == 0 {
		return nil
	}

	ids := make([]string, len(records))
	documents := make([]string, len(records))
	metadatas := make([]map[string]any, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
		documents[i] = rec.Body
		metadatas[i] = rec.Attributes
	}

	body := map[string]any{
		"ids":        ids,
		"embeddings": vectors,
		"documents":  documents,
		"metadatas":  metadatas,
	}
	url := fmt.Sprintf("%s/api/v1/collections/%s/upsert", s.baseURL, s.collectionID)
	if err := s.postJSON(ctx, url, body, nil); err != nil {
		return fmt.Errorf("upsert %d records: %w", len(records), err)
	}
	return nil
}

// queryResponse is the Chroma query response shape. All fields are
// batched per query vector; we always send exactly one.
type queryResponse struct {
	IDs       [][]string         `json:"ids"`
	Documents [][]string         `json:"documents"`
	Metadatas [][]map[string]any `json:"metadatas"`
	Distances [][]float64        `json:"distances"`
}

// Query returns the k nearest records, most similar first. Cosine
// distance from the server is converted to a similarity score.
func (s *Store) Query(ctx context.Context, vector []float32, k int) ([]driven.RetrievedRecord, error) {
	if s.collectionID == "" {
		return nil, domain.ErrStoreNotOpen
	}
	if k <= 0 {
		k = 1
	}

	body := map[string]any{
		"query_embeddings": [][]float32{vector},
		"n_results":        k,
		"include":          []string{"documents", "metadatas", "distances"},
	}
	url := fmt.Sprintf("%s/api/v1/collections/%s/query", s.baseURL, s.collectionID)

	var resp queryResponse
	if err := s.postJSON(ctx, url, body, &resp); err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	if len(resp.IDs) == 0 {
		return nil, nil
	}

	hits := make([]driven.RetrievedRecord, 0, len(resp.IDs[0]))
	for i, id := range resp.IDs[0] {
		hit := driven.RetrievedRecord{ID: id}
		if len(resp.Documents) > 0 && i < len(resp.Documents[0]) {
			hit.Body = resp.Documents[0][i]
		}
		if len(resp.Metadatas) > 0 && i < len(resp.Metadatas[0]) {
			hit.Attributes = resp.Metadatas[0][i]
		}
		if len(resp.Distances) > 0 && i < len(resp.Distances[0]) {
			hit.Score = 1 - resp.Distances[0][i]
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// Count reports how many records the collection holds.
func (s *Store) Count(ctx context.Context) (int, error) {
	if s.collectionID == "" {
		return 0, domain.ErrStoreNotOpen
	}

	url := fmt.Sprintf("%s/api/v1/collections/%s/count", s.baseURL, s.collectionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("chroma error (status %d)", resp.StatusCode)
	}

	var count int
	if err := json.NewDecoder(resp.Body).Decode(&count); err != nil {
		return 0, fmt.Errorf("decode count: %w", err)
	}
	return count, nil
}

// Close releases resources.
func (s *Store) Close() error {
	// HTTP client doesn't need explicit cleanup
	return nil
}

// postJSON posts a JSON body and decodes the response into out when
// out is non-nil.
func (s *Store) postJSON(ctx context.Context, url string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("chroma error (status %d): %s", resp.StatusCode, string(msg))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
