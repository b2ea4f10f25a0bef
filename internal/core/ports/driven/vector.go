package driven

import (
	"context"

	"github.com/marginal-labs/marginalia-cli/internal/core/domain"
)

// VectorStore persists canonical highlight records together with their
// embeddings and answers nearest-neighbour queries over them. The
// underlying index engine is opaque; exact ranking and tie-breaking are
// its concern.
type VectorStore interface {
	// Open connects to the backing collection, creating it if it does
	// not exist yet. The query path uses the same call to load an
	// already-populated collection.
	Open(ctx context.Context) error

	// Upsert stores records keyed by their identity. Records and
	// vectors correspond by index. Re-upserting an identity overwrites
	// the stored record (last write wins).
	Upsert(ctx context.Context, records []domain.HighlightRecord, vectors [][]float32) error

	// Query returns the k records nearest the given vector, most
	// similar first.
	Query(ctx context.Context, vector []float32, k int) ([]RetrievedRecord, error)

	// Count reports how many records the collection holds.
	Count(ctx context.Context) (int, error)

	// Close releases resources.
	Close() error
}

// RetrievedRecord is one similarity search hit.
type RetrievedRecord struct {
	// ID is the stored record identity.
	ID string

	// Body is the stored record body.
	Body string

	// Attributes is the stored flat metadata.
	Attributes map[string]any

	// Score is the similarity score, higher is closer.
	Score float64
}
