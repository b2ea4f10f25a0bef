package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/marginal-labs/marginalia-cli/internal/core/domain"
	"github.com/marginal-labs/marginalia-cli/internal/core/ports/driven"
	"github.com/marginal-labs/marginalia-cli/internal/logger"
)

// IngestService runs the write path: fetch the raw export, normalise it
// into canonical records, embed the bodies and upsert them into the
// vector store.
type IngestService struct {
	source     driven.HighlightSource
	normalizer *Normalizer
	embedder   driven.EmbeddingService
	store      driven.VectorStore
	batchSize  int
}

// IngestSummary reports what one ingestion run accomplished.
type IngestSummary struct {
	// RunID identifies this run in logs.
	RunID string

	// Sources is the number of source entries fetched.
	Sources int

	// Records is the number of canonical records upserted.
	Records int

	// Partial is true when the fetch stopped early and the run
	// continued with accumulated partial results.
	Partial bool
}

// NewIngestService creates an ingest service.
func NewIngestService(
	source driven.HighlightSource,
	normalizer *Normalizer,
	embedder driven.EmbeddingService,
	store driven.VectorStore,
) *IngestService {
	return &IngestService{
		source:     source,
		normalizer: normalizer,
		embedder:   embedder,
		store:      store,
		batchSize:  64,
	}
}

// Run executes one full ingestion. Fetch failures after the first page
// degrade to partial results; embedding or storage failures abort the
// run because nothing durable would come out of continuing.
func (s *IngestService) Run(ctx context.Context) (IngestSummary, error) {
	runID := uuid.New().String()[:8]
	summary := IngestSummary{RunID: runID}

	logger.Section("Ingestion")
	logger.Info("Run %s: fetching highlight export", runID)

	sources, err := s.source.FetchAll(ctx)
	if err != nil {
		if len(sources) == 0 {
			return summary, fmt.Errorf("fetch export: %w", err)
		}
		// Partial results are acceptable and passed downstream.
		logger.Error("Run %s: fetch stopped early: %v (continuing with %d sources)", runID, err, len(sources))
		summary.Partial = true
	}
	summary.Sources = len(sources)
	if len(sources) == 0 {
		logger.Info("Run %s: no sources fetched, nothing to ingest", runID)
		return summary, nil
	}

	records := s.normalizer.Normalize(sources)
	summary.Records = len(records)
	if len(records) == 0 {
		logger.Info("Run %s: no records produced, skipping storage", runID)
		return summary, nil
	}

	if err := s.store.Open(ctx); err != nil {
		return summary, fmt.Errorf("open vector store: %w", err)
	}

	logger.Info("Run %s: embedding and upserting %d records", runID, len(records))
	if err := s.upsertAll(ctx, records); err != nil {
		return summary, err
	}

	if count, err := s.store.Count(ctx); err == nil {
		logger.Info("Run %s: collection now holds %d records", runID, count)
	}
	logger.Info("Run %s complete: %d sources, %d records", runID, summary.Sources, summary.Records)
	return summary, nil
}

// upsertAll embeds record bodies in batches and upserts each batch.
func (s *IngestService) upsertAll(ctx context.Context, records []domain.HighlightRecord) error {
	for start := 0; start < len(records); start += s.batchSize {
		end := start + s.batchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]

		texts := make([]string, len(batch))
		for i, rec := range batch {
			texts[i] = rec.Body
		}
		vectors, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed batch at %d: %w", start, err)
		}
		if err := s.store.Upsert(ctx, batch, vectors); err != nil {
			return fmt.Errorf("upsert batch at %d: %w", start, err)
		}
		logger.Debug("Upserted records %d..%d", start, end-1)
	}
	return nil
}
