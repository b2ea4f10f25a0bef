package services

import (
	"context"
	"strings"
	"sync"

	"github.com/marginal-labs/marginalia-cli/internal/core/domain"
	"github.com/marginal-labs/marginalia-cli/internal/core/ports/driven"
	"github.com/marginal-labs/marginalia-cli/internal/logger"
)

// DefaultTopK is the retrieval breadth used when none is configured.
const DefaultTopK = 5

// apologyText is returned verbatim whenever query execution fails.
// Ask never surfaces an execution error to the caller.
const apologyText = "Sorry, I encountered an error while processing your query."

// PipelineConfig supplies the factories for the pipeline's expensive
// shared handles. Construction is deferred until the first query so
// that a process which never asks anything never pays for model or
// index loading.
type PipelineConfig struct {
	// TopK is the retrieval breadth. Defaults to DefaultTopK.
	TopK int

	// NewEmbedder constructs the embedding model handle.
	NewEmbedder func(ctx context.Context) (driven.EmbeddingService, error)

	// NewLLM constructs the language model client.
	NewLLM func(ctx context.Context) (driven.LLMService, error)

	// OpenStore opens the similarity index (load, not populate -
	// ingestion is a separate run).
	OpenStore func(ctx context.Context) (driven.VectorStore, error)
}

// QueryPipeline owns the lazily-initialized shared handles and executes
// retrieval-augmented queries against them.
//
// The check-then-initialize sequence is guarded by a mutex so that
// concurrent first callers perform setup exactly once and all observe
// the same completed handles. A failed setup attempt leaves the
// pipeline uninitialized; a later call retries cleanly. Once ready, the
// handles are read-only and concurrent queries may proceed in parallel,
// bounded only by the thread-safety of the underlying adapters.
type QueryPipeline struct {
	cfg PipelineConfig

	mu       sync.Mutex
	ready    bool
	embedder driven.EmbeddingService
	llm      driven.LLMService
	store    driven.VectorStore
}

// NewQueryPipeline creates an uninitialized pipeline. No expensive work
// happens until Initialize or the first Ask.
func NewQueryPipeline(cfg PipelineConfig) *QueryPipeline {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	return &QueryPipeline{cfg: cfg}
}

// Initialize constructs the shared handles if they do not exist yet.
// It is idempotent: subsequent calls on a ready pipeline are cheap
// no-ops. On failure it returns a *domain.SetupError and the pipeline
// stays uninitialized for retry.
func (p *QueryPipeline) Initialize(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.initLocked(ctx)
}

// initLocked performs the one-time setup. Caller must hold p.mu.
func (p *QueryPipeline) initLocked(ctx context.Context) error {
	if p.ready {
		logger.Debug("Query pipeline already initialized")
		return nil
	}

	logger.Section("Pipeline Setup")

	logger.Info("Initializing embedding model")
	embedder, err := p.cfg.NewEmbedder(ctx)
	if err != nil {
		return &domain.SetupError{Stage: "embedding model", Err: err}
	}

	logger.Info("Initializing LLM client")
	llm, err := p.cfg.NewLLM(ctx)
	if err != nil {
		closeQuietly(embedder)
		return &domain.SetupError{Stage: "llm client", Err: err}
	}

	logger.Info("Loading vector store")
	store, err := p.cfg.OpenStore(ctx)
	if err != nil {
		closeQuietly(embedder)
		closeQuietly(llm)
		return &domain.SetupError{Stage: "vector store", Err: err}
	}

	// Publish all handles only after every construction succeeded, so
	// a failed attempt leaves no partial state behind.
	p.embedder = embedder
	p.llm = llm
	p.store = store
	p.ready = true

	logger.Info("Query pipeline ready (top_k=%d)", p.cfg.TopK)
	return nil
}

// Ask answers a natural-language question against the stored
// highlights.
//
// The only error Ask can return is a *domain.SetupError from implicit
// initialization. Failures during retrieval or synthesis never
// propagate: they are logged and converted into a fixed user-safe
// answer with empty evidence.
func (p *QueryPipeline) Ask(ctx context.Context, question string) (domain.Answer, error) {
	logger.Info("Received query: %q", question)

	if err := p.Initialize(ctx); err != nil {
		return domain.Answer{}, err
	}

	answer, err := p.execute(ctx, question)
	if err != nil {
		logger.Error("Query execution failed: %v", err)
		return domain.Answer{Text: apologyText}, nil
	}
	return answer, nil
}

// execute runs retrieval then synthesis. Any error is absorbed by Ask.
func (p *QueryPipeline) execute(ctx context.Context, question string) (domain.Answer, error) {
	vector, err := p.embedder.Embed(ctx, question)
	if err != nil {
		return domain.Answer{}, err
	}

	hits, err := p.store.Query(ctx, vector, p.cfg.TopK)
	if err != nil {
		return domain.Answer{}, err
	}
	if len(hits) == 0 {
		// Degrade gracefully: synthesis still runs, the answer is just
		// ungrounded.
		logger.Warn("Retrieval returned no records for query")
	}
	logRetrieved(hits)

	prompt := buildPrompt(question, hits)
	raw, err := p.llm.Generate(ctx, prompt, driven.GenerateOptions{})
	if err != nil {
		return domain.Answer{}, err
	}

	evidence := make([]domain.Evidence, len(hits))
	for i, h := range hits {
		evidence[i] = domain.Evidence{RecordID: h.ID, Score: h.Score}
	}
	return domain.Answer{
		Text:     strings.TrimSpace(raw),
		Evidence: evidence,
	}, nil
}

// buildPrompt concatenates the retrieved bodies with the question.
func buildPrompt(question string, hits []driven.RetrievedRecord) string {
	var sb strings.Builder
	sb.WriteString("You are a helpful assistant. Answer the question using only the highlighted passages below.\n\n")
	sb.WriteString("Passages:\n")
	for _, h := range hits {
		sb.WriteString(passageHeader(h))
		sb.WriteString(h.Body)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Question: ")
	sb.WriteString(question)
	sb.WriteString("\n\nAnswer:")
	return sb.String()
}

// passageHeader labels a passage with its source title when available.
func passageHeader(h driven.RetrievedRecord) string {
	title, _ := h.Attributes["title"].(string)
	if title == "" {
		return "[" + h.ID + "]\n"
	}
	return "[" + h.ID + " - " + title + "]\n"
}

// logRetrieved records the evidence alongside the answer for debugging.
func logRetrieved(hits []driven.RetrievedRecord) {
	logger.Info("Retrieved %d records", len(hits))
	for i, h := range hits {
		snippet := h.Body
		if len(snippet) > 250 {
			snippet = snippet[:250] + "..."
		}
		logger.Debug("Record %d: id=%s score=%.4f text=%q", i+1, h.ID, h.Score, snippet)
	}
}

func closeQuietly(c interface{ Close() error }) {
	if c != nil {
		_ = c.Close()
	}
}

// Close releases the shared handles. The process normally runs the
// pipeline until exit, so this exists for tidy shutdown paths only.
func (p *QueryPipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.ready {
		return nil
	}
	closeQuietly(p.embedder)
	closeQuietly(p.llm)
	closeQuietly(p.store)
	p.embedder, p.llm, p.store = nil, nil, nil
	p.ready = false
	return nil
}
