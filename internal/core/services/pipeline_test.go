package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marginal-labs/marginalia-cli/internal/adapters/driven/vector/memory"
	"github.com/marginal-labs/marginalia-cli/internal/core/domain"
	"github.com/marginal-labs/marginalia-cli/internal/core/ports/driven"
)

// --- Mock implementations ---

// mockEmbedder implements driven.EmbeddingService for testing. The
// mutex keeps the counters safe under the concurrent pipeline tests.
type mockEmbedder struct {
	mu        sync.Mutex
	vector    []float32
	embedErr  error
	batchErr  error
	calls     int
	closed    bool
	batchSize []int
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	return m.vector, nil
}

func (m *mockEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	m.batchSize = append(m.batchSize, len(texts))
	m.mu.Unlock()
	if m.batchErr != nil {
		return nil, m.batchErr
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = m.vector
	}
	return out, nil
}

func (m *mockEmbedder) Dimensions() int    { return len(m.vector) }
func (m *mockEmbedder) ModelName() string  { return "mock-embed" }
func (m *mockEmbedder) Ping(_ context.Context) error { return nil }
func (m *mockEmbedder) Close() error {
	m.closed = true
	return nil
}

// mockLLM implements driven.LLMService for testing.
type mockLLM struct {
	mu          sync.Mutex
	response    string
	generateErr error
	prompts     []string
	closed      bool
}

func (m *mockLLM) Generate(_ context.Context, prompt string, _ driven.GenerateOptions) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()
	if m.generateErr != nil {
		return "", m.generateErr
	}
	return m.response, nil
}

func (m *mockLLM) ModelName() string  { return "mock-llm" }
func (m *mockLLM) Ping(_ context.Context) error { return nil }
func (m *mockLLM) Close() error {
	m.closed = true
	return nil
}

// mockStore implements driven.VectorStore for testing.
type mockStore struct {
	hits      []driven.RetrievedRecord
	openErr   error
	upsertErr error
	queryErr  error
	upserted  []domain.HighlightRecord
	opened    bool
	closed    bool
}

func (m *mockStore) Open(_ context.Context) error {
	if m.openErr != nil {
		return m.openErr
	}
	m.opened = true
	return nil
}

func (m *mockStore) Upsert(_ context.Context, records []domain.HighlightRecord, _ [][]float32) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.upserted = append(m.upserted, records...)
	return nil
}

func (m *mockStore) Query(_ context.Context, _ []float32, k int) ([]driven.RetrievedRecord, error) {
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	if k > len(m.hits) {
		return m.hits, nil
	}
	return m.hits[:k], nil
}

func (m *mockStore) Count(_ context.Context) (int, error) {
	return len(m.upserted), nil
}

func (m *mockStore) Close() error {
	m.closed = true
	return nil
}

// --- Builders ---

type pipelineFixture struct {
	embedder *mockEmbedder
	llm      *mockLLM
	store    *mockStore

	embedderErr error
	llmErr      error
	storeErr    error

	embedderBuilds int
	llmBuilds      int
	storeBuilds    int
}

func (f *pipelineFixture) config() PipelineConfig {
	return PipelineConfig{
		NewEmbedder: func(_ context.Context) (driven.EmbeddingService, error) {
			f.embedderBuilds++
			if f.embedderErr != nil {
				return nil, f.embedderErr
			}
			return f.embedder, nil
		},
		NewLLM: func(_ context.Context) (driven.LLMService, error) {
			f.llmBuilds++
			if f.llmErr != nil {
				return nil, f.llmErr
			}
			return f.llm, nil
		},
		OpenStore: func(_ context.Context) (driven.VectorStore, error) {
			f.storeBuilds++
			if f.storeErr != nil {
				return nil, f.storeErr
			}
			return f.store, nil
		},
	}
}

func newFixture() *pipelineFixture {
	return &pipelineFixture{
		embedder: &mockEmbedder{vector: []float32{0.1, 0.2, 0.3}},
		llm:      &mockLLM{response: "  a grounded answer  "},
		store: &mockStore{hits: []driven.RetrievedRecord{
			{ID: "readwise_highlight_1", Body: "passage one", Score: 0.91,
				Attributes: map[string]any{"title": "Book One"}},
			{ID: "readwise_highlight_2", Body: "passage two", Score: 0.74},
		}},
	}
}

// --- Tests ---

func TestAsk_ReturnsAnswerWithEvidence(t *testing.T) {
	f := newFixture()
	p := NewQueryPipeline(f.config())

	answer, err := p.Ask(context.Background(), "what is in book one?")
	require.NoError(t, err)

	assert.Equal(t, "a grounded answer", answer.Text)
	require.Len(t, answer.Evidence, 2)
	assert.Equal(t, "readwise_highlight_1", answer.Evidence[0].RecordID)
	assert.InDelta(t, 0.91, answer.Evidence[0].Score, 1e-9)

	require.Len(t, f.llm.prompts, 1)
	assert.Contains(t, f.llm.prompts[0], "passage one")
	assert.Contains(t, f.llm.prompts[0], "Book One")
	assert.Contains(t, f.llm.prompts[0], "what is in book one?")
}

func TestAsk_InitializesExactlyOnce(t *testing.T) {
	f := newFixture()
	p := NewQueryPipeline(f.config())

	for i := 0; i < 3; i++ {
		_, err := p.Ask(context.Background(), "repeat question")
		require.NoError(t, err)
	}

	assert.Equal(t, 1, f.embedderBuilds)
	assert.Equal(t, 1, f.llmBuilds)
	assert.Equal(t, 1, f.storeBuilds)
}

func TestAsk_ConcurrentFirstCallsInitializeOnce(t *testing.T) {
	f := newFixture()
	p := NewQueryPipeline(f.config())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Ask(context.Background(), "concurrent question")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, f.embedderBuilds)
	assert.Equal(t, 1, f.llmBuilds)
	assert.Equal(t, 1, f.storeBuilds)
}

func TestAsk_SetupFailurePropagatesAndRetries(t *testing.T) {
	f := newFixture()
	f.storeErr = errors.New("chroma unreachable")
	p := NewQueryPipeline(f.config())

	_, err := p.Ask(context.Background(), "question")
	require.Error(t, err)
	var setupErr *domain.SetupError
	require.ErrorAs(t, err, &setupErr)
	assert.Equal(t, "vector store", setupErr.Stage)

	// Partial handles from the failed attempt are closed.
	assert.True(t, f.embedder.closed)
	assert.True(t, f.llm.closed)

	// A later call retries from scratch and succeeds.
	f.storeErr = nil
	f.embedder.closed = false
	answer, err := p.Ask(context.Background(), "question")
	require.NoError(t, err)
	assert.Equal(t, "a grounded answer", answer.Text)
	assert.Equal(t, 2, f.embedderBuilds)
	assert.Equal(t, 2, f.storeBuilds)
}

func TestAsk_ExecutionFailuresNeverPropagate(t *testing.T) {
	cases := []struct {
		name  string
		wreck func(f *pipelineFixture)
	}{
		{"embedding fails", func(f *pipelineFixture) { f.embedder.embedErr = errors.New("embed down") }},
		{"retrieval fails", func(f *pipelineFixture) { f.store.queryErr = errors.New("index corrupt") }},
		{"synthesis fails", func(f *pipelineFixture) { f.llm.generateErr = errors.New("model crashed") }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			tc.wreck(f)
			p := NewQueryPipeline(f.config())

			answer, err := p.Ask(context.Background(), "doomed question")
			require.NoError(t, err)
			assert.Equal(t, "Sorry, I encountered an error while processing your query.", answer.Text)
			assert.Empty(t, answer.Evidence)
		})
	}
}

func TestAsk_ZeroHitsStillSynthesizes(t *testing.T) {
	f := newFixture()
	f.store.hits = nil
	p := NewQueryPipeline(f.config())

	answer, err := p.Ask(context.Background(), "nothing matches this")
	require.NoError(t, err)
	assert.Equal(t, "a grounded answer", answer.Text)
	assert.Empty(t, answer.Evidence)
	require.Len(t, f.llm.prompts, 1)
	assert.Contains(t, f.llm.prompts[0], "nothing matches this")
}

func TestInitialize_Idempotent(t *testing.T) {
	f := newFixture()
	p := NewQueryPipeline(f.config())

	require.NoError(t, p.Initialize(context.Background()))
	require.NoError(t, p.Initialize(context.Background()))
	assert.Equal(t, 1, f.embedderBuilds)
}

func TestNewQueryPipeline_DefaultsTopK(t *testing.T) {
	p := NewQueryPipeline(PipelineConfig{})
	assert.Equal(t, DefaultTopK, p.cfg.TopK)
}

func TestAsk_EndToEndWithMemoryStore(t *testing.T) {
	// Real in-memory store instead of the mock: ingest two records,
	// then verify retrieval ranks the closer one first.
	store := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, store.Open(ctx))
	records := []domain.HighlightRecord{
		{ID: "readwise_highlight_1", Body: "about gardening", Attributes: map[string]any{"title": "Gardens"}},
		{ID: "readwise_highlight_2", Body: "about sailing", Attributes: map[string]any{"title": "Seas"}},
	}
	require.NoError(t, store.Upsert(ctx, records, [][]float32{{1, 0}, {0, 1}}))

	f := newFixture()
	f.embedder.vector = []float32{0.9, 0.1}
	p := NewQueryPipeline(PipelineConfig{
		TopK:        1,
		NewEmbedder: f.config().NewEmbedder,
		NewLLM:      f.config().NewLLM,
		OpenStore: func(_ context.Context) (driven.VectorStore, error) {
			return store, nil
		},
	})

	answer, err := p.Ask(ctx, "what did I read about plants?")
	require.NoError(t, err)
	require.Len(t, answer.Evidence, 1)
	assert.Equal(t, "readwise_highlight_1", answer.Evidence[0].RecordID)
	assert.Contains(t, f.llm.prompts[0], "about gardening")
}

func TestClose_ReleasesHandles(t *testing.T) {
	f := newFixture()
	p := NewQueryPipeline(f.config())
	require.NoError(t, p.Initialize(context.Background()))

	require.NoError(t, p.Close())
	assert.True(t, f.embedder.closed)
	assert.True(t, f.llm.closed)
	assert.True(t, f.store.closed)

	// Closing an uninitialized pipeline is a no-op.
	assert.NoError(t, NewQueryPipeline(f.config()).Close())
}
