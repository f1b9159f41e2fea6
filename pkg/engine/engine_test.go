package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackrag/stackrag/internal/models"
	"github.com/stackrag/stackrag/internal/types"
)

type fakeGraphStore struct {
	workflows map[string]*models.Workflow
}

func (f *fakeGraphStore) Load(ctx context.Context, key string) (*models.Workflow, error) {
	wf, ok := f.workflows[key]
	if !ok {
		return nil, fmt.Errorf("workflow %s: %w", key, types.ErrNotFound)
	}
	return wf, nil
}

func (f *fakeGraphStore) Save(ctx context.Context, wf *models.Workflow) error {
	f.workflows[wf.ID] = wf
	return nil
}

type fakeIngestor struct {
	chunks map[string][]string // path -> chunks
	calls  int
}

func (f *fakeIngestor) Ingest(path string, size, overlap int) ([]string, error) {
	f.calls++
	chunks, ok := f.chunks[path]
	if !ok {
		return nil, fmt.Errorf("failed to extract text from %s: no such file", path)
	}
	return chunks, nil
}

type fakeIndex struct {
	rebuilds     int
	queries      int
	lastKey      string
	lastModel    string
	lastChunks   []string
	built        bool
	queryResults []string
}

func (f *fakeIndex) Rebuild(ctx context.Context, key, model string, chunks []string) error {
	f.rebuilds++
	f.lastKey = key
	f.lastModel = model
	f.lastChunks = chunks
	f.built = len(chunks) > 0
	return nil
}

func (f *fakeIndex) Query(ctx context.Context, key, model, query string, topK int) ([]string, error) {
	f.queries++
	if !f.built {
		return nil, nil
	}
	if topK > len(f.queryResults) {
		topK = len(f.queryResults)
	}
	return f.queryResults[:topK], nil
}

type fakeSearch struct {
	results []models.SearchResult
	err     error
	calls   int
}

func (f *fakeSearch) Search(ctx context.Context, query, apiKey string) ([]models.SearchResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

type fakeGenerator struct {
	answer  string
	err     error
	calls   int
	prompts []string
	models  []string
}

func (f *fakeGenerator) Generate(ctx context.Context, apiKey, model, prompt string) (string, error) {
	f.calls++
	f.prompts = append(f.prompts, prompt)
	f.models = append(f.models, model)
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

type harness struct {
	graphs    *fakeGraphStore
	ingestor  *fakeIngestor
	index     *fakeIndex
	search    *fakeSearch
	generator *fakeGenerator
	engine    *Engine
}

func newHarness(wf *models.Workflow) *harness {
	h := &harness{
		graphs:    &fakeGraphStore{workflows: map[string]*models.Workflow{}},
		ingestor:  &fakeIngestor{chunks: map[string][]string{}},
		index:     &fakeIndex{},
		search:    &fakeSearch{},
		generator: &fakeGenerator{answer: "generated answer"},
	}
	if wf != nil {
		h.graphs.workflows[wf.ID] = wf
	}
	h.engine = New(h.graphs, h.ingestor, h.index, h.search, h.generator, Config{})
	return h
}

func baseWorkflow() *models.Workflow {
	return &models.Workflow{
		ID:      "wf-1",
		StackID: "stack-1",
		Nodes: []models.Node{
			{ID: "n1", Type: models.NodeUserInput, Data: map[string]interface{}{"query": "What is X?"}},
			{ID: "n2", Type: models.NodeLLM, Data: map[string]interface{}{"apiKey": "k", "model": "m", "webSearch": false}},
			{ID: "n3", Type: models.NodeOutput, Data: map[string]interface{}{"outputText": "Be concise"}},
		},
	}
}

func TestBuildEndToEndPrompt(t *testing.T) {
	h := newHarness(baseWorkflow())

	result, err := h.engine.Build(context.Background(), "wf-1")
	require.NoError(t, err)

	require.Len(t, h.generator.prompts, 1)
	assert.Equal(t,
		"Context:\n\n\nOutput: Be concise\n\nUser Query: What is X?\nAnswer:",
		h.generator.prompts[0])

	assert.Equal(t, "generated answer", result.Answer)
	assert.NotNil(t, result.ContextUsed.KnowledgeBase)
	assert.Empty(t, result.ContextUsed.KnowledgeBase)
	assert.Empty(t, result.ContextUsed.WebSearch)

	// no knowledge-base node: the index is never touched
	assert.Zero(t, h.index.rebuilds)
	assert.Zero(t, h.index.queries)
}

func TestBuildLastLLMNodeWins(t *testing.T) {
	wf := baseWorkflow()
	wf.Nodes = append(wf.Nodes,
		models.Node{ID: "n4", Type: models.NodeLLM, Data: map[string]interface{}{"apiKey": "k2", "model": "later-model"}})
	h := newHarness(wf)

	_, err := h.engine.Build(context.Background(), "wf-1")
	require.NoError(t, err)

	require.Len(t, h.generator.models, 1)
	assert.Equal(t, "later-model", h.generator.models[0])
}

func TestBuildWorkflowNotFound(t *testing.T) {
	h := newHarness(nil)

	_, err := h.engine.Build(context.Background(), "missing")
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "missing", notFound.Key)
}

func TestBuildRequiresLLMAndOutputNodes(t *testing.T) {
	noLLM := baseWorkflow()
	noLLM.Nodes = noLLM.Nodes[:1] // user-input only
	h := newHarness(noLLM)
	_, err := h.engine.Build(context.Background(), "wf-1")
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)

	noOutput := baseWorkflow()
	noOutput.Nodes = noOutput.Nodes[:2] // user-input + llm
	h = newHarness(noOutput)
	_, err = h.engine.Build(context.Background(), "wf-1")
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Message, "output")
}

func TestBuildFailsFastOnMissingAPIKey(t *testing.T) {
	wf := baseWorkflow()
	wf.Nodes[1].Data = map[string]interface{}{"model": "m"} // no apiKey
	wf.Nodes = append(wf.Nodes, models.Node{ID: "kb", Type: models.NodeKnowledgeBase})
	wf.Data = map[string]interface{}{
		"documents": []interface{}{
			map[string]interface{}{"id": "d1", "file_name": "a.pdf", "path": "/tmp/a.pdf"},
		},
	}
	h := newHarness(wf)

	_, err := h.engine.Build(context.Background(), "wf-1")
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "llm.apiKey", ve.Field)

	// credential gate fires before any expensive work
	assert.Zero(t, h.ingestor.calls)
	assert.Zero(t, h.index.rebuilds)
	assert.Zero(t, h.index.queries)
	assert.Zero(t, h.generator.calls)
}

func TestBuildRejectsOverlapNotBelowChunkSize(t *testing.T) {
	wf := baseWorkflow()
	wf.Nodes = append(wf.Nodes, models.Node{
		ID: "kb", Type: models.NodeKnowledgeBase,
		Data: map[string]interface{}{"chunkSize": float64(100), "chunkOverlap": float64(100)},
	})
	wf.Data = map[string]interface{}{
		"documents": []interface{}{
			map[string]interface{}{"id": "d1", "file_name": "a.pdf", "path": "/docs/a.pdf"},
		},
	}
	h := newHarness(wf)
	h.ingestor.chunks["/docs/a.pdf"] = []string{"chunk a1"}

	_, err := h.engine.Build(context.Background(), "wf-1")
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "knowledge-base.chunkOverlap", ve.Field)

	// a misconfigured graph is rejected before any document is read
	assert.Zero(t, h.ingestor.calls)
	assert.Zero(t, h.index.rebuilds)
	assert.Zero(t, h.generator.calls)
}

func TestBuildRequiresUserQuery(t *testing.T) {
	wf := baseWorkflow()
	wf.Nodes[0].Data = map[string]interface{}{} // no query
	h := newHarness(wf)

	_, err := h.engine.Build(context.Background(), "wf-1")
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "user-input.query", ve.Field)
}

func TestBuildIngestsDocumentsAndRebuilds(t *testing.T) {
	wf := baseWorkflow()
	wf.Nodes = append(wf.Nodes, models.Node{
		ID: "kb", Type: models.NodeKnowledgeBase,
		Data: map[string]interface{}{"embeddingModel": "nomic-embed-text"},
	})
	wf.Data = map[string]interface{}{
		"documents": []interface{}{
			map[string]interface{}{"id": "d1", "file_name": "a.pdf", "path": "/docs/a.pdf"},
			map[string]interface{}{"id": "d2", "file_name": "b.pdf", "path": "/docs/b.pdf"},
		},
	}
	h := newHarness(wf)
	h.ingestor.chunks["/docs/a.pdf"] = []string{"chunk a1", "chunk a2"}
	h.ingestor.chunks["/docs/b.pdf"] = []string{"chunk b1"}
	h.index.queryResults = []string{"chunk a1"}

	result, err := h.engine.Build(context.Background(), "wf-1")
	require.NoError(t, err)

	assert.Equal(t, 1, h.index.rebuilds)
	assert.Equal(t, "wf-1", h.index.lastKey)
	assert.Equal(t, "nomic-embed-text", h.index.lastModel)
	// document list order, then chunk order within each document
	assert.Equal(t, []string{"chunk a1", "chunk a2", "chunk b1"}, h.index.lastChunks)

	assert.Equal(t, []string{"chunk a1"}, result.ContextUsed.KnowledgeBase)
}

func TestBuildMissingDocumentDegradesGracefully(t *testing.T) {
	wf := baseWorkflow()
	wf.Nodes = append(wf.Nodes, models.Node{ID: "kb", Type: models.NodeKnowledgeBase})
	wf.Data = map[string]interface{}{
		"documents": []interface{}{
			map[string]interface{}{"id": "d1", "file_name": "gone.pdf", "path": "/docs/gone.pdf"},
		},
	}
	h := newHarness(wf)

	result, err := h.engine.Build(context.Background(), "wf-1")
	require.NoError(t, err)

	// the unreadable file contributes zero chunks and the build still answers
	assert.Equal(t, 1, h.index.rebuilds)
	assert.Empty(t, h.index.lastChunks)
	assert.Equal(t, []string{}, result.ContextUsed.KnowledgeBase)
	assert.Equal(t, 1, h.generator.calls)
}

func TestBuildWebSearchDegradesGracefully(t *testing.T) {
	wf := baseWorkflow()
	wf.Nodes[1].Data["webSearch"] = true
	wf.Nodes[1].Data["serpApi"] = "serp-key"
	h := newHarness(wf)
	h.search.err = errors.New("provider down")

	result, err := h.engine.Build(context.Background(), "wf-1")
	require.NoError(t, err)
	assert.Equal(t, 1, h.search.calls)
	assert.Empty(t, result.ContextUsed.WebSearch)
}

func TestBuildWebSearchSkippedWithoutKey(t *testing.T) {
	wf := baseWorkflow()
	wf.Nodes[1].Data["webSearch"] = true // enabled but no serpApi key
	h := newHarness(wf)

	_, err := h.engine.Build(context.Background(), "wf-1")
	require.NoError(t, err)
	assert.Zero(t, h.search.calls)
}

func TestBuildGenerationErrorSurfaces(t *testing.T) {
	h := newHarness(baseWorkflow())
	h.generator.err = errors.New("model unavailable")

	_, err := h.engine.Build(context.Background(), "wf-1")
	var ge *GenerationError
	require.ErrorAs(t, err, &ge)
	assert.ErrorContains(t, err, "model unavailable")
}

func TestChatUsesRequestMessage(t *testing.T) {
	wf := baseWorkflow()
	wf.Nodes = append(wf.Nodes, models.Node{ID: "kb", Type: models.NodeKnowledgeBase})
	h := newHarness(wf)
	h.index.built = true
	h.index.queryResults = []string{"indexed chunk"}

	result, err := h.engine.Chat(context.Background(), "wf-1", "follow-up question")
	require.NoError(t, err)

	// chat never rebuilds, only queries
	assert.Zero(t, h.index.rebuilds)
	assert.Zero(t, h.ingestor.calls)
	assert.Equal(t, 1, h.index.queries)
	assert.Equal(t, []string{"indexed chunk"}, result.ContextUsed.KnowledgeBase)

	require.Len(t, h.generator.prompts, 1)
	assert.Contains(t, h.generator.prompts[0], "User Query: follow-up question")
	// the output node's instruction still applies in chat
	assert.Contains(t, h.generator.prompts[0], "Output: Be concise")
}

func TestChatBeforeAnyBuild(t *testing.T) {
	wf := baseWorkflow()
	wf.Nodes = append(wf.Nodes, models.Node{ID: "kb", Type: models.NodeKnowledgeBase})
	h := newHarness(wf) // index never built

	result, err := h.engine.Chat(context.Background(), "wf-1", "anything there?")
	require.NoError(t, err)
	assert.Equal(t, []string{}, result.ContextUsed.KnowledgeBase)
}

func TestChatWithoutOutputNode(t *testing.T) {
	wf := baseWorkflow()
	wf.Nodes = wf.Nodes[:2] // drop the output node; chat only needs llm
	h := newHarness(wf)

	_, err := h.engine.Chat(context.Background(), "wf-1", "hello")
	require.NoError(t, err)
	require.Len(t, h.generator.prompts, 1)
	assert.Equal(t, "Context:\n\n\nUser Query: hello\nAnswer:", h.generator.prompts[0])
}

func TestChatRequiresMessage(t *testing.T) {
	h := newHarness(baseWorkflow())

	_, err := h.engine.Chat(context.Background(), "wf-1", "   ")
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "message", ve.Field)
}

func TestContextOrdering(t *testing.T) {
	wf := baseWorkflow()
	wf.Nodes = append(wf.Nodes, models.Node{ID: "kb", Type: models.NodeKnowledgeBase})
	wf.Nodes[1].Data["webSearch"] = true
	wf.Nodes[1].Data["serpApi"] = "serp-key"
	h := newHarness(wf)
	h.index.built = true
	h.index.queryResults = []string{"kb one", "kb two"}
	h.search.results = []models.SearchResult{
		{Title: "T1", Link: "https://a", Snippet: "s1"},
		{Title: "T2", Link: "https://b", Snippet: "s2"},
	}

	result, err := h.engine.Chat(context.Background(), "wf-1", "q")
	require.NoError(t, err)

	assert.Equal(t, []string{"kb one", "kb two"}, result.ContextUsed.KnowledgeBase)
	assert.Equal(t, []string{"T1 (https://a): s1", "T2 (https://b): s2"}, result.ContextUsed.WebSearch)

	require.Len(t, h.generator.prompts, 1)
	assert.Contains(t, h.generator.prompts[0],
		"kb one\nkb two\n\nT1 (https://a): s1\nT2 (https://b): s2")
}
