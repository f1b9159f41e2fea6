package engine

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/stackrag/stackrag/internal/models"
	"github.com/stackrag/stackrag/internal/types"
)

type Config struct {
	DefaultEmbedModel string
}

// Engine interprets a persisted workflow graph and runs the RAG pipeline:
// ingest, index, retrieve, assemble, prompt, generate. It holds no per-request
// state; collaborators are injected once at construction.
type Engine struct {
	graphs    types.GraphStore
	ingestor  types.Ingestor
	index     types.RetrievalIndex
	search    types.SearchProvider
	generator types.Generator
	config    Config
}

func New(graphs types.GraphStore, ingestor types.Ingestor, index types.RetrievalIndex,
	search types.SearchProvider, generator types.Generator, config Config) *Engine {
	if config.DefaultEmbedModel == "" {
		config.DefaultEmbedModel = "all-MiniLM-L6-v2"
	}

	return &Engine{
		graphs:    graphs,
		ingestor:  ingestor,
		index:     index,
		search:    search,
		generator: generator,
		config:    config,
	}
}

// Build runs the full pipeline for a workflow: structural and credential
// validation, document ingestion, index rebuild, retrieval, and generation.
// The user query comes from the graph's user-input node.
func (e *Engine) Build(ctx context.Context, key string) (*models.ExecutionResult, error) {
	wf, err := e.loadWorkflow(ctx, key)
	if err != nil {
		return nil, err
	}

	byType := nodesByType(wf)

	llmNode, ok := byType[models.NodeLLM]
	if !ok {
		return nil, &ValidationError{Field: "nodes", Message: "llm node is required"}
	}
	outputNode, ok := byType[models.NodeOutput]
	if !ok {
		return nil, &ValidationError{Field: "nodes", Message: "output node is required"}
	}

	settings := llmSettingsFrom(llmNode)
	if settings.APIKey == "" {
		return nil, &ValidationError{Field: "llm.apiKey", Message: "missing credential"}
	}

	userNode, ok := byType[models.NodeUserInput]
	query := stringField(userNode.Data, "query")
	if !ok || strings.TrimSpace(query) == "" {
		return nil, &ValidationError{Field: "user-input.query", Message: "user query is required"}
	}

	kbNode, hasKB := byType[models.NodeKnowledgeBase]
	kb := kbSettingsFrom(kbNode, e.config.DefaultEmbedModel)

	if hasKB {
		if err := kb.validateChunking(); err != nil {
			return nil, err
		}

		var chunks []string
		for _, doc := range documentRecords(wf) {
			docChunks, err := e.ingestor.Ingest(doc.Path, kb.ChunkSize, kb.ChunkOverlap)
			if err != nil {
				// a broken document contributes nothing but never fails the build
				log.Printf("warning: skipping document %s (%s): %v", doc.ID, doc.FileName, err)
				continue
			}
			chunks = append(chunks, docChunks...)
		}

		if err := e.index.Rebuild(ctx, key, kb.EmbeddingModel, chunks); err != nil {
			return nil, err
		}
	}

	return e.respond(ctx, assembleInput{
		key:        key,
		query:      query,
		useKB:      hasKB,
		embedModel: kb.EmbeddingModel,
		topK:       kb.TopK,
		webSearch:  settings.WebSearch,
		serpAPIKey: settings.SerpAPIKey,
	}, settings, stringField(outputNode.Data, "outputText"))
}

// Chat answers a request-supplied message against an already-built index.
// The graph only needs an llm node; a knowledge-base node is queried if its
// collection exists, and an output node's instruction is honored if present.
func (e *Engine) Chat(ctx context.Context, key, message string) (*models.ExecutionResult, error) {
	if strings.TrimSpace(message) == "" {
		return nil, &ValidationError{Field: "message", Message: "message is required"}
	}

	wf, err := e.loadWorkflow(ctx, key)
	if err != nil {
		return nil, err
	}

	byType := nodesByType(wf)

	llmNode, ok := byType[models.NodeLLM]
	if !ok {
		return nil, &ValidationError{Field: "nodes", Message: "llm node is required"}
	}

	settings := llmSettingsFrom(llmNode)
	if settings.APIKey == "" {
		return nil, &ValidationError{Field: "llm.apiKey", Message: "missing credential"}
	}

	kbNode, hasKB := byType[models.NodeKnowledgeBase]
	kb := kbSettingsFrom(kbNode, e.config.DefaultEmbedModel)

	return e.respond(ctx, assembleInput{
		key:        key,
		query:      message,
		useKB:      hasKB,
		embedModel: kb.EmbeddingModel,
		topK:       kb.TopK,
		webSearch:  settings.WebSearch,
		serpAPIKey: settings.SerpAPIKey,
	}, settings, stringField(byType[models.NodeOutput].Data, "outputText"))
}

func (e *Engine) respond(ctx context.Context, in assembleInput, settings llmSettings, outputText string) (*models.ExecutionResult, error) {
	kbResults, webResults, combined, err := e.assembleContext(ctx, in)
	if err != nil {
		return nil, err
	}

	prompt := BuildPrompt(combined, outputText, in.query)

	answer, err := e.generator.Generate(ctx, settings.APIKey, settings.Model, prompt)
	if err != nil {
		return nil, &GenerationError{Err: err}
	}

	return &models.ExecutionResult{
		Answer: answer,
		ContextUsed: models.ContextUsed{
			KnowledgeBase: kbResults,
			WebSearch:     webResults,
		},
	}, nil
}

func (e *Engine) loadWorkflow(ctx context.Context, key string) (*models.Workflow, error) {
	wf, err := e.graphs.Load(ctx, key)
	if errors.Is(err, types.ErrNotFound) {
		return nil, &NotFoundError{Resource: "workflow", Key: key}
	}
	if err != nil {
		return nil, err
	}
	return wf, nil
}
