package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/tmc/langchaingo/llms/ollama"
)

// EmbedderConfig represents the configuration for the embedding client.
type EmbedderConfig struct {
	BaseURL      string // Ollama server URL
	DefaultModel string
}

// Embedder computes embedding vectors through an Ollama server. Clients are
// cached per model name since the model is selected per request.
type Embedder struct {
	config EmbedderConfig

	mu      sync.Mutex
	clients map[string]*ollama.LLM
}

func NewEmbedderWithConfig(config EmbedderConfig) *Embedder {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}
	if config.DefaultModel == "" {
		config.DefaultModel = "all-MiniLM-L6-v2"
	}

	return &Embedder{
		config:  config,
		clients: make(map[string]*ollama.LLM),
	}
}

func (e *Embedder) client(model string) (*ollama.LLM, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if client, ok := e.clients[model]; ok {
		return client, nil
	}

	client, err := ollama.New(
		ollama.WithModel(model),
		ollama.WithServerURL(e.config.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	e.clients[model] = client
	return client, nil
}

// Embed returns one vector per input text, computed with the given model.
// An empty model name falls back to the configured default.
func (e *Embedder) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	if model == "" {
		model = e.config.DefaultModel
	}

	client, err := e.client(model)
	if err != nil {
		return nil, err
	}

	embeddings, err := client.CreateEmbedding(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}

	return embeddings, nil
}
