package types

import (
	"context"
	"errors"

	"github.com/stackrag/stackrag/internal/models"
)

// ErrNotFound is returned by stores when the requested key has no record.
var ErrNotFound = errors.New("not found")

// Embedder turns text into vectors. The model name is resolved per call so a
// workflow can select its own embedding model.
type Embedder interface {
	Embed(ctx context.Context, model string, texts []string) ([][]float32, error)
}

// RetrievalIndex is a vector collection keyed by workflow identifier.
// Rebuild replaces the collection wholesale; Query against an absent
// collection returns no results, never an error.
type RetrievalIndex interface {
	Rebuild(ctx context.Context, key, embedModel string, chunks []string) error
	Query(ctx context.Context, key, embedModel, query string, topK int) ([]string, error)
}

// SearchProvider runs a web search and returns ranked organic results.
type SearchProvider interface {
	Search(ctx context.Context, query, apiKey string) ([]models.SearchResult, error)
}

// Generator invokes the LLM with request-scoped credentials.
type Generator interface {
	Generate(ctx context.Context, apiKey, model, prompt string) (string, error)
}

// Ingestor extracts text from a stored document and splits it into chunks.
// Zero size/overlap select the ingestor's configured defaults.
type Ingestor interface {
	Ingest(path string, chunkSize, chunkOverlap int) ([]string, error)
}

// GraphStore persists workflow graphs. Load returns ErrNotFound (possibly
// wrapped) when no workflow exists for the key.
type GraphStore interface {
	Load(ctx context.Context, key string) (*models.Workflow, error)
	Save(ctx context.Context, wf *models.Workflow) error
}

// FileStore holds uploaded document bytes.
type FileStore interface {
	Put(contents []byte, name string) (models.DocumentRecord, error)
	Get(path string) ([]byte, error)
}
