package ingest

import (
	"fmt"
)

type IngestorConfig struct {
	ChunkSize    int // words per chunk
	ChunkOverlap int // words shared between adjacent chunks
	OnDocument   func(path string)
}

type Ingestor struct {
	config IngestorConfig
}

func NewWithConfig(config IngestorConfig) (*Ingestor, error) {
	if config.ChunkSize == 0 {
		config.ChunkSize = 500
	}
	if config.ChunkOverlap == 0 {
		config.ChunkOverlap = 50
	}
	if config.ChunkSize < 1 {
		return nil, fmt.Errorf("chunk size must be positive")
	}
	// overlap >= size means the window never advances
	if config.ChunkOverlap < 0 || config.ChunkOverlap >= config.ChunkSize {
		return nil, fmt.Errorf("chunk overlap must be non-negative and less than chunk size")
	}

	return &Ingestor{config: config}, nil
}

// Ingest extracts plain text from the document at path and splits it into
// word-count chunks. Zero chunkSize/chunkOverlap select the configured
// defaults. An unreadable or unsupported file returns an error; the caller
// decides whether that is fatal.
func (in *Ingestor) Ingest(path string, chunkSize, chunkOverlap int) ([]string, error) {
	if chunkSize == 0 {
		chunkSize = in.config.ChunkSize
	}
	if chunkOverlap == 0 {
		chunkOverlap = in.config.ChunkOverlap
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("chunk overlap %d must be non-negative and less than chunk size %d", chunkOverlap, chunkSize)
	}

	text, err := ExtractText(path)
	if err != nil {
		return nil, fmt.Errorf("failed to extract text from %s: %w", path, err)
	}

	if in.config.OnDocument != nil {
		in.config.OnDocument(path)
	}

	return ChunkWords(text, chunkSize, chunkOverlap), nil
}
