package config

import (
	"fmt"
	"net/url"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate Database config
	if c.Database.URL != "" {
		if u, err := url.Parse(c.Database.URL); err != nil || u.Scheme == "" {
			errors = append(errors, ValidationError{
				Field:   "database.url",
				Message: "database URL must include a scheme",
			})
		}
	}

	if c.Database.VectorDim < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.vector_dim",
			Message: "vector_dim must be positive",
		})
	}

	// Validate Embedder config
	if c.Embedder.BaseURL == "" {
		errors = append(errors, ValidationError{
			Field:   "embedder.base_url",
			Message: "embedder base URL is required",
		})
	} else if u, err := url.Parse(c.Embedder.BaseURL); err != nil || u.Scheme == "" {
		errors = append(errors, ValidationError{
			Field:   "embedder.base_url",
			Message: "embedder base URL must include a scheme",
		})
	}

	// Validate Search config
	if c.Search.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "search.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	if c.Search.MaxResults < 1 {
		errors = append(errors, ValidationError{
			Field:   "search.max_results",
			Message: "max_results must be positive",
		})
	}

	if c.Search.TimeoutSeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "search.timeout_seconds",
			Message: "timeout_seconds must be positive",
		})
	}

	// Validate Generation config
	if c.Generation.TimeoutSeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "generation.timeout_seconds",
			Message: "timeout_seconds must be positive",
		})
	}

	// Validate Ingest config
	if c.Ingest.ChunkSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "ingest.chunk_size",
			Message: "chunk_size must be positive",
		})
	}

	if c.Ingest.ChunkOverlap < 0 || c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		errors = append(errors, ValidationError{
			Field:   "ingest.chunk_overlap",
			Message: "chunk_overlap must be non-negative and less than chunk_size",
		})
	}

	return errors
}
