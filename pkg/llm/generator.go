package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
)

// GeneratorConfig represents the configuration for the generation client.
type GeneratorConfig struct {
	DefaultModel string
	Timeout      time.Duration
}

// GeminiGenerator invokes Gemini models through the Google AI API. The API
// key and model come from the workflow on every call, so no client handle is
// cached across requests.
type GeminiGenerator struct {
	config GeneratorConfig
}

func NewGeneratorWithConfig(config GeneratorConfig) *GeminiGenerator {
	if config.DefaultModel == "" {
		config.DefaultModel = "gemini-2.0-flash"
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}

	return &GeminiGenerator{config: config}
}

// Generate sends a single prompt and returns the generated text verbatim.
func (g *GeminiGenerator) Generate(ctx context.Context, apiKey, model, prompt string) (string, error) {
	if apiKey == "" {
		return "", fmt.Errorf("api key is required")
	}
	if model == "" {
		model = g.config.DefaultModel
	}

	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	client, err := googleai.New(ctx,
		googleai.WithAPIKey(apiKey),
		googleai.WithDefaultModel(model))
	if err != nil {
		return "", fmt.Errorf("failed to initialize LLM: %w", err)
	}

	answer, err := llms.GenerateFromSinglePrompt(ctx, client, prompt)
	if err != nil {
		return "", fmt.Errorf("generation failed: %w", err)
	}

	return answer, nil
}
