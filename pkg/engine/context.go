package engine

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/stackrag/stackrag/internal/models"
)

type assembleInput struct {
	key        string
	query      string
	useKB      bool
	embedModel string
	topK       int
	webSearch  bool
	serpAPIKey string
}

// assembleContext gathers knowledge-base and web-search context for a query.
// The knowledge-base block always precedes the web block in the combined
// text; a web-search failure degrades to no web context, never an error.
func (e *Engine) assembleContext(ctx context.Context, in assembleInput) ([]string, []string, string, error) {
	kbResults := []string{}
	if in.useKB {
		results, err := e.index.Query(ctx, in.key, in.embedModel, in.query, in.topK)
		if err != nil {
			return nil, nil, "", fmt.Errorf("knowledge base query failed: %w", err)
		}
		kbResults = append(kbResults, results...)
	}

	webResults := []string{}
	if in.webSearch && in.serpAPIKey != "" {
		results, err := e.search.Search(ctx, in.query, in.serpAPIKey)
		if err != nil {
			log.Printf("warning: web search failed, continuing without web context: %v", err)
		} else {
			for _, r := range results {
				webResults = append(webResults, formatSearchResult(r))
			}
		}
	}

	var parts []string
	if kb := strings.Join(kbResults, "\n"); strings.TrimSpace(kb) != "" {
		parts = append(parts, kb)
	}
	if web := strings.Join(webResults, "\n"); strings.TrimSpace(web) != "" {
		parts = append(parts, web)
	}

	return kbResults, webResults, strings.Join(parts, "\n\n"), nil
}

func formatSearchResult(r models.SearchResult) string {
	return fmt.Sprintf("%s (%s): %s", r.Title, r.Link, r.Snippet)
}
