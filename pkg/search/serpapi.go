package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/stackrag/stackrag/internal/models"
)

type SerpAPIConfig struct {
	BaseURL    string
	Timeout    time.Duration
	RateLimit  float64 // requests per second
	MaxResults int
}

// SerpAPI queries the SerpAPI Google endpoint for organic results. Calls are
// rate limited so a burst of workflow runs cannot exhaust the provider quota.
type SerpAPI struct {
	config  SerpAPIConfig
	client  *http.Client
	limiter *rate.Limiter
}

func NewWithConfig(config SerpAPIConfig) *SerpAPI {
	if config.BaseURL == "" {
		config.BaseURL = "https://serpapi.com/search.json"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2
	}
	if config.MaxResults == 0 {
		config.MaxResults = 3
	}

	return &SerpAPI{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}
}

type serpResponse struct {
	OrganicResults []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic_results"`
}

// Search returns up to MaxResults organic results for the query.
func (s *SerpAPI) Search(ctx context.Context, query, apiKey string) ([]models.SearchResult, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("search api key is required")
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("engine", "google")
	params.Set("q", query)
	params.Set("api_key", apiKey)
	params.Set("num", strconv.Itoa(s.config.MaxResults))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.config.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search provider returned status %d", resp.StatusCode)
	}

	var parsed serpResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	results := make([]models.SearchResult, 0, s.config.MaxResults)
	for _, r := range parsed.OrganicResults {
		if len(results) == s.config.MaxResults {
			break
		}
		results = append(results, models.SearchResult{
			Title:   r.Title,
			Link:    r.Link,
			Snippet: r.Snippet,
		})
	}

	return results, nil
}
