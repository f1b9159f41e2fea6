package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Database struct {
		URL         string `yaml:"url"`
		TablePrefix string `yaml:"table_prefix"`
		VectorDim   int    `yaml:"vector_dim"`
	} `yaml:"database"`

	Embedder struct {
		BaseURL      string `yaml:"base_url"`
		DefaultModel string `yaml:"default_model"`
	} `yaml:"embedder"`

	Generation struct {
		DefaultModel   string `yaml:"default_model"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"generation"`

	Search struct {
		BaseURL        string  `yaml:"base_url"`
		TimeoutSeconds int     `yaml:"timeout_seconds"`
		RateLimit      float64 `yaml:"rate_limit"`
		MaxResults     int     `yaml:"max_results"`
	} `yaml:"search"`

	Ingest struct {
		ChunkSize    int `yaml:"chunk_size"`
		ChunkOverlap int `yaml:"chunk_overlap"`
	} `yaml:"ingest"`

	Storage struct {
		UploadDir string `yaml:"upload_dir"`
	} `yaml:"storage"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/stackrag/config.yaml"),
			"/etc/stackrag/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %v", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %v", err)
	}

	// Merge with environment variables
	mergeWithEnv(&config)

	// Apply defaults for unset values
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	applyDefaults(config)
	mergeWithEnv(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.Server.Addr == "" {
		config.Server.Addr = ":8000"
	}

	if config.Database.TablePrefix == "" {
		config.Database.TablePrefix = "rag"
	}
	if config.Database.VectorDim == 0 {
		config.Database.VectorDim = 384 // all-MiniLM-L6-v2
	}

	if config.Embedder.BaseURL == "" {
		config.Embedder.BaseURL = "http://localhost:11434"
	}
	if config.Embedder.DefaultModel == "" {
		config.Embedder.DefaultModel = "all-MiniLM-L6-v2"
	}

	if config.Generation.DefaultModel == "" {
		config.Generation.DefaultModel = "gemini-2.0-flash"
	}
	if config.Generation.TimeoutSeconds == 0 {
		config.Generation.TimeoutSeconds = 60
	}

	if config.Search.BaseURL == "" {
		config.Search.BaseURL = "https://serpapi.com/search.json"
	}
	if config.Search.TimeoutSeconds == 0 {
		config.Search.TimeoutSeconds = 10
	}
	if config.Search.RateLimit == 0 {
		config.Search.RateLimit = 2.0
	}
	if config.Search.MaxResults == 0 {
		config.Search.MaxResults = 3
	}

	if config.Ingest.ChunkSize == 0 {
		config.Ingest.ChunkSize = 500
	}
	if config.Ingest.ChunkOverlap == 0 {
		config.Ingest.ChunkOverlap = 50
	}

	if config.Storage.UploadDir == "" {
		config.Storage.UploadDir = "data/uploads"
	}
}

func mergeWithEnv(config *Config) {
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.Embedder.BaseURL = baseURL
	}
	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		config.Server.Addr = addr
	}
}
