package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"

	"github.com/stackrag/stackrag/internal/types"
	cfgPkg "github.com/stackrag/stackrag/pkg/config"
	"github.com/stackrag/stackrag/pkg/engine"
	"github.com/stackrag/stackrag/pkg/ingest"
	"github.com/stackrag/stackrag/pkg/llm"
	"github.com/stackrag/stackrag/pkg/search"
	"github.com/stackrag/stackrag/pkg/store"
	"github.com/stackrag/stackrag/server"
)

type flags struct {
	configPath string
	buildKey   string
	chatKey    string
	message    string
}

func main() {
	godotenv.Load()

	f := parseFlags()

	config, err := cfgPkg.LoadConfig(f.configPath)
	if err != nil {
		log.Fatal(err)
	}
	if errs := config.Validate(); len(errs) > 0 {
		for _, e := range errs {
			color.Red("config: %s", e.Error())
		}
		os.Exit(1)
	}

	if err := run(config, f); err != nil {
		log.Fatal(err)
	}
}

func parseFlags() flags {
	var f flags
	flag.StringVar(&f.configPath, "config", "", "Path to config file")
	flag.StringVar(&f.buildKey, "build", "", "Run a one-shot build for the given workflow key and exit")
	flag.StringVar(&f.chatKey, "chat", "", "Run a one-shot chat for the given workflow key and exit")
	flag.StringVar(&f.message, "message", "", "Chat message (used with -chat)")
	flag.Parse()
	return f
}

func run(config *cfgPkg.Config, f flags) error {
	var bar *progressbar.ProgressBar

	ingestor, err := ingest.NewWithConfig(ingest.IngestorConfig{
		ChunkSize:    config.Ingest.ChunkSize,
		ChunkOverlap: config.Ingest.ChunkOverlap,
		OnDocument: func(path string) {
			if bar != nil {
				bar.Add(1)
			}
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize ingestor: %v", err)
	}

	embedder := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		BaseURL:      config.Embedder.BaseURL,
		DefaultModel: config.Embedder.DefaultModel,
	})

	generator := llm.NewGeneratorWithConfig(llm.GeneratorConfig{
		DefaultModel: config.Generation.DefaultModel,
		Timeout:      time.Duration(config.Generation.TimeoutSeconds) * time.Second,
	})

	searcher := search.NewWithConfig(search.SerpAPIConfig{
		BaseURL:    config.Search.BaseURL,
		Timeout:    time.Duration(config.Search.TimeoutSeconds) * time.Second,
		RateLimit:  config.Search.RateLimit,
		MaxResults: config.Search.MaxResults,
	})

	var index types.RetrievalIndex
	var graphs types.GraphStore
	if config.Database.URL != "" {
		pool, err := store.NewPool(context.Background(), config.Database.URL)
		if err != nil {
			return err
		}
		defer pool.Close()

		index, err = store.NewIndexWithConfig(store.IndexConfig{
			TablePrefix: config.Database.TablePrefix,
			VectorDim:   config.Database.VectorDim,
		}, pool, embedder)
		if err != nil {
			return fmt.Errorf("failed to initialize vector index: %v", err)
		}

		graphs, err = store.NewGraphStore(pool, config.Database.TablePrefix)
		if err != nil {
			return fmt.Errorf("failed to initialize graph store: %v", err)
		}
	} else {
		log.Printf("no DATABASE_URL configured, using in-memory stores")
		index = store.NewMemIndex(embedder)
		graphs = store.NewMemGraphStore()
	}

	files, err := store.NewLocalFiles(config.Storage.UploadDir)
	if err != nil {
		return err
	}

	eng := engine.New(graphs, ingestor, index, searcher, generator, engine.Config{
		DefaultEmbedModel: config.Embedder.DefaultModel,
	})

	switch {
	case f.buildKey != "":
		bar = getSpinner("Building workflow " + f.buildKey)
		result, err := eng.Build(context.Background(), f.buildKey)
		bar.Finish()
		fmt.Println()
		if err != nil {
			return err
		}
		printResult(result.Answer, result.ContextUsed.KnowledgeBase, result.ContextUsed.WebSearch)
		return nil

	case f.chatKey != "":
		if f.message == "" {
			return fmt.Errorf("-chat requires -message")
		}
		result, err := eng.Chat(context.Background(), f.chatKey, f.message)
		if err != nil {
			return err
		}
		printResult(result.Answer, result.ContextUsed.KnowledgeBase, result.ContextUsed.WebSearch)
		return nil

	default:
		srv := server.New(server.Config{Addr: config.Server.Addr}, eng, graphs, files)
		return srv.Start()
	}
}

func printResult(answer string, kb, web []string) {
	color.Green("\n%s\n", answer)
	if len(kb) > 0 {
		color.Blue("Knowledge base context: %d chunks", len(kb))
	}
	if len(web) > 0 {
		color.Blue("Web context: %d results", len(web))
	}
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}
