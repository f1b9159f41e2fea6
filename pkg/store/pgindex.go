package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/stackrag/stackrag/internal/types"
)

type IndexConfig struct {
	TablePrefix string
	VectorDim   int
}

// PGIndex keeps one vector collection per workflow key in Postgres/pgvector.
// A build replaces the key's collection wholesale; rebuilds for the same key
// are serialized so a concurrent query never races a half-written collection.
type PGIndex struct {
	config   IndexConfig
	pool     *pgxpool.Pool
	embedder types.Embedder

	mu       sync.Mutex
	keyLocks map[string]*sync.Mutex
}

// NewPool opens the shared Postgres handle used by the index and graph store.
func NewPool(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}
	return pool, nil
}

func NewIndexWithConfig(config IndexConfig, pool *pgxpool.Pool, embedder types.Embedder) (*PGIndex, error) {
	if config.TablePrefix == "" {
		config.TablePrefix = "rag"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 384
	}

	idx := &PGIndex{
		config:   config,
		pool:     pool,
		embedder: embedder,
		keyLocks: make(map[string]*sync.Mutex),
	}

	if err := idx.initialize(); err != nil {
		return nil, err
	}

	return idx, nil
}

func (idx *PGIndex) initialize() error {
	ctx := context.Background()

	// Enable pgvector extension
	_, err := idx.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("failed to create vector extension: %v", err)
	}

	createCollections := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s_collections (
			key TEXT PRIMARY KEY,
			embedding_model TEXT NOT NULL,
			built_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, idx.config.TablePrefix)

	_, err = idx.pool.Exec(ctx, createCollections)
	if err != nil {
		return fmt.Errorf("failed to create collections table: %v", err)
	}

	createChunks := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s_chunks (
			id TEXT PRIMARY KEY,
			collection_key TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d)
		)`, idx.config.TablePrefix, idx.config.VectorDim)

	_, err = idx.pool.Exec(ctx, createChunks)
	if err != nil {
		return fmt.Errorf("failed to create chunks table: %v", err)
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_chunks_embedding_idx
		ON %s_chunks
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`,
		idx.config.TablePrefix, idx.config.TablePrefix)

	_, err = idx.pool.Exec(ctx, createIndex)
	if err != nil {
		return fmt.Errorf("failed to create index: %v", err)
	}

	return nil
}

func (idx *PGIndex) keyLock(key string) *sync.Mutex {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	lock, ok := idx.keyLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		idx.keyLocks[key] = lock
	}
	return lock
}

// Rebuild drops the key's collection and recreates it from chunks. An empty
// chunk list just drops the collection; later queries see zero results.
func (idx *PGIndex) Rebuild(ctx context.Context, key, embedModel string, chunks []string) error {
	lock := idx.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	var embeddings [][]float32
	if len(chunks) > 0 {
		var err error
		embeddings, err = idx.embedder.Embed(ctx, embedModel, chunks)
		if err != nil {
			return fmt.Errorf("failed to embed chunks: %w", err)
		}
		if len(embeddings) != len(chunks) {
			return fmt.Errorf("embedder returned %d vectors for %d chunks", len(embeddings), len(chunks))
		}
	}

	tx, err := idx.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		fmt.Sprintf("DELETE FROM %s_chunks WHERE collection_key = $1", idx.config.TablePrefix), key)
	if err != nil {
		return fmt.Errorf("failed to clear chunks: %v", err)
	}
	_, err = tx.Exec(ctx,
		fmt.Sprintf("DELETE FROM %s_collections WHERE key = $1", idx.config.TablePrefix), key)
	if err != nil {
		return fmt.Errorf("failed to clear collection: %v", err)
	}

	if len(chunks) > 0 {
		_, err = tx.Exec(ctx,
			fmt.Sprintf("INSERT INTO %s_collections (key, embedding_model) VALUES ($1, $2)", idx.config.TablePrefix),
			key, embedModel)
		if err != nil {
			return fmt.Errorf("failed to record collection: %v", err)
		}

		stmt := fmt.Sprintf(`
			INSERT INTO %s_chunks (id, collection_key, chunk_index, content, embedding)
			VALUES ($1, $2, $3, $4, $5)`, idx.config.TablePrefix)

		for i, chunk := range chunks {
			id := fmt.Sprintf("%s-doc-%d", key, i)
			_, err = tx.Exec(ctx, stmt, id, key, i, chunk, pgvector.NewVector(embeddings[i]))
			if err != nil {
				return fmt.Errorf("failed to insert chunk: %v", err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %v", err)
	}

	return nil
}

// Query embeds the query text and returns up to topK chunk texts by
// descending similarity. A key with no built collection yields no results.
func (idx *PGIndex) Query(ctx context.Context, key, embedModel, query string, topK int) ([]string, error) {
	if topK <= 0 {
		topK = 3
	}

	var builtModel string
	err := idx.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT embedding_model FROM %s_collections WHERE key = $1", idx.config.TablePrefix),
		key).Scan(&builtModel)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up collection: %v", err)
	}

	if embedModel != "" && embedModel != builtModel {
		// Embedding spaces are not compatible across models; results are
		// likely meaningless until the collection is rebuilt.
		log.Printf("warning: collection %q built with model %q, queried with %q", key, builtModel, embedModel)
	}

	embeddings, err := idx.embedder.Embed(ctx, embedModel, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("embedder returned no vector for query")
	}

	rows, err := idx.pool.Query(ctx,
		fmt.Sprintf(`
			SELECT content FROM %s_chunks
			WHERE collection_key = $1
			ORDER BY embedding <=> $2
			LIMIT $3`, idx.config.TablePrefix),
		key, pgvector.NewVector(embeddings[0]), topK)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %v", err)
	}
	defer rows.Close()

	var results []string
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, fmt.Errorf("failed to scan row: %v", err)
		}
		results = append(results, content)
	}

	return results, rows.Err()
}

var _ types.RetrievalIndex = (*PGIndex)(nil)
