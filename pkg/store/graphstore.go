package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stackrag/stackrag/internal/models"
	"github.com/stackrag/stackrag/internal/types"
)

// PGGraphStore persists workflow graphs as JSONB rows. Save upserts: a PUT
// for an unknown key creates the row.
type PGGraphStore struct {
	pool  *pgxpool.Pool
	table string
}

func NewGraphStore(pool *pgxpool.Pool, tablePrefix string) (*PGGraphStore, error) {
	if tablePrefix == "" {
		tablePrefix = "rag"
	}

	s := &PGGraphStore{pool: pool, table: tablePrefix + "_workflows"}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			stack_id TEXT,
			nodes JSONB NOT NULL DEFAULT '[]',
			edges JSONB NOT NULL DEFAULT '[]',
			data JSONB NOT NULL DEFAULT '{}',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, s.table)

	if _, err := pool.Exec(context.Background(), createTable); err != nil {
		return nil, fmt.Errorf("failed to create workflows table: %v", err)
	}

	return s, nil
}

func (s *PGGraphStore) Load(ctx context.Context, key string) (*models.Workflow, error) {
	var stackID string
	var nodes, edges, data []byte

	err := s.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT stack_id, nodes, edges, data FROM %s WHERE id = $1", s.table),
		key).Scan(&stackID, &nodes, &edges, &data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("workflow %s: %w", key, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow: %v", err)
	}

	wf := &models.Workflow{ID: key, StackID: stackID}
	if err := json.Unmarshal(nodes, &wf.Nodes); err != nil {
		return nil, fmt.Errorf("failed to decode nodes: %w", err)
	}
	if err := json.Unmarshal(edges, &wf.Edges); err != nil {
		return nil, fmt.Errorf("failed to decode edges: %w", err)
	}
	if err := json.Unmarshal(data, &wf.Data); err != nil {
		return nil, fmt.Errorf("failed to decode data: %w", err)
	}

	return wf, nil
}

func (s *PGGraphStore) Save(ctx context.Context, wf *models.Workflow) error {
	nodes, err := json.Marshal(wf.Nodes)
	if err != nil {
		return fmt.Errorf("failed to encode nodes: %w", err)
	}
	edges, err := json.Marshal(wf.Edges)
	if err != nil {
		return fmt.Errorf("failed to encode edges: %w", err)
	}
	data, err := json.Marshal(wf.Data)
	if err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, stack_id, nodes, edges, data, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (id) DO UPDATE SET
			stack_id = EXCLUDED.stack_id,
			nodes = EXCLUDED.nodes,
			edges = EXCLUDED.edges,
			data = EXCLUDED.data,
			updated_at = now()`, s.table)

	if _, err := s.pool.Exec(ctx, stmt, wf.ID, wf.StackID, nodes, edges, data); err != nil {
		return fmt.Errorf("failed to save workflow: %v", err)
	}

	return nil
}

var _ types.GraphStore = (*PGGraphStore)(nil)

// MemGraphStore is an in-memory GraphStore for tests and local development.
type MemGraphStore struct {
	mu        sync.RWMutex
	workflows map[string]models.Workflow
}

func NewMemGraphStore() *MemGraphStore {
	return &MemGraphStore{workflows: make(map[string]models.Workflow)}
}

func (s *MemGraphStore) Load(ctx context.Context, key string) (*models.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wf, ok := s.workflows[key]
	if !ok {
		return nil, fmt.Errorf("workflow %s: %w", key, types.ErrNotFound)
	}
	out := wf
	return &out, nil
}

func (s *MemGraphStore) Save(ctx context.Context, wf *models.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflows[wf.ID] = *wf
	return nil
}

var _ types.GraphStore = (*MemGraphStore)(nil)
