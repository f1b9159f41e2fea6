package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/stackrag/stackrag/internal/models"
	"github.com/stackrag/stackrag/internal/types"
)

// LocalFiles stores uploaded documents on the local filesystem.
type LocalFiles struct {
	dir string
}

func NewLocalFiles(dir string) (*LocalFiles, error) {
	if dir == "" {
		dir = "data/uploads"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	return &LocalFiles{dir: dir}, nil
}

func (l *LocalFiles) Put(contents []byte, name string) (models.DocumentRecord, error) {
	id := uuid.NewString()
	// keep the original name visible but namespace by id to avoid collisions
	path := filepath.Join(l.dir, id+"_"+filepath.Base(name))

	if err := os.WriteFile(path, contents, 0o644); err != nil {
		return models.DocumentRecord{}, fmt.Errorf("failed to write file: %w", err)
	}

	return models.DocumentRecord{
		ID:       id,
		FileName: name,
		Path:     path,
	}, nil
}

func (l *LocalFiles) Get(path string) ([]byte, error) {
	return os.ReadFile(path)
}

var _ types.FileStore = (*LocalFiles)(nil)
