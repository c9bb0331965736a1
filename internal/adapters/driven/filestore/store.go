// Package filestore persists the index snapshot as two files on local disk:
// the serialized vector index and a JSON chunk mapping.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/custodia-labs/sercha-qa/internal/core/domain"
	"github.com/custodia-labs/sercha-qa/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.IndexRepository = (*Store)(nil)

const indexFileName = "index.bin"

// Config locates the two artifacts.
type Config struct {
	// IndexDir holds the serialized index (data/vector_db)
	IndexDir string
	// MappingPath is the JSON chunk mapping (data/metadata.json)
	MappingPath string
}

// DefaultConfig returns the conventional layout under dataDir.
func DefaultConfig(dataDir string) Config {
	return Config{
		IndexDir:    filepath.Join(dataDir, "vector_db"),
		MappingPath: filepath.Join(dataDir, "metadata.json"),
	}
}

// Store implements driven.IndexRepository on the local filesystem.
//
// Each artifact is written to a temp file, synced and renamed into place, so
// neither file is ever observed half-written. The pair is not atomic: a crash
// between the two renames leaves a new index next to the old mapping. Load
// callers detect that by comparing the index size with the mapping size.
type Store struct {
	cfg Config
}

// New creates a file store.
func New(cfg Config) *Store {
	return &Store{cfg: cfg}
}

// Name returns the backend name
func (s *Store) Name() string {
	return "file"
}

func (s *Store) indexPath() string {
	return filepath.Join(s.cfg.IndexDir, indexFileName)
}

// Save writes the index first, then the mapping.
func (s *Store) Save(ctx context.Context, snapshot *domain.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	mapping, err := json.MarshalIndent(snapshot.Mapping, "", "  ")
	if err != nil {
		return fmt.Errorf("encode chunk mapping: %w", err)
	}

	if err := writeAtomic(s.indexPath(), snapshot.Index); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	if err := writeAtomic(s.cfg.MappingPath, mapping); err != nil {
		return fmt.Errorf("write chunk mapping: %w", err)
	}
	return nil
}

// Load reads both artifacts. Returns domain.ErrNotFound if either is missing.
func (s *Store) Load(ctx context.Context) (*domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	blob, err := os.ReadFile(s.indexPath())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}

	raw, err := os.ReadFile(s.cfg.MappingPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read chunk mapping: %w", err)
	}

	mapping := make(domain.ChunkMapping)
	if err := json.Unmarshal(raw, &mapping); err != nil {
		return nil, fmt.Errorf("%w: chunk mapping: %v", domain.ErrCorruptArtifact, err)
	}

	return &domain.Snapshot{Index: blob, Mapping: mapping}, nil
}

// Clear deletes both artifacts and leftover temp files. The index directory
// is removed only once it is empty; nothing else in it is touched.
func (s *Store) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, path := range []string{s.indexPath(), s.cfg.MappingPath} {
		if err := removeArtifact(path); err != nil {
			return err
		}
	}

	entries, err := os.ReadDir(s.cfg.IndexDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read index dir: %w", err)
	}
	if len(entries) == 0 {
		if err := os.Remove(s.cfg.IndexDir); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove index dir: %w", err)
		}
	}
	return nil
}

// removeArtifact deletes path and any temp files writeAtomic left next to it.
func removeArtifact(path string) error {
	temps, err := filepath.Glob(path + ".tmp-*")
	if err != nil {
		return err
	}
	for _, p := range append(temps, path) {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", filepath.Base(p), err)
		}
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
