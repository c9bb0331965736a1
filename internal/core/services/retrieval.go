package services

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/custodia-labs/sercha-qa/internal/core/domain"
	"github.com/custodia-labs/sercha-qa/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-qa/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-qa/internal/runtime"
)

// Ensure retrievalEngine implements RetrievalService
var _ driving.RetrievalService = (*retrievalEngine)(nil)

const (
	// IndexWriteLock is the distributed lock name guarding index mutations
	IndexWriteLock = "index-write"

	defaultLockTTL   = 5 * time.Minute
	defaultK         = 7
	defaultThreshold = 0.8
)

// RetrievalConfig holds the collaborators and defaults of the retrieval engine
type RetrievalConfig struct {
	// Services, when set, supplies the embedding service on every call so a
	// replaced service takes effect at once. Otherwise Embedder is used.
	Services     *runtime.Services
	Embedder     driven.EmbeddingService
	IndexFactory driven.VectorIndexFactory
	Repository   driven.IndexRepository

	// Lock is optional; without it only the in-process mutex guards writes
	Lock    driven.DistributedLock
	LockTTL time.Duration

	// SyncBeforeWrite reloads the stored snapshot after taking the
	// distributed lock so that writes from other instances are not lost.
	SyncBeforeWrite bool

	DefaultK         int
	DefaultThreshold float64

	Logger *slog.Logger
}

// retrievalEngine implements the RetrievalService interface.
// One RWMutex guards index and mapping; searches take the read lock,
// every mutation takes the write lock for its whole duration.
type retrievalEngine struct {
	services   *runtime.Services
	embedder   driven.EmbeddingService
	factory    driven.VectorIndexFactory
	repository driven.IndexRepository
	lock       driven.DistributedLock
	lockTTL    time.Duration
	syncWrites bool
	defaultK   int
	threshold  float64
	logger     *slog.Logger

	mu      sync.RWMutex
	index   driven.VectorIndex // nil until the first batch is indexed
	mapping domain.ChunkMapping
	stored  [blake2b.Size256]byte // snapshotDigest of the last snapshot loaded or saved
}

// NewRetrievalEngine creates a new RetrievalService
func NewRetrievalEngine(cfg RetrievalConfig) driving.RetrievalService {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLockTTL
	}
	if cfg.DefaultK <= 0 {
		cfg.DefaultK = defaultK
	}
	if cfg.DefaultThreshold <= 0 {
		cfg.DefaultThreshold = defaultThreshold
	}

	return &retrievalEngine{
		services:   cfg.Services,
		embedder:   cfg.Embedder,
		factory:    cfg.IndexFactory,
		repository: cfg.Repository,
		lock:       cfg.Lock,
		lockTTL:    cfg.LockTTL,
		syncWrites: cfg.SyncBeforeWrite,
		defaultK:   cfg.DefaultK,
		threshold:  cfg.DefaultThreshold,
		logger:     cfg.Logger.With("component", "retrieval"),
		mapping:    make(domain.ChunkMapping),
	}
}

// Load restores the persisted snapshot
func (e *retrievalEngine) Load(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.loadLocked(ctx)
	return nil
}

// loadLocked replaces in-memory state with the stored snapshot.
// Missing or unreadable snapshots leave the engine empty.
func (e *retrievalEngine) loadLocked(ctx context.Context) {
	e.index = nil
	e.mapping = make(domain.ChunkMapping)
	e.stored = [blake2b.Size256]byte{}

	snapshot, err := e.repository.Load(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			e.logger.Info("no persisted index found, starting empty", "storage", e.repository.Name())
		} else {
			e.logger.Warn("failed to load persisted index, starting empty",
				"storage", e.repository.Name(), "error", err)
		}
		return
	}

	index, err := e.factory.Decode(snapshot.Index)
	if err != nil {
		e.logger.Warn("persisted index is unreadable, starting empty", "error", err)
		return
	}

	mapping := snapshot.Mapping
	if mapping == nil {
		mapping = make(domain.ChunkMapping)
	}
	if index.Len() != len(mapping) {
		e.logger.Warn("persisted index and mapping disagree",
			"vectors", index.Len(), "chunks", len(mapping))
	}

	if index.Len() > 0 {
		e.index = index
	}
	e.mapping = mapping
	e.stored = snapshotDigest(snapshot.Index, mapping)
	e.logger.Info("index loaded", "vectors", index.Len(), "chunks", len(mapping),
		"sources", len(mapping.Sources()))
}

// Refresh adopts a snapshot saved by another instance. Unlike Load, a
// snapshot that cannot be read or decoded keeps the current state and is
// returned as an error. Reports whether the in-memory state changed.
func (e *retrievalEngine) Refresh(ctx context.Context) (bool, error) {
	snapshot, err := e.repository.Load(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.index == nil && len(e.mapping) == 0 {
			return false, nil
		}
		e.index = nil
		e.mapping = make(domain.ChunkMapping)
		e.stored = [blake2b.Size256]byte{}
		e.logger.Info("stored index was cleared elsewhere, dropped local state")
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("load snapshot: %w", err)
	}

	mapping := snapshot.Mapping
	if mapping == nil {
		mapping = make(domain.ChunkMapping)
	}

	// The mapping is part of the digest: a read that caught a new blob next
	// to an old mapping must not hide the consistent pair read later.
	digest := snapshotDigest(snapshot.Index, mapping)
	e.mu.RLock()
	seen := e.stored
	e.mu.RUnlock()
	if digest == seen {
		return false, nil
	}

	index, err := e.factory.Decode(snapshot.Index)
	if err != nil {
		return false, fmt.Errorf("decode snapshot: %w", err)
	}
	if index.Len() != len(mapping) {
		e.logger.Warn("stored index and mapping disagree",
			"vectors", index.Len(), "chunks", len(mapping))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stored != seen {
		// A local write or load landed meanwhile and is at least as new.
		return false, nil
	}
	if index.Len() > 0 {
		e.index = index
	} else {
		e.index = nil
	}
	e.mapping = mapping
	e.stored = digest
	e.logger.Info("index refreshed from storage", "vectors", index.Len(), "chunks", len(mapping))
	return true, nil
}

// beginWrite takes the distributed lock (when configured) and the local
// write lock. The returned func releases both.
func (e *retrievalEngine) beginWrite(ctx context.Context) (func(), error) {
	if e.lock != nil {
		acquired, err := e.lock.Acquire(ctx, IndexWriteLock, e.lockTTL)
		if err != nil {
			return nil, fmt.Errorf("acquire index lock: %w", err)
		}
		if !acquired {
			return nil, domain.ErrIndexBusy
		}
	}

	e.mu.Lock()
	if e.lock != nil && e.syncWrites {
		e.loadLocked(ctx)
	}

	return func() {
		e.mu.Unlock()
		if e.lock != nil {
			// Release must not be skipped because the request context ended.
			if err := e.lock.Release(context.WithoutCancel(ctx), IndexWriteLock); err != nil {
				e.logger.Warn("failed to release index lock", "error", err)
			}
		}
	}, nil
}

// CreateIndex embeds a batch and merges it into the index
func (e *retrievalEngine) CreateIndex(ctx context.Context, chunks []*domain.Chunk) (*domain.IndexResult, error) {
	batch := dedupeChunks(chunks)
	if len(batch) == 0 {
		return nil, domain.ErrEmptyBatch
	}

	end, err := e.beginWrite(ctx)
	if err != nil {
		return nil, err
	}
	defer end()

	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Text
	}

	start := time.Now()
	embedder, err := e.embedding()
	if err != nil {
		return nil, err
	}
	vectors, err := embedder.Embed(ctx, texts)
	if err != nil {
		e.logger.Error("embedding failed", "chunks", len(batch), "error", err)
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(batch) {
		return nil, fmt.Errorf("embed chunks: got %d vectors for %d chunks: %w",
			len(vectors), len(batch), domain.ErrServiceUnavailable)
	}

	entries := make([]driven.IndexEntry, len(batch))
	for i, c := range batch {
		entries[i] = driven.IndexEntry{Key: c.Key(), Metadata: c.Metadata(), Vector: vectors[i]}
	}

	added, err := e.factory.Build(entries)
	if err != nil {
		return nil, fmt.Errorf("build index: %w", err)
	}
	if e.index != nil && e.index.Dimension() != 0 && added.Dimension() != e.index.Dimension() {
		return nil, fmt.Errorf("batch has dimension %d, index has %d: %w",
			added.Dimension(), e.index.Dimension(), domain.ErrDimensionMismatch)
	}

	var replaced []string
	for _, c := range batch {
		if _, exists := e.mapping[c.Key()]; exists {
			replaced = append(replaced, c.Key())
		}
	}

	result := &domain.IndexResult{ChunksAffected: len(batch)}

	switch {
	case e.index == nil:
		e.index = added
	case len(replaced) > 0:
		remover, ok := e.index.(driven.PointRemover)
		if !ok {
			// No point removal: apply the mapping change, then rebuild from it.
			next := e.mapping.Clone()
			for _, c := range batch {
				next[c.Key()] = c
			}
			index, err := e.rebuildFrom(ctx, next)
			if err != nil {
				return nil, err
			}
			e.index = index
			e.mapping = next
			result.Rebuilt = true
			result.TotalVectors = e.indexLen()
			result.PersistError = e.persistLocked(ctx)
			e.logCreate(result, len(replaced), start)
			return result, nil
		}
		// Merge first so a failed merge leaves the old vectors in place.
		snapshot, err := e.index.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("snapshot index: %w", err)
		}
		remover.Remove(replaced)
		if err := e.index.Merge(added); err != nil {
			if restored, derr := e.factory.Decode(snapshot); derr == nil {
				e.index = restored
			}
			return nil, fmt.Errorf("merge index: %w", err)
		}
	default:
		if err := e.index.Merge(added); err != nil {
			return nil, fmt.Errorf("merge index: %w", err)
		}
	}

	for _, c := range batch {
		e.mapping[c.Key()] = c
	}

	result.TotalVectors = e.indexLen()
	result.PersistError = e.persistLocked(ctx)
	e.logCreate(result, len(replaced), start)
	return result, nil
}

func (e *retrievalEngine) logCreate(result *domain.IndexResult, replaced int, start time.Time) {
	e.logger.Info("chunks indexed",
		"chunks", result.ChunksAffected,
		"replaced", replaced,
		"total_vectors", result.TotalVectors,
		"rebuilt", result.Rebuilt,
		"duration", time.Since(start))
}

// dedupeChunks drops nil chunks and keeps the last chunk for each key,
// in order of first appearance.
func dedupeChunks(chunks []*domain.Chunk) []*domain.Chunk {
	pos := make(map[string]int, len(chunks))
	out := make([]*domain.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if c == nil {
			continue
		}
		if i, seen := pos[c.Key()]; seen {
			out[i] = c
			continue
		}
		pos[c.Key()] = len(out)
		out = append(out, c)
	}
	return out
}

// SimilaritySearch returns the nearest chunks to query
func (e *retrievalEngine) SimilaritySearch(ctx context.Context, query string, opts domain.SearchOptions) ([]domain.SearchResult, error) {
	k := opts.K
	if k <= 0 {
		k = e.defaultK
	}

	e.mu.RLock()
	empty := e.index == nil || e.index.Len() == 0
	e.mu.RUnlock()
	if empty {
		return []domain.SearchResult{}, nil
	}

	embedder, err := e.embedding()
	if err != nil {
		return nil, err
	}
	vector, err := embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	// The index may have been reset while the query was embedded.
	if e.index == nil {
		return []domain.SearchResult{}, nil
	}

	hits, err := e.index.Search(vector, k, opts.Filter)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	results := make([]domain.SearchResult, 0, len(hits))
	for _, hit := range hits {
		chunk, ok := e.mapping[hit.Key]
		if !ok {
			e.logger.Debug("dropping hit without mapping entry", "key", hit.Key)
			continue
		}
		results = append(results, domain.SearchResult{
			Text:         chunk.Text,
			DocumentName: chunk.DocumentName,
			Score:        hit.Distance,
			ChunkIndex:   chunk.ChunkIndex,
		})
	}
	return results, nil
}

// SearchByDocument searches within one document
func (e *retrievalEngine) SearchByDocument(ctx context.Context, query, documentName string, k int) ([]domain.SearchResult, error) {
	return e.SimilaritySearch(ctx, query, domain.SearchOptions{K: k, Filter: domain.SourceFilter(documentName)})
}

// SearchByFileType searches within one file type
func (e *retrievalEngine) SearchByFileType(ctx context.Context, query, fileType string, k int) ([]domain.SearchResult, error) {
	ft := strings.ToLower(fileType)
	if ft != "" && !strings.HasPrefix(ft, ".") {
		ft = "." + ft
	}
	return e.SimilaritySearch(ctx, query, domain.SearchOptions{K: k, Filter: domain.FileTypeFilter(ft)})
}

// SearchWithThreshold keeps results with score <= threshold
func (e *retrievalEngine) SearchWithThreshold(ctx context.Context, query string, threshold float64, opts domain.SearchOptions) ([]domain.SearchResult, error) {
	if threshold < 0 {
		threshold = e.threshold
	}

	results, err := e.SimilaritySearch(ctx, query, opts)
	if err != nil {
		return nil, err
	}

	kept := results[:0]
	for _, r := range results {
		if r.Score <= threshold {
			kept = append(kept, r)
		}
	}
	return kept, nil
}

// GetRelevantContext renders search results as a context block
func (e *retrievalEngine) GetRelevantContext(ctx context.Context, query string, opts domain.SearchOptions) (string, error) {
	results, err := e.SimilaritySearch(ctx, query, opts)
	if err != nil {
		return "", err
	}

	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = "[" + r.DocumentName + "]: " + r.Text
	}
	return strings.Join(parts, "\n\n"), nil
}

// Stats reports the live index and mapping state
func (e *retrievalEngine) Stats(ctx context.Context) domain.IndexStats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	sources := e.mapping.Sources()
	stats := domain.IndexStats{
		TotalVectors:   e.indexLen(),
		TotalDocuments: len(e.mapping),
		UniqueSources:  len(sources),
		SourceList:     sources,
		IndexExists:    e.index != nil,
	}
	if e.index != nil {
		stats.Dimension = e.index.Dimension()
	}
	return stats
}

// DeleteDocumentsBySource removes every chunk of a document
func (e *retrievalEngine) DeleteDocumentsBySource(ctx context.Context, documentName string) (*domain.IndexResult, error) {
	end, err := e.beginWrite(ctx)
	if err != nil {
		return nil, err
	}
	defer end()

	keys := e.mapping.KeysForSource(documentName)
	if len(keys) == 0 {
		return nil, fmt.Errorf("document %q: %w", documentName, domain.ErrNotFound)
	}

	if len(keys) == len(e.mapping) {
		result := e.resetLocked(ctx)
		result.ChunksAffected = len(keys)
		e.logger.Info("last document deleted, index reset", "document", documentName, "chunks", len(keys))
		return result, nil
	}

	result := &domain.IndexResult{ChunksAffected: len(keys)}

	if remover, ok := e.index.(driven.PointRemover); ok && e.index != nil {
		remover.Remove(keys)
		for _, key := range keys {
			delete(e.mapping, key)
		}
	} else {
		next := e.mapping.Clone()
		for _, key := range keys {
			delete(next, key)
		}
		index, err := e.rebuildFrom(ctx, next)
		if err != nil {
			return nil, err
		}
		e.index = index
		e.mapping = next
		result.Rebuilt = true
	}

	result.TotalVectors = e.indexLen()
	result.PersistError = e.persistLocked(ctx)
	e.logger.Info("document deleted",
		"document", documentName,
		"chunks", len(keys),
		"rebuilt", result.Rebuilt,
		"total_vectors", result.TotalVectors)
	return result, nil
}

// RebuildIndex re-embeds every mapped chunk into a fresh index
func (e *retrievalEngine) RebuildIndex(ctx context.Context) (*domain.IndexResult, error) {
	end, err := e.beginWrite(ctx)
	if err != nil {
		return nil, err
	}
	defer end()

	if len(e.mapping) == 0 {
		result := e.resetLocked(ctx)
		return result, nil
	}

	start := time.Now()
	index, err := e.rebuildFrom(ctx, e.mapping)
	if err != nil {
		return nil, err
	}
	e.index = index

	result := &domain.IndexResult{
		ChunksAffected: len(e.mapping),
		TotalVectors:   index.Len(),
		Rebuilt:        true,
	}
	result.PersistError = e.persistLocked(ctx)
	e.logger.Info("index rebuilt", "chunks", len(e.mapping), "duration", time.Since(start))
	return result, nil
}

// rebuildFrom embeds every chunk of mapping into a new index without
// touching engine state. Cost is one embedding per chunk.
func (e *retrievalEngine) rebuildFrom(ctx context.Context, mapping domain.ChunkMapping) (driven.VectorIndex, error) {
	chunks := mapping.Ordered()
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	embedder, err := e.embedding()
	if err != nil {
		return nil, err
	}
	vectors, err := embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("rebuild index: embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("rebuild index: got %d vectors for %d chunks: %w",
			len(vectors), len(chunks), domain.ErrServiceUnavailable)
	}

	entries := make([]driven.IndexEntry, len(chunks))
	for i, c := range chunks {
		entries[i] = driven.IndexEntry{Key: c.Key(), Metadata: c.Metadata(), Vector: vectors[i]}
	}

	index, err := e.factory.Build(entries)
	if err != nil {
		return nil, fmt.Errorf("rebuild index: %w", err)
	}
	return index, nil
}

// ResetDatabase clears memory and durable storage
func (e *retrievalEngine) ResetDatabase(ctx context.Context) (*domain.IndexResult, error) {
	end, err := e.beginWrite(ctx)
	if err != nil {
		return nil, err
	}
	defer end()

	removed := len(e.mapping)
	result := e.resetLocked(ctx)
	result.ChunksAffected = removed
	e.logger.Info("index reset", "chunks", removed)
	return result, nil
}

func (e *retrievalEngine) resetLocked(ctx context.Context) *domain.IndexResult {
	e.index = nil
	e.mapping = make(domain.ChunkMapping)
	e.stored = [blake2b.Size256]byte{}

	result := &domain.IndexResult{}
	if err := e.repository.Clear(ctx); err != nil {
		e.logger.Error("failed to clear persisted index", "storage", e.repository.Name(), "error", err)
		result.PersistError = err
	}
	return result
}

// persistLocked saves index and mapping. Failures are logged and returned
// for IndexResult.PersistError.
func (e *retrievalEngine) persistLocked(ctx context.Context) error {
	if e.index == nil {
		return nil
	}

	if e.lock != nil {
		if err := e.lock.Extend(ctx, IndexWriteLock, e.lockTTL); err != nil {
			e.logger.Warn("failed to extend index lock before save", "error", err)
		}
	}

	blob, err := e.index.MarshalBinary()
	if err != nil {
		e.logger.Error("failed to serialise index", "error", err)
		return fmt.Errorf("serialise index: %w", err)
	}

	snapshot := &domain.Snapshot{Index: blob, Mapping: e.mapping.Clone()}
	if err := e.repository.Save(ctx, snapshot); err != nil {
		e.logger.Error("failed to persist index", "storage", e.repository.Name(), "error", err)
		return fmt.Errorf("persist index: %w", err)
	}
	e.stored = snapshotDigest(blob, snapshot.Mapping)
	return nil
}

// snapshotDigest hashes the index blob together with every mapping entry,
// keys sorted. Strings are length-prefixed.
func snapshotDigest(blob []byte, mapping domain.ChunkMapping) [blake2b.Size256]byte {
	h, _ := blake2b.New256(nil)
	var buf []byte
	putString := func(s string) {
		buf = binary.LittleEndian.AppendUint64(buf[:0], uint64(len(s)))
		h.Write(buf)
		h.Write([]byte(s))
	}

	putString(string(blob))
	for _, key := range slices.Sorted(maps.Keys(mapping)) {
		c := mapping[key]
		putString(key)
		if c == nil {
			putString("")
			continue
		}
		putString(c.DocumentName)
		putString(strconv.Itoa(c.ChunkIndex))
		putString(c.CreatedAt.UTC().Format(time.RFC3339Nano))
		putString(c.Text)
	}

	var sum [blake2b.Size256]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

// embedding returns the embedding service in effect for this call
func (e *retrievalEngine) embedding() (driven.EmbeddingService, error) {
	embedder := e.embedder
	if e.services != nil {
		embedder = e.services.EmbeddingService()
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: no embedding service configured", domain.ErrServiceUnavailable)
	}
	return embedder, nil
}

func (e *retrievalEngine) indexLen() int {
	if e.index == nil {
		return 0
	}
	return e.index.Len()
}
