package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"lecture-rag/internal/domain"
	"lecture-rag/internal/logging"
)

// CollectionFile is the per-lecture embedding cache file name, stored
// inside the lecture's chunk directory.
const CollectionFile = "embeddings.json"

// collection is the persisted lecture-scoped embedding cache.
type collection struct {
	Chunks []domain.CachedChunk `json:"chunks"`
}

// Store computes and persists chunk embeddings for one lecture chunk
// directory, reusing cached vectors whose model identity matches.
type Store struct {
	dir       string
	embedder  domain.Embedder
	batchSize int
	log       *logging.Logger
}

// NewStore creates an embedding store rooted at the lecture's chunk
// directory.
func NewStore(dir string, embedder domain.Embedder, batchSize int, log *logging.Logger) *Store {
	if batchSize <= 0 {
		batchSize = 32
	}
	return &Store{dir: dir, embedder: embedder, batchSize: batchSize, log: log}
}

// EnsureEmbedded maps the given chunks to vectors, computing and
// persisting any that are not cached under the current model identity.
// Each batch is persisted as soon as it succeeds, so a later batch
// failure never invalidates earlier successes. The returned map holds
// every vector that exists even when err is non-nil.
func (s *Store) EnsureEmbedded(ctx context.Context, chunks []domain.Chunk) (map[string][]float64, error) {
	cached, err := s.Load()
	if err != nil {
		return nil, err
	}
	byID := make(map[string]domain.CachedChunk, len(cached))
	for _, cc := range cached {
		byID[cc.Chunk.ID] = cc
	}

	modelID := s.embedder.ModelID()
	result := make(map[string][]float64, len(chunks))
	var missing []domain.Chunk
	for _, ch := range chunks {
		if cc, ok := byID[ch.ID]; ok && cc.ModelID == modelID {
			result[ch.ID] = cc.Vector
			continue
		}
		missing = append(missing, ch)
	}
	if len(missing) == 0 {
		return result, nil
	}
	s.log.Info("embedding chunks", "total", len(chunks), "cached", len(chunks)-len(missing), "missing", len(missing), "model", modelID)

	var errs []error
	for start := 0; start < len(missing); start += s.batchSize {
		end := start + s.batchSize
		if end > len(missing) {
			end = len(missing)
		}
		batch := missing[start:end]
		texts := make([]string, len(batch))
		for i, ch := range batch {
			texts[i] = ch.Text
		}
		vectors, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			errs = append(errs, fmt.Errorf("embed batch %d-%d: %w", start, end, err))
			s.log.Warn("embedding batch failed", "from", start, "to", end, "error", err)
			continue
		}
		for i, ch := range batch {
			byID[ch.ID] = domain.CachedChunk{Chunk: ch, Vector: vectors[i], ModelID: modelID}
			result[ch.ID] = vectors[i]
		}
		// persist this batch before attempting the next
		if err := s.save(byID, chunks); err != nil {
			errs = append(errs, err)
			break
		}
	}
	return result, errors.Join(errs...)
}

// Load reads the lecture's cached collection. A missing file is an
// empty collection, not an error.
func (s *Store) Load() ([]domain.CachedChunk, error) {
	return LoadCollection(s.dir)
}

func (s *Store) save(byID map[string]domain.CachedChunk, order []domain.Chunk) error {
	col := collection{}
	seen := make(map[string]bool, len(byID))
	// chunk order within the lecture is preserved on persist
	for _, ch := range order {
		if cc, ok := byID[ch.ID]; ok {
			col.Chunks = append(col.Chunks, cc)
			seen[ch.ID] = true
		}
	}
	for _, cc := range byID {
		if !seen[cc.Chunk.ID] {
			col.Chunks = append(col.Chunks, cc)
		}
	}
	data, err := json.MarshalIndent(col, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(s.dir, CollectionFile), data)
}

// LoadCollection reads one lecture chunk directory's embedding cache.
func LoadCollection(dir string) ([]domain.CachedChunk, error) {
	data, err := os.ReadFile(filepath.Join(dir, CollectionFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var col collection
	if err := json.Unmarshal(data, &col); err != nil {
		return nil, fmt.Errorf("corrupt embedding collection in %s: %w", dir, err)
	}
	return col.Chunks, nil
}

// LoadCourse reads every lecture collection under baseDir (directories
// named *_chunks), concatenated in directory-name order. A missing
// base directory is an empty course.
func LoadCourse(baseDir string) ([]domain.CachedChunk, error) {
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var all []domain.CachedChunk
	for _, e := range entries {
		if !e.IsDir() || !strings.HasSuffix(e.Name(), "_chunks") {
			continue
		}
		chunks, err := LoadCollection(filepath.Join(baseDir, e.Name()))
		if err != nil {
			return nil, err
		}
		all = append(all, chunks...)
	}
	return all, nil
}

// writeFileAtomic writes via a temp file in the same directory and
// renames it over the target, so readers never see a partial file.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".embeddings-*.tmp")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	return os.Rename(name, path)
}
