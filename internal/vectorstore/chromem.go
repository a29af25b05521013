package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/philippgille/chromem-go"

	"github.com/runeset/semidx/internal/chunk"
)

const collectionName = "semidx"

// docEntry tracks per-document bookkeeping the collection itself does not
// expose: chunk count and the content hash of the indexed version.
type docEntry struct {
	Chunks int    `json:"chunks"`
	Hash   string `json:"hash"`
}

// chromemStore implements Store on top of chromem-go. A single RWMutex makes
// document replacement appear atomic to concurrent readers; chromem is
// internally thread-safe but has no multi-operation transactions.
type chromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	model      string
	path       string // persistence dir, empty for in-memory

	mu   sync.RWMutex
	docs map[string]docEntry
}

// storeMeta is the sidecar state persisted next to the chromem files.
type storeMeta struct {
	Model string              `json:"model"`
	Docs  map[string]docEntry `json:"docs"`
}

// New opens a vector store. With a non-empty path the chromem database and
// document bookkeeping persist across restarts; the recorded embedding model
// must then match the configured one.
func New(path, model string) (Store, error) {
	var db *chromem.DB
	var err error

	if path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("failed to open vector store at %s: %w", path, err)
		}
	}

	// Embeddings are computed upstream by the ingestion pipeline; the
	// collection must never embed on its own.
	noEmbed := func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("store-side embedding is not supported")
	}

	collection, err := db.GetOrCreateCollection(collectionName, map[string]string{"model": model}, noEmbed)
	if err != nil {
		return nil, fmt.Errorf("failed to open collection: %w", err)
	}

	s := &chromemStore{
		db:         db,
		collection: collection,
		model:      model,
		path:       path,
		docs:       make(map[string]docEntry),
	}

	if path != "" {
		meta, err := loadMeta(s.metaPath())
		if err != nil {
			return nil, err
		}
		if meta != nil {
			if meta.Model != "" && meta.Model != model {
				return nil, fmt.Errorf("%w: store was built with %q, configured model is %q",
					ErrModelMismatch, meta.Model, model)
			}
			s.docs = meta.Docs
		}
	}

	return s, nil
}

func (s *chromemStore) ReplaceDocument(ctx context.Context, docID string, chunks []chunk.Chunk, vectors [][]float32, contentHash string) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunk/vector count mismatch: %d vs %d", len(chunks), len(vectors))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Delete-then-insert under the write lock gives readers an atomic swap.
	if _, ok := s.docs[docID]; ok {
		if err := s.collection.Delete(ctx, map[string]string{"document_id": docID}, nil); err != nil {
			return fmt.Errorf("failed to delete prior chunks of %s: %w", docID, err)
		}
	}

	for i, ck := range chunks {
		metadata := map[string]string{
			"document_id": ck.DocumentID,
			"chunk_index": fmt.Sprintf("%d", ck.Index),
		}
		for k, v := range ck.Metadata {
			metadata[k] = v
		}

		doc := chromem.Document{
			ID:        ck.ID,
			Content:   ck.Text,
			Embedding: vectors[i],
			Metadata:  metadata,
		}
		if err := s.collection.AddDocument(ctx, doc); err != nil {
			return fmt.Errorf("failed to add chunk %s: %w", ck.ID, err)
		}
	}

	if len(chunks) == 0 {
		delete(s.docs, docID)
	} else {
		s.docs[docID] = docEntry{Chunks: len(chunks), Hash: contentHash}
	}
	s.saveMetaLocked()

	return nil
}

func (s *chromemStore) DeleteByDocument(ctx context.Context, docID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.docs[docID]
	if !ok {
		return 0, nil
	}

	if err := s.collection.Delete(ctx, map[string]string{"document_id": docID}, nil); err != nil {
		return 0, fmt.Errorf("failed to delete chunks of %s: %w", docID, err)
	}

	delete(s.docs, docID)
	s.saveMetaLocked()

	return entry.Chunks, nil
}

func (s *chromemStore) Search(ctx context.Context, vector []float32, topK int, model string) ([]Hit, error) {
	if model != s.model {
		return nil, fmt.Errorf("%w: store model %q, query model %q", ErrModelMismatch, s.model, model)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	// chromem rejects nResults beyond the collection size.
	count := s.collection.Count()
	if count == 0 {
		return nil, nil
	}
	if topK > count {
		topK = count
	}

	results, err := s.collection.QueryEmbedding(ctx, vector, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, res := range results {
		hits = append(hits, Hit{
			ChunkID:    res.ID,
			DocumentID: res.Metadata["document_id"],
			Score:      res.Similarity,
			Text:       res.Content,
			Metadata:   res.Metadata,
		})
	}
	return hits, nil
}

func (s *chromemStore) ContentHash(docID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.docs[docID]
	if !ok || entry.Hash == "" {
		return "", false
	}
	return entry.Hash, true
}

func (s *chromemStore) Stats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chunks := s.collection.Count()
	return Stats{
		DocumentCount: len(s.docs),
		ChunkCount:    chunks,
		EmbeddedCount: chunks, // every stored chunk carries an embedding
	}, nil
}

func (s *chromemStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveMetaLocked()
	return nil
}

func (s *chromemStore) metaPath() string {
	return filepath.Join(s.path, "semidx-meta.json")
}

// saveMetaLocked persists document bookkeeping. Best-effort: a failed write
// is logged, not propagated, since the chromem data itself already landed.
func (s *chromemStore) saveMetaLocked() {
	if s.path == "" {
		return
	}

	data, err := json.MarshalIndent(storeMeta{Model: s.model, Docs: s.docs}, "", "  ")
	if err != nil {
		log.Printf("[store] failed to encode meta: %v", err)
		return
	}
	if err := os.WriteFile(s.metaPath(), data, 0o644); err != nil {
		log.Printf("[store] failed to write meta: %v", err)
	}
}

func loadMeta(path string) (*storeMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read store meta: %w", err)
	}

	meta := &storeMeta{}
	if err := json.Unmarshal(data, meta); err != nil {
		return nil, fmt.Errorf("failed to decode store meta: %w", err)
	}
	if meta.Docs == nil {
		meta.Docs = make(map[string]docEntry)
	}
	return meta, nil
}
