// Package ingest implements the chunk-and-embed ingestion pipeline: documents
// in, embedded chunks upserted into the vector store, partial failures
// isolated per chunk.
package ingest

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/runeset/semidx/internal/chunk"
	"github.com/runeset/semidx/internal/document"
	"github.com/runeset/semidx/internal/embed"
	"github.com/runeset/semidx/internal/vectorstore"
)

// Options bound the pipeline.
type Options struct {
	Concurrency   int           // max in-flight embedding calls
	MaxAttempts   int           // attempt cap per chunk
	BackoffBase   time.Duration // exponential backoff base
	BatchSize     int           // documents per streamed batch
	SkipUnchanged bool          // skip documents whose content hash matches the store
}

// BatchResult is the structured outcome of one ingested batch.
type BatchResult struct {
	BatchID       string
	Processed     int // documents fully ingested
	Failed        int // documents that produced no stored chunks
	Skipped       int // documents skipped (unchanged content or empty)
	ChunksWritten int
	ChunksFailed  int
	Elapsed       time.Duration
	Errors        []string
}

// ProgressEvent is emitted by IngestStream after each batch.
type ProgressEvent struct {
	Type      string // "progress", "complete", "error"
	Processed int
	Total     int
	Failures  int
	Message   string
	Batch     *BatchResult
}

// FailedChunk records a chunk whose retries were exhausted.
type FailedChunk struct {
	ChunkID  string
	Attempts int
	LastErr  string
}

// Metrics are cumulative pipeline counters, read via Snapshot.
type Metrics struct {
	DocumentsProcessed int
	DocumentsFailed    int
	DocumentsSkipped   int
	ChunksEmbedded     int
	ChunksFailed       int
	DeadLettered       int
}

// maxDeadLetter caps retained failure records so a persistently failing
// backend cannot grow memory without bound.
const maxDeadLetter = 256

// Pipeline coordinates chunking, embedding, and vector store writes.
type Pipeline struct {
	chunker *chunk.Chunker
	backend embed.Backend
	store   vectorstore.Store
	opts    Options

	mu         sync.Mutex
	metrics    Metrics
	deadLetter []FailedChunk
}

// NewPipeline creates an ingestion pipeline.
func NewPipeline(chunker *chunk.Chunker, backend embed.Backend, store vectorstore.Store, opts Options) *Pipeline {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 16
	}
	return &Pipeline{
		chunker: chunker,
		backend: backend,
		store:   store,
		opts:    opts,
	}
}

// IngestBatch processes one batch of documents. Each document is chunked,
// its chunks embedded under the concurrency cap with retries, and its chunk
// set atomically replaced in the store. One failing chunk never aborts the
// batch: the document keeps its surviving chunks and the failure is counted.
func (p *Pipeline) IngestBatch(ctx context.Context, docs []*document.Document) BatchResult {
	start := time.Now()
	result := BatchResult{BatchID: uuid.NewString()}

	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("batch aborted: %v", err))
			break
		}

		if p.opts.SkipUnchanged {
			if prior, ok := p.store.ContentHash(doc.ID); ok && prior == doc.ContentHash() {
				result.Skipped++
				p.bump(func(m *Metrics) { m.DocumentsSkipped++ })
				continue
			}
		}

		written, failed, err := p.ingestDocument(ctx, doc)
		result.ChunksWritten += written
		result.ChunksFailed += failed

		switch {
		case err != nil:
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", doc.ID, err))
			p.bump(func(m *Metrics) { m.DocumentsFailed++ })
		case written == 0 && failed > 0:
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: all %d chunks failed", doc.ID, failed))
			p.bump(func(m *Metrics) { m.DocumentsFailed++ })
		default:
			result.Processed++
			p.bump(func(m *Metrics) { m.DocumentsProcessed++ })
		}
	}

	result.Elapsed = time.Since(start)
	return result
}

// IngestStream processes documents in batches of Options.BatchSize and
// streams a progress event after each batch. The channel closes after the
// final "complete" (or "error") event.
func (p *Pipeline) IngestStream(ctx context.Context, docs []*document.Document) <-chan ProgressEvent {
	events := make(chan ProgressEvent, 1)

	go func() {
		defer close(events)

		total := len(docs)
		processed := 0
		failures := 0

		for start := 0; start < total; start += p.opts.BatchSize {
			if err := ctx.Err(); err != nil {
				events <- ProgressEvent{Type: "error", Processed: processed, Total: total,
					Failures: failures, Message: err.Error()}
				return
			}

			end := start + p.opts.BatchSize
			if end > total {
				end = total
			}

			batch := p.IngestBatch(ctx, docs[start:end])
			processed += batch.Processed + batch.Skipped
			failures += batch.Failed

			events <- ProgressEvent{
				Type:      "progress",
				Processed: processed,
				Total:     total,
				Failures:  failures,
				Message:   fmt.Sprintf("processed %d/%d documents", processed, total),
				Batch:     &batch,
			}
		}

		events <- ProgressEvent{
			Type:      "complete",
			Processed: processed,
			Total:     total,
			Failures:  failures,
			Message:   "ingestion complete",
		}
	}()

	return events
}

// ingestDocument chunks one document, embeds the chunks concurrently, and
// replaces the document's chunk set in the store with whatever succeeded.
func (p *Pipeline) ingestDocument(ctx context.Context, doc *document.Document) (written, failed int, err error) {
	chunks := p.chunker.Split(doc)
	if len(chunks) == 0 {
		return 0, 0, nil
	}

	vectors := make([][]float32, len(chunks))
	ok := make([]bool, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)

	for i := range chunks {
		g.Go(func() error {
			vec, embedErr := p.embedWithRetry(gctx, chunks[i])
			if embedErr != nil {
				// Chunk failure is isolated: record and move on.
				p.recordFailure(chunks[i].ID, embedErr)
				return nil
			}
			vectors[i] = vec
			ok[i] = true
			return nil
		})
	}
	if waitErr := g.Wait(); waitErr != nil {
		return 0, 0, waitErr
	}

	kept := make([]chunk.Chunk, 0, len(chunks))
	keptVectors := make([][]float32, 0, len(chunks))
	for i := range chunks {
		if ok[i] {
			// Reindex so stored chunk indices stay dense after drops.
			c := chunks[i]
			c.Index = len(kept)
			c.ID = chunk.ID(c.DocumentID, c.Index)
			kept = append(kept, c)
			keptVectors = append(keptVectors, vectors[i])
		} else {
			failed++
		}
	}

	if len(kept) == 0 {
		return 0, failed, nil
	}

	if err := p.store.ReplaceDocument(ctx, doc.ID, kept, keptVectors, doc.ContentHash()); err != nil {
		return 0, failed, err
	}

	p.bump(func(m *Metrics) { m.ChunksEmbedded += len(kept) })
	return len(kept), failed, nil
}

// embedWithRetry embeds one chunk with exponential backoff. Only transient
// failures are retried; the attempt cap bounds the worst case.
func (p *Pipeline) embedWithRetry(ctx context.Context, ck chunk.Chunk) ([]float32, error) {
	var lastErr error

	for attempt := 1; attempt <= p.opts.MaxAttempts; attempt++ {
		vecs, err := p.backend.Embed(ctx, []string{ck.Text}, embed.ModePassage)
		if err == nil {
			if len(vecs) != 1 {
				return nil, fmt.Errorf("backend returned %d vectors for one chunk", len(vecs))
			}
			return vecs[0], nil
		}

		lastErr = err
		if !embed.IsTransient(err) {
			break
		}
		if attempt == p.opts.MaxAttempts {
			break
		}

		delay := p.opts.BackoffBase * (1 << (attempt - 1))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, lastErr
}

// recordFailure counts an exhausted chunk and retains it in the dead-letter
// list for inspection.
func (p *Pipeline) recordFailure(chunkID string, err error) {
	log.Printf("[ingest] chunk %s failed after retries: %v", chunkID, err)

	p.mu.Lock()
	defer p.mu.Unlock()

	p.metrics.ChunksFailed++
	p.metrics.DeadLettered++
	if len(p.deadLetter) < maxDeadLetter {
		p.deadLetter = append(p.deadLetter, FailedChunk{
			ChunkID:  chunkID,
			Attempts: p.opts.MaxAttempts,
			LastErr:  err.Error(),
		})
	}
}

func (p *Pipeline) bump(fn func(*Metrics)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(&p.metrics)
}

// Snapshot returns a copy of the cumulative metrics.
func (p *Pipeline) Snapshot() Metrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.metrics
}

// DeadLetter returns a copy of the retained failure records.
func (p *Pipeline) DeadLetter() []FailedChunk {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]FailedChunk, len(p.deadLetter))
	copy(out, p.deadLetter)
	return out
}
