// Package index wires watching, queueing, ingestion, and search into the
// continuous indexing service.
package index

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/runeset/semidx/internal/bulk"
	"github.com/runeset/semidx/internal/config"
	"github.com/runeset/semidx/internal/document"
	"github.com/runeset/semidx/internal/embed"
	"github.com/runeset/semidx/internal/filter"
	"github.com/runeset/semidx/internal/ingest"
	"github.com/runeset/semidx/internal/queue"
	"github.com/runeset/semidx/internal/vectorstore"
	"github.com/runeset/semidx/internal/watch"
)

// Stats is a snapshot of service activity since Start.
type Stats struct {
	Watching         bool
	StartedAt        time.Time
	QueueDepth       int
	QueueDropped     int64
	PendingDebounce  int
	BatchesProcessed int
	FilesIndexed     int
	FilesFailed      int
	FilesSkipped     int
	FilesRemoved     int
	ChunksWritten    int
	LastBatchAt      time.Time
	Store            vectorstore.Stats
}

// Service runs the continuous indexing loop: filesystem events are filtered,
// debounced, queued, batched, and fed through the ingestion pipeline. It also
// fronts search, removal, and bulk indexing.
type Service struct {
	cfg      *config.Config
	filter   *filter.Filter
	builder  *document.Builder
	backend  embed.Backend
	store    vectorstore.Store
	pipeline *ingest.Pipeline
	queue    *queue.Queue
	bulk     *bulk.Indexer
	notifier watch.Notifier

	running     atomic.Bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	stopTimeout time.Duration

	mu    sync.Mutex
	stats Stats
}

// storeCounter adapts store stats to the bulk indexer's populated check.
type storeCounter struct {
	store vectorstore.Store
}

func (c storeCounter) ChunkCount(ctx context.Context) (int, error) {
	stats, err := c.store.Stats(ctx)
	if err != nil {
		return 0, err
	}
	return stats.ChunkCount, nil
}

// New assembles a service from configuration and the given backend and
// store. The notifier defaults to native filesystem notifications.
func New(cfg *config.Config, backend embed.Backend, store vectorstore.Store) (*Service, error) {
	f, err := filter.New(cfg.Watch.Root, cfg.Watch.IncludePatterns, cfg.Watch.ExcludeDirs, cfg.Watch.ExcludeFiles, cfg.MaxFileSizeBytes())
	if err != nil {
		return nil, fmt.Errorf("compiling path filters: %w", err)
	}

	builder := document.NewBuilder(cfg.Watch.Root, f)

	pipeline := ingest.NewPipeline(
		newChunkerFromConfig(cfg),
		backend,
		store,
		ingest.Options{
			Concurrency:   cfg.Ingest.Concurrency,
			MaxAttempts:   cfg.Ingest.MaxAttempts,
			BackoffBase:   cfg.BackoffBase(),
			BatchSize:     cfg.Ingest.BatchSize,
			SkipUnchanged: true,
		},
	)

	checkpointPath := filepath.Join(cfg.Watch.Root, ".semidx", "bulk-checkpoint.json")
	bulkIndexer := bulk.New(cfg.Watch.Root, f, builder, pipeline, storeCounter{store}, cfg.Watch.BatchSize, checkpointPath)

	return &Service{
		cfg:         cfg,
		filter:      f,
		builder:     builder,
		backend:     backend,
		store:       store,
		pipeline:    pipeline,
		queue:       queue.New(cfg.Watch.MaxQueueSize),
		bulk:        bulkIndexer,
		notifier:    &watch.FSNotifier{SkipDir: f.ExcludedDir},
		stopTimeout: 10 * time.Second,
	}, nil
}

// SetNotifier overrides the filesystem notification source. Must be called
// before Start.
func (s *Service) SetNotifier(n watch.Notifier) {
	s.notifier = n
}

// Start begins watching and processing. If the filesystem subscription
// fails, the service logs the failure and stays up for search, removal, and
// bulk indexing; it does not crash.
func (s *Service) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("indexing service already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.mu.Lock()
	s.stats = Stats{StartedAt: time.Now()}
	s.mu.Unlock()

	debouncer := watch.NewDebouncer(s.cfg.DebounceInterval(), s.enqueue, s.removeAsync(runCtx))

	events, err := s.notifier.Subscribe(runCtx, s.cfg.Watch.Root)
	if err != nil {
		log.Printf("[index] filesystem watching unavailable: %v (search and manual indexing still work)", err)
	} else {
		s.mu.Lock()
		s.stats.Watching = true
		s.mu.Unlock()
		log.Printf("[index] watching %s (debounce %s, batch %d, queue %d)",
			s.cfg.Watch.Root, s.cfg.DebounceInterval(), s.cfg.Watch.BatchSize, s.cfg.Watch.MaxQueueSize)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.consumeEvents(events, debouncer)
		}()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			debouncer.Run(runCtx)
		}()
	}

	scheduler := queue.NewScheduler(s.queue, s.cfg.DebounceInterval(), s.cfg.Watch.BatchSize, s.processBatch)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		scheduler.Run(runCtx)
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.statsLoop(runCtx, debouncer)
	}()

	return nil
}

// Stop cancels processing and waits for in-flight work to finish. The wait
// is bounded: a dispatch that ignores cancellation is abandoned after the
// timeout so shutdown cannot hang.
func (s *Service) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	s.cancel()
	s.bulk.Stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Printf("[index] stopped")
	case <-time.After(s.stopTimeout):
		log.Printf("[index] stop timed out after %s, abandoning in-flight work", s.stopTimeout)
	}
}

// Running reports whether the service loop is active.
func (s *Service) Running() bool {
	return s.running.Load()
}

// consumeEvents filters raw notifications and feeds survivors into the
// debouncer. Deletions reach the removal path without debouncing.
func (s *Service) consumeEvents(events <-chan watch.Event, debouncer *watch.Debouncer) {
	for ev := range events {
		if !s.filter.ShouldWatch(ev.Path) {
			continue
		}
		debouncer.Observe(ev)
	}
}

// enqueue offers a settled path to the bounded queue. On overflow the path
// is dropped and counted; the queue logs the drop.
func (s *Service) enqueue(path string) {
	s.queue.Offer(path)
}

// removeAsync returns the deletion callback for the debouncer. Removal is
// fast (no embedding) so it runs inline on the event loop.
func (s *Service) removeAsync(ctx context.Context) func(path string) {
	return func(path string) {
		if _, err := s.Remove(ctx, path); err != nil {
			log.Printf("[index] failed to remove %s: %v", path, err)
		}
	}
}

// processBatch is the scheduler dispatch: builds documents for a batch of
// settled paths and ingests them.
func (s *Service) processBatch(ctx context.Context, paths []string) {
	docs := make([]*document.Document, 0, len(paths))
	skipped := 0
	for _, path := range paths {
		doc, err := s.builder.Build(path)
		if err != nil {
			log.Printf("[index] failed to read %s: %v", path, err)
			s.bump(func(st *Stats) { st.FilesFailed++ })
			continue
		}
		if doc == nil {
			skipped++
			continue
		}
		docs = append(docs, doc)
	}

	if len(docs) == 0 && skipped == 0 {
		return
	}

	result := s.pipeline.IngestBatch(ctx, docs)
	s.bump(func(st *Stats) {
		st.BatchesProcessed++
		st.FilesIndexed += result.Processed
		st.FilesFailed += result.Failed
		st.FilesSkipped += result.Skipped + skipped
		st.ChunksWritten += result.ChunksWritten
		st.LastBatchAt = time.Now()
	})

	log.Printf("[index] batch %s: %d indexed, %d skipped, %d failed, %d chunks in %s",
		result.BatchID, result.Processed, result.Skipped+skipped, result.Failed,
		result.ChunksWritten, result.Elapsed.Round(time.Millisecond))
	for _, msg := range result.Errors {
		log.Printf("[index] batch %s: %s", result.BatchID, msg)
	}
}

// Remove deletes every chunk of the document at path. Removing a document
// that was never indexed is a no-op.
func (s *Service) Remove(ctx context.Context, path string) (int, error) {
	docID := s.documentID(path)
	removed, err := s.store.DeleteByDocument(ctx, docID)
	if err != nil {
		return 0, fmt.Errorf("removing %s: %w", docID, err)
	}
	if removed > 0 {
		s.bump(func(st *Stats) { st.FilesRemoved++ })
		log.Printf("[index] removed %s (%d chunks)", docID, removed)
	}
	return removed, nil
}

// IngestPaths indexes the given paths immediately, bypassing the watch
// queue. Used by the CLI for one-off indexing.
func (s *Service) IngestPaths(ctx context.Context, paths []string) ingest.BatchResult {
	docs := make([]*document.Document, 0, len(paths))
	var errs []string
	for _, path := range paths {
		doc, err := s.builder.Build(path)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", path, err))
			continue
		}
		if doc != nil {
			docs = append(docs, doc)
		}
	}
	result := s.pipeline.IngestBatch(ctx, docs)
	result.Errors = append(result.Errors, errs...)
	result.Failed += len(errs)
	return result
}

// StartBulkIndex launches a full index of the root in the background. The
// indexer's single-run slot is claimed before this returns, so a concurrent
// start gets bulk.ErrAlreadyRunning rather than a silently dropped request.
func (s *Service) StartBulkIndex(ctx context.Context, force bool) error {
	return s.bulk.Start(ctx, force)
}

// RunBulkIndex runs a full index synchronously and returns its final
// progress.
func (s *Service) RunBulkIndex(ctx context.Context, force bool) (bulk.Progress, error) {
	return s.bulk.Run(ctx, force)
}

// BulkProgress reports the state of the current or last bulk run.
func (s *Service) BulkProgress() bulk.Progress {
	return s.bulk.Progress()
}

// StopBulkIndex requests a cooperative stop of the running bulk pass.
func (s *Service) StopBulkIndex() {
	s.bulk.Stop()
}

// SubscribeBulk registers an observer for bulk progress snapshots.
func (s *Service) SubscribeBulk(obs bulk.Observer) {
	s.bulk.Subscribe(obs)
}

// Pipeline exposes the ingestion pipeline for metrics and dead-letter
// inspection.
func (s *Service) Pipeline() *ingest.Pipeline {
	return s.pipeline
}

// Stats returns a point-in-time snapshot of service activity, including
// store counts.
func (s *Service) Stats(ctx context.Context) Stats {
	s.mu.Lock()
	snapshot := s.stats
	s.mu.Unlock()

	snapshot.QueueDepth = s.queue.Len()
	snapshot.QueueDropped = s.queue.Dropped()

	if storeStats, err := s.store.Stats(ctx); err == nil {
		snapshot.Store = storeStats
	}
	return snapshot
}

// statsLoop logs an activity summary on the configured interval.
func (s *Service) statsLoop(ctx context.Context, debouncer *watch.Debouncer) {
	interval := s.cfg.StatsInterval()
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := s.Stats(ctx)
			log.Printf("[index] stats: %d batches, %d indexed, %d removed, %d failed, queue %d (dropped %d), debouncing %d, store %d docs / %d chunks",
				st.BatchesProcessed, st.FilesIndexed, st.FilesRemoved, st.FilesFailed,
				st.QueueDepth, st.QueueDropped, debouncer.Pending(),
				st.Store.DocumentCount, st.Store.ChunkCount)
		}
	}
}

// documentID converts a path to the store's document identifier: the
// slash-separated path relative to the watch root. Relative arguments are
// resolved against the working directory first; a path that does not sit
// under the root is treated as an already-relative identifier.
func (s *Service) documentID(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.ToSlash(filepath.Clean(path))
	}
	rel, err := filepath.Rel(s.cfg.Watch.Root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.ToSlash(filepath.Clean(path))
	}
	return filepath.ToSlash(rel)
}

func (s *Service) bump(fn func(*Stats)) {
	s.mu.Lock()
	fn(&s.stats)
	s.mu.Unlock()
}
