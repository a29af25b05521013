// Package bulk performs the one-shot full index of an existing tree, with
// resumable progress and live status reporting.
package bulk

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/runeset/semidx/internal/document"
	"github.com/runeset/semidx/internal/filter"
	"github.com/runeset/semidx/internal/ingest"
)

// ErrAlreadyRunning is returned when a bulk run is requested while one is in
// flight.
var ErrAlreadyRunning = errors.New("bulk indexing already in progress")

// State names the phase of a bulk run.
type State string

const (
	StateIdle        State = "idle"
	StateDiscovering State = "discovering"
	StateIndexing    State = "indexing"
	StateStopping    State = "stopping"
	StateCompleted   State = "completed"
	StateSkipped     State = "skipped"
	StateFailed      State = "failed"
)

// Progress is an immutable snapshot of a bulk run.
type Progress struct {
	State          State
	TotalFiles     int
	ProcessedFiles int
	FailedFiles    int
	SkippedFiles   int
	ChunksWritten  int
	StartedAt      time.Time
	Elapsed        time.Duration
	ETA            time.Duration
	LastError      string
}

// Observer receives progress snapshots. Observers must not block; a panic in
// one observer is contained and logged.
type Observer func(Progress)

// ChunkCounter reports how many chunks the store currently holds. Used for
// the populated-store skip.
type ChunkCounter interface {
	ChunkCount(ctx context.Context) (int, error)
}

// Indexer walks the tree, builds documents, and feeds them through the
// ingestion pipeline in batches. At most one run at a time.
type Indexer struct {
	root           string
	filter         *filter.Filter
	builder        *document.Builder
	pipeline       *ingest.Pipeline
	counter        ChunkCounter
	batchSize      int
	checkpointPath string

	running atomic.Bool
	stop    atomic.Bool

	mu        sync.Mutex
	progress  Progress
	observers []Observer
}

// New creates a bulk indexer. checkpointPath, when non-empty, is where
// per-run progress is persisted so an interrupted run can resume without
// redoing finished files.
func New(root string, f *filter.Filter, builder *document.Builder, pipeline *ingest.Pipeline, counter ChunkCounter, batchSize int, checkpointPath string) *Indexer {
	if batchSize <= 0 {
		batchSize = 25
	}
	return &Indexer{
		root:           root,
		filter:         f,
		builder:        builder,
		pipeline:       pipeline,
		counter:        counter,
		batchSize:      batchSize,
		checkpointPath: checkpointPath,
		progress:       Progress{State: StateIdle},
	}
}

// Subscribe registers an observer for progress snapshots.
func (ix *Indexer) Subscribe(obs Observer) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.observers = append(ix.observers, obs)
}

// Progress returns the current snapshot.
func (ix *Indexer) Progress() Progress {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.progress
}

// Stop requests a cooperative stop. The in-flight batch finishes; remaining
// batches are abandoned and a checkpoint is written so the run can resume.
func (ix *Indexer) Stop() {
	if ix.running.Load() {
		ix.stop.Store(true)
		ix.update(func(p *Progress) {
			if p.State == StateIndexing || p.State == StateDiscovering {
				p.State = StateStopping
			}
		})
	}
}

// Run executes one bulk indexing pass. When the store already holds chunks
// and force is false the run finishes immediately in the skipped state.
// Returns ErrAlreadyRunning if a run is in flight.
func (ix *Indexer) Run(ctx context.Context, force bool) (Progress, error) {
	if !ix.running.CompareAndSwap(false, true) {
		return ix.Progress(), ErrAlreadyRunning
	}
	return ix.run(ctx, force)
}

// Start claims the single-run slot and executes the pass in the background.
// The claim happens before Start returns, so a concurrent Start or Run gets
// ErrAlreadyRunning instead of having its request dropped. This covers a run
// that is still draining its in-flight batch after Stop: the slot stays
// claimed until run returns. Failures of the background pass land in
// Progress.LastError and the log.
func (ix *Indexer) Start(ctx context.Context, force bool) error {
	if !ix.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	go func() {
		_, _ = ix.run(ctx, force)
	}()
	return nil
}

// run is the pass body. The caller holds the running slot; run releases it.
func (ix *Indexer) run(ctx context.Context, force bool) (Progress, error) {
	defer ix.running.Store(false)
	ix.stop.Store(false)

	start := time.Now()
	ix.update(func(p *Progress) {
		*p = Progress{State: StateDiscovering, StartedAt: start}
	})

	// An existing checkpoint means an unfinished pass: resume it even when
	// the store is populated.
	done := ix.loadCheckpoint(force)

	if !force && len(done) == 0 && ix.counter != nil {
		count, err := ix.counter.ChunkCount(ctx)
		if err != nil {
			return ix.fail(start, fmt.Errorf("checking existing index: %w", err))
		}
		if count > 0 {
			log.Printf("[bulk] store already holds %d chunks, skipping (use force to reindex)", count)
			ix.update(func(p *Progress) {
				p.State = StateSkipped
				p.Elapsed = time.Since(start)
			})
			return ix.Progress(), nil
		}
	}

	paths, err := ix.discover()
	if err != nil {
		return ix.fail(start, fmt.Errorf("discovering files: %w", err))
	}
	remaining := make([]string, 0, len(paths))
	for _, path := range paths {
		if !done[path] {
			remaining = append(remaining, path)
		}
	}
	if resumed := len(paths) - len(remaining); resumed > 0 {
		log.Printf("[bulk] resuming: %d of %d files already indexed", resumed, len(paths))
	}

	ix.update(func(p *Progress) {
		p.State = StateIndexing
		p.TotalFiles = len(paths)
		p.ProcessedFiles = len(paths) - len(remaining)
		p.Elapsed = time.Since(start)
	})
	log.Printf("[bulk] indexing %d files from %s in batches of %d", len(remaining), ix.root, ix.batchSize)

	for offset := 0; offset < len(remaining); offset += ix.batchSize {
		if err := ctx.Err(); err != nil {
			ix.saveCheckpoint(done)
			return ix.fail(start, err)
		}
		if ix.stop.Load() {
			ix.saveCheckpoint(done)
			log.Printf("[bulk] stopped after %d of %d files", ix.Progress().ProcessedFiles, len(paths))
			ix.update(func(p *Progress) {
				p.State = StateIdle
				p.Elapsed = time.Since(start)
			})
			return ix.Progress(), nil
		}

		end := offset + ix.batchSize
		if end > len(remaining) {
			end = len(remaining)
		}
		batch := remaining[offset:end]

		docs := make([]*document.Document, 0, len(batch))
		skipped := 0
		for _, path := range batch {
			doc, err := ix.builder.Build(path)
			if err != nil {
				log.Printf("[bulk] failed to read %s: %v", path, err)
				ix.update(func(p *Progress) { p.FailedFiles++ })
				done[path] = true
				continue
			}
			if doc == nil {
				skipped++
				done[path] = true
				continue
			}
			docs = append(docs, doc)
		}

		result := ix.pipeline.IngestBatch(ctx, docs)
		for _, doc := range docs {
			done[doc.AbsPath] = true
		}

		ix.update(func(p *Progress) {
			p.ProcessedFiles += result.Processed + result.Skipped + skipped
			p.FailedFiles += result.Failed
			p.SkippedFiles += result.Skipped + skipped
			p.ChunksWritten += result.ChunksWritten
			p.Elapsed = time.Since(start)
			p.ETA = estimateETA(p.Elapsed, p.ProcessedFiles+p.FailedFiles, p.TotalFiles)
		})
		ix.saveCheckpoint(done)
	}

	ix.clearCheckpoint()
	ix.update(func(p *Progress) {
		p.State = StateCompleted
		p.Elapsed = time.Since(start)
		p.ETA = 0
	})
	final := ix.Progress()
	log.Printf("[bulk] completed: %d files, %d chunks, %d failures in %s",
		final.ProcessedFiles, final.ChunksWritten, final.FailedFiles, final.Elapsed.Round(time.Millisecond))
	return final, nil
}

// discover walks the root collecting eligible files in a stable order.
func (ix *Indexer) discover() ([]string, error) {
	var paths []string
	err := filepath.Walk(ix.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if path == ix.root {
				return err
			}
			log.Printf("[bulk] error accessing %s: %v", path, err)
			return nil
		}
		if info.IsDir() {
			if path != ix.root && ix.filter.ExcludedDir(info.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if ix.filter.ShouldInclude(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

// fail transitions to the failed state and returns the error.
func (ix *Indexer) fail(start time.Time, err error) (Progress, error) {
	log.Printf("[bulk] indexing failed: %v", err)
	ix.update(func(p *Progress) {
		p.State = StateFailed
		p.Elapsed = time.Since(start)
		p.LastError = err.Error()
	})
	return ix.Progress(), err
}

// update mutates the snapshot under the lock, then notifies observers with a
// copy outside it.
func (ix *Indexer) update(fn func(*Progress)) {
	ix.mu.Lock()
	fn(&ix.progress)
	snapshot := ix.progress
	observers := ix.observers
	ix.mu.Unlock()

	for _, obs := range observers {
		notify(obs, snapshot)
	}
}

func notify(obs Observer, p Progress) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[bulk] progress observer panicked: %v", r)
		}
	}()
	obs(p)
}

// estimateETA projects remaining time from the observed rate so far.
func estimateETA(elapsed time.Duration, completed, total int) time.Duration {
	if completed <= 0 || total <= completed {
		return 0
	}
	perFile := elapsed / time.Duration(completed)
	return perFile * time.Duration(total-completed)
}
