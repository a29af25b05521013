// Package queue provides the bounded indexing queue and the batch scheduler
// that decouples bursty filesystem activity from embedding cost.
package queue

import (
	"context"
	"log"
	"sync/atomic"
	"time"
)

// Queue is a bounded FIFO of paths awaiting indexing. Producers never block:
// offers to a full queue are dropped and counted.
type Queue struct {
	ch      chan string
	dropped atomic.Int64
}

// New creates a queue with the given capacity.
func New(capacity int) *Queue {
	return &Queue{
		ch: make(chan string, capacity),
	}
}

// Offer enqueues a path without blocking. On overflow the path is dropped,
// the drop counter incremented, and false returned.
func (q *Queue) Offer(path string) bool {
	select {
	case q.ch <- path:
		return true
	default:
		q.dropped.Add(1)
		log.Printf("[queue] full, dropping %s", path)
		return false
	}
}

// Len returns the number of queued paths.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Dropped returns the cumulative overflow drop count.
func (q *Queue) Dropped() int64 {
	return q.dropped.Load()
}

// Scheduler drains the queue into bounded batches. After the first ready
// item it sleeps the coalesce interval so near-simultaneous changes land in
// one batch, then drains non-blockingly up to the batch size.
type Scheduler struct {
	queue     *Queue
	coalesce  time.Duration
	batchSize int
	dispatch  func(ctx context.Context, paths []string)
}

// NewScheduler creates a scheduler. dispatch is invoked synchronously with
// each drained batch; batches never exceed batchSize.
func NewScheduler(q *Queue, coalesce time.Duration, batchSize int, dispatch func(ctx context.Context, paths []string)) *Scheduler {
	return &Scheduler{
		queue:     q,
		coalesce:  coalesce,
		batchSize: batchSize,
		dispatch:  dispatch,
	}
}

// Run loops until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		var first string
		select {
		case <-ctx.Done():
			return
		case first = <-s.queue.ch:
		}

		// Allow trailing changes from the same burst to arrive.
		if s.coalesce > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.coalesce):
			}
		}

		batch := s.drain(first)
		s.dispatch(ctx, batch)
	}
}

// drain collects up to batchSize ready paths without blocking, deduplicating
// repeats of the same path within the batch.
func (s *Scheduler) drain(first string) []string {
	batch := []string{first}
	seen := map[string]bool{first: true}

	for len(batch) < s.batchSize {
		select {
		case path := <-s.queue.ch:
			if seen[path] {
				continue
			}
			seen[path] = true
			batch = append(batch, path)
		default:
			return batch
		}
	}
	return batch
}
