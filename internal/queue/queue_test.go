package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan for Queue and Scheduler:
// - Offer succeeds up to capacity, then drops and counts
// - Len reflects queued items
// - Scheduler batches never exceed the batch size
// - Paths repeated within one drain are deduplicated
// - Items beyond one batch are delivered in a later batch, not lost
// - Run returns promptly on context cancellation

func TestQueue_OfferAndOverflow(t *testing.T) {
	t.Parallel()

	q := New(3)

	assert.True(t, q.Offer("a"))
	assert.True(t, q.Offer("b"))
	assert.True(t, q.Offer("c"))
	assert.Equal(t, 3, q.Len())
	assert.Equal(t, int64(0), q.Dropped())

	// Full: drop, never block.
	assert.False(t, q.Offer("d"))
	assert.False(t, q.Offer("e"))
	assert.Equal(t, int64(2), q.Dropped())
	assert.Equal(t, 3, q.Len())
}

func TestScheduler_BatchBounded(t *testing.T) {
	t.Parallel()

	q := New(100)
	for i := 0; i < 10; i++ {
		q.Offer(fmt.Sprintf("file%d.go", i))
	}

	var mu sync.Mutex
	var batches [][]string
	done := make(chan struct{})

	s := NewScheduler(q, 10*time.Millisecond, 4, func(ctx context.Context, paths []string) {
		mu.Lock()
		batches = append(batches, paths)
		total := 0
		for _, b := range batches {
			total += len(b)
		}
		mu.Unlock()
		if total == 10 {
			close(done)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for batches")
	}

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(batches), 3)
	seen := map[string]bool{}
	for _, batch := range batches {
		assert.LessOrEqual(t, len(batch), 4, "batch exceeds size bound")
		for _, path := range batch {
			assert.False(t, seen[path], "path %s delivered twice", path)
			seen[path] = true
		}
	}
	assert.Len(t, seen, 10)
}

func TestScheduler_DeduplicatesWithinBatch(t *testing.T) {
	t.Parallel()

	q := New(100)
	q.Offer("same.go")
	q.Offer("same.go")
	q.Offer("same.go")
	q.Offer("other.go")

	got := make(chan []string, 1)
	s := NewScheduler(q, 10*time.Millisecond, 25, func(ctx context.Context, paths []string) {
		select {
		case got <- paths:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	select {
	case batch := <-got:
		assert.ElementsMatch(t, []string{"same.go", "other.go"}, batch)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for batch")
	}
}

func TestScheduler_StopsOnCancel(t *testing.T) {
	t.Parallel()

	q := New(10)
	s := NewScheduler(q, time.Millisecond, 5, func(ctx context.Context, paths []string) {})

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(stopped)
	}()

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop on cancellation")
	}
}
