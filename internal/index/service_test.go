package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runeset/semidx/internal/bulk"
	"github.com/runeset/semidx/internal/config"
	"github.com/runeset/semidx/internal/embed"
	"github.com/runeset/semidx/internal/vectorstore"
)

// Test Plan for the indexing service:
// - IngestPaths indexes files immediately and search finds them
// - Search applies topK and the similarity floor, results descend by score
// - A zero floor still drops negative-similarity hits
// - Searching an empty index yields no hits and no error
// - Remove deletes a document's chunks; removing again is a no-op
// - Remove resolves relative paths and accepts stored identifiers
// - A second Start fails while the first is running
// - A second background bulk start is rejected, never silently dropped
// - Stop returns within its bound even when a dispatch ignores cancellation
// - End to end: a written file is picked up by the watch loop and indexed,
//   deleting it removes it from the store
// - Bulk indexing runs through the service facade

const testModel = "test-model"

func testConfig(t *testing.T, root string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Watch.Root = root
	cfg.Watch.DebounceSeconds = 0.05
	cfg.Watch.BatchSize = 10
	cfg.Embedding.Provider = "mock"
	cfg.Embedding.Model = testModel
	cfg.Embedding.Dimensions = 16
	cfg.Ingest.BackoffBaseSec = 0.001
	require.NoError(t, config.Validate(cfg))
	return cfg
}

func newTestService(t *testing.T, root string) *Service {
	t.Helper()
	cfg := testConfig(t, root)

	backend := embed.New(cfg.Embedding.Provider, cfg.Embedding.Endpoint, cfg.Embedding.Model, cfg.Embedding.Dimensions)
	store, err := vectorstore.New("", cfg.Embedding.Model)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	svc, err := New(cfg, backend, store)
	require.NoError(t, err)
	return svc
}

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// waitUntil polls cond until it holds or the deadline passes.
func waitUntil(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestService_IngestAndSearch(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	a := writeFile(t, root, "greet.go", "package main\n\nfunc Greet() string { return \"hello\" }\n")
	b := writeFile(t, root, "math.go", "package main\n\nfunc Square(x int) int { return x * x }\n")

	svc := newTestService(t, root)
	ctx := context.Background()

	result := svc.IngestPaths(ctx, []string{a, b})
	require.Equal(t, 2, result.Processed)
	require.Equal(t, 0, result.Failed)

	found, err := svc.Search(ctx, "package main\n\nfunc Greet() string { return \"hello\" }\n", 5, 0)
	require.NoError(t, err)
	require.NotEmpty(t, found.Hits)
	assert.Equal(t, "greet.go", found.Hits[0].DocumentID)
	assert.Greater(t, found.EmbedTime, time.Duration(0))

	for i := 1; i < len(found.Hits); i++ {
		assert.GreaterOrEqual(t, found.Hits[i-1].Score, found.Hits[i].Score)
	}
}

func TestService_SearchThresholdAndTopK(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	paths := []string{
		writeFile(t, root, "a.go", "package a\n\nvar A = 1\n"),
		writeFile(t, root, "b.go", "package b\n\nvar B = 2\n"),
		writeFile(t, root, "c.go", "package c\n\nvar C = 3\n"),
	}

	svc := newTestService(t, root)
	ctx := context.Background()
	require.Equal(t, 3, svc.IngestPaths(ctx, paths).Processed)

	limited, err := svc.Search(ctx, "var A", 2, 0)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(limited.Hits), 2)

	// A floor above every achievable score filters everything out. Mock
	// embeddings of different texts are effectively uncorrelated, so 0.999
	// is unreachable.
	strict, err := svc.Search(ctx, "var A", 10, 0.999)
	require.NoError(t, err)
	assert.Empty(t, strict.Hits)
}

// stubStore returns canned hits from Search; everything else is unused.
type stubStore struct {
	vectorstore.Store
	hits []vectorstore.Hit
}

func (s stubStore) Search(ctx context.Context, vector []float32, topK int, model string) ([]vectorstore.Hit, error) {
	return s.hits, nil
}

func TestService_SearchZeroFloorDropsNegativeScores(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, t.TempDir())
	svc.store = stubStore{hits: []vectorstore.Hit{
		{DocumentID: "pos.go", Score: 0.42},
		{DocumentID: "zero.go", Score: 0},
		{DocumentID: "neg.go", Score: -0.17},
	}}

	result, err := svc.Search(context.Background(), "anything", 10, 0)

	require.NoError(t, err)
	require.Len(t, result.Hits, 2)
	for _, hit := range result.Hits {
		assert.GreaterOrEqual(t, hit.Score, float32(0))
	}
}

func TestService_SearchEmptyIndex(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, t.TempDir())

	result, err := svc.Search(context.Background(), "anything at all", 5, 0)

	require.NoError(t, err)
	assert.Empty(t, result.Hits)
}

func TestService_SearchEmptyQuery(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, t.TempDir())

	_, err := svc.Search(context.Background(), "", 5, 0)
	assert.Error(t, err)
}

func TestService_Remove(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	path := writeFile(t, root, "pkg/del.go", "package pkg\n\nvar D = 4\n")

	svc := newTestService(t, root)
	ctx := context.Background()
	require.Equal(t, 1, svc.IngestPaths(ctx, []string{path}).Processed)

	removed, err := svc.Remove(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	stats := svc.Stats(ctx)
	assert.Equal(t, 0, stats.Store.DocumentCount)
	assert.Equal(t, 1, stats.FilesRemoved)

	// Idempotent.
	removed, err = svc.Remove(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestService_RemoveRelativePath(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	path := writeFile(t, root, "src/del.go", "package src\n\nvar D = 4\n")

	svc := newTestService(t, root)
	ctx := context.Background()
	require.Equal(t, 1, svc.IngestPaths(ctx, []string{path}).Processed)

	// A path relative to the working directory resolves to the same document.
	cwd, err := os.Getwd()
	require.NoError(t, err)
	rel, err := filepath.Rel(cwd, path)
	require.NoError(t, err)

	removed, err := svc.Remove(ctx, rel)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	// The stored identifier itself works too, from any working directory.
	require.Equal(t, 1, svc.IngestPaths(ctx, []string{path}).Processed)
	removed, err = svc.Remove(ctx, "src/del.go")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestService_StartTwiceFails(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, svc.Start(ctx))
	defer svc.Stop()

	assert.Error(t, svc.Start(ctx))
}

func TestService_WatchLoopEndToEnd(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	svc := newTestService(t, root)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, svc.Start(ctx))
	defer svc.Stop()

	require.True(t, svc.Running())

	// A new file settles, gets batched, and lands in the store.
	path := writeFile(t, root, "watched.go", "package main\n\nfunc Watched() {}\n")
	waitUntil(t, 10*time.Second, func() bool {
		return svc.Stats(ctx).Store.DocumentCount == 1
	}, "file was never indexed by the watch loop")

	stats := svc.Stats(ctx)
	assert.Equal(t, 1, stats.FilesIndexed)
	assert.GreaterOrEqual(t, stats.BatchesProcessed, 1)

	// Ineligible files are never indexed.
	writeFile(t, root, "ignored.bin", "binary-ish\n")
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 1, svc.Stats(ctx).Store.DocumentCount)

	// Deletion bypasses the debounce window and empties the store.
	require.NoError(t, os.Remove(path))
	waitUntil(t, 10*time.Second, func() bool {
		return svc.Stats(ctx).Store.DocumentCount == 0
	}, "deleted file was never removed from the index")
}

func TestService_StartBulkIndexRejectsSecondStart(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	for i := 0; i < 5; i++ {
		writeFile(t, root, fmt.Sprintf("f%d.go", i), "package f\n\nvar N = 1\n")
	}

	svc := newTestService(t, root)
	mock, ok := svc.backend.(*embed.MockBackend)
	require.True(t, ok)
	mock.Fail = func(texts []string) error {
		time.Sleep(30 * time.Millisecond)
		return nil
	}

	ctx := context.Background()
	require.NoError(t, svc.StartBulkIndex(ctx, false))

	// The run slot is claimed before StartBulkIndex returns: the caller of a
	// racing second start always sees the error.
	assert.ErrorIs(t, svc.StartBulkIndex(ctx, false), bulk.ErrAlreadyRunning)

	waitUntil(t, 10*time.Second, func() bool {
		return svc.BulkProgress().State == bulk.StateCompleted
	}, "background bulk run never completed")
	assert.Equal(t, 5, svc.BulkProgress().ProcessedFiles)
	assert.Equal(t, 5, svc.Stats(ctx).Store.DocumentCount)
}

func TestService_StopBoundedWhenDispatchHangs(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	svc := newTestService(t, root)
	svc.stopTimeout = 100 * time.Millisecond

	mock, ok := svc.backend.(*embed.MockBackend)
	require.True(t, ok)
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	mock.Fail = func(texts []string) error {
		once.Do(func() { close(entered) })
		<-release
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, svc.Start(ctx))

	writeFile(t, root, "hang.go", "package main\n\nfunc Hang() {}\n")
	select {
	case <-entered:
	case <-time.After(10 * time.Second):
		t.Fatal("dispatch never began embedding")
	}

	// The embed call ignores cancellation; Stop must still return.
	done := make(chan struct{})
	go func() {
		svc.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop hung on a wedged dispatch")
	}

	close(release)
}

func TestService_BulkThroughFacade(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "x.go", "package x\n\nvar X = 1\n")
	writeFile(t, root, "y.go", "package y\n\nvar Y = 2\n")

	svc := newTestService(t, root)
	ctx := context.Background()

	progress, err := svc.RunBulkIndex(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 2, progress.ProcessedFiles)

	assert.Equal(t, progress.State, svc.BulkProgress().State)
	assert.Equal(t, 2, svc.Stats(ctx).Store.DocumentCount)
}
