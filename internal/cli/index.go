package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/runeset/semidx/internal/bulk"
	"github.com/runeset/semidx/internal/index"
)

var indexForceFlag bool

// indexCmd represents the index command
var indexCmd = &cobra.Command{
	Use:   "index [paths...]",
	Short: "Index the project tree (or specific files)",
	Long: `Index runs a full pass over the project tree: eligible files are
chunked, embedded, and written to the vector store. When the store already
holds data the pass is skipped unless --force is given.

An interrupted pass leaves a checkpoint and resumes where it left off.

With explicit paths, only those files are indexed.

Examples:
  # Index the current directory
  semidx index

  # Reindex everything from scratch
  semidx index --force

  # Index two specific files
  semidx index src/main.go docs/README.md`,
	RunE: runIndexCmd,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.Flags().BoolVarP(&indexForceFlag, "force", "f", false, "reindex even when the store is populated")
}

func runIndexCmd(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, _, cleanup, err := buildService()
	if err != nil {
		return err
	}
	defer cleanup()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nInterrupted, stopping after the current batch...")
		svc.StopBulkIndex()
		cancel()
	}()

	if len(args) > 0 {
		result := svc.IngestPaths(ctx, args)
		fmt.Printf("Indexed %d files (%d chunks), %d skipped, %d failed in %s\n",
			result.Processed, result.ChunksWritten, result.Skipped, result.Failed,
			result.Elapsed.Round(time.Millisecond))
		for _, msg := range result.Errors {
			fmt.Fprintln(os.Stderr, " ", msg)
		}
		if result.Failed > 0 {
			return fmt.Errorf("%d files failed to index", result.Failed)
		}
		return nil
	}

	progress, err := runBulkWithProgress(ctx, svc, indexForceFlag)
	if err != nil {
		if errors.Is(err, bulk.ErrAlreadyRunning) {
			return fmt.Errorf("another indexing pass is already running")
		}
		return err
	}

	printBulkSummary(progress)
	if progress.State == bulk.StateFailed {
		return fmt.Errorf("indexing failed: %s", progress.LastError)
	}
	return nil
}

// runBulkWithProgress runs a synchronous bulk pass, rendering a progress
// bar unless --quiet.
func runBulkWithProgress(ctx context.Context, svc *index.Service, force bool) (bulk.Progress, error) {
	reporter := newBulkProgressBar(quietFlag)
	svc.SubscribeBulk(reporter.Observe)
	defer reporter.Finish()

	return svc.RunBulkIndex(ctx, force)
}

func printBulkSummary(p bulk.Progress) {
	switch p.State {
	case bulk.StateSkipped:
		fmt.Println("Index already populated, nothing to do (use --force to reindex)")
	case bulk.StateCompleted:
		fmt.Printf("Indexed %d files (%d chunks, %d failed) in %s\n",
			p.ProcessedFiles, p.ChunksWritten, p.FailedFiles, p.Elapsed.Round(time.Millisecond))
	default:
		fmt.Printf("Indexing ended in state %s after %d of %d files\n",
			p.State, p.ProcessedFiles, p.TotalFiles)
	}
}
