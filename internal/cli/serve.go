package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var serveBulkFlag bool

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Watch the project and keep the index in sync",
	Long: `Serve starts the continuous indexing loop: filesystem changes are
debounced, batched, and reindexed as they settle. Deleted files are removed
from the index immediately.

Runs until interrupted.

Examples:
  # Watch the current directory
  semidx serve

  # Run a full index first, then watch
  semidx serve --bulk`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&serveBulkFlag, "bulk", false, "run a full index before watching")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nInterrupted, shutting down...")
		cancel()
	}()

	svc, cfg, cleanup, err := buildService()
	if err != nil {
		return err
	}
	defer cleanup()

	if serveBulkFlag {
		progress, err := runBulkWithProgress(ctx, svc, false)
		if err != nil {
			return err
		}
		if !quietFlag {
			printBulkSummary(progress)
		}
	}

	if !cfg.Watch.Enabled {
		return fmt.Errorf("watching is disabled in configuration (watch.enabled)")
	}
	if !cfg.Watch.AutoStart {
		fmt.Println("watch.auto_start is off; waiting for interrupt (search-only mode)")
		<-ctx.Done()
		return nil
	}

	if err := svc.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	svc.Stop()
	return nil
}
