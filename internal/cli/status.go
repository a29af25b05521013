package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index contents and configuration",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	svc, cfg, cleanup, err := buildService()
	if err != nil {
		return err
	}
	defer cleanup()

	stats := svc.Stats(ctx)

	fmt.Printf("Root:        %s\n", cfg.Watch.Root)
	fmt.Printf("Model:       %s (%d dimensions, %s)\n", cfg.Embedding.Model, cfg.Embedding.Dimensions, cfg.Embedding.Provider)
	if cfg.Store.Path == "" {
		fmt.Printf("Store:       in-memory\n")
	} else {
		fmt.Printf("Store:       %s\n", cfg.Store.Path)
	}
	fmt.Printf("Documents:   %d\n", stats.Store.DocumentCount)
	fmt.Printf("Chunks:      %d\n", stats.Store.ChunkCount)
	fmt.Printf("Watch:       enabled=%v debounce=%s batch=%d queue=%d\n",
		cfg.Watch.Enabled, cfg.DebounceInterval(), cfg.Watch.BatchSize, cfg.Watch.MaxQueueSize)
	return nil
}
