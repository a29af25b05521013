package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// removeCmd represents the remove command
var removeCmd = &cobra.Command{
	Use:   "remove <paths...>",
	Short: "Remove files from the index",
	Long: `Remove deletes every chunk belonging to the given files. Removing a
file that was never indexed is a no-op.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRemove,
}

func init() {
	rootCmd.AddCommand(removeCmd)
}

func runRemove(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	svc, _, cleanup, err := buildService()
	if err != nil {
		return err
	}
	defer cleanup()

	total := 0
	for _, path := range args {
		removed, err := svc.Remove(ctx, path)
		if err != nil {
			return err
		}
		if removed == 0 {
			fmt.Printf("%s: not indexed\n", path)
		} else {
			fmt.Printf("%s: removed %d chunks\n", path, removed)
		}
		total += removed
	}
	if len(args) > 1 {
		fmt.Printf("Removed %d chunks total\n", total)
	}
	return nil
}
