// Package cli implements the semidx command line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	rootDirFlag string
	quietFlag   bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "semidx",
	Short: "Continuous semantic indexing for codebases",
	Long: `semidx keeps a vector index of a source tree in sync with the filesystem.

It watches for file changes, debounces bursts, batches settled files, chunks
and embeds their content, and serves similarity search over the result.

Configuration is read from .semidx/config.yml under the project root, with
SEMIDX_* environment variable overrides.`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootDirFlag, "root", "", "project root (default: current directory)")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "disable progress output")
}

// resolveRoot returns the project root: the --root flag when given,
// otherwise the working directory.
func resolveRoot() (string, error) {
	if rootDirFlag != "" {
		return rootDirFlag, nil
	}
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	return dir, nil
}
