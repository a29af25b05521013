package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	searchTopKFlag     int
	searchMinScoreFlag float32
	searchShowTextFlag bool
)

// searchCmd represents the search command
var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the index for similar content",
	Long: `Search embeds the query and returns the most similar indexed chunks,
ranked by cosine similarity.

Examples:
  # Top 10 matches
  semidx search "retry with exponential backoff"

  # Top 3 matches above a similarity floor, with chunk text
  semidx search -k 3 --min-score 0.6 --text "http client timeout"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().IntVarP(&searchTopKFlag, "top-k", "k", 10, "maximum number of results")
	searchCmd.Flags().Float32Var(&searchMinScoreFlag, "min-score", 0, "drop results below this similarity")
	searchCmd.Flags().BoolVar(&searchShowTextFlag, "text", false, "print matching chunk text")
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	svc, _, cleanup, err := buildService()
	if err != nil {
		return err
	}
	defer cleanup()

	query := strings.Join(args, " ")
	result, err := svc.Search(ctx, query, searchTopKFlag, searchMinScoreFlag)
	if err != nil {
		return err
	}

	if len(result.Hits) == 0 {
		fmt.Println("No matches.")
		return nil
	}

	for i, hit := range result.Hits {
		fmt.Printf("%2d. %.4f  %s\n", i+1, hit.Score, hit.ChunkID)
		if searchShowTextFlag {
			for _, line := range strings.Split(strings.TrimRight(hit.Text, "\n"), "\n") {
				fmt.Printf("      %s\n", line)
			}
			fmt.Println()
		}
	}
	if !quietFlag {
		fmt.Printf("\n%d results (embed %s, search %s)\n",
			len(result.Hits),
			result.EmbedTime.Round(time.Millisecond),
			result.SearchTime.Round(time.Millisecond))
	}
	return nil
}
