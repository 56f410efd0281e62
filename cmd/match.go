package cmd

import (
	"fmt"

	"github.com/kozaktomas/faceauth/internal/facematch"
	"github.com/spf13/cobra"
)

var matchCmd = &cobra.Command{
	Use:   "match <embedding-file>",
	Short: "Match an embedding against the enrolled identities",
	Long: `Match a face embedding against every enrolled reference.

Prints the best identity when its Euclidean distance is below the threshold,
otherwise Unknown followed by the closest candidates.

Examples:
  # Match with the configured threshold
  faceauth match capture.gob

  # Stricter threshold
  faceauth match capture.json --threshold 0.6

  # Output as JSON
  faceauth match capture.gob --json`,
	Args: cobra.ExactArgs(1),
	RunE: runMatch,
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().Float64("threshold", 0, "Maximum Euclidean distance (0 = configured threshold)")
	matchCmd.Flags().Int("suggestions", 0, "Candidates to show for unknown faces (0 = configured top_k)")
	matchCmd.Flags().Bool("json", false, "Output as JSON")
}

// matchOutput is the JSON form of a match command result.
type matchOutput struct {
	facematch.MatchResult
	Threshold   float64  `json:"threshold"`
	Suggestions []string `json:"suggestions,omitempty"`
}

func runMatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	jsonOutput := mustGetBool(cmd, "json")

	query, err := readEmbedding(args[0])
	if err != nil {
		return err
	}

	_, rec, closeStore, err := setup(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	threshold := rec.Threshold()
	if t := mustGetFloat64(cmd, "threshold"); t > 0 {
		threshold = t
	}

	res, err := rec.MatchWithThreshold(query, threshold)
	if err != nil {
		return err
	}

	out := matchOutput{MatchResult: res, Threshold: threshold}
	if !res.Matched() {
		out.Suggestions, err = rec.RankSuggestions(query, mustGetInt(cmd, "suggestions"))
		if err != nil {
			return err
		}
	}

	if jsonOutput {
		return outputJSON(out)
	}

	if res.Matched() {
		fmt.Printf("Matched: %s (distance %s, threshold %.2f)\n", res.Identity, formatDistance(res.Distance), threshold)
	} else {
		fmt.Printf("%s (no reference below threshold %.2f)\n", facematch.Unknown, threshold)
		if len(out.Suggestions) > 0 {
			fmt.Println("Closest identities:")
			for i, id := range out.Suggestions {
				fmt.Printf("  %d. %s\n", i+1, id)
			}
		}
	}
	if res.Skipped > 0 {
		fmt.Printf("Skipped %d references with a different dimension\n", res.Skipped)
	}
	return nil
}
