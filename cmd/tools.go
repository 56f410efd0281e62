package cmd

import (
	"fmt"
	"math"
	"slices"

	"github.com/kozaktomas/faceauth/internal/constants"
	"github.com/kozaktomas/faceauth/internal/facematch"
	"github.com/spf13/cobra"
)

var compareCmd = &cobra.Command{
	Use:   "compare <embedding-a> <embedding-b>",
	Short: "Print the distance between two embeddings",
	Long: `Compute the Euclidean distance between two embedding files and interpret it:
below 0.8 is likely the same person, below 1.3 possibly the same person,
anything else different people.`,
	Args: cobra.ExactArgs(2),
	RunE: runCompare,
}

var checkCmd = &cobra.Command{
	Use:   "check <embedding-file>...",
	Short: "Validate embedding files",
	Long: `Check that embedding files decode, hold only finite values and have a
supported length (128, 192 or the configured embedding dimension).`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(compareCmd)
	rootCmd.AddCommand(checkCmd)

	compareCmd.Flags().Bool("json", false, "Output as JSON")
}

// interpretDistance labels a distance by the interpretation bands.
func interpretDistance(d float64) string {
	switch {
	case d < constants.SameDistance:
		return "same person"
	case d < constants.PossiblySameDistance:
		return "possibly same person"
	default:
		return "different people"
	}
}

func runCompare(cmd *cobra.Command, args []string) error {
	a, err := readEmbedding(args[0])
	if err != nil {
		return err
	}
	b, err := readEmbedding(args[1])
	if err != nil {
		return err
	}
	d, err := facematch.Distance(a, b)
	if err != nil {
		return err
	}
	verdict := interpretDistance(d)

	if mustGetBool(cmd, "json") {
		return outputJSON(map[string]any{
			"distance":  d,
			"dimension": len(a),
			"verdict":   verdict,
		})
	}
	fmt.Printf("Distance: %.4f (%s)\n", d, verdict)
	return nil
}

// checkEmbedding validates a decoded embedding against the accepted lengths.
func checkEmbedding(e facematch.Embedding, dims []int) error {
	if err := facematch.ValidateQuery(e, 0); err != nil {
		return err
	}
	if !slices.Contains(dims, len(e)) {
		return fmt.Errorf("%w: length %d, want one of %v", facematch.ErrDimensionMismatch, len(e), dims)
	}
	return nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	dims := slices.Clone(constants.KnownDimensions)
	if cfg, err := loadConfig(); err == nil && cfg.Matching.EmbeddingDimension > 0 {
		if !slices.Contains(dims, cfg.Matching.EmbeddingDimension) {
			dims = append(dims, cfg.Matching.EmbeddingDimension)
		}
	}

	failed := 0
	for _, path := range args {
		e, err := readEmbedding(path)
		if err == nil {
			err = checkEmbedding(e, dims)
		}
		if err != nil {
			failed++
			fmt.Printf("FAIL  %s: %v\n", path, err)
			continue
		}
		fmt.Printf("OK    %s (%d values, norm %.4f)\n", path, len(e), norm(e))
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(args))
	}
	return nil
}

func norm(e facematch.Embedding) float64 {
	var sum float64
	for _, v := range e {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}
