package cmd

import (
	"fmt"

	"github.com/kozaktomas/faceauth/internal/facematch"
	"github.com/spf13/cobra"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <identity> <embedding-file>",
	Short: "Add a reference embedding to an identity",
	Long: `Store an embedding as a new reference of an identity, creating the
identity when it does not exist yet. The identity name is sanitized to a
folder-safe form (lowercase ASCII, diacritics removed).

Examples:
  faceauth enroll "Letícia" capture.gob`,
	Args: cobra.ExactArgs(2),
	RunE: runEnroll,
}

var considerCmd = &cobra.Command{
	Use:   "consider <identity> <embedding-file>",
	Short: "Run the enrollment policy for a matched identity",
	Long: `Decide whether an embedding of an already authenticated identity should
become a new reference. Near-duplicates are skipped, moderately novel samples
are saved, and samples too far from every reference are rejected.

Use --dry-run to print the decision without saving anything.`,
	Args: cobra.ExactArgs(2),
	RunE: runConsider,
}

func init() {
	rootCmd.AddCommand(enrollCmd)
	rootCmd.AddCommand(considerCmd)

	enrollCmd.Flags().Bool("json", false, "Output as JSON")
	considerCmd.Flags().Bool("dry-run", false, "Print the decision without saving the sample")
	considerCmd.Flags().Bool("json", false, "Output as JSON")
}

func runEnroll(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	e, err := readEmbedding(args[1])
	if err != nil {
		return err
	}

	_, rec, closeStore, err := setup(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	identity, err := rec.ResolveIdentity(args[0])
	if err != nil {
		return err
	}

	location, err := rec.Append(ctx, identity, e)
	if err != nil {
		return err
	}
	count := rec.Store().Snapshot().Count(identity)

	if mustGetBool(cmd, "json") {
		return outputJSON(map[string]any{
			"identity":   identity,
			"location":   location,
			"references": count,
		})
	}
	fmt.Printf("Enrolled %s (%d references), saved to %s\n", identity, count, location)
	return nil
}

func runConsider(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	dryRun := mustGetBool(cmd, "dry-run")

	e, err := readEmbedding(args[1])
	if err != nil {
		return err
	}

	_, rec, closeStore, err := setup(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	identity, err := rec.ResolveIdentity(args[0])
	if err != nil {
		return err
	}

	if !rec.Has(identity) {
		return fmt.Errorf("identity %s is not enrolled", identity)
	}

	var d facematch.EnrollmentDecision
	if dryRun {
		d, err = rec.DecideEnrollment(identity, e)
	} else {
		d, err = rec.ConsiderEnrollment(ctx, identity, e)
	}
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(d)
	}

	fmt.Printf("Decision: %s (%s), closest distance %s\n", d.Action, d.Reason, formatDistance(d.Distance))
	switch {
	case d.Location != "":
		fmt.Printf("Saved to %s\n", d.Location)
	case dryRun && d.Action == facematch.ActionSave:
		fmt.Println("[DRY RUN] Sample not saved")
	}
	return nil
}
