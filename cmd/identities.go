package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var identitiesCmd = &cobra.Command{
	Use:   "identities",
	Short: "List enrolled identities",
	Long: `List every enrolled identity with its reference count. Entries that
could not be loaded are reported after the table.`,
	Args: cobra.NoArgs,
	RunE: runIdentities,
}

var removeCmd = &cobra.Command{
	Use:   "remove <identity>",
	Short: "Remove an identity and all of its references",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemove,
}

func init() {
	rootCmd.AddCommand(identitiesCmd)
	rootCmd.AddCommand(removeCmd)

	identitiesCmd.Flags().Bool("json", false, "Output as JSON")
	removeCmd.Flags().Bool("yes", false, "Do not ask for confirmation")
}

func runIdentities(cmd *cobra.Command, args []string) error {
	_, rec, closeStore, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer closeStore()

	identities := rec.Identities()
	issues := rec.Store().LastIssues()

	if mustGetBool(cmd, "json") {
		return outputJSON(map[string]any{
			"identities": identities,
			"issues":     issues,
		})
	}

	if len(identities) == 0 {
		fmt.Println("No identities enrolled.")
	} else {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "IDENTITY\tREFERENCES")
		fmt.Fprintln(w, "--------\t----------")
		total := 0
		for _, s := range identities {
			fmt.Fprintf(w, "%s\t%d\n", s.Identity, s.References)
			total += s.References
		}
		w.Flush()
		fmt.Printf("\nTotal: %d identities, %d references\n", len(identities), total)
	}

	if len(issues) > 0 {
		fmt.Printf("\n%d entries could not be loaded:\n", len(issues))
		for _, issue := range issues {
			fmt.Printf("  %s: %s\n", issue.Location, issue.Message)
		}
	}
	return nil
}

func runRemove(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	_, rec, closeStore, err := setup(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	identity, err := rec.ResolveIdentity(args[0])
	if err != nil {
		return err
	}

	count := rec.Store().Snapshot().Count(identity)
	if !mustGetBool(cmd, "yes") {
		fmt.Printf("Remove %s with %d references? [y/N] ", identity, count)
		var answer string
		fmt.Scanln(&answer)
		if answer != "y" && answer != "Y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	if err := rec.Remove(ctx, identity); err != nil {
		return err
	}
	fmt.Printf("Removed %s (%d references)\n", identity, count)
	return nil
}
