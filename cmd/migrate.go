package cmd

import (
	"fmt"
	"maps"
	"slices"
	"sync/atomic"
	"time"

	"github.com/kozaktomas/faceauth/internal/constants"
	"github.com/kozaktomas/faceauth/internal/database"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var migrateLegacyCmd = &cobra.Command{
	Use:   "migrate-legacy",
	Short: "Move flat legacy reference files into per-identity folders",
	Long: `Older stores kept references as flat files named {identity}_{n}.{ext}
directly in the store root. This command moves each of them into the
identity's folder under the next free index and deletes the original.`,
	Args: cobra.NoArgs,
	RunE: runMigrateLegacy,
}

var importCmd = &cobra.Command{
	Use:   "import <store-dir>",
	Short: "Copy a file-layout store into the configured backend",
	Long: `Read every reference of a file-layout store (per-identity folders or
legacy flat files) and append it to the configured backend, for example
when moving from the file backend to PostgreSQL.

Examples:
  STORE_BACKEND=postgres faceauth import ./embeddings
  faceauth import ./old-store --extension json --skip-existing`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(migrateLegacyCmd)
	rootCmd.AddCommand(importCmd)

	migrateLegacyCmd.Flags().Bool("dry-run", false, "List legacy files without moving them")

	importCmd.Flags().String("extension", database.DefaultExtension, "Reference file extension of the source store")
	importCmd.Flags().Int("concurrency", constants.DefaultImportConcurrency, "Identities imported in parallel")
	importCmd.Flags().Bool("skip-existing", false, "Skip identities already present in the target")
}

func newBar(total int, description, unit string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString(unit),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)
}

func runMigrateLegacy(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	dryRun := mustGetBool(cmd, "dry-run")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	newLogger(cfg)
	backend := openFileBackend(cfg)

	legacy, err := backend.LegacyFiles()
	if err != nil {
		return err
	}
	total := 0
	for _, files := range legacy {
		total += len(files)
	}
	if total == 0 {
		fmt.Printf("No legacy files in %s\n", backend.Root())
		return nil
	}

	identities := slices.Sorted(maps.Keys(legacy))
	if dryRun {
		for _, id := range identities {
			for _, path := range legacy[id] {
				fmt.Printf("[DRY RUN] %s -> %s/\n", path, id)
			}
		}
		fmt.Printf("\n%d legacy files for %d identities\n", total, len(identities))
		return nil
	}

	start := time.Now()
	bar := newBar(total, "Migrating", "files")
	migrated, failed := 0, 0
	for _, id := range identities {
		for _, path := range legacy[id] {
			if _, err := backend.MigrateLegacyFile(ctx, id, path); err != nil {
				failed++
				fmt.Printf("\nFailed to migrate %s: %v\n", path, err)
			} else {
				migrated++
			}
			bar.Add(1)
		}
	}
	fmt.Println()

	fmt.Printf("Migrated %d files for %d identities in %s", migrated, len(identities), formatDuration(time.Since(start)))
	if failed > 0 {
		fmt.Printf(" (%d failed)\n", failed)
		return fmt.Errorf("%d files could not be migrated", failed)
	}
	fmt.Println()
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	skipExisting := mustGetBool(cmd, "skip-existing")
	concurrency := max(mustGetInt(cmd, "concurrency"), 1)

	cfg, rec, closeStore, err := setup(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	source := database.NewFileBackend(args[0], mustGetString(cmd, "extension"), cfg.Matching.EmbeddingDimension)
	refs, issues, err := source.Load(ctx)
	if err != nil {
		return err
	}
	for _, issue := range issues {
		fmt.Printf("Skipping %s: %s\n", issue.Location, issue.Message)
	}

	identities := slices.Sorted(maps.Keys(refs))
	if skipExisting {
		identities = slices.DeleteFunc(identities, rec.Has)
	}
	total := 0
	for _, id := range identities {
		total += len(refs[id])
	}
	if total == 0 {
		fmt.Println("Nothing to import.")
		return nil
	}

	start := time.Now()
	bar := newBar(total, "Importing", "references")
	var imported atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, id := range identities {
		g.Go(func() error {
			// References of one identity keep their order.
			for _, e := range refs[id] {
				if _, err := rec.Append(gctx, id, e); err != nil {
					return fmt.Errorf("importing %s: %w", id, err)
				}
				imported.Add(1)
				bar.Add(1)
			}
			return nil
		})
	}
	err = g.Wait()
	fmt.Println()

	fmt.Printf("Imported %d of %d references for %d identities in %s\n",
		imported.Load(), total, len(identities), formatDuration(time.Since(start)))
	return err
}
