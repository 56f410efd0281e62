package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "faceauth",
	Short: "Face embedding matching and enrollment",
	Long: `faceauth matches face embeddings produced by an external model against
enrolled reference embeddings, grows each identity's references after
confident logins, and suggests candidates for faces it does not know.

Configuration comes from built-in defaults, an optional YAML file
(--config or FACEAUTH_CONFIG) and environment variables, including a .env file.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML config file (overrides FACEAUTH_CONFIG)")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()

	if configFile != "" {
		os.Setenv("FACEAUTH_CONFIG", configFile)
	}
}
