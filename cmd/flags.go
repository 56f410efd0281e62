package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// mustFlag panics on a flag lookup error. Flags are registered in init(),
// so a failed lookup is a programming bug.
func mustFlag[T any](name string, val T, err error) T {
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

func mustGetBool(cmd *cobra.Command, name string) bool {
	v, err := cmd.Flags().GetBool(name)
	return mustFlag(name, v, err)
}

func mustGetInt(cmd *cobra.Command, name string) int {
	v, err := cmd.Flags().GetInt(name)
	return mustFlag(name, v, err)
}

func mustGetString(cmd *cobra.Command, name string) string {
	v, err := cmd.Flags().GetString(name)
	return mustFlag(name, v, err)
}

func mustGetFloat64(cmd *cobra.Command, name string) float64 {
	v, err := cmd.Flags().GetFloat64(name)
	return mustFlag(name, v, err)
}
