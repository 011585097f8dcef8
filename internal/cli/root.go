package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCommand builds the asmdiff command tree
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "asmdiff",
		Short: "Compare directory trees and .NET assemblies",
		Long: `asmdiff compares two directory trees, or two files, and reports what was
added, removed or modified. Managed (.NET) assemblies rebuilt from the same
source compare equal: build timestamps, checksums, signatures, debug records
and module GUIDs are ignored.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Add global flags
	AddGlobalFlags(rootCmd)

	// Add commands
	rootCmd.AddCommand(NewCompareCommand())
	rootCmd.AddCommand(NewConfigCommand())
	rootCmd.AddCommand(NewVersionCommand())

	return rootCmd
}
