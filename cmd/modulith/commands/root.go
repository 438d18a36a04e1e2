// Package commands assembles the modulith CLI's cobra command tree,
// grounded in the teacher's cmd/commands/root.go and
// cmd/ncore/commands/commands.go factory-function pattern.
package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "modulith",
		Short: "Verify and introspect modular-monolith boundaries",
	}

	rootCmd.AddCommand(
		NewVerifyCommand(),
		NewGraphCommand(),
		NewRegistryCommand(),
	)

	return rootCmd
}
