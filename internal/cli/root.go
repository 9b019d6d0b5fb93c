// Package cli wires the engine facade into cobra subcommands, in the
// teacher's internal/cli idiom (root.go dispatches to one file per
// command family).
package cli

import (
	"log/slog"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

// NewRoot builds the databridge command tree.
func NewRoot(logger *slog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:   "databridge",
		Short: "databridge imports and exports relational data through a binary record pipeline",
	}

	root.AddCommand(newServeCommand(logger))
	root.AddCommand(newImportCommand(logger))
	root.AddCommand(newExportCommand(logger))
	root.AddCommand(newStatusCommand(logger))
	root.AddCommand(newDashboardCommand(logger))
	root.AddCommand(newVersionCommand())
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(version)
		},
	}
}
