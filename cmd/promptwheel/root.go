package main

import (
	"github.com/spf13/cobra"
)

// rootFlags are shared across every subcommand.
type rootFlags struct {
	verbose bool
}

func newRootCmd(app *AppContext) *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "promptwheel",
		Short:         "promptwheel drives an autonomous code-improvement session against a repository",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(newRunCmd(flags, app))
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}
