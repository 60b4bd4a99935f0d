package app

import (
	"github.com/spf13/cobra"
)

// NewCommand builds the ecad root command, a cobra root with run and version subcommands in
// the same shape as cmd/ccpd/app's.
func NewCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "ecad",
		Short: "openDuT Edge Configuration Agent",
	}
	root.AddCommand(newRunCommand())
	root.AddCommand(newVersionCmd())
	return root
}
