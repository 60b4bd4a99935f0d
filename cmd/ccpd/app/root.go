package app

import (
	"github.com/spf13/cobra"
)

// NewCommand builds the ccpd root command.
func NewCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "ccpd",
		Short: "openDuT Cluster Control Plane daemon",
	}
	root.AddCommand(newRunCommand())
	root.AddCommand(newPkiCommand())
	root.AddCommand(newVersionCmd())
	return root
}
