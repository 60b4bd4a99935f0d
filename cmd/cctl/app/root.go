// Package app is cctl, the operator CLI talking to the CCP: peer/cluster/executor
// subcommands over the PeerManager/ClusterManager RPC surface.
package app

import (
	"github.com/spf13/cobra"
)

// OutputFormat is the --output flag's value: text, json or pretty-json.
type OutputFormat string

const (
	OutputText       OutputFormat = "text"
	OutputJSON       OutputFormat = "json"
	OutputPrettyJSON OutputFormat = "pretty-json"
)

var opts struct {
	configPath string
	output     string
}

// NewCommand builds the cctl root command.
func NewCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "cctl",
		Short:         "openDuT Cluster Control Plane operator CLI",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "/etc/opendut/cctl.yaml", "path to the cctl configuration file")
	root.PersistentFlags().StringVar(&opts.output, "output", string(OutputText), "output format: text|json|pretty-json")

	root.AddCommand(newPeerCommand())
	root.AddCommand(newClusterCommand())
	root.AddCommand(newExecutorCommand())
	return root
}

func outputFormat() OutputFormat {
	switch OutputFormat(opts.output) {
	case OutputJSON:
		return OutputJSON
	case OutputPrettyJSON:
		return OutputPrettyJSON
	default:
		return OutputText
	}
}
