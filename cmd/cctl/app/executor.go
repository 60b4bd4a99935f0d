package app

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/eclipse-opendut/opendut-go/internal/rpc"
	"github.com/eclipse-opendut/opendut-go/pkg/ids"
	"github.com/eclipse-opendut/opendut-go/pkg/model"
)

// Executors are stored as part of their owning peer's descriptor, so every executor
// subcommand round-trips through GetPeerDescriptor/StorePeer rather than a dedicated
// executor RPC, editing the PeerDescriptor's executors list in place.
func newExecutorCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "executor",
		Short: "manage a peer's executors",
	}
	cmd.AddCommand(newExecutorCreateCommand())
	cmd.AddCommand(newExecutorListCommand())
	cmd.AddCommand(newExecutorDeleteCommand())
	return cmd
}

func newExecutorCreateCommand() *cobra.Command {
	var peer, kind, engine, image, command string
	var args []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "add an executor to a peer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			peerId, err := ids.ParsePeerId(peer)
			if err != nil {
				return renderError(errors.Wrap(err, "cctl: parsing --peer"))
			}

			var execKind model.ExecutorKind
			switch kind {
			case "container":
				if image == "" {
					return renderError(errors.New("cctl: --image is required for --kind=container"))
				}
				eng := model.EngineDocker
				if engine == string(model.EnginePodman) {
					eng = model.EnginePodman
				}
				execKind = model.ContainerExecutorKind(model.ContainerExecutor{
					Engine:  eng,
					Image:   image,
					Command: command,
					Args:    args,
				})
			case "executable":
				if command == "" {
					return renderError(errors.New("cctl: --command is required for --kind=executable"))
				}
				execKind = model.ExecutableExecutorKind(model.ExecutableExecutor{Path: command, Args: args})
			default:
				return renderError(errors.Errorf("cctl: unknown --kind %q, want container|executable", kind))
			}

			descriptor := model.ExecutorDescriptor{Id: ids.NewExecutorId(), Kind: execKind}

			client, err := dial(cmd.Context())
			if err != nil {
				return renderError(err)
			}
			defer client.Close()

			peerResp, err := client.Peers.GetPeerDescriptor(cmd.Context(), rpc.GetPeerDescriptorRequest{Id: peerId})
			if err != nil {
				return renderError(err)
			}
			peerDescriptor := peerResp.Peer
			peerDescriptor.Executors = append(peerDescriptor.Executors, descriptor)

			if _, err := client.Peers.StorePeer(cmd.Context(), rpc.StorePeerRequest{Peer: peerDescriptor}); err != nil {
				return renderError(err)
			}
			return render(descriptor, func() {
				fmt.Printf("Created executor %s on peer %s\n", descriptor.Id, peerId)
			})
		},
	}
	cmd.Flags().StringVar(&peer, "peer", "", "owning peer id (required)")
	cmd.Flags().StringVar(&kind, "kind", "container", "executor kind: container|executable")
	cmd.Flags().StringVar(&engine, "engine", string(model.EngineDocker), "container engine: docker|podman")
	cmd.Flags().StringVar(&image, "image", "", "container image (required for --kind=container)")
	cmd.Flags().StringVar(&command, "command", "", "container command, or executable path for --kind=executable")
	cmd.Flags().StringSliceVar(&args, "arg", nil, "argument to pass (repeatable)")
	cmd.MarkFlagRequired("peer")
	return cmd
}

func newExecutorListCommand() *cobra.Command {
	var peer string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "list a peer's executors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			peerId, err := ids.ParsePeerId(peer)
			if err != nil {
				return renderError(errors.Wrap(err, "cctl: parsing --peer"))
			}
			client, err := dial(cmd.Context())
			if err != nil {
				return renderError(err)
			}
			defer client.Close()

			resp, err := client.Peers.GetPeerDescriptor(cmd.Context(), rpc.GetPeerDescriptorRequest{Id: peerId})
			if err != nil {
				return renderError(err)
			}
			return render(resp.Peer.Executors, func() {
				fmt.Printf("%-36s %s\n", "ID", "KIND")
				for _, e := range resp.Peer.Executors {
					fmt.Printf("%-36s %s\n", e.Id, e.Kind.Tag)
				}
			})
		},
	}
	cmd.Flags().StringVar(&peer, "peer", "", "owning peer id (required)")
	cmd.MarkFlagRequired("peer")
	return cmd
}

func newExecutorDeleteCommand() *cobra.Command {
	var peer string
	cmd := &cobra.Command{
		Use:   "delete <executor-id>",
		Short: "remove an executor from a peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			peerId, err := ids.ParsePeerId(peer)
			if err != nil {
				return renderError(errors.Wrap(err, "cctl: parsing --peer"))
			}
			executorId, err := ids.ParseExecutorId(args[0])
			if err != nil {
				return renderError(err)
			}

			client, err := dial(cmd.Context())
			if err != nil {
				return renderError(err)
			}
			defer client.Close()

			peerResp, err := client.Peers.GetPeerDescriptor(cmd.Context(), rpc.GetPeerDescriptorRequest{Id: peerId})
			if err != nil {
				return renderError(err)
			}
			peerDescriptor := peerResp.Peer

			kept := peerDescriptor.Executors[:0]
			found := false
			for _, e := range peerDescriptor.Executors {
				if e.Id == executorId {
					found = true
					continue
				}
				kept = append(kept, e)
			}
			if !found {
				return renderError(errors.Errorf("cctl: executor %s not found on peer %s", executorId, peerId))
			}
			peerDescriptor.Executors = kept

			if _, err := client.Peers.StorePeer(cmd.Context(), rpc.StorePeerRequest{Peer: peerDescriptor}); err != nil {
				return renderError(err)
			}
			return render(map[string]string{"deleted": executorId.String()}, func() {
				fmt.Printf("Deleted executor %s from peer %s\n", executorId, peerId)
			})
		},
	}
	cmd.Flags().StringVar(&peer, "peer", "", "owning peer id (required)")
	cmd.MarkFlagRequired("peer")
	return cmd
}
