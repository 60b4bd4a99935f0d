package app

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/eclipse-opendut/opendut-go/internal/rpc"
	"github.com/eclipse-opendut/opendut-go/pkg/ids"
	"github.com/eclipse-opendut/opendut-go/pkg/model"
)

func newPeerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "peer",
		Short: "manage peers",
	}
	cmd.AddCommand(newPeerCreateCommand())
	cmd.AddCommand(newPeerDeleteCommand())
	cmd.AddCommand(newPeerListCommand())
	cmd.AddCommand(newPeerDescribeCommand())
	cmd.AddCommand(newPeerGenerateSetupCommand())
	return cmd
}

func newPeerCreateCommand() *cobra.Command {
	var name, location, id string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "create a new peer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			peerId := ids.NewPeerId()
			if id != "" {
				u, err := uuid.Parse(id)
				if err != nil {
					return renderError(errors.Wrap(err, "cctl: parsing --id"))
				}
				peerId = ids.PeerId{UUID: u}
			}
			peerName, err := model.NewPeerName(name)
			if err != nil {
				return renderError(errors.Wrap(err, "cctl: invalid --name"))
			}

			descriptor := model.PeerDescriptor{Id: peerId, Name: peerName}
			if location != "" {
				descriptor.Location = &location
			}

			client, err := dial(cmd.Context())
			if err != nil {
				return renderError(err)
			}
			defer client.Close()

			if _, err := client.Peers.StorePeer(cmd.Context(), rpc.StorePeerRequest{Peer: descriptor}); err != nil {
				return renderError(err)
			}
			return render(descriptor, func() {
				fmt.Printf("Created the peer %q with the ID: %s\n", name, peerId)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "peer name (required)")
	cmd.Flags().StringVar(&location, "location", "", "peer location")
	cmd.Flags().StringVar(&id, "id", "", "explicit peer id (random UUID when omitted)")
	cmd.MarkFlagRequired("name")
	return cmd
}

func newPeerDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <peer-id>",
		Short: "delete a peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			peerId, err := ids.ParsePeerId(args[0])
			if err != nil {
				return renderError(err)
			}
			client, err := dial(cmd.Context())
			if err != nil {
				return renderError(err)
			}
			defer client.Close()

			if _, err := client.Peers.DeletePeer(cmd.Context(), rpc.DeletePeerRequest{Id: peerId}); err != nil {
				return renderError(err)
			}
			return render(map[string]string{"deleted": peerId.String()}, func() {
				fmt.Printf("Deleted peer with the PeerID: %s\n", peerId)
			})
		},
	}
}

// peerTableRow is one line of `peer list` output: name, id, connection status, location.
type peerTableRow struct {
	Name     model.PeerName
	Id       ids.PeerId
	Status   string
	Location string
}

func newPeerListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list all peers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := dial(cmd.Context())
			if err != nil {
				return renderError(err)
			}
			defer client.Close()

			peersResp, err := client.Peers.ListPeers(cmd.Context(), rpc.ListPeersRequest{})
			if err != nil {
				return renderError(err)
			}
			statesResp, err := client.Peers.ListPeerStates(cmd.Context(), rpc.ListPeerStatesRequest{})
			if err != nil {
				return renderError(err)
			}

			rows := make([]peerTableRow, 0, len(peersResp.Peers))
			for _, peer := range peersResp.Peers {
				status := "Disconnected"
				if state, ok := statesResp.States[peer.Id]; ok && state.Kind == model.PeerUp {
					status = "Connected"
				}
				location := ""
				if peer.Location != nil {
					location = *peer.Location
				}
				rows = append(rows, peerTableRow{Name: peer.Name, Id: peer.Id, Status: status, Location: location})
			}

			return render(rows, func() {
				fmt.Printf("%-24s %-36s %-12s %s\n", "NAME", "ID", "STATUS", "LOCATION")
				for _, row := range rows {
					fmt.Printf("%-24s %-36s %-12s %s\n", row.Name, row.Id, row.Status, row.Location)
				}
			})
		},
	}
}

func newPeerDescribeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "describe <peer-id>",
		Short: "describe one peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			peerId, err := ids.ParsePeerId(args[0])
			if err != nil {
				return renderError(err)
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
			return render(resp.Peer, func() {
				deviceNames := make([]string, 0, len(resp.Peer.Topology.Devices))
				for _, device := range resp.Peer.Topology.Devices {
					deviceNames = append(deviceNames, device.Name)
				}
				fmt.Printf("Peer: %s\n  Id: %s\n  Devices: %v\n  Executors: %d\n", resp.Peer.Name, resp.Peer.Id, deviceNames, len(resp.Peer.Executors))
			})
		},
	}
}

func newPeerGenerateSetupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "generate-setup <peer-id>",
		Short: "generate the bootstrap setup blob for a peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			peerId, err := ids.ParsePeerId(args[0])
			if err != nil {
				return renderError(err)
			}
			client, err := dial(cmd.Context())
			if err != nil {
				return renderError(err)
			}
			defer client.Close()

			resp, err := client.Peers.GeneratePeerSetup(cmd.Context(), rpc.GeneratePeerSetupRequest{Id: peerId})
			if err != nil {
				return renderError(err)
			}
			blob, err := resp.Setup.Encode()
			if err != nil {
				return renderError(err)
			}
			return render(map[string]string{"setup": blob}, func() {
				fmt.Println(blob)
			})
		},
	}
}
