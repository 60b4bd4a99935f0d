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

func newClusterCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cluster",
		Short: "manage clusters",
	}
	cmd.AddCommand(newClusterCreateCommand())
	cmd.AddCommand(newClusterDeleteCommand())
	cmd.AddCommand(newClusterListCommand())
	cmd.AddCommand(newClusterDeployCommand())
	cmd.AddCommand(newClusterUndeployCommand())
	return cmd
}

func newClusterCreateCommand() *cobra.Command {
	var name, leader, clusterId string
	var devices []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "create a cluster configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ids.NewClusterId()
			if clusterId != "" {
				u, err := uuid.Parse(clusterId)
				if err != nil {
					return renderError(errors.Wrap(err, "cctl: parsing --cluster-id"))
				}
				id = ids.ClusterId{UUID: u}
			}
			leaderId, err := ids.ParsePeerId(leader)
			if err != nil {
				return renderError(errors.Wrap(err, "cctl: parsing --leader-id"))
			}
			clusterName, err := model.NewClusterName(name)
			if err != nil {
				return renderError(errors.Wrap(err, "cctl: invalid --name"))
			}
			deviceIds := make(map[ids.DeviceId]struct{}, len(devices))
			for _, d := range devices {
				deviceId, err := ids.ParseDeviceId(d)
				if err != nil {
					return renderError(errors.Wrapf(err, "cctl: parsing --device %q", d))
				}
				deviceIds[deviceId] = struct{}{}
			}

			configuration := model.ClusterConfiguration{Id: id, Name: clusterName, Leader: leaderId, Devices: deviceIds}
			if err := configuration.Validate(); err != nil {
				return renderError(err)
			}

			client, err := dial(cmd.Context())
			if err != nil {
				return renderError(err)
			}
			defer client.Close()

			if _, err := client.Cluster.StoreClusterConfiguration(cmd.Context(), rpc.StoreClusterConfigurationRequest{Configuration: configuration}); err != nil {
				return renderError(err)
			}
			return render(configuration, func() {
				fmt.Printf("Successfully stored new cluster configuration.\nClusterID: %s\nName: %s\nDevices: %v\n", id, name, configuration.DeviceIds())
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "cluster name (required)")
	cmd.Flags().StringVar(&leader, "leader-id", "", "peer id of the leader (required)")
	cmd.Flags().StringVar(&clusterId, "cluster-id", "", "explicit cluster id (random UUID when omitted)")
	cmd.Flags().StringSliceVar(&devices, "device", nil, "device id to include (repeatable, at least 2 required)")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("leader-id")
	return cmd
}

func newClusterDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <cluster-id>",
		Short: "delete a cluster configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			clusterId, err := ids.ParseClusterId(args[0])
			if err != nil {
				return renderError(err)
			}
			client, err := dial(cmd.Context())
			if err != nil {
				return renderError(err)
			}
			defer client.Close()

			if _, err := client.Cluster.DeleteClusterConfiguration(cmd.Context(), rpc.DeleteClusterConfigurationRequest{Id: clusterId}); err != nil {
				return renderError(err)
			}
			return render(map[string]string{"deleted": clusterId.String()}, func() {
				fmt.Printf("Deleted cluster configuration with the ID: %s\n", clusterId)
			})
		},
	}
}

func newClusterListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list cluster configurations and their deployment status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := dial(cmd.Context())
			if err != nil {
				return renderError(err)
			}
			defer client.Close()

			configsResp, err := client.Cluster.ListClusterConfigurations(cmd.Context(), rpc.ListClusterConfigurationsRequest{})
			if err != nil {
				return renderError(err)
			}
			deploymentsResp, err := client.Cluster.ListClusterDeployments(cmd.Context(), rpc.ListClusterDeploymentsRequest{})
			if err != nil {
				return renderError(err)
			}
			deployed := make(map[ids.ClusterId]struct{}, len(deploymentsResp.Deployments))
			for _, d := range deploymentsResp.Deployments {
				deployed[d.Id] = struct{}{}
			}

			type row struct {
				Name     model.ClusterName
				Id       ids.ClusterId
				Leader   ids.PeerId
				Deployed bool
			}
			rows := make([]row, 0, len(configsResp.Configurations))
			for _, c := range configsResp.Configurations {
				_, isDeployed := deployed[c.Id]
				rows = append(rows, row{Name: c.Name, Id: c.Id, Leader: c.Leader, Deployed: isDeployed})
			}

			return render(rows, func() {
				fmt.Printf("%-24s %-36s %-36s %s\n", "NAME", "ID", "LEADER", "DEPLOYED")
				for _, r := range rows {
					fmt.Printf("%-24s %-36s %-36s %v\n", r.Name, r.Id, r.Leader, r.Deployed)
				}
			})
		},
	}
}

func newClusterDeployCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "deploy <cluster-id>",
		Short: "deploy a cluster configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			clusterId, err := ids.ParseClusterId(args[0])
			if err != nil {
				return renderError(err)
			}
			client, err := dial(cmd.Context())
			if err != nil {
				return renderError(err)
			}
			defer client.Close()

			resp, err := client.Cluster.StoreClusterDeployment(cmd.Context(), rpc.StoreClusterDeploymentRequest{Deployment: model.ClusterDeployment{Id: clusterId}})
			if err != nil {
				return renderError(err)
			}
			return render(resp, func() {
				fmt.Printf("Deployed cluster %s\n", resp.ClusterId)
			})
		},
	}
}

func newClusterUndeployCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "undeploy <cluster-id>",
		Short: "tear down a deployed cluster",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			clusterId, err := ids.ParseClusterId(args[0])
			if err != nil {
				return renderError(err)
			}
			client, err := dial(cmd.Context())
			if err != nil {
				return renderError(err)
			}
			defer client.Close()

			if _, err := client.Cluster.DeleteClusterDeployment(cmd.Context(), rpc.DeleteClusterDeploymentRequest{Id: clusterId}); err != nil {
				return renderError(err)
			}
			return render(map[string]string{"undeployed": clusterId.String()}, func() {
				fmt.Printf("Undeployed cluster %s\n", clusterId)
			})
		},
	}
}
