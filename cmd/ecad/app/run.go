package app

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/eclipse-opendut/opendut-go/internal/edge/can"
	"github.com/eclipse-opendut/opendut-go/internal/edge/executor"
	"github.com/eclipse-opendut/opendut-go/internal/edge/healthmesh"
	"github.com/eclipse-opendut/opendut-go/internal/edge/netstack"
	"github.com/eclipse-opendut/opendut-go/internal/edge/process"
	"github.com/eclipse-opendut/opendut-go/internal/edge/reconcile"
	"github.com/eclipse-opendut/opendut-go/internal/edge/session"
	"github.com/eclipse-opendut/opendut-go/internal/rpc"
	"github.com/eclipse-opendut/opendut-go/pkg/config"
	"github.com/eclipse-opendut/opendut-go/pkg/ids"
	"github.com/eclipse-opendut/opendut-go/pkg/log"
	"github.com/eclipse-opendut/opendut-go/pkg/pki"
)

func newRunCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "start the Edge Configuration Agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runECAD(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "/etc/opendut/ecad.yaml", "path to the ecad configuration file")
	return cmd
}

func runECAD(ctx context.Context, configPath string) error {
	cfg, err := config.LoadECADConfig(configPath)
	if err != nil {
		return errors.Wrap(err, "ecad: loading configuration")
	}
	if err := applyBootstrapPeerSetup(cfg, configPath); err != nil {
		return err
	}
	log.SetLevel(log.ParseLevel(cfg.LogLevel))

	self, err := ids.ParsePeerId(cfg.PeerID)
	if err != nil {
		return errors.Wrap(err, "ecad: parsing peer_id")
	}

	netstackManager := netstack.NewManager(netstack.SystemHandle{})
	canManager := can.NewManager(can.ExecRunner{})
	processManager := process.NewManager()
	executorManager := executor.NewManager(processManager)

	registry := reconcile.NewRegistry(
		netstack.TaskFactory(netstackManager),
		can.TaskFactory(canManager),
		executor.TaskFactory(executorManager),
		healthmesh.TaskFactory(cfg.HealthMeshBindPort),
	)
	reconciler := reconcile.New(registry)

	mesh := healthmesh.New(self, cfg.HealthMeshBindAddress, cfg.HealthMeshBindPort)
	mesh.Join(nil)

	h := newHandler(reconciler, mesh)
	defer h.Stop()

	creds, err := pki.ClientCredentials(cfg.TLS.CertPath, cfg.TLS.KeyPath, cfg.TLS.CACertPath)
	if err != nil {
		return errors.Wrap(err, "ecad: building client TLS credentials")
	}

	token := cfg.PeerID
	if cfg.AuthClientSecret != "" {
		token = cfg.PeerID + ":" + cfg.AuthClientSecret
	}

	dialOpts := rpc.DialOptions(
		grpc.WithTransportCredentials(creds),
		grpc.WithPerRPCCredentials(rpc.NewBearerCredentials(token, true)),
	)
	addr := fmt.Sprintf("%s:%d", cfg.CarlHost, cfg.CarlPort)
	conn, err := grpc.DialContext(ctx, addr, dialOpts...)
	if err != nil {
		return errors.Wrapf(err, "ecad: dialing %s", addr)
	}
	defer conn.Close()

	client := session.NewClient(self, conn, h)
	log.Infof("ecad: connecting to %s as peer %s", addr, self)
	return client.Run(ctx)
}
