package app

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/eclipse-opendut/opendut-go/internal/actions"
	"github.com/eclipse-opendut/opendut-go/internal/broker"
	"github.com/eclipse-opendut/opendut-go/internal/cluster"
	"github.com/eclipse-opendut/opendut-go/internal/oidc"
	"github.com/eclipse-opendut/opendut-go/internal/observer"
	"github.com/eclipse-opendut/opendut-go/internal/resources"
	"github.com/eclipse-opendut/opendut-go/internal/rpc"
	"github.com/eclipse-opendut/opendut-go/internal/store"
	"github.com/eclipse-opendut/opendut-go/internal/store/kvcache"
	"github.com/eclipse-opendut/opendut-go/internal/store/sqlstore"
	"github.com/eclipse-opendut/opendut-go/internal/vpn"
	"github.com/eclipse-opendut/opendut-go/pkg/config"
	"github.com/eclipse-opendut/opendut-go/pkg/ids"
	"github.com/eclipse-opendut/opendut-go/pkg/log"
	"github.com/eclipse-opendut/opendut-go/pkg/model"
	"github.com/eclipse-opendut/opendut-go/pkg/pki"
	"github.com/eclipse-opendut/opendut-go/pkg/wire"
)

func newRunCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "start the Cluster Control Plane daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCCPD(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "/etc/opendut/ccpd.yaml", "path to the ccpd configuration file")
	return cmd
}

func runCCPD(ctx context.Context, configPath string) error {
	cfg, err := config.LoadCCPDConfig(configPath)
	if err != nil {
		return errors.Wrap(err, "ccpd: loading configuration")
	}
	log.SetLevel(log.ParseLevel(cfg.LogLevel))

	db, err := sqlstore.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return errors.Wrap(err, "ccpd: connecting to postgres")
	}

	peerStore, err := store.NewPeerStore(sqlstore.NewPeerBackend(db))
	if err != nil {
		return errors.Wrap(err, "ccpd: building peer store")
	}
	if cfg.CacheDBPath != "" {
		cache, err := kvcache.Open(cfg.CacheDBPath)
		if err != nil {
			return errors.Wrap(err, "ccpd: opening kv cache")
		}
		defer cache.Close()
		peerStore.WithCache(cache)
	}
	clusterConfigurationStore := store.NewClusterConfigurationStore(sqlstore.NewClusterConfigurationBackend(db))
	clusterDeploymentStore := store.NewClusterDeploymentStore(sqlstore.NewClusterDeploymentBackend(db))

	resourceManager := resources.NewManager(peerStore, clusterConfigurationStore, clusterDeploymentStore)
	if err := resourceManager.Load(ctx); err != nil {
		return errors.Wrap(err, "ccpd: loading persisted resources")
	}

	a := actions.New(resourceManager, actions.NewPeerStates())
	if cfg.OIDC.Enabled {
		a = a.WithOidc(oidc.New(oidc.Config{
			TokenURL:        cfg.OIDC.TokenURL,
			RegistrationURL: cfg.OIDC.RegistrationURL,
			ClientID:        cfg.OIDC.ClientID,
			ClientSecret:    cfg.OIDC.ClientSecret,
			Scopes:          cfg.OIDC.Scopes,
		}))
	}

	var vpnClient vpn.Client
	switch cfg.VPN.Provider {
	case "", "disabled":
		vpnClient = vpn.NewDisabled()
	default:
		return errors.Errorf("ccpd: unsupported vpn provider %q", cfg.VPN.Provider)
	}

	clusterManager := cluster.NewManager(resourceManager, a, vpnClient, actions.Options{
		BridgeNameDefault: model.NetworkInterfaceName("br-opendut"),
	})

	peerBroker := broker.New(a)
	clusterManager.OnConfigurationUpdate = func(u cluster.PeerConfigurationUpdate) {
		peerBroker.SendToPeer(u.PeerId, wire.ApplyPeerConfiguration(u.Old, u.New, nil))
	}
	peerBroker.OnOpen = func(peerId ids.PeerId) {
		update, ok, err := clusterManager.ConfigurationOnConnect(ctx, peerId)
		if err != nil {
			log.Warnf("ccpd: deriving reconnect configuration for peer %s: %v", peerId, err)
			return
		}
		if !ok {
			return
		}
		peerBroker.SendToPeer(update.PeerId, wire.ApplyPeerConfiguration(update.Old, update.New, nil))
	}
	go func() {
		ticker := time.NewTicker(broker.HeartbeatTimeout / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				peerBroker.ReapStale(ctx)
			}
		}
	}()

	onUpstream := func(_ context.Context, peerId ids.PeerId, msg wire.UpstreamMessage) {
		if msg.Kind == wire.UpEdgePeerConfigurationState && msg.EdgePeerConfigurationState != nil {
			a.Reported.Set(peerId, *msg.EdgePeerConfigurationState)
		}
	}

	observerBroker := observer.New(a)

	creds, err := pki.ServerCredentials(cfg.TLS.CertPath, cfg.TLS.KeyPath, cfg.TLS.CACertPath, cfg.TLS.RequireClient)
	if err != nil {
		return errors.Wrap(err, "ccpd: building server TLS credentials")
	}

	caCertPEM, err := os.ReadFile(cfg.TLS.CACertPath)
	if err != nil {
		return errors.Wrap(err, "ccpd: reading CA certificate")
	}

	// With the CA key available, every generated peer setup also carries a freshly signed
	// client certificate; without it, setups carry the trust root only and operators
	// provision client certificates out of band.
	var issuer *pki.Authority
	if cfg.TLS.CAKeyPath != "" {
		issuer, err = pki.LoadAuthority(cfg.TLS.CACertPath, cfg.TLS.CAKeyPath)
		if err != nil {
			return errors.Wrap(err, "ccpd: loading certificate authority")
		}
	}

	auth := rpc.AuthConfig{
		Validate:    bearerValidator(a, cfg.OIDC.Enabled),
		SkipMethods: nil,
	}
	server := rpc.NewServer(auth, grpc.Creds(creds))

	rpc.RegisterPeerManager(server, rpc.NewPeerManagerServer(a, rpc.CarlEndpoint{
		Host:             cfg.PublicHost,
		Port:             cfg.PublicPort,
		CaCertificatePEM: caCertPEM,
	}, issuer))
	rpc.RegisterClusterManager(server, rpc.NewClusterManagerServer(resourceManager, clusterManager))
	rpc.RegisterPeerMessagingBroker(server, rpc.NewPeerMessagingBrokerServer(peerBroker, onUpstream))
	rpc.RegisterObserverMessagingBroker(server, rpc.NewObserverMessagingBrokerServer(observerBroker))

	addr := fmt.Sprintf("%s:%d", cfg.ListenAddress, cfg.ListenPort)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "ccpd: listening on %s", addr)
	}
	log.Infof("ccpd: serving on %s", addr)
	return server.Serve(listener)
}
