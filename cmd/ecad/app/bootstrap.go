package app

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/eclipse-opendut/opendut-go/internal/rpc"
	"github.com/eclipse-opendut/opendut-go/pkg/config"
)

// peerSetupEnvVar carries the peer setup blob when an agent is first bootstrapped: the CA
// certificate is persisted to disk and peer id/CARL host/port are merged into the agent's
// configuration on first run.
const peerSetupEnvVar = "ECAD_PEER_SETUP"

// applyBootstrapPeerSetup overlays cfg with the blob named by ECAD_PEER_SETUP, if present.
// It writes the embedded CA certificate next to configPath so the rest of the daemon's TLS
// loading path (pki.ClientCredentials) sees an ordinary file, and fills in any of PeerID/
// CarlHost/CarlPort/AuthClientID/AuthClientSecret the config file left blank. An explicit
// value already present in cfg (from a hand-authored config file) is never overwritten.
func applyBootstrapPeerSetup(cfg *config.ECADConfig, configPath string) error {
	blob, ok := os.LookupEnv(peerSetupEnvVar)
	if !ok || blob == "" {
		return nil
	}
	setup, err := rpc.DecodePeerSetup(blob)
	if err != nil {
		return errors.Wrapf(err, "ecad: decoding %s", peerSetupEnvVar)
	}

	if cfg.PeerID == "" {
		cfg.PeerID = setup.PeerId.String()
	}
	if cfg.CarlHost == "" {
		cfg.CarlHost = setup.CarlHost
	}
	if cfg.CarlPort == 0 {
		cfg.CarlPort = setup.CarlPort
	}
	if cfg.AuthClientID == "" {
		cfg.AuthClientID = setup.AuthClientId
	}
	if cfg.AuthClientSecret == "" {
		cfg.AuthClientSecret = setup.AuthClientSecret
	}

	dir := filepath.Dir(configPath)
	if cfg.TLS.CACertPath == "" && len(setup.CaCertificatePEM) > 0 {
		caPath := filepath.Join(dir, "ca.pem")
		if err := os.MkdirAll(dir, 0o755); err != nil && !os.IsExist(err) {
			return errors.Wrapf(err, "ecad: creating directory for %s", caPath)
		}
		if err := os.WriteFile(caPath, setup.CaCertificatePEM, 0o644); err != nil {
			return errors.Wrapf(err, "ecad: writing CA certificate to %s", caPath)
		}
		cfg.TLS.CACertPath = caPath
	}

	// A setup generated by a CCP holding the CA key also carries this peer's own client
	// keypair; persist it so the mTLS dial path loads it like any operator-provided pair.
	if cfg.TLS.CertPath == "" && cfg.TLS.KeyPath == "" && len(setup.CertificatePEM) > 0 && len(setup.PrivateKeyPEM) > 0 {
		certPath := filepath.Join(dir, "peer.pem")
		keyPath := filepath.Join(dir, "peer-key.pem")
		if err := os.WriteFile(certPath, setup.CertificatePEM, 0o644); err != nil {
			return errors.Wrapf(err, "ecad: writing client certificate to %s", certPath)
		}
		if err := os.WriteFile(keyPath, setup.PrivateKeyPEM, 0o600); err != nil {
			return errors.Wrapf(err, "ecad: writing client key to %s", keyPath)
		}
		cfg.TLS.CertPath = certPath
		cfg.TLS.KeyPath = keyPath
	}
	return nil
}
