// Package pki holds the certificate plumbing for mTLS between ccpd, ecad and cctl: the
// TLS transport credentials both sides dial/serve with, and the Authority ccpd uses to sign
// one client certificate per bootstrapped peer.
package pki

import (
	"crypto"
	"crypto/tls"
	"crypto/x509"
	"os"
	"time"

	"github.com/cloudflare/cfssl/cli/genkey"
	"github.com/cloudflare/cfssl/config"
	"github.com/cloudflare/cfssl/csr"
	"github.com/cloudflare/cfssl/helpers"
	"github.com/cloudflare/cfssl/initca"
	clog "github.com/cloudflare/cfssl/log"
	"github.com/cloudflare/cfssl/signer"
	"github.com/cloudflare/cfssl/signer/local"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc/credentials"

	"github.com/eclipse-opendut/opendut-go/pkg/log"
)

const (
	// ClientSigningProfile signs certificates identifying a dialing agent or operator.
	ClientSigningProfile = "client"
	// ServerSigningProfile signs ccpd's own serving certificate (`ccpd pki init`).
	ServerSigningProfile = "server"
)

var signingProfiles = &config.Signing{
	Default: &config.SigningProfile{
		Expiry: 5 * 365 * 24 * time.Hour,
	},
	Profiles: map[string]*config.SigningProfile{
		ClientSigningProfile: {
			Expiry: 5 * 365 * 24 * time.Hour,
			Usage: []string{
				"signing",
				"key encipherment",
				"client auth",
			},
		},
		ServerSigningProfile: {
			Expiry: 5 * 365 * 24 * time.Hour,
			Usage: []string{
				"signing",
				"key encipherment",
				"server auth",
			},
		},
	},
}

type logger struct {
	l *zap.Logger
}

func (l *logger) Debug(msg string)   { l.l.Debug(msg) }
func (l *logger) Info(msg string)    { l.l.Info(msg) }
func (l *logger) Warning(msg string) { l.l.Warn(msg) }
func (l *logger) Err(msg string)     { l.l.Error(msg) }
func (l *logger) Crit(msg string)    { l.l.Error(msg) }
func (l *logger) Emerg(msg string)   { l.l.Fatal(msg) }

func init() {
	clog.SetLogger(&logger{log.NewLoggerWithLevel("cfssl", zapcore.ErrorLevel)})
}

// KeyPair is a parsed certificate and its private key, kept in both structured and PEM form
// so callers can hand the PEM halves straight to a setup blob or a tls.Config.
type KeyPair struct {
	Cert    *x509.Certificate
	CertPEM []byte
	Key     crypto.Signer
	KeyPEM  []byte
}

func newKeyPairFromPEM(certPEM, keyPEM []byte) (*KeyPair, error) {
	cert, err := helpers.ParseCertificatePEM(certPEM)
	if err != nil {
		return nil, errors.Wrap(err, "pki: parsing certificate")
	}
	key, err := helpers.ParsePrivateKeyPEM(keyPEM)
	if err != nil {
		return nil, errors.Wrap(err, "pki: parsing private key")
	}
	return &KeyPair{Cert: cert, CertPEM: certPEM, Key: key, KeyPEM: keyPEM}, nil
}

// Authority is the certificate authority ccpd holds: GeneratePeerSetup asks it for one
// client certificate per bootstrapped peer, so a fresh agent can dial back over mTLS without
// an operator ever running a CA tool by hand.
type Authority struct {
	ca *KeyPair
}

// NewAuthority self-signs a fresh CA, used by `ccpd pki init` to bootstrap a deployment's
// trust root.
func NewAuthority(commonName string) (*Authority, error) {
	certPEM, _, keyPEM, err := initca.New(&csr.CertificateRequest{
		CN:         commonName,
		Names:      []csr.Name{{O: "openDuT"}},
		KeyRequest: &csr.KeyRequest{A: "ecdsa", S: 256},
	})
	if err != nil {
		return nil, errors.Wrap(err, "pki: self-signing CA")
	}
	ca, err := newKeyPairFromPEM(certPEM, keyPEM)
	if err != nil {
		return nil, err
	}
	return &Authority{ca: ca}, nil
}

// LoadAuthority reads the CA certificate and private key ccpd signs peer certificates with.
func LoadAuthority(certPath, keyPath string) (*Authority, error) {
	certPEM, err := os.ReadFile(certPath)
	if err != nil {
		return nil, errors.Wrap(err, "pki: reading CA certificate")
	}
	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, errors.Wrap(err, "pki: reading CA key")
	}
	ca, err := newKeyPairFromPEM(certPEM, keyPEM)
	if err != nil {
		return nil, err
	}
	return &Authority{ca: ca}, nil
}

// CACertificatePEM is the trust root embedded into every generated peer setup.
func (a *Authority) CACertificatePEM() []byte { return a.ca.CertPEM }

// CAKeyPEM is the CA's private key, written to disk (mode 0600) only by `ccpd pki init`.
func (a *Authority) CAKeyPEM() []byte { return a.ca.KeyPEM }

// IssueServerCertificate signs ccpd's own serving keypair, with the public hosts its peers
// will dial as SANs.
func (a *Authority) IssueServerCertificate(commonName string, hosts ...string) (*KeyPair, error) {
	return a.issue(ServerSigningProfile, commonName, hosts)
}

// IssueClientCertificate signs a fresh client-auth keypair whose common name is the peer's
// id (or an operator identity), valid against this authority's CA.
func (a *Authority) IssueClientCertificate(commonName string) (*KeyPair, error) {
	return a.issue(ClientSigningProfile, commonName, nil)
}

func (a *Authority) issue(profile, commonName string, hosts []string) (*KeyPair, error) {
	g := &csr.Generator{Validator: genkey.Validator}
	csrBytes, keyPEM, err := g.ProcessRequest(&csr.CertificateRequest{
		CN:         commonName,
		Names:      []csr.Name{{O: "openDuT"}},
		Hosts:      hosts,
		KeyRequest: &csr.KeyRequest{A: "ecdsa", S: 256},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "pki: generating key for %q", commonName)
	}
	s, err := local.NewSigner(a.ca.Key, a.ca.Cert, signer.DefaultSigAlgo(a.ca.Key), signingProfiles)
	if err != nil {
		return nil, errors.Wrap(err, "pki: building signer")
	}
	certPEM, err := s.Sign(signer.SignRequest{
		Request: string(csrBytes),
		Profile: profile,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "pki: signing certificate for %q", commonName)
	}
	return newKeyPairFromPEM(certPEM, keyPEM)
}

// loadCertPool reads one or more PEM certificates from caCertPath into a fresh pool.
func loadCertPool(caCertPath string) (*x509.CertPool, error) {
	data, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, errors.Errorf("pki: no certificates found in %s", caCertPath)
	}
	return pool, nil
}

// ServerCredentials builds the grpc transport credentials ccpd serves with: certFile/keyFile
// identify the CCP itself, caCertPath is the trust root peers and cctl are signed from, and
// requireClient upgrades verification to mutual TLS (RequireAndVerifyClientCert) rather than
// plain server-side TLS.
func ServerCredentials(certFile, keyFile, caCertPath string, requireClient bool) (credentials.TransportCredentials, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, errors.Wrap(err, "pki: loading server keypair")
	}
	cfg := &tls.Config{Certificates: []tls.Certificate{cert}}
	if caCertPath != "" {
		pool, err := loadCertPool(caCertPath)
		if err != nil {
			return nil, err
		}
		cfg.ClientCAs = pool
		if requireClient {
			cfg.ClientAuth = tls.RequireAndVerifyClientCert
		}
	}
	return credentials.NewTLS(cfg), nil
}

// ClientCredentials builds the grpc transport credentials an ecad/cctl dials ccpd with.
// certFile/keyFile are only required when ccpd demands a client certificate (mTLS); an empty
// pair yields a client presenting no certificate of its own.
func ClientCredentials(certFile, keyFile, caCertPath string) (credentials.TransportCredentials, error) {
	cfg := &tls.Config{}
	if caCertPath != "" {
		pool, err := loadCertPool(caCertPath)
		if err != nil {
			return nil, err
		}
		cfg.RootCAs = pool
	}
	if certFile != "" && keyFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, errors.Wrap(err, "pki: loading client keypair")
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return credentials.NewTLS(cfg), nil
}
