// Package config holds the plain Go configuration structs for ccpd and ecad: a YAML file
// plus an environment variable overlay, loaded once at startup. The daemons are configured
// by file rather than a long flag list.
package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/eclipse-opendut/opendut-go/pkg/util/env"
)

// TLSConfig names the certificate material a server or client needs for mTLS.
type TLSConfig struct {
	CACertPath    string `yaml:"ca_cert_path"`
	CertPath      string `yaml:"cert_path"`
	KeyPath       string `yaml:"key_path"`
	RequireClient bool   `yaml:"require_client_cert"`

	// CAKeyPath is only read by ccpd: when set, the daemon signs a client certificate for
	// every generated peer setup. Agents and cctl never hold the CA key.
	CAKeyPath string `yaml:"ca_key_path"`
}

// OIDCConfig names the identity provider this deployment delegates peer authentication to. A
// zero value (Enabled == false) means OIDC is not configured and actions.Actions runs without
// an *oidc.Registrar.
type OIDCConfig struct {
	Enabled         bool     `yaml:"enabled"`
	TokenURL        string   `yaml:"token_url"`
	RegistrationURL string   `yaml:"registration_url"`
	ClientID        string   `yaml:"client_id"`
	ClientSecret    string   `yaml:"client_secret"`
	Scopes          []string `yaml:"scopes"`
}

// VPNConfig names the overlay network provider. Absent provider name runs with vpn.Disabled.
type VPNConfig struct {
	Provider string `yaml:"provider"`
}

// CCPDConfig is the Cluster Control Plane daemon's configuration.
type CCPDConfig struct {
	ListenAddress string `yaml:"listen_address"`
	ListenPort    int    `yaml:"listen_port"`

	// PublicHost/PublicPort are embedded in generated PeerSetups so a freshly bootstrapped ECA
	// knows how to reach this CCP; they may differ from ListenAddress/ListenPort behind a NAT
	// or load balancer.
	PublicHost string `yaml:"public_host"`
	PublicPort int    `yaml:"public_port"`

	PostgresDSN string `yaml:"postgres_dsn"`

	// CacheDBPath locates the embedded KV blob cache sitting behind the SQL tables; empty
	// disables it.
	CacheDBPath string `yaml:"cache_db_path"`

	TLS  TLSConfig  `yaml:"tls"`
	OIDC OIDCConfig `yaml:"oidc"`
	VPN  VPNConfig  `yaml:"vpn"`

	// LogLevel is overridden by the CCPD_LOG environment variable.
	LogLevel string `yaml:"log_level" env:"CCPD_LOG"`
}

// SetDefaults fills in the fields ccpd can run with out of the box, so zero-value structs
// never silently mean something.
func (c *CCPDConfig) SetDefaults() {
	if c.ListenAddress == "" {
		c.ListenAddress = "0.0.0.0"
	}
	if c.ListenPort == 0 {
		c.ListenPort = 5001
	}
	if c.PublicHost == "" {
		c.PublicHost = "localhost"
	}
	if c.PublicPort == 0 {
		c.PublicPort = c.ListenPort
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// LoadCCPDConfig reads a YAML document at path, applies defaults, then overlays any `env:`-tagged
// field from the process environment via pkg/util/env.SetEnvs.
func LoadCCPDConfig(path string) (*CCPDConfig, error) {
	var cfg CCPDConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := env.SetEnvs(&cfg); err != nil {
		return nil, errors.Wrap(err, "config: applying environment overrides")
	}
	return &cfg, nil
}

// ECADConfig is the Edge Configuration Agent's configuration. Most fields are normally supplied
// by a PeerSetup blob (rpc.PeerSetup) rather than hand-authored, but a config file remains the
// override path for local development and for fields PeerSetup does not carry.
type ECADConfig struct {
	PeerID string `yaml:"peer_id"`

	CarlHost string `yaml:"carl_host"`
	CarlPort int    `yaml:"carl_port"`

	TLS TLSConfig `yaml:"tls"`

	AuthClientID     string `yaml:"auth_client_id"`
	AuthClientSecret string `yaml:"auth_client_secret"`
	AuthTokenURL     string `yaml:"auth_token_url"`

	HealthMeshBindAddress string `yaml:"health_mesh_bind_address"`
	HealthMeshBindPort    int    `yaml:"health_mesh_bind_port"`

	// LogLevel is overridden by the ECAD_LOG environment variable.
	LogLevel string `yaml:"log_level" env:"ECAD_LOG"`
}

func (c *ECADConfig) SetDefaults() {
	if c.CarlPort == 0 {
		c.CarlPort = 5001
	}
	if c.HealthMeshBindAddress == "" {
		c.HealthMeshBindAddress = "0.0.0.0"
	}
	if c.HealthMeshBindPort == 0 {
		c.HealthMeshBindPort = 7980
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func LoadECADConfig(path string) (*ECADConfig, error) {
	var cfg ECADConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := env.SetEnvs(&cfg); err != nil {
		return nil, errors.Wrap(err, "config: applying environment overrides")
	}
	return &cfg, nil
}

// CCTLConfig is the operator CLI's configuration: enough to dial ccpd and authenticate as a
// configured peer identity.
type CCTLConfig struct {
	CarlHost string `yaml:"carl_host"`
	CarlPort int    `yaml:"carl_port"`

	PeerID       string `yaml:"peer_id"`
	ClientSecret string `yaml:"client_secret"`

	TLS TLSConfig `yaml:"tls"`

	LogLevel string `yaml:"log_level" env:"CCTL_LOG"`
}

func (c *CCTLConfig) SetDefaults() {
	if c.CarlPort == 0 {
		c.CarlPort = 5001
	}
	if c.LogLevel == "" {
		c.LogLevel = "warn"
	}
}

func LoadCCTLConfig(path string) (*CCTLConfig, error) {
	var cfg CCTLConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := env.SetEnvs(&cfg); err != nil {
		return nil, errors.Wrap(err, "config: applying environment overrides")
	}
	return &cfg, nil
}

// loadYAML unmarshals path into out. A missing file is not an error: every field then keeps
// its Go zero value until SetDefaults runs, so an agent bootstrapped purely from its
// environment needs no config file at all.
func loadYAML(path string, out any) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "config: reading %s", path)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return errors.Wrapf(err, "config: parsing %s", path)
	}
	return nil
}

// DurationOrDefault parses s as a time.Duration, returning def on empty input or parse failure.
// Used where a YAML field is optional but callers need a concrete duration regardless.
func DurationOrDefault(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
