package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/eclipse-opendut/opendut-go/internal/rpc"
	"github.com/eclipse-opendut/opendut-go/pkg/config"
	"github.com/eclipse-opendut/opendut-go/pkg/pki"
)

// carlClient bundles the clients for every RPC service cctl calls over one shared
// connection.
type carlClient struct {
	conn    *grpc.ClientConn
	Peers   *rpc.PeerManagerClient
	Cluster *rpc.ClusterManagerClient
}

func (c *carlClient) Close() error { return c.conn.Close() }

// dial loads cctl's configuration, builds TLS + bearer credentials from it, and connects to
// the configured CCP.
func dial(ctx context.Context) (*carlClient, error) {
	cfg, err := config.LoadCCTLConfig(opts.configPath)
	if err != nil {
		return nil, errors.Wrap(err, "cctl: loading configuration")
	}

	creds, err := pki.ClientCredentials(cfg.TLS.CertPath, cfg.TLS.KeyPath, cfg.TLS.CACertPath)
	if err != nil {
		return nil, errors.Wrap(err, "cctl: building client TLS credentials")
	}

	token := cfg.PeerID
	if cfg.ClientSecret != "" {
		token = cfg.PeerID + ":" + cfg.ClientSecret
	}

	dialOpts := rpc.DialOptions(
		grpc.WithTransportCredentials(creds),
		grpc.WithPerRPCCredentials(rpc.NewBearerCredentials(token, true)),
	)
	addr := fmt.Sprintf("%s:%d", cfg.CarlHost, cfg.CarlPort)
	conn, err := grpc.DialContext(ctx, addr, dialOpts...)
	if err != nil {
		return nil, errors.Wrapf(err, "cctl: dialing %s", addr)
	}
	return &carlClient{
		conn:    conn,
		Peers:   rpc.NewPeerManagerClient(conn),
		Cluster: rpc.NewClusterManagerClient(conn),
	}, nil
}

// render prints v in the configured --output format: a caller-supplied text renderer for
// OutputText, or json/pretty-json via encoding/json for the other two. No third-party
// CLI-table library appears anywhere in the example pack, so OutputText stays a small
// stdlib-only renderer (documented in DESIGN.md).
func render(v any, text func()) error {
	switch outputFormat() {
	case OutputJSON:
		data, err := json.Marshal(v)
		if err != nil {
			return errors.Wrap(err, "cctl: encoding json output")
		}
		fmt.Println(string(data))
	case OutputPrettyJSON:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return errors.Wrap(err, "cctl: encoding json output")
		}
		fmt.Println(string(data))
	default:
		text()
	}
	return nil
}

// renderError prints err in the configured output format (JSON or prose) and returns a
// plain sentinel so cobra's caller can map it to a non-zero exit code without a second,
// cobra-authored message also being printed (root.go sets SilenceErrors).
func renderError(err error) error {
	st, ok := status.FromError(errors.Cause(err))
	message := err.Error()
	code := "Unknown"
	if ok {
		code = st.Code().String()
		if st.Message() != "" {
			message = st.Message()
		}
	}

	switch outputFormat() {
	case OutputJSON, OutputPrettyJSON:
		payload := map[string]any{"error": map[string]string{"code": code, "message": message}}
		var data []byte
		if outputFormat() == OutputPrettyJSON {
			data, _ = json.MarshalIndent(payload, "", "  ")
		} else {
			data, _ = json.Marshal(payload)
		}
		fmt.Fprintln(os.Stderr, string(data))
	default:
		fmt.Fprintln(os.Stderr, color.RedString("Error: %s", message))
	}
	return errors.New(code)
}
