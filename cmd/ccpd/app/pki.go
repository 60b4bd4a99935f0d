package app

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/eclipse-opendut/opendut-go/pkg/pki"
)

func newPkiCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pki",
		Short: "manage the deployment's certificate authority",
	}
	cmd.AddCommand(newPkiInitCommand())
	return cmd
}

// newPkiInitCommand bootstraps a deployment's trust root in one step: a self-signed CA plus
// ccpd's own serving certificate, written to the same paths the run command later loads via
// the tls config section. Peer client certificates are NOT written here; the running daemon
// issues those per peer through generate-setup.
func newPkiInitCommand() *cobra.Command {
	var dir, commonName, hosts string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "initialize a CA and the ccpd serving certificate",
		RunE: func(cmd *cobra.Command, args []string) error {
			authority, err := pki.NewAuthority(commonName)
			if err != nil {
				return errors.Wrap(err, "ccpd: initializing certificate authority")
			}
			serving, err := authority.IssueServerCertificate("ccpd", strings.Split(hosts, ",")...)
			if err != nil {
				return errors.Wrap(err, "ccpd: issuing serving certificate")
			}

			files := []struct {
				name string
				data []byte
				perm os.FileMode
			}{
				{"ca.pem", authority.CACertificatePEM(), 0o644},
				{"ca-key.pem", authority.CAKeyPEM(), 0o600},
				{"server.pem", serving.CertPEM, 0o644},
				{"server-key.pem", serving.KeyPEM, 0o600},
			}
			if err := os.MkdirAll(dir, 0o755); err != nil && !os.IsExist(err) {
				return errors.Wrapf(err, "ccpd: creating %s", dir)
			}
			for _, f := range files {
				path := filepath.Join(dir, f.name)
				if _, err := os.Stat(path); err == nil {
					return errors.Errorf("ccpd: %s already exists, refusing to overwrite", path)
				}
				if err := os.WriteFile(path, f.data, f.perm); err != nil {
					return errors.Wrapf(err, "ccpd: writing %s", path)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "/etc/opendut/pki", "directory the CA and serving certificate are written to")
	cmd.Flags().StringVar(&commonName, "cn", "opendut-ca", "common name of the self-signed CA")
	cmd.Flags().StringVar(&hosts, "hosts", "localhost,127.0.0.1", "comma-separated SANs for the serving certificate")
	return cmd
}
