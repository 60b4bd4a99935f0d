package pki

import (
	"crypto/x509"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func verifyAgainst(t *testing.T, kp *KeyPair, caCertPEM []byte, usage x509.ExtKeyUsage) {
	t.Helper()
	pool := x509.NewCertPool()
	require.True(t, pool.AppendCertsFromPEM(caCertPEM))
	_, err := kp.Cert.Verify(x509.VerifyOptions{
		Roots:     pool,
		KeyUsages: []x509.ExtKeyUsage{usage},
	})
	require.NoError(t, err)
}

func TestAuthority_IssueClientCertificate(t *testing.T) {
	authority, err := NewAuthority("opendut-ca")
	require.NoError(t, err)

	kp, err := authority.IssueClientCertificate("0d463fa2-3b61-4ffa-8438-4c6ab70776a4")
	require.NoError(t, err)

	assert.Equal(t, "0d463fa2-3b61-4ffa-8438-4c6ab70776a4", kp.Cert.Subject.CommonName)
	assert.NotEmpty(t, kp.CertPEM)
	assert.NotEmpty(t, kp.KeyPEM)
	verifyAgainst(t, kp, authority.CACertificatePEM(), x509.ExtKeyUsageClientAuth)

	// A client certificate must not be usable as a serving certificate.
	pool := x509.NewCertPool()
	require.True(t, pool.AppendCertsFromPEM(authority.CACertificatePEM()))
	_, err = kp.Cert.Verify(x509.VerifyOptions{
		Roots:     pool,
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	})
	assert.Error(t, err)
}

func TestAuthority_IssueServerCertificate_CarriesHosts(t *testing.T) {
	authority, err := NewAuthority("opendut-ca")
	require.NoError(t, err)

	kp, err := authority.IssueServerCertificate("ccpd", "carl.example.com", "127.0.0.1")
	require.NoError(t, err)

	require.NoError(t, kp.Cert.VerifyHostname("carl.example.com"))
	verifyAgainst(t, kp, authority.CACertificatePEM(), x509.ExtKeyUsageServerAuth)
}

// TestLoadAuthority_RoundTrip mirrors the deployment flow: `pki init` writes the CA to
// disk, the daemon loads it later and signs peer certificates that still verify against the
// original trust root.
func TestLoadAuthority_RoundTrip(t *testing.T) {
	original, err := NewAuthority("opendut-ca")
	require.NoError(t, err)

	dir := t.TempDir()
	certPath := filepath.Join(dir, "ca.pem")
	keyPath := filepath.Join(dir, "ca-key.pem")
	require.NoError(t, os.WriteFile(certPath, original.CACertificatePEM(), 0o644))
	require.NoError(t, os.WriteFile(keyPath, original.CAKeyPEM(), 0o600))

	loaded, err := LoadAuthority(certPath, keyPath)
	require.NoError(t, err)

	kp, err := loaded.IssueClientCertificate("peer-a")
	require.NoError(t, err)
	verifyAgainst(t, kp, original.CACertificatePEM(), x509.ExtKeyUsageClientAuth)
}

func TestLoadAuthority_MissingFiles(t *testing.T) {
	_, err := LoadAuthority("/does/not/exist.pem", "/does/not/exist-key.pem")
	assert.Error(t, err)
}
