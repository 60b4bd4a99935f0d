package rpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eclipse-opendut/opendut-go/pkg/ids"
)

// TestPeerSetup_EncodeDecodeRoundTrip round-trips the bootstrap blob cctl prints
// and ECAD_PEER_SETUP carries: DecodePeerSetup(Encode(x)) == x.
func TestPeerSetup_EncodeDecodeRoundTrip(t *testing.T) {
	setup := PeerSetup{
		PeerId:           ids.NewPeerId(),
		CarlHost:         "carl.example.org",
		CarlPort:         8080,
		CaCertificatePEM: []byte("-----BEGIN CERTIFICATE-----\nAAAA\n-----END CERTIFICATE-----\n"),
		AuthClientId:     "client-1",
		AuthClientSecret: "s3cret",
	}

	blob, err := setup.Encode()
	require.NoError(t, err)
	assert.NotEmpty(t, blob)

	out, err := DecodePeerSetup(blob)
	require.NoError(t, err)
	assert.Equal(t, setup, out)
}

func TestPeerSetup_EncodeDecodeRoundTrip_NoOidc(t *testing.T) {
	setup := PeerSetup{
		PeerId:           ids.NewPeerId(),
		CarlHost:         "carl.example.org",
		CarlPort:         8080,
		CaCertificatePEM: []byte("cert"),
	}

	blob, err := setup.Encode()
	require.NoError(t, err)

	out, err := DecodePeerSetup(blob)
	require.NoError(t, err)
	assert.Equal(t, setup, out)
	assert.Empty(t, out.AuthClientId)
	assert.Empty(t, out.AuthClientSecret)
}

func TestDecodePeerSetup_RejectsInvalidBase64(t *testing.T) {
	_, err := DecodePeerSetup("not base64 at all !!!")
	assert.Error(t, err)
}

func TestDecodePeerSetup_RejectsInvalidJSON(t *testing.T) {
	// valid base64, but not JSON
	_, err := DecodePeerSetup("bm90IGpzb24=")
	assert.Error(t, err)
}
