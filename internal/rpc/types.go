// Package rpc is the RPC Surface: PeerManager, ClusterManager, PeerMessagingBroker (bidi)
// and ObserverMessagingBroker (server-stream) gRPC services, registered by hand against
// grpc.ServiceDesc since no protoc-generated stubs exist for this message set (see pkg/wire's
// package doc for the full rationale).
package rpc

import (
	"encoding/base64"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/eclipse-opendut/opendut-go/pkg/ids"
	"github.com/eclipse-opendut/opendut-go/pkg/model"
)

const (
	PeerManagerService             = "opendut.PeerManager"
	ClusterManagerService           = "opendut.ClusterManager"
	PeerMessagingBrokerService       = "opendut.PeerMessagingBroker"
	ObserverMessagingBrokerService   = "opendut.ObserverMessagingBroker"
)

type StorePeerRequest struct {
	Peer model.PeerDescriptor
}

type StorePeerResponse struct{}

type DeletePeerRequest struct {
	Id ids.PeerId
}

type DeletePeerResponse struct{}

type ListPeerStatesRequest struct{}

type ListPeerStatesResponse struct {
	States map[ids.PeerId]model.PeerState
}

type ListPeersRequest struct{}

type ListPeersResponse struct {
	Peers []model.PeerDescriptor
}

type GetPeerDescriptorRequest struct {
	Id ids.PeerId
}

type GetPeerDescriptorResponse struct {
	Peer model.PeerDescriptor
}

// GeneratePeerSetupRequest asks the CCP to mint the bootstrap blob (CA, CCP address, OIDC
// client credentials when enabled) a brand-new ECA reads from its bootstrap environment
// variable.
type GeneratePeerSetupRequest struct {
	Id ids.PeerId
}

type GeneratePeerSetupResponse struct {
	Setup PeerSetup
}

// PeerSetup is the blob an operator passes to a freshly installed ECA (carried in the
// ECAD_PEER_SETUP bootstrap environment variable). CertificatePEM/PrivateKeyPEM are the
// peer's own CA-signed client keypair, present when the CCP holds the CA key.
type PeerSetup struct {
	PeerId           ids.PeerId
	CarlHost         string
	CarlPort         int
	CaCertificatePEM []byte
	CertificatePEM   []byte
	PrivateKeyPEM    []byte
	AuthClientId     string
	AuthClientSecret string
}

// Encode renders the setup as the base64-of-JSON blob cctl prints and ECAD_PEER_SETUP
// carries.
func (s PeerSetup) Encode() (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", errors.Wrap(err, "peer setup: encoding")
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodePeerSetup reverses PeerSetup.Encode.
func DecodePeerSetup(blob string) (PeerSetup, error) {
	data, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return PeerSetup{}, errors.Wrap(err, "peer setup: decoding base64")
	}
	var s PeerSetup
	if err := json.Unmarshal(data, &s); err != nil {
		return PeerSetup{}, errors.Wrap(err, "peer setup: decoding json")
	}
	return s, nil
}

type StoreClusterConfigurationRequest struct {
	Configuration model.ClusterConfiguration
}

type StoreClusterConfigurationResponse struct{}

type DeleteClusterConfigurationRequest struct {
	Id ids.ClusterId
}

type DeleteClusterConfigurationResponse struct{}

type ListClusterConfigurationsRequest struct{}

type ListClusterConfigurationsResponse struct {
	Configurations []model.ClusterConfiguration
}

type StoreClusterDeploymentRequest struct {
	Deployment model.ClusterDeployment
}

type StoreClusterDeploymentResponse struct {
	ClusterId ids.ClusterId
}

type DeleteClusterDeploymentRequest struct {
	Id ids.ClusterId
}

type DeleteClusterDeploymentResponse struct{}

type ListClusterDeploymentsRequest struct{}

type ListClusterDeploymentsResponse struct {
	Deployments []model.ClusterDeployment
}

type WaitForPeersOnlineRequest struct {
	Peers []ids.PeerId
}

// WaitForPeersOnlineUpdateKind discriminates WaitForPeersOnlineUpdate.
type WaitForPeersOnlineUpdateKind string

const (
	WaitForPeersOnlinePending WaitForPeersOnlineUpdateKind = "Pending"
	WaitForPeersOnlineSuccess WaitForPeersOnlineUpdateKind = "Success"
)

// WaitForPeersOnlineUpdate is one frame of the wait_for_peers_online stream: Pending while at
// least one watched peer is still offline (also emitted periodically as a keep-alive), then a
// single Success, after which the stream closes.
type WaitForPeersOnlineUpdate struct {
	Kind    WaitForPeersOnlineUpdateKind
	Offline []ids.PeerId `json:",omitempty"`
}
