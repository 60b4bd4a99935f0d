package cluster

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eclipse-opendut/opendut-go/internal/actions"
	"github.com/eclipse-opendut/opendut-go/pkg/ids"
	"github.com/eclipse-opendut/opendut-go/pkg/model"
)

func TestCanServerPort_DerivesFromLowIPv4Bits(t *testing.T) {
	assert.Equal(t, uint16(0x0102), canServerPort(net.ParseIP("10.8.1.2").To4()))
	assert.Equal(t, uint16(0x0102), canServerPort(net.IPv4(10, 8, 1, 2)))
}

func TestCanServerPort_NonIPv4ReturnsZero(t *testing.T) {
	assert.Equal(t, uint16(0), canServerPort(net.ParseIP("fe80::1")))
}

// TestManager_Lifecycle_FollowsValidTransitionsOnly drives the lifecycle state machine from
// the Cluster Manager's own entry point rather than ClusterState.ValidTransition in
// isolation.
func TestManager_Lifecycle_FollowsValidTransitionsOnly(t *testing.T) {
	m := NewManager(nil, nil, nil, actions.Options{})
	clusterId := ids.NewClusterId()

	assert.Equal(t, model.ClusterUndeployed, m.State(clusterId).Kind)

	require.NoError(t, m.transition(clusterId, model.ClusterDeploying))
	assert.Equal(t, model.ClusterDeploying, m.State(clusterId).Kind)

	require.NoError(t, m.transition(clusterId, model.ClusterDeployedHealthy))
	assert.Equal(t, model.ClusterDeployedHealthy, m.State(clusterId).Kind)

	// Healthy -> Deploying is not a valid edge (only Undeployed -> Deploying is).
	assert.Error(t, m.transition(clusterId, model.ClusterDeploying))
	assert.Equal(t, model.ClusterDeployedHealthy, m.State(clusterId).Kind, "a rejected transition must not mutate state")

	require.NoError(t, m.transition(clusterId, model.ClusterUndeployed))
	assert.Equal(t, model.ClusterUndeployed, m.State(clusterId).Kind)
}

func TestStoreClusterDeploymentError_IllegalPeerState_MentionsInvalidPeers(t *testing.T) {
	peer := ids.NewPeerId()
	err := &StoreClusterDeploymentError{
		Kind:         ErrIllegalPeerState,
		InvalidPeers: []ids.PeerId{peer},
		Cause:        assertErrCluster("peer currently blocked by another cluster"),
	}
	assert.Contains(t, err.Error(), peer.String())
	assert.ErrorIs(t, err, err.Unwrap())
}

func TestStoreClusterDeploymentError_ConfigurationNotFound(t *testing.T) {
	err := &StoreClusterDeploymentError{Kind: ErrClusterConfigurationNotFound, Cause: assertErrCluster("no cluster configuration")}
	assert.Contains(t, err.Error(), string(ErrClusterConfigurationNotFound))
}

type assertErrCluster string

func (e assertErrCluster) Error() string { return string(e) }
