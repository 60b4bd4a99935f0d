package cluster

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eclipse-opendut/opendut-go/internal/actions"
	"github.com/eclipse-opendut/opendut-go/internal/resources"
	"github.com/eclipse-opendut/opendut-go/internal/store"
	"github.com/eclipse-opendut/opendut-go/internal/vpn"
	"github.com/eclipse-opendut/opendut-go/pkg/ids"
	"github.com/eclipse-opendut/opendut-go/pkg/model"
)

// deployFixture wires a memory-only resource manager, live peer states and a Cluster Manager
// the way cmd/ccpd does, minus the RPC surface and broker.
type deployFixture struct {
	resources *resources.Manager
	actions   *actions.Actions
	manager   *Manager
	updates   []PeerConfigurationUpdate
}

func newDeployFixture(t *testing.T, vpnClient vpn.Client) *deployFixture {
	t.Helper()
	peerStore, err := store.NewPeerStore(nil)
	require.NoError(t, err)
	r := resources.NewManager(peerStore, store.NewClusterConfigurationStore(nil), store.NewClusterDeploymentStore(nil))
	a := actions.New(r, actions.NewPeerStates())

	f := &deployFixture{resources: r, actions: a}
	f.manager = NewManager(r, a, vpnClient, actions.Options{BridgeNameDefault: "br-opendut"})
	f.manager.OnConfigurationUpdate = func(u PeerConfigurationUpdate) {
		f.updates = append(f.updates, u)
	}
	return f
}

// addOnlinePeer stores a descriptor owning one ethernet device and marks the peer up.
func (f *deployFixture) addOnlinePeer(t *testing.T, name, addr string) (ids.PeerId, ids.DeviceId) {
	t.Helper()
	peerId := ids.NewPeerId()
	ifaceId := ids.NewNetworkInterfaceId()
	deviceId := ids.NewDeviceId()

	peerName, err := model.NewPeerName(name)
	require.NoError(t, err)
	ifaceName, err := model.NewNetworkInterfaceName("eth0")
	require.NoError(t, err)

	descriptor := model.PeerDescriptor{
		Id:   peerId,
		Name: peerName,
		Network: model.PeerNetworkDescriptor{
			Interfaces: []model.NetworkInterfaceDescriptor{
				{Id: ifaceId, Name: ifaceName, Configuration: model.EthernetConfiguration()},
			},
		},
		Topology: model.Topology{
			Devices: []model.Device{{Id: deviceId, Name: name + "-ecu", Interface: ifaceId}},
		},
	}
	require.NoError(t, f.resources.ResourcesMut(func(r *resources.Manager) error {
		return r.Peers.Insert(context.Background(), peerId, descriptor)
	}))
	f.actions.States.Set(peerId, model.UpState(net.ParseIP(addr), model.Available()))
	return peerId, deviceId
}

func (f *deployFixture) storeCluster(t *testing.T, leader ids.PeerId, devices ...ids.DeviceId) ids.ClusterId {
	t.Helper()
	clusterId := ids.NewClusterId()
	name, err := model.NewClusterName("cluster-" + clusterId.String()[:8])
	require.NoError(t, err)
	deviceSet := make(map[ids.DeviceId]struct{}, len(devices))
	for _, d := range devices {
		deviceSet[d] = struct{}{}
	}
	require.NoError(t, f.resources.ResourcesMut(func(r *resources.Manager) error {
		return r.ClusterConfigurations.Insert(context.Background(), clusterId, model.ClusterConfiguration{
			Id: clusterId, Name: name, Leader: leader, Devices: deviceSet,
		})
	}))
	return clusterId
}

// TestStoreThenDeleteClusterDeployment: deploying a two-peer cluster hands
// every member an ApplyPeerConfiguration-shaped update carrying the new assignment, and
// deleting the deployment hands every member an all-Absent configuration with no assignment.
func TestStoreThenDeleteClusterDeployment(t *testing.T) {
	ctx := context.Background()
	f := newDeployFixture(t, vpn.NewDisabled())
	peerA, deviceA := f.addOnlinePeer(t, "peer-a", "10.0.0.1")
	peerB, deviceB := f.addOnlinePeer(t, "peer-b", "10.0.0.2")
	clusterId := f.storeCluster(t, peerA, deviceA, deviceB)

	got, err := f.manager.StoreClusterDeployment(ctx, model.ClusterDeployment{Id: clusterId})
	require.NoError(t, err)
	assert.Equal(t, clusterId, got)
	assert.Equal(t, model.ClusterDeployedHealthy, f.manager.State(clusterId).Kind)

	require.Len(t, f.updates, 2)
	seen := map[ids.PeerId]bool{}
	for _, u := range f.updates {
		seen[u.PeerId] = true
		require.NotNil(t, u.Old.ClusterAssignment)
		assert.Equal(t, clusterId, u.Old.ClusterAssignment.Id)
		assert.NotEmpty(t, u.New.Parameters)
		for _, p := range u.New.Parameters {
			assert.Equal(t, model.TargetPresent, p.Target)
		}
	}
	assert.True(t, seen[peerA] && seen[peerB])

	for _, id := range []ids.PeerId{peerA, peerB} {
		st := f.actions.States.Get(id)
		assert.Equal(t, model.MemberBlocked, st.MemberState.Kind)
		assert.Equal(t, clusterId, st.MemberState.ByCluster)
	}

	f.updates = nil
	require.NoError(t, f.manager.DeleteClusterDeployment(ctx, clusterId))
	assert.Equal(t, model.ClusterUndeployed, f.manager.State(clusterId).Kind)

	require.Len(t, f.updates, 2)
	for _, u := range f.updates {
		assert.Nil(t, u.Old.ClusterAssignment)
		require.NotEmpty(t, u.New.Parameters)
		for _, p := range u.New.Parameters {
			assert.Equal(t, model.TargetAbsent, p.Target)
		}
	}
	for _, id := range []ids.PeerId{peerA, peerB} {
		assert.Equal(t, model.MemberAvailable, f.actions.States.Get(id).MemberState.Kind)
	}
}

// TestStoreClusterDeployment_RejectsPeerBlockedByAnotherCluster: deploying a second cluster
// sharing a peer with an already deployed one fails, naming the blocked peer.
func TestStoreClusterDeployment_RejectsPeerBlockedByAnotherCluster(t *testing.T) {
	ctx := context.Background()
	f := newDeployFixture(t, vpn.NewDisabled())
	peerA, deviceA := f.addOnlinePeer(t, "peer-a", "10.0.0.1")
	_, deviceB := f.addOnlinePeer(t, "peer-b", "10.0.0.2")
	_, deviceC := f.addOnlinePeer(t, "peer-c", "10.0.0.3")

	first := f.storeCluster(t, peerA, deviceA, deviceB)
	_, err := f.manager.StoreClusterDeployment(ctx, model.ClusterDeployment{Id: first})
	require.NoError(t, err)

	second := f.storeCluster(t, peerA, deviceA, deviceC)
	_, err = f.manager.StoreClusterDeployment(ctx, model.ClusterDeployment{Id: second})

	var deployErr *StoreClusterDeploymentError
	require.ErrorAs(t, err, &deployErr)
	assert.Equal(t, ErrIllegalPeerState, deployErr.Kind)
	assert.Contains(t, deployErr.InvalidPeers, peerA)
}

func TestStoreClusterDeployment_UnknownConfiguration(t *testing.T) {
	f := newDeployFixture(t, vpn.NewDisabled())

	_, err := f.manager.StoreClusterDeployment(context.Background(), model.ClusterDeployment{Id: ids.NewClusterId()})

	var deployErr *StoreClusterDeploymentError
	require.ErrorAs(t, err, &deployErr)
	assert.Equal(t, ErrClusterConfigurationNotFound, deployErr.Kind)
}

// TestConfigurationOnConnect covers the reconnect path: a member of a deployed
// cluster that reconnects is handed a freshly derived configuration, while a peer outside any
// deployment gets nothing.
func TestConfigurationOnConnect(t *testing.T) {
	ctx := context.Background()
	f := newDeployFixture(t, vpn.NewDisabled())
	peerA, deviceA := f.addOnlinePeer(t, "peer-a", "10.0.0.1")
	_, deviceB := f.addOnlinePeer(t, "peer-b", "10.0.0.2")
	clusterId := f.storeCluster(t, peerA, deviceA, deviceB)

	_, err := f.manager.StoreClusterDeployment(ctx, model.ClusterDeployment{Id: clusterId})
	require.NoError(t, err)

	update, ok, err := f.manager.ConfigurationOnConnect(ctx, peerA)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, peerA, update.PeerId)
	require.NotNil(t, update.Old.ClusterAssignment)
	assert.Equal(t, clusterId, update.Old.ClusterAssignment.Id)
	assert.NotEmpty(t, update.New.Parameters)

	outsider, _ := f.addOnlinePeer(t, "peer-x", "10.0.0.9")
	_, ok, err = f.manager.ConfigurationOnConnect(ctx, outsider)
	require.NoError(t, err)
	assert.False(t, ok)
}

// recordingVpn counts group lifecycle calls and can fail CreateGroup, for the partial-failure
// policy below.
type recordingVpn struct {
	vpn.Disabled
	createErr error
	created   int
	deleted   int
}

func (v *recordingVpn) Enabled() bool { return true }

func (v *recordingVpn) CreateGroup(_ context.Context, _ ids.ClusterId, _ map[ids.PeerId]net.IP) error {
	if v.createErr != nil {
		return v.createErr
	}
	v.created++
	return nil
}

func (v *recordingVpn) DeleteGroup(_ context.Context, _ ids.ClusterId) error {
	v.deleted++
	return nil
}

// TestStoreClusterDeployment_VpnGroupFailureLeavesClusterUnhealthy covers the partial
// failure policy: a failed VPN group creation is surfaced, nothing is rolled back, and the
// cluster is left in the unhealthy deployed state.
func TestStoreClusterDeployment_VpnGroupFailureLeavesClusterUnhealthy(t *testing.T) {
	ctx := context.Background()
	v := &recordingVpn{createErr: assertErrCluster("netbird unreachable")}
	f := newDeployFixture(t, v)
	peerA, deviceA := f.addOnlinePeer(t, "peer-a", "10.0.0.1")
	_, deviceB := f.addOnlinePeer(t, "peer-b", "10.0.0.2")
	clusterId := f.storeCluster(t, peerA, deviceA, deviceB)

	_, err := f.manager.StoreClusterDeployment(ctx, model.ClusterDeployment{Id: clusterId})
	require.Error(t, err)
	assert.Equal(t, model.ClusterDeployedUnhealthy, f.manager.State(clusterId).Kind)

	// The deployment record stays: no automatic rollback.
	exists := false
	require.NoError(t, f.resources.Resources(func(r *resources.Manager) error {
		_, ok, err := r.ClusterDeployments.Get(ctx, clusterId)
		exists = ok
		return err
	}))
	assert.True(t, exists)
}

func TestDeleteClusterDeployment_DeletesVpnGroup(t *testing.T) {
	ctx := context.Background()
	v := &recordingVpn{}
	f := newDeployFixture(t, v)
	peerA, deviceA := f.addOnlinePeer(t, "peer-a", "10.0.0.1")
	_, deviceB := f.addOnlinePeer(t, "peer-b", "10.0.0.2")
	clusterId := f.storeCluster(t, peerA, deviceA, deviceB)

	_, err := f.manager.StoreClusterDeployment(ctx, model.ClusterDeployment{Id: clusterId})
	require.NoError(t, err)
	require.Equal(t, 1, v.created)

	require.NoError(t, f.manager.DeleteClusterDeployment(ctx, clusterId))
	assert.Equal(t, 1, v.deleted)
}

// TestStoreClusterDeployment_OfflineMemberStillBlocksOverlap: membership is derived from the
// deployment records, so taking a deployed member's agent offline must not open the door to
// an overlapping second deployment.
func TestStoreClusterDeployment_OfflineMemberStillBlocksOverlap(t *testing.T) {
	ctx := context.Background()
	f := newDeployFixture(t, vpn.NewDisabled())
	peerA, deviceA := f.addOnlinePeer(t, "peer-a", "10.0.0.1")
	_, deviceB := f.addOnlinePeer(t, "peer-b", "10.0.0.2")
	_, deviceC := f.addOnlinePeer(t, "peer-c", "10.0.0.3")

	first := f.storeCluster(t, peerA, deviceA, deviceB)
	_, err := f.manager.StoreClusterDeployment(ctx, model.ClusterDeployment{Id: first})
	require.NoError(t, err)

	f.actions.ConnectionClosed(peerA)

	second := f.storeCluster(t, peerA, deviceA, deviceC)
	_, err = f.manager.StoreClusterDeployment(ctx, model.ClusterDeployment{Id: second})

	var deployErr *StoreClusterDeploymentError
	require.ErrorAs(t, err, &deployErr)
	assert.Equal(t, ErrIllegalPeerState, deployErr.Kind)
	assert.Contains(t, deployErr.InvalidPeers, peerA)
}
