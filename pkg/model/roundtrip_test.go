package model

import (
	"encoding/json"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eclipse-opendut/opendut-go/pkg/ids"
)

// TestPeerDescriptor_RoundTrip exercises the Resource Manager's richest entity:
// serialise-then-deserialise must reproduce every field, including the tagged-union
// NetworkInterfaceConfiguration and ExecutorKind variants.
func TestPeerDescriptor_RoundTrip(t *testing.T) {
	ifaceEth := ids.NewNetworkInterfaceId()
	ifaceCan := ids.NewNetworkInterfaceId()
	location := "rack 3"

	peer := PeerDescriptor{
		Id:       ids.NewPeerId(),
		Name:     "peer-a",
		Location: &location,
		Network: PeerNetworkDescriptor{
			Interfaces: []NetworkInterfaceDescriptor{
				{Id: ifaceEth, Name: "eth0", Configuration: EthernetConfiguration()},
				{Id: ifaceCan, Name: "can0", Configuration: CanConfiguration(CanParameters{
					Bitrate: 500000, SamplePoint: 0.875, FD: true, DataBitrate: 2000000, DataSamplePoint: 0.8,
				})},
			},
		},
		Topology: Topology{Devices: []Device{
			{Id: ids.NewDeviceId(), Name: "ecu", Description: "d", Location: "l", Interface: ifaceEth, Tags: []string{"x", "y"}},
		}},
		Executors: []ExecutorDescriptor{
			{Id: ids.NewExecutorId(), Kind: ContainerExecutorKind(ContainerExecutor{
				Engine: EngineDocker, Image: "busybox", Command: "sh", Args: []string{"-c", "true"},
			})},
			{Id: ids.NewExecutorId(), Kind: ExecutableExecutorKind(ExecutableExecutor{Path: "/bin/true"})},
		},
	}
	require.NoError(t, peer.Validate())

	data, err := json.Marshal(peer)
	require.NoError(t, err)
	var out PeerDescriptor
	require.NoError(t, json.Unmarshal(data, &out))

	assert.Equal(t, peer, out)
}

// TestClusterAssignment_RoundTrip covers map-keyed-by-typed-id encoding: ids.PeerId
// implements encoding.TextMarshaler/TextUnmarshaler so it serialises as a JSON object key.
func TestClusterAssignment_RoundTrip(t *testing.T) {
	leader := ids.NewPeerId()
	member := ids.NewPeerId()
	assignment := ClusterAssignment{
		Id:     ids.NewClusterId(),
		Leader: leader,
		Assignments: map[ids.PeerId]PeerClusterAssignment{
			leader: {VpnAddress: net.ParseIP("10.8.0.1"), CanServerPort: 20000},
			member: {VpnAddress: net.ParseIP("10.8.0.2"), CanServerPort: 20001},
		},
	}
	require.NoError(t, assignment.Validate())

	data, err := json.Marshal(assignment)
	require.NoError(t, err)
	var out ClusterAssignment
	require.NoError(t, json.Unmarshal(data, &out))

	require.NoError(t, out.Validate())
	assert.Equal(t, assignment.Id, out.Id)
	assert.Equal(t, assignment.Leader, out.Leader)
	require.Len(t, out.Assignments, 2)
	for peerId, want := range assignment.Assignments {
		got, ok := out.Assignments[peerId]
		require.True(t, ok, "missing assignment for %s", peerId)
		assert.Equal(t, want.VpnAddress.String(), got.VpnAddress.String())
		assert.Equal(t, want.CanServerPort, got.CanServerPort)
	}
}

// TestClusterConfiguration_RoundTrip covers a set-valued field (map[ids.DeviceId]struct{}),
// which JSON represents as an object whose keys are the device ids.
func TestClusterConfiguration_RoundTrip(t *testing.T) {
	cfg := ClusterConfiguration{
		Id:     ids.NewClusterId(),
		Name:   "cluster-a",
		Leader: ids.NewPeerId(),
		Devices: map[ids.DeviceId]struct{}{
			ids.NewDeviceId(): {},
			ids.NewDeviceId(): {},
		},
	}
	require.NoError(t, cfg.Validate())

	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	var out ClusterConfiguration
	require.NoError(t, json.Unmarshal(data, &out))

	assert.Equal(t, cfg.Id, out.Id)
	assert.Equal(t, cfg.Name, out.Name)
	assert.Equal(t, cfg.Leader, out.Leader)
	assert.ElementsMatch(t, cfg.DeviceIds(), out.DeviceIds())
}

func TestPeerConfiguration_ValidateDAG_DetectsCycle(t *testing.T) {
	a := NewParameterId("a")
	b := NewParameterId("b")
	cfg := PeerConfiguration{Parameters: []Parameter{
		{Id: a, Dependencies: []ParameterId{b}, Target: TargetPresent, Value: EthernetBridge(EthernetBridgeValue{Name: "br0"})},
		{Id: b, Dependencies: []ParameterId{a}, Target: TargetPresent, Value: EthernetBridge(EthernetBridgeValue{Name: "br1"})},
	}}
	assert.Error(t, cfg.ValidateDAG())
}

func TestClusterState_ValidTransition(t *testing.T) {
	undeployed := ClusterState{Kind: ClusterUndeployed}
	assert.True(t, undeployed.ValidTransition(ClusterDeploying))
	assert.False(t, undeployed.ValidTransition(ClusterDeployedHealthy))

	deploying := ClusterState{Kind: ClusterDeploying}
	assert.True(t, deploying.ValidTransition(ClusterDeployedHealthy))
	assert.True(t, deploying.ValidTransition(ClusterUndeployed))

	healthy := ClusterState{Kind: ClusterDeployedHealthy}
	assert.True(t, healthy.ValidTransition(ClusterDeployedUnhealthy))
	assert.False(t, healthy.ValidTransition(ClusterDeploying))
}
