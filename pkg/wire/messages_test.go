package wire

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eclipse-opendut/opendut-go/pkg/ids"
	"github.com/eclipse-opendut/opendut-go/pkg/model"
)

// roundTrip marshals v with the installed JSONCodec and unmarshals it into a fresh zero value
// of the same type: deserialise(serialise(x)) == x for every wire
// message this repository sends.
func roundTrip[T any](t *testing.T, v T) T {
	t.Helper()
	data, err := JSONCodec{}.Marshal(v)
	require.NoError(t, err)
	var out T
	require.NoError(t, JSONCodec{}.Unmarshal(data, &out))
	return out
}

func TestDownstreamMessage_RoundTrip_Pong(t *testing.T) {
	msg := Pong(TracingContext{"traceparent": "00-abc-def-01"})
	out := roundTrip(t, msg)
	assert.Equal(t, msg, out)
}

func TestDownstreamMessage_RoundTrip_DisconnectNotice(t *testing.T) {
	msg := DisconnectNotice(nil)
	out := roundTrip(t, msg)
	assert.Equal(t, msg, out)
	assert.Equal(t, DownDisconnectNotice, out.Kind)
}

func TestDownstreamMessage_RoundTrip_ApplyPeerConfiguration(t *testing.T) {
	clusterId := ids.NewClusterId()
	leader := ids.NewPeerId()
	assignment := model.ClusterAssignment{
		Id:     clusterId,
		Leader: leader,
		Assignments: map[ids.PeerId]model.PeerClusterAssignment{
			leader: {VpnAddress: net.ParseIP("10.8.0.1"), CanServerPort: 20000},
		},
	}
	cfg := model.PeerConfiguration{Parameters: []model.Parameter{
		{
			Id:     model.NewParameterId("bridge"),
			Target: model.TargetPresent,
			Value:  model.EthernetBridge(model.EthernetBridgeValue{Name: "br-opendut"}),
		},
		{
			Id:           model.NewParameterId("gre-x"),
			Dependencies: []model.ParameterId{model.NewParameterId("bridge")},
			Target:       model.TargetPresent,
			Value: model.GreInterface(model.GreInterfaceValue{
				LocalIP:  net.ParseIP("10.8.0.1"),
				RemoteIP: net.ParseIP("10.8.0.2"),
			}),
		},
	}}

	msg := ApplyPeerConfiguration(model.OldPeerConfiguration{ClusterAssignment: &assignment}, cfg, TracingContext{"traceparent": "00-x"})
	out := roundTrip(t, msg)

	require.NotNil(t, out.ApplyPeerConfiguration)
	require.NotNil(t, out.ApplyPeerConfiguration.Old.ClusterAssignment)
	assert.Equal(t, clusterId, out.ApplyPeerConfiguration.Old.ClusterAssignment.Id)
	assert.Equal(t, leader, out.ApplyPeerConfiguration.Old.ClusterAssignment.Leader)
	require.Len(t, out.ApplyPeerConfiguration.New.Parameters, 2)
	assert.Equal(t, model.ValueGreInterface, out.ApplyPeerConfiguration.New.Parameters[1].Value.Kind)
	assert.Equal(t,
		net.ParseIP("10.8.0.1").String(),
		out.ApplyPeerConfiguration.New.Parameters[1].Value.GreInterface.LocalIP.String(),
	)
	assert.Equal(t, msg.Context, out.Context)
}

func TestUpstreamMessage_RoundTrip_Ping(t *testing.T) {
	msg := Ping(TracingContext{"traceparent": "00-abc"})
	out := roundTrip(t, msg)
	assert.Equal(t, msg, out)
}

func TestUpstreamMessage_RoundTrip_EdgePeerConfigurationState(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	state := model.EdgePeerConfigurationState{ParameterStates: []model.ParameterState{
		{Id: model.NewParameterId("bridge"), Timestamp: now, DetectedState: model.Present()},
		{
			Id:        model.NewParameterId("gre-x"),
			Timestamp: now,
			DetectedState: model.ErrorState(model.ErrorCreatingFailed, model.UnclassifiedCause("netlink: file exists")),
		},
	}}

	msg := EdgePeerConfigurationStateMessage(state, nil)
	out := roundTrip(t, msg)

	require.NotNil(t, out.EdgePeerConfigurationState)
	require.Len(t, out.EdgePeerConfigurationState.ParameterStates, 2)
	assert.True(t, now.Equal(out.EdgePeerConfigurationState.ParameterStates[0].Timestamp))
	assert.Equal(t, model.DetectedPresent, out.EdgePeerConfigurationState.ParameterStates[0].DetectedState.Kind)

	errState := out.EdgePeerConfigurationState.ParameterStates[1].DetectedState
	require.Equal(t, model.DetectedError, errState.Kind)
	require.NotNil(t, errState.Error)
	assert.Equal(t, model.ErrorCreatingFailed, errState.Error.ErrorKind)
	assert.Equal(t, "netlink: file exists", errState.Error.Cause.Unclassified)
}
