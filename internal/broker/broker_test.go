package broker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eclipse-opendut/opendut-go/internal/actions"
	"github.com/eclipse-opendut/opendut-go/internal/resources"
	"github.com/eclipse-opendut/opendut-go/internal/store"
	"github.com/eclipse-opendut/opendut-go/pkg/ids"
	"github.com/eclipse-opendut/opendut-go/pkg/model"
	"github.com/eclipse-opendut/opendut-go/pkg/wire"
)

func newTestActions(t *testing.T) *actions.Actions {
	t.Helper()
	peers, err := store.NewPeerStore(nil)
	require.NoError(t, err)
	r := resources.NewManager(peers, store.NewClusterConfigurationStore(nil), store.NewClusterDeploymentStore(nil))
	return actions.New(r, actions.NewPeerStates())
}

func TestBroker_Open_MarksPeerUpAndAvailable(t *testing.T) {
	a := newTestActions(t)
	b := New(a)
	peer := ids.NewPeerId()

	session := b.Open(context.Background(), peer, "10.0.0.1")
	require.NotNil(t, session)

	st := a.States.Get(peer)
	assert.Equal(t, model.PeerUp, st.Kind)
	assert.Equal(t, model.MemberAvailable, st.MemberState.Kind)
	assert.Equal(t, "10.0.0.1", st.RemoteHost.String())
}

// TestBroker_Open_SupersedesPriorSessionAndClosesItsChannel covers a peer reconnecting before
// its old session was reaped: the new session replaces the old one and the old one's
// Downstream channel is closed so any in-flight send-pump goroutine for it terminates.
func TestBroker_Open_SupersedesPriorSessionAndClosesItsChannel(t *testing.T) {
	a := newTestActions(t)
	b := New(a)
	peer := ids.NewPeerId()

	first := b.Open(context.Background(), peer, "10.0.0.1")
	second := b.Open(context.Background(), peer, "10.0.0.2")

	assert.NotSame(t, first, second)
	_, open := <-first.Downstream()
	assert.False(t, open, "superseded session's downstream channel should be closed")

	st := a.States.Get(peer)
	assert.Equal(t, "10.0.0.2", st.RemoteHost.String())
}

func TestBroker_Close_MarksPeerDownOnlyIfStillCurrent(t *testing.T) {
	a := newTestActions(t)
	b := New(a)
	peer := ids.NewPeerId()

	stale := b.Open(context.Background(), peer, "10.0.0.1")
	current := b.Open(context.Background(), peer, "10.0.0.2")

	// Closing the stale (already-superseded) session must not mark the peer down, since
	// `current` is the session actually in effect.
	b.Close(stale)
	assert.Equal(t, model.PeerUp, a.States.Get(peer).Kind)

	b.Close(current)
	assert.Equal(t, model.PeerDown, a.States.Get(peer).Kind)
}

// TestBroker_SendToPeer_FIFO checks that messages enqueued for one peer are observed
// by that peer's Downstream channel in the same order they were sent.
func TestBroker_SendToPeer_FIFO(t *testing.T) {
	a := newTestActions(t)
	b := New(a)
	peer := ids.NewPeerId()
	session := b.Open(context.Background(), peer, "10.0.0.1")

	msgs := []wire.DownstreamMessage{
		wire.Pong(nil),
		wire.DisconnectNotice(nil),
		wire.Pong(wire.TracingContext{"k": "v"}),
	}
	for _, m := range msgs {
		require.True(t, b.SendToPeer(peer, m))
	}

	for _, want := range msgs {
		got := <-session.Downstream()
		assert.Equal(t, want, got)
	}
}

func TestBroker_SendToPeer_UnknownPeerReturnsFalse(t *testing.T) {
	a := newTestActions(t)
	b := New(a)
	assert.False(t, b.SendToPeer(ids.NewPeerId(), wire.Pong(nil)))
}

// TestBroker_Broadcast_DeliversToEveryMember covers the Cluster Manager's fan-out push path.
func TestBroker_Broadcast_DeliversToEveryMember(t *testing.T) {
	a := newTestActions(t)
	b := New(a)
	peerA := ids.NewPeerId()
	peerB := ids.NewPeerId()
	sessionA := b.Open(context.Background(), peerA, "10.0.0.1")
	sessionB := b.Open(context.Background(), peerB, "10.0.0.2")

	b.Broadcast([]ids.PeerId{peerA, peerB}, func(id ids.PeerId) wire.DownstreamMessage {
		return wire.Pong(wire.TracingContext{"for": id.String()})
	})

	gotA := <-sessionA.Downstream()
	gotB := <-sessionB.Downstream()
	assert.Equal(t, peerA.String(), gotA.Context["for"])
	assert.Equal(t, peerB.String(), gotB.Context["for"])
}

func TestBroker_Heartbeat_TouchesSession(t *testing.T) {
	a := newTestActions(t)
	b := New(a)
	peer := ids.NewPeerId()
	session := b.Open(context.Background(), peer, "10.0.0.1")
	session.lastSeen = time.Now().Add(-time.Hour)

	b.Heartbeat(peer)
	assert.Less(t, session.idleFor(), time.Second)
}

// TestBroker_ReapStale_ClosesOnlyIdleSessions covers the liveness half of the session
// contract: a session idle past HeartbeatTimeout is closed and its peer marked down, while a
// freshly touched session is left alone.
func TestBroker_ReapStale_ClosesOnlyIdleSessions(t *testing.T) {
	a := newTestActions(t)
	b := New(a)
	stalePeer := ids.NewPeerId()
	freshPeer := ids.NewPeerId()

	staleSession := b.Open(context.Background(), stalePeer, "10.0.0.1")
	b.Open(context.Background(), freshPeer, "10.0.0.2")
	staleSession.lastSeen = time.Now().Add(-HeartbeatTimeout - time.Second)

	b.ReapStale(context.Background())

	assert.Equal(t, model.PeerDown, a.States.Get(stalePeer).Kind)
	assert.Equal(t, model.PeerUp, a.States.Get(freshPeer).Kind)
}

func TestBroker_Open_InvokesOnOpenHook(t *testing.T) {
	a := newTestActions(t)
	b := New(a)
	var notified []ids.PeerId
	b.OnOpen = func(id ids.PeerId) { notified = append(notified, id) }

	peer := ids.NewPeerId()
	b.Open(context.Background(), peer, "10.0.0.1")

	require.Len(t, notified, 1)
	assert.Equal(t, peer, notified[0])
}

// TestBroker_DisconnectKeepsDeployedMemberBlocked: the block on a deployed cluster member is
// derived from the deployment record, so a disconnect drops only the connection state, and a
// reconnecting member comes back Blocked rather than Available.
func TestBroker_DisconnectKeepsDeployedMemberBlocked(t *testing.T) {
	ctx := context.Background()
	a := newTestActions(t)
	b := New(a)

	peer := ids.NewPeerId()
	ifaceId := ids.NewNetworkInterfaceId()
	deviceId := ids.NewDeviceId()
	clusterId := ids.NewClusterId()
	require.NoError(t, a.Resources.ResourcesMut(func(r *resources.Manager) error {
		if err := r.Peers.Insert(ctx, peer, model.PeerDescriptor{
			Id:   peer,
			Name: "peer-a",
			Network: model.PeerNetworkDescriptor{
				Interfaces: []model.NetworkInterfaceDescriptor{
					{Id: ifaceId, Name: "eth0", Configuration: model.EthernetConfiguration()},
				},
			},
			Topology: model.Topology{Devices: []model.Device{{Id: deviceId, Name: "ecu", Interface: ifaceId}}},
		}); err != nil {
			return err
		}
		if err := r.ClusterConfigurations.Insert(ctx, clusterId, model.ClusterConfiguration{
			Id: clusterId, Name: "cluster", Leader: peer,
			Devices: map[ids.DeviceId]struct{}{deviceId: {}, ids.NewDeviceId(): {}},
		}); err != nil {
			return err
		}
		return r.ClusterDeployments.Insert(ctx, clusterId, model.ClusterDeployment{Id: clusterId})
	}))

	session := b.Open(ctx, peer, "10.0.0.1")
	st := a.States.Get(peer)
	require.Equal(t, model.PeerUp, st.Kind)
	assert.Equal(t, model.Blocked(clusterId), st.MemberState)

	b.Close(session)
	assert.Equal(t, model.PeerDown, a.States.Get(peer).Kind)

	members, err := a.ListPeerMemberStates(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.Blocked(clusterId), members[peer])

	reopened := b.Open(ctx, peer, "10.0.0.1")
	require.NotNil(t, reopened)
	assert.Equal(t, model.Blocked(clusterId), a.States.Get(peer).MemberState)
}
