package observer

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eclipse-opendut/opendut-go/internal/actions"
	"github.com/eclipse-opendut/opendut-go/internal/resources"
	"github.com/eclipse-opendut/opendut-go/internal/store"
	"github.com/eclipse-opendut/opendut-go/pkg/ids"
	"github.com/eclipse-opendut/opendut-go/pkg/model"
)

func newTestActions(t *testing.T, peers ...ids.PeerId) *actions.Actions {
	t.Helper()
	peerStore, err := store.NewPeerStore(nil)
	require.NoError(t, err)
	r := resources.NewManager(peerStore, store.NewClusterConfigurationStore(nil), store.NewClusterDeploymentStore(nil))

	for i, id := range peers {
		name, err := model.NewPeerName("peer-" + string(rune('a'+i)))
		require.NoError(t, err)
		require.NoError(t, peerStore.Insert(context.Background(), id, model.PeerDescriptor{Id: id, Name: name}))
	}
	return actions.New(r, actions.NewPeerStates())
}

// TestWatch_PendingThenSuccess: a watch over {A, B} with A offline first emits a Pending
// update naming A, then a final all-online update once A's session opens, and returns.
func TestWatch_PendingThenSuccess(t *testing.T) {
	peerA := ids.NewPeerId()
	peerB := ids.NewPeerId()
	a := newTestActions(t, peerA, peerB)
	a.States.Set(peerB, model.UpState(net.ParseIP("10.0.0.2"), model.Available()))

	b := New(a)

	updates := make(chan Update, 16)
	done := make(chan error, 1)
	go func() {
		done <- b.Watch(context.Background(), []ids.PeerId{peerA, peerB}, func(u Update) error {
			updates <- u
			return nil
		})
	}()

	first := <-updates
	assert.False(t, first.AllOnline)
	require.Len(t, first.Offline, 1)
	assert.Equal(t, peerA, first.Offline[0])

	a.States.Set(peerA, model.UpState(net.ParseIP("10.0.0.1"), model.Available()))

	for {
		select {
		case u := <-updates:
			if !u.AllOnline {
				continue
			}
			assert.Empty(t, u.Offline)
			require.NoError(t, <-done)
			return
		case <-time.After(5 * time.Second):
			t.Fatal("watch never reported all peers online")
		}
	}
}

func TestWatch_AllAlreadyOnlineFiresImmediately(t *testing.T) {
	peer := ids.NewPeerId()
	a := newTestActions(t, peer)
	a.States.Set(peer, model.UpState(net.ParseIP("10.0.0.1"), model.Available()))

	b := New(a)

	var updates []Update
	err := b.Watch(context.Background(), []ids.PeerId{peer}, func(u Update) error {
		updates = append(updates, u)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.True(t, updates[0].AllOnline)
}

// TestWatch_CancellationStopsTheWatch covers the cancellation contract: when the caller drops
// its stream (ctx cancelled), the watch exits within a bounded window instead of polling
// forever.
func TestWatch_CancellationStopsTheWatch(t *testing.T) {
	peer := ids.NewPeerId()
	a := newTestActions(t, peer)

	b := New(a)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- b.Watch(ctx, []ids.PeerId{peer}, func(Update) error { return nil })
	}()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not exit after cancellation")
	}
}

func TestWaitForPeersOnline_BlocksUntilUp(t *testing.T) {
	peer := ids.NewPeerId()
	a := newTestActions(t, peer)
	b := New(a)

	done := make(chan error, 1)
	go func() { done <- b.WaitForPeersOnline(context.Background(), []ids.PeerId{peer}) }()

	select {
	case <-done:
		t.Fatal("wait returned while the peer was still offline")
	case <-time.After(2 * PollInterval):
	}

	a.States.Set(peer, model.UpState(net.ParseIP("10.0.0.1"), model.Available()))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("wait never observed the peer coming online")
	}
}
