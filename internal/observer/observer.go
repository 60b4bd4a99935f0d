// Package observer is the Observer Broker: lets a caller block until a set of peers are all
// online, fanning out over the live PeerState view the Peer Action Library exposes.
package observer

import (
	"context"
	"time"

	"github.com/eclipse-opendut/opendut-go/internal/actions"
	"github.com/eclipse-opendut/opendut-go/pkg/ids"
	"github.com/eclipse-opendut/opendut-go/pkg/model"
)

// PollInterval is how often a watch re-checks peer state. A full pub/sub bus over PeerState
// changes would avoid polling, but the action library only exposes a snapshot read today; this
// is the simplest correct implementation of the fan-out contract.
const PollInterval = 200 * time.Millisecond

// KeepAliveInterval bounds how long a watch may go without emitting a Pending update while
// peers remain offline, so a streaming caller's connection is never idle long enough for an
// intermediary to drop it.
const KeepAliveInterval = 10 * time.Second

// Update is one observation of the watched peer set. AllOnline is true exactly once, on the
// final update before the watch returns.
type Update struct {
	AllOnline bool
	Offline   []ids.PeerId
}

type Broker struct {
	actions *actions.Actions
}

func New(a *actions.Actions) *Broker {
	return &Broker{actions: a}
}

// offlineOf returns the watched peers currently not reporting PeerUp, in input order.
func (b *Broker) offlineOf(ctx context.Context, peers []ids.PeerId) ([]ids.PeerId, error) {
	states, err := b.actions.ListPeerStates(ctx)
	if err != nil {
		return nil, err
	}
	var offline []ids.PeerId
	for _, p := range peers {
		if states[p].Kind != model.PeerUp {
			offline = append(offline, p)
		}
	}
	return offline, nil
}

// Watch emits a Pending update immediately when any watched peer is offline, another on every
// change of the offline set, and a keep-alive Pending at least every KeepAliveInterval, until
// every peer is online; then it emits one final Update with AllOnline set and returns. When
// the caller drops its stream, ctx is cancelled and the watch exits within one poll interval.
func (b *Broker) Watch(ctx context.Context, peers []ids.PeerId, emit func(Update) error) error {
	offline, err := b.offlineOf(ctx, peers)
	if err != nil {
		return err
	}
	if len(offline) == 0 {
		return emit(Update{AllOnline: true})
	}
	if err := emit(Update{Offline: offline}); err != nil {
		return err
	}

	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()
	lastEmit := time.Now()
	lastOffline := offline

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		offline, err := b.offlineOf(ctx, peers)
		if err != nil {
			return err
		}
		if len(offline) == 0 {
			return emit(Update{AllOnline: true})
		}
		if !samePeers(offline, lastOffline) || time.Since(lastEmit) >= KeepAliveInterval {
			if err := emit(Update{Offline: offline}); err != nil {
				return err
			}
			lastEmit = time.Now()
			lastOffline = offline
		}
	}
}

// WaitForPeersOnline blocks until every named peer reports PeerUp, or ctx is done. It is
// Watch without the intermediate updates.
func (b *Broker) WaitForPeersOnline(ctx context.Context, peers []ids.PeerId) error {
	return b.Watch(ctx, peers, func(Update) error { return nil })
}

func samePeers(a, b []ids.PeerId) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
