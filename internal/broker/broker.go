// Package broker is the Peer Messaging Broker: owns one live session per connected peer,
// lets the Cluster Manager push ApplyPeerConfiguration downstream, and tracks liveness via
// heartbeat.
package broker

import (
	"context"
	"net"
	"sync"
	"time"

	"go.opentelemetry.io/otel/propagation"

	"github.com/eclipse-opendut/opendut-go/internal/actions"
	"github.com/eclipse-opendut/opendut-go/pkg/ids"
	"github.com/eclipse-opendut/opendut-go/pkg/log"
	"github.com/eclipse-opendut/opendut-go/pkg/wire"
)

// HeartbeatTimeout is how long a peer may go without a Ping before the broker declares it
// down and closes its session.
const HeartbeatTimeout = 30 * time.Second

// Session is one connected peer's outbound message channel and liveness bookkeeping.
type Session struct {
	PeerId     ids.PeerId
	RemoteHost string

	down     chan wire.DownstreamMessage
	lastSeen time.Time
	mu       sync.Mutex
}

// Send enqueues msg for delivery; it never blocks the caller on a stalled peer.
func (s *Session) Send(msg wire.DownstreamMessage) bool {
	select {
	case s.down <- msg:
		return true
	default:
		return false
	}
}

// Downstream exposes the session's outbound channel for the RPC layer's send pump. It is
// closed when the session is superseded by a reconnect; range terminates accordingly.
func (s *Session) Downstream() <-chan wire.DownstreamMessage { return s.down }

func (s *Session) touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleFor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastSeen)
}

// Broker owns every live peer session.
type Broker struct {
	actions *actions.Actions

	mu       sync.RWMutex
	sessions map[ids.PeerId]*Session

	propagator propagation.TextMapPropagator

	// OnOpen is invoked after a session is registered, letting the Cluster Manager push a
	// freshly re-derived PeerConfiguration to a (re)connecting peer rather than leaving it
	// waiting for the next deployment change.
	OnOpen func(ids.PeerId)
}

func New(a *actions.Actions) *Broker {
	return &Broker{
		actions:    a,
		sessions:   make(map[ids.PeerId]*Session),
		propagator: propagation.TraceContext{},
	}
}

// Open registers a new session for peerId, replacing and closing any prior one (a
// reconnecting ECA supersedes its own stale session), and marks the peer PeerUp. The peer's
// member state is derived from the deployment records, so a reconnecting member of a
// deployed cluster comes back Blocked, not Available.
func (b *Broker) Open(ctx context.Context, peerId ids.PeerId, remoteHost string) *Session {
	session := &Session{PeerId: peerId, RemoteHost: remoteHost, down: make(chan wire.DownstreamMessage, 32), lastSeen: time.Now()}

	b.mu.Lock()
	prior, had := b.sessions[peerId]
	b.sessions[peerId] = session
	b.mu.Unlock()
	if had {
		close(prior.down)
	}

	b.actions.ConnectionOpened(ctx, peerId, net.ParseIP(remoteHost))
	log.Debugf("broker: opened session for peer %s from %s", peerId, remoteHost)
	if b.OnOpen != nil {
		b.OnOpen(peerId)
	}
	return session
}

// Close unregisters a session if it is still the current one for its peer, and marks the peer
// PeerDown. Only the connection state drops; a deployed member's block is derived from its
// deployment record and survives the disconnect.
func (b *Broker) Close(session *Session) {
	b.mu.Lock()
	current, ok := b.sessions[session.PeerId]
	if ok && current == session {
		delete(b.sessions, session.PeerId)
	}
	b.mu.Unlock()
	if ok && current == session {
		b.actions.ConnectionClosed(session.PeerId)
		log.Debugf("broker: closed session for peer %s", session.PeerId)
	}
}

// SendToPeer delivers msg to peerId's current session, if any, reporting whether a session
// was found and accepted the message.
func (b *Broker) SendToPeer(peerId ids.PeerId, msg wire.DownstreamMessage) bool {
	b.mu.RLock()
	session, ok := b.sessions[peerId]
	b.mu.RUnlock()
	if !ok {
		return false
	}
	return session.Send(msg)
}

// Broadcast delivers msg to every member of an assignment, used when the Cluster Manager
// computes a fresh ClusterAssignment.
func (b *Broker) Broadcast(members []ids.PeerId, build func(ids.PeerId) wire.DownstreamMessage) {
	for _, peerId := range members {
		b.SendToPeer(peerId, build(peerId))
	}
}

// Heartbeat records that peerId is still alive, called on every received Ping/UpstreamMessage.
func (b *Broker) Heartbeat(peerId ids.PeerId) {
	b.mu.RLock()
	session, ok := b.sessions[peerId]
	b.mu.RUnlock()
	if ok {
		session.touch()
	}
}

// ReapStale closes every session that has not been heard from within HeartbeatTimeout; call
// periodically from a background loop.
func (b *Broker) ReapStale(ctx context.Context) {
	b.mu.RLock()
	stale := make([]*Session, 0)
	for _, s := range b.sessions {
		if s.idleFor() > HeartbeatTimeout {
			stale = append(stale, s)
		}
	}
	b.mu.RUnlock()
	for _, s := range stale {
		b.Close(s)
	}
}

// Propagator exposes the W3C Trace Context propagator used to encode/decode
// wire.TracingContext on every frame.
func (b *Broker) Propagator() propagation.TextMapPropagator { return b.propagator }
