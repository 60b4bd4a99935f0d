package app

import (
	"context"
	"time"

	"github.com/eclipse-opendut/opendut-go/internal/edge/healthmesh"
	"github.com/eclipse-opendut/opendut-go/internal/edge/reconcile"
	"github.com/eclipse-opendut/opendut-go/pkg/ids"
	"github.com/eclipse-opendut/opendut-go/pkg/log"
	"github.com/eclipse-opendut/opendut-go/pkg/wire"
)

// HeartbeatInterval is how often the handler emits a Ping in the absence of a fresh
// EdgePeerConfigurationState, keeping the session inside the broker's HeartbeatTimeout.
const HeartbeatInterval = 10 * time.Second

// handler bridges session.Client's Handler contract to the Edge Reconciler and the Cluster
// Health Mesh: every ApplyPeerConfiguration drives a Reconcile pass and, when the frame
// carries a live ClusterAssignment, restarts health mesh probing for the new membership.
type handler struct {
	reconciler *reconcile.Reconciler
	mesh       *healthmesh.Mesh

	updates chan wire.UpstreamMessage
	done    chan struct{}
}

func newHandler(reconciler *reconcile.Reconciler, mesh *healthmesh.Mesh) *handler {
	h := &handler{
		reconciler: reconciler,
		mesh:       mesh,
		updates:    make(chan wire.UpstreamMessage, 1),
		done:       make(chan struct{}),
	}
	go h.heartbeatLoop()
	return h
}

func (h *handler) heartbeatLoop() {
	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.publish(wire.Ping(nil))
		case <-h.done:
			return
		}
	}
}

// publish replaces any unsent update with msg rather than blocking the producer; ReportState
// only ever needs to deliver the most recent state, not every intermediate one.
func (h *handler) publish(msg wire.UpstreamMessage) {
	select {
	case h.updates <- msg:
		return
	default:
	}
	select {
	case <-h.updates:
	default:
	}
	select {
	case h.updates <- msg:
	default:
	}
}

func (h *handler) ApplyPeerConfiguration(ctx context.Context, payload wire.ApplyPeerConfigurationPayload, trace wire.TracingContext) {
	state := h.reconciler.Reconcile(ctx, payload.New)

	if payload.Old.ClusterAssignment != nil {
		assignment := *payload.Old.ClusterAssignment
		members := make(map[ids.PeerId]string, len(assignment.Assignments))
		for peerId, a := range assignment.Assignments {
			members[peerId] = a.VpnAddress.String()
		}
		h.mesh.ApplyAssignment(assignment.Leader, members)
	}

	log.Infof("ecad: applied peer configuration, %d parameters reconciled", len(state.ParameterStates))
	h.publish(wire.EdgePeerConfigurationStateMessage(state, trace))
}

func (h *handler) ReportState() (wire.UpstreamMessage, bool) {
	select {
	case msg := <-h.updates:
		return msg, true
	case <-h.done:
		return wire.UpstreamMessage{}, false
	}
}

func (h *handler) Stop() {
	close(h.done)
}
