package healthmesh

import (
	"context"
	"net"
	"strconv"

	"github.com/eclipse-opendut/opendut-go/internal/edge/reconcile"
	"github.com/eclipse-opendut/opendut-go/pkg/model"
)

// remotePeerConnectionCheck is the Task behind a RemotePeerConnectionCheck parameter: it
// confirms the tunnel a GreInterface/JoinedInterface pair just brought up actually reaches the
// other member, by round-tripping one probe datagram against its health-mesh port, the same
// probeOnce exchange Prober uses once the mesh itself is running.
type remotePeerConnectionCheck struct {
	bindPort int
	remoteIP net.IP
}

func (t *remotePeerConnectionCheck) Check(_ context.Context, target model.Target) (reconcile.Fulfilled, error) {
	if target == model.TargetAbsent {
		// There is nothing to tear down: a reachability check has no persistent side effect.
		return reconcile.FulfilledYes, nil
	}
	addr := net.JoinHostPort(t.remoteIP.String(), strconv.Itoa(t.bindPort))
	if _, err := probeOnce(addr); err != nil {
		return reconcile.FulfilledNo, nil
	}
	return reconcile.FulfilledYes, nil
}

func (t *remotePeerConnectionCheck) Make(_ context.Context, target model.Target) error {
	if target == model.TargetAbsent {
		return nil
	}
	addr := net.JoinHostPort(t.remoteIP.String(), strconv.Itoa(t.bindPort))
	_, err := probeOnce(addr)
	return err
}

// TaskFactory resolves RemotePeerConnectionCheck parameters, probing the remote peer's health
// mesh port directly (rather than waiting for Mesh.ApplyAssignment to start a Prober) since
// reconciliation must report success or failure before the mesh itself is necessarily running.
func TaskFactory(bindPort int) reconcile.TaskFactory {
	return func(value model.ParameterValue) ([]reconcile.Task, error) {
		if value.Kind != model.ValueRemotePeerConnectionCheck {
			return nil, nil
		}
		return []reconcile.Task{&remotePeerConnectionCheck{bindPort: bindPort, remoteIP: value.RemotePeerConnectionCheck.RemoteIP}}, nil
	}
}
