package model

import (
	"fmt"
	"net"

	"github.com/eclipse-opendut/opendut-go/pkg/ids"
)

// ClusterName is a non-empty display name for a cluster.
type ClusterName string

func NewClusterName(s string) (ClusterName, error) {
	if s == "" {
		return "", fmt.Errorf("cluster name must not be empty")
	}
	return ClusterName(s), nil
}

// ClusterConfiguration is the declared, desired membership of a cluster. It must name at
// least two devices. No two distinct, simultaneously deployed ClusterConfigurations may
// share a peer (derived from device ownership); that is enforced by the Cluster Manager,
// not this type.
type ClusterConfiguration struct {
	Id      ids.ClusterId
	Name    ClusterName
	Leader  ids.PeerId
	Devices map[ids.DeviceId]struct{}
}

func (c ClusterConfiguration) Validate() error {
	if len(c.Devices) < 2 {
		return fmt.Errorf("cluster %s: must declare at least 2 devices, got %d", c.Id, len(c.Devices))
	}
	return nil
}

func (c ClusterConfiguration) DeviceIds() []ids.DeviceId {
	out := make([]ids.DeviceId, 0, len(c.Devices))
	for d := range c.Devices {
		out = append(out, d)
	}
	return out
}

// ClusterDeployment's presence signals that a cluster is intended to be running.
type ClusterDeployment struct {
	Id ids.ClusterId
}

// PeerClusterAssignment is one peer's computed view of a deployed cluster.
type PeerClusterAssignment struct {
	VpnAddress    net.IP
	CanServerPort uint16
}

// ClusterAssignment is the Cluster Manager's sole synthesized output describing, per
// deployed cluster, every member's VPN address and CAN server port. Leader is always a key
// of Assignments, and every member peer appears exactly once.
type ClusterAssignment struct {
	Id          ids.ClusterId
	Leader      ids.PeerId
	Assignments map[ids.PeerId]PeerClusterAssignment
}

func (a ClusterAssignment) Validate() error {
	if _, ok := a.Assignments[a.Leader]; !ok {
		return fmt.Errorf("cluster assignment %s: leader %s is not among assignments", a.Id, a.Leader)
	}
	return nil
}

func (a ClusterAssignment) Members() []ids.PeerId {
	out := make([]ids.PeerId, 0, len(a.Assignments))
	for p := range a.Assignments {
		out = append(out, p)
	}
	return out
}

// ClusterStateKind enumerates the cluster lifecycle states.
type ClusterStateKind string

const (
	ClusterUndeployed          ClusterStateKind = "Undeployed"
	ClusterDeploying           ClusterStateKind = "Deploying"
	ClusterDeployedUnhealthy   ClusterStateKind = "DeployedUnhealthy"
	ClusterDeployedHealthy     ClusterStateKind = "DeployedHealthy"
)

// ClusterState is derived from per-peer detected-state reports, not stored directly.
type ClusterState struct {
	Kind ClusterStateKind
}

// ValidTransition reports whether moving from s to next is a legal lifecycle edge:
// Undeployed -> Deploying -> Deployed(Unhealthy <-> Healthy), and Deploying or Deployed ->
// Undeployed on deletion.
func (s ClusterState) ValidTransition(next ClusterStateKind) bool {
	switch s.Kind {
	case ClusterUndeployed:
		return next == ClusterDeploying
	case ClusterDeploying:
		return next == ClusterDeployedUnhealthy || next == ClusterDeployedHealthy || next == ClusterUndeployed
	case ClusterDeployedUnhealthy, ClusterDeployedHealthy:
		return next == ClusterDeployedUnhealthy || next == ClusterDeployedHealthy || next == ClusterUndeployed
	default:
		return false
	}
}
