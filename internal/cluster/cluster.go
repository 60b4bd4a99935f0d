// Package cluster is the Cluster Manager: validates deployments, computes per-peer
// ClusterAssignments, coordinates VPN group creation, and tracks the cluster lifecycle state
// machine.
package cluster

import (
	"context"
	"net"
	"sync"

	"github.com/pkg/errors"

	"github.com/eclipse-opendut/opendut-go/internal/actions"
	"github.com/eclipse-opendut/opendut-go/internal/resources"
	"github.com/eclipse-opendut/opendut-go/internal/vpn"
	"github.com/eclipse-opendut/opendut-go/pkg/ids"
	"github.com/eclipse-opendut/opendut-go/pkg/log"
	"github.com/eclipse-opendut/opendut-go/pkg/model"
)

// StoreClusterDeploymentErrorKind discriminates the ways storing a deployment can fail.
type StoreClusterDeploymentErrorKind string

const (
	ErrClusterConfigurationNotFound StoreClusterDeploymentErrorKind = "ClusterConfigurationNotFound"
	ErrIllegalPeerState             StoreClusterDeploymentErrorKind = "IllegalPeerState"
)

type StoreClusterDeploymentError struct {
	Kind         StoreClusterDeploymentErrorKind
	InvalidPeers []ids.PeerId
	Cause        error
}

func (e *StoreClusterDeploymentError) Error() string {
	if e.Kind == ErrIllegalPeerState {
		return errors.Wrapf(e.Cause, "illegal peer state for %v", e.InvalidPeers).Error()
	}
	return errors.Wrap(e.Cause, string(e.Kind)).Error()
}

func (e *StoreClusterDeploymentError) Unwrap() error { return e.Cause }

// PeerConfigurationUpdate is one peer's freshly derived configuration pair, handed to
// OnConfigurationUpdate so the caller (cmd/ccpd) can push it through the Peer Messaging Broker
// without this package importing internal/broker directly.
type PeerConfigurationUpdate struct {
	PeerId ids.PeerId
	Old    model.OldPeerConfiguration
	New    model.PeerConfiguration
}

// Manager owns the per-cluster lifecycle state and computed assignments; it persists
// neither, both being runtime-derived rather than stored directly.
type Manager struct {
	resources *resources.Manager
	actions   *actions.Actions
	vpn       vpn.Client
	opts      actions.Options

	mu          sync.RWMutex
	lifecycle   map[ids.ClusterId]model.ClusterState
	assignments map[ids.ClusterId]model.ClusterAssignment

	// OnAssignment is invoked after a new ClusterAssignment is computed, letting the Peer
	// Messaging Broker push ApplyPeerConfiguration to every member without this package
	// importing internal/broker directly.
	OnAssignment func(model.ClusterAssignment)

	// OnConfigurationUpdate is invoked once per member immediately after OnAssignment, and once
	// per former member (with an Absent PeerConfiguration) on teardown, carrying the exact
	// frame the Peer Messaging Broker should send.
	OnConfigurationUpdate func(PeerConfigurationUpdate)
}

func NewManager(r *resources.Manager, a *actions.Actions, vpnClient vpn.Client, opts actions.Options) *Manager {
	return &Manager{
		resources:   r,
		actions:     a,
		vpn:         vpnClient,
		opts:        opts,
		lifecycle:   make(map[ids.ClusterId]model.ClusterState),
		assignments: make(map[ids.ClusterId]model.ClusterAssignment),
	}
}

func (m *Manager) State(id ids.ClusterId) model.ClusterState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if st, ok := m.lifecycle[id]; ok {
		return st
	}
	return model.ClusterState{Kind: model.ClusterUndeployed}
}

func (m *Manager) transition(id ids.ClusterId, next model.ClusterStateKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.lifecycle[id]
	if !ok {
		current = model.ClusterState{Kind: model.ClusterUndeployed}
	}
	if !current.ValidTransition(next) {
		return errors.Errorf("cluster %s: illegal lifecycle transition %s -> %s", id, current.Kind, next)
	}
	m.lifecycle[id] = model.ClusterState{Kind: next}
	return nil
}

// StoreClusterDeployment validates and deploys a cluster: rejects peers currently blocked
// by another cluster, computes deterministic CAN-server ports from the low 16 bits of each
// peer's VPN address, delegates VPN group creation, and assigns the result.
func (m *Manager) StoreClusterDeployment(ctx context.Context, deployment model.ClusterDeployment) (ids.ClusterId, error) {
	var config model.ClusterConfiguration
	err := m.resources.Resources(func(r *resources.Manager) error {
		c, ok, err := r.ClusterConfigurations.Get(ctx, deployment.Id)
		if err != nil {
			return err
		}
		if !ok {
			return &StoreClusterDeploymentError{Kind: ErrClusterConfigurationNotFound, Cause: errors.Errorf("no cluster configuration %s", deployment.Id)}
		}
		config = c
		return nil
	})
	if err != nil {
		return ids.ClusterId{}, err
	}

	members, err := m.membersOf(ctx, config)
	if err != nil {
		return ids.ClusterId{}, err
	}

	// Eligibility and the deployment insert share one mutating closure, so two concurrent
	// deployments over overlapping peer sets cannot both pass the check: whichever commits
	// second sees the first one's deployment record and fails. Membership is derived from the
	// deployment records themselves, so an offline member of a deployed cluster still blocks
	// an overlapping deployment; a member already blocked by this same cluster (re-storing an
	// existing deployment) does not.
	if err := m.resources.ResourcesMut(func(r *resources.Manager) error {
		memberStates, err := actions.DeriveMemberStates(ctx, r)
		if err != nil {
			return err
		}
		var invalid []ids.PeerId
		for _, p := range members {
			st, ok := memberStates[p]
			if !ok || (st.Kind == model.MemberBlocked && st.ByCluster != deployment.Id) {
				invalid = append(invalid, p)
			}
		}
		if len(invalid) > 0 {
			return &StoreClusterDeploymentError{Kind: ErrIllegalPeerState, InvalidPeers: invalid, Cause: errors.New("peer already belongs to a deployed cluster")}
		}
		return r.ClusterDeployments.Insert(ctx, deployment.Id, deployment)
	}); err != nil {
		return ids.ClusterId{}, err
	}
	if err := m.transition(deployment.Id, model.ClusterDeploying); err != nil {
		return ids.ClusterId{}, err
	}

	addresses, err := m.vpn.AssignAddresses(ctx, deployment.Id, members)
	if err != nil {
		return ids.ClusterId{}, errors.Wrapf(err, "cluster %s: assigning vpn addresses", deployment.Id)
	}

	assignments := make(map[ids.PeerId]model.PeerClusterAssignment, len(members))
	for peerId, addr := range addresses {
		assignments[peerId] = model.PeerClusterAssignment{
			VpnAddress:    addr,
			CanServerPort: canServerPort(addr),
		}
	}
	assignment := model.ClusterAssignment{Id: deployment.Id, Leader: config.Leader, Assignments: assignments}
	if err := assignment.Validate(); err != nil {
		return ids.ClusterId{}, err
	}

	if m.vpn.Enabled() {
		if err := m.vpn.CreateGroup(ctx, deployment.Id, addresses); err != nil {
			// No automatic rollback: the cluster remains deployed-but-unhealthy.
			_ = m.transition(deployment.Id, model.ClusterDeployedUnhealthy)
			return ids.ClusterId{}, errors.Wrapf(err, "cluster %s: creating vpn group", deployment.Id)
		}
	}

	if err := m.actions.AssignCluster(ctx, assignment); err != nil {
		_ = m.transition(deployment.Id, model.ClusterDeployedUnhealthy)
		return ids.ClusterId{}, err
	}

	m.mu.Lock()
	m.assignments[deployment.Id] = assignment
	m.mu.Unlock()

	if err := m.transition(deployment.Id, model.ClusterDeployedHealthy); err != nil {
		return ids.ClusterId{}, err
	}

	if m.OnAssignment != nil {
		m.OnAssignment(assignment)
	}
	m.pushConfigurations(ctx, assignment)

	return deployment.Id, nil
}

// pushConfigurations derives and reports one PeerConfiguration per cluster member: hands
// the (old, new) pair for every member to OnConfigurationUpdate so the Peer Messaging Broker
// can stream ApplyPeerConfiguration. A
// derivation failure for one member is logged and skipped rather than aborting the rest; the
// deployment itself has already succeeded by this point.
func (m *Manager) pushConfigurations(ctx context.Context, assignment model.ClusterAssignment) {
	if m.OnConfigurationUpdate == nil {
		return
	}
	for _, peerId := range assignment.Members() {
		old, cfg, err := m.actions.ConfigurationFor(ctx, peerId, assignment, m.opts)
		if err != nil {
			log.Warnf("cluster %s: deriving configuration for peer %s: %v", assignment.Id, peerId, err)
			continue
		}
		m.OnConfigurationUpdate(PeerConfigurationUpdate{PeerId: peerId, Old: old, New: cfg})
	}
}

// ConfigurationOnConnect re-derives peerId's current PeerConfiguration from live resources,
// for the moment it (re)connects to the Peer Messaging Broker. This is a fresh derivation,
// not a replay of whatever was computed at deploy time, so a reconnecting agent always
// receives an up-to-date configuration. ok is false when peerId is not currently a member of
// any deployed cluster.
func (m *Manager) ConfigurationOnConnect(ctx context.Context, peerId ids.PeerId) (PeerConfigurationUpdate, bool, error) {
	m.mu.RLock()
	var assignment model.ClusterAssignment
	found := false
	for _, a := range m.assignments {
		if _, ok := a.Assignments[peerId]; ok {
			assignment = a
			found = true
			break
		}
	}
	m.mu.RUnlock()
	if !found {
		return PeerConfigurationUpdate{}, false, nil
	}

	old, cfg, err := m.actions.ConfigurationFor(ctx, peerId, assignment, m.opts)
	if err != nil {
		return PeerConfigurationUpdate{}, false, err
	}
	return PeerConfigurationUpdate{PeerId: peerId, Old: old, New: cfg}, true, nil
}

// DeleteClusterDeployment tears down a deployed cluster: releases every member peer, deletes
// the VPN group, removes the deployment record and resets lifecycle to Undeployed.
func (m *Manager) DeleteClusterDeployment(ctx context.Context, id ids.ClusterId) error {
	m.mu.Lock()
	assignment, ok := m.assignments[id]
	delete(m.assignments, id)
	m.mu.Unlock()

	if ok {
		m.actions.ReleaseCluster(assignment)
		m.pushAbsentConfigurations(ctx, assignment)
	}
	if m.vpn.Enabled() {
		if err := m.vpn.DeleteGroup(ctx, id); err != nil {
			return errors.Wrapf(err, "cluster %s: deleting vpn group", id)
		}
	}
	if err := m.resources.ResourcesMut(func(r *resources.Manager) error {
		_, _, err := r.ClusterDeployments.Remove(ctx, id)
		return err
	}); err != nil {
		return err
	}
	return m.transition(id, model.ClusterUndeployed)
}

// pushAbsentConfigurations hands every former member of assignment an all-Absent
// PeerConfiguration, derived from the same assignment being torn down, so the Peer Messaging
// Broker can tell each agent to explicitly unwind what it built rather than leaving the cluster
// half-configured when no further ApplyPeerConfiguration will ever arrive for it.
func (m *Manager) pushAbsentConfigurations(ctx context.Context, assignment model.ClusterAssignment) {
	if m.OnConfigurationUpdate == nil {
		return
	}
	for _, peerId := range assignment.Members() {
		_, cfg, err := m.actions.ConfigurationFor(ctx, peerId, assignment, m.opts)
		if err != nil {
			continue
		}
		m.OnConfigurationUpdate(PeerConfigurationUpdate{
			PeerId: peerId,
			Old:    model.OldPeerConfiguration{},
			New:    actions.AbsentConfiguration(cfg),
		})
	}
}

func (m *Manager) membersOf(ctx context.Context, config model.ClusterConfiguration) ([]ids.PeerId, error) {
	var peers []model.PeerDescriptor
	err := m.resources.Resources(func(r *resources.Manager) error {
		var err error
		peers, err = r.Peers.List(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	owner := make(map[ids.DeviceId]ids.PeerId)
	for _, p := range peers {
		for _, d := range p.DeviceIds() {
			owner[d] = p.Id
		}
	}
	seen := make(map[ids.PeerId]struct{})
	var out []ids.PeerId
	for device := range config.Devices {
		peerId, ok := owner[device]
		if !ok {
			return nil, errors.Errorf("cluster %s: device %s is not owned by any known peer", config.Id, device)
		}
		if _, dup := seen[peerId]; dup {
			continue
		}
		seen[peerId] = struct{}{}
		out = append(out, peerId)
	}
	return out, nil
}

// canServerPort derives a deterministic CAN-server port from the low 16 bits of a peer's
// VPN IPv4 address. Collisions are possible only across disjoint clusters.
func canServerPort(addr net.IP) uint16 {
	v4 := addr.To4()
	if v4 == nil {
		return 0
	}
	return uint16(v4[2])<<8 | uint16(v4[3])
}
